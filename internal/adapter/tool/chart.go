package tool

import (
	"bytes"
	"fmt"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth    = 1600
	chartHeight   = 640
	chartPadding  = 60 // room for the axis titles
	chartMaxBar   = 80
	chartMinBar   = 4
	chartTiltFrom = 12 // bar count from which x labels are tilted
)

// viridis anchors, low to high.
var viridis = []drawing.Color{
	{R: 68, G: 1, B: 84, A: 255},
	{R: 59, G: 82, B: 139, A: 255},
	{R: 33, G: 145, B: 140, A: 255},
	{R: 94, G: 201, B: 98, A: 255},
	{R: 253, G: 231, B: 37, A: 255},
}

// ChartSpec describes a bar chart with one bar per label, left to right.
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Labels []string
	Values []float64
}

// RenderBarChart draws the chart and returns PNG bytes. Each bar's colour
// follows its value on a viridis scale.
func RenderBarChart(spec ChartSpec) ([]byte, error) {
	graph, err := spec.barChart()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("bar chart %q: %w", spec.Title, err)
	}
	return buf.Bytes(), nil
}

func (c ChartSpec) barChart() (chart.BarChart, error) {
	if len(c.Values) == 0 {
		return chart.BarChart{}, fmt.Errorf("bar chart %q: no values", c.Title)
	}
	if len(c.Labels) != len(c.Values) {
		return chart.BarChart{}, fmt.Errorf("bar chart %q: %d labels for %d values", c.Title, len(c.Labels), len(c.Values))
	}
	minV, maxV := 0.0, 0.0
	for _, v := range c.Values {
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	if maxV <= 0 {
		return chart.BarChart{}, fmt.Errorf("bar chart %q: nothing to plot", c.Title)
	}

	bars := make([]chart.Value, len(c.Values))
	for i, v := range c.Values {
		fill := scaleColor(v / maxV)
		bars[i] = chart.Value{
			Label: c.Labels[i],
			Value: v,
			Style: chart.Style{FillColor: fill, StrokeColor: fill},
		}
	}

	slot := (chartWidth - 3*chartPadding) / len(bars)
	barWidth := min(max(slot*7/10, chartMinBar), chartMaxBar)

	xAxis := chart.Style{FontSize: 10}
	if len(bars) >= chartTiltFrom {
		xAxis.TextRotationDegrees = 45
	}

	return chart.BarChart{
		Title:      c.Title,
		TitleStyle: chart.Style{FontSize: 16},
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: chartPadding, Left: chartPadding, Right: chartPadding / 2, Bottom: chartPadding},
		},
		BarWidth:   barWidth,
		BarSpacing: max(slot-barWidth, 1),
		XAxis:      xAxis,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: minV, Max: maxV},
		},
		Bars:     bars,
		Elements: []chart.Renderable{axisTitles(c.XLabel, c.YLabel)},
	}, nil
}

// axisTitles writes the x title centred under the chart and the y title
// rotated along the left edge.
func axisTitles(x, y string) chart.Renderable {
	return func(r chart.Renderer, canvas chart.Box, defaults chart.Style) {
		style := chart.Style{FontSize: 12, FontColor: drawing.ColorBlack}.InheritFrom(defaults)
		style.WriteTextOptionsToRenderer(r)
		cx, cy := canvas.Center()
		if x != "" {
			tb := r.MeasureText(x)
			r.Text(x, cx-tb.Width()/2, chartHeight-chartPadding/4)
		}
		if y != "" {
			tb := r.MeasureText(y)
			r.SetTextRotation(3 * math.Pi / 2)
			r.Text(y, chartPadding/3, cy+tb.Width()/2)
			r.ClearTextRotation()
		}
	}
}

// scaleColor interpolates the viridis anchors at t in [0, 1].
func scaleColor(t float64) drawing.Color {
	if t <= 0 {
		return viridis[0]
	}
	if t >= 1 {
		return viridis[len(viridis)-1]
	}
	pos := t * float64(len(viridis)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := viridis[i], viridis[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f) }
	return drawing.Color{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}
