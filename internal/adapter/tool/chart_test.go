package tool

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBarChart(t *testing.T) {
	data, err := RenderBarChart(ChartSpec{
		Title:  "Month-wise Expenses",
		XLabel: "Month",
		YLabel: "Total Amount",
		Labels: []string{"2025-03", "2025-04", "2025-05", "2025-06"},
		Values: []float64{3, 10, 0, 7},
	})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, chartWidth, img.Bounds().Dx())
	assert.Equal(t, chartHeight, img.Bounds().Dy())
}

func TestBarChartCarriesLabels(t *testing.T) {
	spec := ChartSpec{
		Title:  "Category-wise Expenses",
		XLabel: "Category",
		YLabel: "Total Amount",
		Labels: []string{"rent", "food", "travel"},
		Values: []float64{99, 30, 15},
	}
	graph, err := spec.barChart()
	require.NoError(t, err)

	assert.Equal(t, "Category-wise Expenses", graph.Title)
	require.Len(t, graph.Bars, 3)
	for i, bar := range graph.Bars {
		assert.Equal(t, spec.Labels[i], bar.Label)
		assert.Equal(t, spec.Values[i], bar.Value)
	}
	assert.Equal(t, viridis[len(viridis)-1], graph.Bars[0].Style.FillColor, "the largest bar takes the top colour")
	assert.Len(t, graph.Elements, 1, "axis titles are drawn")
	assert.Zero(t, graph.XAxis.TextRotationDegrees)
}

func TestBarChartTiltsCrowdedLabels(t *testing.T) {
	spec := ChartSpec{Title: "Day-wise Expenses"}
	for i := range chartTiltFrom {
		spec.Labels = append(spec.Labels, string(rune('a'+i)))
		spec.Values = append(spec.Values, float64(i+1))
	}
	graph, err := spec.barChart()
	require.NoError(t, err)
	assert.Equal(t, 45.0, graph.XAxis.TextRotationDegrees)
	assert.GreaterOrEqual(t, graph.BarWidth, chartMinBar)
	assert.LessOrEqual(t, graph.BarWidth, chartMaxBar)
}

func TestBarChartRejectsBadInput(t *testing.T) {
	cases := map[string]ChartSpec{
		"empty":      {},
		"mismatched": {Labels: []string{"a"}, Values: []float64{1, 2}},
		"all zero":   {Labels: []string{"a", "b"}, Values: []float64{0, 0}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := RenderBarChart(spec)
			assert.Error(t, err)
		})
	}
}

func TestScaleColorBounds(t *testing.T) {
	assert.Equal(t, viridis[0], scaleColor(-1), "below range clamps to the first anchor")
	assert.Equal(t, viridis[len(viridis)-1], scaleColor(2), "above range clamps to the last anchor")
	assert.Equal(t, viridis[2], scaleColor(0.5))
}
