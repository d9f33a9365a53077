package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"yinsen/internal/domain"
)

const (
	msgNoLedger   = "No expense log found"
	msgNoExpenses = "No expenses logged yet"
	msgPlotOnly   = "shown in image plot. no data in text format"

	defaultLastN = 5
)

// ExpenseTool manages the expense ledger and renders spending charts.
type ExpenseTool struct {
	ledger   *Ledger
	logs     *LogBook
	chartDir string
	render   func(ChartSpec) ([]byte, error)
	logger   *slog.Logger
}

// NewExpenseTool creates the expense_manager tool. Charts are written to chartDir.
func NewExpenseTool(ledger *Ledger, logs *LogBook, chartDir string, logger *slog.Logger) *ExpenseTool {
	return &ExpenseTool{ledger: ledger, logs: logs, chartDir: chartDir, render: RenderBarChart, logger: logger}
}

func (t *ExpenseTool) Name() string { return "expense_manager" }

func (t *ExpenseTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": [
				"log_expense", "view_all_expenses", "view_last_N_expenses",
				"view_expenses_by_category", "view_expenses_category_wise",
				"view_expenses_by_date", "view_daywise_expenses",
				"view_expenses_by_week", "view_weekwise_expenses",
				"view_expenses_by_month", "view_monthwise_expenses",
				"view_expenses_by_year", "view_yearwise_expenses"
			]},
			"date": {"type": "string"},
			"amount": {"type": ["string", "number"]},
			"category": {"type": "string"},
			"currency": {"type": "string"},
			"n": {"type": ["string", "integer"]},
			"week": {"type": "string"},
			"month": {"type": ["string", "integer"]},
			"year": {"type": ["string", "integer"]}
		},
		"required": ["action"]
	}`)
}

func (t *ExpenseTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.expense_manager", t.logger, instr,
		Dispatch(actionOf, ActionMap[domain.ToolInstructions]{
			"log_expense":                 t.logExpense,
			"view_all_expenses":           t.withRows(t.viewAll),
			"view_last_N_expenses":        t.withRows(t.viewLastN),
			"view_expenses_by_category":   t.withRows(t.viewByCategory),
			"view_expenses_category_wise": t.withRows(t.viewCategoryWise),
			"view_expenses_by_date":       t.withRows(t.viewByDate),
			"view_daywise_expenses":       t.withRows(t.viewDaywise),
			"view_expenses_by_week":       t.withRows(t.viewByWeek),
			"view_weekwise_expenses":      t.withRows(t.viewWeekwise),
			"view_expenses_by_month":      t.withRows(t.viewByMonth),
			"view_monthwise_expenses":     t.withRows(t.viewMonthwise),
			"view_expenses_by_year":       t.withRows(t.viewByYear),
			"view_yearwise_expenses":      t.withRows(t.viewYearwise),
		}),
	)
}

type logExpenseParams struct {
	Date     string     `json:"date" validate:"required,dmy"`
	Amount   flexString `json:"amount" validate:"required,numeric"`
	Category string     `json:"category" validate:"required"`
	Currency string     `json:"currency" validate:"required"`
}

func (t *ExpenseTool) logExpense(_ context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	p, err := DecodeInstructions[logExpenseParams](instr)
	if err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	if msg := checkParams(p); msg != "" {
		return Failure(msg), nil
	}
	amount, err := strconv.ParseFloat(p.Amount.String(), 64)
	if err != nil {
		return Failure("'amount' must be a number"), nil
	}
	e, err := NewExpense(p.Date, amount, p.Category, p.Currency)
	if err != nil {
		return Failure(err.Error()), nil
	}
	if err := t.ledger.Append(e); err != nil {
		return nil, fmt.Errorf("log expense: %w", err)
	}
	t.logger.Info("expense logged", "date", e.Date, "category", e.Category)

	result := SuccessMessage("Expense logged successfully")
	if t.logs != nil {
		if err := t.logs.Notify(NoticeExpenseSaved); err != nil {
			t.logger.Warn("notification log not updated", "error", err)
		} else {
			result.LogsUpdated = true
		}
	}
	return result, nil
}

type rowsHandler func(ctx context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error)

// withRows loads the ledger and answers the two "nothing to show" cases
// before handing the rows to h.
func (t *ExpenseTool) withRows(h rowsHandler) ActionHandler[domain.ToolInstructions] {
	return func(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
		rows, err := t.ledger.Load()
		if errors.Is(err, ErrNoLedger) {
			return Failure(msgNoLedger), nil
		}
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return Info(msgNoExpenses), nil
		}
		return h(ctx, instr, rows)
	}
}

func (t *ExpenseTool) viewAll(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	return Success(rows), nil
}

func (t *ExpenseTool) viewLastN(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	n := defaultLastN
	if raw := instr.String("n"); raw != "" {
		v, err := flexString(raw).Int()
		if err != nil || v < 1 {
			return Failure("'n' must be a positive integer"), nil
		}
		n = v
	}

	// Most recent first; among rows of the same day the later entry wins.
	recent := slices.Clone(rows)
	slices.Reverse(recent)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].day.After(recent[j].day) })
	if n < len(recent) {
		recent = recent[:n]
	}
	return Success(recent), nil
}

func (t *ExpenseTool) viewByCategory(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	category := instr.String("category")
	if category == "" {
		return Failure("No category specified for view_expenses_by_category"), nil
	}
	matched := filterRows(rows, func(e Expense) bool { return strings.EqualFold(e.Category, category) })
	if len(matched) == 0 {
		return Info("No expenses found for category: " + category), nil
	}
	return Success(matched), nil
}

func (t *ExpenseTool) viewByDate(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	dateStr := instr.String("date")
	if dateStr == "" {
		return Failure("No date specified for view_expenses_by_date"), nil
	}
	day, err := ParseDay(dateStr)
	if err != nil {
		return Failure("Invalid date format. Use DD/MM/YYYY"), nil
	}
	matched := filterRows(rows, func(e Expense) bool { return e.day.Equal(day) })
	if len(matched) == 0 {
		return Info("No expenses found for date: " + dateStr), nil
	}
	return Success(matched), nil
}

func (t *ExpenseTool) viewByWeek(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	weekStr := instr.String("week")
	if weekStr == "" {
		return Failure("No week specified for view_expenses_by_week"), nil
	}
	year, week, ok := parseYearWeek(weekStr)
	if !ok {
		return Failure("Invalid week format. Use YYYY-WW (e.g., 2023-01)"), nil
	}
	matched := filterRows(rows, func(e Expense) bool {
		y, w := e.day.ISOWeek()
		return y == year && w == week
	})
	if len(matched) == 0 {
		return Info("No expenses found for week: " + weekStr), nil
	}
	return Success(matched), nil
}

func (t *ExpenseTool) viewByMonth(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	monthStr, yearStr := instr.String("month"), instr.String("year")
	if monthStr == "" || yearStr == "" {
		return Failure("Both month and year must be specified for view_expenses_by_month"), nil
	}
	month, errM := flexString(monthStr).Int()
	year, errY := flexString(yearStr).Int()
	if errM != nil || errY != nil {
		return Failure("Invalid month or year format. Month and year must be numbers."), nil
	}
	if month < 1 || month > 12 {
		return Failure("Month must be between 1 and 12"), nil
	}
	matched := filterRows(rows, func(e Expense) bool {
		return e.day.Year() == year && int(e.day.Month()) == month
	})
	if len(matched) == 0 {
		return Info(fmt.Sprintf("No expenses found for month: %d/%d", month, year)), nil
	}
	return Success(matched), nil
}

func (t *ExpenseTool) viewByYear(_ context.Context, instr domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	yearStr := instr.String("year")
	if yearStr == "" {
		return Failure("No year specified for view_expenses_by_year"), nil
	}
	year, err := flexString(yearStr).Int()
	if err != nil {
		return Failure("Invalid year format. Use YYYY (e.g., 2023)"), nil
	}
	matched := filterRows(rows, func(e Expense) bool { return e.day.Year() == year })
	if len(matched) == 0 {
		return Info("No expenses found for year: " + yearStr), nil
	}
	return Success(matched), nil
}

// CategoryTotal is one row of the category-wise summary.
type CategoryTotal struct {
	Category    string  `json:"category"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

func (t *ExpenseTool) viewCategoryWise(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	groups := groupRows(rows, func(e Expense) string { return e.Category })
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].total != groups[j].total {
			return groups[i].total > groups[j].total
		}
		return groups[i].key < groups[j].key
	})
	out := make([]CategoryTotal, len(groups))
	for i, g := range groups {
		out[i] = CategoryTotal{Category: g.key, TotalAmount: g.total, Count: g.count}
	}
	return t.withChart(Success(out), "category_wise_expenses.png", groupChart("Category-wise Expenses", "Category", groups)), nil
}

// DayTotal is one row of the day-wise summary.
type DayTotal struct {
	Date        string  `json:"date"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

func (t *ExpenseTool) viewDaywise(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	groups := groupRows(rows, func(e Expense) string { return e.Date })
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].first.day.Before(groups[j].first.day) })

	result := t.withChart(Success(msgPlotOnly), "daywise_expenses.png", groupChart("Day-wise Expenses", "Date", groups))
	if len(result.ImagePaths) == 0 {
		out := make([]DayTotal, len(groups))
		for i, g := range groups {
			out[i] = DayTotal{Date: g.key, TotalAmount: g.total, Count: g.count}
		}
		result.Data = out
	}
	return result, nil
}

// WeekTotal is one row of the week-wise summary.
type WeekTotal struct {
	YearWeek    string  `json:"year_week"`
	Week        int     `json:"week"`
	Year        int     `json:"year"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

func (t *ExpenseTool) viewWeekwise(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	groups := groupRows(rows, func(e Expense) string {
		y, w := e.day.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	})
	// Keys are zero padded so lexical order is chronological.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key > groups[j].key })
	out := make([]WeekTotal, len(groups))
	for i, g := range groups {
		y, w := g.first.day.ISOWeek()
		out[i] = WeekTotal{YearWeek: g.key, Week: w, Year: y, TotalAmount: g.total, Count: g.count}
	}
	return t.withChart(Success(out), "weekwise_expenses.png", groupChart("Week-wise Expenses", "Week", groups)), nil
}

// MonthTotal is one row of the month-wise summary.
type MonthTotal struct {
	Month       string  `json:"month"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

func (t *ExpenseTool) viewMonthwise(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	groups := groupRows(rows, func(e Expense) string { return e.day.Format("2006-01") })
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key > groups[j].key })
	out := make([]MonthTotal, len(groups))
	for i, g := range groups {
		out[i] = MonthTotal{Month: g.key, TotalAmount: g.total, Count: g.count}
	}
	return t.withChart(Success(out), "monthwise_expenses.png", groupChart("Month-wise Expenses", "Month", groups)), nil
}

// YearTotal is one row of the year-wise summary.
type YearTotal struct {
	Year        int     `json:"year"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

func (t *ExpenseTool) viewYearwise(_ context.Context, _ domain.ToolInstructions, rows []Expense) (*domain.ToolResult, error) {
	groups := groupRows(rows, func(e Expense) string { return strconv.Itoa(e.day.Year()) })
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].first.day.Year() > groups[j].first.day.Year() })
	out := make([]YearTotal, len(groups))
	for i, g := range groups {
		out[i] = YearTotal{Year: g.first.day.Year(), TotalAmount: g.total, Count: g.count}
	}
	return t.withChart(Success(out), "yearwise_expenses.png", groupChart("Year-wise Expenses", "Year", groups)), nil
}

// withChart renders spec into chartDir/name and attaches it to result.
// A chart that cannot be written is logged and left out.
func (t *ExpenseTool) withChart(result *domain.ToolResult, name string, spec ChartSpec) *domain.ToolResult {
	if t.chartDir == "" {
		return result
	}
	png, err := t.render(spec)
	if err != nil {
		t.logger.Warn("expense chart not rendered", "chart", name, "error", err)
		return result
	}
	path := filepath.Join(t.chartDir, name)
	if err := writeFileAtomic(path, png); err != nil {
		t.logger.Warn("expense chart not saved", "chart", name, "error", err)
		return result
	}
	result.ImagePaths = []string{path}
	return result
}

type rowGroup struct {
	key   string
	total float64
	count int
	first Expense
}

// groupRows sums rows by key, keeping groups in first-seen order.
func groupRows(rows []Expense, key func(Expense) string) []rowGroup {
	index := make(map[string]int)
	var groups []rowGroup
	for _, e := range rows {
		k := key(e)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, rowGroup{key: k, first: e})
		}
		groups[i].total += e.Amount
		groups[i].count++
	}
	return groups
}

// groupChart plots each group's total against its key.
func groupChart(title, xLabel string, groups []rowGroup) ChartSpec {
	spec := ChartSpec{
		Title:  title,
		XLabel: xLabel,
		YLabel: "Total Amount",
		Labels: make([]string, len(groups)),
		Values: make([]float64, len(groups)),
	}
	for i, g := range groups {
		spec.Labels[i], spec.Values[i] = g.key, g.total
	}
	return spec
}

func filterRows(rows []Expense, keep func(Expense) bool) []Expense {
	out := make([]Expense, 0, len(rows))
	for _, e := range rows {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// parseYearWeek reads "2025-14" (a leading "W" on the week is tolerated).
func parseYearWeek(s string) (year, week int, ok bool) {
	ys, ws, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, 0, false
	}
	year, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	week, err = strconv.Atoi(strings.TrimPrefix(strings.ToUpper(ws), "W"))
	if err != nil || week < 1 || week > 53 {
		return 0, 0, false
	}
	return year, week, true
}
