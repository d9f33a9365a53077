package tool

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNoLedger is returned by Ledger.Load when the ledger file does not exist.
var ErrNoLedger = errors.New("no expense log found")

var ledgerHeader = []string{"date", "amount", "category", "currency"}

// Expense is one ledger row.
type Expense struct {
	Date     string  `json:"date"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Currency string  `json:"currency"`

	day time.Time
}

// Day returns the parsed date of the expense.
func (e Expense) Day() time.Time { return e.day }

// NewExpense validates and normalises a ledger row.
func NewExpense(date string, amount float64, category, currency string) (Expense, error) {
	day, err := ParseDay(date)
	if err != nil {
		return Expense{}, fmt.Errorf("invalid date %q: use DD/MM/YYYY", date)
	}
	return Expense{
		Date:     day.Format(DateLayout),
		Amount:   amount,
		Category: strings.TrimSpace(category),
		Currency: strings.TrimSpace(currency),
		day:      day,
	}, nil
}

// Ledger is the CSV expense ledger with columns date,amount,category,currency.
// Rows are kept in ascending date order; each append rewrites the file.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates a ledger over path. The file is created on first append.
func NewLedger(path string) *Ledger { return &Ledger{path: path} }

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// Load reads every row in file order.
func (l *Ledger) Load() ([]Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Append adds e and rewrites the ledger sorted by date. Rows sharing a date
// keep their insertion order.
func (l *Ledger) Append(e Expense) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.load()
	if err != nil && !errors.Is(err, ErrNoLedger) {
		return err
	}
	rows = append(rows, e)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].day.Before(rows[j].day) })
	return l.write(rows)
}

func (l *Ledger) load() ([]Expense, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoLedger
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows []Expense
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		line++
		if line == 1 && isLedgerHeader(rec) {
			continue
		}
		if len(rec) < len(ledgerHeader) {
			return nil, fmt.Errorf("ledger line %d: want %d columns, got %d", line, len(ledgerHeader), len(rec))
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: invalid amount %q", line, rec[1])
		}
		e, err := NewExpense(rec[0], amount, rec[2], rec[3])
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		rows = append(rows, e)
	}
	return rows, nil
}

func (l *Ledger) write(rows []Expense) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ledgerHeader); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}
	for _, e := range rows {
		rec := []string{e.Date, strconv.FormatFloat(e.Amount, 'f', -1, 64), e.Category, e.Currency}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return writeFileAtomic(l.path, buf.Bytes())
}

func isLedgerHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), ledgerHeader[0])
}
