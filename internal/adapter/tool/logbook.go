package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Notification messages written by tools on success. They are rendered as
// HTML by the web frontend.
const (
	NoticeEventCreated = "<b>+ Event created successfully!</b>"
	NoticeEmailSent    = "<b>+ Email sent successfully!</b>"
	NoticeExpenseSaved = "<b>+ Expense logged successfully!</b>"
)

// LogDocument is the on-disk shape of both log files.
type LogDocument struct {
	Logs []string `json:"logs"`
}

// LogBook owns the notification and calendar log files shown next to the
// chat. The calendar log lists today's events as "hh:mm AM | summary" sorted
// by time of day; the notification log keeps the newest message first.
type LogBook struct {
	mu            sync.Mutex
	notifications string
	calendar      string
	logger        *slog.Logger
}

// NewLogBook creates a log book over the two file paths.
func NewLogBook(notificationsPath, calendarPath string, logger *slog.Logger) *LogBook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBook{
		notifications: notificationsPath,
		calendar:      calendarPath,
		logger:        logger,
	}
}

// Ensure creates missing log files (and their directories) with no entries.
func (b *LogBook) Ensure() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range []string{b.notifications, b.calendar} {
		if _, err := os.Stat(p); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat log %s: %w", p, err)
		}
		if err := writeLog(p, nil); err != nil {
			return err
		}
		b.logger.Info("log file created", "path", p)
	}
	return nil
}

// Notifications returns the notification log, newest first.
func (b *LogBook) Notifications() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readLog(b.notifications)
}

// CalendarEntries returns today's calendar log in time-of-day order.
func (b *LogBook) CalendarEntries() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return readLog(b.calendar)
}

// Notify puts msg at the top of the notification log.
func (b *LogBook) Notify(msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	logs, err := readLog(b.notifications)
	if err != nil {
		return err
	}
	logs = append([]string{msg}, logs...)
	return writeLog(b.notifications, logs)
}

// AddCalendarEntry records an event starting at hhmm (24h "15:00") and
// re-sorts the calendar log.
func (b *LogBook) AddCalendarEntry(hhmm, summary string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	logs, err := readLog(b.calendar)
	if err != nil {
		return err
	}
	logs = append(logs, To12Hour(hhmm)+" | "+summary)
	SortTimeEntries(logs)
	return writeLog(b.calendar, logs)
}

// ResetCalendar empties the calendar log. It runs at midnight since the log
// only describes the current day.
func (b *LogBook) ResetCalendar() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return writeLog(b.calendar, nil)
}

// TrimNotifications keeps the newest keep notifications and reports how many
// were dropped.
func (b *LogBook) TrimNotifications(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	logs, err := readLog(b.notifications)
	if err != nil {
		return 0, err
	}
	if len(logs) <= keep {
		return 0, nil
	}
	dropped := len(logs) - keep
	return dropped, writeLog(b.notifications, logs[:keep])
}

// readLog loads a log document. A missing file reads as empty.
func readLog(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return []string{}, nil
	}
	var doc LogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse log %s: %w", path, err)
	}
	if doc.Logs == nil {
		doc.Logs = []string{}
	}
	return doc.Logs, nil
}

// writeLog replaces the log file atomically.
func writeLog(path string, logs []string) error {
	if logs == nil {
		logs = []string{}
	}
	data, err := json.Marshal(LogDocument{Logs: logs})
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// To12Hour converts "21:00" to "09:00 PM". Input that is not HH:MM is
// returned unchanged.
func To12Hour(hhmm string) string {
	h, m, ok := parseClock(strings.TrimSpace(hhmm))
	if !ok {
		return hhmm
	}
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%02d:%02d %s", h, m, period)
}

// SortTimeEntries sorts "hh:mm AM | text" entries by time of day. Entries
// without a readable time keep their relative order after the timed ones.
func SortTimeEntries(entries []string) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, aok := entryMinutes(entries[i])
		c, cok := entryMinutes(entries[j])
		if aok != cok {
			return aok
		}
		return aok && a < c
	})
}

func entryMinutes(entry string) (int, bool) {
	timePart, _, _ := strings.Cut(entry, "|")
	fields := strings.Fields(timePart)
	if len(fields) != 2 {
		return 0, false
	}
	h, m, ok := parseClock(fields[0])
	if !ok || h < 1 || h > 12 {
		return 0, false
	}
	switch strings.ToUpper(fields[1]) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h < 12 {
			h += 12
		}
	default:
		return 0, false
	}
	return h*60 + m, true
}

func parseClock(s string) (h, m int, ok bool) {
	hs, ms, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err = strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
