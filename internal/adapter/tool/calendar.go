package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"yinsen/internal/domain"
)

// CalendarEvent describes an event.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// CalendarBackend abstracts calendar storage.
type CalendarBackend interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (*CalendarEvent, error)
	// ListEvents returns events starting in [from, to), ordered by start.
	ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
}

// MemoryCalendar is an in-process calendar backend.
type MemoryCalendar struct {
	mu     sync.Mutex
	events []CalendarEvent
}

// NewMemoryCalendar creates an empty in-memory calendar.
func NewMemoryCalendar() *MemoryCalendar { return &MemoryCalendar{} }

func (m *MemoryCalendar) CreateEvent(_ context.Context, ev CalendarEvent) (*CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	m.events = append(m.events, ev)
	return &ev, nil
}

func (m *MemoryCalendar) ListEvents(_ context.Context, from, to time.Time) ([]CalendarEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CalendarEvent
	for _, ev := range m.events {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// CalendarTool creates and lists calendar events. Events created for the
// current day are also written to the calendar log.
type CalendarTool struct {
	backend CalendarBackend
	logs    *LogBook
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

// NewCalendarTool creates a calendar tool. If backend is nil, a MemoryCalendar
// is used. Instruction times are interpreted in loc (nil means local time).
func NewCalendarTool(backend CalendarBackend, logs *LogBook, loc *time.Location, logger *slog.Logger) *CalendarTool {
	if backend == nil {
		backend = NewMemoryCalendar()
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalendarTool{backend: backend, logs: logs, loc: loc, now: time.Now, logger: logger}
}

func (t *CalendarTool) Name() string { return "calendar" }

func (t *CalendarTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["create", "view"]},
			"start_time": {"type": "string", "description": "DD/MM/YYYY HH:MM"},
			"end_time": {"type": "string", "description": "DD/MM/YYYY HH:MM"},
			"title": {"type": "string"},
			"description": {"type": "string"},
			"date": {"type": "string", "description": "DD/MM/YYYY"}
		},
		"required": ["action"]
	}`)
}

type createEventParams struct {
	StartTime   string `json:"start_time" validate:"required,dmyhm"`
	EndTime     string `json:"end_time" validate:"required,dmyhm"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type viewEventsParams struct {
	Date string `json:"date" validate:"required,dmy"`
}

func (t *CalendarTool) Execute(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.calendar", t.logger, instr,
		Dispatch(actionOf, ActionMap[domain.ToolInstructions]{
			"create": t.create,
			"view":   t.view,
		}),
	)
}

func (t *CalendarTool) create(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	p, err := DecodeInstructions[createEventParams](instr)
	if err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	if msg := checkParams(p); msg != "" {
		return Failure(msg), nil
	}

	start, _ := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(p.StartTime), t.loc)
	end, _ := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(p.EndTime), t.loc)
	if !end.After(start) {
		return Failure("end_time must be after start_time"), nil
	}

	summary := strings.TrimSpace(p.Title)
	if summary == "" {
		summary = strings.TrimSpace(p.Description)
	}
	if summary == "" {
		return Failure("'title' or 'description' is required"), nil
	}

	ev, err := t.backend.CreateEvent(ctx, CalendarEvent{
		Summary:     summary,
		Description: strings.TrimSpace(p.Description),
		Start:       start,
		End:         end,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	t.logger.Info("calendar event created", "id", ev.ID, "start", p.StartTime)

	result := &domain.ToolResult{
		Status:  domain.ToolStatusSuccess,
		Message: "Event created successfully",
		Data:    eventView(*ev),
	}

	if t.logs != nil && sameDay(start, t.now().In(t.loc)) {
		if err := t.logs.AddCalendarEntry(start.Format("15:04"), ev.Summary); err != nil {
			t.logger.Warn("calendar log not updated", "error", err)
		} else {
			result.CalendarUpdated = true
		}
		if err := t.logs.Notify(NoticeEventCreated); err != nil {
			t.logger.Warn("notification log not updated", "error", err)
		} else {
			result.LogsUpdated = true
		}
	}
	return result, nil
}

func (t *CalendarTool) view(ctx context.Context, instr domain.ToolInstructions) (*domain.ToolResult, error) {
	p, err := DecodeInstructions[viewEventsParams](instr)
	if err != nil {
		return Failure(fmt.Sprintf("invalid instructions: %v", err)), nil
	}
	if msg := checkParams(p); msg != "" {
		return Failure(msg), nil
	}

	day, _ := time.ParseInLocation("2/1/2006", strings.TrimSpace(p.Date), t.loc)
	events, err := t.backend.ListEvents(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return Info("No events found for date: " + p.Date), nil
	}

	views := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		views = append(views, eventView(ev))
	}
	return Success(views), nil
}

// eventView renders an event with the same date format the instructions use.
func eventView(ev CalendarEvent) map[string]string {
	v := map[string]string{
		"id":         ev.ID,
		"summary":    ev.Summary,
		"start_time": ev.Start.Format(DateTimeLayout),
		"end_time":   ev.End.Format(DateTimeLayout),
	}
	if ev.Description != "" {
		v["description"] = ev.Description
	}
	return v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
