package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yinsen/internal/domain"
)

func newTestCalendar(t *testing.T, now time.Time) (*CalendarTool, *LogBook) {
	t.Helper()
	logs := newTestLogBook(t)
	cal := NewCalendarTool(nil, logs, time.UTC, newTestLogger())
	cal.now = func() time.Time { return now }
	return cal, logs
}

func TestCalendarCreateToday(t *testing.T) {
	cal, logs := newTestCalendar(t, time.Date(2025, 4, 5, 8, 0, 0, 0, time.UTC))

	res, err := cal.Execute(context.Background(), domain.ToolInstructions{
		"action":     "create",
		"start_time": "05/04/2025 15:00",
		"end_time":   "05/04/2025 16:00",
		"title":      "Dentist",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolStatusSuccess, res.Status)
	assert.Equal(t, "Event created successfully", res.Message)
	assert.True(t, res.CalendarUpdated)
	assert.True(t, res.LogsUpdated)

	entries, err := logs.CalendarEntries()
	require.NoError(t, err)
	assert.Equal(t, []string{"03:00 PM | Dentist"}, entries)

	notes, err := logs.Notifications()
	require.NoError(t, err)
	assert.Equal(t, []string{NoticeEventCreated}, notes)
}

func TestCalendarCreateOtherDaySkipsLogs(t *testing.T) {
	cal, logs := newTestCalendar(t, time.Date(2025, 4, 4, 8, 0, 0, 0, time.UTC))

	res, err := cal.Execute(context.Background(), domain.ToolInstructions{
		"action":      "create",
		"start_time":  "05/04/2025 15:00",
		"end_time":    "05/04/2025 16:00",
		"description": "Pick up parcel",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolStatusSuccess, res.Status)
	assert.False(t, res.CalendarUpdated)
	assert.False(t, res.LogsUpdated)

	view := res.Data.(map[string]string)
	assert.Equal(t, "Pick up parcel", view["summary"])

	entries, err := logs.CalendarEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCalendarCreateValidation(t *testing.T) {
	cal, _ := newTestCalendar(t, time.Now())

	tests := []struct {
		name  string
		instr domain.ToolInstructions
		want  string
	}{
		{"missing start", domain.ToolInstructions{"action": "create", "end_time": "05/04/2025 16:00", "title": "x"}, "'start_time' is required"},
		{"bad format", domain.ToolInstructions{"action": "create", "start_time": "2025-04-05T15:00", "end_time": "05/04/2025 16:00", "title": "x"}, "'start_time' must be a date and time in DD/MM/YYYY HH:MM format"},
		{"end before start", domain.ToolInstructions{"action": "create", "start_time": "05/04/2025 16:00", "end_time": "05/04/2025 15:00", "title": "x"}, "end_time must be after start_time"},
		{"no summary", domain.ToolInstructions{"action": "create", "start_time": "05/04/2025 15:00", "end_time": "05/04/2025 16:00"}, "'title' or 'description' is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cal.Execute(context.Background(), tt.instr)
			require.NoError(t, err)
			assert.True(t, res.IsError())
			assert.Equal(t, tt.want, res.Message)
		})
	}
}

func TestCalendarView(t *testing.T) {
	cal, _ := newTestCalendar(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, ev := range []struct{ start, end, title string }{
		{"05/04/2025 18:00", "05/04/2025 19:00", "Dinner"},
		{"05/04/2025 09:00", "05/04/2025 10:00", "Gym"},
		{"06/04/2025 09:00", "06/04/2025 10:00", "Brunch"},
	} {
		res, err := cal.Execute(ctx, domain.ToolInstructions{"action": "create", "start_time": ev.start, "end_time": ev.end, "title": ev.title})
		require.NoError(t, err)
		require.False(t, res.IsError(), res.Message)
	}

	res, err := cal.Execute(ctx, domain.ToolInstructions{"action": "view", "date": "05/04/2025"})
	require.NoError(t, err)
	events := res.Data.([]map[string]string)
	require.Len(t, events, 2)
	assert.Equal(t, "Gym", events[0]["summary"])
	assert.Equal(t, "05/04/2025 09:00", events[0]["start_time"])
	assert.Equal(t, "Dinner", events[1]["summary"])

	res, err = cal.Execute(ctx, domain.ToolInstructions{"action": "view", "date": "07/04/2025"})
	require.NoError(t, err)
	assert.Equal(t, domain.ToolStatusInfo, res.Status)
	assert.Equal(t, "No events found for date: 07/04/2025", res.Message)
}

func TestMemoryCalendarAssignsIDs(t *testing.T) {
	m := NewMemoryCalendar()
	a, err := m.CreateEvent(context.Background(), CalendarEvent{Summary: "a"})
	require.NoError(t, err)
	b, err := m.CreateEvent(context.Background(), CalendarEvent{Summary: "b"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
