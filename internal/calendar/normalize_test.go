package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplanner/internal/model"
)

var targetDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func timed(id, title, start, end string) RawEvent {
	return RawEvent{ID: id, Summary: title, Start: EventTime{DateTime: start}, End: EventTime{DateTime: end}}
}

func allDay(id, title, start, end string) RawEvent {
	return RawEvent{ID: id, Summary: title, Start: EventTime{Date: start}, End: EventTime{Date: end}}
}

func texts(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Text
	}
	return out
}

func TestNormalize_FiltersAndOrders(t *testing.T) {
	events := []RawEvent{
		timed("a", "Standup", "2025-03-10T09:00:00Z", "2025-03-10T09:15:00Z"),
		allDay("b", "Conference", "2025-03-09", "2025-03-11"),
		allDay("c", "Ended yesterday", "2025-03-08", "2025-03-10"),
		{ID: "d", Summary: "Dropped", Status: "cancelled", Start: EventTime{DateTime: "2025-03-10T10:00:00Z"}, End: EventTime{DateTime: "2025-03-10T11:00:00Z"}},
		timed("e", "   ", "2025-03-10T12:00:00Z", "2025-03-10T13:00:00Z"),
		timed("f", "Late night", "2025-03-09T23:00:00Z", "2025-03-10T01:00:00Z"),
		timed("g", "Tomorrow", "2025-03-11T09:00:00Z", "2025-03-11T10:00:00Z"),
		allDay("h", "Starts today", "2025-03-10", ""),
	}

	got := Normalize(events, targetDay, time.UTC)

	assert.Equal(t, []string{"Conference", "Starts today", "Standup", "Late night"}, texts(got))
	for _, task := range got {
		assert.True(t, task.FromGCal)
		assert.Equal(t, task.ID, task.GCalEventID)
		assert.Equal(t, model.TypeTask, task.Type)
		assert.Equal(t, "2025-03-10", task.StartDate)
	}
	assert.Empty(t, got[0].StartTime)
	assert.Empty(t, got[0].EndTime)
	assert.Equal(t, "09:00", got[2].StartTime)
	assert.Equal(t, "09:15", got[2].EndTime)
	assert.Equal(t, "23:00", got[3].StartTime)
	assert.Equal(t, "01:00", got[3].EndTime)
}

func TestNormalize_UsesLocalDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	events := []RawEvent{
		timed("early", "Early flight", "2025-03-09T23:30:00Z", "2025-03-09T23:45:00Z"),
		timed("prev", "Previous evening", "2025-03-09T20:00:00Z", "2025-03-09T21:00:00Z"),
	}

	got := Normalize(events, targetDay, loc)

	require.Len(t, got, 1)
	assert.Equal(t, "Early flight", got[0].Text)
	assert.Equal(t, "01:30", got[0].StartTime)
	assert.Equal(t, "01:45", got[0].EndTime)
}

func TestNormalize_TieBreakAndLimit(t *testing.T) {
	var events []RawEvent
	for h := 19; h >= 8; h-- {
		start := fmt.Sprintf("2025-03-10T%02d:00:00Z", h)
		end := fmt.Sprintf("2025-03-10T%02d:30:00Z", h)
		events = append(events, timed(fmt.Sprintf("ev%d", h), fmt.Sprintf("Slot %02d", h), start, end))
	}
	events = append(events, timed("beta", "beta", "2025-03-10T08:00:00Z", "2025-03-10T08:10:00Z"))
	events = append(events, timed("alpha", "Alpha", "2025-03-10T08:00:00Z", "2025-03-10T08:10:00Z"))

	got := Normalize(events, targetDay, time.UTC)

	require.Len(t, got, MaxEventsPerDay)
	assert.Equal(t, []string{"Alpha", "beta", "Slot 08"}, texts(got[:3]))
	assert.Equal(t, "Slot 15", got[len(got)-1].Text)
}

func TestNormalize_MalformedEventsDropped(t *testing.T) {
	events := []RawEvent{
		{ID: "x", Summary: "No bounds"},
		timed("y", "Bad time", "yesterday", "today"),
		allDay("z", "Bad date", "2025-13-40", ""),
	}
	assert.Empty(t, Normalize(events, targetDay, time.UTC))
}

func TestNormalize_SyntheticIDWithoutProviderID(t *testing.T) {
	got := Normalize([]RawEvent{timed("", "Anonymous", "2025-03-10T09:00:00Z", "2025-03-10T10:00:00Z")}, targetDay, time.UTC)

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Empty(t, got[0].GCalEventID)
}
