package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	for _, raw := range []string{"2025-03-10", "2025-03-10T00:00:00.000Z", "2025-03-10T17:45:00+02:00", " 2025-03-10 "} {
		got, err := NormalizeDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "2025-03-10T00:00:00.000Z", got, raw)
	}

	for _, raw := range []string{"10/03/2025", "2025-03-10garbage", "2025-03-10T99", "2025-03-10 09:00", "2025-03-1"} {
		_, err := NormalizeDate(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrValidation), raw)
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2025-03-10T23:30:00.5-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.Format(DayLayout))
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDay("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, NormalizeText("Team  Sync"), NormalizeText("  team sync "))
	assert.Equal(t, NormalizeText("STRASSE"), NormalizeText("strasse"))
	assert.Equal(t, "", NormalizeText(" \t\n"))
}

func TestCalendarOrderLess(t *testing.T) {
	allDay := Task{Text: "Holiday"}
	early := Task{Text: "b", StartTime: "08:00"}
	sameTimeA := Task{Text: "Alpha", StartTime: "09:00"}
	sameTimeB := Task{Text: "beta", StartTime: "09:00"}

	assert.True(t, CalendarOrderLess(allDay, early))
	assert.False(t, CalendarOrderLess(early, allDay))
	assert.True(t, CalendarOrderLess(early, sameTimeA))
	assert.True(t, CalendarOrderLess(sameTimeA, sameTimeB))
	assert.False(t, CalendarOrderLess(sameTimeB, sameTimeA))
}

func validSchedule() *Schedule {
	return &Schedule{
		UserID: "u1",
		Date:   "2025-03-10T00:00:00.000Z",
		Tasks: []Task{
			NewSection("s1", "Morning"),
			{ID: "t1", Text: "Write report", Type: TypeTask, StartDate: "2025-03-10", StartTime: "09:00", EndTime: "10:30"},
			{ID: "e1", Text: "Standup", Type: TypeTask, GCalEventID: "e1", FromGCal: true, StartDate: "2025-03-10"},
		},
		Metadata: Metadata{Source: SourceManual},
	}
}

func TestScheduleValidate(t *testing.T) {
	require.NoError(t, validSchedule().Validate())

	cases := []struct {
		name   string
		mutate func(s *Schedule)
		field  string
	}{
		{"missing user", func(s *Schedule) { s.UserID = "" }, "userId"},
		{"date not normalized", func(s *Schedule) { s.Date = "2025-03-10" }, "date"},
		{"unknown source", func(s *Schedule) { s.Metadata.Source = "import" }, "metadata.source"},
		{"empty id", func(s *Schedule) { s.Tasks[1].ID = "" }, "schedule[1].id"},
		{"duplicate id", func(s *Schedule) { s.Tasks[2].ID = "t1" }, "schedule[2].id"},
		{"bad type", func(s *Schedule) { s.Tasks[1].Type = "note" }, "schedule[1].type"},
		{"section flag mismatch", func(s *Schedule) { s.Tasks[0].IsSection = false }, "schedule[0].is_section"},
		{"bad time", func(s *Schedule) { s.Tasks[1].StartTime = "9:00" }, "schedule[1].start_time"},
		{"bad start date", func(s *Schedule) { s.Tasks[1].StartDate = "10.03.2025" }, "schedule[1].start_date"},
		{"calendar task without key", func(s *Schedule) { s.Tasks[2].GCalEventID = "" }, "schedule[2].gcal_event_id"},
		{"duplicate key", func(s *Schedule) { s.Tasks[1].GCalEventID = "e1" }, "schedule[2].gcal_event_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSchedule()
			tc.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestScheduleRecountMetadata(t *testing.T) {
	s := validSchedule()
	s.Tasks = append(s.Tasks, Task{ID: "r1", Text: "Stretch", Type: TypeTask, IsRecurring: &Recurrence{Frequency: "daily"}})
	s.RecountMetadata()

	assert.Equal(t, 3, s.Metadata.TotalTasks)
	assert.Equal(t, 1, s.Metadata.CalendarEvents)
	assert.Equal(t, 1, s.Metadata.RecurringTasks)
	assert.Equal(t, "2025-03-10", s.Day())
}

func TestTaskCloneIsDeep(t *testing.T) {
	orig := Task{ID: "t", Categories: []string{"work"}, IsRecurring: &Recurrence{Frequency: "weekly"}}
	c := orig.Clone()
	c.Categories[0] = "home"
	c.IsRecurring.Frequency = "daily"

	assert.Equal(t, "work", orig.Categories[0])
	assert.Equal(t, "weekly", orig.IsRecurring.Frequency)
}
