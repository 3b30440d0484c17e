package calendar

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"dayplanner/internal/model"
)

// MaxEventsPerDay bounds the calendar block shown for one day.
const MaxEventsPerDay = 10

type candidate struct {
	event  RawEvent
	allDay bool
	start  time.Time
	end    time.Time
}

// Normalize turns the provider's events into calendar tasks for date (any day in loc).
// Cancelled and untitled events are dropped, the rest filtered to those touching the day,
// ordered by model.CalendarOrderLess, and capped at MaxEventsPerDay.
func Normalize(events []RawEvent, date time.Time, loc *time.Location) []model.Task {
	if loc == nil {
		loc = time.UTC
	}
	day := date.Format(model.DayLayout)

	kept := make([]candidate, 0, len(events))
	for _, ev := range events {
		if strings.EqualFold(strings.TrimSpace(ev.Status), "cancelled") || strings.TrimSpace(ev.Summary) == "" {
			continue
		}
		c, ok := toCandidate(ev, loc)
		if !ok || !c.touches(day) {
			continue
		}
		kept = append(kept, c)
	}

	tasks := make([]model.Task, 0, len(kept))
	for _, c := range kept {
		tasks = append(tasks, c.task(day, loc))
	}
	// Clock time, not instant: merge inserts new events with the same ordering.
	sort.SliceStable(tasks, func(i, j int) bool { return model.CalendarOrderLess(tasks[i], tasks[j]) })
	if len(tasks) > MaxEventsPerDay {
		tasks = tasks[:MaxEventsPerDay]
	}
	return tasks
}

func toCandidate(ev RawEvent, loc *time.Location) (candidate, bool) {
	c := candidate{event: ev, allDay: ev.AllDay()}
	if c.allDay {
		start, err := time.Parse(model.DayLayout, ev.Start.Date)
		if err != nil {
			return c, false
		}
		end, err := time.Parse(model.DayLayout, ev.End.Date)
		if err != nil || !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		c.start, c.end = start, end
		return c, true
	}

	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return c, false
	}
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	if err != nil || end.Before(start) {
		end = start
	}
	c.start, c.end = start.In(loc), end.In(loc)
	return c, true
}

// touches applies the half-open [start, end) rule for all-day events and the
// either-endpoint-on-the-day rule for timed ones.
func (c candidate) touches(day string) bool {
	if c.allDay {
		return c.start.Format(model.DayLayout) <= day && day < c.end.Format(model.DayLayout)
	}
	return c.start.Format(model.DayLayout) == day || c.end.Format(model.DayLayout) == day
}

func (c candidate) task(day string, loc *time.Location) model.Task {
	t := model.Task{
		ID:          c.event.ID,
		Text:        strings.TrimSpace(c.event.Summary),
		Type:        model.TypeTask,
		StartDate:   day,
		GCalEventID: c.event.ID,
		FromGCal:    true,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if !c.allDay {
		t.StartTime = c.start.In(loc).Format("15:04")
		t.EndTime = c.end.In(loc).Format("15:04")
	}
	return t
}
