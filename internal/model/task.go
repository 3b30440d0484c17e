package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// TaskType distinguishes regular entries from section headers.
type TaskType string

const (
	TypeTask    TaskType = "task"
	TypeSection TaskType = "section"
)

// Recurrence describes how a task repeats. Frequency is one of daily, weekdays, weekly or monthly.
type Recurrence struct {
	Frequency  string `json:"frequency"`
	DayOfWeek  string `json:"day_of_week,omitempty"`
	DayOfMonth int    `json:"day_of_month,omitempty"`
}

// Task is one entry in a schedule's ordered sequence.
//
// Text, StartTime, EndTime and StartDate are provider-owned when FromGCal is set and get
// overwritten on every calendar sync. Completed, Categories, Section and ID are user-owned.
// A task may keep its GCalEventID with FromGCal=false after the user detached it from the calendar.
type Task struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Categories  []string    `json:"categories,omitempty"`
	Completed   bool        `json:"completed"`
	Type        TaskType    `json:"type"`
	IsSection   bool        `json:"is_section"`
	Section     string      `json:"section,omitempty"`
	StartTime   string      `json:"start_time,omitempty"`
	EndTime     string      `json:"end_time,omitempty"`
	StartDate   string      `json:"start_date,omitempty"`
	GCalEventID string      `json:"gcal_event_id,omitempty"`
	FromGCal    bool        `json:"from_gcal"`
	IsRecurring *Recurrence `json:"is_recurring,omitempty"`
}

// NewSection builds a section header entry.
func NewSection(id, name string) Task {
	return Task{ID: id, Text: name, Type: TypeSection, IsSection: true}
}

// Sectional reports whether the entry is a section header. Either flag is enough.
func (t Task) Sectional() bool {
	return t.Type == TypeSection || t.IsSection
}

// Clone returns a copy that shares no slices or pointers with t.
func (t Task) Clone() Task {
	out := t
	if t.Categories != nil {
		out.Categories = make([]string, len(t.Categories))
		copy(out.Categories, t.Categories)
	}
	if t.IsRecurring != nil {
		rec := *t.IsRecurring
		out.IsRecurring = &rec
	}
	return out
}

// NormalizeText trims, collapses inner whitespace and case-folds s.
// Two tasks with equal normalized text are the same logical task.
func NormalizeText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(s)
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// CalendarOrderLess orders calendar tasks: all-day (no start time) first, then by start time,
// then by case-insensitive text.
func CalendarOrderLess(a, b Task) bool {
	aAllDay, bAllDay := a.StartTime == "", b.StartTime == ""
	if aAllDay != bAllDay {
		return aAllDay
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return strings.ToLower(a.Text) < strings.ToLower(b.Text)
}
