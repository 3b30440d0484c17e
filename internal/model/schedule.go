package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Source records what produced or last rewrote a schedule.
type Source string

const (
	SourceAIService    Source = "ai_service"
	SourceManual       Source = "manual"
	SourceCalendarSync Source = "calendar_sync"
)

const (
	// DayLayout is the format of Task.StartDate.
	DayLayout = "2006-01-02"
	// DateKeyLayout is the stored, day-start form of Schedule.Date.
	DateKeyLayout = "2006-01-02T00:00:00.000Z"
)

// Metadata is stored inline with the schedule row.
type Metadata struct {
	CreatedAt      time.Time `json:"created_at"`
	LastModified   time.Time `json:"last_modified"`
	Source         Source    `json:"source" gorm:"type:text"`
	TotalTasks     int       `json:"totalTasks"`
	CalendarEvents int       `json:"calendarEvents"`
	RecurringTasks int       `json:"recurringTasks"`
}

// Schedule is the per-user, per-day document. (UserID, Date) is its key.
type Schedule struct {
	UserID   string                    `json:"userId" gorm:"primaryKey;type:text"`
	Date     string                    `json:"date" gorm:"primaryKey;type:text"`
	Tasks    datatypes.JSONSlice[Task] `json:"schedule" gorm:"column:schedule"`
	Inputs   datatypes.JSONMap         `json:"inputs"`
	Metadata Metadata                  `json:"metadata" gorm:"embedded"`
}

// Day returns the YYYY-MM-DD form of the schedule date.
func (s *Schedule) Day() string {
	if len(s.Date) >= len(DayLayout) {
		return s.Date[:len(DayLayout)]
	}
	return s.Date
}

// RecountMetadata refreshes the derived task counters.
func (s *Schedule) RecountMetadata() {
	var total, cal, rec int
	for _, t := range s.Tasks {
		if t.Sectional() {
			continue
		}
		total++
		if t.FromGCal {
			cal++
		}
		if t.IsRecurring != nil {
			rec++
		}
	}
	s.Metadata.TotalTasks = total
	s.Metadata.CalendarEvents = cal
	s.Metadata.RecurringTasks = rec
}

// ParseDay accepts YYYY-MM-DD, the stored date key or an RFC 3339 timestamp and returns the
// calendar day at midnight UTC.
func ParseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.Parse(DayLayout, raw); err == nil {
		return d, nil
	}
	// The date is taken as written, before any offset is applied.
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("cannot parse %q as a day", raw)}
}

// NormalizeDate converts any accepted day form to the stored day-start key.
func NormalizeDate(raw string) (string, error) {
	d, err := ParseDay(raw)
	if err != nil {
		return "", err
	}
	return d.Format(DateKeyLayout), nil
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Validate checks the document against the persisted schema.
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if _, err := time.Parse(DateKeyLayout, s.Date); err != nil {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a day-start key", s.Date)}
	}
	switch s.Metadata.Source {
	case SourceAIService, SourceManual, SourceCalendarSync:
	default:
		return &ValidationError{Field: "metadata.source", Reason: fmt.Sprintf("unknown source %q", s.Metadata.Source)}
	}

	ids := make(map[string]struct{}, len(s.Tasks))
	keys := make(map[string]struct{})
	for i, t := range s.Tasks {
		field := func(name string) string { return fmt.Sprintf("schedule[%d].%s", i, name) }

		if t.ID == "" {
			return &ValidationError{Field: field("id"), Reason: "required"}
		}
		if _, dup := ids[t.ID]; dup {
			return &ValidationError{Field: field("id"), Reason: fmt.Sprintf("duplicate id %q", t.ID)}
		}
		ids[t.ID] = struct{}{}

		switch t.Type {
		case TypeTask, TypeSection:
		default:
			return &ValidationError{Field: field("type"), Reason: fmt.Sprintf("unknown type %q", t.Type)}
		}
		if t.IsSection != (t.Type == TypeSection) {
			return &ValidationError{Field: field("is_section"), Reason: "disagrees with type"}
		}
		for name, v := range map[string]string{"start_time": t.StartTime, "end_time": t.EndTime} {
			if v != "" && !clockPattern.MatchString(v) {
				return &ValidationError{Field: field(name), Reason: fmt.Sprintf("%q is not HH:MM", v)}
			}
		}
		if t.StartDate != "" {
			if _, err := time.Parse(DayLayout, t.StartDate); err != nil {
				return &ValidationError{Field: field("start_date"), Reason: fmt.Sprintf("%q is not YYYY-MM-DD", t.StartDate)}
			}
		}
		if t.FromGCal && t.GCalEventID == "" {
			return &ValidationError{Field: field("gcal_event_id"), Reason: "required when from_gcal is set"}
		}
		if t.GCalEventID != "" {
			if _, dup := keys[t.GCalEventID]; dup {
				return &ValidationError{Field: field("gcal_event_id"), Reason: fmt.Sprintf("duplicate event %q", t.GCalEventID)}
			}
			keys[t.GCalEventID] = struct{}{}
		}
	}
	return nil
}
