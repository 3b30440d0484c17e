// Package calendar talks to the external calendar provider and turns its events into schedule tasks.
package calendar

import (
	"context"
	"time"
)

// EventTime carries either an all-day Date (YYYY-MM-DD) or a timed DateTime (RFC 3339).
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
}

// RawEvent is one provider event before normalization.
type RawEvent struct {
	ID      string    `json:"id"`
	Summary string    `json:"summary"`
	Status  string    `json:"status,omitempty"`
	Start   EventTime `json:"start"`
	End     EventTime `json:"end"`
}

// AllDay reports whether the event uses date-only bounds.
func (e RawEvent) AllDay() bool {
	return e.Start.DateTime == "" && e.Start.Date != ""
}

// Fetcher returns the raw events visible for one day. Implementations return errors wrapping
// model.ErrAuth for credential problems and model.ErrFetch for everything else.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string, date time.Time, loc *time.Location) ([]RawEvent, error)
}
