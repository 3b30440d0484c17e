package service

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"dayplanner/internal/model"
)

// RecurringService materializes recurring tasks for a new day.
type RecurringService struct{}

func NewRecurringService() *RecurringService {
	return &RecurringService{}
}

// Materialize returns fresh instances of every recurring task in prior that falls on target.
// Instances get new ids, are incomplete, unlinked from the calendar and dated target.
func (s *RecurringService) Materialize(prior *model.Schedule, target time.Time) []model.Task {
	if prior == nil {
		return nil
	}
	day := target.Format(model.DayLayout)
	fallback, err := model.ParseDay(prior.Date)
	if err != nil {
		fallback = target
	}

	var out []model.Task
	seen := make(map[string]bool)
	for _, t := range prior.Tasks {
		if t.IsRecurring == nil || t.Sectional() {
			continue
		}
		key := model.NormalizeText(t.Text)
		if key == "" || seen[key] {
			continue
		}

		anchor := fallback
		if d, err := time.Parse(model.DayLayout, t.StartDate); err == nil {
			anchor = d
		}
		due, err := occursOn(*t.IsRecurring, anchor, target)
		if err != nil {
			log.Printf("[warn] recurring task %q: %v", t.Text, err)
			continue
		}
		if !due {
			continue
		}
		seen[key] = true

		inst := t.Clone()
		inst.ID = uuid.NewString()
		inst.Completed = false
		inst.StartDate = day
		inst.GCalEventID = ""
		inst.FromGCal = false
		out = append(out, inst)
	}
	return out
}

var weekdays = map[string]rrule.Weekday{
	"monday":    rrule.MO,
	"tuesday":   rrule.TU,
	"wednesday": rrule.WE,
	"thursday":  rrule.TH,
	"friday":    rrule.FR,
	"saturday":  rrule.SA,
	"sunday":    rrule.SU,
}

func weekdayOf(t time.Time) rrule.Weekday {
	return weekdays[strings.ToLower(t.Weekday().String())]
}

// occursOn reports whether rec has an occurrence on target's calendar day, counting from anchor.
func occursOn(rec model.Recurrence, anchor, target time.Time) (bool, error) {
	anchor = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	dayStart := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)

	opt := rrule.ROption{Dtstart: anchor}
	switch strings.ToLower(strings.TrimSpace(rec.Frequency)) {
	case "daily":
		opt.Freq = rrule.DAILY
	case "weekdays":
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case "weekly":
		opt.Freq = rrule.WEEKLY
		wd := weekdayOf(anchor)
		if rec.DayOfWeek != "" {
			named, ok := weekdays[strings.ToLower(strings.TrimSpace(rec.DayOfWeek))]
			if !ok {
				return false, fmt.Errorf("unknown day_of_week %q", rec.DayOfWeek)
			}
			wd = named
		}
		opt.Byweekday = []rrule.Weekday{wd}
	case "monthly":
		return monthlyDue(rec, anchor, dayStart), nil
	default:
		return false, fmt.Errorf("unknown frequency %q", rec.Frequency)
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return false, fmt.Errorf("build rule: %w", err)
	}
	hits := r.Between(dayStart, dayStart.Add(24*time.Hour-time.Nanosecond), true)
	return len(hits) > 0, nil
}

// monthlyDue matches the recurring day of month, clamped to the month's last day.
func monthlyDue(rec model.Recurrence, anchor, target time.Time) bool {
	if target.Before(anchor) {
		return false
	}
	dueDay := rec.DayOfMonth
	if dueDay <= 0 {
		dueDay = anchor.Day()
	}
	if end := daysInMonth(target.Month(), target.Year()); dueDay > end {
		dueDay = end
	}
	return target.Day() == dueDay
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
