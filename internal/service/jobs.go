package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayplanner/internal/model"
)

// UserLister enumerates every planner user.
type UserLister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// PlannerJobs are the periodic per-user runs driven by the scheduler.
type PlannerJobs struct {
	users      UserLister
	reconciler *Reconciler
	defaultLoc *time.Location
	now        func() time.Time
}

func NewPlannerJobs(users UserLister, reconciler *Reconciler, defaultLoc *time.Location) *PlannerJobs {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &PlannerJobs{users: users, reconciler: reconciler, defaultLoc: defaultLoc, now: time.Now}
}

// AutogenerateTomorrow prepares the next local day for every user.
func (j *PlannerJobs) AutogenerateTomorrow(ctx context.Context) error {
	users, err := j.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, u := range users {
		day := j.localDay(u, 1)
		if _, err := j.reconciler.Autogenerate(ctx, u.ID, day, ""); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SyncToday pulls calendar changes into today's schedule for users with a linked calendar.
func (j *PlannerJobs) SyncToday(ctx context.Context) error {
	users, err := j.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, u := range users {
		if strings.TrimSpace(u.CalendarURL) == "" {
			continue
		}
		if _, err := j.reconciler.SyncFromCalendar(ctx, u.ID, j.localDay(u, 0)); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (j *PlannerJobs) localDay(u model.User, offset int) string {
	loc := j.defaultLoc
	if u.Timezone != "" {
		if l, err := time.LoadLocation(u.Timezone); err == nil {
			loc = l
		}
	}
	return j.now().In(loc).AddDate(0, 0, offset).Format(model.DayLayout)
}
