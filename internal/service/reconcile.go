package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"gorm.io/datatypes"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
)

// recurringLookback is how many earlier schedules are scanned for recurring task templates.
const recurringLookback = 31

// ScheduleStore is the document collection the reconciler reads and writes.
// Lookups of a missing document return model.ErrScheduleNotFound.
type ScheduleStore interface {
	FindOne(ctx context.Context, userID, date string) (*model.Schedule, error)
	Replace(ctx context.Context, s *model.Schedule) error
	UpdateFields(ctx context.Context, userID, date string, fields map[string]any) error
	FindLatestWithTasksBefore(ctx context.Context, userID, date string) (*model.Schedule, error)
	FindRecentBefore(ctx context.Context, userID, date string, limit int) ([]*model.Schedule, error)
}

// UserStore resolves calendar credentials and timezone for a user.
type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
}

// Materializer creates the recurring task instances due on a day.
type Materializer interface {
	Materialize(prior *model.Schedule, target time.Time) []model.Task
}

// SyncResult is returned by calendar sync entry points.
type SyncResult struct {
	Schedule *model.Schedule
	Created  bool
	// Degraded is set when calendar data could not be fetched and nothing was changed.
	Degraded bool
	Stats    MergeStats
}

// AutogenResult is returned by Autogenerate.
type AutogenResult struct {
	Schedule             *model.Schedule
	Created              bool
	Existed              bool
	SourceFound          bool
	CalendarDegraded     bool
	CalendarAuthRequired bool
}

// Reconciler sequences calendar fetch, merge, dedup and persistence for one (user, date).
type Reconciler struct {
	schedules    ScheduleStore
	users        UserStore
	fetcher      calendar.Fetcher
	recurring    Materializer
	generator    Generator
	fetchTimeout time.Duration
	defaultLoc   *time.Location
	now          func() time.Time
}

func NewReconciler(schedules ScheduleStore, users UserStore, fetcher calendar.Fetcher, recurring Materializer, generator Generator, fetchTimeout time.Duration, defaultLoc *time.Location) *Reconciler {
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Reconciler{
		schedules:    schedules,
		users:        users,
		fetcher:      fetcher,
		recurring:    recurring,
		generator:    generator,
		fetchTimeout: fetchTimeout,
		defaultLoc:   defaultLoc,
		now:          time.Now,
	}
}

// Sync stores already-normalized calendar tasks for (userID, date). Without a document one is
// built from the calendar batch alone; otherwise this is ApplyCalendarUpdate.
func (r *Reconciler) Sync(ctx context.Context, userID, date string, calendarTasks []model.Task) (*SyncResult, error) {
	key, err := model.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	existing, err := r.schedules.FindOne(ctx, userID, key)
	switch {
	case errors.Is(err, model.ErrScheduleNotFound):
		return r.createFromCalendar(ctx, userID, key, calendarTasks)
	case err != nil:
		return nil, err
	}
	return r.applyUpdate(ctx, existing, calendarTasks)
}

// ApplyCalendarUpdate merges a calendar batch into the existing document. Repeating the same
// batch leaves the schedule unchanged.
func (r *Reconciler) ApplyCalendarUpdate(ctx context.Context, userID, date string, calendarTasks []model.Task) (*SyncResult, error) {
	key, err := model.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	existing, err := r.schedules.FindOne(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	return r.applyUpdate(ctx, existing, calendarTasks)
}

func (r *Reconciler) createFromCalendar(ctx context.Context, userID, key string, calendarTasks []model.Task) (*SyncResult, error) {
	now := r.now().UTC()
	doc := &model.Schedule{
		UserID: userID,
		Date:   key,
		Metadata: model.Metadata{
			CreatedAt:    now,
			LastModified: now,
			Source:       model.SourceCalendarSync,
		},
	}
	doc.Tasks = UpsertByEventID(nil, calendarTasks, doc.Day())
	doc.RecountMetadata()
	if err := r.schedules.Replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	log.Printf("[info] schedule created from calendar user=%s date=%s events=%d", userID, doc.Day(), len(doc.Tasks))
	return &SyncResult{Schedule: doc, Created: true, Stats: MergeStats{Inserted: len(doc.Tasks)}}, nil
}

func (r *Reconciler) applyUpdate(ctx context.Context, existing *model.Schedule, calendarTasks []model.Task) (*SyncResult, error) {
	merged, stats := MergeCalendar(existing.Tasks, calendarTasks, existing.Day())
	if sameTasks(existing.Tasks, merged) {
		return &SyncResult{Schedule: existing, Stats: stats}, nil
	}

	doc := *existing
	doc.Tasks = merged
	doc.Metadata.LastModified = r.now().UTC()
	doc.Metadata.Source = model.SourceCalendarSync
	doc.RecountMetadata()
	if err := r.schedules.Replace(ctx, &doc); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	log.Printf("[info] calendar merged user=%s date=%s updated=%d inserted=%d suppressed=%d",
		doc.UserID, doc.Day(), stats.Updated, stats.Inserted, stats.Suppressed)
	return &SyncResult{Schedule: &doc, Stats: stats}, nil
}

// SyncFromCalendar fetches the user's calendar for date and syncs it. Authorization failures are
// returned; timeouts and transient failures leave the stored schedule untouched and mark the
// result Degraded.
func (r *Reconciler) SyncFromCalendar(ctx context.Context, userID, date string) (*SyncResult, error) {
	day, err := model.ParseDay(date)
	if err != nil {
		return nil, err
	}
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(user.CalendarURL) == "" {
		return nil, fmt.Errorf("%w: no calendar linked for user %s", model.ErrAuth, userID)
	}
	loc, err := r.location(user, "")
	if err != nil {
		return nil, err
	}

	events, err := r.fetchCalendar(ctx, user.CalendarURL, day, loc)
	if err != nil {
		if errors.Is(err, model.ErrAuth) {
			return nil, err
		}
		log.Printf("[warn] calendar unavailable user=%s date=%s: %v", userID, day.Format(model.DayLayout), err)
		existing, ferr := r.schedules.FindOne(ctx, userID, day.Format(model.DateKeyLayout))
		switch {
		case ferr == nil:
			return &SyncResult{Schedule: existing, Degraded: true}, nil
		case errors.Is(ferr, model.ErrScheduleNotFound):
			return &SyncResult{Degraded: true}, nil
		default:
			return nil, ferr
		}
	}
	return r.Sync(ctx, userID, date, calendar.Normalize(events, day, loc))
}

// Autogenerate builds the schedule for date from the user's most recent earlier schedule:
// incomplete tasks carry over, recurring tasks due that day are added, the calendar block is
// merged in and the result deduplicated. Users without history get a generated schedule.
// An existing document for date is returned as is. Calendar failures never fail the call.
func (r *Reconciler) Autogenerate(ctx context.Context, userID, date, tzOverride string) (*AutogenResult, error) {
	day, err := model.ParseDay(date)
	if err != nil {
		return nil, err
	}
	key := day.Format(model.DateKeyLayout)
	dayStr := day.Format(model.DayLayout)

	existing, err := r.schedules.FindOne(ctx, userID, key)
	switch {
	case err == nil:
		return &AutogenResult{Schedule: existing, Existed: true}, nil
	case !errors.Is(err, model.ErrScheduleNotFound):
		return nil, err
	}

	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := r.location(user, tzOverride)
	if err != nil {
		return nil, err
	}

	prior, err := r.schedules.FindLatestWithTasksBefore(ctx, userID, key)
	if err != nil && !errors.Is(err, model.ErrScheduleNotFound) {
		return nil, err
	}

	res := &AutogenResult{SourceFound: prior != nil}
	var (
		base   []model.Task
		inputs datatypes.JSONMap
	)
	if prior == nil {
		base, err = r.generator.Generate(ctx, user, day, nil)
		if err != nil {
			return nil, fmt.Errorf("generate schedule: %w", err)
		}
	} else {
		inputs = prior.Inputs
		base = carryOver(prior.Tasks)
		templates, err := r.recurringTemplates(ctx, userID, key)
		if err != nil {
			return nil, err
		}
		for _, inst := range r.recurring.Materialize(templates, day) {
			base = placeInSection(base, inst)
		}
	}

	var block []model.Task
	if strings.TrimSpace(user.CalendarURL) != "" {
		events, err := r.fetchCalendar(ctx, user.CalendarURL, day, loc)
		if err != nil {
			log.Printf("[warn] autogenerate without calendar user=%s date=%s: %v", userID, dayStr, err)
			res.CalendarDegraded = true
			res.CalendarAuthRequired = errors.Is(err, model.ErrAuth)
		} else {
			block = calendar.Normalize(events, day, loc)
		}
	}

	merged, _ := MergeCalendar(base, block, dayStr)
	tasks := dedupeInLayout(merged, dayStr)
	for i := range tasks {
		if !tasks[i].Sectional() {
			tasks[i].StartDate = dayStr
		}
	}

	now := r.now().UTC()
	doc := &model.Schedule{
		UserID: userID,
		Date:   key,
		Tasks:  tasks,
		Inputs: inputs,
		Metadata: model.Metadata{
			CreatedAt:    now,
			LastModified: now,
			Source:       model.SourceAIService,
		},
	}
	doc.RecountMetadata()
	if err := r.schedules.Replace(ctx, doc); err != nil {
		return nil, fmt.Errorf("store generated schedule: %w", err)
	}
	log.Printf("[info] schedule autogenerated user=%s date=%s tasks=%d calendar=%d history=%t",
		userID, dayStr, doc.Metadata.TotalTasks, doc.Metadata.CalendarEvents, res.SourceFound)

	res.Schedule = doc
	res.Created = true
	return res, nil
}

// SetCompleted toggles a task's completion flag.
func (r *Reconciler) SetCompleted(ctx context.Context, userID, date, taskID string, done bool) (*model.Schedule, error) {
	key, err := model.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	doc, err := r.schedules.FindOne(ctx, userID, key)
	if err != nil {
		return nil, err
	}

	tasks := model.CloneTasks(doc.Tasks)
	idx := -1
	for i, t := range tasks {
		if t.ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, &model.ValidationError{Field: "id", Reason: fmt.Sprintf("no task %q on %s", taskID, doc.Day())}
	}
	if tasks[idx].Sectional() {
		return nil, &model.ValidationError{Field: "id", Reason: "sections cannot be completed"}
	}
	tasks[idx].Completed = done

	updated := *doc
	updated.Tasks = tasks
	updated.Metadata.LastModified = r.now().UTC()
	updated.Metadata.Source = model.SourceManual
	updated.RecountMetadata()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	err = r.schedules.UpdateFields(ctx, userID, key, map[string]any{
		"schedule":        datatypes.JSONSlice[model.Task](tasks),
		"last_modified":   updated.Metadata.LastModified,
		"source":          string(updated.Metadata.Source),
		"total_tasks":     updated.Metadata.TotalTasks,
		"calendar_events": updated.Metadata.CalendarEvents,
		"recurring_tasks": updated.Metadata.RecurringTasks,
	})
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return &updated, nil
}

// fetchCalendar runs the provider call under the configured timeout and abandons it on expiry.
func (r *Reconciler) fetchCalendar(ctx context.Context, token string, day time.Time, loc *time.Location) ([]calendar.RawEvent, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: no calendar provider configured", model.ErrFetch)
	}
	ctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()

	type result struct {
		events []calendar.RawEvent
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		events, err := r.fetcher.Fetch(ctx, token, day, loc)
		ch <- result{events: events, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && !errors.Is(res.err, model.ErrAuth) && !errors.Is(res.err, model.ErrFetch) {
			return nil, fmt.Errorf("%w: %v", model.ErrFetch, res.err)
		}
		return res.events, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", model.ErrFetch, ctx.Err())
	}
}

func (r *Reconciler) location(user *model.User, override string) (*time.Location, error) {
	name := strings.TrimSpace(override)
	if name == "" && user != nil {
		name = strings.TrimSpace(user.Timezone)
	}
	if name == "" {
		return r.defaultLoc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &model.ValidationError{Field: "timezone", Reason: fmt.Sprintf("unknown zone %q", name)}
	}
	return loc, nil
}

// recurringTemplates collects the latest instance of every recurring task from recent history.
func (r *Reconciler) recurringTemplates(ctx context.Context, userID, key string) (*model.Schedule, error) {
	history, err := r.schedules.FindRecentBefore(ctx, userID, key, recurringLookback)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	templates := &model.Schedule{UserID: userID, Date: key}
	seen := make(map[string]bool)
	for _, doc := range history {
		for _, t := range doc.Tasks {
			if t.IsRecurring == nil || t.Sectional() {
				continue
			}
			k := model.NormalizeText(t.Text)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			if t.StartDate == "" {
				t.StartDate = doc.Day()
			}
			templates.Tasks = append(templates.Tasks, t.Clone())
		}
	}
	return templates, nil
}

// carryOver keeps the section layout and every incomplete manual task. Calendar tasks belong to
// their own day and are not carried.
func carryOver(prior []model.Task) []model.Task {
	out := make([]model.Task, 0, len(prior))
	for _, t := range prior {
		switch {
		case t.Sectional():
			out = append(out, t.Clone())
		case t.Completed, t.FromGCal:
		default:
			out = append(out, t.Clone())
		}
	}
	return out
}

// placeInSection appends t to the end of its section, or to the end of the list.
func placeInSection(tasks []model.Task, t model.Task) []model.Task {
	if t.Section == "" {
		return append(tasks, t)
	}
	at := -1
	for i, cur := range tasks {
		switch {
		case cur.Sectional() && at >= 0:
			return insertAt(tasks, i, []model.Task{t})
		case cur.Sectional() && cur.Text == t.Section:
			at = i
		}
	}
	return append(tasks, t)
}

func sameTasks(a, b []model.Task) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual([]model.Task(a), b)
}
