package service

import (
	"sort"

	"github.com/google/uuid"

	"dayplanner/internal/model"
)

// MergeStats summarizes one calendar merge.
type MergeStats struct {
	Updated    int
	Inserted   int
	Suppressed int
	Ignored    int
}

// MergeCalendar folds a freshly normalized calendar batch into an existing task sequence for day.
//
// Existing calendar tasks are matched by event id and updated where they stand. Events seen for
// the first time are inserted together at the anchor point. Manual copies of incoming events are
// dropped. Calendar tasks missing from the batch are kept because the batch may be partial.
// Tasks the user detached from the calendar keep their event id and block re-creation of that
// event, but are dropped like any manual task when another event carries the same text.
func MergeCalendar(existing, incoming []model.Task, day string) ([]model.Task, MergeStats) {
	var stats MergeStats

	detached := make(map[string]bool)
	for _, t := range existing {
		if t.GCalEventID != "" && !t.FromGCal {
			detached[t.GCalEventID] = true
		}
	}

	batch := make([]model.Task, 0, len(incoming))
	seen := make(map[string]bool, len(incoming))
	for _, t := range incoming {
		key := t.GCalEventID
		if key == "" || detached[key] || seen[key] {
			stats.Ignored++
			continue
		}
		seen[key] = true
		batch = append(batch, t)
	}

	base := SuppressCollisions(existing, batch)
	stats.Suppressed = len(existing) - len(base)

	var owned []model.Task
	for _, t := range base {
		if t.FromGCal {
			owned = append(owned, t)
		}
	}
	for _, t := range owned {
		if seen[t.GCalEventID] {
			stats.Updated++
		}
	}

	upserted := UpsertByEventID(owned, batch, day)
	merged, inserted := RebuildInPlace(base, upserted, seen)
	stats.Inserted = inserted
	return merged, stats
}

// SuppressCollisions removes manual tasks that duplicate an incoming calendar event, either by
// carrying the event id as their own id or by having the same normalized text. Sections are never
// removed. Detached tasks (manual with an event id) only fall to the text rule.
func SuppressCollisions(existing, incoming []model.Task) []model.Task {
	ids := make(map[string]bool, len(incoming))
	texts := make(map[string]bool, len(incoming))
	for _, t := range incoming {
		if t.GCalEventID != "" {
			ids[t.GCalEventID] = true
		}
		if key := model.NormalizeText(t.Text); key != "" {
			texts[key] = true
		}
	}

	out := make([]model.Task, 0, len(existing))
	for _, t := range existing {
		if !t.FromGCal && !t.Sectional() {
			if texts[model.NormalizeText(t.Text)] {
				continue
			}
			if t.GCalEventID == "" && ids[t.ID] {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// UpsertByEventID applies incoming provider fields to the calendar tasks sharing their event id
// and appends events not seen before. Incoming tasks without an event id are skipped and appended
// tasks without an id get a fresh one. Every returned task is stamped as a calendar task on day.
func UpsertByEventID(owned, incoming []model.Task, day string) []model.Task {
	byKey := make(map[string]model.Task, len(incoming))
	for _, t := range incoming {
		if t.GCalEventID == "" {
			continue
		}
		if _, dup := byKey[t.GCalEventID]; !dup {
			byKey[t.GCalEventID] = t
		}
	}

	out := make([]model.Task, 0, len(owned)+len(byKey))
	done := make(map[string]bool, len(owned))
	for _, cur := range owned {
		cur = cur.Clone()
		if in, ok := byKey[cur.GCalEventID]; ok {
			cur.Text = in.Text
			cur.StartTime = in.StartTime
			cur.EndTime = in.EndTime
		}
		done[cur.GCalEventID] = true
		out = append(out, stampCalendar(cur, day))
	}
	for _, in := range incoming {
		if in.GCalEventID == "" || done[in.GCalEventID] {
			continue
		}
		done[in.GCalEventID] = true
		in = in.Clone()
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		out = append(out, stampCalendar(in, day))
	}
	return out
}

func stampCalendar(t model.Task, day string) model.Task {
	t.FromGCal = true
	t.Type = model.TypeTask
	t.IsSection = false
	t.StartDate = day
	return t
}

// RebuildInPlace swaps updated calendar tasks into their current slots and inserts the fetched
// events that are new to the sequence as one block at the anchor point. Nothing else moves.
// It returns the rebuilt sequence and the number of inserted tasks.
func RebuildInPlace(existing, upserted []model.Task, fetched map[string]bool) ([]model.Task, int) {
	byKey := make(map[string]model.Task, len(upserted))
	for _, t := range upserted {
		byKey[t.GCalEventID] = t
	}
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		if t.GCalEventID != "" {
			present[t.GCalEventID] = true
		}
	}

	out := make([]model.Task, 0, len(existing)+len(upserted))
	for _, t := range existing {
		if t.FromGCal {
			if u, ok := byKey[t.GCalEventID]; ok {
				t = u
			}
		}
		out = append(out, t)
	}

	var fresh []model.Task
	for _, t := range upserted {
		if present[t.GCalEventID] || !fetched[t.GCalEventID] {
			continue
		}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return out, 0
	}
	sort.SliceStable(fresh, func(i, j int) bool { return model.CalendarOrderLess(fresh[i], fresh[j]) })

	at, section := AnchorPoint(out)
	for i := range fresh {
		if section != "" && fresh[i].Section == "" {
			fresh[i].Section = section
		}
	}
	return insertAt(out, at, fresh), len(fresh)
}

// AnchorPoint is where new calendar tasks go: right after the first section, whose name they
// inherit, or at the top when there is no section.
func AnchorPoint(tasks []model.Task) (int, string) {
	for i, t := range tasks {
		if t.Sectional() {
			return i + 1, t.Text
		}
	}
	return 0, ""
}

func insertAt(tasks []model.Task, at int, block []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks)+len(block))
	out = append(out, tasks[:at]...)
	out = append(out, block...)
	return append(out, tasks[at:]...)
}
