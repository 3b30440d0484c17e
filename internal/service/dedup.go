package service

import "dayplanner/internal/model"

// dedupeTier ranks duplicates; lower wins.
func dedupeTier(t model.Task, day string) int {
	onDay := t.StartDate == day
	switch {
	case t.FromGCal && onDay:
		return 0
	case t.FromGCal:
		return 1
	case onDay:
		return 2
	default:
		return 3
	}
}

// Dedupe keeps one task per normalized text. day is YYYY-MM-DD.
//
// Sections and entries with blank text pass through untouched. Within a group of duplicates the
// winner is, in order: calendar task on day, any calendar task, manual task on day, any manual task;
// ties go to the earliest entry. The rest of the group is dropped without merging fields.
// The result is the pass-through entries in input order followed by one winner per group, groups
// ordered by their first entry.
func Dedupe(tasks []model.Task, day string) []model.Task {
	if len(tasks) == 0 {
		return tasks
	}

	keys, winner := dedupeWinners(tasks, day)
	out := make([]model.Task, 0, len(tasks))
	for i, t := range tasks {
		if keys[i] == "" {
			out = append(out, t)
		}
	}
	placed := make(map[string]bool, len(winner))
	for _, key := range keys {
		if key == "" || placed[key] {
			continue
		}
		placed[key] = true
		out = append(out, tasks[winner[key]])
	}
	return out
}

// dedupeInLayout picks the same winners as Dedupe but leaves sections where they are: each
// winner takes the slot of its group's first entry.
func dedupeInLayout(tasks []model.Task, day string) []model.Task {
	keys, winner := dedupeWinners(tasks, day)
	out := make([]model.Task, 0, len(tasks))
	placed := make(map[string]bool, len(winner))
	for i, t := range tasks {
		key := keys[i]
		if key == "" {
			out = append(out, t)
			continue
		}
		if placed[key] {
			continue
		}
		placed[key] = true
		out = append(out, tasks[winner[key]])
	}
	return out
}

// dedupeWinners returns the group key of every entry ("" for pass-through) and the index of
// each group's winner.
func dedupeWinners(tasks []model.Task, day string) ([]string, map[string]int) {
	keys := make([]string, len(tasks))
	winner := make(map[string]int)
	for i, t := range tasks {
		if t.Sectional() {
			continue
		}
		key := model.NormalizeText(t.Text)
		if key == "" {
			continue
		}
		keys[i] = key
		best, seen := winner[key]
		if !seen || dedupeTier(t, day) < dedupeTier(tasks[best], day) {
			winner[key] = i
		}
	}
	return keys, winner
}
