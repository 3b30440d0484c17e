package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dayplanner/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "data", "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func sampleSchedule(userID, day string) *model.Schedule {
	key := day + "T00:00:00.000Z"
	now := time.Date(2025, 3, 9, 21, 0, 0, 0, time.UTC)
	s := &model.Schedule{
		UserID: userID,
		Date:   key,
		Tasks: []model.Task{
			model.NewSection("s1", "Morning"),
			{ID: "t1", Text: "Write report", Type: model.TypeTask, StartDate: day, Categories: []string{"work"}},
			{ID: "e1", Text: "Standup", Type: model.TypeTask, StartDate: day, StartTime: "09:00", EndTime: "09:15", GCalEventID: "e1", FromGCal: true},
			{ID: "r1", Text: "Stretch", Type: model.TypeTask, StartDate: day, IsRecurring: &model.Recurrence{Frequency: "daily"}},
		},
		Inputs:   datatypes.JSONMap{"mood": "ok"},
		Metadata: model.Metadata{CreatedAt: now, LastModified: now, Source: model.SourceAIService},
	}
	s.RecountMetadata()
	return s
}

func TestScheduleRepository_ReplaceAndFind(t *testing.T) {
	repo := NewScheduleRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.FindOne(ctx, "u1", "2025-03-10T00:00:00.000Z")
	assert.ErrorIs(t, err, model.ErrScheduleNotFound)

	want := sampleSchedule("u1", "2025-03-10")
	require.NoError(t, repo.Replace(ctx, want))

	got, err := repo.FindOne(ctx, "u1", "2025-03-10T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, []model.Task(want.Tasks), []model.Task(got.Tasks))
	assert.Equal(t, "ok", got.Inputs["mood"])
	assert.Equal(t, model.SourceAIService, got.Metadata.Source)
	assert.Equal(t, 3, got.Metadata.TotalTasks)
	assert.Equal(t, 1, got.Metadata.CalendarEvents)
	assert.Equal(t, 1, got.Metadata.RecurringTasks)

	// A second replace overwrites the document in place.
	want.Tasks = want.Tasks[:2]
	want.Metadata.Source = model.SourceCalendarSync
	want.RecountMetadata()
	require.NoError(t, repo.Replace(ctx, want))

	got, err = repo.FindOne(ctx, "u1", "2025-03-10T00:00:00.000Z")
	require.NoError(t, err)
	assert.Len(t, got.Tasks, 2)
	assert.Equal(t, model.SourceCalendarSync, got.Metadata.Source)
	assert.Equal(t, 1, got.Metadata.TotalTasks)
}

func TestScheduleRepository_RejectsInvalidDocument(t *testing.T) {
	repo := NewScheduleRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, sampleSchedule("u1", "2025-03-10")))

	bad := sampleSchedule("u1", "2025-03-10")
	bad.Tasks[2].ID = "t1"
	err := repo.Replace(ctx, bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := repo.FindOne(ctx, "u1", "2025-03-10T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.Tasks[2].ID)
}

func TestScheduleRepository_UpdateFields(t *testing.T) {
	repo := NewScheduleRepository(newTestDB(t))
	ctx := context.Background()
	doc := sampleSchedule("u1", "2025-03-10")
	require.NoError(t, repo.Replace(ctx, doc))

	tasks := model.CloneTasks(doc.Tasks)
	tasks[1].Completed = true
	err := repo.UpdateFields(ctx, "u1", doc.Date, map[string]any{
		"schedule": datatypes.JSONSlice[model.Task](tasks),
		"source":   string(model.SourceManual),
	})
	require.NoError(t, err)

	got, err := repo.FindOne(ctx, "u1", doc.Date)
	require.NoError(t, err)
	assert.True(t, got.Tasks[1].Completed)
	assert.Equal(t, model.SourceManual, got.Metadata.Source)

	err = repo.UpdateFields(ctx, "u1", "2025-01-01T00:00:00.000Z", map[string]any{"source": "manual"})
	assert.ErrorIs(t, err, model.ErrScheduleNotFound)
}

func TestScheduleRepository_History(t *testing.T) {
	repo := NewScheduleRepository(newTestDB(t))
	ctx := context.Background()

	for _, day := range []string{"2025-03-05", "2025-03-07", "2025-03-08"} {
		require.NoError(t, repo.Replace(ctx, sampleSchedule("u1", day)))
	}
	empty := sampleSchedule("u1", "2025-03-09")
	empty.Tasks = []model.Task{model.NewSection("s1", "Morning")}
	empty.RecountMetadata()
	require.NoError(t, repo.Replace(ctx, empty))
	require.NoError(t, repo.Replace(ctx, sampleSchedule("u2", "2025-03-09")))
	require.NoError(t, repo.Replace(ctx, sampleSchedule("u1", "2025-03-10")))

	prior, err := repo.FindLatestWithTasksBefore(ctx, "u1", "2025-03-10T00:00:00.000Z")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-08T00:00:00.000Z", prior.Date)

	_, err = repo.FindLatestWithTasksBefore(ctx, "u1", "2025-03-05T00:00:00.000Z")
	assert.ErrorIs(t, err, model.ErrScheduleNotFound)

	recent, err := repo.FindRecentBefore(ctx, "u1", "2025-03-10T00:00:00.000Z", 3)
	require.NoError(t, err)
	var dates []string
	for _, s := range recent {
		dates = append(dates, s.Date)
	}
	assert.Equal(t, []string{"2025-03-09T00:00:00.000Z", "2025-03-08T00:00:00.000Z", "2025-03-07T00:00:00.000Z"}, dates)
}
