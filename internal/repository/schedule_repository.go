package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dayplanner/internal/model"
)

// ScheduleRepository stores one schedule document per (user, day).
type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindOne returns model.ErrScheduleNotFound when no document exists for the key.
func (r *ScheduleRepository) FindOne(ctx context.Context, userID, date string) (*model.Schedule, error) {
	var s model.Schedule
	err := r.db.WithContext(ctx).Where("user_id = ? AND date = ?", userID, date).Take(&s).Error
	switch {
	case err == nil:
		return &s, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, model.ErrScheduleNotFound
	default:
		return nil, fmt.Errorf("find schedule: %w: %w", model.ErrPersistence, err)
	}
}

// Replace validates s and writes the whole document, creating it if needed. A rejected
// document leaves the stored one untouched.
func (r *ScheduleRepository) Replace(ctx context.Context, s *model.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"schedule", "inputs", "last_modified", "source",
			"total_tasks", "calendar_events", "recurring_tasks",
		}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("replace schedule: %w: %w", model.ErrPersistence, err)
	}
	return nil
}

// UpdateFields sets columns on an existing document.
func (r *ScheduleRepository) UpdateFields(ctx context.Context, userID, date string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("user_id = ? AND date = ?", userID, date).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update schedule: %w: %w", model.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return model.ErrScheduleNotFound
	}
	return nil
}

// FindLatestWithTasksBefore returns the newest document before date that holds at least one task.
func (r *ScheduleRepository) FindLatestWithTasksBefore(ctx context.Context, userID, date string) (*model.Schedule, error) {
	var s model.Schedule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date < ? AND total_tasks > 0", userID, date).
		Order("date DESC").
		Take(&s).Error
	switch {
	case err == nil:
		return &s, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, model.ErrScheduleNotFound
	default:
		return nil, fmt.Errorf("find prior schedule: %w: %w", model.ErrPersistence, err)
	}
}

// FindRecentBefore lists up to limit documents before date, newest first.
func (r *ScheduleRepository) FindRecentBefore(ctx context.Context, userID, date string, limit int) ([]*model.Schedule, error) {
	var out []*model.Schedule
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date < ?", userID, date).
		Order("date DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w: %w", model.ErrPersistence, err)
	}
	return out, nil
}
