package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplanner/internal/model"
)

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, "Ann", "https://calendar.example.com/ann.ics", "Europe/Berlin")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, "Europe/Berlin", got.Timezone)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	require.NoError(t, repo.SetCalendar(ctx, created.ID, ""))
	require.NoError(t, repo.SetTimezone(ctx, created.ID, "UTC"))
	got, err = repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CalendarURL)
	assert.Equal(t, "UTC", got.Timezone)

	assert.ErrorIs(t, repo.SetTimezone(ctx, "missing", "UTC"), model.ErrUserNotFound)
}

func TestUserRepository_Telegram(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.FindByTelegramID(ctx, 42)
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	first, err := repo.UpsertFromTelegram(ctx, 42, "Ann")
	require.NoError(t, err)
	again, err := repo.UpsertFromTelegram(ctx, 42, "Ann B")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	found, err := repo.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ann B", found.Name)

	_, err = repo.Create(ctx, "Cli user", "", "")
	require.NoError(t, err)
	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
