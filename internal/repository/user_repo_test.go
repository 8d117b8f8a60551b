package repository_test

import (
	"context"
	"testing"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_UpsertKeepsPresence(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.UserModel{ID: "u1", Username: "asha", Role: models.RoleStaff, Status: "offline"}))
	require.NoError(t, repo.UpdatePresence(ctx, "u1", "online", clock.Timestamp(5_000).Ptr()))
	require.NoError(t, repo.Upsert(ctx, &models.UserModel{ID: "u1", Username: "asha.k", Role: models.RoleAdmin, Status: "offline"}))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "asha.k", got.Username)
	require.Equal(t, models.RoleAdmin, got.Role)
	require.Equal(t, "online", got.Status)
	require.Equal(t, int64(5_000), *got.LastActivityAt)
}

func TestUserRepository_StalePresence(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := repository.NewUserRepository(db)
	ctx := context.Background()

	testutil.SeedUser(t, db, "fresh", false)
	testutil.SeedUser(t, db, "stale", false)
	testutil.SeedUser(t, db, "gone", false)
	require.NoError(t, repo.UpdatePresence(ctx, "fresh", "online", clock.Timestamp(90_000).Ptr()))
	require.NoError(t, repo.UpdatePresence(ctx, "stale", "online", clock.Timestamp(10_000).Ptr()))

	stale, err := repo.ListStalePresence(ctx, 60_000)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "stale", stale[0].ID)

	changed, err := repo.SetOfflineIfStale(ctx, "stale", 60_000)
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = repo.SetOfflineIfStale(ctx, "fresh", 60_000)
	require.NoError(t, err)
	require.False(t, changed)

	_, err = repo.Get(ctx, "nobody")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
