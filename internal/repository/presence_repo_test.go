package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestPresenceRepository_ExpiresAndPrunes(t *testing.T) {
	client, mr := testutil.OpenRedis(t)
	repo := repository.NewPresenceRepository(client, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, repository.Presence{UserID: "u1", SessionID: "s1", Status: "online", LastSeen: 1}))
	require.NoError(t, repo.Set(ctx, repository.Presence{UserID: "u2", Status: "online", LastSeen: 2}))

	online, err := repo.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 2)

	mr.FastForward(31 * time.Second)
	require.NoError(t, repo.Set(ctx, repository.Presence{UserID: "u2", Status: "online", LastSeen: 3}))

	online, err = repo.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	require.Equal(t, "u2", online[0].UserID)

	members, err := mr.Members("attendance:online_users")
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, members)

	_, err = repo.Get(ctx, "u1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPresenceRepository_Remove(t *testing.T) {
	client, _ := testutil.OpenRedis(t)
	repo := repository.NewPresenceRepository(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, repository.Presence{UserID: "u1", Status: "online"}))
	require.NoError(t, repo.Remove(ctx, "u1"))

	online, err := repo.ListOnline(ctx)
	require.NoError(t, err)
	require.Empty(t, online)
}
