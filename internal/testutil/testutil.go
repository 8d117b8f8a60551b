// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory database
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))
	return db
}

// OpenRedis returns a client backed by an in-process Redis
func OpenRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// ObserveLogs routes zaplogger into an observer for the duration of the test
func ObserveLogs(t testing.TB) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(zaplogger.ReplaceLogger(zap.New(core)))
	return logs
}

// SeedUser stores a staff user
func SeedUser(t testing.TB, db *gorm.DB, id string, challenges bool) *models.UserModel {
	t.Helper()
	user := &models.UserModel{
		ID:                id,
		Username:          "user-" + id,
		Role:              models.RoleStaff,
		Department:        "support",
		Position:          "agent",
		Status:            "offline",
		ChallengesEnabled: challenges,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// SeedSession stores an online session checked in at checkIn
func SeedSession(t testing.TB, db *gorm.DB, id, userID string, checkIn clock.Timestamp) *attendance.Session {
	t.Helper()
	s := attendance.NewSession(id, attendance.Identity{UserID: userID, Username: "user-" + userID}, checkIn)
	require.NoError(t, repository.NewSessionRepository(db).Create(context.Background(), s))
	return s
}
