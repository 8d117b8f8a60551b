package logger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every new connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestLogger_WritesIncident(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.AutoMigrate(&ErrorReport{}))

	l := New(db, "reconciler")
	ok := l.Warn(context.Background(), Subject{UserID: "u1", SessionID: "s1"}, "auto checkout", map[string]interface{}{"minutes": 3})
	require.True(t, ok)

	var got ErrorReport
	require.NoError(t, db.First(&got).Error)
	require.Equal(t, "reconciler", got.Package)
	require.Equal(t, WARN, got.Level)
	require.Equal(t, "s1", got.SessionID)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Fields, &fields))
	require.EqualValues(t, 3, fields["minutes"])
}

func TestLogger_FailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(zaplogger.ReplaceLogger(zap.New(core)))

	// no migration: the insert fails
	l := New(openDB(t), "reconciler")
	ok := l.Error(context.Background(), Subject{SessionID: "s1"}, "boom", nil)

	require.False(t, ok)
	require.Equal(t, 1, logs.FilterMessage("Failed to write error report").Len())
}
