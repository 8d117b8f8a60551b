// Package logger writes incident records to the error_reports table.
// Every write is best-effort: a failure is reported through zaplogger and
// dropped, never returned to the caller.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrorReportsTableName = "error_reports"

// LogLevel represents the severity of an incident
type LogLevel string

const (
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// ErrorReport represents an incident entry in the database
type ErrorReport struct {
	ID        uint32    `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Package   string    `gorm:"index"`
	Level     LogLevel  `gorm:"index"`
	UserID    string    `gorm:"index"`
	SessionID string    `gorm:"index"`
	Message   string
	Fields    datatypes.JSON
}

// TableName overrides the table name used by ErrorReport
func (ErrorReport) TableName() string {
	return ErrorReportsTableName
}

// Subject identifies who an incident is about
type Subject struct {
	UserID    string
	SessionID string
}

// Logger writes incidents for one package
type Logger struct {
	db          *gorm.DB
	packageName string
}

// New creates a new Logger instance. The table is created by the migrations.
func New(db *gorm.DB, packageName string) *Logger {
	return &Logger{db: db, packageName: packageName}
}

// log inserts an incident
func (l *Logger) log(ctx context.Context, level LogLevel, subject Subject, message string, fields map[string]interface{}) error {
	var fieldsJSON datatypes.JSON
	if len(fields) > 0 {
		jsonBytes, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %v", err)
		}
		fieldsJSON = datatypes.JSON(jsonBytes)
	}

	entry := ErrorReport{
		Timestamp: time.Now(),
		Package:   l.packageName,
		Level:     level,
		UserID:    subject.UserID,
		SessionID: subject.SessionID,
		Message:   message,
		Fields:    fieldsJSON,
	}

	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to insert error report: %v", err)
	}
	return nil
}

// Warn records a warning incident
func (l *Logger) Warn(ctx context.Context, subject Subject, message string, fields map[string]interface{}) bool {
	return l.write(ctx, WARN, subject, message, fields)
}

// Error records an error incident
func (l *Logger) Error(ctx context.Context, subject Subject, message string, fields map[string]interface{}) bool {
	return l.write(ctx, ERROR, subject, message, fields)
}

func (l *Logger) write(ctx context.Context, level LogLevel, subject Subject, message string, fields map[string]interface{}) bool {
	if err := l.log(ctx, level, subject, message, fields); err != nil {
		zaplogger.Error("Failed to write error report", zaplogger.Fields{
			"package":    l.packageName,
			"level":      string(level),
			"session_id": subject.SessionID,
			"error":      err.Error(),
		})
		return false
	}
	return true
}
