// Package zaplogger contains the application wide structured logger
package zaplogger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

var (
	mu        sync.RWMutex
	log       *zap.Logger
	zapConfig zap.Config
)

// Fields are structured key/values attached to a log line
type Fields map[string]interface{}

// LogModel is one persisted log line. Session and user ids are lifted out of
// the fields so an operator can pull every warning for a session.
type LogModel struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Level     string    `gorm:"size:8"`
	Caller    string
	Message   string
	SessionID string `gorm:"index"`
	UserID    string `gorm:"index"`
	Fields    string // JSON object of the remaining fields
}

// TableName specifies the table name for LogModel
func (LogModel) TableName() string {
	return "_attendance_logs"
}

// DbWriter implements zapcore.WriteSyncer on top of GORM. It expects one
// JSON-encoded entry per Write.
type DbWriter struct {
	db *gorm.DB
}

func (w *DbWriter) Write(p []byte) (int, error) {
	entry, err := decodeEntry(p)
	if err != nil {
		return 0, err
	}
	if err := w.db.Create(entry).Error; err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *DbWriter) Sync() error {
	return nil
}

// decodeEntry splits a JSON log line into its columns
func decodeEntry(p []byte) (*LogModel, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(p, &raw); err != nil {
		return nil, err
	}

	str := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		delete(raw, key)
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
		return string(v)
	}

	entry := &LogModel{
		Level:     str("level"),
		Caller:    str("caller"),
		Message:   str("message"),
		SessionID: str("session_id"),
		UserID:    str("user_id"),
	}
	ts, err := time.Parse(timeLayout, str("timestamp"))
	if err != nil {
		return nil, fmt.Errorf("log timestamp: %w", err)
	}
	entry.Timestamp = ts

	fields, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	entry.Fields = string(fields)
	return entry, nil
}

const timeLayout = "2006-01-02T15:04:05.999-0700"

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format(timeLayout))
}

func init() {
	zapConfig = zap.Config{
		Encoding:         "console",
		Level:            zap.NewAtomicLevelAt(zap.DebugLevel),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "message",
			LevelKey:     "level",
			TimeKey:      "timestamp",
			CallerKey:    "caller",
			EncodeLevel:  zapcore.CapitalLevelEncoder,
			EncodeTime:   customTimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	l, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	log = l
}

// InitLogger initializes the logger with both console and database output
func InitLogger(db *gorm.DB) error {
	if err := db.AutoMigrate(&LogModel{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %v", err)
	}

	dbWriter := &DbWriter{db: db}

	consoleEncoder := zapcore.NewConsoleEncoder(zapConfig.EncoderConfig)
	dbEncoder := zapcore.NewJSONEncoder(zapConfig.EncoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zapConfig.Level),
		// the database only receives warnings and above, heartbeats are chatty
		zapcore.NewCore(dbEncoder, zapcore.AddSync(dbWriter), zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.WarnLevel && zapConfig.Level.Enabled(l)
		})),
	)

	mu.Lock()
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	mu.Unlock()
	return nil
}

// ReplaceLogger swaps the package logger and returns a func restoring the previous one.
// Tests use it with zaptest/observer to assert on logged-but-swallowed failures.
func ReplaceLogger(l *zap.Logger) func() {
	mu.Lock()
	prev := log
	log = l.WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()
	return func() {
		mu.Lock()
		log = prev
		mu.Unlock()
	}
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogLevel sets the logging level, unknown names fall back to info
func SetLogLevel(level string) {
	l, err := zapcore.ParseLevel(level)
	if err != nil || l > zapcore.ErrorLevel {
		l = zapcore.InfoLevel
	}
	zapConfig.Level.SetLevel(l)
}

// Info logs an info message
func Info(msg string, fields ...Fields) {
	current().Info(msg, getZapFields(fields)...)
}

// Debug logs a debug message
func Debug(msg string, fields ...Fields) {
	current().Debug(msg, getZapFields(fields)...)
}

// Warn logs a warning message
func Warn(msg string, fields ...Fields) {
	current().Warn(msg, getZapFields(fields)...)
}

// Error logs an error message
func Error(msg string, fields ...Fields) {
	current().Error(msg, getZapFields(fields)...)
}

// Fatal logs a fatal message and exits the program
func Fatal(msg string, fields ...Fields) {
	current().Fatal(msg, getZapFields(fields)...)
}

// getZapFields converts our Fields type to zap.Field slice
func getZapFields(fields []Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zapFields := make([]zap.Field, 0, len(fields[0]))
	for k, v := range fields[0] {
		if err, ok := v.(error); ok {
			zapFields = append(zapFields, zap.NamedError(k, err))
			continue
		}
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return zapFields
}

// Sync flushes any buffered log entries
func Sync() error {
	return current().Sync()
}
