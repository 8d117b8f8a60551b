// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// Config represents the application configuration.
// Fields without a `default` tag are required.
type Config struct {
	APIName          string `env:"ATT_API_APP_NAME" default:"Attendance API"`
	APIVersion       string `env:"ATT_API_APP_VERSION" default:"v1"`
	ServerPort       string `env:"ATT_API_SERVER_PORT" default:"3007"`
	ServerLogLevel   string `env:"ATT_API_SERVER_LOG_LEVEL" default:"info"`
	PostgresDsn      string `env:"ATT_API_PG_DSN"`
	PostgresSchema   string `env:"ATT_API_PG_SCHEMA" default:"attendance"`
	PostgresLogLevel string `env:"ATT_API_PG_LOG_LEVEL" default:"error"`
	RedisHost        string `env:"ATT_API_REDIS_HOST" default:"localhost"`
	RedisPort        string `env:"ATT_API_REDIS_PORT" default:"6379"`
	RedisPassword    string `env:"ATT_API_REDIS_PASSWORD" default:""`
	RedisDB          string `env:"ATT_API_REDIS_DB" default:"0"`
	JWTSecret        string `env:"ATT_API_JWT_SECRET"`
	SweeperKeyHash   string `env:"ATT_API_SWEEPER_KEY_HASH" default:""`
	Timezone         string `env:"ATT_TIMEZONE" default:"Asia/Kolkata"`

	ActivityThrottle        string `env:"ATT_ACTIVITY_THROTTLE" default:"30s"`
	HeartbeatInterval       string `env:"ATT_HEARTBEAT_INTERVAL" default:"15s"`
	SweepInterval           string `env:"ATT_SWEEP_INTERVAL" default:"30s"`
	StaleSessionThreshold   string `env:"ATT_STALE_SESSION_THRESHOLD" default:"2m"`
	PresenceThreshold       string `env:"ATT_PRESENCE_THRESHOLD" default:"30s"`
	ChallengeCycle          string `env:"ATT_CHALLENGE_CYCLE" default:"25m"`
	CaptchaLead             string `env:"ATT_CAPTCHA_LEAD" default:"5s"`
	FaceVerificationLead    string `env:"ATT_FACE_VERIFICATION_LEAD" default:"5m"`
	NoticeAutoDismiss       string `env:"ATT_NOTICE_AUTO_DISMISS" default:"10s"`
	NoticeRemoveAfterAck    string `env:"ATT_NOTICE_REMOVE_AFTER_ACK" default:"1s"`
	RedisSessionEventStream string `env:"ATT_REDIS_SESSION_EVENT_CHANNEL" default:"CH:ATTENDANCE:SESSIONS"`
}

var (
	SingleLine string = "--------------------------------------------------"
)

var (
	instance *Config
	once     sync.Once
	err      error
)

// Get returns the application configuration
func Get() (*Config, error) {
	once.Do(func() {
		zaplogger.Info(SingleLine)
		zaplogger.Info("Loading Configuration")
		// a missing .env file is fine, the environment may already be populated
		_ = godotenv.Load()
		instance, err = Load()
	})
	return instance, err
}

// Load reads a fresh configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if _, err := cfg.Timings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() error {
	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(c).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		envTag := field.Tag.Get("env")
		if envTag == "" {
			return fmt.Errorf("missing env tag for field %s", field.Name)
		}

		value, ok := os.LookupEnv(envTag)
		if !ok || value == "" {
			def, hasDefault := field.Tag.Lookup("default")
			if !hasDefault {
				return fmt.Errorf("env variable %s is required but not set", envTag)
			}
			value = def
		}

		v.Field(i).SetString(value)
	}

	return nil
}

// Timings holds every parsed interval and threshold
type Timings struct {
	ActivityThrottle      time.Duration
	HeartbeatInterval     time.Duration
	SweepInterval         time.Duration
	StaleSessionThreshold time.Duration
	PresenceThreshold     time.Duration
	ChallengeCycle        time.Duration
	CaptchaLead           time.Duration
	FaceVerificationLead  time.Duration
	NoticeAutoDismiss     time.Duration
	NoticeRemoveAfterAck  time.Duration
}

// Timings parses the duration fields
func (c *Config) Timings() (Timings, error) {
	var t Timings
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"ATT_ACTIVITY_THROTTLE", c.ActivityThrottle, &t.ActivityThrottle},
		{"ATT_HEARTBEAT_INTERVAL", c.HeartbeatInterval, &t.HeartbeatInterval},
		{"ATT_SWEEP_INTERVAL", c.SweepInterval, &t.SweepInterval},
		{"ATT_STALE_SESSION_THRESHOLD", c.StaleSessionThreshold, &t.StaleSessionThreshold},
		{"ATT_PRESENCE_THRESHOLD", c.PresenceThreshold, &t.PresenceThreshold},
		{"ATT_CHALLENGE_CYCLE", c.ChallengeCycle, &t.ChallengeCycle},
		{"ATT_CAPTCHA_LEAD", c.CaptchaLead, &t.CaptchaLead},
		{"ATT_FACE_VERIFICATION_LEAD", c.FaceVerificationLead, &t.FaceVerificationLead},
		{"ATT_NOTICE_AUTO_DISMISS", c.NoticeAutoDismiss, &t.NoticeAutoDismiss},
		{"ATT_NOTICE_REMOVE_AFTER_ACK", c.NoticeRemoveAfterAck, &t.NoticeRemoveAfterAck},
	}
	for _, f := range fields {
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return Timings{}, fmt.Errorf("env variable %s: %v", f.name, err)
		}
		if d <= 0 {
			return Timings{}, fmt.Errorf("env variable %s must be positive", f.name)
		}
		*f.dst = d
	}
	if t.CaptchaLead >= t.ChallengeCycle || t.FaceVerificationLead >= t.ChallengeCycle {
		return Timings{}, fmt.Errorf("challenge lead times must be shorter than ATT_CHALLENGE_CYCLE")
	}
	return t, nil
}

// DefaultTimings returns the production intervals
func DefaultTimings() Timings {
	return Timings{
		ActivityThrottle:      30 * time.Second,
		HeartbeatInterval:     15 * time.Second,
		SweepInterval:         30 * time.Second,
		StaleSessionThreshold: 2 * time.Minute,
		PresenceThreshold:     30 * time.Second,
		ChallengeCycle:        25 * time.Minute,
		CaptchaLead:           5 * time.Second,
		FaceVerificationLead:  5 * time.Minute,
		NoticeAutoDismiss:     10 * time.Second,
		NoticeRemoveAfterAck:  time.Second,
	}
}

// String returns the configuration as a string
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n--------------------------------------\n")
	sb.WriteString("Configuration:\n")
	sb.WriteString("--------------------------------------\n")

	t := reflect.TypeOf(*c)
	v := reflect.ValueOf(*c)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i).String()

		// Mask sensitive fields
		value = maskSensitiveField(field.Name, value)
		sb.WriteString(fmt.Sprintf("  %s:  %s\n", field.Name, value))
	}

	sb.WriteString("--------------------------------------\n")

	return sb.String()
}

func maskSensitiveField(fieldName, value string) string {
	sensitiveFields := []string{"token", "dsn", "secret", "password", "hash"}

	fieldNameLower := strings.ToLower(fieldName)
	for _, sensitive := range sensitiveFields {
		if strings.Contains(fieldNameLower, sensitive) {
			return maskValue(value)
		}
	}

	return value
}

func maskValue(value string) string {
	if len(value) <= 3 {
		return strings.Repeat("*", 7)
	}
	return value[:3] + strings.Repeat("*", 7)
}
