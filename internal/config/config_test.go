package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("ATT_API_PG_DSN", "host=localhost user=att password=secret dbname=att")
	t.Setenv("ATT_API_JWT_SECRET", "supersecret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "3007", cfg.ServerPort)
	require.Equal(t, "Asia/Kolkata", cfg.Timezone)

	timings, err := cfg.Timings()
	require.NoError(t, err)
	require.Equal(t, DefaultTimings(), timings)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("ATT_API_PG_DSN", "")
	t.Setenv("ATT_API_JWT_SECRET", "x")

	_, err := Load()
	require.ErrorContains(t, err, "ATT_API_PG_DSN")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ATT_STALE_SESSION_THRESHOLD", "5m")

	cfg, err := Load()
	require.NoError(t, err)
	timings, err := cfg.Timings()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, timings.StaleSessionThreshold)
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("ATT_HEARTBEAT_INTERVAL", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "ATT_HEARTBEAT_INTERVAL")
}

func TestLoad_LeadLongerThanCycle(t *testing.T) {
	setRequired(t)
	t.Setenv("ATT_CHALLENGE_CYCLE", "1m")

	_, err := Load()
	require.Error(t, err)
}

func TestString_MasksSecrets(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	out := cfg.String()
	require.NotContains(t, out, "supersecret")
	require.NotContains(t, out, "password=secret")
	require.True(t, strings.Contains(out, "sup*******"))
}
