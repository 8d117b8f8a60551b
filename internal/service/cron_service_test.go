package service

import (
	"context"
	"testing"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/stretchr/testify/require"
)

func TestCronService_RegistersJobs(t *testing.T) {
	e := newEnv(t)
	cs := NewCronService(e.timings, e.reconciler(nil), e.presence)

	cs.registerJobs()

	require.Len(t, cs.c.Entries(), 2)
	require.Equal(t, "@every 30s", every(e.timings.SweepInterval))
}

func TestCronService_SweepJobClosesStaleSessions(t *testing.T) {
	e := newEnv(t)
	e.seedActive(t, "s1", 3*time.Minute)
	cs := NewCronService(e.timings, e.reconciler(nil), e.presence)

	cs.staleSessionSweepJob()

	got, err := e.sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, attendance.StatusOffline, got.Status)
}
