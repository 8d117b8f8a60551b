package service

import (
	"strconv"
	"testing"
	"time"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/config"
	"github.com/stretchr/testify/require"
)

func newChallengeScheduler(clk clock.Clock, sink *recordingSink) *ChallengeScheduler {
	s := NewChallengeScheduler(clk, config.DefaultTimings(), sink, sink)
	n := 0
	s.newID = func() string {
		n++
		return "n" + strconv.Itoa(n)
	}
	return s
}

func TestChallengeScheduler_Cadence(t *testing.T) {
	clk := clock.NewFake(start)
	sink := &recordingSink{}
	s := newChallengeScheduler(clk, sink)

	s.Start()
	require.Equal(t, 2, clk.Pending())

	// face verification warns five minutes ahead
	clk.Advance(20 * time.Minute)
	require.Len(t, sink.raised, 1)
	face := sink.raised[0]
	require.Equal(t, ChallengeFace, face.Kind)
	require.False(t, face.Sound)
	require.Equal(t, start.Add(25*time.Minute), face.ArmsAt)
	require.Contains(t, face.Message, "5 minutes")

	// unacknowledged notices go away after ten seconds
	clk.Advance(10 * time.Second)
	require.Equal(t, []string{face.ID}, sink.dismissed)
	require.Empty(t, s.Notices())

	// CAPTCHA warns five seconds ahead, with a sound
	clk.Advance(4*time.Minute + 45*time.Second)
	require.Len(t, sink.raised, 2)
	captcha := sink.raised[1]
	require.Equal(t, ChallengeCaptcha, captcha.Kind)
	require.True(t, captcha.Sound)
	require.Equal(t, start.Add(25*time.Minute-5*time.Second), captcha.RaisedAt)
	require.Contains(t, captcha.Message, "5 seconds")

	// acknowledging resolves the notice and removes it shortly after
	require.NoError(t, s.Acknowledge(captcha.ID))
	require.True(t, s.Notices()[0].Resolved)
	require.NoError(t, s.Acknowledge(captcha.ID))
	clk.Advance(time.Second)
	require.Equal(t, []string{captcha.ID}, sink.removed)
	require.Equal(t, []string{face.ID}, sink.dismissed)
	require.Empty(t, sink.armed)

	clk.Advance(4 * time.Second)
	require.ElementsMatch(t, []ChallengeKind{ChallengeFace, ChallengeCaptcha}, sink.armed)

	// next cycle
	clk.Advance(25 * time.Minute)
	require.Len(t, sink.raised, 4)
	require.Len(t, sink.armed, 4)

	require.ErrorIs(t, s.Acknowledge("unknown"), ErrNoticeNotFound)

	s.Stop()
	s.Stop()
	require.Equal(t, 0, clk.Pending())
	clk.Advance(time.Hour)
	require.Len(t, sink.raised, 4)
}

func TestChallengeScheduler_PauseAndResume(t *testing.T) {
	clk := clock.NewFake(start)
	sink := &recordingSink{}
	s := newChallengeScheduler(clk, sink)

	s.Start()
	clk.Advance(20 * time.Minute)
	require.Len(t, sink.raised, 1)

	s.Pause()
	require.Equal(t, []string{sink.raised[0].ID}, sink.removed)
	require.Equal(t, 0, clk.Pending())
	clk.Advance(30 * time.Minute)
	require.Len(t, sink.raised, 1)
	require.Empty(t, sink.armed)

	// a resumed cycle starts from the resume time
	s.Resume()
	clk.Advance(20 * time.Minute)
	require.Len(t, sink.raised, 2)
	require.Equal(t, start.Add(70*time.Minute), sink.raised[1].RaisedAt)

	s.Stop()
	s.Resume()
	require.Equal(t, 0, clk.Pending())
}
