package attendance

import (
	"testing"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sec = clock.Timestamp(1000)

func newTestSession() *Session {
	return NewSession("s1", Identity{UserID: "u1", Username: "asha", Department: "ops", Position: "agent"}, 0)
}

func TestDurationScenario_CheckoutTimeIsNotBilled(t *testing.T) {
	s := newTestSession()

	require.NoError(t, s.GoBackSoon(ReasonMeeting, "", 600*sec))
	require.NoError(t, s.BackOnline(900*sec))
	s.Touch(1800 * sec)

	require.True(t, s.Close("Checked out", 2000*sec))

	assert.Equal(t, int64(300), s.TotalBackSoonTime)
	assert.Equal(t, int64(1500), s.TotalOnlineTime)
	assert.Equal(t, StatusOffline, s.Status)
	assert.Equal(t, 2000*sec, *s.CheckOutTime)
	assert.Equal(t, 1800*sec, *s.LastActivityTime)
	assert.Equal(t, "Checked out", s.CheckOutReason)
}

func TestClose_IsIdempotent(t *testing.T) {
	s := newTestSession()
	s.Touch(100 * sec)
	require.True(t, s.Close("first", 200*sec))
	snapshot := *s
	snapshot.BackSoonEvents = append([]BackSoonEvent(nil), s.BackSoonEvents...)

	require.False(t, s.Close("second", 900*sec))

	assert.Equal(t, snapshot.CheckOutReason, s.CheckOutReason)
	assert.Equal(t, *snapshot.CheckOutTime, *s.CheckOutTime)
	assert.Equal(t, snapshot.TotalOnlineTime, s.TotalOnlineTime)
	assert.Equal(t, snapshot.BackSoonEvents, s.BackSoonEvents)
}

func TestClose_ClosesOpenBackSoon(t *testing.T) {
	s := newTestSession()
	s.Touch(100 * sec)
	require.NoError(t, s.GoBackSoon(ReasonRestroom, "", 100*sec))

	require.True(t, s.Close("auto", 400*sec))

	require.Len(t, s.BackSoonEvents, 1)
	ev := s.BackSoonEvents[0]
	require.False(t, ev.Open())
	assert.Equal(t, int64(300), *ev.Duration)
	assert.Equal(t, int64(300), s.TotalBackSoonTime)
	// billed up to last activity (100s) minus back soon, clamped
	assert.Equal(t, int64(0), s.TotalOnlineTime)
	assert.Equal(t, -1, s.OpenBackSoon())
}

func TestClose_ClearsCleanupFlag(t *testing.T) {
	s := newTestSession()
	s.NeedsCleanup = true
	s.Close("tab closed", 10*sec)
	require.False(t, s.NeedsCleanup)
}

func TestCleanupPending_WithdrawnByLaterActivity(t *testing.T) {
	s := newTestSession()
	require.False(t, s.CleanupPending())

	s.Touch(100 * sec)
	s.NeedsCleanup = true
	s.CleanupRequestedAt = (100 * sec).Ptr()
	require.True(t, s.CleanupPending())

	// the reloaded tab heartbeats after the hint
	s.Touch(101 * sec)
	require.False(t, s.CleanupPending())

	// flags written before the timestamp existed still count
	s.CleanupRequestedAt = nil
	require.True(t, s.CleanupPending())

	s.Close("tab closed", 110*sec)
	require.False(t, s.CleanupPending())
	require.Nil(t, s.CleanupRequestedAt)
}

func TestClose_SkewedClockKeepsOrdering(t *testing.T) {
	s := newTestSession()
	s.Touch(500 * sec)

	s.Close("skew", 100*sec)

	require.Equal(t, 500*sec, *s.CheckOutTime)
	require.True(t, s.CheckInTime <= *s.LastActivityTime)
	require.True(t, *s.LastActivityTime <= *s.CheckOutTime)
}

func TestGoBackSoon_Exclusive(t *testing.T) {
	s := newTestSession()

	require.NoError(t, s.GoBackSoon(ReasonMeeting, "", 10*sec))
	err := s.GoBackSoon(ReasonRestroom, "", 20*sec)

	require.ErrorIs(t, err, ErrAlreadyBackSoon)
	require.Len(t, s.BackSoonEvents, 1)
	require.Equal(t, 0, s.OpenBackSoon())
}

func TestGoBackSoon_Validation(t *testing.T) {
	s := newTestSession()

	err := s.GoBackSoon(ReasonOther, "   ", 10*sec)
	require.ErrorIs(t, err, ErrMissingCustom)
	require.True(t, IsValidation(err))

	err = s.GoBackSoon(Reason("lunch"), "", 10*sec)
	require.ErrorIs(t, err, ErrInvalidReason)
	require.True(t, IsValidation(err))

	require.Equal(t, StatusOnline, s.Status)
	require.Empty(t, s.BackSoonEvents)

	require.NoError(t, s.GoBackSoon(ReasonOther, " delivery ", 10*sec))
	require.Equal(t, "delivery", s.BackSoonEvents[0].CustomReason)
}

func TestGoBackSoon_DropsCustomTextForFixedReasons(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.GoBackSoon(ReasonMeeting, "ignored", 10*sec))
	require.Empty(t, s.BackSoonEvents[0].CustomReason)
}

func TestGoBackSoon_RefusesDanglingRecord(t *testing.T) {
	s := newTestSession()
	s.BackSoonEvents = []BackSoonEvent{{Reason: ReasonMeeting, StartTime: 5 * sec}}

	require.ErrorIs(t, s.GoBackSoon(ReasonMeeting, "", 10*sec), ErrAlreadyBackSoon)
	require.Len(t, s.BackSoonEvents, 1)
}

func TestBackOnline(t *testing.T) {
	s := newTestSession()
	require.ErrorIs(t, s.BackOnline(5*sec), ErrNotBackSoon)

	require.NoError(t, s.GoBackSoon(ReasonMeeting, "", 10*sec))
	require.NoError(t, s.BackOnline(70*sec))

	require.Equal(t, StatusOnline, s.Status)
	require.Equal(t, int64(60), *s.BackSoonEvents[0].Duration)
	require.Equal(t, 70*sec, s.LastActivity())
}

func TestTransitionsAfterClose(t *testing.T) {
	s := newTestSession()
	s.Close("done", 10*sec)

	require.ErrorIs(t, s.GoBackSoon(ReasonMeeting, "", 20*sec), ErrSessionClosed)
	require.ErrorIs(t, s.BackOnline(20*sec), ErrSessionClosed)

	s.Touch(50 * sec)
	require.Equal(t, clock.Timestamp(0), s.LastActivity())
}

func TestTouch_Monotonic(t *testing.T) {
	s := NewSession("s", Identity{UserID: "u"}, 100*sec)

	s.Touch(200 * sec)
	s.Touch(150 * sec)
	require.Equal(t, 200*sec, s.LastActivity())

	s.LastActivityTime = nil
	s.Touch(50 * sec)
	require.Equal(t, 100*sec, s.LastActivity())
}

func TestLastActivity_FallsBackToCheckIn(t *testing.T) {
	s := &Session{CheckInTime: 42 * sec}
	require.Equal(t, 42*sec, s.LastActivity())
}

func TestRecordLivenessCounters(t *testing.T) {
	s := newTestSession()
	s.RecordCaptcha(false, 10*sec)
	s.RecordCaptcha(true, 20*sec)
	s.RecordFaceVerification()

	require.Equal(t, 2, s.CaptchaAttempts)
	require.Equal(t, 1, s.CaptchaSuccessCount)
	require.Equal(t, 20*sec, *s.LastCaptchaTime)
	require.Equal(t, 1, s.FaceVerificationCount)
}
