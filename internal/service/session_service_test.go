package service

import (
	"context"
	"testing"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/stretchr/testify/require"
)

type statusRecorder struct {
	statuses []attendance.Status
}

func (r *statusRecorder) SessionStatusChanged(sessionID string, status attendance.Status) {
	r.statuses = append(r.statuses, status)
}

var asha = Actor{UserID: "u1", Username: "asha", Role: models.RoleStaff, Department: "support", Position: "agent"}

func TestSessionService_WorkdayDurations(t *testing.T) {
	e := newEnv(t)
	svc := e.sessionService()
	listener := &statusRecorder{}
	svc.SetStatusListener(listener)
	ctx := context.Background()

	sess, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)
	require.Equal(t, attendance.StatusOnline, sess.Status)
	require.Equal(t, "support", sess.Department)

	_, err = svc.CheckIn(ctx, asha)
	require.ErrorIs(t, err, ErrSessionActive)

	e.clock.Advance(600 * time.Second)
	_, err = svc.GoBackSoon(ctx, asha, sess.ID, attendance.ReasonMeeting, "")
	require.NoError(t, err)
	_, err = svc.GoBackSoon(ctx, asha, sess.ID, attendance.ReasonRestroom, "")
	require.ErrorIs(t, err, attendance.ErrAlreadyBackSoon)

	e.clock.Advance(300 * time.Second)
	_, err = svc.BackOnline(ctx, asha, sess.ID)
	require.NoError(t, err)

	// last heartbeat at 1800s, checkout at 2000s
	require.NoError(t, e.sessions.TouchActivity(ctx, sess.ID, start.Add(1800*time.Second)))
	e.clock.Advance(1100 * time.Second)
	closed, err := svc.CheckOut(ctx, asha, sess.ID, "")
	require.NoError(t, err)
	require.Equal(t, attendance.StatusOffline, closed.Status)
	require.Equal(t, int64(300), closed.TotalBackSoonTime)
	require.Equal(t, int64(1500), closed.TotalOnlineTime)
	require.Equal(t, "Manual checkout", closed.CheckOutReason)
	require.Equal(t, start.Add(2000*time.Second), *closed.CheckOutTime)

	// checking out twice changes nothing
	e.clock.Advance(time.Hour)
	again, err := svc.CheckOut(ctx, asha, sess.ID, "again")
	require.NoError(t, err)
	require.Equal(t, closed.CheckOutTime, again.CheckOutTime)
	require.Equal(t, "Manual checkout", again.CheckOutReason)

	entries, err := e.audit.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, models.ActionCheckOut, entries[0].ActionType)
	require.Equal(t, models.RoleStaff, entries[0].Role)

	require.Equal(t, []attendance.Status{
		attendance.StatusOnline,
		attendance.StatusBackSoon,
		attendance.StatusOnline,
		attendance.StatusOffline,
	}, listener.statuses)

	user, err := e.users.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "offline", user.Status)
}

func TestSessionService_BackSoonValidation(t *testing.T) {
	e := newEnv(t)
	svc := e.sessionService()
	ctx := context.Background()
	sess, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)

	_, err = svc.GoBackSoon(ctx, asha, sess.ID, attendance.ReasonOther, "   ")
	require.ErrorIs(t, err, attendance.ErrMissingCustom)
	require.True(t, attendance.IsValidation(err))

	_, err = svc.GoBackSoon(ctx, asha, sess.ID, attendance.Reason("lunch"), "")
	require.ErrorIs(t, err, attendance.ErrInvalidReason)

	_, err = svc.BackOnline(ctx, asha, sess.ID)
	require.ErrorIs(t, err, attendance.ErrNotBackSoon)

	got, err := svc.GoBackSoon(ctx, asha, sess.ID, attendance.ReasonOther, " courier ")
	require.NoError(t, err)
	require.Equal(t, "courier", got.BackSoonEvents[0].CustomReason)
}

func TestSessionService_Ownership(t *testing.T) {
	e := newEnv(t)
	svc := e.sessionService()
	ctx := context.Background()
	sess, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)

	ravi := Actor{UserID: "u2", Username: "ravi", Role: models.RoleStaff}
	_, err = svc.Get(ctx, ravi, sess.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.CheckOut(ctx, ravi, sess.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	admin := Actor{UserID: "a1", Username: "admin", Role: models.RoleAdmin}
	got, err := svc.Get(ctx, admin, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	current, err := svc.GetCurrent(ctx, asha)
	require.NoError(t, err)
	require.Equal(t, sess.ID, current.ID)
}

func TestSessionService_LivenessCounters(t *testing.T) {
	e := newEnv(t)
	svc := e.sessionService()
	ctx := context.Background()
	sess, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)

	e.clock.Advance(time.Minute)
	_, err = svc.RecordCaptchaResult(ctx, asha, sess.ID, false)
	require.NoError(t, err)
	got, err := svc.RecordCaptchaResult(ctx, asha, sess.ID, true)
	require.NoError(t, err)
	require.Equal(t, 2, got.CaptchaAttempts)
	require.Equal(t, 1, got.CaptchaSuccessCount)
	require.Equal(t, e.clock.Now(), *got.LastCaptchaTime)

	got, err = svc.RecordFaceVerification(ctx, asha, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.FaceVerificationCount)

	_, err = svc.CheckOut(ctx, asha, sess.ID, "")
	require.NoError(t, err)
	_, err = svc.RecordFaceVerification(ctx, asha, sess.ID)
	require.ErrorIs(t, err, attendance.ErrSessionClosed)
}

func TestSessionService_CheckOutAfterReconciler(t *testing.T) {
	e := newEnv(t)
	svc := e.sessionService()
	ctx := context.Background()
	sess, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)

	e.clock.Advance(5 * time.Minute)
	_, err = e.reconciler(nil).Sweep(ctx)
	require.NoError(t, err)

	got, err := svc.CheckOut(ctx, asha, sess.ID, "leaving")
	require.NoError(t, err)
	require.Equal(t, "Auto checkout: inactive for 5 minutes", got.CheckOutReason)

	// a new shift can start once the old one is closed
	next, err := svc.CheckIn(ctx, asha)
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, next.ID)
}
