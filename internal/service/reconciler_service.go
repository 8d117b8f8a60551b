package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/besteffort"
	"github.com/nsvirk/attendanceapi/pkg/utils/logger"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

const tabClosedReason = "Auto checkout: tab closed"

// SessionStore is the part of the session repository the reconciler needs
type SessionStore interface {
	ListActive(ctx context.Context) ([]*attendance.Session, error)
	Update(ctx context.Context, s *attendance.Session) (bool, error)
}

// SweepResult counts what one sweep did
type SweepResult struct {
	Scanned int `json:"scanned"`
	Closed  int `json:"closed"`
	Lost    int `json:"lost"`   // closed by someone else first
	Denied  int `json:"denied"` // refused by the store's permissions
	Failed  int `json:"failed"`
}

// ReconcilerService force-closes sessions whose tab has gone silent or asked
// for cleanup. It holds no locks: the conditional update decides which of two
// overlapping sweeps closes a session, and only that one writes the audit trail.
type ReconcilerService struct {
	sessions  SessionStore
	presence  *PresenceService
	audit     *AuditService
	incidents *logger.Logger
	clock     clock.Clock
	threshold time.Duration
	listener  StatusListener
}

// NewReconcilerService creates a new ReconcilerService
func NewReconcilerService(sessions SessionStore, presence *PresenceService, audit *AuditService, incidents *logger.Logger, clk clock.Clock, threshold time.Duration) *ReconcilerService {
	return &ReconcilerService{
		sessions:  sessions,
		presence:  presence,
		audit:     audit,
		incidents: incidents,
		clock:     clk,
		threshold: threshold,
	}
}

// SetStatusListener registers the receiver of forced checkouts
func (r *ReconcilerService) SetStatusListener(l StatusListener) {
	r.listener = l
}

// Sweep closes every stale or flagged session. Failures on one session never
// stop the sweep; permission denials are expected when running unprivileged
// and are ignored without logging.
func (r *ReconcilerService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	active, err := r.sessions.ListActive(ctx)
	if err != nil {
		if repository.IsPermissionDenied(err) {
			return result, nil
		}
		return result, fmt.Errorf("failed to list active sessions: %w", err)
	}

	now := r.clock.Now()
	for _, sess := range active {
		result.Scanned++
		if !sess.Status.Active() {
			continue
		}

		since := now.Sub(sess.LastActivity())
		flagged := sess.CleanupPending()
		if !flagged && since <= r.threshold {
			continue
		}

		reason := tabClosedReason
		if !flagged {
			reason = inactiveReason(since)
		}
		if !sess.Close(reason, now) {
			continue
		}

		applied, err := r.sessions.Update(ctx, sess)
		switch {
		case repository.IsPermissionDenied(err):
			result.Denied++
			continue
		case err != nil:
			result.Failed++
			zaplogger.Error("Failed to close stale session", zaplogger.Fields{
				"session_id": sess.ID,
				"user_id":    sess.UserID,
				"error":      err,
			})
			r.incidents.Error(ctx, logger.Subject{UserID: sess.UserID, SessionID: sess.ID}, "Failed to close stale session", map[string]interface{}{
				"reason": reason,
				"error":  err.Error(),
			})
			continue
		case !applied:
			result.Lost++
			continue
		}

		result.Closed++
		r.afterClose(ctx, sess, reason, since, now)
	}

	if result.Closed > 0 || result.Failed > 0 {
		zaplogger.Info("Stale session sweep", zaplogger.Fields{
			"scanned": result.Scanned,
			"closed":  result.Closed,
			"lost":    result.Lost,
			"failed":  result.Failed,
		})
	}
	return result, nil
}

// afterClose writes the secondary records of a forced checkout. None of them
// can undo the checkout.
func (r *ReconcilerService) afterClose(ctx context.Context, sess *attendance.Session, reason string, since time.Duration, now clock.Timestamp) {
	fields := zaplogger.Fields{"session_id": sess.ID, "user_id": sess.UserID}

	// open tabs of this process stop their timers before presence is cleared
	if r.listener != nil {
		r.listener.SessionStatusChanged(sess.ID, attendance.StatusOffline)
	}

	besteffort.Run(ctx, "reconcile.audit", fields, func(ctx context.Context) error {
		return r.audit.LogActivity(ctx, sess, "", models.ActionAutoCheckOut, reason, now)
	}, besteffort.Quiet(repository.IsPermissionDenied))

	besteffort.Run(ctx, "reconcile.presence", fields, func(ctx context.Context) error {
		return r.presence.MarkOffline(ctx, sess.UserID)
	}, besteffort.Quiet(repository.IsPermissionDenied))

	r.incidents.Warn(ctx, logger.Subject{UserID: sess.UserID, SessionID: sess.ID}, reason, map[string]interface{}{
		"username":             sess.Username,
		"since_activity_ms":    since.Milliseconds(),
		"last_activity_time":   sess.LastActivity().Millis(),
		"check_out_time":       now.Millis(),
		"total_online_time":    sess.TotalOnlineTime,
		"total_back_soon_time": sess.TotalBackSoonTime,
	})
}

func inactiveReason(since time.Duration) string {
	return fmt.Sprintf("Auto checkout: inactive for %d minutes", int64(since/time.Minute))
}
