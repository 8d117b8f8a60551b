package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/repository"
	"github.com/nsvirk/attendanceapi/pkg/utils/besteffort"
	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

var (
	ErrForbidden     = errors.New("session belongs to another user")
	ErrSessionActive = errors.New("user already has an open session")
)

const defaultCheckOutReason = "Manual checkout"

// Actor is the authenticated caller of a session operation
type Actor struct {
	UserID     string
	Username   string
	Role       string
	Department string
	Position   string
}

// IsAdmin reports whether the actor may act on other users' sessions
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func (a Actor) identity() attendance.Identity {
	return attendance.Identity{
		UserID:     a.UserID,
		Username:   a.Username,
		Department: a.Department,
		Position:   a.Position,
	}
}

// StatusListener is told about every session status transition
type StatusListener interface {
	SessionStatusChanged(sessionID string, status attendance.Status)
}

// SessionService carries the explicit, user-triggered session operations.
// Only validation and state conflicts are returned to the caller; audit and
// presence writes are best-effort.
type SessionService struct {
	sessions *repository.SessionRepository
	users    *repository.UserRepository
	presence *PresenceService
	audit    *AuditService
	clock    clock.Clock
	listener StatusListener
}

// NewSessionService creates a new SessionService
func NewSessionService(sessions *repository.SessionRepository, users *repository.UserRepository, presence *PresenceService, audit *AuditService, clk clock.Clock) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		presence: presence,
		audit:    audit,
		clock:    clk,
	}
}

// SetStatusListener registers the receiver of status transitions
func (s *SessionService) SetStatusListener(l StatusListener) {
	s.listener = l
}

// CheckIn opens a new session for the actor
func (s *SessionService) CheckIn(ctx context.Context, actor Actor) (*attendance.Session, error) {
	if err := s.users.Upsert(ctx, &models.UserModel{
		ID:         actor.UserID,
		Username:   actor.Username,
		Role:       actorRole(actor),
		Department: actor.Department,
		Position:   actor.Position,
		Status:     string(attendance.StatusOffline),
	}); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	if _, err := s.sessions.GetOpenByUser(ctx, actor.UserID); err == nil {
		return nil, ErrSessionActive
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	sess := attendance.NewSession(uuid.NewString(), actor.identity(), now)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.afterTransition(ctx, actor, sess, models.ActionCheckIn, "Checked in", now)
	return sess, nil
}

// GetCurrent returns the actor's open session
func (s *SessionService) GetCurrent(ctx context.Context, actor Actor) (*attendance.Session, error) {
	return s.sessions.GetOpenByUser(ctx, actor.UserID)
}

// Get returns a session owned by the actor, or any session for an admin
func (s *SessionService) Get(ctx context.Context, actor Actor, id string) (*attendance.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return sess, nil
}

// GoBackSoon steps the actor away from an online session
func (s *SessionService) GoBackSoon(ctx context.Context, actor Actor, id string, reason attendance.Reason, custom string) (*attendance.Session, error) {
	sess, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := sess.GoBackSoon(reason, custom, now); err != nil {
		return nil, err
	}
	if err := s.update(ctx, sess); err != nil {
		return nil, err
	}

	description := "Back soon: " + string(reason)
	if reason == attendance.ReasonOther {
		description = "Back soon: " + strings.TrimSpace(custom)
	}
	s.afterTransition(ctx, actor, sess, models.ActionBackSoon, description, now)
	return sess, nil
}

// BackOnline returns a back-soon session to online
func (s *SessionService) BackOnline(ctx context.Context, actor Actor, id string) (*attendance.Session, error) {
	sess, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := sess.BackOnline(now); err != nil {
		return nil, err
	}
	if err := s.update(ctx, sess); err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, sess, models.ActionBackOnline, "Back online", now)
	return sess, nil
}

// CheckOut closes the session. Checking out a closed session returns it
// unchanged.
func (s *SessionService) CheckOut(ctx context.Context, actor Actor, id, reason string) (*attendance.Session, error) {
	sess, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCheckOutReason
	}

	now := s.clock.Now()
	if !sess.Close(reason, now) {
		return sess, nil
	}
	applied, err := s.sessions.Update(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to check out: %w", err)
	}
	if !applied {
		// closed concurrently, most likely by the reconciler
		return s.sessions.Get(ctx, id)
	}

	s.afterTransition(ctx, actor, sess, models.ActionCheckOut, reason, now)
	return sess, nil
}

// RecordCaptchaResult counts a CAPTCHA attempt on an open session
func (s *SessionService) RecordCaptchaResult(ctx context.Context, actor Actor, id string, success bool) (*attendance.Session, error) {
	sess, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Active() {
		return nil, attendance.ErrSessionClosed
	}
	now := s.clock.Now()
	sess.RecordCaptcha(success, now)
	sess.Touch(now)
	if err := s.update(ctx, sess); err != nil {
		return nil, err
	}

	description := "CAPTCHA failed"
	if success {
		description = "CAPTCHA passed"
	}
	s.logActivity(ctx, actor, sess, models.ActionCaptcha, description, now)
	return sess, nil
}

// RecordFaceVerification counts a passed face verification on an open session
func (s *SessionService) RecordFaceVerification(ctx context.Context, actor Actor, id string) (*attendance.Session, error) {
	sess, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Active() {
		return nil, attendance.ErrSessionClosed
	}
	now := s.clock.Now()
	sess.RecordFaceVerification()
	sess.Touch(now)
	if err := s.update(ctx, sess); err != nil {
		return nil, err
	}
	s.logActivity(ctx, actor, sess, models.ActionFaceVerification, "Face verified", now)
	return sess, nil
}

// owned loads a session the actor may modify. Admins may act on any session.
func (s *SessionService) owned(ctx context.Context, actor Actor, id string) (*attendance.Session, error) {
	return s.Get(ctx, actor, id)
}

// update writes sess unless it was closed in the meantime
func (s *SessionService) update(ctx context.Context, sess *attendance.Session) error {
	applied, err := s.sessions.Update(ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !applied {
		return attendance.ErrSessionClosed
	}
	return nil
}

func (s *SessionService) afterTransition(ctx context.Context, actor Actor, sess *attendance.Session, action, description string, now clock.Timestamp) {
	s.logActivity(ctx, actor, sess, action, description, now)

	fields := zaplogger.Fields{"user_id": sess.UserID, "session_id": sess.ID}
	besteffort.Run(ctx, "session.presence", fields, func(ctx context.Context) error {
		return s.presence.SetStatus(ctx, sess.UserID, sess.ID, sess.Status, now)
	})

	if s.listener != nil {
		s.listener.SessionStatusChanged(sess.ID, sess.Status)
	}
	zaplogger.Info("Session "+action, zaplogger.Fields{
		"user_id":    sess.UserID,
		"session_id": sess.ID,
		"status":     string(sess.Status),
		"actor":      actor.UserID,
	})
}

func (s *SessionService) logActivity(ctx context.Context, actor Actor, sess *attendance.Session, action, description string, now clock.Timestamp) {
	role := ""
	if actor.UserID == sess.UserID {
		role = actorRole(actor)
	}
	besteffort.Run(ctx, "session.audit", zaplogger.Fields{"session_id": sess.ID, "action": action}, func(ctx context.Context) error {
		return s.audit.LogActivity(ctx, sess, role, action, description, now)
	})
}

func actorRole(actor Actor) string {
	if actor.Role == "" {
		return models.RoleStaff
	}
	return actor.Role
}
