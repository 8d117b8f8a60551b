// Package attendance holds the work-session state machine.
//
// A Session moves online <-> back_soon and finally to offline, which is
// terminal: a new check-in creates a new Session. Billed online time only runs
// up to the last confirmed activity, so a tab that disappears silently is not
// paid for the time it was gone.
package attendance

import (
	"errors"
	"strings"

	"github.com/nsvirk/attendanceapi/internal/clock"
)

// Status of a session
type Status string

const (
	StatusOnline   Status = "online"
	StatusBackSoon Status = "back_soon"
	StatusOffline  Status = "offline"
)

// Active reports whether the status counts as checked in.
func (s Status) Active() bool {
	return s == StatusOnline || s == StatusBackSoon
}

// Reason for stepping away
type Reason string

const (
	ReasonMeeting  Reason = "meeting"
	ReasonRestroom Reason = "restroom"
	ReasonOther    Reason = "other"
)

// Valid reports whether r is one of the known reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMeeting, ReasonRestroom, ReasonOther:
		return true
	}
	return false
}

var (
	ErrInvalidReason   = errors.New("invalid back-soon reason")
	ErrMissingCustom   = errors.New("custom reason is required for `other`")
	ErrAlreadyBackSoon = errors.New("session is already back soon")
	ErrNotBackSoon     = errors.New("session is not back soon")
	ErrSessionClosed   = errors.New("session is already checked out")
)

// IsValidation reports whether err is a caller input error rather than a state conflict.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidReason) || errors.Is(err, ErrMissingCustom)
}

// BackSoonEvent is one away interval. EndTime and Duration are nil while it is open.
type BackSoonEvent struct {
	Reason       Reason           `json:"reason"`
	CustomReason string           `json:"customReason,omitempty"`
	StartTime    clock.Timestamp  `json:"startTime"`
	EndTime      *clock.Timestamp `json:"endTime,omitempty"`
	Duration     *int64           `json:"duration,omitempty"` // seconds
}

// Open reports whether the event has not ended yet.
func (e BackSoonEvent) Open() bool { return e.EndTime == nil }

// close ends the event at end, clamping negative durations caused by clock skew.
func (e *BackSoonEvent) close(end clock.Timestamp) {
	if end < e.StartTime {
		end = e.StartTime
	}
	d := end.WholeSecondsSince(e.StartTime)
	e.EndTime = end.Ptr()
	e.Duration = &d
}

// seconds returns the recorded duration, deriving it from the end time for
// legacy records that never stored one.
func (e BackSoonEvent) seconds() int64 {
	if e.Duration != nil {
		if *e.Duration < 0 {
			return 0
		}
		return *e.Duration
	}
	if e.EndTime == nil {
		return 0
	}
	d := e.EndTime.WholeSecondsSince(e.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// Session is one continuous work shift.
type Session struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Department string `json:"department"`
	Position   string `json:"position"`

	CheckInTime      clock.Timestamp  `json:"checkInTime"`
	CheckOutTime     *clock.Timestamp `json:"checkOutTime,omitempty"`
	LastActivityTime *clock.Timestamp `json:"lastActivityTime,omitempty"`

	TotalOnlineTime   int64 `json:"totalOnlineTime"`   // seconds
	TotalBackSoonTime int64 `json:"totalBackSoonTime"` // seconds

	Status Status `json:"status"`

	CaptchaAttempts       int              `json:"captchaAttempts"`
	CaptchaSuccessCount   int              `json:"captchaSuccessCount"`
	FaceVerificationCount int              `json:"faceVerificationCount"`
	LastCaptchaTime       *clock.Timestamp `json:"lastCaptchaTime,omitempty"`

	CheckOutReason string          `json:"checkOutReason,omitempty"`
	BackSoonEvents []BackSoonEvent `json:"backSoonEvents"`
	NeedsCleanup   bool            `json:"needsCleanup,omitempty"`

	// when the unload hint behind NeedsCleanup was sent
	CleanupRequestedAt *clock.Timestamp `json:"cleanupRequestedAt,omitempty"`
}

// Identity is the denormalised user data copied onto a session at check-in.
type Identity struct {
	UserID     string
	Username   string
	Department string
	Position   string
}

// NewSession checks a user in at now.
func NewSession(id string, who Identity, now clock.Timestamp) *Session {
	return &Session{
		ID:               id,
		UserID:           who.UserID,
		Username:         who.Username,
		Department:       who.Department,
		Position:         who.Position,
		CheckInTime:      now,
		LastActivityTime: now.Ptr(),
		Status:           StatusOnline,
		BackSoonEvents:   []BackSoonEvent{},
	}
}

// LastActivity returns the last activity time, falling back to check-in.
func (s *Session) LastActivity() clock.Timestamp {
	return clock.OrElse(s.LastActivityTime, s.CheckInTime)
}

// CleanupPending reports whether an unload hint still asks for the session to
// be closed. Activity recorded after the hint means the tab came back, as it
// does on a page reload.
func (s *Session) CleanupPending() bool {
	if !s.NeedsCleanup || s.Status == StatusOffline {
		return false
	}
	if s.CleanupRequestedAt == nil {
		return true
	}
	return !s.LastActivity().After(*s.CleanupRequestedAt)
}

// OpenBackSoon returns the index of the open back-soon record, or -1.
func (s *Session) OpenBackSoon() int {
	for i := len(s.BackSoonEvents) - 1; i >= 0; i-- {
		if s.BackSoonEvents[i].Open() {
			return i
		}
	}
	return -1
}

// Touch records activity at now. The value never moves backwards and never
// precedes check-in.
func (s *Session) Touch(now clock.Timestamp) {
	if s.Status == StatusOffline {
		return
	}
	if now.Before(s.CheckInTime) {
		now = s.CheckInTime
	}
	if now.After(s.LastActivity()) {
		s.LastActivityTime = now.Ptr()
	}
}

// GoBackSoon moves an online session to back_soon and opens a new record.
func (s *Session) GoBackSoon(reason Reason, custom string, now clock.Timestamp) error {
	if !reason.Valid() {
		return ErrInvalidReason
	}
	custom = strings.TrimSpace(custom)
	if reason == ReasonOther && custom == "" {
		return ErrMissingCustom
	}
	if reason != ReasonOther {
		custom = ""
	}

	switch s.Status {
	case StatusOffline:
		return ErrSessionClosed
	case StatusBackSoon:
		return ErrAlreadyBackSoon
	}
	if s.OpenBackSoon() >= 0 {
		// a dangling record from a legacy document; never stack a second one
		return ErrAlreadyBackSoon
	}

	s.Touch(now)
	s.BackSoonEvents = append(s.BackSoonEvents, BackSoonEvent{
		Reason:       reason,
		CustomReason: custom,
		StartTime:    now,
	})
	s.Status = StatusBackSoon
	return nil
}

// BackOnline closes the open back-soon record and returns to online.
func (s *Session) BackOnline(now clock.Timestamp) error {
	switch s.Status {
	case StatusOffline:
		return ErrSessionClosed
	case StatusOnline:
		return ErrNotBackSoon
	}
	if i := s.OpenBackSoon(); i >= 0 {
		s.BackSoonEvents[i].close(now)
	}
	s.Status = StatusOnline
	s.Touch(now)
	return nil
}

// Close checks the session out at now with the given reason. Closing an
// offline session is a no-op and returns false.
func (s *Session) Close(reason string, now clock.Timestamp) bool {
	if s.Status == StatusOffline {
		return false
	}
	if i := s.OpenBackSoon(); i >= 0 {
		s.BackSoonEvents[i].close(now)
	}

	last := s.LastActivity()
	if now.Before(last) {
		// client clocks can lie; keep checkIn <= lastActivity <= checkOut
		now = last
	}

	online, backSoon := ComputeDurations(s.CheckInTime, last, s.BackSoonEvents)
	// totals never decrease across recomputations
	if online > s.TotalOnlineTime {
		s.TotalOnlineTime = online
	}
	if backSoon > s.TotalBackSoonTime {
		s.TotalBackSoonTime = backSoon
	}

	s.LastActivityTime = last.Ptr()
	s.CheckOutTime = now.Ptr()
	s.CheckOutReason = reason
	s.Status = StatusOffline
	s.NeedsCleanup = false
	s.CleanupRequestedAt = nil
	return true
}

// RecordCaptcha counts a CAPTCHA attempt.
func (s *Session) RecordCaptcha(success bool, now clock.Timestamp) {
	s.CaptchaAttempts++
	if success {
		s.CaptchaSuccessCount++
		s.LastCaptchaTime = now.Ptr()
	}
}

// RecordFaceVerification counts a passed face re-verification.
func (s *Session) RecordFaceVerification() {
	s.FaceVerificationCount++
}
