package repository

import (
	"context"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"gorm.io/gorm"
)

var activeStatuses = []string{string(attendance.StatusOnline), string(attendance.StatusBackSoon)}

const statusOffline = string(attendance.StatusOffline)

type SessionRepository struct {
	DB *gorm.DB
}

// NewSessionRepository creates a new repository for sessions
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, s *attendance.Session) error {
	m := toSessionModel(s)
	return r.DB.WithContext(ctx).Create(&m).Error
}

// Get loads a session by id
func (r *SessionRepository) Get(ctx context.Context, id string) (*attendance.Session, error) {
	var m models.SessionModel
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return toSession(&m), nil
}

// GetOpenByUser returns the user's active session, if any
func (r *SessionRepository) GetOpenByUser(ctx context.Context, userID string) (*attendance.Session, error) {
	var m models.SessionModel
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, activeStatuses).
		Order("check_in_time DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return toSession(&m), nil
}

// ListActive returns every session claiming to be online or back soon
func (r *SessionRepository) ListActive(ctx context.Context) ([]*attendance.Session, error) {
	var rows []models.SessionModel
	if err := r.DB.WithContext(ctx).Where("status IN ?", activeStatuses).Find(&rows).Error; err != nil {
		return nil, err
	}
	sessions := make([]*attendance.Session, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, toSession(&rows[i]))
	}
	return sessions, nil
}

// Update writes the mutable fields of s unless the stored session is already
// offline. It reports whether a row was written, so two writers racing to
// close the same session can tell which one won.
func (r *SessionRepository) Update(ctx context.Context, s *attendance.Session) (bool, error) {
	m := toSessionModel(s)
	res := r.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ? AND status <> ?", s.ID, statusOffline).
		Updates(map[string]interface{}{
			"check_out_time":          m.CheckOutTime,
			"total_online_time":       m.TotalOnlineTime,
			"total_back_soon_time":    m.TotalBackSoonTime,
			"status":                  m.Status,
			"last_activity_time":      m.LastActivityTime,
			"captcha_attempts":        m.CaptchaAttempts,
			"captcha_success_count":   m.CaptchaSuccessCount,
			"face_verification_count": m.FaceVerificationCount,
			"last_captcha_time":       m.LastCaptchaTime,
			"check_out_reason":        m.CheckOutReason,
			"back_soon_events":        m.BackSoonEvents,
			"needs_cleanup":           m.NeedsCleanup,
			"cleanup_requested_at":    m.CleanupRequestedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TouchActivity advances last_activity_time of an open session. Older
// timestamps are ignored, so out-of-order heartbeats never move it backwards.
func (r *SessionRepository) TouchActivity(ctx context.Context, id string, ts clock.Timestamp) error {
	return r.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ? AND status <> ?", id, statusOffline).
		Where("last_activity_time IS NULL OR last_activity_time < ?", ts.Millis()).
		Update("last_activity_time", ts.Millis()).Error
}

// MarkCleanup flags an open session for immediate reconciliation. at is when
// the tab sent its unload hint; activity recorded after it withdraws the flag.
func (r *SessionRepository) MarkCleanup(ctx context.Context, id string, at clock.Timestamp) error {
	return r.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ? AND status <> ?", id, statusOffline).
		Updates(map[string]interface{}{
			"needs_cleanup":        true,
			"cleanup_requested_at": at.Millis(),
		}).Error
}

// ClearCleanup withdraws a cleanup request, used when the tab reconnects
// after an unload hint (a page reload sends one)
func (r *SessionRepository) ClearCleanup(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ? AND status <> ?", id, statusOffline).
		Updates(map[string]interface{}{
			"needs_cleanup":        false,
			"cleanup_requested_at": nil,
		}).Error
}

func toSession(m *models.SessionModel) *attendance.Session {
	events := make([]attendance.BackSoonEvent, len(m.BackSoonEvents))
	copy(events, m.BackSoonEvents)
	return &attendance.Session{
		ID:                    m.ID,
		UserID:                m.UserID,
		Username:              m.Username,
		Department:            m.Department,
		Position:              m.Position,
		CheckInTime:           clock.Timestamp(m.CheckInTime),
		CheckOutTime:          toTimestamp(m.CheckOutTime),
		LastActivityTime:      toTimestamp(m.LastActivityTime),
		TotalOnlineTime:       m.TotalOnlineTime,
		TotalBackSoonTime:     m.TotalBackSoonTime,
		Status:                attendance.Status(m.Status),
		CaptchaAttempts:       m.CaptchaAttempts,
		CaptchaSuccessCount:   m.CaptchaSuccessCount,
		FaceVerificationCount: m.FaceVerificationCount,
		LastCaptchaTime:       toTimestamp(m.LastCaptchaTime),
		CheckOutReason:        m.CheckOutReason,
		BackSoonEvents:        events,
		NeedsCleanup:          m.NeedsCleanup,
		CleanupRequestedAt:    toTimestamp(m.CleanupRequestedAt),
	}
}

func toSessionModel(s *attendance.Session) models.SessionModel {
	events := make([]attendance.BackSoonEvent, len(s.BackSoonEvents))
	copy(events, s.BackSoonEvents)
	return models.SessionModel{
		ID:                    s.ID,
		UserID:                s.UserID,
		Username:              s.Username,
		Department:            s.Department,
		Position:              s.Position,
		CheckInTime:           s.CheckInTime.Millis(),
		CheckOutTime:          fromTimestamp(s.CheckOutTime),
		LastActivityTime:      fromTimestamp(s.LastActivityTime),
		TotalOnlineTime:       s.TotalOnlineTime,
		TotalBackSoonTime:     s.TotalBackSoonTime,
		Status:                string(s.Status),
		CaptchaAttempts:       s.CaptchaAttempts,
		CaptchaSuccessCount:   s.CaptchaSuccessCount,
		FaceVerificationCount: s.FaceVerificationCount,
		LastCaptchaTime:       fromTimestamp(s.LastCaptchaTime),
		CheckOutReason:        s.CheckOutReason,
		BackSoonEvents:        events,
		NeedsCleanup:          s.NeedsCleanup,
		CleanupRequestedAt:    fromTimestamp(s.CleanupRequestedAt),
	}
}

// toTimestamp treats a zero or missing column as absent
func toTimestamp(v *int64) *clock.Timestamp {
	if v == nil || *v == 0 {
		return nil
	}
	return clock.Timestamp(*v).Ptr()
}

func fromTimestamp(ts *clock.Timestamp) *int64 {
	if ts == nil {
		return nil
	}
	v := ts.Millis()
	return &v
}
