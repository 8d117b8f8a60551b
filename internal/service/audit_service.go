// Package service contains the service layer for the attendance API
package service

import (
	"context"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/repository"
)

// AuditService appends entries to the activity log
type AuditService struct {
	logs  *repository.ActivityLogRepository
	users *repository.UserRepository
}

// NewAuditService creates a new AuditService
func NewAuditService(logs *repository.ActivityLogRepository, users *repository.UserRepository) *AuditService {
	return &AuditService{logs: logs, users: users}
}

// LogActivity appends one entry for the session's owner. An empty role is
// looked up from the user record.
func (s *AuditService) LogActivity(ctx context.Context, sess *attendance.Session, role, action, description string, ts clock.Timestamp) error {
	if role == "" {
		role = models.RoleStaff
		if user, err := s.users.Get(ctx, sess.UserID); err == nil {
			role = user.Role
		}
	}
	return s.logs.Create(ctx, &models.ActivityLogModel{
		UserID:      sess.UserID,
		Username:    sess.Username,
		Role:        role,
		Department:  sess.Department,
		Position:    sess.Position,
		ActionType:  action,
		Description: description,
		Timestamp:   ts.Millis(),
	})
}

// Recent returns the newest entries for a user
func (s *AuditService) Recent(ctx context.Context, userID string, limit int) ([]models.ActivityLogModel, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.logs.ListByUser(ctx, userID, limit)
}
