package repository

import (
	"context"

	"github.com/nsvirk/attendanceapi/internal/models"
	"gorm.io/gorm"
)

type ActivityLogRepository struct {
	DB *gorm.DB
}

// NewActivityLogRepository creates a new repository for the audit trail
func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{DB: db}
}

// Create appends an entry
func (r *ActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLogModel) error {
	return r.DB.WithContext(ctx).Create(entry).Error
}

// ListByUser returns the newest entries for a user
func (r *ActivityLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.ActivityLogModel, error) {
	var entries []models.ActivityLogModel
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
