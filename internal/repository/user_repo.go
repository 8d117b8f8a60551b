package repository

import (
	"context"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	DB *gorm.DB
}

// NewUserRepository creates a new repository for user records
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// Upsert inserts the user or refreshes its identity columns
func (r *UserRepository) Upsert(ctx context.Context, user *models.UserModel) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "role", "department", "position", "updated_at"}),
	}).Create(user).Error
}

// Get loads a user by id
func (r *UserRepository) Get(ctx context.Context, id string) (*models.UserModel, error) {
	var user models.UserModel
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UpdatePresence sets the user's presence status and, when ts is given, its
// last activity time. Last write wins.
func (r *UserRepository) UpdatePresence(ctx context.Context, id, status string, ts *clock.Timestamp) error {
	updates := map[string]interface{}{"status": status}
	if ts != nil {
		updates["last_activity_at"] = ts.Millis()
	}
	return r.DB.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListStalePresence returns users still marked present whose last activity
// is older than before
func (r *UserRepository) ListStalePresence(ctx context.Context, before clock.Timestamp) ([]models.UserModel, error) {
	var users []models.UserModel
	err := r.DB.WithContext(ctx).
		Where("status <> ?", statusOffline).
		Where("last_activity_at IS NULL OR last_activity_at < ?", before.Millis()).
		Find(&users).Error
	return users, err
}

// SetOfflineIfStale marks the user offline unless it reported activity since before
func (r *UserRepository) SetOfflineIfStale(ctx context.Context, id string, before clock.Timestamp) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&models.UserModel{}).
		Where("id = ? AND status <> ?", id, statusOffline).
		Where("last_activity_at IS NULL OR last_activity_at < ?", before.Millis()).
		Update("status", statusOffline)
	return res.RowsAffected > 0, res.Error
}
