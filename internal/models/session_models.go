// Package models contains the persisted records of the attendance API
package models

import (
	"time"

	"github.com/nsvirk/attendanceapi/internal/attendance"
	"gorm.io/datatypes"
)

const SessionsTableName = "sessions"

// SessionModel is the stored shape of a work session. Timestamps are raw
// logical milliseconds; the repository converts them to clock.Timestamp.
type SessionModel struct {
	ID                    string                                      `gorm:"primaryKey;size:36" json:"id"`
	UserID                string                                      `gorm:"index;not null" json:"userId"`
	Username              string                                      `json:"username"`
	Department            string                                      `json:"department"`
	Position              string                                      `json:"position"`
	CheckInTime           int64                                       `gorm:"not null" json:"checkInTime"`
	CheckOutTime          *int64                                      `json:"checkOutTime,omitempty"`
	TotalOnlineTime       int64                                       `gorm:"not null;default:0" json:"totalOnlineTime"`
	TotalBackSoonTime     int64                                       `gorm:"not null;default:0" json:"totalBackSoonTime"`
	Status                string                                      `gorm:"index;not null" json:"status"`
	LastActivityTime      *int64                                      `json:"lastActivityTime,omitempty"`
	CaptchaAttempts       int                                         `gorm:"not null;default:0" json:"captchaAttempts"`
	CaptchaSuccessCount   int                                         `gorm:"not null;default:0" json:"captchaSuccessCount"`
	FaceVerificationCount int                                         `gorm:"not null;default:0" json:"faceVerificationCount"`
	LastCaptchaTime       *int64                                      `json:"lastCaptchaTime,omitempty"`
	CheckOutReason        string                                      `json:"checkOutReason,omitempty"`
	BackSoonEvents        datatypes.JSONSlice[attendance.BackSoonEvent] `json:"backSoonEvents"`
	NeedsCleanup          bool                                        `gorm:"not null;default:false" json:"needsCleanup,omitempty"`
	CleanupRequestedAt    *int64                                      `json:"cleanupRequestedAt,omitempty"`
	CreatedAt             time.Time                                   `gorm:"autoCreateTime" json:"-"`
	UpdatedAt             time.Time                                   `gorm:"autoUpdateTime" json:"-"`
}

func (SessionModel) TableName() string {
	return SessionsTableName
}
