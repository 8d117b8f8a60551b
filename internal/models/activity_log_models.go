package models

import "time"

const ActivityLogsTableName = "activity_logs"

// Activity log action types
const (
	ActionCheckIn          = "check_in"
	ActionCheckOut         = "check_out"
	ActionAutoCheckOut     = "auto_check_out"
	ActionBackSoon         = "back_soon"
	ActionBackOnline       = "back_online"
	ActionCaptcha          = "captcha"
	ActionFaceVerification = "face_verification"
)

// ActivityLogModel is an append-only audit entry
type ActivityLogModel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"index" json:"userId"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Department  string    `json:"department"`
	Position    string    `json:"position"`
	ActionType  string    `gorm:"index" json:"actionType"`
	Description string    `json:"description"`
	Timestamp   int64     `gorm:"index" json:"timestamp"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`
}

func (ActivityLogModel) TableName() string {
	return ActivityLogsTableName
}
