package models

import "time"

const UsersTableName = "users"

// User roles
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// UserModel mirrors the identity provider's user and carries the simple
// presence indicator. It is eventually consistent with the open session and
// never used for billing.
type UserModel struct {
	ID                string    `gorm:"primaryKey;size:64" json:"id"`
	Username          string    `json:"username"`
	Role              string    `gorm:"not null;default:staff" json:"role"`
	Department        string    `json:"department"`
	Position          string    `json:"position"`
	Status            string    `gorm:"index;not null;default:offline" json:"status"`
	LastActivityAt    *int64    `json:"lastActivityAt,omitempty"`
	ChallengesEnabled bool      `gorm:"not null;default:false" json:"challengesEnabled"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (UserModel) TableName() string {
	return UsersTableName
}
