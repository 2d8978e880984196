package models

import "time"

// User is a portal account. Foreman and subscriber accounts are created from
// approved access requests and stay inactive until the activation token is used.
type User struct {
	UserID              string     `gorm:"primarykey;column:user_id" json:"userId"`
	Name                string     `gorm:"column:name;not null" json:"name"`
	Email               string     `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Phone               string     `gorm:"column:phone" json:"phone,omitempty"`
	UCFSIN              *string    `gorm:"column:ucfsin;uniqueIndex" json:"ucfsin,omitempty"`
	Role                Role       `gorm:"column:role;type:varchar(50);not null" json:"role"`
	Organization        string     `gorm:"column:organization" json:"organization,omitempty"`
	PasswordHash        string     `gorm:"column:password_hash" json:"-"`
	Active              bool       `gorm:"column:active;not null;default:false" json:"active"`
	ActivationTokenHash *string    `gorm:"column:activation_token_hash;index" json:"-"`
	ActivationExpiresAt *time.Time `gorm:"column:activation_expires_at" json:"-"`
	LastLoginAt         *time.Time `gorm:"column:last_login_at" json:"lastLoginAt,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (User) TableName() string {
	return "users"
}

// UCFSINValue returns the UCFSIN or an empty string
func (u *User) UCFSINValue() string {
	if u.UCFSIN == nil {
		return ""
	}
	return *u.UCFSIN
}
