package domain

import "time"

// Identity is the non-sensitive profile record kept in the identity store.
type Identity struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Email         string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName   string     `gorm:"size:255;not null" json:"display_name"`
	Phone         *string    `gorm:"uniqueIndex;size:32" json:"phone,omitempty"`
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`
	IsVerified    bool       `gorm:"not null;default:false" json:"is_verified"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`
	PhoneVerified bool       `gorm:"not null;default:false" json:"phone_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Identity) TableName() string { return "identities" }

func (i *Identity) Status() IdentityStatus {
	switch {
	case !i.IsActive:
		return IdentityStatusInactive
	case i.IsVerified:
		return IdentityStatusVerified
	default:
		return IdentityStatusPending
	}
}
