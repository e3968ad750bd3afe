package domain

import "time"

// Credential holds authentication material for one Identity. It lives in a store that is
// isolated from the identity store and is keyed by UserID.
type Credential struct {
	ID                  uint       `gorm:"primaryKey" json:"-"`
	UserID              string     `gorm:"uniqueIndex;size:36;not null" json:"-"`
	PasswordHash        string     `gorm:"size:1024" json:"-"`
	Salt                string     `gorm:"size:64" json:"-"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	RefreshTokenHash    *string    `gorm:"size:128" json:"-"`

	PhoneVerificationCode      *string    `gorm:"size:128" json:"-"`
	PhoneVerificationExpiresAt *time.Time `json:"-"`
	PhoneVerificationAttempts  int        `gorm:"not null;default:0" json:"-"`

	PasswordResetToken     *string    `gorm:"size:128;index" json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	PasswordResetAttempts  int        `gorm:"not null;default:0" json:"-"`

	OAuthExternalID      *string `gorm:"column:oauth_external_id;uniqueIndex;size:255" json:"-"`
	OAuthAccessTokenEnc  []byte  `gorm:"column:oauth_access_token_enc" json:"-"`
	OAuthRefreshTokenEnc []byte  `gorm:"column:oauth_refresh_token_enc" json:"-"`

	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"-"`
	UpdatedAt         time.Time  `json:"-"`
}

func (Credential) TableName() string { return "credentials" }

func (c *Credential) HasPassword() bool {
	return c.PasswordHash != "" && c.Salt != ""
}

// CodeSlot is a read view over the code fields of one purpose.
type CodeSlot struct {
	Digest    *string
	ExpiresAt *time.Time
	Attempts  int
}

func (c *Credential) Slot(purpose CodePurpose) CodeSlot {
	switch purpose {
	case CodePurposePasswordReset:
		return CodeSlot{Digest: c.PasswordResetToken, ExpiresAt: c.PasswordResetExpiresAt, Attempts: c.PasswordResetAttempts}
	default:
		return CodeSlot{Digest: c.PhoneVerificationCode, ExpiresAt: c.PhoneVerificationExpiresAt, Attempts: c.PhoneVerificationAttempts}
	}
}

// SetSlot mirrors a store-side change back onto the in-memory record.
func (c *Credential) SetSlot(purpose CodePurpose, slot CodeSlot) {
	switch purpose {
	case CodePurposePasswordReset:
		c.PasswordResetToken, c.PasswordResetExpiresAt, c.PasswordResetAttempts = slot.Digest, slot.ExpiresAt, slot.Attempts
	default:
		c.PhoneVerificationCode, c.PhoneVerificationExpiresAt, c.PhoneVerificationAttempts = slot.Digest, slot.ExpiresAt, slot.Attempts
	}
}
