package domain

import "time"

// User is the credential-store record. Lockout bookkeeping lives on the row
// so failure accounting can be done with a single row lock.
type User struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	Username            string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email               string     `gorm:"size:255;uniqueIndex" json:"email"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	Role                string     `gorm:"size:32;not null;default:employee" json:"role"`
	MFASecret           *string    `gorm:"size:255" json:"-"`
	MFAEnabledAt        *time.Time `json:"mfa_enabled_at,omitempty"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `gorm:"index" json:"-"`
	LockoutCount        int        `gorm:"not null;default:0" json:"-"`
	PasswordChangedAt   *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// MFAEnabled reports whether the user completed TOTP enrollment.
func (u *User) MFAEnabled() bool {
	return u.MFASecret != nil && *u.MFASecret != "" && u.MFAEnabledAt != nil
}

// MFAPending reports whether a secret was provisioned but never confirmed.
func (u *User) MFAPending() bool {
	return u.MFASecret != nil && *u.MFASecret != "" && u.MFAEnabledAt == nil
}

// LockedAt reports whether the account is locked out at the given instant.
// A lockout whose deadline has passed counts as unlocked; the row is cleaned
// up lazily on the next successful authentication.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
