package domain

import "time"

// RefreshToken stores only the peppered hash of the opaque secret. UsedAt is
// set exactly once, by the atomic consume during rotation or logout; a row
// with UsedAt set must never authorize another rotation.
type RefreshToken struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:36;index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`
}

// Live reports whether the token can still authorize a rotation.
func (t *RefreshToken) Live(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}
