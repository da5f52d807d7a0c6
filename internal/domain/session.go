package domain

import "time"

// ActiveSession is the durable record of a live refresh token, one-to-one
// with it. AccessJTI points at the most recently minted access token so the
// store can answer liveness checks when the revocation cache is cold.
type ActiveSession struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"size:36;index;not null" json:"user_id"`
	RefreshTokenID string    `gorm:"size:36;uniqueIndex;not null" json:"-"`
	AccessJTI      string    `gorm:"size:36;index;not null" json:"-"`
	DeviceLabel    string    `gorm:"size:255" json:"device_label"`
	IP             string    `gorm:"size:64" json:"ip"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeenAt     time.Time `gorm:"index" json:"last_seen_at"`
	ExpiresAt      time.Time `gorm:"index;not null" json:"expires_at"`
}
