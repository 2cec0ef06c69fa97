package models

import "time"

// Blacklist holds access tokens revoked by logout until they expire.
type Blacklist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
