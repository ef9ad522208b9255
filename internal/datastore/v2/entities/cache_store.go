package entities

import "time"

// CacheStore is a named collection of captured responses. A store exists
// from the moment it is opened, even while it holds no entries.
type CacheStore struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (CacheStore) TableName() string {
	return "cache_stores"
}
