package entities

import "time"

// CacheEntry is one request→response pair inside a CacheStore. The pair
// (StoreID, CacheKey) is unique, so writing the same request twice
// overwrites the earlier response.
type CacheEntry struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	StoreID      uint       `gorm:"not null;uniqueIndex:idx_cache_entry_store_key,priority:1" json:"store_id"`
	CacheKey     string     `gorm:"size:64;not null;uniqueIndex:idx_cache_entry_store_key,priority:2" json:"cache_key"`
	Method       string     `gorm:"size:10;not null" json:"method"`
	URL          string     `gorm:"size:2048;not null" json:"url"`
	Status       int        `gorm:"not null" json:"status"`
	StatusText   string     `gorm:"size:100;default:''" json:"status_text"`
	Header       string     `gorm:"type:text" json:"header"` // JSON-encoded http.Header
	Body         []byte     `json:"-"`
	BodySize     int64      `gorm:"not null;default:0" json:"body_size"`
	ResponseType string     `gorm:"size:20;not null;default:'basic'" json:"response_type"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Store        CacheStore `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}
