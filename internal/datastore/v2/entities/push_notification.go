package entities

import "time"

// PushNotification is a notification shown to open pages in response to a
// push message.
type PushNotification struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Title     string     `gorm:"size:255;not null" json:"title"`
	Body      string     `gorm:"type:text" json:"body"`
	Icon      string     `gorm:"size:512;default:''" json:"icon"`
	Badge     string     `gorm:"size:512;default:''" json:"badge"`
	Vibrate   string     `gorm:"size:255;default:'[]'" json:"vibrate"` // JSON array of ms
	URL       string     `gorm:"size:2048;not null" json:"url"`
	Source    string     `gorm:"size:20;default:''" json:"source"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// TableName returns the table name for GORM.
func (PushNotification) TableName() string {
	return "push_notifications"
}

// IsOpen reports whether the notification is still displayed.
func (n *PushNotification) IsOpen() bool {
	return n.ClosedAt == nil
}
