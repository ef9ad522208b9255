package entities

import "time"

// WorkerState is the lifecycle state of a registered worker version.
type WorkerState string

const (
	WorkerStateInstalling WorkerState = "installing"
	WorkerStateWaiting    WorkerState = "waiting"
	WorkerStateActive     WorkerState = "active"
	WorkerStateSuperseded WorkerState = "superseded"
	// WorkerStateRedundant marks a version whose install failed.
	WorkerStateRedundant WorkerState = "redundant"
)

// WorkerVersion records one registered version of the offline cache
// manager, identified by its cache store name.
type WorkerVersion struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	CacheName    string      `gorm:"size:255;not null;uniqueIndex" json:"cache_name"`
	State        WorkerState `gorm:"size:20;not null;index" json:"state"`
	Manifest     string      `gorm:"type:text" json:"manifest"` // JSON array of paths
	Error        string      `gorm:"type:text" json:"error,omitempty"`
	InstalledAt  *time.Time  `json:"installed_at,omitempty"`
	ActivatedAt  *time.Time  `json:"activated_at,omitempty"`
	SupersededAt *time.Time  `json:"superseded_at,omitempty"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WorkerVersion) TableName() string {
	return "worker_versions"
}
