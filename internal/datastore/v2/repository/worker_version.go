package repository

import (
	"context"

	"github.com/gopos/gopos-edge/internal/datastore/v2/entities"
)

// WorkerVersionRepository tracks registered worker versions and their
// lifecycle state.
type WorkerVersionRepository interface {
	SaveVersion(ctx context.Context, version *entities.WorkerVersion) error
	GetVersion(ctx context.Context, cacheName string) (*entities.WorkerVersion, error)
	GetActive(ctx context.Context) (*entities.WorkerVersion, error)
	ListVersions(ctx context.Context) ([]entities.WorkerVersion, error)
	UpdateState(ctx context.Context, cacheName string, state entities.WorkerState, reason string) error
	// Activate marks cacheName active and every previously active
	// version superseded, atomically.
	Activate(ctx context.Context, cacheName string) error
}
