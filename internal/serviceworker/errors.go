// Package serviceworker implements the offline cache manager: a versioned
// cache-first interceptor with an install and activate lifecycle.
package serviceworker

import "github.com/gopos/gopos-edge/internal/errors"

var (
	// ErrInstallFailed is returned when a version could not populate its
	// cache. The previously active version stays in control.
	ErrInstallFailed = errors.NewStd("worker install failed")
	// ErrNoActiveWorker is returned by operations that need a version in
	// control.
	ErrNoActiveWorker = errors.NewStd("no active worker")
	// ErrNoWaitingWorker is returned by SkipWaiting when nothing is waiting.
	ErrNoWaitingWorker = errors.NewStd("no waiting worker")
	// ErrCrossOrigin is returned for absolute request targets outside the
	// public origin. The edge only serves its own origin.
	ErrCrossOrigin = errors.NewStd("cross-origin request refused")
)
