// Package telemetry forwards enhanced errors to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gopos/gopos-edge/internal/conf"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
)

// Reporter sends errors to Sentry through a private hub.
type Reporter struct {
	hub *sentry.Hub
	log logger.Logger
}

// Option adjusts the Sentry client options before the client is built.
type Option func(*sentry.ClientOptions)

// New creates a reporter. It returns (nil, nil) when reporting is
// disabled; a nil *Reporter is safe to use.
func New(cfg conf.SentrySettings, release string, log logger.Logger, opts ...Option) (*Reporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	co := sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		AttachStacktrace: true,
	}
	for _, opt := range opts {
		opt(&co)
	}
	client, err := sentry.NewClient(co)
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Reporter{
		hub: sentry.NewHub(client, sentry.NewScope()),
		log: log.Module("telemetry"),
	}, nil
}

// Install makes r the sink for every built enhanced error.
func (r *Reporter) Install() {
	if r == nil {
		return
	}
	errors.SetReporter(r.CaptureError)
}

// CaptureError reports ee with its component, category and context.
func (r *Reporter) CaptureError(ee *errors.EnhancedError) {
	if r == nil || ee == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		if c := ee.GetComponent(); c != "" {
			scope.SetTag("component", c)
		}
		scope.SetTag("category", string(ee.GetCategory()))
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", sentry.Context(ctx))
		}
		r.hub.CaptureException(ee)
	})
}

// Flush waits up to timeout for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	ok := r.hub.Flush(timeout)
	if !ok {
		r.log.Warn("sentry flush timed out", logger.Duration("timeout", timeout))
	}
	return ok
}

// Close uninstalls the reporter and flushes pending events.
func (r *Reporter) Close(timeout time.Duration) {
	if r == nil {
		return
	}
	errors.SetReporter(nil)
	r.Flush(timeout)
}
