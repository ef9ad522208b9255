// Package errors provides enhanced errors carrying a component, a category
// and free-form context. It re-exports the standard helpers so callers only
// import one errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
)

// ErrorCategory classifies an error for logging and reporting.
type ErrorCategory string

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryDatabase      ErrorCategory = "database"
	CategoryNetwork       ErrorCategory = "network"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCacheWrite    ErrorCategory = "cache-write"
	CategoryLifecycle     ErrorCategory = "lifecycle"
	CategoryNotification  ErrorCategory = "notification"
)

// EnhancedError wraps an error with component, category and context.
type EnhancedError struct {
	Err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error to errors.Is/As.
func (e *EnhancedError) Unwrap() error { return e.Err }

// GetComponent returns the component that raised the error.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() ErrorCategory { return e.category }

// GetContext returns a copy of the attached context.
func (e *EnhancedError) GetContext() map[string]any {
	return maps.Clone(e.context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the originating component.
func (b *ErrorBuilder) Component(name string) *ErrorBuilder {
	b.component = name
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(c ErrorCategory) *ErrorBuilder {
	b.category = c
	return b
}

// Context attaches a key/value pair.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalises the error and hands it to the registered reporter.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	report(ee)
	return ee
}

// Reporter receives built errors, e.g. for forwarding to an error tracker.
type Reporter func(*EnhancedError)

var (
	reporter   Reporter
	reporterMu sync.RWMutex
)

// SetReporter installs the reporter; nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

// Validation and not-found errors are expected outcomes and never reported.
func report(ee *EnhancedError) {
	if ee.category == CategoryValidation || ee.category == CategoryNotFound {
		return
	}
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(ee)
	}
}

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error wrapping the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap returns the result of calling Unwrap on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
