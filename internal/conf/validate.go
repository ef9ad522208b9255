package conf

import (
	"net/url"
	"strings"

	"github.com/gopos/gopos-edge/internal/errors"
)

// Validate checks the settings for values the edge cannot run with.
func (s *Settings) Validate() error {
	if _, err := parseOrigin("server.publicorigin", s.Server.PublicOrigin); err != nil {
		return err
	}
	if _, err := parseOrigin("origin.url", s.Origin.URL); err != nil {
		return err
	}
	if strings.TrimSpace(s.Cache.Name) == "" {
		return validationError("cache.name is required")
	}
	if len(s.Cache.Manifest) == 0 {
		return validationError("cache.manifest must list at least one asset")
	}
	for _, entry := range s.Cache.Manifest {
		if !strings.HasPrefix(entry, "/") || strings.HasPrefix(entry, "//") {
			return validationError("cache.manifest entry %q must be a same-origin absolute path", entry)
		}
	}
	if s.Cache.Fallback != "" && !strings.HasPrefix(s.Cache.Fallback, "/") {
		return validationError("cache.fallback %q must be an absolute path", s.Cache.Fallback)
	}
	if s.Cache.InstallConcurrency < 1 {
		return validationError("cache.installconcurrency must be at least 1")
	}
	switch s.Database.Driver {
	case "sqlite":
		if s.Database.Path == "" {
			return validationError("database.path is required for sqlite")
		}
	case "mysql":
		if s.Database.DSN == "" {
			return validationError("database.dsn is required for mysql")
		}
	default:
		return validationError("unsupported database.driver %q (want sqlite or mysql)", s.Database.Driver)
	}
	if s.Push.MQTT.Enabled && s.Push.MQTT.Broker == "" {
		return validationError("push.mqtt.broker is required when push.mqtt.enabled is set")
	}
	if u := s.Push.DefaultURL; u != "" && (!strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\")) {
		return validationError("push.defaulturl must be a path on the public origin, got %q", u)
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return validationError("sentry.dsn is required when sentry.enabled is set")
	}
	return nil
}

// parseOrigin requires an absolute http(s) URL and returns it.
func parseOrigin(key, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, validationError("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return u, nil
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}
