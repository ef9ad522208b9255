// Package conf loads and validates the edge settings.
package conf

import "sync"

// Settings is the complete edge configuration.
type Settings struct {
	Main     MainSettings     `mapstructure:"main" json:"main" yaml:"main"`
	Server   ServerSettings   `mapstructure:"server" json:"server" yaml:"server"`
	Origin   OriginSettings   `mapstructure:"origin" json:"origin" yaml:"origin"`
	Cache    CacheSettings    `mapstructure:"cache" json:"cache" yaml:"cache"`
	Database DatabaseSettings `mapstructure:"database" json:"database" yaml:"database"`
	Push     PushSettings     `mapstructure:"push" json:"push" yaml:"push"`
	Sentry   SentrySettings   `mapstructure:"sentry" json:"sentry" yaml:"sentry"`
	Metrics  MetricsSettings  `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// MainSettings holds process-wide options.
type MainSettings struct {
	Name     string `mapstructure:"name" json:"name" yaml:"name"`
	LogLevel string `mapstructure:"loglevel" json:"logLevel" yaml:"loglevel"`
	TimeZone string `mapstructure:"timezone" json:"timeZone" yaml:"timezone"`
}

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Listen string `mapstructure:"listen" json:"listen" yaml:"listen"`
	// PublicOrigin is the scheme://host[:port] browsers use to reach the
	// edge. Requests for any other origin are treated as cross-origin.
	PublicOrigin    string   `mapstructure:"publicorigin" json:"publicOrigin" yaml:"publicorigin"`
	ShutdownTimeout Duration `mapstructure:"shutdowntimeout" json:"shutdownTimeout" yaml:"shutdowntimeout"`
}

// OriginSettings describes the upstream "network".
type OriginSettings struct {
	URL string `mapstructure:"url" json:"url" yaml:"url"`
	// Timeout bounds a single upstream fetch. Zero leaves it to the
	// transport's own dial and read timeouts.
	Timeout Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// CacheSettings configures the offline cache manager.
type CacheSettings struct {
	// Name is the version tag of the current cache store.
	Name        string   `mapstructure:"name" json:"name" yaml:"name"`
	Manifest    []string `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
	Fallback    string   `mapstructure:"fallback" json:"fallback" yaml:"fallback"`
	SkipWaiting bool     `mapstructure:"skipwaiting" json:"skipWaiting" yaml:"skipwaiting"`

	// InstallConcurrency bounds parallel manifest downloads.
	InstallConcurrency int      `mapstructure:"installconcurrency" json:"installConcurrency" yaml:"installconcurrency"`
	MaxEntrySize       int64    `mapstructure:"maxentrysize" json:"maxEntrySize" yaml:"maxentrysize"`
	MemoryTTL          Duration `mapstructure:"memoryttl" json:"memoryTTL" yaml:"memoryttl"`
}

// DatabaseSettings selects the persistence backend.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver" json:"driver" yaml:"driver"` // sqlite or mysql
	Path   string `mapstructure:"path" json:"path" yaml:"path"`       // sqlite file
	DSN    string `mapstructure:"dsn" json:"dsn" yaml:"dsn"`          // mysql DSN
}

// PushSettings configures notification handling.
type PushSettings struct {
	Enabled      bool         `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	DefaultTitle string       `mapstructure:"defaulttitle" json:"defaultTitle" yaml:"defaulttitle"`
	DefaultBody  string       `mapstructure:"defaultbody" json:"defaultBody" yaml:"defaultbody"`
	DefaultURL   string       `mapstructure:"defaulturl" json:"defaultURL" yaml:"defaulturl"`
	Icon         string       `mapstructure:"icon" json:"icon" yaml:"icon"`
	Badge        string       `mapstructure:"badge" json:"badge" yaml:"badge"`
	Vibrate      []int        `mapstructure:"vibrate" json:"vibrate" yaml:"vibrate"`
	RateLimit    float64      `mapstructure:"ratelimit" json:"rateLimit" yaml:"ratelimit"` // payloads per second
	Burst        int          `mapstructure:"burst" json:"burst" yaml:"burst"`
	Targets      []string     `mapstructure:"targets" json:"targets" yaml:"targets"` // shoutrrr URLs
	Timeout      Duration     `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	MQTT         MQTTSettings `mapstructure:"mqtt" json:"mqtt" yaml:"mqtt"`
}

// MQTTSettings configures the optional MQTT push source.
type MQTTSettings struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" json:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" json:"topic" yaml:"topic"`
	ClientID string `mapstructure:"clientid" json:"clientID" yaml:"clientid"`
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	Password string `mapstructure:"password" json:"-" yaml:"password"`
}

// SentrySettings enables error reporting.
type SentrySettings struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	DSN         string `mapstructure:"dsn" json:"-" yaml:"dsn"`
	Environment string `mapstructure:"environment" json:"environment" yaml:"environment"`
}

// MetricsSettings exposes prometheus metrics.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" json:"path" yaml:"path"`
}

var (
	settingsInstance *Settings
	settingsMu       sync.RWMutex
)

// SetSettings installs the process-wide settings.
func SetSettings(s *Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsInstance = s
}

// GetSettings returns the process-wide settings, or nil before Load.
func GetSettings() *Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsInstance
}
