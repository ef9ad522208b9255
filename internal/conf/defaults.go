package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultManifest is the asset list pre-cached on install.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/index.css",
	"/index.js",
	"/dashboard.html",
	"/dashboard.css",
	"/dashboard.js",
	"/Assets/favicon.svg",
	"/Assets/icon-192.svg",
	"/Assets/apple-touch-icon.svg",
}

const (
	DefaultCacheName    = "gopos-v1"
	DefaultFallback     = "/index.html"
	DefaultPushTitle    = "GOPOS Notification"
	DefaultPushBody     = "Ada pesan baru dari GOPOS"
	DefaultPushURL      = "/"
	DefaultPushIcon     = "/Assets/icon-192.svg"
	DefaultPushBadge    = "/Assets/favicon.svg"
	defaultMaxEntrySize = 10 << 20
)

// DefaultVibrate is the notification vibration pattern in milliseconds.
var DefaultVibrate = []int{200, 100, 200}

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "gopos-edge")
	v.SetDefault("main.loglevel", "info")
	v.SetDefault("main.timezone", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.publicorigin", "http://localhost:8080")
	v.SetDefault("server.shutdowntimeout", "10s")

	v.SetDefault("origin.url", "http://localhost:3000")
	v.SetDefault("origin.timeout", "0s")

	v.SetDefault("cache.name", DefaultCacheName)
	v.SetDefault("cache.manifest", DefaultManifest)
	v.SetDefault("cache.fallback", DefaultFallback)
	v.SetDefault("cache.skipwaiting", true)
	v.SetDefault("cache.installconcurrency", 4)
	v.SetDefault("cache.maxentrysize", defaultMaxEntrySize)
	v.SetDefault("cache.memoryttl", (10 * time.Minute).String())

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "gopos-edge.db")

	v.SetDefault("push.enabled", true)
	v.SetDefault("push.defaulttitle", DefaultPushTitle)
	v.SetDefault("push.defaultbody", DefaultPushBody)
	v.SetDefault("push.defaulturl", DefaultPushURL)
	v.SetDefault("push.icon", DefaultPushIcon)
	v.SetDefault("push.badge", DefaultPushBadge)
	v.SetDefault("push.vibrate", DefaultVibrate)
	v.SetDefault("push.ratelimit", 5.0)
	v.SetDefault("push.burst", 10)
	v.SetDefault("push.timeout", "30s")
	v.SetDefault("push.mqtt.enabled", false)
	v.SetDefault("push.mqtt.topic", "gopos/push")
	v.SetDefault("push.mqtt.clientid", "gopos-edge")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
