package conf

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GOPOS_CACHE_NAME.
const EnvPrefix = "GOPOS"

// Load reads settings from path (optional; a missing file means defaults),
// overlays GOPOS_* environment variables, validates the result and installs
// it as the process-wide settings.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	SetSettings(settings)
	return settings, nil
}
