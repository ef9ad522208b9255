package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Duration
	}{
		{"string", `"30s"`, Duration(30 * time.Second)},
		{"compound string", `"1h30m"`, Duration(90 * time.Minute)},
		{"nanoseconds", `30000000000`, Duration(30 * time.Second)},
		{"null", `null`, Duration(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Duration(time.Minute)
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d)
		})
	}

	b, err := json.Marshal(Duration(10 * time.Minute))
	require.NoError(t, err)
	assert.JSONEq(t, `"10m0s"`, string(b))
}

func TestDuration_JSONInvalid(t *testing.T) {
	t.Parallel()
	var d Duration
	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	require.Error(t, json.Unmarshal([]byte(`true`), &d))
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var cfg struct {
		TTL Duration `yaml:"ttl"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("ttl: 5m\n"), &cfg))
	assert.Equal(t, Duration(5*time.Minute), cfg.TTL)

	require.NoError(t, yaml.Unmarshal([]byte("ttl: 1000\n"), &cfg))
	assert.Equal(t, Duration(1000), cfg.TTL)

	require.Error(t, yaml.Unmarshal([]byte("ttl: later\n"), &cfg))

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ttl: 1µs\n", string(out))
}

func TestDurationDecodeHook(t *testing.T) {
	t.Parallel()

	var out struct {
		Timeout Duration
		Plain   time.Duration
		List    []string
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DurationDecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(map[string]any{
		"timeout": "45s",
		"plain":   "2s",
		"list":    "a,b",
	}))
	assert.Equal(t, Duration(45*time.Second), out.Timeout)
	assert.Equal(t, 2*time.Second, out.Plain)
	assert.Equal(t, []string{"a", "b"}, out.List)
}
