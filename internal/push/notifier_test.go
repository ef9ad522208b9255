package push

import (
	"testing"
	"time"

	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoutrrrNotifier_ValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		urls    []string
		wantErr bool
	}{
		{"no urls", nil, true},
		{"unknown service", []string{"carrierpigeon://coop/1"}, true},
		{"ntfy", []string{"ntfy://ntfy.example.com/gopos-orders"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := NewShoutrrrNotifier("external", tt.urls, time.Second)
			err := n.ValidateConfig()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "external", n.Name())
		})
	}
}

func TestDisplayNotifier(t *testing.T) {
	t.Parallel()
	display := &fakeDisplay{}
	n := NewDisplayNotifier(display, logger.NewNop())

	require.NoError(t, n.Notify(t.Context(), &Notification{ID: "n1"}))
	shown, _, _ := display.snapshot()
	assert.Equal(t, []string{"n1"}, shown)
	assert.Equal(t, "clients", n.Name())
}
