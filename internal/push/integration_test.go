//go:build integration

package push

import (
	"context"
	"testing"
	"time"

	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTSource_FeedsService(t *testing.T) {
	ctx := context.Background()
	broker, err := containers.NewMosquittoContainer(ctx, "")
	require.NoError(t, err, "failed to start mosquitto")
	t.Cleanup(func() { _ = broker.Terminate(context.Background()) })

	svc, display, _ := newTestService(t, 0, 0)

	source := NewMQTTSource(MQTTConfig{
		Broker: broker.BrokerURL(),
		Topic:  "gopos/push",
	}, svc, logger.NewNop())
	require.NoError(t, source.Start(ctx))
	t.Cleanup(source.Stop)
	require.Eventually(t, source.IsConnected, 10*time.Second, 50*time.Millisecond)

	publisher, err := broker.CreateClient("publisher")
	require.NoError(t, err)
	t.Cleanup(func() { publisher.Disconnect(250) })

	// the subscription is made in the connect handler, so retry until the
	// broker routes a message to it
	require.Eventually(t, func() bool {
		token := publisher.Publish("gopos/push", 1, false, []byte(`{"title":"Order Ready","url":"/orders/5"}`))
		token.WaitTimeout(5 * time.Second)
		shown, _, _ := display.snapshot()
		return len(shown) > 0
	}, 20*time.Second, 500*time.Millisecond)

	items, _, err := svc.List(t.Context(), repository.NotificationFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "Order Ready", items[0].Title)
	assert.Equal(t, SourceMQTT, items[0].Source)
	assert.Equal(t, "/orders/5", items[0].Data.URL)
}

func TestShoutrrrNotifier_DeliversToNtfy(t *testing.T) {
	ctx := context.Background()
	ntfy, err := containers.NewNtfyContainer(ctx, "")
	require.NoError(t, err, "failed to start ntfy")
	t.Cleanup(func() { _ = ntfy.Terminate(context.Background()) })

	notifier := NewShoutrrrNotifier("ntfy", []string{ntfy.ShoutrrrURL("gopos-orders")}, 10*time.Second)
	require.NoError(t, notifier.ValidateConfig())

	n := Build(Payload{Title: "Order Ready", URL: "/orders/5"}, DefaultOptions(), SourceHTTP, time.Now())
	require.NoError(t, notifier.Notify(ctx, n))

	var messages []containers.NtfyMessage
	require.Eventually(t, func() bool {
		messages, err = ntfy.PollMessages(ctx, "gopos-orders")
		return err == nil && len(messages) == 1
	}, 10*time.Second, 200*time.Millisecond)

	assert.Equal(t, "Order Ready", messages[0].Title)
	assert.Contains(t, messages[0].Message, n.Body)
	assert.Contains(t, messages[0].Message, "/orders/5")
}
