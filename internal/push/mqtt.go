package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gopos/gopos-edge/internal/errors"
	"github.com/gopos/gopos-edge/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQoS            = 1
	mqttQuiesceMillis  = 250
)

// Handler consumes raw push messages.
type Handler interface {
	Handle(ctx context.Context, data []byte, source string) (*Notification, error)
}

// MQTTConfig addresses the broker and topic push messages are read from.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// MQTTSource subscribes to a topic and feeds every message to a Handler.
type MQTTSource struct {
	cfg     MQTTConfig
	handler Handler
	log     logger.Logger

	mu     sync.Mutex
	client mqtt.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// NewMQTTSource creates a source; call Start to connect.
func NewMQTTSource(cfg MQTTConfig, h Handler, log logger.Logger) *MQTTSource {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("gopos-edge-%d", time.Now().UnixNano())
	}
	return &MQTTSource{cfg: cfg, handler: h, log: log.Module("push.mqtt")}
}

// Start connects and subscribes. The subscription is renewed on every
// reconnect.
func (m *MQTTSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Broker).
		SetClientID(m.cfg.ClientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warn("mqtt connection lost", logger.Error(err))
		})
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		m.cancel()
		return m.mqttError(fmt.Errorf("timed out connecting to %s", m.cfg.Broker))
	}
	if err := token.Error(); err != nil {
		m.cancel()
		return m.mqttError(err)
	}
	m.client = client
	return nil
}

func (m *MQTTSource) onConnect(c mqtt.Client) {
	token := c.Subscribe(m.cfg.Topic, mqttQoS, m.onMessage)
	if !token.WaitTimeout(mqttConnectTimeout) || token.Error() != nil {
		m.log.Error("mqtt subscribe failed",
			logger.String("topic", m.cfg.Topic),
			logger.Error(token.Error()))
		return
	}
	m.log.Info("subscribed to push topic",
		logger.String("broker", m.cfg.Broker),
		logger.String("topic", m.cfg.Topic))
}

func (m *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	n, err := m.handler.Handle(m.ctx, msg.Payload(), SourceMQTT)
	if err != nil {
		m.log.Warn("mqtt push rejected", logger.String("topic", msg.Topic()), logger.Error(err))
		return
	}
	m.log.Debug("mqtt push accepted", logger.String("notification_id", n.ID))
}

// IsConnected reports whether the broker connection is up.
func (m *MQTTSource) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsConnected()
}

// Stop unsubscribes and disconnects.
func (m *MQTTSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return
	}
	if m.client.IsConnected() {
		m.client.Unsubscribe(m.cfg.Topic).WaitTimeout(time.Second)
	}
	m.client.Disconnect(mqttQuiesceMillis)
	m.client = nil
	m.cancel()
}

func (m *MQTTSource) mqttError(err error) error {
	return errors.New(err).
		Component("push").
		Category(errors.CategoryNetwork).
		Context("broker", m.cfg.Broker).
		Context("topic", m.cfg.Topic).
		Build()
}
