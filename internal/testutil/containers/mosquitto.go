//go:build integration

//nolint:misspell // Mosquitto is the official Eclipse project name
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mosquittoConfig = `listener 1883
allow_anonymous true
`

// MosquittoContainer wraps a testcontainers Eclipse Mosquitto broker that
// accepts anonymous clients.
type MosquittoContainer struct {
	container testcontainers.Container
	brokerURL string
}

// NewMosquittoContainer starts a broker. An empty tag means "2.0".
func NewMosquittoContainer(ctx context.Context, imageTag string) (*MosquittoContainer, error) {
	if imageTag == "" {
		imageTag = "2.0"
	}
	req := testcontainers.ContainerRequest{
		Image:        "eclipse-mosquitto:" + imageTag,
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		Files: []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(mosquittoConfig),
			ContainerFilePath: "/mosquitto-no-auth.conf",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForLog("mosquitto version").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Mosquitto container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mappedPort, err := container.MappedPort(ctx, "1883/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	mc := &MosquittoContainer{
		container: container,
		brokerURL: "tcp://" + net.JoinHostPort(host, strconv.Itoa(mappedPort.Int())),
	}
	if err := mc.HealthCheck(); err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return mc, nil
}

// BrokerURL returns the broker address, e.g. "tcp://localhost:32768".
func (c *MosquittoContainer) BrokerURL() string {
	return c.brokerURL
}

// HealthCheck connects and disconnects a throwaway client.
func (c *MosquittoContainer) HealthCheck() error {
	client, err := c.CreateClient("healthcheck")
	if err != nil {
		return err
	}
	client.Disconnect(250)
	return nil
}

// CreateClient returns a client connected to the broker. The caller
// disconnects it.
func (c *MosquittoContainer) CreateClient(clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect timeout for client %s", clientID)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}
	return client, nil
}

// Terminate stops and removes the container.
func (c *MosquittoContainer) Terminate(ctx context.Context) error {
	if c.container == nil {
		return nil
	}
	if err := c.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}
