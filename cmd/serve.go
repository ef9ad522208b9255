package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gopos/gopos-edge/internal/api"
	"github.com/gopos/gopos-edge/internal/clients"
	"github.com/gopos/gopos-edge/internal/datastore/v2/repository"
	"github.com/gopos/gopos-edge/internal/logger"
	"github.com/gopos/gopos-edge/internal/observability/metrics"
	"github.com/gopos/gopos-edge/internal/push"
	"github.com/gopos/gopos-edge/internal/telemetry"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge server",
	Long: `Starts the HTTP edge: request interception, the admin API under
/api/v2, the page agent script and the metrics endpoint. The configured
cache version is installed in the background on startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	e, err := bootstrap()
	if err != nil {
		return err
	}
	defer e.Close()
	settings, log := e.settings, e.log

	reporter, err := telemetry.New(settings.Sentry, Version, log)
	if err != nil {
		return fmt.Errorf("configuring sentry: %w", err)
	}
	reporter.Install()
	defer reporter.Close(settings.Server.ShutdownTimeout.Std())

	var m *metrics.Metrics
	var cacheMetrics *metrics.CacheMetrics
	var pushMetrics *metrics.PushMetrics
	if settings.Metrics.Enabled {
		if m, err = metrics.New(); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		cacheMetrics, pushMetrics = m.Cache, m.Push
	}

	hub := clients.NewHub(log)
	defer hub.Close()

	storage := e.storage()
	reg, err := e.registration(storage, hub, cacheMetrics)
	if err != nil {
		return err
	}
	if err := restore(ctx, reg); err != nil {
		return err
	}

	version := e.configuredVersion()
	reg.Tracker().WaitUntil("install "+version.CacheName, func(ctx context.Context) error {
		_, err := reg.Register(ctx, version)
		return err
	})

	var pushService *push.Service
	if settings.Push.Enabled {
		bus := push.NewBus(settings.Push.Timeout.Std(), pushMetrics, log)
		defer bus.Stop()
		bus.Subscribe(push.NewDisplayNotifier(hub, log))

		external, err := e.externalNotifier()
		if err != nil {
			return fmt.Errorf("configuring push targets: %w", err)
		}
		if external != nil {
			bus.Subscribe(external)
		}

		push.Initialize(&push.ServiceConfig{
			Options:    push.OptionsFromSettings(&settings.Push),
			RateLimit:  settings.Push.RateLimit,
			Burst:      settings.Push.Burst,
			Repository: repository.NewNotificationRepository(e.db.DB()),
			Bus:        bus,
			Display:    hub,
			Opener:     hub,
			Metrics:    pushMetrics,
			Logger:     log,
		})
		pushService = push.GetService()

		if settings.Push.MQTT.Enabled {
			source := push.NewMQTTSource(push.MQTTConfig{
				Broker:   settings.Push.MQTT.Broker,
				Topic:    settings.Push.MQTT.Topic,
				ClientID: settings.Push.MQTT.ClientID,
				Username: settings.Push.MQTT.Username,
				Password: settings.Push.MQTT.Password,
			}, pushService, log)
			// HTTP ingestion keeps working while the broker is down
			if err := source.Start(ctx); err != nil {
				log.Error("mqtt push source unavailable", logger.Error(err))
			} else {
				defer source.Stop()
			}
		}
	}

	srv := api.New(api.Config{
		Settings:     settings,
		Registration: reg,
		Versions:     e.versions(),
		Storage:      storage,
		Hub:          hub,
		Push:         pushService,
		Metrics:      m,
		Logger:       log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", logger.Error(err))
	}
	// waits for the startup install and any cache writes still running
	if err := reg.Close(shutdownCtx); err != nil {
		log.Warn("background work did not finish", logger.Error(err))
	}
	return serveErr
}
