package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"smartcoop/server/internal/command"
	"smartcoop/server/internal/config"
	"smartcoop/server/internal/mqttclient"
	"smartcoop/server/internal/notify"
	"smartcoop/server/internal/store"
	"smartcoop/server/internal/telemetry"
)

// telemetryTopicFilter matches the data topic of every device.
const telemetryTopicFilter = "devices/+/data"

// App wires together the smartcoop services and manages their lifecycle.
type App struct {
	cfg    config.Config
	logger *slog.Logger
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts all configured services and blocks until the context is cancelled or an error occurs.
func (a *App) Run(ctx context.Context) error {
	db, err := store.Open(ctx, a.cfg.DatabaseURL, a.cfg.RedisAddr, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			a.logger.Error("close store", "error", cerr)
		}
	}()

	notifier := notify.NewWhatsApp(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioWhatsAppFrom, a.logger)

	loc, err := time.LoadLocation(a.cfg.TimeZone)
	if err != nil {
		a.logger.Warn("unknown timezone, using UTC", "timezone", a.cfg.TimeZone)
		loc = time.UTC
	}

	broker, err := mqttclient.Connect(mqttclient.Options{
		BrokerURL: a.cfg.MQTTBrokerURL,
		Username:  a.cfg.MQTTUsername,
		Password:  a.cfg.MQTTPassword,
		ClientID:  a.cfg.MQTTClientID,
	}, a.logger)
	if err != nil {
		return err
	}
	defer broker.Disconnect()

	pipeline := telemetry.NewPipeline(db, db, notifier, a.logger)
	interpreter := command.NewInterpreter(db, db, notifier, loc, a.logger)
	schedules := NewScheduleSynchronizer(db, broker, a.logger)

	if err := broker.Subscribe(telemetryTopicFilter, func(topic string, payload []byte) {
		pipeline.HandleMessage(context.Background(), topic, payload)
	}); err != nil {
		return err
	}

	h := &handlers{
		devices:     db,
		schedules:   schedules,
		interpreter: interpreter,
		logger:      a.logger,
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler: cors.AllowAll().Handler(h.routes()),
	}

	httpErrCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		a.logger.Info("http server stopped")
		return nil
	case err := <-httpErrCh:
		return err
	}
}
