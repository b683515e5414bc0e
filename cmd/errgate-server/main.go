package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/nats-io/nats.go"
	"github.com/triage-ai/errgate/internal/api"
	"github.com/triage-ai/errgate/internal/auth"
	"github.com/triage-ai/errgate/internal/chread"
	"github.com/triage-ai/errgate/internal/config"
	"github.com/triage-ai/errgate/internal/delivery"
	"github.com/triage-ai/errgate/internal/events"
	"github.com/triage-ai/errgate/internal/gate"
	"github.com/triage-ai/errgate/internal/logging"
	"github.com/triage-ai/errgate/internal/registry"
	"github.com/triage-ai/errgate/internal/storage"
	"github.com/triage-ai/errgate/internal/store"
	"go.uber.org/zap"
)

// deliverySource tags events written by the HTTP ingest path.
const deliverySource = "http"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger not built yet.
		panic(err)
	}

	logger := logging.MustNew(cfg.LogLevel, "stdout")
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting errgate server",
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("throttle_interval", cfg.Gate.ThrottleInterval),
		zap.Int("max_trace_lines", cfg.Gate.MaxTraceLines),
		zap.Strings("ignored_prefixes", cfg.Gate.IgnoredPrefixes),
		zap.String("config_file", cfg.ConfigFile),
	)

	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	// Postgres pool
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	// Storage: ClickHouse, or LogWriter as fallback
	var writer storage.EventWriter
	if cfg.ClickHouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for events/summary HTTP endpoints)
	var reader api.EventReader
	if cfg.ClickHouseDSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	// NATS publisher (optional)
	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
			}),
		)
		if err != nil {
			logger.Warn("nats connection failed, forwarded events will not be published", zap.Error(err))
		} else {
			publisher = natsPub
			logger.Info("nats publisher connected", zap.String("subject", cfg.NATSSubject))
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("nats close failed", zap.Error(err))
		}
	}()

	// Gates: inactive until the listener is up.
	host := gate.NewLifecycle(false)
	gates := registry.New(cfg.Gate, pgStore,
		func(projectID string) gate.Handler {
			return delivery.NewSink(projectID, deliverySource, writer, publisher, cfg.NATSSubject, logger)
		},
		host, logger,
	)

	authenticator := auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
		Store:    pgStore,
		CacheTTL: cfg.AuthCacheTTL,
		Logger:   logger,
	})

	deps := &api.Dependencies{
		Store:    pgStore,
		Auth:     authenticator,
		Gates:    gates,
		Host:     host,
		Reader:   reader,
		Defaults: cfg.Gate,
		Logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	host.SetActive(true)

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Stop forwarding before draining in-flight requests.
	host.SetActive(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("errgate server stopped")
}
