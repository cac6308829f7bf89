// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"spotit/internal/adapter/auth"
	"spotit/internal/adapter/events"
	"spotit/internal/adapter/presence"
	"spotit/internal/adapter/storage"
	"spotit/internal/config"
	"spotit/internal/server"
	"spotit/internal/server/handlers"
	"spotit/internal/service/reconcile"
	"spotit/internal/service/session"
)

func main() {
	// A missing .env file is fine; the environment wins
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := storage.Migrate(ctx, db); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = initNATS(cfg.NATS, logger)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()
	} else {
		logger.Warn("NATS disabled; sink messages are only logged")
	}

	var tracker handlers.Presence
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable; friends show as offline", "error", err)
		}
		tracker = presence.NewRedisTracker(rdb, presence.Config{
			OnlineWindow: cfg.Presence.OnlineWindow,
			Retention:    cfg.Presence.Retention,
		})
	}

	// Initialize storage adapters
	spotStore := storage.NewSpotStore(db, cfg.Spot.FetchLimit, logger.With("component", "spot_store"))
	friendStore := storage.NewFriendStore(db)
	accountStore := storage.NewAccountStore(db)

	// Initialize services
	tokens := auth.NewJWTManager(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer)
	accounts := auth.NewService(accountStore, tokens, cfg.Auth.TokenExpiry, cfg.Auth.BcryptCost)

	sink := events.FanOut{events.NewLogSink(logger.With("component", "sink"))}
	var publisher session.Publisher
	if natsConn != nil {
		sink = append(sink, events.NewNATSSink(natsConn, logger))
		publisher = events.NewPublisher(natsConn, cfg.NATS.EventsTopic)
	}

	sessions := session.NewManager(
		spotStore,
		friendStore,
		sink,
		publisher,
		session.Config{
			PollInterval: cfg.Spot.PollInterval,
			SyncInterval: cfg.Spot.SyncInterval,
			IdleTimeout:  cfg.Spot.SessionIdle,
			Reconcile: reconcile.Config{
				FetchAttempts: uint(cfg.Spot.FetchAttempts),
				RetryDelay:    cfg.Spot.RetryDelay,
				RetryMaxDelay: cfg.Spot.RetryMaxDelay,
			},
		},
		logger.With("component", "sessions"),
	)

	// Spot changes made through any instance make every session stale
	if natsConn != nil {
		sub, err := events.Subscribe(natsConn, cfg.NATS.EventsTopic, logger, func(event session.Event) {
			sessions.InvalidateAll()
		})
		if err != nil {
			logger.Error("Failed to subscribe to spot events", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
	}

	go evictIdleSessions(ctx, sessions, cfg.Spot.SessionIdle, logger)

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, server.Dependencies{
		Accounts: accounts,
		Tokens:   tokens,
		Sessions: sessions,
		Friends:  friendStore,
		Presence: tracker,
		NATS:     natsConn,
		Radius: handlers.RadiusBounds{
			Default: cfg.Spot.DefaultRadius,
			Min:     cfg.Spot.MinRadius,
			Max:     cfg.Spot.MaxRadius,
		},
		Logger: logger,
	})

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("Shutdown signal received")
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop session pollers
	if err := sessions.Stop(shutdownCtx); err != nil {
		logger.Error("Session manager shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}

// newLogger builds a JSON logger in production and a text logger otherwise
func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Environment, "production") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}

// evictIdleSessions drops sessions that stopped making requests
func evictIdleSessions(ctx context.Context, sessions *session.Manager, idle time.Duration, logger *slog.Logger) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.EvictIdle(ctx); n > 0 {
				logger.Info("Evicted idle sessions", "count", n, "remaining", sessions.Count())
			}
		}
	}
}
