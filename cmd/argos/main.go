// Package main provides the argos server binary: the WebSocket session
// coordinator and its HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/argos/internal/config"
	"github.com/cory-johannsen/argos/internal/content"
	"github.com/cory-johannsen/argos/internal/coordinator"
	"github.com/cory-johannsen/argos/internal/httpapi"
	"github.com/cory-johannsen/argos/internal/observability"
	"github.com/cory-johannsen/argos/internal/pin"
	"github.com/cory-johannsen/argos/internal/registry"
	"github.com/cory-johannsen/argos/internal/server"
	"github.com/cory-johannsen/argos/internal/storage/postgres"
	"github.com/cory-johannsen/argos/internal/storage/redis"
	"github.com/cory-johannsen/argos/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting argos",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("pin_digits", cfg.Coordinator.PinDigits),
		zap.String("content_backend", cfg.Content.Backend),
	)

	backend, err := openContentBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening content backend", zap.Error(err))
	}
	defer backend.close()

	pool, err := pin.NewPool(cfg.Coordinator.PinDigits, pin.NewCryptoSource())
	if err != nil {
		logger.Fatal("creating pin pool", zap.Error(err))
	}
	policy, err := coordinator.ParseHostDisconnectPolicy(cfg.Coordinator.HostDisconnect)
	if err != nil {
		logger.Fatal("parsing host disconnect policy", zap.Error(err))
	}

	writer := content.NewWriter(backend.store, cfg.Coordinator.ContentQueue, logger.Named("content"))
	coord := coordinator.New(coordinator.Options{
		InactivityWindow:   cfg.Coordinator.InactivityWindow,
		HostDisconnect:     policy,
		EnforceTaskRunning: cfg.Coordinator.EnforceTaskRunning,
		SecretLength:       cfg.Coordinator.SecretLength,
		MaxMessageBytes:    int(cfg.Transport.MaxMessageBytes),
	}, pool, registry.New(), writer, logger.Named("coordinator"))

	acceptor := transport.NewAcceptor(cfg.Transport, coord, logger.Named("transport"))
	router := httpapi.NewRouter(acceptor, coord, backend.store, httpapi.Options{
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Transport.AllowedOrigins,
		Checkers:       backend.checkers,
	}, logger.Named("http"))
	httpSvc := server.NewHTTPService(cfg.Server.Addr(), router, cfg.Server.ShutdownTimeout, logger.Named("http"))

	// Stopped in reverse: sockets close before the listener, and the writer
	// drains last so every accepted submission is persisted.
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("content-writer", writer)
	if cfg.Reaper.Schedule != "" {
		reaper, err := coordinator.NewReaper(cfg.Reaper.Schedule, coord, logger.Named("reaper"))
		if err != nil {
			logger.Fatal("creating reaper", zap.Error(err))
		}
		lifecycle.Add("reaper", reaper)
	}
	lifecycle.Add("http", httpSvc)
	lifecycle.Add("websocket", acceptor)

	logger.Info("argos ready", zap.Duration("startup", time.Since(start)))
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("argos stopped with error", zap.Error(err))
	}
}

// contentBackend is the configured content store with its health probes and
// cleanup.
type contentBackend struct {
	store    content.Store
	checkers map[string]httpapi.Checker
	close    func()
}

func openContentBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*contentBackend, error) {
	switch cfg.Content.Backend {
	case "none":
		return &contentBackend{store: content.NopStore{}, close: func() {}}, nil

	case "disk":
		store, err := content.NewDiskStore(cfg.Content.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("content stored on disk", zap.String("dir", store.Dir()))
		return &contentBackend{store: store, close: func() {}}, nil

	case "postgres":
		dbStart := time.Now()
		db, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Bool("auto_migrate", cfg.Database.AutoMigrate),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		return &contentBackend{
			store:    postgres.NewContentRepository(db.DB()),
			checkers: map[string]httpapi.Checker{"postgres": db},
			close:    db.Close,
		}, nil

	case "redis":
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		store := redis.NewContentStore(client, cfg.Redis.TTL)
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
		return &contentBackend{
			store:    store,
			checkers: map[string]httpapi.Checker{"redis": store},
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("closing redis", zap.Error(err))
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown content backend %q", cfg.Content.Backend)
}
