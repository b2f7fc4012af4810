// Package main provides the chat server binary: TCP and WebSocket listeners
// in front of one protocol engine, plus the operator and metrics endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tcpchat/internal/admin"
	"github.com/cory-johannsen/tcpchat/internal/chat"
	"github.com/cory-johannsen/tcpchat/internal/config"
	"github.com/cory-johannsen/tcpchat/internal/content"
	"github.com/cory-johannsen/tcpchat/internal/frontend/handlers"
	"github.com/cory-johannsen/tcpchat/internal/frontend/telnet"
	"github.com/cory-johannsen/tcpchat/internal/frontend/websocket"
	"github.com/cory-johannsen/tcpchat/internal/observability"
	"github.com/cory-johannsen/tcpchat/internal/scripting"
	"github.com/cory-johannsen/tcpchat/internal/server"
	"github.com/cory-johannsen/tcpchat/internal/storage/postgres"
	"github.com/cory-johannsen/tcpchat/internal/storage/sqlite"
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

	logger.Info("starting chat server",
		zap.String("listener", cfg.Listener.Addr()),
		zap.String("database", cfg.Database.Driver),
	)

	metrics := observability.NewMetrics()
	audit := observability.NewAuditLog(logger, metrics, cfg.Chat.AuditBuffer)

	lifecycle := server.NewLifecycle(logger)

	store, closeStore, err := openStore(ctx, cfg.Database, logger, lifecycle)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}

	messages := content.Default()
	if cfg.Chat.MessagesFile != "" {
		messages, err = content.Load(cfg.Chat.MessagesFile)
		if err != nil {
			logger.Fatal("loading messages", zap.Error(err))
		}
	}

	opts := chat.Options{
		Audit:            audit,
		Metrics:          metrics,
		Messages:         &messages,
		MaxLoginAttempts: cfg.Chat.MaxLoginAttempts,
		OutboxSize:       cfg.Chat.OutboxSize,
	}
	var filter *scripting.Filter
	if cfg.Chat.FilterScript != "" {
		filter, err = scripting.LoadFilter(cfg.Chat.FilterScript, cfg.Chat.ScriptInstructionLimit, logger.Named("filter"))
		if err != nil {
			logger.Fatal("loading filter script", zap.Error(err))
		}
		opts.Filter = filter
		logger.Info("message filter loaded", zap.String("script", cfg.Chat.FilterScript))
	}

	engine := chat.NewEngine(store, logger.Named("chat"), opts)
	handler := handlers.NewSessionHandler(engine, logger)

	acceptor := telnet.NewAcceptor(cfg.Listener, handler, logger.Named("telnet"))
	lifecycle.Add("telnet", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	if cfg.WebSocket.Enabled {
		lifecycle.Add("websocket", websocket.NewServer(cfg.WebSocket, cfg.Listener, handler, logger.Named("websocket")))
	}
	if cfg.Admin.Enabled {
		lifecycle.Add("admin", admin.NewServer(cfg.Admin, engine, logger.Named("admin")))
	}
	if cfg.Metrics.Enabled {
		lifecycle.Add("metrics", observability.NewMetricsServer(cfg.Metrics.Addr(), metrics, logger.Named("metrics")))
	}

	lifecycle.OnShutdown(func() {
		if filter != nil {
			filter.Close()
		}
		audit.Close()
		closeStore()
	})

	logger.Info("chat server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStore returns the configured credential store and its close function.
// The postgres backend also registers a health-check service.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, lifecycle *server.Lifecycle) (chat.Store, func(), error) {
	dbStart := time.Now()
	switch cfg.Driver {
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database opened",
			zap.String("path", cfg.SQLitePath),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("closing database", zap.Error(err))
			}
		}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		stop := make(chan struct{})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func() { close(stop) },
		})
		return postgres.NewStore(pool.DB()), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
