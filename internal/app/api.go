package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/jaennil/guide_helper/backend/prefetch/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/usecase"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/config"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/telemetry"
)

// Serve runs the tile server until SIGINT or SIGTERM.
func Serve(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)
	defer l.Sync()

	l.Info("starting tile server", "store_root", cfg.Store.Root, "port", cfg.HTTP.Server.Port)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	var hot store.TileStore
	if cfg.Redis.Enabled {
		redisCache, err := store.NewRedisCache(store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			l.Fatal("failed to connect to redis", "error", err)
		}
		defer redisCache.Close()
		hot = redisCache
		l.Info("redis hot cache enabled", "addr", cfg.Redis.Addr)
	}

	tileUseCase := usecase.NewTileUseCase(store.NewFilesystemStore(cfg.Store.Root), hot, l)
	h := handler.NewHandler(tileUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	server := http_server.NewServer(cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}
