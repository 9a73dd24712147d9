package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/controller"
	"github.com/groovify/beatsync/internal/logging"
	"github.com/groovify/beatsync/internal/repository/connection/inmemory"
	roomRedis "github.com/groovify/beatsync/internal/repository/room/redis"
	"github.com/groovify/beatsync/internal/service/room"
	"github.com/groovify/beatsync/pkg/redisclient"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	LogLevel      string        `json:"log_level"`
	LogFormat     string        `json:"log_format"`
	MembersLimit  int           `json:"members_limit"`
	QueueLimit    int           `json:"queue_limit"`
	RoomExp       time.Duration `json:"room_exp"`
	MaxStartDrift time.Duration `json:"max_start_drift"`
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.RoomExp <= 0 {
		return fmt.Errorf("room expiration must be positive")
	}
	if cfg.MaxStartDrift <= 0 {
		return fmt.Errorf("max start drift must be positive")
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}

type server interface {
	GetMux() http.Handler
	Shutdown(ctx context.Context) error
}

func newServer(rc *redis.Client, cfg *AppConfig, clk clock.Clock, logger zerolog.Logger) server {
	roomRepo := roomRedis.NewRepo(rc, logger)
	connectionRepo := inmemory.NewRepo(logger)
	roomService := room.NewService(roomRepo, connectionRepo, clk, logger, room.Config{
		MembersLimit:  cfg.MembersLimit,
		QueueLimit:    cfg.QueueLimit,
		RoomExp:       cfg.RoomExp,
		MaxStartDrift: cfg.MaxStartDrift,
	})

	return controller.NewController(roomService, clk, logger)
}

// Run serves until ctx is done or the process receives a termination
// signal, then shuts down gracefully.
func Run(ctx context.Context, cfg *AppConfig) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	ctrl := newServer(rc, cfg, clock.New(), logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           ctrl.GetMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", httpServer.Addr).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to close websocket connections: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
