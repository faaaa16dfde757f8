package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kinoroom/server/internal/controller"
	"github.com/kinoroom/server/internal/outbox"
	"github.com/kinoroom/server/internal/relay"
	"github.com/kinoroom/server/internal/repository/connection/inmemory"
	"github.com/kinoroom/server/internal/repository/room/redis"
	"github.com/kinoroom/server/internal/service/room"
	"github.com/kinoroom/server/internal/uow"
	"github.com/kinoroom/server/pkg/ctxlogger"
	"github.com/kinoroom/server/pkg/redisclient"
)

type AppConfig struct {
	Secret          string        `json:"-"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	InstanceId      string        `json:"instance_id"`
	RoomTTL         time.Duration `json:"room_ttl"`
	CooldownSeconds int           `json:"cooldown_seconds"`
	RedisHost       string        `json:"redis_host"`
	RedisPort       int           `json:"redis_port"`
	RedisPassword   string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret is required")
	}
	if cfg.InstanceId == "" {
		return fmt.Errorf("instance id is required")
	}
	if cfg.RoomTTL < time.Minute {
		return fmt.Errorf("room ttl must be at least a minute")
	}
	if cfg.CooldownSeconds < 1 {
		return fmt.Errorf("cooldown must be at least a second")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	roomRepo := redis.NewRepo(rc, logger, cfg.RoomTTL)
	connRepo := inmemory.NewRepo(logger)

	dispatcher := uow.NewDispatcher(logger)
	uowFactory := uow.NewFactory(roomRepo, dispatcher, logger)

	roomService := room.NewService(
		uowFactory,
		connRepo,
		roomRepo,
		cfg.Secret,
		time.Duration(cfg.CooldownSeconds)*time.Second,
		logger,
	)
	ctrl := controller.NewController(roomService, connRepo, logger)

	// Registration order is dispatch order: staging runs before-save,
	// local pushes run after-save.
	publisher := outbox.NewPublisher(cfg.InstanceId)
	dispatcher.Subscribe(publisher.HandleEvent)
	dispatcher.Subscribe(ctrl.DispatchEvent)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	broker := relay.NewBroker(rc, logger)

	drainer := outbox.NewDrainer(roomRepo, broker, cfg.InstanceId, logger)
	go func() {
		if err := drainer.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.ErrorContext(workerCtx, "outbox drainer stopped", "error", err)
		}
	}()

	consumer := relay.NewConsumer(broker, cfg.InstanceId, ctrl.HandleRelayed, logger)
	go func() {
		if err := consumer.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.ErrorContext(workerCtx, "relay consumer stopped", "error", err)
		}
	}()

	lifecycle := relay.NewLifecycleConsumer(broker, roomService, cfg.InstanceId, logger)
	go func() {
		if err := lifecycle.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.ErrorContext(workerCtx, "lifecycle consumer stopped", "error", err)
		}
	}()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: ctrl.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		stopWorkers()
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr, "instance_id", cfg.InstanceId)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
