package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/halvely/push-relay-agent/internal/account"
	"github.com/halvely/push-relay-agent/internal/alert"
	"github.com/halvely/push-relay-agent/internal/config"
	"github.com/halvely/push-relay-agent/internal/connector"
	"github.com/halvely/push-relay-agent/internal/device"
	"github.com/halvely/push-relay-agent/internal/engine"
	"github.com/halvely/push-relay-agent/internal/fallback"
	"github.com/halvely/push-relay-agent/internal/model"
	"github.com/halvely/push-relay-agent/internal/relay"
	"github.com/halvely/push-relay-agent/internal/routes"
	"github.com/halvely/push-relay-agent/internal/store"
	"github.com/halvely/push-relay-agent/pkg/logger"
	"github.com/halvely/push-relay-agent/pkg/metrics"
	"github.com/halvely/push-relay-agent/pkg/retry"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.AppName, cfg.LogLevel)
	logr.Info("starting push relay agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateStore, err := openStore(cfg)
	if err != nil {
		logr.Error("failed to open state store", slog.Any("error", err))
		os.Exit(1)
	}

	var probeCache engine.ProbeCache
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer rdb.Close()
		probeCache = relay.NewProbeCache(rdb, cfg.ProbeCacheTTL)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	conn2 := connector.NewAMQPConnector(conn, cfg.CallbackQueue, cfg.PrefetchCount, cfg.Distributors, nil, logr)

	accountClient := account.NewClient(cfg.AccountURL, cfg.AccountID, cfg.AccountPassword, cfg.RelayTimeout)
	provisioner, err := device.NewProvisioner(accountClient, device.Config{
		AccountID:         cfg.AccountID,
		DeviceName:        cfg.DeviceName,
		MessagingIdentity: cfg.MessagingSeed,
		DiscoveryIdentity: cfg.DiscoverySeed,
		Capabilities:      cfg.Capabilities,
		Discoverable:      cfg.Discoverable,
	}, logr)
	if err != nil {
		logr.Error("failed to build provisioner", slog.Any("error", err))
		os.Exit(1)
	}

	var eng *engine.Engine
	fb := fallback.NewService(cfg.FallbackWSURL, func() bool {
		return eng.Status().Usable()
	}, logr)
	defer fb.Close()

	metricsCollector := metrics.New()
	eng, err = engine.New(ctx, engine.Options{
		Store:       stateStore,
		Relay:       relay.NewClient(cfg.RelayTimeout, logr),
		ProbeCache:  probeCache,
		Provisioner: provisioner,
		Connector:   conn2,
		Fallback:    fb,
		Notifier:    alert.New(logr, metricsCollector),
		Metrics:     metricsCollector,
		Logger:      logr,
		RetryCfg: retry.Config{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryInitialBackoff,
			MaxBackoff:     cfg.RetryMaxBackoff,
		},
		JobLifespan: cfg.JobLifespan,
	})
	if err != nil {
		logr.Error("failed to start engine", slog.Any("error", err))
		os.Exit(1)
	}
	conn2.SetHandler(eng)

	if selected := eng.State().Distributor; selected != "" {
		conn2.SaveDistributor(selected)
	}
	if cfg.RelayURL != "" && model.NormalizeRelayURL(cfg.RelayURL) != eng.State().Relay.URL {
		eng.SetRelayURL(ctx, cfg.RelayURL)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()
	go func() {
		if err := conn2.Start(ctx); err != nil {
			logr.Error("callback consumer exited", slog.Any("error", err))
			stop()
		}
	}()

	eng.EnqueueReconcile()

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, eng, logr, started)

	<-ctx.Done()
	<-engineDone
	shutdownHTTP(httpSrv, logr)
	logr.Info("push relay agent stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemoryStore(), nil
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(db, cfg.StateTable)
}

func startHTTPServer(port string, metricsCollector *metrics.Metrics, eng *engine.Engine, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8084"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: routes.NewRouter(metricsCollector, eng, started),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
