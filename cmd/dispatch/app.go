package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"trip-dispatch/internal/general/config"
	"trip-dispatch/internal/general/jwt"
	"trip-dispatch/internal/general/kafkafeed"
	"trip-dispatch/internal/general/logger"
	"trip-dispatch/internal/general/positions"
	"trip-dispatch/internal/general/postgres"
	"trip-dispatch/internal/general/rabbitmq"
	"trip-dispatch/internal/ports"
	"trip-dispatch/internal/realtime"
	"trip-dispatch/internal/software/dispatch/handler"
	"trip-dispatch/internal/software/dispatch/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// run wires the dispatch process and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.New("dispatch")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ and set up the publisher
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	pub := rabbitmq.NewMQPublisher(rmq)

	// Redis position cache; the process keeps running without it
	posCache := positions.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.GeoKey)
	if err := posCache.Ping(ctx); err != nil {
		logger.Error(ctx, "redis_unavailable", "Position cache unreachable, continuing without it", err, nil)
		posCache = nil
	} else {
		defer posCache.Close()
	}

	// Kafka location feed for downstream analytics
	feed := kafkafeed.NewLocationProducer(cfg.Kafka.Brokers, cfg.Kafka.LocationTopic)
	defer feed.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the repos
	uow := postgres.NewUnitOfWork(pool)
	tripRepo := postgres.NewTripRepo()
	stopRepo := postgres.NewStopRepo()
	workerRepo := postgres.NewWorkerRepo()
	blacklistRepo := postgres.NewBlacklistRepo()

	// realtime layer: registry, location relay, websocket gateway
	registry := realtime.NewRegistry(logger)
	relay := realtime.NewRelay(logger, registry, posCache, feed)
	gateway := realtime.NewGateway(logger, jwtManager, registry, relay)

	// search session tracker
	sessions := service.NewSessionTracker(logger, service.SessionPolicy{
		RideSearchTimeout:     cfg.Dispatch.RideSearchTimeout.Std(),
		DeliverySearchTimeout: cfg.Dispatch.DeliverySearchTimeout.Std(),
		Retention:             cfg.Dispatch.SessionRetention.Std(),
		SweepInterval:         cfg.Dispatch.SessionSweepInterval.Std(),
	})
	go sessions.RunSweeper(ctx)

	// set up the dispatch service
	svc := service.New(logger, cfg, uow, tripRepo, stopRepo, workerRepo, blacklistRepo,
		registry, pub, sessions, posCache, rmq)

	// run the background consumers for trip status events
	go svc.RunBackgroundConsumers(ctx)

	// periodically drop expired blacklist rows
	go purgeBlacklistLoop(ctx, logger, uow, blacklistRepo, cfg.Dispatch.BlacklistTTL.Std())

	// set up the HTTP handler and its routes
	mux := http.NewServeMux()
	httpHandler := handler.NewDispatchHTTPHandler(svc, logger, jwtManager, gateway)
	httpHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// concurrency limiter (global) — blocks when capacity is full
	limitedHandler := withConcurrencyLimit(cfg.HTTP.MaxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port, "max_concurrent": cfg.HTTP.MaxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Dispatch shutting down", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.HTTP.Port})
			return err
		}
		return nil
	}

	logger.Info(ctx, "shutdown_complete", "Dispatch stopped", nil)
	return nil
}

// purgeBlacklistLoop deletes expired blacklist rows. Expired entries are
// already inert at read time; this just keeps the table small.
func purgeBlacklistLoop(ctx context.Context, lg *logger.Logger, uow ports.UnitOfWork, repo ports.BlacklistRepository, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var purged int64
			err := uow.WithinTx(ctx, func(txCtx context.Context) error {
				n, err := repo.PurgeExpired(txCtx, time.Now().UTC())
				purged = n
				return err
			})
			if err != nil {
				lg.Error(ctx, "blacklist_purge_failed", "Failed to purge expired blacklist rows", err, nil)
				continue
			}
			if purged > 0 {
				lg.Info(ctx, "blacklist_purged", "Removed expired blacklist rows", map[string]any{"rows": purged})
			}
		}
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
