package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iliyamo/flight-seat-lock/internal/cleanup"
	"github.com/iliyamo/flight-seat-lock/internal/config"
	"github.com/iliyamo/flight-seat-lock/internal/database"
	"github.com/iliyamo/flight-seat-lock/internal/finalize"
	"github.com/iliyamo/flight-seat-lock/internal/handler"
	"github.com/iliyamo/flight-seat-lock/internal/metrics"
	"github.com/iliyamo/flight-seat-lock/internal/middleware"
	"github.com/iliyamo/flight-seat-lock/internal/queue"
	"github.com/iliyamo/flight-seat-lock/internal/repository"
	"github.com/iliyamo/flight-seat-lock/internal/router"
	"github.com/iliyamo/flight-seat-lock/internal/seatlock"
	"github.com/iliyamo/flight-seat-lock/internal/telemetry"
)

const serviceName = "flight-seat-lock"

func main() {
	logger := log.New("server")
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("read .env: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.Env != "prod",
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("lock store: %v", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	occupancy := repository.NewOccupancyRepo(db)
	bookings := repository.NewBookingRepo(db)

	sl := cfg.SeatLock
	lockOpts := []seatlock.Option{seatlock.WithLockTTL(sl.LockTTL), seatlock.WithMetrics(m)}
	registry := seatlock.NewRegistry(rdb, sl.BookingSessionTTL, lockOpts...)
	locks := seatlock.NewManager(rdb, occupancy, registry, lockOpts...)
	sessions := seatlock.NewBookingSessions(rdb, sl.BookingSessionTTL, lockOpts...)
	activity := seatlock.NewActivity(rdb, sl.UserSessionTTL, lockOpts...)

	orch := cleanup.NewOrchestrator(locks, registry, sessions, activity,
		cleanup.WithBookingCanceller(bookings),
		cleanup.WithInactivityTimeout(sl.InactivityTimeout),
		cleanup.WithTabHiddenTimeout(sl.TabHiddenTimeout),
		cleanup.WithDispatchTimeout(sl.DispatchTimeout),
		cleanup.WithMetrics(m),
	)

	audit := &lumberjack.Logger{
		Filename:   cfg.AuditLogPath,
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		MaxAge:     90, // days
		Compress:   true,
	}
	defer audit.Close()

	bridgeOpts := []finalize.Option{
		finalize.WithBookingConfirmer(bookings),
		finalize.WithAuditLog(audit),
		finalize.WithMetrics(m),
	}
	if cfg.RabbitURL != "" {
		bridgeOpts = append(bridgeOpts, finalize.WithPublisher(queue.NewPublisher(cfg.RabbitURL, nil)))
	}
	bridge := finalize.NewBridge(locks, registry, sessions, orch, occupancy, bridgeOpts...)

	var consumers sync.WaitGroup
	if cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, bridge.Handle, nil)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("payment consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echo.WrapMiddleware(otelhttp.NewMiddleware(serviceName)))

	router.RegisterRoutes(e, reg, map[string]handler.Check{
		"mysql": db.PingContext,
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	router.RegisterSeats(e,
		handler.NewSeatHandler(locks, registry, sessions, orch, occupancy),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
	)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(bridge, cfg.WebhookSecret))

	go func() {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	// pending timers are dropped; the lock TTL covers their sessions
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Warnf("cleanup drain: %v", err)
	}
	consumers.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warnf("tracing shutdown: %v", err)
	}
}
