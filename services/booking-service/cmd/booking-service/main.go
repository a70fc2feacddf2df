package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slotly-app/slotly/libs/config"
	"github.com/slotly-app/slotly/libs/db"
	"github.com/slotly-app/slotly/libs/httpx"
	"github.com/slotly-app/slotly/libs/kafkax"
	otelx "github.com/slotly-app/slotly/libs/otel"
	"github.com/slotly-app/slotly/libs/runtime"
	"github.com/slotly-app/slotly/services/booking-service/internal/handlers"
	"github.com/slotly-app/slotly/services/booking-service/internal/lock"
	"github.com/slotly-app/slotly/services/booking-service/internal/outbox"
	"github.com/slotly-app/slotly/services/booking-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8095")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: config.String("REDIS_ADDR", "localhost:6379"),
	})
	defer rdb.Close()

	sessionSecret, err := config.RequiredString("SESSION_SECRET")
	if err != nil {
		panic(err)
	}
	sessionTTL := time.Duration(config.Int("SESSION_TTL_MINUTES", 60)) * time.Minute

	locker := lock.New(rdb, time.Duration(config.Int("SLOT_LOCK_TTL_MINUTES", 5))*time.Minute)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	sessionHandler := handlers.NewSessionHandler(sessionSecret, sessionTTL, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(repo, logger)
	appointmentHandler := handlers.NewAppointmentHandler(repo, outboxRepo, locker, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: lock.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	// Sessions are anonymous, so token minting is the cheapest thing to
	// abuse. A small per-IP window is enough; no shared counter needed.
	sessionLimiter := httpx.NewRateLimiter(config.Int("SESSION_RATE_LIMIT", 30), time.Minute)
	mux.Handle("/public/session", sessionLimiter.Middleware()(http.HandlerFunc(sessionHandler.Create)))

	protected := http.NewServeMux()
	protected.HandleFunc("/availability", availabilityHandler.Day)
	protected.HandleFunc("/availability/month", availabilityHandler.Month)
	protected.HandleFunc("/appointments/lock", appointmentHandler.Lock)
	protected.HandleFunc("/appointments/confirm", appointmentHandler.Confirm)
	protected.HandleFunc("/appointments/verify", appointmentHandler.Verify)
	gated := handlers.RequireSession(protected, sessionSecret)
	mux.Handle("/availability", gated)
	mux.Handle("/availability/month", gated)
	mux.Handle("/appointments/", gated)

	rateLimit := httpx.NewRedisRateLimiter(
		rdb,
		config.Int("RATE_LIMIT", 120),
		time.Duration(config.Int("RATE_LIMIT_WINDOW_SECONDS", 60))*time.Second,
		"booking",
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimit.Middleware(logger, true),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
