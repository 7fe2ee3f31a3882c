package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/breederbook/scheduling/libs/config"
	"github.com/breederbook/scheduling/libs/db"
	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/libs/httpx"
	"github.com/breederbook/scheduling/libs/kafkax"
	otelx "github.com/breederbook/scheduling/libs/otel"
	"github.com/breederbook/scheduling/libs/runtime"
	"github.com/breederbook/scheduling/services/booking-service/internal/booking"
	"github.com/breederbook/scheduling/services/booking-service/internal/contacts"
	"github.com/breederbook/scheduling/services/booking-service/internal/handlers"
	"github.com/breederbook/scheduling/services/booking-service/internal/occupancy"
	"github.com/breederbook/scheduling/services/booking-service/internal/outbox"
	"github.com/breederbook/scheduling/services/booking-service/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	outboxRepo := outbox.NewRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	settingsRepo := storage.NewSettingsRepository(pool)

	// External busy source: the calendar API when credentials are set,
	// otherwise an ICS feed read-only fallback. Either one is consulted
	// fail-open; the bookings table alone decides internal conflicts.
	var external gcal.BusySource
	if base := config.String("GCAL_BASE_URL", ""); base != "" {
		external = gcal.NewClient(base, config.String("GCAL_TOKEN", ""))
	} else if feed := config.String("ICS_FEED_URL", ""); feed != "" {
		external = gcal.NewICSBusySource(feed)
	}
	occupancySource := occupancy.NewSource(bookingRepo, external, logger)

	contactProvider, err := contacts.NewProvider(config.String("CONTACTS_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("contact provider init failed; bookings stay unlinked", "err", err)
		contactProvider = contacts.NewStaticDisabled()
	}

	svc := booking.NewService(bookingRepo, settingsRepo, occupancySource, contactProvider, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	bookingHandler := handlers.NewBookingHandler(svc, logger)
	settingsHandler := handlers.NewSettingsHandler(settingsRepo, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	// Public endpoints are unauthenticated, so they get per-client rate
	// limiting. Redis makes the window shared across replicas; without Redis a
	// per-process limiter still bounds abuse.
	var publicLimit httpx.Middleware
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter := httpx.NewRedisRateLimiter(rdb, config.Int("PUBLIC_RATE_LIMIT", 60), time.Minute, service)
		publicLimit = limiter.Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	} else {
		publicLimit = httpx.NewRateLimiter(config.Int("PUBLIC_RATE_LIMIT", 60), time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	public := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, publicLimit, httpx.WithBodyLimit(64<<10))
	}
	mux.Handle("/api/v1/public/slots", public(bookingHandler.Slots))
	mux.Handle("/api/v1/public/bookings", public(bookingHandler.Create))
	mux.Handle("/api/v1/appointment-types", public(settingsHandler.Catalog))
	mux.Handle("/api/v1/public/bookings/cancel", public(bookingHandler.Cancel))

	mux.HandleFunc("/api/v1/bookings", bookingHandler.List)
	mux.HandleFunc("/api/v1/bookings/confirm", bookingHandler.Confirm)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/complete", bookingHandler.Complete)
	mux.HandleFunc("/api/v1/bookings/no-show", bookingHandler.MarkNoShow)
	mux.HandleFunc("/api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			settingsHandler.Put(w, r)
			return
		}
		settingsHandler.Get(w, r)
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(15*time.Second),
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
