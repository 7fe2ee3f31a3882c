package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/breederbook/scheduling/libs/config"
	"github.com/breederbook/scheduling/libs/db"
	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/libs/httpx"
	"github.com/breederbook/scheduling/libs/kafkax"
	otelx "github.com/breederbook/scheduling/libs/otel"
	"github.com/breederbook/scheduling/libs/runtime"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/consumer"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/inbox"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/jobs"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/reconcile"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/storage"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "calendar-sync")
	port, err := config.Port("PORT", "8084")
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

	store := storage.NewRepository(pool)
	jobRepo := jobs.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	var provider gcal.Provider
	if base := config.String("GCAL_BASE_URL", ""); base != "" {
		provider = gcal.NewClient(base, config.String("GCAL_TOKEN", ""))
	}
	if provider != nil {
		worker := jobs.NewWorker(pool, jobRepo, store, provider, logger, jobs.WorkerConfig{
			Interval:  config.Duration("SYNC_POLL_INTERVAL", 2*time.Second),
			BatchSize: config.Int("SYNC_BATCH_SIZE", 50),
			Backoff:   config.Duration("SYNC_BACKOFF", 30*time.Second),
		})
		go worker.Run(ctx)

		reconciler := reconcile.New(store, jobRepo, provider, logger, reconcile.Config{
			Horizon:  config.Duration("RECONCILE_HORIZON", 30*24*time.Hour),
			Schedule: config.String("RECONCILE_SCHEDULE", "@every 10m"),
		})
		go func() {
			if err := reconciler.Run(ctx); err != nil {
				logger.Error("reconciler stopped", "err", err)
			}
		}()
	} else {
		logger.Warn("calendar provider not configured; mirror push and reconcile disabled")
	}

	type bookingEvent struct {
		BookingID string `json:"booking_id"`
		BreederID string `json:"breeder_id"`
	}

	decode := func(msg kafka.Message) (bookingEvent, bool) {
		var evt bookingEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return evt, false
		}
		if evt.BookingID == "" || evt.BreederID == "" {
			logger.Error("missing event fields", "topic", msg.Topic)
			return evt, false
		}
		return evt, true
	}

	startConsumer := func(topic string, handler consumer.Handler) {
		cfg := consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "calendar-sync"),
			Topic:   topic,
		}
		go consumer.New(logger, inboxRepo, cfg, handler).Run(ctx)
	}

	// A confirmed booking gets pushed to the breeder's calendar; a cancelled
	// one gets its mirror removed. Malformed payloads are dropped, not
	// retried: the inbox row already claimed the event id.
	startConsumer(outboxTopicConfirmed, func(ctx context.Context, msg kafka.Message) error {
		evt, ok := decode(msg)
		if !ok {
			return nil
		}
		cfg, err := store.SyncConfig(ctx, evt.BreederID)
		if err != nil {
			return err
		}
		if !cfg.Enabled {
			return nil
		}
		if err := jobRepo.Enqueue(ctx, evt.BookingID, evt.BreederID, jobs.ActionCreate); err != nil {
			return err
		}
		return store.SetSyncState(ctx, evt.BookingID, "pending")
	})
	startConsumer(outboxTopicCancelled, func(ctx context.Context, msg kafka.Message) error {
		evt, ok := decode(msg)
		if !ok {
			return nil
		}
		return jobRepo.Enqueue(ctx, evt.BookingID, evt.BreederID, jobs.ActionDelete)
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "calendar-sync")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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

// Topics this service consumes. They mirror the booking engine's outbox
// event types.
const (
	outboxTopicConfirmed = "scheduling.booking.confirmed.v1"
	outboxTopicCancelled = "scheduling.booking.cancelled.v1"
)
