package main

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/santiagopena171/app-agenda/libs/auth"
	"github.com/santiagopena171/app-agenda/libs/config"
	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/libs/kafkax"
	otelx "github.com/santiagopena171/app-agenda/libs/otel"
	"github.com/santiagopena171/app-agenda/libs/runtime"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/delivery"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/telegram"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/webhook"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	brokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	ownerSecret, err := config.RequiredString("AUTH_HS256_SECRET")
	if err != nil {
		panic(err)
	}
	hookSecret, err := config.RequiredString("TELEGRAM_WEBHOOK_SECRET")
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
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	poolCfg, err := db.PoolConfigFromEnv()
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, poolCfg)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	if config.Bool("DB_AUTO_MIGRATE", false) {
		if err := repo.Migrate(ctx); err != nil {
			logger.Error("migrate failed", "err", err)
			panic(err)
		}
	}

	bot := telegram.NewClient(config.String("TELEGRAM_API_URL", telegram.DefaultBaseURL), config.String("TELEGRAM_BOT_TOKEN", ""))
	var sender telegram.Sender = bot
	if config.String("TELEGRAM_BOT_TOKEN", "") == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set; notifications are logged only")
		sender = telegram.NewLogSender(logger.Info)
	}

	consumer := kafkax.NewConsumer(logger, db.NewInbox(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.notification.requested.v1"),
	}, delivery.NewHandler(repo, repo, sender, logger).Handle)

	kw := kafkax.NewWriter(brokers)
	defer kw.Close()
	hooks := webhook.NewHandler(repo, bot, kw, hookSecret, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	hooks.Register(mux, auth.RequireOwner(ownerSecret))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("notification service stopped with error", "err", err)
	}
}
