package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/santiagopena171/app-agenda/libs/auth"
	"github.com/santiagopena171/app-agenda/libs/config"
	"github.com/santiagopena171/app-agenda/libs/grpcx"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/libs/kafkax"
	otelx "github.com/santiagopena171/app-agenda/libs/otel"
	"github.com/santiagopena171/app-agenda/libs/runtime"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/availability"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/booking"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/events"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/handlers"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/notify"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/outbox"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/queue"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	ownerSecret, err := config.RequiredString("AUTH_HS256_SECRET")
	if err != nil {
		panic(err)
	}
	queueCapacity, err := config.Int("QUEUE_CAPACITY", model.QueueCapacity)
	if err != nil {
		panic(err)
	}
	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		panic(err)
	}
	slotCacheTTL, err := config.Duration("SLOT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		panic(err)
	}
	notifyTimeout, err := config.Duration("NOTIFY_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}
	outboxPoll, err := config.Duration("OUTBOX_POLL_EVERY", 2*time.Second)
	if err != nil {
		panic(err)
	}
	brokers := config.String("KAFKA_BROKERS", "")
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

	be, err := openBackend(ctx, logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		panic(err)
	}
	defer be.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := be.checks
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	resolverOpts := []availability.Option{availability.WithLogger(logger)}
	var rdb *redis.Client
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		resolverOpts = append(resolverOpts, availability.WithCache(availability.NewRedisCache(rdb, slotCacheTTL, "slots")))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	resolver := availability.NewResolver(be.store, resolverOpts...)

	gate := queue.NewGate(be.store, queue.WithCapacity(queueCapacity), queue.WithLogger(logger))

	// Without a broker nothing drains the outbox, so notifications are only logged.
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if be.pool != nil && brokers != "" {
		dispatcher = notify.NewStoreDispatcher(be.store)
	}
	async := notify.NewAsync(dispatcher, logger, m, notifyTimeout)

	writer := booking.NewWriter(be.store, gate, async,
		booking.WithSlotInvalidator(resolver),
		booking.WithMetrics(m),
		booking.WithLogger(logger),
	)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	limiter := httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "rl:public").Middleware(logger, true)
	}
	cors := httpx.WithCORS(httpx.PublicBookingCORS(config.List("CORS_ALLOWED_ORIGINS", "")))
	public := handlers.NewPublicHandler(resolver, gate, writer, m, logger)
	public.Register(mux, func(h http.Handler) http.Handler {
		return httpx.Chain(h, cors, limiter)
	})
	owner := handlers.NewOwnerHandler(writer, be.store, logger)
	owner.Register(mux, auth.RequireOwner(ownerSecret))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(64<<10),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := grpcx.NewHealthServer(logger, func(ctx context.Context) error {
		if failed := runtime.RunChecks(ctx, checks...); len(failed) > 0 {
			return errors.New("not ready: " + failed[0])
		}
		return nil
	})
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		panic(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		return health.Serve(gctx, lis)
	})

	if be.pool != nil && brokers != "" {
		kw := kafkax.NewWriter(brokers)
		defer kw.Close()
		publisher := outbox.NewPublisher(be.pool, outbox.NewRepository(), kw, logger, outbox.PublisherConfig{
			PollEvery: outboxPoll,
			BatchSize: 50,
		})
		g.Go(func() error { return publisher.Run(gctx) })

		attendance := kafkax.NewConsumer(logger, be.inbox(), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   config.String("KAFKA_ATTENDANCE_TOPIC", model.AttendanceReportedEvent),
		}, events.AttendanceHandler(writer, logger))
		g.Go(func() error { return attendance.Run(gctx) })
	} else {
		logger.Warn("kafka disabled; outbox publisher and attendance consumer not started",
			"postgres", be.pool != nil, "brokers", brokers != "")
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		if err := async.Wait(shutdownCtx); err != nil {
			logger.Warn("pending notifications abandoned", "err", err)
		}
		logger.Info("http server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("booking service stopped with error", "err", err)
	}
}
