package main

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/santiagopena171/app-agenda/libs/auth"
	"github.com/santiagopena171/app-agenda/libs/config"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	otelx "github.com/santiagopena171/app-agenda/libs/otel"
	"github.com/santiagopena171/app-agenda/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	ownerSecret, err := config.RequiredString("AUTH_HS256_SECRET")
	if err != nil {
		panic(err)
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		panic(err)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
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

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, upstreams{
		booking:      mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		notification: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
	}, auth.RequireOwner(ownerSecret))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := runtime.ShutdownContext(10 * time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

type upstreams struct {
	booking      *url.URL
	notification *url.URL
}

// registerRoutes fronts the booking and notification services. Owner routes are checked here
// and again by the service that owns them.
func registerRoutes(mux *http.ServeMux, up upstreams, requireOwner func(http.Handler) http.Handler) {
	booking := newProxy(up.booking)
	notification := newProxy(up.notification)

	registerProxy(mux, "/api/v1/public", booking)
	registerProxy(mux, "/api/v1/appointments", requireOwner(booking))
	registerProxy(mux, "/api/v1/problem-clients", requireOwner(booking))
	registerProxy(mux, "/api/v1/owner/telegram", requireOwner(notification))
	// Telegram authenticates with the webhook secret header, checked downstream.
	mux.Handle("/telegram/webhook", notification)
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return proxy
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
