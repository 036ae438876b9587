package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/santiagopena171/app-agenda/libs/config"
	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	otelx "github.com/santiagopena171/app-agenda/libs/otel"
	"github.com/santiagopena171/app-agenda/libs/runtime"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/queue"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/sweeper"
)

var (
	queueTimeout time.Duration
	queueEvery   time.Duration
	apptEvery    time.Duration
	expireBack   time.Duration

	rootCmd = &cobra.Command{
		Use:          "booking-sweeper",
		Short:        "Periodic maintenance for the booking service",
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run every job on its interval until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runSweeper,
	}

	onceCmd = &cobra.Command{
		Use:       "once <job>",
		Short:     "Run a single pass of one job (" + jobNames() + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobList(),
		RunE:      runOnce,
	}
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&queueTimeout, "queue-timeout", 10*time.Minute, "inactivity after which a queued client expires")
	runCmd.Flags().DurationVar(&queueEvery, "queue-every", time.Minute, "queue sweep interval")
	runCmd.Flags().DurationVar(&apptEvery, "appointments-every", time.Minute, "reminder, confirmation and expiry interval")
	rootCmd.PersistentFlags().DurationVar(&expireBack, "expire-lookback", 7*24*time.Hour, "how far back the expiry job looks for stale appointments")
	rootCmd.AddCommand(runCmd, onceCmd)
}

func jobList() []string {
	out := make([]string, 0, len(sweeper.Jobs))
	for _, j := range sweeper.Jobs {
		out = append(out, string(j))
	}
	return out
}

func jobNames() string {
	return strings.Join(jobList(), ", ")
}

type deps struct {
	sweeper *sweeper.Sweeper
	pool    *db.Pool
	reg     *prometheus.Registry
	logger  *slog.Logger
}

func setup(ctx context.Context) (*deps, error) {
	logger := runtime.NewLogger(config.String("SERVICE_NAME", "booking-sweeper"))
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	poolCfg, err := db.PoolConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pool, err := db.Open(ctx, dbURL, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("db connection: %w", err)
	}
	st := storage.New(pool, db.DefaultRetryPolicy)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	gate := queue.NewGate(st, queue.WithLogger(logger))
	sw := sweeper.New(st, gate, logger, sweeper.Config{
		QueueEvery:       queueEvery,
		AppointmentEvery: apptEvery,
		QueueTimeout:     queueTimeout,
		ExpireLookback:   expireBack,
	}, sweeper.WithMetrics(m))
	return &deps{sweeper: sw, pool: pool, reg: reg, logger: logger}, nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	job, err := sweeper.ParseJob(args[0])
	if err != nil {
		return err
	}
	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.pool.Close()

	n, err := d.sweeper.RunOnce(cmd.Context(), job)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d affected\n", job, n)
	return nil
}

func runSweeper(cmd *cobra.Command, _ []string) error {
	port, err := config.Port("PORT", "8089")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Close()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv("booking-sweeper"))
	if err != nil {
		d.logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	mux := runtime.NewBaseMuxWithReady(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(d.pool)})
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{Registry: d.reg}))
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpx.Chain(mux, httpx.WithRequestID, httpx.WithAccessLog(d.logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.logger.Info("sweeper started", "queue_every", queueEvery, "appointments_every", apptEvery)
		return d.sweeper.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := runtime.ShutdownContext(5 * time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
