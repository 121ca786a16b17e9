package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/metrics"
)

func newScheduleCmd(c *cli) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule and serve /health and /metrics",
		Long: `For hosts without an OS scheduler. Every tick is an independent run with
its own run context and a freshly loaded ledger; a tick that fires while the
previous run is still going is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			return c.schedule(cmd.Context(), runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "also run once immediately")
	return cmd
}

func (c *cli) schedule(ctx context.Context, runNow bool) error {
	log := c.log.Named("scheduler")
	m := metrics.New()

	tick := func() {
		out := c.runOnce(ctx, m, false)
		log.Info("Scheduled run finished", zap.String("run_id", out.RunID), zap.String("status", string(out.Status)))
		if err := m.Push(ctx, c.cfg.Metrics.PushgatewayURL, c.cfg.Metrics.Job); err != nil {
			log.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	loc, err := c.cfg.Location()
	if err != nil {
		return err
	}
	sched, job, err := newScheduler(c.cfg.Schedule.Cron, loc, tick, cronLogger{log})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.cfg.Schedule.ListenAddr,
		Handler:           newMonitorRouter(m, c.cfg.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting monitoring server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sched.Start()
	log.Info("Scheduler started", zap.String("cron", c.cfg.Schedule.Cron))
	if runNow {
		go job.Run()
	}

	var result error
	select {
	case <-ctx.Done():
		log.Info("Shutting down scheduler")
	case err, ok := <-serveErr:
		if ok {
			result = fmt.Errorf("monitoring server: %w", err)
		}
	}

	// Wait for a running job before closing the server.
	<-sched.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Monitoring server shutdown failed", zap.Error(err))
	}
	return result
}

// newScheduler registers tick under spec and returns the wrapped job, so an
// immediate run shares the skip-if-still-running guard with scheduled ticks.
func newScheduler(spec string, loc *time.Location, tick func(), logger cron.Logger) (*cron.Cron, cron.Job, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	id, err := sched.AddFunc(spec, tick)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched, sched.Entry(id).WrappedJob, nil
}

// newMonitorRouter serves the health snapshot and the Prometheus registry.
func newMonitorRouter(m *metrics.Metrics, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(ctx *gin.Context) {
		stats := m.GetStats()
		status, code := "ok", http.StatusOK
		if !m.Healthy() {
			status, code = "error", http.StatusServiceUnavailable
		}
		ctx.JSON(code, gin.H{
			"status":       status,
			"last_run":     stats["last_run_time"],
			"last_outcome": stats["last_outcome"],
			"last_error":   stats["last_error"],
		})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
	return r
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
