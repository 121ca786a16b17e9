package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/app"
	"github.com/deusflow/spectrumpost/internal/metrics"
	"github.com/deusflow/spectrumpost/internal/runctx"
)

var errRunFailed = errors.New("run failed")

func newRunCmd(c *cli) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		Long: `Discover candidates, pick one, and publish it. Exits 0 when a post was
published or there was nothing new to publish, and 1 when the run failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			m := metrics.New()
			out := c.runOnce(cmd.Context(), m, dryRun)
			if err := m.Push(context.WithoutCancel(cmd.Context()), c.cfg.Metrics.PushgatewayURL, c.cfg.Metrics.Job); err != nil {
				c.log.Warn("Failed to push metrics", zap.Error(err))
			}
			if out.Status == app.StatusFailed {
				return fmt.Errorf("%w: %w", errRunFailed, out.Err)
			}
			if dryRun && out.Draft != "" {
				fmt.Fprintln(cmd.OutOrStdout(), out.Draft)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose the post but do not deliver, record or archive it")
	return cmd
}

// runOnce builds a fresh run context and collaborators and executes one pass.
func (c *cli) runOnce(ctx context.Context, m *metrics.Metrics, dryRun bool) app.Outcome {
	loc, err := c.cfg.Location()
	if err != nil {
		loc = time.Local
	}
	run := runctx.New(time.Now(), loc, c.log)

	deps, cleanup, err := app.Build(ctx, c.cfg, m, run.Log)
	defer cleanup()
	if err != nil {
		run.Log.Error("Failed to initialize pipeline", zap.Error(err))
		m.ObserveRun(string(app.StatusFailed), time.Since(run.Started), err.Error())
		return app.Outcome{Status: app.StatusFailed, RunID: run.ID, Err: err}
	}
	return app.Run(ctx, run, deps, app.Options{DryRun: dryRun})
}
