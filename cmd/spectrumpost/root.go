package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deusflow/spectrumpost/internal/config"
	"github.com/deusflow/spectrumpost/internal/logger"
)

// cli holds what PersistentPreRunE loads for the subcommands.
type cli struct {
	cfgFile string
	debug   bool
	in      io.Reader

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd(in io.Reader) *cobra.Command {
	c := &cli{in: in}
	cmd := &cobra.Command{
		Use:   "spectrumpost",
		Short: "Publish one fresh technology article per run to a Telegram channel.",
		Long: `spectrumpost discovers articles from RSS feeds and topic pages, skips links
it has already published, lets a language model pick and write up the best
one, and posts it with its animated or static image to a Telegram channel.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./config.yaml or /etc/spectrumpost/config.yaml)")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(c))
	cmd.AddCommand(newLedgerCmd(c))
	cmd.AddCommand(newScheduleCmd(c))
	return cmd
}

func (c *cli) load(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("debug") {
		overrides["debug"] = c.debug
	}
	cfg, err := config.Load(c.cfgFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Debug)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = log
	return nil
}
