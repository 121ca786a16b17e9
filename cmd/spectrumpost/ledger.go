package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deusflow/spectrumpost/internal/app"
	"github.com/deusflow/spectrumpost/internal/storage"
)

func newLedgerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and edit the list of published links",
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every published link",
		Args:  cobra.NoArgs,
		RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, _ []string) error {
			return clearLedger(ctx, l, cmd.OutOrStdout(), c.in, yes)
		}),
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List published links",
			Args:  cobra.NoArgs,
			RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, _ []string) error {
				ids, err := l.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					fmt.Fprintln(out, "The published list is empty")
					return nil
				}
				fmt.Fprintf(out, "Published links (%d):\n", len(ids))
				renderTable(out, ids)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "count",
			Short: "Print how many links are recorded",
			Args:  cobra.NoArgs,
			RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, _ []string) error {
				n, err := l.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published links: %d\n", n)
				return nil
			}),
		},
		clearCmd,
		&cobra.Command{
			Use:   "add <url>",
			Short: "Record a link as published",
			Args:  cobra.ExactArgs(1),
			RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, args []string) error {
				added, err := l.Add(ctx, args[0])
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "Already in the list: %s\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <url>",
			Short: "Forget a published link",
			Args:  cobra.ExactArgs(1),
			RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, args []string) error {
				removed, err := l.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Not in the list: %s\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "search <keyword>",
			Short: "List published links containing keyword",
			Args:  cobra.ExactArgs(1),
			RunE: c.withLedger(func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, args []string) error {
				found, err := l.Search(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(found) == 0 {
					fmt.Fprintf(out, "No links contain '%s'\n", args[0])
					return nil
				}
				fmt.Fprintf(out, "Found %d links containing '%s':\n", len(found), args[0])
				renderTable(out, found)
				return nil
			}),
		},
	)
	return cmd
}

type ledgerFunc func(ctx context.Context, l storage.Ledger, cmd *cobra.Command, args []string) error

// withLedger opens the configured ledger around fn.
func (c *cli) withLedger(fn ledgerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.cfg.ValidateLedger(); err != nil {
			return err
		}
		ctx := cmd.Context()
		l, err := app.OpenLedger(ctx, c.cfg.Ledger, c.log)
		if err != nil {
			return err
		}
		defer l.Close()
		return fn(ctx, l, cmd, args)
	}
}

func clearLedger(ctx context.Context, l storage.Ledger, out io.Writer, in io.Reader, yes bool) error {
	n, err := l.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(out, "The list is already empty")
		return nil
	}
	if !yes {
		fmt.Fprintf(out, "Remove all %d published links? (y/N): ", n)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}
	removed, err := l.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared %d links\n", removed)
	return nil
}

func renderTable(out io.Writer, ids []string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "URL"})
	for i, id := range ids {
		t.AppendRow(table.Row{i + 1, id})
	}
	t.Render()
}
