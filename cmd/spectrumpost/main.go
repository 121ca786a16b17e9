// Command spectrumpost publishes one fresh technology article per run to a
// Telegram channel and manages the ledger of published links.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdin).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
