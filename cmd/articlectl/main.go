// Command articlectl administers an ArticlePulse deployment: contract addresses, article
// content, purchase records and custodial ledger operations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/HugoJanow/ArticlePulse/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root, s := newRootCommand(os.Stdout)
	err := root.ExecuteContext(ctx)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	stop()
	if err != nil {
		cli.NewPrinter(os.Stderr).Error("%v", err)
		os.Exit(1)
	}
}
