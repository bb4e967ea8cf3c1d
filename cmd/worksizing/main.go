// worksizing finds the smallest multiple of 1..n-1 by searching blocks of
// candidates concurrently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/worksizing/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
