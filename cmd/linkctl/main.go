// Command linkctl is a command-line client for the URL shortening service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/linkctl/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
