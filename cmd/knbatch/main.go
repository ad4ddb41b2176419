package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/knpiano/knbatch/internal/cli"
	"github.com/knpiano/knbatch/pkg/logger"
)

func main() {
	// Setup structured logging
	logger.SetupLogger()
	log := logger.New("knbatch")

	// SIGINT/SIGTERM stop the service; a one-shot run sees its context cancelled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Options{Logger: log})
	stop()

	os.Exit(code)
}
