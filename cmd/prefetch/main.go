package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/app"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/config"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	parsed, err := app.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		app.PrintUsage(os.Stderr)
		return ExitInvalidArgs
	}

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return ExitGeneralError
	}

	l := logger.NewZapLogger(cfg.Logger.Level)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Prefetch(ctx, cfg, parsed, l); err != nil {
		l.Error("prefetch failed", "error", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
