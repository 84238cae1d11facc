// Command tradeflow runs the trade submission client for the AI trading
// platform: it keeps the wallet session alive, polls prices and the current
// signal, executes trades with an on-chain-first/simulated-fallback path and
// serves a local status API.
//
// Usage:
//
//	tradeflow setup                 (interactive config wizard)
//	tradeflow --config config.yaml
//	tradeflow (uses CLI arguments)
//
// Optional environment variables:
//
//	TRADEFLOW_PRIVATE_KEY — hex signing key; unset runs without a wallet
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/config"
	"github.com/aitradehq/tradeflow/internal"
	"github.com/aitradehq/tradeflow/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app, err := internal.NewApp(conf, logger)
	if err != nil {
		logger.Fatal("failed to build trade client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("trade client stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
