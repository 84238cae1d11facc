// Package internal wires the trade client together: chain provider, backend
// client, stores and services.
package internal

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aitradehq/tradeflow/config"
	"github.com/aitradehq/tradeflow/internal/chain"
	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/services/balance"
	"github.com/aitradehq/tradeflow/internal/services/orchestrator"
	"github.com/aitradehq/tradeflow/internal/services/poller"
	"github.com/aitradehq/tradeflow/internal/services/session"
	"github.com/aitradehq/tradeflow/internal/storage/sessionstate"
	"github.com/aitradehq/tradeflow/internal/storage/tradelog"
	"github.com/aitradehq/tradeflow/internal/web"
)

// balanceRefreshInterval paces the background reconciliation of the wallet
// balance between trades.
const balanceRefreshInterval = 30 * time.Second

// App is a fully wired trade client instance.
type App struct {
	conf         config.Config
	logger       *zap.Logger
	sessions     *session.Manager
	poller       *poller.Poller
	orchestrator *orchestrator.Orchestrator
	balances     *balance.Reconciler
	tradeLog     *tradelog.WALStore
	server       *web.Server
}

// NewApp builds the client from configuration. The signing key comes from
// the TRADEFLOW_PRIVATE_KEY environment variable; leaving it unset runs the
// client in the provider-absent state, where trades degrade to simulated.
func NewApp(conf config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	params := chain.Params{
		ID:               conf.Chain.ID,
		Name:             conf.Chain.Name,
		RPCURL:           conf.Chain.RPCURL,
		ExplorerURL:      conf.Chain.ExplorerURL,
		CurrencyName:     conf.Chain.CurrencyName,
		CurrencySymbol:   conf.Chain.CurrencySymbol,
		CurrencyDecimals: conf.Chain.CurrencyDecimals,
	}

	provider, err := chain.NewEthProvider(params, conf.ContractAddress, os.Getenv("TRADEFLOW_PRIVATE_KEY"), logger)
	if err != nil {
		return nil, errors.Wrap(err, "create chain provider")
	}

	backend := clients.NewBackendClient(conf.BackendURL, conf.RequestTimeout, logger)

	sessionStore, err := sessionstate.NewStore(conf.StateDir)
	if err != nil {
		return nil, errors.Wrap(err, "create session store")
	}
	tradeLog, err := tradelog.NewWALStore(conf.StateDir + "/tradelog")
	if err != nil {
		return nil, errors.Wrap(err, "create trade journal")
	}

	sessions := session.NewManager(provider, sessionStore, params, logger)
	balances := balance.NewReconciler(provider, backend, conf.BalanceTimeout, logger)
	market := poller.NewPoller(backend, conf.Symbol, logger)

	exec := orchestrator.New(provider, backend, sessions, balances, tradeLog, logger,
		orchestrator.WithMinTradeAmount(conf.MinTradeAmount),
		orchestrator.WithMinGasBalance(conf.MinGasBalance),
		orchestrator.WithBalanceTimeout(conf.BalanceTimeout),
		orchestrator.WithProgress(func(attemptID string, phase orchestrator.Phase) {
			logger.Info("trade progress",
				zap.String("attempt", attemptID),
				zap.String("phase", string(phase)))
		}),
	)

	server := web.NewServer(conf.ListenAddr, tradeLog, market, sessions, balances, logger)

	return &App{
		conf:         conf,
		logger:       logger,
		sessions:     sessions,
		poller:       market,
		orchestrator: exec,
		balances:     balances,
		tradeLog:     tradeLog,
		server:       server,
	}, nil
}

// Orchestrator exposes the trade executor for fronting surfaces.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orchestrator
}

// Run starts the client and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.tradeLog.Close(); err != nil {
			a.logger.Warn("closing trade journal", zap.Error(err))
		}
	}()

	a.sessions.Restore()
	current, err := a.sessions.ReconcileWithProvider(ctx)
	if err != nil {
		return errors.Wrap(err, "reconcile session")
	}
	if current.Connected() {
		if _, err := a.balances.Refresh(ctx, current.Address); err != nil {
			a.logger.Warn("initial balance refresh failed", zap.Error(err))
		}
	}

	stopPoller := a.poller.Start(ctx, a.conf.PollInterval)
	defer stopPoller()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(a.conf.TLSDomains) > 0 {
			return a.server.StartWithAutoTLS(gctx, a.conf.TLSDomains, a.conf.TLSCacheDir)
		}
		return a.server.Start(gctx)
	})
	g.Go(func() error {
		return a.refreshLoop(gctx)
	})

	a.logger.Info("trade client started",
		zap.String("backend", a.conf.BackendURL),
		zap.String("symbol", a.conf.Symbol),
		zap.String("listen", a.conf.ListenAddr))

	return g.Wait()
}

// refreshLoop keeps the cached balance roughly current between trades.
func (a *App) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(balanceRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			current := a.sessions.Current()
			if !current.Connected() {
				continue
			}
			if _, err := a.balances.Refresh(ctx, current.Address); err != nil {
				a.logger.Warn("periodic balance refresh failed", zap.Error(err))
			}
		}
	}
}
