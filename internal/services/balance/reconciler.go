// Package balance reconciles the wallet's token balance between the direct
// on-chain query and the backend's view, without ever regressing to zero.
package balance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/domain"
	"github.com/aitradehq/tradeflow/pkg/retrier"
)

// ChainReader is the on-chain lookup the reconciler races against its
// timeout.
type ChainReader interface {
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
}

// Backend is the fallback lookup, which also carries faucet eligibility.
type Backend interface {
	GetWalletBalance(ctx context.Context, address string) (clients.WalletBalance, error)
}

// Reconciler holds the last known-good balance. A successful refresh from
// either source overwrites it; every failure path leaves it untouched.
type Reconciler struct {
	chain   ChainReader
	backend Backend
	timeout time.Duration
	retry   *retrier.Retrier
	logger  *zap.Logger

	mu     sync.Mutex
	record domain.BalanceRecord
	faucet domain.FaucetStatus
}

// NewReconciler creates a reconciler. timeout bounds each direct on-chain
// attempt; the attempt is retried once after a short delay before the
// backend takes over.
func NewReconciler(chain ChainReader, backend Backend, timeout time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reconciler{
		chain:   chain,
		backend: backend,
		timeout: timeout,
		retry: retrier.New(
			retrier.WithMaxRetries(1),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithJitter(0),
		),
		logger: logger.With(zap.String("component", "balance")),
	}
}

// Current returns the cached balance record.
func (r *Reconciler) Current() domain.BalanceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record
}

// FaucetStatus returns the cached faucet eligibility.
func (r *Reconciler) FaucetStatus() domain.FaucetStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faucet
}

// Refresh fetches the balance, preferring the direct on-chain read. When
// both sources fail the cached record is returned together with the error,
// so callers keep rendering the last known-good figure.
func (r *Reconciler) Refresh(ctx context.Context, address string) (domain.BalanceRecord, error) {
	amount, err := retrier.DoWithData(r.retry, ctx, func(ctx context.Context) (decimal.Decimal, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.chain.BalanceOf(attemptCtx, address)
	})
	if err == nil {
		return r.store(amount, domain.SourceOnChainDirect), nil
	}
	r.logger.Warn("direct balance lookup failed, falling back to backend",
		zap.String("address", address), zap.Error(err))

	wb, backendErr := r.backend.GetWalletBalance(ctx, address)
	if backendErr != nil {
		r.logger.Warn("backend balance lookup failed, keeping cached value",
			zap.String("address", address), zap.Error(backendErr))
		return r.Current(), errors.Wrap(backendErr, "all balance sources failed")
	}

	r.mu.Lock()
	r.faucet = domain.FaucetStatus{
		CanClaim:        wb.CanClaimFaucet,
		Cooldown:        wb.Cooldown,
		LastRefreshedAt: time.Now(),
	}
	r.mu.Unlock()

	return r.store(wb.Balance, domain.SourceBackendFallback), nil
}

// RefreshFaucet updates faucet eligibility via the backend without touching
// the balance cache unless the lookup succeeds.
func (r *Reconciler) RefreshFaucet(ctx context.Context, address string) (domain.FaucetStatus, error) {
	wb, err := r.backend.GetWalletBalance(ctx, address)
	if err != nil {
		return r.FaucetStatus(), errors.Wrap(err, "fetch faucet status")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.faucet = domain.FaucetStatus{
		CanClaim:        wb.CanClaimFaucet,
		Cooldown:        wb.Cooldown,
		LastRefreshedAt: time.Now(),
	}
	return r.faucet, nil
}

// Reset drops the cached state, used when the wallet disconnects.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = domain.BalanceRecord{}
	r.faucet = domain.FaucetStatus{}
}

func (r *Reconciler) store(amount decimal.Decimal, source domain.BalanceSource) domain.BalanceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = domain.BalanceRecord{
		Amount:    amount,
		Source:    source,
		UpdatedAt: time.Now(),
	}
	return r.record
}
