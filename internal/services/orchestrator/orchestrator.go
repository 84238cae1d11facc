// Package orchestrator drives a trade attempt through validation, gas
// estimation, on-chain submission and confirmation, degrading to a
// simulated record when the chain path is unavailable.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/chain"
	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/domain"
)

// Phase is the observable progress state of an attempt.
type Phase string

const (
	PhaseValidating Phase = "VALIDATING"
	PhaseEstimating Phase = "ESTIMATING"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseConfirming Phase = "CONFIRMING"
)

// gasHeadroom widens the node's estimate so a slightly underestimated
// trade does not run out of gas mid-execution.
const gasHeadroom = 1.2

// Chain is the on-chain surface the orchestrator needs.
type Chain interface {
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	GasBalance(ctx context.Context, address string) (decimal.Decimal, error)
	EstimateTrade(ctx context.Context, req domain.TradeRequest) (uint64, error)
	SubmitTrade(ctx context.Context, req domain.TradeRequest, gasLimit uint64) (string, error)
	WaitMined(ctx context.Context, txHash string) (reverted bool, err error)
	ClaimFaucet(ctx context.Context) (string, error)
}

// Backend records simulated trades; it never hard-fails.
type Backend interface {
	SubmitSimulatedTrade(ctx context.Context, req domain.TradeRequest) clients.SimulatedReceipt
}

// Sessions exposes the current wallet session.
type Sessions interface {
	Current() domain.WalletSession
}

// Balances refreshes the cached balance after settled trades.
type Balances interface {
	Refresh(ctx context.Context, address string) (domain.BalanceRecord, error)
}

// Journal persists every terminal outcome locally.
type Journal interface {
	SaveOutcome(outcome domain.TradeOutcome) error
}

// ProgressFunc observes phase transitions of a running attempt.
type ProgressFunc func(attemptID string, phase Phase)

// Orchestrator executes trade requests. Every attempt terminates in exactly
// one outcome: on-chain, simulated, or failed.
type Orchestrator struct {
	chain     Chain
	backend   Backend
	sessions  Sessions
	balances  Balances
	journal   Journal
	minAmount      decimal.Decimal
	minGas         decimal.Decimal
	balanceTimeout time.Duration
	progress       ProgressFunc
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithProgress installs a phase observer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithMinTradeAmount overrides the minimum accepted trade size.
func WithMinTradeAmount(min decimal.Decimal) Option {
	return func(o *Orchestrator) { o.minAmount = min }
}

// WithMinGasBalance overrides the native-currency floor required to attempt
// an on-chain submission.
func WithMinGasBalance(min decimal.Decimal) Option {
	return func(o *Orchestrator) { o.minGas = min }
}

// WithBalanceTimeout bounds each balance query during validation.
func WithBalanceTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.balanceTimeout = d
		}
	}
}

// New creates an orchestrator.
func New(ch Chain, backend Backend, sessions Sessions, balances Balances, journal Journal, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		chain:          ch,
		backend:        backend,
		sessions:       sessions,
		balances:       balances,
		journal:        journal,
		minAmount:      domain.MinTradeAmount,
		minGas:         decimal.NewFromFloat(0.001),
		balanceTimeout: 5 * time.Second,
		logger:         logger.With(zap.String("component", "orchestrator")),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs one trade attempt to its terminal outcome. The returned
// outcome is always journaled, including failures.
func (o *Orchestrator) Execute(ctx context.Context, req domain.TradeRequest) domain.TradeOutcome {
	req = req.Normalize()
	attemptID := uuid.NewString()
	logger := o.logger.With(
		zap.String("attempt", attemptID),
		zap.String("symbol", req.Symbol),
		zap.String("direction", req.Direction.String()))

	o.report(attemptID, PhaseValidating)
	if fault := o.validate(ctx, &req); fault != nil {
		logger.Warn("trade rejected in validation", zap.String("reason", fault.Reason))
		return o.finish(domain.TradeOutcome{
			AttemptID: attemptID,
			Mode:      domain.ModeFailed,
			Symbol:    req.Symbol,
			Direction: req.Direction,
			Amount:    req.Amount,
			Price:     req.Price,
			Fault:     fault,
			Reason:    fault.Reason,
			Timestamp: o.now(),
		})
	}

	o.report(attemptID, PhaseEstimating)
	gas, err := o.chain.EstimateTrade(ctx, req)
	if err != nil {
		logger.Warn("gas estimation failed, degrading to simulated execution", zap.Error(err))
		return o.finish(o.simulate(ctx, attemptID, req))
	}
	gasLimit := uint64(float64(gas) * gasHeadroom)

	o.report(attemptID, PhaseSubmitting)
	txHash, err := o.chain.SubmitTrade(ctx, req, gasLimit)
	if err != nil {
		if errors.Is(err, chain.ErrRejected) {
			logger.Info("trade submission rejected by user")
			fault := domain.NewFault(domain.FaultUserRejected, "transaction was rejected in the wallet")
			return o.finish(domain.TradeOutcome{
				AttemptID: attemptID,
				Mode:      domain.ModeFailed,
				Symbol:    req.Symbol,
				Direction: req.Direction,
				Amount:    req.Amount,
				Price:     req.Price,
				Fault:     fault,
				Reason:    fault.Reason,
				Timestamp: o.now(),
			})
		}
		logger.Warn("trade submission failed, degrading to simulated execution", zap.Error(err))
		return o.finish(o.simulate(ctx, attemptID, req))
	}

	o.report(attemptID, PhaseConfirming)
	reverted, err := o.chain.WaitMined(ctx, txHash)
	if err != nil {
		// the transaction is already broadcast, so a simulated record here
		// would double-count the trade
		logger.Warn("confirmation failed", zap.String("tx", txHash), zap.Error(err))
		fault := domain.NewFault(domain.FaultUnavailable, "transaction %s was broadcast but confirmation failed: %v", txHash, err)
		return o.finish(domain.TradeOutcome{
			AttemptID: attemptID,
			Mode:      domain.ModeFailed,
			Symbol:    req.Symbol,
			Direction: req.Direction,
			Amount:    req.Amount,
			Price:     req.Price,
			TxHash:    txHash,
			Fault:     fault,
			Reason:    fault.Reason,
			Timestamp: o.now(),
		})
	}
	if reverted {
		logger.Warn("trade reverted on chain", zap.String("tx", txHash))
		fault := domain.NewFault(domain.FaultChainReverted, "trade failed on blockchain")
		return o.finish(domain.TradeOutcome{
			AttemptID: attemptID,
			Mode:      domain.ModeFailed,
			Symbol:    req.Symbol,
			Direction: req.Direction,
			Amount:    req.Amount,
			Price:     req.Price,
			TxHash:    txHash,
			Fault:     fault,
			Reason:    fault.Reason,
			Timestamp: o.now(),
		})
	}

	logger.Info("trade settled on chain", zap.String("tx", txHash), zap.Uint64("gas_limit", gasLimit))
	if _, err := o.balances.Refresh(ctx, req.WalletAddress); err != nil {
		logger.Warn("post-trade balance refresh failed", zap.Error(err))
	}

	return o.finish(domain.TradeOutcome{
		AttemptID: attemptID,
		Mode:      domain.ModeOnChain,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Amount:    req.Amount,
		Price:     req.Price,
		TxHash:    txHash,
		Timestamp: o.now(),
	})
}

// ClaimFaucet submits the faucet claim, waits for it to mine and refreshes
// the balance on success.
func (o *Orchestrator) ClaimFaucet(ctx context.Context) (string, error) {
	session := o.sessions.Current()
	if !session.Connected() {
		return "", domain.NewFault(domain.FaultValidation, "wallet is not connected")
	}

	txHash, err := o.chain.ClaimFaucet(ctx)
	if err != nil {
		if errors.Is(err, chain.ErrRejected) {
			return "", domain.NewFault(domain.FaultUserRejected, "faucet claim was rejected in the wallet")
		}
		return "", domain.NewFault(domain.FaultUnavailable, "faucet claim failed: %v", err)
	}

	reverted, err := o.chain.WaitMined(ctx, txHash)
	if err != nil {
		return txHash, domain.NewFault(domain.FaultUnavailable, "faucet claim %s was broadcast but confirmation failed: %v", txHash, err)
	}
	if reverted {
		// the contract enforces the claim cooldown, so a revert here almost
		// always means claiming too early
		return txHash, domain.NewFault(domain.FaultChainReverted, "faucet claim reverted, cooldown may still be active")
	}

	o.logger.Info("faucet claim settled", zap.String("tx", txHash))
	if _, err := o.balances.Refresh(ctx, session.Address); err != nil {
		o.logger.Warn("post-claim balance refresh failed", zap.Error(err))
	}
	return txHash, nil
}

// validate runs the pre-flight checks in a fixed order so the user always
// sees the most actionable failure first.
func (o *Orchestrator) validate(ctx context.Context, req *domain.TradeRequest) *domain.Fault {
	session := o.sessions.Current()
	if !session.Connected() {
		return domain.NewFault(domain.FaultValidation, "wallet is not connected")
	}
	if req.WalletAddress == "" {
		req.WalletAddress = session.Address
	}

	if req.Direction != domain.DirectionBuy && req.Direction != domain.DirectionSell {
		return domain.NewFault(domain.FaultValidation, "trade direction must be BUY or SELL")
	}
	if req.Amount.LessThan(o.minAmount) {
		return domain.NewFault(domain.FaultValidation, "trade amount %s is below the minimum of %s", req.Amount, o.minAmount)
	}
	if !req.Price.IsPositive() {
		return domain.NewFault(domain.FaultValidation, "no valid price is available for %s", req.Symbol)
	}

	// each chain query gets its own deadline so a hung node cannot pin
	// the attempt in VALIDATING
	bctx, cancel := context.WithTimeout(ctx, o.balanceTimeout)
	tokens, err := o.chain.BalanceOf(bctx, req.WalletAddress)
	cancel()
	if err != nil {
		return domain.NewFault(domain.FaultUnavailable, "balance check failed: %v", err)
	}
	if tokens.LessThan(req.Amount) {
		return domain.NewFault(domain.FaultValidation, "insufficient trade balance: have %s, need %s", tokens, req.Amount)
	}

	gctx, cancel := context.WithTimeout(ctx, o.balanceTimeout)
	gas, err := o.chain.GasBalance(gctx, req.WalletAddress)
	cancel()
	if err != nil {
		return domain.NewFault(domain.FaultUnavailable, "gas balance check failed: %v", err)
	}
	if gas.LessThan(o.minGas) {
		return domain.NewFault(domain.FaultValidation, "insufficient gas: have %s, need at least %s", gas, o.minGas)
	}
	return nil
}

func (o *Orchestrator) simulate(ctx context.Context, attemptID string, req domain.TradeRequest) domain.TradeOutcome {
	receipt := o.backend.SubmitSimulatedTrade(ctx, req)

	// a simulated fill is a success terminal too and moves the
	// platform-side balance
	if _, err := o.balances.Refresh(ctx, req.WalletAddress); err != nil {
		o.logger.Warn("post-trade balance refresh failed", zap.Error(err))
	}

	return domain.TradeOutcome{
		AttemptID: attemptID,
		Mode:      domain.ModeSimulated,
		Symbol:    req.Symbol,
		Direction: req.Direction,
		Amount:    req.Amount,
		Price:     req.Price,
		TradeID:   receipt.TradeID,
		Note:      receipt.Note,
		Timestamp: o.now(),
	}
}

func (o *Orchestrator) finish(outcome domain.TradeOutcome) domain.TradeOutcome {
	if o.journal != nil {
		if err := o.journal.SaveOutcome(outcome); err != nil {
			o.logger.Warn("failed to journal trade outcome",
				zap.String("attempt", outcome.AttemptID), zap.Error(err))
		}
	}
	return outcome
}

func (o *Orchestrator) report(attemptID string, phase Phase) {
	if o.progress != nil {
		o.progress(attemptID, phase)
	}
}
