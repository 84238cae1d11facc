package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/chain"
	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/domain"
)

type fakeChain struct {
	tokens      decimal.Decimal
	gas         decimal.Decimal
	balanceFn   func(ctx context.Context) (decimal.Decimal, error)
	estimate    uint64
	estimateErr error
	submitHash  string
	submitErr   error
	submitGas   uint64
	reverted    bool
	waitErr     error
	faucetHash  string
	faucetErr   error
}

func (f *fakeChain) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if f.balanceFn != nil {
		return f.balanceFn(ctx)
	}
	return f.tokens, nil
}

func (f *fakeChain) GasBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return f.gas, nil
}

func (f *fakeChain) EstimateTrade(ctx context.Context, req domain.TradeRequest) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeChain) SubmitTrade(ctx context.Context, req domain.TradeRequest, gasLimit uint64) (string, error) {
	f.submitGas = gasLimit
	return f.submitHash, f.submitErr
}

func (f *fakeChain) WaitMined(ctx context.Context, txHash string) (bool, error) {
	return f.reverted, f.waitErr
}

func (f *fakeChain) ClaimFaucet(ctx context.Context) (string, error) {
	return f.faucetHash, f.faucetErr
}

type fakeBackend struct {
	receipt clients.SimulatedReceipt
	calls   int
}

func (f *fakeBackend) SubmitSimulatedTrade(ctx context.Context, req domain.TradeRequest) clients.SimulatedReceipt {
	f.calls++
	return f.receipt
}

type fakeSessions struct{ session domain.WalletSession }

func (f *fakeSessions) Current() domain.WalletSession { return f.session }

type fakeBalances struct{ refreshes int }

func (f *fakeBalances) Refresh(ctx context.Context, address string) (domain.BalanceRecord, error) {
	f.refreshes++
	return domain.BalanceRecord{}, nil
}

type fakeJournal struct{ outcomes []domain.TradeOutcome }

func (f *fakeJournal) SaveOutcome(outcome domain.TradeOutcome) error {
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func healthyChain() *fakeChain {
	return &fakeChain{
		tokens:     decimal.NewFromInt(100),
		gas:        decimal.NewFromInt(1),
		estimate:   100000,
		submitHash: "0xdead",
	}
}

func validRequest() domain.TradeRequest {
	return domain.TradeRequest{
		Symbol:    "BTC",
		Direction: domain.DirectionBuy,
		Amount:    decimal.NewFromInt(5),
		Price:     decimal.NewFromInt(50000),
	}
}

func newOrchestrator(ch *fakeChain, backend *fakeBackend, balances *fakeBalances, journal *fakeJournal, opts ...Option) *Orchestrator {
	sessions := &fakeSessions{session: domain.WalletSession{Address: "0xabc", ChainID: 97}}
	return New(ch, backend, sessions, balances, journal, zap.NewNop(), opts...)
}

func TestExecuteOnChain(t *testing.T) {
	ch := healthyChain()
	backend := &fakeBackend{}
	balances := &fakeBalances{}
	journal := &fakeJournal{}

	var phases []Phase
	o := newOrchestrator(ch, backend, balances, journal, WithProgress(func(_ string, p Phase) {
		phases = append(phases, p)
	}))

	outcome := o.Execute(context.Background(), validRequest())

	assert.Equal(t, domain.ModeOnChain, outcome.Mode)
	assert.Equal(t, "0xdead", outcome.TxHash)
	assert.Empty(t, outcome.TradeID)
	assert.True(t, outcome.Succeeded())
	assert.Equal(t, []Phase{PhaseValidating, PhaseEstimating, PhaseSubmitting, PhaseConfirming}, phases)
	assert.Equal(t, uint64(120000), ch.submitGas, "gas limit carries 20% headroom")
	assert.Equal(t, 1, balances.refreshes, "balance refreshed after settlement")
	assert.Zero(t, backend.calls)
	require.Len(t, journal.outcomes, 1)
	assert.Equal(t, outcome.AttemptID, journal.outcomes[0].AttemptID)
}

func TestExecuteValidation(t *testing.T) {
	t.Run("disconnected wallet", func(t *testing.T) {
		o := New(healthyChain(), &fakeBackend{}, &fakeSessions{}, &fakeBalances{}, &fakeJournal{}, zap.NewNop())

		outcome := o.Execute(context.Background(), validRequest())
		assert.Equal(t, domain.ModeFailed, outcome.Mode)
		assert.True(t, errors.Is(outcome.Fault, &domain.Fault{Kind: domain.FaultValidation}))
		assert.Contains(t, outcome.Reason, "not connected")
	})

	t.Run("amount below minimum fails, exact minimum passes", func(t *testing.T) {
		ch := healthyChain()
		o := newOrchestrator(ch, &fakeBackend{}, &fakeBalances{}, &fakeJournal{})

		req := validRequest()
		req.Amount = decimal.NewFromFloat(0.009)
		outcome := o.Execute(context.Background(), req)
		assert.Equal(t, domain.ModeFailed, outcome.Mode)
		assert.Contains(t, outcome.Reason, "below the minimum")

		req.Amount = decimal.NewFromFloat(0.01)
		outcome = o.Execute(context.Background(), req)
		assert.Equal(t, domain.ModeOnChain, outcome.Mode, "boundary amount is accepted")
	})

	t.Run("insufficient token balance is distinct from insufficient gas", func(t *testing.T) {
		ch := healthyChain()
		ch.tokens = decimal.NewFromInt(1)
		o := newOrchestrator(ch, &fakeBackend{}, &fakeBalances{}, &fakeJournal{})

		outcome := o.Execute(context.Background(), validRequest())
		assert.Contains(t, outcome.Reason, "insufficient trade balance")

		ch.tokens = decimal.NewFromInt(100)
		ch.gas = decimal.NewFromFloat(0.0001)
		outcome = o.Execute(context.Background(), validRequest())
		assert.Contains(t, outcome.Reason, "insufficient gas")
	})

	t.Run("validation failures never fall back to simulation", func(t *testing.T) {
		backend := &fakeBackend{}
		o := New(healthyChain(), backend, &fakeSessions{}, &fakeBalances{}, &fakeJournal{}, zap.NewNop())

		o.Execute(context.Background(), validRequest())
		assert.Zero(t, backend.calls)
	})

	t.Run("hung balance query terminates within the configured bound", func(t *testing.T) {
		ch := healthyChain()
		ch.balanceFn = func(ctx context.Context) (decimal.Decimal, error) {
			<-ctx.Done()
			return decimal.Zero, ctx.Err()
		}
		o := newOrchestrator(ch, &fakeBackend{}, &fakeBalances{}, &fakeJournal{},
			WithBalanceTimeout(50*time.Millisecond))

		done := make(chan domain.TradeOutcome, 1)
		go func() { done <- o.Execute(context.Background(), validRequest()) }()

		select {
		case outcome := <-done:
			assert.Equal(t, domain.ModeFailed, outcome.Mode)
			assert.True(t, errors.Is(outcome.Fault, &domain.Fault{Kind: domain.FaultUnavailable}))
			assert.Contains(t, outcome.Reason, "balance check failed")
		case <-time.After(2 * time.Second):
			t.Fatal("attempt stuck in validation")
		}
	})
}

func TestExecuteSimulatedFallback(t *testing.T) {
	t.Run("estimation failure degrades to simulated", func(t *testing.T) {
		ch := healthyChain()
		ch.estimateErr = errors.New("execution reverted: daily loss limit")
		backend := &fakeBackend{receipt: clients.SimulatedReceipt{TradeID: "SIM-1", Note: "Trade recorded locally (backend unavailable)"}}
		balances := &fakeBalances{}
		journal := &fakeJournal{}
		o := newOrchestrator(ch, backend, balances, journal)

		outcome := o.Execute(context.Background(), validRequest())
		assert.Equal(t, domain.ModeSimulated, outcome.Mode)
		assert.Equal(t, "SIM-1", outcome.TradeID)
		assert.Empty(t, outcome.TxHash)
		assert.True(t, outcome.Succeeded(), "fallback is a success terminal state")
		assert.Equal(t, 1, balances.refreshes, "success terminals refresh the balance in either mode")
		require.Len(t, journal.outcomes, 1)
	})

	t.Run("broadcast failure degrades to simulated", func(t *testing.T) {
		ch := healthyChain()
		ch.submitErr = errors.New("connection refused")
		backend := &fakeBackend{receipt: clients.SimulatedReceipt{TradeID: "TRD-9"}}
		o := newOrchestrator(ch, backend, &fakeBalances{}, &fakeJournal{})

		outcome := o.Execute(context.Background(), validRequest())
		assert.Equal(t, domain.ModeSimulated, outcome.Mode)
		assert.Equal(t, "TRD-9", outcome.TradeID)
	})

	t.Run("user rejection fails without fallback", func(t *testing.T) {
		ch := healthyChain()
		ch.submitErr = errors.Wrap(chain.ErrRejected, "submit")
		backend := &fakeBackend{}
		o := newOrchestrator(ch, backend, &fakeBalances{}, &fakeJournal{})

		outcome := o.Execute(context.Background(), validRequest())
		assert.Equal(t, domain.ModeFailed, outcome.Mode)
		assert.True(t, errors.Is(outcome.Fault, &domain.Fault{Kind: domain.FaultUserRejected}))
		assert.Zero(t, backend.calls)
	})
}

func TestExecuteRevert(t *testing.T) {
	ch := healthyChain()
	ch.reverted = true
	backend := &fakeBackend{}
	balances := &fakeBalances{}
	o := newOrchestrator(ch, backend, balances, &fakeJournal{})

	outcome := o.Execute(context.Background(), validRequest())

	assert.Equal(t, domain.ModeFailed, outcome.Mode)
	assert.True(t, errors.Is(outcome.Fault, &domain.Fault{Kind: domain.FaultChainReverted}))
	assert.Equal(t, "0xdead", outcome.TxHash, "hash kept for the explorer link")
	assert.Zero(t, backend.calls, "a mined revert never falls back")
	assert.Zero(t, balances.refreshes, "no refresh on failure")
}

func TestClaimFaucet(t *testing.T) {
	t.Run("settled claim refreshes balance", func(t *testing.T) {
		ch := healthyChain()
		ch.faucetHash = "0xfaucet"
		balances := &fakeBalances{}
		o := newOrchestrator(ch, &fakeBackend{}, balances, &fakeJournal{})

		hash, err := o.ClaimFaucet(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "0xfaucet", hash)
		assert.Equal(t, 1, balances.refreshes)
	})

	t.Run("disconnected wallet cannot claim", func(t *testing.T) {
		o := New(healthyChain(), &fakeBackend{}, &fakeSessions{}, &fakeBalances{}, &fakeJournal{}, zap.NewNop())

		_, err := o.ClaimFaucet(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, &domain.Fault{Kind: domain.FaultValidation}))
	})

	t.Run("reverted claim surfaces the cooldown", func(t *testing.T) {
		ch := healthyChain()
		ch.faucetHash = "0xfaucet"
		ch.reverted = true
		balances := &fakeBalances{}
		o := newOrchestrator(ch, &fakeBackend{}, balances, &fakeJournal{})

		_, err := o.ClaimFaucet(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, &domain.Fault{Kind: domain.FaultChainReverted}))
		assert.Zero(t, balances.refreshes)
	})
}

func TestExecuteConfirmationError(t *testing.T) {
	ch := healthyChain()
	ch.waitErr = errors.New("rpc gone")
	backend := &fakeBackend{}
	o := newOrchestrator(ch, backend, &fakeBalances{}, &fakeJournal{})

	outcome := o.Execute(context.Background(), validRequest())

	assert.Equal(t, domain.ModeFailed, outcome.Mode)
	assert.Equal(t, "0xdead", outcome.TxHash)
	assert.Zero(t, backend.calls, "broadcast trades are never double-recorded")
}
