package poller

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/domain"
)

type fakeBackend struct {
	prices    map[string]domain.Quote
	pricesErr error
	dash      *clients.Dashboard
	dashErr   error
	perf      domain.Performance
	perfErr   error
	perfDelay time.Duration
}

func (f *fakeBackend) GetPrices(ctx context.Context) (map[string]domain.Quote, error) {
	return f.prices, f.pricesErr
}

func (f *fakeBackend) GetDashboard(ctx context.Context, symbol string) (*clients.Dashboard, error) {
	return f.dash, f.dashErr
}

func (f *fakeBackend) GetPerformance(ctx context.Context) (domain.Performance, error) {
	if f.perfDelay > 0 {
		select {
		case <-ctx.Done():
			return domain.Performance{}, ctx.Err()
		case <-time.After(f.perfDelay):
		}
	}
	return f.perf, f.perfErr
}

func quote(price float64) domain.Quote {
	return domain.Quote{Price: decimal.NewFromFloat(price)}
}

func TestSeedDefaults(t *testing.T) {
	p := NewPoller(&fakeBackend{}, "BTC", zap.NewNop())

	snap := p.Snapshot()
	assert.Equal(t, domain.DirectionHold, snap.Signal.Direction)
	assert.True(t, snap.Portfolio.TotalValue.Equal(decimal.NewFromInt(10000)))
	assert.True(t, snap.Stale)
}

func TestPollOnce(t *testing.T) {
	t.Run("merges both sources", func(t *testing.T) {
		backend := &fakeBackend{
			prices: map[string]domain.Quote{"BTC": quote(50000)},
			dash: &clients.Dashboard{
				Prices: map[string]domain.Quote{"ETH": quote(3000)},
				Signal: domain.Signal{Direction: domain.DirectionBuy, Confidence: decimal.NewFromFloat(0.8)},
			},
		}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		snap := p.Snapshot()
		assert.True(t, snap.Prices["BTC"].Price.Equal(decimal.NewFromInt(50000)))
		assert.True(t, snap.Prices["ETH"].Price.Equal(decimal.NewFromInt(3000)))
		assert.Equal(t, domain.DirectionBuy, snap.Signal.Direction)
		assert.False(t, snap.Stale)
	})

	t.Run("performance counters merged best-effort", func(t *testing.T) {
		backend := &fakeBackend{
			dash: &clients.Dashboard{},
			perf: domain.Performance{TotalTrades: 7, WinningTrades: 5},
		}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		assert.Equal(t, 7, p.Snapshot().Performance.TotalTrades)

		backend.perfErr = errors.New("down")
		p.pollOnce(context.Background())
		assert.Equal(t, 7, p.Snapshot().Performance.TotalTrades, "kept when endpoint fails")
	})

	t.Run("price endpoint wins over dashboard prices", func(t *testing.T) {
		backend := &fakeBackend{
			prices: map[string]domain.Quote{"BTC": quote(51000)},
			dash: &clients.Dashboard{
				Prices: map[string]domain.Quote{"BTC": quote(50000)},
			},
		}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		snap := p.Snapshot()
		assert.True(t, snap.Prices["BTC"].Price.Equal(decimal.NewFromInt(51000)))
	})

	t.Run("failed price fetch keeps previous prices", func(t *testing.T) {
		backend := &fakeBackend{
			prices: map[string]domain.Quote{"BTC": quote(50000)},
			dash:   &clients.Dashboard{Signal: domain.HoldSignal()},
		}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		backend.prices = nil
		backend.pricesErr = errors.New("timeout")
		backend.dash = &clients.Dashboard{
			Signal: domain.Signal{Direction: domain.DirectionSell, Confidence: decimal.NewFromFloat(0.9)},
		}
		p.pollOnce(context.Background())

		snap := p.Snapshot()
		assert.True(t, snap.Prices["BTC"].Price.Equal(decimal.NewFromInt(50000)), "prices survive the failed fetch")
		assert.Equal(t, domain.DirectionSell, snap.Signal.Direction, "dashboard still merged")
		assert.False(t, snap.Stale)
	})

	t.Run("failed dashboard fetch keeps previous signal while prices update", func(t *testing.T) {
		backend := &fakeBackend{
			prices: map[string]domain.Quote{"BTC": quote(50000)},
			dash: &clients.Dashboard{
				Signal: domain.Signal{Direction: domain.DirectionBuy, Confidence: decimal.NewFromFloat(0.8)},
			},
		}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		backend.prices = map[string]domain.Quote{"BTC": quote(52000)}
		backend.dash = nil
		backend.dashErr = errors.New("502")
		p.pollOnce(context.Background())

		snap := p.Snapshot()
		assert.True(t, snap.Prices["BTC"].Price.Equal(decimal.NewFromInt(52000)), "prices keep flowing")
		assert.Equal(t, domain.DirectionBuy, snap.Signal.Direction, "signal survives the failed fetch")
		assert.False(t, snap.Stale)
	})

	t.Run("total failure marks snapshot stale without clearing it", func(t *testing.T) {
		backend := &fakeBackend{prices: map[string]domain.Quote{"BTC": quote(50000)}, dash: &clients.Dashboard{}}
		p := NewPoller(backend, "BTC", zap.NewNop())
		p.pollOnce(context.Background())

		backend.pricesErr = errors.New("down")
		backend.dashErr = errors.New("down")
		p.pollOnce(context.Background())

		snap := p.Snapshot()
		assert.True(t, snap.Stale)
		assert.True(t, snap.Prices["BTC"].Price.Equal(decimal.NewFromInt(50000)))
	})
}

func TestSnapshotIsACopy(t *testing.T) {
	backend := &fakeBackend{prices: map[string]domain.Quote{"BTC": quote(50000)}, dash: &clients.Dashboard{}}
	p := NewPoller(backend, "BTC", zap.NewNop())
	p.pollOnce(context.Background())

	snap := p.Snapshot()
	snap.Prices["BTC"] = quote(1)

	again := p.Snapshot()
	assert.True(t, again.Prices["BTC"].Price.Equal(decimal.NewFromInt(50000)))
}

func TestSnapshotNotBlockedByPoll(t *testing.T) {
	backend := &fakeBackend{
		prices:    map[string]domain.Quote{"BTC": quote(50000)},
		dash:      &clients.Dashboard{},
		perfDelay: 500 * time.Millisecond,
	}
	p := NewPoller(backend, "BTC", zap.NewNop())

	done := make(chan struct{})
	go func() {
		p.pollOnce(context.Background())
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	p.Snapshot()
	assert.Less(t, time.Since(start), 200*time.Millisecond, "reads do not wait for in-flight requests")
	<-done
}

func TestStartStop(t *testing.T) {
	backend := &fakeBackend{prices: map[string]domain.Quote{"BTC": quote(50000)}, dash: &clients.Dashboard{}}
	p := NewPoller(backend, "BTC", zap.NewNop())

	stop := p.Start(context.Background(), 50*time.Millisecond)
	stopAgain := p.Start(context.Background(), 50*time.Millisecond)

	require.Eventually(t, func() bool {
		return !p.Snapshot().Stale
	}, time.Second, 10*time.Millisecond)

	stop()
	stopAgain()
	stop()
}
