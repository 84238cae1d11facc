// Package poller keeps a merge-only market snapshot fresh by polling the
// backend on a fixed interval.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aitradehq/tradeflow/internal/clients"
	"github.com/aitradehq/tradeflow/internal/domain"
)

// Backend is the subset of the backend client the poller needs.
type Backend interface {
	GetPrices(ctx context.Context) (map[string]domain.Quote, error)
	GetDashboard(ctx context.Context, symbol string) (*clients.Dashboard, error)
	GetPerformance(ctx context.Context) (domain.Performance, error)
}

// Snapshot is the poller's merged view of the market. Every field holds the
// last successfully fetched value; a failed poll never clears anything.
type Snapshot struct {
	Prices      map[string]domain.Quote
	Signal      domain.Signal
	Portfolio   domain.Portfolio
	Performance domain.Performance
	RiskLimits  domain.RiskLimits
	UpdatedAt   time.Time
	Stale       bool
}

// Poller fetches prices, the dashboard and the performance counters in
// parallel and merges results into the snapshot.
type Poller struct {
	backend Backend
	symbol  string
	logger  *zap.Logger

	mu       sync.Mutex
	snapshot Snapshot
	stop     func()
}

// NewPoller creates a poller seeded with demo-mode defaults so UI surfaces
// have something to render before the first successful fetch.
func NewPoller(backend Backend, symbol string, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		backend: backend,
		symbol:  symbol,
		logger:  logger.With(zap.String("component", "poller")),
		snapshot: Snapshot{
			Signal:     domain.HoldSignal(),
			Portfolio:  domain.DefaultPortfolio(),
			RiskLimits: domain.DefaultRiskLimits(),
			Stale:      true,
		},
	}
}

// Start begins polling and returns a stop function. Calling Start on a
// running poller is a no-op returning the existing stop; the stop function
// itself is safe to call more than once.
func (p *Poller) Start(ctx context.Context, interval time.Duration) func() {
	p.mu.Lock()
	if p.stop != nil {
		stop := p.stop
		p.mu.Unlock()
		return stop
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			p.mu.Lock()
			p.stop = nil
			p.mu.Unlock()
		})
	}
	p.stop = stop
	p.mu.Unlock()

	go p.run(ctx, interval)
	return stop
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	// first fetch happens immediately, not one interval in
	p.pollOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs the fetches in parallel and merges the results under the
// lock. The requests are independent: one failing does not cancel the
// others, and each error only logs. No network call happens while the lock
// is held.
func (p *Poller) pollOnce(ctx context.Context) {
	var (
		prices    map[string]domain.Quote
		pricesErr error
		dash      *clients.Dashboard
		dashErr   error
		perf      domain.Performance
		perfErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prices, pricesErr = p.backend.GetPrices(gctx)
		return nil
	})
	g.Go(func() error {
		dash, dashErr = p.backend.GetDashboard(gctx, p.symbol)
		return nil
	})
	g.Go(func() error {
		perf, perfErr = p.backend.GetPerformance(gctx)
		return nil
	})
	g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	merged := false
	if dashErr == nil && dash != nil {
		if len(dash.Prices) > 0 {
			p.snapshot.Prices = mergePrices(p.snapshot.Prices, dash.Prices)
		}
		p.snapshot.Signal = dash.Signal
		p.snapshot.Portfolio = dash.Portfolio
		p.snapshot.RiskLimits = dash.RiskLimits
		merged = true
	} else if dashErr != nil {
		p.logger.Warn("dashboard poll failed, keeping previous snapshot", zap.Error(dashErr))
	}

	// the full counters live on a dedicated endpoint; the dashboard's
	// embedded block and the cached value are the fallbacks
	if perfErr == nil {
		p.snapshot.Performance = perf
	} else if dashErr == nil && dash != nil && dash.Performance.TotalTrades > 0 {
		p.snapshot.Performance = dash.Performance
	}

	// the dedicated price endpoint is the authoritative source, so it is
	// merged after the dashboard-embedded prices
	if pricesErr == nil && len(prices) > 0 {
		p.snapshot.Prices = mergePrices(p.snapshot.Prices, prices)
		merged = true
	} else if pricesErr != nil {
		p.logger.Warn("price poll failed, keeping previous prices", zap.Error(pricesErr))
	}

	if merged {
		p.snapshot.UpdatedAt = time.Now()
		p.snapshot.Stale = false
	} else {
		p.snapshot.Stale = true
	}
}

// Snapshot returns a deep copy of the current snapshot.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.snapshot
	out.Prices = make(map[string]domain.Quote, len(p.snapshot.Prices))
	for k, v := range p.snapshot.Prices {
		out.Prices[k] = v
	}
	return out
}

func mergePrices(dst, src map[string]domain.Quote) map[string]domain.Quote {
	if dst == nil {
		dst = make(map[string]domain.Quote, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
