package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/domain"
)

// simulatedIDPrefix marks trade IDs synthesized without a backend record.
const simulatedIDPrefix = "SIM-"

// BackendClient talks to the platform backend API. Every call is bounded by
// the configured timeout; the backend being down is an expected condition and
// degrades to cached or locally synthesized data at the call sites.
type BackendClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewBackendClient creates a client for the given base URL.
func NewBackendClient(baseURL string, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BackendClient{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Dashboard is the combined dashboard payload for a selected instrument.
type Dashboard struct {
	Prices      map[string]domain.Quote
	Signal      domain.Signal
	Portfolio   domain.Portfolio
	Performance domain.Performance
	RiskLimits  domain.RiskLimits
}

// WalletBalance is the backend's view of an address, including the faucet
// side data the wallet page renders.
type WalletBalance struct {
	Balance        decimal.Decimal
	CanClaimFaucet bool
	Cooldown       time.Duration
}

// SimulatedReceipt is the terminal record of a simulated trade submission.
type SimulatedReceipt struct {
	TradeID string
	Note    string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	TradeID string          `json:"trade_id"`
}

type dashboardPayload struct {
	Prices        map[string]domain.Quote `json:"prices"`
	CurrentSignal *domain.Signal          `json:"current_signal"`
	Portfolio     *domain.Portfolio       `json:"portfolio"`
	Performance   *domain.Performance     `json:"performance"`
	SmartContract struct {
		RiskLimits *domain.RiskLimits `json:"risk_limits"`
	} `json:"smart_contract"`
}

type balancePayload struct {
	Balance         decimal.Decimal `json:"balance"`
	CanClaimFaucet  bool            `json:"can_claim_faucet"`
	CooldownSeconds int64           `json:"cooldown_seconds"`
}

// GetPrices fetches the price-list endpoint, the authoritative low-latency
// price source.
func (c *BackendClient) GetPrices(ctx context.Context) (map[string]domain.Quote, error) {
	var prices map[string]domain.Quote
	if err := c.getJSON(ctx, "/api/market/prices", &prices); err != nil {
		return nil, errors.Wrap(err, "fetch prices")
	}
	return prices, nil
}

// GetDashboard fetches the combined dashboard, optionally scoped to a symbol.
func (c *BackendClient) GetDashboard(ctx context.Context, symbol string) (*Dashboard, error) {
	path := "/api/dashboard"
	if symbol != "" {
		path += "?symbol=" + symbol
	}

	var payload dashboardPayload
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, errors.Wrap(err, "fetch dashboard")
	}

	dash := &Dashboard{Prices: payload.Prices}
	if payload.CurrentSignal != nil {
		dash.Signal = payload.CurrentSignal.Clamp()
	} else {
		dash.Signal = domain.HoldSignal()
	}
	if payload.Portfolio != nil {
		dash.Portfolio = *payload.Portfolio
	}
	if payload.Performance != nil {
		dash.Performance = *payload.Performance
	}
	if payload.SmartContract.RiskLimits != nil {
		dash.RiskLimits = *payload.SmartContract.RiskLimits
	}
	return dash, nil
}

// GetPerformance fetches the full aggregate trade counters.
func (c *BackendClient) GetPerformance(ctx context.Context) (domain.Performance, error) {
	var perf domain.Performance
	if err := c.getJSON(ctx, "/api/trades/performance", &perf); err != nil {
		return domain.Performance{}, errors.Wrap(err, "fetch performance")
	}
	return perf, nil
}

// GetWalletBalance is the secondary balance path used when the direct
// on-chain query stalls, plus the faucet eligibility side data.
func (c *BackendClient) GetWalletBalance(ctx context.Context, address string) (WalletBalance, error) {
	var payload balancePayload
	if err := c.getJSON(ctx, "/api/blockchain/balance/"+address, &payload); err != nil {
		return WalletBalance{}, errors.Wrapf(err, "fetch wallet balance for %s", address)
	}
	return WalletBalance{
		Balance:        payload.Balance,
		CanClaimFaucet: payload.CanClaimFaucet,
		Cooldown:       time.Duration(payload.CooldownSeconds) * time.Second,
	}, nil
}

// SubmitSimulatedTrade records a trade in the backend without touching the
// chain. The endpoint is the safety net of the execution path, so it never
// returns a hard failure: any HTTP or network error yields a locally
// synthesized receipt instead.
func (c *BackendClient) SubmitSimulatedTrade(ctx context.Context, req domain.TradeRequest) SimulatedReceipt {
	body := map[string]any{
		"symbol":         req.Symbol,
		"trade_type":     req.Direction.String(),
		"amount":         req.Amount,
		"price":          req.Price,
		"wallet_address": req.WalletAddress,
		"confidence":     req.Confidence,
		"risk_score":     req.RiskScore,
		"mode":           "simulated",
	}

	env, err := c.postJSON(ctx, "/api/trades/execute-simulated", body)
	if err != nil {
		c.logger.Warn("simulated trade endpoint unavailable, recording locally",
			zap.String("symbol", req.Symbol), zap.Error(err))
		return c.localReceipt()
	}

	tradeID := env.TradeID
	if tradeID == "" {
		tradeID = simulatedIDPrefix + strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	note := env.Message
	if note == "" {
		note = "Simulated trade executed successfully"
	}
	return SimulatedReceipt{TradeID: tradeID, Note: note}
}

func (c *BackendClient) localReceipt() SimulatedReceipt {
	return SimulatedReceipt{
		TradeID: simulatedIDPrefix + strconv.FormatInt(c.now().UnixMilli(), 10),
		Note:    "Trade recorded locally (backend unavailable)",
	}
}

func (c *BackendClient) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Responses come either enveloped as {success, data} or as the bare
	// payload, depending on the endpoint generation.
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func (c *BackendClient) postJSON(ctx context.Context, path string, body any) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}
