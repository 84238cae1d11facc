package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinTradeAmount is the smallest accepted trade size in tokens. The boundary
// is inclusive: exactly 0.01 passes validation.
var MinTradeAmount = decimal.NewFromFloat(0.01)

// TradeMode is the terminal classification of a trade attempt. It is assigned
// exactly once per attempt and never moves backward.
type TradeMode string

const (
	// ModeOnChain means the trade settled as a mined blockchain transaction.
	ModeOnChain TradeMode = "ON_CHAIN"
	// ModeSimulated means the trade was recorded by the backend (or locally)
	// without touching the chain.
	ModeSimulated TradeMode = "SIMULATED"
	// ModeFailed means no record was produced anywhere.
	ModeFailed TradeMode = "FAILED"
)

// TradeRequest is one user-initiated execution request.
type TradeRequest struct {
	Symbol        string
	Direction     Direction
	Amount        decimal.Decimal
	Price         decimal.Decimal
	WalletAddress string
	Confidence    decimal.Decimal
	RiskScore     decimal.Decimal
}

// Normalize trims and uppercases the symbol. Direction normalization happens
// in ParseDirection; a request built from a raw string should go through it
// before reaching the orchestrator.
func (r TradeRequest) Normalize() TradeRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	return r
}

// TradeOutcome is the single terminal result of a trade attempt.
// Exactly one of TxHash (on-chain) or TradeID (simulated) is set on success;
// Fault is set only when Mode is ModeFailed.
type TradeOutcome struct {
	AttemptID string          `json:"attempt_id"`
	Mode      TradeMode       `json:"mode"`
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	TxHash    string          `json:"tx_hash,omitempty"`
	TradeID   string          `json:"trade_id,omitempty"`
	Note      string          `json:"note,omitempty"`
	Fault     *Fault          `json:"-"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// Succeeded reports whether the attempt reached a success terminal state.
func (o TradeOutcome) Succeeded() bool {
	return o.Mode == ModeOnChain || o.Mode == ModeSimulated
}
