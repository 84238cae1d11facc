package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSource tells which lookup path produced the cached balance.
type BalanceSource string

const (
	// SourceOnChainDirect is a balanceOf call answered by the RPC node.
	SourceOnChainDirect BalanceSource = "ON_CHAIN_DIRECT"
	// SourceBackendFallback is the backend's balance-lookup endpoint.
	SourceBackendFallback BalanceSource = "BACKEND_FALLBACK"
)

// BalanceRecord is the last known-good token balance for the connected
// wallet. Amount is overwritten only by a successful fetch; every failed
// path keeps the previous value so the figure never flashes to zero.
type BalanceRecord struct {
	Amount    decimal.Decimal `json:"amount"`
	Source    BalanceSource   `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FaucetStatus is the claim-eligibility side query for the test-token faucet.
type FaucetStatus struct {
	CanClaim        bool          `json:"can_claim"`
	Cooldown        time.Duration `json:"cooldown"`
	LastRefreshedAt time.Time     `json:"last_refreshed_at"`
}
