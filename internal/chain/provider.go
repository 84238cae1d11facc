// Package chain abstracts the wallet/chain provider: account authorization,
// network switching, the trading contract's calls and transaction lifecycle.
package chain

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/aitradehq/tradeflow/internal/domain"
)

var (
	// ErrRejected means the user declined the provider's approval prompt.
	ErrRejected = errors.New("request rejected by user")
	// ErrNoProvider means no wallet provider is available at all.
	ErrNoProvider = errors.New("wallet provider is not available")
	// ErrUnknownChain means the target chain must be added before switching.
	ErrUnknownChain = errors.New("chain is not known to the provider")
)

// Params is the fixed parameter set supplied when adding a network to the
// provider: name, RPC endpoint, explorer and native currency.
type Params struct {
	ID               int64
	Name             string
	RPCURL           string
	ExplorerURL      string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals int
}

// Provider is the wallet/chain interface the core depends on. The production
// implementation is EthProvider; tests substitute fakes.
type Provider interface {
	// Accounts returns currently authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	// RequestAccounts triggers the user-facing approval prompt.
	RequestAccounts(ctx context.Context) ([]string, error)
	// ChainID returns the provider's active chain.
	ChainID(ctx context.Context) (int64, error)
	// SwitchChain asks the provider to change its active chain. Returns
	// ErrUnknownChain when the chain has to be added first.
	SwitchChain(ctx context.Context, chainID int64) error
	// AddChain registers a network with a fixed parameter set.
	AddChain(ctx context.Context, params Params) error
	// BalanceOf queries the trading contract's token balance, in tokens.
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	// GasBalance queries the native currency balance, in native units.
	GasBalance(ctx context.Context, address string) (decimal.Decimal, error)
	// EstimateTrade asks the node for a gas estimate of the executeTrade
	// call. An error here usually means the contract would revert.
	EstimateTrade(ctx context.Context, req domain.TradeRequest) (uint64, error)
	// SubmitTrade signs and broadcasts the trade with the given gas limit,
	// returning the transaction hash immediately.
	SubmitTrade(ctx context.Context, req domain.TradeRequest, gasLimit uint64) (string, error)
	// WaitMined blocks until the transaction is mined. reverted is true
	// when the receipt carries a failed status.
	WaitMined(ctx context.Context, txHash string) (reverted bool, err error)
	// ClaimFaucet submits the faucet claim transaction.
	ClaimFaucet(ctx context.Context) (string, error)
}
