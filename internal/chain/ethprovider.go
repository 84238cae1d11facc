package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aitradehq/tradeflow/internal/domain"
)

// tradeContractABI covers the three calls the client uses. The contract's
// amount and balance values are 18-decimal token units; price is submitted
// as whole quote units, floored.
const tradeContractABI = `[
	{"name":"executeTrade","type":"function","stateMutability":"nonpayable","inputs":[{"name":"symbol","type":"string"},{"name":"tradeType","type":"string"},{"name":"amount","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"claimFaucet","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`

const (
	tokenDecimals       = 18
	receiptPollInterval = 2 * time.Second
)

// EthProvider implements Provider over a JSON-RPC node with a locally held
// signing key. A missing key plays the role of an uninstalled wallet
// extension: every call that needs an account degrades to ErrNoProvider.
type EthProvider struct {
	mu       sync.Mutex
	client   *ethclient.Client
	chains   map[int64]Params
	active   Params
	key      *ecdsa.PrivateKey
	address  common.Address
	contract common.Address
	abi      abi.ABI
	approve  func() bool
	logger   *zap.Logger
}

// EthOption configures the provider.
type EthOption func(*EthProvider)

// WithApproval installs the hook consulted before account authorization and
// transaction submission; returning false maps to the user declining the
// wallet prompt.
func WithApproval(fn func() bool) EthOption {
	return func(p *EthProvider) { p.approve = fn }
}

// NewEthProvider builds a provider for the given network and contract.
// privateKeyHex may be empty, which models the provider-absent state.
func NewEthProvider(params Params, contractAddr, privateKeyHex string, logger *zap.Logger, opts ...EthOption) (*EthProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := abi.JSON(strings.NewReader(tradeContractABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse trade contract ABI")
	}

	p := &EthProvider{
		chains:   map[int64]Params{params.ID: params},
		active:   params,
		contract: common.HexToAddress(contractAddr),
		abi:      parsed,
		logger:   logger,
	}

	if privateKeyHex != "" {
		key := strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")
		p.key, err = crypto.HexToECDSA(key)
		if err != nil {
			return nil, errors.Wrap(err, "decode signing key")
		}
		p.address = crypto.PubkeyToAddress(p.key.PublicKey)
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *EthProvider) ensureClient(ctx context.Context) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := ethclient.DialContext(ctx, p.active.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(ErrNoProvider, "dial %s: %v", p.active.RPCURL, err)
	}
	p.client = client
	return client, nil
}

// Accounts returns the authorized account without prompting.
func (p *EthProvider) Accounts(ctx context.Context) ([]string, error) {
	if p.key == nil {
		return nil, nil
	}
	return []string{p.address.Hex()}, nil
}

// RequestAccounts triggers the approval flow.
func (p *EthProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if p.key == nil {
		return nil, ErrNoProvider
	}
	if p.approve != nil && !p.approve() {
		return nil, ErrRejected
	}
	return []string{p.address.Hex()}, nil
}

// ChainID reports the active chain.
func (p *EthProvider) ChainID(ctx context.Context) (int64, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return 0, err
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "query chain id")
	}
	return id.Int64(), nil
}

// SwitchChain redials against the RPC endpoint registered for the chain.
func (p *EthProvider) SwitchChain(ctx context.Context, chainID int64) error {
	p.mu.Lock()
	params, ok := p.chains[chainID]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownChain
	}
	p.active = params
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
	p.mu.Unlock()

	_, err := p.ensureClient(ctx)
	return err
}

// AddChain registers a network's parameter set.
func (p *EthProvider) AddChain(ctx context.Context, params Params) error {
	if params.ID == 0 || params.RPCURL == "" {
		return errors.New("chain params require id and rpc url")
	}
	p.mu.Lock()
	p.chains[params.ID] = params
	p.mu.Unlock()
	return nil
}

// BalanceOf calls the contract's balanceOf for the address.
func (p *EthProvider) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	data, err := p.abi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "pack balanceOf")
	}

	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &p.contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "call balanceOf")
	}
	return p.unpackBalance(raw)
}

func (p *EthProvider) unpackBalance(raw []byte) (decimal.Decimal, error) {
	out, err := p.abi.Unpack("balanceOf", raw)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "unpack balanceOf")
	}
	if len(out) == 0 {
		return decimal.Zero, errors.New("empty balanceOf response")
	}
	wei, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, errors.New("unexpected balanceOf return type")
	}
	return decimal.NewFromBigInt(wei, -tokenDecimals), nil
}

// GasBalance returns the native currency balance of the address.
func (p *EthProvider) GasBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "query gas balance")
	}
	return decimal.NewFromBigInt(wei, -p.nativeDecimals()), nil
}

// nativeDecimals is the active chain's currency precision; unset chain
// params fall back to the common 18.
func (p *EthProvider) nativeDecimals() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active.CurrencyDecimals > 0 {
		return int32(p.active.CurrencyDecimals)
	}
	return tokenDecimals
}

// EstimateTrade asks the node for an executeTrade gas estimate.
func (p *EthProvider) EstimateTrade(ctx context.Context, req domain.TradeRequest) (uint64, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return 0, err
	}

	data, err := p.packTrade(req)
	if err != nil {
		return 0, err
	}

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: p.address,
		To:   &p.contract,
		Data: data,
	})
	if err != nil {
		return 0, errors.Wrap(err, "estimate executeTrade gas")
	}
	return gas, nil
}

// SubmitTrade signs and broadcasts the executeTrade transaction.
func (p *EthProvider) SubmitTrade(ctx context.Context, req domain.TradeRequest, gasLimit uint64) (string, error) {
	data, err := p.packTrade(req)
	if err != nil {
		return "", err
	}
	return p.submit(ctx, data, gasLimit)
}

// ClaimFaucet submits the claimFaucet transaction with the node's estimate.
func (p *EthProvider) ClaimFaucet(ctx context.Context) (string, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	data, err := p.abi.Pack("claimFaucet")
	if err != nil {
		return "", errors.Wrap(err, "pack claimFaucet")
	}

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: p.address, To: &p.contract, Data: data})
	if err != nil {
		return "", errors.Wrap(err, "estimate claimFaucet gas")
	}
	return p.submit(ctx, data, gas)
}

// WaitMined polls for the receipt until the transaction lands or ctx ends.
func (p *EthProvider) WaitMined(ctx context.Context, txHash string) (bool, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return false, err
	}

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt.Status == types.ReceiptStatusFailed, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return false, errors.Wrap(err, "query receipt")
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *EthProvider) packTrade(req domain.TradeRequest) ([]byte, error) {
	amountWei := req.Amount.Mul(decimal.New(1, tokenDecimals)).BigInt()
	// price goes on chain as whole quote units, matching the contract's
	// uint256 price parameter
	price := req.Price.Floor().BigInt()

	data, err := p.abi.Pack("executeTrade", req.Symbol, req.Direction.String(), amountWei, price)
	if err != nil {
		return nil, errors.Wrap(err, "pack executeTrade")
	}
	return data, nil
}

func (p *EthProvider) submit(ctx context.Context, data []byte, gasLimit uint64) (string, error) {
	if p.key == nil {
		return "", ErrNoProvider
	}
	if p.approve != nil && !p.approve() {
		return "", ErrRejected
	}

	client, err := p.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	nonce, err := client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return "", errors.Wrap(err, "query nonce")
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "query gas price")
	}

	tx := types.NewTransaction(nonce, p.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(p.active.ID)), p.key)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", errors.Wrap(err, "broadcast transaction")
	}

	hash := signed.Hash().Hex()
	p.logger.Info("transaction broadcast",
		zap.String("tx", hash),
		zap.Uint64("gas_limit", gasLimit))
	return hash, nil
}
