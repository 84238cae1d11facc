package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	// dev key with the well known 0x90F8bf... address
	testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
)

func testParams() Params {
	return Params{
		ID:               97,
		Name:             "BSC Testnet",
		RPCURL:           "http://localhost:8545",
		CurrencyName:     "BNB",
		CurrencySymbol:   "tBNB",
		CurrencyDecimals: 18,
	}
}

func TestNewEthProvider(t *testing.T) {
	t.Run("without key behaves as an absent provider", func(t *testing.T) {
		p, err := NewEthProvider(testParams(), testContract, "", nil)
		require.NoError(t, err)

		accounts, err := p.Accounts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, accounts)

		_, err = p.RequestAccounts(context.Background())
		assert.True(t, errors.Is(err, ErrNoProvider))
	})

	t.Run("derives the account address from the key", func(t *testing.T) {
		p, err := NewEthProvider(testParams(), testContract, "0x"+testKey, nil)
		require.NoError(t, err)

		accounts, err := p.Accounts(context.Background())
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1", accounts[0])
	})

	t.Run("rejects a malformed key", func(t *testing.T) {
		_, err := NewEthProvider(testParams(), testContract, "not-hex", nil)
		require.Error(t, err)
	})

	t.Run("declined approval maps to rejection", func(t *testing.T) {
		p, err := NewEthProvider(testParams(), testContract, testKey, nil,
			WithApproval(func() bool { return false }))
		require.NoError(t, err)

		_, err = p.RequestAccounts(context.Background())
		assert.True(t, errors.Is(err, ErrRejected))
	})
}

func TestUnpackBalance(t *testing.T) {
	p, err := NewEthProvider(testParams(), testContract, "", nil)
	require.NoError(t, err)

	t.Run("converts token units", func(t *testing.T) {
		raw, err := p.abi.Methods["balanceOf"].Outputs.Pack(big.NewInt(1500000000000000000))
		require.NoError(t, err)

		got, err := p.unpackBalance(raw)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.NewFromFloat(1.5)))
	})

	t.Run("empty response is an error, not a zero balance", func(t *testing.T) {
		_, err := p.unpackBalance(nil)
		require.Error(t, err)
	})
}

func TestNativeDecimals(t *testing.T) {
	params := testParams()
	params.CurrencyDecimals = 8
	p, err := NewEthProvider(params, testContract, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(8), p.nativeDecimals())

	params.CurrencyDecimals = 0
	p, err = NewEthProvider(params, testContract, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(18), p.nativeDecimals(), "unset params use the common precision")
}
