package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/alchemy"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/binance"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/bybit"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/evm"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/htx"
	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

const testTopology = `
exchanges:
  name_mapping:
    Binance_Main: binance
    Huobi_Global: htx
chains:
  - name: ethereum
    rpc_url: http://localhost:8545
    wallets:
      - label: treasury
        address: "0x00000000000000000000000000000000000000aa"
      - label: ops
        address: "0x00000000000000000000000000000000000000bb"
    tokens:
      - symbol: eth
      - symbol: ALI
        address: "0x6B0b3a982b4634aC68dD83a4DBF02311cE324181"
  - name: solana
    rpc_url: http://localhost:8899
    wallets:
      - label: main
        address: 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU
    tokens:
      - symbol: SOL
`

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	topo, err := config.ParseTopology([]byte(testTopology))
	require.NoError(t, err)
	return NewFactory(topo, Options{}, logger.Nop())
}

func account(exchange, id string) balance.AccountDescriptor {
	return balance.AccountDescriptor{
		AccountID: id,
		Exchange:  exchange,
		APIKey:    "key-" + id,
		APISecret: "secret-" + id,
		Active:    true,
	}
}

func TestFactory_ForAccount(t *testing.T) {
	f := newTestFactory(t)

	gw, err := f.ForAccount(account("Binance_Main", "acc1"))
	require.NoError(t, err)
	assert.IsType(t, &binance.Gateway{}, gw)

	gw, err = f.ForAccount(account("bybit", "acc2"))
	require.NoError(t, err)
	assert.IsType(t, &bybit.Gateway{}, gw)
}

func TestFactory_ForAccount_HTX(t *testing.T) {
	f := newTestFactory(t)

	acc := account("HTX", "acc3")
	gw, err := f.ForAccount(acc)
	require.NoError(t, err)
	assert.IsType(t, &htx.Gateway{}, gw)
	first := f.cached(clientKey(HTX, acc))
	require.NotNil(t, first)

	legacy := acc
	legacy.Exchange = "Huobi_Global"
	gw, err = f.ForAccount(legacy)
	require.NoError(t, err)
	assert.IsType(t, &htx.Gateway{}, gw)
	assert.Same(t, first, f.cached(clientKey(HTX, legacy)))

	gw, err = f.ForAccount(account("Huobi", "acc5"))
	require.NoError(t, err)
	assert.IsType(t, &htx.Gateway{}, gw)

	mapped := account("anything", "acc4")
	mapped.VenueID = HTX
	gw, err = f.ForAccount(mapped)
	require.NoError(t, err)
	assert.IsType(t, &htx.Gateway{}, gw)
}

func TestFactory_ForAccount_Errors(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.ForAccount(account("kraken", "acc1"))
	assert.ErrorIs(t, err, balance.ErrUnsupportedVenue)

	noCreds := account("binance", "acc2")
	noCreds.APISecret = ""
	_, err = f.ForAccount(noCreds)
	assert.ErrorIs(t, err, balance.ErrMissingCredentials)
}

func TestFactory_ClientCache(t *testing.T) {
	f := newTestFactory(t)
	acc := account("binance", "acc1")

	_, err := f.ForAccount(acc)
	require.NoError(t, err)
	first := f.cached(clientKey(Binance, acc))
	require.NotNil(t, first)

	_, err = f.ForAccount(acc)
	require.NoError(t, err)
	assert.Same(t, first, f.cached(clientKey(Binance, acc)))

	rotated := acc
	rotated.APISecret = "new-secret"
	assert.NotEqual(t, clientKey(Binance, acc), clientKey(Binance, rotated))
	assert.Equal(t, 1, f.clients.ItemCount())
}

func TestFactory_LimiterSharedPerVenue(t *testing.T) {
	f := newTestFactory(t)
	assert.Same(t, f.limiter(Binance), f.limiter(Binance))
	assert.NotSame(t, f.limiter(Binance), f.limiter(Bybit))
}

func TestFactory_Wallets(t *testing.T) {
	f := newTestFactory(t)

	wallets := f.Wallets()
	require.Len(t, wallets, 3)
	assert.Equal(t, "ethereum", wallets[0].Chain)
	assert.Equal(t, "treasury", wallets[0].Label)
	assert.Equal(t, []string{"ETH", "ALI"}, wallets[0].Assets)
	assert.Equal(t, balance.NewSourceKey("solana", "main"), wallets[2].Key())
}

func TestFactory_ForWallet(t *testing.T) {
	f := newTestFactory(t)
	defer f.Close()

	wallets := f.Wallets()

	gw, err := f.ForWallet(wallets[0])
	require.NoError(t, err)
	assert.IsType(t, &evm.Gateway{}, gw)

	gw, err = f.ForWallet(wallets[2])
	require.NoError(t, err)
	assert.IsType(t, &alchemy.Gateway{}, gw)

	_, err = f.ForWallet(balance.WalletDescriptor{Chain: "tron", Label: "x"})
	assert.ErrorIs(t, err, balance.ErrUnsupportedVenue)
}
