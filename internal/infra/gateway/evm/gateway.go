package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/money"
)

// ERC20 ABI minimal part for balanceOf
const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	parsedERC20ABI  abi.ABI
	parsedERC20Once sync.Once
)

func erc20() abi.ABI {
	parsedERC20Once.Do(func() {
		var err error
		parsedERC20ABI, err = abi.JSON(strings.NewReader(erc20ABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
		}
	})
	return parsedERC20ABI
}

// BatchCaller is the part of *rpc.Client the gateway needs
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Gateway reads the tracked token balances of one EVM wallet in a single JSON-RPC batch
type Gateway struct {
	client  BatchCaller
	wallet  config.Wallet
	tokens  []config.Token
	limiter *rate.Limiter
}

// NewGateway creates a gateway bound to wallet. limiter may be nil.
func NewGateway(client BatchCaller, wallet config.Wallet, tokens []config.Token, limiter *rate.Limiter) *Gateway {
	return &Gateway{
		client:  client,
		wallet:  wallet,
		tokens:  tokens,
		limiter: limiter,
	}
}

// FetchBalances issues eth_getBalance for the native token and eth_call
// balanceOf for each ERC-20, all in one batch.
func (g *Gateway) FetchBalances(ctx context.Context) (balance.Balances, error) {
	if len(g.tokens) == 0 {
		return balance.Balances{}, nil
	}
	if !common.IsHexAddress(g.wallet.Address) {
		return nil, errors.Errorf("invalid address %q for wallet %s", g.wallet.Address, g.wallet.Label)
	}
	owner := common.HexToAddress(g.wallet.Address)

	callData, err := erc20().Pack("balanceOf", owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack balanceOf")
	}

	batch := make([]rpc.BatchElem, len(g.tokens))
	for i, tok := range g.tokens {
		if tok.Address == "" {
			batch[i] = rpc.BatchElem{
				Method: "eth_getBalance",
				Args:   []any{owner, "latest"},
				Result: new(hexutil.Big),
			}
			continue
		}
		batch[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{map[string]any{
				"to":   common.HexToAddress(tok.Address),
				"data": hexutil.Bytes(callData),
			}, "latest"},
			Result: new(hexutil.Bytes),
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	if err := g.client.BatchCallContext(ctx, batch); err != nil {
		return nil, errors.Wrap(err, "RPC batch call failed")
	}

	out := balance.Balances{}
	for i, elem := range batch {
		tok := g.tokens[i]
		if elem.Error != nil {
			return nil, errors.Wrapf(elem.Error, "failed to fetch %s for %s", tok.Symbol, g.wallet.Label)
		}

		raw, err := decode(elem)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode %s balance", tok.Symbol)
		}

		amount := money.FromBaseUnits(raw, tok.Decimals)
		out.Add(balance.NewEntry(tok.Symbol, amount, decimal.Zero, amount))
	}

	return out, nil
}

func decode(elem rpc.BatchElem) (*big.Int, error) {
	switch res := elem.Result.(type) {
	case *hexutil.Big:
		return (*big.Int)(res), nil
	case *hexutil.Bytes:
		if len(*res) == 0 {
			return big.NewInt(0), nil
		}
		unpacked, err := erc20().Unpack("balanceOf", *res)
		if err != nil {
			return nil, err
		}
		if len(unpacked) == 0 {
			return nil, errors.New("balanceOf returned no data")
		}
		v, ok := unpacked[0].(*big.Int)
		if !ok {
			return nil, errors.Errorf("unexpected balanceOf type %T", unpacked[0])
		}
		return v, nil
	}
	return nil, errors.Errorf("unexpected result type %T", elem.Result)
}

var _ balance.Gateway = (*Gateway)(nil)
