package alchemy

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/money"
)

// Gateway reads the tracked token balances of one Solana wallet
type Gateway struct {
	client  *Client
	wallet  config.Wallet
	tokens  []config.Token
	limiter *rate.Limiter
}

// NewGateway creates a gateway bound to wallet. limiter may be nil.
func NewGateway(client *Client, wallet config.Wallet, tokens []config.Token, limiter *rate.Limiter) *Gateway {
	return &Gateway{
		client:  client,
		wallet:  wallet,
		tokens:  tokens,
		limiter: limiter,
	}
}

// FetchBalances queries every tracked token. A token with no account for
// this wallet is reported as an explicit zero.
func (g *Gateway) FetchBalances(ctx context.Context) (balance.Balances, error) {
	out := balance.Balances{}

	for _, tok := range g.tokens {
		amount, err := g.tokenBalance(ctx, tok)
		if err != nil {
			return nil, errors.Wrapf(err, "solana %s balance for %s", tok.Symbol, g.wallet.Label)
		}
		out.Add(balance.NewEntry(tok.Symbol, amount, decimal.Zero, amount))
	}

	return out, nil
}

func (g *Gateway) tokenBalance(ctx context.Context, tok config.Token) (decimal.Decimal, error) {
	if tok.IsNative() {
		if err := g.wait(ctx); err != nil {
			return decimal.Zero, err
		}
		lamports, err := g.client.GetBalance(ctx, g.wallet.Address)
		if err != nil {
			return decimal.Zero, err
		}
		return money.FromBaseUnits(new(big.Int).SetUint64(lamports), tok.Decimals), nil
	}

	account := tok.AccountMap[g.wallet.Label]
	if account == "" {
		return decimal.Zero, nil
	}

	if err := g.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	amt, err := g.client.GetTokenAccountBalance(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	return uiAmount(amt, tok.Decimals)
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return errors.Wrap(g.limiter.Wait(ctx), "rate limiter")
}

// uiAmount prefers the node's UI amount and falls back to amount / 10^decimals
func uiAmount(amt *TokenAmount, decimals int) (decimal.Decimal, error) {
	if s := strings.TrimSpace(amt.UIAmountString); s != "" {
		return decimal.NewFromString(s)
	}
	if amt.UIAmount != nil {
		return decimal.NewFromFloat(*amt.UIAmount), nil
	}

	raw, ok := new(big.Int).SetString(strings.TrimSpace(amt.Amount), 10)
	if !ok {
		return decimal.Zero, errors.Errorf("invalid token amount %q", amt.Amount)
	}
	if amt.Decimals > 0 {
		decimals = amt.Decimals
	}
	return money.FromBaseUnits(raw, decimals), nil
}

var _ balance.Gateway = (*Gateway)(nil)
