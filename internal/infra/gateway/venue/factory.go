// Package venue resolves accounts and wallets to the gateway that can query them.
package venue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/ethereum/go-ethereum/rpc"
	gobybit "github.com/hirokisan/bybit/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/alchemy"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/binance"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/bybit"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/evm"
	"github.com/Markhorcapital/ledger-listener/internal/infra/gateway/htx"
	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/config"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Supported exchange gateway IDs
const (
	Binance = "binance"
	Bybit   = "bybit"
	HTX     = "htx"
)

// Options tunes the factory
type Options struct {
	HTTPClient *http.Client

	// RateLimit and RateBurst apply per venue, shared by every account on it
	RateLimit float64
	RateBurst int

	// ClientTTL is how long an idle exchange client is reused
	ClientTTL time.Duration

	// BaseURLs overrides exchange endpoints by gateway ID
	BaseURLs map[string]string
}

// Factory builds gateways from the topology. Exchange clients are cached per
// account and key; chain RPC clients live for the lifetime of the factory.
type Factory struct {
	topology *config.Topology
	opts     Options
	clients  *cache.Cache
	logger   *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	evm      map[string]*rpc.Client
	solana   map[string]*alchemy.Client
}

// NewFactory creates a new gateway factory
func NewFactory(topology *config.Topology, opts Options, log *logger.Logger) *Factory {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	if opts.ClientTTL <= 0 {
		opts.ClientTTL = 10 * time.Minute
	}

	return &Factory{
		topology: topology,
		opts:     opts,
		clients:  cache.New(opts.ClientTTL, 2*opts.ClientTTL),
		logger:   log.WithComponent("venue"),
		limiters: make(map[string]*rate.Limiter),
		evm:      make(map[string]*rpc.Client),
		solana:   make(map[string]*alchemy.Client),
	}
}

// ForAccount returns the gateway for an exchange account
func (f *Factory) ForAccount(acc balance.AccountDescriptor) (balance.Gateway, error) {
	if !acc.HasCredentials() {
		return nil, fmt.Errorf("%w: %s", balance.ErrMissingCredentials, acc.AccountID)
	}

	id := acc.VenueID
	if id == "" {
		id = f.topology.VenueID(acc.Exchange)
	}
	key := clientKey(id, acc)

	switch id {
	case Binance:
		client, ok := f.cached(key).(*gobinance.Client)
		if !ok {
			client = binance.NewClient(acc.APIKey, acc.APISecret, f.opts.BaseURLs[id], f.opts.HTTPClient)
			f.clients.SetDefault(key, client)
		}
		return binance.NewGateway(client, f.limiter(id)), nil

	case Bybit:
		client, ok := f.cached(key).(*gobybit.Client)
		if !ok {
			client = bybit.NewClient(acc.APIKey, acc.APISecret, f.opts.BaseURLs[id], f.opts.HTTPClient)
			f.clients.SetDefault(key, client)
		}
		return bybit.NewGateway(client, f.limiter(id)), nil

	case HTX:
		client, ok := f.cached(key).(*htx.Client)
		if !ok {
			client = htx.NewClient(acc.APIKey, acc.APISecret, f.opts.BaseURLs[id], f.opts.HTTPClient)
			f.clients.SetDefault(key, client)
		}
		return htx.NewGateway(client, f.limiter(id)), nil
	}

	return nil, fmt.Errorf("%w: %s", balance.ErrUnsupportedVenue, acc.Exchange)
}

// ForWallet returns the gateway for an on-chain wallet
func (f *Factory) ForWallet(w balance.WalletDescriptor) (balance.Gateway, error) {
	chain, ok := f.topology.Chain(w.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: chain %s", balance.ErrUnsupportedVenue, w.Chain)
	}

	wallet := config.Wallet{Label: w.Label, Address: w.Address}

	switch chain.Kind {
	case config.ChainKindEVM:
		client, err := f.evmClient(chain)
		if err != nil {
			return nil, err
		}
		return evm.NewGateway(client, wallet, chain.Tokens, f.limiter(chain.Name)), nil

	case config.ChainKindSolana:
		return alchemy.NewGateway(f.solanaClient(chain), wallet, chain.Tokens, f.limiter(chain.Name)), nil
	}

	return nil, fmt.Errorf("%w: chain kind %s", balance.ErrUnsupportedVenue, chain.Kind)
}

// Wallets lists every configured wallet with the symbols tracked on its chain
func (f *Factory) Wallets() []balance.WalletDescriptor {
	var out []balance.WalletDescriptor
	for i := range f.topology.Chains {
		chain := &f.topology.Chains[i]
		for _, w := range chain.Wallets {
			out = append(out, balance.WalletDescriptor{
				Chain:   chain.Name,
				Label:   w.Label,
				Address: w.Address,
				Assets:  chain.Symbols(),
			})
		}
	}
	return out
}

// Close releases chain RPC clients
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name, c := range f.evm {
		c.Close()
		delete(f.evm, name)
	}
	f.clients.Flush()
}

func (f *Factory) cached(key string) any {
	v, _ := f.clients.Get(key)
	return v
}

func (f *Factory) limiter(venue string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[venue]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.opts.RateLimit), f.opts.RateBurst)
		f.limiters[venue] = l
	}
	return l
}

func (f *Factory) evmClient(chain *config.Chain) (*rpc.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.evm[chain.Name]; ok {
		return c, nil
	}
	c, err := rpc.DialHTTPWithClient(chain.RPCURL, f.opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", chain.Name, err)
	}
	f.evm[chain.Name] = c
	f.logger.Debug("rpc client created", "chain", chain.Name)
	return c, nil
}

func (f *Factory) solanaClient(chain *config.Chain) *alchemy.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.solana[chain.Name]
	if !ok {
		c = alchemy.NewClient(chain.RPCURL, f.opts.HTTPClient)
		f.solana[chain.Name] = c
	}
	return c
}

// clientKey changes when credentials rotate, so a stale client is never reused
func clientKey(venue string, acc balance.AccountDescriptor) string {
	sum := sha256.Sum256([]byte(acc.APIKey + ":" + acc.APISecret))
	return venue + ":" + acc.AccountID + ":" + hex.EncodeToString(sum[:8])
}

var (
	_ balance.GatewayFactory = (*Factory)(nil)
	_ balance.WalletSource   = (*Factory)(nil)
)
