package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainKind selects the RPC dialect used for a chain
type ChainKind string

const (
	ChainKindEVM    ChainKind = "evm"
	ChainKindSolana ChainKind = "solana"
)

// Default token decimals per chain kind
const (
	DefaultEVMDecimals    = 18
	DefaultSolanaDecimals = 9
)

// Token is a tracked asset on a chain. An empty Address marks the chain's native asset.
type Token struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
	// AccountMap maps wallet label to the SPL token account holding the asset (solana only)
	AccountMap map[string]string `yaml:"account_map"`

	decimalsSet bool
}

// UnmarshalYAML decodes a token and remembers whether decimals was present,
// so an explicit zero is kept instead of the chain default.
func (t *Token) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Symbol     string            `yaml:"symbol"`
		Address    string            `yaml:"address"`
		Decimals   *int              `yaml:"decimals"`
		AccountMap map[string]string `yaml:"account_map"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	*t = Token{Symbol: raw.Symbol, Address: raw.Address, AccountMap: raw.AccountMap}
	if raw.Decimals != nil {
		t.Decimals = *raw.Decimals
		t.decimalsSet = true
	}
	return nil
}

// IsNative reports whether the token is the chain's native currency
func (t Token) IsNative() bool {
	return t.Address == "" && len(t.AccountMap) == 0
}

// Wallet is a labelled on-chain address
type Wallet struct {
	Label   string `yaml:"label"`
	Address string `yaml:"address"`
}

// Chain holds RPC access, wallets and tracked tokens for one chain
type Chain struct {
	Name    string    `yaml:"name"`
	Kind    ChainKind `yaml:"kind"`
	RPCURL  string    `yaml:"rpc_url"`
	Wallets []Wallet  `yaml:"wallets"`
	Tokens  []Token   `yaml:"tokens"`
}

// Symbols returns the tracked token symbols in configured order
func (c *Chain) Symbols() []string {
	out := make([]string, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		out = append(out, t.Symbol)
	}
	return out
}

// ExchangesConfig maps exchange display names (as stored with accounts) to gateway IDs
type ExchangesConfig struct {
	NameMapping map[string]string `yaml:"name_mapping"`
}

// PricingConfig describes which prices are fetched
type PricingConfig struct {
	PrimaryAsset    string            `yaml:"primary_asset"`
	ContractAddress string            `yaml:"contract_address"`
	VSCurrency      string            `yaml:"vs_currency"`
	PriceIDs        map[string]string `yaml:"price_ids"`
}

// LedgerSlot is one account column group in the CEX ledger
type LedgerSlot struct {
	Kind    string `yaml:"kind"`
	Account string `yaml:"account"`
	Column  string `yaml:"column"`
}

// LedgerGroup is one exchange block in the CEX ledger
type LedgerGroup struct {
	Venue  string       `yaml:"venue"`
	Assets []string     `yaml:"assets"`
	Slots  []LedgerSlot `yaml:"slots"`
}

// CEXLedger is the column layout of the exchange ledger sheet
type CEXLedger struct {
	PrimaryAsset string        `yaml:"primary_asset"`
	QuoteAssets  []string      `yaml:"quote_assets"`
	Groups       []LedgerGroup `yaml:"groups"`
}

// OnchainLedger is the column layout of the on-chain ledger sheet.
// Chains and wallets come from the chains section.
type OnchainLedger struct {
	PrimaryAsset string   `yaml:"primary_asset"`
	Assets       []string `yaml:"assets"`
	Pegged       []string `yaml:"pegged"`
}

// LedgerConfig groups both ledger layouts
type LedgerConfig struct {
	CEX     CEXLedger     `yaml:"cex"`
	Onchain OnchainLedger `yaml:"onchain"`
}

// Topology is everything about venues, wallets and ledger layouts that is not a secret
type Topology struct {
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Chains    []Chain         `yaml:"chains"`
	Ledger    LedgerConfig    `yaml:"ledger"`

	byName map[string]*Chain
}

// LoadTopology loads the topology from a YAML file. ${VAR} references are
// expanded from the environment so RPC keys stay out of the file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return ParseTopology([]byte(os.ExpandEnv(string(data))))
}

// ParseTopology parses, defaults and validates a topology document
func ParseTopology(data []byte) (*Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}

	t.applyDefaults()

	if err := t.Validate(); err != nil {
		return nil, err
	}

	t.byName = make(map[string]*Chain, len(t.Chains))
	for i := range t.Chains {
		chain := &t.Chains[i]
		t.byName[chain.Name] = chain
	}

	return &t, nil
}

func (t *Topology) applyDefaults() {
	if t.Pricing.PrimaryAsset == "" {
		t.Pricing.PrimaryAsset = "ALI"
	}
	t.Pricing.PrimaryAsset = strings.ToUpper(strings.TrimSpace(t.Pricing.PrimaryAsset))
	if t.Pricing.VSCurrency == "" {
		t.Pricing.VSCurrency = "usd"
	}
	t.Pricing.ContractAddress = strings.ToLower(strings.TrimSpace(t.Pricing.ContractAddress))

	ids := make(map[string]string, len(t.Pricing.PriceIDs))
	for symbol, id := range t.Pricing.PriceIDs {
		if id != "" {
			ids[strings.ToUpper(symbol)] = id
		}
	}
	t.Pricing.PriceIDs = ids

	for i := range t.Chains {
		chain := &t.Chains[i]
		chain.Name = strings.ToLower(strings.TrimSpace(chain.Name))
		if chain.Kind == "" {
			chain.Kind = ChainKindEVM
			if chain.Name == "solana" {
				chain.Kind = ChainKindSolana
			}
		}
		for j := range chain.Tokens {
			tok := &chain.Tokens[j]
			tok.Symbol = strings.ToUpper(strings.TrimSpace(tok.Symbol))
			if !tok.decimalsSet {
				tok.decimalsSet = true
				tok.Decimals = DefaultEVMDecimals
				if chain.Kind == ChainKindSolana {
					tok.Decimals = DefaultSolanaDecimals
				}
			}
		}
	}

	cex := &t.Ledger.CEX
	if cex.PrimaryAsset == "" {
		cex.PrimaryAsset = t.Pricing.PrimaryAsset
	}
	if t.Ledger.Onchain.PrimaryAsset == "" {
		t.Ledger.Onchain.PrimaryAsset = t.Pricing.PrimaryAsset
	}
}

// Validate validates the topology
func (t *Topology) Validate() error {
	seenChains := make(map[string]bool)
	for _, chain := range t.Chains {
		if chain.Name == "" {
			return fmt.Errorf("chain name is required")
		}
		if seenChains[chain.Name] {
			return fmt.Errorf("duplicate chain %s", chain.Name)
		}
		seenChains[chain.Name] = true

		if chain.Kind != ChainKindEVM && chain.Kind != ChainKindSolana {
			return fmt.Errorf("unknown kind %q for chain %s", chain.Kind, chain.Name)
		}
		if len(chain.Wallets) > 0 && chain.RPCURL == "" {
			return fmt.Errorf("rpc_url is required for chain %s", chain.Name)
		}

		seenLabels := make(map[string]bool)
		for _, w := range chain.Wallets {
			if w.Label == "" || w.Address == "" {
				return fmt.Errorf("wallet label and address are required on chain %s", chain.Name)
			}
			if seenLabels[w.Label] {
				return fmt.Errorf("duplicate wallet label %s on chain %s", w.Label, chain.Name)
			}
			seenLabels[w.Label] = true
		}

		seenTokens := make(map[string]bool)
		for _, tok := range chain.Tokens {
			if tok.Symbol == "" {
				return fmt.Errorf("token symbol is required on chain %s", chain.Name)
			}
			if seenTokens[tok.Symbol] {
				return fmt.Errorf("duplicate token %s on chain %s", tok.Symbol, chain.Name)
			}
			seenTokens[tok.Symbol] = true
			if tok.Decimals < 0 {
				return fmt.Errorf("decimals must not be negative for %s on chain %s", tok.Symbol, chain.Name)
			}
		}
	}

	for _, group := range t.Ledger.CEX.Groups {
		if group.Venue == "" {
			return fmt.Errorf("ledger group venue is required")
		}
		for _, slot := range group.Slots {
			switch slot.Kind {
			case "live", "carry":
				if slot.Column == "" {
					return fmt.Errorf("column is required for %s slot in group %s", slot.Kind, group.Venue)
				}
				if slot.Kind == "live" && slot.Account == "" {
					return fmt.Errorf("account is required for live slot %s", slot.Column)
				}
			case "total":
				if slot.Column == "" {
					return fmt.Errorf("column is required for total slot in group %s", group.Venue)
				}
			default:
				return fmt.Errorf("unknown slot kind %q in group %s", slot.Kind, group.Venue)
			}
		}
	}

	return nil
}

// Chain returns the chain configuration by name
func (t *Topology) Chain(name string) (*Chain, bool) {
	chain, ok := t.byName[strings.ToLower(name)]
	return chain, ok
}

// venueAliases folds renamed exchanges onto their current gateway ID
var venueAliases = map[string]string{
	"huobi": "htx",
}

// VenueID resolves an exchange display name to a gateway ID. Unmapped names
// fall back to lowercase with underscores removed.
func (t *Topology) VenueID(exchange string) string {
	id, ok := t.Exchanges.NameMapping[exchange]
	if ok && id != "" {
		id = strings.ToLower(id)
	} else {
		id = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(exchange)), "_", "")
	}
	if alias, ok := venueAliases[id]; ok {
		return alias
	}
	return id
}
