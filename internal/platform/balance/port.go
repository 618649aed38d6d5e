package balance

import "context"

// Gateway is bound to one account or wallet and queries its live balances
type Gateway interface {
	FetchBalances(ctx context.Context) (Balances, error)
}

// GatewayFunc adapts a function to Gateway
type GatewayFunc func(ctx context.Context) (Balances, error)

// FetchBalances calls f(ctx)
func (f GatewayFunc) FetchBalances(ctx context.Context) (Balances, error) {
	return f(ctx)
}

// GatewayFactory turns descriptors into gateways
type GatewayFactory interface {
	ForAccount(account AccountDescriptor) (Gateway, error)
	ForWallet(wallet WalletDescriptor) (Gateway, error)
}

// AccountRepository reads exchange accounts from the credential store
type AccountRepository interface {
	// GetActiveAccounts returns active accounts with decrypted credentials
	GetActiveAccounts(ctx context.Context) ([]AccountDescriptor, error)
}

// WalletSource lists the configured on-chain wallets
type WalletSource interface {
	Wallets() []WalletDescriptor
}

// VenueResolver maps an exchange display name to its gateway id
type VenueResolver interface {
	VenueID(exchange string) string
}
