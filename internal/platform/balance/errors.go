package balance

import "errors"

var (
	// ErrNoActiveSources means there is nothing to fetch: no active accounts or wallets are configured.
	ErrNoActiveSources = errors.New("no active sources")

	// Gateway resolution errors
	ErrUnsupportedVenue   = errors.New("venue not supported")
	ErrMissingCredentials = errors.New("account has no API credentials")

	// Fetch errors
	ErrFetchTimeout = errors.New("balance fetch timed out")
	ErrGatewayPanic = errors.New("gateway panicked")
)
