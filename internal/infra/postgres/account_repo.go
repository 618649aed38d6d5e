package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Markhorcapital/ledger-listener/internal/platform/balance"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

// Decrypter reverses the encryption applied to stored API secrets
type Decrypter interface {
	Decrypt(encrypted string) (string, error)
}

// AccountRepository reads exchange accounts registered by the account manager
type AccountRepository struct {
	pool      *pgxpool.Pool
	decrypter Decrypter
	logger    *logger.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(pool *pgxpool.Pool, decrypter Decrypter, log *logger.Logger) *AccountRepository {
	return &AccountRepository{
		pool:      pool,
		decrypter: decrypter,
		logger:    log.WithComponent("account_repo"),
	}
}

// GetActiveAccounts returns every active account with its secret decrypted.
// A secret that cannot be decrypted is reported on the descriptor, not as a query error.
func (r *AccountRepository) GetActiveAccounts(ctx context.Context) ([]balance.AccountDescriptor, error) {
	query := `
		SELECT account_id, exchange, account_name,
			COALESCE(api_key, ''), COALESCE(api_secret, ''), COALESCE(uid, ''), is_active
		FROM exchange_accounts
		WHERE is_active = TRUE
		ORDER BY exchange, account_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active accounts: %w", err)
	}

	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (balance.AccountDescriptor, error) {
		var acc balance.AccountDescriptor
		var encrypted string
		if err := row.Scan(&acc.AccountID, &acc.Exchange, &acc.Name, &acc.APIKey, &encrypted, &acc.UID, &acc.Active); err != nil {
			return acc, err
		}
		if encrypted != "" {
			secret, err := r.decrypter.Decrypt(encrypted)
			if err != nil {
				r.logger.Warn("failed to decrypt api secret", "account_id", acc.AccountID, "exchange", acc.Exchange, "error", err)
				acc.CredentialErr = fmt.Errorf("account %s: %w", acc.AccountID, err)
			}
			acc.APISecret = secret
		}
		return acc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}

	return accounts, nil
}

var _ balance.AccountRepository = (*AccountRepository)(nil)
