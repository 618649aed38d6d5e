//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Markhorcapital/ledger-listener/pkg/logger"
	"github.com/Markhorcapital/ledger-listener/pkg/secret"
	"github.com/Markhorcapital/ledger-listener/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupTest(t *testing.T) (*AccountRepository, *secret.Cipher, context.Context) {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))

	cipher := secret.NewCipher("integration-secret")
	return NewAccountRepository(testDB.Pool, cipher, logger.Nop()), cipher, ctx
}

func TestAccountRepository_GetActiveAccounts(t *testing.T) {
	repo, cipher, ctx := setupTest(t)

	enc, err := cipher.Encrypt("binance-secret")
	require.NoError(t, err)

	require.NoError(t, testDB.InsertAccount(ctx, "acc1", "Binance", "Main", "binance-key", enc, true))
	require.NoError(t, testDB.InsertAccount(ctx, "acc2", "Bybit", "Old", "bybit-key", enc, false))
	require.NoError(t, testDB.InsertAccount(ctx, "acc3", "Gate", "Cold", "", "", true))

	accounts, err := repo.GetActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "acc1", accounts[0].AccountID)
	assert.Equal(t, "Main", accounts[0].Name)
	assert.Equal(t, "binance-secret", accounts[0].APISecret)
	assert.True(t, accounts[0].HasCredentials())
	assert.NoError(t, accounts[0].CredentialErr)

	assert.Equal(t, "acc3", accounts[1].AccountID)
	assert.False(t, accounts[1].HasCredentials())
}

func TestAccountRepository_UndecryptableSecret(t *testing.T) {
	repo, _, ctx := setupTest(t)

	require.NoError(t, testDB.InsertAccount(ctx, "acc1", "Binance", "Main", "key", "not-a-ciphertext", true))

	accounts, err := repo.GetActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.ErrorIs(t, accounts[0].CredentialErr, secret.ErrMalformed)
	assert.Empty(t, accounts[0].APISecret)
}

func TestDB_Health(t *testing.T) {
	db := &DB{Pool: testDB.Pool}
	assert.NoError(t, db.Health(context.Background()))

	var empty *DB
	assert.Error(t, empty.Health(context.Background()))
}
