package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testAuthenticator(t *testing.T) (*Authenticator, *TokenService) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(HashToken("static-token")), bcrypt.MinCost)
	require.NoError(t, err)

	tokens := NewTokenService(testSecret)
	auth, err := NewAuthenticator("", string(hash), tokens)
	require.NoError(t, err)
	return auth, tokens
}

func serveAuth(auth *Authenticator, header string) (*httptest.ResponseRecorder, string) {
	var client string
	h := BearerAuth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _ = GetClientFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/balances", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, client
}

func TestBearerAuth(t *testing.T) {
	auth, tokens := testAuthenticator(t)

	valid, err := tokens.GenerateToken("ledger-sheet", time.Hour)
	require.NoError(t, err)

	t.Run("static token", func(t *testing.T) {
		rec, client := serveAuth(auth, "Bearer static-token")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, staticClient, client)
	})

	t.Run("service token", func(t *testing.T) {
		rec, client := serveAuth(auth, "Bearer "+valid)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "ledger-sheet", client)
	})

	t.Run("lowercase scheme", func(t *testing.T) {
		rec, _ := serveAuth(auth, "bearer static-token")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic static-token",
		"wrong token":    "Bearer nope",
		"no token":       "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := serveAuth(auth, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestTokenService_Rejects(t *testing.T) {
	tokens := NewTokenService(testSecret)

	t.Run("expired", func(t *testing.T) {
		tok, err := tokens.GenerateToken("client", -time.Minute)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		tok, err := NewTokenService("ffffffffffffffffffffffffffffffff").GenerateToken("client", time.Hour)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "client",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = tokens.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: "client", Issuer: TokenIssuer}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = tokens.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewAuthenticator(t *testing.T) {
	_, err := NewAuthenticator("", "", nil)
	assert.Error(t, err)

	auth, err := NewAuthenticator("plain", "", nil)
	require.NoError(t, err)
	client, err := auth.Authenticate("plain")
	require.NoError(t, err)
	assert.Equal(t, staticClient, client)

	_, err = NewAuthenticator("", "not-a-digest", nil)
	assert.Error(t, err)
}

func TestAuthenticator_LongStaticToken(t *testing.T) {
	long := strings.Repeat("a", 88)

	auth, err := NewAuthenticator(long, "", nil)
	require.NoError(t, err)

	client, err := auth.Authenticate(long)
	require.NoError(t, err)
	assert.Equal(t, staticClient, client)

	_, err = auth.Authenticate(long[:72])
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_DigestHash(t *testing.T) {
	token := strings.Repeat("x", 120)

	auth, err := NewAuthenticator("", HashToken(token), nil)
	require.NoError(t, err)

	_, err = auth.Authenticate(token)
	assert.NoError(t, err)
	_, err = auth.Authenticate(token + "y")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_BcryptHashIsRememberedAsDigest(t *testing.T) {
	token := strings.Repeat("b", 96)
	hash, err := bcrypt.GenerateFromPassword([]byte(HashToken(token)), bcrypt.MinCost)
	require.NoError(t, err)

	auth, err := NewAuthenticator("", string(hash), nil)
	require.NoError(t, err)
	assert.Nil(t, auth.digest.Load())

	_, err = auth.Authenticate("wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, auth.digest.Load())

	_, err = auth.Authenticate(token)
	require.NoError(t, err)
	require.NotNil(t, auth.digest.Load())

	_, err = auth.Authenticate("wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
