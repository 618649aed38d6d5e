package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey is the type for context keys
type ContextKey string

// ClientKey is the context key for the authenticated caller
const ClientKey ContextKey = "client"

// TokenIssuer is the iss claim of service tokens
const TokenIssuer = "ledger-listener"

// staticClient names callers that used the shared API token
const staticClient = "static-token"

var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService mints and validates HS256 service tokens
type TokenService struct {
	secret []byte
}

// NewTokenService creates a new token service
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// GenerateToken issues a token for client valid for ttl
func (s *TokenService) GenerateToken(client string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   client,
		Issuer:    TokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the client named by a valid token
func (s *TokenService) ValidateToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// HashToken returns the hex sha256 digest of an API token, the form
// AUTH_TOKEN_HASH holds and the input of a bcrypt-stored hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticator checks bearer credentials: the shared API token and, when a
// token service is configured, signed service tokens. The shared token is held
// as a sha256 digest and compared in constant time; a bcrypt hash of that
// digest is accepted too and is checked once, then remembered as a digest.
type Authenticator struct {
	digest     atomic.Pointer[[sha256.Size]byte]
	bcryptHash []byte
	tokens     *TokenService
}

// NewAuthenticator builds an authenticator. tokenHash is either the hex
// digest from HashToken or a bcrypt hash of it; a plain token is digested
// here so the plaintext is not retained.
func NewAuthenticator(plainToken, tokenHash string, tokens *TokenService) (*Authenticator, error) {
	a := &Authenticator{tokens: tokens}
	switch {
	case strings.HasPrefix(tokenHash, "$2"):
		if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
			return nil, fmt.Errorf("invalid api token hash: %w", err)
		}
		a.bcryptHash = []byte(tokenHash)
	case tokenHash != "":
		raw, err := hex.DecodeString(strings.TrimSpace(tokenHash))
		if err != nil || len(raw) != sha256.Size {
			return nil, errors.New("invalid api token hash: want a hex sha256 digest or a bcrypt hash")
		}
		var d [sha256.Size]byte
		copy(d[:], raw)
		a.digest.Store(&d)
	case plainToken != "":
		d := sha256.Sum256([]byte(plainToken))
		a.digest.Store(&d)
	}
	if a.digest.Load() == nil && a.bcryptHash == nil && tokens == nil {
		return nil, errors.New("no authentication method configured")
	}
	return a, nil
}

// Authenticate returns the caller's name for a bearer token
func (a *Authenticator) Authenticate(token string) (string, error) {
	if a.tokens != nil && strings.Count(token, ".") == 2 {
		if client, err := a.tokens.ValidateToken(token); err == nil {
			return client, nil
		}
	}

	presented := sha256.Sum256([]byte(token))
	if d := a.digest.Load(); d != nil {
		if subtle.ConstantTimeCompare(d[:], presented[:]) == 1 {
			return staticClient, nil
		}
		return "", ErrInvalidToken
	}
	if a.bcryptHash != nil && bcrypt.CompareHashAndPassword(a.bcryptHash, []byte(hex.EncodeToString(presented[:]))) == nil {
		a.digest.Store(&presented)
		return staticClient, nil
	}
	return "", ErrInvalidToken
}

// BearerAuth rejects requests without a valid Authorization: Bearer header
func BearerAuth(auth *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.ToLower(scheme)), []byte("bearer")) != 1 || token == "" {
				unauthorized(w, "invalid authorization header format")
				return
			}

			client, err := auth.Authenticate(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, "invalid authentication token")
				return
			}

			annotateClient(r.Context(), client)
			ctx := context.WithValue(r.Context(), ClientKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientFromContext extracts the authenticated caller from the request context
func GetClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(ClientKey).(string)
	return client, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
