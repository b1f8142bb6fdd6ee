package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

// Principal is the account a bearer token acts for.
type Principal struct {
	Account common.Address
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

type tokenEntry struct {
	token   []byte
	account common.Address
}

// JWTConfig accepts HMAC-signed bearer tokens whose subject claim is the
// account hex address.
type JWTConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Authenticator maps bearer tokens to the accounts they operate. Static API
// tokens are checked first, then signed JWTs when configured.
type Authenticator struct {
	tokens []tokenEntry
	jwt    *JWTConfig
	secret []byte
}

// NewAuthenticator builds an authenticator from a token to account map.
func NewAuthenticator(tokens map[string]string) (*Authenticator, error) {
	return NewAuthenticatorWithJWT(tokens, nil)
}

// NewAuthenticatorWithJWT is NewAuthenticator that also accepts signed
// tokens. Either source alone is sufficient.
func NewAuthenticatorWithJWT(tokens map[string]string, jwtCfg *JWTConfig) (*Authenticator, error) {
	if jwtCfg != nil && strings.TrimSpace(jwtCfg.Secret) == "" {
		jwtCfg = nil
	}
	if len(tokens) == 0 && jwtCfg == nil {
		return nil, fmt.Errorf("at least one api token or a jwt secret must be configured")
	}
	auth := &Authenticator{tokens: make([]tokenEntry, 0, len(tokens))}
	if jwtCfg != nil {
		cfg := *jwtCfg
		auth.jwt = &cfg
		auth.secret = []byte(strings.TrimSpace(cfg.Secret))
	}
	for token, account := range tokens {
		token = strings.TrimSpace(token)
		account = strings.TrimSpace(account)
		if token == "" {
			return nil, fmt.Errorf("empty api token")
		}
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("api token bound to invalid account %q", account)
		}
		auth.tokens = append(auth.tokens, tokenEntry{token: []byte(token), account: common.HexToAddress(account)})
	}
	return auth, nil
}

// Middleware enforces authentication.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil {
			writeError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		principal, ok := a.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Principal, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return nil, false
	}
	presented := []byte(strings.TrimSpace(header[len("Bearer "):]))
	if len(presented) == 0 {
		return nil, false
	}
	for _, entry := range a.tokens {
		if subtle.ConstantTimeCompare(entry.token, presented) == 1 {
			return &Principal{Account: entry.account}, true
		}
	}
	if a.jwt == nil {
		return nil, false
	}
	account, err := a.verifyJWT(string(presented))
	if err != nil {
		return nil, false
	}
	return &Principal{Account: account}, true
}

func (a *Authenticator) verifyJWT(raw string) (common.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(a.jwt.ClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.jwt.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.jwt.Issuer))
	}
	if a.jwt.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.jwt.Audience))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, err
	}
	if !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, errors.New("subject is not an account address")
	}
	return common.HexToAddress(claims.Subject), nil
}
