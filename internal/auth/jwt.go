// Package auth is the token-auth extension: JWT issue and verification,
// revocation, password hashing and the middleware guarding protected routes.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jsdraven/catalog-api/internal/config"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the JWT claims issued by this service. Subject holds the user ID.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// JWT is bound to one application instance; nothing here is shared between
// instances.
type JWT struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[error]ErrorHandler
	revoked  map[string]time.Time // jti -> natural expiry
}

// Option customizes a JWT.
type Option func(*JWT)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) {
		if now != nil {
			j.now = now
		}
	}
}

// New builds the token-auth extension from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*JWT, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("auth: jwt secret is empty")
	}
	j := &JWT{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		accessTTL:  cfg.JWTAccessTTL,
		refreshTTL: cfg.JWTRefreshTTL,
		now:        time.Now,
		logger:     logger,
		handlers:   defaultHandlers(),
		revoked:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// OnError replaces the response for one error kind.
func (j *JWT) OnError(kind error, h ErrorHandler) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.handlers[kindOf(kind)] = h
}

// OnExpiredToken replaces the response for expired tokens.
func (j *JWT) OnExpiredToken(h ErrorHandler) { j.OnError(ErrExpiredToken, h) }

// Issue signs a token of the given type for userID.
func (j *JWT) Issue(userID int64, tokenType string) (string, error) {
	ttl := j.accessTTL
	if tokenType == TypeRefresh {
		ttl = j.refreshTTL
	}
	now := j.now()
	claims := &Claims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    j.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// IssuePair signs an access and a refresh token for userID.
func (j *JWT) IssuePair(userID int64) (TokenPair, error) {
	access, err := j.Issue(userID, TypeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := j.Issue(userID, TypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Parse validates raw and checks it is a wantType token that has not been
// revoked. Errors match one of the Err* kinds.
func (j *JWT) Parse(raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != wantType {
		return nil, &TokenTypeError{Want: wantType, Got: claims.Type}
	}
	if j.IsRevoked(claims.ID) {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blocks the token until its natural expiry.
func (j *JWT) Revoke(c *Claims) {
	if c == nil || c.ID == "" {
		return
	}
	exp := j.now().Add(j.refreshTTL)
	if c.ExpiresAt != nil {
		exp = c.ExpiresAt.Time
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pruneLocked()
	j.revoked[c.ID] = exp
}

func (j *JWT) IsRevoked(jti string) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	exp, ok := j.revoked[jti]
	return ok && j.now().Before(exp)
}

// pruneLocked drops entries whose tokens have expired anyway.
func (j *JWT) pruneLocked() {
	now := j.now()
	for jti, exp := range j.revoked {
		if !now.Before(exp) {
			delete(j.revoked, jti)
		}
	}
}

// Required rejects requests lacking a valid bearer token of tokenType and
// stores the claims in the request context.
func (j *JWT) Required(tokenType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			var claims *Claims
			if err == nil {
				claims, err = j.Parse(raw, tokenType)
			}
			if err != nil {
				j.logger.Debug("token_rejected", "path", r.URL.Path, "err", err)
				j.respond(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (j *JWT) respond(w http.ResponseWriter, r *http.Request, err error) {
	j.mu.RLock()
	h := j.handlers[kindOf(err)]
	j.mu.RUnlock()
	h(w, r, err)
}

func bearer(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected 'Bearer <token>'", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

type claimsKey struct{}

// WithClaims returns ctx carrying c.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by Required, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
