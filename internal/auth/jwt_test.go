// SPDX-License-Identifier: AGPL-3.0-or-later
package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsdraven/catalog-api/internal/auth"
	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/logging"
)

// clock is a settable time source shared by the issuer and the validator.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newJWT(t *testing.T) (*auth.JWT, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	j, err := auth.New(config.Testing(), logging.Discard(), auth.WithClock(clk.Now))
	require.NoError(t, err)
	return j, clk
}

func protected(j *auth.JWT, tokenType string) http.Handler {
	return j.Required(tokenType)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			http.Error(w, "no claims", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(c.Subject))
	}))
}

func call(h http.Handler, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := config.Testing()
	cfg.JWTSecret = ""
	_, err := auth.New(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestIssueAndParse(t *testing.T) {
	j, _ := newJWT(t)

	pair, err := j.IssuePair(42)
	require.NoError(t, err)

	c, err := j.Parse(pair.AccessToken, auth.TypeAccess)
	require.NoError(t, err)
	id, err := c.UserID()
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
	assert.Equal(t, "catalog-api", c.Issuer)
	assert.NotEmpty(t, c.ID)

	_, err = j.Parse(pair.RefreshToken, auth.TypeRefresh)
	require.NoError(t, err)
}

func TestParse_ErrorKinds(t *testing.T) {
	j, clk := newJWT(t)
	access, err := j.Issue(1, auth.TypeAccess)
	require.NoError(t, err)

	_, err = j.Parse(access, auth.TypeRefresh)
	assert.ErrorIs(t, err, auth.ErrWrongTokenType)

	_, err = j.Parse("not.a.jwt", auth.TypeAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	other, err := auth.New(func() *config.Config { c := config.Testing(); c.JWTSecret = "other"; return c }(), logging.Discard())
	require.NoError(t, err)
	forged, err := other.Issue(1, auth.TypeAccess)
	require.NoError(t, err)
	_, err = j.Parse(forged, auth.TypeAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	clk.Advance(config.Testing().JWTAccessTTL + time.Second)
	_, err = j.Parse(access, auth.TypeAccess)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	j, clk := newJWT(t)
	claims := auth.Claims{
		Type: auth.TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "catalog-api",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = j.Parse(raw, auth.TypeAccess)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	j, clk := newJWT(t)
	access, err := j.Issue(1, auth.TypeAccess)
	require.NoError(t, err)
	c, err := j.Parse(access, auth.TypeAccess)
	require.NoError(t, err)

	j.Revoke(c)
	assert.True(t, j.IsRevoked(c.ID))
	_, err = j.Parse(access, auth.TypeAccess)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)

	// once the token would have expired anyway the entry no longer matters
	clk.Advance(config.Testing().JWTAccessTTL + time.Second)
	assert.False(t, j.IsRevoked(c.ID))
}

func TestRequired_Responses(t *testing.T) {
	j, clk := newJWT(t)
	h := protected(j, auth.TypeAccess)

	access, err := j.Issue(7, auth.TypeAccess)
	require.NoError(t, err)
	refresh, err := j.Issue(7, auth.TypeRefresh)
	require.NoError(t, err)

	rr := call(h, "Bearer "+access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, strconv.Itoa(7), rr.Body.String())

	cases := []struct {
		name   string
		authz  string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, `{"msg":"Missing Authorization Header"}`},
		{"bad scheme", "Basic abc", http.StatusUnprocessableEntity, `{"msg":"Invalid token"}`},
		{"garbage", "Bearer abc", http.StatusUnprocessableEntity, `{"msg":"Invalid token"}`},
		{"refresh on access route", "Bearer " + refresh, http.StatusUnprocessableEntity, `{"msg":"Only access tokens are allowed"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := call(h, tc.authz)
			assert.Equal(t, tc.status, rr.Code)
			assert.JSONEq(t, tc.body, rr.Body.String())
		})
	}

	rr = call(protected(j, auth.TypeRefresh), "Bearer "+access)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.JSONEq(t, `{"msg":"Only refresh tokens are allowed"}`, rr.Body.String())

	clk.Advance(time.Hour)
	rr = call(h, "Bearer "+access)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"msg":"Token has expired"}`, rr.Body.String())
}

func TestOnExpiredToken_Overrides(t *testing.T) {
	j, clk := newJWT(t)
	j.OnExpiredToken(func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.WriteHeader(http.StatusTeapot)
	})
	access, err := j.Issue(1, auth.TypeAccess)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	rr := call(protected(j, auth.TypeAccess), "Bearer "+access)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	// other kinds keep their defaults
	rr = call(protected(j, auth.TypeAccess), "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequired_RevokedResponse(t *testing.T) {
	j, _ := newJWT(t)
	access, err := j.Issue(1, auth.TypeAccess)
	require.NoError(t, err)
	c, err := j.Parse(access, auth.TypeAccess)
	require.NoError(t, err)
	j.Revoke(c)

	rr := call(protected(j, auth.TypeAccess), "Bearer "+access)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"msg":"Token has been revoked"}`, rr.Body.String())
}

func TestClaimsUserID_BadSubject(t *testing.T) {
	c := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "ada"}}
	_, err := c.UserID()
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
