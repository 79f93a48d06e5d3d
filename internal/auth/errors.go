// SPDX-License-Identifier: AGPL-3.0-or-later
package auth

import (
	"errors"
	"net/http"

	"github.com/jsdraven/catalog-api/internal/httpx"
)

// The closed set of reasons a request can fail token authentication.
var (
	ErrMissingToken   = errors.New("missing authorization header")
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrRevokedToken   = errors.New("token has been revoked")
	ErrWrongTokenType = errors.New("wrong token type")
)

// kinds fixes the lookup order; the first match wins.
var kinds = []error{ErrMissingToken, ErrExpiredToken, ErrRevokedToken, ErrWrongTokenType, ErrInvalidToken}

// TokenTypeError reports a token of the wrong type, e.g. a refresh token on an
// access-only route.
type TokenTypeError struct {
	Want, Got string
}

func (e *TokenTypeError) Error() string {
	return "want " + e.Want + " token, got " + e.Got
}

func (e *TokenTypeError) Is(target error) bool { return target == ErrWrongTokenType }

// ErrorHandler turns an auth failure into a response.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

func defaultHandlers() map[error]ErrorHandler {
	return map[error]ErrorHandler{
		ErrMissingToken: func(w http.ResponseWriter, _ *http.Request, _ error) {
			httpx.Error(w, http.StatusUnauthorized, "Missing Authorization Header")
		},
		ErrExpiredToken: func(w http.ResponseWriter, _ *http.Request, _ error) {
			httpx.Error(w, http.StatusUnauthorized, "Token has expired")
		},
		ErrRevokedToken: func(w http.ResponseWriter, _ *http.Request, _ error) {
			httpx.Error(w, http.StatusUnauthorized, "Token has been revoked")
		},
		ErrWrongTokenType: func(w http.ResponseWriter, _ *http.Request, err error) {
			msg := "Only access tokens are allowed"
			var tte *TokenTypeError
			if errors.As(err, &tte) && tte.Want == TypeRefresh {
				msg = "Only refresh tokens are allowed"
			}
			httpx.Error(w, http.StatusUnprocessableEntity, msg)
		},
		ErrInvalidToken: func(w http.ResponseWriter, _ *http.Request, _ error) {
			httpx.Error(w, http.StatusUnprocessableEntity, "Invalid token")
		},
	}
}

// kindOf returns the sentinel err belongs to, defaulting to ErrInvalidToken.
func kindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInvalidToken
}
