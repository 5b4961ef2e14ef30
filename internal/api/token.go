// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure. Callers get no detail
// about why a token was rejected.
var ErrInvalidToken = errors.New("invalid viewer token")

// ViewerClaims is the payload of a viewer token. The auth frontend mints one
// per dashboard session; it names the viewer's account, the commander
// character whose ESI credential drives the mirror, and optionally a fixed
// fleet id. ESIToken is the commander's bearer, carried so this service
// stays stateless about upstream credentials.
type ViewerClaims struct {
	AccountID   int64  `json:"account_id"`
	CharacterID int64  `json:"character_id"`
	FleetID     int64  `json:"fleet_id,omitempty"`
	ESIToken    string `json:"esi_token,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier parses and verifies viewer tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier over the shared HMAC secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses a token string and returns its claims.
func (v *TokenVerifier) Verify(tokenString string) (*ViewerClaims, error) {
	claims := &ViewerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AccountID == 0 || claims.CharacterID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue mints a viewer token. Used by tests and the bundled dev tooling; in
// production the auth frontend holds the secret and mints tokens itself.
func (v *TokenVerifier) Issue(claims ViewerClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
