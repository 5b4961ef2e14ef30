// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package esi

import "context"

// Credential is a valid bearer credential for one character. Token
// acquisition and refresh (the OAuth exchange) happen outside this engine;
// implementations return a token that is usable right now.
type Credential interface {
	// CharacterID is the character the token belongs to.
	CharacterID() int64

	// AccountID is the owning dashboard user, used to address private
	// rate-limit notices.
	AccountID() int64

	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)
}

// StaticCredential is a Credential with a fixed token. Used in tests and for
// long-lived service tokens.
type StaticCredential struct {
	Character int64
	Account   int64
	Bearer    string
}

func (s StaticCredential) CharacterID() int64 { return s.Character }

func (s StaticCredential) AccountID() int64 { return s.Account }

func (s StaticCredential) Token(context.Context) (string, error) { return s.Bearer, nil }
