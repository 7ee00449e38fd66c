// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is returned when a token is missing or not recognised.
// Implementations wrap it with context:
//
//	return nil, fmt.Errorf("unknown token: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// LocalUserID is the identity NopAuthProvider assigns to every caller.
const LocalUserID = "local-user"

// AuthInfo is the identity behind a validated token.
type AuthInfo struct {
	// UserID is the unique identifier for the caller. Never empty.
	UserID string

	// Roles lists the caller's roles, e.g. "admin" or "analyst".
	Roles []string
}

// HasRole reports whether the caller holds role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns the caller's
// identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type AuthProvider interface {
	// Validate checks token and returns the identity it stands for.
	//
	// Inputs:
	//
	//	ctx - Context for cancellation and timeout control.
	//	token - The bearer token with the "Bearer " prefix removed. May be
	//	        empty when the request carried no Authorization header.
	//
	// Outputs:
	//
	//	*AuthInfo - Identity of the caller when valid.
	//	error - ErrUnauthorized (possibly wrapped) when the token is rejected.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request, with or without a token, as the
// local user.
type NopAuthProvider struct{}

// Validate always succeeds.
func (p *NopAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	return &AuthInfo{UserID: LocalUserID, Roles: []string{"admin"}}, nil
}

var _ AuthProvider = (*NopAuthProvider)(nil)

// TokenAuthProvider accepts a fixed set of bearer tokens.
//
// Tokens are held as SHA-256 digests and compared in constant time.
//
// Thread Safety: Immutable after construction.
type TokenAuthProvider struct {
	tokens []tokenEntry
}

type tokenEntry struct {
	digest [sha256.Size]byte
	info   AuthInfo
}

// NewTokenAuthProvider builds a provider from a token to user ID map.
// Tokens mapped to an empty user ID are reported as "token-" followed by
// the first eight hex digits of their SHA-256 digest.
func NewTokenAuthProvider(tokens map[string]string) *TokenAuthProvider {
	p := &TokenAuthProvider{}
	for token, user := range tokens {
		if token == "" {
			continue
		}
		digest := sha256.Sum256([]byte(token))
		if user == "" {
			user = fmt.Sprintf("token-%x", digest[:4])
		}
		p.tokens = append(p.tokens, tokenEntry{
			digest: digest,
			info:   AuthInfo{UserID: user, Roles: []string{"analyst"}},
		})
	}
	return p
}

// ParseTokenList parses "user:token,user2:token2" (or bare tokens) into the
// map NewTokenAuthProvider takes. Whitespace around entries is ignored.
func ParseTokenList(s string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, token, ok := strings.Cut(entry, ":")
		if !ok {
			token, user = user, ""
		}
		if token = strings.TrimSpace(token); token != "" {
			out[token] = strings.TrimSpace(user)
		}
	}
	return out
}

// Len returns the number of accepted tokens.
func (p *TokenAuthProvider) Len() int { return len(p.tokens) }

// Validate accepts token when it matches one of the configured tokens.
func (p *TokenAuthProvider) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("missing bearer token: %w", ErrUnauthorized)
	}
	digest := sha256.Sum256([]byte(token))
	var found *AuthInfo
	for i := range p.tokens {
		if subtle.ConstantTimeCompare(digest[:], p.tokens[i].digest[:]) == 1 {
			info := p.tokens[i].info
			found = &info
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown bearer token: %w", ErrUnauthorized)
	}
	return found, nil
}

var _ AuthProvider = (*TokenAuthProvider)(nil)

// BearerToken extracts the token from an Authorization header value. It
// returns "" when the header is absent or uses another scheme.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
