// Package state signs the short-lived OAuth state round-tripped through
// Google so the callback can trust the redirect target it carries.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "attest-oauth-state"

var (
	// ErrNoSecret indicates the signing secret is not configured.
	ErrNoSecret = errors.New("oauth state secret missing")
	// ErrInvalid indicates a state that is malformed, forged or expired.
	ErrInvalid = errors.New("oauth state invalid")
)

// Payload is what the callback recovers from the state.
type Payload struct {
	RedirectURI string `json:"redirect_uri,omitempty"`
	Nonce       string `json:"nonce"`
}

type claims struct {
	Payload
	jwt.RegisteredClaims
}

// Encode signs payload with HS256 for ttl.
func Encode(secret string, payload Payload, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	c := claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// Decode verifies s and returns its payload.
func Decode(secret, s string) (*Payload, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	var c claims
	_, err := jwt.ParseWithClaims(s, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Nonce == "" {
		return nil, fmt.Errorf("%w: missing nonce", ErrInvalid)
	}
	return &c.Payload, nil
}
