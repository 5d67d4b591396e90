// Package token mints and verifies the RS256 access tokens shared by the
// staff and student portals.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/model"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("token invalid")

// Claims carries the portal role and identity next to the registered claims.
type Claims struct {
	Role  model.UserType `json:"role"`
	Email string         `json:"email,omitempty"`
	Name  string         `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// AccessTokenInput identifies the signed-in user.
type AccessTokenInput struct {
	UserID uuid.UUID
	Role   model.UserType
	Email  string
	Name   string
}

// Service signs with the private key and verifies with the public one.
type Service struct {
	issuer   string
	audience string
	ttl      time.Duration
	signKey  *rsa.PrivateKey
	verify   *rsa.PublicKey
	parser   *jwt.Parser
	now      func() time.Time
}

// NewService reads the PEM key pair named in cfg.
func NewService(cfg config.TokenConfig) (*Service, error) {
	signKey, err := readPEM(cfg.PrivateKeyPath, jwt.ParseRSAPrivateKeyFromPEM)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	verify, err := readPEM(cfg.PublicKeyPath, jwt.ParseRSAPublicKeyFromPEM)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return &Service{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTokenTTL,
		signKey:  signKey,
		verify:   verify,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
		),
		now: time.Now,
	}, nil
}

func readPEM[K any](path string, parse func([]byte) (K, error)) (K, error) {
	var zero K
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	key, err := parse(data)
	if err != nil {
		return zero, err
	}
	return key, nil
}

// MintAccessToken signs a token for the user and returns its expiry.
func (s *Service) MintAccessToken(in AccessTokenInput) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		Role:  in.Role,
		Email: in.Email,
		Name:  in.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   in.UserID.String(),
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature, issuer, audience and expiry, and rejects
// roles the portal does not know.
func (s *Service) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.verify, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	switch claims.Role {
	case model.UserTypeAdmin, model.UserTypeStudent:
		return claims, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
}
