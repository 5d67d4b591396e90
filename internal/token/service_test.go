package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/model"
)

func writeKeys(t *testing.T) config.TokenConfig {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		t.Fatal(err)
	}
	return config.TokenConfig{
		Issuer:         "https://attestations.test",
		Audience:       "attestation-portal",
		PrivateKeyPath: privPath,
		PublicKeyPath:  pubPath,
		AccessTokenTTL: time.Hour,
	}
}

func TestMintAndParse(t *testing.T) {
	t.Parallel()

	svc, err := NewService(writeKeys(t))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	id := uuid.New()
	signed, exp, err := svc.MintAccessToken(AccessTokenInput{UserID: id, Role: model.UserTypeAdmin, Email: "admin@isfo.ma"})
	if err != nil {
		t.Fatalf("MintAccessToken() error = %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is in the past", exp)
	}

	claims, err := svc.Parse(signed)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Role != model.UserTypeAdmin || claims.Email != "admin@isfo.ma" {
		t.Errorf("claims = %+v", claims)
	}
	if got, _ := claims.UserID(); got != id {
		t.Errorf("UserID() = %v, want %v", got, id)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	cfg := writeKeys(t)
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	expired, _ := NewService(cfg)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.MintAccessToken(AccessTokenInput{UserID: uuid.New(), Role: model.UserTypeStudent})
	if err != nil {
		t.Fatal(err)
	}

	otherCfg := writeKeys(t)
	other, _ := NewService(otherCfg)
	foreign, _, _ := other.MintAccessToken(AccessTokenInput{UserID: uuid.New(), Role: model.UserTypeStudent})

	unknownRole, _, _ := svc.MintAccessToken(AccessTokenInput{UserID: uuid.New(), Role: "root"})

	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      old,
		"foreign key":  foreign,
		"unknown role": unknownRole,
	}
	for name, tok := range tests {
		if _, err := svc.Parse(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: Parse() error = %v, want ErrInvalidToken", name, err)
		}
	}
}
