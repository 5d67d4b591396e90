package password

import (
	"errors"
	"strings"
	"testing"

	"github.com/isfo/attestation-service/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(config.SecurityConfig{
		Argon2Time:      1,
		Argon2Memory:    1024,
		Argon2Threads:   1,
		Argon2KeyLength: 32,
	})
}

func TestHashAndCompare(t *testing.T) {
	t.Parallel()

	h := testHasher()
	hash, err := h.Hash("2019123456")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("Hash() = %q, unexpected format", hash)
	}
	if err := h.Compare(hash, "2019123456"); err != nil {
		t.Errorf("Compare(correct) error = %v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrMismatch) {
		t.Errorf("Compare(wrong) error = %v, want ErrMismatch", err)
	}

	again, _ := h.Hash("2019123456")
	if again == hash {
		t.Error("two hashes of the same password share a salt")
	}
}

func TestCompareUsesStoredParameters(t *testing.T) {
	t.Parallel()

	hash, err := testHasher().Hash("secret-pass")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	other := NewHasher(config.SecurityConfig{Argon2Time: 3, Argon2Memory: 4096, Argon2Threads: 2, Argon2KeyLength: 16})
	if err := other.Compare(hash, "secret-pass"); err != nil {
		t.Errorf("Compare() with different settings error = %v", err)
	}
}

func TestCompareRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, hash := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb", "$argon2id$v=19$m=x$aa$bb"} {
		if err := testHasher().Compare(hash, "x"); !errors.Is(err, ErrInvalidHash) {
			t.Errorf("Compare(%q) error = %v, want ErrInvalidHash", hash, err)
		}
	}
}
