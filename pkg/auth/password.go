package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Mode selects how credentials are stored and compared.
type Mode string

const (
	// ModeBcrypt stores a bcrypt hash.
	ModeBcrypt Mode = "bcrypt"
	// ModePlain stores and compares the credential verbatim. Demo data only;
	// never use it for real accounts.
	ModePlain Mode = "plain"
)

// MaxCredentialBytes is the longest credential any mode accepts. bcrypt
// refuses anything longer, so plain mode is held to the same limit.
const MaxCredentialBytes = 72

var (
	ErrCredentialRequired = errors.New("credential required")
	ErrCredentialTooLong  = errors.New("credential must be at most 72 bytes")
	ErrUnknownMode        = errors.New("unknown credential mode")
)

// ValidateCredential reports whether credential can be hashed by every mode.
func ValidateCredential(credential string) error {
	if credential == "" {
		return ErrCredentialRequired
	}
	if len(credential) > MaxCredentialBytes {
		return ErrCredentialTooLong
	}
	return nil
}

// Hasher turns a credential into its stored form and checks it later.
type Hasher interface {
	Mode() Mode
	Hash(credential string) (string, error)
	Check(credential, stored string) bool
}

// NewHasher returns the hasher for mode. Empty means bcrypt.
func NewHasher(mode string) (Hasher, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(mode))) {
	case "", ModeBcrypt:
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	case ModePlain:
		return PlainHasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// BcryptHasher hashes credentials with bcrypt.
type BcryptHasher struct {
	Cost int
}

func (BcryptHasher) Mode() Mode { return ModeBcrypt }

// Hash returns the bcrypt hash of credential.
func (h BcryptHasher) Hash(credential string) (string, error) {
	if err := ValidateCredential(credential); err != nil {
		return "", err
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(credential), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Check validates credential against a bcrypt hash.
func (BcryptHasher) Check(credential, stored string) bool {
	if credential == "" || stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(credential)) == nil
}

// PlainHasher keeps credentials as-is and compares them exactly.
type PlainHasher struct{}

func (PlainHasher) Mode() Mode { return ModePlain }

func (PlainHasher) Hash(credential string) (string, error) {
	if err := ValidateCredential(credential); err != nil {
		return "", err
	}
	return credential, nil
}

func (PlainHasher) Check(credential, stored string) bool {
	if credential == "" || stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(stored)) == 1
}
