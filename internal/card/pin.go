package card

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/kori-finance/kori/internal/fault"
)

// PinHasher hashes and verifies card PINs.
type PinHasher interface {
	Hash(pin string) ([]byte, error)
	Matches(pin string, hash []byte) bool
}

// BcryptHasher implements PinHasher with bcrypt.
type BcryptHasher struct{}

// Hash derives a bcrypt hash for the PIN. PINs shorter than four digits
// are rejected before hashing.
func (BcryptHasher) Hash(pin string) ([]byte, error) {
	if len(pin) < 4 {
		return nil, fault.Invalid("pin_too_short", nil)
	}
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

// Matches verifies the PIN against a stored hash.
func (BcryptHasher) Matches(pin string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil
}
