package bootstrap

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest work factor accepted for stored credentials.
const MinBcryptCost = 10

// BcryptHasher hashes passwords with bcrypt, which n8n also uses to verify
// logins.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) (BcryptHasher, error) {
	if cost < MinBcryptCost || cost > bcrypt.MaxCost {
		return BcryptHasher{}, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, MinBcryptCost, bcrypt.MaxCost)
	}
	return BcryptHasher{cost: cost}, nil
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.cost
	if cost == 0 {
		cost = MinBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
