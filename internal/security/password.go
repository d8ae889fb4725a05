package security

import "golang.org/x/crypto/bcrypt"

// PasswordHasher hashes and verifies passwords with bcrypt. The cost is
// fixed at construction; raising it later only affects newly stored hashes,
// existing ones verify at the cost they were created with.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher clamps an out-of-range cost to bcrypt's default rather
// than letting GenerateFromPassword fail on every call.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify returns a non-nil error when plain does not match the stored hash.
func (h *PasswordHasher) Verify(plain, hashed string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
