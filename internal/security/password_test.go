package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hashed, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hashed)

	assert.NoError(t, h.Verify("secret123", hashed))
	assert.Error(t, h.Verify("wrong", hashed))
}

func TestNewPasswordHasher_ClampsInvalidCost(t *testing.T) {
	h := NewPasswordHasher(-1)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	h = NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Equal(t, bcrypt.DefaultCost, h.cost)

	h = NewPasswordHasher(bcrypt.MinCost)
	assert.Equal(t, bcrypt.MinCost, h.cost)
}
