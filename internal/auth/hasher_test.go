package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/aria-characters/internal/errutil"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	ok, err := h.Verify("correct-horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong-horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasherSalts(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasherEmptyPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
}

func TestBcryptHasherInvalidHash(t *testing.T) {
	ok, err := NewBcryptHasher(bcrypt.MinCost).Verify("password", "not-a-bcrypt-hash")
	assert.False(t, ok)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
}

func TestNewBcryptHasherCostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, bcrypt.MinCost, NewBcryptHasher(bcrypt.MinCost).cost)
}
