package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := Conflict("market.ExecuteTrade", 7, "offer-1", "offer is %s", "COMPLETED")

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWrapKeepsTypedErrors(t *testing.T) {
	typed := InsufficientFunds("ledger.Debit", 3, "stardust", "balance too low")
	assert.Same(t, typed, Wrap("market.ExecuteTrade", 3, "x", typed))

	plain := errors.New("connection reset")
	err := Wrap("upgrades.AdvanceProgress", 3, "mining", plain)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, plain)

	assert.NoError(t, Wrap("op", 0, "", nil))
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := NotFound("upgrades.LockUpgrade", 42, "stardust_production", "no such record")
	msg := err.Error()

	assert.Contains(t, msg, "NOT_FOUND")
	assert.Contains(t, msg, "upgrades.LockUpgrade")
	assert.Contains(t, msg, "player=42")
	assert.Contains(t, msg, "entity=stardust_production")
}
