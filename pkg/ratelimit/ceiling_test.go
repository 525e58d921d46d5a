package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCeiling_Disabled(t *testing.T) {
	fw, _ := newTestLimiter(5)
	assert.Same(t, fw, WithCeiling(fw, 0, 0))
}

func TestWithCeiling_RejectsOverGlobalRate(t *testing.T) {
	fw, _ := newTestLimiter(100)
	lim := WithCeiling(fw, 1, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		d, err := lim.Admit(ctx, id)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := lim.Admit(ctx, "c")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
}

func TestWithCeiling_PerIdentityRejectionPassesThrough(t *testing.T) {
	fw, _ := newTestLimiter(1)
	lim := WithCeiling(fw, 100, 100)
	ctx := context.Background()

	lim.Admit(ctx, "a")
	d, err := lim.Admit(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

type errLimiter struct{}

func (errLimiter) Admit(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func TestWithCeiling_PropagatesErrors(t *testing.T) {
	_, err := WithCeiling(errLimiter{}, 10, 10).Admit(context.Background(), "a")
	assert.Error(t, err)
}

func TestCeiling_SetOptionsForwards(t *testing.T) {
	fw, _ := newTestLimiter(1)
	lim := WithCeiling(fw, 100, 100)

	lim.(Reconfigurable).SetOptions(Options{Window: time.Minute, MaxPerWindow: 9})

	d, _ := lim.Admit(context.Background(), "a")
	assert.Equal(t, 8, d.Remaining)
}

func TestWithCeiling_RejectionRefundsIdentity(t *testing.T) {
	fw, _ := newTestLimiter(5)
	lim := WithCeiling(fw, 1, 1)
	ctx := context.Background()

	d, err := lim.Admit(ctx, "a")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	d, err = lim.Admit(ctx, "a")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 5, d.Limit)
	assert.False(t, d.ResetAt.IsZero())
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)

	// the rejected request did not use up the identity's quota
	d, err = fw.Admit(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}
