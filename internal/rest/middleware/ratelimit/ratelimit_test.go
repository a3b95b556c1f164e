package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vestiapp/vesti/internal/rest/middleware/ratelimit"
)

func TestCheckConsumesBudget(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(3, time.Hour)

	for i := range 3 {
		decision := limiter.Check("client-1")
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Check("client-1")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.True(t, decision.ResetAt.After(time.Now()))
}

func TestCheckRemainingDecrements(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(3, time.Hour)

	first := limiter.Check("client-1")
	second := limiter.Check("client-1")

	require.True(t, first.Allowed)
	require.True(t, second.Allowed)
	assert.Greater(t, first.Remaining, second.Remaining)
}

func TestCheckIdentitiesIndependent(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(1, time.Hour)

	assert.True(t, limiter.Check("client-1").Allowed)
	assert.False(t, limiter.Check("client-1").Allowed)
	assert.True(t, limiter.Check("client-2").Allowed)
}

func TestCheckBudgetRefills(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(2, 100*time.Millisecond)

	assert.True(t, limiter.Check("client-1").Allowed)
	assert.True(t, limiter.Check("client-1").Allowed)
	assert.False(t, limiter.Check("client-1").Allowed)

	time.Sleep(120 * time.Millisecond)
	assert.True(t, limiter.Check("client-1").Allowed)
}
