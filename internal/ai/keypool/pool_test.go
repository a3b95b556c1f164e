package keypool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vestiapp/vesti/internal/ai/keypool"
	"go.uber.org/zap"
)

func TestNextAvailableRoundRobin(t *testing.T) {
	t.Parallel()

	pool := keypool.New([]string{"a", "b", "c"}, zap.NewNop())

	key, ok := pool.NextAvailable()
	require.True(t, ok)
	assert.Equal(t, "a", key)

	// Same key stays current until marked exhausted
	key, ok = pool.NextAvailable()
	require.True(t, ok)
	assert.Equal(t, "a", key)

	assert.True(t, pool.MarkCurrentExhausted())

	key, ok = pool.NextAvailable()
	require.True(t, ok)
	assert.Equal(t, "b", key)
}

func TestExhaustedKeysNeverReturned(t *testing.T) {
	t.Parallel()

	pool := keypool.New([]string{"a", "b"}, zap.NewNop())

	assert.True(t, pool.MarkCurrentExhausted())

	for range 5 {
		key, ok := pool.NextAvailable()
		require.True(t, ok)
		assert.Equal(t, "b", key)
	}
}

func TestPoolExhaustion(t *testing.T) {
	t.Parallel()

	pool := keypool.New([]string{"a", "b", "c", "d"}, zap.NewNop())

	// Exhaust all keys sequentially
	for i := range pool.Size() {
		advanced := pool.MarkCurrentExhausted()
		assert.Equal(t, i < pool.Size()-1, advanced)
	}

	_, ok := pool.NextAvailable()
	assert.False(t, ok)
	assert.False(t, pool.HasAvailable())
}

func TestReset(t *testing.T) {
	t.Parallel()

	pool := keypool.New([]string{"a", "b"}, zap.NewNop())
	pool.MarkCurrentExhausted()
	pool.MarkCurrentExhausted()
	require.False(t, pool.HasAvailable())

	pool.Reset()

	assert.True(t, pool.HasAvailable())
	key, ok := pool.NextAvailable()
	require.True(t, ok)
	assert.Equal(t, "a", key)
}

func TestIncrementUsage(t *testing.T) {
	t.Parallel()

	pool := keypool.New([]string{"a"}, zap.NewNop())
	pool.IncrementUsage()
	pool.IncrementUsage()

	// Usage does not affect availability
	assert.True(t, pool.HasAvailable())
}

func TestEmptyPool(t *testing.T) {
	t.Parallel()

	pool := keypool.New(nil, zap.NewNop())

	_, ok := pool.NextAvailable()
	assert.False(t, ok)
	assert.False(t, pool.HasAvailable())
	assert.False(t, pool.MarkCurrentExhausted())
}
