package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vestiapp/vesti/pkg/utils"
)

func TestTTLMapSetGet(t *testing.T) {
	t.Parallel()

	m := utils.NewTTLMap[string, int](time.Minute)
	m.Set("a", 1)

	value, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestTTLMapExpiry(t *testing.T) {
	t.Parallel()

	m := utils.NewTTLMap[string, string](50 * time.Millisecond)
	m.Set("key", "value")

	_, ok := m.Get("key")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = m.Get("key")
	assert.False(t, ok)
}

func TestTTLMapDelete(t *testing.T) {
	t.Parallel()

	m := utils.NewTTLMap[string, int](time.Minute)
	m.Set("a", 1)
	m.Delete("a")

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestTTLMapOverwrite(t *testing.T) {
	t.Parallel()

	m := utils.NewTTLMap[string, int](time.Minute)
	m.Set("a", 1)
	m.Set("a", 2)

	value, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, value)
	assert.Equal(t, 1, m.Len())
}
