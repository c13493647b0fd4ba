package internal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/reaction-duel/internal"
)

// TestRegistry 測試連線登記
func TestRegistry(t *testing.T) {
	registry := internal.NewRegistry()
	assert.Equal(t, 0, registry.Count())

	alice := registry.Add("alice")
	require.NotNil(t, alice)
	assert.Equal(t, "alice", alice.ID)
	assert.Empty(t, alice.Name)

	// 重複登記回傳同一個 Participant
	alice.Name = "Alice"
	again := registry.Add("alice")
	assert.Same(t, alice, again)
	assert.Equal(t, "Alice", again.Name)

	registry.Add("bob")
	assert.Equal(t, 2, registry.Count())

	got, ok := registry.Get("bob")
	require.True(t, ok)
	assert.Equal(t, "bob", got.ID)

	registry.Remove("bob")
	registry.Remove("bob")
	_, ok = registry.Get("bob")
	assert.False(t, ok)
	assert.Equal(t, 1, registry.Count())
}
