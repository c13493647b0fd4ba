package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/reaction-duel/internal"
)

// TestQueue_FIFO 測試佇列依加入順序配對
func TestQueue_FIFO(t *testing.T) {
	queue := internal.NewQueue()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, queue.Enqueue(&internal.Participant{ID: id}, now))
	}
	assert.Equal(t, []string{"a", "b", "c"}, queue.IDs())

	p1, p2, ok := queue.PopPair()
	require.True(t, ok)
	assert.Equal(t, "a", p1.ID)
	assert.Equal(t, "b", p2.ID)
	assert.Equal(t, []string{"c"}, queue.IDs())

	_, _, ok = queue.PopPair()
	assert.False(t, ok, "只剩一人不能配對")
	assert.Equal(t, 1, queue.Len())
}

// TestQueue_EnqueueDuplicate 測試重複加入
func TestQueue_EnqueueDuplicate(t *testing.T) {
	queue := internal.NewQueue()
	alice := &internal.Participant{ID: "alice"}

	assert.True(t, queue.Enqueue(alice, time.Now()))
	assert.False(t, queue.Enqueue(alice, time.Now()))
	assert.Equal(t, 1, queue.Len())
	assert.True(t, queue.Contains("alice"))
}

// TestQueue_Dequeue 測試移除（冪等）
func TestQueue_Dequeue(t *testing.T) {
	queue := internal.NewQueue()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		queue.Enqueue(&internal.Participant{ID: id}, now)
	}

	assert.True(t, queue.Dequeue("b"))
	assert.False(t, queue.Dequeue("b"))
	assert.False(t, queue.Dequeue("nobody"))
	assert.False(t, queue.Contains("b"))

	p1, p2, ok := queue.PopPair()
	require.True(t, ok)
	assert.Equal(t, "a", p1.ID)
	assert.Equal(t, "c", p2.ID)
	assert.Equal(t, 0, queue.Len())
}
