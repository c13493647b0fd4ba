package internal

import (
	"time"

	"github.com/samber/lo"
)

// QueueEntry 等待配對的玩家
type QueueEntry struct {
	Participant *Participant
	EnqueuedAt  time.Time
}

// Queue 配對佇列（嚴格 FIFO，無優先權）
//
// 與 Registry 相同，由 Manager.mu 保護。
type Queue struct {
	entries []*QueueEntry
}

// NewQueue 創建佇列
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue 加入佇列尾端，已在佇列中則不做任何事
func (q *Queue) Enqueue(p *Participant, at time.Time) bool {
	if q.Contains(p.ID) {
		return false
	}
	q.entries = append(q.entries, &QueueEntry{Participant: p, EnqueuedAt: at})
	return true
}

// Dequeue 從佇列移除（冪等）
func (q *Queue) Dequeue(connID string) bool {
	before := len(q.entries)
	q.entries = lo.Reject(q.entries, func(e *QueueEntry, _ int) bool {
		return e.Participant.ID == connID
	})
	return len(q.entries) != before
}

// Contains 是否在佇列中
func (q *Queue) Contains(connID string) bool {
	return lo.ContainsBy(q.entries, func(e *QueueEntry) bool {
		return e.Participant.ID == connID
	})
}

// Len 佇列長度
func (q *Queue) Len() int {
	return len(q.entries)
}

// PopPair 取出等待最久的兩位玩家
func (q *Queue) PopPair() (*Participant, *Participant, bool) {
	if len(q.entries) < 2 {
		return nil, nil, false
	}
	first, second := q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	return first.Participant, second.Participant, true
}

// IDs 依順序回傳佇列中的連線 ID
func (q *Queue) IDs() []string {
	return lo.Map(q.entries, func(e *QueueEntry, _ int) string {
		return e.Participant.ID
	})
}
