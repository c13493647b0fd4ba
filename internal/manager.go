package internal

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// 系統設計問題：
//   匿名連線如何排隊、兩兩配對、確認後進入對局，並在斷線時回收資源？
//
// 核心挑戰：
//   1. 單一寫入者：佇列、配對、對局由同一個元件持有，所有修改經過它的方法
//   2. 互斥：一位玩家同時只會出現在 {Queue, PendingPair, Session} 其中之一
//   3. 回收：玩家全數離開的對局由背景 Reaper 刪除
//
// 設計方案：
//   ✅ Manager.mu 串行化所有指令、計時器回呼與背景掃描
//   ✅ 三個 ticker 迴圈：配對（1s）、Reaper（10s）、線上人數心跳（2s）
//   ✅ 鎖順序固定：Manager.mu → Session.mu → Transport

// Manager 配對服務
type Manager struct {
	timing           Timing
	clock            clockwork.Clock
	transport        Transport
	sink             ResultSink
	logger           *slog.Logger
	goDelay          func() time.Duration
	requeueOnAbandon bool

	mu        sync.Mutex
	registry  *Registry
	queue     *Queue
	pending   map[string]*PendingPair // pairID -> PendingPair
	pendingOf map[string]*PendingPair // connID -> PendingPair
	sessions  map[string]*Session     // sessionID -> Session
	seated    map[string]*Session     // connID -> 仍在座的 Session

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option Manager 選項
type Option func(*Manager)

// WithClock 指定時鐘（測試用假時鐘）
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithGoDelay 指定 go 延遲的產生方式
func WithGoDelay(fn func() time.Duration) Option {
	return func(m *Manager) { m.goDelay = fn }
}

// WithResultSink 指定結果輸出端
func WithResultSink(sink ResultSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// WithRequeueOnAbandon 配對中一方斷線時，是否把另一方放回佇列
func WithRequeueOnAbandon(requeue bool) Option {
	return func(m *Manager) { m.requeueOnAbandon = requeue }
}

// NewManager 創建配對服務
func NewManager(transport Transport, timing Timing, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		timing:           timing,
		clock:            clockwork.NewRealClock(),
		transport:        transport,
		sink:             NopResultSink{},
		logger:           logger,
		requeueOnAbandon: true,
		registry:         NewRegistry(),
		queue:            NewQueue(),
		pending:          make(map[string]*PendingPair),
		pendingOf:        make(map[string]*PendingPair),
		sessions:         make(map[string]*Session),
		seated:           make(map[string]*Session),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.goDelay == nil {
		m.goDelay = uniformDelay(timing.GoDelayMin, timing.GoDelayMax)
	}
	return m
}

// uniformDelay 在 [min, max] 間均勻取值
func uniformDelay(lower, upper time.Duration) func() time.Duration {
	return func() time.Duration {
		if upper <= lower {
			return lower
		}
		return lower + rand.N(upper-lower+1)
	}
}

// Start 啟動背景迴圈
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(3)
	go m.runLoop(ctx, m.timing.MatchInterval, m.MatchTick)
	go m.runLoop(ctx, m.timing.ReapInterval, func() { m.Reap() })
	go m.runLoop(ctx, m.timing.CountInterval, m.BroadcastCount)
}

func (m *Manager) runLoop(ctx context.Context, interval time.Duration, fn func()) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			fn()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// Stop 停止背景迴圈，取消所有計時器
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	// 已在等鎖的重送回呼會看到配對不存在而停止
	for _, pair := range m.pending {
		pair.stopResends()
	}
	clear(m.pending)
	clear(m.pendingOf)

	for _, session := range m.sessions {
		session.Close()
	}

	m.logger.Info("配對服務已停止")
}

// Connect 新連線
func (m *Manager) Connect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.Add(connID)
	m.transport.Send(connID, Event{Type: EventStatus, Data: StatusConnected})
	m.transport.Send(connID, m.countEvent())
	m.transport.Broadcast(m.countEvent())

	m.logger.Debug("連線加入", "conn_id", connID, "online", m.registry.Count())
}

// Disconnect 連線中斷
//
// 對局會立即刪除並通知另一方，不等 Reaper。
func (m *Manager) Disconnect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.registry.Remove(connID)
	m.queue.Dequeue(connID)

	if pair, exists := m.pendingOf[connID]; exists {
		m.abandon(pair, connID)
	}

	for id, session := range m.sessions {
		if !session.Involves(connID) {
			continue
		}
		m.transport.SendGroup(id, Event{Type: EventStatus, Data: NoticeOpponentLeft})
		m.removeSession(session)
		m.logger.Info("對局因斷線刪除", "session_id", id, "conn_id", connID)
	}

	m.transport.Broadcast(m.countEvent())
}

// JoinQueue 驗證名稱後加入佇列
//
// 已在佇列、配對中或對局中則不做任何事（名稱仍會更新）。
func (m *Manager) JoinQueue(connID string, name *string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, online := m.registry.Get(connID)
	if !online {
		return
	}

	if name == nil {
		m.sendQueueError(connID, ErrNameInvalid)
		return
	}
	normalized, err := ValidateName(*name)
	if err != nil {
		m.sendQueueError(connID, err)
		return
	}
	p.Name = normalized

	if m.seated[connID] != nil || m.pendingOf[connID] != nil {
		return
	}
	if !m.queue.Enqueue(p, m.clock.Now()) {
		return
	}

	m.transport.Send(connID, Event{Type: EventStatus, Data: StatusWaiting})
	m.logger.Debug("加入佇列", "conn_id", connID, "name", p.Name, "queued", m.queue.Len())
}

func (m *Manager) sendQueueError(connID string, err error) {
	m.transport.Send(connID, Event{
		Type: EventQueueError,
		Data: QueueErrorPayload{Message: err.Error()},
	})
}

// LeaveQueue 離開佇列
func (m *Manager) LeaveQueue(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue.Dequeue(connID)
	m.transport.Send(connID, Event{Type: EventStatus, Data: StatusIdle})
}

// MatchTick 從佇列取出兩兩配對（背景迴圈每個 MatchInterval 呼叫一次）
func (m *Manager) MatchTick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		p1, p2, ok := m.queue.PopPair()
		if !ok {
			return
		}
		m.formPair(p1, p2)
	}
}

// ConfirmReady 確認配對
func (m *Manager) ConfirmReady(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair, exists := m.pendingOf[connID]
	if !exists {
		return
	}
	m.confirm(pair, connID)
}

// ToggleReady 切換對局中的準備狀態
func (m *Manager) ToggleReady(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session := m.seated[connID]; session != nil {
		session.ToggleReady(connID)
	}
}

// Finish 記錄反應
func (m *Manager) Finish(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.seated[connID]
	if session == nil {
		return
	}
	if !session.Finish(connID) {
		m.logger.Debug("忽略 finish", "session_id", session.ID, "conn_id", connID)
	}
}

// BackOnQueue 優雅離開對局；不會自動重新排隊
func (m *Manager) BackOnQueue(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := m.seated[connID]
	if session == nil {
		return
	}
	session.Leave(connID)
	delete(m.seated, connID)
	m.logger.Debug("離開對局", "session_id", session.ID, "conn_id", connID)
}

// PlayersCount 回覆線上人數
func (m *Manager) PlayersCount(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport.Send(connID, m.countEvent())
}

// BroadcastCount 廣播線上人數（心跳）
func (m *Manager) BroadcastCount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transport.Broadcast(m.countEvent())
}

func (m *Manager) countEvent() Event {
	return Event{Type: EventPlayersCount, Data: PlayersCountPayload{Count: m.registry.Count()}}
}

// Reap 刪除傳輸群組已清空的對局，回傳刪除數量
func (m *Manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	reaped := 0
	for id, session := range m.sessions {
		if m.transport.GroupSize(id) > 0 {
			continue
		}
		m.removeSession(session)
		reaped++
		m.logger.Info("回收對局", "session_id", id)
	}
	return reaped
}

// removeSession 需持有 m.mu
func (m *Manager) removeSession(session *Session) {
	session.Close()
	if m.sessions[session.ID] == session {
		delete(m.sessions, session.ID)
	}
	for _, seat := range session.Seats {
		if m.seated[seat.Participant.ID] == session {
			delete(m.seated, seat.Participant.ID)
		}
	}
}

// Session 依 ID 查詢對局
func (m *Manager) Session(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// SessionOf 查詢連線所在的對局（僅限仍在座）
func (m *Manager) SessionOf(connID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.seated[connID]
	return session, session != nil
}

// QueuedIDs 佇列中的連線（依等待順序）
func (m *Manager) QueuedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.IDs()
}

// IsPending 連線是否在配對確認中
func (m *Manager) IsPending(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.pendingOf[connID]
	return exists
}

// OnlineCount 線上人數
func (m *Manager) OnlineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Count()
}

// Stats 統計資訊
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	byState := lo.CountValuesBy(lo.Values(m.sessions), func(s *Session) SessionState {
		return s.State()
	})

	return map[string]any{
		"online":        m.registry.Count(),
		"queued":        m.queue.Len(),
		"pending_pairs": len(m.pending),
		"sessions":      len(m.sessions),
		"by_state":      byState,
	}
}
