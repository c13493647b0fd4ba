package internal_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/reaction-duel/internal"
)

// 測試中固定的 go 延遲
const testGoDelay = 3 * time.Second

// 創建測試用的 logger
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // 測試時只顯示錯誤
	}))
}

// recorder 記錄所有推送的 Transport，群組語意與 WebSocketHub 相同
type recorder struct {
	mu     sync.Mutex
	conns  map[string]bool
	groups map[string]map[string]bool
	events map[string][]internal.Event
}

func newRecorder() *recorder {
	return &recorder{
		conns:  make(map[string]bool),
		groups: make(map[string]map[string]bool),
		events: make(map[string][]internal.Event),
	}
}

func (r *recorder) connect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = true
}

// drop 模擬連線關閉：離開所有群組
func (r *recorder) drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for group, members := range r.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
}

func (r *recorder) Send(connID string, event internal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[connID] {
		r.events[connID] = append(r.events[connID], event)
	}
}

func (r *recorder) SendGroup(group string, event internal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.groups[group] {
		r.events[connID] = append(r.events[connID], event)
	}
}

func (r *recorder) Broadcast(event internal.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for connID := range r.conns {
		r.events[connID] = append(r.events[connID], event)
	}
}

func (r *recorder) JoinGroup(group, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.conns[connID] {
		return
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]bool)
	}
	r.groups[group][connID] = true
}

func (r *recorder) LeaveGroup(group, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups[group], connID)
	if len(r.groups[group]) == 0 {
		delete(r.groups, group)
	}
}

func (r *recorder) GroupSize(group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[group])
}

// eventsOf 某連線收到的某類事件
func (r *recorder) eventsOf(connID, eventType string) []internal.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []internal.Event
	for _, e := range r.events[connID] {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) count(connID, eventType string) int {
	return len(r.eventsOf(connID, eventType))
}

func (r *recorder) last(connID, eventType string) (internal.Event, bool) {
	events := r.eventsOf(connID, eventType)
	if len(events) == 0 {
		return internal.Event{}, false
	}
	return events[len(events)-1], true
}

// statuses 某連線收到的所有 status 內容
func (r *recorder) statuses(connID string) []string {
	var out []string
	for _, e := range r.eventsOf(connID, internal.EventStatus) {
		out = append(out, e.Data.(string))
	}
	return out
}

// mockSink testify mock 版的 ResultSink
type mockSink struct {
	mock.Mock
}

func (m *mockSink) Publish(ctx context.Context, result internal.MatchResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// harness 假時鐘 + recorder + Manager
type harness struct {
	t         *testing.T
	clock     *clockwork.FakeClock
	transport *recorder
	manager   *internal.Manager
	timing    internal.Timing
}

func newHarness(t *testing.T, opts ...internal.Option) *harness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	transport := newRecorder()
	timing := internal.DefaultTiming()

	base := []internal.Option{
		internal.WithClock(clock),
		internal.WithGoDelay(func() time.Duration { return testGoDelay }),
	}
	manager := internal.NewManager(transport, timing, testLogger(), append(base, opts...)...)
	t.Cleanup(manager.Stop)

	return &harness{
		t:         t,
		clock:     clock,
		transport: transport,
		manager:   manager,
		timing:    timing,
	}
}

func (h *harness) connect(ids ...string) {
	for _, id := range ids {
		h.transport.connect(id)
		h.manager.Connect(id)
	}
}

func (h *harness) disconnect(id string) {
	h.transport.drop(id)
	h.manager.Disconnect(id)
}

func (h *harness) join(id, name string) {
	h.manager.JoinQueue(id, &name)
}

// seat 兩位玩家連線、排隊、配對、確認，回傳對局
func (h *harness) seat(a, b string) *internal.Session {
	h.t.Helper()

	h.connect(a, b)
	h.join(a, "Player "+a)
	h.join(b, "Player "+b)
	h.manager.MatchTick()
	h.manager.ConfirmReady(a)
	h.manager.ConfirmReady(b)

	session, ok := h.manager.SessionOf(a)
	require.True(h.t, ok, "玩家應已入座")
	return session
}

// waitFor 等到某連線收到至少 n 個某類事件
func (h *harness) waitFor(connID, eventType string, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.transport.count(connID, eventType) >= n
	}, time.Second, time.Millisecond, "%s 沒有收到 %d 個 %s", connID, n, eventType)
}

// startRound 雙方準備並推進時鐘直到 go 送出
func (h *harness) startRound(a, b string) {
	h.t.Helper()

	goBefore := h.transport.count(a, internal.EventGo)
	startBefore := h.transport.count(a, internal.EventGameStart)

	h.manager.ToggleReady(a)
	h.manager.ToggleReady(b)

	h.clock.Advance(h.timing.StartDelay)
	h.waitFor(a, internal.EventGameStart, startBefore+1)
	h.waitFor(b, internal.EventGameStart, startBefore+1)

	h.clock.Advance(testGoDelay)
	h.waitFor(a, internal.EventGo, goBefore+1)
	h.waitFor(b, internal.EventGo, goBefore+1)
}

func resultOf(t *testing.T, event internal.Event) internal.ResultPayload {
	t.Helper()
	payload, ok := event.Data.(internal.ResultPayload)
	require.True(t, ok, "result 事件內容型別錯誤: %T", event.Data)
	return payload
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
