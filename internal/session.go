package internal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// 系統設計問題：
//   兩位玩家比反應速度，伺服器如何公平地發出「go」並判定勝負？
//
// 核心挑戰：
//   1. 防預判：go 訊號的時間點不可預測
//   2. 計時權威：反應時間以伺服器單調時鐘計算，不信任客戶端時間
//   3. 競態：finish 與逾時計時器可能同時觸發，結果只能送出一次
//   4. 重複訊號：客戶端重送的 finish 不能覆蓋第一次的紀錄
//
// 設計方案：
//   ✅ 具名狀態 + 每個待轉換一個可取消的計時器
//   ✅ resultSent 在 Session 鎖內檢查並設定
//   ✅ clockwork.Clock 注入（正式環境真實時鐘，測試假時鐘）

// SessionState 對局狀態
//
//	AwaitingReady → BothReady（瞬間）→ AwaitingGo → GoSent → Resolved
//
// Resolved 之後不再接受 ready；要再玩一局須 back_on_queue 後重新排隊。
type SessionState string

const (
	StateAwaitingReady SessionState = "awaiting_ready"
	StateBothReady     SessionState = "both_ready"
	StateAwaitingGo    SessionState = "awaiting_go"
	StateGoSent        SessionState = "go_sent"
	StateResolved      SessionState = "resolved"
	StateClosed        SessionState = "closed"
)

const (
	gameStartMessage = "雙方已準備，遊戲開始！"
	resultMessage    = "result"
)

// Seat 座位
//
// Name 在入座時複製，之後改名不影響這一局。
type Seat struct {
	Participant *Participant
	Name        string
	Label       SeatLabel
	Ready       bool
	Finished    bool
	Reaction    *time.Duration // 未反應為 nil
	Connected   bool
}

// Session 兩位玩家的對局（房間）
type Session struct {
	ID        string
	Seats     [2]*Seat
	CreatedAt time.Time

	mu         sync.Mutex
	state      SessionState
	goAt       time.Time // go 訊號送出的瞬間，零值代表尚未送出
	resultSent bool

	// 一個待轉換（start → go）一個計時器，加上逾時判定計時器
	phaseTimer  clockwork.Timer
	resultTimer clockwork.Timer

	clock     clockwork.Clock
	timing    Timing
	goDelay   func() time.Duration
	transport Transport
	sink      ResultSink
	logger    *slog.Logger
}

// NewSession 創建對局，兩位玩家加入以 Session ID 命名的傳輸群組
func NewSession(p1, p2 *Participant, deps sessionDeps) *Session {
	s := &Session{
		ID: p1.ID + "-" + p2.ID,
		Seats: [2]*Seat{
			{Participant: p1, Name: p1.DisplayName(), Label: SeatPlayer1, Connected: true},
			{Participant: p2, Name: p2.DisplayName(), Label: SeatPlayer2, Connected: true},
		},
		CreatedAt: deps.clock.Now(),
		state:     StateAwaitingReady,
		clock:     deps.clock,
		timing:    deps.timing,
		goDelay:   deps.goDelay,
		transport: deps.transport,
		sink:      deps.sink,
		logger:    deps.logger,
	}

	s.transport.JoinGroup(s.ID, p1.ID)
	s.transport.JoinGroup(s.ID, p2.ID)
	return s
}

// sessionDeps Session 的外部依賴（由 Manager 提供）
type sessionDeps struct {
	clock     clockwork.Clock
	timing    Timing
	goDelay   func() time.Duration
	transport Transport
	sink      ResultSink
	logger    *slog.Logger
}

// State 目前狀態
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResultSent 結果是否已送出
func (s *Session) ResultSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultSent
}

// SeatSnapshot 座位狀態的副本
func (s *Session) SeatSnapshot(label SeatLabel) Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seat := range s.Seats {
		if seat.Label == label {
			return *seat
		}
	}
	return Seat{}
}

// Involves 該連線是否曾坐在這局（不論是否已離開）
func (s *Session) Involves(connID string) bool {
	return s.Seats[0].Participant.ID == connID || s.Seats[1].Participant.ID == connID
}

// connectedSeat 需持有鎖
func (s *Session) connectedSeat(connID string) *Seat {
	for _, seat := range s.Seats {
		if seat.Connected && seat.Participant.ID == connID {
			return seat
		}
	}
	return nil
}

// ToggleReady 切換準備狀態（切換，不是設定）
//
// 雙方同時準備時重置兩邊的 ready，start delay 後送出 game_start。
func (s *Session) ToggleReady(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingReady {
		return false
	}
	seat := s.connectedSeat(connID)
	if seat == nil {
		return false
	}

	seat.Ready = !seat.Ready
	s.transport.SendGroup(s.ID, Event{Type: EventStatusReady, Data: s.readyPayload()})

	if s.Seats[0].Ready && s.Seats[1].Ready {
		s.state = StateBothReady
		s.Seats[0].Ready = false
		s.Seats[1].Ready = false

		s.state = StateAwaitingGo
		s.phaseTimer = s.clock.AfterFunc(s.timing.StartDelay, s.onStart)
		s.logger.Debug("雙方已準備", "session_id", s.ID)
	}
	return true
}

// onStart start delay 到期：送出 game_start，排程 go
func (s *Session) onStart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingGo {
		return
	}

	delay := s.goDelay()
	s.phaseTimer = s.clock.AfterFunc(delay, s.onGo)
	s.transport.SendGroup(s.ID, Event{Type: EventGameStart, Data: gameStartMessage})
}

// onGo 隨機延遲到期：記錄 goAt，啟動逾時判定，送出 go
func (s *Session) onGo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingGo {
		return
	}

	s.phaseTimer = nil
	s.state = StateGoSent
	if s.resultTimer != nil {
		s.resultTimer.Stop()
	}
	s.resultTimer = s.clock.AfterFunc(s.timing.ResultTimeout, s.onResultTimeout)

	// 緊接在送出前取時間
	s.goAt = s.clock.Now()
	s.transport.SendGroup(s.ID, Event{Type: EventGo, Data: "go"})
	s.logger.Debug("go 已送出", "session_id", s.ID)
}

// onResultTimeout 雙方都未在時限內反應
func (s *Session) onResultTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.resolve("timeout")
}

// Finish 記錄反應時間
//
// 以下情況忽略：go 尚未送出、結果已送出、該座位已 finish。
func (s *Session) Finish(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed || s.goAt.IsZero() || s.resultSent {
		return false
	}
	seat := s.connectedSeat(connID)
	if seat == nil || seat.Finished {
		return false
	}

	reaction := s.clock.Since(s.goAt)
	seat.Reaction = &reaction
	seat.Finished = true

	s.resolve("finish")
	return true
}

// resolve 送出結果（需持有鎖）
//
// 檢查與設定 resultSent 在同一把鎖內完成，之後的呼叫全部是 no-op。
func (s *Session) resolve(by string) bool {
	if s.resultSent {
		return false
	}
	if by == "finish" && s.Seats[0].Reaction == nil && s.Seats[1].Reaction == nil {
		return false
	}

	s.resultSent = true
	s.state = StateResolved
	if s.resultTimer != nil {
		s.resultTimer.Stop()
		s.resultTimer = nil
	}

	payload := s.resultPayload()
	s.transport.SendGroup(s.ID, Event{Type: EventResult, Data: payload})

	s.logger.Info("對局結束",
		"session_id", s.ID,
		"resolved_by", by,
		"winner", winnerLog(payload.WinnerSocket))

	if err := s.sink.Publish(context.Background(), MatchResult{
		SessionID:  s.ID,
		ResolvedBy: by,
		ResolvedAt: s.clock.Now(),
		Result:     payload,
	}); err != nil {
		s.logger.Warn("發布結果失敗", "session_id", s.ID, "error", err)
	}
	return true
}

// Leave 優雅離開（back_on_queue）：座位標記離線並離開傳輸群組
//
// 不刪除 Session，由 Reaper 在群組清空後回收。
func (s *Session) Leave(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat := s.connectedSeat(connID)
	if seat == nil {
		return false
	}
	seat.Connected = false
	s.transport.LeaveGroup(s.ID, connID)
	return true
}

// Close 取消所有計時器；之後觸發的回呼都是 no-op
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	if s.phaseTimer != nil {
		s.phaseTimer.Stop()
		s.phaseTimer = nil
	}
	if s.resultTimer != nil {
		s.resultTimer.Stop()
		s.resultTimer = nil
	}
}

// readyPayload 需持有鎖
func (s *Session) readyPayload() StatusReadyPayload {
	seatReady := func(seat *Seat) SeatReady {
		return SeatReady{
			Ready:  seat.Ready,
			Socket: seat.Participant.ID,
			Name:   seat.Name,
		}
	}
	return StatusReadyPayload{
		Player1: seatReady(s.Seats[0]),
		Player2: seatReady(s.Seats[1]),
	}
}

// resultPayload 需持有鎖
func (s *Session) resultPayload() ResultPayload {
	seatResult := func(seat *Seat) SeatResult {
		return SeatResult{
			Time:   reactionMillis(seat.Reaction),
			Socket: seat.Participant.ID,
			Name:   seat.Name,
		}
	}

	var winner *string
	switch DecideWinner(s.Seats[0].Reaction, s.Seats[1].Reaction) {
	case SeatPlayer1:
		id := s.Seats[0].Participant.ID
		winner = &id
	case SeatPlayer2:
		id := s.Seats[1].Participant.ID
		winner = &id
	}

	var goMillis int64
	if !s.goAt.IsZero() {
		goMillis = s.goAt.UnixMilli()
	}

	return ResultPayload{
		Message:      resultMessage,
		Time:         goMillis,
		WinnerSocket: winner,
		Player1:      seatResult(s.Seats[0]),
		Player2:      seatResult(s.Seats[1]),
	}
}

// DecideWinner 判定勝者
//
//   - 雙方都有紀錄：較短者勝，完全相同為平手
//   - 只有一方有紀錄：該方勝
//   - 雙方都沒有：平手
//
// 平手回傳空字串。
func DecideWinner(p1, p2 *time.Duration) SeatLabel {
	switch {
	case p1 != nil && p2 != nil:
		if *p1 < *p2 {
			return SeatPlayer1
		}
		if *p2 < *p1 {
			return SeatPlayer2
		}
		return ""
	case p1 != nil:
		return SeatPlayer1
	case p2 != nil:
		return SeatPlayer2
	default:
		return ""
	}
}

func reactionMillis(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	ms := float64(*d) / float64(time.Millisecond)
	return &ms
}

func winnerLog(winner *string) string {
	if winner == nil {
		return "tie"
	}
	return *winner
}
