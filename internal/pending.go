package internal

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const opponentFoundMessage = "準備好了嗎... 0/2 ready"

// PendingPair 剛配對、等待雙方確認的兩位玩家
//
// 通知可能遺失，因此在確認前每隔 ResendInterval 重送一次 opponent_found，
// 兩邊各自獨立計時。
type PendingPair struct {
	ID        string
	Sides     [2]*PendingSide
	CreatedAt time.Time
}

// PendingSide 配對中的一方
type PendingSide struct {
	Participant *Participant
	Label       SeatLabel
	Confirmed   bool
	resend      clockwork.Timer
}

func newPendingPair(p1, p2 *Participant, now time.Time) *PendingPair {
	return &PendingPair{
		ID: p1.ID + "-" + p2.ID,
		Sides: [2]*PendingSide{
			{Participant: p1, Label: SeatPlayer1},
			{Participant: p2, Label: SeatPlayer2},
		},
		CreatedAt: now,
	}
}

// sides 回傳（自己, 對手），不在這組配對中則回傳 nil
func (pp *PendingPair) sides(connID string) (*PendingSide, *PendingSide) {
	switch connID {
	case pp.Sides[0].Participant.ID:
		return pp.Sides[0], pp.Sides[1]
	case pp.Sides[1].Participant.ID:
		return pp.Sides[1], pp.Sides[0]
	}
	return nil, nil
}

// BothConfirmed 雙方都已確認
func (pp *PendingPair) BothConfirmed() bool {
	return pp.Sides[0].Confirmed && pp.Sides[1].Confirmed
}

func (pp *PendingPair) stopResends() {
	for _, side := range pp.Sides {
		if side.resend != nil {
			side.resend.Stop()
			side.resend = nil
		}
	}
}

// 以下 Manager 方法都需要持有 m.mu

// formPair 建立配對並立即通知雙方
func (m *Manager) formPair(p1, p2 *Participant) {
	pair := newPendingPair(p1, p2, m.clock.Now())
	m.pending[pair.ID] = pair
	m.pendingOf[p1.ID] = pair
	m.pendingOf[p2.ID] = pair

	m.logger.Info("配對成功，等待確認",
		"pair_id", pair.ID,
		"player1", p1.ID,
		"player2", p2.ID)

	for _, side := range pair.Sides {
		_, opponent := pair.sides(side.Participant.ID)
		m.sendOpponentFound(side, opponent.Participant)
		m.scheduleResend(pair, side, opponent.Participant)
	}
}

func (m *Manager) sendOpponentFound(side *PendingSide, opponent *Participant) {
	m.transport.Send(side.Participant.ID, Event{
		Type: EventOpponentFound,
		Data: OpponentFoundPayload{
			Message:      opponentFoundMessage,
			OpponentID:   opponent.ID,
			OpponentName: opponent.DisplayName(),
			YouAre:       side.Label,
		},
	})
}

// scheduleResend 排程下一次重送；觸發時若配對已不存在或已確認則停止
func (m *Manager) scheduleResend(pair *PendingPair, side *PendingSide, opponent *Participant) {
	side.resend = m.clock.AfterFunc(m.timing.ResendInterval, func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.pending[pair.ID] != pair || side.Confirmed {
			return
		}
		m.sendOpponentFound(side, opponent)
		m.scheduleResend(pair, side, opponent)
	})
}

// confirm 記錄確認，雙方都確認後升級為 Session
func (m *Manager) confirm(pair *PendingPair, connID string) {
	self, _ := pair.sides(connID)
	if self == nil || self.Confirmed {
		return
	}

	self.Confirmed = true
	if self.resend != nil {
		self.resend.Stop()
		self.resend = nil
	}

	if pair.BothConfirmed() {
		m.promote(pair)
	}
}

// promote 將配對升級為 Session
func (m *Manager) promote(pair *PendingPair) {
	pair.stopResends()
	delete(m.pending, pair.ID)
	p1, p2 := pair.Sides[0].Participant, pair.Sides[1].Participant
	delete(m.pendingOf, p1.ID)
	delete(m.pendingOf, p2.ID)

	session := NewSession(p1, p2, sessionDeps{
		clock:     m.clock,
		timing:    m.timing,
		goDelay:   m.goDelay,
		transport: m.transport,
		sink:      m.sink,
		logger:    m.logger,
	})

	// 同一對玩家再次配對時 ID 相同，舊的那局直接取代
	if old, exists := m.sessions[session.ID]; exists {
		old.Close()
		m.logger.Info("取代同名舊對局", "session_id", session.ID)
	}

	m.sessions[session.ID] = session
	m.seated[p1.ID] = session
	m.seated[p2.ID] = session

	m.transport.SendGroup(session.ID, Event{
		Type: EventBothReady,
		Data: BothReadyPayload{RoomID: session.ID},
	})

	m.logger.Info("對局建立", "session_id", session.ID)
}

// abandon 一方在確認前斷線，放棄這組配對
func (m *Manager) abandon(pair *PendingPair, leaverID string) {
	pair.stopResends()
	delete(m.pending, pair.ID)
	delete(m.pendingOf, pair.Sides[0].Participant.ID)
	delete(m.pendingOf, pair.Sides[1].Participant.ID)

	_, other := pair.sides(leaverID)
	if other == nil {
		return
	}

	m.logger.Info("配對已放棄",
		"pair_id", pair.ID,
		"leaver", leaverID,
		"requeue", m.requeueOnAbandon)

	remaining, online := m.registry.Get(other.Participant.ID)
	if !online {
		return
	}

	m.transport.Send(remaining.ID, Event{Type: EventStatus, Data: NoticeOpponentLeft})
	if m.requeueOnAbandon && m.queue.Enqueue(remaining, m.clock.Now()) {
		m.transport.Send(remaining.ID, Event{Type: EventStatus, Data: StatusWaiting})
		return
	}
	m.transport.Send(remaining.ID, Event{Type: EventStatus, Data: StatusIdle})
}
