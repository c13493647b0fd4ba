package internal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 訊息格式（雙向相同）：
//
//	{"event": "<名稱>", "data": <內容>}

// 客戶端 → 伺服器
const (
	EventJoinQueue       = "join_queue"
	EventLeaveQueue      = "leave_queue"
	EventReady           = "ready"
	EventReadyConfirmed  = "ready_confirmed"
	EventFinish          = "finish"
	EventBackOnQueue     = "back_on_queue"
	EventGetPlayersCount = "get_players_count"
)

// 伺服器 → 客戶端
const (
	EventStatus        = "status"
	EventQueueError    = "queue_error"
	EventOpponentFound = "opponent_found"
	EventBothReady     = "both_ready"
	EventStatusReady   = "status_ready"
	EventGameStart     = "game_start"
	EventGo            = "go"
	EventResult        = "result"
	EventPlayersCount  = "players_count"
)

// status 事件的固定內容
const (
	StatusConnected = "connected"
	StatusWaiting   = "waiting"
	StatusIdle      = "idle"

	NoticeOpponentLeft = "對手已斷線"
)

var (
	ErrMalformedMessage = errors.New("訊息格式錯誤")
	ErrUnknownEvent     = errors.New("未知的事件類型")
)

// Event 訊息信封
type Event struct {
	Type string `json:"event"`
	Data any    `json:"data"`
}

// SeatLabel 座位標籤
type SeatLabel string

const (
	SeatPlayer1 SeatLabel = "player1"
	SeatPlayer2 SeatLabel = "player2"
)

// OpponentFoundPayload 配對成功通知（確認前重送）
type OpponentFoundPayload struct {
	Message      string    `json:"message"`
	OpponentID   string    `json:"opponentId"`
	OpponentName string    `json:"opponentName"`
	YouAre       SeatLabel `json:"youAre"`
}

// BothReadyPayload 雙方確認，進入對局
type BothReadyPayload struct {
	RoomID string `json:"roomId"`
}

// QueueErrorPayload 名稱驗證失敗
type QueueErrorPayload struct {
	Message string `json:"message"`
}

// PlayersCountPayload 線上人數
type PlayersCountPayload struct {
	Count int `json:"count"`
}

// SeatReady status_ready 中單一座位的狀態
type SeatReady struct {
	Ready  bool   `json:"ready"`
	Socket string `json:"socket"`
	Name   string `json:"name"`
}

// StatusReadyPayload 準備狀態廣播
type StatusReadyPayload struct {
	Player1 SeatReady `json:"player1"`
	Player2 SeatReady `json:"player2"`
}

// SeatResult result 中單一座位的反應時間（毫秒，未反應為 null）
type SeatResult struct {
	Time   *float64 `json:"time"`
	Socket string   `json:"socket"`
	Name   string   `json:"name"`
}

// ResultPayload 對局結果（每個 Session 只送一次）
type ResultPayload struct {
	Message      string     `json:"message"`
	Time         int64      `json:"time"` // go 訊號的牆上時間（Unix 毫秒）
	WinnerSocket *string    `json:"winnerSocket"`
	Player1      SeatResult `json:"player1"`
	Player2      SeatResult `json:"player2"`
}

// Transport 伺服器對連線的推送能力
//
// 群組語意與 socket.io 的 room 相同：連線關閉時自動離開所有群組。
type Transport interface {
	Send(connID string, event Event)
	SendGroup(group string, event Event)
	Broadcast(event Event)
	JoinGroup(group, connID string)
	LeaveGroup(group, connID string)
	GroupSize(group string) int
}

// CommandHandler 處理客戶端指令
type CommandHandler interface {
	Connect(connID string)
	Disconnect(connID string)
	JoinQueue(connID string, name *string)
	LeaveQueue(connID string)
	ToggleReady(connID string)
	ConfirmReady(connID string)
	Finish(connID string)
	BackOnQueue(connID string)
	PlayersCount(connID string)
}

type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinQueueRequest struct {
	Name *string `json:"name"`
}

// Dispatch 解析一則客戶端訊息並交給 handler
//
// 除 join_queue 外所有指令都不帶資料，data 內容會被忽略。
func Dispatch(h CommandHandler, connID string, raw []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Event {
	case EventJoinQueue:
		var req joinQueueRequest
		if len(msg.Data) > 0 && string(msg.Data) != "null" {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				// name 不是字串：交給驗證流程回報 queue_error
				req.Name = nil
			}
		}
		h.JoinQueue(connID, req.Name)
	case EventLeaveQueue:
		h.LeaveQueue(connID)
	case EventReady:
		h.ToggleReady(connID)
	case EventReadyConfirmed:
		h.ConfirmReady(connID)
	case EventFinish:
		h.Finish(connID)
	case EventBackOnQueue:
		h.BackOnQueue(connID)
	case EventGetPlayersCount:
		h.PlayersCount(connID)
	case "":
		return ErrMalformedMessage
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Event)
	}
	return nil
}
