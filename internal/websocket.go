package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   反應時間以伺服器收到 finish 的時刻計算，傳輸層如何不拖慢訊息？
//
// 核心挑戰：
//   1. 每條連線一個讀 goroutine、一個寫 goroutine，推送不阻塞業務邏輯
//   2. 群組：對局內廣播只送給在座玩家，離開的玩家不再收到
//   3. 心跳：偵測死連線，斷線立即通知 Manager
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連線與群組
//   ✅ Ping/Pong 心跳（54s/60s）
//   ✅ 緩衝 channel - 非阻塞發送，緩衝滿則丟棄

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1024
	sendBufferSize = 256
)

// WebSocketHub WebSocket 連接中心，實作 Transport
type WebSocketHub struct {
	handler     CommandHandler
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	connections map[string]*Connection         // connID -> Connection
	groups      map[string]map[string]struct{} // group -> connIDs
	mu          sync.RWMutex
}

// Connection WebSocket 連接
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *WebSocketHub
	closeOnce sync.Once // 確保 channel 只關閉一次
}

// NewWebSocketHub 創建 WebSocket Hub
//
// checkOrigin 為 nil 時接受所有來源。
func NewWebSocketHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *WebSocketHub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WebSocketHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]*Connection),
		groups:      make(map[string]map[string]struct{}),
	}
}

// Bind 設定指令處理者，必須在 ServeWS 開始接受連線前呼叫
func (hub *WebSocketHub) Bind(handler CommandHandler) {
	hub.handler = handler
}

// ServeWS 處理 WebSocket 連接，每條連線就是一位匿名玩家
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if hub.handler == nil {
		http.Error(w, "服務尚未就緒", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
		Hub:  hub,
	}

	// 先註冊再通知 Manager，確保 connected 狀態送得出去
	hub.register(connection)
	hub.handler.Connect(connection.ID)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立", "conn_id", connection.ID)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn.ID] = conn
}

// unregister 取消註冊並離開所有群組，回傳是否真的移除
func (hub *WebSocketHub) unregister(conn *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	actual, exists := hub.connections[conn.ID]
	if !exists || actual != conn {
		return false
	}
	delete(hub.connections, conn.ID)

	for group, members := range hub.groups {
		delete(members, conn.ID)
		if len(members) == 0 {
			delete(hub.groups, group)
		}
	}

	conn.closeOnce.Do(func() {
		close(conn.Send)
	})
	return true
}

// Send 實作 Transport
func (hub *WebSocketHub) Send(connID string, event Event) {
	message, ok := hub.encode(event)
	if !ok {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if conn, exists := hub.connections[connID]; exists {
		hub.enqueue(conn, message)
	}
}

// SendGroup 實作 Transport
func (hub *WebSocketHub) SendGroup(group string, event Event) {
	message, ok := hub.encode(event)
	if !ok {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for connID := range hub.groups[group] {
		if conn, exists := hub.connections[connID]; exists {
			hub.enqueue(conn, message)
		}
	}
}

// Broadcast 實作 Transport
func (hub *WebSocketHub) Broadcast(event Event) {
	message, ok := hub.encode(event)
	if !ok {
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for _, conn := range hub.connections {
		hub.enqueue(conn, message)
	}
}

// JoinGroup 實作 Transport
func (hub *WebSocketHub) JoinGroup(group, connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, exists := hub.connections[connID]; !exists {
		return
	}
	if hub.groups[group] == nil {
		hub.groups[group] = make(map[string]struct{})
	}
	hub.groups[group][connID] = struct{}{}
}

// LeaveGroup 實作 Transport
func (hub *WebSocketHub) LeaveGroup(group, connID string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	members, exists := hub.groups[group]
	if !exists {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(hub.groups, group)
	}
}

// GroupSize 實作 Transport
func (hub *WebSocketHub) GroupSize(group string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.groups[group])
}

// ConnectionCount 目前連接數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

func (hub *WebSocketHub) encode(event Event) ([]byte, bool) {
	message, err := json.Marshal(event)
	if err != nil {
		hub.logger.Error("序列化事件失敗", "event", event.Type, "error", err)
		return nil, false
	}
	return message, true
}

// enqueue 非阻塞寫入發送緩衝（需持有讀鎖）
func (hub *WebSocketHub) enqueue(conn *Connection, message []byte) {
	select {
	case conn.Send <- message:
	default:
		hub.logger.Warn("連接緩衝區滿，丟棄訊息", "conn_id", conn.ID)
	}
}

// Stop 關閉所有連接
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	for _, conn := range hub.connections {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.connections = make(map[string]*Connection)
	hub.groups = make(map[string]map[string]struct{})
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息
//
// 60 秒內沒有收到任何訊息（包括 Pong）就關閉連接。
// 結束時先離開所有群組再通知 Manager，斷線通知只會送到對手。
func (c *Connection) readPump() {
	defer func() {
		if c.Hub.unregister(c) {
			c.Hub.handler.Disconnect(c.ID)
			c.Hub.logger.Info("WebSocket 連接關閉", "conn_id", c.ID)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.Hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.Hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Error("WebSocket 讀取錯誤", "error", err, "conn_id", c.ID)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}
		if err := Dispatch(c.Hub.handler, c.ID, message); err != nil {
			c.Hub.logger.Debug("忽略客戶端訊息", "conn_id", c.ID, "error", err)
		}
	}
}

// writePump 寫入消息到客戶端，每 54 秒送一次 Ping
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，嘗試送出關閉訊息（連接可能已關閉）
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.Conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					c.Hub.logger.Error("發送消息失敗", "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
