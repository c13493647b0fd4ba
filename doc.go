// Package reactionduel 是一個雙人即時「反應對戰」配對服務器。
//
// 匿名玩家透過 WebSocket 連線、排隊、兩兩配對，伺服器在隨機延遲後
// 送出 go 訊號，以單調時鐘量測雙方的反應時間並判定勝負。
//
// # 流程
//
//	連線 → join_queue → 佇列（每秒配對）→ opponent_found（確認前每秒重送）
//	     → ready_confirmed ×2 → both_ready → ready ×2 → game_start（700ms）
//	     → go（2-8 秒隨機）→ finish → result（每局一次）
//
// 無人反應時 8 秒後強制判定（可能平手）。
//
// # 元件
//
//   - Registry：線上連線與人數
//   - Queue：FIFO 配對佇列
//   - PendingPair：配對後的雙方確認
//   - Session：對局狀態機（ready / go / finish / result）
//   - Reaper：每 10 秒回收玩家都已離開的對局
//   - WebSocketHub：連線、群組、心跳
//
// 所有狀態由 internal.Manager 持有，指令、計時器回呼與背景掃描都在
// Manager 的鎖內串行執行。
//
// # 訊息格式
//
//	{"event": "join_queue", "data": {"name": "kirby"}}
//	{"event": "result", "data": {"winnerSocket": "...", "player1": {...}, "player2": {...}}}
//
// # 配置
//
// 以環境變數（前綴 REACTION_）或 .env 設定：
//   - REACTION_PORT：服務監聽端口（預設 8080）
//   - REACTION_LOG_LEVEL：日誌級別（debug/info/warn/error）
//   - REACTION_START_DELAY、REACTION_GO_DELAY_MIN、REACTION_GO_DELAY_MAX
//   - REACTION_RESULT_TIMEOUT、REACTION_REAP_INTERVAL
//   - REACTION_NATS_URL：設定後每局結果發布到 NATS
//
// 啟動服務器：
//
//	go run ./cmd/server
//
// 客戶端連接：
//
//	ws://localhost:8080/ws
package reactionduel
