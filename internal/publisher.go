package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// MatchResult 一局結束後對外發布的結果
type MatchResult struct {
	SessionID  string        `json:"session_id"`
	ResolvedBy string        `json:"resolved_by"` // "finish" 或 "timeout"
	ResolvedAt time.Time     `json:"resolved_at"`
	Result     ResultPayload `json:"result"`
}

// ResultSink 結果輸出端
type ResultSink interface {
	Publish(ctx context.Context, result MatchResult) error
}

// NopResultSink 不輸出任何東西
type NopResultSink struct{}

// Publish 實作 ResultSink
func (NopResultSink) Publish(context.Context, MatchResult) error { return nil }

// NATSResultSink 將結果以 JSON 發布到 NATS subject
type NATSResultSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSResultSink 連接 NATS
//
// 選項與 message-queue 服務一致：無限重連、1 秒重連間隔。
func NewNATSResultSink(url, subject string) (*NATSResultSink, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("reaction-duel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return &NATSResultSink{conn: conn, subject: subject}, nil
}

// Publish 實作 ResultSink
//
// core NATS 的 Publish 只寫入客戶端緩衝區，不會阻塞對局流程。
func (s *NATSResultSink) Publish(ctx context.Context, result MatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化結果失敗: %w", err)
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		return fmt.Errorf("發布結果失敗: %w", err)
	}
	return nil
}

// Close 送出緩衝區並關閉連線
func (s *NATSResultSink) Close() error {
	return s.conn.Drain()
}
