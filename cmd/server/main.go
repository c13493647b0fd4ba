package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/samber/lo"

	"github.com/koopa0/system-design/reaction-duel/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "啟動失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 載入配置
	cfg, err := internal.LoadConfig()
	if err != nil {
		return err
	}

	// 設置日誌
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// 結果輸出（未設定 NATS_URL 時不輸出）
	var sink internal.ResultSink = internal.NopResultSink{}
	if cfg.NATSURL != "" {
		natsSink, err := internal.NewNATSResultSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer func() {
			if err := natsSink.Close(); err != nil {
				logger.Error("關閉 NATS 失敗", "error", err)
			}
		}()
		sink = natsSink
		logger.Info("結果將發布到 NATS", "subject", cfg.NATSSubject)
	}

	// 創建 WebSocket Hub 與配對服務
	wsHub := internal.NewWebSocketHub(logger, originChecker(cfg.AllowedOrigins))
	manager := internal.NewManager(wsHub, cfg.Timing(), logger,
		internal.WithResultSink(sink),
		internal.WithRequeueOnAbandon(cfg.RequeueOnAbandon),
	)
	wsHub.Bind(manager)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)

	// 創建 HTTP 處理器
	handler := internal.NewHandler(manager, logger)
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", c.Handler(handler.Routes()))
	mux.HandleFunc("GET /ws", wsHub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("反應對戰服務器啟動",
			"port", cfg.Port,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("服務器啟動失敗: %w", err)
		}
		close(errCh)
	}()

	// 等待中斷信號
	select {
	case <-ctx.Done():
		logger.Info("收到關閉信號，開始優雅關閉...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	manager.Stop()
	wsHub.Stop()

	logger.Info("服務器已關閉")
	return nil
}

// originChecker 依允許清單檢查 WebSocket 來源，清單含 "*" 時全部放行
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		return lo.Contains(allowed, r.Header.Get("Origin"))
	}
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
