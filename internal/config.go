package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix 環境變數前綴，例如 REACTION_PORT
const EnvPrefix = "REACTION"

// Config 服務配置
type Config struct {
	Port           int      `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat      string   `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	MatchInterval  time.Duration `envconfig:"MATCH_INTERVAL" default:"1s" validate:"gt=0"`
	ResendInterval time.Duration `envconfig:"RESEND_INTERVAL" default:"1s" validate:"gt=0"`
	StartDelay     time.Duration `envconfig:"START_DELAY" default:"700ms" validate:"gte=0"`
	GoDelayMin     time.Duration `envconfig:"GO_DELAY_MIN" default:"2s" validate:"gte=0,ltefield=GoDelayMax"`
	GoDelayMax     time.Duration `envconfig:"GO_DELAY_MAX" default:"8s" validate:"gte=0"`
	ResultTimeout  time.Duration `envconfig:"RESULT_TIMEOUT" default:"8s" validate:"gt=0"`
	ReapInterval   time.Duration `envconfig:"REAP_INTERVAL" default:"10s" validate:"gt=0"`
	CountInterval  time.Duration `envconfig:"COUNT_INTERVAL" default:"2s" validate:"gt=0"`

	RequeueOnAbandon bool `envconfig:"REQUEUE_ON_ABANDON" default:"true"`

	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"reaction.results" validate:"required"`
}

// Timing 對局與配對用到的所有時間參數
type Timing struct {
	MatchInterval  time.Duration
	ResendInterval time.Duration
	StartDelay     time.Duration
	GoDelayMin     time.Duration
	GoDelayMax     time.Duration
	ResultTimeout  time.Duration
	ReapInterval   time.Duration
	CountInterval  time.Duration
}

// DefaultTiming 預設時間參數
func DefaultTiming() Timing {
	return Timing{
		MatchInterval:  time.Second,
		ResendInterval: time.Second,
		StartDelay:     700 * time.Millisecond,
		GoDelayMin:     2 * time.Second,
		GoDelayMax:     8 * time.Second,
		ResultTimeout:  8 * time.Second,
		ReapInterval:   10 * time.Second,
		CountInterval:  2 * time.Second,
	}
}

// LoadConfig 從 .env（可選）與環境變數載入配置
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("載入 .env 失敗: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("解析環境變數失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 檢查配置
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置無效: %w", err)
	}
	return nil
}

// Timing 取出時間參數
func (c Config) Timing() Timing {
	return Timing{
		MatchInterval:  c.MatchInterval,
		ResendInterval: c.ResendInterval,
		StartDelay:     c.StartDelay,
		GoDelayMin:     c.GoDelayMin,
		GoDelayMax:     c.GoDelayMax,
		ResultTimeout:  c.ResultTimeout,
		ReapInterval:   c.ReapInterval,
		CountInterval:  c.CountInterval,
	}
}
