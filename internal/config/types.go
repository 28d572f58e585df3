package config

import (
	"strings"
	"time"
)

// Config 是 autodecide 的主配置载体。
type Config struct {
	App          AppConfig          `toml:"app"`
	Market       MarketConfig       `toml:"market"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Decider      DeciderConfig      `toml:"decider"`
	Risk         RiskConfig         `toml:"risk"`
	Notify       NotifyConfig       `toml:"notify"`
	Binance      BinanceConfig      `toml:"binance"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	// ExchangeLog 记录与决策函数之间的请求/响应，留空则关闭。
	ExchangeLog         string `toml:"exchange_log"`
	ExchangeDumpPayload bool   `toml:"exchange_dump_payload"`
	HTTPAddr            string `toml:"http_addr"`
	ReplayPath          string `toml:"replay_path"`
	// ReplayIntervalMS 为回放快照之间的间隔。
	ReplayIntervalMS int `toml:"replay_interval_ms"`
}

// MarketConfig 是决策函数读取的行情上下文，运行期可热更新。
type MarketConfig struct {
	Symbol            string `toml:"symbol"`
	SelectedTimeframe string `toml:"selected_timeframe"`
	MarketType        string `toml:"market_type"`
	Precision         int    `toml:"precision"`
}

// OrchestratorConfig 控制去抖、模拟延迟与占位参数。
type OrchestratorConfig struct {
	DebounceMS          int     `toml:"debounce_ms"`
	ProcessingLatencyMS int     `toml:"processing_latency_ms"`
	DecideTimeoutMS     int     `toml:"decide_timeout_ms"`
	Supersede           bool    `toml:"supersede"`
	BacktestMinSignals  int     `toml:"backtest_min_signals"`
	EntryPrice          float64 `toml:"entry_price"`
	StopOffsetPct       float64 `toml:"stop_offset_pct"`
	TakeOffsetPct       float64 `toml:"take_offset_pct"`
	BacktestConfluences int     `toml:"backtest_confluences"`
	SuccessDurationMS   int     `toml:"success_duration_ms"`
	InfoDurationMS      int     `toml:"info_duration_ms"`
	WarningDurationMS   int     `toml:"warning_duration_ms"`
	ErrorDurationMS     int     `toml:"error_duration_ms"`
}

func (o OrchestratorConfig) DebounceWindow() time.Duration {
	return time.Duration(o.DebounceMS) * time.Millisecond
}

func (o OrchestratorConfig) ProcessingLatency() time.Duration {
	return time.Duration(o.ProcessingLatencyMS) * time.Millisecond
}

// DeciderConfig 描述外部决策函数的 HTTP 访问方式。
type DeciderConfig struct {
	Endpoint       string            `toml:"endpoint"`
	APIKey         string            `toml:"api_key"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Headers        map[string]string `toml:"headers"`
}

func (d DeciderConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// RiskConfig 配置内置的风控/回测协作者。
type RiskConfig struct {
	AccountBalance  float64 `toml:"account_balance"`
	RiskPerTradePct float64 `toml:"risk_per_trade_pct"`
	MaxPositionPct  float64 `toml:"max_position_pct"`
	StorePath       string  `toml:"store_path"`
	MaxAlerts       int     `toml:"max_alerts"`
}

type NotifyConfig struct {
	Telegram               TelegramConfig `toml:"telegram"`
	RatePerMinute          int            `toml:"rate_per_minute"`
	BreakerThreshold       int            `toml:"breaker_threshold"`
	BreakerCooldownSeconds int            `toml:"breaker_cooldown_seconds"`
}

func (n NotifyConfig) BreakerCooldown() time.Duration {
	return time.Duration(n.BreakerCooldownSeconds) * time.Second
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// BinanceConfig 开启后用标记价格替换占位入场价。
type BinanceConfig struct {
	Enabled        bool   `toml:"enabled"`
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
