package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppLogFormat      = "text"
	defaultAppHTTPAddr       = ":9992"
	defaultReplayIntervalMS  = 2000
	defaultMarketSymbol      = "BTCUSDT"
	defaultMarketTimeframe   = "5m"
	defaultMarketType        = "crypto"
	defaultMarketPrecision   = 2
	defaultDebounceMS        = 1500
	defaultDecideTimeoutMS   = 90000
	defaultBacktestMinSignal = 5
	defaultEntryPrice        = 100
	defaultOffsetPct         = 0.02
	defaultBacktestConfl     = 2
	defaultSuccessDuration   = 8000
	defaultInfoDuration      = 6000
	defaultWarningDuration   = 5000
	defaultErrorDuration     = 5000
	defaultDeciderTimeout    = 30
	defaultAccountBalance    = 10000
	defaultRiskPerTradePct   = 0.01
	defaultMaxPositionPct    = 0.25
	defaultRiskStorePath     = "/data/db/autodecide_backtests.db"
	defaultMaxAlerts         = 20
	defaultNotifyRate        = 20
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 120
	defaultBinanceREST       = "https://fapi.binance.com"
	defaultBinanceTimeout    = 10
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Orchestrator.applyDefaults(keys)
	c.Decider.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		intFieldDefault("app.replay_interval_ms", &a.ReplayIntervalMS, defaultReplayIntervalMS),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.symbol", &m.Symbol, defaultMarketSymbol),
		stringFieldDefault("market.selected_timeframe", &m.SelectedTimeframe, defaultMarketTimeframe),
		stringFieldDefault("market.market_type", &m.MarketType, defaultMarketType),
		intFieldDefault("market.precision", &m.Precision, defaultMarketPrecision),
	)
	m.Symbol = strings.ToUpper(strings.TrimSpace(m.Symbol))
	m.SelectedTimeframe = strings.ToLower(strings.TrimSpace(m.SelectedTimeframe))
	m.MarketType = strings.ToLower(strings.TrimSpace(m.MarketType))
}

func (o *OrchestratorConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	// debounce_ms / processing_latency_ms 允许显式设为 0，故仅在未设置时填充。
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "orchestrator.debounce_ms",
			apply: func() { o.DebounceMS = defaultDebounceMS },
		},
		fieldDefault{
			key:   "orchestrator.decide_timeout_ms",
			apply: func() { o.DecideTimeoutMS = defaultDecideTimeoutMS },
		},
		boolFieldDefault("orchestrator.supersede", &o.Supersede, true),
		intFieldDefault("orchestrator.backtest_min_signals", &o.BacktestMinSignals, defaultBacktestMinSignal),
		floatFieldDefault("orchestrator.entry_price", &o.EntryPrice, defaultEntryPrice),
		floatFieldDefault("orchestrator.stop_offset_pct", &o.StopOffsetPct, defaultOffsetPct),
		floatFieldDefault("orchestrator.take_offset_pct", &o.TakeOffsetPct, defaultOffsetPct),
		intFieldDefault("orchestrator.backtest_confluences", &o.BacktestConfluences, defaultBacktestConfl),
		intFieldDefault("orchestrator.success_duration_ms", &o.SuccessDurationMS, defaultSuccessDuration),
		intFieldDefault("orchestrator.info_duration_ms", &o.InfoDurationMS, defaultInfoDuration),
		intFieldDefault("orchestrator.warning_duration_ms", &o.WarningDurationMS, defaultWarningDuration),
		intFieldDefault("orchestrator.error_duration_ms", &o.ErrorDurationMS, defaultErrorDuration),
	)
}

func (d *DeciderConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("decider.timeout_seconds", &d.TimeoutSeconds, defaultDeciderTimeout),
	)
	d.Endpoint = strings.TrimSpace(d.Endpoint)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.account_balance", &r.AccountBalance, defaultAccountBalance),
		floatFieldDefault("risk.risk_per_trade_pct", &r.RiskPerTradePct, defaultRiskPerTradePct),
		floatFieldDefault("risk.max_position_pct", &r.MaxPositionPct, defaultMaxPositionPct),
		stringFieldDefault("risk.store_path", &r.StorePath, defaultRiskStorePath),
		intFieldDefault("risk.max_alerts", &r.MaxAlerts, defaultMaxAlerts),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("notify.rate_per_minute", &n.RatePerMinute, defaultNotifyRate),
		intFieldDefault("notify.breaker_threshold", &n.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("notify.breaker_cooldown_seconds", &n.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		intFieldDefault("binance.timeout_seconds", &b.TimeoutSeconds, defaultBinanceTimeout),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
