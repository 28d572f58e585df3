package config

import (
	"fmt"
	"strings"

	"autodecide/internal/scheduler"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Orchestrator.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (m *MarketConfig) validate() error {
	if strings.TrimSpace(m.SelectedTimeframe) == "" {
		return fmt.Errorf("market.selected_timeframe cannot be empty")
	}
	if _, ok := scheduler.ParseIntervalDuration(m.SelectedTimeframe); !ok {
		return fmt.Errorf("market.selected_timeframe %q is not a valid interval", m.SelectedTimeframe)
	}
	if strings.TrimSpace(m.MarketType) == "" {
		return fmt.Errorf("market.market_type cannot be empty")
	}
	if m.Precision < 0 || m.Precision > 12 {
		return fmt.Errorf("market.precision must be within 0-12")
	}
	return nil
}

func (o *OrchestratorConfig) validate() error {
	if o.DebounceMS < 0 {
		return fmt.Errorf("orchestrator.debounce_ms must be >= 0")
	}
	if o.ProcessingLatencyMS < 0 {
		return fmt.Errorf("orchestrator.processing_latency_ms must be >= 0")
	}
	if o.DecideTimeoutMS < 0 {
		return fmt.Errorf("orchestrator.decide_timeout_ms must be >= 0")
	}
	if o.BacktestMinSignals < 0 {
		return fmt.Errorf("orchestrator.backtest_min_signals must be >= 0")
	}
	if o.StopOffsetPct <= 0 || o.StopOffsetPct >= 1 {
		return fmt.Errorf("orchestrator.stop_offset_pct must be within (0,1)")
	}
	if o.TakeOffsetPct <= 0 || o.TakeOffsetPct >= 1 {
		return fmt.Errorf("orchestrator.take_offset_pct must be within (0,1)")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.AccountBalance <= 0 {
		return fmt.Errorf("risk.account_balance must be > 0")
	}
	if r.RiskPerTradePct <= 0 || r.RiskPerTradePct > 1 {
		return fmt.Errorf("risk.risk_per_trade_pct must be within (0,1]")
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("risk.max_position_pct must be within (0,1]")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
