package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"autodecide/internal/config"
)

type StartupSummary struct {
	Env            string
	HTTPAddr       string
	Market         config.MarketConfig
	DeciderURL     string
	Debounce       time.Duration
	Latency        time.Duration
	Supersede      bool
	Sinks          []string
	BacktestStore  string
	MarkPrice      bool
	ReplaySnaps    int
	ReplayInterval time.Duration
}

func (s *StartupSummary) Print(w io.Writer) {
	if s == nil || w == nil {
		return
	}
	line := strings.Repeat("=", 64)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "%*s\n", 32+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(w, line)

	fmt.Fprintln(w, "[MARKET]")
	fmt.Fprintf(w, "  symbol: %s  timeframe: %s  type: %s  precision: %d\n",
		orDash(s.Market.Symbol), orDash(s.Market.SelectedTimeframe), orDash(s.Market.MarketType), s.Market.Precision)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[DECISION CYCLE]")
	fmt.Fprintf(w, "  decider: %s\n", orDash(s.DeciderURL))
	fmt.Fprintf(w, "  debounce: %s  latency: %s  supersede: %v\n", s.Debounce, s.Latency, s.Supersede)
	fmt.Fprintf(w, "  mark price: %v\n", s.MarkPrice)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[OUTPUTS]")
	fmt.Fprintf(w, "  http: %s  env: %s\n", orDash(s.HTTPAddr), orDash(s.Env))
	fmt.Fprintf(w, "  notify sinks: %s\n", formatList(s.Sinks))
	if s.BacktestStore == "" {
		fmt.Fprintln(w, "  backtest store: (memory)")
	} else {
		fmt.Fprintf(w, "  backtest store: %s\n", s.BacktestStore)
	}
	if s.ReplaySnaps > 0 {
		fmt.Fprintf(w, "  replay: %d snapshots every %s\n", s.ReplaySnaps, s.ReplayInterval)
	}
	fmt.Fprintln(w, line)
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
