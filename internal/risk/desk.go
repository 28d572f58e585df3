package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"autodecide/internal/decision"
	"autodecide/internal/logger"
	"autodecide/internal/store"
	"autodecide/internal/store/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	minRiskReward      = 1.0
	warnRiskReward     = 1.5
	highVolatility     = 70.0
	minConfluences     = 2
	lowConfluencesCost = 10.0
	defaultMaxAlerts   = 20
)

var ErrInvalidRequest = errors.New("invalid risk request")

type DeskConfig struct {
	AccountBalance  float64
	RiskPerTradePct float64
	MaxPositionPct  float64
	MaxAlerts       int
}

// Desk is the in-process risk and backtest collaborator. All state is owned by
// the desk; accessors hand out copies.
type Desk struct {
	cfg   DeskConfig
	repo  store.BacktestRepository
	nowFn func() time.Time

	mu           sync.RWMutex
	current      *Assessment
	sizing       *PositionSizing
	alerts       []Alert
	metrics      AccountMetrics
	lastBacktest *BacktestSummary
}

// NewDesk builds a desk. repo may be nil, in which case backtest summaries are
// kept in memory only.
func NewDesk(cfg DeskConfig, repo store.BacktestRepository) *Desk {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = defaultMaxAlerts
	}
	return &Desk{
		cfg:     cfg,
		repo:    repo,
		nowFn:   time.Now,
		metrics: AccountMetrics{Balance: cfg.AccountBalance},
	}
}

// EvaluateSignalRisk scores the request, sizes the position and records the
// result as the current risk.
func (d *Desk) EvaluateSignalRisk(ctx context.Context, req SignalRequest) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}
	if err := checkRequest(req); err != nil {
		return Assessment{}, err
	}

	entry := decFromFloat(req.EntryPrice)
	stopDist := entry.Sub(decFromFloat(req.StopLoss)).Abs()
	reward := decFromFloat(req.TakeProfit).Sub(entry).Abs()
	rr := decToFloat(reward.Div(stopDist).Round(4))

	sizing := d.sizePosition(entry, stopDist)
	score := riskScore(req)
	level := levelFor(score)

	var warnings []string
	if rr < warnRiskReward {
		warnings = append(warnings, fmt.Sprintf("risk/reward %.2f below %.1f", rr, warnRiskReward))
	}
	if req.Volatility > highVolatility {
		warnings = append(warnings, fmt.Sprintf("high volatility %.0f", req.Volatility))
	}
	if req.Confluences < minConfluences {
		warnings = append(warnings, fmt.Sprintf("only %d confluences", req.Confluences))
	}
	if sizing.Capped {
		warnings = append(warnings, "position capped at max exposure")
	}

	a := Assessment{
		Level:       level,
		Score:       score,
		RiskReward:  rr,
		Approved:    level != LevelExtreme && rr >= minRiskReward,
		Sizing:      sizing,
		Warnings:    warnings,
		EvaluatedAt: d.nowFn(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	cur := a
	cur.Warnings = slices.Clone(a.Warnings)
	d.current = &cur
	sz := sizing
	d.sizing = &sz
	d.metrics.Evaluations++
	if a.Approved {
		d.metrics.Approved++
	}
	d.metrics.LastRiskAmount = sizing.RiskAmount
	if d.cfg.AccountBalance > 0 {
		d.metrics.ExposurePct = sizing.Notional / d.cfg.AccountBalance * 100
	}
	if level == LevelHigh || level == LevelExtreme || !a.Approved {
		d.pushAlertLocked(level, fmt.Sprintf("%s %s risk %s (score %.0f, R:R %.2f)", req.Action, req.Timeframe, level, score, rr))
	}
	logger.Debugf("RiskDesk: %s entry=%.4f level=%s score=%.1f rr=%.2f qty=%.6f", req.Action, req.EntryPrice, level, score, rr, sizing.Quantity)
	return a, nil
}

func checkRequest(req SignalRequest) error {
	if req.EntryPrice <= 0 || req.StopLoss <= 0 || req.TakeProfit <= 0 {
		return fmt.Errorf("%w: prices must be positive", ErrInvalidRequest)
	}
	switch decision.NormalizeAction(req.Action) {
	case decision.ActionBuy:
		if !(req.StopLoss < req.EntryPrice && req.EntryPrice < req.TakeProfit) {
			return fmt.Errorf("%w: BUY expects stop < entry < take", ErrInvalidRequest)
		}
	case decision.ActionSell:
		if !(req.TakeProfit < req.EntryPrice && req.EntryPrice < req.StopLoss) {
			return fmt.Errorf("%w: SELL expects take < entry < stop", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: action %q has no risk", ErrInvalidRequest, req.Action)
	}
	return nil
}

// sizePosition risks a fixed share of the balance on the stop distance, then
// caps the notional at MaxPositionPct of the balance.
func (d *Desk) sizePosition(entry, stopDist decimal.Decimal) PositionSizing {
	balance := decFromFloat(d.cfg.AccountBalance)
	riskAmount := balance.Mul(decFromFloat(d.cfg.RiskPerTradePct))
	qty := riskAmount.Div(stopDist)
	notional := qty.Mul(entry)

	capped := false
	if d.cfg.MaxPositionPct > 0 {
		maxNotional := balance.Mul(decFromFloat(d.cfg.MaxPositionPct))
		if notional.GreaterThan(maxNotional) {
			capped = true
			notional = maxNotional
			qty = maxNotional.Div(entry)
			riskAmount = qty.Mul(stopDist)
		}
	}
	return PositionSizing{
		Quantity:     decToFloat(qty.Round(8)),
		Notional:     decToFloat(notional.Round(8)),
		RiskAmount:   decToFloat(riskAmount.Round(8)),
		StopDistance: decToFloat(stopDist),
		Capped:       capped,
	}
}

func riskScore(req SignalRequest) float64 {
	vol := clamp(req.Volatility)
	conf := clamp(req.Confidence)
	score := 0.5*vol + 0.5*(100-conf)
	if req.Confluences < minConfluences {
		score += lowConfluencesCost
	}
	return math.Round(clamp(score)*100) / 100
}

func levelFor(score float64) Level {
	switch {
	case score < 30:
		return LevelLow
	case score < 55:
		return LevelMedium
	case score < 75:
		return LevelHigh
	default:
		return LevelExtreme
	}
}

// PerformBacktest summarises a batch of fast signals and persists the summary.
func (d *Desk) PerformBacktest(ctx context.Context, inputs []BacktestInput) error {
	if len(inputs) == 0 {
		return errors.New("backtest: no inputs")
	}
	sum := summarise(inputs)
	sum.ID = uuid.NewString()
	sum.CreatedAt = d.nowFn()

	if d.repo != nil {
		raw, err := json.Marshal(inputs)
		if err != nil {
			return fmt.Errorf("backtest: encode inputs: %w", err)
		}
		run := &model.BacktestRunModel{
			ID:            sum.ID,
			Timeframe:     sum.Timeframe,
			Signals:       sum.Signals,
			Buys:          sum.Buys,
			Sells:         sum.Sells,
			Waits:         sum.Waits,
			AvgConfidence: sum.AvgConfidence,
			WinRate:       sum.WinRate,
			InputsJSON:    datatypes.JSON(raw),
			CreatedAtUnix: sum.CreatedAt.UnixMilli(),
		}
		if err := d.repo.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("backtest: %w", err)
		}
	}

	d.mu.Lock()
	d.lastBacktest = &sum
	d.metrics.Backtests++
	d.metrics.LastWinRate = sum.WinRate
	d.mu.Unlock()
	logger.Infof("RiskDesk: backtest %s signals=%d buys=%d sells=%d win_rate=%.1f", sum.ID, sum.Signals, sum.Buys, sum.Sells, sum.WinRate)
	return nil
}

// summarise estimates a win rate as the mean directional confidence weighted by
// how much the directional signals agree with each other.
func summarise(inputs []BacktestInput) BacktestSummary {
	sum := BacktestSummary{Signals: len(inputs), Timeframe: strings.TrimSpace(inputs[0].Timeframe)}
	var confTotal, dirConf float64
	for _, in := range inputs {
		confTotal += clamp(in.Confidence)
		switch decision.NormalizeAction(in.Action) {
		case decision.ActionBuy:
			sum.Buys++
			dirConf += clamp(in.Confidence)
		case decision.ActionSell:
			sum.Sells++
			dirConf += clamp(in.Confidence)
		default:
			sum.Waits++
		}
	}
	sum.AvgConfidence = round2(confTotal / float64(len(inputs)))
	directional := sum.Buys + sum.Sells
	if directional > 0 {
		agreement := float64(max(sum.Buys, sum.Sells)) / float64(directional)
		sum.WinRate = round2(dirConf / float64(directional) * agreement)
	}
	return sum
}

func (d *Desk) pushAlertLocked(level Level, msg string) {
	d.alerts = append(d.alerts, Alert{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		CreatedAt: d.nowFn(),
	})
	if over := len(d.alerts) - d.cfg.MaxAlerts; over > 0 {
		d.alerts = slices.Delete(d.alerts, 0, over)
	}
}

func (d *Desk) CurrentRisk() *Assessment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return nil
	}
	out := *d.current
	out.Warnings = slices.Clone(d.current.Warnings)
	return &out
}

func (d *Desk) PositionSizing() *PositionSizing {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.sizing == nil {
		return nil
	}
	out := *d.sizing
	return &out
}

func (d *Desk) ActiveAlerts() []Alert {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.alerts)
}

func (d *Desk) AccountMetrics() AccountMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.metrics
}

func (d *Desk) LastBacktest() *BacktestSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastBacktest == nil {
		return nil
	}
	out := *d.lastBacktest
	return &out
}

func decFromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func decToFloat(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
