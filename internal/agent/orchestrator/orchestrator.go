package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"autodecide/internal/agent/interfaces"
	"autodecide/internal/analysis"
	"autodecide/internal/config"
	"autodecide/internal/decision"
	"autodecide/internal/decision/render"
	"autodecide/internal/gateway/notifier"
	"autodecide/internal/logger"
	"autodecide/internal/risk"
	"autodecide/internal/scheduler"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the read model handed to the UI layer.
type State struct {
	AIDecision     *decision.AutonomousDecision `json:"ai_decision"`
	IsProcessing   bool                         `json:"is_processing"`
	CurrentRisk    *risk.Assessment             `json:"current_risk"`
	PositionSizing *risk.PositionSizing         `json:"position_sizing"`
	ActiveAlerts   []risk.Alert                 `json:"active_alerts"`
	AccountMetrics risk.AccountMetrics          `json:"account_metrics"`
}

type Params struct {
	Settings interfaces.SettingsSource
	Decider  decision.Decider
	Risk     interfaces.RiskDesk
	Notifier interfaces.Notifier
	// Prices is optional; without it Options.EntryPrice is used.
	Prices  interfaces.PriceSource
	Options Options
}

// Orchestrator turns qualifying upstream snapshots into one decision per
// settled update. latest and inFlight are only written by its own cycles.
type Orchestrator struct {
	settings  interfaces.SettingsSource
	decider   decision.Decider
	desk      interfaces.RiskDesk
	notifier  interfaces.Notifier
	prices    interfaces.PriceSource
	opts      Options
	presenter *render.Presenter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	latest      *decision.AutonomousDecision
	inFlight    int
	generation  uint64
	pending     *scheduler.Deferred
	running     map[uint64]context.CancelFunc
	closed      bool
	unsubscribe func()
}

func New(p Params) (*Orchestrator, error) {
	if p.Settings == nil {
		return nil, errors.New("orchestrator: settings source is required")
	}
	if p.Decider == nil {
		return nil, errors.New("orchestrator: decider is required")
	}
	if p.Risk == nil {
		return nil, errors.New("orchestrator: risk desk is required")
	}
	if p.Notifier == nil {
		return nil, errors.New("orchestrator: notifier is required")
	}
	if p.Options.DebounceWindow < 0 || p.Options.ProcessingLatency < 0 || p.Options.DecideTimeout < 0 {
		return nil, fmt.Errorf("orchestrator: negative delay debounce=%s latency=%s decide_timeout=%s",
			p.Options.DebounceWindow, p.Options.ProcessingLatency, p.Options.DecideTimeout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		settings:  p.Settings,
		decider:   p.Decider,
		desk:      p.Risk,
		notifier:  p.Notifier,
		prices:    p.Prices,
		opts:      p.Options,
		presenter: render.NewPresenter(p.Options.Durations),
		running:   make(map[uint64]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
	if w, ok := p.Settings.(interfaces.SettingsWatcher); ok {
		w.Subscribe(o.onSettingsChanged)
	}
	return o, nil
}

// onSettingsChanged reports a market change; cycles read settings when they
// start, so running cycles keep the values they began with.
func (o *Orchestrator) onSettingsChanged(m config.MarketConfig) {
	o.mu.Lock()
	closed, inFlight := o.closed, o.inFlight
	o.mu.Unlock()
	if closed {
		return
	}
	logger.Infof("Orchestrator: market settings changed symbol=%s timeframe=%s market_type=%s precision=%d in_flight=%d",
		m.Symbol, m.SelectedTimeframe, m.MarketType, m.Precision, inFlight)
}

// Attach subscribes the orchestrator to feed until Close.
func (o *Orchestrator) Attach(feed *analysis.Feed) {
	if feed == nil {
		return
	}
	unsub := feed.Subscribe(o.OnUpstream)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		unsub()
		return
	}
	prev := o.unsubscribe
	o.unsubscribe = unsub
	o.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// OnUpstream handles one "upstream updated" event.
func (o *Orchestrator) OnUpstream(s analysis.Snapshot) {
	if reason, ok := qualifies(s); !ok {
		logger.Debugf("Orchestrator: skip update, %s", reason)
		return
	}
	factors := decision.BuildFactors(s.Detailed, s.Enhanced, s.Timing)
	fast := copyFast(s.Fast)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.generation++
	gen := o.generation
	if o.opts.Supersede {
		for g, cancel := range o.running {
			cancel()
			delete(o.running, g)
		}
	}
	cycleID := uuid.NewString()[:8]
	prev := o.pending
	o.inFlight++
	o.wg.Add(1)
	o.pending = scheduler.Defer(o.ctx, o.opts.DebounceWindow,
		func(ctx context.Context) { o.runCycle(ctx, cycleID, gen, factors, fast) },
		func() {
			logger.Debugf("Orchestrator: cycle %s dropped", cycleID)
			o.leave()
		},
	)
	o.mu.Unlock()

	logger.Debugf("Orchestrator: cycle %s scheduled gen=%d debounce=%s noise=%.0f", cycleID, gen, o.opts.DebounceWindow, factors.MarketConditions.Noise)
	if o.opts.Supersede && prev != nil {
		prev.Cancel()
	}
}

func qualifies(s analysis.Snapshot) (string, bool) {
	if len(s.Detailed) == 0 {
		return "no detailed results", false
	}
	if s.Enhanced == nil {
		return "no enhanced analysis", false
	}
	if s.Enhanced.MicroPatterns == nil {
		return "enhanced analysis has no micro patterns", false
	}
	return "", true
}

func copyFast(fast []analysis.FastResult) []analysis.FastResult {
	if len(fast) == 0 {
		return nil
	}
	out := make([]analysis.FastResult, len(fast))
	copy(out, fast)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (o *Orchestrator) leave() {
	o.mu.Lock()
	if o.inFlight > 0 {
		o.inFlight--
	}
	o.mu.Unlock()
	o.wg.Done()
}

func (o *Orchestrator) runCycle(ctx context.Context, id string, gen uint64, factors decision.Factors, fast []analysis.FastResult) {
	defer o.leave()

	if lat := o.opts.ProcessingLatency; lat > 0 {
		if !sleepCtx(ctx, lat) {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	settings := o.settings.MarketSettings()
	decideCtx, done, ok := o.beginDecide(ctx, gen)
	if !ok {
		logger.Debugf("Orchestrator: cycle %s superseded before the decider call", id)
		return
	}
	d, err := o.decide(decideCtx, factors, settings)
	superseded := decideCtx.Err() == context.Canceled
	done()
	if err != nil {
		if superseded {
			logger.Debugf("Orchestrator: cycle %s decider call cancelled by a newer update", id)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if o.isStale(gen) {
			logger.Debugf("Orchestrator: cycle %s failed after being superseded: %v", id, err)
			return
		}
		logger.Errorf("Orchestrator: cycle %s decision failed: %v", id, err)
		o.deliver(ctx, o.presenter.PresentFailure(err))
		return
	}

	if !o.store(gen, d) {
		logger.Infof("Orchestrator: cycle %s result discarded, superseded by a newer update", id)
		return
	}
	logger.Infof("Orchestrator: cycle %s decided %s confidence=%.1f grade=%s enter_now=%v wait=%.0fs",
		id, d.Action, d.Confidence, d.ProfessionalAnalysis.MarketGrade, d.Timing.EnterNow, d.Timing.WaitSeconds)

	var rc *render.RiskContext
	if d.Action != decision.ActionWait {
		rc = o.evaluateRisk(ctx, id, d, factors, settings)
	}
	if len(fast) > o.opts.BacktestMinSignals {
		o.startBacktest(ctx, id, fast, settings.SelectedTimeframe)
	}
	o.deliver(ctx, o.presenter.Present(d, rc))
}

// beginDecide derives the context of one decider call. With supersession it
// is registered so that a newer update cancels it; it is bounded by
// DecideTimeout either way.
func (o *Orchestrator) beginDecide(ctx context.Context, gen uint64) (context.Context, func(), bool) {
	var (
		dctx   context.Context
		cancel context.CancelFunc
	)
	if o.opts.DecideTimeout > 0 {
		dctx, cancel = context.WithTimeout(ctx, o.opts.DecideTimeout)
	} else {
		dctx, cancel = context.WithCancel(ctx)
	}
	if !o.opts.Supersede {
		return dctx, cancel, true
	}
	o.mu.Lock()
	if o.closed || gen < o.generation {
		o.mu.Unlock()
		cancel()
		return nil, nil, false
	}
	o.running[gen] = cancel
	o.mu.Unlock()
	return dctx, func() {
		o.mu.Lock()
		delete(o.running, gen)
		o.mu.Unlock()
		cancel()
	}, true
}

func (o *Orchestrator) decide(ctx context.Context, f decision.Factors, s config.MarketConfig) (d decision.AutonomousDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decider panic: %v", r)
		}
	}()
	d, err = o.decider.Decide(ctx, f, s.SelectedTimeframe, s.MarketType)
	if err != nil {
		return decision.AutonomousDecision{}, fmt.Errorf("decide: %w", err)
	}
	if err := decision.Validate(&d); err != nil {
		return decision.AutonomousDecision{}, err
	}
	return d, nil
}

// store records d unless the orchestrator is closed or, with supersession,
// a newer cycle has been scheduled since this one.
func (o *Orchestrator) store(gen uint64, d decision.AutonomousDecision) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if o.opts.Supersede && gen < o.generation {
		return false
	}
	o.latest = &d
	return true
}

func (o *Orchestrator) isStale(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed || (o.opts.Supersede && gen < o.generation)
}

func (o *Orchestrator) evaluateRisk(ctx context.Context, id string, d decision.AutonomousDecision, f decision.Factors, s config.MarketConfig) *render.RiskContext {
	req := o.signalRequest(ctx, d, f, s)
	a, err := o.desk.EvaluateSignalRisk(ctx, req)
	if err != nil {
		logger.Warnf("Orchestrator: cycle %s risk evaluation failed: %v", id, err)
		return nil
	}
	logger.Infof("Orchestrator: cycle %s risk level=%s score=%.1f rr=%.2f approved=%v", id, a.Level, a.Score, a.RiskReward, a.Approved)
	return &render.RiskContext{Assessment: &a, Precision: s.Precision}
}

func (o *Orchestrator) signalRequest(ctx context.Context, d decision.AutonomousDecision, f decision.Factors, s config.MarketConfig) risk.SignalRequest {
	entry := decimal.NewFromFloat(o.entryPrice(ctx, s.Symbol))
	stopOff := decimal.NewFromFloat(o.opts.StopOffsetPct)
	takeOff := decimal.NewFromFloat(o.opts.TakeOffsetPct)
	one := decimal.NewFromInt(1)

	var stop, take decimal.Decimal
	if d.Action == decision.ActionSell {
		stop = entry.Mul(one.Add(stopOff))
		take = entry.Mul(one.Sub(takeOff))
	} else {
		stop = entry.Mul(one.Sub(stopOff))
		take = entry.Mul(one.Add(takeOff))
	}
	entryF, _ := entry.Float64()
	stopF, _ := stop.Float64()
	takeF, _ := take.Float64()
	return risk.SignalRequest{
		Action:              d.Action,
		Confidence:          d.Confidence,
		ExpectedSuccessRate: d.ExpectedSuccessRate,
		MarketGrade:         d.ProfessionalAnalysis.MarketGrade,
		Timeframe:           s.SelectedTimeframe,
		EntryPrice:          entryF,
		StopLoss:            stopF,
		TakeProfit:          takeF,
		Volatility:          f.MarketConditions.Volatility,
		Confluences:         d.ProfessionalAnalysis.Confluences,
	}
}

func (o *Orchestrator) entryPrice(ctx context.Context, symbol string) float64 {
	if o.prices == nil || strings.TrimSpace(symbol) == "" {
		return o.opts.EntryPrice
	}
	p, err := o.prices.MarkPrice(ctx, symbol)
	if err != nil || p <= 0 {
		logger.Warnf("Orchestrator: mark price for %s unavailable (%v), using placeholder %.2f", symbol, err, o.opts.EntryPrice)
		return o.opts.EntryPrice
	}
	return p
}

func (o *Orchestrator) startBacktest(ctx context.Context, id string, fast []analysis.FastResult, timeframe string) {
	inputs := make([]risk.BacktestInput, 0, len(fast))
	for _, r := range fast {
		inputs = append(inputs, risk.BacktestInput{
			Action:      decision.Direction(r.Direction),
			Confidence:  r.Confidence,
			Confluences: o.opts.BacktestConfluences,
			Timeframe:   timeframe,
		})
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if ctx.Err() != nil {
			return
		}
		if err := o.desk.PerformBacktest(ctx, inputs); err != nil {
			logger.Warnf("Orchestrator: cycle %s backtest failed: %v", id, err)
		}
	}()
}

func (o *Orchestrator) deliver(ctx context.Context, n notifier.Notification) {
	if ctx.Err() != nil {
		return
	}
	if err := o.notifier.Notify(ctx, n); err != nil {
		logger.Warnf("Orchestrator: notification %q not delivered: %v", n.Title, err)
	}
}

// LatestDecision returns a copy of the last stored decision, or nil.
func (o *Orchestrator) LatestDecision() *decision.AutonomousDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latest == nil {
		return nil
	}
	d := *o.latest
	return &d
}

// IsProcessing reports whether any cycle is pending or running.
func (o *Orchestrator) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight > 0
}

func (o *Orchestrator) State() State {
	return State{
		AIDecision:     o.LatestDecision(),
		IsProcessing:   o.IsProcessing(),
		CurrentRisk:    o.desk.CurrentRisk(),
		PositionSizing: o.desk.PositionSizing(),
		ActiveAlerts:   o.desk.ActiveAlerts(),
		AccountMetrics: o.desk.AccountMetrics(),
	}
}

// Close drops pending cycles, cancels running ones and waits for them.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	unsub := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	o.cancel()
	o.wg.Wait()
	logger.Infof("Orchestrator: closed")
}

// wait blocks until every scheduled cycle and backtest has finished.
func (o *Orchestrator) wait() {
	o.wg.Wait()
}
