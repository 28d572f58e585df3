package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"autodecide/internal/analysis"
	"autodecide/internal/config"
	"autodecide/internal/decision"
	"autodecide/internal/gateway/notifier"
	"autodecide/internal/logger"
	"autodecide/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) Decide(ctx context.Context, f decision.Factors, timeframe, marketType string) (decision.AutonomousDecision, error) {
	args := m.Called(ctx, f, timeframe, marketType)
	return args.Get(0).(decision.AutonomousDecision), args.Error(1)
}

type MockRiskDesk struct {
	mock.Mock
}

func (m *MockRiskDesk) EvaluateSignalRisk(ctx context.Context, req risk.SignalRequest) (risk.Assessment, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(risk.Assessment), args.Error(1)
}

func (m *MockRiskDesk) PerformBacktest(ctx context.Context, inputs []risk.BacktestInput) error {
	args := m.Called(ctx, inputs)
	return args.Error(0)
}

func (m *MockRiskDesk) CurrentRisk() *risk.Assessment {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*risk.Assessment)
}

func (m *MockRiskDesk) PositionSizing() *risk.PositionSizing {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*risk.PositionSizing)
}

func (m *MockRiskDesk) ActiveAlerts() []risk.Alert {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]risk.Alert)
}

func (m *MockRiskDesk) AccountMetrics() risk.AccountMetrics {
	args := m.Called()
	return args.Get(0).(risk.AccountMetrics)
}

type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

// recordingNotifier keeps every delivered notification.
type recordingNotifier struct {
	mu  sync.Mutex
	got []notifier.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recordingNotifier) all() []notifier.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.Notification(nil), r.got...)
}

func TestMain(m *testing.M) {
	logger.Discard()
	m.Run()
}

var testMarket = config.MarketConfig{
	Symbol:            "BTCUSDT",
	SelectedTimeframe: "15m",
	MarketType:        "crypto",
	Precision:         2,
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.DebounceWindow = 0
	opts.ProcessingLatency = 0
	return opts
}

type harness struct {
	orch     *Orchestrator
	decider  *MockDecider
	desk     *MockRiskDesk
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts Options, dec decision.Decider) *harness {
	t.Helper()
	h := &harness{desk: &MockRiskDesk{}, notifier: &recordingNotifier{}}
	if dec == nil {
		h.decider = &MockDecider{}
		dec = h.decider
	}
	o, err := New(Params{
		Settings: config.NewStaticWatcher(testMarket),
		Decider:  dec,
		Risk:     h.desk,
		Notifier: h.notifier,
		Options:  opts,
	})
	require.NoError(t, err)
	h.orch = o
	t.Cleanup(o.Close)
	return h
}

// snapshot builds a qualifying update. conflicting controls the noise: every
// found pattern is either balanced (noise 100) or decisive (noise 0).
func snapshot(conflicting bool, fast int) analysis.Snapshot {
	buy, sell := 0.9, 0.1
	if conflicting {
		buy, sell = 0.5, 0.45
	}
	s := analysis.Snapshot{
		Detailed: map[string]analysis.PatternResult{
			"rsi":  {Found: true, BuyScore: buy, SellScore: sell},
			"macd": {Found: true, BuyScore: buy, SellScore: sell},
		},
		Enhanced: &analysis.EnhancedAnalysis{
			MicroPatterns:  []analysis.MicroPattern{{Name: "hammer", Direction: "up", Strength: 0.7}},
			VisualAnalysis: json.RawMessage(`{"marketStructure":{"volatility":42},"trendAnalysis":{"strength":61}}`),
		},
		Timing: json.RawMessage(`{"session":"london"}`),
	}
	dirs := []string{"up", "down", "sideways"}
	for i := 0; i < fast; i++ {
		s.Fast = append(s.Fast, analysis.FastResult{Direction: dirs[i%3], Confidence: float64(60 + i)})
	}
	return s
}

func buyNow() decision.AutonomousDecision {
	return decision.AutonomousDecision{
		Action:               decision.ActionBuy,
		Confidence:           80,
		ExpectedSuccessRate:  70,
		Timing:               decision.Timing{EnterNow: true},
		ProfessionalAnalysis: decision.ProfessionalAnalysis{MarketGrade: decision.GradeA, Confluences: 3},
	}
}

func waitDecision() decision.AutonomousDecision {
	return decision.AutonomousDecision{
		Action:               decision.ActionWait,
		Confidence:           30,
		ProfessionalAnalysis: decision.ProfessionalAnalysis{MarketGrade: decision.GradeC},
	}
}

func TestOrchestrator_GatesEmptyDetailedResults(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	s := snapshot(false, 0)
	s.Detailed = map[string]analysis.PatternResult{}
	h.orch.OnUpstream(s)
	h.orch.wait()

	assert.False(t, h.orch.IsProcessing())
	assert.Nil(t, h.orch.LatestDecision())
	assert.Empty(t, h.notifier.all())
	h.decider.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_GatesMissingMicroPatterns(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	noMicro := snapshot(false, 0)
	noMicro.Enhanced.MicroPatterns = nil
	noEnhanced := snapshot(false, 0)
	noEnhanced.Enhanced = nil

	h.orch.OnUpstream(noMicro)
	h.orch.OnUpstream(noEnhanced)
	h.orch.wait()

	assert.False(t, h.orch.IsProcessing())
	assert.Nil(t, h.orch.LatestDecision())
	h.decider.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_EmptyMicroPatternsStillQualify(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.decider.On("Decide", mock.Anything, mock.Anything, "15m", "crypto").Return(waitDecision(), nil).Once()

	s := snapshot(false, 0)
	s.Enhanced.MicroPatterns = []analysis.MicroPattern{}
	h.orch.OnUpstream(s)
	h.orch.wait()

	h.decider.AssertExpectations(t)
	require.NotNil(t, h.orch.LatestDecision())
}

func TestOrchestrator_BuyNowFullCycle(t *testing.T) {
	h := newHarness(t, testOptions(), nil)

	var gotFactors decision.Factors
	h.decider.On("Decide", mock.Anything, mock.Anything, "15m", "crypto").
		Run(func(args mock.Arguments) { gotFactors = args.Get(1).(decision.Factors) }).
		Return(buyNow(), nil).Once()
	assessment := risk.Assessment{Level: risk.LevelMedium, Score: 35, RiskReward: 1, Approved: true,
		Sizing: risk.PositionSizing{Quantity: 25, Notional: 2500, RiskAmount: 50}}
	h.desk.On("EvaluateSignalRisk", mock.Anything, risk.SignalRequest{
		Action:              decision.ActionBuy,
		Confidence:          80,
		ExpectedSuccessRate: 70,
		MarketGrade:         decision.GradeA,
		Timeframe:           "15m",
		EntryPrice:          100,
		StopLoss:            98,
		TakeProfit:          102,
		Volatility:          42,
		Confluences:         3,
	}).Return(assessment, nil).Once()

	h.orch.OnUpstream(snapshot(true, 0))
	h.orch.wait()

	h.decider.AssertExpectations(t)
	h.desk.AssertExpectations(t)
	h.desk.AssertNotCalled(t, "PerformBacktest", mock.Anything, mock.Anything)

	assert.Equal(t, 100.0, gotFactors.MarketConditions.Noise)
	assert.Equal(t, 42.0, gotFactors.MarketConditions.Volatility)
	assert.Equal(t, 61.0, gotFactors.MarketConditions.TrendStrength)
	assert.Len(t, gotFactors.TechnicalIndicators, 2)

	latest := h.orch.LatestDecision()
	require.NotNil(t, latest)
	assert.Equal(t, buyNow(), *latest)
	assert.False(t, h.orch.IsProcessing())

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeveritySuccess, sent[0].Severity)
	assert.Contains(t, sent[0].Title, "BUY NOW")
	assert.Contains(t, sent[0].Title, "🏆")
	assert.Contains(t, sent[0].Body, "80")
	assert.Contains(t, sent[0].Body, "Position size: 25.00")
}

func TestOrchestrator_WaitSkipsRisk(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()

	h.orch.OnUpstream(snapshot(false, 0))
	h.orch.wait()

	h.desk.AssertNotCalled(t, "EvaluateSignalRisk", mock.Anything, mock.Anything)
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeverityWarning, sent[0].Severity)
}

func TestOrchestrator_SellUsesMirroredOffsets(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	sell := buyNow()
	sell.Action = decision.ActionSell
	sell.Timing = decision.Timing{EnterNow: false, WaitSeconds: 30}
	h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sell, nil).Once()
	h.desk.On("EvaluateSignalRisk", mock.Anything, mock.MatchedBy(func(r risk.SignalRequest) bool {
		return r.Action == decision.ActionSell && r.EntryPrice == 100 && r.StopLoss == 102 && r.TakeProfit == 98
	})).Return(risk.Assessment{Level: risk.LevelLow}, nil).Once()

	h.orch.OnUpstream(snapshot(false, 0))
	h.orch.wait()

	h.desk.AssertExpectations(t)
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeverityInfo, sent[0].Severity)
	assert.Contains(t, sent[0].Title, "SELL in 30s")
}

func TestOrchestrator_DecisionFailureKeepsPrevious(t *testing.T) {
	cases := map[string]func(m *MockDecider){
		"error": func(m *MockDecider) {
			m.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(decision.AutonomousDecision{}, errors.New("upstream 500")).Once()
		},
		"panic": func(m *MockDecider) {
			m.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Panic("boom").Once()
		},
		"invalid": func(m *MockDecider) {
			bad := buyNow()
			bad.Confidence = 150
			m.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(bad, nil).Once()
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, testOptions(), nil)
			h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()
			h.orch.OnUpstream(snapshot(false, 0))
			h.orch.wait()
			before := h.orch.LatestDecision()
			require.NotNil(t, before)

			setup(h.decider)
			h.orch.OnUpstream(snapshot(false, 0))
			h.orch.wait()

			assert.Equal(t, before, h.orch.LatestDecision())
			assert.False(t, h.orch.IsProcessing())
			sent := h.notifier.all()
			require.Len(t, sent, 2)
			assert.Equal(t, notifier.SeverityError, sent[1].Severity)
			assert.NotContains(t, sent[1].Body, "boom")
			assert.NotContains(t, sent[1].Body, "500")
		})
	}
}

func TestOrchestrator_RiskFailureIsIsolated(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(buyNow(), nil).Once()
	h.desk.On("EvaluateSignalRisk", mock.Anything, mock.Anything).Return(risk.Assessment{}, errors.New("desk down")).Once()

	h.orch.OnUpstream(snapshot(false, 0))
	h.orch.wait()

	require.NotNil(t, h.orch.LatestDecision())
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeveritySuccess, sent[0].Severity)
	assert.NotContains(t, sent[0].Body, "Risk:")
}

func TestOrchestrator_BacktestThreshold(t *testing.T) {
	t.Run("six results run one backtest", func(t *testing.T) {
		h := newHarness(t, testOptions(), nil)
		h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()
		var got []risk.BacktestInput
		h.desk.On("PerformBacktest", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { got = args.Get(1).([]risk.BacktestInput) }).
			Return(nil).Once()

		h.orch.OnUpstream(snapshot(false, 6))
		h.orch.wait()

		h.desk.AssertNumberOfCalls(t, "PerformBacktest", 1)
		require.Len(t, got, 6)
		assert.Equal(t, risk.BacktestInput{Action: decision.ActionBuy, Confidence: 60, Confluences: 2, Timeframe: "15m"}, got[0])
		assert.Equal(t, decision.ActionSell, got[1].Action)
		assert.Equal(t, decision.ActionWait, got[2].Action)
	})

	t.Run("five results do not", func(t *testing.T) {
		h := newHarness(t, testOptions(), nil)
		h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()

		h.orch.OnUpstream(snapshot(false, 5))
		h.orch.wait()

		h.desk.AssertNotCalled(t, "PerformBacktest", mock.Anything, mock.Anything)
	})

	t.Run("backtest failure does not affect the notification", func(t *testing.T) {
		h := newHarness(t, testOptions(), nil)
		h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()
		h.desk.On("PerformBacktest", mock.Anything, mock.Anything).Return(errors.New("store down")).Once()

		h.orch.OnUpstream(snapshot(false, 8))
		h.orch.wait()

		require.Len(t, h.notifier.all(), 1)
		assert.Equal(t, notifier.SeverityWarning, h.notifier.all()[0].Severity)
	})
}

func TestOrchestrator_DebounceSupersedesPending(t *testing.T) {
	opts := testOptions()
	opts.DebounceWindow = 80 * time.Millisecond
	h := newHarness(t, opts, nil)

	h.decider.On("Decide", mock.Anything, mock.MatchedBy(func(f decision.Factors) bool {
		return f.MarketConditions.Noise == 0
	}), mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()

	h.orch.OnUpstream(snapshot(true, 0))
	h.orch.OnUpstream(snapshot(true, 0))
	assert.True(t, h.orch.IsProcessing())
	h.orch.OnUpstream(snapshot(false, 0))
	h.orch.wait()

	h.decider.AssertNumberOfCalls(t, "Decide", 1)
	h.decider.AssertExpectations(t)
	assert.False(t, h.orch.IsProcessing())
	assert.Len(t, h.notifier.all(), 1)
}

// blockingDecider returns its scripted decisions in call order; a call blocks
// until its release channel is closed.
type blockingDecider struct {
	mu      sync.Mutex
	calls   int
	started []chan struct{}
	release []chan struct{}
	results []decision.AutonomousDecision
}

func newBlockingDecider(results ...decision.AutonomousDecision) *blockingDecider {
	b := &blockingDecider{results: results}
	for range results {
		b.started = append(b.started, make(chan struct{}))
		b.release = append(b.release, make(chan struct{}))
	}
	return b
}

func (b *blockingDecider) Decide(ctx context.Context, _ decision.Factors, _, _ string) (decision.AutonomousDecision, error) {
	b.mu.Lock()
	i := b.calls
	b.calls++
	b.mu.Unlock()
	close(b.started[i])
	select {
	case <-b.release[i]:
		return b.results[i], nil
	case <-ctx.Done():
		return decision.AutonomousDecision{}, ctx.Err()
	}
}

func waitCh(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func TestOrchestrator_SupersedeDiscardsStaleRunningCycle(t *testing.T) {
	older := buyNow()
	newer := waitDecision()
	dec := newBlockingDecider(older, newer)
	h := newHarness(t, testOptions(), dec)

	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[0])
	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[1])

	close(dec.release[1])
	close(dec.release[0])
	h.orch.wait()

	latest := h.orch.LatestDecision()
	require.NotNil(t, latest)
	assert.Equal(t, decision.ActionWait, latest.Action, "last to start wins")
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	h.desk.AssertNotCalled(t, "EvaluateSignalRisk", mock.Anything, mock.Anything)
}

func TestOrchestrator_SupersedeCancelsRunningDeciderCall(t *testing.T) {
	dec := newBlockingDecider(buyNow(), waitDecision())
	h := newHarness(t, testOptions(), dec)

	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[0])
	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[1])
	close(dec.release[1])

	done := make(chan struct{})
	go func() {
		h.orch.wait()
		close(done)
	}()
	waitCh(t, done)

	assert.False(t, h.orch.IsProcessing())
	latest := h.orch.LatestDecision()
	require.NotNil(t, latest)
	assert.Equal(t, decision.ActionWait, latest.Action)
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeverityWarning, sent[0].Severity)
}

func TestOrchestrator_DecideTimeoutBoundsCycle(t *testing.T) {
	opts := testOptions()
	opts.DecideTimeout = 30 * time.Millisecond
	dec := newBlockingDecider(buyNow())
	h := newHarness(t, opts, dec)

	h.orch.OnUpstream(snapshot(false, 0))
	done := make(chan struct{})
	go func() {
		h.orch.wait()
		close(done)
	}()
	waitCh(t, done)

	assert.False(t, h.orch.IsProcessing())
	assert.Nil(t, h.orch.LatestDecision())
	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notifier.SeverityError, sent[0].Severity)
	assert.Contains(t, sent[0].Body, "timed out")
}

func TestOrchestrator_WithoutSupersedeLastToFinishWins(t *testing.T) {
	opts := testOptions()
	opts.Supersede = false
	older := buyNow()
	newer := waitDecision()
	dec := newBlockingDecider(older, newer)
	h := newHarness(t, opts, dec)
	h.desk.On("EvaluateSignalRisk", mock.Anything, mock.Anything).Return(risk.Assessment{Level: risk.LevelLow}, nil)

	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[0])
	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[1])

	close(dec.release[1])
	require.Eventually(t, func() bool { return len(h.notifier.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.orch.IsProcessing(), "older cycle still running")
	close(dec.release[0])
	h.orch.wait()

	latest := h.orch.LatestDecision()
	require.NotNil(t, latest)
	assert.Equal(t, decision.ActionBuy, latest.Action)
	assert.Len(t, h.notifier.all(), 2)
	assert.False(t, h.orch.IsProcessing())
}

func TestOrchestrator_CloseDropsPendingCycle(t *testing.T) {
	opts := testOptions()
	opts.DebounceWindow = time.Hour
	h := newHarness(t, opts, nil)

	h.orch.OnUpstream(snapshot(false, 0))
	assert.True(t, h.orch.IsProcessing())

	h.orch.Close()
	assert.False(t, h.orch.IsProcessing())
	h.decider.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	h.orch.OnUpstream(snapshot(false, 0))
	assert.False(t, h.orch.IsProcessing())
	assert.Empty(t, h.notifier.all())
}

func TestOrchestrator_CloseCancelsRunningCycle(t *testing.T) {
	dec := newBlockingDecider(buyNow())
	h := newHarness(t, testOptions(), dec)

	h.orch.OnUpstream(snapshot(false, 0))
	waitCh(t, dec.started[0])
	assert.True(t, h.orch.IsProcessing())

	h.orch.Close()
	assert.Nil(t, h.orch.LatestDecision())
	assert.False(t, h.orch.IsProcessing())
	assert.Empty(t, h.notifier.all())
}

func TestOrchestrator_ProcessingLatencyHonoursClose(t *testing.T) {
	opts := testOptions()
	opts.ProcessingLatency = time.Hour
	h := newHarness(t, opts, nil)

	h.orch.OnUpstream(snapshot(false, 0))
	done := make(chan struct{})
	go func() {
		h.orch.Close()
		close(done)
	}()
	waitCh(t, done)
	h.decider.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_MarkPriceReplacesPlaceholder(t *testing.T) {
	prices := &MockPriceSource{}
	desk := &MockRiskDesk{}
	dec := &MockDecider{}
	notes := &recordingNotifier{}
	o, err := New(Params{
		Settings: config.NewStaticWatcher(testMarket),
		Decider:  dec,
		Risk:     desk,
		Notifier: notes,
		Prices:   prices,
		Options:  testOptions(),
	})
	require.NoError(t, err)
	defer o.Close()

	dec.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(buyNow(), nil).Twice()
	prices.On("MarkPrice", mock.Anything, "BTCUSDT").Return(200.0, nil).Once()
	prices.On("MarkPrice", mock.Anything, "BTCUSDT").Return(0.0, errors.New("timeout")).Once()
	desk.On("EvaluateSignalRisk", mock.Anything, mock.MatchedBy(func(r risk.SignalRequest) bool {
		return r.EntryPrice == 200 && r.StopLoss == 196 && r.TakeProfit == 204
	})).Return(risk.Assessment{Level: risk.LevelLow}, nil).Once()
	desk.On("EvaluateSignalRisk", mock.Anything, mock.MatchedBy(func(r risk.SignalRequest) bool {
		return r.EntryPrice == 100
	})).Return(risk.Assessment{Level: risk.LevelLow}, nil).Once()

	o.OnUpstream(snapshot(false, 0))
	o.wait()
	o.OnUpstream(snapshot(false, 0))
	o.wait()

	prices.AssertExpectations(t)
	desk.AssertExpectations(t)
}

func TestOrchestrator_AttachToFeed(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	h.decider.On("Decide", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(waitDecision(), nil).Once()

	feed := analysis.NewFeed()
	h.orch.Attach(feed)
	feed.Publish(snapshot(false, 0))
	h.orch.wait()
	require.NotNil(t, h.orch.LatestDecision())

	h.orch.Close()
	feed.Publish(snapshot(false, 0))
	h.decider.AssertNumberOfCalls(t, "Decide", 1)
}

func TestOrchestrator_StatePassesThroughRiskDesk(t *testing.T) {
	h := newHarness(t, testOptions(), nil)
	current := &risk.Assessment{Level: risk.LevelHigh, Score: 70}
	sizing := &risk.PositionSizing{Quantity: 1}
	alerts := []risk.Alert{{ID: "a1", Level: risk.LevelHigh}}
	metrics := risk.AccountMetrics{Balance: 10000, Evaluations: 3}
	h.desk.On("CurrentRisk").Return(current)
	h.desk.On("PositionSizing").Return(sizing)
	h.desk.On("ActiveAlerts").Return(alerts)
	h.desk.On("AccountMetrics").Return(metrics)

	st := h.orch.State()
	assert.Nil(t, st.AIDecision)
	assert.False(t, st.IsProcessing)
	assert.Equal(t, current, st.CurrentRisk)
	assert.Equal(t, sizing, st.PositionSizing)
	assert.Equal(t, alerts, st.ActiveAlerts)
	assert.Equal(t, metrics, st.AccountMetrics)
}

// watchedSettings is a settings source whose changes the test fires by hand.
type watchedSettings struct {
	mu        sync.Mutex
	market    config.MarketConfig
	listeners []config.ChangeListener
}

func (w *watchedSettings) MarketSettings() config.MarketConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.market
}

func (w *watchedSettings) Subscribe(fn config.ChangeListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *watchedSettings) set(m config.MarketConfig) {
	w.mu.Lock()
	w.market = m
	listeners := append([]config.ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(m)
	}
}

// syncBuffer collects log output written from any goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestOrchestrator_FollowsSettingsChanges(t *testing.T) {
	logs := &syncBuffer{}
	logger.SetOutput(logs)
	t.Cleanup(logger.Discard)

	settings := &watchedSettings{market: testMarket}
	dec := &MockDecider{}
	o, err := New(Params{
		Settings: settings,
		Decider:  dec,
		Risk:     &MockRiskDesk{},
		Notifier: &recordingNotifier{},
		Options:  testOptions(),
	})
	require.NoError(t, err)
	require.Len(t, settings.listeners, 1)

	changed := testMarket
	changed.SelectedTimeframe = "1h"
	settings.set(changed)
	assert.Contains(t, logs.String(), "market settings changed")
	assert.Contains(t, logs.String(), "timeframe=1h")

	dec.On("Decide", mock.Anything, mock.Anything, "1h", "crypto").Return(waitDecision(), nil).Once()
	o.OnUpstream(snapshot(false, 0))
	o.wait()
	dec.AssertExpectations(t)

	o.Close()
	before := len(logs.String())
	settings.set(testMarket)
	assert.NotContains(t, logs.String()[before:], "market settings changed")
}

func TestNew_RequiresCollaborators(t *testing.T) {
	settings := config.NewStaticWatcher(testMarket)
	full := Params{Settings: settings, Decider: &MockDecider{}, Risk: &MockRiskDesk{}, Notifier: &recordingNotifier{}, Options: testOptions()}

	for name, mutate := range map[string]func(p *Params){
		"settings": func(p *Params) { p.Settings = nil },
		"decider":  func(p *Params) { p.Decider = nil },
		"risk":     func(p *Params) { p.Risk = nil },
		"notifier": func(p *Params) { p.Notifier = nil },
		"negative": func(p *Params) { p.Options.DebounceWindow = -time.Second },
		"timeout":  func(p *Params) { p.Options.DecideTimeout = -time.Second },
	} {
		p := full
		mutate(&p)
		_, err := New(p)
		assert.Error(t, err, name)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.OrchestratorConfig{
		DebounceMS:          1500,
		ProcessingLatencyMS: 250,
		DecideTimeoutMS:     1000,
		Supersede:           true,
		BacktestMinSignals:  5,
		EntryPrice:          100,
		StopOffsetPct:       0.02,
		TakeOffsetPct:       0.03,
		BacktestConfluences: 2,
		SuccessDurationMS:   8000,
		ErrorDurationMS:     5000,
	})
	assert.Equal(t, 1500*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 250*time.Millisecond, opts.ProcessingLatency)
	assert.Equal(t, time.Second, opts.DecideTimeout)
	assert.True(t, opts.Supersede)
	assert.Equal(t, 0.03, opts.TakeOffsetPct)
	assert.Equal(t, 8*time.Second, opts.Durations.Success)
	assert.Zero(t, opts.Durations.Info)
}
