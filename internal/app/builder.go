package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autodecide/internal/agent/interfaces"
	"autodecide/internal/agent/orchestrator"
	"autodecide/internal/analysis"
	"autodecide/internal/config"
	"autodecide/internal/decision"
	"autodecide/internal/gateway/binance"
	"autodecide/internal/gateway/decider"
	"autodecide/internal/gateway/notifier"
	"autodecide/internal/logger"
	"autodecide/internal/risk"
	"autodecide/internal/store"
	"autodecide/internal/store/sqlite"
	livehttp "autodecide/internal/transport/http/live"
)

// AppBuilder wires every component from a loaded config. The *Fn hooks are
// swapped out in tests.
type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	settingsFn func(string, *config.Config) (*config.Watcher, error)
	storeFn    func(string) (store.BacktestRepository, error)
	deciderFn  func(config.DeciderConfig) (decision.Decider, error)
	pricesFn   func(config.BinanceConfig) interfaces.PriceSource
	sinksFn    func(config.NotifyConfig) []notifier.Sink
}

type AppBuilderOption func(*AppBuilder)

// WithDecider replaces the HTTP decision function client.
func WithDecider(d decision.Decider) AppBuilderOption {
	return func(b *AppBuilder) {
		b.deciderFn = func(config.DeciderConfig) (decision.Decider, error) { return d, nil }
	}
}

func WithBacktestStore(repo store.BacktestRepository) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(string) (store.BacktestRepository, error) { return repo, nil }
	}
}

func WithPriceSource(p interfaces.PriceSource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.pricesFn = func(config.BinanceConfig) interfaces.PriceSource { return p }
	}
}

func WithSinks(sinks ...notifier.Sink) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sinksFn = func(config.NotifyConfig) []notifier.Sink { return sinks }
	}
}

func NewAppBuilder(cfg *config.Config, cfgPath string, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		cfgPath:    cfgPath,
		settingsFn: buildSettings,
		storeFn:    openBacktestStore,
		deciderFn:  buildDecider,
		pricesFn:   buildPriceSource,
		sinksFn:    buildSinks,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, errors.New("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)

	settings, err := b.settingsFn(b.cfgPath, cfg)
	if err != nil {
		return nil, err
	}

	repo, err := b.storeFn(cfg.Risk.StorePath)
	if err != nil {
		return nil, err
	}
	closeRepo := func() {
		if repo != nil {
			_ = repo.Close()
		}
	}

	desk := risk.NewDesk(risk.DeskConfig{
		AccountBalance:  cfg.Risk.AccountBalance,
		RiskPerTradePct: cfg.Risk.RiskPerTradePct,
		MaxPositionPct:  cfg.Risk.MaxPositionPct,
		MaxAlerts:       cfg.Risk.MaxAlerts,
	}, repo)

	sinks := b.sinksFn(cfg.Notify)
	dispatcher := notifier.NewDispatcher(notifier.DispatcherConfig{
		RatePerMinute:    cfg.Notify.RatePerMinute,
		BreakerThreshold: cfg.Notify.BreakerThreshold,
		BreakerCooldown:  cfg.Notify.BreakerCooldown(),
	}, sinks...)

	dec, err := b.deciderFn(cfg.Decider)
	if err != nil {
		closeRepo()
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Params{
		Settings: settings,
		Decider:  dec,
		Risk:     desk,
		Notifier: dispatcher,
		Prices:   b.pricesFn(cfg.Binance),
		Options:  orchestrator.OptionsFromConfig(cfg.Orchestrator),
	})
	if err != nil {
		closeRepo()
		return nil, err
	}
	feed := analysis.NewFeed()
	orch.Attach(feed)

	var replay []analysis.Snapshot
	if path := strings.TrimSpace(cfg.App.ReplayPath); path != "" {
		replay, err = analysis.LoadFixtures(path)
		if err != nil {
			orch.Close()
			closeRepo()
			return nil, err
		}
	}

	serverCfg := livehttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		State:    orch,
		Feed:     feed,
		Settings: settings,
	}
	if repo != nil {
		serverCfg.Runs = repo
	}
	server, err := livehttp.NewServer(serverCfg)
	if err != nil {
		orch.Close()
		closeRepo()
		return nil, fmt.Errorf("init live http failed: %w", err)
	}

	summary := &StartupSummary{
		Env:            cfg.App.Env,
		HTTPAddr:       server.Addr(),
		Market:         settings.MarketSettings(),
		DeciderURL:     cfg.Decider.Endpoint,
		Debounce:       cfg.Orchestrator.DebounceWindow(),
		Latency:        cfg.Orchestrator.ProcessingLatency(),
		Supersede:      cfg.Orchestrator.Supersede,
		Sinks:          dispatcher.Sinks(),
		BacktestStore:  cfg.Risk.StorePath,
		MarkPrice:      cfg.Binance.Enabled,
		ReplaySnaps:    len(replay),
		ReplayInterval: time.Duration(cfg.App.ReplayIntervalMS) * time.Millisecond,
	}
	if repo == nil {
		summary.BacktestStore = ""
	}

	return &App{
		cfg:      cfg,
		feed:     feed,
		orch:     orch,
		desk:     desk,
		repo:     repo,
		liveHTTP: server,
		replay:   replay,
		Summary:  summary,
	}, nil
}

// buildSettings watches the config file when there is one; otherwise the
// market settings stay fixed.
func buildSettings(path string, cfg *config.Config) (*config.Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return config.NewStaticWatcher(cfg.Market), nil
	}
	w, err := config.NewWatcher(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("init config watcher failed: %w", err)
	}
	return w, nil
}

// openBacktestStore returns a nil repository when no store path is set.
func openBacktestStore(path string) (store.BacktestRepository, error) {
	if strings.TrimSpace(path) == "" {
		logger.Warnf("Backtest store disabled, summaries stay in memory")
		return nil, nil
	}
	s, err := sqlite.NewSqliteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open backtest store failed: %w", err)
	}
	return s, nil
}

func buildDecider(cfg config.DeciderConfig) (decision.Decider, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("decider.endpoint is required")
	}
	return decider.NewHTTPClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout(), cfg.Headers), nil
}

func buildPriceSource(cfg config.BinanceConfig) interfaces.PriceSource {
	if !cfg.Enabled {
		return nil
	}
	logger.Infof("Binance mark price enabled: %s", cfg.RESTBaseURL)
	return binance.NewPriceSource(binance.Config{
		RESTBaseURL: cfg.RESTBaseURL,
		HTTPTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
}

func buildSinks(cfg config.NotifyConfig) []notifier.Sink {
	sinks := []notifier.Sink{notifier.LogSink{}}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	return sinks
}
