package config

import (
	"fmt"
	"strings"
	"sync"

	"autodecide/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener 在 market 配置变更时被调用。
type ChangeListener func(MarketConfig)

// Watcher holds the live market settings (timeframe, market type, precision)
// and refreshes them whenever the config file changes on disk. Only the market
// section is hot; everything else needs a restart.
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	market    MarketConfig
	listeners []ChangeListener
}

// NewStaticWatcher returns a Watcher that never reloads; handy for tests and
// for callers that build settings in code.
func NewStaticWatcher(m MarketConfig) *Watcher {
	return &Watcher{market: m}
}

// NewWatcher seeds the watcher from cfg and starts listening for fs events on path.
func NewWatcher(path string, cfg *Config) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config watcher requires initial config")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config for watch failed: %w", err)
	}
	w := &Watcher{path: path, v: v, market: cfg.Market}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

// MarketSettings returns the current market settings snapshot.
func (w *Watcher) MarketSettings() MarketConfig {
	if w == nil {
		return MarketConfig{}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.market
}

// Subscribe registers fn for future market changes.
func (w *Watcher) Subscribe(fn ChangeListener) {
	if w == nil || fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	prev := w.market
	w.market = cfg.Market
	w.mu.Unlock()
	if prev != cfg.Market {
		logger.Infof("Config: market settings reloaded timeframe=%s market_type=%s precision=%d",
			cfg.Market.SelectedTimeframe, cfg.Market.MarketType, cfg.Market.Precision)
	}
	return nil
}

func (w *Watcher) notify() {
	w.mu.RLock()
	snap := w.market
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}
