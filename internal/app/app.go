package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"autodecide/internal/agent/orchestrator"
	"autodecide/internal/analysis"
	"autodecide/internal/config"
	"autodecide/internal/logger"
	"autodecide/internal/risk"
	"autodecide/internal/scheduler"
	"autodecide/internal/store"
	livehttp "autodecide/internal/transport/http/live"

	"golang.org/x/sync/errgroup"
)

// App owns the running components: feed, orchestrator, risk desk, HTTP.
type App struct {
	cfg      *config.Config
	feed     *analysis.Feed
	orch     *orchestrator.Orchestrator
	desk     *risk.Desk
	repo     store.BacktestRepository
	liveHTTP *livehttp.Server
	replay   []analysis.Snapshot
	replayed atomic.Int64

	Summary *StartupSummary
}

// NewApp builds the application from cfg; cfgPath enables hot reload of the
// market section.
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	return NewAppBuilder(cfg, cfgPath).Build(context.Background())
}

// Run serves HTTP and replays fixtures until ctx is done, then closes the
// orchestrator and the backtest store.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.orch == nil {
		return errors.New("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print(os.Stdout)
	}
	defer a.close()

	group, gctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(gctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	if len(a.replay) > 0 {
		group.Go(func() error {
			a.runReplay(gctx)
			return nil
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		a.orch.Close()
		return nil
	})
	return group.Wait()
}

// runReplay publishes the loaded fixtures into the feed, one per interval.
func (a *App) runReplay(ctx context.Context) {
	interval := time.Duration(a.cfg.App.ReplayIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	s := scheduler.NewIntervalScheduler("replay", interval)
	s.RunImmediately = true
	s.Run(ctx, func(context.Context) bool {
		next := int(a.replayed.Load())
		if next >= len(a.replay) {
			return false
		}
		a.feed.Publish(a.replay[next])
		a.replayed.Add(1)
		logger.Debugf("Replay: published snapshot %d/%d", next+1, len(a.replay))
		return next+1 < len(a.replay)
	})
}

func (a *App) close() {
	a.orch.Close()
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			logger.Warnf("close backtest store failed: %v", err)
		}
	}
}

func (a *App) Feed() *analysis.Feed {
	if a == nil {
		return nil
	}
	return a.feed
}

func (a *App) Orchestrator() *orchestrator.Orchestrator {
	if a == nil {
		return nil
	}
	return a.orch
}

func (a *App) RiskDesk() *risk.Desk {
	if a == nil {
		return nil
	}
	return a.desk
}
