package scheduler

import (
	"context"
	"time"

	"autodecide/internal/logger"
)

// IntervalScheduler runs a task at a fixed interval until ctx is done or the
// task asks to stop by returning false.
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewIntervalScheduler(name string, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		nowFn:    time.Now,
	}
}

func (s *IntervalScheduler) Run(ctx context.Context, task func(ctx context.Context) bool) {
	if s == nil {
		return
	}
	prefix := "IntervalScheduler"
	if s.Name != "" {
		prefix = prefix + "[" + s.Name + "]"
	}
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: invalid interval=%s, exit", prefix, s.Interval)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s run_immediately=%v at=%s",
		prefix, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately && !task(ctx) {
		logger.Infof("%s: task finished", prefix)
		return
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	runs := 0
	for {
		select {
		case <-ctx.Done():
			logger.Infof("%s: ctx done after %d runs, uptime=%s", prefix, runs, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-ticker.C:
		}
		runs++
		if !task(ctx) {
			logger.Infof("%s: task finished after %d runs", prefix, runs)
			return
		}
	}
}
