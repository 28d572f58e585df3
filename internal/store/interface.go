package store

import (
	"context"

	"autodecide/internal/store/model"
)

// BacktestRepository persists backtest summaries produced by the risk desk.
type BacktestRepository interface {
	SaveRun(ctx context.Context, run *model.BacktestRunModel) error
	RecentRuns(ctx context.Context, limit int) ([]model.BacktestRunModel, error)
	Close() error
}
