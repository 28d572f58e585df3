package model

import (
	"time"

	"gorm.io/datatypes"
)

// BacktestRunModel is one summarised backtest over a batch of fast signals.
type BacktestRunModel struct {
	ID            string         `gorm:"column:id;primaryKey;size:36"`
	Timeframe     string         `gorm:"column:timeframe;index"`
	Signals       int            `gorm:"column:signals"`
	Buys          int            `gorm:"column:buys"`
	Sells         int            `gorm:"column:sells"`
	Waits         int            `gorm:"column:waits"`
	AvgConfidence float64        `gorm:"column:avg_confidence"`
	WinRate       float64        `gorm:"column:win_rate"`
	InputsJSON    datatypes.JSON `gorm:"column:inputs_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`

	CreatedAt time.Time `gorm:"-"`
}

func (BacktestRunModel) TableName() string { return "backtest_runs" }
