package livehttp

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"autodecide/internal/agent/orchestrator"
	"autodecide/internal/analysis"
	"autodecide/internal/config"
	"autodecide/internal/logger"
	"autodecide/internal/store/model"

	"github.com/gin-gonic/gin"
)

const maxSnapshotBytes = 1 << 20

// StateProvider is the read side of the orchestrator.
type StateProvider interface {
	State() orchestrator.State
}

// SnapshotFeed accepts ingested upstream snapshots and keeps the latest one.
type SnapshotFeed interface {
	Publish(analysis.Snapshot)
	Last() (analysis.Snapshot, bool)
}

type SettingsProvider interface {
	MarketSettings() config.MarketConfig
}

// RunLister lists persisted backtest summaries.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]model.BacktestRunModel, error)
}

// Router exposes the decision state and the upstream ingestion endpoint.
type Router struct {
	State    StateProvider
	Feed     SnapshotFeed
	Settings SettingsProvider
	Runs     RunLister
}

// Register mounts the /api routes on group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/decision", r.handleDecision)
	group.POST("/analysis", r.handleAnalysis)
	group.GET("/analysis/last", r.handleLastAnalysis)
	group.GET("/config", r.handleConfig)
	group.GET("/backtests", r.handleBacktests)
}

func (r *Router) handleDecision(c *gin.Context) {
	if r.State == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "orchestrator not ready"})
		return
	}
	c.JSON(http.StatusOK, r.State.State())
}

func (r *Router) handleAnalysis(c *gin.Context) {
	if r.Feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis feed not configured"})
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(raw) > maxSnapshotBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot too large"})
		return
	}
	snap, err := analysis.DecodeSnapshot(raw)
	if err != nil {
		logger.Warnf("HTTP: snapshot rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.Feed.Publish(snap)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (r *Router) handleLastAnalysis(c *gin.Context) {
	if r.Feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis feed not configured"})
		return
	}
	snap, ok := r.Feed.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot received yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleConfig(c *gin.Context) {
	if r.Settings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settings not configured"})
		return
	}
	m := r.Settings.MarketSettings()
	c.JSON(http.StatusOK, gin.H{
		"symbol":             m.Symbol,
		"selected_timeframe": m.SelectedTimeframe,
		"market_type":        m.MarketType,
		"precision":          m.Precision,
	})
}

func (r *Router) handleBacktests(c *gin.Context) {
	if r.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest store not configured"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, 200)
	}
	runs, err := r.Runs.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "limit": limit})
}
