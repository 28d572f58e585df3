package decider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autodecide/internal/decision"
	"autodecide/internal/logger"
	"autodecide/internal/pkg/text"
)

const (
	maxBodyBytes      = 1 << 20
	defaultMaxBackoff = 8 * time.Second
)

// HTTPClient calls a remote decision function:
// POST {endpoint} {"factors":..., "timeframe":..., "market_type":...}.
type HTTPClient struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	ExtraHeaders map[string]string
	// MaxRetries applies to 429/5xx only; 0 means 2.
	MaxRetries int
	// BaseBackoff doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps every wait, including a server Retry-After; 0 means 8s.
	MaxBackoff time.Duration

	client *http.Client
}

var _ decision.Decider = (*HTTPClient)(nil)

func NewHTTPClient(endpoint, apiKey string, timeout time.Duration, headers map[string]string) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		Endpoint:     strings.TrimSpace(endpoint),
		APIKey:       apiKey,
		Timeout:      timeout,
		ExtraHeaders: headers,
		BaseBackoff:  800 * time.Millisecond,
		MaxBackoff:   defaultMaxBackoff,
		client:       &http.Client{Timeout: timeout},
	}
}

type requestBody struct {
	Factors    decision.Factors `json:"factors"`
	Timeframe  string           `json:"timeframe"`
	MarketType string           `json:"market_type"`
}

func (c *HTTPClient) Decide(ctx context.Context, factors decision.Factors, timeframe, marketType string) (decision.AutonomousDecision, error) {
	if c.Endpoint == "" {
		return decision.AutonomousDecision{}, errors.New("decider endpoint is empty")
	}
	body, err := json.Marshal(requestBody{Factors: factors, Timeframe: timeframe, MarketType: marketType})
	if err != nil {
		return decision.AutonomousDecision{}, fmt.Errorf("encode factors: %w", err)
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	httpc := c.client
	if httpc == nil {
		httpc = &http.Client{Timeout: c.Timeout}
	}
	logger.Debugf("Decider: POST %s timeframe=%s market_type=%s bytes=%d", c.Endpoint, timeframe, marketType, len(body))
	logger.LogExchangeRequest(c.Endpoint, fmt.Sprintf("timeframe=%s market_type=%s noise=%.0f", timeframe, marketType, factors.MarketConditions.Noise), string(body))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
		if err != nil {
			return decision.AutonomousDecision{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return decision.AutonomousDecision{}, err
		}
		raw, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if rerr != nil {
			return decision.AutonomousDecision{}, fmt.Errorf("read decision: %w", rerr)
		}
		logger.LogExchangeResponse(c.Endpoint, resp.StatusCode, string(raw))
		if resp.StatusCode/100 == 2 {
			return CoerceDecision(raw)
		}

		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, errorMessage(raw, resp.Status))
		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := c.backoff(attempt, resp.Header.Get("Retry-After"))
		logger.Warnf("Decider: %v, retry in %s (%d/%d)", lastErr, wait, attempt+1, maxRetries)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decision.AutonomousDecision{}, ctx.Err()
		case <-timer.C:
		}
	}
	return decision.AutonomousDecision{}, lastErr
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *HTTPClient) backoff(attempt int, retryAfter string) time.Duration {
	limit := c.MaxBackoff
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		if int64(secs) >= int64(limit/time.Second)+1 {
			return limit
		}
		return min(time.Duration(secs)*time.Second, limit)
	}
	base := c.BaseBackoff
	if base <= 0 {
		base = 800 * time.Millisecond
	}
	wait := base << attempt
	if wait <= 0 || wait > limit {
		wait = limit
	}
	return wait
}

func errorMessage(raw []byte, fallback string) string {
	var e struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil {
		switch v := e.Error.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if body := strings.TrimSpace(string(raw)); body != "" {
		return text.Truncate(body, 200)
	}
	return fallback
}
