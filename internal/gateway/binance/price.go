package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

const defaultRESTBaseURL = "https://fapi.binance.com"

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	c.RESTBaseURL = strings.TrimRight(strings.TrimSpace(c.RESTBaseURL), "/")
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultRESTBaseURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// PriceSource reads futures mark prices from the Binance premium index.
type PriceSource struct {
	client *futures.Client
}

func NewPriceSource(cfg Config) *PriceSource {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &PriceSource{client: client}
}

// MarkPrice accepts "BTCUSDT", "BTC/USDT" or "BTC/USDT:USDT".
func (s *PriceSource) MarkPrice(ctx context.Context, sym string) (float64, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("binance price source not initialized")
	}
	symbol := toBinanceSymbol(sym)
	if symbol == "" {
		return 0, fmt.Errorf("invalid symbol: %q", sym)
	}
	res, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("premium index %s: %w", symbol, err)
	}
	for _, entry := range res {
		if entry == nil || !strings.EqualFold(entry.Symbol, symbol) {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(entry.MarkPrice), 64)
		if err != nil || price <= 0 {
			return 0, fmt.Errorf("bad mark price %q for %s", entry.MarkPrice, symbol)
		}
		return price, nil
	}
	return 0, fmt.Errorf("mark price not available for %s", symbol)
}

func toBinanceSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}
