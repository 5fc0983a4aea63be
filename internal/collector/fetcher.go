package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"LevelSentinel/internal/model"
)

// Fetcher supplies OHLCV candles, oldest first.
type Fetcher interface {
	FetchCandles(ctx context.Context, sym model.Symbol, tf model.Timeframe, count int) ([]model.OHLCV, error)
	Name() string
}

// newHTTPClient builds a client with an optional proxy.
func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
