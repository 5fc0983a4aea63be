package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"LevelSentinel/internal/model"
)

// Binance error code for an unknown symbol.
const codeInvalidSymbol = -1121

// BinanceFetcher reads USDT-M futures klines.
type BinanceFetcher struct {
	client  *futures.Client
	limiter *rate.Limiter
}

// NewBinanceFetcher creates a fetcher. Public market data needs no keys;
// rps <= 0 disables client-side rate limiting.
func NewBinanceFetcher(apiKey, secretKey, proxyURL string, rps float64) *BinanceFetcher {
	client := futures.NewClient(apiKey, secretKey)
	client.HTTPClient = newHTTPClient(proxyURL, 30*time.Second)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &BinanceFetcher{client: client, limiter: limiter}
}

func (f *BinanceFetcher) Name() string { return "binance" }

func (f *BinanceFetcher) FetchCandles(ctx context.Context, sym model.Symbol, tf model.Timeframe, count int) ([]model.OHLCV, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	klines, err := f.client.NewKlinesService().
		Symbol(sym.ExchangeSymbol()).
		Interval(string(tf)).
		Limit(count).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return nil, fmt.Errorf("%s: %w", sym.TradingPair(), model.ErrUnsupportedPair)
		}
		return nil, fmt.Errorf("fetch klines %s %s: %w", sym.ExchangeSymbol(), tf, err)
	}
	return convertKlines(klines)
}

func convertKlines(klines []*futures.Kline) ([]model.OHLCV, error) {
	bars := make([]model.OHLCV, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		var vals [5]float64
		for i, s := range [...]string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline %d: %w", k.OpenTime, err)
			}
			vals[i] = v
		}
		bars = append(bars, model.OHLCV{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
