package collector

import (
	"context"
	"math"
	"sync"
	"time"

	"LevelSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Pairs without fixed data get a deterministic synthetic series.
type MockFetcher struct {
	Prices map[model.Symbol]float64
	Data   map[model.Job][]model.OHLCV
	Errors map[model.Job]error
	// End is the open time of the last synthetic candle; zero means now.
	End time.Time

	mu    sync.Mutex
	calls map[model.Job]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchCandles(ctx context.Context, sym model.Symbol, tf model.Timeframe, count int) ([]model.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job := model.Job{Symbol: sym, Timeframe: tf}

	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[model.Job]int)
	}
	m.calls[job]++
	m.mu.Unlock()

	if err, ok := m.Errors[job]; ok {
		return nil, err
	}
	if bars, ok := m.Data[job]; ok {
		return bars, nil
	}
	price := m.Prices[sym]
	if price <= 0 {
		price = 100
	}
	end := m.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(tf.Duration())
	}
	return SyntheticBars(price, tf, count, end), nil
}

// Calls reports how many times the pair was requested.
func (m *MockFetcher) Calls(sym model.Symbol, tf model.Timeframe) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[model.Job{Symbol: sym, Timeframe: tf}]
}

// SyntheticBars oscillates around basePrice with a 20-candle cycle so the
// analyzers find swing levels. The last candle opens at end.
func SyntheticBars(basePrice float64, tf model.Timeframe, count int, end time.Time) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	step := tf.Duration()
	prev := basePrice
	for i := 0; i < count; i++ {
		c := basePrice * (1 + 0.03*math.Sin(float64(i)*2*math.Pi/20))
		bars[i] = model.OHLCV{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   prev,
			High:   math.Max(prev, c) * 1.002,
			Low:    math.Min(prev, c) * 0.998,
			Close:  c,
			Volume: 1000 + 500*math.Abs(math.Cos(float64(i)*2*math.Pi/20)),
		}
		prev = c
	}
	return bars
}
