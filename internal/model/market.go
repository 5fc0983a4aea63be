package model

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mid returns the midpoint of the bar's range.
func (b OHLCV) Mid() float64 { return (b.High + b.Low) / 2 }

// Symbol is a supported base asset, always quoted in USDT.
type Symbol string

const (
	BTC  Symbol = "BTC"
	ETH  Symbol = "ETH"
	SOL  Symbol = "SOL"
	BNB  Symbol = "BNB"
	DOGE Symbol = "DOGE"
)

// SupportedSymbols lists every symbol accepted by ParseSymbol.
var SupportedSymbols = []Symbol{BTC, ETH, SOL, BNB, DOGE}

// ParseSymbol normalizes s (case-insensitive) and rejects unsupported values.
// A trading pair such as "btc/usdt" is accepted as well.
func ParseSymbol(s string) (Symbol, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.TrimSuffix(norm, "/USDT")
	for _, sym := range SupportedSymbols {
		if string(sym) == norm {
			return sym, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
}

// TradingPair returns the pair in "BTC/USDT" form.
func (s Symbol) TradingPair() string { return string(s) + "/USDT" }

// ExchangeSymbol returns the pair in exchange form, e.g. "BTCUSDT".
func (s Symbol) ExchangeSymbol() string { return string(s) + "USDT" }

func (s Symbol) String() string { return string(s) }

// Timeframe is a candle interval.
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// SupportedTimeframes lists every timeframe accepted by ParseTimeframe, shortest first.
var SupportedTimeframes = []Timeframe{TF15m, TF1h, TF4h}

// ParseTimeframe rejects anything outside SupportedTimeframes.
func ParseTimeframe(s string) (Timeframe, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, tf := range SupportedTimeframes {
		if string(tf) == norm {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
}

// Duration returns the length of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	default:
		return 0
	}
}

func (tf Timeframe) String() string { return string(tf) }

// ParseSymbols parses a list of symbols, dropping duplicates while keeping order.
func ParseSymbols(raw []string) ([]Symbol, error) {
	seen := make(map[Symbol]bool, len(raw))
	out := make([]Symbol, 0, len(raw))
	for _, r := range raw {
		sym, err := ParseSymbol(r)
		if err != nil {
			return nil, err
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out, nil
}

// ParseTimeframes parses a list of timeframes, dropping duplicates while keeping order.
func ParseTimeframes(raw []string) ([]Timeframe, error) {
	seen := make(map[Timeframe]bool, len(raw))
	out := make([]Timeframe, 0, len(raw))
	for _, r := range raw {
		tf, err := ParseTimeframe(r)
		if err != nil {
			return nil, err
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out, nil
}
