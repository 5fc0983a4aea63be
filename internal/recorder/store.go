package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LevelSentinel/internal/model"
)

// Store persists S/R results. History is append-only; "latest" is a query.
type Store interface {
	Insert(ctx context.Context, r *model.SRResult) error
	// FindLatestValid returns the most recently calculated record for the
	// pair whose validUntil is after asOf, or nil when there is none.
	FindLatestValid(ctx context.Context, sym model.Symbol, tf model.Timeframe, asOf time.Time) (*model.SRResult, error)
	Stats(ctx context.Context, asOf time.Time) (Stats, error)
	Close() error
}

// Stats summarizes store health.
type Stats struct {
	Total  int
	Valid  int
	Oldest time.Time // zero when empty
	Newest time.Time
	// Latest is the newest record per pair, ordered by symbol then timeframe.
	Latest []*model.SRResult
}

// Expired counts records past their validity window.
func (s Stats) Expired() int { return s.Total - s.Valid }

const table = "support_resistance_levels"

// selectColumns matches the scan order of scanResult.
const selectColumns = `id, symbol, timeframe, current_price,
	support1, support1_strength, support1_sources,
	support2, support2_strength, support2_sources,
	resistance1, resistance1_strength, resistance1_sources,
	resistance2, resistance2_strength, resistance2_sources,
	method, calculated_at, valid_until`

// levelRow is the nullable column triple of an optional level.
type levelRow struct {
	Price    *float64
	Strength *int
	Sources  *string
}

func (l levelRow) level() (*model.Level, error) {
	if l.Price == nil {
		return nil, nil
	}
	out := &model.Level{Price: *l.Price}
	if l.Strength != nil {
		out.Strength = *l.Strength
	}
	if l.Sources != nil {
		src, err := decodeSources(*l.Sources)
		if err != nil {
			return nil, err
		}
		out.Sources = src
	}
	return out, nil
}

func encodeSources(src []model.Source) (string, error) {
	if src == nil {
		src = []model.Source{}
	}
	b, err := json.Marshal(src)
	if err != nil {
		return "", fmt.Errorf("encode sources: %w", err)
	}
	return string(b), nil
}

func decodeSources(s string) ([]model.Source, error) {
	var src []model.Source
	if err := json.Unmarshal([]byte(s), &src); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return src, nil
}

func checkInsert(r *model.SRResult) error {
	if r == nil {
		return model.NewPersistenceError("insert", fmt.Errorf("nil result"))
	}
	if r.ID == "" {
		return model.NewPersistenceError("insert", fmt.Errorf("result for %s %s has no id", r.Symbol, r.Timeframe))
	}
	return nil
}

func cloneResult(r *model.SRResult) *model.SRResult {
	c := *r
	c.Support1.Sources = append([]model.Source(nil), r.Support1.Sources...)
	c.Resistance1.Sources = append([]model.Source(nil), r.Resistance1.Sources...)
	if r.Support2 != nil {
		s := *r.Support2
		s.Sources = append([]model.Source(nil), s.Sources...)
		c.Support2 = &s
	}
	if r.Resistance2 != nil {
		s := *r.Resistance2
		s.Sources = append([]model.Source(nil), s.Sources...)
		c.Resistance2 = &s
	}
	return &c
}
