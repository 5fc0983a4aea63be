package recorder

import (
	"context"
	"sort"
	"sync"
	"time"

	"LevelSentinel/internal/model"
)

// MemoryStore keeps history in process. Used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*model.SRResult
	// FailInsert, when set, is returned by every Insert.
	FailInsert error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Insert(_ context.Context, r *model.SRResult) error {
	if err := checkInsert(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return model.NewPersistenceError("insert", m.FailInsert)
	}
	m.records = append(m.records, cloneResult(r))
	return nil
}

func (m *MemoryStore) FindLatestValid(_ context.Context, sym model.Symbol, tf model.Timeframe, asOf time.Time) (*model.SRResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *model.SRResult
	for _, r := range m.records {
		if r.Symbol != sym || r.Timeframe != tf || !r.ValidAt(asOf) {
			continue
		}
		if best == nil || r.CalculatedAt.After(best.CalculatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneResult(best), nil
}

func (m *MemoryStore) Stats(_ context.Context, asOf time.Time) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	latest := make(map[model.Job]*model.SRResult)
	for _, r := range m.records {
		st.Total++
		if r.ValidAt(asOf) {
			st.Valid++
		}
		if st.Oldest.IsZero() || r.CalculatedAt.Before(st.Oldest) {
			st.Oldest = r.CalculatedAt
		}
		if r.CalculatedAt.After(st.Newest) {
			st.Newest = r.CalculatedAt
		}
		job := model.Job{Symbol: r.Symbol, Timeframe: r.Timeframe}
		if cur, ok := latest[job]; !ok || !r.CalculatedAt.Before(cur.CalculatedAt) {
			latest[job] = r
		}
	}
	for _, r := range latest {
		st.Latest = append(st.Latest, cloneResult(r))
	}
	sort.Slice(st.Latest, func(i, j int) bool {
		if st.Latest[i].Symbol != st.Latest[j].Symbol {
			return st.Latest[i].Symbol < st.Latest[j].Symbol
		}
		return st.Latest[i].Timeframe < st.Latest[j].Timeframe
	})
	return st, nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error { return nil }
