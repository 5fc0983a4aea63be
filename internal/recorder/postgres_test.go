package recorder

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LevelSentinel/internal/model"
)

// fakeRow hands back fixed column values in scan order.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func TestPGLevelRoundTrip(t *testing.T) {
	assert.Equal(t, pgLevel{}, toPGLevel(nil))
	assert.Nil(t, pgLevel{}.level())

	in := &model.Level{Price: 95.5, Strength: 3, Sources: []model.Source{model.SourcePriceAction, model.SourcePivotPoints}}
	pl := toPGLevel(in)
	require.NotNil(t, pl.Price)
	assert.Equal(t, []string{"price_action", "pivot_points"}, pl.Sources)
	assert.Equal(t, in, pl.level())

	// The copy must not alias the source level.
	in.Price = 1
	assert.Equal(t, 95.5, *pl.Price)
}

func TestScanPostgres(t *testing.T) {
	calc := time.Date(2026, 4, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	row := fakeRow{values: []any{
		"0b7e9a52-5b4d-4f6f-9d7e-1a7c3f1d2e01", "BTC", "1h", 105.0,
		100.0, 8, []string{"volume_profile", "pivot_points"},
		ptr(95.5), ptr(3), []string{"price_action"},
		110.0, 1, []string{"fallback:highest"},
		(*float64)(nil), (*int)(nil), []string(nil),
		model.MethodHybrid, calc, calc.Add(4 * time.Hour),
	}}

	r, err := scanPostgres(row)
	require.NoError(t, err)
	assert.Equal(t, model.BTC, r.Symbol)
	assert.Equal(t, model.TF1h, r.Timeframe)
	assert.Equal(t, []model.Source{model.SourceVolumeProfile, model.SourcePivotPoints}, r.Support1.Sources)
	require.NotNil(t, r.Support2)
	assert.Equal(t, model.Level{Price: 95.5, Strength: 3, Sources: []model.Source{model.SourcePriceAction}}, *r.Support2)
	assert.Nil(t, r.Resistance2)
	assert.Equal(t, time.UTC, r.CalculatedAt.Location())
	assert.True(t, calc.Equal(r.CalculatedAt))
	assert.True(t, calc.Add(4*time.Hour).Equal(r.ValidUntil))
}

// Runs the shared store contract when SR_TEST_POSTGRES_DSN points at a
// disposable database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SR_TEST_POSTGRES_DSN not set")
	}
	storeContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := NewPostgresStore(ctx, dsn)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE `+table)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
