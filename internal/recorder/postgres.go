package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/model"
)

// PostgresStore persists results to PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Get().Infow("postgres store connected", "database", poolConfig.ConnConfig.Database)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id                   UUID PRIMARY KEY,
			symbol               VARCHAR(16) NOT NULL,
			timeframe            VARCHAR(8) NOT NULL,
			current_price        DOUBLE PRECISION NOT NULL,
			support1             DOUBLE PRECISION NOT NULL,
			support1_strength    INTEGER NOT NULL,
			support1_sources     TEXT[] NOT NULL,
			support2             DOUBLE PRECISION,
			support2_strength    INTEGER,
			support2_sources     TEXT[],
			resistance1          DOUBLE PRECISION NOT NULL,
			resistance1_strength INTEGER NOT NULL,
			resistance1_sources  TEXT[] NOT NULL,
			resistance2          DOUBLE PRECISION,
			resistance2_strength INTEGER,
			resistance2_sources  TEXT[],
			method               VARCHAR(16) NOT NULL,
			calculated_at        TIMESTAMPTZ NOT NULL,
			valid_until          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sr_pair_calc ON ` + table + `(symbol, timeframe, calculated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sr_valid ON ` + table + `(valid_until)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("exec %q: %w", m[:40], err)
		}
	}
	return nil
}

// pgLevel is an optional level as PostgreSQL columns.
type pgLevel struct {
	Price    *float64
	Strength *int
	Sources  []string
}

func toPGLevel(l *model.Level) pgLevel {
	if l == nil {
		return pgLevel{}
	}
	price, strength := l.Price, l.Strength
	return pgLevel{Price: &price, Strength: &strength, Sources: sourceStrings(l.Sources)}
}

func (l pgLevel) level() *model.Level {
	if l.Price == nil {
		return nil
	}
	out := &model.Level{Price: *l.Price, Sources: toSources(l.Sources)}
	if l.Strength != nil {
		out.Strength = *l.Strength
	}
	return out
}

func sourceStrings(src []model.Source) []string {
	out := make([]string, len(src))
	for i, s := range src {
		out[i] = string(s)
	}
	return out
}

func toSources(s []string) []model.Source {
	out := make([]model.Source, len(s))
	for i, v := range s {
		out[i] = model.Source(v)
	}
	return out
}

func (s *PostgresStore) Insert(ctx context.Context, r *model.SRResult) error {
	if err := checkInsert(r); err != nil {
		return err
	}
	s2, r2 := toPGLevel(r.Support2), toPGLevel(r.Resistance2)
	_, err := s.pool.Exec(ctx, `INSERT INTO `+table+` (`+selectColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, string(r.Symbol), string(r.Timeframe), r.CurrentPrice,
		r.Support1.Price, r.Support1.Strength, sourceStrings(r.Support1.Sources),
		s2.Price, s2.Strength, s2.Sources,
		r.Resistance1.Price, r.Resistance1.Strength, sourceStrings(r.Resistance1.Sources),
		r2.Price, r2.Strength, r2.Sources,
		r.Method, r.CalculatedAt, r.ValidUntil,
	)
	return model.NewPersistenceError("insert", err)
}

func (s *PostgresStore) FindLatestValid(ctx context.Context, sym model.Symbol, tf model.Timeframe, asOf time.Time) (*model.SRResult, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM `+table+`
		WHERE symbol = $1 AND timeframe = $2 AND valid_until > $3
		ORDER BY calculated_at DESC LIMIT 1`,
		string(sym), string(tf), asOf)
	r, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewPersistenceError("find latest", err)
	}
	return r, nil
}

func (s *PostgresStore) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	var (
		st             Stats
		oldest, newest *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE valid_until > $1),
		MIN(calculated_at), MAX(calculated_at)
		FROM `+table, asOf).Scan(&st.Total, &st.Valid, &oldest, &newest)
	if err != nil {
		return Stats{}, model.NewPersistenceError("stats", err)
	}
	if oldest != nil && newest != nil {
		st.Oldest, st.Newest = oldest.UTC(), newest.UTC()
	}

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT ON (symbol, timeframe) `+selectColumns+`
		FROM `+table+`
		ORDER BY symbol, timeframe, calculated_at DESC, id DESC`)
	if err != nil {
		return Stats{}, model.NewPersistenceError("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return Stats{}, model.NewPersistenceError("stats", err)
		}
		st.Latest = append(st.Latest, r)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, model.NewPersistenceError("stats", err)
	}
	return st, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	logger.Get().Info("postgres store closed")
	return nil
}

func scanPostgres(row pgx.Row) (*model.SRResult, error) {
	var (
		r            model.SRResult
		sym, tf      string
		s1src, r1src []string
		s2, r2       pgLevel
	)
	err := row.Scan(&r.ID, &sym, &tf, &r.CurrentPrice,
		&r.Support1.Price, &r.Support1.Strength, &s1src,
		&s2.Price, &s2.Strength, &s2.Sources,
		&r.Resistance1.Price, &r.Resistance1.Strength, &r1src,
		&r2.Price, &r2.Strength, &r2.Sources,
		&r.Method, &r.CalculatedAt, &r.ValidUntil)
	if err != nil {
		return nil, err
	}
	r.Symbol, r.Timeframe = model.Symbol(sym), model.Timeframe(tf)
	r.Support1.Sources, r.Resistance1.Sources = toSources(s1src), toSources(r1src)
	r.Support2, r.Resistance2 = s2.level(), r2.level()
	r.CalculatedAt, r.ValidUntil = r.CalculatedAt.UTC(), r.ValidUntil.UTC()
	return &r, nil
}
