package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/model"
)

// SQLiteStore persists results to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so the API and srctl can read while the batch writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Get().Infow("sqlite store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id                   TEXT PRIMARY KEY,
			symbol               TEXT NOT NULL,
			timeframe            TEXT NOT NULL,
			current_price        REAL NOT NULL,
			support1             REAL NOT NULL,
			support1_strength    INTEGER NOT NULL,
			support1_sources     TEXT NOT NULL,
			support2             REAL,
			support2_strength    INTEGER,
			support2_sources     TEXT,
			resistance1          REAL NOT NULL,
			resistance1_strength INTEGER NOT NULL,
			resistance1_sources  TEXT NOT NULL,
			resistance2          REAL,
			resistance2_strength INTEGER,
			resistance2_sources  TEXT,
			method               TEXT NOT NULL,
			calculated_at        INTEGER NOT NULL,
			valid_until          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sr_pair_calc ON ` + table + `(symbol, timeframe, calculated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sr_valid ON ` + table + `(valid_until)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, r *model.SRResult) error {
	if err := checkInsert(r); err != nil {
		return err
	}
	s1, err := encodeSources(r.Support1.Sources)
	if err != nil {
		return model.NewPersistenceError("insert", err)
	}
	r1, err := encodeSources(r.Resistance1.Sources)
	if err != nil {
		return model.NewPersistenceError("insert", err)
	}
	s2, err := sqliteLevel(r.Support2)
	if err != nil {
		return model.NewPersistenceError("insert", err)
	}
	r2, err := sqliteLevel(r.Resistance2)
	if err != nil {
		return model.NewPersistenceError("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO `+table+` (`+selectColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, string(r.Symbol), string(r.Timeframe), r.CurrentPrice,
		r.Support1.Price, r.Support1.Strength, s1,
		s2.Price, s2.Strength, s2.Sources,
		r.Resistance1.Price, r.Resistance1.Strength, r1,
		r2.Price, r2.Strength, r2.Sources,
		r.Method, r.CalculatedAt.UnixMilli(), r.ValidUntil.UnixMilli(),
	)
	return model.NewPersistenceError("insert", err)
}

func (s *SQLiteStore) FindLatestValid(ctx context.Context, sym model.Symbol, tf model.Timeframe, asOf time.Time) (*model.SRResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM `+table+`
		WHERE symbol = ? AND timeframe = ? AND valid_until > ?
		ORDER BY calculated_at DESC LIMIT 1`,
		string(sym), string(tf), asOf.UnixMilli())
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewPersistenceError("find latest", err)
	}
	return r, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	var (
		st             Stats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN valid_until > ? THEN 1 ELSE 0 END), 0),
		MIN(calculated_at), MAX(calculated_at)
		FROM `+table, asOf.UnixMilli()).Scan(&st.Total, &st.Valid, &oldest, &newest)
	if err != nil {
		return Stats{}, model.NewPersistenceError("stats", err)
	}
	if oldest.Valid {
		st.Oldest = time.UnixMilli(oldest.Int64).UTC()
		st.Newest = time.UnixMilli(newest.Int64).UTC()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM (
		SELECT *, ROW_NUMBER() OVER (PARTITION BY symbol, timeframe ORDER BY calculated_at DESC, id DESC) AS rn
		FROM `+table+`) AS ranked
		WHERE rn = 1 ORDER BY symbol, timeframe`)
	if err != nil {
		return Stats{}, model.NewPersistenceError("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanSQLite(rows)
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

func (s *SQLiteStore) Close() error {
	logger.Get().Info("closing sqlite store")
	return s.db.Close()
}

// nullLevel holds the insert arguments of an optional level.
type nullLevel struct {
	Price    sql.NullFloat64
	Strength sql.NullInt64
	Sources  sql.NullString
}

func sqliteLevel(l *model.Level) (nullLevel, error) {
	if l == nil {
		return nullLevel{}, nil
	}
	src, err := encodeSources(l.Sources)
	if err != nil {
		return nullLevel{}, err
	}
	return nullLevel{
		Price:    sql.NullFloat64{Float64: l.Price, Valid: true},
		Strength: sql.NullInt64{Int64: int64(l.Strength), Valid: true},
		Sources:  sql.NullString{String: src, Valid: true},
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (*model.SRResult, error) {
	var (
		r             model.SRResult
		sym, tf       string
		s1src, r1src  string
		s2, r2        levelRow
		calcAt, until int64
	)
	err := sc.Scan(&r.ID, &sym, &tf, &r.CurrentPrice,
		&r.Support1.Price, &r.Support1.Strength, &s1src,
		&s2.Price, &s2.Strength, &s2.Sources,
		&r.Resistance1.Price, &r.Resistance1.Strength, &r1src,
		&r2.Price, &r2.Strength, &r2.Sources,
		&r.Method, &calcAt, &until)
	if err != nil {
		return nil, err
	}
	r.Symbol, r.Timeframe = model.Symbol(sym), model.Timeframe(tf)
	r.CalculatedAt = time.UnixMilli(calcAt).UTC()
	r.ValidUntil = time.UnixMilli(until).UTC()

	if r.Support1.Sources, err = decodeSources(s1src); err != nil {
		return nil, err
	}
	if r.Resistance1.Sources, err = decodeSources(r1src); err != nil {
		return nil, err
	}
	if r.Support2, err = s2.level(); err != nil {
		return nil, err
	}
	if r.Resistance2, err = r2.level(); err != nil {
		return nil, err
	}
	return &r, nil
}
