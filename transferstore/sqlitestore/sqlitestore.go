// Package sqlitestore is the file-backed transferstore.Store implementation:
// one sqlite table keyed by (serviceDay, originStoppingEvent), with each
// day's destination collections zstd-compressed before storage. Follows the
// same schema-migration, pragma-tuning, connection-pool-sizing, and
// transactional-write shape as a gtfsdb.Client.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"tripbased.dev/core/internal/config"
	"tripbased.dev/core/internal/logging"
	"tripbased.dev/core/schedule"
	"tripbased.dev/core/transferstore"
	"tripbased.dev/core/transfers"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS transfers (
	day        TEXT NOT NULL,
	origin_key BLOB NOT NULL,
	dest_value BLOB NOT NULL,
	PRIMARY KEY (day, origin_key)
);
`

const dayLayout = "2006-01-02"

// Config configures a Store.
type Config struct {
	DBPath  string
	Env     config.Environment
	Verbose bool
	Logger  *slog.Logger
}

// Store is a sqlite-backed transferstore.Store.
type Store struct {
	db     *sql.DB
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger
}

var _ transferstore.Store = (*Store)(nil)

// NewStore opens (creating if necessary) a sqlite database at cfg.DBPath and
// migrates its schema. Test environments must use ":memory:".
func NewStore(cfg Config) (*Store, error) {
	if cfg.Env == config.Test && cfg.DBPath != ":memory:" {
		return nil, fmt.Errorf("sqlitestore: test environment must use in-memory storage, got path: %s", cfg.DBPath)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "transferstore_sqlite"))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	ctx := context.Background()
	if err := configurePragmas(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	configureConnectionPool(db, cfg)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: new zstd decoder: %w", err)
	}

	logging.LogOperation(logger, "transferstore_opened", slog.String("path", cfg.DBPath))

	return &Store{db: db, enc: enc, dec: dec, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.dec.Close()
	return s.db.Close()
}

// DB exposes the underlying *sql.DB, e.g. for internal/metrics.StartDBStatsCollector.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Get returns the transfer map persisted for day, or an empty Map if day was
// never Put, per spec.md §4.3.
func (s *Store) Get(ctx context.Context, day time.Time) (*transfers.Map, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin_key, dest_value FROM transfers WHERE day = ?`, dayKey(day))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := make(map[schedule.StoppingEvent][]schedule.StoppingEvent)
	for rows.Next() {
		var originKey, compressed []byte
		if err := rows.Scan(&originKey, &compressed); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}

		origin, _, err := transferstore.DecodeStoppingEvent(originKey)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: decode origin: %w", err)
		}
		raw, err := s.dec.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: decompress: %w", err)
		}
		dst, err := transferstore.DecodeDestinations(raw)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: decode destinations: %w", err)
		}
		snapshot[origin] = dst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: rows: %w", err)
	}

	return transfers.FromSnapshot(snapshot), nil
}

// Put replaces day's stored transfer map with m's contents, atomically.
func (s *Store) Put(ctx context.Context, day time.Time, m *transfers.Map) error {
	key := dayKey(day)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfers WHERE day = ?`, key); err != nil {
		return fmt.Errorf("sqlitestore: delete existing day: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transfers (day, origin_key, dest_value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlitestore: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for origin, dst := range m.Snapshot() {
		originKey := transferstore.EncodeStoppingEvent(origin)
		compressed := s.enc.EncodeAll(transferstore.EncodeDestinations(dst), nil)
		if _, err := stmt.ExecContext(ctx, key, originKey, compressed); err != nil {
			return fmt.Errorf("sqlitestore: insert origin: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}

	logging.LogOperation(s.logger, "transferstore_day_written", slog.String("day", key), slog.Int("origins", m.Len()))
	return nil
}

func dayKey(day time.Time) string {
	return day.UTC().Format(dayLayout)
}

func configurePragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		stmt, description string
	}{
		{"PRAGMA cache_size=-64000", "set cache size to 64MB"},
		{"PRAGMA temp_store=MEMORY", "store temporary data in memory"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			logging.LogError(logger, fmt.Sprintf("failed to set %s", p.description), err)
			return fmt.Errorf("sqlitestore: %s: %w", p.stmt, err)
		}
	}
	return nil
}

func configureConnectionPool(db *sql.DB, cfg Config) {
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}
