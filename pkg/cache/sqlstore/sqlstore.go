package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"places-cache/pkg/cache"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLCache persists both cache tables in a relational database.
//
// Each table has the columns (cache_key PRIMARY KEY, payload, created_at, expires_at).
// Reads filter on expires_at so stale rows are never returned, and all writes are
// single-statement upserts. No transactions are used; the data is a recomputable cache.
type SQLCache struct {
	db     *sql.DB
	name   string
	driver string
	now    func() time.Time
}

// Config holds database connection configuration.
type Config struct {
	// Name identifies the layer in logs and metrics
	Name string

	// Driver is DriverPostgres or DriverSQLite
	Driver string

	// DSN is the driver-specific data source name
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Name:            "postgres",
		Driver:          DriverPostgres,
		DSN:             "host=localhost port=5432 user=postgres password=postgres dbname=places sslmode=disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// SQLiteMemoryConfig returns a configuration for a private in-memory SQLite database.
// The pool is pinned to one connection because every :memory: connection is a separate database.
func SQLiteMemoryConfig() Config {
	return Config{
		Name:         "sqlite",
		Driver:       DriverSQLite,
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
}

// New opens the database, verifies connectivity and creates the cache tables.
func New(cfg Config) (*SQLCache, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Driver
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	s := &SQLCache{
		db:     db,
		name:   cfg.Name,
		driver: cfg.Driver,
		now:    cfg.Now,
	}

	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}

	return s, nil
}

func (s *SQLCache) initTables(ctx context.Context) error {
	payloadType, timeType := "JSONB", "TIMESTAMPTZ"
	if s.driver == DriverSQLite {
		payloadType, timeType = "TEXT", "TIMESTAMP"
	}

	for _, table := range cache.Tables {
		queries := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				payload %s NOT NULL,
				created_at %s NOT NULL,
				expires_at %s NOT NULL
			)`, table, payloadType, timeType, timeType),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires_at ON %s(expires_at)`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s(created_at)`, table, table),
		}

		for _, query := range queries {
			if _, err := s.db.ExecContext(ctx, query); err != nil {
				return err
			}
		}
	}

	return nil
}

// Get returns the row for key if it has not expired.
func (s *SQLCache) Get(ctx context.Context, table cache.Table, key string) (*cache.CacheEntry, error) {
	if !table.Valid() {
		return nil, cache.ErrInvalidTable
	}
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT cache_key, payload, created_at, expires_at
		FROM %s WHERE cache_key = $1 AND expires_at > $2
	`, table)

	var e cache.CacheEntry
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, key, timestamp(s.now())).Scan(
		&e.Key, &payload, &e.CreatedAt, &e.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s get: %w", s.driver, err)
	}

	e.Payload = payload
	return &e, nil
}

// Upsert inserts the row or overwrites the existing row with the same key.
func (s *SQLCache) Upsert(ctx context.Context, table cache.Table, e cache.CacheEntry) error {
	if !table.Valid() {
		return cache.ErrInvalidTable
	}
	if err := cache.ValidateKey(e.Key); err != nil {
		return err
	}
	if len(e.Payload) == 0 {
		return cache.ErrInvalidValue
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`, table)

	// Payload goes over the wire as text so Postgres can parse it into JSONB.
	_, err := s.db.ExecContext(ctx, query,
		e.Key, string(e.Payload), timestamp(e.CreatedAt), timestamp(e.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("%s upsert: %w", s.driver, err)
	}

	return nil
}

// DeleteExpired removes rows with expires_at < now.
func (s *SQLCache) DeleteExpired(ctx context.Context, table cache.Table, now time.Time) (int64, error) {
	return s.deleteWhere(ctx, table, "expires_at < $1", now)
}

// DeleteCreatedSince removes rows with created_at >= since.
func (s *SQLCache) DeleteCreatedSince(ctx context.Context, table cache.Table, since time.Time) (int64, error) {
	return s.deleteWhere(ctx, table, "created_at >= $1", since)
}

func (s *SQLCache) deleteWhere(ctx context.Context, table cache.Table, cond string, at time.Time) (int64, error) {
	if !table.Valid() {
		return 0, cache.ErrInvalidTable
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, table, cond), timestamp(at))
	if err != nil {
		return 0, fmt.Errorf("%s delete: %w", s.driver, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s delete: rows affected: %w", s.driver, err)
	}

	return n, nil
}

// Name returns the layer name.
func (s *SQLCache) Name() string {
	return s.name
}

// Ping verifies the database is reachable.
func (s *SQLCache) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLCache) Close() error {
	return s.db.Close()
}

// timestamp normalizes times to UTC so SQLite's text timestamps compare in order.
func timestamp(t time.Time) time.Time {
	return t.UTC()
}
