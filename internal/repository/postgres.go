package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridwatch/faultmap/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database abstracts the pgx pool methods used by the store, allowing the
// pool to be mocked in tests.
type Database interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// NewDatabase creates a pgx connection pool for the given credentials and
// verifies connectivity with a ping.
func NewDatabase(host, port, user, password, name string) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, name)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	const pingTimeout = 5 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// PostgresStore persists geocode cache entries, so resolved and unresolved
// postcodes survive service restarts. Negative entries are stored with NULL
// coordinates.
type PostgresStore struct {
	db  Database
	log *slog.Logger
}

// NewPostgresStore creates a new instance of PostgresStore with the provided Database.
func NewPostgresStore(db Database, log *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// EnsureSchema creates the cache table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS geocode_cache (
			postcode TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			stored_at TIMESTAMPTZ NOT NULL
		);
	`

	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create geocode cache table: %w", err)
	}

	return nil
}

// Get looks a postcode up in the persistent cache.
func (s *PostgresStore) Get(ctx context.Context, postcode string) (CacheEntry, bool, error) {
	query := `
		SELECT latitude, longitude, stored_at
		FROM geocode_cache
		WHERE postcode = $1;
	`

	var (
		lat, lon *float64
		storedAt time.Time
	)

	err := s.db.QueryRow(ctx, query, postcode).Scan(&lat, &lon, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("failed to query geocode cache: %w", err)
	}

	entry := CacheEntry{StoredAt: storedAt}
	if lat != nil && lon != nil {
		entry.Coords = &models.Coordinates{Latitude: *lat, Longitude: *lon}
	}

	s.log.DebugContext(ctx, "Geocode cache entry loaded",
		"postcode", postcode, "resolved", entry.Resolved())

	return entry, true, nil
}

// Put stores a cache entry, overwriting any previous one for the postcode.
func (s *PostgresStore) Put(ctx context.Context, postcode string, entry CacheEntry) error {
	query := `
		INSERT INTO geocode_cache (postcode, latitude, longitude, stored_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (postcode) DO UPDATE
		SET latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			stored_at = EXCLUDED.stored_at;
	`

	var lat, lon *float64
	if entry.Coords != nil {
		lat = &entry.Coords.Latitude
		lon = &entry.Coords.Longitude
	}

	if _, err := s.db.Exec(ctx, query, postcode, lat, lon, entry.StoredAt); err != nil {
		return fmt.Errorf("failed to upsert geocode cache entry: %w", err)
	}

	return nil
}
