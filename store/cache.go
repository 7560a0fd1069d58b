package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SPARQLCache keeps SPARQL result documents in the sparql_cache table.
type SPARQLCache struct {
	s   *Store
	now func() time.Time
}

// SPARQLCache returns a cache backed by this store.
func (s *Store) SPARQLCache() *SPARQLCache {
	return &SPARQLCache{s: s, now: time.Now}
}

// Get returns a live entry. Read errors are logged and treated as misses.
func (c *SPARQLCache) Get(ctx context.Context, key string) ([]byte, bool) {
	var (
		body    []byte
		expires int64
	)
	err := c.s.db.QueryRowContext(ctx,
		"SELECT body, expires_at FROM sparql_cache WHERE key = ?", key).Scan(&body, &expires)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("store: sparql cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	if expires > 0 && c.now().Unix() > expires {
		return nil, false
	}
	return body, true
}

// Set stores an entry. A non-positive ttl never expires.
func (c *SPARQLCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = c.now().Add(ttl).Unix()
	}
	_, err := c.s.db.ExecContext(ctx, `
		INSERT INTO sparql_cache (key, body, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, expires_at = excluded.expires_at
	`, key, value, expires)
	if err != nil {
		return fmt.Errorf("store.SPARQLCache.Set: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *SPARQLCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.s.db.ExecContext(ctx,
		"DELETE FROM sparql_cache WHERE expires_at > 0 AND expires_at < ?", c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store.SPARQLCache.Purge: %w", err)
	}
	return res.RowsAffected()
}
