package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/docvalidate/internal/core"
	"github.com/JonMunkholm/docvalidate/internal/registry"
)

// RegistryCache implements registry.CacheStore on the registry_cache table.
type RegistryCache struct {
	db *DB
}

var _ registry.CacheStore = (*RegistryCache)(nil)

// NewRegistryCache creates a cache on an open, migrated database.
func NewRegistryCache(db *DB) *RegistryCache {
	return &RegistryCache{db: db}
}

// Get implements registry.CacheStore.
func (c *RegistryCache) Get(ctx context.Context, taxID string) (*core.RegistryRecord, time.Time, error) {
	var raw []byte
	var fetchedAt time.Time
	err := c.db.Pool.QueryRow(ctx, `
		SELECT record, fetched_at FROM registry_cache WHERE tax_id = $1
	`, taxID).Scan(&raw, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, registry.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read registry cache: %w", err)
	}

	var record core.RegistryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode registry cache entry: %w", err)
	}
	return &record, fetchedAt, nil
}

// Put implements registry.CacheStore.
func (c *RegistryCache) Put(ctx context.Context, taxID string, record *core.RegistryRecord, fetchedAt time.Time) error {
	if record == nil {
		return nil
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode registry cache entry: %w", err)
	}

	_, err = c.db.Pool.Exec(ctx, `
		INSERT INTO registry_cache (tax_id, record, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tax_id) DO UPDATE SET record = EXCLUDED.record, fetched_at = EXCLUDED.fetched_at
	`, taxID, raw, fetchedAt)
	if err != nil {
		return fmt.Errorf("write registry cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes entries fetched before cutoff and reports how many.
func (c *RegistryCache) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.db.Pool.Exec(ctx, `DELETE FROM registry_cache WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge registry cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
