package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/velora/internal/ir"
)

// CacheTable is a durable generation cache tier over SQLite.
type CacheTable struct {
	db *sql.DB
}

// CacheStats summarizes the cache table.
type CacheStats struct {
	Records int `json:"records"`
	Expired int `json:"expired"`
}

// Name implements cache.Tier.
func (c *CacheTable) Name() string {
	return "sqlite"
}

// Get returns the record for key. Expiry is left to the caller.
func (c *CacheTable) Get(ctx context.Context, key string) (ir.CacheRecord, bool, error) {
	var (
		rec       ir.CacheRecord
		payload   string
		createdAt int64
		expiresAt int64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT cache_key, fingerprint, policy_version, payload, created_at, expires_at
		FROM cache_records
		WHERE cache_key = ?
	`, key).Scan(&rec.Key, &rec.Fingerprint, &rec.PolicyVersion, &payload, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.CacheRecord{}, false, nil
	}
	if err != nil {
		return ir.CacheRecord{}, false, fmt.Errorf("get cache record: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return ir.CacheRecord{}, false, fmt.Errorf("get cache record %s: decode payload: %w", key, err)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if expiresAt != 0 {
		rec.TTL = time.Duration(expiresAt - createdAt)
	}
	return rec, true, nil
}

// Put stores rec. A live record for the same key is never overwritten; an
// expired one is superseded.
func (c *CacheTable) Put(ctx context.Context, rec ir.CacheRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("put cache record: encode payload: %w", err)
	}
	var expiresAt int64
	if exp := rec.ExpiresAt(); !exp.IsZero() {
		expiresAt = exp.UnixNano()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_records
		(cache_key, fingerprint, policy_version, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			policy_version = excluded.policy_version,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
		WHERE cache_records.expires_at != 0 AND cache_records.expires_at <= excluded.created_at
	`,
		rec.Key,
		rec.Fingerprint,
		rec.PolicyVersion,
		string(payload),
		rec.CreatedAt.UnixNano(),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("put cache record: %w", err)
	}
	return nil
}

// Stats counts records and how many are expired at now.
func (c *CacheTable) Stats(ctx context.Context, now time.Time) (CacheStats, error) {
	var s CacheStats
	err := c.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at != 0 AND expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM cache_records
	`, now.UnixNano()).Scan(&s.Records, &s.Expired)
	if err != nil {
		return CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}
