// Copyright 2026 The PagePulse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pagepulse/pagepulse/internal/apikey"
)

// APIKeyRepository implements apikey.Repository
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertKey(ctx context.Context, q execer, k *apikey.Key) error {
	_, err := q.Exec(ctx, `
		INSERT INTO api_keys (
			id, tenant_id, key_hash, key_prefix, is_active,
			created_at, expires_at, last_used_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, k.ID, k.TenantID, k.KeyHash, k.KeyPrefix, k.IsActive,
		k.CreatedAt, k.ExpiresAt, k.LastUsedAt, k.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// Rotate atomically deactivates the tenant's active keys and inserts newKey.
// The ownership check and the deactivate+insert run in the same transaction;
// an absent or foreign tenant yields ErrNotFoundOrUnauthorized without
// revealing which it was.
func (r *APIKeyRepository) Rotate(ctx context.Context, tenantID, ownerID string, newKey *apikey.Key) error {
	return pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			SELECT id FROM tenants WHERE id = $1 AND owner_id = $2
		`, tenantID, ownerID).Scan(&id)
		if err != nil {
			if err == pgx.ErrNoRows {
				return apikey.ErrNotFoundOrUnauthorized
			}
			return fmt.Errorf("failed to verify tenant ownership: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE api_keys
			SET is_active = false, revoked_at = $2
			WHERE tenant_id = $1 AND is_active
		`, tenantID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to deactivate keys: %w", err)
		}

		return insertKey(ctx, tx, newKey)
	})
}

// RevokeByHash deactivates the active key matching hash
func (r *APIKeyRepository) RevokeByHash(ctx context.Context, hash string) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys
		SET is_active = false, revoked_at = $2
		WHERE key_hash = $1 AND is_active
	`, hash, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apikey.ErrNotFoundOrInactive
	}

	return nil
}

// GetActiveByTenant returns the tenant's active key
func (r *APIKeyRepository) GetActiveByTenant(ctx context.Context, tenantID string) (*apikey.Key, error) {
	var k apikey.Key
	var expiresAt, lastUsedAt, revokedAt sql.NullTime

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key_hash, key_prefix, is_active,
		       created_at, expires_at, last_used_at, revoked_at
		FROM api_keys
		WHERE tenant_id = $1 AND is_active
	`, tenantID).Scan(
		&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.IsActive,
		&k.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apikey.ErrNoActiveKey
		}
		return nil, fmt.Errorf("failed to get active key: %w", err)
	}

	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}
	if revokedAt.Valid {
		k.RevokedAt = &revokedAt.Time
	}

	return &k, nil
}

// FindActiveByHash resolves a fingerprint to its tenant context
func (r *APIKeyRepository) FindActiveByHash(ctx context.Context, hash string) (*apikey.ResolvedKey, error) {
	var resolved apikey.ResolvedKey

	err := r.db.pool.QueryRow(ctx, `
		SELECT k.id, t.id, t.name, t.owner_id
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.key_hash = $1
		  AND k.is_active
		  AND (k.expires_at IS NULL OR k.expires_at > now())
	`, hash).Scan(
		&resolved.KeyID,
		&resolved.Tenant.TenantID,
		&resolved.Tenant.TenantName,
		&resolved.Tenant.OwnerID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up key: %w", err)
	}

	return &resolved, nil
}

// TouchLastUsed records key usage
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := r.db.pool.Exec(ctx, `
		UPDATE api_keys SET last_used_at = $2 WHERE id = $1
	`, keyID, at)
	if err != nil {
		return fmt.Errorf("failed to update last used: %w", err)
	}
	return nil
}
