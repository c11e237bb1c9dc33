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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pagepulse/pagepulse/internal/apikey"
	"github.com/pagepulse/pagepulse/internal/tenant"
)

const uniqueViolationCode = "23505"

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// CreateWithKey inserts the tenant and its first API key in one transaction
func (r *TenantRepository) CreateWithKey(ctx context.Context, t *tenant.Tenant, key *apikey.Key) error {
	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, name, url, owner_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, t.ID, t.Name, t.URL, t.OwnerID, t.CreatedAt)
		if err != nil {
			return err
		}
		return insertKey(ctx, tx, key)
	})

	if err != nil {
		if isUniqueViolation(err) {
			return tenant.ErrDuplicateRegistration
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	return r.get(ctx, `
		SELECT id, name, url, owner_id, created_at
		FROM tenants
		WHERE id = $1
	`, id)
}

// GetByOwnerAndID retrieves a tenant scoped to its owner
func (r *TenantRepository) GetByOwnerAndID(ctx context.Context, ownerID, id string) (*tenant.Tenant, error) {
	return r.get(ctx, `
		SELECT id, name, url, owner_id, created_at
		FROM tenants
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
}

func (r *TenantRepository) get(ctx context.Context, query string, args ...any) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.URL, &t.OwnerID, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// ListByOwner lists the owner's tenants, newest first
func (r *TenantRepository) ListByOwner(ctx context.Context, ownerID string) ([]*tenant.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, url, owner_id, created_at
		FROM tenants
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.URL, &t.OwnerID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tenants, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
