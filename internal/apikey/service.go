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

package apikey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagepulse/pagepulse/internal/audit"
	"github.com/pagepulse/pagepulse/internal/id"
	"github.com/pagepulse/pagepulse/internal/observability/logger"
)

// Service owns the API key lifecycle: minting, rotation, revocation and
// resolution. The single-active-key-per-tenant invariant is enforced in the
// repository's rotate transaction and backstopped by a partial unique index.
type Service struct {
	repo        Repository
	auditLogger audit.Logger

	// keyTTL is the lifetime stamped on minted keys. Zero disables expiry.
	keyTTL time.Duration
}

// NewService creates a new key service
func NewService(repo Repository, auditLogger audit.Logger, keyTTL time.Duration) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		keyTTL:      keyTTL,
	}
}

// Mint generates a fresh key record for a tenant without persisting it. The
// plaintext is returned exactly once; only its fingerprint and prefix survive
// in the record. Persistence happens inside the caller's transaction
// (registration or rotation) so issuance is atomic with its trigger.
func (s *Service) Mint(tenantID string) (string, *Key, error) {
	plaintext, err := Generate()
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint key: %w", err)
	}

	key := &Key{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		KeyHash:   Hash(plaintext),
		KeyPrefix: Prefix(plaintext),
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if s.keyTTL > 0 {
		expiry := key.CreatedAt.Add(s.keyTTL)
		key.ExpiresAt = &expiry
	}

	return plaintext, key, nil
}

// Rotate replaces the tenant's active key with a fresh one. Deactivation of
// the old key and insertion of the new one happen in one transaction; the
// ownership check is folded into the same statement so absent and
// unauthorized are indistinguishable to the caller.
func (s *Service) Rotate(ctx context.Context, tenantID, ownerID string) (string, *Key, error) {
	plaintext, key, err := s.Mint(tenantID)
	if err != nil {
		return "", nil, err
	}

	if err := s.repo.Rotate(ctx, tenantID, ownerID, key); err != nil {
		return "", nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeKeyRotated,
		TenantID: tenantID,
		ActorID:  ownerID,
		Resource: "api_key",
		Metadata: map[string]any{"prefix": key.KeyPrefix},
	})

	return plaintext, key, nil
}

// Revoke deactivates the key matching the presented plaintext. Returns
// ErrNotFoundOrInactive whether the key never existed or was already revoked.
func (s *Service) Revoke(ctx context.Context, plaintext string) error {
	if err := s.repo.RevokeByHash(ctx, Hash(plaintext)); err != nil {
		return err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeKeyRevoked,
		Resource: "api_key",
		Metadata: map[string]any{"prefix": Prefix(plaintext)},
	})

	return nil
}

// Describe returns the masked metadata of the tenant's active key, or
// ErrNoActiveKey when there is none.
func (s *Service) Describe(ctx context.Context, tenantID string) (*Metadata, error) {
	key, err := s.repo.GetActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		MaskedKey:  MaskPrefix(key.KeyPrefix),
		IsActive:   key.IsActive,
		CreatedAt:  key.CreatedAt,
		ExpiresAt:  key.ExpiresAt,
		LastUsedAt: key.LastUsedAt,
	}, nil
}

// Resolve authenticates a presented credential. A miss (unknown, revoked or
// expired key) is (nil, nil), never an error: absence is a normal outcome and
// must not be distinguishable by failure mode. On a hit the last-used
// timestamp is recorded in the background; the caller never waits on it and
// never sees its failure.
func (s *Service) Resolve(ctx context.Context, plaintext string) (*TenantContext, error) {
	if !HasScheme(plaintext) {
		return nil, nil
	}

	resolved, err := s.repo.FindActiveByHash(ctx, Hash(plaintext))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key: %w", err)
	}
	if resolved == nil {
		return nil, nil
	}

	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.TouchLastUsed(touchCtx, resolved.KeyID, time.Now()); err != nil {
			slog.ErrorContext(touchCtx, "failed to record key usage",
				logger.Error(err),
				logger.TenantID(resolved.Tenant.TenantID),
			)
		}
	}()

	tc := resolved.Tenant
	return &tc, nil
}
