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
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pagepulse/pagepulse/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Rotate(ctx context.Context, tenantID, ownerID string, newKey *Key) error {
	args := m.Called(ctx, tenantID, ownerID, newKey)
	return args.Error(0)
}

func (m *mockRepo) RevokeByHash(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *mockRepo) GetActiveByTenant(ctx context.Context, tenantID string) (*Key, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Key), args.Error(1)
}

func (m *mockRepo) FindActiveByHash(ctx context.Context, hash string) (*ResolvedKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ResolvedKey), args.Error(1)
}

func (m *mockRepo) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	args := m.Called(ctx, keyID, at)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

// TestPurpose: Validates the generated key format: scheme marker, fixed length, alphanumeric body.
// Scope: Unit Test
// Security: Key format must be stable so masking never leaks length information
// Expected: Every generated key is 40 characters, starts with ppk_, and the body is alphanumeric.
// Test Case ID: KEY-01
func TestKey_Generate_Format(t *testing.T) {
	plaintext, err := Generate()
	assert.NoError(t, err)

	assert.Len(t, plaintext, KeyLength)
	assert.True(t, strings.HasPrefix(plaintext, SchemePrefix))
	assert.True(t, HasScheme(plaintext))

	for _, c := range plaintext[len(SchemePrefix):] {
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		assert.True(t, ok, "unexpected character %q in key body", c)
	}
}

// TestPurpose: Validates that key generation does not repeat over a large sample.
// Scope: Unit Test
// Security: Key collisions would let one tenant authenticate as another
// Expected: 10,000 generated keys are pairwise distinct.
// Test Case ID: KEY-02
func TestKey_Generate_NoCollisions(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		k, err := Generate()
		assert.NoError(t, err)
		assert.False(t, seen[k], "duplicate key generated")
		seen[k] = true
	}
}

// TestPurpose: Validates that the storage fingerprint is deterministic and input-sensitive.
// Scope: Unit Test
// Security: Lookup by fingerprint requires determinism; distinct keys must not collide
// Expected: Equal inputs hash equal, distinct inputs hash distinct, and the plaintext never appears in the hash.
// Test Case ID: KEY-03
func TestKey_Hash_Deterministic(t *testing.T) {
	a := Hash("ppk_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := Hash("ppk_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	c := Hash("ppk_bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "ppk_")
}

// TestPurpose: Validates the masked display form of a key.
// Scope: Unit Test
// Security: The mask must reveal only the fixed prefix, never trailing secret material
// Expected: The mask keeps the first 8 characters, pads to the full key length, and reveals nothing else.
// Test Case ID: KEY-04
func TestKey_Mask(t *testing.T) {
	plaintext, err := Generate()
	assert.NoError(t, err)

	masked := Mask(plaintext)
	assert.Len(t, masked, KeyLength)
	assert.Equal(t, plaintext[:PrefixLength], masked[:PrefixLength])
	assert.Equal(t, strings.Repeat("*", KeyLength-PrefixLength), masked[PrefixLength:])

	// Rebuilding the mask from the stored prefix gives the same display form.
	assert.Equal(t, masked, MaskPrefix(Prefix(plaintext)))
}

// TestPurpose: Validates that minted key records carry fingerprint and prefix but never the plaintext.
// Scope: Unit Test
// Security: Plaintext keys must not be recoverable from stored records
// Expected: The record holds a UUIDv7 ID, the hash of the returned plaintext, and its 8-character prefix.
// Test Case ID: KEY-05
func TestKey_Service_Mint(t *testing.T) {
	service := NewService(new(mockRepo), new(mockAudit), 0)

	plaintext, key, err := service.Mint("tenant-1")
	assert.NoError(t, err)

	uid, err := uuid.Parse(key.ID)
	assert.NoError(t, err)
	assert.Equal(t, byte(7), byte(uid.Version()))

	assert.Equal(t, "tenant-1", key.TenantID)
	assert.Equal(t, Hash(plaintext), key.KeyHash)
	assert.Equal(t, plaintext[:PrefixLength], key.KeyPrefix)
	assert.True(t, key.IsActive)
	assert.Nil(t, key.ExpiresAt)
	assert.NotContains(t, key.KeyHash, plaintext)
}

// TestPurpose: Validates that a configured TTL stamps an expiry on minted keys.
// Scope: Unit Test
// Security: Expired keys must stop resolving without manual revocation
// Expected: ExpiresAt is set TTL after creation.
// Test Case ID: KEY-06
func TestKey_Service_Mint_TTL(t *testing.T) {
	service := NewService(new(mockRepo), new(mockAudit), 24*time.Hour)

	_, key, err := service.Mint("tenant-1")
	assert.NoError(t, err)
	assert.NotNil(t, key.ExpiresAt)
	assert.Equal(t, key.CreatedAt.Add(24*time.Hour), *key.ExpiresAt)
}

// TestPurpose: Validates rotation: a fresh key is persisted through the repository's atomic swap.
// Scope: Unit Test
// Security: Rotation must never leave a tenant with zero or two active keys
// Expected: The repository receives one new active key for the tenant and the plaintext matches the record.
// Test Case ID: KEY-07
func TestKey_Service_Rotate(t *testing.T) {
	repo := new(mockRepo)
	auditLogger := new(mockAudit)
	service := NewService(repo, auditLogger, 0)
	ctx := context.Background()

	var swapped *Key
	repo.On("Rotate", ctx, "tenant-1", "owner-1", mock.MatchedBy(func(k *Key) bool {
		swapped = k
		return k.TenantID == "tenant-1" && k.IsActive
	})).Return(nil)
	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeKeyRotated && e.TenantID == "tenant-1"
	})).Return()

	plaintext, key, err := service.Rotate(ctx, "tenant-1", "owner-1")
	assert.NoError(t, err)
	assert.Equal(t, swapped, key)
	assert.Equal(t, Hash(plaintext), key.KeyHash)

	repo.AssertExpectations(t)
	auditLogger.AssertExpectations(t)
}

// TestPurpose: Validates that rotating an application the requester does not own fails opaquely.
// Scope: Unit Test
// Security: The error must not reveal whether the application exists
// Expected: ErrNotFoundOrUnauthorized propagates and no audit event is written.
// Test Case ID: KEY-08
func TestKey_Service_Rotate_Unauthorized(t *testing.T) {
	repo := new(mockRepo)
	auditLogger := new(mockAudit)
	service := NewService(repo, auditLogger, 0)
	ctx := context.Background()

	repo.On("Rotate", ctx, "tenant-1", "intruder", mock.Anything).Return(ErrNotFoundOrUnauthorized)

	_, _, err := service.Rotate(ctx, "tenant-1", "intruder")
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)

	auditLogger.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that revoking an already-revoked key fails the same way as revoking an unknown one.
// Scope: Unit Test
// Security: Revocation must not act as an existence oracle
// Expected: Both cases surface ErrNotFoundOrInactive.
// Test Case ID: KEY-09
func TestKey_Service_Revoke_Inactive(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, new(mockAudit), 0)
	ctx := context.Background()

	plaintext, _ := Generate()
	repo.On("RevokeByHash", ctx, Hash(plaintext)).Return(ErrNotFoundOrInactive)

	err := service.Revoke(ctx, plaintext)
	assert.ErrorIs(t, err, ErrNotFoundOrInactive)
}

// TestPurpose: Validates successful key resolution to a tenant context.
// Scope: Unit Test
// Security: Resolution is the authentication boundary of the ingest plane
// Expected: A known active key yields the tenant context; the last-used timestamp is recorded asynchronously.
// Test Case ID: KEY-10
func TestKey_Service_Resolve(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, new(mockAudit), 0)
	ctx := context.Background()

	plaintext, _ := Generate()
	repo.On("FindActiveByHash", ctx, Hash(plaintext)).Return(&ResolvedKey{
		KeyID: "key-1",
		Tenant: TenantContext{
			TenantID:   "tenant-1",
			TenantName: "My Blog",
			OwnerID:    "owner-1",
		},
	}, nil)
	// The touch runs on a background goroutine; it may or may not land
	// before the test returns.
	repo.On("TouchLastUsed", mock.Anything, "key-1", mock.Anything).Return(nil).Maybe()

	tc, err := service.Resolve(ctx, plaintext)
	assert.NoError(t, err)
	assert.NotNil(t, tc)
	assert.Equal(t, "tenant-1", tc.TenantID)
	assert.Equal(t, "owner-1", tc.OwnerID)
}

// TestPurpose: Validates that unknown, revoked and expired keys all resolve to the same absent result.
// Scope: Unit Test
// Security: A revoked key must be indistinguishable from one that never existed
// Expected: Resolve returns (nil, nil) with no error.
// Test Case ID: KEY-11
func TestKey_Service_Resolve_Miss(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, new(mockAudit), 0)
	ctx := context.Background()

	plaintext, _ := Generate()
	repo.On("FindActiveByHash", ctx, Hash(plaintext)).Return(nil, nil)

	tc, err := service.Resolve(ctx, plaintext)
	assert.NoError(t, err)
	assert.Nil(t, tc)

	repo.AssertNotCalled(t, "TouchLastUsed", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that malformed credentials are rejected before any storage lookup.
// Scope: Unit Test
// Security: Cheap rejection keeps junk traffic off the database
// Expected: Credentials without the scheme marker or with the wrong length resolve to (nil, nil) without touching the repository.
// Test Case ID: KEY-12
func TestKey_Service_Resolve_BadScheme(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, new(mockAudit), 0)
	ctx := context.Background()

	for _, bad := range []string{"", "ppk_short", "sk_" + strings.Repeat("a", 37), strings.Repeat("a", 40)} {
		tc, err := service.Resolve(ctx, bad)
		assert.NoError(t, err)
		assert.Nil(t, tc)
	}

	repo.AssertNotCalled(t, "FindActiveByHash", mock.Anything, mock.Anything)
}

// TestPurpose: Validates the masked metadata of a described key.
// Scope: Unit Test
// Security: Describe must never expose the fingerprint or a usable secret
// Expected: Metadata carries the rebuilt mask and timestamps only.
// Test Case ID: KEY-13
func TestKey_Service_Describe(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, new(mockAudit), 0)
	ctx := context.Background()

	created := time.Now().Add(-time.Hour)
	repo.On("GetActiveByTenant", ctx, "tenant-1").Return(&Key{
		ID:        "key-1",
		TenantID:  "tenant-1",
		KeyHash:   "opaque",
		KeyPrefix: "ppk_abcd",
		IsActive:  true,
		CreatedAt: created,
	}, nil)

	meta, err := service.Describe(ctx, "tenant-1")
	assert.NoError(t, err)
	assert.Equal(t, "ppk_abcd"+strings.Repeat("*", 32), meta.MaskedKey)
	assert.True(t, meta.IsActive)
	assert.Equal(t, created, meta.CreatedAt)
	assert.Nil(t, meta.ExpiresAt)
}
