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
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Key format constants. Every generated key is SchemePrefix followed by a
// random alphanumeric body, KeyLength characters in total. Masking relies on
// this length being fixed: a variable length would leak through the mask.
const (
	SchemePrefix = "ppk_"
	KeyLength    = 40
	PrefixLength = 8
	maskChar     = "*"
)

const keyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Domain errors. Not-found and already-inactive (or unauthorized) are
// deliberately collapsed into a single error so callers cannot probe for key
// or tenant existence.
var (
	ErrNotFoundOrInactive     = errors.New("api key not found or already inactive")
	ErrNotFoundOrUnauthorized = errors.New("application not found or not owned by requester")
	ErrNoActiveKey            = errors.New("no active api key")
)

// Key represents a stored API key. The plaintext secret is never persisted;
// only its fingerprint and display prefix are.
type Key struct {
	ID         string
	TenantID   string
	KeyHash    string
	KeyPrefix  string
	IsActive   bool
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// Metadata is the caller-visible description of a key. It carries the masked
// display form and timestamps, never the hash or a usable secret.
type Metadata struct {
	MaskedKey  string     `json:"masked_key"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TenantContext identifies the tenant a resolved key belongs to.
type TenantContext struct {
	TenantID   string
	TenantName string
	OwnerID    string
}

// ResolvedKey is the repository's answer to a fingerprint lookup.
type ResolvedKey struct {
	KeyID  string
	Tenant TenantContext
}

// Repository defines the interface for key storage
type Repository interface {
	// Rotate atomically deactivates every active key for the tenant and
	// inserts newKey, after verifying the tenant belongs to ownerID. Returns
	// ErrNotFoundOrUnauthorized when the tenant is absent or owned by someone
	// else.
	Rotate(ctx context.Context, tenantID, ownerID string, newKey *Key) error

	// RevokeByHash deactivates the active key matching hash and stamps its
	// revocation time. Returns ErrNotFoundOrInactive when no active row
	// matches.
	RevokeByHash(ctx context.Context, hash string) error

	// GetActiveByTenant returns the tenant's active key, or ErrNoActiveKey.
	GetActiveByTenant(ctx context.Context, tenantID string) (*Key, error)

	// FindActiveByHash resolves a fingerprint to its tenant. Expired and
	// inactive keys do not match. A miss is (nil, nil), not an error.
	FindActiveByHash(ctx context.Context, hash string) (*ResolvedKey, error)

	// TouchLastUsed records that the key was used at the given time.
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
}

// Generate returns a new plaintext key: the scheme marker followed by a
// crypto/rand alphanumeric body.
func Generate() (string, error) {
	body := make([]byte, KeyLength-len(SchemePrefix))
	max := big.NewInt(int64(len(keyCharset)))
	for i := range body {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate key material: %w", err)
		}
		body[i] = keyCharset[n.Int64()]
	}
	return SchemePrefix + string(body), nil
}

// Hash computes the storage fingerprint of a plaintext key. Deterministic and
// unsalted: the input space is uniform high-entropy, so salting buys nothing
// and determinism is required for lookup.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Prefix returns the non-secret display prefix of a plaintext key.
func Prefix(plaintext string) string {
	if len(plaintext) < PrefixLength {
		return plaintext
	}
	return plaintext[:PrefixLength]
}

// Mask returns the display form of a plaintext key: the prefix followed by a
// placeholder run, same total length as the original.
func Mask(plaintext string) string {
	return MaskPrefix(Prefix(plaintext))
}

// MaskPrefix rebuilds the masked display form from a stored prefix.
func MaskPrefix(prefix string) string {
	return prefix + strings.Repeat(maskChar, KeyLength-len(prefix))
}

// HasScheme reports whether a presented credential carries the expected
// scheme marker and length. Useful for cheap rejection before hashing.
func HasScheme(plaintext string) bool {
	return len(plaintext) == KeyLength && strings.HasPrefix(plaintext, SchemePrefix)
}
