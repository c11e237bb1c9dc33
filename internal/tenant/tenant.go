package tenant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pagepulse/pagepulse/internal/apikey"
)

// Domain errors
var (
	ErrDuplicateRegistration = errors.New("application already registered for this owner and url")
	ErrTenantNotFound        = errors.New("application not found")
)

// Tenant represents a registered application whose events are isolated from
// every other tenant. (OwnerID, URL) is unique; URL is stored canonicalized.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Registration is the result of registering an application: the tenant, its
// first key record, and the plaintext secret that is shown exactly once.
type Registration struct {
	Tenant    *Tenant
	Key       *apikey.Key
	Plaintext string
}

// Repository defines the interface for tenant storage
type Repository interface {
	// CreateWithKey inserts the tenant and its first API key in a single
	// transaction. Returns ErrDuplicateRegistration when (owner_id, url)
	// already exists.
	CreateWithKey(ctx context.Context, t *Tenant, key *apikey.Key) error

	// GetByID retrieves a tenant, or ErrTenantNotFound.
	GetByID(ctx context.Context, id string) (*Tenant, error)

	// GetByOwnerAndID retrieves a tenant scoped to its owner, or
	// ErrTenantNotFound (the same error whether the tenant is absent or owned
	// by someone else).
	GetByOwnerAndID(ctx context.Context, ownerID, id string) (*Tenant, error)

	// ListByOwner lists the owner's tenants, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Tenant, error)
}

// NormalizeURL canonicalizes an application URL for the uniqueness check:
// trimmed, lower-cased, trailing slash stripped.
func NormalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimSuffix(u, "/")
}
