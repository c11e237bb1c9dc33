package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pagepulse/pagepulse/internal/apikey"
	"github.com/pagepulse/pagepulse/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateWithKey(ctx context.Context, t *Tenant, key *apikey.Key) error {
	args := m.Called(ctx, t, key)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) GetByOwnerAndID(ctx context.Context, ownerID, id string) (*Tenant, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) ListByOwner(ctx context.Context, ownerID string) ([]*Tenant, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Tenant), args.Error(1)
}

type mockKeyRepo struct {
	mock.Mock
}

func (m *mockKeyRepo) Rotate(ctx context.Context, tenantID, ownerID string, newKey *apikey.Key) error {
	args := m.Called(ctx, tenantID, ownerID, newKey)
	return args.Error(0)
}

func (m *mockKeyRepo) RevokeByHash(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *mockKeyRepo) GetActiveByTenant(ctx context.Context, tenantID string) (*apikey.Key, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apikey.Key), args.Error(1)
}

func (m *mockKeyRepo) FindActiveByHash(ctx context.Context, hash string) (*apikey.ResolvedKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apikey.ResolvedKey), args.Error(1)
}

func (m *mockKeyRepo) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	args := m.Called(ctx, keyID, at)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func newTestService(repo Repository) (*Service, *mockAudit) {
	auditLogger := new(mockAudit)
	keys := apikey.NewService(new(mockKeyRepo), auditLogger, 0)
	return NewService(repo, keys, auditLogger), auditLogger
}

// TestPurpose: Validates that registration creates a tenant with a UUIDv7 ID, a normalized URL and a first key in one shot.
// Scope: Unit Test
// Security: Every application must hold exactly one credential from birth
// Expected: The repository receives tenant and key together; the plaintext hash matches the stored key record.
// Test Case ID: APP-01
func TestTenant_Service_Register(t *testing.T) {
	repo := new(mockRepo)
	service, auditLogger := newTestService(repo)
	ctx := context.Background()

	var storedKey *apikey.Key
	repo.On("CreateWithKey", ctx, mock.MatchedBy(func(tn *Tenant) bool {
		uid, err := uuid.Parse(tn.ID)
		if err != nil || uid.Version() != 7 {
			return false
		}
		return tn.Name == "My Blog" && tn.URL == "https://blog.example.com" && tn.OwnerID == "owner-1"
	}), mock.MatchedBy(func(k *apikey.Key) bool {
		storedKey = k
		return k.IsActive
	})).Return(nil)

	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeTenantRegistered
	})).Return()
	auditLogger.On("Log", ctx, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeKeyIssued
	})).Return()

	reg, err := service.Register(ctx, "My Blog", "HTTPS://Blog.Example.com/", "owner-1")
	assert.NoError(t, err)
	assert.Equal(t, "https://blog.example.com", reg.Tenant.URL)
	assert.Equal(t, reg.Tenant.ID, reg.Key.TenantID)
	assert.Equal(t, storedKey, reg.Key)
	assert.Equal(t, apikey.Hash(reg.Plaintext), reg.Key.KeyHash)
	assert.True(t, apikey.HasScheme(reg.Plaintext))

	repo.AssertExpectations(t)
	auditLogger.AssertExpectations(t)
}

// TestPurpose: Validates that registering the same owner and URL twice is rejected.
// Scope: Unit Test
// Expected: ErrDuplicateRegistration propagates and no audit events are written.
// Test Case ID: APP-02
func TestTenant_Service_Register_Duplicate(t *testing.T) {
	repo := new(mockRepo)
	service, auditLogger := newTestService(repo)
	ctx := context.Background()

	repo.On("CreateWithKey", ctx, mock.Anything, mock.Anything).Return(ErrDuplicateRegistration)

	_, err := service.Register(ctx, "My Blog", "https://blog.example.com", "owner-1")
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	auditLogger.AssertNotCalled(t, "Log", mock.Anything, mock.Anything)
}

// TestPurpose: Validates input requirements for registration.
// Scope: Unit Test
// Expected: Empty name, URL or owner fail before any storage call.
// Test Case ID: APP-03
func TestTenant_Service_Register_MissingFields(t *testing.T) {
	repo := new(mockRepo)
	service, _ := newTestService(repo)
	ctx := context.Background()

	_, err := service.Register(ctx, "", "https://blog.example.com", "owner-1")
	assert.Error(t, err)
	_, err = service.Register(ctx, "My Blog", "", "owner-1")
	assert.Error(t, err)
	_, err = service.Register(ctx, "My Blog", "https://blog.example.com", "")
	assert.Error(t, err)

	repo.AssertNotCalled(t, "CreateWithKey", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates URL canonicalization for the uniqueness check.
// Scope: Unit Test
// Expected: Case, surrounding whitespace and a trailing slash do not produce distinct URLs.
// Test Case ID: APP-04
func TestTenant_NormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://blog.example.com":    "https://blog.example.com",
		"https://blog.example.com/":   "https://blog.example.com",
		"HTTPS://BLOG.EXAMPLE.COM":    "https://blog.example.com",
		"  https://blog.example.com ": "https://blog.example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURL(in))
	}
}

// TestPurpose: Validates that lookups are scoped to the owner.
// Scope: Unit Test
// Security: One owner must not read another owner's applications
// Expected: Get consults the owner-scoped query and surfaces ErrTenantNotFound for foreign tenants.
// Test Case ID: APP-05
func TestTenant_Service_Get_Scoped(t *testing.T) {
	repo := new(mockRepo)
	service, _ := newTestService(repo)
	ctx := context.Background()

	repo.On("GetByOwnerAndID", ctx, "owner-2", "tenant-1").Return(nil, ErrTenantNotFound)

	_, err := service.Get(ctx, "owner-2", "tenant-1")
	assert.ErrorIs(t, err, ErrTenantNotFound)
}
