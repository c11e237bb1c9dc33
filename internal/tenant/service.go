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

package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/pagepulse/pagepulse/internal/apikey"
	"github.com/pagepulse/pagepulse/internal/audit"
	"github.com/pagepulse/pagepulse/internal/id"
)

// Service provides application registration and lookup
type Service struct {
	repo        Repository
	keys        *apikey.Service
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, keys *apikey.Service, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		keys:        keys,
		auditLogger: auditLogger,
	}
}

// Register creates a new application and issues its first API key. The tenant
// row and the key row are written in one transaction: an application never
// exists without a credential, and a failed key insert rolls back the tenant.
func (s *Service) Register(ctx context.Context, name, url, ownerID string) (*Registration, error) {
	if name == "" {
		return nil, fmt.Errorf("application name is required")
	}
	if url == "" {
		return nil, fmt.Errorf("application url is required")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Name:      name,
		URL:       NormalizeURL(url),
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
	}

	plaintext, key, err := s.keys.Mint(t.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithKey(ctx, t, key); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantRegistered,
		TenantID: t.ID,
		ActorID:  ownerID,
		Resource: "application",
		Metadata: map[string]any{"name": t.Name, "url": t.URL},
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeKeyIssued,
		TenantID: t.ID,
		ActorID:  ownerID,
		Resource: "api_key",
		Metadata: map[string]any{"prefix": key.KeyPrefix},
	})

	return &Registration{Tenant: t, Key: key, Plaintext: plaintext}, nil
}

// Get retrieves an application owned by the requester
func (s *Service) Get(ctx context.Context, ownerID, tenantID string) (*Tenant, error) {
	return s.repo.GetByOwnerAndID(ctx, ownerID, tenantID)
}

// List lists the requester's applications
func (s *Service) List(ctx context.Context, ownerID string) ([]*Tenant, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}
