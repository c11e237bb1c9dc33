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

package http

import (
	"context"

	"github.com/pagepulse/pagepulse/internal/apikey"
)

type contextKey string

const (
	tenantCtxKey contextKey = "tenant_ctx"
	ownerIDKey   contextKey = "owner_id"
)

// GetTenant retrieves the resolved tenant context from the request context.
func GetTenant(ctx context.Context) *apikey.TenantContext {
	if val, ok := ctx.Value(tenantCtxKey).(*apikey.TenantContext); ok {
		return val
	}
	return nil
}

// GetOwnerID retrieves the authenticated owner ID from the request context.
func GetOwnerID(ctx context.Context) string {
	if val, ok := ctx.Value(ownerIDKey).(string); ok {
		return val
	}
	return ""
}
