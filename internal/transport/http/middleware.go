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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pagepulse/pagepulse/internal/observability/logger"
)

// APIKeyHeader carries the ingest/read credential. The management plane uses
// standard Authorization bearer tokens instead; the two planes never share a
// credential type.
const APIKeyHeader = "X-API-Key"

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// KeyAuthMiddleware resolves the X-API-Key header to a tenant and injects the
// tenant context. An unknown, revoked or expired key is a plain 401; the
// response never distinguishes why the key did not resolve.
func (h *Handler) KeyAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(APIKeyHeader)
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		tc, err := h.keys.Resolve(r.Context(), raw)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to resolve api key", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if tc == nil {
			respondError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		ctx := context.WithValue(r.Context(), tenantCtxKey, tc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerAuthMiddleware validates the management-plane bearer token (HS256) and
// injects the owner ID from its subject claim.
func OwnerAuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				respondError(w, http.StatusUnauthorized, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
