// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeranaias/cardiochat/internal/session"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Authenticate(token string) (session.Identity, error)
}

// identify puts the bearer token's identity on the request context.
// Requests without Authorization stay guests. A bad token is a 401, never
// a silent downgrade to guest.
func identify(verifier TokenVerifier, logger *slog.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			deny := func(reason string) {
				logger.Warn("token rejected", slog.String("client", clientIP(r)), slog.String("reason", reason))
				w.Header().Set("WWW-Authenticate", `Bearer realm="cardiochat"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			}

			scheme, token, _ := strings.Cut(header, " ")
			if !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				deny("malformed_header")
				return
			}
			ident, err := verifier.Authenticate(strings.TrimSpace(token))
			switch {
			case errors.Is(err, session.ErrIdleTimeout):
				deny("idle_timeout")
				return
			case err != nil:
				deny("invalid_token")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), ident)))
		})
	}
}
