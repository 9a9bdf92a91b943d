package api

import (
	"context"
	"net/http"

	"rollcall/internal/auth"
	"rollcall/pkg/types"
)

type contextKey string

const identityKey contextKey = "identity"

const msgUnauthorized = "Unauthorized or invalid token"

// authMiddleware resolves the Authorization bearer token to an identity.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromHeader(r)
		if token == "" {
			sendError(w, msgUnauthorized, http.StatusUnauthorized)
			return
		}
		identity, err := s.verifier.Verify(token)
		if err != nil {
			sendError(w, msgUnauthorized, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func requireRole(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identityFrom(r).Role != role {
				sendError(w, "Forbidden, "+string(role)+" only", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFrom(r *http.Request) types.Identity {
	identity, _ := r.Context().Value(identityKey).(types.Identity)
	return identity
}
