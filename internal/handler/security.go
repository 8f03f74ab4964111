package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/buildkart/buildkart/internal/domain/identity"
	"github.com/buildkart/buildkart/internal/domain/order"
)

// principalKey is the context key for the authenticated principal.
type principalKey struct{}

// PrincipalFrom extracts the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (*identity.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*identity.Principal)
	return p, ok
}

// Security authenticates API requests via HMAC-SHA256 hashed API keys.
type Security struct {
	keys   identity.Repository
	pepper []byte
}

// NewSecurity creates a Security middleware with the given API key
// repository and HMAC pepper.
func NewSecurity(keys identity.Repository, pepper []byte) *Security {
	return &Security{
		keys:   keys,
		pepper: pepper,
	}
}

// Authenticate resolves the X-API-Key header to a principal: the key is
// hashed with the pepper, looked up, and the stored hash compared in
// constant time so a stale or wrong row cannot slip through.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing api key")
			return
		}

		hash := identity.HashKey(s.pepper, raw)
		key, err := s.keys.FindByHash(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(hash), []byte(key.KeyHash)) != 1 {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid api key")
			return
		}

		p := &identity.Principal{
			ID:        key.ID,
			Name:      key.Name,
			Role:      key.Role,
			SubjectID: key.SubjectID,
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole guards a route subtree to principals holding one of the given
// roles. It must sit below Authenticate.
func (s *Security) RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing api key")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, codeForbidden, "insufficient role")
		})
	}
}

// actorFor maps a principal to the order actor it acts as. Keys issued to a
// user or distributor act for that subject; admin keys act as themselves.
func actorFor(p *identity.Principal) order.Actor {
	id := p.SubjectID
	if id == "" {
		id = p.ID
	}
	kind := order.ActorUser
	switch p.Role {
	case identity.RoleDistributor:
		kind = order.ActorDistributor
	case identity.RoleAdmin:
		kind = order.ActorAdmin
	}
	return order.Actor{ID: id, Kind: kind}
}
