package session

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"llm-arena/server/models"
)

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying ident.
func WithIdentity(ctx context.Context, ident models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext returns the identity resolved for the request, if any.
func FromContext(ctx context.Context) (models.Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(models.Identity)
	return ident, ok && ident.UserID != ""
}

// Middleware resolves the request's session, when one is presented, and
// stores the identity on the context. Requests without a valid session pass
// through unchanged; handlers decide whether an identity is required.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ident, _, err := m.Resolve(r.Context(), token)
		switch {
		case err == nil:
			r = r.WithContext(WithIdentity(r.Context(), ident))
		case !errors.Is(err, models.ErrUnauthorized):
			log.WithError(err).Warn("session lookup failed")
		}
		next.ServeHTTP(w, r)
	})
}
