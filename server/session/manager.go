// Package session provisions anonymous visitors, resolves session tokens to
// identities and links anonymous users to permanent accounts.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"llm-arena/server/models"
)

const CookieName = "arena_session"

type Store interface {
	CreateUser(ctx context.Context, u models.User) error
	CreateSession(ctx context.Context, tokenHash, userID string, expires time.Time) error
	LookupSession(ctx context.Context, tokenHash string) (models.User, time.Time, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	LinkAccount(ctx context.Context, anonID, permanentID, name string) (int64, error)
}

type Manager struct {
	store  Store
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(s Store, ttl time.Duration, secureCookie bool) *Manager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{store: s, ttl: ttl, secure: secureCookie, now: time.Now}
}

// Issued is a freshly created session.
type Issued struct {
	Token    string
	Identity models.Identity
	Expires  time.Time
}

// Anonymous provisions a new anonymous user with its own session.
func (m *Manager) Anonymous(ctx context.Context) (Issued, error) {
	id := uuid.NewString()
	if err := m.store.CreateUser(ctx, models.User{ID: id, IsAnonymous: true}); err != nil {
		return Issued{}, err
	}
	return m.issue(ctx, models.Identity{UserID: id, IsAnonymous: true})
}

func (m *Manager) issue(ctx context.Context, ident models.Identity) (Issued, error) {
	token, err := NewToken()
	if err != nil {
		return Issued{}, err
	}
	expires := m.now().Add(m.ttl).UTC()
	if err := m.store.CreateSession(ctx, HashToken(token), ident.UserID, expires); err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, Identity: ident, Expires: expires}, nil
}

// Resolve maps a token to the identity it acts for.
func (m *Manager) Resolve(ctx context.Context, token string) (models.Identity, time.Time, error) {
	if strings.TrimSpace(token) == "" {
		return models.Identity{}, time.Time{}, models.ErrUnauthorized
	}
	u, expires, err := m.store.LookupSession(ctx, HashToken(token))
	if err != nil {
		return models.Identity{}, time.Time{}, err
	}
	return models.Identity{UserID: u.ID, IsAnonymous: u.IsAnonymous}, expires, nil
}

func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.DeleteSession(ctx, HashToken(token))
}

// Link attaches an anonymous user to a permanent account. Battles owned by
// the anonymous id move to the permanent id; existing sessions of the
// anonymous user resolve to the permanent account from then on.
func (m *Manager) Link(ctx context.Context, anonID, permanentID, name string) (int64, error) {
	anonID, permanentID = strings.TrimSpace(anonID), strings.TrimSpace(permanentID)
	if anonID == "" || permanentID == "" {
		return 0, errors.Wrap(models.ErrInvalidRequest, "anonymousUserId and userId are required")
	}
	moved, err := m.store.LinkAccount(ctx, anonID, permanentID, strings.TrimSpace(name))
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{"anonymous_id": anonID, "user_id": permanentID, "battles": moved}).Info("account linked")
	return moved, nil
}

// SetCookie writes the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, s Issued) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.Expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest reads the session token from the cookie or a bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return BearerToken(r)
}

func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
