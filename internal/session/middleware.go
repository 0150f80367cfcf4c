// Package session scopes storefront state to a browser session.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults used when Resolver fields are empty.
const (
	DefaultHeader = "X-Session-ID"
	DefaultCookie = "storefront_session"
	maxIDLength   = 128
)

type contextKey string

const sessionContextKey contextKey = "session.id"

// WithID stores the session identifier in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionContextKey, id)
}

// FromContext returns the session identifier stored in ctx.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionContextKey).(string)
	return id, ok && id != ""
}

// Resolver resolves the session from a header or cookie and mints a new one
// when neither is present.
type Resolver struct {
	HeaderName   string
	CookieName   string
	CookieSecure bool
	CookieTTL    time.Duration
	NewID        func() string
}

// Middleware injects the session identifier into the request context.
func (r Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := r.Resolve(req)
		if id == "" {
			id = r.newID()
			http.SetCookie(w, &http.Cookie{
				Name:     r.cookieName(),
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   r.CookieSecure,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(r.cookieTTL().Seconds()),
			})
		}
		w.Header().Set(r.headerName(), id)
		next.ServeHTTP(w, req.WithContext(WithID(req.Context(), id)))
	})
}

// Resolve returns the session id carried by req, or "" when none is valid.
func (r Resolver) Resolve(req *http.Request) string {
	if req == nil {
		return ""
	}
	if id := sanitize(req.Header.Get(r.headerName())); id != "" {
		return id
	}
	if c, err := req.Cookie(r.cookieName()); err == nil {
		return sanitize(c.Value)
	}
	return ""
}

func (r Resolver) headerName() string {
	if r.HeaderName == "" {
		return DefaultHeader
	}
	return r.HeaderName
}

func (r Resolver) cookieName() string {
	if r.CookieName == "" {
		return DefaultCookie
	}
	return r.CookieName
}

func (r Resolver) cookieTTL() time.Duration {
	if r.CookieTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return r.CookieTTL
}

func (r Resolver) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func sanitize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxIDLength {
		return ""
	}
	for _, ch := range value {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return ""
		}
	}
	return value
}
