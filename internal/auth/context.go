package auth

import (
	"context"
	"net/http"
	"strings"

	"marquee/models"
)

// ContextKey is the type used for request context keys.
type ContextKey string

const (
	ContextKeyAccountID ContextKey = "accountID"
	ContextKeySession   ContextKey = "session"
)

// WithSession stores an authenticated session on ctx.
func WithSession(ctx context.Context, session models.Session) context.Context {
	ctx = context.WithValue(ctx, ContextKeyAccountID, session.AccountID)
	return context.WithValue(ctx, ContextKeySession, session)
}

// GetAccountID returns the authenticated account ID, or "".
func GetAccountID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyAccountID).(string); ok {
		return id
	}
	return ""
}

// GetSession returns the session injected by the auth middleware.
func GetSession(r *http.Request) (models.Session, bool) {
	session, ok := r.Context().Value(ContextKeySession).(models.Session)
	return session, ok
}

// TokenFromRequest extracts a session token. The session cookie wins over
// an Authorization: Bearer header.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			if token := strings.TrimSpace(c.Value); token != "" {
				return token
			}
		}
	}
	return BearerToken(r)
}

// BearerToken extracts the token of an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
