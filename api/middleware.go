package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"marquee/internal/auth"
	"marquee/models"
)

// SessionValidator resolves a session token.
type SessionValidator interface {
	Validate(token string) (models.Session, error)
}

// RequireSession redirects requests without a valid session to authPath with
// a temporary redirect. Valid sessions are injected into the request context.
func RequireSession(sessions SessionValidator, cookieName, authPath string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r, cookieName)
			session, err := sessions.Validate(token)
			if err != nil {
				http.Redirect(w, r, authPath, http.StatusTemporaryRedirect)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

// AccountAuthMiddleware rejects API requests without a valid session with a
// JSON 401. Tokens come from the session cookie or a Bearer header.
func AccountAuthMiddleware(sessions SessionValidator, cookieName string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := auth.TokenFromRequest(r, cookieName)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if sessions == nil {
				writeJSONError(w, http.StatusInternalServerError, "session service unavailable")
				return
			}
			session, err := sessions.Validate(token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

// RequestLogger tags each request with an X-Request-ID and logs its outcome.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("[http] %s %s status=%d bytes=%d duration=%dms id=%s", r.Method, r.URL.Path, m.Code, m.Written, m.Duration.Milliseconds(), id)
	})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
