package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marquee/api"
	"marquee/internal/auth"
	"marquee/models"
	"marquee/services/sessions"
	"marquee/view"
)

type accountStore interface {
	Authenticate(username, password string) (models.Account, error)
	Get(id string) (models.Account, bool)
	UpdatePassword(id, newPassword string) error
	HasDefaultPassword() bool
}

type sessionStore interface {
	Create(accountID string, isMaster bool, userAgent, ipAddress string) (models.Session, error)
	Validate(token string) (models.Session, error)
	Revoke(token string) error
	Refresh(token string) (models.Session, error)
	RevokeAllForAccount(accountID string) int
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
}

// AuthHandler serves the sign-in form and the JSON auth API.
type AuthHandler struct {
	accounts accountStore
	sessions sessionStore
	renderer *view.Renderer
	cookie   CookieOptions
	authPath string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accountsSvc accountStore, sessionsSvc sessionStore, renderer *view.Renderer, cookie CookieOptions, authPath string) *AuthHandler {
	return &AuthHandler{
		accounts: accountsSvc,
		sessions: sessionsSvc,
		renderer: renderer,
		cookie:   cookie,
		authPath: authPath,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
	IsMaster  bool   `json:"isMaster"`
}

// AccountResponse represents account info response.
type AccountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsMaster bool   `json:"isMaster"`
}

// LoginForm renders the sign-in page.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, http.StatusOK, view.LoginPage{Next: safeNext(r.URL.Query().Get("next"))})
}

// LoginSubmit handles the sign-in form. On success it sets the session
// cookie and sends the browser to the requested page.
func (h *AuthHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, http.StatusBadRequest, view.LoginPage{Error: "Invalid form submission."})
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	next := safeNext(r.PostForm.Get("next"))

	session, _, err := h.signIn(r, username, r.PostForm.Get("password"))
	if err != nil {
		status := http.StatusInternalServerError
		message := "Could not sign in, try again."
		if errors.Is(err, errInvalidLogin) {
			status = http.StatusUnauthorized
			message = "Invalid username or password."
		}
		h.renderLogin(w, status, view.LoginPage{Next: next, Username: username, Error: message})
		return
	}

	h.setSessionCookie(w, session)
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// LogoutSubmit revokes the browser session and returns to the sign-in page.
func (h *AuthHandler) LogoutSubmit(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r, h.cookie.Name); token != "" {
		if err := h.sessions.Revoke(token); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
			log.Printf("[auth] revoke session failed: %v", err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, h.authPath, http.StatusSeeOther)
}

// Home renders the signed-in landing page.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := view.HomePage{}
	if account, ok := h.accounts.Get(auth.GetAccountID(r)); ok {
		data.Username = account.Username
		data.DefaultPassword = account.IsMaster && h.accounts.HasDefaultPassword()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Home(w, data); err != nil {
		log.Printf("[auth] render home failed: %v", err)
	}
}

// Login authenticates a user and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	session, account, err := h.signIn(r, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, errInvalidLogin) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, loginResponse(session, account))
}

// Logout invalidates the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r, h.cookie.Name)
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no session token"})
		return
	}

	if err := h.sessions.Revoke(token); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to revoke session"})
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me returns the current authenticated account info.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSession(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	account, ok := h.accounts.Get(session.AccountID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		ID:       account.ID,
		Username: account.Username,
		IsMaster: account.IsMaster,
	})
}

// Refresh extends the session expiration.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r, h.cookie.Name)
	session, err := h.sessions.Refresh(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired session"})
		return
	}

	account, ok := h.accounts.Get(session.AccountID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}

	h.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, loginResponse(session, account))
}

// ChangePasswordRequest represents password change request.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword changes the current account's password. Every session of
// the account is revoked and a fresh one is issued to the caller.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.GetSession(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	account, ok := h.accounts.Get(session.AccountID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
		return
	}
	if _, err := h.accounts.Authenticate(account.Username, req.CurrentPassword); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "current password is incorrect"})
		return
	}
	if err := h.accounts.UpdatePassword(session.AccountID, req.NewPassword); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	revoked := h.sessions.RevokeAllForAccount(account.ID)
	log.Printf("[auth] password changed for %s, revoked %d sessions", account.ID, revoked)

	fresh, err := h.sessions.Create(account.ID, account.IsMaster, r.Header.Get("User-Agent"), api.ClientIP(r))
	if err != nil {
		h.clearSessionCookie(w)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "password changed, sign in again"})
		return
	}
	h.setSessionCookie(w, fresh)
	writeJSON(w, http.StatusOK, loginResponse(fresh, account))
}

var errInvalidLogin = errors.New("invalid username or password")

func (h *AuthHandler) signIn(r *http.Request, username, password string) (models.Session, models.Account, error) {
	account, err := h.accounts.Authenticate(username, password)
	if err != nil {
		log.Printf("[auth] failed login for %q from %s", username, api.ClientIP(r))
		return models.Session{}, models.Account{}, errInvalidLogin
	}
	session, err := h.sessions.Create(account.ID, account.IsMaster, r.Header.Get("User-Agent"), api.ClientIP(r))
	if err != nil {
		log.Printf("[auth] create session for %s failed: %v", account.ID, err)
		return models.Session{}, models.Account{}, err
	}
	return session, account, nil
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, status int, data view.LoginPage) {
	data.Action = h.authPath
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.renderer.Login(w, data); err != nil {
		log.Printf("[auth] render login failed: %v", err)
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func loginResponse(session models.Session, account models.Account) LoginResponse {
	return LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		AccountID: account.ID,
		Username:  account.Username,
		IsMaster:  account.IsMaster,
	}
}

// safeNext accepts only local absolute paths as post-login destinations.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}
