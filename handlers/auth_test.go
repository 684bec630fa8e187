package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marquee/api"
	"marquee/handlers"
	"marquee/services/accounts"
	"marquee/services/sessions"
	"marquee/view"
)

func setupAuthHandler(t *testing.T) (*handlers.AuthHandler, *accounts.Service, *sessions.Service) {
	t.Helper()
	fs := afero.NewMemMapFs()

	accountsSvc, err := accounts.NewService(fs, "/data")
	require.NoError(t, err)
	sessionsSvc, err := sessions.NewService(fs, "/data", time.Hour)
	require.NoError(t, err)
	renderer, err := view.NewRenderer("en-US")
	require.NoError(t, err)

	h := handlers.NewAuthHandler(accountsSvc, sessionsSvc, renderer, handlers.CookieOptions{Name: testCookie}, "/auth")
	return h, accountsSvc, sessionsSvc
}

func postForm(h http.HandlerFunc, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", testCookie)
	return nil
}

func TestLoginSubmit_SetsCookieAndRedirects(t *testing.T) {
	h, _, sessionsSvc := setupAuthHandler(t)

	rec := postForm(h.LoginSubmit, "/auth", url.Values{"username": {"admin"}, "password": {"admin"}, "next": {"/movie/27205"}})

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/movie/27205", rec.Header().Get("Location"))

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	session, err := sessionsSvc.Validate(cookie.Value)
	require.NoError(t, err)
	assert.True(t, session.IsMaster)
}

func TestLoginSubmit_UnsafeNextFallsBackToHome(t *testing.T) {
	h, _, _ := setupAuthHandler(t)

	for _, next := range []string{"//evil.com/x", "https://evil.com", "/\\evil.com", "movie/1"} {
		rec := postForm(h.LoginSubmit, "/auth", url.Values{"username": {"admin"}, "password": {"admin"}, "next": {next}})
		assert.Equal(t, "/", rec.Header().Get("Location"), "next=%q", next)
	}
}

func TestLoginSubmit_InvalidCredentials(t *testing.T) {
	h, _, sessionsSvc := setupAuthHandler(t)

	rec := postForm(h.LoginSubmit, "/auth", url.Values{"username": {"admin"}, "password": {"wrong"}, "next": {"/tv/1399"}})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	assert.Zero(t, sessionsSvc.Count())

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "Invalid username or password.", strings.TrimSpace(doc.Find(".error").Text()))
	next, _ := doc.Find(`input[name="next"]`).Attr("value")
	assert.Equal(t, "/tv/1399", next)
	user, _ := doc.Find(`input[name="username"]`).Attr("value")
	assert.Equal(t, "admin", user)
}

func TestLoginForm_CarriesNext(t *testing.T) {
	h, _, _ := setupAuthHandler(t)

	rec := httptest.NewRecorder()
	h.LoginForm(rec, httptest.NewRequest(http.MethodGet, "/auth?next=/movie/603", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	next, _ := doc.Find(`input[name="next"]`).Attr("value")
	assert.Equal(t, "/movie/603", next)
	action, _ := doc.Find("form.login").Attr("action")
	assert.Equal(t, "/auth", action)
}

func TestLogoutSubmit_RevokesAndClearsCookie(t *testing.T) {
	h, _, sessionsSvc := setupAuthHandler(t)
	session, err := sessionsSvc.Create("master", true, "test", "127.0.0.1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: session.Token})
	rec := httptest.NewRecorder()
	h.LogoutSubmit(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	_, err = sessionsSvc.Validate(session.Token)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestLoginAPI(t *testing.T) {
	h, _, _ := setupAuthHandler(t)

	body, _ := json.Marshal(handlers.LoginRequest{Username: "admin", Password: "admin"})
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.Username)
	assert.True(t, resp.IsMaster)

	body, _ = json.Marshal(handlers.LoginRequest{Username: "admin", Password: "nope"})
	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeAndChangePassword_BehindMiddleware(t *testing.T) {
	h, accountsSvc, sessionsSvc := setupAuthHandler(t)
	session, err := sessionsSvc.Create("master", true, "test", "127.0.0.1")
	require.NoError(t, err)
	gate := api.AccountAuthMiddleware(sessionsSvc, testCookie)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rec := httptest.NewRecorder()
	gate(http.HandlerFunc(h.Me)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var me handlers.AccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "admin", me.Username)

	body, _ := json.Marshal(handlers.ChangePasswordRequest{CurrentPassword: "admin", NewPassword: "s3cret"})
	req = httptest.NewRequest(http.MethodPost, "/api/auth/password", bytes.NewReader(body))
	req.AddCookie(&http.Cookie{Name: testCookie, Value: session.Token})
	rec = httptest.NewRecorder()
	gate(http.HandlerFunc(h.ChangePassword)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, accountsSvc.HasDefaultPassword())

	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEqual(t, session.Token, resp.Token)
	assert.Equal(t, resp.Token, sessionCookie(t, rec).Value)

	_, err = sessionsSvc.Validate(session.Token)
	assert.ErrorIs(t, err, sessions.ErrSessionNotFound)
	_, err = sessionsSvc.Validate(resp.Token)
	assert.NoError(t, err)
}

func TestHome_WarnsAboutDefaultPassword(t *testing.T) {
	h, _, sessionsSvc := setupAuthHandler(t)
	session, err := sessionsSvc.Create("master", true, "test", "127.0.0.1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: session.Token})
	rec := httptest.NewRecorder()
	api.RequireSession(sessionsSvc, testCookie, "/auth")(http.HandlerFunc(h.Home)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "Signed in as admin", strings.TrimSpace(doc.Find("h1").Text()))
	assert.Equal(t, 1, doc.Find(".warning").Length())
}
