package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marquee/api"
	"marquee/config"
	"marquee/services/accounts"
	"marquee/services/metadata"
	"marquee/services/sessions"
	"marquee/view"
)

const inceptionJSON = `{
	"id": 27205,
	"title": "Inception",
	"tagline": "Your mind is the scene of the crime",
	"overview": "Cobb steals secrets from dreams.",
	"release_date": "2010-07-15",
	"vote_average": 8.4,
	"runtime": 148,
	"budget": 160000000,
	"genres": [{"id": 28, "name": "Action"}],
	"production_companies": [{"id": 923, "name": "Legendary Pictures"}],
	"production_countries": [{"iso_3166_1": "US", "name": "United States of America"}],
	"videos": {"results": [{"key": "YoHD9XEInc0", "type": "Trailer", "site": "YouTube"}]}
}`

type testServer struct {
	handler  http.Handler
	requests atomic.Int32
}

func newTestApp(t *testing.T, opts ...func(*application)) *testServer {
	t.Helper()
	ts := &testServer{}
	tmdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		if r.URL.Path != "/movie/27205" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status_message":"not found"}`)
			return
		}
		fmt.Fprint(w, inceptionJSON)
	}))
	t.Cleanup(tmdb.Close)

	settings := config.DefaultSettings()
	settings.TMDB.APIKey = "test-key"
	settings.TMDB.BaseURL = tmdb.URL

	fs := afero.NewMemMapFs()
	accountsSvc, err := accounts.NewService(fs, "/data")
	require.NoError(t, err)
	sessionsSvc, err := sessions.NewService(fs, "/data", time.Hour)
	require.NoError(t, err)
	renderer, err := view.NewRenderer("en-US")
	require.NoError(t, err)

	app := &application{
		settings: settings,
		fs:       fs,
		accounts: accountsSvc,
		sessions: sessionsSvc,
		titles: metadata.NewService(metadata.Options{
			APIKey:   settings.TMDB.APIKey,
			BaseURL:  settings.TMDB.BaseURL,
			Fs:       fs,
			CacheDir: "/cache",
		}),
		renderer:     renderer,
		loginLimiter: api.PerMinute(100),
	}
	for _, opt := range opts {
		opt(app)
	}
	ts.handler = app.routes()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestTitlePage_RedirectsToAuthWithoutSession(t *testing.T) {
	ts := newTestApp(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/movie/27205", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))
	assert.Zero(t, ts.requests.Load())
}

func TestLoginThenTitlePage(t *testing.T) {
	ts := newTestApp(t)

	form := url.Values{"username": {"admin"}, "password": {"admin"}, "next": {"/movie/27205"}}
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/movie/27205", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/movie/27205", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "Inception", strings.TrimSpace(doc.Find("h1.title").Text()))
	assert.Equal(t, "Budget: 160,000,000 $", strings.TrimSpace(doc.Find(".budget").Text()))
	src, _ := doc.Find(".trailer iframe").Attr("src")
	assert.Contains(t, src, "/embed/YoHD9XEInc0")
	assert.Equal(t, int32(2), ts.requests.Load())
}

func TestTitlePage_UpstreamFailureIsBadGateway(t *testing.T) {
	ts := newTestApp(t)

	form := url.Values{"username": {"admin"}, "password": {"admin"}}
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	cookies := ts.do(req).Result().Cookies()

	req = httptest.NewRequest(http.MethodGet, "/movie/1", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := ts.do(req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPI_RequiresSession(t *testing.T) {
	ts := newTestApp(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/titles/movie/27205/enrichment", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/static/marquee.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
}

func apiLogin(t *testing.T, ts *testServer, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAccountsAPI_MasterCreatesAccount(t *testing.T) {
	ts := newTestApp(t)
	masterToken := apiLogin(t, ts, "admin", "admin")

	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"username":"viewer","password":"popcorn"}`))
	req.Header.Set("Authorization", "Bearer "+masterToken)
	rec := ts.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	viewerToken := apiLogin(t, ts, "viewer", "popcorn")
	req = httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"username":"other","password":"x"}`))
	req.Header.Set("Authorization", "Bearer "+viewerToken)
	rec = ts.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"username":"x","password":"y"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	ts := newTestApp(t, func(app *application) {
		app.loginLimiter = api.PerMinute(2)
		proxies, err := api.NewProxyPolicy(nil)
		require.NoError(t, err)
		app.proxies = proxies
	})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		last = ts.do(req).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestTitleAPI_NonNumericIDIsBadRequest(t *testing.T) {
	ts := newTestApp(t)
	token := apiLogin(t, ts, "admin", "admin")

	for _, target := range []string{"/api/titles/movie/abc", "/api/titles/tv/12ab/enrichment"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusBadRequest, ts.do(req).Code, target)
	}
	assert.Zero(t, ts.requests.Load())
}
