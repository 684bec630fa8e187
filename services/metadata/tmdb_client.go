package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"marquee/models"
)

const (
	defaultTMDBBaseURL = "https://api.themoviedb.org/3"
	defaultLanguage    = "en-US"
	maxErrorBodyBytes  = 512
)

var (
	ErrTitleIDRequired = errors.New("title id required")
	ErrInvalidTitleID  = errors.New("title id must be numeric")
	ErrNotConfigured   = errors.New("tmdb client not configured")
)

// ValidateTitleID trims id and checks that it is a TMDB numeric identifier.
func ValidateTitleID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrTitleIDRequired
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", ErrInvalidTitleID
	}
	return id, nil
}

// HTTPError is a non-2xx response from TMDB.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tmdb %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("tmdb %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// NotFound reports whether TMDB has no such title.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

type tmdbClient struct {
	apiKey   string
	language string
	baseURL  string
	httpc    *http.Client
}

func newTMDBClient(apiKey, lang, baseURL string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultTMDBBaseURL
	}
	return &tmdbClient{
		apiKey:   strings.TrimSpace(apiKey),
		language: normalizeLanguage(lang),
		baseURL:  baseURL,
		httpc:    httpc,
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// normalizeLanguage turns loose locale input ("en", "pt_br") into the
// language-REGION form TMDB expects, inferring the region when missing.
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return defaultLanguage
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return defaultLanguage
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	if base.String() == "und" || region.String() == "ZZ" {
		return defaultLanguage
	}
	return base.String() + "-" + region.String()
}

// tmdbDetail is the union of the movie and tv detail payloads.
type tmdbDetail struct {
	ID                  int64            `json:"id"`
	MediaType           string           `json:"media_type"`
	Title               string           `json:"title"`
	Name                string           `json:"name"`
	Tagline             string           `json:"tagline"`
	Overview            string           `json:"overview"`
	ReleaseDate         string           `json:"release_date"`
	FirstAirDate        string           `json:"first_air_date"`
	VoteAverage         float64          `json:"vote_average"`
	Runtime             int              `json:"runtime"`
	EpisodeRunTime      []int            `json:"episode_run_time"`
	Budget              int64            `json:"budget"`
	Genres              []models.Genre   `json:"genres"`
	ProductionCompanies []models.Company `json:"production_companies"`
	ProductionCountries []models.Country `json:"production_countries"`
	PosterPath          string           `json:"poster_path"`
}

func (d tmdbDetail) toTitle(mediaType models.MediaType) *models.Title {
	title := &models.Title{
		ID:                  d.ID,
		MediaType:           mediaType,
		Title:               firstNonEmpty(d.Title, d.Name),
		Tagline:             d.Tagline,
		Overview:            d.Overview,
		ReleaseDate:         firstNonEmpty(d.ReleaseDate, d.FirstAirDate),
		VoteAverage:         d.VoteAverage,
		Runtime:             d.Runtime,
		Budget:              d.Budget,
		Genres:              d.Genres,
		ProductionCompanies: d.ProductionCompanies,
		ProductionCountries: d.ProductionCountries,
		PosterPath:          d.PosterPath,
	}
	if title.Runtime == 0 && len(d.EpisodeRunTime) > 0 {
		title.Runtime = d.EpisodeRunTime[0]
	}
	if d.MediaType != "" {
		title.MediaType = NormalizeMediaType(d.MediaType)
	}
	return title
}

// titleDetails fetches the detail record for a title.
func (c *tmdbClient) titleDetails(ctx context.Context, mediaType models.MediaType, id string) (*models.Title, error) {
	var detail tmdbDetail
	if err := c.get(ctx, detailPath(mediaType, id), nil, &detail); err != nil {
		return nil, err
	}
	return detail.toTitle(mediaType), nil
}

// enrichment fetches the detail record with embedded videos.
func (c *tmdbClient) enrichment(ctx context.Context, mediaType models.MediaType, id string) (*models.Enrichment, error) {
	q := url.Values{}
	q.Set("append_to_response", "videos")
	var out models.Enrichment
	if err := c.get(ctx, detailPath(mediaType, id), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func detailPath(mediaType models.MediaType, id string) string {
	segment := "movie"
	if mediaType == models.MediaTypeTV {
		segment = "tv"
	}
	return "/" + segment + "/" + url.PathEscape(id)
}

func (c *tmdbClient) get(ctx context.Context, path string, q url.Values, v any) error {
	if !c.isConfigured() {
		return ErrNotConfigured
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.apiKey)
	q.Set("language", c.language)

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build tmdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	log.Printf("[tmdb] GET %s language=%s", endpoint, c.language)
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPError{StatusCode: resp.StatusCode, URL: endpoint, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode tmdb response %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
