package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"marquee/internal/auth"
	"marquee/models"
	"marquee/services/metadata"
	"marquee/view"
)

type titleService interface {
	TitleDetails(ctx context.Context, mediaType models.MediaType, id string) (*models.Title, error)
	Enrich(ctx context.Context, mediaType models.MediaType, id string) (*models.Enrichment, error)
	BatchTitleDetails(ctx context.Context, queries []models.TitleQuery) []models.BatchTitleItem
}

var _ titleService = (*metadata.Service)(nil)

type sessionValidator interface {
	Validate(token string) (models.Session, error)
}

// Redirect tells the page handler to send the client elsewhere instead of
// rendering.
type Redirect struct {
	Destination string
	Permanent   bool
}

// PageProps is what the loader hands to the detail view.
type PageProps struct {
	ID    string
	Title *models.Title
}

// LoadResult carries exactly one of Redirect or Props.
type LoadResult struct {
	Redirect *Redirect
	Props    *PageProps
}

// TitleHandler serves the title pages and the title API.
type TitleHandler struct {
	Titles     titleService
	Sessions   sessionValidator
	Renderer   *view.Renderer
	CookieName string
	AuthPath   string
}

func NewTitleHandler(titles titleService, sessions sessionValidator, renderer *view.Renderer, cookieName, authPath string) *TitleHandler {
	return &TitleHandler{
		Titles:     titles,
		Sessions:   sessions,
		Renderer:   renderer,
		CookieName: cookieName,
		AuthPath:   authPath,
	}
}

// ResolveTitleID returns the first element of the route parameter
// collection, or "" when there is none.
func ResolveTitleID(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func routeTitleID(r *http.Request) string {
	if id, ok := mux.Vars(r)["id"]; ok {
		return ResolveTitleID([]string{id})
	}
	return ResolveTitleID(r.URL.Query()["id"])
}

// Load checks the session and fetches the detail record. Requests without a
// valid session get a temporary redirect to the auth path and no fetch.
// Fetch errors are returned as is.
func (h *TitleHandler) Load(r *http.Request, mediaType models.MediaType) (LoadResult, error) {
	token := auth.TokenFromRequest(r, h.CookieName)
	if _, err := h.Sessions.Validate(token); err != nil {
		return LoadResult{Redirect: &Redirect{Destination: h.AuthPath, Permanent: false}}, nil
	}

	id := routeTitleID(r)
	title, err := h.Titles.TitleDetails(r.Context(), mediaType, id)
	if err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Props: &PageProps{ID: id, Title: title}}, nil
}

// MoviePage renders /movie/{id}.
func (h *TitleHandler) MoviePage(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, models.MediaTypeMovie)
}

// TVPage renders /tv/{id}.
func (h *TitleHandler) TVPage(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, models.MediaTypeTV)
}

func (h *TitleHandler) page(w http.ResponseWriter, r *http.Request, mediaType models.MediaType) {
	result, err := h.Load(r, mediaType)
	if err != nil {
		log.Printf("[titles] load %s %q failed: %v", mediaType, routeTitleID(r), err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	if result.Redirect != nil {
		status := http.StatusTemporaryRedirect
		if result.Redirect.Permanent {
			status = http.StatusPermanentRedirect
		}
		http.Redirect(w, r, result.Redirect.Destination, status)
		return
	}
	if result.Props == nil || result.Props.Title == nil {
		log.Printf("[titles] load %s %q returned no title", mediaType, routeTitleID(r))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	detail := view.NewDetail(result.Props.Title)
	detail.Mount(r.Context(), h.Titles)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.Renderer.Detail(w, detail); err != nil {
		log.Printf("[titles] render %s %q failed: %v", mediaType, result.Props.ID, err)
	}
}

// Details serves the detail record as JSON.
func (h *TitleHandler) Details(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaType := metadata.NormalizeMediaType(vars["mediaType"])

	title, err := h.Titles.TitleDetails(r.Context(), mediaType, vars["id"])
	if err != nil {
		writeJSON(w, statusForFetchError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, title)
}

// Enrichment serves the trailer key, genres and videos of a title.
func (h *TitleHandler) Enrichment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mediaType := metadata.NormalizeMediaType(vars["mediaType"])

	enrichment, err := h.Titles.Enrich(r.Context(), mediaType, vars["id"])
	if err != nil {
		writeJSON(w, statusForFetchError(err), map[string]string{"error": err.Error()})
		return
	}

	resp := models.EnrichmentResponse{
		Genres: enrichment.Genres,
		Videos: []models.Video{},
	}
	if enrichment.Videos != nil && enrichment.Videos.Results != nil {
		resp.Videos = enrichment.Videos.Results
	}
	resp.TrailerKey = metadata.FindTrailerKey(resp.Videos)
	writeJSON(w, http.StatusOK, resp)
}

// Batch resolves several titles in one request.
func (h *TitleHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Queries) > metadata.MaxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d queries", metadata.MaxBatchSize)})
		return
	}
	for i := range req.Queries {
		req.Queries[i].MediaType = metadata.NormalizeMediaType(string(req.Queries[i].MediaType))
		req.Queries[i].ID = strings.TrimSpace(req.Queries[i].ID)
	}

	results := h.Titles.BatchTitleDetails(r.Context(), req.Queries)
	writeJSON(w, http.StatusOK, models.BatchTitleResponse{Results: results})
}
