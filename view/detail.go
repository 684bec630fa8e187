package view

import (
	"context"
	"log"
	"strconv"
	"sync"

	"marquee/models"
	"marquee/services/metadata"
)

// State is the enrichment lifecycle of a mounted Detail.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateEnriched
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateEnriched:
		return "enriched"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Enricher fetches the extended metadata of a title.
type Enricher interface {
	Enrich(ctx context.Context, mediaType models.MediaType, id string) (*models.Enrichment, error)
}

// Detail is the title detail view. It owns the record it was built with and
// the transient enrichment state (trailer key, genres).
type Detail struct {
	mu         sync.Mutex
	title      *models.Title
	key        string
	generation uint64
	state      State
	trailerKey string
	genres     []models.Genre
}

// NewDetail builds an idle view for title. A nil title is allowed; such a
// view never fetches.
func NewDetail(title *models.Title) *Detail {
	return &Detail{
		title:  title,
		key:    title.Key(),
		genres: []models.Genre{},
	}
}

// Mount runs the enrichment fetch once per identity. Later calls, and calls
// on a view without a record, do nothing. A failed fetch is logged and
// leaves the view without trailer and with its original genres.
func (d *Detail) Mount(ctx context.Context, e Enricher) {
	d.mu.Lock()
	if d.title == nil || d.state != StateIdle {
		d.mu.Unlock()
		return
	}
	d.state = StateFetching
	title, key, generation := d.title, d.key, d.generation
	d.mu.Unlock()

	enrichment, err := e.Enrich(ctx, title.MediaType, strconv.FormatInt(title.ID, 10))

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation != generation {
		// remounted with another record while fetching
		return
	}
	if err != nil {
		log.Printf("[view] enrichment failed key=%s: %v", key, err)
		d.state = StateFailed
		return
	}
	if enrichment != nil {
		if enrichment.Videos != nil {
			d.trailerKey = metadata.FindTrailerKey(enrichment.Videos.Results)
		}
		if enrichment.Genres != nil {
			d.genres = enrichment.Genres
		}
	}
	d.state = StateEnriched
}

// Remount swaps the record. The same identity keeps the current state; a
// different identity resets the view to idle so the next Mount fetches again.
func (d *Detail) Remount(title *models.Title) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if title.Key() == d.key {
		d.title = title
		return
	}
	d.title = title
	d.key = title.Key()
	d.generation++
	d.state = StateIdle
	d.trailerKey = ""
	d.genres = []models.Genre{}
}

// Title returns the record the view renders.
func (d *Detail) Title() *models.Title {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// State returns the current lifecycle state.
func (d *Detail) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// TrailerKey returns the trailer video key, empty until enrichment finds one.
func (d *Detail) TrailerKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trailerKey
}

// Genres returns the genre state set by enrichment. The rendered page lists
// the record's genres instead; see Renderer.Detail.
func (d *Detail) Genres() []models.Genre {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Genre, len(d.genres))
	copy(out, d.genres)
	return out
}
