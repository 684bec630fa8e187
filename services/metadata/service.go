package metadata

import (
	"context"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"marquee/models"
)

const (
	defaultEnrichmentTTL    = 10 * time.Minute
	defaultBatchConcurrency = 4

	// MaxBatchSize is the largest number of queries looked up per batch.
	MaxBatchSize = 50
)

var ErrBatchTooLarge = errors.New("batch exceeds the query limit")

// Options configures a Service. APIKey is required for any lookup.
type Options struct {
	APIKey           string
	Language         string
	BaseURL          string
	HTTPClient       *http.Client
	Fs               afero.Fs
	CacheDir         string
	TTLHours         int
	EnrichmentTTL    time.Duration
	BatchConcurrency int
}

// Service looks titles up on TMDB. Detail records are cached on disk and
// enrichment results are memoized in memory per (media type, id).
type Service struct {
	tmdb  *tmdbClient
	cache *fileCache

	flight singleflight.Group

	memoMu        sync.Mutex
	memo          map[string]enrichmentEntry
	enrichmentTTL time.Duration
	now           func() time.Time

	batchConcurrency int
}

type enrichmentEntry struct {
	value     *models.Enrichment
	fetchedAt time.Time
}

// NewService builds a Service from opts.
func NewService(opts Options) *Service {
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	ttl := opts.EnrichmentTTL
	if ttl <= 0 {
		ttl = defaultEnrichmentTTL
	}
	concurrency := opts.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	return &Service{
		tmdb:             newTMDBClient(opts.APIKey, opts.Language, opts.BaseURL, opts.HTTPClient),
		cache:            newFileCache(fs, filepath.Join(opts.CacheDir, "metadata"), opts.TTLHours),
		memo:             make(map[string]enrichmentEntry),
		enrichmentTTL:    ttl,
		now:              time.Now,
		batchConcurrency: concurrency,
	}
}

// Language returns the normalized locale sent to TMDB.
func (s *Service) Language() string {
	return s.tmdb.language
}

// TitleDetails returns the detail record for a title. Concurrent lookups of
// the same title share one upstream request; the shared request is detached
// from any single caller, so a caller that goes away only abandons its own
// wait.
func (s *Service) TitleDetails(ctx context.Context, mediaType models.MediaType, id string) (*models.Title, error) {
	id, err := ValidateTitleID(id)
	if err != nil {
		return nil, err
	}

	key := cacheKey("tmdb", "details", "v1", s.tmdb.language, string(mediaType), id)
	var cached models.Title
	if ok, _ := s.cache.get(key, &cached); ok {
		log.Printf("[metadata] details cache hit type=%s id=%s", mediaType, id)
		return &cached, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	v, _, err := s.shared(ctx, "details:"+key, func() (any, error) {
		title, err := s.tmdb.titleDetails(fetchCtx, mediaType, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.set(key, title); err != nil {
			log.Printf("[metadata] failed to cache details type=%s id=%s: %v", mediaType, id, err)
		}
		return title, nil
	})
	if err != nil {
		log.Printf("[metadata] details fetch failed type=%s id=%s err=%v", mediaType, id, err)
		return nil, err
	}
	return v.(*models.Title), nil
}

// Enrich returns the videos and genres of a title. Results are memoized by
// identifier for the enrichment TTL; errors are not memoized.
func (s *Service) Enrich(ctx context.Context, mediaType models.MediaType, id string) (*models.Enrichment, error) {
	id, err := ValidateTitleID(id)
	if err != nil {
		return nil, err
	}
	key := s.tmdb.language + "|" + models.TitleKey(mediaType, id)

	s.memoMu.Lock()
	entry, ok := s.memo[key]
	if ok && s.now().Sub(entry.fetchedAt) < s.enrichmentTTL {
		s.memoMu.Unlock()
		return entry.value, nil
	}
	s.memoMu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	v, shared, err := s.shared(ctx, "enrich:"+key, func() (any, error) {
		enrichment, err := s.tmdb.enrichment(fetchCtx, mediaType, id)
		if err != nil {
			return nil, err
		}
		s.memoMu.Lock()
		s.memo[key] = enrichmentEntry{value: enrichment, fetchedAt: s.now()}
		s.memoMu.Unlock()
		return enrichment, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("[metadata] enrichment shared inflight type=%s id=%s", mediaType, id)
	}
	return v.(*models.Enrichment), nil
}

// shared runs fn once per key across concurrent callers. Each caller waits
// until the result is ready or its own ctx is done.
func (s *Service) shared(ctx context.Context, key string, fn func() (any, error)) (any, bool, error) {
	select {
	case res := <-s.flight.DoChan(key, fn):
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// BatchTitleDetails resolves several titles with bounded concurrency.
// Results keep the order of queries; failures are reported per item, and
// queries past MaxBatchSize are answered with ErrBatchTooLarge without a
// lookup.
func (s *Service) BatchTitleDetails(ctx context.Context, queries []models.TitleQuery) []models.BatchTitleItem {
	results := make([]models.BatchTitleItem, len(queries))

	p := pool.New().WithMaxGoroutines(s.batchConcurrency)
	for i, q := range queries {
		q.MediaType = NormalizeMediaType(string(q.MediaType))
		results[i].Query = q
		if i >= MaxBatchSize {
			results[i].Error = ErrBatchTooLarge.Error()
			continue
		}
		p.Go(func() {
			title, err := s.TitleDetails(ctx, q.MediaType, q.ID)
			if err != nil {
				results[i].Error = err.Error()
				return
			}
			results[i].Title = title
		})
	}
	p.Wait()
	return results
}

// PurgeEnrichment drops memoized enrichment results older than the TTL.
func (s *Service) PurgeEnrichment() int {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	removed := 0
	now := s.now()
	for key, entry := range s.memo {
		if now.Sub(entry.fetchedAt) >= s.enrichmentTTL {
			delete(s.memo, key)
			removed++
		}
	}
	return removed
}

// ClearCache removes cached detail records and memoized enrichment.
func (s *Service) ClearCache() error {
	s.memoMu.Lock()
	s.memo = make(map[string]enrichmentEntry)
	s.memoMu.Unlock()
	return s.cache.clear()
}
