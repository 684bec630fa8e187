package models

import "strconv"

// MediaType distinguishes movies from TV series.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Genre is a TMDB genre entry.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Company is a production company credited on a title.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Country is a production country. TMDB identifies countries by ISO code,
// the page only shows the name.
type Country struct {
	ISO3166 string `json:"iso_3166_1,omitempty"`
	Name    string `json:"name"`
}

// Title is the detail record for a movie or TV series. It is built once per
// request and treated as read-only afterwards.
type Title struct {
	ID                  int64     `json:"id"`
	MediaType           MediaType `json:"media_type"`
	Title               string    `json:"title"`
	Tagline             string    `json:"tagline,omitempty"`
	Overview            string    `json:"overview"`
	ReleaseDate         string    `json:"release_date"`
	VoteAverage         float64   `json:"vote_average"`
	Runtime             int       `json:"runtime"`
	Budget              int64     `json:"budget,omitempty"`
	Genres              []Genre   `json:"genres"`
	ProductionCompanies []Company `json:"production_companies"`
	ProductionCountries []Country `json:"production_countries"`
	PosterPath          string    `json:"poster_path,omitempty"`
}

// Key identifies a title across media types ("movie:27205").
func (t *Title) Key() string {
	if t == nil {
		return ""
	}
	return TitleKey(t.MediaType, strconv.FormatInt(t.ID, 10))
}

// TitleKey builds the identity key for a media type and identifier.
func TitleKey(mediaType MediaType, id string) string {
	return string(mediaType) + ":" + id
}

// TitleQuery names a single title lookup.
type TitleQuery struct {
	MediaType MediaType `json:"mediaType"`
	ID        string    `json:"id"`
}

// BatchTitleItem is one result of a batch lookup.
type BatchTitleItem struct {
	Query TitleQuery `json:"query"`
	Title *Title     `json:"title,omitempty"`
	Error string     `json:"error,omitempty"`
}

// BatchTitleRequest is the body of a batch lookup.
type BatchTitleRequest struct {
	Queries []TitleQuery `json:"queries"`
}

// BatchTitleResponse wraps the per-item results of a batch lookup.
type BatchTitleResponse struct {
	Results []BatchTitleItem `json:"results"`
}
