package metadata

import (
	"net/url"
	"strings"

	"marquee/models"
)

const (
	tmdbImageBaseURL = "https://image.tmdb.org/t/p/"
	// PosterSize is the TMDB rendition used on the detail page.
	PosterSize = "w300"

	trailerVideoType = "Trailer"
)

// FindTrailerKey returns the key of the first video whose type is exactly
// "Trailer", or "" when there is none.
func FindTrailerKey(videos []models.Video) string {
	for _, v := range videos {
		if v.Type == trailerVideoType {
			return v.Key
		}
	}
	return ""
}

// PosterURL builds the TMDB image URL for a poster path.
func PosterURL(path, size string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return tmdbImageBaseURL + size + path
}

// TrailerEmbedURL returns a muted, autoplaying YouTube embed with controls.
func TrailerEmbedURL(key string) string {
	if key == "" {
		return ""
	}
	q := url.Values{}
	q.Set("autoplay", "1")
	q.Set("mute", "1")
	q.Set("controls", "1")
	return "https://www.youtube.com/embed/" + url.PathEscape(key) + "?" + q.Encode()
}

// NormalizeMediaType maps loose media type input onto movie or tv. Anything
// that is not a TV alias is a movie.
func NormalizeMediaType(value string) models.MediaType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "tv", "series", "show":
		return models.MediaTypeTV
	default:
		return models.MediaTypeMovie
	}
}
