package models

// Video is an entry of the TMDB "videos" collection.
type Video struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// VideoResults mirrors the nested {"results": [...]} wrapper TMDB uses.
type VideoResults struct {
	Results []Video `json:"results"`
}

// Enrichment is the extended metadata fetched after the initial record:
// embedded videos and the provider's genre list. Genres is nil when the
// provider response omitted the field.
type Enrichment struct {
	Videos *VideoResults `json:"videos,omitempty"`
	Genres []Genre       `json:"genres"`
}

// EnrichmentResponse is the JSON shape served to clients.
type EnrichmentResponse struct {
	TrailerKey string  `json:"trailerKey,omitempty"`
	Genres     []Genre `json:"genres"`
	Videos     []Video `json:"videos"`
}
