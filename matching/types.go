package matching

// TrackMetadata is the trusted track description from the catalog provider.
// It is treated as ground truth when scoring search candidates.
type TrackMetadata struct {
	ID          string   `json:"id"`
	Title       string   `json:"name"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	AlbumID     string   `json:"album_id"`
	DurationMS  int      `json:"duration_ms"`
	TrackNumber int      `json:"track_number"`
	ReleaseDate string   `json:"release_date"`
	AlbumArtURL string   `json:"album_art,omitempty"`
	ExternalURL string   `json:"external_url,omitempty"`
	PreviewURL  string   `json:"preview_url,omitempty"`
}

// Artist returns the display form of the artist list ("A, B").
func (t TrackMetadata) Artist() string {
	out := ""
	for i, a := range t.Artists {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}

// AlbumMetadata describes an album and its ordered member tracks.
type AlbumMetadata struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []string        `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	AlbumArtURL string          `json:"album_art,omitempty"`
	Tracks      []TrackMetadata `json:"tracks"`
}

// Artist returns the display form of the album artist list.
func (a AlbumMetadata) Artist() string {
	out := ""
	for i, name := range a.Artists {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}

// Candidate is one raw result from the media search provider.
// Rank is the provider's own 1-based result position.
type Candidate struct {
	VideoID  string `json:"video_id"`
	Title    string `json:"title"`
	Channel  string `json:"channel"`
	Duration string `json:"duration"`
	Rank     int    `json:"rank"`
}

// ScoredCandidate is a Candidate plus its component and final scores.
// Never mutated after ScoreCandidate returns it.
type ScoredCandidate struct {
	Candidate
	TitleScore     float64   `json:"title_score"`
	ArtistScore    float64   `json:"artist_score"`
	DurationScore  float64   `json:"duration_score"`
	RankScore      float64   `json:"rank_score"`
	Heuristic      float64   `json:"heuristic"`
	Final          float64   `json:"score"`
	ArtistsMatched int       `json:"artists_matched"`
	ArtistSims     []float64 `json:"artist_similarities,omitempty"`
	AboveThreshold bool      `json:"above_threshold"`
}
