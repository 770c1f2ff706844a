package spotify

import (
	"context"
	"fmt"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	spotifyclient "github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"trackfetch/config"
	"trackfetch/jobs"
	"trackfetch/matching"
)

// Client wraps the Spotify Web API as the trusted catalog provider.
type Client struct {
	api *spotifyclient.Client
}

// NewClient authenticates with the client-credentials flow. Fails when the
// credentials are missing or the token endpoint rejects them.
func NewClient(ctx context.Context) (*Client, error) {
	cfg := config.Config.Spotify
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify credentials not configured: set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	token, err := creds.Token(ctx)
	if err != nil {
		sentry.CaptureException(err)
		return nil, fmt.Errorf("spotify auth failed: %w", err)
	}

	httpClient := spotifyauth.New().Client(ctx, token)
	return &Client{api: spotifyclient.New(httpClient)}, nil
}

// GetTrack fetches the trusted metadata for one track id.
func (c *Client) GetTrack(ctx context.Context, trackID string) (matching.TrackMetadata, error) {
	log.Tracef("Fetching track from Spotify API: %s", trackID)

	span := sentry.StartSpan(ctx, "spotify.get_track")
	span.Description = "Get track from Spotify API"
	span.SetTag("track_id", trackID)
	defer span.Finish()

	track, err := c.api.GetTrack(ctx, spotifyclient.ID(trackID))
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		if isNotFound(err) {
			return matching.TrackMetadata{}, fmt.Errorf("track %s: %w", trackID, jobs.ErrNotFound)
		}
		log.Errorf("Failed to fetch Spotify track %s: %v", trackID, err)
		sentry.CaptureException(err)
		return matching.TrackMetadata{}, err
	}

	span.Status = sentry.SpanStatusOK
	meta := fullTrackMetadata(track)
	log.Debugf("Successfully fetched Spotify track: '%s' by %v", meta.Title, meta.Artists)
	return meta, nil
}

// GetAlbum fetches an album with its full ordered track list.
func (c *Client) GetAlbum(ctx context.Context, albumID string) (matching.AlbumMetadata, error) {
	log.Tracef("Fetching album from Spotify API: %s", albumID)

	span := sentry.StartSpan(ctx, "spotify.get_album")
	span.Description = "Get album from Spotify API"
	span.SetTag("album_id", albumID)
	defer span.Finish()

	album, err := c.api.GetAlbum(ctx, spotifyclient.ID(albumID))
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		if isNotFound(err) {
			return matching.AlbumMetadata{}, fmt.Errorf("album %s: %w", albumID, jobs.ErrNotFound)
		}
		log.Errorf("Failed to fetch Spotify album %s: %v", albumID, err)
		sentry.CaptureException(err)
		return matching.AlbumMetadata{}, err
	}

	artists := artistNames(album.Artists)
	art := largestImage(album.Images)

	tracks := make([]matching.TrackMetadata, 0, len(album.Tracks.Tracks))
	for _, t := range album.Tracks.Tracks {
		tracks = append(tracks, matching.TrackMetadata{
			ID:          string(t.ID),
			Title:       t.Name,
			Artists:     artistNames(t.Artists),
			Album:       album.Name,
			AlbumID:     string(album.ID),
			DurationMS:  int(t.Duration),
			TrackNumber: int(t.TrackNumber),
			ReleaseDate: album.ReleaseDate,
			AlbumArtURL: art,
			ExternalURL: t.ExternalURLs["spotify"],
			PreviewURL:  t.PreviewURL,
		})
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("tracks_count", len(tracks))
	log.Debugf("Successfully fetched Spotify album '%s' with %d tracks", album.Name, len(tracks))

	return matching.AlbumMetadata{
		ID:          string(album.ID),
		Name:        album.Name,
		Artists:     artists,
		ReleaseDate: album.ReleaseDate,
		TotalTracks: int(album.Tracks.Total),
		AlbumArtURL: art,
		Tracks:      tracks,
	}, nil
}

// SearchTracks runs a free-text track search against the catalog.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]matching.TrackMetadata, error) {
	span := sentry.StartSpan(ctx, "spotify.search_tracks")
	span.Description = "Search Spotify API"
	span.SetTag("query", query)
	defer span.Finish()

	if limit <= 0 || limit > 50 {
		limit = 20
	}
	results, err := c.api.Search(ctx, query, spotifyclient.SearchTypeTrack, spotifyclient.Limit(limit))
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("spotify search failed: %w", err)
	}

	tracks := make([]matching.TrackMetadata, 0)
	if results.Tracks != nil {
		for i := range results.Tracks.Tracks {
			tracks = append(tracks, fullTrackMetadata(&results.Tracks.Tracks[i]))
		}
	}
	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(tracks))
	return tracks, nil
}

// SearchAlbums runs a free-text album search against the catalog.
func (c *Client) SearchAlbums(ctx context.Context, query string, limit int) ([]matching.AlbumMetadata, error) {
	span := sentry.StartSpan(ctx, "spotify.search_albums")
	span.Description = "Search Spotify API for albums"
	span.SetTag("query", query)
	defer span.Finish()

	if limit <= 0 || limit > 50 {
		limit = 20
	}
	results, err := c.api.Search(ctx, query, spotifyclient.SearchTypeAlbum, spotifyclient.Limit(limit))
	if err != nil {
		sentry.CaptureException(err)
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("spotify album search failed: %w", err)
	}

	albums := make([]matching.AlbumMetadata, 0)
	if results.Albums != nil {
		for _, a := range results.Albums.Albums {
			albums = append(albums, matching.AlbumMetadata{
				ID:          string(a.ID),
				Name:        a.Name,
				Artists:     artistNames(a.Artists),
				ReleaseDate: a.ReleaseDate,
				TotalTracks: int(a.TotalTracks),
				AlbumArtURL: largestImage(a.Images),
			})
		}
	}
	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(albums))
	return albums, nil
}

func fullTrackMetadata(track *spotifyclient.FullTrack) matching.TrackMetadata {
	return matching.TrackMetadata{
		ID:          string(track.ID),
		Title:       track.Name,
		Artists:     artistNames(track.Artists),
		Album:       track.Album.Name,
		AlbumID:     string(track.Album.ID),
		DurationMS:  int(track.Duration),
		TrackNumber: int(track.TrackNumber),
		ReleaseDate: track.Album.ReleaseDate,
		AlbumArtURL: largestImage(track.Album.Images),
		ExternalURL: track.ExternalURLs["spotify"],
		PreviewURL:  track.PreviewURL,
	}
}

func artistNames(artists []spotifyclient.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// largestImage returns the first image URL; Spotify sorts by size descending.
func largestImage(images []spotifyclient.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// isNotFound parses error strings because the zmb3/spotify client does not
// expose typed errors.
func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "404") ||
		strings.Contains(msg, "Not Found") ||
		strings.Contains(msg, "non existing id") ||
		strings.Contains(msg, "invalid id")
}
