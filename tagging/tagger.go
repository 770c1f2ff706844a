package tagging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2"
	log "github.com/sirupsen/logrus"

	"trackfetch/matching"
)

// Tagger writes trusted catalog metadata into downloaded audio files as
// ID3v2 frames, including embedded cover art fetched from the album art URL.
type Tagger struct {
	httpClient *http.Client
}

func NewTagger() *Tagger {
	return &Tagger{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Apply tags the file at path with the track's metadata. Only MP3 files
// carry ID3 frames; other formats are left untouched.
func (t *Tagger) Apply(ctx context.Context, path string, meta matching.TrackMetadata) error {
	logger := log.WithFields(log.Fields{"module": "tagging", "track_id": meta.ID})

	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		logger.Debugf("skipping ID3 tags for non-mp3 file %s", path)
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer tag.Close()

	tag.SetTitle(meta.Title)
	tag.SetArtist(meta.Artist())
	tag.SetAlbum(meta.Album)
	if len(meta.Artists) > 0 {
		tag.AddTextFrame("TPE2", id3v2.EncodingUTF8, meta.Artists[0])
	}
	if meta.TrackNumber > 0 {
		tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, strconv.Itoa(meta.TrackNumber))
	}
	if year := releaseYear(meta.ReleaseDate); year != "" {
		tag.AddTextFrame("TYER", id3v2.EncodingUTF8, year)
		tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, meta.ReleaseDate)
	}

	if meta.AlbumArtURL != "" {
		if artwork, mime, err := t.fetchArtwork(ctx, meta.AlbumArtURL); err != nil {
			// Cover art is best effort; the text frames still get saved.
			logger.Warnf("failed to fetch album art: %v", err)
		} else {
			tag.DeleteFrames(tag.CommonID("Attached picture"))
			tag.AddAttachedPicture(id3v2.PictureFrame{
				Encoding:    id3v2.EncodingUTF8,
				MimeType:    mime,
				PictureType: id3v2.PTFrontCover,
				Description: "Cover",
				Picture:     artwork,
			})
		}
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags for %s: %w", path, err)
	}
	logger.Debugf("tagged %s", path)
	return nil
}

func (t *Tagger) fetchArtwork(ctx context.Context, artURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("album art request returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, "", err
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return body, mime, nil
}

// releaseYear extracts the year from Spotify's release date, which may be
// "2017", "2017-03" or "2017-03-03".
func releaseYear(releaseDate string) string {
	if len(releaseDate) < 4 {
		return ""
	}
	year := releaseDate[:4]
	if _, err := strconv.Atoi(year); err != nil {
		return ""
	}
	return year
}
