package navidrome

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"trackfetch/config"
	"trackfetch/jobs"
	"trackfetch/matching"
)

// Publisher places finished tracks into the Navidrome music folder and asks
// the server to rescan its library over the Subsonic API.
type Publisher struct {
	musicPath  string
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewPublisher(cfg *config.NavidromeConfig) *Publisher {
	return &Publisher{
		musicPath:  cfg.MusicPath,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TargetPath returns the destination for a track inside the music folder,
// laid out as Artist/Album/filename.
func (p *Publisher) TargetPath(meta matching.TrackMetadata, format string) (string, error) {
	if p.musicPath == "" {
		return "", fmt.Errorf("navidrome music path is not configured")
	}
	artist := meta.Artist()
	if artist == "" {
		artist = "Unknown Artist"
	}
	album := meta.Album
	if album == "" {
		album = "Unknown Album"
	}
	return filepath.Join(p.musicPath, jobs.SanitizeFilename(artist), jobs.SanitizeFilename(album), jobs.TrackFilename(meta, format)), nil
}

// Finalize triggers a library scan so the new file shows up without waiting
// for Navidrome's periodic watcher.
func (p *Publisher) Finalize(ctx context.Context, path string) error {
	if p.baseURL == "" || p.username == "" || p.password == "" {
		log.WithFields(log.Fields{"module": "navidrome"}).Debug("no server credentials, skipping scan trigger")
		return nil
	}

	endpoint, err := p.subsonicURL("startScan")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach navidrome: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("navidrome scan returned %s", resp.Status)
	}

	var body struct {
		SubsonicResponse struct {
			Status string `json:"status"`
			Error  struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"subsonic-response"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("unexpected navidrome response: %w", err)
	}
	if body.SubsonicResponse.Status != "ok" {
		return fmt.Errorf("navidrome scan failed: %s", body.SubsonicResponse.Error.Message)
	}

	log.WithFields(log.Fields{"module": "navidrome", "path": path}).Info("triggered library scan")
	return nil
}

// subsonicURL builds a Subsonic API URL with salted token authentication.
func (p *Publisher) subsonicURL(method string) (string, error) {
	saltBytes := make([]byte, 8)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", err
	}
	salt := hex.EncodeToString(saltBytes)
	token := md5.Sum([]byte(p.password + salt))

	params := url.Values{}
	params.Set("u", p.username)
	params.Set("t", hex.EncodeToString(token[:]))
	params.Set("s", salt)
	params.Set("v", "1.16.1")
	params.Set("c", "trackfetch")
	params.Set("f", "json")

	return fmt.Sprintf("%s/rest/%s?%s", p.baseURL, method, params.Encode()), nil
}
