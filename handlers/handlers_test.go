package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"trackfetch/database"
	"trackfetch/jobs"
	"trackfetch/matching"
)

type stubCatalog struct {
	tracks map[string]matching.TrackMetadata
	albums map[string]matching.AlbumMetadata
}

func (s *stubCatalog) GetTrack(_ context.Context, id string) (matching.TrackMetadata, error) {
	if meta, ok := s.tracks[id]; ok {
		return meta, nil
	}
	return matching.TrackMetadata{}, fmt.Errorf("track %s: %w", id, jobs.ErrNotFound)
}

func (s *stubCatalog) GetAlbum(_ context.Context, id string) (matching.AlbumMetadata, error) {
	if album, ok := s.albums[id]; ok {
		return album, nil
	}
	return matching.AlbumMetadata{}, fmt.Errorf("album %s: %w", id, jobs.ErrNotFound)
}

func (s *stubCatalog) SearchTracks(_ context.Context, query string, _ int) ([]matching.TrackMetadata, error) {
	var out []matching.TrackMetadata
	for _, t := range s.tracks {
		if strings.Contains(strings.ToLower(t.Title), strings.ToLower(query)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubCatalog) SearchAlbums(_ context.Context, query string, _ int) ([]matching.AlbumMetadata, error) {
	return nil, nil
}

// failingCatalog errors on every call without wrapping ErrNotFound, so
// handlers take the upstream-failure path.
type failingCatalog struct{}

func (failingCatalog) GetTrack(context.Context, string) (matching.TrackMetadata, error) {
	return matching.TrackMetadata{}, errors.New("spotify: upstream unavailable")
}

func (failingCatalog) GetAlbum(context.Context, string) (matching.AlbumMetadata, error) {
	return matching.AlbumMetadata{}, errors.New("spotify: upstream unavailable")
}

func (failingCatalog) SearchTracks(context.Context, string, int) ([]matching.TrackMetadata, error) {
	return nil, errors.New("spotify: upstream unavailable")
}

func (failingCatalog) SearchAlbums(context.Context, string, int) ([]matching.AlbumMetadata, error) {
	return nil, errors.New("spotify: upstream unavailable")
}

type stubSearcher struct {
	candidates []matching.Candidate
}

func (s *stubSearcher) SearchCandidates(_ context.Context, _ matching.TrackMetadata) ([]matching.Candidate, error) {
	return s.candidates, nil
}

func (s *stubSearcher) Fetch(_ context.Context, _ matching.TrackMetadata, destPath string, _ string) error {
	return os.WriteFile(destPath, []byte("audio"), 0644)
}

type stubTagger struct{}

func (stubTagger) Apply(_ context.Context, _ string, _ matching.TrackMetadata) error { return nil }

type stubLibrary struct {
	dir string
}

func (s *stubLibrary) TargetPath(meta matching.TrackMetadata, format string) (string, error) {
	return filepath.Join(s.dir, jobs.TrackFilename(meta, format)), nil
}

func (s *stubLibrary) Finalize(_ context.Context, _ string) error { return nil }

type stubHistory struct {
	rows []database.DownloadRecord
}

func (s *stubHistory) RecordDownload(trackID, title, artist, album string, target, filePath string) error {
	s.rows = append(s.rows, database.DownloadRecord{TrackID: trackID, Title: title, FilePath: filePath})
	return nil
}

func (s *stubHistory) GetHistory(limit int) ([]database.DownloadRecord, error) {
	if limit > 0 && limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubHistory) LastDownload(trackID string) (*database.DownloadRecord, error) {
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].TrackID == trackID {
			return &s.rows[i], nil
		}
	}
	return nil, nil
}

var testTrack = matching.TrackMetadata{
	ID:         "track-1",
	Title:      "Shape of You",
	Artists:    []string{"Ed Sheeran"},
	Album:      "Divide",
	DurationMS: 233713,
}

func newTestRouter(t *testing.T) (*gin.Engine, *Manager, *stubHistory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog := &stubCatalog{
		tracks: map[string]matching.TrackMetadata{"track-1": testTrack},
		albums: map[string]matching.AlbumMetadata{
			"album-1": {
				ID:      "album-1",
				Name:    "Divide",
				Artists: []string{"Ed Sheeran"},
				Tracks:  []matching.TrackMetadata{testTrack},
			},
		},
	}
	searcher := &stubSearcher{
		candidates: []matching.Candidate{
			{VideoID: "vid-1", Title: "Ed Sheeran - Shape of You (Official Music Video)", Channel: "Ed Sheeran", Duration: "3:53", Rank: 1},
		},
	}
	history := &stubHistory{}
	jm := jobs.NewManager(catalog, searcher, stubTagger{}, &stubLibrary{dir: t.TempDir()}, history, jobs.Options{
		StagingDir:   t.TempDir(),
		OutputFormat: "mp3",
		FetchTimeout: 5 * time.Second,
		Workers:      2,
	})

	m := NewManager(jm, catalog, searcher, history, "/music")
	router := gin.New()
	m.Register(router)
	return router, m, history
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["spotify_configured"] != true {
		t.Error("expected spotify_configured true")
	}
	if body["navidrome_path"] != "/music" {
		t.Errorf("navidrome_path = %v, want /music", body["navidrome_path"])
	}
}

func TestPostDownloadValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/download", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing track_id status = %d, want 400", w.Code)
	}
}

func TestPostDownloadQueues(t *testing.T) {
	router, m, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/download", `{"track_id":"track-1","location":"local"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}

	// Let the run settle so cleanup has nothing in flight.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := m.Jobs.Tracks.Get("track-1"); ok && r.Terminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never settled")
}

func TestPostDownloadRejectsDuplicate(t *testing.T) {
	router, m, _ := newTestRouter(t)

	// Pin an in-flight record; the submission must not schedule a second run.
	m.Jobs.Tracks.Set("track-1", jobs.JobRecord{
		TrackID: "track-1",
		Status:  jobs.StatusProcessing,
		Stage:   jobs.StageDownloading,
	})
	w := doJSON(t, router, http.MethodPost, "/api/download", `{"track_id":"track-1"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate submit status = %d, want 409", w.Code)
	}
}

func TestGetDownloadStatus(t *testing.T) {
	router, m, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/download/status/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", w.Code)
	}

	m.Jobs.Tracks.Set("track-1", jobs.JobRecord{
		TrackID:  "track-1",
		Status:   jobs.StatusProcessing,
		Stage:    jobs.StageTagging,
		Progress: 85,
	})
	w = doJSON(t, router, http.MethodGet, "/api/download/status/track-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["stage"] != "tagging" || body["progress"] != float64(85) {
		t.Errorf("record = %v, want tagging at 85", body)
	}
}

func TestPostDownloadAlbum(t *testing.T) {
	router, m, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/download/album", `{"album_id":"missing"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown album status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/download/album", `{"album_id":"album-1","location":"navidrome"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("album submit status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["total_tracks"] != float64(1) {
		t.Errorf("total_tracks = %v, want 1", body["total_tracks"])
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := m.Jobs.Albums.Get("album-1"); ok && r.Status == jobs.AlbumCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("album download never settled")
}

func TestGetYoutubeCandidates(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/youtube/candidates/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/youtube/candidates/track-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("candidates status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	candidates, ok := body["candidates"].([]interface{})
	if !ok || len(candidates) != 1 {
		t.Fatalf("candidates = %v, want 1 entry", body["candidates"])
	}
	// Official upload with matching duration should clear the bar.
	if body["auto_selected"] != "vid-1" {
		t.Errorf("auto_selected = %v, want vid-1", body["auto_selected"])
	}
}

func TestGetDownloadFileContract(t *testing.T) {
	router, m, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/download/file/unknown?filename=x.mp3", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", w.Code)
	}

	staging := t.TempDir()
	staged := filepath.Join(staging, "Ed Sheeran - Shape of You.mp3")
	if err := os.WriteFile(staged, []byte("audio-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	m.Jobs.Tracks.Set("track-1", jobs.JobRecord{
		TrackID:  "track-1",
		Status:   jobs.StatusProcessing,
		Target:   jobs.TargetLocal,
		FilePath: staged,
	})
	w = doJSON(t, router, http.MethodGet, "/api/download/file/track-1?filename=Ed+Sheeran+-+Shape+of+You.mp3", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete job status = %d, want 400", w.Code)
	}

	m.Jobs.Tracks.Set("track-1", jobs.JobRecord{
		TrackID:  "track-1",
		Status:   jobs.StatusCompleted,
		Target:   jobs.TargetLocal,
		FilePath: staged,
	})
	w = doJSON(t, router, http.MethodGet, "/api/download/file/track-1?filename=wrong.mp3", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("filename mismatch status = %d, want 400", w.Code)
	}
	if _, err := os.Stat(staged); err != nil {
		t.Fatal("staged file must survive a rejected retrieval")
	}

	w = doJSON(t, router, http.MethodGet, "/api/download/file/track-1?filename=Ed+Sheeran+-+Shape+of+You.mp3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("retrieval status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "audio-bytes" {
		t.Errorf("served body = %q, want staged contents", w.Body.String())
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staged file should be deleted after a successful stream")
	}

	// The record survives for polling, but the file is gone.
	w = doJSON(t, router, http.MethodGet, "/api/download/file/track-1?filename=Ed+Sheeran+-+Shape+of+You.mp3", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second retrieval status = %d, want 404", w.Code)
	}
}

func TestSearchEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/search", `{"query":"shape"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var tracks []matching.TrackMetadata
	if err := json.Unmarshal(w.Body.Bytes(), &tracks); err != nil {
		t.Fatalf("decode search results: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Shape of You" {
		t.Errorf("search results = %v, want Shape of You", tracks)
	}

	w = doJSON(t, router, http.MethodPost, "/api/search", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query status = %d, want 400", w.Code)
	}
}

func TestSearchWithoutCatalog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jm := jobs.NewManager(nil, nil, nil, nil, nil, jobs.Options{StagingDir: t.TempDir()})
	m := NewManager(jm, nil, nil, nil, "")
	router := gin.New()
	m.Register(router)

	w := doJSON(t, router, http.MethodPost, "/api/search", `{"query":"x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("search without catalog status = %d, want 500", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/download", `{"track_id":"t"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("download without catalog status = %d, want 500", w.Code)
	}
}

func TestTrackExists(t *testing.T) {
	router, _, history := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/track/track-1/exists", "")
	body := decodeBody(t, w)
	if body["exists"] != false {
		t.Errorf("exists = %v, want false before any download", body["exists"])
	}

	f := filepath.Join(t.TempDir(), "Ed Sheeran - Shape of You.mp3")
	if err := os.WriteFile(f, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	history.rows = append(history.rows, database.DownloadRecord{TrackID: "track-1", FilePath: f})

	w = doJSON(t, router, http.MethodGet, "/api/track/track-1/exists", "")
	body = decodeBody(t, w)
	if body["exists"] != true || body["file_path"] != f {
		t.Errorf("exists response = %v, want true with path", body)
	}
}

func TestGetHistory(t *testing.T) {
	router, _, history := newTestRouter(t)
	history.rows = []database.DownloadRecord{
		{TrackID: "track-1", Title: "Shape of You"},
		{TrackID: "track-2", Title: "Perfect"},
	}

	w := doJSON(t, router, http.MethodGet, "/api/history?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var rows []database.DownloadRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("history rows = %d, want 1", len(rows))
	}
}

func TestGetTrackUpstreamFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	catalog := failingCatalog{}
	jm := jobs.NewManager(catalog, nil, nil, nil, nil, jobs.Options{StagingDir: t.TempDir()})
	m := NewManager(jm, catalog, nil, nil, "")
	router := gin.New()
	m.Register(router)

	w := doJSON(t, router, http.MethodGet, "/api/track/track-1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("upstream failure status = %d, want 500", w.Code)
	}
	body := decodeBody(t, w)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "upstream unavailable") {
		t.Errorf("error = %q, want the upstream cause surfaced", msg)
	}

	w = doJSON(t, router, http.MethodGet, "/api/album/album-1", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("album upstream failure status = %d, want 500", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/search", `{"query":"x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("search upstream failure status = %d, want 500", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(origins string) *gin.Engine {
		router := gin.New()
		router.Use(CORSMiddleware(origins))
		router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		return router
	}
	do := func(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("wildcard by default", func(t *testing.T) {
		w := do(newRouter(""), http.MethodGet, "http://example.com")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})

	t.Run("configured origin echoed", func(t *testing.T) {
		router := newRouter("http://a.test, http://b.test")
		w := do(router, http.MethodGet, "http://b.test")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://b.test" {
			t.Errorf("Allow-Origin = %q, want http://b.test", got)
		}
		if got := w.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q, want Origin", got)
		}
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		w := do(newRouter("http://a.test"), http.MethodGet, "http://evil.test")
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("preflight short circuits", func(t *testing.T) {
		w := do(newRouter(""), http.MethodOptions, "http://example.com")
		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
			t.Error("preflight missing Allow-Methods header")
		}
	})
}

// brokenWriter fails every body write, standing in for a client that
// dropped the connection mid-transfer.
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header       { return w.header }
func (w *brokenWriter) WriteHeader(int)           {}
func (w *brokenWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestGetDownloadFileAbortKeepsStagedFile(t *testing.T) {
	_, m, _ := newTestRouter(t)

	staged := filepath.Join(t.TempDir(), "Ed Sheeran - Shape of You.mp3")
	if err := os.WriteFile(staged, []byte("audio-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	m.Jobs.Tracks.Set("track-1", jobs.JobRecord{
		TrackID:  "track-1",
		Status:   jobs.StatusCompleted,
		Target:   jobs.TargetLocal,
		FilePath: staged,
	})

	c, _ := gin.CreateTestContext(&brokenWriter{header: http.Header{}})
	c.Request = httptest.NewRequest(http.MethodGet, "/api/download/file/track-1?filename=Ed+Sheeran+-+Shape+of+You.mp3", nil)
	c.Params = gin.Params{{Key: "trackID", Value: "track-1"}}

	m.GetDownloadFile(c)

	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("staged file must survive an aborted stream: %v", err)
	}
	record, ok := m.Jobs.Tracks.Get("track-1")
	if !ok || record.FilePath != staged {
		t.Errorf("record file path = %q, want %q", record.FilePath, staged)
	}
}
