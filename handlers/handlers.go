package handlers

// handlers wires the HTTP API: download submission and polling, album
// downloads, candidate listing for manual selection, staged file retrieval
// and the Spotify search/browse endpoints.

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"trackfetch/database"
	"trackfetch/jobs"
	"trackfetch/matching"
	"trackfetch/sentry"
)

// Catalog is the trusted metadata and search provider.
type Catalog interface {
	GetTrack(ctx context.Context, trackID string) (matching.TrackMetadata, error)
	GetAlbum(ctx context.Context, albumID string) (matching.AlbumMetadata, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]matching.TrackMetadata, error)
	SearchAlbums(ctx context.Context, query string, limit int) ([]matching.AlbumMetadata, error)
}

// CandidateSearcher lists raw media search results for a track.
type CandidateSearcher interface {
	SearchCandidates(ctx context.Context, meta matching.TrackMetadata) ([]matching.Candidate, error)
}

// History reads back persisted download rows. Optional.
type History interface {
	GetHistory(limit int) ([]database.DownloadRecord, error)
	LastDownload(trackID string) (*database.DownloadRecord, error)
}

type Manager struct {
	Jobs    *jobs.Manager
	Catalog Catalog
	Search  CandidateSearcher
	History History

	MusicPath string
}

func NewManager(jobsManager *jobs.Manager, catalog Catalog, search CandidateSearcher, history History, musicPath string) *Manager {
	return &Manager{
		Jobs:      jobsManager,
		Catalog:   catalog,
		Search:    search,
		History:   history,
		MusicPath: musicPath,
	}
}

// Register installs all API routes on the router.
func (m *Manager) Register(router *gin.Engine) {
	api := router.Group("/api")

	api.POST("/download", m.PostDownload)
	api.GET("/download/status/:trackID", m.GetDownloadStatus)
	api.POST("/download/album", m.PostDownloadAlbum)
	api.GET("/download/album/status/:albumID", m.GetAlbumDownloadStatus)
	api.GET("/download/file/:trackID", m.GetDownloadFile)
	api.GET("/youtube/candidates/:trackID", m.GetYoutubeCandidates)

	api.POST("/search", m.PostSearch)
	api.POST("/search/albums", m.PostSearchAlbums)
	api.GET("/track/:trackID", m.GetTrack)
	api.GET("/album/:albumID", m.GetAlbum)
	api.GET("/track/:trackID/exists", m.GetTrackExists)
	api.GET("/health", m.GetHealth)
	api.GET("/history", m.GetHistory)
}

// CORSMiddleware allows the origins configured through CORS_ORIGINS
// (comma-separated). Empty or "*" allows any origin.
func CORSMiddleware(origins string) gin.HandlerFunc {
	allowAll := origins == "" || origins == "*"
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type downloadRequest struct {
	TrackID  string `json:"track_id" binding:"required"`
	Location string `json:"location"`
	VideoID  string `json:"video_id"`
}

type albumDownloadRequest struct {
	AlbumID  string `json:"album_id" binding:"required"`
	Location string `json:"location"`
}

type searchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

func locationMessage(target jobs.Target) string {
	if target == jobs.TargetLibrary {
		return "Navidrome server"
	}
	return "local downloads folder"
}

// PostDownload queues a single track download.
func (m *Manager) PostDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track_id is required"})
		return
	}

	target := jobs.ParseTarget(req.Location)
	if err := m.Jobs.EnqueueTrack(req.TrackID, target, req.VideoID); err != nil {
		if errors.Is(err, jobs.ErrAlreadyQueued) {
			c.JSON(http.StatusConflict, gin.H{"error": "Download already in progress for this track"})
			return
		}
		var f *jobs.Failure
		if errors.As(err, &f) && f.Kind == jobs.KindNotConfigured {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
			return
		}
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "queued",
		"message":  "Download started to " + locationMessage(target),
		"track_id": req.TrackID,
	})
}

// GetDownloadStatus reports the job record for a submitted track.
func (m *Manager) GetDownloadStatus(c *gin.Context) {
	record, ok := m.Jobs.Tracks.Get(c.Param("trackID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// PostDownloadAlbum queues every track of an album.
func (m *Manager) PostDownloadAlbum(c *gin.Context) {
	var req albumDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "album_id is required"})
		return
	}

	target := jobs.ParseTarget(req.Location)
	album, err := m.Jobs.EnqueueAlbum(req.AlbumID, target)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Album not found"})
			return
		}
		var f *jobs.Failure
		if errors.As(err, &f) && f.Kind == jobs.KindNotConfigured {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
			return
		}
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "queued",
		"message":      "Album '" + album.Name + "' queued for download to " + locationMessage(target),
		"album_id":     req.AlbumID,
		"total_tracks": len(album.Tracks),
	})
}

// GetAlbumDownloadStatus reports aggregate progress for an album download.
func (m *Manager) GetAlbumDownloadStatus(c *gin.Context) {
	record, ok := m.Jobs.Albums.Get(c.Param("albumID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Album download not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetYoutubeCandidates returns the scored search candidates for a track so
// the client can pick one manually when automatic matching is not confident.
func (m *Manager) GetYoutubeCandidates(c *gin.Context) {
	if m.Catalog == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
		return
	}
	trackID := c.Param("trackID")

	meta, err := m.Catalog.GetTrack(c.Request.Context(), trackID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Track not found"})
			return
		}
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching track: " + err.Error()})
		return
	}

	candidates, err := m.Search.SearchCandidates(c.Request.Context(), meta)
	if err != nil {
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error searching YouTube: " + err.Error()})
		return
	}

	scored := matching.ScoreAll(meta, candidates)
	var autoSelected interface{}
	if len(scored) > 0 && scored[0].AboveThreshold {
		autoSelected = scored[0].VideoID
	}

	c.JSON(http.StatusOK, gin.H{
		"track": gin.H{
			"id":     trackID,
			"name":   meta.Title,
			"artist": meta.Artist(),
			"album":  meta.Album,
		},
		"candidates":    scored,
		"auto_selected": autoSelected,
		"threshold":     matching.AcceptThreshold,
	})
}

// GetDownloadFile streams a staged file to the browser, then deletes it.
// The filename parameter must match the staged file exactly.
func (m *Manager) GetDownloadFile(c *gin.Context) {
	trackID := c.Param("trackID")
	record, ok := m.Jobs.Tracks.Get(trackID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Download not found"})
		return
	}
	if record.Status != jobs.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File not ready for download"})
		return
	}

	filePath := record.FilePath
	if filePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	filename := c.Query("filename")
	actual := filepath.Base(filePath)
	if filename != actual {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename. Expected: " + actual})
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "audio/mpeg")
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, file); err != nil {
		// Client went away mid-transfer. Keep the staged file so the
		// retrieval can be retried.
		log.Warnf("retrieval stream for %s aborted: %v", trackID, err)
		return
	}

	// The body is fully written; safe to drop the staged copy.
	if record.Target == jobs.TargetLocal {
		m.Jobs.ReleaseStagedFile(trackID)
	}
}

// PostSearch runs a Spotify track search.
func (m *Manager) PostSearch(c *gin.Context) {
	if m.Catalog == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	tracks, err := m.Catalog.SearchTracks(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, tracks)
}

// PostSearchAlbums runs a Spotify album search.
func (m *Manager) PostSearchAlbums(c *gin.Context) {
	if m.Catalog == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	albums, err := m.Catalog.SearchAlbums(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Album search failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, albums)
}

// GetTrack returns trusted metadata for one track.
func (m *Manager) GetTrack(c *gin.Context) {
	if m.Catalog == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
		return
	}
	meta, err := m.Catalog.GetTrack(c.Request.Context(), c.Param("trackID"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Track not found"})
			return
		}
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching track: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// GetAlbum returns album metadata including the full track list.
func (m *Manager) GetAlbum(c *gin.Context) {
	if m.Catalog == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Spotify service not configured"})
		return
	}
	album, err := m.Catalog.GetAlbum(c.Request.Context(), c.Param("albumID"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Album not found"})
			return
		}
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching album: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, album)
}

// GetTrackExists checks whether a track is already present in the library,
// using the download history as the source of truth.
func (m *Manager) GetTrackExists(c *gin.Context) {
	trackID := c.Param("trackID")

	if m.History != nil {
		if rec, err := m.History.LastDownload(trackID); err != nil {
			log.Warnf("exists check failed for %s: %v", trackID, err)
		} else if rec != nil && rec.FilePath != "" {
			if _, err := os.Stat(rec.FilePath); err == nil {
				c.JSON(http.StatusOK, gin.H{"exists": true, "file_path": rec.FilePath})
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"exists": false})
}

// GetHealth is the liveness endpoint.
func (m *Manager) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"spotify_configured": m.Catalog != nil,
		"navidrome_path":     m.MusicPath,
	})
}

// GetHistory lists recent downloads, newest first.
func (m *Manager) GetHistory(c *gin.Context) {
	if m.History == nil {
		c.JSON(http.StatusOK, []database.DownloadRecord{})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := m.History.GetHistory(limit)
	if err != nil {
		sentry.ReportError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history: " + err.Error()})
		return
	}
	if records == nil {
		records = []database.DownloadRecord{}
	}
	c.JSON(http.StatusOK, records)
}
