package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"trackfetch/matching"
)

// MetadataProvider is the trusted catalog lookup (Spotify in production).
type MetadataProvider interface {
	GetTrack(ctx context.Context, trackID string) (matching.TrackMetadata, error)
	GetAlbum(ctx context.Context, albumID string) (matching.AlbumMetadata, error)
}

// MediaSource searches for and fetches the audio stream for a track.
// Fetch must return an error wrapping ErrNoConfidentMatch when no candidate
// clears the threshold and videoID is empty.
type MediaSource interface {
	SearchCandidates(ctx context.Context, meta matching.TrackMetadata) ([]matching.Candidate, error)
	Fetch(ctx context.Context, meta matching.TrackMetadata, destPath string, videoID string) error
}

// Tagger writes trusted metadata into a downloaded audio file.
type Tagger interface {
	Apply(ctx context.Context, path string, meta matching.TrackMetadata) error
}

// LibraryPublisher places finished files into the managed library and
// triggers its post-ingest scan.
type LibraryPublisher interface {
	TargetPath(meta matching.TrackMetadata, format string) (string, error)
	Finalize(ctx context.Context, path string) error
}

// HistoryRecorder persists a row per completed download. Optional.
type HistoryRecorder interface {
	RecordDownload(trackID, title, artist, album string, target, filePath string) error
}

// Options tunes the download manager.
type Options struct {
	StagingDir   string
	OutputFormat string
	FetchTimeout time.Duration
	Workers      int
}

// Manager owns the track and album job stores and drives download
// orchestration. All mutable state lives in the stores; runs for different
// track ids are fully independent.
type Manager struct {
	metadata MetadataProvider
	source   MediaSource
	tagger   Tagger
	library  LibraryPublisher
	history  HistoryRecorder

	Tracks *TrackStore
	Albums *AlbumStore

	stagingDir   string
	outputFormat string
	fetchTimeout time.Duration
	sem          *semaphore.Weighted
}

func NewManager(metadata MetadataProvider, source MediaSource, tagger Tagger, library LibraryPublisher, history HistoryRecorder, opts Options) *Manager {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	format := opts.OutputFormat
	if format == "" {
		format = "mp3"
	}
	return &Manager{
		metadata:     metadata,
		source:       source,
		tagger:       tagger,
		library:      library,
		history:      history,
		Tracks:       NewTrackStore(),
		Albums:       NewAlbumStore(),
		stagingDir:   opts.StagingDir,
		outputFormat: format,
		fetchTimeout: timeout,
		sem:          semaphore.NewWeighted(int64(workers)),
	}
}

// Configured reports whether the catalog collaborator is usable. Submission
// paths refuse to create jobs without it.
func (m *Manager) Configured() bool {
	return m.metadata != nil
}

// EnqueueTrack registers a queued job for trackID and schedules its run.
// Returns ErrAlreadyQueued when the track is still in flight; re-downloading
// a settled track is allowed and overwrites its terminal record.
func (m *Manager) EnqueueTrack(trackID string, target Target, videoID string) error {
	if !m.Configured() {
		return failure(KindNotConfigured, nil, "catalog provider not configured")
	}

	claimed := m.Tracks.Claim(trackID, JobRecord{
		TrackID:  trackID,
		Status:   StatusQueued,
		Stage:    StageQueued,
		Progress: 0,
		Message:  queuedMessage(target),
		Target:   target,
	})
	if !claimed {
		return fmt.Errorf("track %s: %w", trackID, ErrAlreadyQueued)
	}

	go m.runTrack(trackID, target, videoID)
	return nil
}

func queuedMessage(target Target) string {
	if target == TargetLibrary {
		return "Download queued for Navidrome library"
	}
	return "Download queued for local download"
}

// ReleaseStagedFile removes the staged file for a served local download.
// The claim happens through an atomic store update so concurrent retrieval
// requests delete at most once, and only after a stream has finished.
func (m *Manager) ReleaseStagedFile(trackID string) {
	var path string
	m.Tracks.Update(trackID, func(r *JobRecord) {
		if r.Target != TargetLocal {
			return
		}
		path = r.FilePath
		r.FilePath = ""
		r.DownloadURL = ""
	})
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove staged file %s: %v", path, err)
		return
	}
	// Per-job staging directory; empty once the file is gone.
	if err := os.Remove(filepath.Dir(path)); err != nil && !os.IsNotExist(err) {
		log.Debugf("staging dir %s not removed: %v", filepath.Dir(path), err)
	}
	log.Infof("cleaned up staged file for track %s", trackID)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
