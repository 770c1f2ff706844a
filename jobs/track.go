package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	sentry "github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trackfetch/matching"
)

// runTrack executes the full state machine for one track in the calling
// goroutine's place, bounded by the shared worker semaphore.
func (m *Manager) runTrack(trackID string, target Target, videoID string) {
	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		m.failTrack(trackID, failure(KindUnknown, err, "worker pool unavailable"))
		return
	}
	defer m.sem.Release(1)
	m.executeTrack(trackID, target, videoID)
}

// executeTrack assumes a worker slot is already held.
func (m *Manager) executeTrack(trackID string, target Target, videoID string) {
	logger := log.WithFields(log.Fields{"module": "jobs", "track_id": trackID, "target": target})

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic in download run: %v", r)
			sentry.CaptureException(fmt.Errorf("panic in download run for %s: %v", trackID, r))
			m.failTrack(trackID, failure(KindUnknown, nil, "Error: %v", r))
		}
	}()

	span := sentry.StartSpan(context.Background(), "jobs.download_track")
	span.Description = "Download and process one track"
	span.SetTag("track_id", trackID)
	defer span.Finish()

	if f := m.process(span.Context(), trackID, target, videoID); f != nil {
		logger.Errorf("download failed (%s): %v", f.Kind, f)
		if f.Kind == KindUnknown {
			sentry.CaptureException(f)
		}
		span.Status = sentry.SpanStatusInternalError
		m.failTrack(trackID, f)
		return
	}
	span.Status = sentry.SpanStatusOK
	logger.Info("download completed")
}

// failTrack converts a stage failure into the job record's terminal error
// state. Progress resets to 0 on the error transition.
func (m *Manager) failTrack(trackID string, f *Failure) {
	m.Tracks.Update(trackID, func(r *JobRecord) {
		r.Status = StatusError
		r.Progress = 0
		r.Message = f.Error()
	})
}

// setStage advances the record to the given stage. Progress never moves
// backwards along the happy path.
func (m *Manager) setStage(trackID string, stage Stage, progress int, message string) {
	m.Tracks.Update(trackID, func(r *JobRecord) {
		r.Status = StatusProcessing
		r.Stage = stage
		if progress > r.Progress {
			r.Progress = progress
		}
		r.Message = message
	})
}

// process walks one track through fetch, search+download, tag and place.
// Every fault is returned as a typed Failure; nothing escapes the stage
// boundary.
func (m *Manager) process(ctx context.Context, trackID string, target Target, videoID string) *Failure {
	m.setStage(trackID, StageFetching, 10, "Fetching track info...")

	metaCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	meta, err := m.metadata.GetTrack(metaCtx, trackID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return failure(KindNotFound, err, "Could not fetch track information")
		}
		return failure(KindUnknown, err, "Could not fetch track information")
	}

	m.setStage(trackID, StagePreparing, 15, "Preparing download location...")

	// Per-job staging directory so concurrent downloads never collide.
	stagingDir := filepath.Join(m.stagingDir, uuid.NewString())
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return failure(KindUnknown, err, "Could not prepare download location")
	}
	destPath := filepath.Join(stagingDir, TrackFilename(meta, m.outputFormat))

	m.setStage(trackID, StageDownloading, 30, "Searching YouTube and downloading...")

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	err = m.source.Fetch(fetchCtx, meta, destPath, videoID)
	cancel()
	if err != nil {
		os.RemoveAll(stagingDir)
		if errors.Is(err, ErrNoConfidentMatch) {
			return failure(KindSearchFailed, err, "Download failed: %v", err)
		}
		return failure(KindFetchFailed, err, "Download failed: %v", err)
	}

	m.setStage(trackID, StageTagging, 85, "Applying metadata...")

	if err := m.tagger.Apply(ctx, destPath, meta); err != nil {
		os.RemoveAll(stagingDir)
		return failure(KindTaggingFailed, err, "Failed to tag downloaded file: %v", err)
	}

	if target == TargetLibrary {
		return m.publishToLibrary(ctx, trackID, meta, destPath, stagingDir)
	}
	return m.stageForRetrieval(trackID, meta, destPath)
}

// publishToLibrary copies the staged file into the managed library, removes
// the staged copy and triggers the post-ingest scan. A scan failure is
// advisory: the file is already placed, so the job still completes with a
// caveat message.
func (m *Manager) publishToLibrary(ctx context.Context, trackID string, meta matching.TrackMetadata, stagedPath, stagingDir string) *Failure {
	m.setStage(trackID, StageCopying, 90, "Copying to Navidrome library...")

	targetPath, err := m.library.TargetPath(meta, m.outputFormat)
	if err != nil {
		os.RemoveAll(stagingDir)
		return failure(KindPublishFailed, err, "Failed to copy to Navidrome: %v", err)
	}
	if err := copyFile(stagedPath, targetPath); err != nil {
		os.RemoveAll(stagingDir)
		return failure(KindPublishFailed, err, "Failed to copy to Navidrome: %v", err)
	}
	os.RemoveAll(stagingDir)

	message := "Track successfully added to Navidrome library"
	if err := m.library.Finalize(ctx, targetPath); err != nil {
		log.WithFields(log.Fields{"module": "jobs", "track_id": trackID}).
			Warnf("library scan trigger failed: %v", err)
		message = fmt.Sprintf("Track added to library (scan may need manual trigger): %v", err)
	}

	m.Tracks.Update(trackID, func(r *JobRecord) {
		r.Status = StatusCompleted
		r.Stage = StageCompleted
		r.Progress = 100
		r.Message = message
		r.FilePath = targetPath
	})
	m.recordHistory(trackID, meta, TargetLibrary, targetPath)
	return nil
}

// stageForRetrieval leaves the staged file in place and publishes a one-time
// retrieval URL; deletion happens only after the file has been served.
func (m *Manager) stageForRetrieval(trackID string, meta matching.TrackMetadata, stagedPath string) *Failure {
	filename := filepath.Base(stagedPath)
	downloadURL := fmt.Sprintf("/api/download/file/%s?filename=%s", trackID, url.QueryEscape(filename))

	m.Tracks.Update(trackID, func(r *JobRecord) {
		r.Status = StatusCompleted
		r.Stage = StageCompleted
		r.Progress = 100
		r.Message = "Track ready for download"
		r.FilePath = stagedPath
		r.DownloadURL = downloadURL
	})
	m.recordHistory(trackID, meta, TargetLocal, stagedPath)
	return nil
}

func (m *Manager) recordHistory(trackID string, meta matching.TrackMetadata, target Target, path string) {
	if m.history == nil {
		return
	}
	if err := m.history.RecordDownload(trackID, meta.Title, meta.Artist(), meta.Album, string(target), path); err != nil {
		log.Warnf("failed to record download history for %s: %v", trackID, err)
	}
}
