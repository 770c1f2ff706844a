package jobs

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trackfetch/matching"
)

// EnqueueAlbum fetches the album's track list, creates the album record plus
// a queued job per member track and fans the downloads out concurrently.
// A member whose previous run has not settled keeps its record and counts as
// failed for this album. Returns the album metadata so callers can echo the
// name and track count.
func (m *Manager) EnqueueAlbum(albumID string, target Target) (matching.AlbumMetadata, error) {
	if !m.Configured() {
		return matching.AlbumMetadata{}, failure(KindNotConfigured, nil, "catalog provider not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	defer cancel()
	album, err := m.metadata.GetAlbum(ctx, albumID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return matching.AlbumMetadata{}, fmt.Errorf("album %s: %w", albumID, ErrNotFound)
		}
		return matching.AlbumMetadata{}, fmt.Errorf("failed to fetch album %s: %w", albumID, err)
	}

	trackIDs := make([]string, 0, len(album.Tracks))
	for _, t := range album.Tracks {
		trackIDs = append(trackIDs, t.ID)
	}

	// Members with a run still in flight keep their record and their single
	// orchestrator; they count as failed for this album immediately.
	scheduled := make([]matching.TrackMetadata, 0, len(album.Tracks))
	skipped := 0
	for _, t := range album.Tracks {
		claimed := m.Tracks.Claim(t.ID, JobRecord{
			TrackID:  t.ID,
			Status:   StatusQueued,
			Stage:    StageQueued,
			Progress: 0,
			Message:  fmt.Sprintf("Queued (Album: %s)", album.Name),
			Target:   target,
			AlbumID:  albumID,
		})
		if !claimed {
			log.WithFields(log.Fields{"module": "jobs", "album_id": albumID, "track_id": t.ID}).
				Warn("album member already downloading, skipping")
			skipped++
			continue
		}
		scheduled = append(scheduled, t)
	}

	record := AlbumRecord{
		AlbumID:      albumID,
		Status:       AlbumDownloading,
		AlbumName:    album.Name,
		Artist:       album.Artist(),
		TotalTracks:  len(album.Tracks),
		FailedTracks: skipped,
		TrackIDs:     trackIDs,
	}
	if len(scheduled) == 0 {
		record.Status = AlbumCompleted
	}
	m.Albums.Set(albumID, record)

	if len(scheduled) > 0 {
		go m.runAlbum(albumID, album.Name, scheduled, target)
	}
	return album, nil
}

// runAlbum drives every member track to a terminal state. Tracks run
// concurrently under the shared worker semaphore; a failed member counts
// against the album but never cancels its siblings.
func (m *Manager) runAlbum(albumID, albumName string, tracks []matching.TrackMetadata, target Target) {
	logger := log.WithFields(log.Fields{"module": "jobs", "album_id": albumID, "tracks": len(tracks)})
	logger.Infof("starting album download: %s", albumName)

	var g errgroup.Group
	for _, t := range tracks {
		trackID := t.ID
		g.Go(func() error {
			m.runAlbumTrack(albumID, trackID, target)
			return nil
		})
	}
	_ = g.Wait()

	if record, ok := m.Albums.Get(albumID); ok {
		logger.Infof("album download settled: %d completed, %d failed", record.CompletedTracks, record.FailedTracks)
	}
}

func (m *Manager) runAlbumTrack(albumID, trackID string, target Target) {
	m.Albums.Update(albumID, func(r *AlbumRecord) {
		r.CurrentTrack = trackID
	})

	m.runTrack(trackID, target, "")

	record, _ := m.Tracks.Get(trackID)
	m.Albums.Update(albumID, func(r *AlbumRecord) {
		if record.Status == StatusCompleted {
			r.CompletedTracks++
		} else {
			r.FailedTracks++
		}
		if r.CurrentTrack == trackID {
			r.CurrentTrack = ""
		}
		if r.CompletedTracks+r.FailedTracks >= r.TotalTracks {
			r.Status = AlbumCompleted
			r.CurrentTrack = ""
		}
	})
}
