package jobs

import "time"

// Status is the lifecycle state of a track download job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Stage names the step a processing job is currently in.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageFetching    Stage = "fetching"
	StagePreparing   Stage = "preparing"
	StageDownloading Stage = "downloading"
	StageTagging     Stage = "tagging"
	StageCopying     Stage = "copying"
	StageCompleted   Stage = "completed"
)

// Target is the requested destination for a finished download.
type Target string

const (
	// TargetLocal stages the file for one-time browser retrieval.
	TargetLocal Target = "local"
	// TargetLibrary places the file into the managed Navidrome library.
	TargetLibrary Target = "navidrome"
)

// ParseTarget validates a requested target, defaulting to local.
func ParseTarget(s string) Target {
	if Target(s) == TargetLibrary {
		return TargetLibrary
	}
	return TargetLocal
}

// JobRecord tracks one track download. Only the owning orchestrator run
// mutates it (through the store's atomic Update); pollers read copies.
type JobRecord struct {
	TrackID     string    `json:"track_id"`
	Status      Status    `json:"status"`
	Stage       Stage     `json:"stage"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	Target      Target    `json:"target"`
	FilePath    string    `json:"file_path,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	AlbumID     string    `json:"album_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether the job can no longer change state.
func (r JobRecord) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// AlbumStatus is the lifecycle state of an album download.
type AlbumStatus string

const (
	AlbumDownloading AlbumStatus = "downloading"
	AlbumCompleted   AlbumStatus = "completed"
)

// AlbumRecord aggregates the member-track jobs of one album download.
type AlbumRecord struct {
	AlbumID         string      `json:"album_id"`
	Status          AlbumStatus `json:"status"`
	AlbumName       string      `json:"album_name"`
	Artist          string      `json:"artist"`
	TotalTracks     int         `json:"total_tracks"`
	CompletedTracks int         `json:"completed_tracks"`
	FailedTracks    int         `json:"failed_tracks"`
	CurrentTrack    string      `json:"current_track,omitempty"`
	TrackIDs        []string    `json:"track_ids"`
}
