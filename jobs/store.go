package jobs

import (
	"sync"
	"time"
)

// TrackStore is a concurrent-safe map of track id to JobRecord. Update runs
// the mutator under the write lock so a read-modify-write for one key can
// never interleave with another; Get hands out copies so pollers always see
// a fully-formed record. Records live for the process lifetime.
type TrackStore struct {
	mu   sync.RWMutex
	jobs map[string]JobRecord
}

func NewTrackStore() *TrackStore {
	return &TrackStore{jobs: make(map[string]JobRecord)}
}

func (s *TrackStore) Set(trackID string, record JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.UpdatedAt = time.Now()
	s.jobs[trackID] = record
}

func (s *TrackStore) Get(trackID string) (JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[trackID]
	return record, ok
}

// Claim installs record for trackID unless a non-terminal record already
// holds the key. Check and write happen under one lock acquisition, so two
// concurrent submissions for the same track can never both win.
func (s *TrackStore) Claim(trackID string, record JobRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[trackID]; ok && !existing.Terminal() {
		return false
	}
	record.UpdatedAt = time.Now()
	s.jobs[trackID] = record
	return true
}

// Update atomically applies fn to the record for trackID. Returns false and
// does nothing when no record exists.
func (s *TrackStore) Update(trackID string, fn func(*JobRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[trackID]
	if !ok {
		return false
	}
	fn(&record)
	record.UpdatedAt = time.Now()
	s.jobs[trackID] = record
	return true
}

// AlbumStore is the AlbumRecord counterpart of TrackStore.
type AlbumStore struct {
	mu     sync.RWMutex
	albums map[string]AlbumRecord
}

func NewAlbumStore() *AlbumStore {
	return &AlbumStore{albums: make(map[string]AlbumRecord)}
}

func (s *AlbumStore) Set(albumID string, record AlbumRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums[albumID] = record
}

func (s *AlbumStore) Get(albumID string) (AlbumRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.albums[albumID]
	return record, ok
}

func (s *AlbumStore) Update(albumID string, fn func(*AlbumRecord)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.albums[albumID]
	if !ok {
		return false
	}
	fn(&record)
	s.albums[albumID] = record
	return true
}
