package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for unknown track/album/job ids. Collaborators
// wrap it so orchestration can classify without knowing their internals.
var ErrNotFound = errors.New("not found")

// ErrNoConfidentMatch is returned by the media source when no candidate
// cleared the acceptance threshold and none was manually chosen.
var ErrNoConfidentMatch = errors.New("no candidate cleared the match threshold")

// ErrAlreadyQueued rejects a submission for a track that is still in flight.
var ErrAlreadyQueued = errors.New("download already in progress")

// FailureKind classifies a terminal job fault.
type FailureKind string

const (
	KindNotConfigured FailureKind = "not_configured"
	KindNotFound      FailureKind = "not_found"
	KindSearchFailed  FailureKind = "search_failed"
	KindFetchFailed   FailureKind = "fetch_failed"
	KindTaggingFailed FailureKind = "tagging_failed"
	KindPublishFailed FailureKind = "publish_failed"
	KindUnknown       FailureKind = "unknown"
)

// Failure is the typed result of a failed orchestration stage. Stages return
// it instead of raising; only the run boundary converts it into the job
// record's error fields.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func failure(kind FailureKind, err error, format string, args ...interface{}) *Failure {
	return &Failure{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
