package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateEntry    = errors.New("an entry with this title already exists")
	ErrNotFound          = errors.New("entry not found")
	ErrAlreadyPromoted   = errors.New("entry has already been promoted")
	ErrNothingToPromote  = errors.New("no unpromoted entries in the queue")
	ErrNotHead           = errors.New("in remove-head mode only the head of the queue can be promoted")
	ErrStaleHead         = errors.New("queue head changed before it could be removed")
	ErrPromotedMonotonic = errors.New("promoted flag cannot be reset to false")
)

// MediaError reports a failed thumbnail or video step. It never aborts a
// registration; the entry is published without the media.
type MediaError struct {
	Op     string // extract, fetch, decode, upload
	Status int    // backend status for upload failures, 0 otherwise
	Body   string
	Err    error
}

func (e *MediaError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("media %s: backend returned %d: %s", e.Op, e.Status, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("media %s: %v", e.Op, e.Err)
	}
	return "media " + e.Op + " failed"
}

func (e *MediaError) Unwrap() error { return e.Err }

// PublishError reports a rejected or failed post creation. Nothing is
// persisted when it occurs.
type PublishError struct {
	Status int
	Body   string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("publish: %v", e.Err)
	}
	return fmt.Sprintf("publish: backend returned %d: %s", e.Status, e.Body)
}

func (e *PublishError) Unwrap() error { return e.Err }

// SocialPostError reports a failed social post. The entry stays unpromoted.
type SocialPostError struct {
	Status int
	Body   string
	Err    error
}

func (e *SocialPostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("social post: %v", e.Err)
	}
	return fmt.Sprintf("social post: service returned %d: %s", e.Status, e.Body)
}

func (e *SocialPostError) Unwrap() error { return e.Err }
