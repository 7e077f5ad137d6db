package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Request validation errors, detected before any network call
	ErrMissingParameter   = fmt.Errorf("missing required parameter")
	ErrInvalidParameter   = fmt.Errorf("invalid parameter")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Upstream and pipeline errors
	ErrNotFound    = fmt.Errorf("no match found")
	ErrAuthFailed  = fmt.Errorf("authentication failed")
	ErrUpstream    = fmt.Errorf("upstream request failed")
	ErrPipeline    = fmt.Errorf("audio pipeline failed")
	ErrRateLimited = fmt.Errorf("too many requests")
)

// Stage names the step of a download that produced an error.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageSearch       Stage = "search"
	StageSpotifyToken Stage = "spotify_token"
	StageSpotifyTrack Stage = "spotify_lookup"
	StageMetadata     Stage = "metadata"
	StageSource       Stage = "source"
	StageEncoder      Stage = "encoder"
	StageRelay        Stage = "relay"
)

// StageError tags err with the [Stage] that failed.
type StageError struct {
	Stage Stage
	Err   error
}

// NewStageError wraps err with stage. A nil err stays nil.
func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the innermost stage recorded on err, or "" when none is.
func StageOf(err error) Stage {
	var stage Stage
	for err != nil {
		var se *StageError
		if !errors.As(err, &se) {
			break
		}
		stage = se.Stage
		err = se.Err
	}
	return stage
}

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrMissingCredentials)
}
