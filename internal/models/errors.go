package models

import (
	"errors"
	"fmt"
)

// Error kinds recorded on a failed scrape job.
const (
	ErrKindResolution    = "RESOLUTION_FAILED"
	ErrKindScrape        = "SCRAPE_FAILED"
	ErrKindNormalization = "NORMALIZATION_FAILED"
	ErrKindCatalogue     = "CATALOGUE_FAILED"
	ErrKindInterrupted   = "INTERRUPTED"
	ErrKindInternal      = "INTERNAL_ERROR"
)

// PipelineError is a pipeline failure carrying the kind shown to the dashboard.
// It supports error wrapping via Unwrap.
type PipelineError struct {
	Kind    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}

// ErrorKind reports the kind of the first PipelineError in err's chain.
func ErrorKind(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindInternal
}

// AmbiguousMatchError is returned when a slug pick does not name one of the
// offered options verbatim.
type AmbiguousMatchError struct {
	Query string
	Reply string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %q: model replied %q which is not an offered option", e.Query, e.Reply)
}

// NormalizationError is returned when a completion is empty or does not
// satisfy the output schema.
type NormalizationError struct {
	Slug   string
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalization of %s failed: %s: %v", e.Slug, e.Reason, e.Err)
	}
	return fmt.Sprintf("normalization of %s failed: %s", e.Slug, e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// SlugConflictError is returned by a catalogue write when another device
// already owns the slug.
type SlugConflictError struct {
	Slug         string
	ExistingID   string
	ExistingName string
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %s already belongs to %s (%s)", e.Slug, e.ExistingName, e.ExistingID)
}
