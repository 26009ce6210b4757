package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a question is asked before any successful ingestion.
	ErrNotReady = errors.New("no documents have been processed yet")
	// ErrEmptyBatch is returned when an ingestion produced nothing to index.
	ErrEmptyBatch = errors.New("no text to index")
)

// ExtractionError names the document that could not be parsed.
type ExtractionError struct {
	Index int
	Name  string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("failed to extract document %d (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("failed to extract document %d: %v", e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return fmt.Sprintf("embedding failed: %v", e.Err) }

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Generation stages
const (
	StageCondense = "condense"
	StageAnswer   = "answer"
)

type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AuthError is raised by the first provider call made with a missing or rejected credential.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s credential rejected: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
