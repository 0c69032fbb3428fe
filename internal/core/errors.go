package core

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a request failed at.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageEmbedding   Stage = "embedding"
	StageRetrieval   Stage = "retrieval"
	StageAssembly    Stage = "assembly"
	StageGeneration  Stage = "generation"
	StagePersistence Stage = "persistence"
)

// StageError wraps a failure with the stage it occurred in, so the API
// layer can map it to a status code without inspecting error strings.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrEmptyAnswer  = errors.New("model returned an empty answer")
	ErrNotFound     = errors.New("not found")

	// ErrModelVersionMismatch means the persisted chunk embeddings were
	// produced by a different embedding model than the one configured.
	ErrModelVersionMismatch = errors.New("indexed embeddings were produced by a different embedding model")
)
