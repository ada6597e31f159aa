package job

import (
	"errors"
	"fmt"
)

// Error definitions for the job package.
var (
	ErrMissingField = errors.New("required field missing")
	ErrInvalidField = errors.New("invalid field")
)

// Stage names the step a job failed in.
type Stage string

const (
	StageDecode           Stage = "decode"
	StageModelPreparation Stage = "model_preparation"
	StageStaging          Stage = "staging"
	StageExecution        Stage = "execution"
	StagePackaging        Stage = "packaging"
)

// Error records the stage a job failed in. The underlying error is one of
// *DecodeError, *modelstore.ProvisionError, *StagingError,
// *process.ExecutionError or *PackagingError.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DecodeError reports a malformed or missing input field.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StagingError reports a failure creating or populating the workspace.
type StagingError struct {
	Err error
}

func (e *StagingError) Error() string {
	return e.Err.Error()
}

func (e *StagingError) Unwrap() error {
	return e.Err
}

// PackagingError reports a failure archiving the output directory.
type PackagingError struct {
	Err error
}

func (e *PackagingError) Error() string {
	return e.Err.Error()
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}
