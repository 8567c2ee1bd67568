package workunit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier is returned for identifiers too short to derive
	// an output directory from.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrProcessFailure is returned when the analysis process exits non-zero.
	ErrProcessFailure = errors.New("process failure")
	// ErrIncompleteOutput is returned when the process exits zero but the
	// completion marker is absent.
	ErrIncompleteOutput = errors.New("incomplete output")
	// ErrDirectoryRace is returned when a directory could not be created and
	// does not exist afterwards either.
	ErrDirectoryRace = errors.New("directory creation failed")
)

// ProcessFailureError carries the exit code and the command that produced it.
type ProcessFailureError struct {
	Identifier string
	Code       int
	Command    []string
}

func (e *ProcessFailureError) Error() string {
	return fmt.Sprintf("%s: %s exited with code %d", ErrProcessFailure, e.Identifier, e.Code)
}

func (e *ProcessFailureError) Is(target error) bool {
	return target == ErrProcessFailure
}

// IncompleteOutputError names the marker that was expected but not found.
type IncompleteOutputError struct {
	Identifier string
	Marker     string
}

func (e *IncompleteOutputError) Error() string {
	return fmt.Sprintf("%s: %s finished without %s", ErrIncompleteOutput, e.Identifier, e.Marker)
}

func (e *IncompleteOutputError) Is(target error) bool {
	return target == ErrIncompleteOutput
}

// DirectoryRaceError wraps the creation failure for Path.
type DirectoryRaceError struct {
	Path string
	Err  error
}

func (e *DirectoryRaceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDirectoryRace, e.Path, e.Err)
}

func (e *DirectoryRaceError) Is(target error) bool {
	return target == ErrDirectoryRace
}

func (e *DirectoryRaceError) Unwrap() error {
	return e.Err
}
