package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingParameter is returned when a parameter has neither a value
	// nor a default, or when a template references an unknown parameter.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrCyclicConfiguration is returned when parameters reference each
	// other in a loop and can never be fully expanded.
	ErrCyclicConfiguration = errors.New("cyclic configuration")
)

// MissingParameterError names the parameter that could not be found and,
// when the lookup came from a template, the parameter that referenced it.
type MissingParameterError struct {
	Key      string
	Referrer string
}

func (e *MissingParameterError) Error() string {
	if e.Referrer != "" {
		return fmt.Sprintf("%s: %q (referenced by %q)", ErrMissingParameter, e.Key, e.Referrer)
	}
	return fmt.Sprintf("%s: %q", ErrMissingParameter, e.Key)
}

func (e *MissingParameterError) Is(target error) bool {
	return target == ErrMissingParameter
}

// CyclicConfigurationError lists the parameters left unresolved once
// substitution stopped making progress.
type CyclicConfigurationError struct {
	Keys []string
}

func (e *CyclicConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicConfiguration, strings.Join(e.Keys, ", "))
}

func (e *CyclicConfigurationError) Is(target error) bool {
	return target == ErrCyclicConfiguration
}
