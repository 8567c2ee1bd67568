// Package config resolves the runtime parameters of a batch run.
//
// Parameters come from three layers (built-in defaults, an HCL parameter file
// and an optional dotenv credentials file) plus command-line overrides. Every
// raw value is an HCL template, so a value may reference any other parameter
// with ${name}. Resolve expands the whole set to a fixed point and returns an
// immutable Resolved mapping; the rest of the application only ever reads
// plain strings from it.
package config
