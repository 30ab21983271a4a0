// Package utils provides the concurrency helpers shared by the likeness
// pipeline: a generic bounded WorkerPool with ordered results and panic
// recovery helpers that turn panics into *PanicError values.
package utils
