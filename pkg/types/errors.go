package types

import "fmt"

// InputDataError reports a missing or malformed upstream table.
// It is fatal: a run stops before any task executes.
type InputDataError struct {
	Source string
	Err    error
}

func (e *InputDataError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("input data error in %s", e.Source)
	}
	return fmt.Sprintf("input data error in %s: %v", e.Source, e.Err)
}

func (e *InputDataError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for InputDataError.
func (e *InputDataError) Is(target error) bool {
	_, ok := target.(*InputDataError)
	return ok
}

// NewInputDataError wraps err with the name of the offending source.
func NewInputDataError(source string, err error) *InputDataError {
	return &InputDataError{Source: source, Err: err}
}

// AggregationError reports a join key mismatch between feature tables.
type AggregationError struct {
	Table  string
	Key    string
	Reason string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation error in %s at %s: %s", e.Table, e.Key, e.Reason)
}

// Is implements errors.Is support for AggregationError.
func (e *AggregationError) Is(target error) bool {
	_, ok := target.(*AggregationError)
	return ok
}
