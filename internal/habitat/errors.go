package habitat

import "fmt"

// ConfigurationError indicates the resolved project configuration is missing
// or inconsistent: a phase schedule that does not cover the recording window,
// a rating seed referencing an unknown animal, and similar structural
// problems. These are fatal to a run.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Configf builds a ConfigurationError from a format string.
func Configf(format string, v ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, v...)}
}

// DataIntegrityError indicates the derived data violates a structural
// invariant: overlapping or duplicate raw detections for one animal, an
// interval crossing a phase boundary without being split, or a negative
// duration after construction.
type DataIntegrityError struct {
	Msg string
	Err error
}

func (e *DataIntegrityError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

// Integrityf builds a DataIntegrityError from a format string.
func Integrityf(format string, v ...interface{}) error {
	return &DataIntegrityError{Msg: fmt.Sprintf(format, v...)}
}

// InvalidStateError indicates an operation was called in a state that forbids
// it, e.g. processing a chase event before the ranking engine is initialized
// or after it has been finalized.
type InvalidStateError struct {
	Msg string
}

func (e *InvalidStateError) Error() string { return e.Msg }

// Statef builds an InvalidStateError from a format string.
func Statef(format string, v ...interface{}) error {
	return &InvalidStateError{Msg: fmt.Sprintf(format, v...)}
}
