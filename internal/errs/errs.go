// Package errs defines the error taxonomy shared across the prediction pipeline.
// Per-event errors (collection, feature, prediction, store) are recorded and the
// batch continues; fatal errors (model load, configuration) abort the run.
package errs

import (
	"errors"
	"fmt"
)

// CollectionError indicates the upstream stats provider was unreachable or
// returned malformed data for a hard-required field.
type CollectionError struct {
	Msg string
	Err error
}

func (e *CollectionError) Error() string { return withCause(e.Msg, e.Err) }
func (e *CollectionError) Unwrap() error { return e.Err }

// Collectionf creates a CollectionError with a formatted message.
func Collectionf(format string, args ...any) error {
	return &CollectionError{Msg: fmt.Sprintf(format, args...)}
}

// CollectionWrap wraps an underlying error as a CollectionError.
func CollectionWrap(err error, format string, args ...any) error {
	return &CollectionError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// FeatureError indicates missing or invalid input to feature derivation.
// It aborts feature production for the offending event only.
type FeatureError struct {
	Msg string
	Err error
}

func (e *FeatureError) Error() string { return withCause(e.Msg, e.Err) }
func (e *FeatureError) Unwrap() error { return e.Err }

// Featuref creates a FeatureError with a formatted message.
func Featuref(format string, args ...any) error {
	return &FeatureError{Msg: fmt.Sprintf(format, args...)}
}

// PredictionError indicates scorer misuse or malformed model output.
type PredictionError struct {
	Msg string
	Err error
}

func (e *PredictionError) Error() string { return withCause(e.Msg, e.Err) }
func (e *PredictionError) Unwrap() error { return e.Err }

// Predictionf creates a PredictionError with a formatted message.
func Predictionf(format string, args ...any) error {
	return &PredictionError{Msg: fmt.Sprintf(format, args...)}
}

// StoreError indicates a schema violation, integrity violation, or
// connectivity failure at the persistence boundary.
type StoreError struct {
	Msg string
	Err error
}

func (e *StoreError) Error() string { return withCause(e.Msg, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Storef creates a StoreError with a formatted message.
func Storef(format string, args ...any) error {
	return &StoreError{Msg: fmt.Sprintf(format, args...)}
}

// StoreWrap wraps an underlying error as a StoreError.
func StoreWrap(err error, format string, args ...any) error {
	return &StoreError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// ModelLoadError is fatal and only raised at startup while loading the
// model artifact.
type ModelLoadError struct {
	Msg string
	Err error
}

func (e *ModelLoadError) Error() string { return withCause(e.Msg, e.Err) }
func (e *ModelLoadError) Unwrap() error { return e.Err }

// ModelLoadf creates a ModelLoadError with a formatted message.
func ModelLoadf(format string, args ...any) error {
	return &ModelLoadError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigError is fatal and only raised at startup for invalid configuration
// or invalid pipeline invocations.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Configf creates a ConfigError with a formatted message.
func Configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err belongs to a class that must abort the whole
// run rather than being recorded against a single event.
func IsFatal(err error) bool {
	var mle *ModelLoadError
	var ce *ConfigError
	return errors.As(err, &mle) || errors.As(err, &ce)
}

func withCause(msg string, err error) string {
	if err != nil {
		return msg + ": " + err.Error()
	}
	return msg
}
