package granola

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrMalformedInput indicates a tagged envelope had the wrong shape or property names.
	ErrMalformedInput = errors.New("malformed input")

	// ErrTypeNotFound indicates a type tag did not resolve to a registered type.
	ErrTypeNotFound = errors.New("type not found")

	// ErrTypeNotRegistered indicates a runtime type has no registered type tag.
	ErrTypeNotRegistered = errors.New("type not registered")

	// ErrTypeMismatch indicates a resolved type does not satisfy the requested interface.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDuplicateType indicates a type tag or type was registered twice with different counterparts.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrInvalidType indicates a type that can never be a runtime type (nil, interfaces).
	ErrInvalidType = errors.New("invalid type")

	// ErrInvalidPath indicates a path expression failed to compile.
	ErrInvalidPath = errors.New("invalid path expression")

	// ErrPathNotFound indicates a path expression matched nothing.
	// It is the only error the projection engine recovers from.
	ErrPathNotFound = errors.New("path not found")

	// ErrPathEvaluation indicates a compiled path failed while being evaluated.
	ErrPathEvaluation = errors.New("path evaluation failed")

	// ErrProjectionDecode indicates a matched sub-document could not be decoded into its field.
	ErrProjectionDecode = errors.New("projection decode failed")

	// ErrFieldAssignment indicates a projected value could not be written into its field.
	ErrFieldAssignment = errors.New("field assignment failed")

	// ErrInvalidTag indicates a struct tag has an invalid format or value.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrInvalidOption indicates a mapper option has an unusable value.
	ErrInvalidOption = errors.New("invalid option")

	// ErrUnmarshal indicates the codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates the codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")
)

// ConfigError represents a mapper or type configuration error.
// It wraps a sentinel error with additional context about the field and tag.
type ConfigError struct {
	Err   error  // Underlying sentinel error (ErrInvalidTag, ErrInvalidOption, etc.)
	Field string // Field name that triggered the error
	Value string // Tag or option value that was rejected
}

func (e *ConfigError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("%s %q (field %s)", e.Err.Error(), e.Value, e.Field)
	}
	if e.Value != "" {
		return fmt.Sprintf("%s %q", e.Err.Error(), e.Value)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s)", e.Err.Error(), e.Field)
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EnvelopeError represents a tagged envelope that could not be read.
type EnvelopeError struct {
	Err      error  // Underlying sentinel error (ErrMalformedInput)
	Expected string // What the decoder expected at this position
	Actual   string // What it found instead
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("%s: expected %s but was %s", e.Err.Error(), e.Expected, e.Actual)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}

// TypeError represents a failure to map between a type tag and a Go type.
type TypeError struct {
	Err      error  // Underlying sentinel error (ErrTypeNotFound, ErrTypeNotRegistered, ErrTypeMismatch)
	TypeName string // Type tag or Go type involved
	Want     string // Requested interface, for mismatches
}

func (e *TypeError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("%s: %s does not implement %s", e.Err.Error(), e.TypeName, e.Want)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.TypeName)
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// InvalidPathError represents a path expression that failed to compile.
type InvalidPathError struct {
	Type  string // Owning struct type
	Field string // Field carrying the expression
	Path  string // The rejected expression
	Cause error  // Error from the path matcher
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s %q (field %s.%s): %v", ErrInvalidPath.Error(), e.Path, e.Type, e.Field, e.Cause)
}

func (e *InvalidPathError) Unwrap() []error {
	return []error{ErrInvalidPath, e.Cause}
}

// ProjectionError represents a failure while projecting a path into a field.
// It unwraps to both its sentinel and the underlying cause.
type ProjectionError struct {
	Err   error  // Underlying sentinel error (ErrProjectionDecode, ErrFieldAssignment, ErrPathEvaluation)
	Field string // Field being populated
	Path  string // Path expression of the field
	Cause error  // Original error
}

func (e *ProjectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s field %s from %s: %v", e.Err.Error(), e.Field, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s field %s from %s", e.Err.Error(), e.Field, e.Path)
}

func (e *ProjectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// CodecError represents a marshal/unmarshal error.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrUnmarshal)
	Cause error // Original error from the codec
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func newConfigError(sentinel error, field, value string) error {
	return &ConfigError{
		Err:   sentinel,
		Field: field,
		Value: value,
	}
}

func newEnvelopeError(expected, actual string) error {
	return &EnvelopeError{
		Err:      ErrMalformedInput,
		Expected: expected,
		Actual:   actual,
	}
}

func newTypeError(sentinel error, typeName string) error {
	return &TypeError{
		Err:      sentinel,
		TypeName: typeName,
	}
}

func newProjectionError(sentinel error, field, path string, cause error) error {
	return &ProjectionError{
		Err:   sentinel,
		Field: field,
		Path:  path,
		Cause: cause,
	}
}

// newCodecError creates a CodecError for marshal/unmarshal failures.
func newCodecError(sentinel error, cause error) error {
	return &CodecError{
		Err:   sentinel,
		Cause: cause,
	}
}
