// Package errors provides structured error handling for pmcore.
// It implements coded errors with context and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error kind for programmatic handling.
type Code string

const (
	// Input errors (1xx): malformed logs.
	CodeMissingActivity  Code = "E101"
	CodeMissingTimestamp Code = "E102"
	CodeInvalidOrder     Code = "E103"
	CodeInvalidFormat    Code = "E104"
	CodeInvalidTimestamp Code = "E105"
	CodeMissingColumn    Code = "E106"
	CodeParseFailed      Code = "E107"

	// Parameter errors (15x)
	CodeInvalidParameter      Code = "E150"
	CodeInapplicableParameter Code = "E151"

	// Model errors (2xx): malformed nets and trees.
	CodeNotWorkflowNet Code = "E201"
	CodeMalformedNet   Code = "E202"
	CodeMalformedTree  Code = "E203"
	CodeNoActivities   Code = "E204"
	CodeNotEnabled     Code = "E205"

	// Soundness errors (3xx)
	CodeNotEasySound Code = "E301"

	// Search failures (4xx)
	CodeSearchTimeout    Code = "E401"
	CodeUnreachableFinal Code = "E402"
	CodeContextCanceled  Code = "E403"
	CodeStateLimit       Code = "E404"

	// Numeric errors (5xx)
	CodeEmptyAggregation Code = "E501"

	// Output errors (6xx)
	CodeWriteFailed Code = "E601"

	// Unknown
	CodeUnknown Code = "E999"
)

// Kind groups codes into the broad error families callers branch on.
type Kind string

const (
	KindInput     Kind = "input"
	KindParameter Kind = "parameter"
	KindModel     Kind = "model"
	KindSoundness Kind = "soundness"
	KindSearch    Kind = "search"
	KindNumeric   Kind = "numeric"
	KindOutput    Kind = "output"
	KindUnknown   Kind = "unknown"
)

// Kind returns the family the code belongs to.
func (c Code) Kind() Kind {
	if len(c) < 2 {
		return KindUnknown
	}
	switch {
	case strings.HasPrefix(string(c), "E15"):
		return KindParameter
	case c[1] == '1':
		return KindInput
	case c[1] == '2':
		return KindModel
	case c[1] == '3':
		return KindSoundness
	case c[1] == '4':
		return KindSearch
	case c[1] == '5':
		return KindNumeric
	case c[1] == '6':
		return KindOutput
	default:
		return KindUnknown
	}
}

// Error is the base error type for all pmcore errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// MissingActivity reports an event without an activity label.
func MissingActivity(caseID string, index int) *Error {
	return New(CodeMissingActivity, "event has no activity").
		WithContext("case", caseID).
		WithContext("event", index)
}

// MissingColumn creates a missing column error.
func MissingColumn(column string, available []string) *Error {
	return New(CodeMissingColumn, "required column not found").
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string, row int) *Error {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value).
		WithContext("row", row)
}

// ParseError creates a parsing error with location.
func ParseError(format string, row int, err error) *Error {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("row", row)
}

// InvalidParameter reports a parameter outside its domain.
func InvalidParameter(name string, value interface{}, reason string) *Error {
	return New(CodeInvalidParameter, reason).
		WithContext("parameter", name).
		WithContext("value", value)
}

// Inapplicable reports a parameter set for a variant that does not consume it.
func Inapplicable(name, variant string) *Error {
	return New(CodeInapplicableParameter, "parameter not applicable to variant").
		WithContext("parameter", name).
		WithContext("variant", variant)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// EmptyAggregation reports an average over no values.
func EmptyAggregation(metric string) *Error {
	return New(CodeEmptyAggregation, "no per-trace results to aggregate").
		WithContext("metric", metric)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var pmErr *Error
	if errors.As(err, &pmErr) {
		return pmErr.Code == code
	}
	return false
}

// IsKind checks if an error belongs to a family.
func IsKind(err error, kind Kind) bool {
	return GetCode(err).Kind() == kind
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var pmErr *Error
	if errors.As(err, &pmErr) {
		return pmErr.Code
	}
	return CodeUnknown
}

// ExitCode maps an error to a process exit status for host wrappers.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err).Kind() {
	case KindInput, KindParameter:
		return 2
	case KindModel, KindSoundness:
		return 3
	case KindSearch:
		return 4
	case KindNumeric:
		return 5
	default:
		return 1
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
