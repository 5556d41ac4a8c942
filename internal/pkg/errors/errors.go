// Package errors provides coded errors for the print server.
// Errors carry an operation, optional fields and a captured stack, and map
// onto HTTP status codes for the API layer.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"strings"
)

// Code represents an error code for categorization.
type Code string

const (
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeTimeout         Code = "TIMEOUT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeResourceExhaust Code = "RESOURCE_EXHAUSTED"

	// CodeConversion marks an image or document that could not be decoded
	// or rasterized.
	CodeConversion Code = "CONVERSION_ERROR"
	// CodeTransmission marks a failed write to the printer device.
	CodeTransmission Code = "TRANSMISSION_ERROR"
)

var statusByCode = map[Code]int{
	CodeValidation:      http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeConversion:      http.StatusUnprocessableEntity,
	CodeResourceExhaust: http.StatusTooManyRequests,
	CodeTransmission:    http.StatusBadGateway,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeTimeout:         http.StatusGatewayTimeout,
}

// Error is a custom error type with additional context.
type Error struct {
	Code    Code
	Message string
	// Op is the operation that failed, e.g. "spooler.Transmit".
	Op  string
	Err error
	// Fields end up in the details of the API error envelope.
	Fields map[string]any
	Stack  []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so sentinels such as
// worker.ErrQueueOverflow work with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField sets a field and returns e.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// HTTPStatus maps the code onto a response status; unknown codes are 500.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// newError must be called directly by an exported constructor so the
// stack starts at that constructor's caller.
func newError(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(3),
	}
}

func New(code Code, message string) *Error {
	return newError(code, message)
}

func Newf(code Code, format string, args ...any) *Error {
	return newError(code, fmt.Sprintf(format, args...))
}

// Wrap adds context to err. The code and a copy of the fields of the
// nearest *Error in the chain are kept; plain errors become internal.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	code := CodeInternal
	var fields map[string]any
	var e *Error
	if errors.As(err, &e) {
		code = e.Code
		fields = maps.Clone(e.Fields)
	}
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Fields:  fields,
		Stack:   captureStack(2),
	}
}

func Wrapf(err error, op string, format string, args ...any) *Error {
	w := Wrap(err, op, fmt.Sprintf(format, args...))
	if w != nil {
		w.Stack = captureStack(2)
	}
	return w
}

// WrapWithCode wraps err under an explicit code, dropping the inner one.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

func Internalf(format string, args ...any) *Error {
	return newError(CodeInternal, fmt.Sprintf(format, args...))
}

func Validation(message string) *Error {
	return newError(CodeValidation, message)
}

// ValidationField creates a validation error for a request or config field.
func ValidationField(field string, message string) *Error {
	return newError(CodeValidation, message).WithField("field", field)
}

// Unavailable reports a missing or unreachable dependency.
func Unavailable(service string) *Error {
	return newError(CodeUnavailable, "service unavailable: "+service).WithField("service", service)
}

// ResourceExhausted reports a full queue or pool.
func ResourceExhausted(resource string) *Error {
	return newError(CodeResourceExhaust, "resource exhausted: "+resource).WithField("resource", resource)
}

// Conversion wraps an image decoding or rasterization failure.
func Conversion(err error, op string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    CodeConversion,
		Message: "image conversion failed",
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Transmission wraps a failed write to a printer. device is recorded as a
// field when known.
func Transmission(err error, op string, device string) *Error {
	if err == nil {
		return nil
	}
	e := &Error{
		Code:    CodeTransmission,
		Message: "transmission failed",
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
	if device != "" {
		e.WithField("device", device)
	}
	return e
}

// GetCode returns the code of the nearest *Error, or CodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

func IsTransmission(err error) bool {
	return IsCode(err, CodeTransmission)
}

// captureStack records up to 10 frames above the caller, skipping the
// runtime.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callersFrames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			frames = append(frames, Frame{
				File:     frame.File,
				Line:     frame.Line,
				Function: frame.Function,
			})
		}
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}
