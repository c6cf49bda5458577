package errors

import (
	"bytes"
	"fmt"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryRuntime   Category = "runtime"
	CategoryReconcile Category = "reconcile"
	CategoryLive      Category = "live"
	CategoryConfig    Category = "config"
	CategoryCLI       Category = "cli"
)

// Location points at a position inside a file, usually a config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a coded error with an optional location and fix hint.
type Error struct {
	// Code is a unique error identifier (e.g., "E120").
	Code string

	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	Location *Location

	// Context holds the lines surrounding Location, starting at line
	// contextStart.
	Context      []string
	contextStart int

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a correct input.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation records a file position.
func (e *Error) WithLocation(file string, line, column int) *Error {
	e.Location = &Location{File: file, Line: line, Column: column}
	return e
}

// WithOffset resolves a byte offset in data (as reported by encoding/json)
// into a line and column, and keeps a few surrounding lines as context.
func (e *Error) WithOffset(file string, data []byte, offset int64) *Error {
	if offset < 0 || offset > int64(len(data)) {
		return e
	}
	head := data[:offset]
	line := bytes.Count(head, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(head, '\n')
	e.Location = &Location{File: file, Line: line, Column: col}
	e.Context, e.contextStart = contextLines(data, line, 5)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithExample adds an example of valid input.
func (e *Error) WithExample(ex string) *Error {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// contextLines returns up to size lines of data centred on target (1-based)
// and the line number of the first one.
func contextLines(data []byte, target, size int) ([]string, int) {
	lines := strings.Split(string(data), "\n")
	start := target - size/2
	if start < 1 {
		start = 1
	}
	end := target + size/2
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return nil, 0
	}
	return lines[start-1 : end], start
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates an uncoded Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a coded Error. Errors that already
// carry a code are returned unchanged.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(code).Wrap(err)
}
