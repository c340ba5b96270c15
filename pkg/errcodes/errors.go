package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	CodeNotFound       = "not_found"
	CodeDuplicate      = "duplicate"
	CodeInvalidArchive = "invalid_archive"
	CodeCancelled      = "cancelled"
)

// Error is an expected, classified failure. Bulk callers use the code to tell
// "skipped" outcomes apart from real failures.
type Error struct {
	Code    string
	Message string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Code = err.Code
	te.Message = err.Message
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code &&
		te.Message == err.Message
}

// NotFound returns an error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		CodeNotFound,
		resource + " not found.",
	}
}

// Duplicate returns an error naming the book that already exists in the
// library.
func Duplicate(existingTitle, existingAuthor string) error {
	return &Error{
		CodeDuplicate,
		fmt.Sprintf("A book titled %q by %q already exists in the library.", existingTitle, existingAuthor),
	}
}

// InvalidArchive is returned when a source is not a readable ZIP container.
func InvalidArchive(detail string) error {
	return &Error{
		CodeInvalidArchive,
		"Not a readable EPUB archive: " + detail,
	}
}

func Cancelled() error {
	return &Error{
		CodeCancelled,
		"Operation was cancelled.",
	}
}

// Code returns the classification code of err, or an empty string when err is
// not a classified error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return Code(err) == CodeNotFound
}

func IsDuplicate(err error) bool {
	return Code(err) == CodeDuplicate
}

func IsCancelled(err error) bool {
	return Code(err) == CodeCancelled
}
