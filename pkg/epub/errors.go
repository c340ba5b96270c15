package epub

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrContainerManifestMissing   = errors.New("META-INF/container.xml is missing")
	ErrPackageDocumentPathMissing = errors.New("container.xml does not name a package document")
	ErrPackageDocumentUnreadable  = errors.New("no readable package document")
)

// Attempt is one step of package document resolution that did not succeed.
type Attempt struct {
	Strategy Strategy
	Path     string
	Err      error
}

// ParseError is returned when no resolution strategy, including generating
// a structure from the archive contents, produced a package. Kind is one of
// the Err* sentinels.
type ParseError struct {
	Kind     error
	Attempts []Attempt
}

func (e *ParseError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Path != "" {
			parts = append(parts, fmt.Sprintf("%s %s: %v", a.Strategy, a.Path, a.Err))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
		}
	}
	if len(parts) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ParseError) Unwrap() []error {
	errs := []error{e.Kind}
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
