// Package uri gives imports access to sources named by URI instead of by a
// local path. A host registers one Resolver per scheme; file:// is built in.
package uri

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/errcodes"
)

// Document describes one readable document behind a URI.
type Document struct {
	URI string
	// Name is the display name, usually the last path segment.
	Name string
	// RelativePath is the path below the tree the document was found in, or
	// Name when it wasn't found through a walk.
	RelativePath string
	Size         int64
	ModifiedAt   time.Time
}

type Resolver interface {
	Stat(ctx context.Context, uri string) (*Document, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	// Walk lists every document below treeURI in a stable order.
	Walk(ctx context.Context, treeURI string) ([]*Document, error)
}

// Mux dispatches to a resolver by URI scheme.
type Mux struct {
	resolvers map[string]Resolver
}

func NewMux() *Mux {
	m := &Mux{resolvers: map[string]Resolver{}}
	m.Handle("file", FileResolver{})
	return m
}

func (m *Mux) Handle(scheme string, r Resolver) {
	m.resolvers[strings.ToLower(scheme)] = r
}

func (m *Mux) resolver(uri string) (Resolver, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid uri %q", uri)
	}
	r, ok := m.resolvers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, errcodes.NotFound("Resolver for scheme " + u.Scheme)
	}
	return r, nil
}

func (m *Mux) Stat(ctx context.Context, uri string) (*Document, error) {
	r, err := m.resolver(uri)
	if err != nil {
		return nil, err
	}
	return r.Stat(ctx, uri)
}

func (m *Mux) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	r, err := m.resolver(uri)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, uri)
}

func (m *Mux) Walk(ctx context.Context, treeURI string) ([]*Document, error) {
	r, err := m.resolver(treeURI)
	if err != nil {
		return nil, err
	}
	return r.Walk(ctx, treeURI)
}

// IsURI reports whether s names a source by URI rather than by local path.
func IsURI(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for _, c := range s[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return true
}
