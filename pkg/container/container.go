// Package container provides read access to the entries of a ZIP based
// package such as an EPUB.
package container

import (
	"archive/zip"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/errcodes"
)

// Container is the read-only view of a package that parsers work against.
// Lookups never fail loudly: a missing, oversized, or unreadable entry is
// reported as not found.
type Container interface {
	Entries() []string
	ReadEntry(name string, maxBytes int64) ([]byte, bool)
	EntryExists(name string) bool
	Resolve(name string) (string, bool)
}

// Archive is a Container backed by a ZIP central directory.
type Archive struct {
	files   map[string]*zip.File
	folded  map[string]string
	entries []string
	size    int64
	reads   atomic.Int64
	closer  io.Closer
}

var _ Container = (*Archive)(nil)

// Open opens the ZIP file at path. The returned Archive must be closed.
func Open(filePath string) (*Archive, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	a, err := NewArchive(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the central directory from r.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.WithStack(errcodes.InvalidArchive(err.Error()))
	}

	a := &Archive{
		files:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]string, len(zr.File)),
		size:   size,
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := Clean(f.Name)
		if name == "" {
			continue
		}
		if _, ok := a.files[name]; ok {
			continue
		}
		a.files[name] = f
		a.entries = append(a.entries, name)
		lower := strings.ToLower(name)
		if _, ok := a.folded[lower]; !ok {
			a.folded[lower] = name
		}
	}
	return a, nil
}

// Clean normalizes an entry path: percent-escapes are decoded, leading "/"
// and "./" are dropped and the path is cleaned. It returns an empty string
// for paths that name the archive root or escape it.
func Clean(name string) string {
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	name = strings.TrimPrefix(name, "/")
	if name == "." {
		return ""
	}
	return name
}

// Entries lists the file entries in central directory order.
func (a *Archive) Entries() []string {
	out := make([]string, len(a.entries))
	copy(out, a.entries)
	return out
}

// Resolve maps a logical path to the entry name stored in the archive,
// falling back to a case-insensitive match.
func (a *Archive) Resolve(name string) (string, bool) {
	name = Clean(name)
	if name == "" {
		return "", false
	}
	if _, ok := a.files[name]; ok {
		return name, true
	}
	if actual, ok := a.folded[strings.ToLower(name)]; ok {
		return actual, true
	}
	return "", false
}

func (a *Archive) EntryExists(name string) bool {
	_, ok := a.Resolve(name)
	return ok
}

// ReadEntry returns the bytes of the named entry. When maxBytes is positive
// and the entry is larger, nothing is read and the entry is reported as not
// found.
func (a *Archive) ReadEntry(name string, maxBytes int64) ([]byte, bool) {
	actual, ok := a.Resolve(name)
	if !ok {
		return nil, false
	}
	f := a.files[actual]
	if maxBytes > 0 && f.UncompressedSize64 > uint64(maxBytes) {
		return nil, false
	}

	a.reads.Add(1)
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()

	var r io.Reader = rc
	if maxBytes > 0 {
		// The header can understate the real size.
		r = io.LimitReader(rc, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, false
	}
	return data, true
}

// Size is the size of the underlying ZIP in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

// Reads counts the entries opened so far.
func (a *Archive) Reads() int64 {
	return a.reads.Load()
}

func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return errors.WithStack(a.closer.Close())
}
