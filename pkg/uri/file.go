package uri

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/errcodes"
)

// FileResolver serves file:// URIs from the local filesystem.
type FileResolver struct{}

// FromPath builds the file:// URI of a local path.
func FromPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// ToPath returns the local path of a file:// URI.
func ToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid uri %q", uri)
	}
	if u.Scheme != "file" {
		return "", errors.Errorf("not a file uri: %s", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

func (FileResolver) Stat(_ context.Context, uri string) (*Document, error) {
	p, err := ToPath(uri)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.NotFound("Document")
		}
		return nil, errors.WithStack(err)
	}
	return &Document{
		URI:          uri,
		Name:         info.Name(),
		RelativePath: info.Name(),
		Size:         info.Size(),
		ModifiedAt:   info.ModTime(),
	}, nil
}

func (FileResolver) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	p, err := ToPath(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcodes.NotFound("Document")
		}
		return nil, errors.WithStack(err)
	}
	return f, nil
}

func (FileResolver) Walk(ctx context.Context, treeURI string) ([]*Document, error) {
	root, err := ToPath(treeURI)
	if err != nil {
		return nil, err
	}

	var docs []*Document
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = d.Name()
		}
		docs = append(docs, &Document{
			URI:          FromPath(p),
			Name:         d.Name(),
			RelativePath: filepath.ToSlash(rel),
			Size:         info.Size(),
			ModifiedAt:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].RelativePath < docs[j].RelativePath
	})
	return docs, nil
}
