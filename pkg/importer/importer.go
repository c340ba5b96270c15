// Package importer turns EPUB sources into library books. Every source is
// parsed cache-first in metadata mode, checked for duplicates, placed in
// permanent storage when it only exists transiently, and recorded for
// provenance.
package importer

import (
	"github.com/shishobooks/epubcore/pkg/books"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/epub"
	"github.com/shishobooks/epubcore/pkg/metacache"
	"github.com/shishobooks/epubcore/pkg/sources"
	"github.com/shishobooks/epubcore/pkg/uri"
	"github.com/uptrace/bun"
)

type Importer struct {
	config *config.Config

	bookService   *books.Service
	cache         *metacache.Cache
	sourceService *sources.Service
	resolver      uri.Resolver

	openArchive func(path string) (*container.Archive, error)
}

func New(cfg *config.Config, db *bun.DB, resolver uri.Resolver) *Importer {
	if resolver == nil {
		resolver = uri.NewMux()
	}
	return &Importer{
		config: cfg,

		bookService:   books.NewService(db),
		cache:         metacache.New(db),
		sourceService: sources.NewService(db),
		resolver:      resolver,

		openArchive: container.Open,
	}
}

// Resolver is the URI resolver the importer reads documents through.
func (imp *Importer) Resolver() uri.Resolver {
	return imp.resolver
}

func (imp *Importer) parseOptions() epub.Options {
	return epub.Options{
		Mode:          epub.ModeMetadata,
		MaxEntryBytes: imp.config.MaxEntryBytes,
	}
}

// Options describe where a single import came from.
type Options struct {
	// Transient marks a source that won't outlive the import, so the archive
	// is copied into the library before the book is saved.
	Transient bool
	// OriginalSource is the path or URI recorded for provenance. It defaults
	// to the imported path.
	OriginalSource  string
	SourceKind      string
	WatchedSourceID *int
}

// URIOptions control an import from a content URI.
type URIOptions struct {
	// BackupCopy stores a copy of the archive in the library. By default only
	// the URI is kept and the archive is read through it.
	BackupCopy      bool
	SourceKind      string
	WatchedSourceID *int
}
