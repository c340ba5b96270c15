// Package rescan reconciles the library with its watched sources. New files
// are imported, changed files are merged into their books and unchanged
// files are left alone.
package rescan

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/books"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/importer"
	"github.com/shishobooks/epubcore/pkg/metacache"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/shishobooks/epubcore/pkg/sources"
	"github.com/shishobooks/epubcore/pkg/uri"
	"github.com/uptrace/bun"
)

type Reconciler struct {
	config *config.Config

	importer      *importer.Importer
	bookService   *books.Service
	cache         *metacache.Cache
	sourceService *sources.Service
	resolver      uri.Resolver
}

func New(cfg *config.Config, db *bun.DB, imp *importer.Importer) *Reconciler {
	return &Reconciler{
		config: cfg,

		importer:      imp,
		bookService:   books.NewService(db),
		cache:         metacache.New(db),
		sourceService: sources.NewService(db),
		resolver:      imp.Resolver(),
	}
}

// candidate is one file found in a watched source. Location is a path for
// directory sources and a document URI for tree sources.
type candidate struct {
	source       *models.WatchedSource
	name         string
	relativePath string
	location     string
}

func (c candidate) isURI() bool {
	return c.source.Kind == models.WatchedSourceKindURITree
}

type verdict int

const (
	verdictImported verdict = iota
	verdictUpdated
	verdictUnchanged
)

// Run rescans every watched source. Files are processed sequentially and a
// failing file is recorded without stopping the run. Cancellation is checked
// between files.
func (r *Reconciler) Run(ctx context.Context, progress importer.ProgressFunc) (*models.ImportOutcome, error) {
	log := logger.FromContext(ctx)
	outcome := &models.ImportOutcome{}

	watched, err := r.sourceService.ListWatchedSources(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, source := range watched {
		found, err := r.enumerate(ctx, source)
		if err != nil {
			outcome.Record(filepath.Base(source.Location), source.Location, err)
			log.Err(err).Warn("failed to enumerate watched source", logger.Data{"location": source.Location})
			continue
		}
		candidates = append(candidates, found...)
	}
	log.Info("rescanning watched sources", logger.Data{"sources": len(watched), "files": len(candidates)})

	for i, c := range candidates {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			log.Info("rescan cancelled", logger.Data{"processed": i, "total": len(candidates)})
			break
		}

		report := progress.ForFile(i, len(candidates), c.name)
		report(importer.StageStarted)

		// The file in flight runs to completion once started.
		v, bookID, err := r.reconcile(context.WithoutCancel(ctx), c, report)
		switch {
		case err != nil:
			outcome.Record(c.name, c.relativePath, err)
			log.Err(err).Warn("file not reconciled", logger.Data{"file": c.relativePath, "code": errcodes.Code(err)})
		case v == verdictImported:
			outcome.RecordImported(bookID)
		case v == verdictUpdated:
			outcome.RecordUpdated(bookID)
		default:
			outcome.RecordUnchanged()
		}

		report(importer.StageCompleted)
	}

	// Bookkeeping must finish even when the run was cancelled.
	bg := context.WithoutCancel(ctx)
	if !outcome.Cancelled {
		now := time.Now()
		for _, source := range watched {
			if err := r.sourceService.MarkScanned(bg, source, now); err != nil {
				return outcome, err
			}
		}
	}
	r.housekeeping(bg)

	log.Info("finished rescan", logger.Data{
		"processed": outcome.Processed(),
		"imported":  outcome.Imported,
		"updated":   outcome.Updated,
		"skipped":   outcome.Skipped,
		"failed":    outcome.Failed,
		"cancelled": outcome.Cancelled,
	})
	return outcome, nil
}

func (r *Reconciler) enumerate(ctx context.Context, source *models.WatchedSource) ([]candidate, error) {
	var found []candidate

	if source.Kind == models.WatchedSourceKindURITree {
		docs, err := r.resolver.Walk(ctx, source.Location)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			if importer.IsEPUBName(doc.Name) {
				found = append(found, candidate{source: source, name: doc.Name, relativePath: doc.RelativePath, location: doc.URI})
			}
		}
		return found, nil
	}

	files, err := importer.ListEPUBs(source.Location)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		rel, err := filepath.Rel(source.Location, f)
		if err != nil {
			rel = filepath.Base(f)
		}
		found = append(found, candidate{source: source, name: filepath.Base(f), relativePath: filepath.ToSlash(rel), location: f})
	}
	return found, nil
}

func (r *Reconciler) reconcile(ctx context.Context, c candidate, report importer.StageFunc) (verdict, string, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"location": c.location})

	var insp *importer.Inspection
	var err error
	if c.isURI() {
		var cleanup func()
		insp, _, cleanup, err = r.importer.InspectURI(ctx, c.location)
		defer cleanup()
	} else {
		insp, err = r.importer.Inspect(ctx, c.location)
	}
	if err != nil {
		return 0, "", err
	}
	report(importer.StageParsed)

	book, err := r.findKnown(ctx, c, insp)
	if err != nil {
		return 0, "", err
	}

	if book == nil {
		book, err = r.importNew(ctx, c)
		if err != nil {
			return 0, "", err
		}
		report(importer.StageAdded)
		return verdictImported, book.ID, nil
	}

	if book.Checksum != nil && *book.Checksum == insp.Checksum {
		if err := r.relocate(ctx, book, c); err != nil {
			return 0, "", err
		}
		if err := r.cache.AssignBook(ctx, insp.Key, book.ID); err != nil {
			return 0, "", err
		}
		return verdictUnchanged, book.ID, nil
	}

	cover := r.importer.SaveCover(ctx, insp.LocalPath, insp.Package, book.ID)
	columns := books.MergePackage(book, insp.Package, books.MergeOptions{
		Checksum:  insp.Checksum,
		CoverPath: cover,
	})
	if err := r.bookService.UpdateBook(ctx, book, books.UpdateBookOptions{Columns: columns}); err != nil {
		return 0, "", err
	}
	if err := r.cache.AssignBook(ctx, insp.Key, book.ID); err != nil {
		return 0, "", err
	}
	report(importer.StageAdded)

	log.Info("updated changed book", logger.Data{"book_id": book.ID, "user_edited": book.UserEdited})
	return verdictUpdated, book.ID, nil
}

// findKnown looks the candidate up by location, then by provenance, then by
// content checksum. It returns nil when the file is new to the library.
func (r *Reconciler) findKnown(ctx context.Context, c candidate, insp *importer.Inspection) (*models.Book, error) {
	location := c.location
	opts := books.RetrieveBookOptions{FilePath: &location}
	if c.isURI() {
		opts = books.RetrieveBookOptions{SourceURI: &location}
	}

	book, err := r.bookService.RetrieveBook(ctx, opts)
	if err == nil || !errcodes.IsNotFound(err) {
		return book, err
	}

	record, err := r.sourceService.FindImport(ctx, c.location)
	if err != nil {
		return nil, err
	}
	if record != nil {
		id := record.BookID
		book, err := r.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &id})
		if err == nil || !errcodes.IsNotFound(err) {
			return book, err
		}
	}

	checksum := insp.Checksum
	book, err = r.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{Checksum: &checksum})
	if errcodes.IsNotFound(err) {
		return nil, nil
	}
	return book, err
}

// relocate points a book at c when its stored file has disappeared, which is
// how a moved file shows up.
func (r *Reconciler) relocate(ctx context.Context, book *models.Book, c candidate) error {
	if c.isURI() || book.FilePath == nil || *book.FilePath == c.location {
		return nil
	}
	if _, err := os.Stat(*book.FilePath); err == nil {
		return nil
	}

	location := c.location
	book.FilePath = &location
	err := r.bookService.UpdateBook(ctx, book, books.UpdateBookOptions{Columns: []string{"file_path"}})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("relocated moved book", logger.Data{"book_id": book.ID, "path": location})
	return nil
}

func (r *Reconciler) importNew(ctx context.Context, c candidate) (*models.Book, error) {
	sourceID := c.source.ID
	if c.isURI() {
		return r.importer.ImportURI(ctx, c.location, importer.URIOptions{
			SourceKind:      models.SourceKindRescan,
			WatchedSourceID: &sourceID,
		})
	}
	return r.importer.ImportFile(ctx, c.location, importer.Options{
		SourceKind:      models.SourceKindRescan,
		WatchedSourceID: &sourceID,
	})
}

// housekeeping drops invalid and expired cache entries. Failures are logged.
func (r *Reconciler) housekeeping(ctx context.Context) {
	log := logger.FromContext(ctx)

	invalid, err := r.cache.CleanupInvalid(ctx)
	if err != nil {
		log.Err(err).Warn("failed to clean up invalid cache entries")
	}

	var expired int
	if r.config.CacheMaxAge > 0 {
		expired, err = r.cache.CleanupOlderThan(ctx, r.config.CacheMaxAge)
		if err != nil {
			log.Err(err).Warn("failed to clean up expired cache entries")
		}
	}

	if invalid > 0 || expired > 0 {
		log.Info("cleaned up metadata cache", logger.Data{"invalid": invalid, "expired": expired})
	}
}
