package importer

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/models"
)

// IsEPUBName reports whether name looks like an EPUB file.
func IsEPUBName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".epub") && !strings.HasPrefix(filepath.Base(name), ".")
}

// ListEPUBs returns every EPUB below dir in a stable order, skipping hidden
// directories.
func ListEPUBs(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsEPUBName(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(files)
	return files, nil
}

// bulkItem is one file of a bulk operation.
type bulkItem struct {
	name         string
	relativePath string
	source       string
}

// runBulk processes items sequentially. A failure is recorded and the loop
// moves on. Cancellation is checked between files and stops the loop without
// undoing earlier imports. The file in flight always runs to completion.
func runBulk(ctx context.Context, items []bulkItem, progress ProgressFunc, fn func(ctx context.Context, item bulkItem, report StageFunc) (*models.Book, error)) *models.ImportOutcome {
	log := logger.FromContext(ctx)
	outcome := &models.ImportOutcome{}

	for i, item := range items {
		if ctx.Err() != nil {
			outcome.Cancelled = true
			log.Info("bulk import cancelled", logger.Data{"processed": i, "total": len(items)})
			break
		}

		report := progress.ForFile(i, len(items), item.name)
		report(StageStarted)

		book, err := fn(context.WithoutCancel(ctx), item, report)
		if err != nil {
			outcome.Record(item.name, item.relativePath, err)
			log.Err(err).Warn("file not imported", logger.Data{"file": item.relativePath, "code": errcodes.Code(err)})
		} else {
			outcome.RecordImported(book.ID)
		}

		report(StageCompleted)
	}

	return outcome
}

// skipKnown fails with a duplicate error when source was already imported
// for a book that still exists.
func (imp *Importer) skipKnown(ctx context.Context, source string) error {
	record, err := imp.sourceService.FindImport(ctx, source)
	if err != nil || record == nil {
		return err
	}
	book, err := imp.bookService.RetrieveBook(ctx, booksByID(record.BookID))
	if err != nil {
		if errcodes.IsNotFound(err) {
			return nil
		}
		return err
	}
	return errcodes.Duplicate(book.Title, book.Author)
}

// ImportDirectory imports every EPUB below dir and registers dir as a
// watched source. Files stay where they are.
func (imp *Importer) ImportDirectory(ctx context.Context, dir string, progress ProgressFunc) (*models.ImportOutcome, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	log := logger.FromContext(ctx).Data(logger.Data{"directory": dir})
	ctx = log.WithContext(ctx)

	files, err := ListEPUBs(dir)
	if err != nil {
		return nil, err
	}

	source, err := imp.sourceService.RegisterWatchedSource(ctx, models.WatchedSourceKindDirectory, dir)
	if err != nil {
		return nil, err
	}

	items := make([]bulkItem, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			rel = filepath.Base(f)
		}
		items = append(items, bulkItem{name: filepath.Base(f), relativePath: filepath.ToSlash(rel), source: f})
	}

	log.Info("importing directory", logger.Data{"files": len(items)})
	outcome := runBulk(ctx, items, progress, func(ctx context.Context, item bulkItem, report StageFunc) (*models.Book, error) {
		if err := imp.skipKnown(ctx, item.source); err != nil {
			return nil, err
		}
		return imp.importFile(ctx, item.source, Options{
			SourceKind:      models.SourceKindDirectory,
			WatchedSourceID: pointerutil.Int(source.ID),
		}, report)
	})

	if !outcome.Cancelled {
		if err := imp.sourceService.MarkScanned(context.WithoutCancel(ctx), source, time.Now()); err != nil {
			return outcome, err
		}
	}

	log.Info("finished importing directory", logger.Data{
		"processed": outcome.Processed(),
		"imported":  outcome.Imported,
		"skipped":   outcome.Skipped,
		"failed":    outcome.Failed,
		"cancelled": outcome.Cancelled,
	})
	return outcome, nil
}

// ImportTree imports every EPUB below a tree URI and registers the tree as a
// watched source. Books keep their document URIs.
func (imp *Importer) ImportTree(ctx context.Context, treeURI string, progress ProgressFunc) (*models.ImportOutcome, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"tree": treeURI})
	ctx = log.WithContext(ctx)

	docs, err := imp.resolver.Walk(ctx, treeURI)
	if err != nil {
		return nil, err
	}

	source, err := imp.sourceService.RegisterWatchedSource(ctx, models.WatchedSourceKindURITree, treeURI)
	if err != nil {
		return nil, err
	}

	var items []bulkItem
	for _, doc := range docs {
		if !IsEPUBName(doc.Name) {
			continue
		}
		items = append(items, bulkItem{name: doc.Name, relativePath: doc.RelativePath, source: doc.URI})
	}

	log.Info("importing tree", logger.Data{"files": len(items)})
	outcome := runBulk(ctx, items, progress, func(ctx context.Context, item bulkItem, report StageFunc) (*models.Book, error) {
		if err := imp.skipKnown(ctx, item.source); err != nil {
			return nil, err
		}
		return imp.importURI(ctx, item.source, URIOptions{
			SourceKind:      models.SourceKindDirectory,
			WatchedSourceID: pointerutil.Int(source.ID),
		}, report)
	})

	if !outcome.Cancelled {
		if err := imp.sourceService.MarkScanned(context.WithoutCancel(ctx), source, time.Now()); err != nil {
			return outcome, err
		}
	}

	log.Info("finished importing tree", logger.Data{
		"processed": outcome.Processed(),
		"imported":  outcome.Imported,
		"skipped":   outcome.Skipped,
		"failed":    outcome.Failed,
		"cancelled": outcome.Cancelled,
	})
	return outcome, nil
}
