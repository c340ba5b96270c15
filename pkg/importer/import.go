package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/epubcore/pkg/books"
	"github.com/shishobooks/epubcore/pkg/database"
	"github.com/shishobooks/epubcore/pkg/epub"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/fileutils"
	"github.com/shishobooks/epubcore/pkg/metacache"
	"github.com/shishobooks/epubcore/pkg/models"
)

// ImportFile imports the archive at filePath. A duplicate of an existing book
// fails with an errcodes.Duplicate error naming that book.
func (imp *Importer) ImportFile(ctx context.Context, filePath string, opts Options) (*models.Book, error) {
	return imp.importFile(ctx, filePath, opts, nil)
}

func (imp *Importer) importFile(ctx context.Context, filePath string, opts Options, report StageFunc) (*models.Book, error) {
	if abs, err := filepath.Abs(filePath); err == nil {
		filePath = abs
	}
	if opts.OriginalSource == "" {
		opts.OriginalSource = filePath
	}
	if opts.SourceKind == "" {
		opts.SourceKind = models.SourceKindIndividual
	}
	log := logger.FromContext(ctx).Data(logger.Data{"path": filePath})

	insp, err := imp.Inspect(ctx, filePath)
	if err != nil {
		return nil, err
	}
	report.report(StageParsed)

	if err := imp.checkDuplicate(ctx, insp); err != nil {
		return nil, err
	}

	bookID, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	book := books.NewBookFromPackage(insp.Package, insp.Checksum)
	book.ID = bookID.String()

	storedPath := filePath
	var archivePath *string
	if opts.Transient {
		storedPath, err = imp.placeInLibrary(ctx, filePath, insp)
		if err != nil {
			return nil, err
		}
		archivePath = pointerutil.String(storedPath)
	}
	book.FilePath = pointerutil.String(storedPath)
	book.CoverPath = imp.SaveCover(ctx, storedPath, insp.Package, book.ID)

	err = imp.withRetry(ctx, func() error {
		return imp.bookService.CreateBook(ctx, book)
	})
	if err != nil {
		imp.discard(book, archivePath)
		return nil, err
	}

	err = imp.finishImport(ctx, book, insp.Key, &models.ImportedFile{
		BookID:          book.ID,
		ArchivePath:     archivePath,
		OriginalSource:  opts.OriginalSource,
		SourceKind:      opts.SourceKind,
		WatchedSourceID: opts.WatchedSourceID,
	})
	if err != nil {
		imp.unwind(ctx, book, archivePath)
		return nil, err
	}
	report.report(StageAdded)

	log.Info("imported book", logger.Data{"book_id": book.ID, "title": book.Title, "cache_hit": insp.CacheHit})
	return book, nil
}

// ImportStream imports an archive that is only available as a stream. The
// stream is spooled to a temporary file that is removed before returning.
func (imp *Importer) ImportStream(ctx context.Context, r io.Reader, name string, opts Options) (*models.Book, error) {
	tmpPath, cleanup, err := fileutils.TempCopy(imp.config.TempDir, "stream-*.epub", r)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	// The temporary path is only meaningful to this import.
	defer func() {
		if err := imp.cache.Delete(ctx, metacache.KeyForPath(tmpPath)); err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to drop temporary cache entry")
		}
	}()

	opts.Transient = true
	if opts.OriginalSource == "" {
		opts.OriginalSource = name
	}
	return imp.importFile(ctx, tmpPath, opts, nil)
}

// ImportURI imports the document behind u. The book keeps the URI as its
// location unless a backup copy is requested.
func (imp *Importer) ImportURI(ctx context.Context, u string, opts URIOptions) (*models.Book, error) {
	return imp.importURI(ctx, u, opts, nil)
}

func (imp *Importer) importURI(ctx context.Context, u string, opts URIOptions, report StageFunc) (*models.Book, error) {
	if opts.SourceKind == "" {
		opts.SourceKind = models.SourceKindIndividual
	}
	log := logger.FromContext(ctx).Data(logger.Data{"uri": u})

	insp, doc, cleanup, err := imp.InspectURI(ctx, u)
	defer cleanup()
	if err != nil {
		return nil, err
	}
	report.report(StageParsed)

	if err := imp.checkDuplicate(ctx, insp); err != nil {
		return nil, err
	}

	bookID, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	book := books.NewBookFromPackage(insp.Package, insp.Checksum)
	book.ID = bookID.String()
	book.SourceURI = pointerutil.String(u)

	var archivePath *string
	if opts.BackupCopy {
		dst := fileutils.UniqueFilePath(imp.libraryPath(insp.Package, doc.Name))
		if err := fileutils.CopyFile(insp.LocalPath, dst); err != nil {
			return nil, err
		}
		archivePath = pointerutil.String(dst)
	}
	book.CoverPath = imp.SaveCover(ctx, insp.LocalPath, insp.Package, book.ID)

	err = imp.withRetry(ctx, func() error {
		return imp.bookService.CreateBook(ctx, book)
	})
	if err != nil {
		imp.discard(book, archivePath)
		return nil, err
	}

	err = imp.finishImport(ctx, book, insp.Key, &models.ImportedFile{
		BookID:          book.ID,
		ArchivePath:     archivePath,
		OriginalSource:  u,
		SourceKind:      opts.SourceKind,
		WatchedSourceID: opts.WatchedSourceID,
	})
	if err != nil {
		imp.unwind(ctx, book, archivePath)
		return nil, err
	}
	report.report(StageAdded)

	log.Info("imported book", logger.Data{"book_id": book.ID, "title": book.Title, "cache_hit": insp.CacheHit})
	return book, nil
}

func (imp *Importer) checkDuplicate(ctx context.Context, insp *Inspection) error {
	existing, err := imp.bookService.FindDuplicate(ctx, books.DuplicateCandidate{
		Title:    insp.Package.Metadata.Title,
		Author:   insp.Package.Metadata.Author,
		Size:     insp.Package.Size,
		Checksum: insp.Checksum,
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return errcodes.Duplicate(existing.Title, existing.Author)
	}
	return nil
}

func (imp *Importer) libraryPath(pkg *epub.Package, originalName string) string {
	name := fileutils.LibraryFileName(pkg.Metadata.Title, pkg.Metadata.Author, originalName)
	return filepath.Join(imp.config.LibraryDir, name)
}

// placeInLibrary copies a transient archive into the library and caches the
// parse result under its permanent path.
func (imp *Importer) placeInLibrary(ctx context.Context, filePath string, insp *Inspection) (string, error) {
	dst := fileutils.UniqueFilePath(imp.libraryPath(insp.Package, filePath))
	if err := fileutils.CopyFile(filePath, dst); err != nil {
		return "", err
	}

	info, err := os.Stat(dst)
	if err != nil {
		os.Remove(dst)
		return "", errors.WithStack(err)
	}

	placed := *insp.Package
	placed.SetSource(dst, info.Size(), info.ModTime())
	err = imp.withRetry(ctx, func() error {
		return imp.cache.Put(ctx, metacache.KeyForPath(dst), &placed, insp.Checksum, insp.ParseDuration)
	})
	if err != nil {
		os.Remove(dst)
		return "", err
	}
	insp.Key = metacache.KeyForPath(dst)

	return dst, nil
}

// SaveCover extracts the cover into the cover directory. Failures are logged
// and yield no cover.
func (imp *Importer) SaveCover(ctx context.Context, archivePath string, pkg *epub.Package, bookID string) *string {
	if pkg.CoverPath == "" {
		return nil
	}
	log := logger.FromContext(ctx).Data(logger.Data{"cover_path": pkg.CoverPath})

	archive, err := imp.openArchive(archivePath)
	if err != nil {
		log.Err(err).Warn("failed to open archive for cover")
		return nil
	}
	defer archive.Close()

	cover, err := epub.ExtractCover(archive, pkg, imp.config.MaxCoverBytes)
	if err != nil {
		log.Err(err).Warn("failed to extract cover")
		return nil
	}

	if err := os.MkdirAll(imp.config.CoverDir, 0755); err != nil {
		log.Err(err).Warn("failed to create cover directory")
		return nil
	}
	ext := cover.Extension
	if ext == "" || !strings.HasPrefix(ext, ".") {
		ext = ".img"
	}
	dst := filepath.Join(imp.config.CoverDir, bookID+ext)
	// A changed cover may come in a different format than the one on disk.
	if stale := fileutils.CoverExistsWithBaseName(imp.config.CoverDir, bookID); stale != "" && stale != dst {
		if err := os.Remove(stale); err != nil {
			log.Err(err).Warn("failed to remove previous cover", logger.Data{"previous": stale})
		}
	}
	if err := os.WriteFile(dst, cover.Data, 0644); err != nil {
		log.Err(err).Warn("failed to write cover")
		return nil
	}
	return pointerutil.String(dst)
}

// finishImport links the cache entry to the new book and records where it
// came from.
func (imp *Importer) finishImport(ctx context.Context, book *models.Book, cacheKey string, record *models.ImportedFile) error {
	if err := imp.cache.AssignBook(ctx, cacheKey, book.ID); err != nil {
		return err
	}
	return imp.sourceService.RecordImport(ctx, record)
}

// withRetry runs a write, retrying while another connection holds the
// database lock.
func (imp *Importer) withRetry(ctx context.Context, fn func() error) error {
	return database.RetryBusy(ctx, imp.config.DatabaseMaxRetries, fn)
}

// unwind deletes a book whose import could not be completed, along with the
// files written for it.
func (imp *Importer) unwind(ctx context.Context, book *models.Book, archivePath *string) {
	ctx = context.WithoutCancel(ctx)
	err := imp.withRetry(ctx, func() error {
		return imp.bookService.DeleteBook(ctx, book.ID)
	})
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to delete incomplete book", logger.Data{"book_id": book.ID})
	}
	imp.discard(book, archivePath)
}

// discard removes files written for a book that could not be saved.
func (imp *Importer) discard(book *models.Book, archivePath *string) {
	if book.CoverPath != nil {
		os.Remove(*book.CoverPath)
	}
	if archivePath != nil {
		os.Remove(*archivePath)
	}
}
