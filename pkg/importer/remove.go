package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/books"
	"github.com/shishobooks/epubcore/pkg/fileutils"
)

func booksByID(id string) books.RetrieveBookOptions {
	return books.RetrieveBookOptions{ID: &id}
}

// Remove deletes a book from the library together with its cache entries,
// provenance records, cover and any archive copy the library owns.
func (imp *Importer) Remove(ctx context.Context, bookID string) error {
	log := logger.FromContext(ctx).Data(logger.Data{"book_id": bookID})

	book, err := imp.bookService.RetrieveBook(ctx, booksByID(bookID))
	if err != nil {
		return err
	}
	records, err := imp.sourceService.ListImportsForBook(ctx, bookID)
	if err != nil {
		return err
	}

	if err := imp.cache.DeleteForBook(ctx, bookID); err != nil {
		return err
	}
	if err := imp.sourceService.DeleteImportsForBook(ctx, bookID); err != nil {
		return err
	}
	if err := imp.bookService.DeleteBook(ctx, bookID); err != nil {
		return err
	}

	if err := fileutils.RemoveCovers(imp.config.CoverDir, bookID); err != nil {
		log.Err(err).Warn("failed to remove cover")
	}

	owned := map[string]bool{}
	if book.FilePath != nil && imp.ownsPath(*book.FilePath) {
		owned[*book.FilePath] = true
	}
	for _, rec := range records {
		if rec.ArchivePath != nil && imp.ownsPath(*rec.ArchivePath) {
			owned[*rec.ArchivePath] = true
		}
	}
	for p := range owned {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Err(err).Warn("failed to remove archive copy", logger.Data{"path": p})
		}
	}

	log.Info("removed book", logger.Data{"title": book.Title})
	return nil
}

// ownsPath reports whether p lies inside the library directory.
func (imp *Importer) ownsPath(p string) bool {
	rel, err := filepath.Rel(imp.config.LibraryDir, p)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
