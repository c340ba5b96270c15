package books

import (
	"strings"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/epubcore/pkg/epub"
	"github.com/shishobooks/epubcore/pkg/models"
)

// Columns written from a parsed package. Technical columns describe the file
// and always follow it. Content columns are bibliographic and are left alone
// once a user has edited the book.
var (
	TechnicalColumns = []string{"chapter_count", "file_size", "checksum"}
	ContentColumns   = []string{"description", "publisher", "language", "isbn", "published", "published_at", "rights", "subjects"}
)

// NewBookFromPackage builds an unsaved book from a parse result.
func NewBookFromPackage(pkg *epub.Package, checksum string) *models.Book {
	book := &models.Book{
		Title:  pkg.Metadata.Title,
		Author: pkg.Metadata.Author,
	}
	applyTechnical(book, pkg, checksum)
	applyContent(book, pkg)
	return book
}

type MergeOptions struct {
	// Checksum is the current checksum of the source.
	Checksum string
	// CoverPath replaces the stored cover when non-nil.
	CoverPath *string
}

// MergePackage copies a fresh parse of a changed source onto an existing
// book and returns the columns that need saving. Content fields are only
// touched when the book hasn't been edited by a user.
func MergePackage(book *models.Book, pkg *epub.Package, opts MergeOptions) []string {
	applyTechnical(book, pkg, opts.Checksum)
	columns := append([]string{}, TechnicalColumns...)

	if opts.CoverPath != nil {
		book.CoverPath = opts.CoverPath
		columns = append(columns, "cover_path")
	}

	if !book.UserEdited {
		applyContent(book, pkg)
		columns = append(columns, ContentColumns...)
	}

	return columns
}

func applyTechnical(book *models.Book, pkg *epub.Package, checksum string) {
	book.ChapterCount = pkg.ChapterCount
	if book.ChapterCount < 1 {
		book.ChapterCount = 1
	}
	book.FileSize = pkg.Size
	if checksum != "" {
		book.Checksum = pointerutil.String(checksum)
	}
}

func applyContent(book *models.Book, pkg *epub.Package) {
	md := pkg.Metadata
	book.Description = optional(md.Description)
	book.Publisher = optional(md.Publisher)
	book.Language = optional(md.Language)
	book.ISBN = optional(md.ISBN)
	book.Published = optional(md.Published)
	book.PublishedAt = md.PublishedAt
	book.Rights = optional(md.Rights)
	book.Subjects = nil
	if len(md.Subjects) > 0 {
		book.Subjects = append([]string{}, md.Subjects...)
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return pointerutil.String(s)
}
