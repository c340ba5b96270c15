package books

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchKey is the Unicode case-folded, whitespace-normalized form of title
// and author used for duplicate detection.
func MatchKey(title, author string) string {
	return foldForMatch(title) + "\x1f" + foldForMatch(author)
}

func foldForMatch(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// DuplicateCandidate describes a book about to be imported.
type DuplicateCandidate struct {
	Title    string
	Author   string
	Size     int64
	Checksum string
}

// FindDuplicate returns the library book the candidate duplicates, or nil.
// A book is a duplicate when its title and author match the candidate's
// ignoring case, and either the sizes are equal or both checksums are known
// and equal.
func (svc *Service) FindDuplicate(ctx context.Context, c DuplicateCandidate) (*models.Book, error) {
	var matches []*models.Book
	err := svc.db.NewSelect().
		Model(&matches).
		Where("b.match_key = ?", MatchKey(c.Title, c.Author)).
		Order("b.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, book := range matches {
		if c.Size > 0 && book.FileSize == c.Size {
			return book, nil
		}
		if c.Checksum != "" && book.Checksum != nil && *book.Checksum == c.Checksum {
			return book, nil
		}
	}
	return nil, nil
}
