package sources

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/models"
)

func (svc *Service) RecordImport(ctx context.Context, record *models.ImportedFile) error {
	if record.ImportedAt.IsZero() {
		record.ImportedAt = time.Now()
	}
	_, err := svc.db.NewInsert().
		Model(record).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

// FindImport returns the most recent record for the original source, or nil
// when it was never imported.
func (svc *Service) FindImport(ctx context.Context, originalSource string) (*models.ImportedFile, error) {
	var records []*models.ImportedFile
	err := svc.db.NewSelect().
		Model(&records).
		Where("imf.original_source = ?", originalSource).
		Order("imf.imported_at DESC", "imf.id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (svc *Service) ListImportsForBook(ctx context.Context, bookID string) ([]*models.ImportedFile, error) {
	records := []*models.ImportedFile{}
	err := svc.db.NewSelect().
		Model(&records).
		Where("imf.book_id = ?", bookID).
		Order("imf.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return records, nil
}

func (svc *Service) DeleteImportsForBook(ctx context.Context, bookID string) error {
	_, err := svc.db.NewDelete().
		Model((*models.ImportedFile)(nil)).
		Where("book_id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}
