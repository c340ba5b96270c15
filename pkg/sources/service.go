// Package sources tracks watched import sources and the provenance of every
// imported file.
package sources

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// RegisterWatchedSource creates the source for location, or returns the
// existing one.
func (svc *Service) RegisterWatchedSource(ctx context.Context, kind, location string) (*models.WatchedSource, error) {
	now := time.Now()
	source := &models.WatchedSource{
		CreatedAt: now,
		UpdatedAt: now,
		Kind:      kind,
		Location:  location,
	}

	_, err := svc.db.NewInsert().
		Model(source).
		On("CONFLICT (location) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return source, nil
}

func (svc *Service) RetrieveWatchedSource(ctx context.Context, location string) (*models.WatchedSource, error) {
	source := &models.WatchedSource{}
	err := svc.db.NewSelect().
		Model(source).
		Where("ws.location = ?", location).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Watched source")
		}
		return nil, errors.WithStack(err)
	}
	return source, nil
}

func (svc *Service) ListWatchedSources(ctx context.Context) ([]*models.WatchedSource, error) {
	sources := []*models.WatchedSource{}
	err := svc.db.NewSelect().
		Model(&sources).
		Order("ws.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return sources, nil
}

// MarkScanned records a completed scan of the source and the number of
// library books it now accounts for.
func (svc *Service) MarkScanned(ctx context.Context, source *models.WatchedSource, scannedAt time.Time) error {
	var count int
	err := svc.db.NewSelect().
		Model((*models.ImportedFile)(nil)).
		ColumnExpr("COUNT(DISTINCT imf.book_id)").
		Where("imf.watched_source_id = ?", source.ID).
		Scan(ctx, &count)
	if err != nil {
		return errors.WithStack(err)
	}

	source.LastScannedAt = &scannedAt
	source.BookCount = count
	source.UpdatedAt = time.Now()

	_, err = svc.db.NewUpdate().
		Model(source).
		Column("last_scanned_at", "book_count", "updated_at").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

