// Package metacache stores parsed packages keyed by source so unchanged
// archives are never parsed twice.
package metacache

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/epubcore/pkg/epub"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/uptrace/bun"
)

type Cache struct {
	db *bun.DB
}

func New(db *bun.DB) *Cache {
	return &Cache{db}
}

// Entry is a decoded cache row.
type Entry struct {
	Key             string
	BookID          *string
	Package         *epub.Package
	Checksum        string
	ModifiedAt      int64
	Valid           bool
	ValidationError *string
	ParseDuration   time.Duration
	UpdatedAt       time.Time
}

func (c *Cache) retrieve(ctx context.Context, key string) (*models.CachedMetadata, error) {
	row := &models.CachedMetadata{}
	err := c.db.NewSelect().
		Model(row).
		Where("cm.cache_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return row, nil
}

// Get returns the valid entry stored under key. A missing or invalidated
// entry is a miss and yields nil without an error.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	row, err := c.retrieve(ctx, key)
	if err != nil || row == nil || !row.Valid {
		return nil, err
	}

	pkg := &epub.Package{}
	if err := json.Unmarshal([]byte(row.Package), pkg); err != nil {
		return nil, errors.Wrapf(err, "decode cached package %s", key)
	}

	return &Entry{
		Key:             row.CacheKey,
		BookID:          row.BookID,
		Package:         pkg,
		Checksum:        row.Checksum,
		ModifiedAt:      row.ModifiedAt,
		Valid:           row.Valid,
		ValidationError: row.ValidationError,
		ParseDuration:   time.Duration(row.ParseDurationMs) * time.Millisecond,
		UpdatedAt:       row.UpdatedAt,
	}, nil
}

// IsValid reports whether a valid entry exists for key whose checksum and
// modification time both match exactly.
func (c *Cache) IsValid(ctx context.Context, key, checksum string, modifiedAt time.Time) (bool, error) {
	row, err := c.retrieve(ctx, key)
	if err != nil || row == nil {
		return false, err
	}
	return row.Valid &&
		row.Checksum == checksum &&
		row.ModifiedAt == modifiedAt.UnixMilli(), nil
}

// Put stores pkg under key, replacing any previous entry and clearing its
// invalidation.
func (c *Cache) Put(ctx context.Context, key string, pkg *epub.Package, checksum string, parseDuration time.Duration) error {
	data, err := json.Marshal(pkg)
	if err != nil {
		return errors.WithStack(err)
	}

	now := time.Now()
	row := &models.CachedMetadata{
		CacheKey:        key,
		CreatedAt:       now,
		UpdatedAt:       now,
		Package:         string(data),
		Checksum:        checksum,
		ModifiedAt:      pkg.ModifiedAt.UnixMilli(),
		Valid:           true,
		ParseDurationMs: parseDuration.Milliseconds(),
	}

	_, err = c.db.NewInsert().
		Model(row).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("package = EXCLUDED.package").
		Set("checksum = EXCLUDED.checksum").
		Set("modified_at = EXCLUDED.modified_at").
		Set("valid = TRUE").
		Set("validation_error = NULL").
		Set("parse_duration_ms = EXCLUDED.parse_duration_ms").
		Exec(ctx)
	return errors.WithStack(err)
}

// AssignBook links the entry to a library book so that it is removed with
// the book.
func (c *Cache) AssignBook(ctx context.Context, key, bookID string) error {
	_, err := c.db.NewUpdate().
		Model((*models.CachedMetadata)(nil)).
		Set("book_id = ?", bookID).
		Where("cache_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

// Invalidate marks the entry invalid and records why. The row is kept for
// diagnostics until a cleanup pass removes it.
func (c *Cache) Invalidate(ctx context.Context, key, reason string) error {
	_, err := c.db.NewUpdate().
		Model((*models.CachedMetadata)(nil)).
		Set("valid = FALSE").
		Set("validation_error = ?", reason).
		Set("updated_at = ?", time.Now()).
		Where("cache_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.db.NewDelete().
		Model((*models.CachedMetadata)(nil)).
		Where("cache_key = ?", key).
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteForBook removes every entry linked to the book.
func (c *Cache) DeleteForBook(ctx context.Context, bookID string) error {
	_, err := c.db.NewDelete().
		Model((*models.CachedMetadata)(nil)).
		Where("book_id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}
