package metacache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/models"
)

// CleanupInvalid deletes every invalidated entry and returns how many were
// removed.
func (c *Cache) CleanupInvalid(ctx context.Context) (int, error) {
	res, err := c.db.NewDelete().
		Model((*models.CachedMetadata)(nil)).
		Where("valid = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CleanupOlderThan deletes entries that haven't been written within age.
func (c *Cache) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	res, err := c.db.NewDelete().
		Model((*models.CachedMetadata)(nil)).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
