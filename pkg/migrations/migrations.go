package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema change. Files in this package register
// themselves from init.
var Migrations = migrate.NewMigrations()

// NewMigrator returns a migrator over the registered migrations.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations)
}

// BringUpToDate creates the bookkeeping tables when needed and applies every
// pending migration while holding the migration lock. A group with a zero ID
// means nothing was pending.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	var group *migrate.MigrationGroup
	err := WithLock(ctx, migrator, func() error {
		var err error
		group, err = migrator.Migrate(ctx)
		return err
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// WithLock runs fn while holding the migration lock.
func WithLock(ctx context.Context, migrator *migrate.Migrator, fn func() error) error {
	if err := migrator.Lock(ctx); err != nil {
		return errors.Wrap(err, "acquire migration lock")
	}
	err := fn()
	if unlockErr := migrator.Unlock(ctx); unlockErr != nil && err == nil {
		err = errors.Wrap(unlockErr, "release migration lock")
	}
	return err
}
