package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE books (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				match_key TEXT NOT NULL,
				description TEXT,
				publisher TEXT,
				language TEXT,
				isbn TEXT,
				published TEXT,
				published_at TIMESTAMPTZ,
				rights TEXT,
				subjects TEXT,
				chapter_count INTEGER NOT NULL DEFAULT 1,
				cover_path TEXT,
				file_path TEXT,
				source_uri TEXT,
				file_size INTEGER NOT NULL DEFAULT 0,
				checksum TEXT,
				user_edited BOOLEAN NOT NULL DEFAULT FALSE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_match_key ON books (match_key)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_checksum ON books (checksum)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_books_file_path ON books (file_path) WHERE file_path IS NOT NULL`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE cached_metadata (
				cache_key TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id TEXT REFERENCES books (id) ON DELETE CASCADE,
				package TEXT NOT NULL,
				checksum TEXT NOT NULL,
				modified_at INTEGER NOT NULL DEFAULT 0,
				valid BOOLEAN NOT NULL DEFAULT TRUE,
				validation_error TEXT,
				parse_duration_ms INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_cached_metadata_valid_updated_at ON cached_metadata (valid, updated_at)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE watched_sources (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				kind TEXT NOT NULL,
				location TEXT NOT NULL,
				last_scanned_at TIMESTAMPTZ,
				book_count INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_watched_sources_location ON watched_sources (location)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE imported_files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				imported_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				archive_path TEXT,
				original_source TEXT NOT NULL,
				source_kind TEXT NOT NULL,
				watched_source_id INTEGER REFERENCES watched_sources (id) ON DELETE SET NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_imported_files_original_source ON imported_files (original_source)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_imported_files_book_id ON imported_files (book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"imported_files", "watched_sources", "cached_metadata", "books"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
