package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	SourceKindIndividual = "individual"
	SourceKindDirectory  = "directory"
	SourceKindRescan     = "rescan"
)

// ImportedFile records where a book came from. It is used for provenance and
// duplicate suppression only.
type ImportedFile struct {
	bun.BaseModel `bun:"table:imported_files,alias:imf"`

	ID              int       `bun:",pk,autoincrement" json:"id"`
	ImportedAt      time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"imported_at"`
	BookID          string    `json:"book_id"`
	ArchivePath     *string   `json:"archive_path,omitempty"`
	OriginalSource  string    `json:"original_source"`
	SourceKind      string    `json:"source_kind"`
	WatchedSourceID *int      `json:"watched_source_id,omitempty"`
}
