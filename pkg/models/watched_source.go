package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	WatchedSourceKindDirectory = "directory"
	WatchedSourceKindURITree   = "uri_tree"
)

type WatchedSource struct {
	bun.BaseModel `bun:"table:watched_sources,alias:ws"`

	ID            int        `bun:",pk,autoincrement" json:"id"`
	CreatedAt     time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Kind          string     `json:"kind"`
	Location      string     `json:"location"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	BookCount     int        `json:"book_count"`
}
