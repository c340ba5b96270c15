package models

import (
	"time"

	"github.com/uptrace/bun"
)

// CachedMetadata is a previously parsed package. Package holds the parse
// result as JSON and ModifiedAt is the source's modification time in unix
// milliseconds.
type CachedMetadata struct {
	bun.BaseModel `bun:"table:cached_metadata,alias:cm"`

	CacheKey        string    `bun:",pk"`
	CreatedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	BookID          *string
	Package         string
	Checksum        string
	ModifiedAt      int64
	Valid           bool
	ValidationError *string
	ParseDurationMs int64
}
