package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID           string     `bun:",pk" json:"id"`
	CreatedAt    time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	MatchKey     string     `json:"-"`
	Description  *string    `json:"description,omitempty"`
	Publisher    *string    `json:"publisher,omitempty"`
	Language     *string    `json:"language,omitempty"`
	ISBN         *string    `bun:"isbn" json:"isbn,omitempty"`
	Published    *string    `json:"published,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	Rights       *string    `json:"rights,omitempty"`
	Subjects     []string   `bun:",nullzero" json:"subjects,omitempty"`
	ChapterCount int        `json:"chapter_count"`
	CoverPath    *string    `json:"cover_path,omitempty"`
	FilePath     *string    `json:"file_path,omitempty"`
	SourceURI    *string    `bun:"source_uri" json:"source_uri,omitempty"`
	FileSize     int64      `json:"file_size"`
	Checksum     *string    `json:"checksum,omitempty"`
	UserEdited   bool       `json:"user_edited"`
}

// Location is the path or URI the book is read from.
func (b *Book) Location() string {
	if b.FilePath != nil {
		return *b.FilePath
	}
	if b.SourceURI != nil {
		return *b.SourceURI
	}
	return ""
}
