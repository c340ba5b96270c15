package fileutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLibraryFileName(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		author   string
		original string
		expected string
	}{
		{
			name:     "title and author",
			title:    "Dune",
			author:   "Frank Herbert",
			original: "/incoming/dune.EPUB",
			expected: "[Frank Herbert] Dune.epub",
		},
		{
			name:     "no author",
			title:    "Dune",
			original: "dune.epub",
			expected: "Dune.epub",
		},
		{
			name:     "unsafe characters",
			title:    "What? A Title: Part 1/2",
			author:   "A <B>",
			original: "x.epub",
			expected: "[A B] What A Title Part 12.epub",
		},
		{
			name:     "nothing usable",
			title:    "...",
			original: "content://provider/document/42",
			expected: "Unknown.epub",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LibraryFileName(tt.title, tt.author, tt.original))
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	assert.Equal(t, "Quoted and 'single'", SanitizeForFilename("“Quoted” and ‘single’"))
	assert.Equal(t, "a b", SanitizeForFilename("  a \t\n b . "))
	assert.Len(t, SanitizeForFilename(strings.Repeat("x", 300)), 200)
}

func TestBaseNameWithoutExt(t *testing.T) {
	assert.Equal(t, "book", BaseNameWithoutExt("/a/b/book.epub"))
	assert.Equal(t, "archive.tar", BaseNameWithoutExt("archive.tar.gz"))
}
