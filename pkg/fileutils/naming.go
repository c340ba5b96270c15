package fileutils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	smartDoubleQuotes = regexp.MustCompile(`[“”]`)
	smartSingleQuotes = regexp.MustCompile(`[‘’]`)
	invalidChars      = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespace        = regexp.MustCompile(`\s+`)
)

// LibraryFileName creates the name an archive gets when it is copied into the
// library: "[Author] Title.ext".
func LibraryFileName(title, author, originalFilepath string) string {
	ext := strings.ToLower(filepath.Ext(originalFilepath))
	if ext == "" {
		ext = ".epub"
	}

	var parts []string
	if author = SanitizeForFilename(author); author != "" {
		parts = append(parts, fmt.Sprintf("[%s]", author))
	}
	if title = SanitizeForFilename(title); title != "" {
		parts = append(parts, title)
	}

	name := strings.Join(parts, " ")
	if name == "" {
		name = "Unknown"
	}

	return name + ext
}

// SanitizeForFilename removes or replaces characters that are not safe for
// filenames.
func SanitizeForFilename(name string) string {
	name = smartDoubleQuotes.ReplaceAllString(name, `"`)
	name = smartSingleQuotes.ReplaceAllString(name, `'`)

	// Different operating systems have different restrictions, so we'll be
	// conservative.
	name = invalidChars.ReplaceAllString(name, "")
	name = whitespace.ReplaceAllString(name, " ")

	// Windows doesn't like trailing dots.
	name = strings.Trim(name, " .")

	if len(name) > 200 {
		name = name[:200]
		name = strings.Trim(name, " .")
	}

	return name
}

// BaseNameWithoutExt returns the filename without its directory and
// extension.
func BaseNameWithoutExt(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
