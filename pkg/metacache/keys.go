package metacache

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

func digest(prefix, value string) string {
	sum := blake2b.Sum256([]byte(prefix + "\x00" + value))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// KeyForPath is the cache key of a file source.
func KeyForPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return digest("path", filepath.Clean(p))
}

// KeyForURI is the cache key of a content URI source.
func KeyForURI(uri string) string {
	return digest("uri", strings.TrimSpace(uri))
}

// MetadataChecksum is the change fingerprint used for sources whose bytes
// can't be hashed cheaply. It only covers title, author, size, modification
// time and chapter count, so a content edit that leaves all five unchanged
// goes unnoticed.
func MetadataChecksum(title, author string, size int64, modifiedAt time.Time, chapterCount int) string {
	key := fmt.Sprintf("%s\x1f%s\x1f%d\x1f%d\x1f%d",
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(author)),
		size,
		modifiedAt.UnixMilli(),
		chapterCount,
	)
	sum := blake2b.Sum256([]byte(key))
	return "meta:" + hex.EncodeToString(sum[:])
}
