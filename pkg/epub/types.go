package epub

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/shishobooks/epubcore/pkg/container"
)

// Mode selects how much of a package is resolved.
type Mode int

const (
	// ModeMetadata resolves bibliographic metadata, the cover path and the
	// chapter count. It is the mode used for every bulk operation.
	ModeMetadata Mode = iota
	// ModeFull additionally resolves chapters, the table of contents and the
	// image alias map. Chapter bodies are still loaded lazily.
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "metadata"
}

// Strategy names the way the package document was located.
type Strategy string

const (
	StrategyContainer    Strategy = "container"
	StrategyConventional Strategy = "conventional"
	StrategyScan         Strategy = "scan"
	StrategyGenerated    Strategy = "generated"
)

const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown Author"

	DefaultMaxEntryBytes = 64 << 20
)

type Options struct {
	Mode Mode
	// MaxEntryBytes bounds every entry read while parsing. Zero means
	// DefaultMaxEntryBytes.
	MaxEntryBytes int64
}

func (o Options) maxEntryBytes() int64 {
	if o.MaxEntryBytes <= 0 {
		return DefaultMaxEntryBytes
	}
	return o.MaxEntryBytes
}

type Metadata struct {
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	Publisher   string     `json:"publisher"`
	Language    string     `json:"language"`
	ISBN        string     `json:"isbn"`
	Published   string     `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	Rights      string     `json:"rights"`
	Subjects    []string   `json:"subjects"`
}

// Chapter is one spine item. Href is relative to the package document and
// Path is the archive entry it resolves to. Content stays empty until
// LoadChapter is called.
type Chapter struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Href    string `json:"href"`
	Path    string `json:"path"`
	Order   int    `json:"order"`
	Content string `json:"content"`
}

func placeholderTitle(order int) string {
	return fmt.Sprintf("Chapter %d", order)
}

// HasPlaceholderTitle reports whether the title was never resolved.
func (ch Chapter) HasPlaceholderTitle() bool {
	return ch.Title == "" || ch.Title == placeholderTitle(ch.Order)
}

// TocEntry is a node of the navigation tree. Href is an archive path and may
// carry a fragment.
type TocEntry struct {
	Title    string     `json:"title"`
	Href     string     `json:"href"`
	Children []TocEntry `json:"children"`
}

// Package is the result of parsing one archive.
type Package struct {
	Metadata            Metadata          `json:"metadata"`
	Chapters            []Chapter         `json:"chapters"`
	Toc                 []TocEntry        `json:"toc"`
	CoverPath           string            `json:"cover_path"`
	SourcePath          string            `json:"source_path"`
	Size                int64             `json:"size"`
	ModifiedAt          time.Time         `json:"modified_at"`
	ImageAliases        map[string]string `json:"image_aliases"`
	PackageDocumentPath string            `json:"package_document_path"`
	ChapterCount        int               `json:"chapter_count"`
	ResolvedBy          Strategy          `json:"resolved_by"`
	Conformant          bool              `json:"conformant"`
	Mode                Mode              `json:"mode"`
}

// Generated reports whether the package was derived from archive structure
// instead of a package document.
func (p *Package) Generated() bool {
	return p.ResolvedBy == StrategyGenerated
}

// SetSource records where the archive came from. Modification times are kept
// in UTC at millisecond precision so that cached copies compare equal.
func (p *Package) SetSource(sourcePath string, size int64, modifiedAt time.Time) {
	p.SourcePath = sourcePath
	p.Size = size
	p.ModifiedAt = modifiedAt.UTC().Truncate(time.Millisecond)
}

// ResolveImage maps an image reference found in chapter markup to the archive
// entry it names.
func (p *Package) ResolveImage(ref string) (string, bool) {
	if p.ImageAliases == nil {
		return "", false
	}
	ref = stripFragment(ref)
	if target, ok := p.ImageAliases[ref]; ok {
		return target, true
	}
	if target, ok := p.ImageAliases[stripRelative(ref)]; ok {
		return target, true
	}
	if target, ok := p.ImageAliases[path.Base(ref)]; ok {
		return target, true
	}
	return "", false
}

// packageDir is the directory of the package document, or "" at the root.
func (p *Package) packageDir() string {
	return dirOf(p.PackageDocumentPath)
}

func dirOf(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// resolveHref turns an href found in a document under baseDir into an
// archive path.
func resolveHref(baseDir, href string) string {
	href = stripFragment(href)
	if href == "" {
		return ""
	}
	return container.Clean(path.Join(baseDir, href))
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	return strings.TrimSpace(href)
}

func stripRelative(href string) string {
	for {
		switch {
		case strings.HasPrefix(href, "./"):
			href = href[2:]
		case strings.HasPrefix(href, "../"):
			href = href[3:]
		case strings.HasPrefix(href, "/"):
			href = href[1:]
		default:
			return href
		}
	}
}
