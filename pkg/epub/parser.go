// Package epub parses EPUB archives into a Package: bibliographic metadata,
// reading order, navigation, cover and image references. Archives without a
// usable package document get a structure generated from their contents.
package epub

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/container"
)

const mimetypeEPUB = "application/epub+zip"

// conventionalPaths are the package document locations tried when
// container.xml is missing or names an entry that doesn't exist.
var conventionalPaths = []string{
	"content.opf",
	"package.opf",
	"OEBPS/package.opf",
	"OPS/content.opf",
	"OPS/package.opf",
}

var errEntryNotFound = errors.New("entry not found")

// locator proposes package document paths for one resolution strategy.
type locator struct {
	strategy   Strategy
	candidates func(c container.Container, maxBytes int64) ([]string, error)
}

// locators run in priority order. The first candidate that exists and parses
// wins.
var locators = []locator{
	{StrategyContainer, containerCandidates},
	{StrategyConventional, conventionalCandidates},
	{StrategyScan, scanCandidates},
}

func containerCandidates(c container.Container, maxBytes int64) ([]string, error) {
	data, ok := c.ReadEntry(containerPath, maxBytes)
	if !ok {
		return nil, ErrContainerManifestMissing
	}
	p, err := parseContainer(data)
	if err != nil {
		if errors.Is(err, ErrPackageDocumentPathMissing) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrPackageDocumentPathMissing, "invalid container.xml: %v", err)
	}
	return []string{p}, nil
}

func conventionalCandidates(_ container.Container, _ int64) ([]string, error) {
	return conventionalPaths, nil
}

func scanCandidates(c container.Container, _ int64) ([]string, error) {
	var found []string
	for _, name := range c.Entries() {
		if strings.EqualFold(path.Ext(name), ".opf") {
			found = append(found, name)
		}
	}
	sort.Strings(found)
	return found, nil
}

// Parse resolves the package in c. It only fails when no package document
// can be found and the archive has nothing a structure could be generated
// from, in which case the error is a *ParseError.
func Parse(c container.Container, opts Options) (*Package, error) {
	maxBytes := opts.maxEntryBytes()
	var attempts []Attempt
	tried := map[string]bool{}

	for _, loc := range locators {
		paths, err := loc.candidates(c, maxBytes)
		if err != nil {
			attempts = append(attempts, Attempt{Strategy: loc.strategy, Err: err})
			continue
		}

		existing := 0
		for _, p := range paths {
			actual, ok := c.Resolve(p)
			if !ok {
				continue
			}
			existing++
			if tried[actual] {
				continue
			}
			tried[actual] = true

			data, ok := c.ReadEntry(actual, maxBytes)
			if !ok {
				attempts = append(attempts, Attempt{Strategy: loc.strategy, Path: actual, Err: errors.New("entry unreadable or too large")})
				continue
			}
			doc, err := parsePackageDocument(data)
			if err != nil {
				attempts = append(attempts, Attempt{Strategy: loc.strategy, Path: actual, Err: err})
				continue
			}

			pkg := buildPackage(c, doc, actual, opts)
			pkg.ResolvedBy = loc.strategy
			return pkg, nil
		}
		if existing == 0 {
			attempts = append(attempts, Attempt{Strategy: loc.strategy, Path: strings.Join(paths, ", "), Err: errEntryNotFound})
		}
	}

	pkg, ok := Generate(c, opts.Mode)
	if !ok {
		return nil, &ParseError{Kind: ErrPackageDocumentUnreadable, Attempts: attempts}
	}
	return pkg, nil
}

// ParseFile parses the archive at filePath and records it as the source.
func ParseFile(filePath string, opts Options) (*Package, error) {
	archive, err := container.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pkg, err := Parse(archive, opts)
	if err != nil {
		return nil, err
	}
	pkg.SetSource(filePath, info.Size(), info.ModTime())
	return pkg, nil
}

// ParseReader parses an archive that has no file path, such as one read
// from a content URI.
func ParseReader(r io.ReaderAt, size int64, opts Options) (*Package, error) {
	archive, err := container.NewArchive(r, size)
	if err != nil {
		return nil, err
	}
	pkg, err := Parse(archive, opts)
	if err != nil {
		return nil, err
	}
	pkg.Size = size
	return pkg, nil
}

func buildPackage(c container.Container, doc *packageDocument, opfPath string, opts Options) *Package {
	manifest := doc.manifest()
	spine := doc.spine()
	base := dirOf(opfPath)

	pkg := &Package{
		Metadata:            doc.metadata(),
		PackageDocumentPath: opfPath,
		Conformant:          isConformant(c),
		Mode:                opts.Mode,
	}

	// Metadata mode counts spine entries without resolving them. A full parse
	// counts the chapters that actually resolved.
	pkg.ChapterCount = max(1, len(spine))
	pkg.CoverPath = findCover(c, doc, manifest, base)

	if opts.Mode == ModeFull {
		chapters := resolveChapters(spine, manifest, base)
		pkg.ChapterCount = max(1, len(chapters))
		pkg.Chapters = chapters
		pkg.Toc = resolveToc(c, doc, manifest, base, opts.maxEntryBytes())
		applyTocTitles(pkg.Chapters, pkg.Toc)
		pkg.ImageAliases = buildImageAliases(c, doc.Manifest.Item, base)
	}

	return pkg
}

// isConformant reports whether the archive declares the EPUB media type in
// its mimetype entry.
func isConformant(c container.Container) bool {
	data, ok := c.ReadEntry("mimetype", 1024)
	if !ok {
		return false
	}
	return strings.TrimSpace(string(data)) == mimetypeEPUB
}
