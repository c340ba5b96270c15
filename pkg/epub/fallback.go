package epub

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/shishobooks/epubcore/pkg/container"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	generatedPublisher = "Generated from archive structure"
	generatedLanguage  = "und"
)

// mangaPagePattern matches page and chapter files written by manga to EPUB
// converters, e.g. "One Piece - c001 (v01) - p000.jpg" or
// "Berserk_v01_p001.xhtml". The first group is the series title.
var mangaPagePattern = regexp.MustCompile(`(?i)^(.+?)\s*[-_ ]\s*(?:vol(?:ume)?|v|ch(?:apter)?|c|p)\.?\s*\d+`)

var genericNames = map[string]bool{
	"page":    true,
	"img":     true,
	"image":   true,
	"chapter": true,
	"cover":   true,
	"index":   true,
	"part":    true,
	"section": true,
}

func isContentPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// Generate derives a package from archive entry names alone. It is used
// when no package document exists. The boolean is false when the archive
// holds neither content documents nor images, in which case the package
// carries placeholder metadata only. Generate never panics.
func Generate(c container.Container, mode Mode) (pkg *Package, ok bool) {
	pkg = placeholderPackage(mode)
	defer func() {
		if r := recover(); r != nil {
			pkg = placeholderPackage(mode)
			ok = false
		}
	}()

	entries := c.Entries()
	sort.Strings(entries)

	var documents, images []string
	for _, name := range entries {
		switch {
		case isContentPath(name):
			documents = append(documents, name)
		case isImagePath(name):
			images = append(images, name)
		}
	}

	if title := guessTitle(entries); title != "" {
		pkg.Metadata.Title = title
	}
	pkg.ChapterCount = max(1, len(documents))
	pkg.Conformant = isConformant(c)
	for _, name := range images {
		if strings.Contains(strings.ToLower(path.Base(name)), "cover") {
			pkg.CoverPath = name
			break
		}
	}
	if pkg.CoverPath == "" && len(images) > 0 {
		pkg.CoverPath = images[0]
	}

	if mode == ModeFull {
		for i, name := range documents {
			pkg.Chapters = append(pkg.Chapters, Chapter{
				ID:    name,
				Title: titleFromFilename(name, i+1),
				Href:  name,
				Path:  name,
				Order: i + 1,
			})
		}
		pkg.ImageAliases = map[string]string{}
		for _, name := range images {
			registerAliases(pkg.ImageAliases, name, name, name)
		}
	}

	return pkg, len(documents) > 0 || len(images) > 0
}

func placeholderPackage(mode Mode) *Package {
	return &Package{
		Metadata: Metadata{
			Title:     UnknownTitle,
			Author:    UnknownAuthor,
			Publisher: generatedPublisher,
			Language:  generatedLanguage,
		},
		ChapterCount: 1,
		ResolvedBy:   StrategyGenerated,
		Mode:         mode,
	}
}

// guessTitle returns the most common converter title among the entries, or
// an empty string when none match.
func guessTitle(entries []string) string {
	counts := map[string]int{}
	best := ""
	for _, name := range entries {
		base := strings.TrimSuffix(path.Base(name), path.Ext(name))
		m := mangaPagePattern.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		title := cleanTitle(m[1])
		if title == "" || genericNames[strings.ToLower(title)] {
			continue
		}
		counts[title]++
		if counts[title] > counts[best] || (counts[title] == counts[best] && title < best) {
			best = title
		}
	}
	return best
}

func cleanTitle(s string) string {
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -")
}

// titleFromFilename turns "chapter_01-intro.xhtml" into "Chapter 01 Intro".
func titleFromFilename(name string, order int) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return placeholderTitle(order)
	}
	return cases.Title(language.Und).String(base)
}
