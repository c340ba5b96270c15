package epub

import (
	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/htmlutil"
)

// resolveChapters joins the spine with the manifest. Idrefs without a
// manifest item are dropped, and orders stay contiguous.
func resolveChapters(spine []string, manifest manifestIndex, base string) []Chapter {
	var chapters []Chapter
	for _, idref := range spine {
		item, ok := manifest[idref]
		if !ok || stripFragment(item.Href) == "" {
			continue
		}
		order := len(chapters) + 1
		chapters = append(chapters, Chapter{
			ID:    item.ID,
			Title: placeholderTitle(order),
			Href:  item.Href,
			Path:  resolveHref(base, item.Href),
			Order: order,
		})
	}
	return chapters
}

// applyTocTitles replaces placeholder titles with the first TOC entry that
// points at the same document.
func applyTocTitles(chapters []Chapter, toc []TocEntry) {
	if len(chapters) == 0 || len(toc) == 0 {
		return
	}
	titles := map[string]string{}
	for _, e := range Flatten(toc) {
		target := stripFragment(e.Href)
		if _, ok := titles[target]; !ok && target != "" && e.Title != "" {
			titles[target] = e.Title
		}
	}

	for i := range chapters {
		if title, ok := titles[chapters[i].Path]; ok {
			chapters[i].Title = title
		}
	}
}

// LoadChapter returns a copy of ch with its content read from c. A chapter
// still carrying a placeholder title takes the document's own title when it
// has one.
func LoadChapter(c container.Container, pkg *Package, ch Chapter) (Chapter, error) {
	entry := ch.Path
	if entry == "" {
		entry = resolveHref(pkg.packageDir(), ch.Href)
	}
	data, ok := c.ReadEntry(entry, 0)
	if !ok {
		return ch, errors.Wrapf(errcodes.NotFound("Chapter"), "entry %q", entry)
	}

	loaded := ch
	loaded.Path = entry
	loaded.Content = string(data)
	if loaded.HasPlaceholderTitle() {
		if title := htmlutil.ExtractTitle(data); title != "" {
			loaded.Title = title
		}
	}
	return loaded, nil
}
