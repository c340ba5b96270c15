package epub

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/htmlutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const mediaTypeNCX = "application/x-dtbncx+xml"

type ncxDocument struct {
	XMLName xml.Name `xml:"ncx"`
	NavMap  struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// resolveToc finds a navigation document and parses it. NCX is tried before
// HTML nav for every candidate. Any failure yields an empty TOC.
func resolveToc(c container.Container, doc *packageDocument, manifest manifestIndex, base string, maxBytes int64) []TocEntry {
	for _, candidate := range tocCandidates(doc, manifest, base) {
		data, ok := c.ReadEntry(candidate, maxBytes)
		if !ok {
			continue
		}
		dir := dirOf(candidate)
		if entries := parseNCX(data, dir); len(entries) > 0 {
			return entries
		}
		if entries := parseNav(data, dir); len(entries) > 0 {
			return entries
		}
	}
	return nil
}

// tocCandidates lists navigation document paths in priority order: the
// spine's toc reference, NCX media types, the EPUB 3 nav property and
// finally any href mentioning toc or nav.
func tocCandidates(doc *packageDocument, manifest manifestIndex, base string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(href string) {
		p := resolveHref(base, href)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	if item, ok := manifest[doc.Spine.Toc]; ok {
		add(item.Href)
	}
	for _, item := range doc.Manifest.Item {
		if item.MediaType == mediaTypeNCX {
			add(item.Href)
		}
	}
	for _, item := range doc.Manifest.Item {
		if item.hasProperty("nav") {
			add(item.Href)
		}
	}
	for _, item := range doc.Manifest.Item {
		name := strings.ToLower(path.Base(stripFragment(item.Href)))
		if strings.Contains(name, "toc") || strings.Contains(name, "nav") {
			add(item.Href)
		}
	}
	return out
}

func parseNCX(data []byte, dir string) []TocEntry {
	doc := &ncxDocument{}
	if err := decodeXML(data, doc); err != nil {
		return nil
	}
	return convertNavPoints(doc.NavMap.NavPoints, dir)
}

func convertNavPoints(points []ncxNavPoint, dir string) []TocEntry {
	var entries []TocEntry
	for _, np := range points {
		title := strings.Join(strings.Fields(np.NavLabel.Text), " ")
		if title == "" {
			continue
		}
		entries = append(entries, TocEntry{
			Title:    title,
			Href:     tocHref(dir, np.Content.Src),
			Children: convertNavPoints(np.Children, dir),
		})
	}
	return entries
}

// parseNav reads nav > ol > li > a from an XHTML navigation document. The
// HTML parser is used so that sloppy markup still yields entries.
func parseNav(data []byte, dir string) []TocEntry {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var navs []*html.Node
	collect(root, atom.Nav, &navs)
	if len(navs) == 0 {
		return nil
	}

	nav := navs[0]
	for _, n := range navs {
		if isTocNav(n) {
			nav = n
			break
		}
	}

	var lists []*html.Node
	collect(nav, atom.Ol, &lists)
	if len(lists) == 0 {
		return nil
	}
	return convertNavList(lists[0], dir)
}

func isTocNav(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "epub:type", "type", "role":
			for _, v := range strings.Fields(a.Val) {
				if v == "toc" || v == "doc-toc" {
					return true
				}
			}
		}
	}
	return false
}

func convertNavList(ol *html.Node, dir string) []TocEntry {
	var entries []TocEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var entry TocEntry
		for child := li.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			switch child.DataAtom {
			case atom.A:
				if entry.Title == "" {
					entry.Title = htmlutil.TextContent(child)
					entry.Href = tocHref(dir, attr(child, "href"))
				}
			case atom.Span:
				if entry.Title == "" {
					entry.Title = htmlutil.TextContent(child)
				}
			case atom.Ol:
				entry.Children = convertNavList(child, dir)
			}
		}
		if entry.Title == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func collect(n *html.Node, a atom.Atom, out *[]*html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == a {
		*out = append(*out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, a, out)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tocHref resolves a navigation link against its document, keeping any
// fragment.
func tocHref(dir, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	fragment := ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		fragment = href[i:]
		href = href[:i]
	}
	if href == "" {
		return fragment
	}
	return resolveHref(dir, href) + fragment
}

// Flatten lists the TOC depth first.
func Flatten(toc []TocEntry) []TocEntry {
	var out []TocEntry
	var walk func([]TocEntry)
	walk = func(entries []TocEntry) {
		for _, e := range entries {
			out = append(out, e)
			walk(e.Children)
		}
	}
	walk(toc)
	return out
}
