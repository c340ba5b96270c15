package testgen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path"
	"strings"
	"testing"
)

// EPUBOptions configures a generated EPUB. The zero value produces a
// conformant single-chapter book titled "Test Book".
type EPUBOptions struct {
	Title       string
	Authors     []string
	Description string
	Publisher   string
	Language    string
	Date        string
	ISBN        string
	Subjects    []string

	// Chapters is the number of spine documents, at least 1.
	Chapters int
	// TocTitles, when set, adds an NCX (or a nav document when NavTOC is
	// set) whose entries point at the chapters in order.
	TocTitles []string
	NavTOC    bool
	// BrokenSpineRefs adds itemrefs that have no manifest item.
	BrokenSpineRefs int

	HasCover      bool
	CoverMimeType string

	// OPFPath is where the package document is stored, "OEBPS/content.opf"
	// by default. DeclaredOPFPath is what container.xml points at and
	// defaults to OPFPath.
	OPFPath         string
	DeclaredOPFPath string
	OmitContainer   bool
	OmitOPF         bool
	OmitMimetype    bool

	// Padding is appended to the first chapter to vary size and checksum.
	Padding string
}

// EPUBFiles returns the entries of the EPUB described by opts.
func EPUBFiles(t *testing.T, opts EPUBOptions) map[string][]byte {
	t.Helper()

	if opts.Title == "" {
		opts.Title = "Test Book"
	}
	if opts.Chapters < 1 {
		opts.Chapters = 1
	}
	if opts.OPFPath == "" {
		opts.OPFPath = "OEBPS/content.opf"
	}
	if opts.DeclaredOPFPath == "" {
		opts.DeclaredOPFPath = opts.OPFPath
	}
	if opts.CoverMimeType == "" {
		opts.CoverMimeType = "image/png"
	}
	base := path.Dir(opts.OPFPath)
	if base == "." {
		base = ""
	} else {
		base += "/"
	}

	files := map[string][]byte{}
	if !opts.OmitMimetype {
		files["mimetype"] = []byte("application/epub+zip")
	}
	if !opts.OmitContainer {
		files["META-INF/container.xml"] = []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opts.DeclaredOPFPath))
	}

	for i := 1; i <= opts.Chapters; i++ {
		body := fmt.Sprintf("<p>This is chapter %d.</p>", i)
		if i == 1 {
			body += escapeXML(opts.Padding)
		}
		files[base+fmt.Sprintf("text/chapter%d.xhtml", i)] = []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Heading %d</title></head>
<body><h1>Heading %d</h1>%s<img src="../images/figure.png"/></body>
</html>`, i, i, body))
	}

	coverHref := ""
	if opts.HasCover {
		coverHref = "images/cover.png"
		if opts.CoverMimeType == "image/jpeg" {
			coverHref = "images/cover.jpg"
		}
		files[base+coverHref] = GenerateImage(t, opts.CoverMimeType)
	}
	files[base+"images/figure.png"] = GenerateImage(t, "image/png")

	if len(opts.TocTitles) > 0 {
		if opts.NavTOC {
			files[base+"nav.xhtml"] = []byte(navDocument(opts.TocTitles))
		} else {
			files[base+"toc.ncx"] = []byte(ncxDocument(opts.TocTitles))
		}
	}

	if !opts.OmitOPF {
		files[opts.OPFPath] = []byte(generateOPF(opts, coverHref))
	}
	return files
}

// BuildEPUB returns the EPUB described by opts as bytes.
func BuildEPUB(t *testing.T, opts EPUBOptions) []byte {
	t.Helper()
	return BuildZip(t, EPUBFiles(t, opts))
}

// GenerateEPUB writes the EPUB described by opts to dir/filename.
func GenerateEPUB(t *testing.T, dir, filename string, opts EPUBOptions) string {
	t.Helper()
	return WriteFile(t, dir, filename, BuildEPUB(t, opts))
}

func generateOPF(opts EPUBOptions, coverHref string) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
`)
	fmt.Fprintf(&buf, "    <dc:title id=\"title\">%s</dc:title>\n", escapeXML(opts.Title))
	for i, author := range opts.Authors {
		fmt.Fprintf(&buf, "    <dc:creator id=\"creator%d\" opf:role=\"aut\">%s</dc:creator>\n", i, escapeXML(author))
	}
	buf.WriteString("    <dc:identifier id=\"bookid\">urn:uuid:0b8d5a32-8f57-4b8e-9a55-0b1f1e1f3c11</dc:identifier>\n")
	if opts.ISBN != "" {
		fmt.Fprintf(&buf, "    <dc:identifier opf:scheme=\"ISBN\">%s</dc:identifier>\n", escapeXML(opts.ISBN))
	}
	optional := []struct{ tag, value string }{
		{"description", opts.Description},
		{"publisher", opts.Publisher},
		{"language", opts.Language},
		{"date", opts.Date},
	}
	for _, o := range optional {
		if o.value != "" {
			fmt.Fprintf(&buf, "    <dc:%s>%s</dc:%s>\n", o.tag, escapeXML(o.value), o.tag)
		}
	}
	for _, s := range opts.Subjects {
		fmt.Fprintf(&buf, "    <dc:subject>%s</dc:subject>\n", escapeXML(s))
	}
	if coverHref != "" {
		buf.WriteString("    <meta name=\"cover\" content=\"cover-image\"/>\n")
	}
	buf.WriteString("  </metadata>\n  <manifest>\n")

	for i := 1; i <= opts.Chapters; i++ {
		fmt.Fprintf(&buf, "    <item id=\"chapter%d\" href=\"text/chapter%d.xhtml\" media-type=\"application/xhtml+xml\"/>\n", i, i)
	}
	if coverHref != "" {
		fmt.Fprintf(&buf, "    <item id=\"cover-image\" href=\"%s\" media-type=\"%s\"/>\n", coverHref, opts.CoverMimeType)
	}
	buf.WriteString("    <item id=\"figure\" href=\"images/figure.png\" media-type=\"image/png\"/>\n")
	tocAttr := ""
	if len(opts.TocTitles) > 0 {
		if opts.NavTOC {
			buf.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
		} else {
			buf.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
			tocAttr = ` toc="ncx"`
		}
	}
	buf.WriteString("  </manifest>\n")

	fmt.Fprintf(&buf, "  <spine%s>\n", tocAttr)
	for i := 1; i <= opts.Chapters; i++ {
		fmt.Fprintf(&buf, "    <itemref idref=\"chapter%d\"/>\n", i)
	}
	for i := 1; i <= opts.BrokenSpineRefs; i++ {
		fmt.Fprintf(&buf, "    <itemref idref=\"missing%d\"/>\n", i)
	}
	buf.WriteString("  </spine>\n</package>")

	return buf.String()
}

func ncxDocument(titles []string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
`)
	for i, title := range titles {
		fmt.Fprintf(&buf, `    <navPoint id="np%d" playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="text/chapter%d.xhtml"/>
    </navPoint>
`, i+1, i+1, escapeXML(title), i+1)
	}
	buf.WriteString("  </navMap>\n</ncx>")
	return buf.String()
}

func navDocument(titles []string) string {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc">
    <ol>
`)
	for i, title := range titles {
		fmt.Fprintf(&buf, "      <li><a href=\"text/chapter%d.xhtml\">%s</a></li>\n", i+1, escapeXML(title))
	}
	buf.WriteString("    </ol>\n  </nav>\n</body>\n</html>")
	return buf.String()
}

// GenerateImage encodes a small solid color image.
func GenerateImage(t *testing.T, mimeType string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 60, 90))
	blue := color.RGBA{0, 100, 200, 255}
	for y := 0; y < 90; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, blue)
		}
	}

	var buf bytes.Buffer
	switch mimeType {
	case "image/jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			t.Fatalf("failed to encode JPEG: %v", err)
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("failed to encode PNG: %v", err)
		}
	}
	return buf.Bytes()
}

func escapeXML(s string) string {
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	).Replace(s)
}
