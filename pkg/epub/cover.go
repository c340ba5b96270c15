package epub

import (
	"bytes"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	_ "golang.org/x/image/webp" // register decoder
)

// findCover resolves the cover image: the EPUB 2 cover meta, then the EPUB 3
// cover-image property, then any image whose id mentions "cover". Only
// entries present in the archive qualify.
func findCover(c container.Container, doc *packageDocument, manifest manifestIndex, base string) string {
	exists := func(item manifestItem) (string, bool) {
		abs := resolveHref(base, item.Href)
		if abs == "" {
			return "", false
		}
		return c.Resolve(abs)
	}

	if id := doc.metas().content["cover"]; id != "" {
		if item, ok := manifest[id]; ok {
			if p, ok := exists(item); ok {
				return p
			}
		}
	}
	for _, item := range doc.Manifest.Item {
		if item.hasProperty("cover-image") {
			if p, ok := exists(item); ok {
				return p
			}
		}
	}
	for _, item := range doc.Manifest.Item {
		if item.isImage() && strings.Contains(strings.ToLower(item.ID), "cover") {
			if p, ok := exists(item); ok {
				return p
			}
		}
	}
	return ""
}

type Cover struct {
	Data      []byte
	MimeType  string
	Extension string
	Width     int
	Height    int
}

// ExtractCover reads and validates the package's cover image.
func ExtractCover(c container.Container, pkg *Package, maxBytes int64) (*Cover, error) {
	if pkg.CoverPath == "" {
		return nil, errcodes.NotFound("Cover")
	}
	data, ok := c.ReadEntry(pkg.CoverPath, maxBytes)
	if !ok {
		return nil, errors.Wrapf(errcodes.NotFound("Cover"), "entry %q", pkg.CoverPath)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, errors.Errorf("cover %q is %s, not an image", pkg.CoverPath, mt.String())
	}

	cover := &Cover{
		Data:      data,
		MimeType:  mt.String(),
		Extension: mt.Extension(),
	}
	if mt.Is("image/svg+xml") {
		return cover, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode cover %q", pkg.CoverPath)
	}
	cover.Width = cfg.Width
	cover.Height = cfg.Height
	return cover, nil
}
