package epub

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/htmlutil"
	"github.com/shishobooks/epubcore/pkg/identifiers"
	"golang.org/x/net/html/charset"
)

const containerPath = "META-INF/container.xml"

type containerDocument struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type packageDocument struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
		} `xml:"title"`
		Creator []struct {
			Text string `xml:",chardata"`
			ID   string `xml:"id,attr"`
			Role string `xml:"role,attr"`
		} `xml:"creator"`
		Description []string `xml:"description"`
		Publisher   []string `xml:"publisher"`
		Identifier  []struct {
			Text   string `xml:",chardata"`
			ID     string `xml:"id,attr"`
			Scheme string `xml:"scheme,attr"`
		} `xml:"identifier"`
		Date     []string `xml:"date"`
		Rights   []string `xml:"rights"`
		Language []string `xml:"language"`
		Subject  []string `xml:"subject"`
		Meta     []struct {
			Text     string `xml:",chardata"`
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Refines  string `xml:"refines,attr"`
			Property string `xml:"property,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Item []manifestItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc     string `xml:"toc,attr"`
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

func (item manifestItem) hasProperty(prop string) bool {
	for _, p := range strings.Fields(item.Properties) {
		if p == prop {
			return true
		}
	}
	return false
}

func (item manifestItem) isImage() bool {
	if strings.HasPrefix(strings.ToLower(item.MediaType), "image/") {
		return true
	}
	return item.MediaType == "" && isImagePath(item.Href)
}

func decodeXML(data []byte, v interface{}) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return errors.WithStack(dec.Decode(v))
}

// parseContainer returns the package document path named by the first
// rootfile of container.xml.
func parseContainer(data []byte) (string, error) {
	doc := &containerDocument{}
	if err := decodeXML(data, doc); err != nil {
		return "", err
	}
	if len(doc.Rootfiles.Rootfile) == 0 {
		return "", ErrPackageDocumentPathMissing
	}
	p := strings.TrimSpace(doc.Rootfiles.Rootfile[0].FullPath)
	if p == "" {
		return "", ErrPackageDocumentPathMissing
	}
	return p, nil
}

func parsePackageDocument(data []byte) (*packageDocument, error) {
	doc := &packageDocument{}
	if err := decodeXML(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// manifestIndex is the id keyed view of the manifest. It only lives for the
// duration of one parse.
type manifestIndex map[string]manifestItem

func (doc *packageDocument) manifest() manifestIndex {
	idx := make(manifestIndex, len(doc.Manifest.Item))
	for _, item := range doc.Manifest.Item {
		if item.ID == "" {
			continue
		}
		if _, ok := idx[item.ID]; !ok {
			idx[item.ID] = item
		}
	}
	return idx
}

func (doc *packageDocument) spine() []string {
	idrefs := make([]string, 0, len(doc.Spine.Itemref))
	for _, ref := range doc.Spine.Itemref {
		idrefs = append(idrefs, strings.TrimSpace(ref.Idref))
	}
	return idrefs
}

// metaIndex collects EPUB 2 name/content pairs and EPUB 3 refinements.
type metaIndex struct {
	content    map[string]string
	properties map[string]map[string]string
}

func (doc *packageDocument) metas() metaIndex {
	idx := metaIndex{
		content:    map[string]string{},
		properties: map[string]map[string]string{},
	}
	for _, m := range doc.Metadata.Meta {
		if m.Refines != "" {
			id := strings.TrimPrefix(m.Refines, "#")
			if idx.properties[id] == nil {
				idx.properties[id] = map[string]string{}
			}
			idx.properties[id][m.Property] = strings.TrimSpace(m.Text)
			continue
		}
		if m.Name != "" && m.Content != "" {
			idx.content[m.Name] = strings.TrimSpace(m.Content)
		}
	}
	return idx
}

func (doc *packageDocument) metadata() Metadata {
	metas := doc.metas()
	md := Metadata{Title: doc.title(metas)}
	if md.Title == "" {
		md.Title = UnknownTitle
	}
	md.Author = strings.Join(doc.authors(metas), ", ")
	if d := first(doc.Metadata.Description); d != "" {
		md.Description = htmlutil.StripTags(d)
	}
	md.Publisher = first(doc.Metadata.Publisher)
	md.Language = first(doc.Metadata.Language)
	md.Rights = first(doc.Metadata.Rights)
	md.Published = first(doc.Metadata.Date)
	md.PublishedAt = parseDate(md.Published)
	for _, s := range doc.Metadata.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}
	for _, id := range doc.Metadata.Identifier {
		scheme := id.Scheme
		if scheme == "" && id.ID != "" {
			if t := metas.properties[id.ID]["identifier-type"]; strings.EqualFold(t, "15") {
				scheme = "ISBN"
			}
		}
		if isbn, ok := identifiers.ISBN(id.Text, scheme); ok {
			md.ISBN = isbn
			break
		}
	}
	return md
}

// title prefers an EPUB 3 title refined as title-type main, then the first
// non-empty title.
func (doc *packageDocument) title(metas metaIndex) string {
	for _, t := range doc.Metadata.Title {
		if t.ID != "" && metas.properties[t.ID]["title-type"] == "main" {
			if text := strings.TrimSpace(t.Text); text != "" {
				return text
			}
		}
	}
	for _, t := range doc.Metadata.Title {
		if text := strings.TrimSpace(t.Text); text != "" {
			return text
		}
	}
	return ""
}

// authors returns creators with the aut role. A creator without any role
// counts as an author when no creator carries one.
func (doc *packageDocument) authors(metas metaIndex) []string {
	var tagged, untagged []string
	for _, c := range doc.Metadata.Creator {
		name := strings.TrimSpace(c.Text)
		if name == "" {
			continue
		}
		role := c.Role
		if role == "" && c.ID != "" {
			role = metas.properties[c.ID]["role"]
		}
		switch role {
		case "aut":
			tagged = append(tagged, name)
		case "":
			untagged = append(untagged, name)
		}
	}
	if len(tagged) > 0 {
		return tagged
	}
	return untagged
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
