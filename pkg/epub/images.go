package epub

import (
	"path"
	"strings"

	"github.com/shishobooks/epubcore/pkg/container"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".bmp":  true,
}

func isImagePath(p string) bool {
	return imageExtensions[strings.ToLower(path.Ext(stripFragment(p)))]
}

// aliasKeys lists every spelling a chapter may use to reference an image
// whose manifest href is href and whose archive path is abs.
func aliasKeys(href, abs string) []string {
	stripped := stripRelative(href)
	keys := []string{
		href,
		stripped,
		path.Base(stripped),
		"../" + stripped,
		abs,
	}
	if rest, ok := afterImagesDir(stripped); ok {
		keys = append(keys, "images/"+rest, "OEBPS/images/"+rest)
	}
	return keys
}

// afterImagesDir returns the part of p below its last images/ directory.
func afterImagesDir(p string) (string, bool) {
	lower := strings.ToLower(p)
	i := strings.LastIndex(lower, "images/")
	if i < 0 || (i > 0 && lower[i-1] != '/') {
		return "", false
	}
	rest := p[i+len("images/"):]
	return rest, rest != ""
}

// buildImageAliases registers every alias of every manifest image whose
// target exists in the archive. Missing targets are skipped.
func buildImageAliases(c container.Container, items []manifestItem, base string) map[string]string {
	aliases := map[string]string{}
	for _, item := range items {
		if !item.isImage() {
			continue
		}
		href := stripFragment(item.Href)
		abs := resolveHref(base, href)
		if abs == "" {
			continue
		}
		target, ok := c.Resolve(abs)
		if !ok {
			continue
		}
		registerAliases(aliases, href, abs, target)
	}
	return aliases
}

func registerAliases(aliases map[string]string, href, abs, target string) {
	for _, key := range aliasKeys(href, abs) {
		if key == "" || key == "../" {
			continue
		}
		if _, taken := aliases[key]; !taken {
			aliases[key] = target
		}
	}
}
