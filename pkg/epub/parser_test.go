package epub

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/internal/testgen"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openArchive(t *testing.T, data []byte) *container.Archive {
	t.Helper()
	a, err := container.NewArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return a
}

func openEPUB(t *testing.T, opts testgen.EPUBOptions) *container.Archive {
	t.Helper()
	return openArchive(t, testgen.BuildEPUB(t, opts))
}

func TestParse_Full(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{
		Title:       "The Left Hand of Darkness",
		Authors:     []string{"Ursula K. Le Guin", "Second Author"},
		Description: "<p>A <em>classic</em> of science fiction.</p>",
		Publisher:   "Ace",
		Language:    "en",
		Date:        "1969-03-01",
		ISBN:        "978-0-441-47812-5",
		Subjects:    []string{"Fiction", "Science Fiction", "Fiction"},
		Chapters:    3,
		HasCover:    true,
	})

	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)

	assert.Equal(t, StrategyContainer, pkg.ResolvedBy)
	assert.Equal(t, "OEBPS/content.opf", pkg.PackageDocumentPath)
	assert.True(t, pkg.Conformant)
	assert.False(t, pkg.Generated())

	md := pkg.Metadata
	assert.Equal(t, "The Left Hand of Darkness", md.Title)
	assert.Equal(t, "Ursula K. Le Guin, Second Author", md.Author)
	assert.Equal(t, "A classic of science fiction.", md.Description)
	assert.Equal(t, "Ace", md.Publisher)
	assert.Equal(t, "en", md.Language)
	assert.Equal(t, "9780441478125", md.ISBN)
	assert.Equal(t, "1969-03-01", md.Published)
	require.NotNil(t, md.PublishedAt)
	assert.Equal(t, time.Date(1969, 3, 1, 0, 0, 0, 0, time.UTC), *md.PublishedAt)
	assert.Equal(t, []string{"Fiction", "Science Fiction", "Fiction"}, md.Subjects)

	assert.Equal(t, 3, pkg.ChapterCount)
	require.Len(t, pkg.Chapters, 3)
	for i, ch := range pkg.Chapters {
		assert.Equal(t, i+1, ch.Order)
		assert.Equal(t, placeholderTitle(i+1), ch.Title)
		assert.Empty(t, ch.Content, "chapter bodies are loaded lazily")
	}
	assert.Equal(t, "text/chapter2.xhtml", pkg.Chapters[1].Href)
	assert.Equal(t, "OEBPS/text/chapter2.xhtml", pkg.Chapters[1].Path)
	assert.Equal(t, "OEBPS/images/cover.png", pkg.CoverPath)
}

func TestParse_MetadataMode(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{Chapters: 4, HasCover: true, TocTitles: []string{"One"}})

	pkg, err := Parse(a, Options{Mode: ModeMetadata})
	require.NoError(t, err)
	assert.Equal(t, 4, pkg.ChapterCount)
	assert.Nil(t, pkg.Chapters)
	assert.Nil(t, pkg.Toc)
	assert.Nil(t, pkg.ImageAliases)
	assert.Equal(t, "OEBPS/images/cover.png", pkg.CoverPath)
	assert.Equal(t, ModeMetadata, pkg.Mode)
}

func TestParse_MissingTitleDefaults(t *testing.T) {
	t.Parallel()

	files := testgen.EPUBFiles(t, testgen.EPUBOptions{})
	files["OEBPS/content.opf"] = bytes.Replace(files["OEBPS/content.opf"],
		[]byte(`<dc:title id="title">Test Book</dc:title>`), nil, 1)
	a := openArchive(t, testgen.BuildZip(t, files))

	pkg, err := Parse(a, Options{})
	require.NoError(t, err)
	assert.Equal(t, UnknownTitle, pkg.Metadata.Title)
}

func TestParse_ConventionalPathFallback(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{
		OPFPath:         "content.opf",
		DeclaredOPFPath: "OEBPS/missing.opf",
		Chapters:        2,
	})

	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)
	assert.Equal(t, StrategyConventional, pkg.ResolvedBy)
	assert.Equal(t, "content.opf", pkg.PackageDocumentPath)
	assert.Equal(t, 2, pkg.ChapterCount)
	assert.Equal(t, "text/chapter1.xhtml", pkg.Chapters[0].Path)
}

func TestParse_ScanFallback(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{
		OPFPath:       "book/metadata.opf",
		OmitContainer: true,
		OmitMimetype:  true,
	})

	pkg, err := Parse(a, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyScan, pkg.ResolvedBy)
	assert.Equal(t, "book/metadata.opf", pkg.PackageDocumentPath)
	assert.False(t, pkg.Conformant)
}

func TestParse_EmptySpineHasOneChapter(t *testing.T) {
	t.Parallel()

	a := openArchive(t, testgen.BuildZip(t, map[string][]byte{
		"mimetype": []byte("application/epub+zip"),
		"META-INF/container.xml": []byte(`<container><rootfiles><rootfile full-path="content.opf"/></rootfiles></container>`),
		"content.opf": []byte(`<package xmlns="http://www.idpf.org/2007/opf"><metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Empty</dc:title></metadata><manifest/><spine/></package>`),
	}))

	for _, mode := range []Mode{ModeMetadata, ModeFull} {
		pkg, err := Parse(a, Options{Mode: mode})
		require.NoError(t, err)
		assert.Equal(t, 1, pkg.ChapterCount)
		assert.Empty(t, pkg.Chapters)
		assert.GreaterOrEqual(t, pkg.ChapterCount, len(pkg.Chapters))
	}
}

func TestParse_BrokenSpineReference(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{Chapters: 4, BrokenSpineRefs: 1})

	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)
	require.Len(t, pkg.Chapters, 4, "the spine has 5 idrefs and one has no manifest item")
	assert.Equal(t, 4, pkg.ChapterCount)
	for i, ch := range pkg.Chapters {
		assert.Equal(t, i+1, ch.Order)
	}

	// Metadata mode takes the count from the spine as declared.
	meta, err := Parse(a, Options{Mode: ModeMetadata})
	require.NoError(t, err)
	assert.Empty(t, meta.Chapters)
	assert.Equal(t, 5, meta.ChapterCount)
}

func TestParse_ImageAliases(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{HasCover: true})

	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)

	for _, ref := range []string{
		"../images/cover.png",
		"cover.png",
		"images/cover.png",
		"OEBPS/images/cover.png",
	} {
		target, ok := pkg.ResolveImage(ref)
		assert.True(t, ok, ref)
		assert.Equal(t, "OEBPS/images/cover.png", target, ref)
	}

	target, ok := pkg.ResolveImage("./../images/figure.png#frag")
	require.True(t, ok)
	assert.Equal(t, "OEBPS/images/figure.png", target)

	_, ok = pkg.ResolveImage("missing.png")
	assert.False(t, ok)
}

func TestParse_ImageAliasesSkipMissingTargets(t *testing.T) {
	t.Parallel()

	files := testgen.EPUBFiles(t, testgen.EPUBOptions{HasCover: true})
	delete(files, "OEBPS/images/cover.png")
	a := openArchive(t, testgen.BuildZip(t, files))

	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)
	_, ok := pkg.ResolveImage("cover.png")
	assert.False(t, ok)
	assert.Empty(t, pkg.CoverPath)
	for _, target := range pkg.ImageAliases {
		assert.True(t, a.EntryExists(target))
	}
}

func TestParse_TocTitles(t *testing.T) {
	t.Parallel()

	for _, nav := range []bool{false, true} {
		a := openEPUB(t, testgen.EPUBOptions{
			Chapters:  3,
			TocTitles: []string{"Prologue", "The Journey"},
			NavTOC:    nav,
		})

		pkg, err := Parse(a, Options{Mode: ModeFull})
		require.NoError(t, err)

		require.Len(t, pkg.Toc, 2)
		assert.Equal(t, "Prologue", pkg.Toc[0].Title)
		assert.Equal(t, "OEBPS/text/chapter1.xhtml", pkg.Toc[0].Href)

		assert.Equal(t, "Prologue", pkg.Chapters[0].Title)
		assert.Equal(t, "The Journey", pkg.Chapters[1].Title)
		assert.Equal(t, "Chapter 3", pkg.Chapters[2].Title)
	}
}

func TestParse_MaxEntryBytes(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{Chapters: 2})

	// Too small for container.xml and every package document, so the
	// structure is generated from entry names.
	pkg, err := Parse(a, Options{MaxEntryBytes: 64})
	require.NoError(t, err)
	assert.True(t, pkg.Generated())
	assert.Equal(t, 2, pkg.ChapterCount)
}

func TestParse_Unreadable(t *testing.T) {
	t.Parallel()

	a := openArchive(t, testgen.BuildZip(t, map[string][]byte{
		"readme.txt": []byte("nothing to see"),
	}))

	pkg, err := Parse(a, Options{})
	assert.Nil(t, pkg)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, ErrPackageDocumentUnreadable)
	assert.ErrorIs(t, err, ErrContainerManifestMissing)
	assert.Len(t, perr.Attempts, 3)
}

func TestParse_MissingRootfilePath(t *testing.T) {
	t.Parallel()

	a := openArchive(t, testgen.BuildZip(t, map[string][]byte{
		"META-INF/container.xml": []byte(`<container><rootfiles><rootfile/></rootfiles></container>`),
	}))

	_, err := Parse(a, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPackageDocumentPathMissing)
}

func TestLoadChapter(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{Chapters: 2, TocTitles: []string{"Prologue"}})
	pkg, err := Parse(a, Options{Mode: ModeFull})
	require.NoError(t, err)

	first, err := LoadChapter(a, pkg, pkg.Chapters[0])
	require.NoError(t, err)
	assert.Equal(t, "Prologue", first.Title, "TOC titles are kept")
	assert.Contains(t, first.Content, "This is chapter 1.")

	second, err := LoadChapter(a, pkg, pkg.Chapters[1])
	require.NoError(t, err)
	assert.Equal(t, "Heading 2", second.Title)
	assert.Empty(t, pkg.Chapters[1].Content, "the parsed chapter is not mutated")

	_, err = LoadChapter(a, pkg, Chapter{Href: "text/missing.xhtml", Order: 9})
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	p := testgen.GenerateEPUB(t, t.TempDir(), "book.epub", testgen.EPUBOptions{Title: "On Disk"})
	info, err := os.Stat(p)
	require.NoError(t, err)

	pkg, err := ParseFile(p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "On Disk", pkg.Metadata.Title)
	assert.Equal(t, p, pkg.SourcePath)
	assert.Equal(t, info.Size(), pkg.Size)
	assert.Equal(t, info.ModTime().UTC().Truncate(time.Millisecond), pkg.ModifiedAt)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.epub"), Options{})
	assert.Error(t, err)
}

func TestExtractCover(t *testing.T) {
	t.Parallel()

	a := openEPUB(t, testgen.EPUBOptions{HasCover: true, CoverMimeType: "image/jpeg"})
	pkg, err := Parse(a, Options{})
	require.NoError(t, err)

	cover, err := ExtractCover(a, pkg, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", cover.MimeType)
	assert.Equal(t, ".jpg", cover.Extension)
	assert.Equal(t, 60, cover.Width)
	assert.Equal(t, 90, cover.Height)

	_, err = ExtractCover(a, pkg, 10)
	assert.Error(t, err, "covers above the size limit are rejected")

	_, err = ExtractCover(a, &Package{}, 0)
	assert.Error(t, err)
}
