package importer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shishobooks/epubcore/internal/testgen"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/metacache"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/shishobooks/epubcore/pkg/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportFile(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "book.epub", testgen.EPUBOptions{
		Title:       "The Word for World Is Forest",
		Authors:     []string{"Ursula K. Le Guin"},
		Description: "<p>Trees.</p>",
		ISBN:        "9780765324641",
		Chapters:    3,
		HasCover:    true,
	})

	book, err := tc.imp.ImportFile(tc.ctx, p, Options{})
	require.NoError(t, err)

	assert.Equal(t, "The Word for World Is Forest", book.Title)
	assert.Equal(t, "Ursula K. Le Guin", book.Author)
	assert.Equal(t, 3, book.ChapterCount)
	require.NotNil(t, book.FilePath)
	assert.Equal(t, p, *book.FilePath)
	require.NotNil(t, book.ISBN)
	assert.Equal(t, "9780765324641", *book.ISBN)
	require.NotNil(t, book.Checksum)
	assert.Len(t, *book.Checksum, 64)

	require.NotNil(t, book.CoverPath)
	assert.Equal(t, filepath.Join(tc.cfg.CoverDir, book.ID+".png"), *book.CoverPath)
	assert.True(t, testgen.FileExists(*book.CoverPath))

	// Non-transient sources are never copied.
	entries, _ := os.ReadDir(tc.cfg.LibraryDir)
	assert.Empty(t, entries)

	record, err := tc.imp.sourceService.FindImport(tc.ctx, p)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, book.ID, record.BookID)
	assert.Equal(t, models.SourceKindIndividual, record.SourceKind)
	assert.Nil(t, record.ArchivePath)

	entry, err := tc.imp.cache.Get(tc.ctx, metacache.KeyForPath(p))
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.BookID)
	assert.Equal(t, book.ID, *entry.BookID)
}

func TestImportFile_DuplicateIsRejected(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "foo.epub", testgen.EPUBOptions{Title: "Foo", Authors: []string{"Bar"}})
	info, err := os.Stat(p)
	require.NoError(t, err)

	existing := &models.Book{Title: "foo", Author: "BAR", FileSize: info.Size()}
	require.NoError(t, tc.imp.bookService.CreateBook(tc.ctx, existing))

	_, err = tc.imp.ImportFile(tc.ctx, p, Options{})
	require.Error(t, err)
	assert.True(t, errcodes.IsDuplicate(err))
	assert.Contains(t, err.Error(), `"foo"`)
	assert.Contains(t, err.Error(), `"BAR"`)
	assert.Equal(t, 1, tc.bookCount())
}

func TestImportFile_IncompleteImportIsUnwound(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "book.epub", testgen.EPUBOptions{Title: "Orphan", HasCover: true})

	// Provenance can't reference a watched source that doesn't exist.
	missing := 999
	_, err := tc.imp.ImportFile(tc.ctx, p, Options{WatchedSourceID: &missing})
	require.Error(t, err)

	assert.Equal(t, 0, tc.bookCount())
	covers, _ := os.ReadDir(tc.cfg.CoverDir)
	assert.Empty(t, covers)

	// The file can be imported once the problem is gone.
	book, err := tc.imp.ImportFile(tc.ctx, p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Orphan", book.Title)
	assert.Equal(t, 1, tc.bookCount())
}

func TestSaveCover_ReplacesCoverInAnotherFormat(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)
	dir := t.TempDir()

	pngPath := testgen.GenerateEPUB(t, dir, "png.epub", testgen.EPUBOptions{Title: "Covered", HasCover: true})
	jpegPath := testgen.GenerateEPUB(t, dir, "jpeg.epub", testgen.EPUBOptions{Title: "Covered", HasCover: true, CoverMimeType: "image/jpeg"})

	first, err := tc.imp.Inspect(tc.ctx, pngPath)
	require.NoError(t, err)
	cover := tc.imp.SaveCover(tc.ctx, pngPath, first.Package, "book-1")
	require.NotNil(t, cover)
	assert.Equal(t, filepath.Join(tc.cfg.CoverDir, "book-1.png"), *cover)

	second, err := tc.imp.Inspect(tc.ctx, jpegPath)
	require.NoError(t, err)
	cover = tc.imp.SaveCover(tc.ctx, jpegPath, second.Package, "book-1")
	require.NotNil(t, cover)
	assert.Equal(t, filepath.Join(tc.cfg.CoverDir, "book-1.jpg"), *cover)

	entries, err := os.ReadDir(tc.cfg.CoverDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "book-1.jpg", entries[0].Name())
}

func TestImportFile_SameTitleDifferentFile(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)
	dir := t.TempDir()

	a := testgen.GenerateEPUB(t, dir, "a.epub", testgen.EPUBOptions{Title: "Foo", Authors: []string{"Bar"}})
	b := testgen.GenerateEPUB(t, dir, "b.epub", testgen.EPUBOptions{Title: "Foo", Authors: []string{"Bar"}, Padding: "a different edition"})

	_, err := tc.imp.ImportFile(tc.ctx, a, Options{})
	require.NoError(t, err)
	_, err = tc.imp.ImportFile(tc.ctx, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, tc.bookCount())
}

func TestImportStream_CopiesIntoLibrary(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	data := testgen.BuildEPUB(t, testgen.EPUBOptions{Title: "Streamed", Authors: []string{"Writer"}})
	book, err := tc.imp.ImportStream(tc.ctx, bytes.NewReader(data), "shared.epub", Options{})
	require.NoError(t, err)

	require.NotNil(t, book.FilePath)
	assert.Equal(t, filepath.Join(tc.cfg.LibraryDir, "[Writer] Streamed.epub"), *book.FilePath)
	stored, err := os.ReadFile(*book.FilePath)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	assert.Empty(t, tc.tempDirEntries())

	record, err := tc.imp.sourceService.FindImport(tc.ctx, "shared.epub")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, book.FilePath, record.ArchivePath)

	// The permanent copy is cached, the temporary file is not.
	entry, err := tc.imp.cache.Get(tc.ctx, metacache.KeyForPath(*book.FilePath))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, *book.FilePath, entry.Package.SourcePath)

	var count int
	err = tc.db.NewSelect().Table("cached_metadata").ColumnExpr("COUNT(*)").Scan(tc.ctx, &count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImportStream_FailureLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	_, err := tc.imp.ImportStream(tc.ctx, strings.NewReader("definitely not a zip"), "junk.epub", Options{})
	require.Error(t, err)
	assert.Equal(t, errcodes.CodeInvalidArchive, errcodes.Code(err))
	assert.Empty(t, tc.tempDirEntries())

	data := testgen.BuildEPUB(t, testgen.EPUBOptions{Title: "Once"})
	_, err = tc.imp.ImportStream(tc.ctx, bytes.NewReader(data), "once.epub", Options{})
	require.NoError(t, err)
	_, err = tc.imp.ImportStream(tc.ctx, bytes.NewReader(data), "once-again.epub", Options{})
	assert.True(t, errcodes.IsDuplicate(err))
	assert.Empty(t, tc.tempDirEntries())

	entries, err := os.ReadDir(tc.cfg.LibraryDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestImportURI(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "remote.epub", testgen.EPUBOptions{Title: "Remote", Chapters: 2})
	u := uri.FromPath(p)

	book, err := tc.imp.ImportURI(tc.ctx, u, URIOptions{})
	require.NoError(t, err)
	assert.Nil(t, book.FilePath)
	require.NotNil(t, book.SourceURI)
	assert.Equal(t, u, *book.SourceURI)
	require.NotNil(t, book.Checksum)
	assert.True(t, strings.HasPrefix(*book.Checksum, "meta:"))
	assert.Empty(t, tc.tempDirEntries())

	entries, _ := os.ReadDir(tc.cfg.LibraryDir)
	assert.Empty(t, entries)

	entry, err := tc.imp.cache.Get(tc.ctx, metacache.KeyForURI(u))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.Package.SourcePath)
}

func TestImportURI_BackupCopy(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "remote.epub", testgen.EPUBOptions{Title: "Kept", Authors: []string{"Writer"}})

	book, err := tc.imp.ImportURI(tc.ctx, uri.FromPath(p), URIOptions{BackupCopy: true})
	require.NoError(t, err)

	records, err := tc.imp.sourceService.ListImportsForBook(tc.ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ArchivePath)
	assert.Equal(t, filepath.Join(tc.cfg.LibraryDir, "[Writer] Kept.epub"), *records[0].ArchivePath)
	assert.True(t, testgen.FileExists(*records[0].ArchivePath))
}

func TestImportURI_CachedByURI(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "remote.epub", testgen.EPUBOptions{Title: "Remote"})
	u := uri.FromPath(p)

	info, err := os.Stat(p)
	require.NoError(t, err)
	first, err := tc.imp.inspectURI(tc.ctx, u, p, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := tc.imp.inspectURI(tc.ctx, u, p, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Checksum, second.Checksum)

	third, err := tc.imp.inspectURI(tc.ctx, u, p, info.Size()+1, info.ModTime())
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	data := testgen.BuildEPUB(t, testgen.EPUBOptions{Title: "Doomed", HasCover: true})
	book, err := tc.imp.ImportStream(tc.ctx, bytes.NewReader(data), "doomed.epub", Options{})
	require.NoError(t, err)
	require.NotNil(t, book.CoverPath)

	require.NoError(t, tc.imp.Remove(tc.ctx, book.ID))

	assert.Equal(t, 0, tc.bookCount())
	assert.False(t, testgen.FileExists(*book.FilePath))
	assert.False(t, testgen.FileExists(*book.CoverPath))

	entry, err := tc.imp.cache.Get(tc.ctx, metacache.KeyForPath(*book.FilePath))
	require.NoError(t, err)
	assert.Nil(t, entry)

	records, err := tc.imp.sourceService.ListImportsForBook(tc.ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	err = tc.imp.Remove(tc.ctx, book.ID)
	assert.True(t, errcodes.IsNotFound(err))
}

func TestRemove_KeepsExternalFiles(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	p := testgen.GenerateEPUB(t, t.TempDir(), "mine.epub", testgen.EPUBOptions{})
	book, err := tc.imp.ImportFile(tc.ctx, p, Options{})
	require.NoError(t, err)

	require.NoError(t, tc.imp.Remove(tc.ctx, book.ID))
	assert.True(t, testgen.FileExists(p))
	assert.False(t, tc.imp.ownsPath(p))
	assert.True(t, tc.imp.ownsPath(filepath.Join(tc.cfg.LibraryDir, "x.epub")))
	assert.False(t, tc.imp.ownsPath(tc.cfg.LibraryDir))
}
