package uri

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURI(t *testing.T) {
	t.Parallel()

	assert.True(t, IsURI("file:///books/a.epub"))
	assert.True(t, IsURI("content://com.android.providers/document/42"))
	assert.False(t, IsURI("/books/a.epub"))
	assert.False(t, IsURI("relative/path.epub"))
	assert.False(t, IsURI("://missing-scheme"))
	assert.False(t, IsURI("C:\\books\\a.epub"))
}

func TestFromPathToPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "My Book.epub")
	u := FromPath(p)
	assert.Contains(t, u, "file://")
	assert.Contains(t, u, "My%20Book.epub")

	back, err := ToPath(u)
	require.NoError(t, err)
	assert.Equal(t, p, back)

	_, err = ToPath("content://x/y")
	assert.Error(t, err)
}

func TestMux_File(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.epub"), []byte("bb"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.epub"), []byte("a"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "c.epub"), []byte("c"), 0600))

	mux := NewMux()

	docs, err := mux.Walk(ctx, FromPath(dir))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b.epub", docs[0].RelativePath)
	assert.Equal(t, "sub/a.epub", docs[1].RelativePath)
	assert.Equal(t, "a.epub", docs[1].Name)

	doc, err := mux.Stat(ctx, docs[0].URI)
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Size)

	rc, err := mux.Open(ctx, docs[0].URI)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "bb", string(data))

	_, err = mux.Stat(ctx, FromPath(filepath.Join(dir, "missing.epub")))
	assert.True(t, errcodes.IsNotFound(err))

	_, err = mux.Open(ctx, "content://provider/1")
	assert.True(t, errcodes.IsNotFound(err))
}
