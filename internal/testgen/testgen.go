// Package testgen generates EPUB archives with configurable structure and
// metadata for tests.
package testgen

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// WriteFile creates a file with the given content in dir and returns its
// path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", p, err)
	}
	if err := os.WriteFile(p, content, 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", p, err)
	}
	return p
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// BuildZip packs files into a ZIP archive in name order. A "mimetype" entry
// is always written first and stored uncompressed.
func BuildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if data, ok := files["mimetype"]; ok {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			t.Fatalf("failed to create mimetype entry: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("failed to write mimetype: %v", err)
		}
	}
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// GenerateCorrupt writes a file that is not a ZIP archive.
func GenerateCorrupt(t *testing.T, dir, filename string) string {
	t.Helper()
	return WriteFile(t, dir, filename, []byte("this is not an epub, just some bytes pretending to be one\n"))
}
