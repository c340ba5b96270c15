package fileutils

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Checksum returns the hex encoded BLAKE2b-256 digest of the file's bytes.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	return ChecksumReader(f)
}

func ChecksumReader(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyFile copies src to dst, creating dst's directory when needed.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.WithStack(err)
	}

	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		destFile.Close()
		os.Remove(dst)
		return errors.WithStack(err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err == nil {
		err = destFile.Chmod(sourceInfo.Mode())
	}
	if err != nil {
		destFile.Close()
		return errors.WithStack(err)
	}

	return errors.WithStack(destFile.Close())
}

// UniqueFilePath returns path, or path with " (n)" appended before the
// extension when something already exists there.
func UniqueFilePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	nameWithoutExt := BaseNameWithoutExt(path)

	for i := 1; i < 1000; i++ {
		newPath := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", nameWithoutExt, i, ext))
		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			return newPath
		}
	}

	// Fallback - this should rarely happen
	return path
}

// TempCopy writes r to a new file under dir and returns its path along with
// a cleanup func that removes it. The cleanup func is safe to call more than
// once and is non-nil even on error.
func TempCopy(dir, pattern string, r io.Reader) (string, func(), error) {
	noop := func() {}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", noop, errors.WithStack(err)
	}

	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", noop, errors.WithStack(err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	_, err = io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", noop, errors.WithStack(err)
	}

	return path, cleanup, nil
}

// CoverImageExtensions contains all supported image extensions for cover
// files.
var CoverImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".svg"}

// CoverExistsWithBaseName checks if any cover file exists with the given base
// name regardless of image extension. It returns the path of the first match
// or an empty string.
func CoverExistsWithBaseName(dir, baseName string) string {
	for _, ext := range CoverImageExtensions {
		coverPath := filepath.Join(dir, baseName+ext)
		if _, err := os.Stat(coverPath); err == nil {
			return coverPath
		}
	}
	return ""
}

// RemoveCovers deletes every cover file with the given base name.
func RemoveCovers(dir, baseName string) error {
	for _, ext := range CoverImageExtensions {
		err := os.Remove(filepath.Join(dir, baseName+ext))
		if err != nil && !os.IsNotExist(err) {
			return errors.WithStack(err)
		}
	}
	return nil
}
