package importer

import (
	"context"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/epub"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/fileutils"
	"github.com/shishobooks/epubcore/pkg/metacache"
	"github.com/shishobooks/epubcore/pkg/uri"
)

// Inspection is the cache-aware parse result of one source.
type Inspection struct {
	Package *epub.Package
	// LocalPath is where the archive can be read for the rest of the
	// operation.
	LocalPath     string
	Key           string
	Checksum      string
	CacheHit      bool
	ParseDuration time.Duration
}

// sniff rejects anything that isn't a ZIP container before it is opened.
func sniff(filePath string) error {
	mt, err := mimetype.DetectFile(filePath)
	if err != nil {
		return errors.WithStack(err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return nil
		}
	}
	return errcodes.InvalidArchive("detected " + mt.String())
}

// Inspect parses the archive at filePath in metadata mode, reusing the
// cached result when the file's checksum and modification time are
// unchanged.
func (imp *Importer) Inspect(ctx context.Context, filePath string) (*Inspection, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"path": filePath})

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	checksum, err := fileutils.Checksum(filePath)
	if err != nil {
		return nil, err
	}

	key := metacache.KeyForPath(filePath)
	valid, err := imp.cache.IsValid(ctx, key, checksum, info.ModTime())
	if err != nil {
		return nil, err
	}
	if valid {
		entry, err := imp.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			log.Debug("metadata cache hit")
			return &Inspection{
				Package:       entry.Package,
				LocalPath:     filePath,
				Key:           key,
				Checksum:      checksum,
				CacheHit:      true,
				ParseDuration: entry.ParseDuration,
			}, nil
		}
	} else if stale, err := imp.cache.Get(ctx, key); err == nil && stale != nil {
		err := imp.cache.Invalidate(ctx, key, "checksum or modification time changed")
		if err != nil {
			return nil, err
		}
	}

	if err := sniff(filePath); err != nil {
		return nil, err
	}

	start := time.Now()
	archive, err := imp.openArchive(filePath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	pkg, err := epub.Parse(archive, imp.parseOptions())
	if err != nil {
		return nil, err
	}
	pkg.SetSource(filePath, info.Size(), info.ModTime())
	duration := time.Since(start)

	err = imp.withRetry(ctx, func() error {
		return imp.cache.Put(ctx, key, pkg, checksum, duration)
	})
	if err != nil {
		return nil, err
	}

	log.Debug("parsed package", logger.Data{
		"resolved_by":   pkg.ResolvedBy,
		"generated":     pkg.Generated(),
		"duration_ms":   duration.Milliseconds(),
		"chapter_count": pkg.ChapterCount,
	})

	return &Inspection{
		Package:       pkg,
		LocalPath:     filePath,
		Key:           key,
		Checksum:      checksum,
		ParseDuration: duration,
	}, nil
}

// InspectURI spools the document behind u to a temporary file and inspects
// it. The returned cleanup removes the temporary file and is never nil.
func (imp *Importer) InspectURI(ctx context.Context, u string) (*Inspection, *uri.Document, func(), error) {
	noop := func() {}

	doc, err := imp.resolver.Stat(ctx, u)
	if err != nil {
		return nil, nil, noop, err
	}
	rc, err := imp.resolver.Open(ctx, u)
	if err != nil {
		return nil, nil, noop, err
	}
	tmpPath, cleanup, err := fileutils.TempCopy(imp.config.TempDir, "uri-*.epub", rc)
	rc.Close()
	if err != nil {
		cleanup()
		return nil, nil, noop, err
	}

	insp, err := imp.inspectURI(ctx, u, tmpPath, doc.Size, doc.ModifiedAt)
	if err != nil {
		cleanup()
		return nil, nil, noop, err
	}
	return insp, doc, cleanup, nil
}

// inspectURI parses a URI source that has been spooled to localPath. URI
// sources are cached by URI and use the weak metadata checksum, so a hit
// only requires the size and modification time reported by the resolver to
// match the cached entry.
func (imp *Importer) inspectURI(ctx context.Context, u string, localPath string, size int64, modifiedAt time.Time) (*Inspection, error) {
	key := metacache.KeyForURI(u)

	entry, err := imp.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.Package.Size == size {
		valid, err := imp.cache.IsValid(ctx, key, entry.Checksum, modifiedAt)
		if err != nil {
			return nil, err
		}
		if valid {
			return &Inspection{
				Package:       entry.Package,
				LocalPath:     localPath,
				Key:           key,
				Checksum:      entry.Checksum,
				CacheHit:      true,
				ParseDuration: entry.ParseDuration,
			}, nil
		}
	}
	if entry != nil {
		err := imp.cache.Invalidate(ctx, key, "size or modification time changed")
		if err != nil {
			return nil, err
		}
	}

	if err := sniff(localPath); err != nil {
		return nil, err
	}

	start := time.Now()
	archive, err := imp.openArchive(localPath)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	pkg, err := epub.Parse(archive, imp.parseOptions())
	if err != nil {
		return nil, err
	}
	// URI sources have no stable path.
	pkg.SetSource("", size, modifiedAt)
	duration := time.Since(start)

	checksum := metacache.MetadataChecksum(pkg.Metadata.Title, pkg.Metadata.Author, size, pkg.ModifiedAt, pkg.ChapterCount)
	err = imp.withRetry(ctx, func() error {
		return imp.cache.Put(ctx, key, pkg, checksum, duration)
	})
	if err != nil {
		return nil, err
	}

	return &Inspection{
		Package:       pkg,
		LocalPath:     localPath,
		Key:           key,
		Checksum:      checksum,
		ParseDuration: duration,
	}, nil
}
