package importer

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/container"
	"github.com/shishobooks/epubcore/pkg/database"
	"github.com/shishobooks/epubcore/pkg/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// testContext holds everything an importer test needs.
type testContext struct {
	t   *testing.T
	ctx context.Context
	cfg *config.Config
	db  *bun.DB
	imp *Importer

	mu       sync.Mutex
	archives []*container.Archive
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	cfg := config.NewForTest(t.TempDir())
	db, err := database.New(cfg)
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	tc := &testContext{
		t:   t,
		ctx: logger.New().WithContext(context.Background()),
		cfg: cfg,
		db:  db,
		imp: New(cfg, db, nil),
	}

	// Track every archive the importer opens so tests can count reads.
	tc.imp.openArchive = func(p string) (*container.Archive, error) {
		a, err := container.Open(p)
		if err != nil {
			return nil, err
		}
		tc.mu.Lock()
		tc.archives = append(tc.archives, a)
		tc.mu.Unlock()
		return a, nil
	}

	return tc
}

// containerReads is the total number of entry reads across every archive
// the importer has opened.
func (tc *testContext) containerReads() int64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	var n int64
	for _, a := range tc.archives {
		n += a.Reads()
	}
	return n
}

func (tc *testContext) bookCount() int {
	tc.t.Helper()
	n, err := tc.imp.bookService.CountBooks(tc.ctx)
	require.NoError(tc.t, err)
	return n
}

func (tc *testContext) tempDirEntries() []os.DirEntry {
	tc.t.Helper()
	entries, err := os.ReadDir(tc.cfg.TempDir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(tc.t, err)
	return entries
}
