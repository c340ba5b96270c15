package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InMemory(t *testing.T) {
	t.Parallel()

	db, err := New(config.NewForTest(t.TempDir()))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO things (name) VALUES ('a')`)
	require.NoError(t, err)

	// Every query must see the same in-memory database.
	var count int
	err = db.NewSelect().Table("things").ColumnExpr("COUNT(*)").Scan(context.Background(), &count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	cfg := config.NewForTest(t.TempDir())
	cfg.DatabaseFilePath = filepath.Join(cfg.DataDir, "test.db")
	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE writes (id INTEGER PRIMARY KEY AUTOINCREMENT, value TEXT NOT NULL)`)
	require.NoError(t, err)

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := db.Exec("INSERT INTO writes (value) VALUES (?)", fmt.Sprintf("%d-%d", id, i))
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM writes").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, count)
}
