package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/epubcore/pkg/config"
	"github.com/shishobooks/epubcore/pkg/database"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/migrations"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := database.New(config.NewForTest(t.TempDir()))
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestHasActiveJobByType_NoJobs(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeImport)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJobByType_PendingJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := &models.Job{
		Type:       models.JobTypeImport,
		DataParsed: &models.JobData{Sources: []string{"/books"}},
	}
	err := svc.CreateJob(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeImport)
	require.NoError(t, err)
	assert.True(t, hasActive)

	hasActive, err = svc.HasActiveJobByType(ctx, models.JobTypeRescan)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJobByType_FinishedJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := &models.Job{Type: models.JobTypeRescan, DataParsed: &models.JobData{}}
	require.NoError(t, svc.CreateJob(ctx, job))
	require.NoError(t, svc.Start(ctx, job, "proc-1"))
	require.NoError(t, svc.Finish(ctx, job, &models.ImportOutcome{Imported: 2}, nil))

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeRescan)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestFinish_StatusFromOutcome(t *testing.T) {
	tests := []struct {
		name     string
		outcome  *models.ImportOutcome
		runErr   error
		expected string
	}{
		{"completed", &models.ImportOutcome{Imported: 4, Failed: 1}, nil, models.JobStatusCompleted},
		{"cancelled", &models.ImportOutcome{Imported: 3, Cancelled: true}, nil, models.JobStatusCancelled},
		{"failed", &models.ImportOutcome{}, errors.New("directory vanished"), models.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newTestDB(t))
			ctx := context.Background()

			job := &models.Job{Type: models.JobTypeImport, DataParsed: &models.JobData{Sources: []string{"/books"}}}
			require.NoError(t, svc.CreateJob(ctx, job))
			require.NoError(t, svc.Finish(ctx, job, tt.outcome, tt.runErr))

			retrieved, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, retrieved.Status)
			assert.True(t, retrieved.IsFinished())
			require.NotNil(t, retrieved.DataParsed.Outcome)
			assert.Equal(t, tt.outcome.Imported, retrieved.DataParsed.Outcome.Imported)
			assert.Equal(t, []string{"/books"}, retrieved.DataParsed.Sources)
			if tt.runErr != nil {
				assert.Equal(t, tt.runErr.Error(), retrieved.DataParsed.Error)
			}
		})
	}
}

func TestRetrieveJob_NotFound(t *testing.T) {
	svc := NewService(newTestDB(t))

	_, err := svc.RetrieveJob(context.Background(), RetrieveJobOptions{ID: pointerutil.Int(42)})
	assert.True(t, errcodes.IsNotFound(err))
}

func TestListJobs(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	var created []*models.Job
	for _, typ := range []string{models.JobTypeImport, models.JobTypeRescan, models.JobTypeImport} {
		job := &models.Job{Type: typ, DataParsed: &models.JobData{Sources: []string{"/books"}}}
		require.NoError(t, svc.CreateJob(ctx, job))
		created = append(created, job)
	}

	jobs, err := svc.ListJobs(ctx, ListJobsOptions{Types: []string{models.JobTypeImport}})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// Newest first.
	assert.Equal(t, created[2].ID, jobs[0].ID)
	assert.Equal(t, created[0].ID, jobs[1].ID)
	for _, job := range jobs {
		require.NotNil(t, job.DataParsed)
		assert.Equal(t, []string{"/books"}, job.DataParsed.Sources)
	}

	limited, err := svc.ListJobs(ctx, ListJobsOptions{Limit: pointerutil.Int(1)})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLatestFinished(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	latest, err := svc.LatestFinished(ctx, models.JobTypeRescan)
	require.NoError(t, err)
	assert.Nil(t, latest)

	done := &models.Job{Type: models.JobTypeRescan}
	require.NoError(t, svc.CreateJob(ctx, done))
	require.NoError(t, svc.Finish(ctx, done, &models.ImportOutcome{Imported: 2}, nil))

	running := &models.Job{Type: models.JobTypeRescan}
	require.NoError(t, svc.CreateJob(ctx, running))
	require.NoError(t, svc.Start(ctx, running, "proc"))

	latest, err = svc.LatestFinished(ctx, models.JobTypeRescan)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, done.ID, latest.ID)
	assert.Equal(t, models.JobStatusCompleted, latest.Status)
	require.NotNil(t, latest.DataParsed.Outcome)
	assert.Equal(t, 2, latest.DataParsed.Outcome.Imported)
}

func TestFailOrphaned(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	mine := &models.Job{Type: models.JobTypeImport}
	theirs := &models.Job{Type: models.JobTypeImport}
	unclaimed := &models.Job{Type: models.JobTypeRescan}
	for _, job := range []*models.Job{mine, theirs, unclaimed} {
		require.NoError(t, svc.CreateJob(ctx, job))
	}
	require.NoError(t, svc.Start(ctx, mine, "current"))
	require.NoError(t, svc.Start(ctx, theirs, "previous"))

	n, err := svc.FailOrphaned(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	retrieved, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &mine.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, retrieved.Status)

	retrieved, err = svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, retrieved.Status)
}

func TestDeleteFinishedBefore(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	old := &models.Job{Type: models.JobTypeImport, CreatedAt: time.Now().Add(-72 * time.Hour)}
	active := &models.Job{Type: models.JobTypeImport, CreatedAt: time.Now().Add(-72 * time.Hour)}
	recent := &models.Job{Type: models.JobTypeImport}
	for _, job := range []*models.Job{old, active, recent} {
		require.NoError(t, svc.CreateJob(ctx, job))
	}
	require.NoError(t, svc.Finish(ctx, old, &models.ImportOutcome{}, nil))
	require.NoError(t, svc.Finish(ctx, recent, &models.ImportOutcome{}, nil))

	n, err := svc.DeleteFinishedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &old.ID})
	assert.True(t, errcodes.IsNotFound(err))
	_, err = svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &active.ID})
	assert.NoError(t, err)
}
