package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveJobOptions struct {
	ID *int
}

type ListJobsOptions struct {
	Limit    *int
	Statuses []string
	Types    []string
}

var finishedStatuses = []string{models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	if job.Data == "" && job.DataParsed != nil {
		// Marshal the data into a JSON string to save into the database.
		err := job.MarshalData()
		if err != nil {
			return errors.WithStack(err)
		}
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	// Unmarshal the data into a struct to be returned.
	err = job.UnmarshalData()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return job, nil
}

// ListJobs returns jobs newest first.
func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	jobs := []*models.Job{}

	q := svc.db.
		NewSelect().
		Model(&jobs).
		Order("j.created_at DESC", "j.id DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if len(opts.Types) > 0 {
		q = q.Where("j.type IN (?)", bun.In(opts.Types))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, job := range jobs {
		if err := job.UnmarshalData(); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return jobs, nil
}

// LatestFinished returns the most recent finished job of jobType, or nil
// when there is none.
func (svc *Service) LatestFinished(ctx context.Context, jobType string) (*models.Job, error) {
	limit := 1
	jobs, err := svc.ListJobs(ctx, ListJobsOptions{
		Limit:    &limit,
		Types:    []string{jobType},
		Statuses: finishedStatuses,
	})
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// HasActiveJobByType checks if there's a pending or in-progress job of the given type.
func (svc *Service) HasActiveJobByType(ctx context.Context, jobType string) (bool, error) {
	count, err := svc.db.NewSelect().
		Model((*models.Job)(nil)).
		Where("type = ?", jobType).
		WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("status = ?", models.JobStatusPending).
				WhereOr("status = ?", models.JobStatusInProgress)
		}).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	for _, col := range opts.Columns {
		if col == "data" {
			if err := job.MarshalData(); err != nil {
				return errors.WithStack(err)
			}
			break
		}
	}

	// Update updated_at.
	job.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Job")
	}

	return nil
}

// Start moves the job to in_progress and claims it for processID.
func (svc *Service) Start(ctx context.Context, job *models.Job, processID string) error {
	job.Status = models.JobStatusInProgress
	job.ProcessID = &processID
	return svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"status", "process_id"}})
}

// Finish stores the outcome and a terminal status derived from it: cancelled
// when the run was cancelled, failed when runErr is set, completed otherwise.
func (svc *Service) Finish(ctx context.Context, job *models.Job, outcome *models.ImportOutcome, runErr error) error {
	if job.DataParsed == nil {
		job.DataParsed = &models.JobData{}
	}
	job.DataParsed.Outcome = outcome

	switch {
	case outcome != nil && outcome.Cancelled:
		job.Status = models.JobStatusCancelled
	case runErr != nil:
		job.Status = models.JobStatusFailed
		job.DataParsed.Error = runErr.Error()
	default:
		job.Status = models.JobStatusCompleted
		job.Progress = 100
	}

	return svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"status", "data", "progress"}})
}

// FailOrphaned marks every unfinished job that isn't owned by processID as
// failed. It is called on startup since jobs can't survive a restart.
func (svc *Service) FailOrphaned(ctx context.Context, processID string) (int, error) {
	res, err := svc.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusFailed).
		Set("updated_at = ?", time.Now()).
		Where("status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress})).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("process_id IS NULL").
				WhereOr("process_id != ?", processID)
		}).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteFinishedBefore removes finished jobs older than cutoff.
func (svc *Service) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := svc.db.NewDelete().
		Model((*models.Job)(nil)).
		Where("status IN (?)", bun.In(finishedStatuses)).
		Where("created_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
