// Package worker runs bulk operations in the background. At most one
// operation is active at a time: submitting a new one cancels the one in
// flight and waits for it to stop first. Every operation is recorded as a
// job.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/epubcore/pkg/errcodes"
	"github.com/shishobooks/epubcore/pkg/importer"
	"github.com/shishobooks/epubcore/pkg/jobs"
	"github.com/shishobooks/epubcore/pkg/models"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

// ProcessID identifies this process in the jobs it claims.
func ProcessID() string {
	return processID
}

// Func is a bulk operation. It must check ctx between files and report
// progress through progress.
type Func func(ctx context.Context, progress importer.ProgressFunc) (*models.ImportOutcome, error)

type Worker struct {
	log        logger.Logger
	jobService *jobs.Service

	mu      sync.Mutex
	current *Task
	closed  bool

	tasks    sync.WaitGroup
	loops    sync.WaitGroup
	shutdown chan struct{}
}

func New(db *bun.DB, log logger.Logger) *Worker {
	return &Worker{
		log:        log,
		jobService: jobs.NewService(db),
		shutdown:   make(chan struct{}),
	}
}

// Task is a submitted operation.
type Task struct {
	Job *models.Job

	cancel  context.CancelFunc
	done    chan struct{}
	outcome *models.ImportOutcome
	err     error
}

func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task has finished and returns its result.
func (t *Task) Wait() (*models.ImportOutcome, error) {
	<-t.done
	return t.outcome, t.err
}

func failedTask(job *models.Job, err error) *Task {
	t := &Task{Job: job, cancel: func() {}, done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Submit records a job for fn and runs it once any previous operation has
// been cancelled and has stopped.
func (w *Worker) Submit(jobType string, sources []string, fn Func) *Task {
	return w.submit(jobType, sources, fn, false)
}

// TrySubmit is Submit unless an operation is already active, in which case
// nothing is recorded and it returns nil.
func (w *Worker) TrySubmit(jobType string, sources []string, fn Func) *Task {
	return w.submit(jobType, sources, fn, true)
}

func (w *Worker) submit(jobType string, sources []string, fn Func, onlyIfIdle bool) *Task {
	job := &models.Job{
		Type:       jobType,
		DataParsed: &models.JobData{Sources: sources},
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if onlyIfIdle && w.current != nil {
		return nil
	}
	if w.closed {
		return failedTask(job, errcodes.Cancelled())
	}
	if err := w.jobService.CreateJob(context.Background(), job); err != nil {
		w.log.Err(err).Error("create job error", logger.Data{"type": jobType})
		return failedTask(job, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{Job: job, cancel: cancel, done: make(chan struct{})}

	prev := w.current
	w.current = task
	if prev != nil {
		prev.Cancel()
	}

	w.tasks.Add(1)
	go func() {
		defer w.tasks.Done()
		if prev != nil {
			<-prev.done
		}
		w.run(ctx, task, fn)
	}()

	return task
}

// Active returns the most recently submitted task while it is unfinished.
func (w *Worker) Active() *Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Worker) release(task *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == task {
		w.current = nil
	}
}

func (w *Worker) run(ctx context.Context, task *Task, fn Func) {
	defer close(task.done)
	defer task.cancel()
	defer w.release(task)

	job := task.Job
	log := w.log
	if id, err := uuid.NewRandom(); err == nil {
		log = log.ID(id.String())
	}
	log = log.Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
	ctx = log.WithContext(ctx)

	// Job bookkeeping outlives cancellation.
	bg := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		task.outcome = &models.ImportOutcome{Cancelled: true}
		w.finish(bg, log, task)
		return
	}

	if err := w.jobService.Start(bg, job, processID); err != nil {
		log.Err(err).Error("update job error")
	}
	log.Info("job started")

	start := time.Now()
	task.outcome, task.err = fn(ctx, w.progress(bg, log, job))
	if task.outcome == nil {
		task.outcome = &models.ImportOutcome{}
	}
	if task.err != nil && errors.Is(task.err, context.Canceled) {
		task.outcome.Cancelled = true
		task.err = nil
	}

	log.Info("job finished", logger.Data{"duration_ms": time.Since(start).Milliseconds()})
	w.finish(bg, log, task)
}

func (w *Worker) finish(ctx context.Context, log logger.Logger, task *Task) {
	if task.err != nil {
		log.Err(task.err).Error("process error")
	}
	if err := w.jobService.Finish(ctx, task.Job, task.outcome, task.err); err != nil {
		log.Err(err).Error("update job error")
	}
}

// progress stores the overall percentage on the job whenever it changes.
func (w *Worker) progress(ctx context.Context, log logger.Logger, job *models.Job) importer.ProgressFunc {
	return func(p importer.Progress) {
		pct := int(p.Percent())
		if pct == job.Progress {
			return
		}
		job.Progress = pct
		err := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"progress"}})
		if err != nil {
			log.Err(err).Warn("update job progress error")
		}
	}
}

// Shutdown cancels the active operation, stops scheduled submissions and
// waits for everything to finish. Later submissions fail immediately.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	current := w.current
	w.mu.Unlock()

	close(w.shutdown)
	if current != nil {
		current.Cancel()
	}

	w.loops.Wait()
	w.tasks.Wait()
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
