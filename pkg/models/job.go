package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

const (
	JobTypeImport = "import"
	JobTypeRescan = "rescan"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID         int       `bun:",pk,autoincrement" json:"id"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	Data       string    `bun:",nullzero" json:"-"`
	DataParsed *JobData  `bun:"-" json:"data"`
	Progress   int       `json:"progress"`
	ProcessID  *string   `json:"process_id,omitempty"`
}

// JobData is the serialized payload of a bulk import or rescan.
type JobData struct {
	Sources []string       `json:"sources"`
	Outcome *ImportOutcome `json:"outcome,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (job *Job) MarshalData() error {
	if job.DataParsed == nil {
		job.Data = ""
		return nil
	}
	b, err := json.Marshal(job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	job.Data = string(b)
	return nil
}

func (job *Job) UnmarshalData() error {
	job.DataParsed = &JobData{}
	if job.Data == "" {
		return nil
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// IsFinished reports whether the job reached a terminal status.
func (job *Job) IsFinished() bool {
	switch job.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}
