package models

import (
	"time"

	"github.com/shishobooks/epubcore/pkg/errcodes"
)

// ImportOutcome summarizes one bulk import or rescan.
type ImportOutcome struct {
	Imported  int              `json:"imported"`
	Updated   int              `json:"updated"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Cancelled bool             `json:"cancelled"`
	BookIDs   []string         `json:"book_ids,omitempty"`
	Skips     []*FailureRecord `json:"skips,omitempty"`
	Failures  []*FailureRecord `json:"failures,omitempty"`
}

// FailureRecord describes one file that was skipped or failed.
type FailureRecord struct {
	FileName     string    `json:"file_name"`
	RelativePath string    `json:"relative_path"`
	Message      string    `json:"message"`
	Code         string    `json:"code,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func newFailureRecord(fileName, relativePath string, err error) *FailureRecord {
	return &FailureRecord{
		FileName:     fileName,
		RelativePath: relativePath,
		Message:      err.Error(),
		Code:         errcodes.Code(err),
		OccurredAt:   time.Now(),
	}
}

// Record classifies err for the given file. Duplicates count as skipped,
// everything else as failed.
func (o *ImportOutcome) Record(fileName, relativePath string, err error) {
	rec := newFailureRecord(fileName, relativePath, err)
	if errcodes.IsDuplicate(err) {
		o.Skipped++
		o.Skips = append(o.Skips, rec)
		return
	}
	o.Failed++
	o.Failures = append(o.Failures, rec)
}

func (o *ImportOutcome) RecordImported(bookID string) {
	o.Imported++
	o.BookIDs = append(o.BookIDs, bookID)
}

func (o *ImportOutcome) RecordUpdated(bookID string) {
	o.Updated++
	o.BookIDs = append(o.BookIDs, bookID)
}

// RecordUnchanged counts a known file whose content hasn't changed.
func (o *ImportOutcome) RecordUnchanged() {
	o.Skipped++
}

// Processed is the number of files that reached a verdict.
func (o *ImportOutcome) Processed() int {
	return o.Imported + o.Updated + o.Skipped + o.Failed
}

// Merge folds other into o.
func (o *ImportOutcome) Merge(other *ImportOutcome) {
	if other == nil {
		return
	}
	o.Imported += other.Imported
	o.Updated += other.Updated
	o.Skipped += other.Skipped
	o.Failed += other.Failed
	o.Cancelled = o.Cancelled || other.Cancelled
	o.BookIDs = append(o.BookIDs, other.BookIDs...)
	o.Skips = append(o.Skips, other.Skips...)
	o.Failures = append(o.Failures, other.Failures...)
}
