package worker

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

// Schedule submits fn every interval until Shutdown. A tick is skipped while
// any operation is active so a scheduled run never cancels a requested one.
func (w *Worker) Schedule(jobType string, interval time.Duration, fn Func) {
	if interval <= 0 {
		return
	}

	w.loops.Add(1)
	go func() {
		defer w.loops.Done()

		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-w.shutdown:
				return
			case <-timer.C:
				if w.Active() != nil {
					timer.Reset(interval)
					continue
				}
				active, err := w.jobService.HasActiveJobByType(context.Background(), jobType)
				if err != nil {
					w.log.Err(err).Error("list jobs error")
				}
				if !active && err == nil {
					if task := w.TrySubmit(jobType, nil, fn); task != nil {
						w.log.Info("scheduled job", logger.Data{"type": jobType, "job_id": task.Job.ID})
					}
				}
				timer.Reset(interval)
			}
		}
	}()
}
