package core

import (
	"fmt"
	"time"
)

// finalizeCompleted closes a run that reached the end of its input. Zero
// successful rows is still a completed job.
func finalizeCompleted(job *ImportJob, now time.Time) {
	job.RecordsCount.Total = job.RecordsCount.Sum()
	job.Status = StatusCompleted
	job.EndTime = timePtr(now)
	job.UpdatedAt = now
	job.Rollback.CanRollback = job.Processing.SuccessfulRows > 0

	(&progressReporter{job: job}).finish(StatusCompleted, completionMessage(job))
}

// finalizeFailed closes a run aborted by an unreadable file or an unexpected
// error. Records written before the failure stay counted.
func finalizeFailed(job *ImportJob, cause error, now time.Time) {
	job.RecordsCount.Total = job.RecordsCount.Sum()
	job.Status = StatusFailed
	job.FailureReason = cause.Error()
	job.EndTime = timePtr(now)
	job.UpdatedAt = now
	job.Rollback.CanRollback = false

	(&progressReporter{job: job}).finish(StatusFailed, "Import failed: "+FormatUserError(cause))
}

// finalizeCancelled stamps a job that stopped on a user cancellation. The
// percentage stays where the run left it.
func finalizeCancelled(job *ImportJob, now time.Time) {
	job.RecordsCount.Total = job.RecordsCount.Sum()
	job.Status = StatusCancelled
	if job.EndTime == nil {
		job.EndTime = timePtr(now)
	}
	job.UpdatedAt = now
	job.Rollback.CanRollback = false
	job.Progress.Message = fmt.Sprintf("Cancelled after %d of %d rows", job.Processing.ProcessedRows, job.Processing.TotalRows)
}

func completionMessage(job *ImportJob) string {
	c := job.Processing
	msg := fmt.Sprintf("Imported %d of %d rows", c.SuccessfulRows, c.TotalRows)
	if c.ErrorRows > 0 {
		msg += fmt.Sprintf(", %d failed", c.ErrorRows)
	}
	if c.SkippedRows > 0 {
		msg += fmt.Sprintf(", %d skipped", c.SkippedRows)
	}
	return msg
}
