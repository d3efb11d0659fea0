package core

// MaxStoredErrors caps the error list kept on a job. Counters keep counting
// past the cap and the job is flagged with ErrorsTruncated.
var MaxStoredErrors = 1000

// errorCollector appends row failures to a job. A failure and its errorRows
// increment happen in the same call, so the next flush persists both.
type errorCollector struct {
	job *ImportJob
	max int
}

func newErrorCollector(job *ImportJob, max int) *errorCollector {
	if max <= 0 {
		max = MaxStoredErrors
	}
	return &errorCollector{job: job, max: max}
}

// rowFailed records a row that produced no record.
func (c *errorCollector) rowFailed(e RowError) {
	c.job.Processing.ErrorRows++
	c.append(e)
}

// duplicate records a row rejected as a duplicate.
func (c *errorCollector) duplicate(e RowError) {
	c.job.Processing.DuplicateRows++
	c.rowFailed(e)
}

// warn records a note about a row that was still imported or skipped.
func (c *errorCollector) warn(entries ...RowError) {
	for _, e := range entries {
		e.Severity = SeverityWarning
		c.append(e)
	}
}

func (c *errorCollector) append(e RowError) {
	if e.Severity == "" {
		e.Severity = SeverityError
	}
	if len(c.job.Errors) >= c.max {
		c.job.ErrorsTruncated = true
		return
	}
	c.job.Errors = append(c.job.Errors, e)
}
