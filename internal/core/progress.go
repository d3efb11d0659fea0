package core

import "fmt"

// Percentage boundaries of the pipeline phases.
const (
	pctParsing    = 5
	pctValidating = 25
	pctImporting  = 50
	pctImported   = 95
	pctDone       = 100
)

// ProgressEvery is how many rows are processed between persisted progress updates.
var ProgressEvery = 100

// progressReporter keeps job.Progress moving forward. It never lowers the
// percentage and leaves 100 to the finalizer.
type progressReporter struct {
	job *ImportJob
}

func (p *progressReporter) phase(step Step, pct int, msg string) {
	pct = min(pct, pctImported)
	if pct < p.job.Progress.Percentage {
		pct = p.job.Progress.Percentage
	}
	p.job.Progress = Progress{Percentage: pct, CurrentStep: step, Message: msg}
}

// rows reports importing progress as processed/total of the 50-95 range.
func (p *progressReporter) rows(processed, total int) {
	pct := pctImported
	if total > 0 {
		pct = pctImporting + (pctImported-pctImporting)*processed/total
	}
	p.phase(StepImporting, pct, fmt.Sprintf("Imported %d of %d rows", processed, total))
}

// finish writes the terminal step. 100 is only ever written here.
func (p *progressReporter) finish(status Status, msg string) {
	step := StepCompleted
	if status == StatusFailed {
		step = StepFailed
	}
	p.job.Progress = Progress{Percentage: pctDone, CurrentStep: step, Message: msg}
}
