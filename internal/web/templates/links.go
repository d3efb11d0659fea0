// Package templates holds the HTML fragments served to HTMX clients.
// Components are written in .templ files; run `templ generate` after
// editing them.
package templates

import (
	"strconv"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

// maxListedErrors bounds the error rows rendered in the status fragment.
const maxListedErrors = 10

func statusURL(job *core.ImportJob) string {
	return "/api/imports/" + job.ID.String() + "/status"
}

func errorsURL(job *core.ImportJob) string {
	return "/api/imports/" + job.ID.String() + "/errors"
}

func percentage(job *core.ImportJob) string {
	return strconv.Itoa(job.Progress.Percentage)
}

func listedErrors(job *core.ImportJob) []core.RowError {
	if len(job.Errors) > maxListedErrors {
		return job.Errors[:maxListedErrors]
	}
	return job.Errors
}

func moreErrors(job *core.ImportJob) bool {
	return len(job.Errors) > maxListedErrors || job.ErrorsTruncated
}
