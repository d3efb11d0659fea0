// Package core provides the business logic for brokerage spreadsheet imports.
//
// An upload is accepted synchronously as an [ImportJob] in the pending state
// and processed later by a background worker. Processing turns every sheet of
// the workbook into typed portfolio records ([Position], [CashOperation],
// [PendingOrder]) tagged with the job id, so the whole batch can be removed
// again with a rollback.
//
// # Pipeline
//
// A run moves through these components:
//
//   - Workbook Reader: opens xlsx or CSV content as sheets of tagged [Cell] values.
//   - Classifier: decides the record kind per sheet (override, sheet name, header)
//     and per row for sheets that mix cash operations and trades.
//   - Transformer/Validator: resolves header aliases once per sheet, coerces
//     cells and validates the candidate record.
//   - Writer: stamps ids and persists one record at a time.
//   - Progress Reporter and Error Collector: keep the job document current.
//   - Finalizer: computes totals and the terminal status.
//
// A bad row never aborts the run. It is counted in errorRows and described in
// the job's error list. Only an unreadable file or an unexpected panic fails
// the job as a whole.
//
// # Record kinds
//
// Each record kind is registered at init time with [Register]. A
// [KindDefinition] lists the sheet-name vocabulary, the field aliases used for
// header resolution, the positional column order used when a sheet has no
// header, and the function that builds a record from a row:
//
//	core.Register(KindDefinition{
//	    Kind:            KindCashOperation,
//	    SheetVocabulary: []string{"cash", "operac"},
//	    Fields: []FieldSpec{
//	        {Name: "type", Aliases: []string{"type", "typ"}},
//	        {Name: "amount", Aliases: []string{"amount", "kwota"}},
//	    },
//	    Build: buildCashOperation,
//	})
//
// # Concurrency
//
// Each job is processed by exactly one worker. Cancellation is cooperative:
// the row loop re-checks the persisted status every batch and stops when the
// job was cancelled. A [Watchdog] fails jobs whose heartbeat went stale.
package core
