// Package postgres implements core.Store on PostgreSQL through pgx.
//
// Jobs live in import_jobs with their progress, counters and error list as
// JSONB columns. Records live in one table per kind and reference their job
// only through import_batch_id, so deleting a job never removes records.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michalhajok/trackerB-sub000/internal/core"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// Store is a core.Store backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, user_id, file_name, file_size, mime_type, file_path, import_type, has_headers,
	status, progress, processing, records_count, errors, errors_truncated, failure_reason,
	can_rollback, is_rolled_back, rollback_time, rollback_reason,
	created_at, updated_at, start_time, end_time, heartbeat_at`

// jobDocs holds the JSONB encodings of a job.
type jobDocs struct {
	progress, processing, recordsCount, errors []byte
}

func encodeJob(job *core.ImportJob) (jobDocs, error) {
	var d jobDocs
	var err error
	if d.progress, err = json.Marshal(job.Progress); err != nil {
		return d, fmt.Errorf("encode progress: %w", err)
	}
	if d.processing, err = json.Marshal(job.Processing); err != nil {
		return d, fmt.Errorf("encode counters: %w", err)
	}
	if d.recordsCount, err = json.Marshal(job.RecordsCount); err != nil {
		return d, fmt.Errorf("encode records count: %w", err)
	}
	errs := job.Errors
	if errs == nil {
		errs = []core.RowError{}
	}
	if d.errors, err = json.Marshal(errs); err != nil {
		return d, fmt.Errorf("encode errors: %w", err)
	}
	return d, nil
}

func scanJob(row pgx.Row) (*core.ImportJob, error) {
	var (
		job  core.ImportJob
		docs jobDocs
	)
	err := row.Scan(
		&job.ID, &job.UserID, &job.File.Name, &job.File.Size, &job.File.MimeType, &job.File.Path,
		&job.ImportType, &job.HasHeaders,
		&job.Status, &docs.progress, &docs.processing, &docs.recordsCount, &docs.errors,
		&job.ErrorsTruncated, &job.FailureReason,
		&job.Rollback.CanRollback, &job.Rollback.IsRolledBack, &job.Rollback.RollbackTime, &job.Rollback.Reason,
		&job.CreatedAt, &job.UpdatedAt, &job.StartTime, &job.EndTime, &job.HeartbeatAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(docs.progress, &job.Progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if err := json.Unmarshal(docs.processing, &job.Processing); err != nil {
		return nil, fmt.Errorf("decode counters: %w", err)
	}
	if err := json.Unmarshal(docs.recordsCount, &job.RecordsCount); err != nil {
		return nil, fmt.Errorf("decode records count: %w", err)
	}
	if err := json.Unmarshal(docs.errors, &job.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	return &job, nil
}

func (s *Store) CreateJob(ctx context.Context, job *core.ImportJob) error {
	docs, err := encodeJob(job)
	if err != nil {
		return err
	}

	query := `INSERT INTO import_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)`
	_, err = s.pool.Exec(ctx, query,
		job.ID, job.UserID, job.File.Name, job.File.Size, job.File.MimeType, job.File.Path,
		string(job.ImportType), job.HasHeaders,
		string(job.Status), docs.progress, docs.processing, docs.recordsCount, docs.errors,
		job.ErrorsTruncated, job.FailureReason,
		job.Rollback.CanRollback, job.Rollback.IsRolledBack, job.Rollback.RollbackTime, job.Rollback.Reason,
		job.CreatedAt, job.UpdatedAt, job.StartTime, job.EndTime, job.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", mapError(err))
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*core.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, userID string, limit int) ([]*core.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return s.queryJobs(ctx, query, userID, limit)
}

func (s *Store) ListStuckJobs(ctx context.Context, before time.Time) ([]*core.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE status = 'processing' AND COALESCE(heartbeat_at, updated_at) < $1
		ORDER BY heartbeat_at`
	return s.queryJobs(ctx, query, before)
}

func (s *Store) ListPendingJobs(ctx context.Context, before time.Time) ([]*core.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at, id`
	return s.queryJobs(ctx, query, before)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*core.ImportJob, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*core.ImportJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SaveJob writes everything except the rollback sub-state, which only
// MarkRolledBack changes.
func (s *Store) SaveJob(ctx context.Context, job *core.ImportJob, expect core.Status) error {
	docs, err := encodeJob(job)
	if err != nil {
		return err
	}

	query := `UPDATE import_jobs SET
			status = $3, progress = $4, processing = $5, records_count = $6, errors = $7,
			errors_truncated = $8, failure_reason = $9, can_rollback = $10,
			updated_at = $11, start_time = $12, end_time = $13, heartbeat_at = $14
		WHERE id = $1 AND status = $2`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, string(expect),
		string(job.Status), docs.progress, docs.processing, docs.recordsCount, docs.errors,
		job.ErrorsTruncated, job.FailureReason, job.Rollback.CanRollback,
		job.UpdatedAt, job.StartTime, job.EndTime, job.HeartbeatAt,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrChanged(ctx, job.ID)
	}
	return nil
}

func (s *Store) MarkRolledBack(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	query := `UPDATE import_jobs SET
			is_rolled_back = TRUE, can_rollback = FALSE,
			rollback_time = $2, rollback_reason = $3, updated_at = $2
		WHERE id = $1 AND status = 'completed' AND NOT is_rolled_back`
	tag, err := s.pool.Exec(ctx, query, id, at, reason)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrChanged(ctx, id)
	}
	return nil
}

// missOrChanged tells a missing job apart from a failed status precondition.
func (s *Store) missOrChanged(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM import_jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return core.ErrJobNotFound
	}
	return core.ErrStatusChanged
}

func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

func (s *Store) InsertRecord(ctx context.Context, rec core.Record) error {
	var err error
	switch r := rec.(type) {
	case *core.Position:
		_, err = s.pool.Exec(ctx, `INSERT INTO positions (
				id, user_id, import_batch_id, created_at, symbol, side, volume, open_price, open_time,
				close_price, close_time, commission, swap, profit, currency, comment, position_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			r.ID, r.UserID, r.ImportBatchID, r.CreatedAt, r.Symbol, string(r.Side), r.Volume, r.OpenPrice, r.OpenTime,
			r.ClosePrice, r.CloseTime, r.Commission, r.Swap, r.Profit, r.Currency, r.Comment, r.PositionID,
		)
	case *core.CashOperation:
		_, err = s.pool.Exec(ctx, `INSERT INTO cash_operations (
				id, user_id, import_batch_id, created_at, type, amount, currency, time, comment, symbol, operation_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, r.UserID, r.ImportBatchID, r.CreatedAt, string(r.Type), r.Amount, r.Currency, r.Time,
			r.Comment, r.Symbol, r.OperationID,
		)
	case *core.PendingOrder:
		_, err = s.pool.Exec(ctx, `INSERT INTO pending_orders (
				id, user_id, import_batch_id, created_at, symbol, type, side, volume, price, open_time,
				stop_loss, take_profit, comment, order_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			r.ID, r.UserID, r.ImportBatchID, r.CreatedAt, r.Symbol, string(r.Type), string(r.Side), r.Volume, r.Price,
			r.OpenTime, r.StopLoss, r.TakeProfit, r.Comment, r.OrderID,
		)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind(), mapError(err))
	}
	return nil
}

func (s *Store) DeleteByBatch(ctx context.Context, kind core.RecordKind, userID string, batchID uuid.UUID) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE import_batch_id = $1 AND user_id = $2`, batchID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountByBatch(ctx context.Context, kind core.RecordKind, userID string, batchID uuid.UUID) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE import_batch_id = $1 AND user_id = $2`, batchID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func tableFor(kind core.RecordKind) (string, error) {
	switch kind {
	case core.KindPosition:
		return "positions", nil
	case core.KindCashOperation:
		return "cash_operations", nil
	case core.KindPendingOrder:
		return "pending_orders", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

// mapError turns unique violations into core.ErrDuplicateRecord.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w (%s)", core.ErrDuplicateRecord, pgErr.ConstraintName)
	}
	return err
}
