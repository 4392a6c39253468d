package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateEvalRunParams are the arguments for CreateEvalRun.
type CreateEvalRunParams struct {
	ID         uuid.UUID
	Config     []byte
	TotalTests int32
}

const createEvalRunSQL = `INSERT INTO eval_runs (id, config, total_tests, status)
	VALUES ($1, $2, $3, 'running')`

// CreateEvalRun inserts a run row at run start so partial results are
// attributable even if the run later fails.
func (q *Queries) CreateEvalRun(ctx context.Context, arg CreateEvalRunParams) error {
	_, err := q.db.Exec(ctx, createEvalRunSQL, pgUUID(arg.ID), arg.Config, arg.TotalTests)
	return err
}

// AppendEvalResultParams are the arguments for AppendEvalResult.
type AppendEvalResultParams struct {
	RunID       uuid.UUID
	Model       string
	TestCaseID  string
	Answer      string
	Scores      []byte
	ExecutionMS int64
	ErrMessage  *string
}

const appendEvalResultSQL = `INSERT INTO eval_results
	(run_id, model, test_case_id, answer, scores, execution_ms, err_message)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// AppendEvalResult persists one (model, test case) outcome as it arrives.
func (q *Queries) AppendEvalResult(ctx context.Context, arg AppendEvalResultParams) error {
	_, err := q.db.Exec(ctx, appendEvalResultSQL,
		pgUUID(arg.RunID), arg.Model, arg.TestCaseID, arg.Answer,
		arg.Scores, arg.ExecutionMS, arg.ErrMessage)
	return err
}

// FinalizeEvalRunParams are the arguments for FinalizeEvalRun.
type FinalizeEvalRunParams struct {
	ID          uuid.UUID
	Status      string // "done" or "error"
	AvgScore    float64
	ExecutionMS int64
}

const finalizeEvalRunSQL = `UPDATE eval_runs
	SET status = $2, avg_score = $3, execution_ms = $4, finished_at = now()
	WHERE id = $1`

// FinalizeEvalRun marks a run complete (or failed) with its aggregate.
func (q *Queries) FinalizeEvalRun(ctx context.Context, arg FinalizeEvalRunParams) error {
	_, err := q.db.Exec(ctx, finalizeEvalRunSQL,
		pgUUID(arg.ID), arg.Status, arg.AvgScore, arg.ExecutionMS)
	return err
}

// EvalRunRow is one persisted run header.
type EvalRunRow struct {
	ID          uuid.UUID
	Config      []byte
	TotalTests  int32
	Status      string
	AvgScore    float64
	ExecutionMS int64
	CreatedAt   time.Time
}

const getEvalRunSQL = `SELECT id, config, total_tests, status,
		COALESCE(avg_score, 0), COALESCE(execution_ms, 0), created_at
	FROM eval_runs WHERE id = $1`

// GetEvalRun fetches one run header by ID.
func (q *Queries) GetEvalRun(ctx context.Context, id uuid.UUID) (EvalRunRow, error) {
	var r EvalRunRow
	var pid pgtype.UUID
	err := q.db.QueryRow(ctx, getEvalRunSQL, pgUUID(id)).Scan(
		&pid, &r.Config, &r.TotalTests, &r.Status, &r.AvgScore, &r.ExecutionMS, &r.CreatedAt)
	if err != nil {
		return EvalRunRow{}, err
	}
	r.ID = uuid.UUID(pid.Bytes)
	return r, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
