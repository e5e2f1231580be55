package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// JudgeRun is the outcome of one test case of one submission.
type JudgeRun struct {
	SubmissionID  uuid.UUID
	TestCaseIndex int
	Passed        bool
	Output        string
	RecordedAt    time.Time
}

// InsertJudgeRunsTx writes runs inside tx. Replayed runs overwrite earlier rows.
func InsertJudgeRunsTx(ctx context.Context, tx pgx.Tx, runs []JudgeRun) error {
	q := `INSERT INTO judge_runs (submission_id, test_case_index, passed, output, recorded_at)
	      VALUES ($1, $2, $3, $4, $5)
	      ON CONFLICT (submission_id, test_case_index)
	      DO UPDATE SET passed = EXCLUDED.passed, output = EXCLUDED.output, recorded_at = EXCLUDED.recorded_at`
	batch := &pgx.Batch{}
	for _, r := range runs {
		batch.Queue(q, r.SubmissionID, r.TestCaseIndex, r.Passed, r.Output, r.RecordedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert judge runs: %w", err)
	}
	return nil
}

// ListJudgeRuns returns the recorded runs of a submission in test case order.
func (s *Store) ListJudgeRuns(ctx context.Context, submissionID uuid.UUID) ([]JudgeRun, error) {
	rows, err := s.pool.Query(ctx, `SELECT submission_id, test_case_index, passed, output, recorded_at
		FROM judge_runs WHERE submission_id=$1 ORDER BY test_case_index`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list judge runs: %w", err)
	}
	defer rows.Close()

	var out []JudgeRun
	for rows.Next() {
		var r JudgeRun
		if err := rows.Scan(&r.SubmissionID, &r.TestCaseIndex, &r.Passed, &r.Output, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertJudgeRuns writes runs in a single transaction.
func (s *Store) InsertJudgeRuns(ctx context.Context, runs []JudgeRun) error {
	if len(runs) == 0 {
		return nil
	}
	return s.BeginTxFunc(ctx, func(tx pgx.Tx) error {
		return InsertJudgeRunsTx(ctx, tx, runs)
	})
}
