package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
)

// InsertSubmission stores a new submission. roomID may be uuid.Nil for solo attempts.
func (s *Store) InsertSubmission(ctx context.Context, sub *judge.Submission, roomID uuid.UUID) error {
	var room *uuid.UUID
	if roomID != uuid.Nil {
		room = &roomID
	}
	q := `INSERT INTO submissions (id, puzzle_id, user_id, room_id, code, language, language_version, submitted_at)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		sub.ID, sub.PuzzleID, sub.UserID, room, sub.Code,
		sub.Language.Name, sub.Language.Version, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// SaveSubmissionResults freezes the judged results of sub.
func (s *Store) SaveSubmissionResults(ctx context.Context, sub *judge.Submission) error {
	q := `UPDATE submissions SET results=$2, execution_finished=$3 WHERE id=$1`
	results := sub.Results()
	if results == nil {
		results = []bool{}
	}
	tag, err := s.pool.Exec(ctx, q, sub.ID, results, sub.Finished())
	if err != nil {
		return fmt.Errorf("failed to save results of submission %s: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: submission %s", models.ErrNotFound, sub.ID)
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (*judge.Submission, error) {
	var (
		subID, puzzleID, userID uuid.UUID
		code                    string
		lang                    models.Language
		submittedAt             time.Time
		results                 []bool
		finished                bool
	)
	q := `SELECT id, puzzle_id, user_id, code, language, language_version, submitted_at, results, execution_finished
	      FROM submissions WHERE id=$1`
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&subID, &puzzleID, &userID, &code, &lang.Name, &lang.Version, &submittedAt, &results, &finished,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: can't find submission %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load submission %s: %w", id, err)
	}
	return judge.Restore(subID, puzzleID, userID, lang, code, submittedAt.UTC(), results, finished), nil
}

// Submission satisfies the room resolver.
func (s *Store) Submission(ctx context.Context, id uuid.UUID) (*judge.Submission, error) {
	return s.GetSubmission(ctx, id)
}
