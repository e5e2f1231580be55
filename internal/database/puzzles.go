package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codincod/internal/models"
)

func (s *Store) CreatePuzzle(ctx context.Context, p *models.Puzzle) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Difficulty == "" {
		p.Difficulty = models.DifficultyMedium
	}
	validators, err := json.Marshal(p.Validators)
	if err != nil {
		return fmt.Errorf("failed to marshal validators: %w", err)
	}
	q := `INSERT INTO puzzles (id, title, statement, constraints, author_id, validators, puzzle_types, difficulty)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q,
		p.ID, p.Title, p.Statement, p.Constraints, p.AuthorID,
		validators, puzzleTypeStrings(p.PuzzleTypes), string(p.Difficulty),
	)
	if err != nil {
		return fmt.Errorf("failed to insert puzzle: %w", err)
	}
	return nil
}

const puzzleColumns = `id, title, statement, constraints, author_id, validators, puzzle_types, difficulty`

func scanPuzzle(row pgx.Row) (*models.Puzzle, error) {
	var (
		p          models.Puzzle
		validators []byte
		types      []string
		difficulty string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Statement, &p.Constraints, &p.AuthorID, &validators, &types, &difficulty)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(validators, &p.Validators); err != nil {
		return nil, fmt.Errorf("puzzle %s has malformed validators: %w", p.ID, err)
	}
	for _, t := range types {
		p.PuzzleTypes = append(p.PuzzleTypes, models.PuzzleType(t))
	}
	p.Difficulty = models.Difficulty(difficulty)
	return &p, nil
}

func (s *Store) GetPuzzle(ctx context.Context, id uuid.UUID) (*models.Puzzle, error) {
	p, err := scanPuzzle(s.pool.QueryRow(ctx, `SELECT `+puzzleColumns+` FROM puzzles WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: can't find puzzle %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load puzzle %s: %w", id, err)
	}
	return p, nil
}

// Puzzle satisfies the room resolver.
func (s *Store) Puzzle(ctx context.Context, id uuid.UUID) (*models.Puzzle, error) {
	return s.GetPuzzle(ctx, id)
}

func (s *Store) ListPuzzlesByAuthor(ctx context.Context, authorID uuid.UUID) ([]*models.Puzzle, error) {
	return s.listPuzzles(ctx, `SELECT `+puzzleColumns+` FROM puzzles WHERE author_id=$1 ORDER BY created_at`, authorID)
}

func (s *Store) ListPuzzlesByType(ctx context.Context, t models.PuzzleType) ([]*models.Puzzle, error) {
	return s.listPuzzles(ctx, `SELECT `+puzzleColumns+` FROM puzzles WHERE $1 = ANY(puzzle_types) ORDER BY created_at`, string(t))
}

func (s *Store) listPuzzles(ctx context.Context, q string, arg interface{}) ([]*models.Puzzle, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list puzzles: %w", err)
	}
	defer rows.Close()

	var out []*models.Puzzle
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func puzzleTypeStrings(types []models.PuzzleType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}
