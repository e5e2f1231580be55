package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/room"
)

func (s *Store) InsertRoom(ctx context.Context, rec room.Record) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal room config: %w", err)
	}
	q := `INSERT INTO game_rooms (id, creator_id, puzzle_id, config, start_time, state, player_ids, submission_ids)
	      VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.CreatorID, rec.PuzzleID, cfg, rec.StartTime, string(rec.State),
		nonNilIDs(rec.PlayerIDs), nonNilIDs(rec.SubmissionIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert game room: %w", err)
	}
	return nil
}

func (s *Store) FindRoom(ctx context.Context, id uuid.UUID) (room.Record, error) {
	var (
		rec   room.Record
		cfg   []byte
		state string
	)
	q := `SELECT id, creator_id, puzzle_id, config, start_time, state, player_ids, submission_ids
	      FROM game_rooms WHERE id=$1`
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.ID, &rec.CreatorID, &rec.PuzzleID, &cfg, &rec.StartTime, &state,
		&rec.PlayerIDs, &rec.SubmissionIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, models.ErrNotFound
		}
		return rec, fmt.Errorf("failed to load game room %s: %w", id, err)
	}
	if err := json.Unmarshal(cfg, &rec.Config); err != nil {
		return rec, fmt.Errorf("game room %s has malformed config: %w", id, err)
	}
	if rec.State, err = room.ParseState(state); err != nil {
		return rec, fmt.Errorf("game room %s: %w", id, err)
	}
	rec.StartTime = rec.StartTime.UTC()
	return rec, nil
}

// UpdateRoom overwrites the mutable columns of a room.
func (s *Store) UpdateRoom(ctx context.Context, rec room.Record) error {
	q := `UPDATE game_rooms
	      SET start_time=$2, state=$3, player_ids=$4, submission_ids=$5, updated_at=NOW()
	      WHERE id=$1`
	tag, err := s.pool.Exec(ctx, q, rec.ID, rec.StartTime, string(rec.State), nonNilIDs(rec.PlayerIDs), nonNilIDs(rec.SubmissionIDs))
	if err != nil {
		return fmt.Errorf("failed to update game room %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: game room %s", models.ErrNotFound, rec.ID)
	}
	return nil
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
