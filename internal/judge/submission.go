// internal/judge/submission.go
package judge

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/models"
)

// MaxCodeSize bounds the source code length, in characters.
const MaxCodeSize = 9001

// Submission is one user's attempt at a puzzle. Results only grow while judging
// and are frozen once Finished reports true.
type Submission struct {
	ID          uuid.UUID
	PuzzleID    uuid.UUID
	UserID      uuid.UUID
	Code        string
	Language    models.Language
	SubmittedAt time.Time

	mu       sync.Mutex
	started  bool
	finished bool
	results  []bool
	outputs  []string
}

// NewSubmission validates and builds a fresh, unjudged submission.
func NewSubmission(puzzleID, userID uuid.UUID, lang models.Language, code string, now time.Time) (*Submission, error) {
	if n := utf8.RuneCountInString(code); n > MaxCodeSize {
		return nil, fmt.Errorf("%w: code is %d characters, limit is %d", models.ErrInvalidInput, n, MaxCodeSize)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: code is empty", models.ErrInvalidInput)
	}
	return &Submission{
		ID:          uuid.New(),
		PuzzleID:    puzzleID,
		UserID:      userID,
		Code:        code,
		Language:    lang,
		SubmittedAt: now.UTC(),
	}, nil
}

// Restore rebuilds a submission read back from the store. A finished submission
// cannot be judged again; an unfinished one starts over.
func Restore(id, puzzleID, userID uuid.UUID, lang models.Language, code string, submittedAt time.Time, results []bool, finished bool) *Submission {
	s := &Submission{
		ID:          id,
		PuzzleID:    puzzleID,
		UserID:      userID,
		Code:        code,
		Language:    lang,
		SubmittedAt: submittedAt,
	}
	if finished {
		s.results = append([]bool(nil), results...)
		s.finished = true
		s.started = true
	}
	return s
}

// Execute judges every test case of puzzle, sequentially and in declared order,
// without stopping at the first failure. It runs at most once per instance and,
// once started, runs to completion even if ctx is cancelled.
func (s *Submission) Execute(ctx context.Context, j Judge, puzzle *models.Puzzle) error {
	if puzzle.ID != s.PuzzleID {
		return fmt.Errorf("%w: submission %s is for puzzle %s, not %s", models.ErrInvalidInput, s.ID, s.PuzzleID, puzzle.ID)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: submission %s was already judged", models.ErrInvalidOperation, s.ID)
	}
	s.started = true
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, tc := range puzzle.TestCases() {
		passed, output := j.Execute(ctx, s.Code, s.Language, tc)
		s.mu.Lock()
		s.results = append(s.results, passed)
		s.outputs = append(s.outputs, output)
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	return nil
}

func (s *Submission) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Results returns a copy of the per-test-case outcomes recorded so far.
func (s *Submission) Results() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.results...)
}

// Outputs returns the raw outputs recorded so far, parallel to Results.
func (s *Submission) Outputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outputs...)
}

// Score is the fraction of passing test cases, or 0 before judging finished.
// A finished submission for a puzzle without test cases scores 0.
func (s *Submission) Score() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished || len(s.results) == 0 {
		return 0
	}
	passed := 0
	for _, r := range s.results {
		if r {
			passed++
		}
	}
	return float64(passed) / float64(len(s.results))
}

// PublicInfo withholds the code and results.
func (s *Submission) PublicInfo() map[string]interface{} {
	return map[string]interface{}{
		"id":           s.ID.String(),
		"puzzle_id":    s.PuzzleID.String(),
		"user_id":      s.UserID.String(),
		"language":     s.Language.Name,
		"submitted_at": s.SubmittedAt,
	}
}

// OwnerInfo is the view sent to the submission's author.
func (s *Submission) OwnerInfo() map[string]interface{} {
	info := s.PublicInfo()
	info["code"] = s.Code
	info["version"] = s.Language.Version
	info["results"] = s.Results()
	info["finished"] = s.Finished()
	info["score"] = s.Score()
	return info
}
