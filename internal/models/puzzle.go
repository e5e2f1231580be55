// internal/models/puzzle.go
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidatorType distinguishes test cases shown to users from those used for scoring.
type ValidatorType string

const (
	ValidatorSample   ValidatorType = "SAMPLE"
	ValidatorTestCase ValidatorType = "TESTCASE"
)

// Validator is an (input, expected output) pair attached to a puzzle.
type Validator struct {
	Type   ValidatorType `json:"validator_type"`
	Input  string        `json:"input"`
	Output string        `json:"output"`
}

type PuzzleType string

const (
	PuzzleFastest  PuzzleType = "FASTEST"
	PuzzleShortest PuzzleType = "SHORTEST"
	PuzzleReverse  PuzzleType = "REVERSE"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Puzzle is immutable once a running room references it.
type Puzzle struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Statement   string       `json:"statement"`
	Constraints string       `json:"constraints"`
	AuthorID    uuid.UUID    `json:"author_id"`
	Validators  []Validator  `json:"validators"`
	PuzzleTypes []PuzzleType `json:"puzzle_types"`
	Difficulty  Difficulty   `json:"difficulty"`
}

// TestCases returns the TESTCASE validators in declared order. Submission results
// are index-aligned with this slice.
func (p *Puzzle) TestCases() []Validator {
	cases := make([]Validator, 0, len(p.Validators))
	for _, v := range p.Validators {
		if v.Type == ValidatorTestCase {
			cases = append(cases, v)
		}
	}
	return cases
}

// TestCase returns the test case at index, or ErrNotFound.
func (p *Puzzle) TestCase(index int) (Validator, error) {
	cases := p.TestCases()
	if index < 0 || index >= len(cases) {
		return Validator{}, fmt.Errorf("%w: can't find test case %d in puzzle %s", ErrNotFound, index, p.ID)
	}
	return cases[index], nil
}

// PublicInfo is the client view of the puzzle.
func (p *Puzzle) PublicInfo() map[string]interface{} {
	types := make([]string, 0, len(p.PuzzleTypes))
	for _, t := range p.PuzzleTypes {
		types = append(types, string(t))
	}
	return map[string]interface{}{
		"id":           p.ID.String(),
		"title":        p.Title,
		"statement":    p.Statement,
		"constraints":  p.Constraints,
		"author_id":    p.AuthorID.String(),
		"puzzle_types": types,
		"difficulty":   p.Difficulty,
		"test_cases":   p.TestCases(),
	}
}
