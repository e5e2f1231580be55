package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPuzzleTestCasesKeepsDeclaredOrder(t *testing.T) {
	p := &Puzzle{
		ID: uuid.New(),
		Validators: []Validator{
			{Type: ValidatorSample, Input: "s", Output: "s"},
			{Type: ValidatorTestCase, Input: "1", Output: "one"},
			{Type: ValidatorSample, Input: "t", Output: "t"},
			{Type: ValidatorTestCase, Input: "2", Output: "two"},
		},
	}

	cases := p.TestCases()
	require.Len(t, cases, 2)
	assert.Equal(t, "1", cases[0].Input)
	assert.Equal(t, "2", cases[1].Input)
}

func TestPuzzleTestCaseOutOfRange(t *testing.T) {
	p := &Puzzle{ID: uuid.New(), Validators: []Validator{{Type: ValidatorTestCase, Input: "1", Output: "1"}}}

	v, err := p.TestCase(0)
	require.NoError(t, err)
	assert.Equal(t, "1", v.Output)

	_, err = p.TestCase(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = p.TestCase(-1)
	assert.ErrorIs(t, err, ErrNotFound)
}
