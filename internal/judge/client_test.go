package judge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/codincod/internal/models"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

// fakeExecutor answers from a script of outputs; an empty entry means a transient failure.
type fakeExecutor struct {
	mu      sync.Mutex
	script  []string
	calls   int
	stdins  []string
	answers map[string]string
}

var errTransient = errors.New("service unavailable")

func (f *fakeExecutor) Execute(_ context.Context, _ models.Language, _ string, stdin string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.stdins = append(f.stdins, stdin)
	if f.answers != nil {
		return f.answers[stdin], nil
	}
	if len(f.script) == 0 {
		return "", errTransient
	}
	out := f.script[0]
	f.script = f.script[1:]
	if out == "" {
		return "", errTransient
	}
	return out, nil
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var python = models.Language{Name: "python", Version: "3.10.0"}

func TestExecuteComparesRightTrimmedOutput(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	exec := &fakeExecutor{script: []string{"hello \n\n"}}
	c := NewClient(exec, logger)

	passed, out := c.Execute(context.Background(), "print('hello')", python, models.Validator{Input: "", Output: "hello\n"})
	assert.True(t, passed)
	assert.Equal(t, "hello \n\n", out)
	assert.Equal(t, 1, exec.Calls())
}

func TestExecuteLeadingWhitespaceMatters(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	c := NewClient(&fakeExecutor{script: []string{" hello"}}, logger)

	passed, _ := c.Execute(context.Background(), "x", python, models.Validator{Output: "hello"})
	assert.False(t, passed)
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	exec := &fakeExecutor{script: []string{"", "42"}}
	c := NewClient(exec, logger)

	passed, out := c.Execute(context.Background(), "x", python, models.Validator{Output: "42"})
	assert.True(t, passed)
	assert.Equal(t, "42", out)
	assert.Equal(t, 2, exec.Calls())
	assert.Len(t, hook.Entries, 1)
}

func TestExecuteExhaustsRetryLimit(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	exec := &fakeExecutor{}
	c := NewClient(exec, logger)

	passed, out := c.Execute(context.Background(), "x", python, models.Validator{Output: "42"})
	assert.False(t, passed)
	assert.Equal(t, InternalErrorOutput, out)
	assert.Equal(t, DefaultRetryLimit, exec.Calls())

	exec = &fakeExecutor{}
	c = NewClient(exec, logger, WithRetryLimit(5))
	passed, _ = c.Execute(context.Background(), "x", python, models.Validator{Output: "42"})
	assert.False(t, passed)
	assert.Equal(t, 5, exec.Calls())
}

func TestExecuteIgnoresCancelledContext(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	exec := &fakeExecutor{script: []string{"", "42"}}
	c := NewClient(exec, logger, WithRetryLimit(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	passed, out := c.Execute(ctx, "x", python, models.Validator{Output: "42"})
	assert.True(t, passed)
	assert.Equal(t, "42", out)
	assert.Equal(t, 2, exec.Calls())
}

func TestInternalErrorMeansEveryAttemptWasMade(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	exec := &fakeExecutor{}
	c := NewClient(exec, logger, WithRetryLimit(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	passed, out := c.Execute(ctx, "x", python, models.Validator{Output: "42"})
	assert.False(t, passed)
	assert.Equal(t, InternalErrorOutput, out)
	assert.Equal(t, 3, exec.Calls())
}
