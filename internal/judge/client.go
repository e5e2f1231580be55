// internal/judge/client.go
package judge

import (
	"context"
	"strings"
	"time"

	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
)

// InternalErrorOutput is reported as the raw output when every attempt failed.
const InternalErrorOutput = "Internal error"

// DefaultRetryLimit is the number of attempts made per test case.
const DefaultRetryLimit = 2

// Executor runs code once on the execution service. *piston.Client implements it.
type Executor interface {
	Execute(ctx context.Context, lang models.Language, code, stdin string, runTimeout time.Duration) (string, error)
}

// Judge decides whether code passes one validator. It must always resolve to a
// definite boolean.
type Judge interface {
	Execute(ctx context.Context, code string, lang models.Language, v models.Validator) (bool, string)
}

// Client is the Judge backed by an Executor with a bounded retry policy.
type Client struct {
	exec       Executor
	retryLimit int
	runTimeout time.Duration
	// slack is added to runTimeout to bound a single attempt, covering queueing and transport.
	slack  time.Duration
	logger logrus.FieldLogger
}

type Option func(*Client)

func WithRetryLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retryLimit = n
		}
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(c *Client) { c.runTimeout = d }
}

func WithAttemptSlack(d time.Duration) Option {
	return func(c *Client) { c.slack = d }
}

func NewClient(exec Executor, logger logrus.FieldLogger, opts ...Option) *Client {
	c := &Client{
		exec:       exec,
		retryLimit: DefaultRetryLimit,
		runTimeout: time.Second,
		slack:      5 * time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute sends the validator input to the execution service and compares the
// right-trimmed stdout against the right-trimmed expected output. Failed attempts
// are retried until retryLimit attempts have been made in total. Attempts are
// bounded by their own deadline and ignore cancellation of ctx, so
// InternalErrorOutput always means the service was tried retryLimit times.
func (c *Client) Execute(ctx context.Context, code string, lang models.Language, v models.Validator) (bool, string) {
	ctx = context.WithoutCancel(ctx)
	for attempt := 1; attempt <= c.retryLimit; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.runTimeout+c.slack)
		output, err := c.exec.Execute(attemptCtx, lang, code, v.Input, c.runTimeout)
		cancel()
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"language": lang.Name,
				"attempt":  attempt,
				"limit":    c.retryLimit,
			}).Warnf("execution service attempt failed: %v", err)
			continue
		}
		return trimRight(output) == trimRight(v.Output), output
	}
	return false, InternalErrorOutput
}

func trimRight(s string) string {
	return strings.TrimRight(s, " \t\n\r\v\f")
}
