package judge

import (
	"context"
	"sync"

	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Dispatcher judges submissions in the background. At most `workers`
// submissions talk to the execution service at once; each one still runs its
// own test cases sequentially.
type Dispatcher struct {
	judge  Judge
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger logrus.FieldLogger
}

func NewDispatcher(j Judge, workers int, logger logrus.FieldLogger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		judge:  j,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Dispatch starts judging sub and calls onDone once results are frozen. ctx should
// outlive the request that created the submission; cancelling it abandons
// queued work.
func (d *Dispatcher) Dispatch(ctx context.Context, sub *Submission, puzzle *models.Puzzle, onDone func(*Submission)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.WithField("submission", sub.ID).Warnf("judging abandoned before start: %v", err)
			return
		}
		defer d.sem.Release(1)

		if err := sub.Execute(ctx, d.judge, puzzle); err != nil {
			d.logger.WithField("submission", sub.ID).Errorf("judging failed: %v", err)
			return
		}
		d.logger.WithFields(logrus.Fields{
			"submission": sub.ID,
			"user":       sub.UserID,
			"score":      sub.Score(),
		}).Info("submission judged")
		if onDone != nil {
			onDone(sub)
		}
	}()
}

// Wait blocks until every dispatched submission has finished or been abandoned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
