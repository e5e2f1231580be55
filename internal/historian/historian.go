// internal/historian/historian.go pops judge runs off a Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink receives flushed batches.
type Sink interface {
	InsertJudgeRuns(ctx context.Context, runs []database.JudgeRun) error
}

// Service accumulates queued judge runs and flushes them when the batch fills
// or flushDelay elapses. A batch the sink rejects is kept and retried on the
// next tick; while it is full, new records stay in Redis.
type Service struct {
	rdb        *redis.Client
	sink       Sink
	queue      string
	batchSize  int
	flushDelay time.Duration
	logger     logrus.FieldLogger

	batch []database.JudgeRun
	// payloads holds the raw queue entries behind batch, for requeueing.
	payloads []string
}

func NewService(rdb *redis.Client, sink Sink, queue string, batchSize int, flushDelay time.Duration, logger logrus.FieldLogger) *Service {
	if queue == "" {
		queue = cache.DefaultQueueName
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if flushDelay <= 0 {
		flushDelay = 500 * time.Millisecond
	}
	return &Service{
		rdb:        rdb,
		sink:       sink,
		queue:      queue,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		logger:     logger,
		batch:      make([]database.JudgeRun, 0, batchSize),
		payloads:   make([]string, 0, batchSize),
	}
}

// Run consumes the queue until ctx is cancelled, then flushes whatever is left.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	s.logger.WithField("queue", s.queue).Info("historian started")
	defer func() {
		// ctx is already done; give the last flush its own deadline.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.flush(flushCtx); err != nil {
			s.requeue(flushCtx)
		}
		s.logger.Info("historian stopped")
	}()

	for {
		if len(s.batch) >= s.batchSize {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.flush(ctx)
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.flush(ctx)
		default:
			res, err := s.rdb.BLPop(ctx, s.flushDelay, s.queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.logger.Errorf("BLPop: %v", err)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}
			// res[0] is the queue name, res[1] the payload.
			s.handle(ctx, res[1])
		}
	}
}

func (s *Service) handle(ctx context.Context, payload string) {
	var rec cache.JudgeRunRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		s.logger.Warnf("invalid judge run record: %v", err)
		return
	}
	recorded := time.UnixMilli(rec.Timestamp).UTC()
	if rec.Timestamp == 0 {
		recorded = time.Now().UTC()
	}
	s.batch = append(s.batch, database.JudgeRun{
		SubmissionID:  rec.SubmissionID,
		TestCaseIndex: rec.TestCaseIndex,
		Passed:        rec.Passed,
		Output:        rec.Output,
		RecordedAt:    recorded,
	})
	s.payloads = append(s.payloads, payload)
	if len(s.batch) >= s.batchSize {
		_ = s.flush(ctx)
	}
}

// flush writes the batch to the sink. On failure the batch is left in place.
func (s *Service) flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}
	if err := s.sink.InsertJudgeRuns(ctx, s.batch); err != nil {
		s.logger.WithField("count", len(s.batch)).Errorf("flush judge runs: %v", err)
		return err
	}
	s.logger.Debugf("flushed %d judge runs", len(s.batch))
	s.reset()
	return nil
}

// requeue pushes an unflushed batch back onto the queue for the next run.
func (s *Service) requeue(ctx context.Context) {
	if len(s.payloads) == 0 {
		return
	}
	values := make([]interface{}, len(s.payloads))
	for i, p := range s.payloads {
		values[i] = p
	}
	if err := s.rdb.RPush(ctx, s.queue, values...).Err(); err != nil {
		s.logger.WithField("count", len(values)).Errorf("requeue judge runs, dropping them: %v", err)
	} else {
		s.logger.WithField("count", len(values)).Warn("requeued unflushed judge runs")
	}
	s.reset()
}

func (s *Service) reset() {
	s.batch = make([]database.JudgeRun, 0, s.batchSize)
	s.payloads = s.payloads[:0]
}
