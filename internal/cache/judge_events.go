package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian consumes judge runs from.
const DefaultQueueName = "codincod_judge_runs"

// JudgeRunRecord is one judged test case, as queued for the historian.
type JudgeRunRecord struct {
	SubmissionID  uuid.UUID `json:"submission_id"`
	RoomID        uuid.UUID `json:"room_id,omitempty"`
	UserID        uuid.UUID `json:"user_id"`
	TestCaseIndex int       `json:"test_case_index"`
	Passed        bool      `json:"passed"`
	Output        string    `json:"output"`
	Timestamp     int64     `json:"timestamp"`
}

// Publisher pushes judge runs onto the historian queue.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// PublishJudgeRuns serializes the records and RPushes them in one round trip.
func (p *Publisher) PublishJudgeRuns(ctx context.Context, records []JudgeRunRecord) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal JudgeRunRecord: %w", err)
		}
		values = append(values, data)
	}
	if err := p.rdb.RPush(ctx, p.queue, values...).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
