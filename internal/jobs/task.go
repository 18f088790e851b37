package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TypePurgeRefreshTokens = "purge_refresh_tokens"
	TypeDeleteObject       = "delete_object"
)

// Task is one entry on the jobs stream. Fields are flat strings so the stream
// entry stays readable from redis-cli.
type Task struct {
	Type   string `json:"type"`
	Bucket string `json:"bucket,omitempty"`
	Object string `json:"object,omitempty"`
}

func PurgeRefreshTokens() Task {
	return Task{Type: TypePurgeRefreshTokens}
}

func DeleteObject(bucket, object string) Task {
	return Task{Type: TypeDeleteObject, Bucket: bucket, Object: object}
}

func (t Task) values() map[string]any {
	values := map[string]any{"type": t.Type}
	if t.Bucket != "" {
		values["bucket"] = t.Bucket
	}
	if t.Object != "" {
		values["object"] = t.Object
	}
	return values
}

// Decode rebuilds a Task from stream values.
func Decode(values map[string]interface{}) (Task, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return Task{}, err
	}
	var t Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	return t, nil
}

// Queue appends tasks to a redis stream.
type Queue struct {
	client *redis.Client
	stream string
}

func NewQueue(client *redis.Client, stream string) *Queue {
	return &Queue{client: client, stream: stream}
}

func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	if q == nil || q.client == nil {
		return nil
	}
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: t.values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Type, err)
	}
	return nil
}
