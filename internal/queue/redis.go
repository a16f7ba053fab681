package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrDuplicateJob is returned by Enqueue when the job id was already queued
// within DedupeTTL.
var ErrDuplicateJob = errors.New("job already enqueued")

// RedisQueue carries crop jobs over a Redis stream with a consumer group.
// Retries wait in a ZSET of job ids, with their payloads in a hash, until a
// background mover puts them back on the stream. Per-job state (enqueued,
// cancelled, done) lives in keys under the stream name that expire after
// DedupeTTL.
type RedisQueue struct {
	client *redis.Client

	Stream     string
	Group      string
	DelayedKey string
	PayloadKey string
	DLQStream  string
	// DedupeTTL bounds how long per-job keys are kept.
	DedupeTTL time.Duration

	pollInterval time.Duration
	stop         chan struct{}
}

// NewRedisQueue connects to Redis, ensures the stream and group exist, and
// starts the delayed mover.
func NewRedisQueue(redisURL, stream, group string, poll time.Duration) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q := &RedisQueue{
		client:       c,
		Stream:       stream,
		Group:        group,
		DelayedKey:   stream + ":delayed",
		PayloadKey:   stream + ":delayed:payload",
		DLQStream:    stream + ":dlq",
		DedupeTTL:    24 * time.Hour,
		pollInterval: poll,
		stop:         make(chan struct{}),
	}
	// MKSTREAM creates the stream if missing
	if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
		_ = c.Close()
		return nil, fmt.Errorf("xgroup create: %w", err)
	}
	go q.mover()
	return q, nil
}

// jobKey names the per-job key for state, e.g. "jobs:crop:done:<id>".
func (q *RedisQueue) jobKey(state, jobID string) string {
	return q.Stream + ":" + state + ":" + jobID
}

func isBusyGroupErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error {
	close(q.stop)
	return q.client.Close()
}

// Client exposes the connection so the run store can share it.
func (q *RedisQueue) Client() *redis.Client { return q.client }

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// Enqueue adds a crop job to the stream as {job_id, data}. A job id seen in
// the last DedupeTTL is refused with ErrDuplicateJob.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload []byte) error {
	if jobID == "" {
		return errors.New("enqueue: empty job id")
	}
	key := q.jobKey("enqueued", jobID)
	fresh, err := q.client.SetNX(ctx, key, 1, q.DedupeTTL).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	if !fresh {
		return ErrDuplicateJob
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{"job_id": jobID, "data": string(payload)},
	}).Err()
	if err != nil {
		q.client.Del(ctx, key)
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return nil
}

// EnqueueDelayed schedules a retry of jobID at executeAt. A job has at most
// one pending retry; scheduling again replaces its payload and time.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, jobID string, payload []byte, executeAt time.Time) error {
	if jobID == "" {
		return errors.New("enqueue delayed: empty job id")
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.PayloadKey, jobID, string(payload))
	pipe.ZAdd(ctx, q.DelayedKey, redis.Z{Score: float64(executeAt.Unix()), Member: jobID})
	_, err := pipe.Exec(ctx)
	return err
}

// Dequeue reads one message for consumer. It returns an empty id when the
// block timeout passes with nothing to read.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.Group,
		Consumer: consumer,
		Streams:  []string{q.Stream, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, nil
		}
		return "", nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", nil, nil
	}
	msg := res[0].Messages[0]
	if v, ok := msg.Values["data"]; ok {
		switch t := v.(type) {
		case string:
			return msg.ID, []byte(t), nil
		case []byte:
			return msg.ID, t, nil
		}
	}
	return msg.ID, nil, nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
	if msgID == "" {
		return nil
	}
	return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// CancelJob marks a job as cancelled. Workers check this before running it
// and again before storing its result.
func (q *RedisQueue) CancelJob(ctx context.Context, jobID string) error {
	return q.client.Set(ctx, q.jobKey("cancelled", jobID), 1, q.DedupeTTL).Err()
}

func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := q.client.Exists(ctx, q.jobKey("cancelled", jobID)).Result()
	return n == 1, err
}

// AddDLQ pushes a failed job to the dead letter stream with reason. jobID is
// empty when the payload could not be decoded.
func (q *RedisQueue) AddDLQ(ctx context.Context, jobID string, payload []byte, reason string) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.DLQStream,
		Values: map[string]any{"job_id": jobID, "data": string(payload), "reason": reason},
	}).Err()
}

// IsDone reports whether jobID already finished, so a redelivered message is
// skipped.
func (q *RedisQueue) IsDone(ctx context.Context, jobID string) (bool, error) {
	if jobID == "" {
		return false, nil
	}
	n, err := q.client.Exists(ctx, q.jobKey("done", jobID)).Result()
	return n == 1, err
}

func (q *RedisQueue) MarkDone(ctx context.Context, jobID string, ttl time.Duration) error {
	if jobID == "" {
		return nil
	}
	return q.client.Set(ctx, q.jobKey("done", jobID), 1, ttl).Err()
}

func (q *RedisQueue) mover() {
	if q.pollInterval <= 0 {
		q.pollInterval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.moveOnce()
		}
	}
}

// moveOnce puts due retries back on the stream. A due id whose payload is
// gone is dropped from the ZSET.
func (q *RedisQueue) moveOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ids, err := q.client.ZRangeByScore(ctx, q.DelayedKey, &redis.ZRangeBy{
		Min: "-inf", Max: strconv.FormatInt(time.Now().Unix(), 10), Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	payloads, err := q.client.HMGet(ctx, q.PayloadKey, ids...).Result()
	if err != nil {
		return
	}
	pipe := q.client.TxPipeline()
	for i, id := range ids {
		if data, ok := payloads[i].(string); ok {
			pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: map[string]any{"job_id": id, "data": data}})
		}
		pipe.ZRem(ctx, q.DelayedKey, id)
		pipe.HDel(ctx, q.PayloadKey, id)
	}
	_, _ = pipe.Exec(ctx)
}

// Depths returns approximate stream, delayed and dlq lengths.
func (q *RedisQueue) Depths(ctx context.Context) (stream, delayed, dlq int64, err error) {
	pipe := q.client.Pipeline()
	xlen := pipe.XLen(ctx, q.Stream)
	zcard := pipe.ZCard(ctx, q.DelayedKey)
	dxlen := pipe.XLen(ctx, q.DLQStream)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return xlen.Val(), zcard.Val(), dxlen.Val(), nil
}
