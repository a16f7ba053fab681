package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestIsBusyGroupErr(t *testing.T) {
	if isBusyGroupErr(nil) {
		t.Error("nil is not BUSYGROUP")
	}
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("BUSYGROUP error not recognised")
	}
	if isBusyGroupErr(errors.New("ERR wrong type")) {
		t.Error("unrelated error treated as BUSYGROUP")
	}
}

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	stream := "test:crop:" + uuid.NewString()
	q, err := NewRedisQueue(url, stream, "workers:test", 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := q.client.Keys(ctx, q.Stream+":*").Result()
		q.client.Del(ctx, append(keys, q.Stream)...)
		_ = q.Close()
	})
	return q
}

func TestRedisQueueFlow(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatal(err)
	}
	id, data, err := q.Dequeue(ctx, "c1", time.Second)
	if err != nil || id == "" || string(data) != `{"id":"a"}` {
		t.Fatalf("Dequeue() = %q, %q, %v", id, data, err)
	}
	if err := q.Ack(ctx, id); err != nil {
		t.Fatal(err)
	}

	id, _, err = q.Dequeue(ctx, "c1", 100*time.Millisecond)
	if err != nil || id != "" {
		t.Errorf("Dequeue(empty) = %q, %v", id, err)
	}

	if err := q.EnqueueDelayed(ctx, "b", []byte(`{"id":"b","attempt":1}`), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := q.EnqueueDelayed(ctx, "b", []byte(`{"id":"b"}`), time.Now().Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	id, data, err = q.Dequeue(ctx, "c1", 2*time.Second)
	if err != nil || string(data) != `{"id":"b"}` {
		t.Fatalf("delayed job not moved: %q, %q, %v", id, data, err)
	}
	_ = q.Ack(ctx, id)

	if n, _ := q.client.HLen(ctx, q.PayloadKey).Result(); n != 0 {
		t.Errorf("moved retry left %d payloads behind", n)
	}

	if err := q.AddDLQ(ctx, "c", []byte(`{"id":"c"}`), "fatal"); err != nil {
		t.Fatal(err)
	}
	stream, delayed, dlq, err := q.Depths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if delayed != 0 || dlq != 1 || stream < 2 {
		t.Errorf("Depths() = %d, %d, %d", stream, delayed, dlq)
	}
}

func TestRedisQueueCancelAndDone(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if ok, err := q.IsCancelled(ctx, "job-1"); err != nil || ok {
		t.Fatalf("IsCancelled(before) = %v, %v", ok, err)
	}
	if err := q.CancelJob(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := q.IsCancelled(ctx, "job-1"); !ok {
		t.Error("job not cancelled")
	}

	if err := q.MarkDone(ctx, "job-2", time.Minute); err != nil {
		t.Fatal(err)
	}
	if ok, _ := q.IsDone(ctx, "job-2"); !ok {
		t.Error("job not marked done")
	}
	if ok, _ := q.IsDone(ctx, ""); ok {
		t.Error("empty id reported done")
	}
}

func TestRedisQueueDedupe(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", []byte(`{"id":"job-1"}`)); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(ctx, "job-1", []byte(`{"id":"job-1"}`)); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("second Enqueue = %v, want ErrDuplicateJob", err)
	}
	if err := q.Enqueue(ctx, "", []byte(`{}`)); err == nil {
		t.Error("empty job id accepted")
	}
	if n, _ := q.client.XLen(ctx, q.Stream).Result(); n != 1 {
		t.Errorf("stream length = %d, want 1", n)
	}

	res, err := q.client.XRange(ctx, q.Stream, "-", "+").Result()
	if err != nil || len(res) != 1 {
		t.Fatalf("XRange = %v, %v", res, err)
	}
	if res[0].Values["job_id"] != "job-1" {
		t.Errorf("entry = %v, want job_id field", res[0].Values)
	}
	if ttl, _ := q.client.TTL(ctx, q.jobKey("enqueued", "job-1")).Result(); ttl <= 0 || ttl > q.DedupeTTL {
		t.Errorf("dedupe key ttl = %v", ttl)
	}
}
