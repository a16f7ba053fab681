package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/cropmargins/internal/config"
	"github.com/local/cropmargins/internal/cropjob"
	"github.com/local/cropmargins/internal/metrics"
	"github.com/local/cropmargins/internal/store"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	EnqueueDelayed(ctx context.Context, jobID string, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, jobID string, payload []byte, reason string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	IsDone(ctx context.Context, jobID string) (bool, error)
	MarkDone(ctx context.Context, jobID string, ttl time.Duration) error
}

type StatusStore interface {
	SetStatus(ctx context.Context, jobID string, st store.Status) error
	SaveResult(ctx context.Context, jobID string, result []byte) error
}

type Runner interface {
	Run(ctx context.Context, req cropjob.Request) (*cropjob.Result, error)
}

// Breaker tracks failing input sources. A nil Breaker disables the check.
type Breaker interface {
	IsOpen(ctx context.Context, target string) bool
	Open(ctx context.Context, target string)
	Close(ctx context.Context, target string)
}

type Config struct {
	Concurrency   int
	JobTimeout    time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
	Jitter        time.Duration
	BackoffFactor float64
	ResultTTL     time.Duration
	BlockTimeout  time.Duration
	Consumer      string
}

// ConfigFrom builds the worker config from the service settings.
func ConfigFrom(c cfgpkg.Config) Config {
	return Config{
		Concurrency:   c.Worker.Concurrency,
		JobTimeout:    c.Worker.JobTimeout,
		MaxAttempts:   c.Worker.JobMaxAttempts,
		BaseDelay:     c.Worker.RetryBaseDelay,
		Jitter:        c.Worker.RetryJitter,
		BackoffFactor: c.Worker.RetryBackoffFactor,
		ResultTTL:     c.Queue.ResultTTL,
	}
}

type Dependencies struct {
	Queue   Queue
	Status  StatusStore
	Runner  Runner
	Breaker Breaker
}

type Worker struct {
	cfg  Config
	deps Dependencies
	stop chan struct{}
	wg   sync.WaitGroup
	// jitter returns a value in [0, n)
	jitter func(n int64) int64
}

func New(cfg Config, deps Dependencies) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 2 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "cropmargins"
	}
	return &Worker{cfg: cfg, deps: deps, stop: make(chan struct{}), jitter: rand.Int63n}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	log.Info().Int("worker", id).Msg("dispatcher worker started")
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		ctx := context.Background()
		msgID, data, err := w.deps.Queue.Dequeue(ctx, consumer, w.cfg.BlockTimeout)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if msgID == "" {
			continue
		}
		w.process(ctx, id, data)
		if err := w.deps.Queue.Ack(ctx, msgID); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}
}

// process handles one delivery. Every outcome (success, retry, dead letter,
// skip) is final for this message, so the caller always acks.
func (w *Worker) process(ctx context.Context, worker int, data []byte) {
	job, err := DecodeJob(data)
	if err != nil {
		log.Error().Err(err).Int("worker", worker).Msg("dropping undecodable job")
		w.deadLetter(ctx, "", data, err.Error())
		return
	}
	id := job.ID()
	lg := log.With().Int("worker", worker).Str("job_id", id).Int("attempt", job.Attempt).Logger()

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, id); cancelled {
		lg.Warn().Msg("job cancelled before processing; skipping")
		return
	}
	if done, _ := w.deps.Queue.IsDone(ctx, id); done {
		lg.Info().Msg("job already finished; skipping redelivery")
		return
	}

	target := breakerTarget(job.Request.Input)
	if w.deps.Breaker != nil && target != "" && w.deps.Breaker.IsOpen(ctx, target) {
		lg.Warn().Str("target", target).Msg("input source circuit open; postponing job")
		w.schedule(ctx, lg, job, w.cfg.BaseDelay, "input source unavailable")
		return
	}

	now := time.Now()
	st := store.Status{Status: store.StatusRunning, Attempt: job.Attempt, Message: "running"}
	if job.Attempt == 1 {
		st.Start = &now
	}
	w.setStatus(ctx, lg, id, st)

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	res, err := w.deps.Runner.Run(runCtx, job.Request)
	cancel()

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, id); cancelled {
		lg.Warn().Msg("job cancelled while running; discarding outcome")
		return
	}
	if err != nil {
		w.fail(ctx, lg, job, target, err)
		return
	}
	w.succeed(ctx, lg, job, target, res)
}

func (w *Worker) succeed(ctx context.Context, lg zerolog.Logger, job Job, target string, res *cropjob.Result) {
	id := job.ID()
	b, err := json.Marshal(res)
	if err == nil {
		err = w.deps.Status.SaveResult(ctx, id, b)
	}
	if err != nil {
		lg.Error().Err(err).Msg("failed to save job result")
	}
	if w.deps.Breaker != nil && target != "" {
		w.deps.Breaker.Close(ctx, target)
	}
	_ = w.deps.Queue.MarkDone(ctx, id, w.cfg.ResultTTL)

	end := time.Now()
	w.setStatus(ctx, lg, id, store.Status{
		Status:  store.StatusSucceeded,
		Attempt: job.Attempt,
		Message: "completed",
		End:     &end,
		Metadata: map[string]any{
			"output":   res.Output,
			"pages":    res.Pages,
			"warnings": len(res.Warnings),
		},
	})
	lg.Info().Str("output", res.Output).Int64("duration_ms", res.DurationMs).Msg("job completed")
}

func (w *Worker) fail(ctx context.Context, lg zerolog.Logger, job Job, target string, runErr error) {
	id := job.ID()
	kind := classify(runErr)

	if kind == kindFatal || job.Attempt >= w.cfg.MaxAttempts {
		var reason error = runErr
		if kind != kindFatal {
			reason = &ExhaustedError{JobID: id, Attempts: job.Attempt, Err: runErr}
		}
		lg.Error().Err(runErr).Str("kind", kind).Msg("job failed; moving to dead letter queue")
		data, _ := job.Encode()
		w.deadLetter(ctx, id, data, reason.Error())
		end := time.Now()
		w.setStatus(ctx, lg, id, store.Status{
			Status:   store.StatusFailed,
			Attempt:  job.Attempt,
			Message:  reason.Error(),
			End:      &end,
			Metadata: map[string]any{"error_kind": kind},
		})
		return
	}

	if kind == kindTransient && w.deps.Breaker != nil && target != "" {
		w.deps.Breaker.Open(ctx, target)
	}
	delay := w.backoff(job.Attempt)
	lg.Warn().Err(runErr).Str("kind", kind).Dur("delay", delay).Msg("job failed; scheduling retry")
	job.Attempt++
	metrics.IncRetry()
	w.schedule(ctx, lg, job, delay, runErr.Error())
}

func (w *Worker) schedule(ctx context.Context, lg zerolog.Logger, job Job, delay time.Duration, reason string) {
	data, err := job.Encode()
	if err == nil {
		err = w.deps.Queue.EnqueueDelayed(ctx, job.ID(), data, time.Now().Add(delay))
	}
	if err != nil {
		lg.Error().Err(err).Msg("failed to schedule retry")
		w.deadLetter(ctx, job.ID(), data, fmt.Sprintf("reschedule failed: %v", err))
		return
	}
	w.setStatus(ctx, lg, job.ID(), store.Status{
		Status:   store.StatusRetrying,
		Attempt:  job.Attempt,
		Message:  reason,
		Metadata: map[string]any{"retry_in_ms": delay.Milliseconds()},
	})
}

func (w *Worker) deadLetter(ctx context.Context, jobID string, data []byte, reason string) {
	metrics.IncDLQ("document")
	if err := w.deps.Queue.AddDLQ(ctx, jobID, data, reason); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to add job to dead letter queue")
	}
}

func (w *Worker) setStatus(ctx context.Context, lg zerolog.Logger, id string, st store.Status) {
	if err := w.deps.Status.SetStatus(ctx, id, st); err != nil {
		lg.Error().Err(err).Str("status", st.Status).Msg("failed to update job status")
	}
}

// backoff is base * factor^(attempt-1) plus up to Jitter of noise.
func (w *Worker) backoff(attempt int) time.Duration {
	d := time.Duration(float64(w.cfg.BaseDelay) * math.Pow(w.cfg.BackoffFactor, float64(attempt-1)))
	if w.cfg.Jitter > 0 {
		d += time.Duration(w.jitter(int64(w.cfg.Jitter)))
	}
	return d
}
