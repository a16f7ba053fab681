package statuscheck

import (
	"context"
	"errors"
	"time"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker reports whether the output bucket is reachable.
type BucketChecker interface {
	CheckBucket(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	redis    RedisPinger
	bucket   BucketChecker
	s3Bucket string
	renderer func() bool
}

// Options configures the Checker.
type Options struct {
	Redis    RedisPinger
	Bucket   BucketChecker
	S3Bucket string
	// Renderer reports whether pages can be rasterised.
	Renderer func() bool
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
	Renderer Status `json:"renderer"`
}

// Ready reports whether every dependency a document job needs is up. The
// output bucket is optional when results are written locally.
func (s Summary) Ready() bool {
	return s.Redis.OK && s.Renderer.OK
}

func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		bucket:   opts.Bucket,
		s3Bucket: opts.S3Bucket,
		renderer: opts.Renderer,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
		Renderer: c.checkRenderer(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" || c.bucket == nil {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.bucket.CheckBucket(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkRenderer() Status {
	if c.renderer == nil || !c.renderer() {
		return Status{OK: false, Message: "MuPDF renderer not available"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
