package dispatcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/local/cropmargins/internal/cropjob"
)

// Job is the queue payload for one document run.
type Job struct {
	Request    cropjob.Request `json:"request"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewJob wraps req as a first attempt.
func NewJob(req cropjob.Request) Job {
	return Job{Request: req, Attempt: 1, EnqueuedAt: time.Now().UTC()}
}

func (j Job) ID() string { return j.Request.ID }

func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// DecodeJob parses a queue payload. A job without an id or an input is
// rejected.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if j.Request.ID == "" {
		return Job{}, errors.New("decode job: missing id")
	}
	if j.Request.Input == "" {
		return Job{}, fmt.Errorf("decode job %s: missing input", j.Request.ID)
	}
	if j.Attempt < 1 {
		j.Attempt = 1
	}
	return j, nil
}
