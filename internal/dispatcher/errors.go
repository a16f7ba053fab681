package dispatcher

import "fmt"

// Error kinds reported by classify.
const (
	kindTransient = "transient"
	kindFatal     = "fatal"
	kindUnknown   = "unknown"
)

// ExhaustedError is recorded when a job used up its attempts.
type ExhaustedError struct {
	JobID    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempts: %v", e.JobID, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
