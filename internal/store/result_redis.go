package store

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

func (s *RunStore) resultKey(jobID string) string {
	return fmt.Sprintf("%s:%s:result", s.keyNS, jobID)
}

// SaveResult stores the JSON-encoded outcome of a finished job.
func (s *RunStore) SaveResult(ctx context.Context, jobID string, result []byte) error {
	return s.client.Set(ctx, s.resultKey(jobID), result, s.ttl).Err()
}

// GetResult returns nil when the job has no stored result.
func (s *RunStore) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.resultKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}
