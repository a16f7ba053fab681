package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusRetrying, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := (Status{Status: tt.status}).Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStoreRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	s, err := NewRunStore(url, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	id := uuid.NewString()
	now := time.Now().UTC()
	in := Status{Status: StatusRunning, Attempt: 2, Message: "measuring", Start: &now, Metadata: map[string]any{"pages": float64(3)}}
	if err := s.SetStatus(ctx, id, in); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.GetStatus(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if got.Status != in.Status || got.Attempt != 2 || got.Message != in.Message {
		t.Errorf("Get() = %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(now) {
		t.Errorf("start = %v, want %v", got.Start, now)
	}
	if got.Metadata["pages"] != float64(3) {
		t.Errorf("metadata = %v", got.Metadata)
	}

	if _, ok, _ := s.GetStatus(ctx, uuid.NewString()); ok {
		t.Error("unknown job reported as present")
	}

	if b, err := s.GetResult(ctx, id); err != nil || b != nil {
		t.Errorf("GetResult(before save) = %q, %v", b, err)
	}
	if err := s.SaveResult(ctx, id, []byte(`{"pages":3}`)); err != nil {
		t.Fatal(err)
	}
	if b, err := s.GetResult(ctx, id); err != nil || string(b) != `{"pages":3}` {
		t.Errorf("GetResult() = %q, %v", b, err)
	}
}
