package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/metrics"
)

type DepthReader interface {
	Depths(ctx context.Context) (stream, delayed, dlq int64, err error)
}

// MonitorQueue publishes queue depth gauges every interval until ctx is done.
func MonitorQueue(ctx context.Context, q DepthReader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("started queue depth monitor")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sampleDepths(ctx, q)
		}
	}
}

func sampleDepths(ctx context.Context, q DepthReader) {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stream, delayed, dlq, err := q.Depths(cctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read queue depths")
		return
	}
	metrics.SetQueueDepth("stream", stream)
	metrics.SetQueueDepth("delayed", delayed)
	metrics.SetQueueDepth("dlq", dlq)
	log.Debug().Int64("stream", stream).Int64("delayed", delayed).Int64("dlq", dlq).Msg("monitor tick")
}
