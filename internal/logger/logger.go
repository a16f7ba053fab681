package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/local/cropmargins/internal/config"
)

// ServiceName tags every event forwarded to Axiom.
const ServiceName = "cropmargins"

// axiomBatchSize is the number of events sent per ingest call.
const axiomBatchSize = 200

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Component is added to every event, e.g. "service" or "cropctl".
	Component string
	// Console receives the human facing stream; nil means stdout.
	Console io.Writer

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

// OptionsFromConfig maps the service configuration onto logger options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		Component:    "service",
		SendToAxiom:  cfg.Axiom.Send,
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	}
}

var (
	global zerolog.Logger
	ax     *axiomBatcher
)

// Init sets up the global logger. Events go to the rotated file when one is
// named, to the console, and to Axiom at info level and above when enabled.
func Init(opts Options) error {
	var writers []io.Writer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	writers = append(writers, console)

	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		b, err := newAxiomBatcher(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			ax = b
			writers = append(writers, &axiomWriter{sink: b, min: zerolog.InfoLevel})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp()
	if opts.Component != "" {
		ctx = ctx.Str("component", opts.Component)
	}
	global = ctx.Logger()
	log.Logger = global
	return nil
}

// Close flushes buffered Axiom events.
func Close() {
	if ax != nil {
		if n := ax.Close(); n > 0 {
			fmt.Fprintf(os.Stderr, "Axiom dropped %d events\n", n)
		}
		ax = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// ForRun returns a logger carrying the run id and input of one crop run.
func ForRun(runID, input string) zerolog.Logger {
	return log.With().Str("run_id", runID).Str("input", input).Logger()
}

type eventSink interface {
	Send(ev axiom.Event)
}

// axiomWriter forwards zerolog JSON lines at or above min to Axiom.
type axiomWriter struct {
	sink eventSink
	min  zerolog.Level
}

func (w *axiomWriter) Write(p []byte) (int, error) {
	var ev map[string]interface{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]interface{}{"message": string(p), "level": "info"}
	}
	if lvl, ok := ev["level"].(string); ok {
		if l, err := zerolog.ParseLevel(lvl); err == nil && l < w.min {
			return len(p), nil
		}
	}
	ev["service"] = ServiceName
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	w.sink.Send(axiom.Event(ev))
	return len(p), nil
}

// axiomBatcher buffers events and ingests them in batches on a timer.
// Events that do not fit the buffer are counted and dropped.
type axiomBatcher struct {
	client  *axiom.Client
	dataset string
	ch      chan axiom.Event
	stop    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func newAxiomBatcher(token, orgID, dataset string, flushEvery time.Duration) (*axiomBatcher, error) {
	if dataset == "" {
		dataset = "dev_" + ServiceName
	}
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	c, err := axiom.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	b := &axiomBatcher{
		client:  c,
		dataset: dataset,
		ch:      make(chan axiom.Event, 5*axiomBatchSize),
		stop:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop(flushEvery)
	return b, nil
}

func (b *axiomBatcher) Send(ev axiom.Event) {
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

func (b *axiomBatcher) loop(flushEvery time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()
	batch := make([]axiom.Event, 0, axiomBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := b.client.IngestEvents(ctx, b.dataset, batch); err != nil {
			b.dropped.Add(int64(len(batch)))
		}
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case <-b.stop:
			for {
				select {
				case ev := <-b.ch:
					batch = append(batch, ev)
					if len(batch) >= axiomBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case ev := <-b.ch:
			batch = append(batch, ev)
			if len(batch) >= axiomBatchSize {
				flush()
			}
		}
	}
}

// Close drains the buffer, sends the last batch and reports how many events
// were dropped.
func (b *axiomBatcher) Close() int64 {
	close(b.stop)
	b.wg.Wait()
	return b.dropped.Load()
}
