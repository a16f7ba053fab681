package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cropmargins",
			Name:      "runs_total",
			Help:      "Crop runs by kind (compute, document) and result (success, failed, dlq)",
		},
		[]string{"kind", "result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cropmargins",
			Name:      "run_duration_seconds",
			Help:      "Duration of crop runs by kind",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	pagesCropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cropmargins",
			Name:      "pages_cropped_total",
			Help:      "Total pages given a new crop box",
		},
	)

	pageRender = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cropmargins",
			Name:      "page_render_duration_seconds",
			Help:      "Time spent rendering and measuring one page",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	configWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cropmargins",
			Name:      "config_warnings_total",
			Help:      "Configuration values repaired during validation",
		},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cropmargins",
			Name:      "retries_total",
			Help:      "Total number of job retries",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cropmargins",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for stream, delayed and dlq",
		},
		[]string{"type"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(runsTotal, runDuration, pagesCropped, pageRender, configWarnings, retriesTotal, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRun(kind, result string, dur time.Duration) {
	runsTotal.WithLabelValues(kind, result).Inc()
	runDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

func AddPagesCropped(n int)             { pagesCropped.Add(float64(n)) }
func ObservePageRender(d time.Duration) { pageRender.Observe(d.Seconds()) }
func AddConfigWarnings(n int)           { configWarnings.Add(float64(n)) }
func IncRetry()                         { retriesTotal.Inc() }
func IncDLQ(kind string)                { runsTotal.WithLabelValues(kind, "dlq").Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
