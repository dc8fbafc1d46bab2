package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "challenge_engine"

var (
	// Registry holds the engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ops",
			Name:      "total",
			Help:      "Lifecycle operations by name and result code.",
		},
		[]string{"op", "result"},
	)

	sweepRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "records_total",
			Help:      "Records handled by the daily sweep.",
		},
		[]string{"pass", "outcome"},
	)

	payouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "payout_coins_total",
			Help:      "Coins credited by settlement.",
		},
		[]string{"kind"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"job"},
	)

	sideEffects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "side_effects",
			Name:      "total",
			Help:      "Best-effort notification and chat calls.",
		},
		[]string{"name", "outcome"},
	)

	sideEffectsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "side_effects",
			Name:      "pending",
			Help:      "Side effects queued or running.",
		},
	)
)

func init() {
	Registry.MustRegister(
		operations,
		sweepRecords,
		payouts,
		jobRuns,
		jobDuration,
		sideEffects,
		sideEffectsPending,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation counts a lifecycle operation; result is "OK" or an error code.
func RecordOperation(op, result string) {
	operations.WithLabelValues(op, result).Inc()
}

func RecordSweepRecord(pass, outcome string) {
	sweepRecords.WithLabelValues(pass, outcome).Inc()
}

func RecordPayout(kind string, coins int64) {
	if coins <= 0 {
		return
	}
	payouts.WithLabelValues(kind).Add(float64(coins))
}

func RecordJobRun(job string, success bool, d time.Duration) {
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func RecordSideEffect(name, outcome string) {
	sideEffects.WithLabelValues(name, outcome).Inc()
}

func SideEffectQueued()   { sideEffectsPending.Inc() }
func SideEffectFinished() { sideEffectsPending.Dec() }
