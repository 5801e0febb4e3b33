// ============================================================================
// concurra Metrics - Prometheus Observability
// ============================================================================
//
// Package: internal/rtmetrics
// File: collector.go
// Purpose: Expose routine throughput/latency, channel traffic, selector
//          poll-loop cost, worker pool saturation, and load-balancer pick
//          distribution as Prometheus metrics (spec.md §2/§3's domain
//          stack entry for client_golang).
//
// Grounded directly on internal/metrics/metrics.go's Collector: the same
// Counter/Histogram/Gauge field shape, the same MustRegister-at-
// construction pattern, and the same StartServer(promhttp.Handler())
// idiom — generalized from job lifecycle counters to routine/channel/
// worker counters per the concurrency runtime this wraps.
//
// ============================================================================

package rtmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every Prometheus metric concurra exposes.
type Collector struct {
	routinesStarted   prometheus.Counter
	routinesCompleted prometheus.Counter
	routinesFailed    prometheus.Counter
	routineLatency    prometheus.Histogram

	channelSends    prometheus.Counter
	channelReceives prometheus.Counter
	channelTimeouts prometheus.Counter

	selectPollRounds prometheus.Histogram

	workerQueueDepth prometheus.Gauge
	workersHealthy   prometheus.Gauge

	balancerPicks *prometheus.CounterVec
}

// NewCollector builds and registers every metric against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		routinesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_routines_started_total",
			Help: "Total number of routines started via Go/GoAll/GoRace/GoWithRetry",
		}),
		routinesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_routines_completed_total",
			Help: "Total number of routines that reached state completed",
		}),
		routinesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_routines_failed_total",
			Help: "Total number of routines that reached state failed or cancelled",
		}),
		routineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concurra_routine_duration_seconds",
			Help:    "Routine execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		channelSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_channel_sends_total",
			Help: "Total number of channel send operations that completed",
		}),
		channelReceives: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_channel_receives_total",
			Help: "Total number of channel receive operations that completed",
		}),
		channelTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concurra_channel_timeouts_total",
			Help: "Total number of channel send/receive operations that timed out",
		}),
		selectPollRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concurra_select_poll_rounds",
			Help:    "Number of polling passes a Select call made before returning",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		workerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "concurra_worker_queue_depth",
			Help: "Number of execute requests currently pending a worker response",
		}),
		workersHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "concurra_workers_healthy",
			Help: "Number of workers currently marked alive",
		}),
		balancerPicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concurra_balancer_picks_total",
			Help: "Total number of worker picks, labeled by load-balancing strategy",
		}, []string{"strategy"}),
	}

	prometheus.MustRegister(
		c.routinesStarted,
		c.routinesCompleted,
		c.routinesFailed,
		c.routineLatency,
		c.channelSends,
		c.channelReceives,
		c.channelTimeouts,
		c.selectPollRounds,
		c.workerQueueDepth,
		c.workersHealthy,
		c.balancerPicks,
	)

	return c
}

func (c *Collector) RecordRoutineStarted() {
	c.routinesStarted.Inc()
}

func (c *Collector) RecordRoutineCompleted(latencySeconds float64) {
	c.routinesCompleted.Inc()
	c.routineLatency.Observe(latencySeconds)
}

func (c *Collector) RecordRoutineFailed(latencySeconds float64) {
	c.routinesFailed.Inc()
	c.routineLatency.Observe(latencySeconds)
}

func (c *Collector) RecordChannelSend() {
	c.channelSends.Inc()
}

func (c *Collector) RecordChannelReceive() {
	c.channelReceives.Inc()
}

func (c *Collector) RecordChannelTimeout() {
	c.channelTimeouts.Inc()
}

func (c *Collector) RecordSelectPollRounds(rounds int) {
	c.selectPollRounds.Observe(float64(rounds))
}

func (c *Collector) SetWorkerQueueDepth(depth int) {
	c.workerQueueDepth.Set(float64(depth))
}

func (c *Collector) SetWorkersHealthy(n int) {
	c.workersHealthy.Set(float64(n))
}

func (c *Collector) RecordBalancerPick(strategy string) {
	c.balancerPicks.WithLabelValues(strategy).Inc()
}

// StartServer serves /metrics on addr (e.g. ":9090") until the process
// exits or the listener fails.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
