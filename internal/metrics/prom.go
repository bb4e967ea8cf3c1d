package metrics

import (
	"time"

	"github.com/me/worksizing/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "worksizing"

// Instruments are the Prometheus collectors fed by the scheduler.
// A nil *Instruments ignores every observation.
type Instruments struct {
	BlocksSubmitted  prometheus.Counter
	BlocksCompleted  *prometheus.CounterVec
	PollTimeouts     prometheus.Counter
	Polls            prometheus.Counter
	InFlight         prometheus.Gauge
	AvailableWorkers prometheus.Gauge
	BlockDuration    prometheus.Histogram
	Searches         *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
}

// NewInstruments creates unregistered instruments.
func NewInstruments() *Instruments {
	return &Instruments{
		BlocksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_submitted_total",
			Help: "Blocks dispatched to the worker pool",
		}),
		BlocksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "blocks_completed_total",
			Help: "Blocks that left the in-flight set, by final state",
		}, []string{"state"}),
		PollTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_timeouts_total",
			Help: "Polls that returned because the timeout elapsed",
		}),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "polls_total",
			Help: "Polls of the in-flight set",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "blocks_in_flight",
			Help: "Blocks outstanding at the start of the latest loop",
		}),
		AvailableWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "available_workers",
			Help: "Idle worker slots at the start of the latest loop (optimally 0)",
		}),
		BlockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "block_duration_seconds",
			Help:    "Time a block search held a worker slot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "searches_total",
			Help: "Search runs by outcome",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "search_duration_seconds",
			Help:    "End-to-end search run latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

// Collectors returns every instrument for registration.
func (i *Instruments) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		i.BlocksSubmitted, i.BlocksCompleted, i.PollTimeouts, i.Polls,
		i.InFlight, i.AvailableWorkers, i.BlockDuration,
		i.Searches, i.SearchDuration,
	}
}

// MustRegister registers every instrument with reg.
func (i *Instruments) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(i.Collectors()...)
}

func (i *Instruments) observeLoop(available, inFlight int) {
	if i == nil {
		return
	}
	i.AvailableWorkers.Set(float64(available))
	i.InFlight.Set(float64(inFlight))
}

func (i *Instruments) observeSubmit() {
	if i == nil {
		return
	}
	i.BlocksSubmitted.Inc()
}

func (i *Instruments) observePoll(timedOut bool) {
	if i == nil {
		return
	}
	i.Polls.Inc()
	if timedOut {
		i.PollTimeouts.Inc()
	}
}

func (i *Instruments) observeBlock(state model.TaskState, d time.Duration) {
	if i == nil {
		return
	}
	i.BlocksCompleted.WithLabelValues(state.String()).Inc()
	if d > 0 {
		i.BlockDuration.Observe(d.Seconds())
	}
}

func (i *Instruments) observeRun(outcome string, d time.Duration) {
	if i == nil {
		return
	}
	i.Searches.WithLabelValues(outcome).Inc()
	i.SearchDuration.Observe(d.Seconds())
}
