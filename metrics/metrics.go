package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "relay_"

	ResultAcked   = "acked"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"

	OffloadSuccess = "success"
	OffloadError   = "error"
	OffloadSkipped = "skipped"
)

var (
	registerOnce sync.Once
	// set once the instruments below are built; readers check it first
	initialized atomic.Bool

	commandsEnqueued prometheus.Counter
	commandsEvicted  prometheus.Counter
	commandsPushed   prometheus.Counter
	commandsDropped  prometheus.Counter
	commandResults   *prometheus.CounterVec
	resultsEvicted   prometheus.Counter
	logsEvicted      prometheus.Counter
	offloadTotal     *prometheus.CounterVec
	offloadLatency   prometheus.Histogram
	connections      *prometheus.GaugeVec
	sweepLatency     prometheus.Histogram
	devicesEvicted   prometheus.Counter
)

// Init registers the relay instruments with reg (the default registerer
// when nil). Safe to call more than once.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		build()
		reg.MustRegister(
			commandsEnqueued, commandsEvicted, commandsPushed, commandsDropped,
			commandResults, resultsEvicted, logsEvicted,
			offloadTotal, offloadLatency, connections, sweepLatency, devicesEvicted,
		)
		initialized.Store(true)
	})
}

func build() {
	commandsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "commands_enqueued_total",
		Help: "Total commands accepted into device queues",
	})
	commandsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "commands_evicted_total",
		Help: "Commands dropped because their device queue was full",
	})
	commandsPushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "commands_pushed_total",
		Help: "Commands delivered over the realtime channel",
	})
	commandsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "channel_commands_dropped_total",
		Help: "Operator channel commands dropped because no device was connected",
	})
	commandResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "command_results_total",
		Help: "Command results recorded by status",
	}, []string{"status"})
	resultsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "results_evicted_total",
		Help: "Unread results dropped because the result buffer was full",
	})
	logsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "log_entries_evicted_total",
		Help: "Log entries dropped because the log buffer was full",
	})
	offloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricPrefix + "offload_total",
		Help: "Media offload attempts by result",
	}, []string{"result"})
	offloadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricPrefix + "offload_latency_seconds",
		Help:    "Media upload latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
	connections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricPrefix + "channel_connections",
		Help: "Active realtime channel connections by role",
	}, []string{"role"})
	sweepLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricPrefix + "sweep_latency_seconds",
		Help:    "Reclaimer pass duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
	devicesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricPrefix + "devices_evicted_total",
		Help: "Stale device status entries evicted",
	})
}

func ready() bool { return initialized.Load() }

func CommandEnqueued(evicted bool) {
	if !ready() {
		return
	}
	commandsEnqueued.Inc()
	if evicted {
		commandsEvicted.Inc()
	}
}

func CommandPushed() {
	if ready() {
		commandsPushed.Inc()
	}
}

func ChannelCommandDropped() {
	if ready() {
		commandsDropped.Inc()
	}
}

func ResultRecorded(status string, evicted bool) {
	if !ready() {
		return
	}
	commandResults.WithLabelValues(status).Inc()
	if evicted {
		resultsEvicted.Inc()
	}
}

func LogEvicted() {
	if ready() {
		logsEvicted.Inc()
	}
}

func Offload(result string, took time.Duration) {
	if !ready() {
		return
	}
	offloadTotal.WithLabelValues(result).Inc()
	if result != OffloadSkipped {
		offloadLatency.Observe(took.Seconds())
	}
}

func ConnectionOpened(role string) {
	if ready() {
		connections.WithLabelValues(role).Inc()
	}
}

func ConnectionClosed(role string) {
	if ready() {
		connections.WithLabelValues(role).Dec()
	}
}

func Sweep(took time.Duration, evictedDevices int) {
	if !ready() {
		return
	}
	sweepLatency.Observe(took.Seconds())
	devicesEvicted.Add(float64(evictedDevices))
}
