// internal/monitor/metrics.go
package monitor

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linky_gateway"

// Frame outcomes
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeEmpty   = "empty"
)

var (
	registerOnce sync.Once

	bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "bytes_read_total",
		Help:      "Bytes read from the meter stream.",
	})
	chunksRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "chunks_read_total",
		Help:      "Chunks read from the meter stream.",
	})
	readTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "read_timeouts_total",
		Help:      "Reads that got no data within the read timeout.",
	})
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Connection rebuilds by reason.",
		},
		[]string{"reason"},
	)
	connectionUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connection",
		Name:      "up",
		Help:      "1 while a meter connection is live.",
	})
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "decoded_total",
			Help:      "Decoded frames by outcome.",
		},
		[]string{"outcome"},
	)
	checksumMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "checksum_mismatches_total",
		Help:      "Data lines whose check character did not match.",
	})
	policyState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "state",
			Help:      "1 for the current failure policy state.",
		},
		[]string{"state"},
	)
	sinkPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "publishes_total",
			Help:      "Sink publish attempts by sink type and result.",
		},
		[]string{"sink", "result"},
	)
	sinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "publish_duration_seconds",
			Help:      "Sink publish duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
)

// RegisterMetrics registers every collector once with the default registry
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			bytesRead,
			chunksRead,
			readTimeouts,
			reconnects,
			connectionUp,
			frames,
			checksumMismatches,
			policyState,
			sinkPublishes,
			sinkDuration,
			httpRequests,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordChunk(n int) {
	RegisterMetrics()
	chunksRead.Inc()
	bytesRead.Add(float64(n))
}

func RecordReadTimeout() {
	RegisterMetrics()
	readTimeouts.Inc()
}

func RecordReconnect(reason string) {
	RegisterMetrics()
	reconnects.WithLabelValues(reason).Inc()
}

func SetConnectionUp(up bool) {
	RegisterMetrics()
	if up {
		connectionUp.Set(1)
		return
	}
	connectionUp.Set(0)
}

func RecordFrame(outcome string, checksumErrors int) {
	RegisterMetrics()
	frames.WithLabelValues(outcome).Inc()
	if checksumErrors > 0 {
		checksumMismatches.Add(float64(checksumErrors))
	}
}

// SetPolicyState marks current as the active state among all
func SetPolicyState(current string, all ...string) {
	RegisterMetrics()
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		policyState.WithLabelValues(state).Set(value)
	}
}

func RecordSinkPublish(sink string, duration time.Duration, err error) {
	RegisterMetrics()
	result := "success"
	if err != nil {
		result = "failure"
	}
	sinkPublishes.WithLabelValues(sink, result).Inc()
	sinkDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

func RecordSinkDrop(sink string) {
	RegisterMetrics()
	sinkPublishes.WithLabelValues(sink, "dropped").Inc()
}

func RecordHTTPRequest(method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
