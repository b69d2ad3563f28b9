package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deskline",
			Name:      "sync_passes_total",
			Help:      "Completed sync orchestrator passes.",
		},
	)

	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deskline",
			Name:      "dispatch_total",
			Help:      "Queue item dispatches by result.",
		},
		[]string{"result"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deskline",
			Name:      "queue_depth",
			Help:      "Items currently waiting in the outbound queue.",
		},
	)

	deadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deskline",
			Name:      "dead_letters_total",
			Help:      "Queue items dropped to the dead-letter list.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncPasses, dispatches, queueDepth, deadLetters)
	})
}

// IncSyncPass counts one completed orchestrator pass.
func IncSyncPass() {
	syncPasses.Inc()
}

// IncDispatch counts one dispatch outcome: success, retry, or dead_letter.
func IncDispatch(result string) {
	dispatches.WithLabelValues(result).Inc()
}

// SetQueueDepth records the current outbox length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncDeadLetter counts one dropped item.
func IncDeadLetter() {
	deadLetters.Inc()
}
