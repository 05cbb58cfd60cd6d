package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	groupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wear",
			Subsystem: "ledger",
			Name:      "groups_total",
			Help:      "Submitted transaction groups by operation and result",
		},
		[]string{"op", "result"}, // result: accepted, rejected, error
	)

	roundHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wear",
		Subsystem: "ledger",
		Name:      "round_height",
		Help:      "Number of the latest closed round",
	})

	roundGroups = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wear",
		Subsystem: "ledger",
		Name:      "round_groups",
		Help:      "Groups per closed round",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(groupsTotal, roundHeight, roundGroups)
}
