package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "zeeho_widget"

// Registry holds every collector of the daemon and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// PollCyclesTotal counts finished poll cycles by result:
	// success, transport_error, mapping_error, canceled.
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Total number of poll cycles by result.",
		},
		[]string{"result"},
	)

	// FetchDuration observes upstream request latency.
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of vehicle state requests to the upstream API.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// BackoffSeconds is the delay before the next attempt; 0 when healthy.
	BackoffSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Current retry delay after failed polls, 0 when the last poll succeeded.",
		},
	)

	// LastSuccessTimestamp is the unix time of the last published snapshot.
	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last published vehicle snapshot.",
		},
	)

	// PollerState is 1 for the state the poller is in and 0 for the others.
	PollerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_state",
			Help:      "Current poller state (1 = active).",
		},
		[]string{"state"},
	)

	// IotPropertiesDropped counts malformed iotProperties elements skipped by the mapper.
	IotPropertiesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iot_properties_dropped_total",
			Help:      "Total number of malformed IoT properties dropped while mapping.",
		},
	)

	// DecryptFailures counts encrypted fields degraded to unavailable, by kind.
	DecryptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Total number of encrypted fields that could not be decrypted.",
		},
		[]string{"kind"},
	)

	// GeocodeRequests counts reverse geocoding lookups by result: hit, miss, error.
	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		PollCyclesTotal,
		FetchDuration,
		BackoffSeconds,
		LastSuccessTimestamp,
		PollerState,
		IotPropertiesDropped,
		DecryptFailures,
		GeocodeRequests,
	)
}

// SetState marks state as the only active poller state.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		PollerState.WithLabelValues(s).Set(v)
	}
}
