package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters and gauges for the dispatch core. All registered via promauto on
// the default registry and served from /metrics.
var (
	TripsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_trips_submitted_total",
		Help: "Total trips submitted, by kind",
	}, []string{"kind"})

	TripsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_trips_matched_total",
		Help: "Total trips claimed by a worker, by kind",
	}, []string{"kind"})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_accept_conflicts_total",
		Help: "Total accept attempts that lost the claim race",
	})

	WorkersNotified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_workers_notified_total",
		Help: "Total new-request frames delivered to workers",
	})

	WorkerCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_worker_cancellations_total",
		Help: "Total worker-initiated cancellations",
	})

	SearchTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_search_timeouts_total",
		Help: "Total search sessions that expired without a match",
	})

	ConnectedActors = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_connected_actors",
		Help: "Currently registered realtime connections, by actor kind",
	}, []string{"kind"})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_location_updates_total",
		Help: "Total worker position reports received over the realtime channel",
	})

	TripStatusConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_trip_status_consumed_total",
		Help: "Total trip status messages consumed from the broker, by state",
	}, []string{"state"})
)
