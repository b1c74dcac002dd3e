package broadcast

import "github.com/prometheus/client_golang/prometheus"

var (
	autoEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_broadcasts_auto_ended_total",
		Help: "Sessions ended by the inactivity monitor",
	})
	warningsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_inactivity_warnings_total",
		Help: "Inactivity warnings emitted",
	})
	sweepErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_sweep_errors_total",
		Help: "Per-session failures during heartbeat sweeps",
	})
	trackChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_track_changes_total",
		Help: "track-changed events broadcast by the poller",
	})
	pollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "live_poll_errors_total",
		Help: "Per-session failures during track polls",
	})
)

func RegisterMetrics() {
	prometheus.MustRegister(autoEnded, warningsSent, sweepErrors, trackChanges, pollErrors)
}
