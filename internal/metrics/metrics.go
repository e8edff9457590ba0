package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidecar",
		Name:      "stream_requests_total",
		Help:      "Total streaming server requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	StreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sidecar",
		Name:      "stream_request_duration_seconds",
		Help:      "Streaming server request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30, 120},
	}, []string{"method", "path"})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidecar",
		Name:      "active_jobs",
		Help:      "Number of torrent jobs currently registered.",
	})

	JobTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidecar",
		Name:      "job_transitions_total",
		Help:      "Torrent job state transitions by target state.",
	}, []string{"state"})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidecar",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidecar",
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate upload speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidecar",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all jobs.",
	})

	ProgressEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidecar",
		Name:      "progress_events_total",
		Help:      "Throttled telemetry events emitted by kind.",
	}, []string{"kind"})

	TidyRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidecar",
		Name:      "tidy_runs_total",
		Help:      "Subtitle tidy runs by outcome.",
	}, []string{"outcome"})

	BridgeCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sidecar",
		Name:      "bridge_commands_total",
		Help:      "Host commands received by type.",
	}, []string{"type"})

	BridgeClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidecar",
		Name:      "bridge_clients",
		Help:      "Number of connected host clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		StreamRequestsTotal,
		StreamRequestDuration,
		ActiveJobs,
		JobTransitionsTotal,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		ProgressEventsTotal,
		TidyRunsTotal,
		BridgeCommandsTotal,
		BridgeClients,
	)
}
