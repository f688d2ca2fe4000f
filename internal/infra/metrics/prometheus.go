package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "humandetect_detections_total",
		Help: "Total number of detection runs, by path and outcome",
	}, []string{"path", "outcome"})

	DetectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "humandetect_detection_duration_seconds",
		Help:    "Duration of detection requests and job stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"stage"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "humandetect_jobs_processed_total",
		Help: "Total number of jobs reaching a final state, by status",
	}, []string{"status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "humandetect_active_workers",
		Help: "Number of workers currently running a detection job",
	})

	InFlightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "humandetect_sync_requests_in_flight",
		Help: "Number of synchronous detection requests being processed",
	})

	UploadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "humandetect_upload_bytes_total",
		Help: "Bytes received in uploads, by video type",
	}, []string{"video_type"})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "humandetect_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
