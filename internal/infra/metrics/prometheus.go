package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionlab_runs_processed_total",
		Help: "Total number of comparison runs processed, by outcome",
	}, []string{"outcome"})

	RunStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "motionlab_run_stage_duration_seconds",
		Help:    "Duration of comparison pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionlab_frames_sampled_total",
		Help: "Total number of frames sampled across all runs",
	})

	PosesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionlab_poses_detected_total",
		Help: "Total number of frames with a detected pose, by video role",
	}, []string{"video"})

	SimilarityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "motionlab_similarity_score",
		Help:    "Distribution of final similarity scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motionlab_active_workers",
		Help: "Number of currently active workers processing runs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionlab_retry_total",
		Help: "Total number of run retries",
	}, []string{"attempt"})
)
