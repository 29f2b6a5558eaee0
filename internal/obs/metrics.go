package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth counters. Result labels are "ok" / "rejected" / "error".
var (
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})

	Rotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Refresh-token rotations by result.",
	}, []string{"result"})

	ReuseDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_reuse_detected_total",
		Help: "Presentations of an already-consumed refresh token.",
	})

	Logouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_logouts_total",
		Help: "Logout requests.",
	})

	RotationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_rotation_duration_seconds",
		Help:    "Wall time of a full rotation (consume + mint + insert).",
		Buckets: prometheus.DefBuckets,
	})
)
