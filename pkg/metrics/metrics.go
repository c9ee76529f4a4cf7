package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records login gate outcomes
	// (success|invalid_credentials|email_not_verified|pending_approval|error).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"result"},
	)

	// VerificationChecks counts email verification code checks (ok|rejected|error).
	VerificationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_verification_checks_total",
			Help: "Total number of verification code checks",
		},
		[]string{"result"},
	)

	// PasswordResets counts reset requests and consumptions by stage and result.
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_password_resets_total",
			Help: "Password reset requests and consumptions",
		},
		[]string{"stage", "result"},
	)

	// ClockEvents counts clock in/out operations.
	ClockEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_clock_events_total",
			Help: "Clock in/out operations by outcome",
		},
		[]string{"event", "result"},
	)

	// EmailDeliveries counts outbound notification attempts.
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_email_deliveries_total",
			Help: "Outbound email deliveries by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Notifications counts in-app notifications stored, by kind and result.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splashops_notifications_total",
			Help: "In-app notifications stored by kind and result",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splashops_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
