package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotify_dispatch_total",
		Help: "Notification delivery attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripnotify_dispatch_duration_seconds",
		Help:    "Channel adapter send latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripnotify_webhooks_total",
		Help: "Payment webhooks by provider and result",
	}, []string{"provider", "result"})

	SchedulerClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripnotify_scheduler_claimed_total",
		Help: "Notifications claimed by the poller",
	})

	WindowNotifications = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tripnotify_window_notifications",
		Help: "Notifications in the monitor window by channel and status",
	}, []string{"channel", "status"})

	ActiveAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tripnotify_active_alerts",
		Help: "Currently firing monitor alerts",
	})
)

// Dispatch outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)
