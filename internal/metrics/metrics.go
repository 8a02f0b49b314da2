// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitpay_scheduler_ticks_total",
		Help: "Deadline scheduler ticks executed.",
	})

	RemindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitpay_reminders_total",
		Help: "Payment reminders dispatched, by outcome.",
	}, []string{"outcome"})

	Enforcements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitpay_enforcements_total",
		Help: "Deadline enforcement decisions applied, by outcome.",
	}, []string{"outcome"})

	Refunds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "splitpay_refunds_total",
		Help: "Refund attempts in cancellation cascades, by outcome.",
	}, []string{"outcome"})

	Confirmations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "splitpay_payment_confirmations_total",
		Help: "Individual payments confirmed as paid.",
	})
)
