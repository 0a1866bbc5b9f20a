// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the HTTP and account metrics of one registry. It satisfies
// auth.Recorder.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SignupsTotal         prometheus.Counter
	LoginsTotal          *prometheus.CounterVec
	ChallengesIssued     *prometheus.CounterVec
	ChallengesResolved   *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speakdoc_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "speakdoc_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		SignupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speakdoc_signups_total",
			Help: "Total number of accounts created",
		}),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speakdoc_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		ChallengesIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speakdoc_challenges_issued_total",
				Help: "Total number of challenge tokens issued by purpose",
			},
			[]string{"purpose"},
		),
		ChallengesResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speakdoc_challenges_resolved_total",
				Help: "Total number of challenge tokens resolved by purpose and outcome",
			},
			[]string{"purpose", "outcome"},
		),
		NotificationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "speakdoc_notification_failures_total",
				Help: "Total number of challenge notifications that could not be handed off",
			},
			[]string{"purpose"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.SignupsTotal,
		m.LoginsTotal,
		m.ChallengesIssued,
		m.ChallengesResolved,
		m.NotificationFailures,
	)
	return m
}

// Signup counts a created account.
func (m *Metrics) Signup() { m.SignupsTotal.Inc() }

// Login counts a login attempt by outcome.
func (m *Metrics) Login(outcome string) { m.LoginsTotal.WithLabelValues(outcome).Inc() }

// ChallengeIssued counts a challenge token issued for purpose.
func (m *Metrics) ChallengeIssued(purpose string) {
	m.ChallengesIssued.WithLabelValues(purpose).Inc()
}

// ChallengeResolved counts a resolved challenge token.
func (m *Metrics) ChallengeResolved(purpose, outcome string) {
	m.ChallengesResolved.WithLabelValues(purpose, outcome).Inc()
}

// NotificationFailed counts a notification that could not be sent.
func (m *Metrics) NotificationFailed(purpose string) {
	m.NotificationFailures.WithLabelValues(purpose).Inc()
}
