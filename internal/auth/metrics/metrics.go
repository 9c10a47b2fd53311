// Package metrics holds the Prometheus collectors of the auth service.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agencydesk_auth"

// Login outcomes.
const (
	LoginSuccess     = "success"
	LoginMFARequired = "mfa_required"
	LoginInvalid     = "invalid_credentials"
	LoginError       = "error"
)

// Verification outcomes.
const (
	VerifySuccess          = "success"
	VerifyInvalidCode      = "invalid_code"
	VerifyNotFound         = "not_found"
	VerifyExpired          = "expired"
	VerifyConsumed         = "consumed"
	VerifyAttemptsExceeded = "attempts_exceeded"
	VerifyError            = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	logins           *prometheus.CounterVec
	challengesIssued *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Password logins by role and outcome.",
			},
			[]string{"role", "outcome"},
		),
		challengesIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mfa_challenges_issued_total",
				Help:      "MFA challenges issued by channel.",
			},
			[]string{"channel"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mfa_verifications_total",
				Help:      "MFA verification attempts by outcome.",
			},
			[]string{"outcome"},
		),
		deliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mfa_delivery_failures_total",
				Help:      "One-time code deliveries that failed, by channel.",
			},
			[]string{"channel"},
		),
	}

	m.registry.MustRegister(
		m.logins,
		m.challengesIssued,
		m.verifications,
		m.deliveryFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) LoginAttempt(role, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) ChallengeIssued(channel string) {
	if m == nil {
		return
	}
	m.challengesIssued.WithLabelValues(channel).Inc()
}

func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DeliveryFailed(channel string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(channel).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
