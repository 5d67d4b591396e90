// Package metrics registers the service's Prometheus collectors on the
// default registry served by promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts sign-in attempts by user type and outcome.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestation",
		Name:      "login_attempts_total",
		Help:      "Sign-in attempts by user type and outcome.",
	}, []string{"user_type", "outcome"})

	// RequestsSubmitted counts submissions by outcome.
	RequestsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestation",
		Name:      "requests_submitted_total",
		Help:      "Attestation request submissions by outcome.",
	}, []string{"outcome"})

	// StatusTransitions counts applied status changes by target status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestation",
		Name:      "status_transitions_total",
		Help:      "Applied request status transitions by target status.",
	}, []string{"status"})

	// Notifications counts notification handling by stage and outcome.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestation",
		Name:      "notifications_total",
		Help:      "Notification enqueue and delivery outcomes.",
	}, []string{"stage", "outcome"})

	// ImportedStudents counts roster import rows by outcome.
	ImportedStudents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attestation",
		Name:      "imported_students_total",
		Help:      "Roster import rows by outcome.",
	}, []string{"outcome"})
)

// Outcome maps a boolean to the "success"/"failure" label.
func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
