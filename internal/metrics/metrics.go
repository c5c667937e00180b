// Package metrics holds the authorization server's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authserver",
		Name:      "tokens_issued_total",
		Help:      "Access tokens issued, by grant type.",
	}, []string{"grant"})

	oauthErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authserver",
		Name:      "oauth_errors_total",
		Help:      "Protocol errors returned to callers, by endpoint and error code.",
	}, []string{"endpoint", "error"})

	challenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authserver",
		Name:      "challenges_total",
		Help:      "Login and consent challenges by outcome (created, accepted, rejected).",
	}, []string{"kind", "outcome"})

	refreshRevocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "authserver",
		Name:      "refresh_tokens_revoked_total",
		Help:      "Refresh tokens flipped to inactive by the revocation endpoint.",
	})
)

func TokenIssued(grant string) { tokensIssued.WithLabelValues(grant).Inc() }

func OAuthError(endpoint, code string) { oauthErrors.WithLabelValues(endpoint, code).Inc() }

func Challenge(kind, outcome string) { challenges.WithLabelValues(kind, outcome).Inc() }

func RefreshRevoked() { refreshRevocations.Inc() }
