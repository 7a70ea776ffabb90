package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AuthMetrics exposes Prometheus collectors for the authentication flows.
type AuthMetrics struct {
	LoginOutcomes  *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	TokensIssued   *prometheus.CounterVec
	TokensConsumed *prometheus.CounterVec
}

// NewAuthMetrics registers the auth flow collectors with the registerer,
// reusing collectors that were already registered.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	loginOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "login_outcomes_total",
		Help:      "Login attempts partitioned by outcome (success, challenge, invalid, throttled, frozen).",
	}, []string{"outcome"})
	if v, err := registerCounterVec(reg, loginOutcomes); err != nil {
		return nil, err
	} else {
		loginOutcomes = v
	}

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "sessions_active",
		Help:      "Best-effort count of sessions established minus sessions invalidated.",
	})
	if err := reg.Register(sessionsActive); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Gauge); ok {
				sessionsActive = existing
			} else {
				return nil, fmt.Errorf("existing sessions collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register sessions gauge: %w", err)
		}
	}

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "tokens_issued_total",
		Help:      "Single-use tokens issued partitioned by kind.",
	}, []string{"kind"})
	if v, err := registerCounterVec(reg, tokensIssued); err != nil {
		return nil, err
	} else {
		tokensIssued = v
	}

	tokensConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authgate",
		Subsystem: "auth",
		Name:      "tokens_consumed_total",
		Help:      "Single-use tokens consumed partitioned by kind.",
	}, []string{"kind"})
	if v, err := registerCounterVec(reg, tokensConsumed); err != nil {
		return nil, err
	} else {
		tokensConsumed = v
	}

	return &AuthMetrics{
		LoginOutcomes:  loginOutcomes,
		SessionsActive: sessionsActive,
		TokensIssued:   tokensIssued,
		TokensConsumed: tokensConsumed,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return vec, nil
}
