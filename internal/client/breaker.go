package client

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/observability"
)

// BreakerConfig holds circuit breaker parameters for one upstream.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // open -> half-open delay
}

// NewCircuitBreaker returns a breaker named after the upstream component. State changes are
// logged and exported as metrics.
func NewCircuitBreaker(component string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := uint32(cfg.FailureThreshold)
	observability.SetCircuitBreakerState(component, gobreaker.StateClosed.String())
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        component,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("component", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.SetCircuitBreakerState(name, to.String())
		},
	})
}
