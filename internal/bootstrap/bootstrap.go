// Package bootstrap runs the one-time country list load off the request path.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/observability"
)

// DefaultTimeout bounds the country load when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// CountryLoader is implemented by the session.
type CountryLoader interface {
	LoadCountries(ctx context.Context) error
}

// Runner loads the country list once. Failure is logged and leaves the list empty.
type Runner struct {
	loader  CountryLoader
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a Runner. timeout <= 0 uses DefaultTimeout.
func NewRunner(loader CountryLoader, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{loader: loader, timeout: timeout, logger: logger}
}

// Run loads the country list and blocks until it completes or the timeout expires.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := r.loader.LoadCountries(ctx)
	duration := time.Since(start).Seconds()
	observability.CountryBootstrapDurationSeconds.Observe(duration)

	if err != nil {
		observability.CountryBootstrapTotal.WithLabelValues("error").Inc()
		r.logger.Warn("country bootstrap failed; country suggestions disabled",
			zap.Float64("duration_seconds", duration),
			zap.Error(err))
		return fmt.Errorf("country bootstrap: %w", err)
	}
	observability.CountryBootstrapTotal.WithLabelValues("success").Inc()
	r.logger.Info("country bootstrap complete", zap.Float64("duration_seconds", duration))
	return nil
}

// Start runs Run in the background. The returned channel receives its result and is
// then closed.
func (r *Runner) Start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- r.Run(ctx)
	}()
	return done
}
