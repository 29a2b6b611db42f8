package main

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/config"
	"github.com/kjstillabower/weather-search/internal/session"
	"github.com/kjstillabower/weather-search/internal/theme"
)

// app is the wired dependency graph shared by the commands.
type app struct {
	cfg            *config.Config
	logger         *zap.Logger
	session        *session.Session
	weatherBreaker *gobreaker.CircuitBreaker
	themeStore     theme.Store
	memcached      *theme.MemcachedStore // nil unless theme backend is memcached
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}
	breakerCfg := client.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Timeout:          cfg.BreakerTimeout,
	}
	weatherBreaker := client.NewCircuitBreaker("weather_api", breakerCfg, logger)
	weatherClient.SetCircuitBreaker(weatherBreaker)
	weatherClient.SetAutocompleteCircuitBreaker(client.NewCircuitBreaker("autocomplete_api", breakerCfg, logger))

	countriesClient := client.NewCountriesClient(cfg.CountriesAPIURL, cfg.CountriesAPITimeout)
	countriesClient.SetCircuitBreaker(client.NewCircuitBreaker("countries_api", breakerCfg, logger))

	a := &app{
		cfg:            cfg,
		logger:         logger,
		session:        session.New(weatherClient, countriesClient, logger, cfg.SuggestionDebounce),
		weatherBreaker: weatherBreaker,
	}
	switch cfg.ThemeBackend {
	case "memcached":
		a.memcached = theme.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		a.themeStore = a.memcached
		logger.Info("theme backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		a.themeStore = theme.NewInMemoryStore()
		logger.Info("theme backend: in_memory")
	}
	return a, nil
}

func (a *app) themePreference(ctx context.Context) *theme.Preference {
	return theme.Load(ctx, a.themeStore, a.logger)
}

// close releases the session and theme store.
func (a *app) close() {
	a.session.Close()
	if a.memcached != nil {
		if err := a.memcached.Close(); err != nil {
			a.logger.Error("memcached close", zap.Error(err))
		}
	}
}
