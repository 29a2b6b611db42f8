//go:build integration
// +build integration

// Package testhelpers wires live upstream clients for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/session"
	"github.com/kjstillabower/weather-search/internal/theme"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CountriesURL  string
	ThemeBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org"
	}
	countriesURL := os.Getenv("COUNTRIES_API_URL")
	if countriesURL == "" {
		countriesURL = "https://restcountries.com"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CountriesURL:  countriesURL,
		ThemeBackend:  os.Getenv("INTEGRATION_THEME_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationSession creates a session backed by the live weather and country APIs.
// The session is closed when the test ends.
func SetupIntegrationSession(t *testing.T, cfg IntegrationTestConfig) *session.Session {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	countries := client.NewCountriesClient(cfg.CountriesURL, 5*time.Second)
	s := session.New(weatherClient, countries, logger, 0)
	t.Cleanup(s.Close)
	return s
}

// SetupThemeStore returns the theme store selected by INTEGRATION_THEME_BACKEND, falling
// back to memory when memcached is unreachable.
func SetupThemeStore(t *testing.T, cfg IntegrationTestConfig) theme.Store {
	if cfg.ThemeBackend != "memcached" {
		return theme.NewInMemoryStore()
	}
	mc := theme.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	if err := mc.Ping(); err != nil {
		t.Logf("Memcached not available (%v), using in-memory theme store", err)
		_ = mc.Close()
		return theme.NewInMemoryStore()
	}
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}
