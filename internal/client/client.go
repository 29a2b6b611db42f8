package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-search/internal/observability"
)

// WeatherTransport returns raw OpenWeatherMap payloads, still wrapped in the
// test(...) callback envelope.
type WeatherTransport interface {
	CurrentWeather(ctx context.Context, city, country string) ([]byte, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]byte, error)
}

// CountryTransport returns the raw country-reference payload.
type CountryTransport interface {
	Countries(ctx context.Context) ([]byte, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// callback is the JSONP callback name requested from OpenWeatherMap.
const callback = "test"

// OpenWeatherClient calls the current-weather and geocoding endpoints. Each endpoint has
// its own transport so autocomplete failures never trip the weather breaker.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	http    *httpTransport
	geo     *httpTransport
}

// NewOpenWeatherClient creates a client for baseURL (e.g. https://api.openweathermap.org).
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPTransport(timeout),
		geo:     newHTTPTransport(timeout),
	}, nil
}

// SetCircuitBreaker routes current-weather calls through cb. A nil cb disables it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.http.breaker = cb
}

// SetAutocompleteCircuitBreaker routes autocomplete calls through cb. A nil cb disables it.
func (c *OpenWeatherClient) SetAutocompleteCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.geo.breaker = cb
}

// CurrentWeather fetches current conditions for "city" or "city,country" in metric units.
// A 404 from upstream is reported as ErrLocationNotFound.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, city, country string) ([]byte, error) {
	q := city
	if country != "" {
		q = city + "," + country
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("units", "metric")
	return c.http.get(ctx, "weather", c.baseURL+"/data/2.5/weather", c.withAuth(params))
}

// Autocomplete fetches up to limit geocoding matches for a partial city name.
func (c *OpenWeatherClient) Autocomplete(ctx context.Context, query string, limit int) ([]byte, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	return c.geo.get(ctx, "autocomplete", c.baseURL+"/geo/1.0/direct", c.withAuth(params))
}

func (c *OpenWeatherClient) withAuth(params url.Values) url.Values {
	params.Set("callback", callback)
	params.Set("appid", c.apiKey)
	return params
}

// CountriesClient loads the country reference list (REST Countries v3.1 format).
type CountriesClient struct {
	baseURL string
	http    *httpTransport
}

// NewCountriesClient creates a client for baseURL (e.g. https://restcountries.com).
func NewCountriesClient(baseURL string, timeout time.Duration) *CountriesClient {
	return &CountriesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPTransport(timeout),
	}
}

// SetCircuitBreaker routes every upstream call through cb. A nil cb disables it.
func (c *CountriesClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.http.breaker = cb
}

// Countries fetches every country with its common name and two-letter code.
func (c *CountriesClient) Countries(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	params.Set("fields", "name,cca2")
	return c.http.get(ctx, "countries", c.baseURL+"/v3.1/all", params)
}

type httpTransport struct {
	client  *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

func newHTTPTransport(timeout time.Duration) *httpTransport {
	return &httpTransport{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// get performs one GET. Not-found responses and calls abandoned by the caller do not count
// as breaker failures.
func (t *httpTransport) get(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	if t.breaker == nil {
		return t.call(ctx, endpoint, rawURL, params)
	}
	var passthrough error
	out, err := t.breaker.Execute(func() (interface{}, error) {
		body, err := t.call(ctx, endpoint, rawURL, params)
		if err != nil && (errors.Is(err, ErrLocationNotFound) || ctx.Err() != nil) {
			passthrough = err
			return nil, nil
		}
		return body, err
	})
	if passthrough != nil {
		return nil, passthrough
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.TransportCallsTotal.WithLabelValues(endpoint, "circuit_open").Inc()
		}
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}

func (t *httpTransport) call(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.TransportCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		observability.TransportCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.TransportDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.TransportCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.TransportDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusNotFound {
		return "not_found"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
