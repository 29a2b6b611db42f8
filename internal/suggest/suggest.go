// Package suggest resolves city autocomplete suggestions and filters the country list.
package suggest

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/normalize"
	"github.com/kjstillabower/weather-search/internal/observability"
)

const (
	// MinQueryLength is the shortest trimmed query (in runes) sent to autocomplete.
	MinQueryLength = 2
	// MaxSuggestions caps the number of city suggestions.
	MaxSuggestions = 5
)

// Autocompleter is the part of the weather transport the resolver needs.
type Autocompleter interface {
	Autocomplete(ctx context.Context, query string, limit int) ([]byte, error)
}

// Resolver turns partial city input into suggestions. Failures degrade to an empty list.
type Resolver struct {
	transport Autocompleter
	logger    *zap.Logger
}

// NewResolver returns a Resolver backed by transport.
func NewResolver(transport Autocompleter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{transport: transport, logger: logger}
}

// CitySuggestions returns up to MaxSuggestions completions for query. Queries shorter than
// MinQueryLength return nothing without calling the transport. Errors are logged and
// swallowed.
func (r *Resolver) CitySuggestions(ctx context.Context, query string) []models.CitySuggestion {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLength {
		observability.SuggestionResolutionsTotal.WithLabelValues("skipped").Inc()
		return []models.CitySuggestion{}
	}

	raw, err := r.transport.Autocomplete(ctx, q, MaxSuggestions)
	if err != nil {
		r.fail(q, err)
		return []models.CitySuggestion{}
	}
	items, err := normalize.CitySuggestions(raw)
	if err != nil {
		r.fail(q, err)
		return []models.CitySuggestion{}
	}
	if len(items) > MaxSuggestions {
		items = items[:MaxSuggestions]
	}
	observability.SuggestionResolutionsTotal.WithLabelValues("ok").Inc()
	return items
}

func (r *Resolver) fail(query string, err error) {
	observability.SuggestionResolutionsTotal.WithLabelValues("failed").Inc()
	r.logger.Debug("suggestions unavailable",
		zap.String("query", query),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
}

// FilterCountries returns the entries whose name contains query, ignoring case. An empty
// query returns every entry. all is never modified.
func FilterCountries(all []models.CountryEntry, query string) []models.CountryEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.CountryEntry, 0, len(all))
	for _, c := range all {
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	return out
}
