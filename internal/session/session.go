// Package session is the search orchestrator: it owns the form, the current result,
// the suggestion panels and the history of one user session.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/debounce"
	"github.com/kjstillabower/weather-search/internal/history"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/normalize"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/suggest"
)

// DefaultDebounce is the quiet period before city input triggers autocomplete.
const DefaultDebounce = 400 * time.Millisecond

// Session sequences input validation, weather lookup, normalization and history updates.
//
// Lock order: guard before mu. Never call into guard or debouncer while holding mu.
type Session struct {
	weather   client.WeatherTransport
	countries client.CountryTransport
	resolver  *suggest.Resolver
	history   *history.Store
	logger    *zap.Logger
	now       func() time.Time

	guard     suggest.Guard
	debouncer *debounce.Debouncer[cityQuery]
	ctx       context.Context // base context for debounced suggestion lookups
	cancel    context.CancelFunc

	mu           sync.Mutex
	city         string
	country      string
	state        models.State
	errMsg       string
	cityPanel    models.Panel[models.CitySuggestion]
	countryPanel models.Panel[models.CountryEntry]
	current      *models.WeatherRecord
	allCountries []models.CountryEntry
	lookupSeq    uint64 // latest submit; older responses are discarded
}

// cityQuery is a pending suggestion lookup. The guard token is taken when the input
// arrives, so an invalidation issued before the timer fires always wins.
type cityQuery struct {
	text  string
	token uint64
}

// New creates a Session. countries may be nil, in which case the country list stays empty.
// debounceDelay <= 0 uses DefaultDebounce.
func New(weather client.WeatherTransport, countries client.CountryTransport, logger *zap.Logger, debounceDelay time.Duration) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounceDelay <= 0 {
		debounceDelay = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		weather:   weather,
		countries: countries,
		resolver:  suggest.NewResolver(weather, logger),
		history:   history.NewStore(),
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		state:     models.StateIdle,
	}
	s.debouncer = debounce.New(debounceDelay, s.resolveCitySuggestions)
	return s
}

// Close cancels pending suggestion work. The session must not be used afterwards.
func (s *Session) Close() {
	s.debouncer.Stop()
	s.guard.Invalidate()
	s.cancel()
}

// State returns a snapshot of the session.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.SessionState{
		City:         s.city,
		Country:      s.country,
		State:        s.state,
		Busy:         s.state == models.StateLoading,
		Error:        s.errMsg,
		CityPanel:    s.cityPanel,
		CountryPanel: s.countryPanel,
		History:      s.history.Entries(),
	}
	if s.current != nil {
		rec := *s.current
		st.Current = &rec
	}
	return st
}

// Submit looks up the weather for city (and optional country). An empty trimmed city
// returns ErrEmptyCity without any state change. Lookup failures are recorded in the
// session state and also returned.
func (s *Session) Submit(ctx context.Context, city, country string) error {
	if strings.TrimSpace(city) == "" {
		return ErrEmptyCity
	}

	s.mu.Lock()
	s.lookupSeq++
	seq := s.lookupSeq
	s.state = models.StateLoading
	s.errMsg = ""
	s.mu.Unlock()

	rec, err := s.lookup(ctx, city, country)
	if err != nil {
		return s.fail(seq, city, country, err)
	}
	return s.succeed(seq, city, country, rec)
}

// SubmitForm submits the current form values.
func (s *Session) SubmitForm(ctx context.Context) error {
	s.mu.Lock()
	city, country := s.city, s.country
	s.mu.Unlock()
	return s.Submit(ctx, city, country)
}

// SelectSuggestion writes the suggestion into the form and submits it.
func (s *Session) SelectSuggestion(ctx context.Context, sug models.CitySuggestion) error {
	s.fillForm(sug.City, sug.Country)
	return s.Submit(ctx, sug.City, sug.Country)
}

// SelectHistoryEntry writes the entry's place into the form and submits it.
func (s *Session) SelectHistoryEntry(ctx context.Context, e models.HistoryEntry) error {
	s.fillForm(e.City, e.Country)
	return s.Submit(ctx, e.City, e.Country)
}

// SelectHistoryID is SelectHistoryEntry by entry ID. It reports false when no entry matches.
func (s *Session) SelectHistoryID(ctx context.Context, id string) (bool, error) {
	for _, e := range s.history.Entries() {
		if e.ID == id {
			return true, s.SelectHistoryEntry(ctx, e)
		}
	}
	return false, nil
}

func (s *Session) fillForm(city, country string) {
	s.debouncer.Cancel()
	s.guard.Invalidate()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.city = city
	s.country = country
	s.cityPanel = models.ClosedPanel[models.CitySuggestion]()
	s.countryPanel = models.ClosedPanel[models.CountryEntry]()
}

func (s *Session) lookup(ctx context.Context, city, country string) (models.WeatherRecord, error) {
	raw, err := s.weather.CurrentWeather(ctx, city, country)
	if err != nil {
		return models.WeatherRecord{}, err
	}
	return normalize.WeatherPayload(raw, s.now())
}

func (s *Session) succeed(seq uint64, city, country string, rec models.WeatherRecord) error {
	applied := s.finish(seq, func() {
		s.current = &rec
		s.errMsg = ""
		s.state = models.StateSuccess

		place := country
		if place == "" {
			place = rec.Country
		}
		evicted := s.history.Record(history.Search{
			City:      city,
			Country:   place,
			Weather:   rec.Condition,
			Timestamp: rec.RetrievedAt,
		})
		if evicted > 0 {
			observability.HistoryEvictionsTotal.Add(float64(evicted))
		}
	})
	if !applied {
		return ErrSuperseded
	}
	observability.SearchesTotal.WithLabelValues("success").Inc()
	s.logger.Debug("weather lookup succeeded",
		zap.String("city", city),
		zap.String("country", country),
		zap.String("condition", rec.Condition))
	return nil
}

func (s *Session) fail(seq uint64, city, country string, err error) error {
	kind := Classify(err)
	applied := s.finish(seq, func() {
		s.current = nil
		s.errMsg = kind.Message()
		s.state = models.StateFailed
	})
	if !applied {
		return ErrSuperseded
	}
	observability.SearchesTotal.WithLabelValues(kind.String()).Inc()
	s.logger.Info("weather lookup failed",
		zap.String("city", city),
		zap.String("country", country),
		zap.String("kind", kind.String()),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
	return fmt.Errorf("lookup %q: %w", city, err)
}

// finish applies a lookup outcome if seq is still the latest submit, then closes the
// city suggestion panel.
func (s *Session) finish(seq uint64, apply func()) bool {
	s.mu.Lock()
	latest := seq == s.lookupSeq
	s.mu.Unlock()
	if !latest {
		observability.SearchesTotal.WithLabelValues("discarded").Inc()
		return false
	}

	s.debouncer.Cancel()
	s.guard.Invalidate()

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.lookupSeq {
		observability.SearchesTotal.WithLabelValues("discarded").Inc()
		return false
	}
	apply()
	s.cityPanel = models.ClosedPanel[models.CitySuggestion]()
	return true
}

// ClearForm resets the form, current result, error and suggestion panels. History is kept.
// A lookup still in flight is discarded when it resolves.
func (s *Session) ClearForm() {
	s.debouncer.Cancel()
	s.guard.Invalidate()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookupSeq++
	s.city = ""
	s.country = ""
	s.current = nil
	s.errMsg = ""
	s.state = models.StateIdle
	s.cityPanel = models.ClosedPanel[models.CitySuggestion]()
	s.countryPanel = models.ClosedPanel[models.CountryEntry]()
}

// UpdateCityInput stores the city field and clears the error. Input of two or more
// characters schedules a debounced suggestion lookup; shorter input closes the panel.
func (s *Session) UpdateCityInput(text string) {
	long := utf8.RuneCountInString(strings.TrimSpace(text)) >= suggest.MinQueryLength
	if !long {
		s.debouncer.Cancel()
		s.guard.Invalidate()
	}

	s.mu.Lock()
	s.city = text
	s.errMsg = ""
	if !long {
		s.cityPanel = models.ClosedPanel[models.CitySuggestion]()
	}
	s.mu.Unlock()

	if long {
		s.debouncer.Call(cityQuery{text: text, token: s.guard.Begin()})
	}
}

func (s *Session) resolveCitySuggestions(q cityQuery) {
	items := s.resolver.CitySuggestions(s.ctx, q.text)
	applied := s.guard.Apply(q.token, func() {
		s.mu.Lock()
		s.cityPanel = models.OpenPanel(items)
		s.mu.Unlock()
	})
	if !applied {
		observability.SuggestionResolutionsTotal.WithLabelValues("stale").Inc()
		s.logger.Debug("stale suggestions discarded", zap.String("query", q.text))
	}
}

// UpdateCountryInput stores the country field and opens the country panel with the
// matching entries. Empty input, no matches or an unloaded country list close it.
func (s *Session) UpdateCountryInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country = text
	if strings.TrimSpace(text) == "" {
		s.countryPanel = models.ClosedPanel[models.CountryEntry]()
		return
	}
	s.countryPanel = models.OpenPanel(suggest.FilterCountries(s.allCountries, text))
}

// SelectCountry writes the entry's code (or name, when it has no code) into the country
// field and closes the country panel.
func (s *Session) SelectCountry(entry models.CountryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country = entry.Code
	if s.country == "" {
		s.country = entry.Name
	}
	s.countryPanel = models.ClosedPanel[models.CountryEntry]()
}

// DeleteHistoryEntry removes the history entry with the given ID.
func (s *Session) DeleteHistoryEntry(id string) {
	s.history.Delete(id)
}

// ClearHistory removes every history entry.
func (s *Session) ClearHistory() {
	s.history.Clear()
}

// LoadCountries fetches the country list once. On failure the list stays empty and the
// error is logged and returned; city search keeps working.
func (s *Session) LoadCountries(ctx context.Context) error {
	if s.countries == nil {
		return fmt.Errorf("load countries: no country transport configured")
	}
	raw, err := s.countries.Countries(ctx)
	if err == nil {
		var list []models.CountryEntry
		list, err = normalize.CountryList(raw)
		if err == nil {
			s.mu.Lock()
			s.allCountries = list
			s.mu.Unlock()
			observability.CountryListSize.Set(float64(len(list)))
			return nil
		}
	}
	s.logger.Warn("country list unavailable",
		zap.String("category", string(client.CategorizeError(err))),
		zap.Error(err))
	return fmt.Errorf("load countries: %w", err)
}

// Countries returns a copy of the loaded country list.
func (s *Session) Countries() []models.CountryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CountryEntry, len(s.allCountries))
	copy(out, s.allCountries)
	return out
}
