package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/lifecycle"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/session"
	"github.com/kjstillabower/weather-search/internal/theme"
	"github.com/kjstillabower/weather-search/internal/validation"
)

const maxBodyBytes = 1 << 16

// Session is the orchestrator surface the handlers drive.
type Session interface {
	State() models.SessionState
	Submit(ctx context.Context, city, country string) error
	SubmitForm(ctx context.Context) error
	SelectSuggestion(ctx context.Context, s models.CitySuggestion) error
	SelectHistoryID(ctx context.Context, id string) (bool, error)
	DeleteHistoryEntry(id string)
	ClearHistory()
	ClearForm()
	UpdateCityInput(text string)
	UpdateCountryInput(text string)
	SelectCountry(entry models.CountryEntry)
	Countries() []models.CountryEntry
}

// HealthConfig holds optional dependency probes for the health handler.
type HealthConfig struct {
	StartTime time.Time
	Version   string
	// WeatherBreakerState, when set, returns the weather API breaker state ("closed", "half-open", "open").
	WeatherBreakerState func() string
	// ThemePing, when set, checks theme store reachability. Used when backend is memcached.
	ThemePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	session          Session
	theme            *theme.Preference
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxInputLength   int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxInputLength <= 0 uses validation.MaxInputLength.
func NewHandler(s Session, pref *theme.Preference, healthConfig *HealthConfig, logger *zap.Logger, maxInputLength int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxInputLength <= 0 {
		maxInputLength = validation.MaxInputLength
	}
	return &Handler{
		session:        s,
		theme:          pref,
		healthConfig:   healthConfig,
		logger:         logger,
		maxInputLength: maxInputLength,
	}
}

// Register mounts every route on router. Lookup routes get the request timeout.
func (h *Handler) Register(router *mux.Router, requestTimeout time.Duration) {
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.HandleFunc("/state", h.GetState).Methods("GET")
	router.HandleFunc("/form/city", h.PutCityInput).Methods("PUT")
	router.HandleFunc("/form/country", h.PutCountryInput).Methods("PUT")
	router.HandleFunc("/form/clear", h.PostClearForm).Methods("POST")
	router.HandleFunc("/suggestions/country/select", h.PostSelectCountry).Methods("POST")
	router.HandleFunc("/history/{id}", h.DeleteHistoryEntry).Methods("DELETE")
	router.HandleFunc("/history", h.DeleteHistory).Methods("DELETE")
	router.HandleFunc("/theme", h.GetTheme).Methods("GET")
	router.HandleFunc("/theme/toggle", h.PostToggleTheme).Methods("POST")

	lookups := router.NewRoute().Subrouter()
	lookups.Use(TimeoutMiddleware(requestTimeout))
	lookups.HandleFunc("/search", h.PostSearch).Methods("POST")
	lookups.HandleFunc("/suggestions/city/select", h.PostSelectCity).Methods("POST")
	lookups.HandleFunc("/history/{id}/select", h.PostSelectHistory).Methods("POST")
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.State())
}

type searchRequest struct {
	City    *string `json:"city"`
	Country string  `json:"country"`
}

// PostSearch handles POST /search. With no city in the body the current form is submitted.
// Lookup failures are reported through the returned state, not the status code.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	var err error
	if req.City == nil {
		err = h.session.SubmitForm(r.Context())
	} else {
		if !h.validInput(w, r, *req.City, req.Country) {
			return
		}
		err = h.session.Submit(r.Context(), *req.City, req.Country)
	}
	h.writeLookupResult(w, r, err)
}

type textRequest struct {
	Text string `json:"text"`
}

// PutCityInput handles PUT /form/city.
func (h *Handler) PutCityInput(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decode(w, r, &req) || !h.validInput(w, r, req.Text) {
		return
	}
	h.session.UpdateCityInput(req.Text)
	writeJSON(w, http.StatusOK, h.session.State())
}

// PutCountryInput handles PUT /form/country.
func (h *Handler) PutCountryInput(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !h.decode(w, r, &req) || !h.validInput(w, r, req.Text) {
		return
	}
	h.session.UpdateCountryInput(req.Text)
	writeJSON(w, http.StatusOK, h.session.State())
}

// PostClearForm handles POST /form/clear.
func (h *Handler) PostClearForm(w http.ResponseWriter, r *http.Request) {
	h.session.ClearForm()
	writeJSON(w, http.StatusOK, h.session.State())
}

// PostSelectCity handles POST /suggestions/city/select.
func (h *Handler) PostSelectCity(w http.ResponseWriter, r *http.Request) {
	var req models.CitySuggestion
	if !h.decode(w, r, &req) || !h.validInput(w, r, req.City, req.Country) {
		return
	}
	h.writeLookupResult(w, r, h.session.SelectSuggestion(r.Context(), req))
}

// PostSelectCountry handles POST /suggestions/country/select.
func (h *Handler) PostSelectCountry(w http.ResponseWriter, r *http.Request) {
	var req models.CountryEntry
	if !h.decode(w, r, &req) || !h.validInput(w, r, req.Name, req.Code) {
		return
	}
	h.session.SelectCountry(req)
	writeJSON(w, http.StatusOK, h.session.State())
}

// PostSelectHistory handles POST /history/{id}/select.
func (h *Handler) PostSelectHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	found, err := h.session.SelectHistoryID(r.Context(), id)
	if !found {
		writeError(w, r, http.StatusNotFound, "HISTORY_NOT_FOUND", "no history entry with that id")
		return
	}
	h.writeLookupResult(w, r, err)
}

// DeleteHistoryEntry handles DELETE /history/{id}. Unknown IDs are a no-op.
func (h *Handler) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	h.session.DeleteHistoryEntry(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, h.session.State())
}

// DeleteHistory handles DELETE /history.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	h.session.ClearHistory()
	writeJSON(w, http.StatusOK, h.session.State())
}

type themeResponse struct {
	Theme string `json:"theme"`
	Dark  bool   `json:"dark"`
}

// GetTheme handles GET /theme.
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, themeResponse{Theme: h.theme.Name(), Dark: h.theme.IsDark()})
}

// PostToggleTheme handles POST /theme/toggle.
func (h *Handler) PostToggleTheme(w http.ResponseWriter, r *http.Request) {
	name := h.theme.Toggle(r.Context())
	writeJSON(w, http.StatusOK, themeResponse{Theme: name, Dark: name == theme.Dark})
}

// writeLookupResult writes the session state after a lookup. Empty-city submits and
// superseded lookups are not errors for the caller; the state already says what happened.
func (h *Handler) writeLookupResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !errors.Is(err, session.ErrEmptyCity) {
		requestLogger(r, h.logger).Debug("lookup finished with error",
			zap.String("kind", session.Classify(err).String()),
			zap.Error(err))
	}
	writeJSON(w, http.StatusOK, h.session.State())
}

func (h *Handler) validInput(w http.ResponseWriter, r *http.Request, inputs ...string) bool {
	for _, in := range inputs {
		if _, err := validation.ValidateInput(in, h.maxInputLength); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return false
		}
	}
	return true
}

// decode reads a required JSON body into v.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return false
	}
	return true
}

// decodeOptional is decode for endpoints where an empty body is allowed.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return false
	}
	return true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{
		"weatherApi": "healthy",
		"countries":  "loaded",
	}
	if result.reason == "circuit_open" {
		checks["weatherApi"] = "unhealthy"
	}
	if len(h.session.Countries()) == 0 {
		if lifecycle.Current() == lifecycle.Starting {
			checks["countries"] = "pending"
		} else {
			checks["countries"] = "unavailable"
		}
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.ThemePing != nil {
			if h.healthConfig.ThemePing() == nil {
				checks["themeStore"] = "healthy"
			} else {
				checks["themeStore"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-search",
		"version":   version,
		"phase":     lifecycle.Current().String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order: shutting-down > weather
// breaker open > healthy. A missing country list never makes the service unhealthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.WeatherBreakerState != nil && h.healthConfig.WeatherBreakerState() == "open" {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID, _ := r.Context().Value("correlation_id").(string)
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// requestLogger returns the per-request logger set by CorrelationIDMiddleware, or fallback.
func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}
