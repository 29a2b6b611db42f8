package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/models"
)

// fakeWeather serves canned payloads keyed by city. A gate, when present, blocks the
// call until closed.
type fakeWeather struct {
	mu          sync.Mutex
	responses   map[string]string
	errs        map[string]error
	gates       map[string]chan struct{}
	suggestions map[string]string
	autoCalls   []string
}

func (f *fakeWeather) CurrentWeather(ctx context.Context, city, country string) ([]byte, error) {
	f.mu.Lock()
	gate := f.gates[city]
	body, ok := f.responses[city]
	err := f.errs[city]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", client.ErrLocationNotFound, city)
	}
	return []byte(body), nil
}

func (f *fakeWeather) Autocomplete(ctx context.Context, query string, limit int) ([]byte, error) {
	f.mu.Lock()
	f.autoCalls = append(f.autoCalls, query)
	gate := f.gates["auto:"+query]
	body, ok := f.suggestions[query]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return []byte(`test([])`), nil
	}
	return []byte(body), nil
}

func (f *fakeWeather) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.autoCalls...)
}

type fakeCountries struct {
	body string
	err  error
}

func (f *fakeCountries) Countries(ctx context.Context) ([]byte, error) {
	return []byte(f.body), f.err
}

func payload(name, country, condition string, temp float64) string {
	return fmt.Sprintf(`test({"name":%q,"sys":{"country":%q},"weather":[{"main":%q}],"main":{"temp":%v,"humidity":50}})`,
		name, country, condition, temp)
}

func newTestSession(t *testing.T, w *fakeWeather, c client.CountryTransport, logger *zap.Logger) *Session {
	t.Helper()
	s := New(w, c, logger, 20*time.Millisecond)
	s.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC) }
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
		msg  string
	}{
		{"nil", nil, KindNone, ""},
		{"not found", client.ErrLocationNotFound, KindNotFound, MsgNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", client.ErrLocationNotFound), KindNotFound, MsgNotFound},
		{"upstream", client.ErrUpstreamFailure, KindServerError, MsgServerError},
		{"timeout", context.DeadlineExceeded, KindServerError, MsgServerError},
		{"other", errors.New("boom"), KindServerError, MsgServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if got.Message() != tt.msg {
				t.Errorf("Message() = %q, want %q", got.Message(), tt.msg)
			}
		})
	}
}

func TestSubmit_EmptyCityIsNoOp(t *testing.T) {
	s := newTestSession(t, &fakeWeather{}, nil, nil)
	for _, city := range []string{"", "   ", "\t"} {
		if err := s.Submit(context.Background(), city, "GB"); !errors.Is(err, ErrEmptyCity) {
			t.Errorf("Submit(%q) error = %v, want ErrEmptyCity", city, err)
		}
	}
	st := s.State()
	if st.State != models.StateIdle || st.Busy || st.Error != "" || len(st.History) != 0 {
		t.Errorf("state changed after empty submit: %+v", st)
	}
}

func TestSubmit_Success(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"London": payload("London", "GB", "Clouds", 12.5)}}
	s := newTestSession(t, w, nil, nil)

	if err := s.Submit(context.Background(), "London", ""); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	st := s.State()
	if st.State != models.StateSuccess || st.Busy || st.Error != "" {
		t.Fatalf("state = %v busy=%v err=%q, want success", st.State, st.Busy, st.Error)
	}
	if st.Current == nil || st.Current.Name != "London" || st.Current.TemperatureC != 12.5 {
		t.Fatalf("Current = %+v", st.Current)
	}
	if len(st.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(st.History))
	}
	h := st.History[0]
	if h.City != "London" || h.Country != "GB" || h.Weather != "Clouds" {
		t.Errorf("history entry = %+v, want London/GB/Clouds", h)
	}
	if h.DateTime != "05/03/2024, 02:07 pm" {
		t.Errorf("DateTime = %q", h.DateTime)
	}
	if !strings.HasPrefix(h.ID, "TW") {
		t.Errorf("ID = %q, want TW prefix", h.ID)
	}
}

func TestSubmit_FormCountryWinsOverPayload(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"Paris": payload("Paris", "FR", "Clear", 20)}}
	s := newTestSession(t, w, nil, nil)
	if err := s.Submit(context.Background(), "Paris", "US"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := s.State().History[0].Country; got != "US" {
		t.Errorf("history country = %q, want US", got)
	}
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name    string
		weather *fakeWeather
		wantMsg string
	}{
		{
			name:    "not found",
			weather: &fakeWeather{},
			wantMsg: MsgNotFound,
		},
		{
			name:    "upstream",
			weather: &fakeWeather{errs: map[string]error{"Atlantis": client.ErrUpstreamFailure}},
			wantMsg: MsgServerError,
		},
		{
			name:    "unparseable payload",
			weather: &fakeWeather{responses: map[string]string{"Atlantis": "test(<html>)"}},
			wantMsg: MsgServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession(t, tt.weather, nil, nil)
			if err := s.Submit(context.Background(), "Atlantis", ""); err == nil {
				t.Fatal("Submit() error = nil, want error")
			}
			st := s.State()
			if st.State != models.StateFailed || st.Busy {
				t.Errorf("state = %v busy=%v, want failed", st.State, st.Busy)
			}
			if st.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", st.Error, tt.wantMsg)
			}
			if st.Current != nil {
				t.Errorf("Current = %+v, want nil", st.Current)
			}
			if len(st.History) != 0 {
				t.Errorf("History = %+v, want empty", st.History)
			}
		})
	}
}

func TestSubmit_FailureKeepsHistory(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"London": payload("London", "GB", "Rain", 9)}}
	s := newTestSession(t, w, nil, nil)
	_ = s.Submit(context.Background(), "London", "")
	_ = s.Submit(context.Background(), "Nowhere", "")

	st := s.State()
	if st.State != models.StateFailed || st.Current != nil {
		t.Fatalf("state = %v current=%v, want failed with no result", st.State, st.Current)
	}
	if len(st.History) != 1 {
		t.Errorf("len(History) = %d, want 1", len(st.History))
	}
}

func TestSubmit_BusyWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	w := &fakeWeather{
		responses: map[string]string{"Oslo": payload("Oslo", "NO", "Snow", -3)},
		gates:     map[string]chan struct{}{"Oslo": gate},
	}
	s := newTestSession(t, w, nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "Oslo", "") }()
	waitFor(t, time.Second, func() bool { return s.State().Busy })
	if st := s.State(); st.State != models.StateLoading {
		t.Errorf("state = %v, want loading", st.State)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if s.State().Busy {
		t.Error("Busy = true after lookup resolved")
	}
}

func TestSubmit_LatestSubmitWins(t *testing.T) {
	slow := make(chan struct{})
	w := &fakeWeather{
		responses: map[string]string{
			"Lima":  payload("Lima", "PE", "Fog", 18),
			"Cairo": payload("Cairo", "EG", "Clear", 30),
		},
		gates: map[string]chan struct{}{"Lima": slow},
	}
	s := newTestSession(t, w, nil, nil)

	first := make(chan error, 1)
	go func() { first <- s.Submit(context.Background(), "Lima", "") }()
	waitFor(t, time.Second, func() bool { return s.State().Busy })

	if err := s.Submit(context.Background(), "Cairo", ""); err != nil {
		t.Fatalf("Submit(Cairo) error = %v", err)
	}
	close(slow)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Submit(Lima) error = %v, want ErrSuperseded", err)
	}

	st := s.State()
	if st.Current == nil || st.Current.Name != "Cairo" {
		t.Errorf("Current = %+v, want Cairo", st.Current)
	}
	if len(st.History) != 1 || st.History[0].City != "Cairo" {
		t.Errorf("History = %+v, want only Cairo", st.History)
	}
}

func TestSubmit_HistoryDedupAndCap(t *testing.T) {
	cities := []string{"A1", "B2", "C3", "D4", "E5", "F6"}
	w := &fakeWeather{responses: map[string]string{}}
	for _, c := range cities {
		w.responses[c] = payload(c, "XX", "Clear", 1)
	}
	s := newTestSession(t, w, nil, nil)

	for _, c := range cities {
		_ = s.Submit(context.Background(), c, "XX")
	}
	h := s.State().History
	if len(h) != 5 {
		t.Fatalf("len(History) = %d, want 5", len(h))
	}
	if h[0].City != "F6" || h[4].City != "B2" {
		t.Errorf("history order = %v", h)
	}

	_ = s.Submit(context.Background(), "C3", "xx")
	h = s.State().History
	if len(h) != 5 || h[0].City != "C3" {
		t.Fatalf("after repeat, history = %v", h)
	}
	seen := 0
	for _, e := range h {
		if strings.EqualFold(e.City, "C3") {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("C3 appears %d times, want 1", seen)
	}
}

func TestSelectHistoryEntry_ResubmitsAndMovesToFront(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{
		"Rome":  payload("Rome", "IT", "Clear", 22),
		"Turin": payload("Turin", "IT", "Rain", 14),
	}}
	s := newTestSession(t, w, nil, nil)
	_ = s.Submit(context.Background(), "Rome", "IT")
	_ = s.Submit(context.Background(), "Turin", "IT")

	rome := s.State().History[1]
	found, err := s.SelectHistoryID(context.Background(), rome.ID)
	if !found || err != nil {
		t.Fatalf("SelectHistoryID() = %v, %v", found, err)
	}
	st := s.State()
	if st.City != "Rome" || st.Country != "IT" {
		t.Errorf("form = %q/%q, want Rome/IT", st.City, st.Country)
	}
	if st.History[0].City != "Rome" || len(st.History) != 2 {
		t.Errorf("history = %v, want Rome first", st.History)
	}

	if found, _ := s.SelectHistoryID(context.Background(), "missing"); found {
		t.Error("SelectHistoryID(missing) found = true")
	}
}

func TestDeleteAndClearHistory(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{
		"Rome":  payload("Rome", "IT", "Clear", 22),
		"Turin": payload("Turin", "IT", "Rain", 14),
	}}
	s := newTestSession(t, w, nil, nil)
	_ = s.Submit(context.Background(), "Rome", "IT")
	_ = s.Submit(context.Background(), "Turin", "IT")

	s.DeleteHistoryEntry(s.State().History[0].ID)
	h := s.State().History
	if len(h) != 1 || h[0].City != "Rome" {
		t.Fatalf("after delete, history = %v", h)
	}
	s.DeleteHistoryEntry("unknown")
	if len(s.State().History) != 1 {
		t.Error("deleting an unknown ID changed history")
	}
	s.ClearHistory()
	if h := s.State().History; len(h) != 0 {
		t.Errorf("after clear, history = %v", h)
	}
	if s.State().Current == nil {
		t.Error("ClearHistory cleared the current result")
	}
}

func TestClearForm_KeepsHistory(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"Rome": payload("Rome", "IT", "Clear", 22)}}
	s := newTestSession(t, w, nil, nil)
	s.UpdateCityInput("Rome")
	s.UpdateCountryInput("IT")
	_ = s.SubmitForm(context.Background())

	s.ClearForm()
	st := s.State()
	if st.City != "" || st.Country != "" || st.Current != nil || st.Error != "" {
		t.Errorf("form not cleared: %+v", st)
	}
	if st.State != models.StateIdle {
		t.Errorf("state = %v, want idle", st.State)
	}
	if st.CityPanel.IsOpen() || st.CountryPanel.IsOpen() {
		t.Error("panels open after ClearForm")
	}
	if len(st.History) != 1 {
		t.Errorf("len(History) = %d, want 1", len(st.History))
	}
}

func TestClearForm_DiscardsInFlightLookup(t *testing.T) {
	gate := make(chan struct{})
	w := &fakeWeather{
		responses: map[string]string{"Oslo": payload("Oslo", "NO", "Snow", -3)},
		gates:     map[string]chan struct{}{"Oslo": gate},
	}
	s := newTestSession(t, w, nil, nil)
	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "Oslo", "") }()
	waitFor(t, time.Second, func() bool { return s.State().Busy })

	s.ClearForm()
	close(gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Submit() error = %v, want ErrSuperseded", err)
	}
	st := s.State()
	if st.Current != nil || st.State != models.StateIdle || len(st.History) != 0 {
		t.Errorf("late result applied after ClearForm: %+v", st)
	}
}

func TestUpdateCityInput_DebouncedSuggestions(t *testing.T) {
	w := &fakeWeather{suggestions: map[string]string{
		"Lond": `test([{"name":"London","country":"GB"},{"name":"Londrina","country":"BR"}])`,
	}}
	s := newTestSession(t, w, nil, nil)

	s.UpdateCityInput("Lo")
	s.UpdateCityInput("Lon")
	s.UpdateCityInput("Lond")
	waitFor(t, time.Second, func() bool { return s.State().CityPanel.IsOpen() })

	if calls := w.calls(); len(calls) != 1 || calls[0] != "Lond" {
		t.Errorf("autocomplete calls = %v, want [Lond]", calls)
	}
	items := s.State().CityPanel.Items()
	if len(items) != 2 || items[0].City != "London" {
		t.Errorf("suggestions = %v", items)
	}
}

func TestUpdateCityInput_ShortInputClosesPanel(t *testing.T) {
	w := &fakeWeather{suggestions: map[string]string{"Par": `test([{"name":"Paris","country":"FR"}])`}}
	s := newTestSession(t, w, nil, nil)

	s.UpdateCityInput("Par")
	waitFor(t, time.Second, func() bool { return s.State().CityPanel.IsOpen() })

	s.UpdateCityInput("P")
	if s.State().CityPanel.IsOpen() {
		t.Error("panel open after input dropped below two characters")
	}
	time.Sleep(50 * time.Millisecond)
	if calls := w.calls(); len(calls) != 1 {
		t.Errorf("autocomplete calls = %v, want one", calls)
	}
}

func TestUpdateCityInput_ClearsError(t *testing.T) {
	s := newTestSession(t, &fakeWeather{}, nil, nil)
	_ = s.Submit(context.Background(), "Nowhere", "")
	if s.State().Error == "" {
		t.Fatal("expected an error after failed lookup")
	}
	s.UpdateCityInput("N")
	if got := s.State().Error; got != "" {
		t.Errorf("Error = %q after typing, want empty", got)
	}
}

func TestSuggestions_StaleResponseDiscarded(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lonGate := make(chan struct{})
	w := &fakeWeather{
		suggestions: map[string]string{
			"Lon":    `test([{"name":"Lonsdale","country":"AU"}])`,
			"London": `test([{"name":"London","country":"GB"}])`,
		},
		gates: map[string]chan struct{}{"auto:Lon": lonGate},
	}
	s := newTestSession(t, w, nil, zap.New(core))

	s.UpdateCityInput("Lon")
	waitFor(t, time.Second, func() bool { return len(w.calls()) == 1 })
	s.UpdateCityInput("London")
	waitFor(t, time.Second, func() bool { return s.State().CityPanel.IsOpen() })

	close(lonGate)
	waitFor(t, time.Second, func() bool {
		return logs.FilterMessage("stale suggestions discarded").Len() == 1
	})

	items := s.State().CityPanel.Items()
	if len(items) != 1 || items[0].City != "London" {
		t.Errorf("suggestions = %v, want London only", items)
	}
}

func TestSuggestions_TimerFiringAfterClearIsDiscarded(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := &fakeWeather{suggestions: map[string]string{
		"Lond": `test([{"name":"London","country":"GB"}])`,
	}}
	s := newTestSession(t, w, nil, zap.New(core))

	// A timer that was already firing when the form was cleared still carries the
	// token handed out with the input.
	q := cityQuery{text: "Lond", token: s.guard.Begin()}
	s.ClearForm()
	s.resolveCitySuggestions(q)

	if s.State().CityPanel.IsOpen() {
		t.Error("city panel reopened after ClearForm")
	}
	if logs.FilterMessage("stale suggestions discarded").Len() != 1 {
		t.Error("expected stale suggestions to be logged")
	}
}

func TestSuggestions_SelectionDuringResolutionKeepsPanelClosed(t *testing.T) {
	gate := make(chan struct{})
	w := &fakeWeather{
		responses:   map[string]string{"London": payload("London", "GB", "Rain", 11)},
		suggestions: map[string]string{"Lond": `test([{"name":"London","country":"GB"}])`},
		gates:       map[string]chan struct{}{"auto:Lond": gate},
	}
	s := newTestSession(t, w, nil, nil)

	s.UpdateCityInput("Lond")
	waitFor(t, time.Second, func() bool { return len(w.calls()) == 1 })
	if err := s.SelectSuggestion(context.Background(), models.CitySuggestion{City: "London", Country: "GB"}); err != nil {
		t.Fatalf("SelectSuggestion() error = %v", err)
	}
	close(gate)
	time.Sleep(50 * time.Millisecond)

	if s.State().CityPanel.IsOpen() {
		t.Error("city panel reopened by a suggestion resolved after selection")
	}
}

func TestSubmit_ClosesSuggestionPanel(t *testing.T) {
	w := &fakeWeather{
		responses:   map[string]string{"Paris": payload("Paris", "FR", "Clear", 20)},
		suggestions: map[string]string{"Paris": `test([{"name":"Paris","country":"FR"}])`},
	}
	s := newTestSession(t, w, nil, nil)
	s.UpdateCityInput("Paris")
	waitFor(t, time.Second, func() bool { return s.State().CityPanel.IsOpen() })

	if err := s.SubmitForm(context.Background()); err != nil {
		t.Fatalf("SubmitForm() error = %v", err)
	}
	if s.State().CityPanel.IsOpen() {
		t.Error("city panel open after submit")
	}
}

func TestSelectSuggestion(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"Perth": payload("Perth", "AU", "Clear", 25)}}
	s := newTestSession(t, w, nil, nil)

	if err := s.SelectSuggestion(context.Background(), models.CitySuggestion{City: "Perth", Country: "AU"}); err != nil {
		t.Fatalf("SelectSuggestion() error = %v", err)
	}
	st := s.State()
	if st.City != "Perth" || st.Country != "AU" {
		t.Errorf("form = %q/%q", st.City, st.Country)
	}
	if st.Current == nil || st.History[0].Country != "AU" {
		t.Errorf("state = %+v", st)
	}
}

const countriesBody = `[
	{"name":{"common":"United Kingdom"},"cca2":"GB"},
	{"name":{"common":"Germany"},"cca2":"DE"},
	{"name":{"common":"United States"},"cca2":"US"}
]`

func TestLoadCountriesAndFilter(t *testing.T) {
	s := newTestSession(t, &fakeWeather{}, &fakeCountries{body: countriesBody}, nil)
	if err := s.LoadCountries(context.Background()); err != nil {
		t.Fatalf("LoadCountries() error = %v", err)
	}
	if got := len(s.Countries()); got != 3 {
		t.Fatalf("len(Countries()) = %d, want 3", got)
	}

	s.UpdateCountryInput("united")
	panel := s.State().CountryPanel
	if !panel.IsOpen() || len(panel.Items()) != 2 {
		t.Fatalf("country panel = %+v, want two matches", panel.Items())
	}

	s.SelectCountry(panel.Items()[0])
	st := s.State()
	if st.Country != "GB" {
		t.Errorf("Country = %q, want GB", st.Country)
	}
	if st.CountryPanel.IsOpen() {
		t.Error("country panel open after selection")
	}

	s.UpdateCountryInput("zzz")
	if s.State().CountryPanel.IsOpen() {
		t.Error("panel open with no matches")
	}
	s.UpdateCountryInput("")
	if s.State().CountryPanel.IsOpen() {
		t.Error("panel open for empty input")
	}
}

func TestLoadCountries_FailureLeavesSearchWorking(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"Rome": payload("Rome", "IT", "Clear", 22)}}
	s := newTestSession(t, w, &fakeCountries{err: client.ErrUpstreamFailure}, nil)

	if err := s.LoadCountries(context.Background()); !errors.Is(err, client.ErrUpstreamFailure) {
		t.Errorf("LoadCountries() error = %v, want ErrUpstreamFailure", err)
	}
	if len(s.Countries()) != 0 {
		t.Error("country list not empty after failure")
	}
	s.UpdateCountryInput("It")
	if s.State().CountryPanel.IsOpen() {
		t.Error("country panel open with empty list")
	}
	if err := s.Submit(context.Background(), "Rome", ""); err != nil {
		t.Errorf("Submit() error = %v after bootstrap failure", err)
	}
}

func TestLoadCountries_NoTransport(t *testing.T) {
	s := newTestSession(t, &fakeWeather{}, nil, nil)
	if err := s.LoadCountries(context.Background()); err == nil {
		t.Error("LoadCountries() error = nil without transport")
	}
}

func TestState_ReturnsCopies(t *testing.T) {
	w := &fakeWeather{responses: map[string]string{"Rome": payload("Rome", "IT", "Clear", 22)}}
	s := newTestSession(t, w, nil, nil)
	_ = s.Submit(context.Background(), "Rome", "IT")

	st := s.State()
	st.Current.Name = "changed"
	st.History[0].City = "changed"
	again := s.State()
	if again.Current.Name != "Rome" || again.History[0].City != "Rome" {
		t.Error("State() exposed internal storage")
	}
}
