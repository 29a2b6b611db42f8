package models

import "encoding/json"

// State is the search orchestrator state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string label.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Panel is the suggestion panel of one input field: either closed, or open with
// at least one item.
type Panel[T any] struct {
	items []T
}

// ClosedPanel returns a closed panel.
func ClosedPanel[T any]() Panel[T] {
	return Panel[T]{}
}

// OpenPanel returns an open panel holding a copy of items. An empty items slice
// yields a closed panel.
func OpenPanel[T any](items []T) Panel[T] {
	if len(items) == 0 {
		return Panel[T]{}
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return Panel[T]{items: cp}
}

// IsOpen reports whether the panel is open.
func (p Panel[T]) IsOpen() bool {
	return len(p.items) > 0
}

// Items returns a copy of the panel items; nil when closed.
func (p Panel[T]) Items() []T {
	if len(p.items) == 0 {
		return nil
	}
	cp := make([]T, len(p.items))
	copy(cp, p.items)
	return cp
}

func (p Panel[T]) MarshalJSON() ([]byte, error) {
	if !p.IsOpen() {
		return json.Marshal(struct {
			Open bool `json:"open"`
		}{false})
	}
	return json.Marshal(struct {
		Open  bool `json:"open"`
		Items []T  `json:"items"`
	}{true, p.items})
}

// SessionState is a read-only snapshot of one search session.
type SessionState struct {
	City         string                `json:"city"`
	Country      string                `json:"country"`
	State        State                 `json:"state"`
	Busy         bool                  `json:"busy"`
	Error        string                `json:"error,omitempty"`
	CityPanel    Panel[CitySuggestion] `json:"citySuggestions"`
	CountryPanel Panel[CountryEntry]   `json:"countrySuggestions"`
	Current      *WeatherRecord        `json:"current,omitempty"`
	History      []HistoryEntry        `json:"history"`
}
