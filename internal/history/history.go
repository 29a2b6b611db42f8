// Package history keeps the bounded, deduplicated, most-recent-first list of
// past successful searches. The list functions are pure: they never modify
// their input and always return a new slice.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-search/internal/models"
)

// MaxEntries is the history cap.
const MaxEntries = 5

// UnknownWeather is the label recorded when the provider reports no condition.
const UnknownWeather = "Unknown Weather"

// Search is the input to RecordSearch.
type Search struct {
	City      string
	Country   string
	Weather   string
	Timestamp time.Time
}

// RecordSearch drops any entry with the same case-insensitive (city, country) identity,
// prepends the new entry with a fresh ID and truncates to MaxEntries.
func RecordSearch(h []models.HistoryEntry, s Search) []models.HistoryEntry {
	entry := models.HistoryEntry{
		ID:       NewID(),
		City:     s.City,
		Country:  s.Country,
		Weather:  s.Weather,
		DateTime: FormatDateTime(s.Timestamp),
	}
	if strings.TrimSpace(entry.Weather) == "" {
		entry.Weather = UnknownWeather
	}

	id := entry.Identity()
	out := make([]models.HistoryEntry, 0, MaxEntries)
	out = append(out, entry)
	for _, e := range h {
		if len(out) == MaxEntries {
			break
		}
		if e.Identity() == id {
			continue
		}
		out = append(out, e)
	}
	return out
}

// DeleteEntry returns h without the entry whose ID matches. Unknown IDs leave the list unchanged.
func DeleteEntry(h []models.HistoryEntry, id string) []models.HistoryEntry {
	out := make([]models.HistoryEntry, 0, len(h))
	for _, e := range h {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// ClearAll returns an empty history.
func ClearAll() []models.HistoryEntry {
	return []models.HistoryEntry{}
}

// NewID returns a session-unique entry ID. Random UUIDs keep IDs distinct even for
// searches recorded within the same millisecond.
func NewID() string {
	return "TW" + uuid.NewString()
}

// FormatDateTime renders t as "dd/mm/yyyy, hh:mm am". The zero time renders as "-".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006, 03:04 pm")
}

// Store holds the current history for one session and replaces it wholesale on each change.
type Store struct {
	mu      sync.RWMutex
	entries []models.HistoryEntry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: ClearAll()}
}

// Record applies RecordSearch and reports how many entries were evicted by the cap.
func (s *Store) Record(search Search) (evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := RecordSearch(s.entries, search)
	evicted = len(s.entries) + 1 - len(next) - duplicates(s.entries, next[0].Identity())
	s.entries = next
	return evicted
}

func duplicates(h []models.HistoryEntry, id string) int {
	n := 0
	for _, e := range h {
		if e.Identity() == id {
			n++
		}
	}
	return n
}

// Delete removes the entry with the given ID.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = DeleteEntry(s.entries, id)
}

// Clear empties the history.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = ClearAll()
}

// Entries returns a copy of the current history, newest first.
func (s *Store) Entries() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
