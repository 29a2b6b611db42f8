// Package normalize converts raw provider payloads into the canonical models.
// Weather and autocomplete payloads may arrive wrapped in a test(...) callback
// envelope; both wrapped and plain JSON are accepted.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kjstillabower/weather-search/internal/models"
)

// ErrParse is returned when a payload is not valid structured data.
var ErrParse = errors.New("parse payload")

var envelope = regexp.MustCompile(`(?s)^test\((.*)\);?$`)

// StripEnvelope removes the test(...) wrapper if present. Unwrapped input is returned as-is.
func StripEnvelope(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if m := envelope.FindSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

type weatherPayload struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
}

// WeatherPayload parses a current-weather payload into a WeatherRecord stamped with now.
// Missing country, condition, temperature and humidity are not errors.
func WeatherPayload(raw []byte, now time.Time) (models.WeatherRecord, error) {
	var p weatherPayload
	if err := json.Unmarshal(StripEnvelope(raw), &p); err != nil {
		return models.WeatherRecord{}, fmt.Errorf("%w: weather: %v", ErrParse, err)
	}
	rec := models.WeatherRecord{
		Name:         p.Name,
		Country:      p.Sys.Country,
		TemperatureC: p.Main.Temp,
		Humidity:     p.Main.Humidity,
		RetrievedAt:  now,
	}
	if len(p.Weather) > 0 {
		rec.Condition = p.Weather[0].Main
	}
	return rec, nil
}

type geoEntry struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// CitySuggestions parses an autocomplete payload into city suggestions.
func CitySuggestions(raw []byte) ([]models.CitySuggestion, error) {
	var entries []geoEntry
	if err := json.Unmarshal(StripEnvelope(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: autocomplete: %v", ErrParse, err)
	}
	out := make([]models.CitySuggestion, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.CitySuggestion{City: e.Name, Country: e.Country})
	}
	return out, nil
}

type countryElement struct {
	Name struct {
		Common string `mapstructure:"common"`
	} `mapstructure:"name"`
	CCA2 string `mapstructure:"cca2"`
}

// CountryList parses a country-reference payload into {name, code} entries sorted by name.
// Elements that cannot be decoded, or that carry neither a name nor a code, are skipped.
func CountryList(raw []byte) ([]models.CountryEntry, error) {
	var elements []interface{}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &elements); err != nil {
		return nil, fmt.Errorf("%w: countries: %v", ErrParse, err)
	}
	out := make([]models.CountryEntry, 0, len(elements))
	for _, el := range elements {
		if _, ok := el.(map[string]interface{}); !ok {
			continue
		}
		var c countryElement
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &c,
		})
		if err != nil {
			return nil, fmt.Errorf("countries decoder: %w", err)
		}
		if err := dec.Decode(el); err != nil {
			continue
		}
		entry := models.CountryEntry{
			Name: strings.TrimSpace(c.Name.Common),
			Code: strings.ToUpper(strings.TrimSpace(c.CCA2)),
		}
		if entry.Name == "" && entry.Code == "" {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
