package models

import (
	"strings"
	"time"
)

// WeatherRecord is a normalized snapshot of current conditions for one location.
// Temperature and humidity are zero when the provider omits them; a true zero reading
// and a missing field are indistinguishable.
type WeatherRecord struct {
	Name         string    `json:"name"`
	Country      string    `json:"country,omitempty"`
	Condition    string    `json:"condition,omitempty"`
	TemperatureC float64   `json:"temperatureC"`
	Humidity     float64   `json:"humidity"`
	RetrievedAt  time.Time `json:"retrievedAt"`
}

// TemperatureF returns the temperature converted to Fahrenheit.
func (r WeatherRecord) TemperatureF() float64 {
	return r.TemperatureC*9/5 + 32
}

type CitySuggestion struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

type CountryEntry struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// HistoryEntry is one past successful search. Two entries refer to the same place
// when Identity matches, regardless of ID.
type HistoryEntry struct {
	ID       string `json:"id"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Weather  string `json:"weather"`
	DateTime string `json:"dateTime"`
}

// Identity returns the case-insensitive (city, country) key used for deduplication.
func (e HistoryEntry) Identity() string {
	return Identity(e.City, e.Country)
}

// Identity builds the lower-cased "city,country" key.
func Identity(city, country string) string {
	return strings.ToLower(city + "," + country)
}
