package session

import (
	"errors"

	"github.com/kjstillabower/weather-search/internal/client"
)

var (
	// ErrEmptyCity is returned by Submit when the trimmed city is empty. No transition happens.
	ErrEmptyCity = errors.New("city is required")
	// ErrSuperseded is returned when a newer submit replaced this one before it resolved.
	ErrSuperseded = errors.New("lookup superseded by a newer search")
)

// User-visible messages for weather lookup failures.
const (
	MsgNotFound    = "City not found."
	MsgServerError = "Server error. Try again later."
)

// ErrorKind classifies weather lookup failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotFound
	KindServerError
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindServerError:
		return "server_error"
	default:
		return "none"
	}
}

// Message returns the user-visible message for k.
func (k ErrorKind) Message() string {
	switch k {
	case KindNotFound:
		return MsgNotFound
	case KindServerError:
		return MsgServerError
	default:
		return ""
	}
}

// Classify maps a lookup error to NotFound when the transport reported an unknown
// location and to ServerError for everything else.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, client.ErrLocationNotFound) {
		return KindNotFound
	}
	return KindServerError
}
