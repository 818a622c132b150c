package mapDataClient

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey     = errors.New("api key not configured")
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoResults         = errors.New("no results")
)

// APIError is returned when a collaborator answers with a non-2xx status.
type APIError struct {
	Source     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Source, e.StatusCode, e.Message)
}

//Malformed wraps a decoding problem so callers can match ErrMalformedResponse.
func Malformed(source string, reason any) error {
	return fmt.Errorf("%s: %w: %v", source, ErrMalformedResponse, reason)
}
