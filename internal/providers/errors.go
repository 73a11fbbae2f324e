package providers

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("no provider registered")
	ErrEmptyEmbedding  = errors.New("empty embedding returned")
)

// APIError is returned when a provider answers with a non-200 status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}
