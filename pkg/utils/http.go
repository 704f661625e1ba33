package utils

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a whole request, including reading the body
const DefaultHTTPTimeout = 30 * time.Second

// NewHTTPClient returns a client with the given timeout, or
// DefaultHTTPTimeout when timeout is not positive
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}
