package client

import (
	"errors"
	"fmt"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// SyncError is a 2xx reply whose status field was not "success".
type SyncError struct {
	Status  string
	Message string
}

func (e *SyncError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sync status %q", e.Status)
	}
	return e.Message
}
