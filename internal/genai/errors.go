package genai

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind int

const (
	// KindTransient covers 5xx and other errors worth a short retry.
	KindTransient ErrorKind = iota
	// KindRateLimited is a quota/429 failure, retried with longer backoff.
	KindRateLimited
	// KindInvalidKey is an auth failure. Retrying with the same key
	// cannot succeed.
	KindInvalidKey
)

// APIError is a classified failure from the generation provider.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Status     string // provider status string, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai: %s (http %d): %s", e.Status, e.StatusCode, truncate(e.Message, 200))
}

// Classify maps an HTTP status plus provider error body onto an ErrorKind.
func Classify(statusCode int, status, message string) ErrorKind {
	switch {
	case statusCode == 429 || status == "RESOURCE_EXHAUSTED":
		return KindRateLimited
	case statusCode == 401 || statusCode == 403 ||
		strings.Contains(message, "API_KEY_INVALID") ||
		strings.Contains(message, "API key not valid") ||
		strings.Contains(message, "API key expired"):
		return KindInvalidKey
	default:
		return KindTransient
	}
}

// KindOf extracts the error kind, defaulting to KindTransient for
// errors that did not come from the provider (network, decode).
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransient
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
