package genai

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		status     string
		message    string
		want       ErrorKind
	}{
		{"429 is rate limited", 429, "", "", KindRateLimited},
		{"resource exhausted is rate limited", 400, "RESOURCE_EXHAUSTED", "quota", KindRateLimited},
		{"401 is invalid key", 401, "", "", KindInvalidKey},
		{"403 is invalid key", 403, "PERMISSION_DENIED", "", KindInvalidKey},
		{"key invalid marker", 400, "INVALID_ARGUMENT", "API_KEY_INVALID", KindInvalidKey},
		{"key not valid message", 400, "INVALID_ARGUMENT", "API key not valid. Please pass a valid API key.", KindInvalidKey},
		{"expired key message", 400, "INVALID_ARGUMENT", "API key expired", KindInvalidKey},
		{"500 is transient", 500, "INTERNAL", "server error", KindTransient},
		{"503 is transient", 503, "UNAVAILABLE", "overloaded", KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.statusCode, tt.status, tt.message); got != tt.want {
				t.Errorf("Classify(%d, %q, %q) = %v, want %v", tt.statusCode, tt.status, tt.message, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	rateErr := &APIError{Kind: KindRateLimited, StatusCode: 429}
	if got := KindOf(rateErr); got != KindRateLimited {
		t.Errorf("KindOf(rate) = %v", got)
	}
	wrapped := fmt.Errorf("enrich chunk 3: %w", &APIError{Kind: KindInvalidKey})
	if got := KindOf(wrapped); got != KindInvalidKey {
		t.Errorf("KindOf(wrapped) = %v", got)
	}
	if got := KindOf(errors.New("connection refused")); got != KindTransient {
		t.Errorf("KindOf(plain) = %v, want transient", got)
	}
	if got := KindOf(nil); got != KindTransient {
		t.Errorf("KindOf(nil) = %v, want transient", got)
	}
}
