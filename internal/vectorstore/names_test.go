package vectorstore

import (
	"strings"
	"testing"
)

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name passes through", "quarterly_report", "quarterly_report"},
		{"spaces and punctuation replaced", "Q3 Report!!", "Q3_Report"},
		{"separator runs collapsed", "a__b--c..d", "a_b-c.d"},
		{"mixed run keeps distinct separators", "Q3_Report_.pdf", "Q3_Report_.pdf"},
		{"leading and trailing stripped", "._doc_.", "doc"},
		{"short name prefixed", "ab", "col_ab"},
		{"single char prefixed", "x", "col_x"},
		{"empty falls back to prefix stem", "", "col"},
		{"unicode collapses to prefix stem", "отчёт", "col"},
		{"long name truncated", strings.Repeat("a", 600), strings.Repeat("a", 512)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeCollectionName(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeCollectionName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !IsValidCollectionName(got) {
				t.Errorf("result %q is not a valid collection name", got)
			}
		})
	}
}

func TestSanitizeCollectionName_Idempotent(t *testing.T) {
	inputs := []string{
		"Q3 Report!!",
		"quarterly_report.pdf",
		"x",
		"",
		"a__b--c",
		strings.Repeat("z", 600),
	}
	for _, in := range inputs {
		once := SanitizeCollectionName(in)
		twice := SanitizeCollectionName(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestIsValidCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"abc", true},
		{"a.b-c_d", true},
		{"ab", false},
		{"_abc", false},
		{"abc_", false},
		{"a b", false},
		{strings.Repeat("a", 512), true},
		{strings.Repeat("a", 513), false},
	}
	for _, tt := range tests {
		if got := IsValidCollectionName(tt.in); got != tt.want {
			t.Errorf("IsValidCollectionName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
