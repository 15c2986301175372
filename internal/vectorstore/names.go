package vectorstore

import (
	"regexp"
)

// DefaultCollection is the fallback collection name, also used for
// cross-document search when no document id is given.
const DefaultCollection = "multimodal_rag"

const (
	minNameLen = 3
	maxNameLen = 512
	namePrefix = "col_"
)

var (
	validName   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,510}[A-Za-z0-9]$`)
	disallowed  = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	invalidEnds = regexp.MustCompile(`^[^A-Za-z0-9]+|[^A-Za-z0-9]+$`)

	// RE2 has no backreferences, so each separator collapses separately.
	repeatedSeps = []*regexp.Regexp{
		regexp.MustCompile(`_{2,}`),
		regexp.MustCompile(`-{2,}`),
		regexp.MustCompile(`\.{2,}`),
	}
	sepReplacements = []string{"_", "-", "."}
)

// SanitizeCollectionName maps any document identifier onto a valid
// collection name: 3-512 chars of [A-Za-z0-9._-], starting and ending
// alphanumeric. Pure and deterministic; it is the only link between a
// document id and its physical collection.
func SanitizeCollectionName(id string) string {
	s := disallowed.ReplaceAllString(id, "_")
	for i, re := range repeatedSeps {
		s = re.ReplaceAllString(s, sepReplacements[i])
	}
	s = invalidEnds.ReplaceAllString(s, "")

	if len(s) < minNameLen {
		s = namePrefix + s
		s = invalidEnds.ReplaceAllString(s, "")
	}
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
		s = invalidEnds.ReplaceAllString(s, "")
	}
	if !validName.MatchString(s) {
		return DefaultCollection
	}
	return s
}

// IsValidCollectionName reports whether a name already satisfies the
// collection grammar.
func IsValidCollectionName(s string) bool {
	return validName.MatchString(s)
}
