package common

import "strings"

// Set is a string set used for allow-list membership checks.
type Set map[string]struct{}

// NewSet builds a Set from items, ignoring surrounding whitespace and empty entries.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		s[it] = struct{}{}
	}
	return s
}

// Has reports whether s contains item.
func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// SplitList splits a comma separated list, trimming blanks and dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
