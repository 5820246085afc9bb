// Package idalloc derives the next sequential directory identifier.
//
// Identifiers have the form <prefix>_<n>. The next identifier is one more
// than the largest suffix in the collection, so allocation is collision-free
// as long as the caller passes the complete, current collection.
package idalloc

import (
	"strconv"
	"strings"
)

// Suffix returns the numeric suffix of id, or 0 when id does not have the
// form <prefix>_<non-negative integer>.
func Suffix(id, prefix string) int {
	rest, ok := strings.CutPrefix(strings.TrimSpace(id), prefix+"_")
	if !ok || rest == "" {
		return 0
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// Next returns <prefix>_<max+1> over existing. An empty collection yields
// <prefix>_1.
func Next(prefix string, existing []string) string {
	highest := 0
	for _, id := range existing {
		if n := Suffix(id, prefix); n > highest {
			highest = n
		}
	}
	return prefix + "_" + strconv.Itoa(highest+1)
}
