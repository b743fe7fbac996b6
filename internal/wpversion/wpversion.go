// Package wpversion compares WordPress-style version strings ("6.4",
// "6.4.2", "21.5", "4.2.1.3") using semantic-version ordering.
//
// The first three numeric components are compared with golang.org/x/mod/semver;
// any further components (common in plugin versions) break ties numerically.
package wpversion

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

var versionPattern = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)`)

// Extract returns the leading dotted-numeric part of s ("6.4.2-beta" -> "6.4.2").
func Extract(s string) string {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	return m[1]
}

// Valid reports whether s carries a comparable version.
func Valid(s string) bool {
	_, _, ok := split(s)
	return ok
}

// Compare returns -1, 0 or +1. ok is false when either side is not a version.
func Compare(a, b string) (cmp int, ok bool) {
	aSem, aTail, okA := split(a)
	bSem, bTail, okB := split(b)
	if !okA || !okB {
		return 0, false
	}
	if c := semver.Compare(aSem, bSem); c != 0 {
		return c, true
	}
	for i := 0; i < len(aTail) || i < len(bTail); i++ {
		var x, y int
		if i < len(aTail) {
			x = aTail[i]
		}
		if i < len(bTail) {
			y = bTail[i]
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
	}
	return 0, true
}

// IsOutdated reports whether installed is strictly older than latest. It
// returns nil when either version is unknown or unparseable.
func IsOutdated(installed, latest string) *bool {
	cmp, ok := Compare(installed, latest)
	if !ok {
		return nil
	}
	outdated := cmp < 0
	return &outdated
}

// MajorMinor returns "X.Y" for a version, or "" when invalid.
func MajorMinor(s string) string {
	sem, _, ok := split(s)
	if !ok {
		return ""
	}
	return strings.TrimPrefix(semver.MajorMinor(sem), "v")
}

// split turns "1.2.3.4" into ("v1.2.3", [4]).
func split(s string) (string, []int, bool) {
	v := Extract(s)
	if v == "" {
		return "", nil, false
	}
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	head := make([]string, 3)
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return "", nil, false
		}
		head[i] = strconv.Itoa(n)
	}
	sem := "v" + strings.Join(head, ".")
	if !semver.IsValid(sem) {
		return "", nil, false
	}
	tail := make([]int, 0, len(parts)-3)
	for _, p := range parts[3:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", nil, false
		}
		tail = append(tail, n)
	}
	return sem, tail, true
}
