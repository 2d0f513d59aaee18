// SPDX-License-Identifier: Apache-2.0

package plugin

import (
	"math"
	"strings"
)

// catchAllRank is the specificity assigned to a glob that is nothing but
// a wildcard catch-all (`*`, `**`, `**/*`). Spec §4.9 requires these to
// always rank below any pattern carrying a literal path segment,
// regardless of how that pattern's raw literal-minus-wildcard count
// compares.
const catchAllRank = math.MinInt

// specificity scores a match_path_glob by literal characters minus
// wildcard characters (spec §4.9): more literal text makes a plugin a
// more specific — and therefore preferred — match for a given path.
func specificity(glob string) int {
	if isCatchAll(glob) {
		return catchAllRank
	}
	literal, wildcard := 0, 0
	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '*', '?':
			wildcard++
		default:
			literal++
		}
	}
	return literal - wildcard
}

func isCatchAll(glob string) bool {
	switch glob {
	case "*", "**", "**/*":
		return true
	default:
		return false
	}
}

// matches reports whether path satisfies glob. Supports `*` (matches
// within one path segment), `**` (matches across segments, including
// zero), `?` (matches exactly one byte that isn't `/`), and literal
// segments — the subset spec §4.9's examples require. There is no glob
// library in the dependency set this engine draws from, so this is
// hand-rolled directly atop Go strings, matching the grain of
// `path.Match`'s single-segment semantics extended for `**`.
func matches(glob, path string) bool {
	return matchSegments(splitGlob(glob), splitPath(path))
}

func splitGlob(glob string) []string { return strings.Split(glob, "/") }
func splitPath(path string) []string { return strings.Split(path, "/") }

func matchSegments(glob, path []string) bool {
	if len(glob) == 0 {
		return len(path) == 0
	}
	head := glob[0]
	if head == "**" {
		if matchSegments(glob[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(glob, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	if !matchSegment(head, path[0]) {
		return false
	}
	return matchSegments(glob[1:], path[1:])
}

// matchSegment matches a single path segment against a single glob
// segment containing `*`/`?` wildcards, via straightforward backtracking
// (segments are short: file/directory names).
func matchSegment(pattern, segment string) bool {
	return matchSegmentAt(pattern, segment, 0, 0)
}

func matchSegmentAt(pattern, segment string, pi, si int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			// Try every possible length for this `*`, including zero.
			for k := si; k <= len(segment); k++ {
				if matchSegmentAt(pattern, segment, pi+1, k) {
					return true
				}
			}
			return false
		case '?':
			if si >= len(segment) {
				return false
			}
			pi++
			si++
		default:
			if si >= len(segment) || pattern[pi] != segment[si] {
				return false
			}
			pi++
			si++
		}
	}
	return si == len(segment)
}
