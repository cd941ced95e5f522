// Package hierarchy models the dotted hierarchical codes ("01.02.03") that
// position a budget line inside a schedule tree.
package hierarchy

import (
	"strconv"
	"strings"
)

// Separator between code segments.
const Separator = "."

// Normalize trims surrounding whitespace and trailing separators.
// "  01.02. " becomes "01.02". An all-separator code normalizes to "".
func Normalize(code string) string {
	return strings.TrimRight(strings.TrimSpace(code), Separator)
}

// Segments splits a code into its dot-separated parts.
// The empty code has no segments.
func Segments(code string) []string {
	if code == "" {
		return nil
	}
	return strings.Split(code, Separator)
}

// DepthOf returns the number of segments in code.
func DepthOf(code string) int {
	return len(Segments(code))
}

// ParentOf drops the last segment of code.
// Returns false when code has a single segment (or none).
func ParentOf(code string) (string, bool) {
	idx := strings.LastIndex(code, Separator)
	if idx < 0 {
		return "", false
	}
	return code[:idx], true
}

// IsAncestor reports whether candidate is a strict ancestor of code.
//
// The second clause (plain prefix without separator) tolerates malformed
// codes such as "0101" under "01". Callers that control their input should
// Normalize codes instead of relying on it. The roll-up calculator and
// display tree use IsDescendant, which has no bare-prefix clause.
func IsAncestor(candidate, code string) bool {
	if candidate == "" {
		return false
	}
	if strings.HasPrefix(code, candidate+Separator) {
		return true
	}
	return strings.HasPrefix(code, candidate) && len(code) > len(candidate)
}

// IsDescendant reports whether code sits anywhere below ancestor in dotted
// form. Unlike IsAncestor it never matches on a bare prefix, so "01.10" is
// not a descendant of "01.1".
func IsDescendant(code, ancestor string) bool {
	return ancestor != "" && strings.HasPrefix(code, ancestor+Separator)
}

// IsImmediateChild reports whether child sits exactly one level below parent.
func IsImmediateChild(parent, child string) bool {
	return strings.HasPrefix(child, parent+Separator) && DepthOf(child) == DepthOf(parent)+1
}

// HasChildren reports whether any code in allCodes is an immediate child of code.
// Used to decide whether a tree node is expandable.
func HasChildren(code string, allCodes []string) bool {
	for _, other := range allCodes {
		if other != code && IsImmediateChild(code, other) {
			return true
		}
	}
	return false
}

// AreSiblings reports whether a and b share the same parent.
func AreSiblings(a, b string) bool {
	pa, okA := ParentOf(a)
	pb, okB := ParentOf(b)
	return okA == okB && pa == pb
}

// IsNumeric reports whether every segment of code is made of digits.
func IsNumeric(code string) bool {
	segs := Segments(code)
	if len(segs) == 0 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// Compare orders codes segment by segment, numerically when both segments
// are numbers and lexicographically otherwise. A code sorts before its
// descendants. Returns -1, 0 or 1.
func Compare(a, b string) int {
	as, bs := Segments(a), Segments(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return strings.Compare(a, b)
	}
	return strings.Compare(a, b)
}
