// Package utils holds small helpers shared by the HTTP and storage layers:
// query parsing for the two paging styles the mirror serves (CurseForge
// index/pageSize offsets and opaque inventory cursors).
package utils

import "strconv"

// AtoiDefault parses s as a decimal int, returning def when s is empty or
// not a valid int.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampLimit bounds a page size to [1, max], using def when n <= 0.
func ClampLimit(n, def, max int) int {
	switch {
	case n <= 0:
		return def
	case n > max:
		return max
	}
	return n
}

// OffsetPage parses CurseForge-style index and pageSize query values. A
// negative or malformed index starts at 0; the size is clamped like
// ClampLimit.
func OffsetPage(index, pageSize string, def, max int) (offset, limit int) {
	offset = AtoiDefault(index, 0)
	if offset < 0 {
		offset = 0
	}
	return offset, ClampLimit(AtoiDefault(pageSize, 0), def, max)
}
