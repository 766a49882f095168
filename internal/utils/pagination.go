// Package utils provides small helpers shared across layers: page
// arithmetic for history listings and per-key locking.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a valid integer. Surrounding spaces are not trimmed.
func AtoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage bounds a page request: Number is at least 1, a non-positive Size
// becomes defSize, and Size never exceeds maxSize (when maxSize > 0).
func NewPage(number, size, defSize, maxSize int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = defSize
	}
	if size < 1 {
		size = 1
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return Page{Number: number, Size: size}
}

// ParsePage is NewPage over raw query values; unparsable values fall back
// to the defaults.
func ParsePage(number, size string, defSize, maxSize int) Page {
	return NewPage(AtoiDefault(number, 1), AtoiDefault(size, defSize), defSize, maxSize)
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages of p.Size hold total rows.
func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a page follows p.
func (p Page) HasNext(total int64) bool { return p.Number < p.TotalPages(total) }
