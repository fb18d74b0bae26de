// Package lexer turns IL source text into a stream of tokens for the parser.
package lexer

import "strconv"

// Position represents a location in the source text.
//
// Position is a small value type; tokens, symbols and parse errors all carry one.
type Position struct {
	// Filename is the name of the input ("<stdin>" for the CLI)
	Filename string

	// Line is the 1-based line number. Zero means "no position".
	Line int

	// Column is the 1-based column, counted in runes
	Column int

	// Offset is the 0-based byte offset from the start of the input
	Offset int
}

// String returns "filename:line:column", the format editors and CI tools link.
func (p Position) String() string {
	return p.Filename + ":" + strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Column)
}

// IsValid returns true if the position is valid (has a non-zero line number).
func (p Position) IsValid() bool {
	return p.Line > 0
}

// Before returns true if this position comes before the other position.
func (p Position) Before(other Position) bool {
	return p.Offset < other.Offset
}

// After returns true if this position comes after the other position.
func (p Position) After(other Position) bool {
	return p.Offset > other.Offset
}
