// Package symtab implements name resolution for the textual IL.
//
// The IL has four namespaces, told apart by their sigil:
//
//	$name   functions and data (program scope)
//	:name   aggregate types    (program scope)
//	@name   block labels       (function scope)
//	%name   temporaries        (function scope)
//
// Labels and temporaries may be referenced before they are defined (a jump to a
// later block, a phi reading a value defined further down a loop), so a symbol
// is created on first mention and marked Defined when its definition is seen.
package symtab

import (
	"github.com/Swordelf2/compprac2/internal/lexer"
)

// SymbolKind represents the kind of symbol.
type SymbolKind int

const (
	// SymbolTemp is an SSA temporary (%x)
	SymbolTemp SymbolKind = iota

	// SymbolLabel is a block label (@b)
	SymbolLabel

	// SymbolFunction is a function definition ($f)
	SymbolFunction

	// SymbolData is a data definition ($d).
	// Shares the '$' namespace with functions.
	SymbolData

	// SymbolType is an aggregate type definition (:t)
	SymbolType
)

// String returns a human-readable representation of the symbol kind.
func (sk SymbolKind) String() string {
	switch sk {
	case SymbolTemp:
		return "temporary"
	case SymbolLabel:
		return "label"
	case SymbolFunction:
		return "function"
	case SymbolData:
		return "data"
	case SymbolType:
		return "type"
	default:
		return "unknown"
	}
}

// Sigil returns the prefix character of names of this kind.
func (sk SymbolKind) Sigil() string {
	switch sk {
	case SymbolTemp:
		return "%"
	case SymbolLabel:
		return "@"
	case SymbolFunction, SymbolData:
		return "$"
	case SymbolType:
		return ":"
	default:
		return "?"
	}
}

// Symbol represents a named entity in the program.
type Symbol struct {
	// Name is the identifier without its sigil
	Name string

	// Kind is what kind of symbol this is
	Kind SymbolKind

	// Pos is where the symbol was defined, or first referenced while still undefined
	Pos lexer.Position

	// Scope is the scope owning this symbol
	Scope *Scope

	// Defined is set once the definition has been seen
	Defined bool

	// Used tracks if this symbol has been referenced
	Used bool

	// Index is the IR index the symbol resolves to (tmp index, block id)
	Index int
}

// String returns a human-readable representation of the symbol.
// Format: "kind sigil+name at position"
// Example: "label @loop at f.ssa:12:1"
func (s *Symbol) String() string {
	return s.Kind.String() + " " + s.Kind.Sigil() + s.Name + " at " + s.Pos.String()
}

// IsGlobal returns true if this symbol lives in the program scope.
func (s *Symbol) IsGlobal() bool {
	return s.Scope != nil && s.Scope.IsGlobal()
}

// MarkUsed marks this symbol as used.
func (s *Symbol) MarkUsed() {
	s.Used = true
}
