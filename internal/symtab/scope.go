package symtab

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/Swordelf2/compprac2/internal/lexer"
)

// ScopeKind represents the kind of scope.
type ScopeKind int

const (
	// ScopeGlobal holds functions, data and types
	ScopeGlobal ScopeKind = iota

	// ScopeFunction holds the labels and temporaries of one function
	ScopeFunction
)

// String returns a human-readable representation of the scope kind.
func (sk ScopeKind) String() string {
	switch sk {
	case ScopeGlobal:
		return "global"
	case ScopeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// key separates the namespaces: "@x" and "%x" never collide.
type key struct {
	ns   string
	name string
}

func keyOf(kind SymbolKind, name string) key {
	return key{ns: kind.Sigil(), name: name}
}

// Scope is a table of symbols.
//
// EXAMPLE:
//
//	global := NewScope(ScopeGlobal, nil)       // $main, $printf, :pair
//	fn := NewScope(ScopeFunction, global)      // @start, %x
//
// A function scope is created fresh for every function, so names never leak
// from one function into the next.
type Scope struct {
	// Kind is the kind of scope
	Kind ScopeKind

	// Parent is the enclosing scope (nil for global scope)
	Parent *Scope

	// Symbols maps (namespace, name) to symbols in this scope
	Symbols map[key]*Symbol
}

// NewScope creates a new scope with the given kind and parent.
func NewScope(kind ScopeKind, parent *Scope) *Scope {
	return &Scope{
		Kind:    kind,
		Parent:  parent,
		Symbols: make(map[key]*Symbol),
	}
}

// Define records the definition of a name.
//
// If the name was only referenced so far, the existing symbol becomes defined
// and is returned. Defining a name twice is an error naming the first definition.
func (s *Scope) Define(kind SymbolKind, name string, pos lexer.Position) (*Symbol, error) {
	if existing, ok := s.Symbols[keyOf(kind, name)]; ok {
		if existing.Defined {
			return existing, fmt.Errorf("%s %s%s redefined, first defined at %s",
				kind, kind.Sigil(), name, existing.Pos)
		}
		existing.Defined = true
		existing.Pos = pos
		return existing, nil
	}

	symbol := &Symbol{
		Name:    name,
		Kind:    kind,
		Pos:     pos,
		Scope:   s,
		Defined: true,
		Index:   -1,
	}
	s.Symbols[keyOf(kind, name)] = symbol
	return symbol, nil
}

// Reference returns the symbol for name, creating an undefined one if this is
// the first mention. The symbol is marked used.
func (s *Scope) Reference(kind SymbolKind, name string, pos lexer.Position) *Symbol {
	if symbol := s.LookupLocal(kind, name); symbol != nil {
		symbol.MarkUsed()
		return symbol
	}
	symbol := &Symbol{
		Name:  name,
		Kind:  kind,
		Pos:   pos,
		Scope: s,
		Used:  true,
		Index: -1,
	}
	s.Symbols[keyOf(kind, name)] = symbol
	return symbol
}

// Lookup finds a symbol in this scope or any parent scope.
// Returns nil if not found.
func (s *Scope) Lookup(kind SymbolKind, name string) *Symbol {
	if symbol, ok := s.Symbols[keyOf(kind, name)]; ok {
		symbol.MarkUsed()
		return symbol
	}
	if s.Parent != nil {
		return s.Parent.Lookup(kind, name)
	}
	return nil
}

// LookupLocal finds a symbol only in this scope.
func (s *Scope) LookupLocal(kind SymbolKind, name string) *Symbol {
	return s.Symbols[keyOf(kind, name)]
}

// IsGlobal returns true if this is the global scope.
func (s *Scope) IsGlobal() bool {
	return s.Kind == ScopeGlobal
}

// Undefined returns the symbols of the given kind that were referenced but
// never defined, ordered by position of first reference.
func (s *Scope) Undefined(kind SymbolKind) []*Symbol {
	undefined := make([]*Symbol, 0)
	for _, symbol := range s.Symbols {
		if symbol.Kind == kind && !symbol.Defined {
			undefined = append(undefined, symbol)
		}
	}
	slices.SortFunc(undefined, func(a, b *Symbol) int {
		switch {
		case a.Pos.Before(b.Pos):
			return -1
		case b.Pos.Before(a.Pos):
			return 1
		}
		return 0
	})
	return undefined
}

// String returns a human-readable representation of the scope.
func (s *Scope) String() string {
	return fmt.Sprintf("%s scope (%d symbols)", s.Kind, len(s.Symbols))
}
