package lexer

import "fmt"

// TokenType represents the type of a token.
type TokenType int

// Token type enumeration.
//
// ORGANIZATION:
// 1. Special tokens (EOF, Invalid, Newline)
// 2. Names, one per sigil, plus bare identifiers (keywords, ops, classes)
// 3. Literals
// 4. Punctuation
const (
	// TokenEOF marks the end of the input.
	TokenEOF TokenType = iota

	// TokenInvalid represents a lexical error.
	TokenInvalid

	// TokenNewline ends a statement. Runs of blank lines and comments
	// collapse into a single newline token.
	TokenNewline

	// Names. The lexeme excludes the sigil.

	TokenTemp     // %x
	TokenGlobal   // $x
	TokenLabel    // @x
	TokenTypeName // :x

	// TokenIdent is a bare word: a keyword, an op or a class letter.
	// Keywords are not reserved; the parser interprets them by position.
	TokenIdent

	// Literals

	TokenInteger // 42, -7
	TokenSingle  // s_1.5 (lexeme excludes the prefix)
	TokenDouble  // d_1.5 (lexeme excludes the prefix)
	TokenString  // "text", lexeme includes the quotes

	// Punctuation

	TokenAssign   // =
	TokenComma    // ,
	TokenLParen   // (
	TokenRParen   // )
	TokenLBrace   // {
	TokenRBrace   // }
	TokenEllipsis // ...
	TokenPlus     // +
)

var tokenNames = [...]string{
	TokenEOF:      "end of file",
	TokenInvalid:  "invalid token",
	TokenNewline:  "newline",
	TokenTemp:     "temporary",
	TokenGlobal:   "global",
	TokenLabel:    "label",
	TokenTypeName: "type name",
	TokenIdent:    "identifier",
	TokenInteger:  "integer",
	TokenSingle:   "single constant",
	TokenDouble:   "double constant",
	TokenString:   "string",
	TokenAssign:   "'='",
	TokenComma:    "','",
	TokenLParen:   "'('",
	TokenRParen:   "')'",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
	TokenEllipsis: "'...'",
	TokenPlus:     "'+'",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical token.
type Token struct {
	Type     TokenType
	Lexeme   string
	Position Position

	// Length is the number of source bytes the token spans
	Length int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	default:
		return fmt.Sprintf("%s %q", t.Type, t.Lexeme)
	}
}
