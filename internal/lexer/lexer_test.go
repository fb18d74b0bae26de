package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanAll returns every token up to and including EOF.
func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	l := New(src, "test.ssa")
	var tokens []Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func TestNextToken(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		types   []TokenType
		lexemes []string
	}{
		{
			name:    "names",
			input:   "%x $f @loop :pair",
			types:   []TokenType{TokenTemp, TokenGlobal, TokenLabel, TokenTypeName, TokenEOF},
			lexemes: []string{"x", "f", "loop", "pair", ""},
		},
		{
			name:    "assignment",
			input:   "%t.1 =w add %a, -12",
			types:   []TokenType{TokenTemp, TokenAssign, TokenIdent, TokenIdent, TokenTemp, TokenComma, TokenInteger, TokenEOF},
			lexemes: []string{"t.1", "=", "w", "add", "a", ",", "-12", ""},
		},
		{
			name:    "floats",
			input:   "s_1.5 d_-2e3 d_0.25",
			types:   []TokenType{TokenSingle, TokenDouble, TokenDouble, TokenEOF},
			lexemes: []string{"1.5", "-2e3", "0.25", ""},
		},
		{
			name:    "class letters are not floats",
			input:   "=s stores =d",
			types:   []TokenType{TokenAssign, TokenIdent, TokenIdent, TokenAssign, TokenIdent, TokenEOF},
			lexemes: []string{"=", "s", "stores", "=", "d", ""},
		},
		{
			name:    "call punctuation",
			input:   "call $printf(l $fmt, ..., w %x)",
			types:   []TokenType{TokenIdent, TokenGlobal, TokenLParen, TokenIdent, TokenGlobal, TokenComma, TokenEllipsis, TokenComma, TokenIdent, TokenTemp, TokenRParen, TokenEOF},
			lexemes: []string{"call", "printf", "(", "l", "fmt", ",", "...", ",", "w", "x", ")", ""},
		},
		{
			name:    "data",
			input:   `data $s = { b "a\"b", z 4 }`,
			types:   []TokenType{TokenIdent, TokenGlobal, TokenAssign, TokenLBrace, TokenIdent, TokenString, TokenComma, TokenIdent, TokenInteger, TokenRBrace, TokenEOF},
			lexemes: []string{"data", "s", "=", "{", "b", `"a\"b"`, ",", "z", "4", "}", ""},
		},
		{
			name:    "comments and blank lines collapse",
			input:   "ret # done\n\n   # nothing here\n\n@next",
			types:   []TokenType{TokenIdent, TokenNewline, TokenLabel, TokenEOF},
			lexemes: []string{"ret", "\n", "next", ""},
		},
		{
			name:    "address offset",
			input:   "$tab+8",
			types:   []TokenType{TokenGlobal, TokenPlus, TokenInteger, TokenEOF},
			lexemes: []string{"tab", "+", "8", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := scanAll(t, tt.input)
			assert.Equal(t, tt.types, types(tokens))
			for i, tok := range tokens {
				assert.Equal(t, tt.lexemes[i], tok.Lexeme, "token %d", i)
			}
		})
	}
}

func TestPositions(t *testing.T) {
	tokens := scanAll(t, "@start\n\t%x =w copy 1\n")
	require.Len(t, tokens, 9)

	assert.Equal(t, Position{Filename: "test.ssa", Line: 1, Column: 1, Offset: 0}, tokens[0].Position)
	assert.Equal(t, 6, tokens[0].Length)

	// The newline token sits at the end of the line it terminates.
	assert.Equal(t, 1, tokens[1].Position.Line)
	assert.Equal(t, 7, tokens[1].Position.Column)

	x := tokens[2]
	assert.Equal(t, "x", x.Lexeme)
	assert.Equal(t, 2, x.Position.Line)
	assert.Equal(t, 2, x.Position.Column)
	assert.Equal(t, 8, x.Position.Offset)
	assert.Equal(t, 2, x.Length)

	assert.Equal(t, "test.ssa:2:5", tokens[3].Position.String())
}

func TestSource(t *testing.T) {
	src := "type :p = { w, w }"
	l := New(src, "test.ssa")
	var last Token
	for {
		tok, err := l.NextToken()
		require.NoError(t, err)
		if tok.Type == TokenEOF {
			break
		}
		last = tok
	}
	assert.Equal(t, src, l.Source(0, last.Position.Offset+last.Length))
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"bare sigil", "% x", `test.ssa:1:1: expected a name after "%"`},
		{"unknown character", "add ;", `test.ssa:1:5: unexpected character: ';'`},
		{"unterminated string", "b \"abc\n", "test.ssa:1:3: unterminated string literal"},
		{"lone dot", ". ", "test.ssa:1:1: unexpected '.'"},
		{"float without digits", "s_x", "test.ssa:1:1: malformed floating point constant"},
		{"float bad exponent", "d_1e+", "test.ssa:1:1: malformed exponent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.input, "test.ssa")
			var err error
			var tok Token
			for {
				tok, err = l.NextToken()
				if err != nil || tok.Type == TokenEOF {
					break
				}
			}
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, TokenInvalid, tok.Type)

			var lexErr *Error
			require.ErrorAs(t, err, &lexErr)
			assert.Equal(t, 1, lexErr.Pos.Line)
		})
	}
}

func TestPosition(t *testing.T) {
	a := Position{Filename: "f", Line: 1, Column: 1, Offset: 0}
	b := Position{Filename: "f", Line: 2, Column: 3, Offset: 10}

	assert.True(t, a.IsValid())
	assert.False(t, Position{}.IsValid())
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.After(b))
	assert.Equal(t, "f:2:3", b.String())
}

func TestTokenString(t *testing.T) {
	assert.Equal(t, `temporary "x"`, Token{Type: TokenTemp, Lexeme: "x"}.String())
	assert.Equal(t, "newline", Token{Type: TokenNewline, Lexeme: "\n"}.String())
	assert.Equal(t, "end of file", TokenEOF.String())
	assert.Equal(t, "token(99)", TokenType(99).String())
}
