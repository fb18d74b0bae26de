package lexer

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Lexer performs lexical analysis on IL source, converting it into a stream of tokens.
//
// RESPONSIBILITIES:
// 1. Break source into tokens
// 2. Track position information for error reporting
// 3. Drop comments and horizontal whitespace
// 4. Keep newlines: the IL is line oriented, one statement per line
//
// The lexer does NOT know which words are ops or keywords; every bare word is
// a TokenIdent and the parser decides what it means.
type Lexer struct {
	// source is the complete input
	source string

	// filename is the name of the input (for error reporting)
	filename string

	// start is the byte offset of the token being scanned
	start int

	// current is the byte offset being examined
	current int

	// line is the current line number (1-based)
	line int

	// lineStart is the byte offset where the current line started
	lineStart int

	// startLine and startLineStart freeze the line of the token being scanned
	startLine      int
	startLineStart int
}

// New creates a new Lexer for the given source.
func New(source, filename string) *Lexer {
	return &Lexer{
		source:   source,
		filename: filename,
		line:     1,
	}
}

// NextToken returns the next token from the source.
//
// The parser calls this repeatedly until it gets TokenEOF. On a lexical error
// a TokenInvalid is returned together with a positioned error.
func (l *Lexer) NextToken() (Token, error) {
	l.skipBlanks()
	l.mark()

	if l.isAtEnd() {
		return l.makeToken(TokenEOF, ""), nil
	}

	ch, _ := l.advance()

	switch {
	case ch == '\n':
		l.newline()
		l.skipEmptyLines()
		return l.makeToken(TokenNewline, "\n"), nil

	case ch == '%':
		return l.scanName(TokenTemp)
	case ch == '$':
		return l.scanName(TokenGlobal)
	case ch == '@':
		return l.scanName(TokenLabel)
	case ch == ':':
		return l.scanName(TokenTypeName)

	case (ch == 's' || ch == 'd') && l.peek() == '_':
		l.advance()
		kind := TokenSingle
		if ch == 'd' {
			kind = TokenDouble
		}
		return l.scanFloat(kind)

	case isLetter(ch):
		return l.scanIdentifier(), nil

	case isDigit(ch), ch == '-' && isDigit(l.peek()):
		return l.scanInteger(), nil

	case ch == '"':
		return l.scanString()
	}

	switch ch {
	case '=':
		return l.makeToken(TokenAssign, "="), nil
	case ',':
		return l.makeToken(TokenComma, ","), nil
	case '(':
		return l.makeToken(TokenLParen, "("), nil
	case ')':
		return l.makeToken(TokenRParen, ")"), nil
	case '{':
		return l.makeToken(TokenLBrace, "{"), nil
	case '}':
		return l.makeToken(TokenRBrace, "}"), nil
	case '+':
		return l.makeToken(TokenPlus, "+"), nil
	case '.':
		if l.match('.') && l.match('.') {
			return l.makeToken(TokenEllipsis, "..."), nil
		}
		return l.makeToken(TokenInvalid, ""), l.error("unexpected '.'")
	default:
		return l.makeToken(TokenInvalid, ""),
			l.error(fmt.Sprintf("unexpected character: %q", ch))
	}
}

// Source returns the source text between two byte offsets.
// The parser uses it to keep data declarations verbatim.
func (l *Lexer) Source(from, to int) string {
	return l.source[from:to]
}

// advance reads and returns the next character, advancing the current position.
func (l *Lexer) advance() (rune, int) {
	if l.isAtEnd() {
		return 0, 0
	}
	ch, size := utf8.DecodeRuneInString(l.source[l.current:])
	l.current += size
	return ch, size
}

// peek returns the current character without advancing.
// Returns 0 if at end of file.
func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	ch, _ := utf8.DecodeRuneInString(l.source[l.current:])
	return ch
}

// match advances past the current character if it is expected.
func (l *Lexer) match(expected rune) bool {
	if l.peek() != expected || l.isAtEnd() {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) newline() {
	l.line++
	l.lineStart = l.current
}

// skipBlanks skips horizontal whitespace and a trailing comment.
// It stops in front of a newline.
func (l *Lexer) skipBlanks() {
	for !l.isAtEnd() {
		switch l.peek() {
		case ' ', '\t', '\r':
			l.advance()
		case '#':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// skipEmptyLines folds blank and comment-only lines into the newline just read.
func (l *Lexer) skipEmptyLines() {
	for {
		l.skipBlanks()
		if l.peek() != '\n' || l.isAtEnd() {
			return
		}
		l.advance()
		l.newline()
	}
}

// scanName scans the name following a sigil.
func (l *Lexer) scanName(kind TokenType) (Token, error) {
	nameStart := l.current
	for !l.isAtEnd() && isNameChar(l.peek()) {
		l.advance()
	}
	if l.current == nameStart {
		return l.makeToken(TokenInvalid, ""),
			l.error(fmt.Sprintf("expected a name after %q", l.source[l.start:nameStart]))
	}
	return l.makeToken(kind, l.source[nameStart:l.current]), nil
}

// scanIdentifier scans a bare word.
func (l *Lexer) scanIdentifier() Token {
	for !l.isAtEnd() && isNameChar(l.peek()) {
		l.advance()
	}
	return l.makeToken(TokenIdent, l.source[l.start:l.current])
}

// scanInteger scans a decimal integer; the sign was already consumed if present.
func (l *Lexer) scanInteger() Token {
	for !l.isAtEnd() && isDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(TokenInteger, l.source[l.start:l.current])
}

// scanFloat scans the number after an s_ or d_ prefix.
//
// SUPPORTED FORMATS: 1, -1, 1.5, 1e10, 2.5e-3
func (l *Lexer) scanFloat(kind TokenType) (Token, error) {
	numStart := l.current
	if l.peek() == '-' || l.peek() == '+' {
		l.advance()
	}
	digits := 0
	for !l.isAtEnd() && isDigit(l.peek()) {
		l.advance()
		digits++
	}
	if l.match('.') {
		for !l.isAtEnd() && isDigit(l.peek()) {
			l.advance()
			digits++
		}
	}
	if digits == 0 {
		return l.makeToken(TokenInvalid, ""), l.error("malformed floating point constant")
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()
		if l.peek() == '-' || l.peek() == '+' {
			l.advance()
		}
		if !isDigit(l.peek()) {
			return l.makeToken(TokenInvalid, ""), l.error("malformed exponent")
		}
		for !l.isAtEnd() && isDigit(l.peek()) {
			l.advance()
		}
	}
	return l.makeToken(kind, l.source[numStart:l.current]), nil
}

// scanString scans a string literal. Escapes are kept as written.
func (l *Lexer) scanString() (Token, error) {
	for !l.isAtEnd() {
		ch := l.peek()
		switch ch {
		case '"':
			l.advance()
			return l.makeToken(TokenString, l.source[l.start:l.current]), nil
		case '\n':
			return l.makeToken(TokenInvalid, ""), l.error("unterminated string literal")
		case '\\':
			l.advance()
			if !l.isAtEnd() {
				l.advance()
			}
		default:
			l.advance()
		}
	}
	return l.makeToken(TokenInvalid, ""), l.error("unterminated string literal")
}

// mark records the start of the next token.
func (l *Lexer) mark() {
	l.start = l.current
	l.startLine = l.line
	l.startLineStart = l.lineStart
}

// makeToken creates a token positioned at the start of the current scan.
func (l *Lexer) makeToken(tokenType TokenType, lexeme string) Token {
	return Token{
		Type:     tokenType,
		Lexeme:   lexeme,
		Position: l.tokenPosition(),
		Length:   l.current - l.start,
	}
}

func (l *Lexer) tokenPosition() Position {
	return Position{
		Filename: l.filename,
		Line:     l.startLine,
		Column:   utf8.RuneCountInString(l.source[l.startLineStart:l.start]) + 1,
		Offset:   l.start,
	}
}

// Error is a lexical error.
type Error struct {
	Pos     Position
	Message string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Message
}

// error creates an error at the start of the current token.
func (l *Lexer) error(message string) error {
	return &Error{Pos: l.tokenPosition(), Message: message}
}

// isLetter returns true if the rune is a letter or underscore.
func isLetter(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

// isDigit returns true for ASCII decimal digits.
func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// isNameChar returns true for runes allowed in names after the first.
func isNameChar(ch rune) bool {
	return isLetter(ch) || isDigit(ch) || ch == '.'
}
