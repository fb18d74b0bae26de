// Package parser implements a recursive descent parser for the textual IL.
//
// PARSING STRATEGY:
// The IL is line oriented: every statement fits on one line and starts with a
// token that tells what it is (a label, a temporary being defined, or an
// instruction name). One token of lookahead is enough everywhere, so the
// parser is a plain recursive descent over the token stream.
//
// The parser does not build a syntax tree. It drives an ir.Builder, so each
// function comes out as a control-flow graph ready for the optimizer, and is
// handed to a Handler as soon as its closing brace is read. Data and type
// declarations are passed through as source text.
//
// ERROR HANDLING STRATEGY:
// - The first error stops parsing: a malformed program is rejected as a whole
// - Errors carry a file:line:column position
// - Deep parse routines bail out with panic; Parse recovers and returns the error
package parser

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Swordelf2/compprac2/internal/ir"
	"github.com/Swordelf2/compprac2/internal/lexer"
	"github.com/Swordelf2/compprac2/internal/symtab"
)

// Handler receives the top-level items of a program in source order.
type Handler interface {
	// Data is called for every data and type declaration.
	Data(d *ir.Decl) error

	// Func is called once per function, after its CFG has been built.
	Func(fn *ir.Function) error
}

// Error is a syntax error.
type Error struct {
	Pos     lexer.Position
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// Parser reads one program.
type Parser struct {
	// lexer is the source of tokens
	lexer *lexer.Lexer

	// current is the token we're currently examining
	current lexer.Token

	// previous is the last token we consumed
	previous lexer.Token

	// globals holds functions, data and types of the whole program
	globals *symtab.Scope

	// handler receives functions and declarations
	handler Handler

	// err is the first error encountered
	err error
}

// New creates a new parser for the given lexer.
func New(l *lexer.Lexer, h Handler) *Parser {
	return &Parser{
		lexer:   l,
		globals: symtab.NewScope(symtab.ScopeGlobal, nil),
		handler: h,
	}
}

// Parse reads a whole program from r and feeds it to h.
//
// name is used in positions of error messages. The first syntax error, build
// error or handler error stops parsing and is returned.
func Parse(r io.Reader, name string, h Handler) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return New(lexer.New(string(src), name), h).ParseProgram()
}

// ParseProgram parses items until the end of input.
//
// GRAMMAR:
//
//	program = { newline | data | type | function } EOF
func (p *Parser) ParseProgram() (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			err = p.err
		}
	}()

	p.advance()
	for !p.isAtEnd() {
		if p.match(lexer.TokenNewline) {
			continue
		}
		p.parseItem()
	}
	return nil
}

// parseItem parses one top-level item.
//
// GRAMMAR:
//
//	item = ["export"] ( "data" dataDef | "function" funcDef ) | "type" typeDef
func (p *Parser) parseItem() {
	start := p.current
	export := p.matchKeyword("export")

	switch {
	case p.matchKeyword("data"):
		p.parseData(start)
	case p.matchKeyword("function"):
		p.parseFunction(start, export)
	case !export && p.matchKeyword("type"):
		p.parseType(start)
	default:
		p.error(fmt.Sprintf("expected data, type or function, got %s", p.current))
	}
}

// parseData parses a data definition, keeping its text verbatim.
//
// GRAMMAR:
//
//	dataDef = $name "=" ["align" int] "{" items "}"
func (p *Parser) parseData(start lexer.Token) {
	name := p.consume(lexer.TokenGlobal, "expected data name")
	p.define(symtab.SymbolData, name)
	p.consume(lexer.TokenAssign, "expected '=' after data name")
	if p.matchKeyword("align") {
		p.consume(lexer.TokenInteger, "expected alignment")
	}
	end := p.skipBraced()
	p.emitDecl(ir.DeclData, name.Lexeme, start, end)
}

// parseType parses an aggregate type definition, keeping its text verbatim.
//
// GRAMMAR:
//
//	typeDef = :name "=" ["align" int] ( "{" fields "}" | "{" int "}" )
func (p *Parser) parseType(start lexer.Token) {
	name := p.consume(lexer.TokenTypeName, "expected type name")
	p.define(symtab.SymbolType, name)
	p.consume(lexer.TokenAssign, "expected '=' after type name")
	if p.matchKeyword("align") {
		p.consume(lexer.TokenInteger, "expected alignment")
	}
	end := p.skipBraced()
	p.emitDecl(ir.DeclType, name.Lexeme, start, end)
}

// skipBraced consumes a balanced { ... } group and returns its closing brace.
// Newlines inside the group are allowed.
func (p *Parser) skipBraced() lexer.Token {
	p.consume(lexer.TokenLBrace, "expected '{'")
	depth := 1
	for {
		switch {
		case p.isAtEnd():
			p.error("unterminated '{'")
		case p.match(lexer.TokenLBrace):
			depth++
		case p.match(lexer.TokenRBrace):
			depth--
			if depth == 0 {
				return p.previous
			}
		default:
			p.advance()
		}
	}
}

func (p *Parser) emitDecl(kind ir.DeclKind, name string, start, end lexer.Token) {
	text := p.lexer.Source(start.Position.Offset, end.Position.Offset+end.Length)
	if err := p.handler.Data(&ir.Decl{Kind: kind, Name: name, Text: text}); err != nil {
		p.fail(err)
	}
}

// parseFunction parses a function definition and hands its CFG to the handler.
//
// GRAMMAR:
//
//	funcDef = [class] $name "(" [params] ")" [newline] "{" newline { stmt } "}"
//	params  = param { "," param } [ "," "..." ] | "..."
//	param   = class %name
func (p *Parser) parseFunction(start lexer.Token, export bool) {
	retClass := ir.ClassNone
	if p.check(lexer.TokenIdent) {
		retClass = p.parseClass()
	}
	name := p.consume(lexer.TokenGlobal, "expected function name")
	p.define(symtab.SymbolFunction, name)

	b := ir.NewBuilder(name.Lexeme, p.globals)
	b.At(start.Position)
	fn := b.Function()
	fn.Export = export
	fn.RetClass = retClass

	p.consume(lexer.TokenLParen, "expected '(' after function name")
	if !p.check(lexer.TokenRParen) {
		for {
			if p.match(lexer.TokenEllipsis) {
				fn.Variadic = true
				break
			}
			class := p.parseClass()
			tmp := p.consume(lexer.TokenTemp, "expected parameter name")
			b.At(tmp.Position).Param(class, tmp.Lexeme)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expected ')' after parameters")
	p.match(lexer.TokenNewline)
	p.consume(lexer.TokenLBrace, "expected '{' to open function body")
	p.consume(lexer.TokenNewline, "expected newline after '{'")

	for !p.check(lexer.TokenRBrace) {
		if p.isAtEnd() {
			p.error(fmt.Sprintf("unexpected end of file in function $%s", name.Lexeme))
		}
		p.parseStmt(b)
	}
	p.advance()

	fn, errs := b.Finish()
	if len(errs) > 0 {
		p.fail(errs[0])
	}
	if err := p.handler.Func(fn); err != nil {
		p.fail(err)
	}
}

// parseStmt parses one line of a function body.
//
// GRAMMAR:
//
//	stmt = @label
//	     | %tmp "=" class op [args]
//	     | "call" callee "(" [callArgs] ")"
//	     | storeOp value "," value
//	     | "jmp" @label | "jnz" value "," @label "," @label | "ret" [value]
func (p *Parser) parseStmt(b *ir.Builder) {
	b.At(p.current.Position)

	switch {
	case p.match(lexer.TokenLabel):
		b.Label(p.previous.Lexeme)

	case p.match(lexer.TokenTemp):
		p.parseAssign(b, p.previous)

	case p.check(lexer.TokenIdent):
		p.parseEffect(b)

	default:
		p.error(fmt.Sprintf("expected label or instruction, got %s", p.current))
	}

	p.endStmt()
}

// parseAssign parses the rest of %name =class op args.
func (p *Parser) parseAssign(b *ir.Builder, to lexer.Token) {
	p.consume(lexer.TokenAssign, "expected '=' after temporary")
	class := p.parseClass()
	opTok := p.consume(lexer.TokenIdent, "expected instruction")

	switch opTok.Lexeme {
	case "phi":
		p.parsePhi(b, to.Lexeme, class)
		return
	case "call":
		p.parseCall(b, to.Lexeme, class)
		return
	}

	op, ok := ir.LookupOp(opTok.Lexeme)
	if !ok || ir.IsStore(op) {
		p.errorAt(opTok, fmt.Sprintf("unknown instruction %q", opTok.Lexeme))
	}
	// loadw into a long sign-extends the word.
	if opTok.Lexeme == "loadw" && class == ir.ClassL {
		op = ir.OpLoadSW
	}
	args := p.parseArgs(b, ir.NumArgs(op))
	b.Assign(to.Lexeme, class, op, args...)
}

// parseEffect parses an instruction without result or a terminator.
func (p *Parser) parseEffect(b *ir.Builder) {
	tok := p.current
	p.advance()

	switch tok.Lexeme {
	case "jmp":
		b.Jmp(p.consume(lexer.TokenLabel, "expected jump target").Lexeme)

	case "jnz":
		cond := p.parseValue(b)
		p.consume(lexer.TokenComma, "expected ',' after condition")
		ifTrue := p.consume(lexer.TokenLabel, "expected branch target").Lexeme
		p.consume(lexer.TokenComma, "expected ',' between branch targets")
		ifFalse := p.consume(lexer.TokenLabel, "expected branch target").Lexeme
		b.Jnz(cond, ifTrue, ifFalse)

	case "ret":
		if p.check(lexer.TokenNewline) {
			b.Ret0()
		} else {
			b.Ret(p.parseValue(b))
		}

	case "call":
		p.parseCall(b, "", ir.ClassNone)

	default:
		op, ok := ir.LookupOp(tok.Lexeme)
		if !ok || !ir.IsStore(op) {
			p.errorAt(tok, fmt.Sprintf("unknown instruction %q", tok.Lexeme))
		}
		args := p.parseArgs(b, 2)
		b.Store(op, args[0], args[1])
	}
}

// parsePhi parses the arguments of a phi.
//
// GRAMMAR:
//
//	phiArgs = @label value { "," @label value }
func (p *Parser) parsePhi(b *ir.Builder, name string, class ir.Class) {
	var incoming []ir.PhiArg
	for {
		label := p.consume(lexer.TokenLabel, "expected incoming block of phi")
		incoming = append(incoming, ir.PhiArg{Label: label.Lexeme, Value: p.parseValue(b)})
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	b.Phi(name, class, incoming...)
}

// parseCall parses a call site.
//
// GRAMMAR:
//
//	call     = value "(" [callArg { "," callArg }] ")"
//	callArg  = class value | "..."
func (p *Parser) parseCall(b *ir.Builder, result string, class ir.Class) {
	callee := p.parseValue(b)
	p.consume(lexer.TokenLParen, "expected '(' after callee")

	var args []ir.CallArg
	variadic := -1
	if !p.check(lexer.TokenRParen) {
		for {
			if p.match(lexer.TokenEllipsis) {
				if variadic >= 0 {
					p.errorAt(p.previous, "'...' given twice")
				}
				variadic = len(args)
			} else {
				argClass := p.parseClass()
				args = append(args, ir.CallArg{Class: argClass, Value: p.parseValue(b)})
			}
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "expected ')' after call arguments")
	b.Call(result, class, callee, args, variadic)
}

// parseArgs parses n comma separated values.
func (p *Parser) parseArgs(b *ir.Builder, n int) []ir.Ref {
	args := make([]ir.Ref, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			p.consume(lexer.TokenComma, "expected ','")
		}
		args = append(args, p.parseValue(b))
	}
	return args
}

// parseValue parses an operand.
//
// GRAMMAR:
//
//	value = %tmp | $global | integer | s_float | d_float
func (p *Parser) parseValue(b *ir.Builder) ir.Ref {
	tok := p.current
	switch tok.Type {
	case lexer.TokenTemp:
		p.advance()
		return b.Tmp(tok.Lexeme)
	case lexer.TokenGlobal:
		p.advance()
		return b.Addr(tok.Lexeme)
	case lexer.TokenInteger:
		p.advance()
		v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
		if err != nil {
			// Unsigned 64-bit constants wrap around, as in two's complement.
			u, uerr := strconv.ParseUint(tok.Lexeme, 10, 64)
			if uerr != nil {
				p.errorAt(tok, fmt.Sprintf("integer constant %s out of range", tok.Lexeme))
			}
			v = int64(u)
		}
		return b.Int(v)
	case lexer.TokenSingle, lexer.TokenDouble:
		p.advance()
		class, bits := ir.ClassD, 64
		if tok.Type == lexer.TokenSingle {
			class, bits = ir.ClassS, 32
		}
		v, err := strconv.ParseFloat(tok.Lexeme, bits)
		if err != nil {
			p.errorAt(tok, fmt.Sprintf("bad floating point constant %s", tok.Lexeme))
		}
		return b.Float(class, v)
	default:
		p.error(fmt.Sprintf("expected value, got %s", tok))
		return ir.R
	}
}

// parseClass parses one of the base classes w, l, s, d.
func (p *Parser) parseClass() ir.Class {
	tok := p.current
	if tok.Type == lexer.TokenIdent {
		if class, ok := ir.ParseClass(tok.Lexeme); ok {
			p.advance()
			return class
		}
	}
	p.error(fmt.Sprintf("expected class (w, l, s or d), got %s", tok))
	return ir.ClassNone
}

// endStmt requires the end of a line, or the closing brace of the function.
func (p *Parser) endStmt() {
	if p.check(lexer.TokenRBrace) {
		return
	}
	p.consume(lexer.TokenNewline, fmt.Sprintf("expected end of line, got %s", p.current))
}

// define records a global, rejecting duplicates.
func (p *Parser) define(kind symtab.SymbolKind, name lexer.Token) {
	if _, err := p.globals.Define(kind, name.Lexeme, name.Position); err != nil {
		p.errorAt(name, err.Error())
	}
}

func (p *Parser) advance() {
	p.previous = p.current
	token, err := p.lexer.NextToken()
	if err != nil {
		p.fail(err)
	}
	p.current = token
}

func (p *Parser) check(tokenType lexer.TokenType) bool {
	return p.current.Type == tokenType
}

func (p *Parser) match(tokenTypes ...lexer.TokenType) bool {
	for _, tokenType := range tokenTypes {
		if p.check(tokenType) {
			p.advance()
			return true
		}
	}
	return false
}

// matchKeyword consumes the bare word kw if it comes next.
func (p *Parser) matchKeyword(kw string) bool {
	if p.current.Type == lexer.TokenIdent && p.current.Lexeme == kw {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(tokenType lexer.TokenType, message string) lexer.Token {
	if p.check(tokenType) {
		p.advance()
		return p.previous
	}
	p.error(message)
	return lexer.Token{}
}

func (p *Parser) isAtEnd() bool {
	return p.current.Type == lexer.TokenEOF
}

// error stops parsing with an error at the current token.
func (p *Parser) error(message string) {
	p.errorAt(p.current, message)
}

func (p *Parser) errorAt(tok lexer.Token, message string) {
	p.fail(&Error{Pos: tok.Position, Message: message})
}

func (p *Parser) fail(err error) {
	p.err = err
	panic(bailout{})
}
