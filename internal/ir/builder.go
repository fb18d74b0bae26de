package ir

import (
	"fmt"

	"github.com/Swordelf2/compprac2/internal/lexer"
	"github.com/Swordelf2/compprac2/internal/symtab"
)

// Builder constructs a Function block by block.
//
// It maintains:
// - The function being built and the current block
// - A function scope resolving @labels to block ids and %names to temporaries
// - The source position of the statement being built, for error messages
//
// Labels and temporaries may be used before they are defined. Finish reports
// labels that were jumped to but never placed.
//
// The parser drives a Builder while reading text; tests drive one directly:
//
//	b := NewBuilder("f", nil)
//	b.Label("start")
//	b.Assign("x", ClassW, OpAdd, b.Tmp("a"), b.Int(1))
//	b.Ret(b.Tmp("x"))
//	fn, errs := b.Finish()
type Builder struct {
	// fn is the function being built
	fn *Function

	// cur is the block receiving instructions, nil between a terminator and the next label
	cur *Block

	// scope resolves labels and temporaries
	scope *symtab.Scope

	// pos is the position of the statement being built
	pos lexer.Position

	// placed lists block ids in the order their labels appear
	placed []BlockID

	// errors accumulates build errors
	errors []error
}

// NewBuilder starts a new function. globals may be nil.
func NewBuilder(name string, globals *symtab.Scope) *Builder {
	return &Builder{
		fn:     NewFunction(name),
		scope:  symtab.NewScope(symtab.ScopeFunction, globals),
		errors: make([]error, 0),
	}
}

// Function returns the function under construction.
func (b *Builder) Function() *Function {
	return b.fn
}

// At sets the source position used for definitions and errors that follow.
func (b *Builder) At(pos lexer.Position) *Builder {
	b.pos = pos
	return b
}

// Param declares a parameter.
func (b *Builder) Param(class Class, name string) Ref {
	r := b.define(name, class)
	if r.IsTmp() {
		b.fn.Params = append(b.fn.Params, Param{Class: class, Tmp: r.Val})
	}
	return r
}

// block returns the id of label name, allocating the block on first mention.
func (b *Builder) block(name string) BlockID {
	sym := b.scope.Reference(symtab.SymbolLabel, name, b.pos)
	if sym.Index < 0 {
		sym.Index = int(b.fn.AddBlock(name).ID)
	}
	return BlockID(sym.Index)
}

// Label places label name and makes it the current block.
//
// If the previous block was left without a terminator it falls through to
// this one.
func (b *Builder) Label(name string) BlockID {
	sym, err := b.scope.Define(symtab.SymbolLabel, name, b.pos)
	if err != nil {
		b.error(err.Error())
	}
	if sym.Index < 0 {
		sym.Index = int(b.fn.AddBlock(name).ID)
	}
	id := BlockID(sym.Index)
	if err != nil {
		return id
	}

	if b.cur != nil && !b.cur.IsTerminated() {
		b.cur.SetJmp(id)
	}
	b.cur = b.fn.Blocks[id]
	b.placed = append(b.placed, id)
	return id
}

// Tmp returns the temporary named name, creating it on first mention.
func (b *Builder) Tmp(name string) Ref {
	sym := b.scope.Reference(symtab.SymbolTemp, name, b.pos)
	if sym.Index < 0 {
		sym.Index = b.fn.NewTmp(name, ClassNone).Val
	}
	return TmpRef(sym.Index)
}

// define resolves name as a definition of class. The name is not checked for
// a previous definition: single assignment is enforced by the optimizer.
func (b *Builder) define(name string, class Class) Ref {
	r := b.Tmp(name)
	sym := b.scope.LookupLocal(symtab.SymbolTemp, name)
	if !sym.Defined {
		sym.Defined = true
		sym.Pos = b.pos
	}
	if b.fn.Tmps[r.Val].Class == ClassNone {
		b.fn.Tmps[r.Val].Class = class
	}
	return r
}

// Int returns an integer constant.
func (b *Builder) Int(v int64) Ref {
	return b.fn.IntCon(v)
}

// Addr returns the address of global name.
func (b *Builder) Addr(name string) Ref {
	return b.fn.NewCon(Const{Kind: ConstAddr, Label: name})
}

// Float returns a single (ClassS) or double (ClassD) constant.
func (b *Builder) Float(class Class, v float64) Ref {
	if class == ClassS {
		return b.fn.NewCon(Const{Kind: ConstSingle, Float: v})
	}
	return b.fn.NewCon(Const{Kind: ConstDouble, Float: v})
}

// current returns the block receiving code, reporting code after a terminator.
func (b *Builder) current() *Block {
	if b.cur == nil {
		b.error("instruction outside of a block")
		// Keep going on a detached block so the caller can report more errors.
		b.cur = NewBlock(NoBlock, "")
	}
	return b.cur
}

// Emit appends an instruction.
func (b *Builder) Emit(op Op, class Class, to Ref, args ...Ref) {
	blk := b.current()
	if blk.IsTerminated() {
		b.error("instruction after terminator")
		return
	}
	ins := Instr{Op: op, Class: class, To: to}
	copy(ins.Args[:], args)
	blk.Ins = append(blk.Ins, ins)
}

// Assign emits %name =class op args and returns %name.
func (b *Builder) Assign(name string, class Class, op Op, args ...Ref) Ref {
	to := b.define(name, class)
	b.Emit(op, class, to, args...)
	return to
}

// Store emits a store of val to addr.
func (b *Builder) Store(op Op, val, addr Ref) {
	b.Emit(op, ClassNone, R, val, addr)
}

// CallArg is one argument of a call site.
type CallArg struct {
	Class Class
	Value Ref
}

// Call emits a call site: an arg per argument, an argv marker at variadic
// (when variadic >= 0, the index of the first variadic argument), then the
// call itself. result is the name of the returned temporary, "" for none.
func (b *Builder) Call(result string, class Class, callee Ref, args []CallArg, variadic int) Ref {
	for i, a := range args {
		if i == variadic {
			b.Emit(OpArgV, ClassNone, R)
		}
		b.Emit(OpArg, a.Class, R, a.Value)
	}
	op := OpCall
	if variadic >= 0 {
		op = OpVACall
		if variadic >= len(args) {
			b.Emit(OpArgV, ClassNone, R)
		}
	}
	to := R
	if result != "" {
		to = b.define(result, class)
	} else {
		class = ClassNone
	}
	b.Emit(op, class, to, callee)
	return to
}

// PhiArg is one incoming value of a phi.
type PhiArg struct {
	Label string
	Value Ref
}

// Phi emits %name =class phi and returns %name.
func (b *Builder) Phi(name string, class Class, incoming ...PhiArg) Ref {
	blk := b.current()
	if len(blk.Ins) > 0 || blk.IsTerminated() {
		b.error("phi after instructions")
	}
	to := b.define(name, class)
	phi := &Phi{To: to, Class: class}
	for _, in := range incoming {
		phi.Args = append(phi.Args, in.Value)
		phi.Blocks = append(phi.Blocks, b.block(in.Label))
	}
	blk.Phis = append(blk.Phis, phi)
	return to
}

// Jmp terminates the current block with a jump to label.
func (b *Builder) Jmp(label string) {
	target := b.block(label)
	b.terminate(Jump{Kind: JumpJmp}, target, NoBlock)
}

// Jnz terminates the current block with a conditional branch.
func (b *Builder) Jnz(cond Ref, ifTrue, ifFalse string) {
	s1 := b.block(ifTrue)
	s2 := b.block(ifFalse)
	b.terminate(Jump{Kind: JumpJnz, Arg: cond}, s1, s2)
}

// Ret terminates the current block with a return of v.
func (b *Builder) Ret(v Ref) {
	b.terminate(Jump{Kind: JumpRet, Arg: v}, NoBlock, NoBlock)
}

// Ret0 terminates the current block with a return without value.
func (b *Builder) Ret0() {
	b.terminate(Jump{Kind: JumpRet0}, NoBlock, NoBlock)
}

func (b *Builder) terminate(j Jump, s1, s2 BlockID) {
	blk := b.current()
	if blk.IsTerminated() {
		b.error("block already terminated")
		return
	}
	blk.Jmp = j
	blk.S1 = s1
	blk.S2 = s2
	b.cur = nil
}

// Finish completes the function: checks every label was placed, that the last
// block is terminated, and fills the predecessor lists.
//
// Returns the function and every error found while building it.
func (b *Builder) Finish() (*Function, []error) {
	if b.cur != nil && !b.cur.IsTerminated() {
		b.error(fmt.Sprintf("last block @%s of function $%s has no terminator", b.cur.Name, b.fn.Name))
	}
	for _, sym := range b.scope.Undefined(symtab.SymbolLabel) {
		b.errors = append(b.errors, fmt.Errorf("%s: undefined label @%s", sym.Pos, sym.Name))
	}
	if len(b.fn.Blocks) == 0 {
		b.error(fmt.Sprintf("function $%s has no blocks", b.fn.Name))
	}
	if len(b.errors) == 0 {
		b.renumber()
		FillPreds(b.fn)
	}
	return b.fn, b.errors
}

// renumber orders the arena by label placement. Blocks are allocated on
// first mention, which for forward jumps precedes their placement.
func (b *Builder) renumber() {
	remap := make([]BlockID, len(b.fn.Blocks))
	blocks := make([]*Block, len(b.placed))
	for i, old := range b.placed {
		remap[old] = BlockID(i)
		blocks[i] = b.fn.Blocks[old]
	}
	for i, blk := range blocks {
		blk.ID = BlockID(i)
		if blk.S1 != NoBlock {
			blk.S1 = remap[blk.S1]
		}
		if blk.S2 != NoBlock {
			blk.S2 = remap[blk.S2]
		}
		for _, p := range blk.Phis {
			for j, from := range p.Blocks {
				p.Blocks[j] = remap[from]
			}
		}
	}
	b.fn.Blocks = blocks
	b.fn.Start = 0
}

// error records a build error at the current position.
func (b *Builder) error(message string) {
	b.errors = append(b.errors, fmt.Errorf("%s: %s", b.pos, message))
}
