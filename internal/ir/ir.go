// Package ir implements the SSA intermediate representation consumed by the optimizer.
//
// WHAT IS THIS IR?
// A function is a control-flow graph of basic blocks. Every block holds:
// 1. A list of phi nodes (SSA merges)
// 2. A list of straight-line instructions
// 3. One terminator: jmp, jnz (two successors) or ret
//
// Blocks live in an arena (Function.Blocks) and are addressed by small integer
// identifiers. Every edge in the graph (successors, predecessors, phi incoming
// blocks) is stored as a BlockID, never as a pointer, so blocks can be rewritten,
// renumbered and dropped without dangling references.
//
// Values are SSA temporaries (Tmp) or constants (Const). Instructions, phis and
// terminators refer to them through a Ref.
//
// EXAMPLE:
//
//	@start
//		%c =w csltw %a, 10
//		jnz %c, @yes, @join
//	@yes
//		%x =w add %a, 1
//	@join
//		%y =w phi @start 0, @yes %x
//		ret %y
package ir

import (
	"fmt"
	"strconv"
)

// Class is the machine class of a value: word, long, single or double.
type Class int

const (
	ClassNone Class = iota // no result
	ClassW                 // 32-bit integer
	ClassL                 // 64-bit integer
	ClassS                 // 32-bit float
	ClassD                 // 64-bit float
)

func (c Class) String() string {
	switch c {
	case ClassW:
		return "w"
	case ClassL:
		return "l"
	case ClassS:
		return "s"
	case ClassD:
		return "d"
	default:
		return ""
	}
}

// ParseClass returns the class named by s.
func ParseClass(s string) (Class, bool) {
	switch s {
	case "w":
		return ClassW, true
	case "l":
		return ClassL, true
	case "s":
		return ClassS, true
	case "d":
		return ClassD, true
	default:
		return ClassNone, false
	}
}

// RefKind tells what a Ref points at.
type RefKind uint8

const (
	RefNone RefKind = iota // empty operand
	RefTmp                 // Val indexes Function.Tmps
	RefCon                 // Val indexes Function.Cons
)

// Ref is an operand: a temporary, a constant, or nothing.
//
// Refs are plain values so they can be compared with == and used as map keys.
type Ref struct {
	Kind RefKind
	Val  int
}

// R is the empty reference.
var R = Ref{}

// TmpRef returns a reference to temporary i.
func TmpRef(i int) Ref { return Ref{Kind: RefTmp, Val: i} }

// ConRef returns a reference to constant i.
func ConRef(i int) Ref { return Ref{Kind: RefCon, Val: i} }

// IsTmp returns true if r names a temporary.
func (r Ref) IsTmp() bool { return r.Kind == RefTmp }

// IsNone returns true if r is the empty reference.
func (r Ref) IsNone() bool { return r.Kind == RefNone }

// ConstKind distinguishes integer, address and floating point constants.
type ConstKind int

const (
	ConstBits ConstKind = iota
	ConstAddr
	ConstSingle
	ConstDouble
)

// Const is a literal operand.
type Const struct {
	Kind  ConstKind
	Bits  int64   // ConstBits
	Float float64 // ConstSingle, ConstDouble
	Label string  // ConstAddr, without the '$' sigil
}

func (c Const) String() string {
	switch c.Kind {
	case ConstAddr:
		return "$" + c.Label
	case ConstSingle:
		return "s_" + strconv.FormatFloat(c.Float, 'g', -1, 32)
	case ConstDouble:
		return "d_" + strconv.FormatFloat(c.Float, 'g', -1, 64)
	default:
		return strconv.FormatInt(c.Bits, 10)
	}
}

// Tmp is an SSA temporary.
type Tmp struct {
	// Name is the source name without the '%' sigil
	Name string

	// Class is the class the temporary was defined with
	Class Class

	// Uses lists every site reading this temporary.
	// Only valid after FillUses.
	Uses []Use
}

// Instr is a straight-line instruction: To = Op Args[0], Args[1].
//
// Instructions are stored by value in Block.Ins so that a Use can identify one
// by its index. Removing an instruction turns it into a nop in place.
type Instr struct {
	Op    Op
	Class Class
	To    Ref
	Args  [2]Ref
}

// IsNop returns true for an instruction that does nothing.
func (i *Instr) IsNop() bool { return i.Op == OpNop }

// Phi merges one value per predecessor.
//
// Args[i] flows in from block Blocks[i].
type Phi struct {
	To     Ref
	Class  Class
	Args   []Ref
	Blocks []BlockID
}

// ArgFor returns the argument flowing in from block b.
func (p *Phi) ArgFor(b BlockID) (Ref, bool) {
	for i, blk := range p.Blocks {
		if blk == b {
			return p.Args[i], true
		}
	}
	return R, false
}

// JumpKind is the kind of block terminator.
type JumpKind int

const (
	JumpNone JumpKind = iota // not terminated yet
	JumpRet0                 // ret
	JumpRet                  // ret value
	JumpJmp                  // jmp S1
	JumpJnz                  // jnz Arg, S1, S2
)

func (k JumpKind) String() string {
	switch k {
	case JumpRet0, JumpRet:
		return "ret"
	case JumpJmp:
		return "jmp"
	case JumpJnz:
		return "jnz"
	default:
		return "<none>"
	}
}

// Jump is a block terminator. Arg is the jnz condition or the returned value.
type Jump struct {
	Kind JumpKind
	Arg  Ref
}

// IsRet reports whether a terminator of kind k leaves the function.
func IsRet(k JumpKind) bool {
	return k == JumpRet0 || k == JumpRet
}

// UseKind tells which part of a block a Use designates.
type UseKind uint8

const (
	UsePhi UseKind = iota // Block.Phis[Index]
	UseIns                // Block.Ins[Index]
	UseJmp                // Block.Jmp, Index is always 0
)

func (k UseKind) String() string {
	switch k {
	case UsePhi:
		return "phi"
	case UseIns:
		return "ins"
	case UseJmp:
		return "jmp"
	default:
		return "?"
	}
}

// Use identifies one site in a function: a phi, an instruction or a terminator.
//
// It is a comparable value so it can key maps directly.
type Use struct {
	Block BlockID
	Kind  UseKind
	Index int
}

// PhiUse returns the Use of phi i in block b.
func PhiUse(b BlockID, i int) Use { return Use{Block: b, Kind: UsePhi, Index: i} }

// InsUse returns the Use of instruction i in block b.
func InsUse(b BlockID, i int) Use { return Use{Block: b, Kind: UseIns, Index: i} }

// JmpUse returns the Use of the terminator of block b.
func JmpUse(b BlockID) Use { return Use{Block: b, Kind: UseJmp} }

func (u Use) String() string {
	if u.Kind == UseJmp {
		return fmt.Sprintf("b%d.jmp", u.Block)
	}
	return fmt.Sprintf("b%d.%s%d", u.Block, u.Kind, u.Index)
}
