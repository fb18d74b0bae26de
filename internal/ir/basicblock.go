package ir

// BlockID addresses a block in Function.Blocks.
type BlockID int

// NoBlock is the absent successor.
const NoBlock BlockID = -1

// Block is a basic block.
//
// WHAT IS A BASIC BLOCK?
// A straight-line code sequence with:
// - One entry point (control only enters at the top)
// - One exit point (the terminator)
// - Phi nodes at the top merging values from each predecessor
//
// Successors are stored as S1/S2. A jmp uses only S1, a jnz uses both
// (S1 when the condition is non-zero), a ret uses neither.
type Block struct {
	// ID is the index of this block in Function.Blocks
	ID BlockID

	// Name is the label without the '@' sigil
	Name string

	Phis []*Phi
	Ins  []Instr
	Jmp  Jump

	S1, S2 BlockID

	// Preds lists predecessor ids. Only valid after FillPreds.
	Preds []BlockID
}

// NewBlock creates an unterminated block.
func NewBlock(id BlockID, name string) *Block {
	return &Block{
		ID:   id,
		Name: name,
		S1:   NoBlock,
		S2:   NoBlock,
	}
}

// Succs returns the successors of b in S1, S2 order.
func (b *Block) Succs() []BlockID {
	switch {
	case b.S1 == NoBlock:
		return nil
	case b.S2 == NoBlock:
		return []BlockID{b.S1}
	default:
		return []BlockID{b.S1, b.S2}
	}
}

// IsBranch returns true if b chooses between two successors.
func (b *Block) IsBranch() bool {
	return b.S1 != NoBlock && b.S2 != NoBlock
}

// IsTerminated returns true if b has a terminator.
func (b *Block) IsTerminated() bool {
	return b.Jmp.Kind != JumpNone
}

// SetJmp terminates b with an unconditional jump to target.
func (b *Block) SetJmp(target BlockID) {
	b.Jmp = Jump{Kind: JumpJmp}
	b.S1 = target
	b.S2 = NoBlock
}

// Param is a function parameter. Parameters are defined on entry.
type Param struct {
	Class Class
	Tmp   int
}

// Function is one function definition.
//
// Blocks is an arena: Blocks[i].ID == i holds at all times, and Start names the
// entry block. FillRPO renumbers the arena in reverse postorder.
type Function struct {
	Name   string
	Export bool

	// RetClass is ClassNone for functions that return nothing
	RetClass Class

	Params   []Param
	Variadic bool

	Tmps   []Tmp
	Cons   []Const
	Blocks []*Block
	Start  BlockID
}

// NewFunction creates an empty function.
func NewFunction(name string) *Function {
	return &Function{
		Name:  name,
		Start: NoBlock,
	}
}

// Block returns the block with the given id.
func (f *Function) Block(id BlockID) *Block {
	return f.Blocks[id]
}

// AddBlock appends a new block to the arena.
func (f *Function) AddBlock(name string) *Block {
	b := NewBlock(BlockID(len(f.Blocks)), name)
	f.Blocks = append(f.Blocks, b)
	if f.Start == NoBlock {
		f.Start = b.ID
	}
	return b
}

// NewTmp creates a new temporary.
func (f *Function) NewTmp(name string, class Class) Ref {
	f.Tmps = append(f.Tmps, Tmp{Name: name, Class: class})
	return TmpRef(len(f.Tmps) - 1)
}

// NewCon interns a constant and returns a reference to it.
func (f *Function) NewCon(c Const) Ref {
	for i, existing := range f.Cons {
		if existing == c {
			return ConRef(i)
		}
	}
	f.Cons = append(f.Cons, c)
	return ConRef(len(f.Cons) - 1)
}

// IntCon interns an integer constant.
func (f *Function) IntCon(v int64) Ref {
	return f.NewCon(Const{Kind: ConstBits, Bits: v})
}

// IsParam returns true if temporary t is a function parameter.
func (f *Function) IsParam(t int) bool {
	for _, p := range f.Params {
		if p.Tmp == t {
			return true
		}
	}
	return false
}

// RefString formats r the way it is written in source.
func (f *Function) RefString(r Ref) string {
	switch r.Kind {
	case RefTmp:
		return "%" + f.Tmps[r.Val].Name
	case RefCon:
		return f.Cons[r.Val].String()
	default:
		return "R"
	}
}

// DeclKind tells data declarations from aggregate type declarations.
type DeclKind int

const (
	DeclData DeclKind = iota
	DeclType
)

// Decl is a non-function top-level declaration, kept as source text.
type Decl struct {
	Kind DeclKind
	Name string
	Text string
}

// Module is a whole parsed program.
type Module struct {
	Decls     []*Decl
	Functions []*Function
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

// AddFunction adds a function to the module.
func (m *Module) AddFunction(fn *Function) {
	m.Functions = append(m.Functions, fn)
}

// AddDecl adds a data or type declaration to the module.
func (m *Module) AddDecl(d *Decl) {
	m.Decls = append(m.Decls, d)
}
