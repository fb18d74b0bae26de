package ir

import "fmt"

// FillPreds recomputes every block's predecessor list from the successor links.
//
// Predecessors are listed in block order. A jnz whose two targets coincide
// contributes one edge.
func FillPreds(f *Function) {
	for _, b := range f.Blocks {
		b.Preds = b.Preds[:0]
	}
	for _, b := range f.Blocks {
		for i, s := range b.Succs() {
			if i == 1 && s == b.S1 {
				continue
			}
			succ := f.Blocks[s]
			succ.Preds = append(succ.Preds, b.ID)
		}
	}
}

// FillRPO renumbers the blocks of f in reverse postorder from the entry block.
//
// ALGORITHM:
// 1. Depth-first walk over successor edges from Start, using an explicit stack
// 2. Blocks never reached are dropped from the arena
// 3. Survivors get new ids (their rpo index); every successor and phi
//    incoming block is remapped
// 4. Predecessors are recomputed and phi arguments arriving over edges that
//    no longer exist are pruned
//
// Returns the number of blocks dropped.
func FillRPO(f *Function) int {
	n := len(f.Blocks)
	if n == 0 || f.Start == NoBlock {
		return 0
	}

	post := Postorder(n, f.Start, func(b BlockID) []BlockID {
		return f.Blocks[b].Succs()
	})

	remap := make([]BlockID, n)
	for i := range remap {
		remap[i] = NoBlock
	}
	blocks := make([]*Block, len(post))
	for i := range post {
		old := post[len(post)-1-i]
		remap[old] = BlockID(i)
		blocks[i] = f.Blocks[old]
	}

	for i, b := range blocks {
		b.ID = BlockID(i)
		if b.S1 != NoBlock {
			b.S1 = remap[b.S1]
		}
		if b.S2 != NoBlock {
			b.S2 = remap[b.S2]
		}
		for _, p := range b.Phis {
			for j, from := range p.Blocks {
				p.Blocks[j] = remap[from]
			}
		}
	}

	f.Blocks = blocks
	f.Start = 0
	FillPreds(f)
	prunePhis(f)
	return n - len(blocks)
}

// Postorder walks the graph of n nodes from root along next and returns the
// nodes in postorder. The walk keeps its own stack, so its depth is bounded
// by memory rather than by the goroutine stack.
func Postorder(n int, root BlockID, next func(BlockID) []BlockID) []BlockID {
	type frame struct {
		b    BlockID
		edge int
	}

	visited := make([]bool, n)
	order := make([]BlockID, 0, n)
	stack := []frame{{b: root}}
	visited[root] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := next(top.b)
		if top.edge < len(edges) {
			s := edges[top.edge]
			top.edge++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{b: s})
			}
			continue
		}
		order = append(order, top.b)
		stack = stack[:len(stack)-1]
	}
	return order
}

// prunePhis drops phi arguments whose incoming block is not a predecessor.
func prunePhis(f *Function) {
	for _, b := range f.Blocks {
		for _, p := range b.Phis {
			args := p.Args[:0]
			blocks := p.Blocks[:0]
			for i, from := range p.Blocks {
				if from != NoBlock && containsBlock(b.Preds, from) {
					args = append(args, p.Args[i])
					blocks = append(blocks, from)
				}
			}
			p.Args = args
			p.Blocks = blocks
		}
	}
}

func containsBlock(list []BlockID, b BlockID) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

// FillUses records, for every temporary, the sites that read it.
func FillUses(f *Function) {
	for i := range f.Tmps {
		f.Tmps[i].Uses = f.Tmps[i].Uses[:0]
	}
	add := func(r Ref, u Use) {
		if r.IsTmp() {
			f.Tmps[r.Val].Uses = append(f.Tmps[r.Val].Uses, u)
		}
	}
	for _, b := range f.Blocks {
		for i, p := range b.Phis {
			for _, a := range p.Args {
				add(a, PhiUse(b.ID, i))
			}
		}
		for i := range b.Ins {
			for _, a := range b.Ins[i].Args {
				add(a, InsUse(b.ID, i))
			}
		}
		add(b.Jmp.Arg, JmpUse(b.ID))
	}
}

// Verify checks that f is a well-formed CFG.
// Returns a list of errors found.
//
// CHECKS:
// - Arena ids match positions and Start is valid
// - Every block has a terminator consistent with its successors
// - Successors are in range
// - Every phi has one argument per predecessor, from that predecessor
//
// Single assignment is not checked here; the dead code pass owns that.
func (f *Function) Verify() []error {
	errs := make([]error, 0)

	if len(f.Blocks) == 0 {
		return append(errs, fmt.Errorf("function $%s has no blocks", f.Name))
	}
	if f.Start < 0 || int(f.Start) >= len(f.Blocks) {
		errs = append(errs, fmt.Errorf("function $%s: start block %d out of range", f.Name, f.Start))
	}

	inRange := func(id BlockID) bool {
		return id >= 0 && int(id) < len(f.Blocks)
	}

	for i, b := range f.Blocks {
		if b.ID != BlockID(i) {
			errs = append(errs, fmt.Errorf("block @%s in function $%s has id %d at index %d",
				b.Name, f.Name, b.ID, i))
		}

		switch b.Jmp.Kind {
		case JumpNone:
			errs = append(errs, fmt.Errorf("block @%s in function $%s has no terminator",
				b.Name, f.Name))
		case JumpRet0, JumpRet:
			if b.S1 != NoBlock || b.S2 != NoBlock {
				errs = append(errs, fmt.Errorf("block @%s in function $%s returns but has successors",
					b.Name, f.Name))
			}
		case JumpJmp:
			if !inRange(b.S1) || b.S2 != NoBlock {
				errs = append(errs, fmt.Errorf("block @%s in function $%s: bad jmp successors",
					b.Name, f.Name))
			}
		case JumpJnz:
			if !inRange(b.S1) || !inRange(b.S2) {
				errs = append(errs, fmt.Errorf("block @%s in function $%s: bad jnz successors",
					b.Name, f.Name))
			}
		}

		for _, p := range b.Phis {
			if len(p.Args) != len(p.Blocks) || len(p.Args) != len(b.Preds) {
				errs = append(errs, fmt.Errorf("phi %s in block @%s of function $%s has %d arguments for %d predecessors",
					f.RefString(p.To), b.Name, f.Name, len(p.Args), len(b.Preds)))
				continue
			}
			for _, from := range p.Blocks {
				if !containsBlock(b.Preds, from) {
					errs = append(errs, fmt.Errorf("phi %s in block @%s of function $%s names a non-predecessor",
						f.RefString(p.To), b.Name, f.Name))
				}
			}
		}
	}

	return errs
}

// Verify checks every function of the module.
func (m *Module) Verify() []error {
	errs := make([]error, 0)
	for _, fn := range m.Functions {
		errs = append(errs, fn.Verify()...)
	}
	return errs
}
