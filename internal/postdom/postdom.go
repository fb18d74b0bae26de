// Package postdom computes postdominators and postdominance frontiers of a
// function's control-flow graph.
//
// WHAT IS POSTDOMINANCE?
// Block P postdominates block B if every path from B to a function exit goes
// through P. The immediate postdominator of B is the closest such P.
//
// Functions may have several exit blocks (every ret). They are unified under a
// virtual end node with id len(fn.Blocks): each exit is a predecessor of the
// end node, and the end node postdominates everything.
//
// WHAT IS THE POSTDOMINANCE FRONTIER?
// The frontier of B is the set of branch blocks X such that B postdominates a
// successor of X but does not strictly postdominate X itself. Those are the
// branches whose outcome decides whether B runs: B is control dependent on
// every block of its frontier.
//
// ALGORITHM:
// 1. Reverse postorder of the reversed graph, rooted at the end node
// 2. Immediate postdominators by the iterative two-finger method of Cooper,
//    Harvey and Kennedy, run on the reversed graph
// 3. Frontiers by walking up from each successor of every branch until the
//    branch's own immediate postdominator
package postdom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Swordelf2/compprac2/internal/ir"
)

var tracer = otel.Tracer("ssadce/postdom")

var (
	// ErrNoExit is returned for a function without any ret.
	ErrNoExit = errors.New("function has no exit block")

	// ErrNoPathToExit is returned when some block cannot reach any ret,
	// for example a block inside an infinite loop.
	ErrNoPathToExit = errors.New("block cannot reach an exit")
)

// Info is the analysis result for one block.
type Info struct {
	// Visited is set once the reverse walk reaches the block
	Visited bool

	// RID is the index of the block in reverse postorder of the reversed graph.
	// The end node has RID 0.
	RID int

	// RDom is the immediate postdominator. The end node is its own.
	RDom ir.BlockID

	// Frontier is the set of branch blocks this block is control dependent on
	Frontier map[ir.BlockID]struct{}
}

// Tree holds the postdominator tree and frontiers of one function.
//
// A Tree is built for one function and describes it as it was at Build time.
// Rewriting the CFG invalidates it.
type Tree struct {
	fn   *ir.Function
	end  ir.BlockID
	info []Info

	// rrpo lists the end node and all blocks in reverse postorder of the reversed graph
	rrpo []ir.BlockID

	exits []ir.BlockID

	// Iterations is the number of passes the fixpoint needed
	Iterations int
}

// Build analyzes fn. Predecessor lists must be up to date (ir.FillPreds).
//
// Returns ErrNoExit if fn has no ret, and ErrNoPathToExit if some block
// cannot reach one.
func Build(ctx context.Context, fn *ir.Function) (*Tree, error) {
	_, span := tracer.Start(ctx, "postdom.Build",
		trace.WithAttributes(
			attribute.String("function", fn.Name),
			attribute.Int("block_count", len(fn.Blocks)),
		),
	)
	defer span.End()

	t := &Tree{
		fn:   fn,
		end:  ir.BlockID(len(fn.Blocks)),
		info: make([]Info, len(fn.Blocks)+1),
	}
	for i := range t.info {
		t.info[i].RID = -1
		t.info[i].RDom = ir.NoBlock
	}

	for _, b := range fn.Blocks {
		if ir.IsRet(b.Jmp.Kind) {
			t.exits = append(t.exits, b.ID)
		}
	}
	if len(t.exits) == 0 {
		span.AddEvent("no_exit")
		return nil, fmt.Errorf("function $%s: %w", fn.Name, ErrNoExit)
	}

	if err := t.buildReversePostorder(); err != nil {
		span.AddEvent("unreachable_exit")
		return nil, err
	}
	span.AddEvent("reverse_postorder_complete", trace.WithAttributes(
		attribute.Int("exit_count", len(t.exits)),
	))

	t.buildPostdominators()
	span.AddEvent("postdominators_complete", trace.WithAttributes(
		attribute.Int("iterations", t.Iterations),
	))

	t.buildFrontiers()
	span.AddEvent("frontiers_complete")

	slog.Default().Debug("postdom: analysis complete",
		slog.String("function", fn.Name),
		slog.Int("blocks", len(fn.Blocks)),
		slog.Int("exits", len(t.exits)),
		slog.Int("iterations", t.Iterations),
	)
	return t, nil
}

// reverseSuccs returns the successors of b in the reversed graph: the
// predecessors of b, and for the end node every exit block.
func (t *Tree) reverseSuccs(b ir.BlockID) []ir.BlockID {
	if b == t.end {
		return t.exits
	}
	return t.fn.Blocks[b].Preds
}

// buildReversePostorder numbers every block by its position in reverse
// postorder of the reversed graph, walking from the end node.
func (t *Tree) buildReversePostorder() error {
	post := ir.Postorder(len(t.info), t.end, t.reverseSuccs)

	t.rrpo = make([]ir.BlockID, len(post))
	for i := range post {
		b := post[len(post)-1-i]
		t.rrpo[i] = b
		t.info[b].Visited = true
		t.info[b].RID = i
	}

	if len(t.rrpo) != len(t.info) {
		for _, b := range t.fn.Blocks {
			if !t.info[b.ID].Visited {
				return fmt.Errorf("function $%s: block @%s: %w", t.fn.Name, b.Name, ErrNoPathToExit)
			}
		}
	}
	return nil
}

// buildPostdominators computes the immediate postdominator of every block.
//
// The end node postdominates itself and is the immediate postdominator of
// every exit. Every other block takes the common postdominator of its
// successors that already have one, until nothing changes.
func (t *Tree) buildPostdominators() {
	t.info[t.end].RDom = t.end
	for _, e := range t.exits {
		t.info[e].RDom = t.end
	}

	for changed := true; changed; {
		changed = false
		t.Iterations++

		for _, b := range t.rrpo[1:] {
			blk := t.fn.Blocks[b]
			if ir.IsRet(blk.Jmp.Kind) {
				continue
			}

			newRDom := ir.NoBlock
			for _, s := range blk.Succs() {
				if t.info[s].RDom == ir.NoBlock {
					continue
				}
				if newRDom == ir.NoBlock {
					newRDom = s
				} else {
					newRDom = t.intersect(s, newRDom)
				}
			}

			if newRDom != ir.NoBlock && t.info[b].RDom != newRDom {
				t.info[b].RDom = newRDom
				changed = true
			}
		}
	}
}

// intersect returns the nearest common postdominator of a and b.
// A smaller RID is closer to the end node.
func (t *Tree) intersect(a, b ir.BlockID) ir.BlockID {
	for a != b {
		for t.info[a].RID > t.info[b].RID {
			a = t.info[a].RDom
		}
		for t.info[b].RID > t.info[a].RID {
			b = t.info[b].RDom
		}
	}
	return a
}

// buildFrontiers adds every branch to the frontier of each block between one
// of its successors (inclusive) and its immediate postdominator (exclusive).
func (t *Tree) buildFrontiers() {
	for _, blk := range t.fn.Blocks {
		if !blk.IsBranch() {
			continue
		}
		stop := t.info[blk.ID].RDom
		for _, s := range blk.Succs() {
			for runner := s; runner != stop && runner != t.end; runner = t.info[runner].RDom {
				if t.info[runner].Frontier == nil {
					t.info[runner].Frontier = make(map[ir.BlockID]struct{})
				}
				t.info[runner].Frontier[blk.ID] = struct{}{}
			}
		}
	}
}

// End returns the id of the virtual end node.
func (t *Tree) End() ir.BlockID {
	return t.end
}

// Exits returns the exit blocks in block order.
func (t *Tree) Exits() []ir.BlockID {
	return t.exits
}

// Info returns the analysis result for b, which may be the end node.
func (t *Tree) Info(b ir.BlockID) *Info {
	return &t.info[b]
}

// IPostdom returns the immediate postdominator of b.
func (t *Tree) IPostdom(b ir.BlockID) ir.BlockID {
	return t.info[b].RDom
}

// Frontier returns the postdominance frontier of b in ascending order.
func (t *Tree) Frontier(b ir.BlockID) []ir.BlockID {
	keys := maps.Keys(t.info[b].Frontier)
	slices.Sort(keys)
	return keys
}

// Order returns the end node followed by every block, in reverse postorder of
// the reversed graph.
func (t *Tree) Order() []ir.BlockID {
	return t.rrpo
}

// RID returns the reverse postorder index of b.
func (t *Tree) RID(b ir.BlockID) int {
	return t.info[b].RID
}

// Postdominates reports whether a postdominates b. Every block postdominates
// itself.
func (t *Tree) Postdominates(a, b ir.BlockID) bool {
	for {
		if a == b {
			return true
		}
		if b == t.end {
			return false
		}
		b = t.info[b].RDom
	}
}
