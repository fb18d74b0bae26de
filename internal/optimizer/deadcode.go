package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Swordelf2/compprac2/internal/ir"
	"github.com/Swordelf2/compprac2/internal/postdom"
)

var (
	// ErrDuplicateDef is returned when a temporary is assigned more than once.
	ErrDuplicateDef = errors.New("temporary defined more than once")

	// ErrUndefined is returned when a temporary is read but never assigned.
	ErrUndefined = errors.New("temporary used but never defined")
)

// DeadCodeEliminationPass removes code that cannot affect the observable
// behavior of a function.
//
// WHAT IS DEAD CODE?
// Code is dead unless it contributes to one of:
// 1. A store to memory
// 2. A call, or the arguments passed to it
// 3. A value returned by the function
// 4. A branch deciding whether one of the above runs
//
// EXAMPLE:
//
//	Before:                          After:
//	@a                               @a
//		%x =w add 1, 2                   jmp @d
//		jnz %x, @b, @c               @d
//	@b                                   ret 7
//		%y =w add 1, 1
//		jmp @d
//	@c
//		jmp @d
//	@d
//		ret 7
//
// ALGORITHM:
// 1. Build postdominators and postdominance frontiers (package postdom)
// 2. Mark: seed every store, call and ret, then follow definitions of every
//    operand of a marked site, and the branches its block is control
//    dependent on, until the worklist is empty
// 3. Sweep: drop unmarked phis, turn unmarked instructions into nops, and
//    send every unmarked branch to the nearest postdominator that holds
//    marked code
// 4. Renumber the blocks, dropping the ones no longer reachable
//
// Every temporary must be defined exactly once (SSA form). A second
// definition is reported as ErrDuplicateDef.
type DeadCodeEliminationPass struct {
	// Logger receives warnings and the analysis dump. Nil uses slog.Default().
	Logger *slog.Logger

	// DumpAnalysis logs per block postdominators, frontiers and usefulness
	// at debug level.
	DumpAnalysis bool

	// Stats, if set, accumulates what the pass removed.
	Stats *OptimizationStats
}

// Name returns the name of this optimization pass.
func (d *DeadCodeEliminationPass) Name() string {
	return "DeadCodeElimination"
}

// Run executes dead code elimination on fn.
//
// Predecessor lists must be up to date. Afterwards fn is renumbered in
// reverse postorder and its use lists are refreshed.
func (d *DeadCodeEliminationPass) Run(ctx context.Context, fn *ir.Function) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tree, err := postdom.Build(ctx, fn)
	if err != nil {
		return err
	}

	dc := newDeadCode(fn, tree, logger)

	_, span := tracer.Start(ctx, "DeadCodeElimination.mark")
	err = dc.mark()
	span.SetAttributes(attribute.Int("marked", len(dc.marked)))
	span.End()
	if err != nil {
		return err
	}

	if d.DumpAnalysis && logger.Enabled(ctx, slog.LevelDebug) {
		dc.dump(ctx)
	}

	_, span = tracer.Start(ctx, "DeadCodeElimination.sweep")
	stats := dc.sweep()
	stats.BlocksRemoved = ir.FillRPO(fn)
	ir.FillUses(fn)
	span.SetAttributes(
		attribute.Int("phis_removed", stats.PhisRemoved),
		attribute.Int("instructions_removed", stats.InstructionsRemoved),
		attribute.Int("jumps_rewritten", stats.JumpsRewritten),
		attribute.Int("blocks_removed", stats.BlocksRemoved),
	)
	span.End()

	trace.SpanFromContext(ctx).AddEvent("dead_code_eliminated")
	logger.Debug("dead code eliminated",
		slog.String("function", fn.Name),
		slog.Any("stats", stats),
	)

	if d.Stats != nil {
		d.Stats.PhisRemoved += stats.PhisRemoved
		d.Stats.InstructionsRemoved += stats.InstructionsRemoved
		d.Stats.JumpsRewritten += stats.JumpsRewritten
		d.Stats.BlocksRemoved += stats.BlocksRemoved
	}
	return nil
}

// deadCode is the state of one run over one function.
type deadCode struct {
	fn     *ir.Function
	tree   *postdom.Tree
	logger *slog.Logger

	// defs maps a temporary to the site defining it
	defs map[int]ir.Use

	// isParam flags temporaries defined by the function signature
	isParam []bool

	// marked holds every site found live
	marked map[ir.Use]struct{}

	// useful flags blocks holding at least one marked site
	useful []bool

	// work holds marked sites whose operands are still to be followed
	work []ir.Use
}

func newDeadCode(fn *ir.Function, tree *postdom.Tree, logger *slog.Logger) *deadCode {
	dc := &deadCode{
		fn:      fn,
		tree:    tree,
		logger:  logger,
		defs:    make(map[int]ir.Use, len(fn.Tmps)),
		isParam: make([]bool, len(fn.Tmps)),
		marked:  make(map[ir.Use]struct{}),
		useful:  make([]bool, len(fn.Blocks)),
	}
	for _, p := range fn.Params {
		dc.isParam[p.Tmp] = true
	}
	return dc
}

// isCritical reports whether op has an effect beyond its result.
func isCritical(op ir.Op) bool {
	return ir.IsStore(op) || ir.IsCall(op)
}

// mark finds every live site.
func (dc *deadCode) mark() error {
	for _, b := range dc.fn.Blocks {
		for i, p := range b.Phis {
			if err := dc.define(p.To, ir.PhiUse(b.ID, i)); err != nil {
				return err
			}
		}
		for i := range b.Ins {
			ins := &b.Ins[i]
			if ins.IsNop() {
				continue
			}
			if !ins.To.IsNone() {
				if err := dc.define(ins.To, ir.InsUse(b.ID, i)); err != nil {
					return err
				}
			}
			if isCritical(ins.Op) {
				dc.markUse(ir.InsUse(b.ID, i))
			}
		}
		if ir.IsRet(b.Jmp.Kind) {
			dc.markUse(ir.JmpUse(b.ID))
		}
	}

	for len(dc.work) > 0 {
		u := dc.work[len(dc.work)-1]
		dc.work = dc.work[:len(dc.work)-1]
		if err := dc.propagate(u); err != nil {
			return err
		}
	}
	return nil
}

// define records the definition of temporary r at site u.
func (dc *deadCode) define(r ir.Ref, u ir.Use) error {
	if !r.IsTmp() {
		return nil
	}
	name := dc.fn.RefString(r)
	if dc.isParam[r.Val] {
		return fmt.Errorf("function $%s: parameter %s redefined at %s: %w",
			dc.fn.Name, name, dc.site(u), ErrDuplicateDef)
	}
	if prev, ok := dc.defs[r.Val]; ok {
		return fmt.Errorf("function $%s: %s defined at %s and at %s: %w",
			dc.fn.Name, name, dc.site(prev), dc.site(u), ErrDuplicateDef)
	}
	dc.defs[r.Val] = u
	return nil
}

// propagate marks everything site u depends on.
func (dc *deadCode) propagate(u ir.Use) error {
	b := dc.fn.Blocks[u.Block]

	switch u.Kind {
	case ir.UsePhi:
		p := b.Phis[u.Index]
		for i, arg := range p.Args {
			if err := dc.markRef(arg, u); err != nil {
				return err
			}
			// The value only arrives if control leaves the predecessor toward us.
			dc.markUse(ir.JmpUse(p.Blocks[i]))
		}
	case ir.UseIns:
		for _, arg := range b.Ins[u.Index].Args {
			if err := dc.markRef(arg, u); err != nil {
				return err
			}
		}
	case ir.UseJmp:
		if err := dc.markRef(b.Jmp.Arg, u); err != nil {
			return err
		}
	}

	for _, f := range dc.tree.Frontier(u.Block) {
		dc.markUse(ir.JmpUse(f))
	}
	return nil
}

// markRef marks the definition of r, read at site from.
func (dc *deadCode) markRef(r ir.Ref, from ir.Use) error {
	if !r.IsTmp() || dc.isParam[r.Val] {
		return nil
	}
	def, ok := dc.defs[r.Val]
	if !ok {
		return fmt.Errorf("function $%s: %s read at %s: %w",
			dc.fn.Name, dc.fn.RefString(r), dc.site(from), ErrUndefined)
	}
	dc.markUse(def)
	return nil
}

// markUse marks site u live. Marking twice is a no-op.
func (dc *deadCode) markUse(u ir.Use) {
	if _, ok := dc.marked[u]; ok {
		return
	}
	dc.marked[u] = struct{}{}
	dc.useful[u.Block] = true
	dc.work = append(dc.work, u)
}

func (dc *deadCode) isMarked(u ir.Use) bool {
	_, ok := dc.marked[u]
	return ok
}

// sweep rewrites the function, removing everything not marked.
func (dc *deadCode) sweep() *OptimizationStats {
	stats := &OptimizationStats{}
	end := dc.tree.End()

	for _, b := range dc.fn.Blocks {
		phis := b.Phis[:0]
		for i, p := range b.Phis {
			if dc.isMarked(ir.PhiUse(b.ID, i)) {
				phis = append(phis, p)
			} else {
				stats.PhisRemoved++
			}
		}
		b.Phis = phis

		for i := range b.Ins {
			if b.Ins[i].IsNop() || dc.isMarked(ir.InsUse(b.ID, i)) {
				continue
			}
			b.Ins[i] = ir.Instr{Op: ir.OpNop}
			stats.InstructionsRemoved++
		}

		if dc.isMarked(ir.JmpUse(b.ID)) {
			continue
		}

		target := dc.tree.IPostdom(b.ID)
		for target != end && !dc.useful[target] {
			target = dc.tree.IPostdom(target)
		}
		if target == end {
			dc.logger.Warn("no useful postdominator, jump left unchanged",
				slog.String("function", dc.fn.Name),
				slog.String("block", b.Name),
			)
			continue
		}
		if b.Jmp.Kind != ir.JumpJmp || b.S1 != target {
			stats.JumpsRewritten++
		}
		b.Jmp = ir.Jump{Kind: ir.JumpJmp}
		b.S1 = target
		b.S2 = ir.NoBlock
	}
	return stats
}

// site describes u for error messages, e.g. "@loop phi 0".
func (dc *deadCode) site(u ir.Use) string {
	name := dc.fn.Blocks[u.Block].Name
	if u.Kind == ir.UseJmp {
		return fmt.Sprintf("@%s %s", name, dc.fn.Blocks[u.Block].Jmp.Kind)
	}
	return fmt.Sprintf("@%s %s %d", name, u.Kind, u.Index)
}

// dump logs the analysis: definitions in temporary order, then every block in
// reverse postorder of the reversed graph.
func (dc *deadCode) dump(ctx context.Context) {
	tmps := maps.Keys(dc.defs)
	slices.Sort(tmps)
	for _, t := range tmps {
		u := dc.defs[t]
		dc.logger.DebugContext(ctx, "definition",
			slog.String("function", dc.fn.Name),
			slog.String("tmp", dc.fn.RefString(ir.TmpRef(t))),
			slog.String("site", dc.site(u)),
			slog.Bool("marked", dc.isMarked(u)),
		)
	}

	end := dc.tree.End()
	name := func(b ir.BlockID) string {
		if b == end {
			return "END"
		}
		return "@" + dc.fn.Blocks[b].Name
	}
	for _, b := range dc.tree.Order() {
		if b == end {
			continue
		}
		frontier := make([]string, 0)
		for _, f := range dc.tree.Frontier(b) {
			frontier = append(frontier, name(f))
		}
		dc.logger.DebugContext(ctx, "block",
			slog.String("function", dc.fn.Name),
			slog.String("block", name(b)),
			slog.Int("rid", dc.tree.RID(b)),
			slog.String("rdom", name(dc.tree.IPostdom(b))),
			slog.String("frontier", strings.Join(frontier, " ")),
			slog.Bool("useful", dc.useful[b]),
		)
	}
}
