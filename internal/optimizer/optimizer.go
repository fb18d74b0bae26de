// Package optimizer runs optimization passes over IL functions.
//
// The only pass shipped is DeadCodeEliminationPass, which removes every
// computation and branch that cannot affect a store, a call or a returned
// value.
package optimizer

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Swordelf2/compprac2/internal/ir"
)

var tracer = otel.Tracer("ssadce/optimizer")

// Pass represents an optimization pass that can be applied to IR.
//
// Each pass is a separate transformation that can be:
// - Enabled/disabled independently
// - Tested in isolation
// - Composed with other passes
//
// A pass sees one function at a time and keeps no state from one function to
// the next.
type Pass interface {
	// Name returns a human-readable name for this pass
	Name() string

	// Run executes this optimization pass on the given function.
	// The context only carries tracing information.
	Run(ctx context.Context, fn *ir.Function) error
}

// Optimizer coordinates the execution of optimization passes.
type Optimizer struct {
	// passes is the list of optimization passes to run, in order
	passes []Pass

	// logger receives per-pass progress at debug level
	logger *slog.Logger

	// verbose logs the statistics of every function at info level
	verbose bool

	// stats accumulates over every function optimized
	stats *OptimizationStats
}

// NewOptimizer creates an optimizer running dead code elimination.
// A nil logger discards everything.
func NewOptimizer(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	o := &Optimizer{
		logger: logger,
		stats:  NewOptimizationStats(),
	}
	o.passes = []Pass{
		&DeadCodeEliminationPass{Logger: logger, Stats: o.stats},
	}
	return o
}

// AddPass adds a custom optimization pass after the existing ones.
func (o *Optimizer) AddPass(pass Pass) {
	o.passes = append(o.passes, pass)
}

// SetVerbose enables or disables verbose logging.
func (o *Optimizer) SetVerbose(verbose bool) {
	o.verbose = verbose
}

// SetDumpAnalysis makes the dead code pass log its postdominator and
// frontier analysis at debug level.
func (o *Optimizer) SetDumpAnalysis(dump bool) {
	for _, pass := range o.passes {
		if dce, ok := pass.(*DeadCodeEliminationPass); ok {
			dce.DumpAnalysis = dump
		}
	}
}

// Stats returns the statistics accumulated so far.
func (o *Optimizer) Stats() *OptimizationStats {
	return o.stats
}

// Optimize runs all optimization passes on every function of the module.
// It stops at the first function that fails.
func (o *Optimizer) Optimize(ctx context.Context, module *ir.Module) error {
	for _, fn := range module.Functions {
		if err := o.OptimizeFunction(ctx, fn); err != nil {
			return fmt.Errorf("optimization failed for function %s: %w", fn.Name, err)
		}
	}
	return nil
}

// OptimizeFunction runs every pass once, in order, on fn.
func (o *Optimizer) OptimizeFunction(ctx context.Context, fn *ir.Function) error {
	ctx, span := tracer.Start(ctx, "Optimizer.OptimizeFunction",
		trace.WithAttributes(
			attribute.String("function", fn.Name),
			attribute.Int("block_count", len(fn.Blocks)),
		),
	)
	defer span.End()

	before := *o.stats
	for _, pass := range o.passes {
		o.logger.Debug("running pass",
			slog.String("pass", pass.Name()),
			slog.String("function", fn.Name),
		)

		if err := o.runPass(ctx, pass, fn); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pass failed")
			return fmt.Errorf("pass %s failed: %w", pass.Name(), err)
		}
		o.stats.PassExecutions[pass.Name()]++
	}
	o.stats.Functions++

	if o.verbose {
		o.logger.Info("function optimized",
			slog.String("function", fn.Name),
			slog.Any("stats", o.stats.Since(&before)),
		)
	}
	return nil
}

func (o *Optimizer) runPass(ctx context.Context, pass Pass, fn *ir.Function) error {
	ctx, span := tracer.Start(ctx, pass.Name())
	defer span.End()
	return pass.Run(ctx, fn)
}

// OptimizationStats tracks statistics about optimization.
type OptimizationStats struct {
	// Functions is the number of functions optimized
	Functions int

	// PhisRemoved is the number of phi nodes eliminated
	PhisRemoved int

	// InstructionsRemoved is the number of instructions turned into nops
	InstructionsRemoved int

	// JumpsRewritten is the number of branches replaced by an unconditional jump
	JumpsRewritten int

	// BlocksRemoved is the number of blocks no longer reachable afterwards
	BlocksRemoved int

	// PassExecutions tracks how many times each pass ran
	PassExecutions map[string]int
}

// NewOptimizationStats creates a new stats tracker.
func NewOptimizationStats() *OptimizationStats {
	return &OptimizationStats{
		PassExecutions: make(map[string]int),
	}
}

// Since returns the counts added after snapshot was taken.
// PassExecutions is not included.
func (s *OptimizationStats) Since(snapshot *OptimizationStats) *OptimizationStats {
	return &OptimizationStats{
		Functions:           s.Functions - snapshot.Functions,
		PhisRemoved:         s.PhisRemoved - snapshot.PhisRemoved,
		InstructionsRemoved: s.InstructionsRemoved - snapshot.InstructionsRemoved,
		JumpsRewritten:      s.JumpsRewritten - snapshot.JumpsRewritten,
		BlocksRemoved:       s.BlocksRemoved - snapshot.BlocksRemoved,
	}
}

// LogValue implements slog.LogValuer.
func (s *OptimizationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("phis_removed", s.PhisRemoved),
		slog.Int("instructions_removed", s.InstructionsRemoved),
		slog.Int("jumps_rewritten", s.JumpsRewritten),
		slog.Int("blocks_removed", s.BlocksRemoved),
	)
}

// String returns a human-readable summary of optimization statistics.
func (s *OptimizationStats) String() string {
	return fmt.Sprintf("Optimization Stats:\n"+
		"  Functions: %d\n"+
		"  Phis removed: %d\n"+
		"  Instructions removed: %d\n"+
		"  Jumps rewritten: %d\n"+
		"  Blocks removed: %d\n",
		s.Functions,
		s.PhisRemoved,
		s.InstructionsRemoved,
		s.JumpsRewritten,
		s.BlocksRemoved)
}

// discardHandler is a slog.Handler that drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h discardHandler) WithGroup(string) slog.Handler { return h }
