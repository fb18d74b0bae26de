package optimizer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swordelf2/compprac2/internal/ir"
	"github.com/Swordelf2/compprac2/internal/parser"
	"github.com/Swordelf2/compprac2/internal/postdom"
)

// prepare parses src and runs the bookkeeping the driver runs before the pass.
func prepare(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := parser.ParseModule(strings.NewReader(src), "test.ssa")
	require.NoError(t, err)
	for _, fn := range m.Functions {
		ir.FillRPO(fn)
		ir.FillUses(fn)
	}
	return m
}

// prepareFunc is prepare for a source holding exactly one function.
func prepareFunc(t *testing.T, src string) *ir.Function {
	t.Helper()
	m := prepare(t, src)
	require.Len(t, m.Functions, 1)
	return m.Functions[0]
}

const livenessSrc = `function w $f(w %c) {
@a
	jnz %c, @b, @c
@b
	%x1 =w copy 1
	jmp @d
@c
	%x2 =w copy 2
	jmp @d
@d
	%y =w phi @b %x1, @c %x2
	ret 7
}
`

const sideEffectsSrc = `function $g(l %p) {
@start
	%a =w add 1, 2
	%b =w mul %a, 3
	storew %b, %p
	%dead =w sub %a, 1
	%r =w call $h(w %a)
	call $printf(l $fmt, ..., w %b)
	ret
}
`

const phiConstSrc = `function w $sel(w %c) {
@start
	jnz %c, @yes, @no
@yes
	jmp @join
@no
	jmp @join
@join
	%r =w phi @yes 1, @no 2
	ret %r
}
`

const loopSrc = `function w $sum(w %n) {
@start
	jmp @loop
@loop
	%i =w phi @start 0, @body %i1
	%s =w phi @start 0, @body %s1
	%c =w csltw %i, %n
	jnz %c, @body, @done
@body
	%i1 =w add %i, 1
	%s1 =w add %s, %i
	%junk =w mul %s1, 2
	jmp @loop
@done
	ret %s
}
`

const exitsSrc = `function w $m(w %c) {
@start
	%t =w add %c, 1
	jnz %c, @one, @two
@one
	ret 1
@two
	ret 2
}
`

func TestDeadCodeElimination(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		want     string
		validate func(*testing.T, *OptimizationStats)
	}{
		{
			name: "dead diamond collapses to a jump",
			src:  livenessSrc,
			want: `function w $f(w %c) {
@a
	jmp @d
@d
	ret 7
}
`,
			validate: func(t *testing.T, s *OptimizationStats) {
				assert.Equal(t, 1, s.PhisRemoved)
				assert.Equal(t, 2, s.InstructionsRemoved)
				assert.Equal(t, 1, s.JumpsRewritten)
				assert.Equal(t, 2, s.BlocksRemoved)
			},
		},
		{
			name: "stores and calls survive",
			src:  sideEffectsSrc,
			want: `function $g(l %p) {
@start
	%a =w add 1, 2
	%b =w mul %a, 3
	storew %b, %p
	%r =w call $h(w %a)
	call $printf(l $fmt, ..., w %b)
	ret
}
`,
			validate: func(t *testing.T, s *OptimizationStats) {
				assert.Equal(t, 1, s.InstructionsRemoved)
				assert.Zero(t, s.JumpsRewritten)
			},
		},
		{
			name: "live phi keeps its controlling branch",
			src:  phiConstSrc,
			want: `function w $sel(w %c) {
@start
	jnz %c, @yes, @no
@no
	jmp @join
@yes
	jmp @join
@join
	%r =w phi @yes 1, @no 2
	ret %r
}
`,
			validate: func(t *testing.T, s *OptimizationStats) {
				assert.Zero(t, s.PhisRemoved)
				assert.Zero(t, s.JumpsRewritten)
				assert.Zero(t, s.BlocksRemoved)
			},
		},
		{
			name: "loop keeps its induction variables",
			src:  loopSrc,
			want: `function w $sum(w %n) {
@start
	jmp @loop
@loop
	%i =w phi @start 0, @body %i1
	%s =w phi @start 0, @body %s1
	%c =w csltw %i, %n
	jnz %c, @body, @done
@done
	ret %s
@body
	%i1 =w add %i, 1
	%s1 =w add %s, %i
	jmp @loop
}
`,
			validate: func(t *testing.T, s *OptimizationStats) {
				assert.Equal(t, 1, s.InstructionsRemoved)
				assert.Zero(t, s.JumpsRewritten)
			},
		},
		{
			name: "branch between two exits is kept",
			src:  exitsSrc,
			want: `function w $m(w %c) {
@start
	jnz %c, @one, @two
@two
	ret 2
@one
	ret 1
}
`,
			validate: func(t *testing.T, s *OptimizationStats) {
				assert.Equal(t, 1, s.InstructionsRemoved)
				assert.Zero(t, s.JumpsRewritten)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := prepareFunc(t, tt.src)
			stats := NewOptimizationStats()
			pass := &DeadCodeEliminationPass{Stats: stats}

			require.NoError(t, pass.Run(context.Background(), fn))
			assert.Equal(t, tt.want, fn.String())
			assert.Empty(t, fn.Verify())

			// Every surviving block still reaches an exit.
			_, err := postdom.Build(context.Background(), fn)
			require.NoError(t, err)

			if tt.validate != nil {
				tt.validate(t, stats)
			}
		})
	}
}

func TestDeadCodeEliminationIdempotent(t *testing.T) {
	for _, src := range []string{livenessSrc, sideEffectsSrc, phiConstSrc, loopSrc, exitsSrc} {
		fn := prepareFunc(t, src)
		pass := &DeadCodeEliminationPass{}
		require.NoError(t, pass.Run(context.Background(), fn))
		once := fn.String()

		ir.FillRPO(fn)
		stats := NewOptimizationStats()
		pass.Stats = stats
		require.NoError(t, pass.Run(context.Background(), fn))

		assert.Equal(t, once, fn.String(), "function $%s", fn.Name)
		assert.Zero(t, stats.PhisRemoved, "function $%s", fn.Name)
		assert.Zero(t, stats.InstructionsRemoved, "function $%s", fn.Name)
		assert.Zero(t, stats.JumpsRewritten, "function $%s", fn.Name)
		assert.Zero(t, stats.BlocksRemoved, "function $%s", fn.Name)
	}
}

func TestDeadCodeEliminationErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{
			name: "temporary assigned twice",
			src: `function w $f() {
@start
	%x =w copy 1
	%x =w copy 2
	ret %x
}
`,
			wantErr: ErrDuplicateDef,
			wantMsg: "%x defined at @start ins 0 and at @start ins 1",
		},
		{
			name: "parameter assigned",
			src: `function w $f(w %a) {
@start
	%a =w copy 1
	ret %a
}
`,
			wantErr: ErrDuplicateDef,
			wantMsg: "parameter %a redefined",
		},
		{
			name: "temporary never assigned",
			src: `function w $f() {
@start
	ret %nope
}
`,
			wantErr: ErrUndefined,
			wantMsg: "%nope read at @start ret",
		},
		{
			name: "no exit",
			src: `function $spin() {
@start
	jmp @start
}
`,
			wantErr: postdom.ErrNoExit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := prepareFunc(t, tt.src)
			err := (&DeadCodeEliminationPass{}).Run(context.Background(), fn)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestOptimizer(t *testing.T) {
	m := prepare(t, livenessSrc+"\n"+exitsSrc)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	o := NewOptimizer(logger)
	o.SetVerbose(true)
	o.SetDumpAnalysis(true)
	require.NoError(t, o.Optimize(context.Background(), m))

	stats := o.Stats()
	assert.Equal(t, 2, stats.Functions)
	assert.Equal(t, 1, stats.PhisRemoved)
	assert.Equal(t, 3, stats.InstructionsRemoved)
	assert.Equal(t, 1, stats.JumpsRewritten)
	assert.Equal(t, 2, stats.BlocksRemoved)
	assert.Equal(t, 2, stats.PassExecutions["DeadCodeElimination"])
	assert.Contains(t, stats.String(), "Phis removed: 1")

	out := logs.String()
	assert.Contains(t, out, "running pass")
	assert.Contains(t, out, "function optimized")
	assert.Contains(t, out, "stats.phis_removed=1")
	// Analysis dump of $f, taken before sweeping.
	assert.Contains(t, out, "block=@b")
	assert.Contains(t, out, "rdom=@d")
	assert.Contains(t, out, "frontier=@a")
	assert.Contains(t, out, "tmp=%y")
}

// recordingPass records the functions it sees and optionally fails.
type recordingPass struct {
	seen []string
	err  error
}

func (p *recordingPass) Name() string { return "Recording" }

func (p *recordingPass) Run(_ context.Context, fn *ir.Function) error {
	p.seen = append(p.seen, fn.Name)
	return p.err
}

func TestOptimizerCustomPass(t *testing.T) {
	t.Run("runs after dead code elimination", func(t *testing.T) {
		m := prepare(t, livenessSrc+"\n"+exitsSrc)
		rec := &recordingPass{}
		o := NewOptimizer(nil)
		o.AddPass(rec)

		require.NoError(t, o.Optimize(context.Background(), m))
		assert.Equal(t, []string{"f", "m"}, rec.seen)
		assert.Equal(t, 2, o.Stats().PassExecutions["Recording"])
	})

	t.Run("failure stops the run", func(t *testing.T) {
		m := prepare(t, livenessSrc+"\n"+exitsSrc)
		boom := errors.New("boom")
		rec := &recordingPass{err: boom}
		o := NewOptimizer(nil)
		o.AddPass(rec)

		err := o.Optimize(context.Background(), m)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "pass Recording failed")
		assert.Equal(t, []string{"f"}, rec.seen)
	})
}
