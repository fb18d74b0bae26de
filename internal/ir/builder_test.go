package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swordelf2/compprac2/internal/lexer"
)

func line(n int) lexer.Position {
	return lexer.Position{Filename: "test.ssa", Line: n, Column: 1}
}

func TestBuilder(t *testing.T) {
	tests := []struct {
		name     string
		build    func(b *Builder)
		validate func(*testing.T, *Function)
	}{
		{
			name: "forward labels keep textual order",
			build: func(b *Builder) {
				b.Label("start")
				b.Jmp("c")
				b.Label("b")
				b.Ret0()
				b.Label("c")
				b.Jmp("b")
			},
			validate: func(t *testing.T, fn *Function) {
				require.Len(t, fn.Blocks, 3)
				assert.Equal(t, "start", fn.Blocks[0].Name)
				assert.Equal(t, "b", fn.Blocks[1].Name)
				assert.Equal(t, "c", fn.Blocks[2].Name)
				for i, blk := range fn.Blocks {
					assert.Equal(t, BlockID(i), blk.ID)
				}
				assert.Equal(t, BlockID(0), fn.Start)
				assert.Equal(t, BlockID(2), fn.Blocks[0].S1)
				assert.Equal(t, BlockID(1), fn.Blocks[2].S1)
				assert.Equal(t, []BlockID{2}, fn.Blocks[1].Preds)
			},
		},
		{
			name: "unterminated block falls through",
			build: func(b *Builder) {
				b.Label("a")
				b.Assign("x", ClassW, OpCopy, b.Int(1))
				b.Label("b")
				b.Ret(b.Tmp("x"))
			},
			validate: func(t *testing.T, fn *Function) {
				a := fn.Blocks[0]
				assert.Equal(t, JumpJmp, a.Jmp.Kind)
				assert.Equal(t, BlockID(1), a.S1)
				assert.Equal(t, NoBlock, a.S2)
				assert.Equal(t, []BlockID{0}, fn.Blocks[1].Preds)
			},
		},
		{
			name: "names resolve to one temporary",
			build: func(b *Builder) {
				p := b.Param(ClassL, "p")
				b.Label("start")
				x := b.Assign("x", ClassW, OpLoad, p)
				b.Store(OpStoreW, x, b.Tmp("p"))
				b.Ret(b.Tmp("x"))
			},
			validate: func(t *testing.T, fn *Function) {
				require.Len(t, fn.Tmps, 2)
				assert.Equal(t, "p", fn.Tmps[0].Name)
				assert.Equal(t, ClassL, fn.Tmps[0].Class)
				assert.Equal(t, ClassW, fn.Tmps[1].Class)
				assert.Equal(t, []Param{{Class: ClassL, Tmp: 0}}, fn.Params)
				assert.True(t, fn.IsParam(0))
				assert.False(t, fn.IsParam(1))

				store := fn.Blocks[0].Ins[1]
				assert.Equal(t, OpStoreW, store.Op)
				assert.True(t, store.To.IsNone())
				assert.Equal(t, [2]Ref{TmpRef(1), TmpRef(0)}, store.Args)
			},
		},
		{
			name: "constants are interned",
			build: func(b *Builder) {
				b.Label("start")
				b.Assign("x", ClassW, OpAdd, b.Int(1), b.Int(1))
				b.Assign("y", ClassD, OpCopy, b.Float(ClassD, 0.5))
				b.Assign("z", ClassL, OpCopy, b.Addr("tab"))
				b.Ret(b.Int(1))
			},
			validate: func(t *testing.T, fn *Function) {
				require.Len(t, fn.Cons, 3)
				x := fn.Blocks[0].Ins[0]
				assert.Equal(t, x.Args[0], x.Args[1])
				assert.Equal(t, x.Args[0], fn.Blocks[0].Jmp.Arg)
				assert.Equal(t, "d_0.5", fn.Cons[1].String())
				assert.Equal(t, "$tab", fn.Cons[2].String())
			},
		},
		{
			name: "call is lowered to arguments",
			build: func(b *Builder) {
				b.Label("start")
				args := []CallArg{
					{Class: ClassL, Value: b.Addr("fmt")},
					{Class: ClassW, Value: b.Int(3)},
				}
				b.Call("r", ClassW, b.Addr("printf"), args, 1)
				b.Call("", ClassNone, b.Addr("abort"), nil, -1)
				b.Ret(b.Tmp("r"))
			},
			validate: func(t *testing.T, fn *Function) {
				ins := fn.Blocks[0].Ins
				ops := make([]Op, len(ins))
				for i := range ins {
					ops[i] = ins[i].Op
				}
				assert.Equal(t, []Op{OpArg, OpArgV, OpArg, OpVACall, OpCall}, ops)
				assert.Equal(t, ClassL, ins[0].Class)
				assert.Equal(t, ClassW, ins[3].Class)
				assert.True(t, ins[3].To.IsTmp())
				assert.True(t, ins[4].To.IsNone())
				assert.Equal(t, ClassNone, ins[4].Class)
			},
		},
		{
			name: "phi incoming blocks",
			build: func(b *Builder) {
				b.Label("a")
				b.Jnz(b.Tmp("c"), "b", "join")
				b.Label("b")
				b.Jmp("join")
				b.Label("join")
				b.Phi("v", ClassW, PhiArg{Label: "a", Value: b.Int(0)}, PhiArg{Label: "b", Value: b.Int(1)})
				b.Ret(b.Tmp("v"))
			},
			validate: func(t *testing.T, fn *Function) {
				phi := fn.Blocks[2].Phis[0]
				assert.Equal(t, []BlockID{0, 1}, phi.Blocks)
				arg, ok := phi.ArgFor(1)
				assert.True(t, ok)
				assert.Equal(t, "1", fn.RefString(arg))
				_, ok = phi.ArgFor(2)
				assert.False(t, ok)
				assert.Empty(t, fn.Verify())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("f", nil)
			tt.build(b)
			fn, errs := b.Finish()
			require.Empty(t, errs)
			tt.validate(t, fn)
		})
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		want  string
	}{
		{
			name: "undefined label",
			build: func(b *Builder) {
				b.At(line(2)).Label("start")
				b.At(line(3)).Jmp("nowhere")
			},
			want: "test.ssa:3:1: undefined label @nowhere",
		},
		{
			name: "redefined label",
			build: func(b *Builder) {
				b.At(line(2)).Label("a")
				b.Ret0()
				b.At(line(4)).Label("a")
				b.Ret0()
			},
			want: "test.ssa:4:1: label @a redefined, first defined at test.ssa:2:1",
		},
		{
			name: "instruction after terminator",
			build: func(b *Builder) {
				b.Label("a")
				b.Ret0()
				b.At(line(7)).Assign("x", ClassW, OpCopy, b.Int(1))
			},
			want: "test.ssa:7:1: instruction outside of a block",
		},
		{
			name: "missing terminator",
			build: func(b *Builder) {
				b.Label("only")
				b.Assign("x", ClassW, OpCopy, b.Int(1))
			},
			want: "last block @only of function $f has no terminator",
		},
		{
			name: "phi after instruction",
			build: func(b *Builder) {
				b.Label("a")
				b.Assign("x", ClassW, OpCopy, b.Int(1))
				b.At(line(9)).Phi("y", ClassW, PhiArg{Label: "a", Value: b.Int(1)})
				b.Ret0()
			},
			want: "test.ssa:9:1: phi after instructions",
		},
		{
			name:  "no blocks",
			build: func(b *Builder) {},
			want:  "function $f has no blocks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("f", nil)
			tt.build(b)
			_, errs := b.Finish()
			require.NotEmpty(t, errs)
			assert.Contains(t, errs[0].Error(), tt.want)
		})
	}
}
