package ir

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Write prints f in the textual IL syntax accepted by the parser.
//
// OUTPUT RULES:
// - Nops are skipped
// - A run of arg/argv followed by call or vacall is folded back into one
//   call $f(w %a, ..., l %b) line
// - Every jmp is printed, including one to the block printed next
func (f *Function) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if f.Export {
		bw.WriteString("export ")
	}
	bw.WriteString("function ")
	if f.RetClass != ClassNone {
		bw.WriteString(f.RetClass.String())
		bw.WriteString(" ")
	}
	fmt.Fprintf(bw, "$%s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			bw.WriteString(", ")
		}
		fmt.Fprintf(bw, "%s %s", p.Class, f.RefString(TmpRef(p.Tmp)))
	}
	if f.Variadic {
		if len(f.Params) > 0 {
			bw.WriteString(", ")
		}
		bw.WriteString("...")
	}
	bw.WriteString(") {\n")

	for _, b := range f.Blocks {
		fmt.Fprintf(bw, "@%s\n", b.Name)
		for _, p := range b.Phis {
			fmt.Fprintf(bw, "\t%s =%s phi ", f.RefString(p.To), p.Class)
			for j, arg := range p.Args {
				if j > 0 {
					bw.WriteString(", ")
				}
				fmt.Fprintf(bw, "@%s %s", f.blockName(p.Blocks[j]), f.RefString(arg))
			}
			bw.WriteString("\n")
		}
		f.writeIns(bw, b.Ins)
		f.writeJump(bw, b)
	}
	bw.WriteString("}\n")

	return bw.Flush()
}

// String returns f as printed by Write.
func (f *Function) String() string {
	var sb strings.Builder
	f.Write(&sb)
	return sb.String()
}

func (f *Function) blockName(id BlockID) string {
	if id < 0 || int(id) >= len(f.Blocks) {
		return "?"
	}
	return f.Blocks[id].Name
}

func (f *Function) writeIns(bw *bufio.Writer, ins []Instr) {
	var args []string
	for i := range ins {
		in := &ins[i]
		switch in.Op {
		case OpNop:
			continue
		case OpArg:
			args = append(args, fmt.Sprintf("%s %s", in.Class, f.RefString(in.Args[0])))
			continue
		case OpArgV:
			args = append(args, "...")
			continue
		}

		bw.WriteString("\t")
		if !in.To.IsNone() {
			fmt.Fprintf(bw, "%s =%s ", f.RefString(in.To), in.Class)
		}
		if IsCall(in.Op) {
			fmt.Fprintf(bw, "call %s(%s)\n", f.RefString(in.Args[0]), strings.Join(args, ", "))
			args = args[:0]
			continue
		}
		bw.WriteString(in.mnemonic())

		for j := 0; j < NumArgs(in.Op); j++ {
			if j > 0 {
				bw.WriteString(",")
			}
			bw.WriteString(" ")
			bw.WriteString(f.RefString(in.Args[j]))
		}
		bw.WriteString("\n")
	}
}

func (f *Function) writeJump(bw *bufio.Writer, b *Block) {
	switch b.Jmp.Kind {
	case JumpRet0:
		bw.WriteString("\tret\n")
	case JumpRet:
		fmt.Fprintf(bw, "\tret %s\n", f.RefString(b.Jmp.Arg))
	case JumpJmp:
		fmt.Fprintf(bw, "\tjmp @%s\n", f.blockName(b.S1))
	case JumpJnz:
		fmt.Fprintf(bw, "\tjnz %s, @%s, @%s\n",
			f.RefString(b.Jmp.Arg), f.blockName(b.S1), f.blockName(b.S2))
	}
}

// Write prints the declarations of m followed by its functions.
func (m *Module) Write(w io.Writer) error {
	for _, d := range m.Decls {
		if _, err := fmt.Fprintf(w, "%s\n\n", d.Text); err != nil {
			return err
		}
	}
	for i, fn := range m.Functions {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := fn.Write(w); err != nil {
			return err
		}
	}
	return nil
}

// String returns m as printed by Write.
func (m *Module) String() string {
	var sb strings.Builder
	m.Write(&sb)
	return sb.String()
}
