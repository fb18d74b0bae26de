package ir

// Op is an instruction operation code.
type Op int

const (
	OpNop Op = iota

	// Arithmetic and bitwise
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpUDiv
	OpURem
	OpAnd
	OpOr
	OpXor
	OpSar
	OpShr
	OpShl
	OpNeg
	OpCopy

	// Extensions and conversions
	OpExtSW
	OpExtUW
	OpExtSH
	OpExtUH
	OpExtSB
	OpExtUB
	OpExtS
	OpTruncD
	OpSToSI
	OpDToSI
	OpSWToF
	OpSLToF
	OpCast

	// Memory
	OpStoreB
	OpStoreH
	OpStoreW
	OpStoreL
	OpStoreS
	OpStoreD
	OpLoad // loadw, loadl, loads, loadd: width comes from the class
	OpLoadSW
	OpLoadUW
	OpLoadSH
	OpLoadUH
	OpLoadSB
	OpLoadUB
	OpAlloc4
	OpAlloc8
	OpAlloc16

	// Calls. A call site is a run of arg/argv followed by call or vacall.
	OpArg
	OpArgV // marks where the variadic arguments start
	OpCall
	OpVACall

	numFixedOps
)

var fixedOpNames = [numFixedOps]string{
	OpNop:     "nop",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpDiv:     "div",
	OpRem:     "rem",
	OpUDiv:    "udiv",
	OpURem:    "urem",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpSar:     "sar",
	OpShr:     "shr",
	OpShl:     "shl",
	OpNeg:     "neg",
	OpCopy:    "copy",
	OpExtSW:   "extsw",
	OpExtUW:   "extuw",
	OpExtSH:   "extsh",
	OpExtUH:   "extuh",
	OpExtSB:   "extsb",
	OpExtUB:   "extub",
	OpExtS:    "exts",
	OpTruncD:  "truncd",
	OpSToSI:   "stosi",
	OpDToSI:   "dtosi",
	OpSWToF:   "swtof",
	OpSLToF:   "sltof",
	OpCast:    "cast",
	OpStoreB:  "storeb",
	OpStoreH:  "storeh",
	OpStoreW:  "storew",
	OpStoreL:  "storel",
	OpStoreS:  "stores",
	OpStoreD:  "stored",
	OpLoad:    "load",
	OpLoadSW:  "loadsw",
	OpLoadUW:  "loaduw",
	OpLoadSH:  "loadsh",
	OpLoadUH:  "loaduh",
	OpLoadSB:  "loadsb",
	OpLoadUB:  "loadub",
	OpAlloc4:  "alloc4",
	OpAlloc8:  "alloc8",
	OpAlloc16: "alloc16",
	OpArg:     "arg",
	OpArgV:    "argv",
	OpCall:    "call",
	OpVACall:  "vacall",
}

// Comparison ops are numbered after the fixed ones, one per (condition, operand class).
var (
	intConds   = []string{"eq", "ne", "sle", "slt", "sge", "sgt", "ule", "ult", "uge", "ugt"}
	floatConds = []string{"eq", "ne", "le", "lt", "ge", "gt", "o", "uo"}
)

var (
	opNames  []string
	opByName map[string]Op
)

func init() {
	opNames = append(opNames, fixedOpNames[:]...)
	for _, k := range []string{"w", "l"} {
		for _, c := range intConds {
			opNames = append(opNames, "c"+c+k)
		}
	}
	for _, k := range []string{"s", "d"} {
		for _, c := range floatConds {
			opNames = append(opNames, "c"+c+k)
		}
	}

	opByName = make(map[string]Op, len(opNames))
	for op, name := range opNames {
		opByName[name] = Op(op)
	}
	// "load" is only ever written with its class suffix.
	delete(opByName, "load")
	for _, k := range []string{"w", "l", "s", "d"} {
		opByName["load"+k] = OpLoad
	}
	// Lowered call forms are not part of the source syntax.
	for _, op := range []Op{OpArg, OpArgV, OpVACall, OpNop} {
		delete(opByName, opNames[op])
	}
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "?"
}

// LookupOp returns the op spelled name in the source syntax.
// call, phi and the terminators are handled by the parser directly.
func LookupOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// IsStore reports whether op writes to memory.
func IsStore(op Op) bool {
	return op >= OpStoreB && op <= OpStoreD
}

// IsLoad reports whether op reads memory.
func IsLoad(op Op) bool {
	return op >= OpLoad && op <= OpLoadUB
}

// IsComparison reports whether op is one of the c<cond><class> ops.
func IsComparison(op Op) bool {
	return op >= numFixedOps && int(op) < len(opNames)
}

// IsCall reports whether op is part of a call sequence.
func IsCall(op Op) bool {
	return op >= OpArg && op <= OpVACall
}

// NumArgs returns how many operands op takes in the source syntax.
func NumArgs(op Op) int {
	switch {
	case op == OpNop, op == OpArgV:
		return 0
	case op == OpNeg, op == OpCopy, op == OpCast, op == OpArg:
		return 1
	case op >= OpExtSW && op <= OpSLToF:
		return 1
	case IsLoad(op), op >= OpAlloc4 && op <= OpAlloc16:
		return 1
	case op == OpCall, op == OpVACall:
		return 1
	default:
		return 2
	}
}

// HasResult reports whether op defines a temporary.
// Calls may or may not, depending on the call site.
func HasResult(op Op) bool {
	switch {
	case op == OpNop, IsStore(op), op == OpArg, op == OpArgV:
		return false
	default:
		return true
	}
}

// mnemonic returns the printed name of an instruction.
func (i *Instr) mnemonic() string {
	if i.Op == OpLoad {
		return "load" + i.Class.String()
	}
	return i.Op.String()
}
