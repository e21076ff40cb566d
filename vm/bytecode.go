package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction format
// ---------------------------------------------------------------------------

// Instruction is one 32-bit VM instruction.
//
//	 31       23       14        6      0
//	+--------+--------+--------+------+
//	|   B:9  |   C:9  |   A:8  | op:6 |   iABC
//	|      Bx:18      |   A:8  | op:6 |   iABx / iAsBx
//	|           Ax:26          | op:6 |   iAx
//	+--------+--------+--------+------+
type Instruction uint32

const (
	sizeOp = 6
	sizeA  = 8
	sizeB  = 9
	sizeC  = 9
	sizeBx = sizeB + sizeC
	sizeAx = sizeA + sizeBx

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC
	posAx = posA

	MaxArgA   = 1<<sizeA - 1
	MaxArgB   = 1<<sizeB - 1
	MaxArgC   = 1<<sizeC - 1
	MaxArgBx  = 1<<sizeBx - 1
	MaxArgSBx = MaxArgBx >> 1
	MaxArgAx  = 1<<sizeAx - 1

	// BitRK marks a B or C operand as a constant index.
	BitRK = 1 << (sizeB - 1)
	// MaxIndexRK is the largest constant index encodable as an RK operand.
	MaxIndexRK = BitRK - 1

	// FieldsPerFlush is the number of list items SETLIST stores per batch.
	FieldsPerFlush = 50
)

// IsK reports whether an RK operand names a constant.
func IsK(x int) bool { return x&BitRK != 0 }

// IndexK extracts the constant index of an RK operand.
func IndexK(x int) int { return x &^ BitRK }

// RKAsK encodes constant index k as an RK operand.
func RKAsK(k int) int { return k | BitRK }

// CreateABC builds an iABC instruction.
func CreateABC(op Opcode, a, b, c int) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(a)<<posA | uint32(b)<<posB | uint32(c)<<posC)
}

// CreateABx builds an iABx instruction.
func CreateABx(op Opcode, a, bx int) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(a)<<posA | uint32(bx)<<posBx)
}

// CreateAsBx builds an iAsBx instruction.
func CreateAsBx(op Opcode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+MaxArgSBx)
}

// CreateAx builds an iAx instruction.
func CreateAx(op Opcode, ax int) Instruction {
	return Instruction(uint32(op)<<posOp | uint32(ax)<<posAx)
}

func (i Instruction) Op() Opcode { return Opcode(i >> posOp & (1<<sizeOp - 1)) }
func (i Instruction) A() int     { return int(i >> posA & MaxArgA) }
func (i Instruction) B() int     { return int(i >> posB & MaxArgB) }
func (i Instruction) C() int     { return int(i >> posC & MaxArgC) }
func (i Instruction) Bx() int    { return int(i >> posBx & MaxArgBx) }
func (i Instruction) SBx() int   { return i.Bx() - MaxArgSBx }
func (i Instruction) Ax() int    { return int(i >> posAx & MaxArgAx) }

// SetA returns i with its A field replaced.
func (i Instruction) SetA(a int) Instruction {
	return i&^(MaxArgA<<posA) | Instruction(a)<<posA
}

// SetB returns i with its B field replaced.
func (i Instruction) SetB(b int) Instruction {
	return i&^(MaxArgB<<posB) | Instruction(b)<<posB
}

// SetC returns i with its C field replaced.
func (i Instruction) SetC(c int) Instruction {
	return i&^(MaxArgC<<posC) | Instruction(c)<<posC
}

// SetSBx returns i with its sBx field replaced.
func (i Instruction) SetSBx(sbx int) Instruction {
	return i&^(MaxArgBx<<posBx) | Instruction(sbx+MaxArgSBx)<<posBx
}

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies an instruction. R(x) is a register, K(x) a constant,
// RK(x) either, U(x) an upvalue.
type Opcode uint8

// Loads and moves
const (
	OpMove     Opcode = iota // R(A) := R(B)
	OpLoadK                  // R(A) := K(Bx)
	OpLoadKX                 // R(A) := K(extra arg)
	OpLoadBool               // R(A) := (bool)B; if (C) pc++
	OpLoadNil                // R(A), ..., R(A+B) := nil
)

// Upvalues and tables
const (
	OpGetUpval   Opcode = iota + OpLoadNil + 1 // R(A) := U(B)
	OpGetTabUp                                 // R(A) := U(B)[RK(C)]
	OpGetTable                                 // R(A) := R(B)[RK(C)]
	OpSetTabUp                                 // U(A)[RK(B)] := RK(C)
	OpSetUpval                                 // U(B) := R(A)
	OpSetTable                                 // R(A)[RK(B)] := RK(C)
	OpNewTable                                 // R(A) := {} (size hints B, C)
	OpSelf                                     // R(A+1) := R(B); R(A) := R(B)[RK(C)]
)

// Arithmetic and bitwise
const (
	OpAdd  Opcode = iota + OpSelf + 1 // R(A) := RK(B) + RK(C)
	OpSub                             // R(A) := RK(B) - RK(C)
	OpMul                             // R(A) := RK(B) * RK(C)
	OpMod                             // R(A) := RK(B) % RK(C)
	OpPow                             // R(A) := RK(B) ^ RK(C)
	OpDiv                             // R(A) := RK(B) / RK(C)
	OpIDiv                            // R(A) := RK(B) // RK(C)
	OpBAnd                            // R(A) := RK(B) & RK(C)
	OpBOr                             // R(A) := RK(B) | RK(C)
	OpBXor                            // R(A) := RK(B) ~ RK(C)
	OpShl                             // R(A) := RK(B) << RK(C)
	OpShr                             // R(A) := RK(B) >> RK(C)
	OpUnm                             // R(A) := -R(B)
	OpBNot                            // R(A) := ~R(B)
	OpNot                             // R(A) := not R(B)
	OpLen                             // R(A) := length of R(B)
	OpConcat                          // R(A) := R(B).. ... ..R(C)
)

// Control flow
const (
	OpJmp      Opcode = iota + OpConcat + 1 // pc += sBx; if (A) close upvalues >= R(A-1)
	OpEq                                    // if ((RK(B) == RK(C)) ~= A) then pc++
	OpLt                                    // if ((RK(B) <  RK(C)) ~= A) then pc++
	OpLe                                    // if ((RK(B) <= RK(C)) ~= A) then pc++
	OpTest                                  // if not (R(A) <=> C) then pc++
	OpTestSet                               // if (R(B) <=> C) then R(A) := R(B) else pc++
	OpCall                                  // R(A), ..., R(A+C-2) := R(A)(R(A+1), ..., R(A+B-1))
	OpTailCall                              // return R(A)(R(A+1), ..., R(A+B-1))
	OpReturn                                // return R(A), ..., R(A+B-2)
	OpForLoop                               // if count > 0 then update; pc -= Bx
	OpForPrep                               // prepare loop; if it runs zero times pc += Bx
	OpTForCall                              // R(A+4), ..., R(A+3+C) := R(A)(R(A+1), R(A+2))
	OpTForLoop                              // if R(A+4) ~= nil then { R(A+2) := R(A+4); pc -= Bx }
)

// Constructors and scopes
const (
	OpSetList  Opcode = iota + OpTForLoop + 1 // R(A)[(C-1)*FPF+i] := R(A+i), 1 <= i <= B
	OpClosure                                 // R(A) := closure(Protos[Bx])
	OpVararg                                  // R(A), R(A+1), ..., R(A+B-2) = vararg
	OpExtraArg                                // extra (larger) argument for previous opcode
	OpClose                                   // close upvalues and to-be-closed values >= R(A)
	OpTBC                                     // mark R(A) as to-be-closed

	numOpcodes = int(OpTBC) + 1
)

// OpMode is the operand layout of an opcode.
type OpMode uint8

const (
	ModeABC OpMode = iota
	ModeABx
	ModeAsBx
	ModeAx
)

// OpcodeInfo contains metadata about an opcode.
type OpcodeInfo struct {
	Name string
	Mode OpMode
	// SetsA is true for opcodes that write register A.
	SetsA bool
}

var opcodeTable = [numOpcodes]OpcodeInfo{
	OpMove:     {"MOVE", ModeABC, true},
	OpLoadK:    {"LOADK", ModeABx, true},
	OpLoadKX:   {"LOADKX", ModeABx, true},
	OpLoadBool: {"LOADBOOL", ModeABC, true},
	OpLoadNil:  {"LOADNIL", ModeABC, true},

	OpGetUpval: {"GETUPVAL", ModeABC, true},
	OpGetTabUp: {"GETTABUP", ModeABC, true},
	OpGetTable: {"GETTABLE", ModeABC, true},
	OpSetTabUp: {"SETTABUP", ModeABC, false},
	OpSetUpval: {"SETUPVAL", ModeABC, false},
	OpSetTable: {"SETTABLE", ModeABC, false},
	OpNewTable: {"NEWTABLE", ModeABC, true},
	OpSelf:     {"SELF", ModeABC, true},

	OpAdd:    {"ADD", ModeABC, true},
	OpSub:    {"SUB", ModeABC, true},
	OpMul:    {"MUL", ModeABC, true},
	OpMod:    {"MOD", ModeABC, true},
	OpPow:    {"POW", ModeABC, true},
	OpDiv:    {"DIV", ModeABC, true},
	OpIDiv:   {"IDIV", ModeABC, true},
	OpBAnd:   {"BAND", ModeABC, true},
	OpBOr:    {"BOR", ModeABC, true},
	OpBXor:   {"BXOR", ModeABC, true},
	OpShl:    {"SHL", ModeABC, true},
	OpShr:    {"SHR", ModeABC, true},
	OpUnm:    {"UNM", ModeABC, true},
	OpBNot:   {"BNOT", ModeABC, true},
	OpNot:    {"NOT", ModeABC, true},
	OpLen:    {"LEN", ModeABC, true},
	OpConcat: {"CONCAT", ModeABC, true},

	OpJmp:      {"JMP", ModeAsBx, false},
	OpEq:       {"EQ", ModeABC, false},
	OpLt:       {"LT", ModeABC, false},
	OpLe:       {"LE", ModeABC, false},
	OpTest:     {"TEST", ModeABC, false},
	OpTestSet:  {"TESTSET", ModeABC, true},
	OpCall:     {"CALL", ModeABC, true},
	OpTailCall: {"TAILCALL", ModeABC, true},
	OpReturn:   {"RETURN", ModeABC, false},
	OpForLoop:  {"FORLOOP", ModeABx, true},
	OpForPrep:  {"FORPREP", ModeABx, true},
	OpTForCall: {"TFORCALL", ModeABC, false},
	OpTForLoop: {"TFORLOOP", ModeABx, true},

	OpSetList:  {"SETLIST", ModeABC, false},
	OpClosure:  {"CLOSURE", ModeABx, true},
	OpVararg:   {"VARARG", ModeABC, true},
	OpExtraArg: {"EXTRAARG", ModeAx, false},
	OpClose:    {"CLOSE", ModeABC, false},
	OpTBC:      {"TBC", ModeABC, false},
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool { return int(op) < numOpcodes }

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if !op.Valid() {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
	}
	return opcodeTable[op]
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// String disassembles one instruction without context.
func (i Instruction) String() string {
	op := i.Op()
	info := op.Info()
	switch info.Mode {
	case ModeABx:
		return fmt.Sprintf("%-9s %d %d", info.Name, i.A(), i.Bx())
	case ModeAsBx:
		return fmt.Sprintf("%-9s %d %d", info.Name, i.A(), i.SBx())
	case ModeAx:
		return fmt.Sprintf("%-9s %d", info.Name, i.Ax())
	}
	return fmt.Sprintf("%-9s %d %d %d", info.Name, i.A(), rkString(i.B()), rkString(i.C()))
}

func rkString(x int) any {
	if IsK(x) {
		return fmt.Sprintf("K%d", IndexK(x))
	}
	return x
}

// Disassemble renders p and its nested prototypes as a listing.
func Disassemble(p *Prototype) string {
	var sb strings.Builder
	disassembleProto(&sb, p)
	return sb.String()
}

func disassembleProto(sb *strings.Builder, p *Prototype) {
	vararg := ""
	if p.IsVararg {
		vararg = "+"
	}
	fmt.Fprintf(sb, "function <%s:%d,%d> (%d instructions)\n", p.Source, p.LineDefined, p.LastLineDefined, len(p.Code))
	fmt.Fprintf(sb, "%d%s params, %d slots, %d upvalues, %d constants, %d functions\n",
		p.NumParams, vararg, p.MaxStack, len(p.Upvalues), len(p.Constants), len(p.Protos))
	for pc, ins := range p.Code {
		line := 0
		if pc < len(p.LineInfo) {
			line = int(p.LineInfo[pc])
		}
		fmt.Fprintf(sb, "\t%d\t[%d]\t%s", pc+1, line, ins)
		switch ins.Op() {
		case OpJmp:
			fmt.Fprintf(sb, "\t; to %d", pc+2+ins.SBx())
		case OpForLoop, OpTForLoop:
			fmt.Fprintf(sb, "\t; to %d", pc+2-ins.Bx())
		case OpForPrep:
			fmt.Fprintf(sb, "\t; exit to %d", pc+2+ins.Bx())
		case OpLoadK:
			if bx := ins.Bx(); bx < len(p.Constants) {
				fmt.Fprintf(sb, "\t; %s", p.Constants[bx])
			}
		}
		sb.WriteByte('\n')
	}
	for _, sub := range p.Protos {
		sb.WriteByte('\n')
		disassembleProto(sb, sub)
	}
}
