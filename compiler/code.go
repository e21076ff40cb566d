package compiler

import (
	"math"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Expression descriptors
// ---------------------------------------------------------------------------

const (
	noJump    = -1
	noReg     = vm.MaxArgA
	maxRegs   = 255
	maxVars   = 200
	maxUpvals = 255
)

type expKind int

const (
	kVoid     expKind = iota // empty expression list
	kNil                     // constant nil
	kTrue                    // constant true
	kFalse                   // constant false
	kK                       // info = constant index
	kKFlt                    // nval = float constant
	kKInt                    // ival = integer constant
	kNonReloc                // info = result register
	kLocal                   // info = local register
	kUpval                   // info = upvalue index
	kIndexed                 // indT, indIdx (RK), indVt = kLocal or kUpval
	kJmp                     // info = pc of the comparison's jump
	kReloc                   // info = pc of instruction whose A is still free
	kCall                    // info = pc of CALL
	kVararg                  // info = pc of VARARG
)

// expDesc describes an expression while its code is being generated. t and
// f are the patch lists of jumps taken when the expression is true or false.
type expDesc struct {
	k      expKind
	info   int
	ival   int64
	nval   float64
	indT   int
	indIdx int
	indVt  expKind
	t, f   int
}

func newExp(k expKind, info int) expDesc {
	return expDesc{k: k, info: info, t: noJump, f: noJump}
}

func (e *expDesc) init(k expKind, info int) { *e = newExp(k, info) }

func (e *expDesc) hasJumps() bool { return e.t != e.f }

func hasMultRet(k expKind) bool { return k == kCall || k == kVararg }

// isNumeral reports whether e is a numeric constant without jumps.
func (e *expDesc) isNumeral() bool {
	return !e.hasJumps() && (e.k == kKInt || e.k == kKFlt)
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (fs *funcState) pc() int { return len(fs.f.Code) }

func (fs *funcState) code(i vm.Instruction) int {
	fs.dischargeJpc()
	fs.f.Code = append(fs.f.Code, i)
	fs.f.LineInfo = append(fs.f.LineInfo, int32(fs.g.line))
	return len(fs.f.Code) - 1
}

func (fs *funcState) codeABC(op vm.Opcode, a, b, c int) int {
	return fs.code(vm.CreateABC(op, a, b, c))
}

func (fs *funcState) codeABx(op vm.Opcode, a, bx int) int {
	return fs.code(vm.CreateABx(op, a, bx))
}

func (fs *funcState) codeAsBx(op vm.Opcode, a, sbx int) int {
	return fs.code(vm.CreateAsBx(op, a, sbx))
}

func (fs *funcState) codeExtraArg(a int) int {
	if a > vm.MaxArgAx {
		fs.g.errorf("constant table overflow")
	}
	return fs.code(vm.CreateAx(vm.OpExtraArg, a))
}

// codeK loads constant k into reg.
func (fs *funcState) codeK(reg, k int) int {
	if k <= vm.MaxArgBx {
		return fs.codeABx(vm.OpLoadK, reg, k)
	}
	p := fs.codeABx(vm.OpLoadKX, reg, 0)
	fs.codeExtraArg(k)
	return p
}

// fixLine sets the line of the last instruction.
func (fs *funcState) fixLine(line int) {
	fs.f.LineInfo[len(fs.f.LineInfo)-1] = int32(line)
}

func (fs *funcState) instr(e *expDesc) *vm.Instruction { return &fs.f.Code[e.info] }

// loadNil sets n registers from "from" to nil, merging with a preceding
// LOADNIL when no jump can land between them.
func (fs *funcState) loadNil(from, n int) {
	l := from + n - 1
	if pc := fs.pc(); pc > fs.lastTarget && pc > 0 {
		prev := &fs.f.Code[pc-1]
		if prev.Op() == vm.OpLoadNil {
			pfrom := prev.A()
			pl := pfrom + prev.B()
			if (pfrom <= from && from <= pl+1) || (from <= pfrom && pfrom <= l+1) {
				from = min(from, pfrom)
				l = max(l, pl)
				*prev = prev.SetA(from).SetB(l - from)
				return
			}
		}
	}
	fs.codeABC(vm.OpLoadNil, from, n-1, 0)
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func (fs *funcState) getJump(pc int) int {
	offset := fs.f.Code[pc].SBx()
	if offset == noJump {
		return noJump
	}
	return pc + 1 + offset
}

func (fs *funcState) fixJump(pc, dest int) {
	offset := dest - (pc + 1)
	if offset > vm.MaxArgSBx || offset < -vm.MaxArgSBx {
		fs.g.errorf("control structure too long")
	}
	fs.f.Code[pc] = fs.f.Code[pc].SetSBx(offset)
}

// concatJumps appends list l2 to list *l1.
func (fs *funcState) concatJumps(l1 *int, l2 int) {
	switch {
	case l2 == noJump:
	case *l1 == noJump:
		*l1 = l2
	default:
		list := *l1
		for next := fs.getJump(list); next != noJump; next = fs.getJump(list) {
			list = next
		}
		fs.fixJump(list, l2)
	}
}

// jump emits an unconditional jump, absorbing pending jumps to here.
func (fs *funcState) jump() int {
	jpc := fs.jpc
	fs.jpc = noJump
	j := fs.codeAsBx(vm.OpJmp, 0, noJump)
	fs.concatJumps(&j, jpc)
	return j
}

func (fs *funcState) ret(first, nret int) {
	fs.codeABC(vm.OpReturn, first, nret+1, 0)
}

func (fs *funcState) condJump(op vm.Opcode, a, b, c int) int {
	fs.codeABC(op, a, b, c)
	return fs.jump()
}

// getLabel marks the current pc as a jump target.
func (fs *funcState) getLabel() int {
	fs.lastTarget = fs.pc()
	return fs.lastTarget
}

func isTestOp(op vm.Opcode) bool {
	switch op {
	case vm.OpEq, vm.OpLt, vm.OpLe, vm.OpTest, vm.OpTestSet:
		return true
	}
	return false
}

// jumpControl returns the pc of the instruction controlling jump pc.
func (fs *funcState) jumpControl(pc int) int {
	if pc >= 1 && isTestOp(fs.f.Code[pc-1].Op()) {
		return pc - 1
	}
	return pc
}

// patchTestReg makes the TESTSET controlling node store into reg, or turns
// it into a TEST when there is no register. It reports false when node is
// not controlled by a TESTSET.
func (fs *funcState) patchTestReg(node, reg int) bool {
	pc := fs.jumpControl(node)
	i := fs.f.Code[pc]
	if i.Op() != vm.OpTestSet {
		return false
	}
	if reg != noReg && reg != i.B() {
		fs.f.Code[pc] = i.SetA(reg)
	} else {
		fs.f.Code[pc] = vm.CreateABC(vm.OpTest, i.B(), 0, i.C())
	}
	return true
}

func (fs *funcState) removeValues(list int) {
	for ; list != noJump; list = fs.getJump(list) {
		fs.patchTestReg(list, noReg)
	}
}

func (fs *funcState) patchListAux(list, vtarget, reg, dtarget int) {
	for list != noJump {
		next := fs.getJump(list)
		if fs.patchTestReg(list, reg) {
			fs.fixJump(list, vtarget)
		} else {
			fs.fixJump(list, dtarget)
		}
		list = next
	}
}

func (fs *funcState) dischargeJpc() {
	pc := len(fs.f.Code)
	fs.patchListAux(fs.jpc, pc, noReg, pc)
	fs.jpc = noJump
}

func (fs *funcState) patchList(list, target int) {
	if target == fs.pc() {
		fs.patchToHere(list)
		return
	}
	fs.patchListAux(list, target, noReg, target)
}

func (fs *funcState) patchToHere(list int) {
	fs.getLabel()
	fs.concatJumps(&fs.jpc, list)
}

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

func (fs *funcState) checkStack(n int) {
	newStack := fs.freeReg + n
	if newStack > int(fs.f.MaxStack) {
		if newStack >= maxRegs {
			fs.g.errorf("function or expression needs too many registers")
		}
		fs.f.MaxStack = uint8(newStack)
	}
}

func (fs *funcState) reserveRegs(n int) {
	fs.checkStack(n)
	fs.freeReg += n
}

func (fs *funcState) freeRegister(reg int) {
	if !vm.IsK(reg) && reg >= fs.nactvar {
		fs.freeReg--
	}
}

func (fs *funcState) freeExp(e *expDesc) {
	if e.k == kNonReloc {
		fs.freeRegister(e.info)
	}
}

// freeExps frees the registers of two expressions in the right order.
func (fs *funcState) freeExps(e1, e2 *expDesc) {
	r1, r2 := -1, -1
	if e1.k == kNonReloc {
		r1 = e1.info
	}
	if e2.k == kNonReloc {
		r2 = e2.info
	}
	if r1 > r2 {
		if r1 >= 0 {
			fs.freeRegister(r1)
		}
		if r2 >= 0 {
			fs.freeRegister(r2)
		}
	} else {
		if r2 >= 0 {
			fs.freeRegister(r2)
		}
		if r1 >= 0 {
			fs.freeRegister(r1)
		}
	}
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

type constKey struct {
	kind vm.ConstKind
	bits uint64
	str  string
}

func (fs *funcState) addK(key constKey, c vm.Constant) int {
	if idx, ok := fs.kcache[key]; ok {
		return idx
	}
	idx := len(fs.f.Constants)
	fs.f.Constants = append(fs.f.Constants, c)
	fs.kcache[key] = idx
	return idx
}

func (fs *funcState) stringK(s string) int {
	return fs.addK(constKey{kind: vm.ConstString, str: s}, vm.StringConstant(s))
}

func (fs *funcState) intK(i int64) int {
	return fs.addK(constKey{kind: vm.ConstInt, bits: uint64(i)}, vm.IntConstant(i))
}

func (fs *funcState) numberK(f float64) int {
	return fs.addK(constKey{kind: vm.ConstFloat, bits: math.Float64bits(f)}, vm.FloatConstant(f))
}

func (fs *funcState) boolK(b bool) int {
	var bits uint64
	if b {
		bits = 1
	}
	return fs.addK(constKey{kind: vm.ConstBool, bits: bits}, vm.BoolConstant(b))
}

func (fs *funcState) nilK() int {
	return fs.addK(constKey{kind: vm.ConstNil}, vm.NilConstant())
}

// ---------------------------------------------------------------------------
// Discharging expressions
// ---------------------------------------------------------------------------

// setReturns fixes the number of results of a multi-value expression.
func (fs *funcState) setReturns(e *expDesc, nresults int) {
	switch e.k {
	case kCall:
		*fs.instr(e) = fs.instr(e).SetC(nresults + 1)
	case kVararg:
		i := fs.instr(e).SetB(nresults + 1).SetA(fs.freeReg)
		*fs.instr(e) = i
		fs.reserveRegs(1)
	}
}

func (fs *funcState) setMultRet(e *expDesc) { fs.setReturns(e, vm.MultRet) }

// setOneRet truncates a multi-value expression to one value.
func (fs *funcState) setOneRet(e *expDesc) {
	switch e.k {
	case kCall:
		e.k = kNonReloc
		e.info = fs.instr(e).A()
	case kVararg:
		*fs.instr(e) = fs.instr(e).SetB(2)
		e.k = kReloc
	}
}

// dischargeVars turns variable references into values.
func (fs *funcState) dischargeVars(e *expDesc) {
	switch e.k {
	case kLocal:
		e.k = kNonReloc
	case kUpval:
		e.info = fs.codeABC(vm.OpGetUpval, 0, e.info, 0)
		e.k = kReloc
	case kIndexed:
		op := vm.OpGetTabUp
		fs.freeRegister(e.indIdx)
		if e.indVt == kLocal {
			fs.freeRegister(e.indT)
			op = vm.OpGetTable
		}
		e.info = fs.codeABC(op, 0, e.indT, e.indIdx)
		e.k = kReloc
	case kVararg, kCall:
		fs.setOneRet(e)
	}
}

func (fs *funcState) discharge2Reg(e *expDesc, reg int) {
	fs.dischargeVars(e)
	switch e.k {
	case kNil:
		fs.loadNil(reg, 1)
	case kFalse, kTrue:
		b := 0
		if e.k == kTrue {
			b = 1
		}
		fs.codeABC(vm.OpLoadBool, reg, b, 0)
	case kK:
		fs.codeK(reg, e.info)
	case kKFlt:
		fs.codeK(reg, fs.numberK(e.nval))
	case kKInt:
		fs.codeK(reg, fs.intK(e.ival))
	case kReloc:
		*fs.instr(e) = fs.instr(e).SetA(reg)
	case kNonReloc:
		if reg != e.info {
			fs.codeABC(vm.OpMove, reg, e.info, 0)
		}
	default:
		return // kVoid or kJmp: nothing to do
	}
	e.info = reg
	e.k = kNonReloc
}

func (fs *funcState) discharge2AnyReg(e *expDesc) {
	if e.k != kNonReloc {
		fs.reserveRegs(1)
		fs.discharge2Reg(e, fs.freeReg-1)
	}
}

func (fs *funcState) codeLoadBool(a, b, jump int) int {
	fs.getLabel()
	return fs.codeABC(vm.OpLoadBool, a, b, jump)
}

// needValue reports whether a jump list has a jump not produced by a
// TESTSET, which then needs an explicit boolean value.
func (fs *funcState) needValue(list int) bool {
	for ; list != noJump; list = fs.getJump(list) {
		if fs.f.Code[fs.jumpControl(list)].Op() != vm.OpTestSet {
			return true
		}
	}
	return false
}

// exp2Reg puts the final value of e, jumps included, into reg.
func (fs *funcState) exp2Reg(e *expDesc, reg int) {
	fs.discharge2Reg(e, reg)
	if e.k == kJmp {
		fs.concatJumps(&e.t, e.info)
	}
	if e.hasJumps() {
		pf, pt := noJump, noJump
		if fs.needValue(e.t) || fs.needValue(e.f) {
			fj := noJump
			if e.k != kJmp {
				fj = fs.jump()
			}
			pf = fs.codeLoadBool(reg, 0, 1)
			pt = fs.codeLoadBool(reg, 1, 0)
			fs.patchToHere(fj)
		}
		final := fs.getLabel()
		fs.patchListAux(e.f, final, reg, pf)
		fs.patchListAux(e.t, final, reg, pt)
	}
	e.f, e.t = noJump, noJump
	e.info = reg
	e.k = kNonReloc
}

func (fs *funcState) exp2NextReg(e *expDesc) {
	fs.dischargeVars(e)
	fs.freeExp(e)
	fs.reserveRegs(1)
	fs.exp2Reg(e, fs.freeReg-1)
}

func (fs *funcState) exp2AnyReg(e *expDesc) int {
	fs.dischargeVars(e)
	if e.k == kNonReloc {
		if !e.hasJumps() {
			return e.info
		}
		if e.info >= fs.nactvar {
			fs.exp2Reg(e, e.info)
			return e.info
		}
	}
	fs.exp2NextReg(e)
	return e.info
}

// exp2AnyRegUp leaves upvalues alone so they can be indexed directly.
func (fs *funcState) exp2AnyRegUp(e *expDesc) {
	if e.k != kUpval || e.hasJumps() {
		fs.exp2AnyReg(e)
	}
}

func (fs *funcState) exp2Val(e *expDesc) {
	if e.hasJumps() {
		fs.exp2AnyReg(e)
	} else {
		fs.dischargeVars(e)
	}
}

// exp2RK returns an RK operand for e: a constant index when it fits,
// otherwise a register.
func (fs *funcState) exp2RK(e *expDesc) int {
	fs.exp2Val(e)
	switch e.k {
	case kTrue, kFalse:
		e.info = fs.boolK(e.k == kTrue)
		e.k = kK
	case kNil:
		e.info = fs.nilK()
		e.k = kK
	case kKInt:
		e.info = fs.intK(e.ival)
		e.k = kK
	case kKFlt:
		e.info = fs.numberK(e.nval)
		e.k = kK
	}
	if e.k == kK && e.info <= vm.MaxIndexRK {
		return vm.RKAsK(e.info)
	}
	return fs.exp2AnyReg(e)
}

// storeVar assigns ex to variable v.
func (fs *funcState) storeVar(v, ex *expDesc) {
	switch v.k {
	case kLocal:
		fs.freeExp(ex)
		fs.exp2Reg(ex, v.info)
		return
	case kUpval:
		e := fs.exp2AnyReg(ex)
		fs.codeABC(vm.OpSetUpval, e, v.info, 0)
	case kIndexed:
		op := vm.OpSetTabUp
		if v.indVt == kLocal {
			op = vm.OpSetTable
		}
		e := fs.exp2RK(ex)
		fs.codeABC(op, v.indT, v.indIdx, e)
	}
	fs.freeExp(ex)
}

// self emits SELF: e becomes the method and the object goes above it.
func (fs *funcState) self(e, key *expDesc) {
	fs.exp2AnyReg(e)
	ereg := e.info
	fs.freeExp(e)
	e.info = fs.freeReg
	e.k = kNonReloc
	fs.reserveRegs(2)
	fs.codeABC(vm.OpSelf, e.info, ereg, fs.exp2RK(key))
	fs.freeExp(key)
}

// indexed turns t (a local or upvalue) into the indexed access t[k].
func (fs *funcState) indexed(t, k *expDesc) {
	t.indT = t.info
	t.indIdx = fs.exp2RK(k)
	if t.k == kUpval {
		t.indVt = kUpval
	} else {
		t.indVt = kLocal
	}
	t.k = kIndexed
}

// ---------------------------------------------------------------------------
// Conditions
// ---------------------------------------------------------------------------

func (fs *funcState) negateCondition(e *expDesc) {
	pc := fs.jumpControl(e.info)
	i := fs.f.Code[pc]
	a := 0
	if i.A() == 0 {
		a = 1
	}
	fs.f.Code[pc] = i.SetA(a)
}

func (fs *funcState) jumpOnCond(e *expDesc, cond int) int {
	if e.k == kReloc {
		if ie := *fs.instr(e); ie.Op() == vm.OpNot {
			// Drop the NOT and test its operand with the opposite condition.
			fs.f.Code = fs.f.Code[:len(fs.f.Code)-1]
			fs.f.LineInfo = fs.f.LineInfo[:len(fs.f.LineInfo)-1]
			return fs.condJump(vm.OpTest, ie.B(), 0, 1-cond)
		}
	}
	fs.discharge2AnyReg(e)
	fs.freeExp(e)
	return fs.condJump(vm.OpTestSet, noReg, e.info, cond)
}

// goIfTrue emits code to fall through when e is true and jump otherwise.
func (fs *funcState) goIfTrue(e *expDesc) {
	fs.dischargeVars(e)
	var pc int
	switch e.k {
	case kJmp:
		fs.negateCondition(e)
		pc = e.info
	case kK, kKFlt, kKInt, kTrue:
		pc = noJump
	default:
		pc = fs.jumpOnCond(e, 0)
	}
	fs.concatJumps(&e.f, pc)
	fs.patchToHere(e.t)
	e.t = noJump
}

// goIfFalse emits code to fall through when e is false and jump otherwise.
func (fs *funcState) goIfFalse(e *expDesc) {
	fs.dischargeVars(e)
	var pc int
	switch e.k {
	case kJmp:
		pc = e.info
	case kNil, kFalse:
		pc = noJump
	default:
		pc = fs.jumpOnCond(e, 1)
	}
	fs.concatJumps(&e.t, pc)
	fs.patchToHere(e.f)
	e.f = noJump
}

func (fs *funcState) codeNot(e *expDesc) {
	fs.dischargeVars(e)
	switch e.k {
	case kNil, kFalse:
		e.k = kTrue
	case kK, kKFlt, kKInt, kTrue:
		e.k = kFalse
	case kJmp:
		fs.negateCondition(e)
	case kReloc, kNonReloc:
		fs.discharge2AnyReg(e)
		fs.freeExp(e)
		e.info = fs.codeABC(vm.OpNot, 0, e.info, 0)
		e.k = kReloc
	}
	e.f, e.t = e.t, e.f
	fs.removeValues(e.f)
	fs.removeValues(e.t)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (fs *funcState) codeUnExpVal(op vm.Opcode, e *expDesc, line int) {
	r := fs.exp2AnyReg(e)
	fs.freeExp(e)
	e.info = fs.codeABC(op, 0, r, 0)
	e.k = kReloc
	fs.fixLine(line)
}

func (fs *funcState) codeBinExpVal(op vm.Opcode, e1, e2 *expDesc, line int) {
	rk2 := fs.exp2RK(e2)
	rk1 := fs.exp2RK(e1)
	fs.freeExps(e1, e2)
	e1.info = fs.codeABC(op, 0, rk1, rk2)
	e1.k = kReloc
	fs.fixLine(line)
}

func (fs *funcState) codeComp(op BinOp, e1, e2 *expDesc) {
	rk1 := e1.info
	if e1.k == kK {
		rk1 = vm.RKAsK(e1.info)
	}
	rk2 := fs.exp2RK(e2)
	fs.freeExps(e1, e2)
	switch op {
	case OpNe:
		e1.info = fs.condJump(vm.OpEq, 0, rk1, rk2)
	case OpGt:
		e1.info = fs.condJump(vm.OpLt, 1, rk2, rk1)
	case OpGe:
		e1.info = fs.condJump(vm.OpLe, 1, rk2, rk1)
	case OpEq:
		e1.info = fs.condJump(vm.OpEq, 1, rk1, rk2)
	case OpLt:
		e1.info = fs.condJump(vm.OpLt, 1, rk1, rk2)
	case OpLe:
		e1.info = fs.condJump(vm.OpLe, 1, rk1, rk2)
	}
	e1.k = kJmp
}

func (fs *funcState) prefix(op UnOp, e *expDesc, line int) {
	switch op {
	case OpMinus, OpBNot:
		if foldUnary(op, e) {
			return
		}
		code := vm.OpUnm
		if op == OpBNot {
			code = vm.OpBNot
		}
		fs.codeUnExpVal(code, e, line)
	case OpLen:
		fs.codeUnExpVal(vm.OpLen, e, line)
	case OpNot:
		fs.codeNot(e)
	}
}

// infix prepares the first operand before the second is compiled.
func (fs *funcState) infix(op BinOp, v *expDesc) {
	switch op {
	case OpAnd:
		fs.goIfTrue(v)
	case OpOr:
		fs.goIfFalse(v)
	case OpConcat:
		fs.exp2NextReg(v)
	case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		if !v.isNumeral() {
			fs.exp2RK(v)
		}
	default:
		fs.exp2RK(v)
	}
}

func (fs *funcState) posfix(op BinOp, e1, e2 *expDesc, line int) {
	switch op {
	case OpAnd:
		fs.dischargeVars(e2)
		fs.concatJumps(&e2.f, e1.f)
		*e1 = *e2
	case OpOr:
		fs.dischargeVars(e2)
		fs.concatJumps(&e2.t, e1.t)
		*e1 = *e2
	case OpConcat:
		fs.exp2Val(e2)
		if e2.k == kReloc && fs.instr(e2).Op() == vm.OpConcat {
			// Extend the following CONCAT down to e1's register.
			fs.freeExp(e1)
			*fs.instr(e2) = fs.instr(e2).SetB(e1.info)
			e1.k = kReloc
			e1.info = e2.info
		} else {
			fs.exp2NextReg(e2)
			fs.codeBinExpVal(vm.OpConcat, e1, e2, line)
		}
	case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		if !foldBinary(op, e1, e2) {
			fs.codeBinExpVal(vm.OpAdd+vm.Opcode(op-OpAdd), e1, e2, line)
		}
	default:
		fs.codeComp(op, e1, e2)
	}
}

// setList flushes tostore list items of the table in register base.
func (fs *funcState) setList(base, nelems, tostore int) {
	c := (nelems-1)/vm.FieldsPerFlush + 1
	b := tostore
	if tostore == vm.MultRet {
		b = 0
	}
	if c <= vm.MaxArgC {
		fs.codeABC(vm.OpSetList, base, b, c)
	} else {
		fs.codeABC(vm.OpSetList, base, b, 0)
		fs.codeExtraArg(c)
	}
	fs.freeReg = base + 1
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

func numeral(e *expDesc) (int64, float64, bool) {
	if e.k == kKInt {
		return e.ival, float64(e.ival), true
	}
	return 0, e.nval, false
}

// toIntExact converts a numeral to an integer when it has an exact integer
// value.
func toIntExact(e *expDesc) (int64, bool) {
	if e.k == kKInt {
		return e.ival, true
	}
	f := e.nval
	if math.Floor(f) != f || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func setNumeral(e *expDesc, isInt bool, i int64, f float64) bool {
	if isInt {
		e.k, e.ival = kKInt, i
		return true
	}
	// Folding NaN or zero would lose -0 and NaN identity in constants.
	if math.IsNaN(f) || f == 0 {
		return false
	}
	e.k, e.nval = kKFlt, f
	return true
}

func foldUnary(op UnOp, e *expDesc) bool {
	if !e.isNumeral() {
		return false
	}
	if op == OpBNot {
		i, ok := toIntExact(e)
		if !ok {
			return false
		}
		return setNumeral(e, true, ^i, 0)
	}
	if e.k == kKInt {
		return setNumeral(e, true, -e.ival, 0)
	}
	return setNumeral(e, false, 0, -e.nval)
}

func foldBinary(op BinOp, e1, e2 *expDesc) bool {
	if !e1.isNumeral() || !e2.isNumeral() {
		return false
	}
	switch op {
	case OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		a, ok1 := toIntExact(e1)
		b, ok2 := toIntExact(e2)
		if !ok1 || !ok2 {
			return false
		}
		var r int64
		switch op {
		case OpBAnd:
			r = a & b
		case OpBOr:
			r = a | b
		case OpBXor:
			r = a ^ b
		case OpShl:
			r = shiftLeft(a, b)
		case OpShr:
			r = shiftLeft(a, -b)
		}
		return setNumeral(e1, true, r, 0)
	}
	i1, f1, isInt1 := numeral(e1)
	i2, f2, isInt2 := numeral(e2)
	if isInt1 && isInt2 {
		switch op {
		case OpAdd:
			return setNumeral(e1, true, i1+i2, 0)
		case OpSub:
			return setNumeral(e1, true, i1-i2, 0)
		case OpMul:
			return setNumeral(e1, true, i1*i2, 0)
		case OpIDiv, OpMod:
			if i2 == 0 {
				return false
			}
			if op == OpIDiv {
				return setNumeral(e1, true, floorDiv(i1, i2), 0)
			}
			return setNumeral(e1, true, floorMod(i1, i2), 0)
		}
	}
	var r float64
	switch op {
	case OpAdd:
		r = f1 + f2
	case OpSub:
		r = f1 - f2
	case OpMul:
		r = f1 * f2
	case OpDiv:
		r = f1 / f2
	case OpPow:
		r = math.Pow(f1, f2)
	case OpIDiv:
		r = math.Floor(f1 / f2)
	case OpMod:
		r = math.Mod(f1, f2)
		if r != 0 && (r > 0) != (f2 > 0) {
			r += f2
		}
	default:
		return false
	}
	return setNumeral(e1, false, 0, r)
}

func shiftLeft(x, n int64) int64 {
	switch {
	case n <= -64 || n >= 64:
		return 0
	case n >= 0:
		return int64(uint64(x) << uint(n))
	}
	return int64(uint64(x) >> uint(-n))
}

func floorDiv(a, b int64) int64 {
	if b == -1 {
		return -a
	}
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	if b == -1 {
		return 0
	}
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}
