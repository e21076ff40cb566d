package vm

import "math"

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// execute runs script frames starting at ci until a frame marked cistFresh
// returns. Script-to-script calls and returns switch frames inside the
// loop; only native reentry (metamethods, Call from Go) recurses.
//
// Register and constant operands are checked against the prototype before
// use, so corrupt bytecode raises a runtime error instead of a Go fault.
//
// Invariant on top: while a script frame runs, t.top is ci.top except right
// after an instruction producing a variable number of values (CALL with
// C=0, VARARG with B=0), where it marks the end of those values for the
// consuming CALL, RETURN or SETLIST.
func (t *Thread) execute(ci *callInfo) {
	cl := t.stack[ci.fn].cl()
	p := cl.proto
	base := ci.fn + 1

	for {
		pc := ci.savedpc
		if pc >= len(p.Code) {
			t.runError("bad bytecode: pc %d out of range", pc)
		}
		i := p.Code[pc]
		ci.savedpc = pc + 1
		a := i.A()
		ra := base + a

		switch op := i.Op(); op {
		case OpMove:
			t.checkReg(p, a)
			t.stack[ra] = t.stack[t.reg(p, base, i.B())]

		case OpLoadK:
			t.checkReg(p, a)
			t.stack[ra] = t.constant(p, i.Bx())

		case OpLoadKX:
			t.checkReg(p, a)
			if ci.savedpc >= len(p.Code) || p.Code[ci.savedpc].Op() != OpExtraArg {
				t.runError("bad bytecode: LOADKX without EXTRAARG")
			}
			t.stack[ra] = t.constant(p, p.Code[ci.savedpc].Ax())
			ci.savedpc++

		case OpLoadBool:
			t.checkReg(p, a)
			t.stack[ra] = Bool(i.B() != 0)
			if i.C() != 0 {
				t.jump(ci, p, 1)
			}

		case OpLoadNil:
			b := i.B()
			t.checkReg(p, a+b)
			for j := 0; j <= b; j++ {
				t.stack[ra+j] = Nil
			}

		case OpGetUpval:
			t.checkReg(p, a)
			t.stack[ra] = t.upval(cl, i.B()).get()

		case OpGetTabUp:
			t.checkReg(p, a)
			b := i.B()
			key := t.rk(p, base, i.C())
			t.top = ci.top
			t.stack[ra] = t.getTable(t.upval(cl, b).get(), key, upvalOperand(b))

		case OpGetTable:
			t.checkReg(p, a)
			rb := t.reg(p, base, i.B())
			key := t.rk(p, base, i.C())
			t.top = ci.top
			t.stack[ra] = t.getTable(t.stack[rb], key, stackOperand(rb))

		case OpSetTabUp:
			key := t.rk(p, base, i.B())
			val := t.rk(p, base, i.C())
			t.top = ci.top
			t.setTable(t.upval(cl, a).get(), key, val, upvalOperand(a))

		case OpSetUpval:
			t.checkReg(p, a)
			t.upval(cl, i.B()).set(t.rt, t.stack[ra])

		case OpSetTable:
			t.checkReg(p, a)
			key := t.rk(p, base, i.B())
			val := t.rk(p, base, i.C())
			t.top = ci.top
			t.setTable(t.stack[ra], key, val, stackOperand(ra))

		case OpNewTable:
			t.checkReg(p, a)
			t.stack[ra] = tableValue(t.rt.newTable(i.B(), i.C()))
			t.top = ci.top
			t.checkGC()

		case OpSelf:
			t.checkReg(p, a+1)
			rb := t.reg(p, base, i.B())
			obj := t.stack[rb]
			key := t.rk(p, base, i.C())
			t.stack[ra+1] = obj
			t.top = ci.top
			t.stack[ra] = t.getTable(obj, key, stackOperand(rb))

		case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
			OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
			t.checkReg(p, a)
			b, c := i.B(), i.C()
			rb, rc := t.rk(p, base, b), t.rk(p, base, c)
			if rb.vt == vtInt && rc.vt == vtInt {
				switch op {
				case OpAdd:
					t.stack[ra] = Int(rb.ival() + rc.ival())
					continue
				case OpSub:
					t.stack[ra] = Int(rb.ival() - rc.ival())
					continue
				case OpMul:
					t.stack[ra] = Int(rb.ival() * rc.ival())
					continue
				}
			} else if rb.vt == vtFloat && rc.vt == vtFloat {
				switch op {
				case OpAdd:
					t.stack[ra] = Float(rb.fval() + rc.fval())
					continue
				case OpSub:
					t.stack[ra] = Float(rb.fval() - rc.fval())
					continue
				case OpMul:
					t.stack[ra] = Float(rb.fval() * rc.fval())
					continue
				case OpDiv:
					t.stack[ra] = Float(rb.fval() / rc.fval())
					continue
				}
			}
			t.top = ci.top
			t.stack[ra] = t.arith(ArithOp(op-OpAdd), rb, rc, rkOperand(base, b), rkOperand(base, c))

		case OpUnm, OpBNot:
			t.checkReg(p, a)
			rb := t.reg(p, base, i.B())
			v := t.stack[rb]
			if op == OpUnm && v.vt == vtInt {
				t.stack[ra] = Int(-v.ival())
				continue
			}
			arithOp := ArithUnm
			if op == OpBNot {
				arithOp = ArithBNot
			}
			t.top = ci.top
			t.stack[ra] = t.arith(arithOp, v, v, stackOperand(rb), stackOperand(rb))

		case OpNot:
			t.checkReg(p, a)
			t.stack[ra] = Bool(t.stack[t.reg(p, base, i.B())].IsFalsy())

		case OpLen:
			t.checkReg(p, a)
			rb := t.reg(p, base, i.B())
			t.top = ci.top
			t.stack[ra] = t.objLen(t.stack[rb], stackOperand(rb))

		case OpConcat:
			t.checkReg(p, a)
			b, c := i.B(), i.C()
			t.checkReg(p, c)
			if b > c {
				t.runError("bad bytecode: CONCAT range %d..%d", b, c)
			}
			t.top = base + c + 1
			t.concat(c - b + 1)
			t.stack[ra] = t.stack[base+b]
			t.top = ci.top
			t.checkGC()

		case OpJmp:
			if a != 0 {
				t.closeUpvalues(base + a - 1)
			}
			t.jump(ci, p, i.SBx())

		case OpEq, OpLt, OpLe:
			rb, rc := t.rk(p, base, i.B()), t.rk(p, base, i.C())
			t.top = ci.top
			var res bool
			switch op {
			case OpEq:
				res = t.equalObj(rb, rc)
			case OpLt:
				res = t.lessThan(rb, rc)
			default:
				res = t.lessEqual(rb, rc)
			}
			if res != (a != 0) {
				t.jump(ci, p, 1)
			}

		case OpTest:
			t.checkReg(p, a)
			if t.stack[ra].IsFalsy() == (i.C() != 0) {
				t.jump(ci, p, 1)
			}

		case OpTestSet:
			t.checkReg(p, a)
			rb := t.stack[t.reg(p, base, i.B())]
			if rb.IsFalsy() == (i.C() != 0) {
				t.jump(ci, p, 1)
			} else {
				t.stack[ra] = rb
			}

		case OpCall:
			t.checkReg(p, a)
			if b := i.B(); b != 0 {
				t.checkReg(p, a+b-1)
				t.top = ra + b
			}
			nresults := i.C() - 1
			if next := t.precall(ra, nresults); next != nil {
				ci = next
				cl, p, base = t.enterFrame(ci)
			} else if nresults >= 0 {
				t.top = ci.top
			}

		case OpTailCall:
			t.checkReg(p, a)
			if b := i.B(); b != 0 {
				t.checkReg(p, a+b-1)
				t.top = ra + b
			}
			if t.hasOpenAbove(base) {
				t.closeUpvalues(base)
			}
			for !t.stack[ra].IsFunction() {
				t.tryFuncTM(ra)
			}
			if t.stack[ra].cl().proto == nil {
				// Native callee: call it here and return its results.
				t.precall(ra, MultRet)
				if t.doReturn(ci, p, ra, t.top-ra) {
					return
				}
				ci = t.ci
				cl, p, base = t.enterFrame(ci)
				continue
			}
			ci, cl, p, base = t.tailCall(ci, p, ra)

		case OpReturn:
			n := i.B() - 1
			if n < 0 {
				t.checkReg(p, a)
				n = t.top - ra
			} else if n > 0 {
				t.checkReg(p, a+n-1)
			}
			if t.doReturn(ci, p, ra, n) {
				return
			}
			ci = t.ci
			cl, p, base = t.enterFrame(ci)

		case OpForLoop:
			t.checkReg(p, a+3)
			if t.stack[ra+2].vt == vtInt {
				count := uint64(t.stack[ra+1].ival())
				if count > 0 {
					idx := t.stack[ra].ival() + t.stack[ra+2].ival()
					t.stack[ra+1] = Int(int64(count - 1))
					t.stack[ra] = Int(idx)
					t.stack[ra+3] = Int(idx)
					t.jump(ci, p, -i.Bx())
				}
			} else if t.floatForLoop(ra) {
				t.jump(ci, p, -i.Bx())
			}

		case OpForPrep:
			t.checkReg(p, a+3)
			if t.forPrep(ra) {
				t.jump(ci, p, i.Bx())
			}

		case OpTForCall:
			nres := i.C()
			t.checkReg(p, max(a+3+nres, a+6))
			cb := ra + 4
			t.stack[cb] = t.stack[ra]
			t.stack[cb+1] = t.stack[ra+1]
			t.stack[cb+2] = t.stack[ra+2]
			t.top = cb + 3
			t.call(cb, nres)
			t.top = ci.top

		case OpTForLoop:
			t.checkReg(p, a+4)
			if v := t.stack[ra+4]; !v.IsNil() {
				t.stack[ra+2] = v
				t.jump(ci, p, -i.Bx())
			}

		case OpSetList:
			t.checkReg(p, a)
			n, c := i.B(), i.C()
			if n == 0 {
				n = t.top - ra - 1
			} else {
				t.checkReg(p, a+n)
			}
			if c == 0 {
				if ci.savedpc >= len(p.Code) || p.Code[ci.savedpc].Op() != OpExtraArg {
					t.runError("bad bytecode: SETLIST without EXTRAARG")
				}
				c = p.Code[ci.savedpc].Ax()
				ci.savedpc++
			}
			tb, ok := t.stack[ra].AsTable()
			if !ok {
				t.runError("bad bytecode: SETLIST target is not a table")
			}
			first := int64(c-1) * FieldsPerFlush
			for j := 1; j <= n; j++ {
				tb.rawset(Int(first+int64(j)), t.stack[ra+j])
			}
			t.top = ci.top

		case OpClosure:
			t.checkReg(p, a)
			bx := i.Bx()
			if bx >= len(p.Protos) {
				t.runError("bad bytecode: function index %d out of range", bx)
			}
			t.stack[ra] = functionValue(t.newClosure(p.Protos[bx], cl, base))
			t.top = ci.top
			t.checkGC()

		case OpVararg:
			t.checkReg(p, a)
			n := ci.nextraargs
			b := i.B() - 1
			if b < 0 {
				b = n
				t.top = ra
				t.checkStack(n)
				t.top = ra + n
			} else if b > 0 {
				t.checkReg(p, a+b-1)
			}
			for j := 0; j < b; j++ {
				if j < n {
					t.stack[ra+j] = t.stack[ci.fn-n+j]
				} else {
					t.stack[ra+j] = Nil
				}
			}

		case OpClose:
			t.checkReg(p, a)
			t.top = ci.top
			t.closeAll(ra, nil)

		case OpTBC:
			t.checkReg(p, a)
			t.top = ci.top
			t.newTBC(ra, p.localName(a+1, pc+1))

		default:
			t.runError("bad bytecode: opcode %d", int(op))
		}
	}
}

func (t *Thread) enterFrame(ci *callInfo) (*Closure, *Prototype, int) {
	cl := t.stack[ci.fn].cl()
	return cl, cl.proto, ci.fn + 1
}

// ---------------------------------------------------------------------------
// Operand access
// ---------------------------------------------------------------------------

func (t *Thread) checkReg(p *Prototype, r int) {
	if r >= int(p.MaxStack) {
		t.runError("bad bytecode: register %d out of range", r)
	}
}

func (t *Thread) reg(p *Prototype, base, r int) int {
	t.checkReg(p, r)
	return base + r
}

func (t *Thread) constant(p *Prototype, k int) Value {
	if k >= len(p.k) {
		t.runError("bad bytecode: constant %d out of range", k)
	}
	return p.k[k]
}

// rk returns register or constant operand x.
func (t *Thread) rk(p *Prototype, base, x int) Value {
	if IsK(x) {
		return t.constant(p, IndexK(x))
	}
	t.checkReg(p, x)
	return t.stack[base+x]
}

func rkOperand(base, x int) operand {
	if IsK(x) {
		return noOperand
	}
	return stackOperand(base + x)
}

func (t *Thread) upval(cl *Closure, u int) *Upvalue {
	if u >= len(cl.upvals) {
		t.runError("bad bytecode: upvalue %d out of range", u)
	}
	return cl.upvals[u]
}

// jump moves the saved pc by offset, relative to the next instruction.
func (t *Thread) jump(ci *callInfo, p *Prototype, offset int) {
	dest := ci.savedpc + offset
	if dest < 0 || dest >= len(p.Code) {
		t.runError("bad bytecode: jump to %d out of range", dest)
	}
	ci.savedpc = dest
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// newClosure instantiates p inside the running closure enclosing, whose
// registers start at base.
func (t *Thread) newClosure(p *Prototype, enclosing *Closure, base int) *Closure {
	c := t.rt.newScriptClosure(p)
	for j, uv := range p.Upvalues {
		idx := int(uv.Index)
		if uv.InStack {
			if idx >= int(enclosing.proto.MaxStack) {
				t.runError("bad bytecode: upvalue register %d out of range", idx)
			}
			c.upvals[j] = t.findUpvalue(base + idx)
		} else {
			c.upvals[j] = t.upval(enclosing, idx)
		}
	}
	return c
}

// doReturn returns n results starting at slot ra from the script frame ci.
// It reports whether ci was the fresh frame execute started with.
func (t *Thread) doReturn(ci *callInfo, p *Prototype, ra, n int) bool {
	base := ci.fn + 1
	if t.hasOpenAbove(base) {
		if t.top = ra + n; t.top < ci.top {
			t.top = ci.top
		}
		t.closeAll(base, nil)
	}
	if p.IsVararg {
		ci.fn -= ci.nextraargs + int(p.NumParams) + 1
	}
	t.top = ra + n
	t.poscall(ci, n)
	if ci.status&cistFresh != 0 {
		return true
	}
	if ci.nresults >= 0 {
		t.top = t.ci.top
	}
	return false
}

// tailCall replaces frame ci by a call to the script function at ra whose
// arguments end at top.
func (t *Thread) tailCall(ci *callInfo, p *Prototype, ra int) (*callInfo, *Closure, *Prototype, int) {
	fn := ci.fn
	if p.IsVararg {
		fn -= ci.nextraargs + int(p.NumParams) + 1
	}
	n := t.top - ra
	copy(t.stack[fn:fn+n], t.stack[ra:ra+n])
	t.top = fn + n
	keep := ci.status & cistFresh
	nresults := ci.nresults
	t.ci = ci.prev
	next := t.precall(fn, nresults)
	next.status |= keep | cistTail
	cl, np, base := t.enterFrame(next)
	return next, cl, np, base
}

// ---------------------------------------------------------------------------
// Numeric for
// ---------------------------------------------------------------------------

// forPrep prepares a numeric loop at ra (init, limit, step, control) and
// reports whether the loop must be skipped. Integer loops precompute their
// iteration count into the limit slot so the loop cannot overflow.
func (t *Thread) forPrep(ra int) bool {
	init, limit, step := t.stack[ra], t.stack[ra+1], t.stack[ra+2]
	if init.vt == vtInt && step.vt == vtInt {
		i, s := init.ival(), step.ival()
		if s == 0 {
			t.runError("'for' step is zero")
		}
		lim, skip := t.forLimit(i, limit, s)
		if skip {
			return true
		}
		var count uint64
		if s > 0 {
			count = uint64(lim) - uint64(i)
			if s != 1 {
				count /= uint64(s)
			}
		} else {
			count = uint64(i) - uint64(lim)
			count /= uint64(-(s+1)) + 1
		}
		t.stack[ra+1] = Int(int64(count))
		t.stack[ra+3] = init
		return false
	}
	fi, ok := init.AsNumber()
	if !ok {
		t.forError(init, "initial")
	}
	fl, ok := limit.AsNumber()
	if !ok {
		t.forError(limit, "limit")
	}
	fs, ok := step.AsNumber()
	if !ok {
		t.forError(step, "step")
	}
	if fs == 0 {
		t.runError("'for' step is zero")
	}
	if fs > 0 && fl < fi || fs < 0 && fi < fl || math.IsNaN(fl) || math.IsNaN(fi) {
		return true
	}
	t.stack[ra] = Float(fi)
	t.stack[ra+1] = Float(fl)
	t.stack[ra+2] = Float(fs)
	t.stack[ra+3] = Float(fi)
	return false
}

// forLimit converts the limit of an integer loop, clipping float limits
// to the integer range, and reports whether the loop runs zero times.
func (t *Thread) forLimit(init int64, limit Value, step int64) (int64, bool) {
	var lim int64
	switch limit.vt {
	case vtInt:
		lim = limit.ival()
	case vtFloat:
		f := limit.fval()
		if math.IsNaN(f) {
			return 0, true
		}
		if step < 0 {
			f = math.Ceil(f)
		} else {
			f = math.Floor(f)
		}
		if i, ok := floatToInteger(f); ok {
			lim = i
		} else if f > 0 {
			if step < 0 {
				return 0, true
			}
			lim = math.MaxInt64
		} else {
			if step > 0 {
				return 0, true
			}
			lim = math.MinInt64
		}
	default:
		t.forError(limit, "limit")
	}
	if step > 0 {
		return lim, init > lim
	}
	return lim, init < lim
}

func (t *Thread) floatForLoop(ra int) bool {
	step := t.stack[ra+2].fval()
	limit := t.stack[ra+1].fval()
	idx := t.stack[ra].fval() + step
	if step > 0 && idx <= limit || step < 0 && limit <= idx {
		t.stack[ra] = Float(idx)
		t.stack[ra+3] = Float(idx)
		return true
	}
	return false
}

func (t *Thread) forError(v Value, what string) {
	t.runError("'for' %s value must be a number", what)
}

// ---------------------------------------------------------------------------
// Resuming interrupted instructions
// ---------------------------------------------------------------------------

// finishOp completes the instruction of script frame ci that was
// interrupted by a yield inside a metamethod or call. The result of the
// interrupted call is at top-1.
func (t *Thread) finishOp(ci *callInfo) {
	base := ci.fn + 1
	p := t.stack[ci.fn].cl().proto
	inst := p.Code[ci.savedpc-1]
	switch op := inst.Op(); op {
	case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr, OpUnm, OpBNot, OpLen,
		OpGetTabUp, OpGetTable, OpSelf:
		t.top--
		t.stack[base+inst.A()] = t.stack[t.top]
	case OpEq, OpLt, OpLe:
		res := t.stack[t.top-1].Truthy()
		t.top--
		if res != (inst.A() != 0) {
			ci.savedpc++
		}
	case OpConcat:
		top := t.top - 1
		total := top - 1 - (base + inst.B())
		t.stack[top-2] = t.stack[top]
		t.top = top - 1
		if total > 1 {
			t.concat(total)
		}
		t.stack[base+inst.A()] = t.stack[t.top-1]
		t.top = ci.top
	case OpTForCall:
		t.top = ci.top
	case OpCall:
		if inst.C()-1 >= 0 {
			t.top = ci.top
		}
	}
}
