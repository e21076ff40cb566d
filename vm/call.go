package vm

// ---------------------------------------------------------------------------
// Call protocol
// ---------------------------------------------------------------------------

// precall prepares the call of the function at stack slot fn with its
// arguments above it up to top. Native functions run to completion here
// and precall returns nil; for script functions it returns the new frame,
// which the caller must execute.
func (t *Thread) precall(fn, nresults int) *callInfo {
	for {
		if c, ok := t.stack[fn].AsClosure(); ok {
			if c.proto == nil {
				t.precallNative(fn, nresults, c.fn)
				return nil
			}
			p := c.proto
			narg := t.top - fn - 1
			nfix := int(p.NumParams)
			t.checkStack(int(p.MaxStack))
			ci := t.nextCI()
			ci.fn = fn
			ci.nresults = nresults
			ci.top = fn + 1 + int(p.MaxStack)
			for ; narg < nfix; narg++ {
				t.stack[t.top] = Nil
				t.top++
			}
			if p.IsVararg {
				t.adjustVarargs(ci, p, narg)
			}
			return ci
		}
		fn = t.tryFuncTM(fn)
	}
}

func (t *Thread) precallNative(fn, nresults int, f NativeFunction) {
	t.checkStack(MinStack)
	ci := t.nextCI()
	ci.fn = fn
	ci.nresults = nresults
	ci.status = cistNative
	ci.top = t.top + MinStack
	t.checkGC()
	n := f(t)
	if n < 0 || n > t.top-(ci.fn+1) {
		t.runError("native function returned %d results but pushed %d", n, t.top-(ci.fn+1))
	}
	t.poscall(ci, n)
}

// adjustVarargs moves the function and its fixed parameters above the
// actual arguments so that the extra arguments stay below the new base.
func (t *Thread) adjustVarargs(ci *callInfo, p *Prototype, actual int) {
	nfix := int(p.NumParams)
	ci.nextraargs = actual - nfix
	t.checkStack(int(p.MaxStack) + 1)
	t.stack[t.top] = t.stack[ci.fn]
	t.top++
	for i := 1; i <= nfix; i++ {
		t.stack[t.top] = t.stack[ci.fn+i]
		t.stack[ci.fn+i] = Nil
		t.top++
	}
	ci.fn += actual + 1
	ci.top += actual + 1
}

// tryFuncTM inserts the __call handler of a non-function value below it so
// that the value becomes the handler's first argument.
func (t *Thread) tryFuncTM(fn int) int {
	tm := t.metaOf(t.stack[fn], tmCall)
	if tm.IsNil() {
		t.typeError(t.stack[fn], "call", stackOperand(fn))
	}
	t.checkStack(1)
	copy(t.stack[fn+1:t.top+1], t.stack[fn:t.top])
	t.top++
	t.stack[fn] = tm
	return fn
}

// poscall finishes a call: results move down to the function slot and the
// frame is popped.
func (t *Thread) poscall(ci *callInfo, nres int) {
	t.moveResults(ci.fn, nres, ci.nresults)
	t.ci = ci.prev
}

func (t *Thread) moveResults(res, nres, wanted int) {
	switch wanted {
	case 0:
		t.top = res
		return
	case 1:
		if nres == 0 {
			t.stack[res] = Nil
		} else {
			t.stack[res] = t.stack[t.top-nres]
		}
		t.top = res + 1
		return
	case MultRet:
		wanted = nres
	}
	first := t.top - nres
	if nres > wanted {
		nres = wanted
	}
	copy(t.stack[res:res+nres], t.stack[first:first+nres])
	for i := nres; i < wanted; i++ {
		t.stack[res+i] = Nil
	}
	t.top = res + wanted
}

// call runs the function at slot fn to completion. It is the reentry point
// from Go code, so it counts against the native depth limit.
func (t *Thread) call(fn, nresults int) {
	t.nCcalls++
	if t.nCcalls >= t.rt.opts.MaxNativeDepth {
		t.checkNativeDepth()
	}
	if ci := t.precall(fn, nresults); ci != nil {
		ci.status = cistFresh
		t.execute(ci)
	}
	t.nCcalls--
}

// callNoYield is call with yields forbidden for its duration.
func (t *Thread) callNoYield(fn, nresults int) {
	t.nny++
	t.call(fn, nresults)
	t.nny--
}

func (t *Thread) checkNativeDepth() {
	max := t.rt.opts.MaxNativeDepth
	switch {
	case t.nCcalls == max:
		t.runError("native stack overflow")
	case t.nCcalls >= max/10*11:
		// Overflow while handling the overflow.
		t.throw(&Error{Status: ErrErr, Value: t.rt.String(errErrMsg)})
	}
}

// ---------------------------------------------------------------------------
// To-be-closed variables
// ---------------------------------------------------------------------------

// newTBC registers slot level as a to-be-closed variable. false and nil are
// accepted and ignored; any other value needs a __close metamethod.
func (t *Thread) newTBC(level int, name string) {
	v := t.stack[level]
	if v.IsFalsy() {
		return
	}
	if t.metaOf(v, tmClose).IsNil() {
		if name == "" {
			name = "?"
		}
		t.runError("variable '%s' got a non-closable value", name)
	}
	t.tbc = append(t.tbc, level)
}

// closeAll closes open upvalues and runs the __close handlers of the
// to-be-closed variables at or above level, innermost first. Each variable
// is removed before its handler runs, so it is closed at most once.
func (t *Thread) closeAll(level int, err *Error) {
	t.closeUpvalues(level)
	errv := t.errorStatusValue(err)
	for n := len(t.tbc); n > 0 && t.tbc[n-1] >= level; n = len(t.tbc) {
		idx := t.tbc[n-1]
		t.tbc = t.tbc[:n-1]
		t.callClose(idx, errv)
	}
}

func (t *Thread) callClose(idx int, errv Value) {
	obj := t.stack[idx]
	tm := t.metaOf(obj, tmClose)
	if t.top <= idx {
		t.top = idx + 1
	}
	t.checkStack(3)
	top := t.top
	t.stack[top] = tm
	t.stack[top+1] = obj
	t.stack[top+2] = errv
	t.top = top + 3
	t.callNoYield(top, 0)
}

// callFinalizer runs a __gc handler with yields forbidden, restoring the
// stack and frame afterwards. It returns the handler's error, if any.
func (t *Thread) callFinalizer(tm, obj Value) (err *Error) {
	oldTop, oldCI, oldErrFunc := t.top, t.ci, t.errFunc
	if t.ci.isLua() && t.top < t.ci.top {
		t.top = t.ci.top
	}
	t.errFunc = 0
	err = t.rawRunProtected(func() {
		t.checkStack(2)
		top := t.top
		t.stack[top] = tm
		t.stack[top+1] = obj
		t.top = top + 2
		t.ci.status |= cistFin
		t.callNoYield(top, 0)
	})
	t.ci = oldCI
	t.ci.status &^= cistFin
	t.top, t.errFunc = oldTop, oldErrFunc
	return err
}
