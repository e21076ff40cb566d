package vm

// ---------------------------------------------------------------------------
// Coroutines
// ---------------------------------------------------------------------------

// Coroutines are threads switched synchronously: Resume runs the coroutine
// on the calling goroutine until it returns, fails or yields. A yield
// unwinds the Go stack of the coroutine with a yieldSignal panic; the
// script frames stay on the coroutine's frame chain and are continued by
// the next Resume. Native frames survive a yield only through their
// continuation (CallK, PCallK, YieldK).

// NewThread creates a coroutine sharing t's runtime and pushes it onto t's
// stack.
func (t *Thread) NewThread() *Thread {
	t.checkGC()
	co := t.rt.newThread()
	t.push(threadValue(co))
	log.Debugf("runtime %s: coroutine %p created", t.rt.id, co)
	return co
}

// Resume starts or continues coroutine co with nargs arguments on top of
// its stack (for a start, the body function sits just below them). It
// returns Yield when the coroutine yielded, OK when it finished, or an
// error status. The results, yielded values or the error value are the
// top nres values of co's stack.
func (co *Thread) Resume(from *Thread, nargs int) (status Status, nres int) {
	switch co.state {
	case CoDead:
		return co.resumeError("cannot resume dead coroutine", nargs)
	case CoRunning, CoNormal:
		return co.resumeError("cannot resume non-suspended coroutine", nargs)
	}
	if co.status == OK && co.top-(co.ci.fn+1) <= nargs {
		return co.resumeError("cannot resume dead coroutine", nargs)
	}
	co.nCcalls = 0
	if from != nil {
		co.nCcalls = from.nCcalls
	}
	if co.nCcalls >= co.rt.opts.MaxNativeDepth {
		return co.resumeError("native stack overflow", nargs)
	}
	co.nCcalls++

	if from != nil && from.state == CoRunning {
		from.state = CoNormal
	}
	co.state = CoRunning
	co.rt.active = append(co.rt.active, co)

	status, err := co.runResumable(func() { co.resume(nargs) })
	status, err = co.precover(status, err)

	co.rt.active = co.rt.active[:len(co.rt.active)-1]
	if from != nil && from.state == CoNormal {
		from.state = CoRunning
	}

	switch status {
	case Yield:
		co.state = CoSuspended
		nres = co.ci.nyield
		log.Debugf("runtime %s: coroutine %p yielded %d values", co.rt.id, co, nres)
	case OK:
		co.state = CoDead
		nres = co.top - (co.ci.fn + 1)
		log.Debugf("runtime %s: coroutine %p finished", co.rt.id, co)
	default:
		co.state = CoDead
		co.status = status
		co.checkSpace(1)
		co.setErrorObj(err, co.top)
		co.ci.top = co.top
		nres = 1
		log.Debugf("runtime %s: coroutine %p died: %s", co.rt.id, co, errorText(co.stack[co.top-1]))
	}
	return status, nres
}

// resumeError replaces the nargs arguments by msg without touching co.
func (co *Thread) resumeError(msg string, nargs int) (Status, int) {
	co.top -= nargs
	co.checkSpace(1)
	co.stack[co.top] = co.rt.String(msg)
	co.top++
	return ErrRun, 1
}

// checkSpace grows the stack for n slots outside any protected call.
func (t *Thread) checkSpace(n int) {
	if len(t.stack)-t.top <= n {
		t.reallocStack(t.top + n + extraStack)
	}
}

func (co *Thread) resume(nargs int) {
	firstArg := co.top - nargs
	if co.status == OK {
		if ci := co.precall(firstArg-1, MultRet); ci != nil {
			ci.status |= cistFresh
			co.execute(ci)
		}
		return
	}
	co.status = OK
	ci := co.ci
	n := nargs
	if ci.k != nil {
		n = ci.k(co, Yield, ci.ctx)
	}
	co.poscall(ci, n)
	co.unroll()
}

// runResumable runs f, turning a yield into the Yield status and an error
// into its status and value.
func (t *Thread) runResumable(f func()) (status Status, err *Error) {
	oldNny, oldNCcalls := t.nny, t.nCcalls
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		t.nny, t.nCcalls = oldNny, oldNCcalls
		switch r := r.(type) {
		case yieldSignal:
			status = Yield
		case *Error:
			status, err = r.Status, r
		default:
			err = t.foreignError(r)
			status = err.Status
		}
	}()
	f()
	return OK, nil
}

// unroll continues every interrupted frame from the innermost one down to
// the base of the coroutine.
func (t *Thread) unroll() {
	for t.ci != &t.baseCI {
		ci := t.ci
		if !ci.isLua() {
			t.finishCcall(ci)
		} else {
			t.finishOp(ci)
			t.execute(ci)
		}
	}
}

// finishCcall completes a native frame interrupted by a yield or by an
// error recovered into its yieldable protected call.
func (t *Thread) finishCcall(ci *callInfo) {
	status := Yield
	if ci.status&cistYPCall != 0 {
		status = t.finishPCallK(ci)
	}
	if ci.top < t.top {
		ci.top = t.top
	}
	n := ci.k(t, status, ci.ctx)
	t.poscall(ci, n)
}

// finishPCallK ends the yieldable protected call of ci: on error it closes
// pending variables and leaves the error value in the called function's
// slot.
func (t *Thread) finishPCallK(ci *callInfo) Status {
	status := Yield
	if err := ci.recoverErr; err != nil {
		ci.recoverErr = nil
		t.closeAll(ci.funcIdx, err)
		t.setErrorObj(err, ci.funcIdx)
		t.shrinkStack()
		status = err.Status
	}
	ci.status &^= cistYPCall
	t.errFunc = ci.oldErrFunc
	return status
}

// precover resumes execution at the innermost yieldable protected call
// for as long as errors find one.
func (t *Thread) precover(status Status, err *Error) (Status, *Error) {
	for err != nil {
		ci := t.findPCall()
		if ci == nil {
			break
		}
		t.ci = ci
		ci.recoverErr = err
		status, err = t.runResumable(t.unroll)
	}
	return status, err
}

func (t *Thread) findPCall() *callInfo {
	for ci := t.ci; ci != nil; ci = ci.prev {
		if ci.status&cistYPCall != 0 {
			return ci
		}
	}
	return nil
}

// Yield suspends the running coroutine from a native function, handing the
// top nresults values to the resumer. It does not return; the native's
// frame completes with the values passed to the next Resume.
func (t *Thread) Yield(nresults int) int {
	return t.YieldK(nresults, 0, nil)
}

// YieldK is Yield with a continuation: when the coroutine is resumed, k
// runs in place of the native function that yielded.
func (t *Thread) YieldK(nresults, ctx int, k Continuation) int {
	if t.nny > 0 {
		if t.isMain {
			t.runError("attempt to yield from outside a coroutine")
		}
		t.runError("attempt to yield across a native call boundary")
	}
	t.status = Yield
	ci := t.ci
	ci.nyield = nresults
	ci.k, ci.ctx = k, ctx
	panic(yieldSignal{})
}

// CloseThread closes a suspended or dead coroutine: pending to-be-closed
// variables run, the stack is reset and the coroutine becomes dead. It
// returns the status of the coroutine's error, or of a failing __close
// handler; the error value is then on top of co's stack.
func (co *Thread) CloseThread(from *Thread) Status {
	if co.state == CoRunning || co.state == CoNormal {
		caller := from
		if caller == nil {
			caller = co
		}
		caller.runError("cannot close a %s coroutine", co.state)
	}
	var err *Error
	if co.status != OK && co.status != Yield && co.top > 1 {
		err = &Error{Status: co.status, Value: co.stack[co.top-1]}
	}
	co.ci = &co.baseCI
	co.baseCI.status = cistNative
	co.stack[0] = Nil
	co.status = OK
	co.nCcalls = 0
	if from != nil {
		co.nCcalls = from.nCcalls
	}
	err = co.closeProtected(1, err)
	if err != nil {
		co.setErrorObj(err, 1)
		co.status = err.Status
	} else {
		co.top = 1
	}
	co.baseCI.top = co.top + MinStack
	co.state = CoDead
	log.Debugf("runtime %s: coroutine %p closed", co.rt.id, co)
	return co.status
}
