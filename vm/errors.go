package vm

import (
	"fmt"
	"runtime/debug"
)

// ---------------------------------------------------------------------------
// Status codes and error values
// ---------------------------------------------------------------------------

// Status is the outcome of a protected call, a resume or a load.
type Status int

const (
	OK        Status = iota
	Yield            // the coroutine yielded
	ErrRun           // runtime error
	ErrSyntax        // syntax error while loading
	ErrMem           // memory limit exceeded
	ErrErr           // error while running the message handler
	ErrFile          // a file could not be read
)

var statusNames = [...]string{"ok", "yield", "runtime error", "syntax error", "memory error", "error in error handling", "file error"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

const (
	memErrMsg = "not enough memory"
	errErrMsg = "error in error handling"
)

// Error is a script-level error. Any value can be raised; Value holds it.
// Errors travel through the engine as Go panics and are recovered only at
// protected boundaries (PCall, pcall, resume), which turn them back into a
// Status and an error value on the stack.
type Error struct {
	Status    Status
	Value     Value
	Traceback string
}

func (e *Error) Error() string {
	msg := errorText(e.Value)
	if e.Traceback != "" {
		return msg + "\n" + e.Traceback
	}
	return msg
}

// Message returns the error message without traceback.
func (e *Error) Message() string { return errorText(e.Value) }

func errorText(v Value) string {
	switch v.vt {
	case vtString, vtInt, vtFloat:
		return v.String()
	}
	return fmt.Sprintf("(error object is a %s value)", v.TypeName())
}

// yieldSignal unwinds the Go stack from a yielding native function to the
// resume boundary.
type yieldSignal struct{}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

func (t *Thread) throw(e *Error) {
	panic(e)
}

func (t *Thread) throwMemory() {
	t.throw(t.rt.memErr)
}

// runError raises a runtime error whose message is prefixed with the
// position of the running script function, if any.
func (t *Thread) runError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if t.ci.isLua() {
		msg = t.where(t.ci) + msg
	}
	t.errorValue(t.rt.String(msg))
}

// errorValue raises v as a runtime error. An active message handler runs
// first, at the raise point, and its result replaces v.
func (t *Thread) errorValue(v Value) {
	if t.errFunc != 0 {
		handler := t.stack[t.errFunc]
		errFunc := t.errFunc
		t.errFunc = 0
		err := t.rawRunProtected(func() {
			t.checkStack(2)
			t.stack[t.top] = handler
			t.stack[t.top+1] = v
			t.top += 2
			t.callNoYield(t.top-2, 1)
			t.top--
			v = t.stack[t.top]
		})
		t.errFunc = errFunc
		if err != nil {
			if err.Status == ErrMem {
				t.throw(err)
			}
			t.throw(&Error{Status: ErrErr, Value: t.rt.String(errErrMsg)})
		}
	}
	t.throw(&Error{Status: ErrRun, Value: v})
}

// foreignError converts a Go panic that did not originate in the engine
// into a runtime error.
func (t *Thread) foreignError(r any) *Error {
	var msg string
	if err, ok := r.(error); ok {
		msg = err.Error()
	} else {
		msg = fmt.Sprint(r)
	}
	log.Debugf("runtime %s: recovered Go panic: %s\n%s", t.rt.id, msg, debug.Stack())
	return &Error{Status: ErrRun, Value: t.rt.String("go panic: " + msg)}
}

// ---------------------------------------------------------------------------
// Protection
// ---------------------------------------------------------------------------

// rawRunProtected runs f and returns the error it raised, if any. Yields
// pass through to the enclosing resume.
func (t *Thread) rawRunProtected(f func()) (err *Error) {
	oldNCcalls, oldNny := t.nCcalls, t.nny
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(yieldSignal); ok {
			panic(r)
		}
		t.nCcalls, t.nny = oldNCcalls, oldNny
		if e, ok := r.(*Error); ok {
			err = e
		} else {
			err = t.foreignError(r)
		}
	}()
	f()
	return nil
}

// pcall runs f in protected mode. On error the call chain is restored, open
// upvalues and to-be-closed variables at or above oldTop are closed, and the
// error value is left at oldTop.
func (t *Thread) pcall(f func(), oldTop, errFunc int) Status {
	oldCI, oldErrFunc := t.ci, t.errFunc
	t.errFunc = errFunc
	err := t.rawRunProtected(f)
	if err != nil {
		t.ci = oldCI
		err = t.closeProtected(oldTop, err)
		t.setErrorObj(err, oldTop)
		t.shrinkStack()
	}
	t.errFunc = oldErrFunc
	if err != nil {
		return err.Status
	}
	return OK
}

// closeProtected closes upvalues and to-be-closed variables down to level.
// An error raised by a __close handler replaces err and closing continues
// with the remaining variables.
func (t *Thread) closeProtected(level int, err *Error) *Error {
	oldCI := t.ci
	for {
		e := t.rawRunProtected(func() { t.closeAll(level, err) })
		if e == nil {
			return err
		}
		t.ci = oldCI
		err = e
	}
}

// setErrorObj stores the error value of err at slot level and sets the top
// just above it.
func (t *Thread) setErrorObj(err *Error, level int) {
	var v Value
	switch {
	case err == nil:
	case err.Status == ErrMem:
		v = t.rt.memErr.Value
	case err.Status == ErrErr:
		v = t.rt.String(errErrMsg)
	default:
		v = err.Value
	}
	t.stack[level] = v
	t.top = level + 1
}

// errorStatusValue returns the value __close handlers receive for err.
func (t *Thread) errorStatusValue(err *Error) Value {
	if err == nil {
		return Nil
	}
	switch err.Status {
	case ErrMem:
		return t.rt.memErr.Value
	case ErrErr:
		return t.rt.String(errErrMsg)
	}
	return err.Value
}

// unprotected handles an error that escaped the outermost frame of t.
func (t *Thread) unprotected(e *Error) {
	if e.Traceback == "" && e != t.rt.memErr {
		e.Traceback = t.Traceback("", 0)
	}
	log.Errorf("runtime %s: unprotected error: %s", t.rt.id, errorText(e.Value))
	t.ci = &t.baseCI
	t.closeUpvalues(0)
	t.tbc = t.tbc[:0]
	t.nCcalls, t.errFunc = 0, 0
	if t.isMain {
		t.nny = 1
		t.rt.broken = true
	}
	if h := t.rt.panicHandler; h != nil {
		h(t, e)
	}
}
