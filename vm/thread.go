package vm

// ---------------------------------------------------------------------------
// Thread: value stack plus call-frame chain
// ---------------------------------------------------------------------------

// CoStatus is the state of a thread seen as a coroutine.
type CoStatus uint8

const (
	CoSuspended CoStatus = iota // created and not started, or yielded
	CoRunning                   // executing
	CoNormal                    // resumed another coroutine and waits for it
	CoDead                      // returned, raised an error, or was closed
)

var coStatusNames = [...]string{"suspended", "running", "normal", "dead"}

func (s CoStatus) String() string { return coStatusNames[s] }

const (
	// MinStack is the number of free slots guaranteed to a native function.
	MinStack = 20
	// MultRet requests all results of a call.
	MultRet = -1

	basicStackSize = 2 * MinStack
	extraStack     = 5
	errorStackSize = 200
)

type callStatus uint16

const (
	cistNative callStatus = 1 << iota // running a native function
	cistFresh                         // execute returns when this frame returns
	cistYPCall                        // a yieldable protected call is active
	cistTail                          // frame was reused by a tail call
	cistFin                           // running a finalizer
)

// callInfo records one active call.
type callInfo struct {
	fn       int // stack index of the called function
	top      int // first slot beyond the frame
	prev     *callInfo
	next     *callInfo
	nresults int
	status   callStatus

	// script frames
	savedpc    int
	nextraargs int

	// native frames
	k             Continuation
	ctx           int
	oldErrFunc    int
	funcIdx       int    // function slot of an active yieldable protected call
	recoverErr    *Error // error being recovered into a yieldable protected call
	nyield        int
}

func (ci *callInfo) isLua() bool { return ci.status&cistNative == 0 }

// Thread is an execution context: a value stack and a chain of call
// frames. Every runtime has a main thread; coroutines are further threads
// sharing the runtime's heap.
type Thread struct {
	gcHeader
	rt *Runtime

	stack  []Value
	top    int
	ci     *callInfo
	baseCI callInfo

	openUpvals []*Upvalue
	tbc        []int // to-be-closed slots, ascending

	status  Status   // OK, Yield, or the error that ended the thread
	state   CoStatus // coroutine state
	isMain  bool
	nny     int // non-yieldable nesting; yields are allowed only at 0
	nCcalls int // nested native-to-script reentries
	errFunc int // stack index of the active message handler, 0 if none
}

func (rt *Runtime) newThread() *Thread {
	t := &Thread{rt: rt, stack: make([]Value, basicStackSize+extraStack)}
	t.top = 1
	t.baseCI = callInfo{fn: 0, top: 1 + MinStack, status: cistNative}
	t.ci = &t.baseCI
	t.state = CoSuspended
	rt.gc.register(t, threadOverhead+int64(len(t.stack))*valueSize)
	return t
}

// Runtime returns the runtime that owns t.
func (t *Thread) Runtime() *Runtime { return t.rt }

// IsMain reports whether t is its runtime's main thread.
func (t *Thread) IsMain() bool { return t.isMain }

// Status returns the thread status: OK, Yield, or the error status that
// ended it.
func (t *Thread) Status() Status { return t.status }

// CoStatus returns the coroutine state of t.
func (t *Thread) CoStatus() CoStatus { return t.state }

// IsYieldable reports whether a native function running on t may yield.
func (t *Thread) IsYieldable() bool { return t.nny == 0 }

// ---------------------------------------------------------------------------
// Stack management
// ---------------------------------------------------------------------------

// checkStack makes room for n more slots above top, growing the stack or
// raising "stack overflow". Slot indices remain valid across growth.
func (t *Thread) checkStack(n int) {
	if len(t.stack)-t.top <= n+extraStack {
		t.growStack(n)
	}
}

func (t *Thread) growStack(n int) {
	max := t.rt.opts.MaxStackSize
	size := len(t.stack)
	if size > max+extraStack {
		// Already using the extra space reserved for handling an overflow.
		t.throw(&Error{Status: ErrErr, Value: t.rt.String(errErrMsg)})
	}
	needed := t.top + n + extraStack
	if needed > max+extraStack {
		t.reallocStack(max + extraStack + errorStackSize)
		t.runError("stack overflow")
	}
	newSize := 2 * size
	if newSize > max+extraStack {
		newSize = max + extraStack
	}
	if newSize < needed {
		newSize = needed
	}
	t.reallocStack(newSize)
}

func (t *Thread) reallocStack(n int) {
	old := len(t.stack)
	s := make([]Value, n)
	copy(s, t.stack)
	t.stack = s
	t.rt.gc.adjust(int64(n-old) * valueSize)
}

// shrinkStack releases the overflow reserve once it is no longer needed.
func (t *Thread) shrinkStack() {
	max := t.rt.opts.MaxStackSize
	if len(t.stack) <= max+extraStack {
		return
	}
	inuse := t.top
	for ci := t.ci; ci != nil; ci = ci.prev {
		if ci.top > inuse {
			inuse = ci.top
		}
	}
	good := inuse + inuse/8 + 2*extraStack
	if good < basicStackSize {
		good = basicStackSize
	}
	if good <= max {
		t.reallocStack(good)
	}
}

// nextCI returns a fresh frame record linked after the current one.
func (t *Thread) nextCI() *callInfo {
	ci := t.ci.next
	if ci == nil {
		ci = &callInfo{prev: t.ci}
		t.ci.next = ci
	} else {
		next := ci.next
		*ci = callInfo{prev: t.ci, next: next}
	}
	t.ci = ci
	return ci
}

// depth returns the number of active frames above the base frame.
func (t *Thread) depth() int {
	n := 0
	for ci := t.ci; ci != &t.baseCI; ci = ci.prev {
		n++
	}
	return n
}

// CallDepth returns the number of active call frames.
func (t *Thread) CallDepth() int { return t.depth() }
