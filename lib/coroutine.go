package lib

import "github.com/chazu/luma/vm"

var coFuncs = []vm.NativeReg{
	{Name: "create", Func: coCreate},
	{Name: "resume", Func: coResume},
	{Name: "yield", Func: coYield},
	{Name: "status", Func: coStatus},
	{Name: "close", Func: coClose},
	{Name: "wrap", Func: coWrap},
	{Name: "isyieldable", Func: coIsYieldable},
	{Name: "running", Func: coRunning},
}

// OpenCoroutine pushes the coroutine library table.
func OpenCoroutine(t *vm.Thread) int {
	t.CreateTable(0, len(coFuncs))
	t.SetFuncs(coFuncs)
	return 1
}

func checkCo(t *vm.Thread, arg int) *vm.Thread {
	co := t.ToThread(arg)
	if co == nil {
		t.TypeError(arg, "coroutine")
	}
	return co
}

// auxResume moves nargs values to co and resumes it. It returns the number
// of results moved back onto t, or -1 with the error value on top of t.
func auxResume(t, co *vm.Thread, nargs int) int {
	if !co.CheckStack(nargs) {
		t.PushString("too many arguments to resume")
		return -1
	}
	t.XMove(co, nargs)
	status, nres := co.Resume(t, nargs)
	if status == vm.OK || status == vm.Yield {
		if !t.CheckStack(nres + 1) {
			co.Pop(nres)
			t.PushString("too many results to resume")
			return -1
		}
		co.XMove(t, nres)
		return nres
	}
	co.XMove(t, 1)
	return -1
}

func coCreate(t *vm.Thread) int {
	t.CheckType(1, vm.TypeFunction)
	co := t.NewThread()
	t.PushValue(1)
	t.XMove(co, 1)
	return 1
}

func coResume(t *vm.Thread) int {
	co := checkCo(t, 1)
	r := auxResume(t, co, t.Top()-1)
	if r < 0 {
		t.PushBoolean(false)
		t.Insert(-2)
		return 2
	}
	t.PushBoolean(true)
	t.Insert(-(r + 1))
	return r + 1
}

func coYield(t *vm.Thread) int {
	return t.Yield(t.Top())
}

func coStatus(t *vm.Thread) int {
	co := checkCo(t, 1)
	t.PushString(co.CoStatus().String())
	return 1
}

func coClose(t *vm.Thread) int {
	co := checkCo(t, 1)
	switch st := co.CoStatus(); st {
	case vm.CoSuspended, vm.CoDead:
		if co.CloseThread(t) == vm.OK {
			t.PushBoolean(true)
			return 1
		}
		t.PushBoolean(false)
		co.XMove(t, 1)
		return 2
	default:
		return t.Errorf("cannot close a %s coroutine", st)
	}
}

// wrapped is the function returned by coroutine.wrap. Errors propagate to
// the caller after the coroutine's pending variables are closed.
func wrapped(t *vm.Thread) int {
	co := t.ToThread(vm.UpvalueIndex(1))
	nargs := t.Top()
	if !co.CheckStack(nargs) {
		return t.Errorf("too many arguments to resume")
	}
	t.XMove(co, nargs)
	status, nres := co.Resume(t, nargs)
	if status == vm.OK || status == vm.Yield {
		if !t.CheckStack(nres) {
			co.Pop(nres)
			return t.Errorf("too many results to resume")
		}
		co.XMove(t, nres)
		return nres
	}
	if st := co.Status(); st != vm.OK && st != vm.Yield {
		status = co.CloseThread(t)
	}
	co.XMove(t, 1)
	if status != vm.ErrMem && t.TypeOf(-1) == vm.TypeString {
		t.PushString(t.Where(1))
		t.Insert(-2)
		t.Concat(2)
	}
	return t.Error()
}

func coWrap(t *vm.Thread) int {
	coCreate(t)
	t.PushNativeClosure(wrapped, 1)
	return 1
}

func coIsYieldable(t *vm.Thread) int {
	co := t
	if !t.IsNone(1) {
		co = checkCo(t, 1)
	}
	t.PushBoolean(co.IsYieldable())
	return 1
}

func coRunning(t *vm.Thread) int {
	main := t.PushThread()
	t.PushBoolean(main)
	return 2
}
