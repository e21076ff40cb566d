package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Stack addressing
// ---------------------------------------------------------------------------

// RegistryIndex is the pseudo-index of the registry table.
const RegistryIndex = -1 << 30

// UpvalueIndex returns the pseudo-index of the i-th (1-based) captured
// value of the running native closure.
func UpvalueIndex(i int) int { return RegistryIndex - i }

// slot resolves a real stack index (positive or relative to top) to an
// absolute stack position.
func (t *Thread) slot(idx int) int {
	switch {
	case idx > 0:
		return t.ci.fn + idx
	case idx < 0 && idx > RegistryIndex:
		s := t.top + idx
		if s <= t.ci.fn {
			t.runError("invalid stack index %d", idx)
		}
		return s
	}
	t.runError("invalid stack index %d", idx)
	return 0
}

// valueAt returns the value at idx; indices above top read as nil.
func (t *Thread) valueAt(idx int) (Value, bool) {
	switch {
	case idx > 0:
		s := t.ci.fn + idx
		if s >= t.top {
			return Nil, false
		}
		return t.stack[s], true
	case idx > RegistryIndex:
		return t.stack[t.slot(idx)], true
	case idx == RegistryIndex:
		return tableValue(t.rt.registry), true
	}
	n := RegistryIndex - idx
	c, ok := t.stack[t.ci.fn].AsClosure()
	if !ok || c.proto != nil || n > len(c.captured) {
		return Nil, false
	}
	return c.captured[n-1], true
}

// Get returns the value at idx, or Nil for an invalid index.
func (t *Thread) Get(idx int) Value {
	v, _ := t.valueAt(idx)
	return v
}

func (t *Thread) setAt(idx int, v Value) {
	switch {
	case idx == RegistryIndex:
		t.runError("cannot replace the registry")
	case idx < RegistryIndex:
		n := RegistryIndex - idx
		c := t.stack[t.ci.fn].cl()
		if n > len(c.captured) {
			t.runError("invalid upvalue index %d", n)
		}
		c.captured[n-1] = v
		t.rt.gc.barrier(c, v)
	default:
		s := t.slot(idx)
		if s >= t.top {
			t.runError("invalid stack index %d", idx)
		}
		t.stack[s] = v
	}
}

func (t *Thread) push(v Value) {
	if t.top+extraStack >= len(t.stack) {
		t.checkStack(1)
	}
	t.stack[t.top] = v
	t.top++
}

// drop discards the top n values, clearing their slots.
func (t *Thread) drop(n int) {
	t.top -= n
	clear(t.stack[t.top : t.top+n])
}

func (t *Thread) pop() Value {
	if t.top <= t.ci.fn+1 {
		t.runError("stack underflow")
	}
	t.top--
	v := t.stack[t.top]
	t.stack[t.top] = Nil
	return v
}

// ---------------------------------------------------------------------------
// Basic stack manipulation
// ---------------------------------------------------------------------------

// Top returns the number of values in the current frame.
func (t *Thread) Top() int { return t.top - (t.ci.fn + 1) }

// AbsIndex converts a top-relative index into a frame-relative one.
func (t *Thread) AbsIndex(idx int) int {
	if idx > 0 || idx <= RegistryIndex {
		return idx
	}
	return t.top - t.ci.fn + idx
}

// SetTop sets the number of values in the frame, padding with nil or
// dropping values. Dropped to-be-closed slots are closed.
func (t *Thread) SetTop(idx int) {
	base := t.ci.fn + 1
	var newTop int
	if idx >= 0 {
		newTop = base + idx
		if newTop > t.top {
			t.checkStack(newTop - t.top)
			for s := t.top; s < newTop; s++ {
				t.stack[s] = Nil
			}
		}
	} else {
		newTop = t.top + idx + 1
		if newTop < base {
			t.runError("invalid new top %d", idx)
		}
	}
	if newTop < t.top {
		if n := len(t.tbc); n > 0 && t.tbc[n-1] >= newTop {
			t.closeAll(newTop, nil)
		}
		clear(t.stack[newTop:t.top])
	}
	t.top = newTop
}

// Pop removes n values from the top.
func (t *Thread) Pop(n int) { t.SetTop(-n - 1) }

// PushValue pushes a copy of the value at idx.
func (t *Thread) PushValue(idx int) { t.push(t.Get(idx)) }

// Rotate rotates the values between idx and the top by n positions towards
// the top (n > 0) or the bottom (n < 0).
func (t *Thread) Rotate(idx, n int) {
	start := t.slot(idx)
	end := t.top - 1
	size := end - start + 1
	if n < 0 {
		n += size
	}
	if n < 0 || n > size {
		t.runError("invalid rotation %d", n)
	}
	m := end - n
	reverse(t.stack, start, m)
	reverse(t.stack, m+1, end)
	reverse(t.stack, start, end)
}

func reverse(s []Value, i, j int) {
	for ; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Insert moves the top value into idx, shifting the values above up.
func (t *Thread) Insert(idx int) { t.Rotate(idx, 1) }

// Remove deletes the value at idx, shifting the values above down.
func (t *Thread) Remove(idx int) {
	t.Rotate(idx, -1)
	t.Pop(1)
}

// Replace pops the top value into idx.
func (t *Thread) Replace(idx int) {
	t.Copy(-1, idx)
	t.Pop(1)
}

// Copy copies the value at from into to.
func (t *Thread) Copy(from, to int) { t.setAt(to, t.Get(from)) }

// CheckStack ensures room for n more values. It reports false when the
// stack limit would be exceeded.
func (t *Thread) CheckStack(n int) bool {
	if n < 0 || t.top+n > t.rt.opts.MaxStackSize {
		return false
	}
	t.checkStack(n)
	if t.ci.top < t.top+n {
		t.ci.top = t.top + n
	}
	return true
}

// XMove pops n values from t and pushes them onto to, in order.
func (t *Thread) XMove(to *Thread, n int) {
	if t == to || n == 0 {
		return
	}
	if t.rt != to.rt {
		t.runError("moving values between different runtimes")
	}
	to.checkStack(n)
	t.top -= n
	copy(to.stack[to.top:], t.stack[t.top:t.top+n])
	to.top += n
	clear(t.stack[t.top : t.top+n])
}

// ---------------------------------------------------------------------------
// Push
// ---------------------------------------------------------------------------

// Push pushes any value. Reference values must belong to t's runtime.
func (t *Thread) Push(v Value) { t.push(v) }

func (t *Thread) PushNil()                     { t.push(Nil) }
func (t *Thread) PushBoolean(b bool)           { t.push(Bool(b)) }
func (t *Thread) PushInteger(i int64)          { t.push(Int(i)) }
func (t *Thread) PushNumber(f float64)         { t.push(Float(f)) }
func (t *Thread) PushString(s string)          { t.push(t.rt.String(s)) }
func (t *Thread) PushGlobalTable()             { t.push(tableValue(t.rt.Globals())) }
func (t *Thread) PushNative(fn NativeFunction) { t.PushNativeClosure(fn, 0) }

// PushFString pushes a formatted string and returns it.
func (t *Thread) PushFString(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	t.PushString(s)
	return s
}

// PushNativeClosure pops n values and pushes a native closure capturing
// them, reachable through UpvalueIndex(1..n).
func (t *Thread) PushNativeClosure(fn NativeFunction, n int) {
	t.pushNative(fn, n, "")
}

func (t *Thread) pushNative(fn NativeFunction, n int, name string) {
	t.checkGC()
	c := t.rt.newNativeClosure(fn, n, name)
	t.top -= n
	copy(c.captured, t.stack[t.top:t.top+n])
	clear(t.stack[t.top : t.top+n])
	t.push(functionValue(c))
}

// PushThread pushes t itself and reports whether it is the main thread.
func (t *Thread) PushThread() bool {
	t.push(threadValue(t))
	return t.isMain
}

// ---------------------------------------------------------------------------
// Access
// ---------------------------------------------------------------------------

// TypeOf returns the type at idx, or TypeNone for an invalid index.
func (t *Thread) TypeOf(idx int) Type {
	v, ok := t.valueAt(idx)
	if !ok {
		return TypeNone
	}
	return v.Type()
}

// TypeName returns the name of type tp.
func (t *Thread) TypeName(tp Type) string { return tp.String() }

func (t *Thread) IsNone(idx int) bool      { return t.TypeOf(idx) == TypeNone }
func (t *Thread) IsNoneOrNil(idx int) bool { return t.TypeOf(idx) <= TypeNil }
func (t *Thread) IsNil(idx int) bool       { return t.TypeOf(idx) == TypeNil }
func (t *Thread) IsBoolean(idx int) bool   { return t.TypeOf(idx) == TypeBoolean }
func (t *Thread) IsTable(idx int) bool     { return t.TypeOf(idx) == TypeTable }
func (t *Thread) IsFunction(idx int) bool  { return t.TypeOf(idx) == TypeFunction }
func (t *Thread) IsUserdata(idx int) bool  { return t.TypeOf(idx) == TypeUserdata }
func (t *Thread) IsThread(idx int) bool    { return t.TypeOf(idx) == TypeThread }
func (t *Thread) IsInteger(idx int) bool   { return t.Get(idx).vt == vtInt }

// IsNumber reports whether the value at idx is a number or a string
// convertible to one.
func (t *Thread) IsNumber(idx int) bool {
	_, ok := toNumber(t.Get(idx))
	return ok
}

// IsString reports whether the value at idx is a string or a number.
func (t *Thread) IsString(idx int) bool { return isStringish(t.Get(idx)) }

// IsNative reports whether the value at idx is a native function.
func (t *Thread) IsNative(idx int) bool {
	c, ok := t.Get(idx).AsClosure()
	return ok && c.proto == nil
}

// ToBoolean returns the truth value at idx.
func (t *Thread) ToBoolean(idx int) bool { return t.Get(idx).Truthy() }

// ToInteger converts the value at idx, accepting numeric strings and floats
// with an exact integer value.
func (t *Thread) ToInteger(idx int) (int64, bool) { return toInteger(t.Get(idx)) }

// ToNumber converts the value at idx, accepting numeric strings.
func (t *Thread) ToNumber(idx int) (float64, bool) { return toFloat(t.Get(idx)) }

// ToString returns the string at idx. A number is converted in place.
func (t *Thread) ToString(idx int) (string, bool) {
	v := t.Get(idx)
	switch v.vt {
	case vtString:
		return v.str().s, true
	case vtInt, vtFloat:
		s := t.rt.String(numberToString(v))
		t.setAt(idx, s)
		return s.str().s, true
	}
	return "", false
}

// ToUserdata returns the userdata at idx, or nil.
func (t *Thread) ToUserdata(idx int) *Userdata {
	u, _ := t.Get(idx).AsUserdata()
	return u
}

// ToThread returns the thread at idx, or nil.
func (t *Thread) ToThread(idx int) *Thread {
	th, _ := t.Get(idx).AsThread()
	return th
}

// RawEqual compares the values at i1 and i2 without metamethods.
func (t *Thread) RawEqual(i1, i2 int) bool {
	a, ok1 := t.valueAt(i1)
	b, ok2 := t.valueAt(i2)
	return ok1 && ok2 && RawEqual(a, b)
}

// Compare compares the values at i1 and i2, calling metamethods.
func (t *Thread) Compare(i1, i2 int, op CompareOp) bool {
	a, ok1 := t.valueAt(i1)
	b, ok2 := t.valueAt(i2)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case CompareEq:
		return t.equalObj(a, b)
	case CompareLt:
		return t.lessThan(a, b)
	case CompareLe:
		return t.lessEqual(a, b)
	}
	t.runError("invalid comparison %d", int(op))
	return false
}

// Arith pops the operands of op (one for the unary operators) and pushes
// the result.
func (t *Thread) Arith(op ArithOp) {
	if op == ArithUnm || op == ArithBNot {
		t.push(t.stack[t.top-1])
	}
	a, b := t.stack[t.top-2], t.stack[t.top-1]
	res := t.arith(op, a, b, noOperand, noOperand)
	t.drop(2)
	t.push(res)
}

// Concat replaces the top n values by their concatenation.
func (t *Thread) Concat(n int) {
	switch {
	case n == 0:
		t.PushString("")
	case n > 1:
		t.concat(n)
	}
	t.checkGC()
}

// ---------------------------------------------------------------------------
// Tables and userdata
// ---------------------------------------------------------------------------

// NewTable pushes an empty table.
func (t *Thread) NewTable() *Table { return t.CreateTable(0, 0) }

// CreateTable pushes a table presized for narr array and nrec hash entries.
func (t *Thread) CreateTable(narr, nrec int) *Table {
	t.checkGC()
	tb := t.rt.newTable(narr, nrec)
	t.push(tableValue(tb))
	return tb
}

// GetTable replaces the key on top by t[key] for the value at idx, calling
// metamethods, and returns the result's type.
func (t *Thread) GetTable(idx int) Type {
	obj := t.Get(idx)
	t.stack[t.top-1] = t.getTable(obj, t.stack[t.top-1], noOperand)
	return t.stack[t.top-1].Type()
}

// GetField pushes obj[k] for the value at idx.
func (t *Thread) GetField(idx int, k string) Type {
	obj := t.Get(idx)
	t.PushString(k)
	t.stack[t.top-1] = t.getTable(obj, t.stack[t.top-1], noOperand)
	return t.stack[t.top-1].Type()
}

// GetI pushes obj[n] for the value at idx.
func (t *Thread) GetI(idx int, n int64) Type {
	obj := t.Get(idx)
	t.push(Int(n))
	t.stack[t.top-1] = t.getTable(obj, t.stack[t.top-1], noOperand)
	return t.stack[t.top-1].Type()
}

// GetGlobal pushes the global name.
func (t *Thread) GetGlobal(name string) Type {
	t.PushString(name)
	g := tableValue(t.rt.Globals())
	t.stack[t.top-1] = t.getTable(g, t.stack[t.top-1], noOperand)
	return t.stack[t.top-1].Type()
}

func (t *Thread) tableAt(idx int) *Table {
	tb, ok := t.Get(idx).AsTable()
	if !ok {
		t.runError("table expected at index %d, got %s", idx, t.Get(idx).TypeName())
	}
	return tb
}

// RawGet replaces the key on top by the raw value for the table at idx.
func (t *Thread) RawGet(idx int) Type {
	tb := t.tableAt(idx)
	t.stack[t.top-1] = tb.Get(t.stack[t.top-1])
	return t.stack[t.top-1].Type()
}

// RawGetI pushes the raw value tb[n] for the table at idx.
func (t *Thread) RawGetI(idx int, n int64) Type {
	v := t.tableAt(idx).GetInt(n)
	t.push(v)
	return v.Type()
}

// SetTable performs obj[key] = value for the value at idx, with key and
// value on top (value topmost), popping both.
func (t *Thread) SetTable(idx int) {
	obj := t.Get(idx)
	t.setTable(obj, t.stack[t.top-2], t.stack[t.top-1], noOperand)
	t.drop(2)
}

// SetField pops a value and stores it as obj[k].
func (t *Thread) SetField(idx int, k string) {
	obj := t.Get(idx)
	t.PushString(k)
	t.setTable(obj, t.stack[t.top-1], t.stack[t.top-2], noOperand)
	t.drop(2)
}

// SetI pops a value and stores it as obj[n].
func (t *Thread) SetI(idx int, n int64) {
	obj := t.Get(idx)
	t.setTable(obj, Int(n), t.stack[t.top-1], noOperand)
	t.drop(1)
}

// SetGlobal pops a value and assigns it to the global name.
func (t *Thread) SetGlobal(name string) {
	t.PushString(name)
	g := tableValue(t.rt.Globals())
	t.setTable(g, t.stack[t.top-1], t.stack[t.top-2], noOperand)
	t.drop(2)
}

// RawSet is SetTable without metamethods.
func (t *Thread) RawSet(idx int) {
	tb := t.tableAt(idx)
	t.rawSet(tb, t.stack[t.top-2], t.stack[t.top-1])
	t.drop(2)
}

// RawSetI pops a value and stores it as tb[n] without metamethods.
func (t *Thread) RawSetI(idx int, n int64) {
	tb := t.tableAt(idx)
	t.rawSet(tb, Int(n), t.stack[t.top-1])
	t.drop(1)
}

// GetMetatable pushes the metatable of the value at idx and reports
// whether there is one; nothing is pushed otherwise.
func (t *Thread) GetMetatable(idx int) bool {
	mt := t.rt.metatable(t.Get(idx))
	if mt == nil {
		return false
	}
	t.push(tableValue(mt))
	return true
}

// SetMetatable pops a table or nil and makes it the metatable of the
// value at idx. Values other than tables and userdata share one metatable
// per type.
func (t *Thread) SetMetatable(idx int) {
	obj := t.Get(idx)
	var mt *Table
	switch top := t.stack[t.top-1]; top.vt {
	case vtNil:
	case vtTable:
		mt = top.tbl()
	default:
		t.runError("table expected")
	}
	switch obj.vt {
	case vtTable:
		tb := obj.tbl()
		if tb.frozen {
			t.runError("%s", ErrFrozenTable)
		}
		tb.meta = mt
		if mt != nil {
			t.rt.gc.barrier(tb, tableValue(mt))
			t.rt.gc.checkFinalizer(tb, mt)
		}
	case vtUserdata:
		u := obj.ud()
		u.meta = mt
		if mt != nil {
			t.rt.gc.barrier(u, tableValue(mt))
			t.rt.gc.checkFinalizer(u, mt)
		}
	default:
		t.rt.typeMeta[obj.Type()] = mt
	}
	t.drop(1)
}

// Next pops a key and pushes the next key-value pair of the table at idx.
// It reports false, pushing nothing, when the traversal is over.
func (t *Thread) Next(idx int) bool {
	tb := t.tableAt(idx)
	k, v, err := tb.Next(t.stack[t.top-1])
	if err != nil {
		t.runError("%s", err)
	}
	if k.IsNil() {
		t.drop(1)
		return false
	}
	t.stack[t.top-1] = k
	t.push(v)
	return true
}

// Len pushes the length of the value at idx, calling __len.
func (t *Thread) Len(idx int) {
	t.push(t.objLen(t.Get(idx), noOperand))
}

// RawLen returns the length of a string or table without metamethods.
func (t *Thread) RawLen(idx int) int64 {
	v := t.Get(idx)
	switch v.vt {
	case vtString:
		return int64(len(v.str().s))
	case vtTable:
		return v.tbl().Length()
	}
	return 0
}

// Freeze freezes the table at idx.
func (t *Thread) Freeze(idx int) { t.tableAt(idx).Freeze() }

// IsFrozen reports whether the value at idx is a frozen table.
func (t *Thread) IsFrozen(idx int) bool {
	tb, ok := t.Get(idx).AsTable()
	return ok && tb.frozen
}

// NewUserdata pushes a userdata carrying data with nuv user values.
func (t *Thread) NewUserdata(data any, nuv int) *Userdata {
	t.checkGC()
	u := t.rt.newUserdata(data, nuv)
	t.push(userdataValue(u))
	return u
}

// GetUserValue pushes the n-th user value of the userdata at idx, or nil
// and TypeNone when it has no such value.
func (t *Thread) GetUserValue(idx, n int) Type {
	u, ok := t.Get(idx).AsUserdata()
	if !ok || n < 1 || n > len(u.userValues) {
		t.push(Nil)
		return TypeNone
	}
	v := u.userValues[n-1]
	t.push(v)
	return v.Type()
}

// SetUserValue pops a value into the n-th user value of the userdata at
// idx, reporting false when it has no such value.
func (t *Thread) SetUserValue(idx, n int) bool {
	v := t.pop()
	u, ok := t.Get(idx).AsUserdata()
	if !ok || n < 1 || n > len(u.userValues) {
		return false
	}
	u.userValues[n-1] = v
	t.rt.gc.barrier(u, v)
	return true
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// Call calls the function below the top nargs values, leaving nresults
// results (all of them for MultRet). Errors propagate; an error escaping
// the outermost frame of a thread goes through the panic handler.
func (t *Thread) Call(nargs, nresults int) { t.CallK(nargs, nresults, 0, nil) }

// CallK is Call with a continuation that lets the calling native function
// survive a yield inside the callee.
func (t *Thread) CallK(nargs, nresults, ctx int, k Continuation) {
	fn := t.top - nargs - 1
	if fn <= t.ci.fn {
		t.runError("not enough elements in the stack")
	}
	switch {
	case t.ci == &t.baseCI:
		t.callOutermost(fn, nresults)
	case k != nil && t.nny == 0:
		t.ci.k, t.ci.ctx = k, ctx
		t.call(fn, nresults)
	default:
		t.callNoYield(fn, nresults)
	}
	t.adjustResults(nresults)
}

func (t *Thread) adjustResults(nresults int) {
	if nresults == MultRet && t.ci.top < t.top {
		t.ci.top = t.top
	}
}

// callOutermost runs a call made by the host with no frame below it.
func (t *Thread) callOutermost(fn, nresults int) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var e *Error
		switch r := r.(type) {
		case *Error:
			e = r
		case yieldSignal:
			panic(r)
		default:
			e = t.foreignError(r)
		}
		t.unprotected(e)
		panic(e)
	}()
	t.callNoYield(fn, nresults)
}

// PCall calls like Call in protected mode. msgh is the stack index of a
// message handler, or 0. On error the function and its arguments are
// replaced by the error value and the error status is returned.
func (t *Thread) PCall(nargs, nresults, msgh int) Status {
	return t.PCallK(nargs, nresults, msgh, 0, nil)
}

// PCallK is PCall with a continuation. Inside a coroutine the protected
// call is then yieldable: after a yield, or after an error recovered by
// this call, k runs in place of the calling native function with the
// status.
func (t *Thread) PCallK(nargs, nresults, msgh, ctx int, k Continuation) Status {
	errFunc := 0
	if msgh != 0 {
		errFunc = t.slot(msgh)
	}
	fn := t.top - nargs - 1
	if fn <= t.ci.fn {
		t.runError("not enough elements in the stack")
	}
	if k == nil || t.nny > 0 {
		status := t.pcall(func() { t.callNoYield(fn, nresults) }, fn, errFunc)
		t.adjustResults(nresults)
		return status
	}
	ci := t.ci
	ci.k, ci.ctx = k, ctx
	ci.funcIdx = fn
	ci.oldErrFunc = t.errFunc
	t.errFunc = errFunc
	ci.status |= cistYPCall
	t.call(fn, nresults)
	ci.status &^= cistYPCall
	t.errFunc = ci.oldErrFunc
	t.adjustResults(nresults)
	return OK
}

// Error raises the value on top of the stack as an error.
func (t *Thread) Error() int {
	t.errorValue(t.stack[t.top-1])
	return 0
}

// Errorf raises a formatted error message prefixed with the position of
// the calling script function.
func (t *Thread) Errorf(format string, args ...any) int {
	msg := t.Where(1) + fmt.Sprintf(format, args...)
	t.errorValue(t.rt.String(msg))
	return 0
}

// ---------------------------------------------------------------------------
// Conversion for display and registration helpers
// ---------------------------------------------------------------------------

// ToDisplayString converts any value to a string the way tostring does,
// honoring __tostring and __name, pushes it and returns it.
func (t *Thread) ToDisplayString(idx int) string {
	v := t.Get(idx)
	if tm := t.metaField(v, "__tostring"); !tm.IsNil() {
		t.push(tm)
		t.push(v)
		t.Call(1, 1)
		s, ok := t.stack[t.top-1].AsString()
		if !ok {
			t.runError("'__tostring' must return a string")
		}
		return s
	}
	var s string
	switch v.vt {
	case vtNil, vtTrue, vtFalse, vtInt, vtFloat, vtString:
		s = v.String()
	default:
		s = fmt.Sprintf("%s: %p", t.objTypeName(v), v.ref)
	}
	t.PushString(s)
	return s
}

// metaField returns field name of v's metatable, or Nil.
func (t *Thread) metaField(v Value, name string) Value {
	mt := t.rt.metatable(v)
	if mt == nil {
		return Nil
	}
	return mt.GetString(name)
}

// GetMetaField pushes field name of the metatable of the value at idx and
// returns its type; it pushes nothing and returns TypeNil when absent.
func (t *Thread) GetMetaField(idx int, name string) Type {
	v := t.metaField(t.Get(idx), name)
	if v.IsNil() {
		return TypeNil
	}
	t.push(v)
	return v.Type()
}

// NativeReg names a native function for SetFuncs.
type NativeReg struct {
	Name string
	Func NativeFunction
}

// SetFuncs stores each function of regs into the table on top.
func (t *Thread) SetFuncs(regs []NativeReg) {
	for _, r := range regs {
		t.pushNative(r.Func, 0, r.Name)
		t.SetField(-2, r.Name)
	}
}

// Register sets global name to native function fn.
func (t *Thread) Register(name string, fn NativeFunction) {
	t.pushNative(fn, 0, name)
	t.SetGlobal(name)
}

// NewMetatable creates a metatable with __name set to tname in the
// registry under tname and pushes it. It reports false, pushing the
// existing table, when tname is already registered.
func (t *Thread) NewMetatable(tname string) bool {
	if t.GetField(RegistryIndex, tname) != TypeNil {
		return false
	}
	t.Pop(1)
	t.CreateTable(0, 2)
	t.PushString(tname)
	t.SetField(-2, "__name")
	t.PushValue(-1)
	t.SetField(RegistryIndex, tname)
	return true
}

// upvalueRef locates upvalue n (1-based) of the function at funcIdx.
func (t *Thread) upvalueRef(funcIdx, n int) (c *Closure, name string, ok bool) {
	c, ok = t.Get(funcIdx).AsClosure()
	if !ok || n < 1 || n > c.NumUpvalues() {
		return nil, "", false
	}
	if c.proto != nil {
		name = c.proto.Upvalues[n-1].Name
		if name == "" {
			name = "(no name)"
		}
	}
	return c, name, true
}

// GetUpvalue pushes upvalue n of the function at funcIdx and returns its
// name (empty for native functions). Nothing is pushed when there is no
// such upvalue.
func (t *Thread) GetUpvalue(funcIdx, n int) (string, bool) {
	c, name, ok := t.upvalueRef(funcIdx, n)
	if !ok {
		return "", false
	}
	if c.proto != nil {
		t.push(c.upvals[n-1].get())
	} else {
		t.push(c.captured[n-1])
	}
	return name, true
}

// SetUpvalue pops a value into upvalue n of the function at funcIdx and
// returns the upvalue's name. Nothing is popped when there is no such
// upvalue.
func (t *Thread) SetUpvalue(funcIdx, n int) (string, bool) {
	c, name, ok := t.upvalueRef(funcIdx, n)
	if !ok {
		return "", false
	}
	v := t.pop()
	if c.proto != nil {
		c.upvals[n-1].set(t.rt, v)
	} else {
		c.captured[n-1] = v
		t.rt.gc.barrier(c, v)
	}
	return name, true
}

// Stack renders the current frame's values for debugging.
func (t *Thread) Stack() string {
	var sb strings.Builder
	for i := 1; i <= t.Top(); i++ {
		fmt.Fprintf(&sb, "[%d] %s %s\n", i, t.TypeOf(i), t.Get(i))
	}
	return sb.String()
}
