package vm

import "sort"

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

// NativeFunction is a host function callable from scripts. It receives its
// arguments on the thread's stack at indices 1..Top() and returns how many
// values it pushed as results.
type NativeFunction func(t *Thread) int

// Continuation resumes a native function after a yield or after an error
// recovered by a yieldable protected call.
type Continuation func(t *Thread, status Status, ctx int) int

// Closure is either a script closure (a prototype with upvalue bindings) or
// a native closure (a host function with captured values stored inline).
type Closure struct {
	gcHeader
	proto    *Prototype
	upvals   []*Upvalue
	fn       NativeFunction
	captured []Value
	name     string
}

// IsNative reports whether c wraps a host function.
func (c *Closure) IsNative() bool { return c.proto == nil }

// Proto returns the prototype of a script closure, or nil.
func (c *Closure) Proto() *Prototype { return c.proto }

// NumUpvalues returns the number of upvalues or captured values.
func (c *Closure) NumUpvalues() int {
	if c.proto != nil {
		return len(c.upvals)
	}
	return len(c.captured)
}

func (rt *Runtime) newScriptClosure(p *Prototype) *Closure {
	c := &Closure{proto: p, upvals: make([]*Upvalue, len(p.Upvalues))}
	rt.gc.register(c, closureOverhead+int64(len(c.upvals))*8)
	return c
}

func (rt *Runtime) newNativeClosure(fn NativeFunction, n int, name string) *Closure {
	c := &Closure{fn: fn, name: name}
	if n > 0 {
		c.captured = make([]Value, n)
	}
	rt.gc.register(c, closureOverhead+int64(n)*valueSize)
	return c
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// Upvalue is a variable captured by a closure. While open it refers to a
// stack slot of its thread by index; closing copies the slot into the
// upvalue itself. Closing happens exactly once.
type Upvalue struct {
	thread *Thread
	index  int
	value  Value
	closed bool
}

func (u *Upvalue) get() Value {
	if u.closed {
		return u.value
	}
	return u.thread.stack[u.index]
}

func (u *Upvalue) set(rt *Runtime, v Value) {
	if u.closed {
		u.value = v
		rt.gc.barrierValue(v)
		return
	}
	u.thread.stack[u.index] = v
}

func (u *Upvalue) close() {
	u.value = u.thread.stack[u.index]
	u.closed = true
	u.thread = nil
}

// findUpvalue returns the open upvalue for stack slot level, creating it
// if no closure captured that slot yet. The open list is kept sorted by
// slot so that closing a level pops a suffix.
func (t *Thread) findUpvalue(level int) *Upvalue {
	i := sort.Search(len(t.openUpvals), func(i int) bool {
		return t.openUpvals[i].index >= level
	})
	if i < len(t.openUpvals) && t.openUpvals[i].index == level {
		return t.openUpvals[i]
	}
	uv := &Upvalue{thread: t, index: level}
	t.openUpvals = append(t.openUpvals, nil)
	copy(t.openUpvals[i+1:], t.openUpvals[i:])
	t.openUpvals[i] = uv
	return uv
}

// closeUpvalues closes every open upvalue at or above level.
func (t *Thread) closeUpvalues(level int) {
	n := len(t.openUpvals)
	for n > 0 && t.openUpvals[n-1].index >= level {
		n--
		uv := t.openUpvals[n]
		uv.close()
		t.rt.gc.barrierValue(uv.value)
		t.openUpvals[n] = nil
	}
	t.openUpvals = t.openUpvals[:n]
}

// hasOpenAbove reports whether any open upvalue or to-be-closed slot sits at
// or above level.
func (t *Thread) hasOpenAbove(level int) bool {
	if n := len(t.openUpvals); n > 0 && t.openUpvals[n-1].index >= level {
		return true
	}
	if n := len(t.tbc); n > 0 && t.tbc[n-1] >= level {
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Userdata
// ---------------------------------------------------------------------------

// Userdata is a host value exposed to scripts. It carries an arbitrary Go
// payload, an optional metatable and a fixed number of user values.
type Userdata struct {
	gcHeader
	Data       any
	meta       *Table
	userValues []Value
}

// Metatable returns the userdata's metatable, or nil.
func (u *Userdata) Metatable() *Table { return u.meta }

func (rt *Runtime) newUserdata(data any, nuv int) *Userdata {
	u := &Userdata{Data: data}
	if nuv > 0 {
		u.userValues = make([]Value, nuv)
	}
	rt.gc.register(u, userdataOverhead+int64(nuv)*valueSize)
	return u
}
