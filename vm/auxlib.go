package vm

import "fmt"

// ---------------------------------------------------------------------------
// Argument checking for native functions
// ---------------------------------------------------------------------------

// ArgError raises "bad argument #arg to 'fname' (msg)" for the running
// native function.
func (t *Thread) ArgError(arg int, msg string) int {
	kind, name := "", ""
	if ci := t.ciAt(0); ci != nil {
		kind, name = t.funcName(ci)
		if name == "" {
			if c, ok := t.stack[ci.fn].AsClosure(); ok && c.name != "" {
				name = c.name
			} else if g := t.globalFuncName(t.stack[ci.fn]); g != "" {
				name = g
			}
		}
	}
	if kind == "method" {
		arg--
		if arg == 0 {
			return t.Errorf("calling '%s' on bad self (%s)", name, msg)
		}
	}
	if name == "" {
		name = "?"
	}
	return t.Errorf("bad argument #%d to '%s' (%s)", arg, name, msg)
}

// TypeError raises an argument error for an unexpected value type.
func (t *Thread) TypeError(arg int, expected string) int {
	var got string
	switch {
	case t.GetMetaField(arg, "__name") == TypeString:
		got, _ = t.ToString(-1)
	case t.TypeOf(arg) == TypeNone:
		got = "no value"
	default:
		got = t.TypeOf(arg).String()
	}
	return t.ArgError(arg, fmt.Sprintf("%s expected, got %s", expected, got))
}

// CheckAny raises an error when argument arg is absent.
func (t *Thread) CheckAny(arg int) {
	if t.TypeOf(arg) == TypeNone {
		t.ArgError(arg, "value expected")
	}
}

// CheckType raises an error unless argument arg has type tp.
func (t *Thread) CheckType(arg int, tp Type) {
	if t.TypeOf(arg) != tp {
		t.TypeError(arg, tp.String())
	}
}

// CheckInteger returns argument arg as an integer.
func (t *Thread) CheckInteger(arg int) int64 {
	i, ok := t.ToInteger(arg)
	if !ok {
		if t.IsNumber(arg) {
			t.ArgError(arg, "number has no integer representation")
		}
		t.TypeError(arg, "number")
	}
	return i
}

// CheckNumber returns argument arg as a float.
func (t *Thread) CheckNumber(arg int) float64 {
	f, ok := t.ToNumber(arg)
	if !ok {
		t.TypeError(arg, "number")
	}
	return f
}

// CheckString returns argument arg as a string, converting numbers in place.
func (t *Thread) CheckString(arg int) string {
	s, ok := t.ToString(arg)
	if !ok {
		t.TypeError(arg, "string")
	}
	return s
}

// CheckTable returns argument arg, which must be a table.
func (t *Thread) CheckTable(arg int) *Table {
	tb, ok := t.Get(arg).AsTable()
	if !ok {
		t.TypeError(arg, "table")
	}
	return tb
}

// OptInteger returns argument arg as an integer, or def when it is absent
// or nil.
func (t *Thread) OptInteger(arg int, def int64) int64 {
	if t.IsNoneOrNil(arg) {
		return def
	}
	return t.CheckInteger(arg)
}

// OptNumber returns argument arg as a float, or def when it is absent or nil.
func (t *Thread) OptNumber(arg int, def float64) float64 {
	if t.IsNoneOrNil(arg) {
		return def
	}
	return t.CheckNumber(arg)
}

// OptString returns argument arg as a string, or def when it is absent or
// nil.
func (t *Thread) OptString(arg int, def string) string {
	if t.IsNoneOrNil(arg) {
		return def
	}
	return t.CheckString(arg)
}

// CheckOption returns the index in options of the string argument arg,
// using def when the argument is absent.
func (t *Thread) CheckOption(arg int, def string, options []string) int {
	name := def
	if def == "" || !t.IsNoneOrNil(arg) {
		name = t.CheckString(arg)
	}
	for i, o := range options {
		if o == name {
			return i
		}
	}
	t.ArgError(arg, fmt.Sprintf("invalid option '%s'", name))
	return -1
}
