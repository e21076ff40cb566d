package vm

import "strings"

// ---------------------------------------------------------------------------
// Metamethod events
// ---------------------------------------------------------------------------

type tmEvent uint8

// Events up to tmEq are cached as absent in Table.flags.
const (
	tmIndex tmEvent = iota
	tmNewIndex
	tmGC
	tmMode
	tmLen
	tmEq
	tmAdd
	tmSub
	tmMul
	tmMod
	tmPow
	tmDiv
	tmIDiv
	tmBAnd
	tmBOr
	tmBXor
	tmShl
	tmShr
	tmUnm
	tmBNot
	tmLt
	tmLe
	tmConcat
	tmCall
	tmClose

	tmCount
)

var tmNameStrings = [tmCount]string{
	"__index", "__newindex", "__gc", "__mode", "__len", "__eq",
	"__add", "__sub", "__mul", "__mod", "__pow", "__div", "__idiv",
	"__band", "__bor", "__bxor", "__shl", "__shr", "__unm", "__bnot",
	"__lt", "__le", "__concat", "__call", "__close",
}

// maxTagLoop bounds __index and __newindex chains.
const maxTagLoop = 2000

// fastTM looks up event e in metatable mt, remembering absence of the
// frequent events in the table's flags until the next raw write.
func (t *Thread) fastTM(mt *Table, e tmEvent) Value {
	if mt == nil {
		return Nil
	}
	if e <= tmEq {
		bit := uint8(1) << e
		if mt.flags&bit != 0 {
			return Nil
		}
		v := mt.getStr(t.rt.tmNames[e])
		if v.IsNil() {
			mt.flags |= bit
		}
		return v
	}
	return mt.getStr(t.rt.tmNames[e])
}

// metatable returns the metatable of any value: per-object for tables and
// userdata, per-type otherwise.
func (rt *Runtime) metatable(v Value) *Table {
	switch v.vt {
	case vtTable:
		return v.tbl().meta
	case vtUserdata:
		return v.ud().meta
	}
	return rt.typeMeta[v.Type()]
}

func (t *Thread) metaOf(v Value, e tmEvent) Value {
	return t.fastTM(t.rt.metatable(v), e)
}

// objTypeName returns __name from the metatable when it is a string,
// otherwise the type name.
func (t *Thread) objTypeName(v Value) string {
	if v.vt == vtTable || v.vt == vtUserdata {
		if mt := t.rt.metatable(v); mt != nil {
			if name, ok := mt.GetString("__name").AsString(); ok {
				return name
			}
		}
	}
	return v.TypeName()
}

func (t *Thread) typeError(v Value, op string, o operand) {
	t.runError("attempt to %s a %s value%s", op, t.objTypeName(v), t.varInfo(o))
}

// ---------------------------------------------------------------------------
// Metamethod calls
// ---------------------------------------------------------------------------

// callTMRes calls f(a, b) and returns its first result. Calls made on
// behalf of script code may yield.
func (t *Thread) callTMRes(f, a, b Value) Value {
	t.checkStack(3)
	top := t.top
	t.stack[top] = f
	t.stack[top+1] = a
	t.stack[top+2] = b
	t.top = top + 3
	if t.ci.isLua() {
		t.call(top, 1)
	} else {
		t.callNoYield(top, 1)
	}
	t.top--
	return t.stack[t.top]
}

// callTM calls f(a, b, c) discarding results.
func (t *Thread) callTM(f, a, b, c Value) {
	t.checkStack(4)
	top := t.top
	t.stack[top] = f
	t.stack[top+1] = a
	t.stack[top+2] = b
	t.stack[top+3] = c
	t.top = top + 4
	if t.ci.isLua() {
		t.call(top, 0)
	} else {
		t.callNoYield(top, 0)
	}
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

// getTable evaluates obj[key] following __index chains.
func (t *Thread) getTable(obj, key Value, src operand) Value {
	for loop := 0; loop < maxTagLoop; loop++ {
		var tm Value
		if tb, ok := obj.AsTable(); ok {
			if v := tb.Get(key); !v.IsNil() {
				return v
			}
			if tm = t.fastTM(tb.meta, tmIndex); tm.IsNil() {
				return Nil
			}
		} else if tm = t.metaOf(obj, tmIndex); tm.IsNil() {
			t.indexError(obj, key, src)
		}
		if tm.IsFunction() {
			return t.callTMRes(tm, obj, key)
		}
		obj, src = tm, noOperand
	}
	t.runError("'__index' chain too long; possible loop")
	return Nil
}

// setTable performs obj[key] = val following __newindex chains.
func (t *Thread) setTable(obj, key, val Value, src operand) {
	for loop := 0; loop < maxTagLoop; loop++ {
		var tm Value
		if tb, ok := obj.AsTable(); ok {
			if tb.frozen {
				t.runError("%s", ErrFrozenTable)
			}
			if !tb.Get(key).IsNil() {
				tb.rawset(key, val)
				return
			}
			if tm = t.fastTM(tb.meta, tmNewIndex); tm.IsNil() {
				t.rawSet(tb, key, val)
				return
			}
		} else if tm = t.metaOf(obj, tmNewIndex); tm.IsNil() {
			t.indexError(obj, key, src)
		}
		if tm.IsFunction() {
			t.callTM(tm, obj, key, val)
			return
		}
		obj, src = tm, noOperand
	}
	t.runError("'__newindex' chain too long; possible loop")
}

func (t *Thread) indexError(obj, key Value, src operand) {
	if key.IsString() && src == noOperand {
		t.runError("attempt to index a %s value (field '%s')", t.objTypeName(obj), key.str().s)
	}
	t.typeError(obj, "index", src)
}

// rawSet stores into a table, raising the table errors as runtime errors.
func (t *Thread) rawSet(tb *Table, key, val Value) {
	if err := tb.Set(key, val); err != nil {
		t.runError("%s", err)
	}
}

// ---------------------------------------------------------------------------
// Length and concatenation
// ---------------------------------------------------------------------------

// objLen evaluates #v.
func (t *Thread) objLen(v Value, src operand) Value {
	var tm Value
	switch v.vt {
	case vtTable:
		tb := v.tbl()
		if tm = t.fastTM(tb.meta, tmLen); tm.IsNil() {
			return Int(tb.Length())
		}
	case vtString:
		return Int(int64(len(v.str().s)))
	default:
		if tm = t.metaOf(v, tmLen); tm.IsNil() {
			t.typeError(v, "get length of", src)
		}
	}
	return t.callTMRes(tm, v, v)
}

func isStringish(v Value) bool { return v.vt == vtString || v.vt == vtInt || v.vt == vtFloat }

func stringish(v Value) string {
	if v.vt == vtString {
		return v.str().s
	}
	return numberToString(v)
}

// concat joins the total values at the top of the stack, right to left,
// leaving the result in the first of them and popping the rest. Operands
// that are neither strings nor numbers go through __concat pairwise.
func (t *Thread) concat(total int) {
	for total > 1 {
		top := t.top
		n := 2
		a, b := t.stack[top-2], t.stack[top-1]
		switch {
		case !isStringish(a) || !isStringish(b):
			t.concatTM(top)
		case b.vt == vtString && len(b.str().s) == 0:
			if a.vt != vtString {
				t.stack[top-2] = t.rt.String(numberToString(a))
			}
		case a.vt == vtString && len(a.str().s) == 0:
			if b.vt == vtString {
				t.stack[top-2] = b
			} else {
				t.stack[top-2] = t.rt.String(numberToString(b))
			}
		default:
			size := len(stringish(b)) + len(stringish(a))
			for n < total && isStringish(t.stack[top-n-1]) {
				n++
				size += len(stringish(t.stack[top-n]))
			}
			var sb strings.Builder
			sb.Grow(size)
			for i := n; i > 0; i-- {
				sb.WriteString(stringish(t.stack[top-i]))
			}
			t.stack[top-n] = t.rt.String(sb.String())
		}
		total -= n - 1
		t.top -= n - 1
	}
}

func (t *Thread) concatTM(top int) {
	a, b := t.stack[top-2], t.stack[top-1]
	tm := t.metaOf(a, tmConcat)
	if tm.IsNil() {
		tm = t.metaOf(b, tmConcat)
	}
	if tm.IsNil() {
		if isStringish(a) {
			t.typeError(b, "concatenate", stackOperand(top-1))
		}
		t.typeError(a, "concatenate", stackOperand(top-2))
	}
	t.stack[top-2] = t.callTMRes(tm, a, b)
}
