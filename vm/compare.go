package vm

import "math"

// CompareOp selects a comparison for Thread.Compare.
type CompareOp int

const (
	CompareEq CompareOp = iota
	CompareLt
	CompareLe
)

// ---------------------------------------------------------------------------
// Numeric ordering across subkinds
// ---------------------------------------------------------------------------

// Integers in [-2^53, 2^53] convert to float exactly.
const maxExactFloatInt = 1 << 53

func fitsFloat(i int64) bool { return -maxExactFloatInt <= i && i <= maxExactFloatInt }

func ltIntFloat(i int64, f float64) bool {
	if fitsFloat(i) {
		return float64(i) < f
	}
	// i < f  <=>  i < ceil(f)
	switch {
	case math.IsNaN(f):
		return false
	case f >= 9223372036854775808.0:
		return true
	case f > -9223372036854775808.0:
		return i < int64(math.Ceil(f))
	}
	return false
}

func leIntFloat(i int64, f float64) bool {
	if fitsFloat(i) {
		return float64(i) <= f
	}
	// i <= f  <=>  i <= floor(f)
	switch {
	case math.IsNaN(f):
		return false
	case f >= 9223372036854775808.0:
		return true
	case f >= -9223372036854775808.0:
		return i <= int64(math.Floor(f))
	}
	return false
}

func ltFloatInt(f float64, i int64) bool {
	if fitsFloat(i) {
		return f < float64(i)
	}
	// f < i  <=>  floor(f) < i
	switch {
	case math.IsNaN(f):
		return false
	case f >= 9223372036854775808.0:
		return false
	case f >= -9223372036854775808.0:
		return int64(math.Floor(f)) < i
	}
	return true
}

func leFloatInt(f float64, i int64) bool {
	if fitsFloat(i) {
		return f <= float64(i)
	}
	// f <= i  <=>  ceil(f) <= i
	switch {
	case math.IsNaN(f):
		return false
	case f >= 9223372036854775808.0:
		return false
	case f > -9223372036854775808.0:
		return int64(math.Ceil(f)) <= i
	}
	return true
}

func numLess(a, b Value) bool {
	switch {
	case a.vt == vtInt && b.vt == vtInt:
		return a.ival() < b.ival()
	case a.vt == vtFloat && b.vt == vtFloat:
		return a.fval() < b.fval()
	case a.vt == vtInt:
		return ltIntFloat(a.ival(), b.fval())
	default:
		return ltFloatInt(a.fval(), b.ival())
	}
}

func numLessEqual(a, b Value) bool {
	switch {
	case a.vt == vtInt && b.vt == vtInt:
		return a.ival() <= b.ival()
	case a.vt == vtFloat && b.vt == vtFloat:
		return a.fval() <= b.fval()
	case a.vt == vtInt:
		return leIntFloat(a.ival(), b.fval())
	default:
		return leFloatInt(a.fval(), b.ival())
	}
}

// ---------------------------------------------------------------------------
// Full comparisons with metamethods
// ---------------------------------------------------------------------------

// lessThan evaluates a < b.
func (t *Thread) lessThan(a, b Value) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		return numLess(a, b)
	case a.vt == vtString && b.vt == vtString:
		return a.str().s < b.str().s
	}
	return t.orderTM(a, b, tmLt)
}

// lessEqual evaluates a <= b.
func (t *Thread) lessEqual(a, b Value) bool {
	switch {
	case a.IsNumber() && b.IsNumber():
		return numLessEqual(a, b)
	case a.vt == vtString && b.vt == vtString:
		return a.str().s <= b.str().s
	}
	return t.orderTM(a, b, tmLe)
}

func (t *Thread) orderTM(a, b Value, event tmEvent) bool {
	tm := t.metaOf(a, event)
	if tm.IsNil() {
		tm = t.metaOf(b, event)
	}
	if tm.IsNil() {
		t.orderError(a, b)
	}
	return t.callTMRes(tm, a, b).Truthy()
}

func (t *Thread) orderError(a, b Value) {
	t1, t2 := t.objTypeName(a), t.objTypeName(b)
	if t1 == t2 {
		t.runError("attempt to compare two %s values", t1)
	}
	t.runError("attempt to compare %s with %s", t1, t2)
}

// equalObj evaluates a == b. __eq is consulted only for two tables or two
// userdata that are not raw-equal; the first operand's handler wins.
func (t *Thread) equalObj(a, b Value) bool {
	if a.vt != b.vt || a.ref == nil {
		return RawEqual(a, b)
	}
	if a.ref == b.ref {
		return true
	}
	var tm Value
	switch a.vt {
	case vtTable:
		tm = t.fastTM(a.tbl().meta, tmEq)
		if tm.IsNil() {
			tm = t.fastTM(b.tbl().meta, tmEq)
		}
	case vtUserdata:
		tm = t.fastTM(a.ud().meta, tmEq)
		if tm.IsNil() {
			tm = t.fastTM(b.ud().meta, tmEq)
		}
	default:
		return RawEqual(a, b)
	}
	if tm.IsNil() {
		return false
	}
	return t.callTMRes(tm, a, b).Truthy()
}
