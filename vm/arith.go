package vm

import "math"

// ArithOp selects an arithmetic or bitwise operation for Thread.Arith.
type ArithOp int

// The order matches the metamethod events __add .. __bnot.
const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithMod
	ArithPow
	ArithDiv
	ArithIDiv
	ArithBAnd
	ArithBOr
	ArithBXor
	ArithShl
	ArithShr
	ArithUnm
	ArithBNot
)

func (op ArithOp) event() tmEvent { return tmAdd + tmEvent(op) }

func (op ArithOp) isBitwise() bool {
	return op >= ArithBAnd && op <= ArithShr || op == ArithBNot
}

// rawArith performs op on numbers and numeric strings. It reports false
// when an operand is not convertible, leaving metamethod dispatch to the
// caller.
func (t *Thread) rawArith(op ArithOp, a, b Value) (Value, bool) {
	if op.isBitwise() {
		i1, ok1 := toInteger(a)
		i2, ok2 := toInteger(b)
		if !ok1 || !ok2 {
			return Nil, false
		}
		return Int(t.intArith(op, i1, i2)), true
	}
	if op == ArithDiv || op == ArithPow {
		f1, ok1 := toFloat(a)
		f2, ok2 := toFloat(b)
		if !ok1 || !ok2 {
			return Nil, false
		}
		return Float(floatArith(op, f1, f2)), true
	}
	n1, ok1 := toNumber(a)
	n2, ok2 := toNumber(b)
	if !ok1 || !ok2 {
		return Nil, false
	}
	if n1.vt == vtInt && n2.vt == vtInt {
		return Int(t.intArith(op, n1.ival(), n2.ival())), true
	}
	f1, _ := n1.AsNumber()
	f2, _ := n2.AsNumber()
	return Float(floatArith(op, f1, f2)), true
}

func (t *Thread) intArith(op ArithOp, a, b int64) int64 {
	switch op {
	case ArithAdd:
		return a + b
	case ArithSub:
		return a - b
	case ArithMul:
		return a * b
	case ArithMod:
		return t.intMod(a, b)
	case ArithIDiv:
		return t.intDiv(a, b)
	case ArithBAnd:
		return a & b
	case ArithBOr:
		return a | b
	case ArithBXor:
		return a ^ b
	case ArithShl:
		return shiftLeft(a, b)
	case ArithShr:
		return shiftLeft(a, -b)
	case ArithUnm:
		return -a
	case ArithBNot:
		return ^a
	}
	return 0
}

// intDiv is floor division.
func (t *Thread) intDiv(a, b int64) int64 {
	switch b {
	case 0:
		t.runError("attempt to perform 'n//0'")
	case -1:
		return -a
	}
	q := a / b
	if a%b != 0 && (a^b) < 0 {
		q--
	}
	return q
}

// intMod is the remainder of floor division; it has the sign of b.
func (t *Thread) intMod(a, b int64) int64 {
	switch b {
	case 0:
		t.runError("attempt to perform 'n%%0'")
	case -1:
		return 0
	}
	m := a % b
	if m != 0 && (m^b) < 0 {
		m += b
	}
	return m
}

// shiftLeft shifts logically; negative counts shift right.
func shiftLeft(x, n int64) int64 {
	switch {
	case n <= -64 || n >= 64:
		return 0
	case n >= 0:
		return int64(uint64(x) << uint(n))
	default:
		return int64(uint64(x) >> uint(-n))
	}
}

func floatArith(op ArithOp, a, b float64) float64 {
	switch op {
	case ArithAdd:
		return a + b
	case ArithSub:
		return a - b
	case ArithMul:
		return a * b
	case ArithDiv:
		return a / b
	case ArithPow:
		if b == 2 {
			return a * a
		}
		return math.Pow(a, b)
	case ArithIDiv:
		return math.Floor(a / b)
	case ArithMod:
		return floatMod(a, b)
	case ArithUnm:
		return -a
	}
	return 0
}

func floatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m > 0 {
		if b < 0 {
			m += b
		}
	} else if m < 0 && b != m {
		if b > 0 {
			m += b
		}
	}
	return m
}

// arith performs op with metamethod fallback. ra and rb locate the operands
// for error messages.
func (t *Thread) arith(op ArithOp, a, b Value, ra, rb operand) Value {
	if v, ok := t.rawArith(op, a, b); ok {
		return v
	}
	tm := t.metaOf(a, op.event())
	if tm.IsNil() {
		tm = t.metaOf(b, op.event())
	}
	if tm.IsNil() {
		t.arithError(op, a, b, ra, rb)
	}
	return t.callTMRes(tm, a, b)
}

func (t *Thread) arithError(op ArithOp, a, b Value, ra, rb operand) {
	if op.isBitwise() {
		_, okA := toNumber(a)
		_, okB := toNumber(b)
		if okA && okB {
			t.runError("number has no integer representation")
		}
		if !a.IsNumber() && !okA {
			t.typeError(a, "perform bitwise operation on", ra)
		}
		t.typeError(b, "perform bitwise operation on", rb)
	}
	if _, ok := toNumber(a); !ok {
		t.typeError(a, "perform arithmetic on", ra)
	}
	t.typeError(b, "perform arithmetic on", rb)
}
