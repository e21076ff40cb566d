package lib

import (
	"math"

	"github.com/chazu/luma/vm"
)

var mathFuncs = []vm.NativeReg{
	{Name: "abs", Func: mathAbs},
	{Name: "ceil", Func: mathCeil},
	{Name: "floor", Func: mathFloor},
	{Name: "fmod", Func: mathFmod},
	{Name: "modf", Func: mathModf},
	{Name: "max", Func: mathMax},
	{Name: "min", Func: mathMin},
	{Name: "sqrt", Func: mathSqrt},
	{Name: "exp", Func: mathExp},
	{Name: "log", Func: mathLog},
	{Name: "sin", Func: mathSin},
	{Name: "cos", Func: mathCos},
	{Name: "tan", Func: mathTan},
	{Name: "tointeger", Func: mathToInteger},
	{Name: "type", Func: mathType},
	{Name: "ult", Func: mathUlt},
}

// OpenMath pushes the math library table.
func OpenMath(t *vm.Thread) int {
	t.CreateTable(0, len(mathFuncs)+4)
	t.SetFuncs(mathFuncs)
	t.PushNumber(math.Pi)
	t.SetField(-2, "pi")
	t.PushNumber(math.Inf(1))
	t.SetField(-2, "huge")
	t.PushInteger(math.MaxInt64)
	t.SetField(-2, "maxinteger")
	t.PushInteger(math.MinInt64)
	t.SetField(-2, "mininteger")
	return 1
}

// pushFloatAsInt pushes f as an integer when it has an exact integer
// representation and as a float otherwise.
func pushFloatAsInt(t *vm.Thread, f float64) {
	if f >= math.MinInt64 && f < -math.MinInt64 {
		t.PushInteger(int64(f))
	} else {
		t.PushNumber(f)
	}
}

func mathAbs(t *vm.Thread) int {
	if t.IsInteger(1) {
		n, _ := t.ToInteger(1)
		if n < 0 {
			n = -n
		}
		t.PushInteger(n)
	} else {
		t.PushNumber(math.Abs(t.CheckNumber(1)))
	}
	return 1
}

func mathCeil(t *vm.Thread) int {
	if t.IsInteger(1) {
		t.SetTop(1)
	} else {
		pushFloatAsInt(t, math.Ceil(t.CheckNumber(1)))
	}
	return 1
}

func mathFloor(t *vm.Thread) int {
	if t.IsInteger(1) {
		t.SetTop(1)
	} else {
		pushFloatAsInt(t, math.Floor(t.CheckNumber(1)))
	}
	return 1
}

func mathFmod(t *vm.Thread) int {
	if t.IsInteger(1) && t.IsInteger(2) {
		a, _ := t.ToInteger(1)
		d, _ := t.ToInteger(2)
		switch {
		case d == 0:
			t.ArgError(2, "zero")
		case d == -1:
			t.PushInteger(0)
		default:
			t.PushInteger(a % d)
		}
		return 1
	}
	t.PushNumber(math.Mod(t.CheckNumber(1), t.CheckNumber(2)))
	return 1
}

func mathModf(t *vm.Thread) int {
	if t.IsInteger(1) {
		t.SetTop(1)
		t.PushNumber(0)
		return 2
	}
	x := t.CheckNumber(1)
	var ip float64
	if x < 0 {
		ip = math.Ceil(x)
	} else {
		ip = math.Floor(x)
	}
	t.PushNumber(ip)
	if math.IsInf(x, 0) {
		t.PushNumber(0)
	} else {
		t.PushNumber(x - ip)
	}
	return 2
}

func mathMax(t *vm.Thread) int {
	n := t.Top()
	best := 1
	t.CheckNumber(1)
	for i := 2; i <= n; i++ {
		t.CheckNumber(i)
		if t.Compare(best, i, vm.CompareLt) {
			best = i
		}
	}
	t.PushValue(best)
	return 1
}

func mathMin(t *vm.Thread) int {
	n := t.Top()
	best := 1
	t.CheckNumber(1)
	for i := 2; i <= n; i++ {
		t.CheckNumber(i)
		if t.Compare(i, best, vm.CompareLt) {
			best = i
		}
	}
	t.PushValue(best)
	return 1
}

func mathSqrt(t *vm.Thread) int {
	t.PushNumber(math.Sqrt(t.CheckNumber(1)))
	return 1
}

func mathExp(t *vm.Thread) int {
	t.PushNumber(math.Exp(t.CheckNumber(1)))
	return 1
}

func mathLog(t *vm.Thread) int {
	x := t.CheckNumber(1)
	var r float64
	if t.IsNoneOrNil(2) {
		r = math.Log(x)
	} else {
		switch base := t.CheckNumber(2); base {
		case 2:
			r = math.Log2(x)
		case 10:
			r = math.Log10(x)
		default:
			r = math.Log(x) / math.Log(base)
		}
	}
	t.PushNumber(r)
	return 1
}

func mathSin(t *vm.Thread) int {
	t.PushNumber(math.Sin(t.CheckNumber(1)))
	return 1
}

func mathCos(t *vm.Thread) int {
	t.PushNumber(math.Cos(t.CheckNumber(1)))
	return 1
}

func mathTan(t *vm.Thread) int {
	t.PushNumber(math.Tan(t.CheckNumber(1)))
	return 1
}

func mathToInteger(t *vm.Thread) int {
	v := t.Get(1)
	if i, ok := v.AsInteger(); ok {
		t.PushInteger(i)
		return 1
	}
	if f, ok := v.AsFloat(); ok && f == math.Floor(f) && f >= math.MinInt64 && f < -math.MinInt64 {
		t.PushInteger(int64(f))
		return 1
	}
	t.CheckAny(1)
	t.PushNil()
	return 1
}

func mathType(t *vm.Thread) int {
	switch {
	case t.TypeOf(1) != vm.TypeNumber:
		t.CheckAny(1)
		t.PushNil()
	case t.IsInteger(1):
		t.PushString("integer")
	default:
		t.PushString("float")
	}
	return 1
}

func mathUlt(t *vm.Thread) int {
	a := t.CheckInteger(1)
	b := t.CheckInteger(2)
	t.PushBoolean(uint64(a) < uint64(b))
	return 1
}
