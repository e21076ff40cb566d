package vm

import (
	"strings"
	"testing"
)

// stackInts returns the integers in the current frame, with -1 for any
// other value.
func stackInts(th *Thread) []int64 {
	var out []int64
	for i := 1; i <= th.Top(); i++ {
		n, ok := th.Get(i).AsInteger()
		if !ok {
			n = -1
		}
		out = append(out, n)
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStackManipulation(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	for i := int64(1); i <= 5; i++ {
		th.PushInteger(i)
	}

	steps := []struct {
		name string
		op   func()
		want []int64
	}{
		{"rotate up", func() { th.Rotate(2, 1) }, []int64{1, 5, 2, 3, 4}},
		{"rotate down", func() { th.Rotate(1, -1) }, []int64{5, 2, 3, 4, 1}},
		{"remove", func() { th.Remove(2) }, []int64{5, 3, 4, 1}},
		{"insert", func() { th.PushInteger(9); th.Insert(1) }, []int64{9, 5, 3, 4, 1}},
		{"replace", func() { th.PushInteger(7); th.Replace(2) }, []int64{9, 7, 3, 4, 1}},
		{"copy", func() { th.Copy(1, -1) }, []int64{9, 7, 3, 4, 9}},
		{"set top down", func() { th.SetTop(2) }, []int64{9, 7}},
		{"set top up", func() { th.SetTop(4) }, []int64{9, 7, -1, -1}},
		{"pop", func() { th.Pop(3) }, []int64{9}},
		{"push value", func() { th.PushValue(-1) }, []int64{9, 9}},
	}
	for _, s := range steps {
		s.op()
		if got := stackInts(th); !equalInts(got, s.want) {
			t.Fatalf("%s: stack = %v, want %v", s.name, got, s.want)
		}
	}

	if got := th.AbsIndex(-1); got != 2 {
		t.Errorf("AbsIndex(-1) = %d, want 2", got)
	}
	if got := th.TypeOf(5); got != TypeNone {
		t.Errorf("TypeOf above top = %v, want none", got)
	}
}

func TestXMove(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	co := th.NewThread()
	th.PushInteger(1)
	th.PushInteger(2)
	th.XMove(co, 2)
	if got := th.Top(); got != 1 {
		t.Errorf("source top = %d, want 1", got)
	}
	if got := stackInts(co); !equalInts(got, []int64{1, 2}) {
		t.Errorf("target stack = %v, want [1 2]", got)
	}
	if !th.IsThread(1) || th.ToThread(1) != co {
		t.Error("NewThread did not push the coroutine")
	}
}

func TestConversions(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	th.PushInteger(42)
	th.PushNumber(3.5)
	th.PushString("10")
	th.PushString("0x1F")
	th.PushBoolean(false)
	th.PushNil()

	if n, ok := th.ToInteger(1); !ok || n != 42 {
		t.Errorf("ToInteger(42) = %d, %v", n, ok)
	}
	if _, ok := th.ToInteger(2); ok {
		t.Error("ToInteger(3.5) succeeded")
	}
	if n, ok := th.ToInteger(3); !ok || n != 10 {
		t.Errorf("ToInteger(\"10\") = %d, %v", n, ok)
	}
	if f, ok := th.ToNumber(4); !ok || f != 31 {
		t.Errorf("ToNumber(\"0x1F\") = %v, %v", f, ok)
	}
	if !th.IsNumber(3) || th.IsInteger(3) {
		t.Error("numeric string: IsNumber should hold and IsInteger should not")
	}
	if th.ToBoolean(5) || th.ToBoolean(6) || !th.ToBoolean(1) {
		t.Error("ToBoolean mismatch")
	}

	s, ok := th.ToString(2)
	if !ok || s != "3.5" {
		t.Errorf("ToString(3.5) = %q, %v", s, ok)
	}
	if th.TypeOf(2) != TypeString {
		t.Error("ToString should convert a number in place")
	}
	if _, ok := th.ToString(5); ok {
		t.Error("ToString(false) succeeded")
	}
}

func TestArithConcatCompare(t *testing.T) {
	th := newTestRuntime(t).MainThread()

	th.PushInteger(7)
	th.PushInteger(2)
	th.Arith(ArithMul)
	if n, _ := th.ToInteger(-1); n != 14 {
		t.Errorf("7 * 2 = %d", n)
	}
	th.PushInteger(4)
	th.Arith(ArithDiv)
	if f, _ := th.Get(-1).AsFloat(); f != 3.5 {
		t.Errorf("14 / 4 = %v, want float 3.5", th.Get(-1))
	}
	th.Arith(ArithUnm)
	if f, _ := th.Get(-1).AsFloat(); f != -3.5 {
		t.Errorf("-(3.5) = %v", th.Get(-1))
	}
	th.SetTop(0)

	th.PushString("a")
	th.PushInteger(1)
	th.PushString("b")
	th.Concat(3)
	if s, _ := th.ToString(-1); s != "a1b" || th.Top() != 1 {
		t.Errorf("Concat = %q with top %d", s, th.Top())
	}
	th.Concat(0)
	if s, _ := th.ToString(-1); s != "" {
		t.Errorf("Concat(0) = %q", s)
	}
	th.SetTop(0)

	th.PushInteger(1)
	th.PushNumber(1.5)
	th.PushNumber(1)
	if !th.Compare(1, 2, CompareLt) || th.Compare(2, 1, CompareLt) {
		t.Error("1 < 1.5 mismatch")
	}
	if !th.Compare(1, 3, CompareEq) || !th.Compare(1, 3, CompareLe) {
		t.Error("1 == 1.0 mismatch")
	}
	if !th.RawEqual(1, 3) || th.RawEqual(1, 10) {
		t.Error("RawEqual mismatch")
	}
}

func TestTableAPI(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	th.CreateTable(2, 1)
	th.PushString("v")
	th.SetField(1, "k")
	th.PushInteger(10)
	th.SetI(1, 1)
	th.PushInteger(20)
	th.SetI(1, 2)

	if tp := th.GetField(1, "k"); tp != TypeString {
		t.Errorf("GetField type = %v", tp)
	}
	if tp := th.GetI(1, 2); tp != TypeNumber {
		t.Errorf("GetI type = %v", tp)
	}
	if tp := th.GetField(1, "missing"); tp != TypeNil {
		t.Errorf("missing field type = %v", tp)
	}
	th.SetTop(1)

	if got := th.RawLen(1); got != 2 {
		t.Errorf("RawLen = %d, want 2", got)
	}
	th.Len(1)
	if n, _ := th.ToInteger(-1); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}
	th.Pop(1)

	count := 0
	th.PushNil()
	for th.Next(1) {
		count++
		th.Pop(1)
	}
	if count != 3 || th.Top() != 1 {
		t.Errorf("Next visited %d entries (top %d), want 3 (top 1)", count, th.Top())
	}

	th.PushInteger(5)
	th.SetGlobal("five")
	if tp := th.GetGlobal("five"); tp != TypeNumber {
		t.Errorf("GetGlobal type = %v", tp)
	}
	th.Pop(1)

	th.Freeze(1)
	if !th.IsFrozen(1) {
		t.Error("IsFrozen = false after Freeze")
	}
}

func TestMetatables(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	th.CreateTable(0, 0)
	if th.GetMetatable(1) {
		t.Fatal("fresh table has a metatable")
	}

	if !th.NewMetatable("Point") {
		t.Fatal("NewMetatable reported an existing entry")
	}
	th.PushNative(func(t *Thread) int {
		t.PushString("point!")
		return 1
	})
	th.SetField(-2, "__tostring")
	th.SetMetatable(1)

	if got := th.ToDisplayString(1); got != "point!" {
		t.Errorf("ToDisplayString = %q, want point!", got)
	}
	th.Pop(1)
	if tp := th.GetMetaField(1, "__name"); tp != TypeString {
		t.Errorf("__name type = %v", tp)
	}
	th.Pop(1)
	if tp := th.GetMetaField(1, "__absent"); tp != TypeNil || th.Top() != 1 {
		t.Errorf("absent meta field: type %v, top %d", tp, th.Top())
	}
	if th.NewMetatable("Point") {
		t.Error("second NewMetatable(Point) reported a new entry")
	}
	th.Pop(1)

	// numbers share a metatable
	th.PushInteger(1)
	th.CreateTable(0, 0)
	th.SetMetatable(-2)
	th.PushNumber(2.5)
	if !th.GetMetatable(-1) {
		t.Error("numbers should share the metatable set through another number")
	}
}

func TestNativeCalls(t *testing.T) {
	th := newTestRuntime(t).MainThread()

	th.PushInteger(100)
	th.PushNativeClosure(func(t *Thread) int {
		base, _ := t.ToInteger(UpvalueIndex(1))
		sum := base
		for i := 1; i <= t.Top(); i++ {
			sum += t.CheckInteger(i)
		}
		t.PushInteger(sum)
		t.PushInteger(int64(t.Top() - 1))
		return 2
	}, 1)
	th.PushValue(-1)
	th.PushInteger(1)
	th.PushInteger(2)
	th.Call(2, 2)
	if got := stackInts(th); !equalInts(got, []int64{-1, 103, 2}) {
		t.Errorf("after Call: %v, want [fn 103 2]", got)
	}
	th.SetTop(1)

	th.PushValue(1)
	th.PushString("x")
	st := th.PCall(1, 1, 0)
	if st != ErrRun {
		t.Fatalf("PCall status = %v, want runtime error", st)
	}
	msg, _ := th.ToString(-1)
	if !strings.Contains(msg, "bad argument #1") || !strings.Contains(msg, "number expected, got string") {
		t.Errorf("error message = %q", msg)
	}
	th.SetTop(0)

	th.PushNative(func(t *Thread) int {
		return t.Errorf("failed with %d", 7)
	})
	th.PushNative(func(t *Thread) int {
		t.PushString("handled: ")
		t.PushValue(1)
		t.Concat(2)
		return 1
	})
	th.Insert(1)
	if st := th.PCall(0, 0, 1); st != ErrRun {
		t.Fatalf("PCall with handler status = %v", st)
	}
	if msg, _ := th.ToString(-1); msg != "handled: failed with 7" {
		t.Errorf("handled message = %q", msg)
	}
}

func TestUpvalues(t *testing.T) {
	th := newTestRuntime(t).MainThread()
	th.PushString("a")
	th.PushString("b")
	th.PushNativeClosure(func(t *Thread) int { return 0 }, 2)

	if _, ok := th.GetUpvalue(1, 2); !ok {
		t.Fatal("GetUpvalue(2) failed")
	}
	if s, _ := th.ToString(-1); s != "b" {
		t.Errorf("upvalue 2 = %q, want b", s)
	}
	th.Pop(1)
	th.PushString("c")
	if _, ok := th.SetUpvalue(1, 2); !ok {
		t.Fatal("SetUpvalue(2) failed")
	}
	th.GetUpvalue(1, 2)
	if s, _ := th.ToString(-1); s != "c" {
		t.Errorf("upvalue 2 after set = %q, want c", s)
	}
	th.Pop(1)
	if _, ok := th.GetUpvalue(1, 3); ok || th.Top() != 1 {
		t.Error("GetUpvalue past the last upvalue succeeded")
	}
}
