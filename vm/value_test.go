package vm

import (
	"math"
	"strings"
	"testing"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		typ  Type
		name string
	}{
		{Nil, TypeNil, "nil"},
		{Bool(true), TypeBoolean, "boolean"},
		{Int(3), TypeNumber, "number"},
		{Float(3.5), TypeNumber, "number"},
	}
	for _, tt := range tests {
		if got := tt.v.Type(); got != tt.typ {
			t.Errorf("%v.Type() = %v, want %v", tt.v, got, tt.typ)
		}
		if got := tt.v.TypeName(); got != tt.name {
			t.Errorf("%v.TypeName() = %q, want %q", tt.v, got, tt.name)
		}
	}

	if _, ok := Float(2).AsInteger(); ok {
		t.Error("Float(2).AsInteger() succeeded")
	}
	if _, ok := Int(2).AsFloat(); ok {
		t.Error("Int(2).AsFloat() succeeded")
	}
	if f, ok := Int(2).AsNumber(); !ok || f != 2 {
		t.Errorf("Int(2).AsNumber() = %v, %v", f, ok)
	}
	if Bool(false).Truthy() || Nil.Truthy() || !Int(0).Truthy() {
		t.Error("truthiness: only nil and false are falsy")
	}
}

func TestRawEqualNumbers(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int(1), Float(1), true},
		{Float(1), Int(1), true},
		{Int(1), Float(1.5), false},
		{Int(math.MaxInt64), Float(math.MaxInt64), false},
		{Float(math.NaN()), Float(math.NaN()), false},
		{Bool(true), Bool(true), true},
		{Nil, Bool(false), false},
	}
	for _, tt := range tests {
		if got := RawEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("RawEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	rt := NewRuntime()
	defer rt.Close()
	if !RawEqual(rt.String("abc"), rt.String("abc")) {
		t.Error("equal strings compare unequal")
	}
	long := string(make([]byte, 100))
	if !RawEqual(rt.String(long), rt.String(long)) {
		t.Error("equal long strings compare unequal")
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{3, "3.0"},
		{-0.5, "-0.5"},
		{0.1, "0.1"},
		{1e15, "1e+15"},
		{1e100, "1e+100"},
		{2.5e-5, "2.5e-05"},
		{100000, "100000.0"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{1.0 / 3, "0.33333333333333"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.f); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		s    string
		want Value
		ok   bool
	}{
		{"10", Int(10), true},
		{"  -7\t", Int(-7), true},
		{"1e2", Float(100), true},
		{".5", Float(0.5), true},
		{"5.", Float(5), true},
		{"0x10", Int(16), true},
		{"0xffffffffffffffff", Int(-1), true},
		{"9223372036854775808", Float(9223372036854775808), true},
		{"", Nil, false},
		{"abc", Nil, false},
		{"1e", Nil, false},
		{"- 1", Nil, false},
		{"1 2", Nil, false},
	}
	for _, tt := range tests {
		got, ok := StringToNumber(tt.s)
		if ok != tt.ok {
			t.Errorf("StringToNumber(%q) ok = %v, want %v", tt.s, ok, tt.ok)
			continue
		}
		if ok && (got.vt != tt.want.vt || !RawEqual(got, tt.want)) {
			t.Errorf("StringToNumber(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestShortStringsAreInterned(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	th := rt.MainThread()

	if rt.String("abc").str() != rt.String("abc").str() {
		t.Error("equal literals are distinct objects")
	}

	th.PushString("ab")
	th.PushString("c")
	th.Concat(2)
	if th.Get(-1).str() != rt.String("abc").str() {
		t.Error("concatenation result is not the interned string")
	}

	th.PushString("kept")
	rt.FullCollect()
	if th.Get(-1).str() != rt.String("kept").str() {
		t.Error("referenced string lost its intern entry after collection")
	}

	rt.String("unreferenced")
	rt.FullCollect()
	if _, ok := rt.strings.entries["unreferenced"]; ok {
		t.Error("unreachable string still interned after collection")
	}

	long := strings.Repeat("x", 100)
	a, b := rt.String(long), rt.String(long)
	if a.str() == b.str() {
		t.Error("long strings should not be interned")
	}
	if !RawEqual(a, b) {
		t.Error("equal long strings compare unequal")
	}
}
