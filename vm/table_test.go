package vm

import (
	"errors"
	"math"
	"testing"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := NewRuntime()
	t.Cleanup(rt.Close)
	return rt
}

func TestTableArrayPart(t *testing.T) {
	rt := newTestRuntime(t)
	tb := rt.NewTable(0, 0)
	for i := int64(1); i <= 10; i++ {
		if err := tb.SetInt(i, Int(i*i)); err != nil {
			t.Fatalf("SetInt(%d): %v", i, err)
		}
	}
	if got := tb.ArrayLen(); got != 10 {
		t.Errorf("ArrayLen() = %d, want 10", got)
	}
	if got := tb.HashLen(); got != 0 {
		t.Errorf("HashLen() = %d, want 0", got)
	}
	if got := tb.Length(); got != 10 {
		t.Errorf("Length() = %d, want 10", got)
	}
	if v, _ := tb.GetInt(7).AsInteger(); v != 49 {
		t.Errorf("t[7] = %d, want 49", v)
	}
	if !tb.GetInt(11).IsNil() || !tb.GetInt(0).IsNil() {
		t.Error("keys outside the sequence should read as nil")
	}
}

func TestTableKeyNormalization(t *testing.T) {
	rt := newTestRuntime(t)
	tb := rt.NewTable(0, 0)
	if err := tb.Set(Float(2), rt.String("two")); err != nil {
		t.Fatal(err)
	}
	if s, _ := tb.GetInt(2).AsString(); s != "two" {
		t.Errorf("t[2] = %q, want two", s)
	}
	if err := tb.Set(Float(2.5), Bool(true)); err != nil {
		t.Fatal(err)
	}
	if !tb.Get(Float(2.5)).Truthy() {
		t.Error("float key 2.5 lost")
	}
	if err := tb.SetString("name", Int(1)); err != nil {
		t.Fatal(err)
	}
	if v, _ := tb.Get(rt.String("name")).AsInteger(); v != 1 {
		t.Errorf("t.name = %d, want 1", v)
	}
}

func TestTableSetErrors(t *testing.T) {
	rt := newTestRuntime(t)
	tb := rt.NewTable(0, 0)
	if err := tb.Set(Nil, Int(1)); !errors.Is(err, ErrNilIndex) {
		t.Errorf("Set(nil) = %v, want ErrNilIndex", err)
	}
	if err := tb.Set(Float(math.NaN()), Int(1)); !errors.Is(err, ErrNaNIndex) {
		t.Errorf("Set(NaN) = %v, want ErrNaNIndex", err)
	}
	if !tb.Get(Nil).IsNil() || !tb.Get(Float(math.NaN())).IsNil() {
		t.Error("nil and NaN keys should read as nil")
	}

	tb.Freeze()
	if !tb.IsFrozen() {
		t.Fatal("IsFrozen() = false after Freeze")
	}
	if err := tb.SetInt(1, Int(1)); !errors.Is(err, ErrFrozenTable) {
		t.Errorf("SetInt on frozen table = %v, want ErrFrozenTable", err)
	}
	if err := tb.SetString("k", Int(1)); !errors.Is(err, ErrFrozenTable) {
		t.Errorf("SetString on frozen table = %v, want ErrFrozenTable", err)
	}
}

func TestTableLengthBorder(t *testing.T) {
	rt := newTestRuntime(t)

	tb := rt.NewTable(0, 0)
	for i := int64(1); i <= 5; i++ {
		tb.SetInt(i, Int(i))
	}
	tb.SetInt(5, Nil)
	if got := tb.Length(); got != 4 {
		t.Errorf("Length() after clearing the last slot = %d, want 4", got)
	}

	sparse := rt.NewTable(0, 0)
	sparse.SetInt(1, Int(1))
	sparse.SetInt(2, Int(2))
	sparse.SetInt(100, Int(3))
	if got := sparse.Length(); got != 2 {
		t.Errorf("Length() of {1, 2, [100]} = %d, want 2", got)
	}

	empty := rt.NewTable(4, 4)
	if got := empty.Length(); got != 0 {
		t.Errorf("Length() of empty table = %d, want 0", got)
	}
}

func TestTableNext(t *testing.T) {
	rt := newTestRuntime(t)
	tb := rt.NewTable(0, 0)
	for i := int64(1); i <= 3; i++ {
		tb.SetInt(i, Int(i))
	}
	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		tb.SetString(k, Bool(true))
	}

	seen := map[string]bool{}
	var ints int64
	k := Nil
	for {
		next, v, err := tb.Next(k)
		if err != nil {
			t.Fatalf("Next(%v): %v", k, err)
		}
		if next.IsNil() {
			break
		}
		if v.IsNil() {
			t.Errorf("Next returned nil value for key %v", next)
		}
		if s, ok := next.AsString(); ok {
			seen[s] = true
			// clearing the current key must not break the traversal
			tb.Set(next, Nil)
		} else if i, ok := next.AsInteger(); ok {
			ints += i
		}
		k = next
	}
	if len(seen) != len(keys) {
		t.Errorf("visited %d string keys, want %d", len(seen), len(keys))
	}
	if ints != 6 {
		t.Errorf("sum of integer keys = %d, want 6", ints)
	}
	if got := tb.HashLen(); got != 0 {
		t.Errorf("HashLen() after clearing = %d, want 0", got)
	}

	if _, _, err := tb.Next(rt.String("missing")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Next(missing) = %v, want ErrInvalidKey", err)
	}
}

func TestTableRehashKeepsEntries(t *testing.T) {
	rt := newTestRuntime(t)
	tb := rt.NewTable(0, 0)
	const n = 1000
	for i := 0; i < n; i++ {
		tb.Set(Float(float64(i)+0.5), Int(int64(i)))
	}
	for i := 0; i < n; i += 2 {
		tb.Set(Float(float64(i)+0.5), Nil)
	}
	for i := 0; i < n; i++ {
		v := tb.Get(Float(float64(i) + 0.5))
		if i%2 == 0 {
			if !v.IsNil() {
				t.Fatalf("t[%v] = %v after delete", float64(i)+0.5, v)
			}
			continue
		}
		if got, _ := v.AsInteger(); got != int64(i) {
			t.Fatalf("t[%v] = %v, want %d", float64(i)+0.5, v, i)
		}
	}
	if got := tb.HashLen(); got != n/2 {
		t.Errorf("HashLen() = %d, want %d", got, n/2)
	}
}
