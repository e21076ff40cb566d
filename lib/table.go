package lib

import (
	"math"
	"strings"

	"github.com/chazu/luma/vm"
)

var tabFuncs = []vm.NativeReg{
	{Name: "insert", Func: tabInsert},
	{Name: "remove", Func: tabRemove},
	{Name: "concat", Func: tabConcat},
	{Name: "pack", Func: tabPack},
	{Name: "unpack", Func: tabUnpack},
	{Name: "freeze", Func: tabFreeze},
	{Name: "isfrozen", Func: tabIsFrozen},
	{Name: "sort", Func: tabSort},
}

// OpenTable pushes the table library table.
func OpenTable(t *vm.Thread) int {
	t.CreateTable(0, len(tabFuncs))
	t.SetFuncs(tabFuncs)
	return 1
}

// length returns #v for the value at idx, honoring __len.
func length(t *vm.Thread, idx int) int64 {
	t.Len(idx)
	n, ok := t.ToInteger(-1)
	if !ok {
		t.Errorf("object length is not an integer")
	}
	t.Pop(1)
	return n
}

func tabInsert(t *vm.Thread) int {
	t.CheckTable(1)
	e := length(t, 1) + 1
	var pos int64
	switch t.Top() {
	case 2:
		pos = e
	case 3:
		pos = t.CheckInteger(2)
		if uint64(pos)-1 >= uint64(e) {
			t.ArgError(2, "position out of bounds")
		}
		for i := e; i > pos; i-- {
			t.GetI(1, i-1)
			t.SetI(1, i)
		}
	default:
		return t.Errorf("wrong number of arguments to 'insert'")
	}
	t.SetI(1, pos)
	return 0
}

func tabRemove(t *vm.Thread) int {
	t.CheckTable(1)
	size := length(t, 1)
	pos := t.OptInteger(2, size)
	if pos != size && uint64(pos)-1 > uint64(size) {
		t.ArgError(2, "position out of bounds")
	}
	t.GetI(1, pos)
	for ; pos < size; pos++ {
		t.GetI(1, pos+1)
		t.SetI(1, pos)
	}
	t.PushNil()
	t.SetI(1, pos)
	return 1
}

func tabConcat(t *vm.Thread) int {
	t.CheckTable(1)
	last := length(t, 1)
	sep := t.OptString(2, "")
	i := t.OptInteger(3, 1)
	last = t.OptInteger(4, last)

	var sb strings.Builder
	add := func(i int64) {
		t.GetI(1, i)
		s, ok := t.ToString(-1)
		if !ok {
			t.Errorf("invalid value (at index %d) in table for 'concat'", i)
		}
		sb.WriteString(s)
		t.Pop(1)
	}
	for ; i < last; i++ {
		add(i)
		sb.WriteString(sep)
	}
	if i == last {
		add(i)
	}
	t.PushString(sb.String())
	return 1
}

func tabPack(t *vm.Thread) int {
	n := t.Top()
	t.CreateTable(n, 1)
	t.Insert(1)
	for i := n; i >= 1; i-- {
		t.SetI(1, int64(i))
	}
	t.PushInteger(int64(n))
	t.SetField(1, "n")
	return 1
}

func tabUnpack(t *vm.Thread) int {
	i := t.OptInteger(2, 1)
	var e int64
	if t.IsNoneOrNil(3) {
		e = length(t, 1)
	} else {
		e = t.CheckInteger(3)
	}
	if i > e {
		return 0
	}
	n := uint64(e) - uint64(i)
	if n >= math.MaxInt32 || !t.CheckStack(int(n+1)) {
		return t.Errorf("too many results to unpack")
	}
	for ; i < e; i++ {
		t.GetI(1, i)
	}
	t.GetI(1, e)
	return int(n + 1)
}

func tabFreeze(t *vm.Thread) int {
	t.CheckTable(1)
	t.Freeze(1)
	t.SetTop(1)
	return 1
}

func tabIsFrozen(t *vm.Thread) int {
	t.CheckTable(1)
	t.PushBoolean(t.IsFrozen(1))
	return 1
}

func tabSort(t *vm.Thread) int {
	t.CheckTable(1)
	n := length(t, 1)
	if n > 1 {
		if n >= math.MaxInt32 {
			t.ArgError(1, "array too big")
		}
		if !t.IsNoneOrNil(2) {
			t.CheckType(2, vm.TypeFunction)
		}
		t.SetTop(2)
		s := sorter{t: t, custom: !t.IsNil(2)}
		s.sort(1, n)
	}
	return 0
}

// sorter is an in-place quicksort over the table at index 1, using the
// function at index 2 as the order when custom is set. Elements being
// compared are kept on the stack.
type sorter struct {
	t      *vm.Thread
	custom bool
}

// less reports whether the value at a sorts before the value at b; both
// are negative stack indices.
func (s sorter) less(a, b int) bool {
	t := s.t
	if !s.custom {
		return t.Compare(a, b, vm.CompareLt)
	}
	t.PushValue(2)
	t.PushValue(a - 1)
	t.PushValue(b - 2)
	t.Call(2, 1)
	r := t.ToBoolean(-1)
	t.Pop(1)
	return r
}

// set2 pops the top two values into a[i] and a[j].
func (s sorter) set2(i, j int64) {
	s.t.SetI(1, i)
	s.t.SetI(1, j)
}

func (s sorter) sort(lo, up int64) {
	t := s.t
	for lo < up {
		t.GetI(1, lo)
		t.GetI(1, up)
		if s.less(-1, -2) {
			s.set2(lo, up)
		} else {
			t.Pop(2)
		}
		if up-lo == 1 {
			return
		}

		p := lo + (up-lo)/2
		t.GetI(1, p)
		t.GetI(1, lo)
		if s.less(-2, -1) {
			s.set2(p, lo)
		} else {
			t.Pop(1)
			t.GetI(1, up)
			if s.less(-1, -2) {
				s.set2(p, up)
			} else {
				t.Pop(2)
			}
		}
		if up-lo == 2 {
			return
		}

		// move the median pivot out of the way to a[up-1]
		t.GetI(1, p)
		t.PushValue(-1)
		t.GetI(1, up-1)
		s.set2(p, up-1)
		p = s.partition(lo, up)

		if p-lo < up-p {
			s.sort(lo, p-1)
			lo = p + 1
		} else {
			s.sort(p+1, up)
			up = p - 1
		}
	}
}

// partition splits a[lo..up] around the pivot on top of the stack, which
// also sits in a[up-1], and returns the pivot's final position.
func (s sorter) partition(lo, up int64) int64 {
	t := s.t
	i, j := lo, up-1
	for {
		for i++; ; i++ {
			t.GetI(1, i)
			if !s.less(-1, -2) {
				break
			}
			if i == up-1 {
				t.Errorf("invalid order function for sorting")
			}
			t.Pop(1)
		}
		for j--; ; j-- {
			t.GetI(1, j)
			if !s.less(-3, -1) {
				break
			}
			if j < i {
				t.Errorf("invalid order function for sorting")
			}
			t.Pop(1)
		}
		if j < i {
			t.Pop(1)
			s.set2(up-1, i)
			return i
		}
		s.set2(i, j)
	}
}
