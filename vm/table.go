package vm

import (
	"errors"
	"math"
	"math/bits"
)

// ---------------------------------------------------------------------------
// Table: hybrid array + hash associative container
// ---------------------------------------------------------------------------

// Table errors returned by the raw table operations.
var (
	ErrFrozenTable = errors.New("attempt to modify a frozen table")
	ErrNilIndex    = errors.New("index is nil")
	ErrNaNIndex    = errors.New("index is NaN")
	ErrInvalidKey  = errors.New("invalid key to 'next'")
)

const (
	maxABits      = 31 // largest array part is 2^maxABits
	minHashSize   = 4
	tableOverhead = 96
	valueSize     = 32
	nodeSize      = 2 * valueSize
)

// node is one hash-part slot. A slot is empty when its key is nil, live when
// its value is non-nil, and a tombstone when it keeps a key but holds nil.
// Tombstones keep their key so that next() can continue from a key deleted
// during traversal.
type node struct {
	key Value
	val Value
}

// Table is the runtime's only structured data type.
//
// Positive integer keys 1..len(array) live in the array part; every other
// key lives in the open-addressed hash part (power-of-two size, linear
// probing, maximum load 3/4).
type Table struct {
	gcHeader
	array []Value
	nodes []node
	live  int // live hash entries
	used  int // non-empty hash slots, live or tombstone

	meta   *Table
	flags  uint8 // bit e set: metamethod e known absent
	frozen bool

	rt *Runtime
}

func (rt *Runtime) newTable(narr, nrec int) *Table {
	t := &Table{rt: rt}
	if narr > 0 {
		t.array = make([]Value, 0, narr)
	}
	if nrec > 0 {
		t.nodes = make([]node, hashCapacity(nrec))
	}
	rt.gc.register(t, t.memSize())
	return t
}

// NewTable allocates an empty table with size hints.
func (rt *Runtime) NewTable(narr, nrec int) *Table {
	return rt.newTable(narr, nrec)
}

func (t *Table) memSize() int64 {
	return tableOverhead + int64(cap(t.array))*valueSize + int64(len(t.nodes))*nodeSize
}

func hashCapacity(n int) int {
	if n <= 0 {
		return 0
	}
	c := n + n/3 + 1
	if c < minHashSize {
		c = minHashSize
	}
	return 1 << bits.Len(uint(c-1))
}

// Metatable returns the table's metatable, or nil.
func (t *Table) Metatable() *Table { return t.meta }

// Freeze makes every subsequent mutation of t fail.
func (t *Table) Freeze() { t.frozen = true }

// IsFrozen reports whether t has been frozen.
func (t *Table) IsFrozen() bool { return t.frozen }

// ArrayLen returns the size of the array part.
func (t *Table) ArrayLen() int { return len(t.array) }

// HashLen returns the number of live entries in the hash part.
func (t *Table) HashLen() int { return t.live }

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

func mix64(x uint64) uint32 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return uint32(x)
}

func (t *Table) keyHash(k Value) uint32 {
	switch k.vt {
	case vtInt, vtFloat:
		return mix64(k.n)
	case vtTrue:
		return 1
	case vtFalse:
		return 2
	case vtString:
		return k.str().hashValue(t.rt.strings.seed)
	default:
		return mix64(k.ref.header().id)
	}
}

// normalizeKey turns floats with integral values into integers so that
// 1 and 1.0 address the same slot.
func normalizeKey(k Value) Value {
	if k.vt == vtFloat {
		if i, ok := floatToInteger(k.fval()); ok {
			return Int(i)
		}
	}
	return k
}

// findSlot returns the slot holding k (live or tombstone) or -1.
func (t *Table) findSlot(k Value) int {
	if len(t.nodes) == 0 {
		return -1
	}
	mask := uint32(len(t.nodes) - 1)
	i := t.keyHash(k) & mask
	for {
		n := &t.nodes[i]
		if n.key.vt == vtNil {
			return -1
		}
		if RawEqual(n.key, k) {
			return int(i)
		}
		i = (i + 1) & mask
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Get returns t[k] without metamethods. nil and NaN keys read as nil.
func (t *Table) Get(k Value) Value {
	switch k.vt {
	case vtNil:
		return Nil
	case vtInt:
		return t.GetInt(k.ival())
	case vtString:
		return t.getStr(k.str())
	case vtFloat:
		f := k.fval()
		if i, ok := floatToInteger(f); ok {
			return t.GetInt(i)
		}
		if math.IsNaN(f) {
			return Nil
		}
	}
	if s := t.findSlot(k); s >= 0 {
		return t.nodes[s].val
	}
	return Nil
}

// GetInt returns t[i].
func (t *Table) GetInt(i int64) Value {
	if uint64(i-1) < uint64(len(t.array)) {
		return t.array[i-1]
	}
	if s := t.findSlot(Int(i)); s >= 0 {
		return t.nodes[s].val
	}
	return Nil
}

func (t *Table) getStr(s *String) Value {
	if len(t.nodes) == 0 {
		return Nil
	}
	mask := uint32(len(t.nodes) - 1)
	i := s.hashValue(t.rt.strings.seed) & mask
	for {
		n := &t.nodes[i]
		if n.key.vt == vtNil {
			return Nil
		}
		if n.key.vt == vtString && n.key.str().equals(s) {
			return n.val
		}
		i = (i + 1) & mask
	}
}

// GetString returns t[s] for a Go string key.
func (t *Table) GetString(s string) Value {
	return t.getStr(t.rt.intern(s))
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Set assigns t[k] = v without metamethods. Assigning nil removes the key.
func (t *Table) Set(k, v Value) error {
	if t.frozen {
		return ErrFrozenTable
	}
	switch k.vt {
	case vtNil:
		return ErrNilIndex
	case vtFloat:
		if math.IsNaN(k.fval()) {
			return ErrNaNIndex
		}
	}
	t.rawset(k, v)
	return nil
}

// SetInt assigns t[i] = v without metamethods.
func (t *Table) SetInt(i int64, v Value) error {
	if t.frozen {
		return ErrFrozenTable
	}
	t.setInt(i, v)
	t.flags = 0
	t.barrier(v)
	return nil
}

// SetString assigns t[s] = v for a Go string key.
func (t *Table) SetString(s string, v Value) error {
	return t.Set(t.rt.String(s), v)
}

func (t *Table) barrier(v Value) {
	if v.ref != nil {
		t.rt.gc.barrierBack(t)
	}
}

// rawset stores a validated key; the table must not be frozen.
func (t *Table) rawset(k, v Value) {
	t.flags = 0
	k = normalizeKey(k)
	if k.vt == vtInt {
		t.setInt(k.ival(), v)
	} else {
		t.setHash(k, v)
	}
	if k.ref != nil {
		t.rt.gc.barrierBack(t)
	} else {
		t.barrier(v)
	}
}

func (t *Table) setInt(i int64, v Value) {
	n := int64(len(t.array))
	if uint64(i-1) < uint64(n) {
		t.array[i-1] = v
		return
	}
	k := Int(i)
	if i == n+1 && !v.IsNil() {
		s := t.findSlot(k)
		if s < 0 || t.nodes[s].val.IsNil() {
			t.appendArray(v)
			return
		}
	}
	t.setHash(k, v)
}

// appendArray grows the array part by one element and pulls any following
// contiguous integer keys out of the hash part.
func (t *Table) appendArray(v Value) {
	before := cap(t.array)
	t.array = append(t.array, v)
	for t.live > 0 {
		next := Int(int64(len(t.array)) + 1)
		s := t.findSlot(next)
		if s < 0 || t.nodes[s].val.IsNil() {
			break
		}
		t.array = append(t.array, t.nodes[s].val)
		t.nodes[s].val = Nil
		t.live--
	}
	if after := cap(t.array); after != before {
		t.rt.gc.adjust(int64(after-before) * valueSize)
	}
}

func (t *Table) setHash(k, v Value) {
	if len(t.nodes) > 0 {
		mask := uint32(len(t.nodes) - 1)
		i := t.keyHash(k) & mask
		free := -1
		for {
			n := &t.nodes[i]
			if n.key.vt == vtNil {
				break
			}
			if RawEqual(n.key, k) {
				switch {
				case n.val.IsNil() && !v.IsNil():
					t.live++
				case !n.val.IsNil() && v.IsNil():
					t.live--
				}
				n.val = v
				return
			}
			if free < 0 && n.val.IsNil() {
				free = int(i)
			}
			i = (i + 1) & mask
		}
		if v.IsNil() {
			return
		}
		if free >= 0 {
			t.nodes[free] = node{key: k, val: v}
			t.live++
			return
		}
		if t.used+1 <= len(t.nodes)*3/4 {
			t.nodes[i] = node{key: k, val: v}
			t.used++
			t.live++
			return
		}
	} else if v.IsNil() {
		return
	}
	t.rehash(k)
	t.rawset(k, v)
}

// ---------------------------------------------------------------------------
// Rehash
// ---------------------------------------------------------------------------

// ceilLog2 returns ceil(log2(x)) for x >= 1.
func ceilLog2(x uint64) int {
	return bits.Len64(x - 1)
}

func countInt(k Value, nums *[maxABits + 1]int) bool {
	if k.vt != vtInt {
		return false
	}
	i := k.ival()
	if i >= 1 && i <= 1<<maxABits {
		nums[ceilLog2(uint64(i))]++
		return true
	}
	return false
}

// numUseArray counts non-nil array entries per power-of-two slice.
func (t *Table) numUseArray(nums *[maxABits + 1]int) int {
	total := 0
	i := 1
	for lg, ttlg := 0, 1; lg <= maxABits; lg, ttlg = lg+1, ttlg*2 {
		lim := ttlg
		if lim > len(t.array) {
			lim = len(t.array)
			if i > lim {
				break
			}
		}
		c := 0
		for ; i <= lim; i++ {
			if !t.array[i-1].IsNil() {
				c++
			}
		}
		nums[lg] += c
		total += c
	}
	return total
}

func (t *Table) numUseHash(nums *[maxABits + 1]int) (total, ints int) {
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.val.IsNil() {
			continue
		}
		if countInt(n.key, nums) {
			ints++
		}
		total++
	}
	return total, ints
}

// computeSizes picks the largest power of two n such that more than half
// of the slots 1..n would be in use, and reports how many keys go there.
func computeSizes(nums *[maxABits + 1]int, candidates int) (size, inArray int) {
	a := 0
	for i, twotoi := 0, 1; i <= maxABits && candidates > twotoi/2; i, twotoi = i+1, twotoi*2 {
		a += nums[i]
		if a > twotoi/2 {
			size = twotoi
			inArray = a
		}
	}
	return size, inArray
}

func (t *Table) rehash(extra Value) {
	var nums [maxABits + 1]int
	na := t.numUseArray(&nums)
	total := na
	th, ti := t.numUseHash(&nums)
	total += th
	na += ti
	if countInt(extra, &nums) {
		na++
	}
	total++
	asize, inArray := computeSizes(&nums, na)
	t.resize(asize, total-inArray)
}

func (t *Table) resize(asize, nhash int) {
	oldSize := t.memSize()
	oldArray, oldNodes := t.array, t.nodes

	if asize <= cap(oldArray) && asize >= len(oldArray) {
		t.array = oldArray[:asize]
		clear(t.array[len(oldArray):])
	} else {
		t.array = make([]Value, asize)
		copy(t.array, oldArray)
	}
	t.nodes = make([]node, hashCapacity(nhash))
	t.live, t.used = 0, 0

	for i := asize; i < len(oldArray); i++ {
		if !oldArray[i].IsNil() {
			t.reinsert(Int(int64(i+1)), oldArray[i])
		}
	}
	for i := range oldNodes {
		if n := &oldNodes[i]; !n.val.IsNil() {
			t.reinsert(n.key, n.val)
		}
	}
	t.rt.gc.adjust(t.memSize() - oldSize)
}

// reinsert places a live entry during resize. The new layout is sized for
// every entry, so neither growth path can trigger.
func (t *Table) reinsert(k, v Value) {
	if k.vt == vtInt {
		if i := k.ival(); uint64(i-1) < uint64(len(t.array)) {
			t.array[i-1] = v
			return
		}
	}
	mask := uint32(len(t.nodes) - 1)
	i := t.keyHash(k) & mask
	for t.nodes[i].key.vt != vtNil {
		i = (i + 1) & mask
	}
	t.nodes[i] = node{key: k, val: v}
	t.used++
	t.live++
}

// ---------------------------------------------------------------------------
// Length and iteration
// ---------------------------------------------------------------------------

// Length returns a border: some n with t[n] non-nil (or n == 0) and t[n+1]
// nil. With holes any border may be returned.
func (t *Table) Length() int64 {
	n := len(t.array)
	if n > 0 && t.array[n-1].IsNil() {
		if n >= 2 && !t.array[n-2].IsNil() {
			return int64(n - 1)
		}
		// Binary search keeping array[lo-1] non-nil (or lo == 0) and
		// array[hi-1] nil.
		lo, hi := 0, n
		for hi-lo > 1 {
			m := int(uint(lo+hi) >> 1)
			if t.array[m-1].IsNil() {
				hi = m
			} else {
				lo = m
			}
		}
		return int64(lo)
	}
	if t.live == 0 || t.GetInt(int64(n)+1).IsNil() {
		return int64(n)
	}
	return t.hashBorder(int64(n) + 1)
}

// hashBorder finds a border beyond the array part given t[j] non-nil.
func (t *Table) hashBorder(j int64) int64 {
	i := j
	for !t.GetInt(j).IsNil() {
		i = j
		if j > math.MaxInt64/2 {
			// Pathological table: fall back to a linear scan.
			k := int64(1)
			for !t.GetInt(k).IsNil() {
				k++
			}
			return k - 1
		}
		j *= 2
	}
	for j-i > 1 {
		m := i + (j-i)/2
		if t.GetInt(m).IsNil() {
			j = m
		} else {
			i = m
		}
	}
	return i
}

// Next returns the entry following k in traversal order; a nil k starts the
// traversal. The returned key is nil after the last entry.
func (t *Table) Next(k Value) (Value, Value, error) {
	idx, err := t.traversalIndex(k)
	if err != nil {
		return Nil, Nil, err
	}
	for ; idx < len(t.array); idx++ {
		if v := t.array[idx]; !v.IsNil() {
			return Int(int64(idx + 1)), v, nil
		}
	}
	for s := idx - len(t.array); s < len(t.nodes); s++ {
		if n := &t.nodes[s]; !n.val.IsNil() {
			return n.key, n.val, nil
		}
	}
	return Nil, Nil, nil
}

func (t *Table) traversalIndex(k Value) (int, error) {
	if k.IsNil() {
		return 0, nil
	}
	k = normalizeKey(k)
	if k.vt == vtInt {
		if i := k.ival(); i >= 1 && i <= int64(len(t.array)) {
			return int(i), nil
		}
	}
	s := t.findSlot(k)
	if s < 0 {
		return 0, ErrInvalidKey
	}
	return len(t.array) + s + 1, nil
}

// ForEach calls fn for every live entry until fn returns false.
func (t *Table) ForEach(fn func(k, v Value) bool) {
	for i, v := range t.array {
		if !v.IsNil() && !fn(Int(int64(i+1)), v) {
			return
		}
	}
	for i := range t.nodes {
		if n := &t.nodes[i]; !n.val.IsNil() && !fn(n.key, n.val) {
			return
		}
	}
}
