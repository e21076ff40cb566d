package vm

// ---------------------------------------------------------------------------
// String: immutable byte sequence with cached hash
// ---------------------------------------------------------------------------

// MaxShortLen is the default length limit for interned strings.
const MaxShortLen = 40

// String is an immutable byte string owned by one runtime.
//
// Short strings are interned: two short strings with identical content are
// the same *String, so equality is a pointer comparison. Long strings hash
// lazily and compare by content.
type String struct {
	gcHeader
	s      string
	hash   uint32
	short  bool
	hashed bool
}

// Len returns the length in bytes.
func (s *String) Len() int { return len(s.s) }

// String returns the Go string content.
func (s *String) String() string { return s.s }

// IsShort reports whether s is interned.
func (s *String) IsShort() bool { return s.short }

func (s *String) equals(o *String) bool {
	if s == o {
		return true
	}
	if s.short && o.short {
		// short strings are interned: equal content means the same object
		return false
	}
	return len(s.s) == len(o.s) && s.s == o.s
}

func (s *String) hashValue(seed uint32) uint32 {
	if !s.hashed {
		s.hash = hashString(s.s, seed)
		s.hashed = true
	}
	return s.hash
}

func hashString(s string, seed uint32) uint32 {
	h := seed ^ uint32(len(s))
	for i := len(s); i > 0; i-- {
		h ^= (h << 5) + (h >> 2) + uint32(s[i-1])
	}
	return h
}

// ---------------------------------------------------------------------------
// Interner
// ---------------------------------------------------------------------------

// stringTable interns short strings for one runtime instance. Entries are
// weak: the collector deletes the entry of an unreachable string.
type stringTable struct {
	seed    uint32
	limit   int
	entries map[string]*String
}

func newStringTable(seed uint32, limit int) *stringTable {
	return &stringTable{seed: seed, limit: limit, entries: make(map[string]*String, 256)}
}

// intern returns the unique short string for s, or a fresh long string.
func (rt *Runtime) intern(s string) *String {
	if len(s) <= rt.strings.limit {
		if str, ok := rt.strings.entries[s]; ok {
			if rt.gc.isDead(str) {
				// Swept this cycle but not yet removed: resurrect it.
				rt.gc.resurrect(str)
			}
			return str
		}
		str := &String{s: s, short: true, hashed: true}
		str.hash = hashString(s, rt.strings.seed)
		rt.strings.entries[s] = str
		rt.gc.register(str, int64(len(s))+stringOverhead)
		return str
	}
	str := &String{s: s}
	rt.gc.register(str, int64(len(s))+stringOverhead)
	return str
}

// String interns s and returns it as a Value.
func (rt *Runtime) String(s string) Value {
	return stringValue(rt.intern(s))
}

// remove drops str from the intern table if it is the current entry.
func (st *stringTable) remove(str *String) {
	if cur, ok := st.entries[str.s]; ok && cur == str {
		delete(st.entries, str.s)
	}
}

// InternedCount returns the number of live intern-table entries.
func (rt *Runtime) InternedCount() int { return len(rt.strings.entries) }
