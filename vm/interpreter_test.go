package vm_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/lib"
	"github.com/chazu/luma/vm"
)

func newScriptRuntime(t *testing.T) *vm.Runtime {
	t.Helper()
	rt := vm.NewRuntime()
	rt.UseCompiler(compiler.Compile)
	lib.OpenAll(rt.MainThread())
	t.Cleanup(rt.Close)
	return rt
}

// eval runs src and returns its results in tostring form.
func eval(t *testing.T, rt *vm.Runtime, src string) ([]string, error) {
	t.Helper()
	th := rt.MainThread()
	base := th.Top()
	if st := th.LoadString(src, "=test"); st != vm.OK {
		msg, _ := th.ToString(-1)
		th.SetTop(base)
		return nil, &vm.Error{Status: st, Value: rt.String(msg)}
	}
	if st := th.PCall(0, vm.MultRet, 0); st != vm.OK {
		err := &vm.Error{Status: st, Value: th.Get(-1)}
		th.SetTop(base)
		return nil, err
	}
	var out []string
	for i := base + 1; i <= th.Top(); i++ {
		out = append(out, th.ToDisplayString(i))
		th.Pop(1)
	}
	th.SetTop(base)
	return out, nil
}

func TestInterpreterResults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "return 1 + 2, 7 // 2, 7 / 2, 2^10, 7 % -3, -7 // 2", "3 3 3.5 1024.0 -2 -4"},
		{"float arithmetic", "return 1.5 + 1, 3 % 1.25, 10 // 4.0", "2.5 0.5 2.0"},
		{"integer wraparound", "return math.maxinteger + 1 == math.mininteger", "true"},
		{"bitwise", "return 5 & 3, 5 | 3, 5 ~ 3, ~0, 1 << 4, 256 >> 4", "1 7 6 -1 16 16"},
		{"comparison", "return 10 == 10.0, '10' == 10, 1 < 2, 'a' < 'b', 2 <= 2", "true false true true true"},
		{"concat", "return 1 .. 2, 'x' .. 1.5", "12 x1.5"},
		{"logic", "return nil or 'd', false and 1, 0 and 'zero', not nil", "d false zero true"},
		{"length", "local t = {1, 2, 3, nil} return #t, #'abc'", "3 3"},
		{"closures", `
			local function counter()
				local n = 0
				return function() n = n + 1 return n end
			end
			local c = counter()
			c() c()
			return c()`, "3"},
		{"shared upvalue", `
			local get, set
			do
				local v = 1
				get = function() return v end
				set = function(x) v = x end
			end
			set(9)
			return get()`, "9"},
		{"loop closures capture per iteration", `
			local fs = {}
			for i = 1, 3 do fs[i] = function() return i end end
			return fs[1](), fs[2](), fs[3]()`, "1 2 3"},
		{"varargs", `
			local function f(...) local a, b = ... return b, a, select('#', ...) end
			return f(1, 2, nil)`, "2 1 3"},
		{"multiple results adjust", `
			local function two() return 1, 2 end
			local t = {two(), two()}
			return #t, (two())`, "3 1"},
		{"numeric for down", "local s = 0 for i = 10, 1, -3 do s = s + i end return s", "22"},
		{"numeric for float", "local n = 0 for i = 0, 1, 0.25 do n = n + 1 end return n", "5"},
		{"repeat scope", "local i = 0 repeat local j = i i = i + 1 until j >= 3 return i", "4"},
		{"while break", "local i = 0 while true do i = i + 1 if i == 5 then break end end return i", "5"},
		{"generic for", `
			local sum = 0
			for k, v in pairs({a = 1, b = 2, 3}) do sum = sum + v end
			return sum`, "6"},
		{"deep recursion", `
			local function depth(n) if n == 0 then return 0 end return 1 + depth(n - 1) end
			return depth(5000)`, "5000"},
		{"tail calls", `
			local function loop(n) if n == 0 then return 'done' end return loop(n - 1) end
			return loop(1000000)`, "done"},
		{"methods", `
			local obj = {n = 2}
			function obj:scale(k) return self.n * k end
			return obj:scale(21)`, "42"},
		{"string methods", "local s = 'abc' return s:upper(), ('x'):rep(3)", "ABC xxx"},
		{"integer keys normalize", "local t = {} t[1.0] = 'a' t[2] = 'b' return t[1], #t", "a 2"},
		{"const local", "local k <const> = 10 return k * 2", "20"},
	}
	rt := newScriptRuntime(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, rt, tt.src)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if s := strings.Join(got, " "); s != tt.want {
				t.Errorf("got %q, want %q", s, tt.want)
			}
		})
	}
}

func TestMetamethods(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"add", `local v = setmetatable({}, {__add = function(a, b) return 42 end}) return v + 1, 1 + v`, "42 42"},
		{"index table", `local o = setmetatable({}, {__index = {x = 1}}) return o.x, o.y`, "1 nil"},
		{"index chain", `
			local a = {x = 'a'}
			local b = setmetatable({}, {__index = a})
			local c = setmetatable({}, {__index = b})
			return c.x`, "a"},
		{"index function", `local o = setmetatable({}, {__index = function(t, k) return k .. '!' end}) return o.hi`, "hi!"},
		{"newindex", `
			local o = setmetatable({}, {__newindex = function(t, k, v) rawset(t, k, v * 2) end})
			o.a = 5
			return o.a`, "10"},
		{"call", `local o = setmetatable({}, {__call = function(self, a) return a * 3 end}) return o(4)`, "12"},
		{"eq", `
			local mt = {__eq = function() return true end}
			local a, b = setmetatable({}, mt), setmetatable({}, mt)
			return a == b, rawequal(a, b), a ~= b`, "true false false"},
		{"lt and le", `
			local mt = {
				__lt = function(a, b) return a.v < b.v end,
				__le = function(a, b) return a.v <= b.v end,
			}
			local a, b = setmetatable({v = 1}, mt), setmetatable({v = 2}, mt)
			return a < b, a > b, a <= b, b <= a`, "true false true false"},
		{"len", `return #setmetatable({}, {__len = function() return 9 end})`, "9"},
		{"concat", `local o = setmetatable({}, {__concat = function(a, b) return 'cat' end}) return o .. 'x', 'x' .. o`, "cat cat"},
		{"unm", `return -setmetatable({}, {__unm = function() return 'neg' end})`, "neg"},
		{"tostring", `return tostring(setmetatable({}, {__tostring = function() return 'T' end}))`, "T"},
		{"close", `
			local out = {}
			do
				local x <close> = setmetatable({}, {__close = function(_, err) out[#out + 1] = tostring(err) end})
				out[#out + 1] = 'body'
			end
			return table.concat(out, ',')`, "body,nil"},
		{"close on error", `
			local log = {}
			local ok = pcall(function()
				local x <close> = setmetatable({}, {__close = function(_, err) log[1] = err end})
				error('boom', 0)
			end)
			return ok, log[1]`, "false boom"},
		{"protected metatable", `
			local t = setmetatable({}, {__metatable = 'locked'})
			return getmetatable(t), pcall(setmetatable, t, {})`, "locked false cannot change a protected metatable"},
	}
	rt := newScriptRuntime(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, rt, tt.src)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if s := strings.Join(got, " "); s != tt.want {
				t.Errorf("got %q, want %q", s, tt.want)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"local t = nil; return t.x", "test:1: attempt to index a nil value (local 't')"},
		{"return undefinedfn()", "test:1: attempt to call a nil value (global 'undefinedfn')"},
		{"local t = {} return t.a.b", "test:1: attempt to index a nil value (field 'a')"},
		{"return 1 < 'x'", "test:1: attempt to compare number with string"},
		{"return {} < {}", "test:1: attempt to compare two table values"},
		{"return 1 // 0", "test:1: attempt to perform 'n//0'"},
		{"return 1 % 0", "test:1: attempt to perform 'n%0'"},
		{"local t = table.freeze({}) t.x = 1", "attempt to modify a frozen table"},
		{"error('plain', 0)", "plain"},
		{"error({})", "(error object is a table value)"},
		{"local function f() return f() + 1 end return f()", "stack overflow"},
	}
	rt := newScriptRuntime(t)
	for _, tt := range tests {
		_, err := eval(t, rt, tt.src)
		if err == nil {
			t.Errorf("%q: no error", tt.src)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: error %q, want it to contain %q", tt.src, err.Error(), tt.want)
		}
	}
}

func TestSyntaxErrorStatus(t *testing.T) {
	rt := newScriptRuntime(t)
	th := rt.MainThread()
	if st := th.LoadString("x = = 1", "=test"); st != vm.ErrSyntax {
		t.Fatalf("status = %v, want syntax error", st)
	}
	if msg, _ := th.ToString(-1); !strings.HasPrefix(msg, "test:1:") {
		t.Errorf("message = %q", msg)
	}
	th.SetTop(0)

	if st := th.Load(strings.NewReader("return 1"), "=test", "b"); st != vm.ErrSyntax {
		t.Errorf("text chunk in binary mode: status = %v", st)
	}
	th.SetTop(0)
}

func TestHostResume(t *testing.T) {
	rt := newScriptRuntime(t)
	th := rt.MainThread()
	th.Register("hostyield", func(t *vm.Thread) int { return t.Yield(t.Top()) })

	co := th.NewThread()
	if st := co.LoadString("local a = ... local b = hostyield(a + 1) return b * 2", "=co"); st != vm.OK {
		t.Fatalf("load: %v", st)
	}
	if got := co.CoStatus().String(); got != "suspended" {
		t.Errorf("status before start = %q", got)
	}

	co.PushInteger(10)
	st, n := co.Resume(th, 1)
	if st != vm.Yield || n != 1 {
		t.Fatalf("first resume = %v, %d; want yield, 1", st, n)
	}
	if v, _ := co.ToInteger(-1); v != 11 {
		t.Errorf("yielded %d, want 11", v)
	}
	co.Pop(n)

	co.PushInteger(5)
	st, n = co.Resume(th, 1)
	if st != vm.OK || n != 1 {
		t.Fatalf("second resume = %v, %d; want ok, 1", st, n)
	}
	if v, _ := co.ToInteger(-1); v != 10 {
		t.Errorf("returned %d, want 10", v)
	}
	if got := co.CoStatus().String(); got != "dead" {
		t.Errorf("status after return = %q", got)
	}

	st, _ = co.Resume(th, 0)
	if st != vm.ErrRun {
		t.Errorf("resuming a dead coroutine: status %v", st)
	}
	if msg, _ := co.ToString(-1); msg != "cannot resume dead coroutine" {
		t.Errorf("message = %q", msg)
	}
}

func TestCoroutineErrorAndClose(t *testing.T) {
	rt := newScriptRuntime(t)
	th := rt.MainThread()

	co := th.NewThread()
	co.LoadString("error('inside')", "=co")
	st, _ := co.Resume(th, 0)
	if st != vm.ErrRun {
		t.Fatalf("status = %v, want runtime error", st)
	}
	if msg, _ := co.ToString(-1); msg != "co:1: inside" {
		t.Errorf("message = %q", msg)
	}
	if st := co.CloseThread(th); st != vm.ErrRun {
		t.Errorf("CloseThread status = %v, want the coroutine's error status", st)
	}
	th.Pop(1)

	got, err := eval(t, rt, `
		local log = {}
		local co = coroutine.create(function()
			local x <close> = setmetatable({}, {__close = function() log[#log + 1] = 'closed' end})
			coroutine.yield(1)
		end)
		coroutine.resume(co)
		local ok = coroutine.close(co)
		return ok, log[1], coroutine.status(co)`)
	if err != nil {
		t.Fatal(err)
	}
	if s := strings.Join(got, " "); s != "true closed dead" {
		t.Errorf("got %q", s)
	}
}

func TestDumpAndUndump(t *testing.T) {
	rt := newScriptRuntime(t)
	th := rt.MainThread()
	src := `
		local t = {}
		for i = 1, 5 do t[i] = i * 1.5 end
		local function sum() local s = 0 for _, v in ipairs(t) do s = s + v end return s end
		return sum(), 'ok', 2^53`
	th.SetTop(0)
	for _, strip := range []bool{false, true} {
		if st := th.LoadString(src, "=dump"); st != vm.OK {
			t.Fatalf("load: %v", st)
		}
		var buf bytes.Buffer
		if err := th.Dump(&buf, strip); err != nil {
			t.Fatalf("Dump(strip=%v): %v", strip, err)
		}
		th.Pop(1)
		if !bytes.HasPrefix(buf.Bytes(), []byte(vm.Signature)) {
			t.Fatal("binary chunk lacks signature")
		}

		p, err := vm.UndumpPrototype(buf.Bytes())
		if err != nil {
			t.Fatalf("UndumpPrototype: %v", err)
		}
		if strip && len(p.LocVars) != 0 {
			t.Error("stripped chunk kept local names")
		}

		if st := th.Load(bytes.NewReader(buf.Bytes()), "=dump", "b"); st != vm.OK {
			msg, _ := th.ToString(-1)
			t.Fatalf("Load binary: %v %s", st, msg)
		}
		if st := th.PCall(0, 3, 0); st != vm.OK {
			msg, _ := th.ToString(-1)
			t.Fatalf("call: %s", msg)
		}
		var got []string
		for i := 1; i <= 3; i++ {
			got = append(got, th.ToDisplayString(i))
			th.Pop(1)
		}
		if s := strings.Join(got, " "); s != "22.5 ok 9.007199254741e+15" {
			t.Errorf("strip=%v: results %q", strip, s)
		}
		th.SetTop(0)
	}

	if _, err := vm.UndumpPrototype([]byte("garbage")); err == nil {
		t.Error("UndumpPrototype accepted garbage")
	}
	th.PushNative(func(*vm.Thread) int { return 0 })
	if err := th.Dump(&bytes.Buffer{}, false); err == nil {
		t.Error("Dump accepted a native function")
	}
}

func TestRuntimesAreIndependent(t *testing.T) {
	a := newScriptRuntime(t)
	b := newScriptRuntime(t)
	if _, err := eval(t, a, "shared = 1"); err != nil {
		t.Fatal(err)
	}
	got, err := eval(t, b, "return shared")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != "nil" {
		t.Errorf("global leaked between runtimes: %q", got[0])
	}
	if a.ID() == b.ID() {
		t.Error("runtimes share an ID")
	}
}

func TestStrippedDumpKeepsLiveDebugInfo(t *testing.T) {
	rt := newScriptRuntime(t)
	th := rt.MainThread()
	th.SetTop(0)
	if st := th.LoadString("local up = nil\nreturn function() return up.x end", "=live"); st != vm.OK {
		t.Fatalf("load: %v", st)
	}
	th.Call(0, 1)

	if err := th.Dump(io.Discard, true); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	name, ok := th.GetUpvalue(1, 1)
	if !ok || name != "up" {
		t.Errorf("upvalue name after stripped dump = %q, want up", name)
	}
	th.SetTop(1)

	if st := th.PCall(0, 0, 0); st != vm.ErrRun {
		t.Fatalf("status = %v, want runtime error", st)
	}
	if msg, _ := th.ToString(-1); !strings.Contains(msg, "(upvalue 'up')") {
		t.Errorf("error message = %q, want the upvalue name", msg)
	}
}

func TestCorruptBytecodeFails(t *testing.T) {
	ret := vm.CreateABC(vm.OpReturn, 0, 1, 0)
	tests := []struct {
		name  string
		proto vm.Prototype
	}{
		{"register out of range", vm.Prototype{
			MaxStack: 2,
			Code:     []vm.Instruction{vm.CreateABC(vm.OpMove, 5, 0, 0), ret},
		}},
		{"constant out of range", vm.Prototype{
			MaxStack: 2,
			Code:     []vm.Instruction{vm.CreateABx(vm.OpLoadK, 0, 3), ret},
		}},
		{"upvalue out of range", vm.Prototype{
			MaxStack: 2,
			Upvalues: []vm.UpvalueDesc{{Name: "_ENV"}},
			Code:     []vm.Instruction{vm.CreateABC(vm.OpGetUpval, 0, 4, 0), ret},
		}},
		{"function index out of range", vm.Prototype{
			MaxStack: 2,
			Code:     []vm.Instruction{vm.CreateABx(vm.OpClosure, 0, 2), ret},
		}},
		{"jump outside the code", vm.Prototype{
			MaxStack: 2,
			Code:     []vm.Instruction{vm.CreateAsBx(vm.OpJmp, 0, 10), ret},
		}},
		{"vararg target out of range", vm.Prototype{
			MaxStack: 2,
			IsVararg: true,
			Code:     []vm.Instruction{vm.CreateABC(vm.OpVararg, 250, 0, 0), ret},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := vm.NewRuntime()
			defer rt.Close()
			th := rt.MainThread()
			p := tc.proto
			if err := th.LoadPrototype(&p); err != nil {
				t.Fatalf("LoadPrototype: %v", err)
			}
			if st := th.PCall(0, 0, 0); st != vm.ErrRun {
				t.Fatalf("status = %v, want runtime error", st)
			}
			if msg, _ := th.ToString(-1); !strings.Contains(msg, "bad bytecode") {
				t.Errorf("error message = %q", msg)
			}
		})
	}
}
