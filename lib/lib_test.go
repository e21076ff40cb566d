package lib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/vm"
)

// runScript runs src in a fresh runtime with every library open and
// returns what it printed.
func runScript(t *testing.T, src string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rt := vm.NewRuntime(vm.WithStdout(&out))
	defer rt.Close()
	rt.UseCompiler(compiler.Compile)
	th := rt.MainThread()
	OpenAll(th)

	if th.LoadString(src, "=test") != vm.OK {
		msg, _ := th.ToString(-1)
		return out.String(), errors.New(msg)
	}
	if th.PCall(0, 0, 0) != vm.OK {
		return out.String(), errors.New(th.ToDisplayString(-1))
	}
	return out.String(), nil
}

type scriptCase struct {
	name string
	src  string
	want string
}

func runCases(t *testing.T, tests []scriptCase) {
	t.Helper()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := runScript(t, tc.src)
			if err != nil {
				t.Fatalf("script failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("output = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBaseLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"print", `print(1, "a", nil, true, 2.5)`, "1\ta\tnil\ttrue\t2.5\n"},
		{"type", `print(type(1), type("x"), type({}), type(print), type(nil))`,
			"number\tstring\ttable\tfunction\tnil\n"},
		{"tonumber", `print(tonumber("0x10"), tonumber("  12  "), tonumber("1e1"), tonumber("z", 36), tonumber("ff", 16), tonumber("x"))`,
			"16\t12\t10.0\t35\t255\tnil\n"},
		{"select", `print(select("#", 1, 2, 3), select(2, "a", "b", "c"), select(-1, "a", "b"))`, "3\tb\tb\n"},
		{"pcall native error", `print(pcall(error, "boom"))`, "false\tboom\n"},
		{"pcall script error", `print(pcall(function() error("x") end))`, "false\ttest:1: x\n"},
		{"error object", `local ok, e = pcall(error, {code = 7}) print(ok, e.code)`, "false\t7\n"},
		{"error level", `local function f() error("deep", 2) end
local ok, e = pcall(function()
  f()
end)
print(e)`, "test:3: deep\n"},
		{"xpcall handler", `print(xpcall(function() error("bad") end, function(m) return "handled: " .. m end))`,
			"false\thandled: test:1: bad\n"},
		{"xpcall success", `print(xpcall(function(a, b) return a + b end, print, 2, 3))`, "true\t5\n"},
		{"assert", `print(pcall(assert, false, "msg")) print(pcall(assert, nil)) print(assert(1, 2))`,
			"false\tmsg\nfalse\tassertion failed!\n1\t2\n"},
		{"raw access", `local t = setmetatable({}, {__index = function() return 9 end})
print(t.x, rawget(t, "x"), rawlen({1, 2}), rawlen("abc"), rawequal(t, t))`, "9\tnil\t2\t3\ttrue\n"},
		{"protected metatable", `local t = setmetatable({}, {__metatable = "locked"})
print(getmetatable(t), pcall(setmetatable, t, {}))`, "locked\tfalse\tcannot change a protected metatable\n"},
		{"string metatable", `print(getmetatable("").__index == string)`, "true\n"},
		{"pairs metamethod", `local t = setmetatable({}, {__pairs = function(t)
  return function(_, k) if not k then return 1, "one" end end, t, nil
end})
for k, v in pairs(t) do print(k, v) end`, "1\tone\n"},
		{"ipairs stops at nil", `for i, v in ipairs({10, 20, nil, 40}) do print(i, v) end`, "1\t10\n2\t20\n"},
		{"pairs sums", `local s = 0 for k, v in pairs({a = 1, b = 2, 3}) do s = s + v end print(s)`, "6\n"},
		{"next empty", `print(next({}))`, "nil\n"},
		{"load string", `local f = load("return 1 + ...") print(f(41))`, "42\n"},
		{"load env", `local f = load("x = 5 return x", "chunk", "t", {}) print(f(), x)`, "5\tnil\n"},
		{"load syntax error", `local f, err = load("x = = 1") print(f, err ~= nil)`, "nil\ttrue\n"},
		{"load reader", `local parts = {"return ", "7"} local i = 0
local f = load(function() i = i + 1 return parts[i] end)
print(f())`, "7\n"},
		{"load mode", `print(load("return 1", "c", "b"))`, "nil\tattempt to load a text chunk (mode is 'b')\n"},
		{"collectgarbage", `print(type(collectgarbage("count")), collectgarbage("isrunning"), collectgarbage())`,
			"number\ttrue\t0\n"},
		{"globals", `print(_G._G == _G, _VERSION)`, "true\tLuma 1.0\n"},
		{"tostring metamethod", `print(tostring(setmetatable({}, {__tostring = function() return "obj" end})))`, "obj\n"},
		{"select range", `print(pcall(select, 0))`, "false\tbad argument #1 to 'select' (index out of range)\n"},
	})
}

func TestCoroutineLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"resume and yield", `local co = coroutine.create(function(a, b)
  local c = coroutine.yield(a + b)
  local d, e = coroutine.yield(c * 2)
  return d + e
end)
print(coroutine.resume(co, 1, 2))
print(coroutine.resume(co, 10))
print(coroutine.resume(co, 3, 4))
print(coroutine.resume(co))
print(coroutine.status(co))`, "true\t3\ntrue\t20\ntrue\t7\nfalse\tcannot resume dead coroutine\ndead\n"},
		{"wrap generator", `local gen = coroutine.wrap(function() for i = 1, 3 do coroutine.yield(i) end end)
print(gen(), gen(), gen())`, "1\t2\t3\n"},
		{"wrap error", `local f = coroutine.wrap(function() error("oops") end) print(pcall(f))`, "false\ttest:1: oops\n"},
		{"status", `local co
co = coroutine.create(function() print(coroutine.status(co)) coroutine.yield() end)
print(coroutine.status(co))
coroutine.resume(co)
print(coroutine.status(co))`, "suspended\nrunning\nsuspended\n"},
		{"running", `local co, main = coroutine.running() print(type(co), main)`, "thread\ttrue\n"},
		{"isyieldable", `print(coroutine.isyieldable(), coroutine.wrap(function() return coroutine.isyieldable() end)())`,
			"false\ttrue\n"},
		{"close suspended", `local co = coroutine.create(function() coroutine.yield() end)
coroutine.resume(co)
print(coroutine.close(co), coroutine.status(co))`, "true\tdead\n"},
		{"close runs pending variables", `local co = coroutine.create(function()
  local x <close> = setmetatable({}, {__close = function() print("closed") end})
  coroutine.yield()
end)
coroutine.resume(co)
print(coroutine.close(co))`, "closed\ntrue\n"},
		{"yield across pcall", `local co = coroutine.create(function()
  local ok, v = pcall(function() return coroutine.yield(1) + 1 end)
  return ok, v
end)
print(coroutine.resume(co))
print(coroutine.resume(co, 41))`, "true\t1\ntrue\ttrue\t42\n"},
		{"yield outside coroutine", `print(pcall(coroutine.yield))`, "false\tattempt to yield from outside a coroutine\n"},
	})
}

func TestTableLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"insert", `local t = {1, 2, 3} table.insert(t, 4) table.insert(t, 1, 0) print(table.concat(t, ","))`, "0,1,2,3,4\n"},
		{"remove", `local t = {1, 2, 3} print(table.remove(t), table.remove(t, 1), #t, t[1])`, "3\t1\t1\t2\n"},
		{"pack and unpack", `local p = table.pack(1, nil, 3) print(p.n, table.unpack({1, 2, 3}, 2))`, "3\t2\t3\n"},
		{"global unpack", `print(unpack({4, 5}))`, "4\t5\n"},
		{"sort", `local t = {5, 2, 8, 1, 9, 3, 7, 4, 6} table.sort(t) print(table.concat(t, " "))`, "1 2 3 4 5 6 7 8 9\n"},
		{"sort with order", `local t = {5, 2, 8, 1} table.sort(t, function(a, b) return a > b end) print(table.concat(t, " "))`, "8 5 2 1\n"},
		{"sort strings", `local t = {"pear", "apple", "fig"} table.sort(t) print(table.concat(t, " "))`, "apple fig pear\n"},
		{"freeze", `local t = table.freeze({1})
local ok = pcall(function() t[1] = 2 end)
print(table.isfrozen(t), ok, t[1])`, "true\tfalse\t1\n"},
		{"concat invalid", `print(pcall(table.concat, {1, {}}))`, "false\tinvalid value (at index 2) in table for 'concat'\n"},
		{"insert bounds", `print(pcall(table.insert, {}, 5, 1))`, "false\tbad argument #2 to 'insert' (position out of bounds)\n"},
	})
}

func TestStringLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"case and length", `print(("hello"):upper(), string.lower("ABC"), #"abc", ("abc"):len())`, "HELLO\tabc\t3\t3\n"},
		{"sub", `local s = "hello world" print(s:sub(1, 5), s:sub(-5), s:sub(3, 2), s:sub(0), s:sub(-100, 2))`,
			"hello\tworld\t\thello world\the\n"},
		{"rep", `print(("ab"):rep(3, "-"), ("x"):rep(0))`, "ab-ab-ab\t\n"},
		{"reverse byte char", `print(("abc"):reverse(), ("ABC"):byte(1, -1), string.char(72, 105))`, "cba\t65\t66\t67\tHi\n"},
		{"format mixed", `print(string.format("%d %5.2f %s %x %X %o %c %%", 42, 3.14159, "hi", 255, 255, 8, 65))`,
			"42  3.14 hi ff FF 10 A %\n"},
		{"format g", `print(string.format("%g %g %g", 1e20, 0.1, 100))`, "1e+20 0.1 100\n"},
		{"format q", `print(string.format("%q", 'a "quoted"\n'))`, `"a \"quoted\"\n"` + "\n"},
		{"format widths", `print(string.format("%-5s|%5s|%.2s", "ab", "cd", "xyz"))`, "ab   |   cd|xy\n"},
		{"format integers", `print(string.format("%5d|%-5d|%05d", 42, 42, 42))`, "   42|42   |00042\n"},
		{"format method", `print(("%d items"):format(3))`, "3 items\n"},
		{"format non-integer", `print(pcall(string.format, "%d", 1.5))`,
			"false\tbad argument #2 to 'format' (number has no integer representation)\n"},
		{"format bad conversion", `print(pcall(string.format, "%y", 1))`, "false\tinvalid conversion '%y' to 'format'\n"},
		{"missing argument", `print(pcall(string.rep))`, "false\tbad argument #1 to 'rep' (string expected, got no value)\n"},
	})
}

func TestMathLibrary(t *testing.T) {
	runCases(t, []scriptCase{
		{"rounding", `print(math.floor(3.7), math.ceil(3.2), math.floor(-3.5), math.abs(-4), math.abs(-2.5))`,
			"3\t4\t-4\t4\t2.5\n"},
		{"extremes", `print(math.max(1, 5, 3), math.min(4, 2.5, 9), math.huge, -math.huge)`, "5\t2.5\tinf\t-inf\n"},
		{"integer conversion", `print(math.tointeger(3.0), math.tointeger(3.5), math.type(1), math.type(1.0), math.type("1"))`,
			"3\tnil\tinteger\tfloat\tnil\n"},
		{"fmod", `print(math.fmod(7, 3), math.fmod(-7, 3), math.fmod(7.5, 2))`, "1\t-1\t1.5\n"},
		{"wraparound", `print(math.maxinteger + 1 == math.mininteger, math.ult(1, -1))`, "true\ttrue\n"},
		{"sqrt", `print(math.sqrt(16), math.pi > 3.14)`, "4.0\ttrue\n"},
		{"fmod zero", `print(pcall(math.fmod, 1, 0))`, "false\tbad argument #2 to 'fmod' (zero)\n"},
		{"modf", `print(math.modf(3.5)) print(math.modf(-3.5))`, "3.0\t0.5\n-3.0\t-0.5\n"},
	})
}

func TestParseIntBase(t *testing.T) {
	tests := []struct {
		s    string
		base int64
		want int64
		ok   bool
	}{
		{"ff", 16, 255, true},
		{"  -101  ", 2, -5, true},
		{"zz", 36, 1295, true},
		{"8", 8, 0, false},
		{"", 10, 0, false},
		{"1.5", 10, 0, false},
	}

	for _, tc := range tests {
		got, ok := parseIntBase(tc.s, tc.base)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseIntBase(%q, %d) = %d, %v, want %d, %v", tc.s, tc.base, got, ok, tc.want, tc.ok)
		}
	}
}
