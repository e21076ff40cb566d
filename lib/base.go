package lib

import (
	"io"
	"os"
	"strings"

	"github.com/chazu/luma/vm"
)

var baseFuncs = []vm.NativeReg{
	{Name: "assert", Func: baseAssert},
	{Name: "error", Func: baseError},
	{Name: "pcall", Func: basePCall},
	{Name: "xpcall", Func: baseXPCall},
	{Name: "print", Func: basePrint},
	{Name: "type", Func: baseType},
	{Name: "tostring", Func: baseToString},
	{Name: "tonumber", Func: baseToNumber},
	{Name: "select", Func: baseSelect},
	{Name: "next", Func: baseNext},
	{Name: "ipairs", Func: baseIPairs},
	{Name: "rawget", Func: baseRawGet},
	{Name: "rawset", Func: baseRawSet},
	{Name: "rawequal", Func: baseRawEqual},
	{Name: "rawlen", Func: baseRawLen},
	{Name: "setmetatable", Func: baseSetMetatable},
	{Name: "getmetatable", Func: baseGetMetatable},
	{Name: "collectgarbage", Func: baseCollectGarbage},
	{Name: "load", Func: baseLoad},
	{Name: "loadfile", Func: baseLoadFile},
	{Name: "dofile", Func: baseDoFile},
	{Name: "unpack", Func: tabUnpack},
}

// OpenBase installs the basic functions into the global table and leaves
// the global table on the stack.
func OpenBase(t *vm.Thread) int {
	t.PushGlobalTable()
	t.SetFuncs(baseFuncs)

	// pairs returns the very next function the global table holds
	t.GetField(-1, "next")
	t.PushNativeClosure(basePairs, 1)
	t.SetField(-2, "pairs")

	t.PushValue(-1)
	t.SetField(-2, "_G")
	t.PushString(vm.Version)
	t.SetField(-2, "_VERSION")
	return 1
}

func baseAssert(t *vm.Thread) int {
	if t.ToBoolean(1) {
		return t.Top()
	}
	t.CheckAny(1)
	t.Remove(1)
	t.PushString("assertion failed!")
	t.SetTop(1)
	return baseError(t)
}

func baseError(t *vm.Thread) int {
	level := t.OptInteger(2, 1)
	t.SetTop(1)
	if t.TypeOf(1) == vm.TypeString && level > 0 {
		t.PushString(t.Where(int(level)))
		t.PushValue(1)
		t.Concat(2)
	}
	return t.Error()
}

// finishPCall completes pcall and xpcall, directly or as the continuation
// after a yield or a recovered error inside a coroutine.
func finishPCall(t *vm.Thread, status vm.Status, extra int) int {
	if status != vm.OK && status != vm.Yield {
		t.PushBoolean(false)
		t.PushValue(-2)
		return 2
	}
	return t.Top() - extra
}

func basePCall(t *vm.Thread) int {
	t.CheckAny(1)
	t.PushBoolean(true)
	t.Insert(1)
	status := t.PCallK(t.Top()-2, vm.MultRet, 0, 0, finishPCall)
	return finishPCall(t, status, 0)
}

func baseXPCall(t *vm.Thread) int {
	n := t.Top()
	t.CheckType(2, vm.TypeFunction)
	t.PushBoolean(true)
	t.PushValue(1)
	t.Rotate(3, 2)
	status := t.PCallK(n-2, vm.MultRet, 2, 2, finishPCall)
	return finishPCall(t, status, 2)
}

func basePrint(t *vm.Thread) int {
	var sb strings.Builder
	n := t.Top()
	for i := 1; i <= n; i++ {
		if i > 1 {
			sb.WriteByte('\t')
		}
		sb.WriteString(t.ToDisplayString(i))
		t.Pop(1)
	}
	sb.WriteByte('\n')
	if _, err := io.WriteString(t.Runtime().Stdout(), sb.String()); err != nil {
		return t.Errorf("print: %s", err)
	}
	return 0
}

func baseType(t *vm.Thread) int {
	tp := t.TypeOf(1)
	if tp == vm.TypeNone {
		t.ArgError(1, "value expected")
	}
	t.PushString(tp.String())
	return 1
}

func baseToString(t *vm.Thread) int {
	t.CheckAny(1)
	t.ToDisplayString(1)
	return 1
}

func baseToNumber(t *vm.Thread) int {
	if t.IsNoneOrNil(2) {
		if t.TypeOf(1) == vm.TypeNumber {
			t.SetTop(1)
			return 1
		}
		if s, ok := t.Get(1).AsString(); ok {
			if v, ok := vm.StringToNumber(s); ok {
				t.Push(v)
				return 1
			}
		}
		t.CheckAny(1)
	} else {
		base := t.CheckInteger(2)
		t.CheckType(1, vm.TypeString)
		s, _ := t.ToString(1)
		if base < 2 || base > 36 {
			t.ArgError(2, "base out of range")
		}
		if n, ok := parseIntBase(s, base); ok {
			t.PushInteger(n)
			return 1
		}
	}
	t.PushNil()
	return 1
}

// parseIntBase converts s, an integer numeral in base, wrapping around on
// overflow. Surrounding whitespace and a leading minus are accepted.
func parseIntBase(s string, base int64) (int64, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	var n int64
	for i := 0; i < len(s); i++ {
		c := s[i]
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'z':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'Z':
			d = int64(c-'A') + 10
		default:
			return 0, false
		}
		if d >= base {
			return 0, false
		}
		n = n*base + d
	}
	if neg {
		n = -n
	}
	return n, true
}

func baseSelect(t *vm.Thread) int {
	n := int64(t.Top())
	if t.TypeOf(1) == vm.TypeString {
		if s, _ := t.ToString(1); s == "#" {
			t.PushInteger(n - 1)
			return 1
		}
	}
	i := t.CheckInteger(1)
	if i < 0 {
		i = n + i
	} else if i > n {
		i = n
	}
	if i < 1 {
		t.ArgError(1, "index out of range")
	}
	return int(n - i)
}

func baseNext(t *vm.Thread) int {
	t.CheckType(1, vm.TypeTable)
	t.SetTop(2)
	if t.Next(1) {
		return 2
	}
	t.PushNil()
	return 1
}

func basePairs(t *vm.Thread) int {
	t.CheckAny(1)
	if t.GetMetaField(1, "__pairs") == vm.TypeNil {
		t.PushValue(vm.UpvalueIndex(1))
		t.PushValue(1)
		t.PushNil()
	} else {
		t.PushValue(1)
		t.Call(1, 3)
	}
	return 3
}

func ipairsAux(t *vm.Thread) int {
	i := t.CheckInteger(2) + 1
	t.PushInteger(i)
	if t.GetI(1, i) == vm.TypeNil {
		return 1
	}
	return 2
}

func baseIPairs(t *vm.Thread) int {
	t.CheckAny(1)
	t.PushNative(ipairsAux)
	t.PushValue(1)
	t.PushInteger(0)
	return 3
}

func baseRawGet(t *vm.Thread) int {
	t.CheckTable(1)
	t.CheckAny(2)
	t.SetTop(2)
	t.RawGet(1)
	return 1
}

func baseRawSet(t *vm.Thread) int {
	t.CheckTable(1)
	t.CheckAny(2)
	t.CheckAny(3)
	t.SetTop(3)
	t.RawSet(1)
	return 1
}

func baseRawEqual(t *vm.Thread) int {
	t.CheckAny(1)
	t.CheckAny(2)
	t.PushBoolean(t.RawEqual(1, 2))
	return 1
}

func baseRawLen(t *vm.Thread) int {
	if tp := t.TypeOf(1); tp != vm.TypeTable && tp != vm.TypeString {
		t.ArgError(1, "table or string expected")
	}
	t.PushInteger(t.RawLen(1))
	return 1
}

func baseSetMetatable(t *vm.Thread) int {
	tp := t.TypeOf(2)
	t.CheckType(1, vm.TypeTable)
	if tp != vm.TypeNil && tp != vm.TypeTable {
		t.TypeError(2, "nil or table")
	}
	if t.GetMetaField(1, "__metatable") != vm.TypeNil {
		return t.Errorf("cannot change a protected metatable")
	}
	t.SetTop(2)
	t.SetMetatable(1)
	return 1
}

func baseGetMetatable(t *vm.Thread) int {
	t.CheckAny(1)
	if !t.GetMetatable(1) {
		t.PushNil()
		return 1
	}
	t.GetMetaField(1, "__metatable")
	return 1
}

var gcOptions = []string{"stop", "restart", "collect", "count", "step", "setpause", "setstepmul", "isrunning"}

func baseCollectGarbage(t *vm.Thread) int {
	opt := t.CheckOption(1, "collect", gcOptions)
	arg := int(t.OptInteger(2, 0))
	switch gcOptions[opt] {
	case "count":
		t.PushNumber(float64(t.GC(vm.GCCountBytes, 0)) / 1024)
	case "step":
		t.PushBoolean(t.GC(vm.GCStep, arg) == 1)
	case "setpause":
		t.PushInteger(int64(t.GC(vm.GCSetPause, arg)))
	case "setstepmul":
		t.PushInteger(int64(t.GC(vm.GCSetStepMul, arg)))
	case "isrunning":
		t.PushBoolean(t.GC(vm.GCIsRunning, 0) == 1)
	case "stop":
		t.PushInteger(int64(t.GC(vm.GCStop, 0)))
	case "restart":
		t.PushInteger(int64(t.GC(vm.GCRestart, 0)))
	default:
		t.PushInteger(int64(t.GC(vm.GCCollect, 0)))
	}
	return 1
}

// loadResult finishes load and loadfile: on success the chunk's first
// upvalue is replaced by the value at env when env is not 0.
func loadResult(t *vm.Thread, status vm.Status, env int) int {
	if status != vm.OK {
		t.PushNil()
		t.Insert(-2)
		return 2
	}
	if env != 0 {
		t.PushValue(env)
		if _, ok := t.SetUpvalue(-2, 1); !ok {
			t.Pop(1)
		}
	}
	return 1
}

func baseLoad(t *vm.Thread) int {
	mode := t.OptString(3, "bt")
	env := 0
	if !t.IsNone(4) {
		env = 4
	}
	var src, name string
	if s, ok := t.Get(1).AsString(); ok {
		src = s
		name = t.OptString(2, s)
	} else {
		name = t.OptString(2, "=(load)")
		t.CheckType(1, vm.TypeFunction)
		var sb strings.Builder
		for {
			t.PushValue(1)
			t.Call(0, 1)
			if t.IsNil(-1) {
				t.Pop(1)
				break
			}
			piece, ok := t.Get(-1).AsString()
			if !ok {
				t.Pop(1)
				t.PushNil()
				t.PushString("reader function must return a string")
				return 2
			}
			t.Pop(1)
			if piece == "" {
				break
			}
			sb.WriteString(piece)
		}
		src = sb.String()
	}
	status := t.Load(strings.NewReader(src), name, mode)
	return loadResult(t, status, env)
}

// loadFile pushes the chunk in file name, or stdin when name is empty.
func loadFile(t *vm.Thread, name, mode string) vm.Status {
	if name == "" {
		return t.Load(os.Stdin, "=stdin", mode)
	}
	f, err := os.Open(name)
	if err != nil {
		t.PushFString("cannot open %s", name)
		return vm.ErrFile
	}
	defer f.Close()
	return t.Load(f, "@"+name, mode)
}

func baseLoadFile(t *vm.Thread) int {
	name := t.OptString(1, "")
	mode := t.OptString(2, "bt")
	env := 0
	if !t.IsNone(3) {
		env = 3
	}
	return loadResult(t, loadFile(t, name, mode), env)
}

func dofileCont(t *vm.Thread, _ vm.Status, _ int) int {
	return t.Top() - 1
}

func baseDoFile(t *vm.Thread) int {
	name := t.OptString(1, "")
	t.SetTop(1)
	if loadFile(t, name, "bt") != vm.OK {
		return t.Error()
	}
	t.CallK(0, vm.MultRet, 0, dofileCont)
	return dofileCont(t, vm.OK, 0)
}
