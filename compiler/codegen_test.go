package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/luma/vm"
)

func mustCompile(t *testing.T, src string) *vm.Prototype {
	t.Helper()
	p, err := Compile([]byte(src), "=test")
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return p
}

func findOp(p *vm.Prototype, op vm.Opcode) int {
	for pc, i := range p.Code {
		if i.Op() == op {
			return pc
		}
	}
	return -1
}

func TestCompileMainFunction(t *testing.T) {
	p := mustCompile(t, "local a = 1")
	if !p.IsVararg {
		t.Error("main function should be vararg")
	}
	if p.LineDefined != 0 {
		t.Errorf("LineDefined = %d, want 0", p.LineDefined)
	}
	if len(p.Upvalues) != 1 || p.Upvalues[0].Name != "_ENV" || !p.Upvalues[0].InStack {
		t.Errorf("upvalues = %+v, want a single in-stack _ENV", p.Upvalues)
	}
	if last := p.Code[len(p.Code)-1]; last.Op() != vm.OpReturn {
		t.Errorf("last instruction = %v, want RETURN", last)
	}
	if len(p.LineInfo) != len(p.Code) {
		t.Errorf("line info has %d entries for %d instructions", len(p.LineInfo), len(p.Code))
	}
	if p.Source != "=test" {
		t.Errorf("Source = %q, want =test", p.Source)
	}
}

func TestCompileConstantFolding(t *testing.T) {
	tests := []struct {
		src    string
		folded bool
		op     vm.Opcode
	}{
		{"return 1 + 2", true, vm.OpAdd},
		{"return 2 ^ 10", true, vm.OpPow},
		{"return 7 // 2", true, vm.OpIDiv},
		{"return 0xF0 | 0x0F", true, vm.OpBOr},
		{"return -(3)", true, vm.OpUnm},
		{"return 1 // 0", false, vm.OpIDiv},
		{"return 1 % 0", false, vm.OpMod},
		{"return 0/0", false, vm.OpDiv},
		{"return 1.5 | 1", false, vm.OpBOr},
		{"return x + 1", false, vm.OpAdd},
	}

	for _, tc := range tests {
		p := mustCompile(t, tc.src)
		if got := findOp(p, tc.op) < 0; got != tc.folded {
			t.Errorf("Compile(%q): folded = %v, want %v", tc.src, got, tc.folded)
		}
	}
}

func TestCompileFoldedConstant(t *testing.T) {
	p := mustCompile(t, "return 6 * 7")
	found := false
	for _, k := range p.Constants {
		if k.Kind == vm.ConstInt && k.Int == 42 {
			found = true
		}
	}
	if !found {
		t.Errorf("constants = %v, want 42", p.Constants)
	}
}

func TestCompileTailCall(t *testing.T) {
	p := mustCompile(t, "return f(1)")
	pc := findOp(p, vm.OpTailCall)
	if pc < 0 {
		t.Fatal("expected a TAILCALL")
	}
	next := p.Code[pc+1]
	if next.Op() != vm.OpReturn || next.B() != 0 {
		t.Errorf("instruction after TAILCALL = %v, want RETURN with B=0", next)
	}

	p = mustCompile(t, "local x <close> = nil; return f()")
	if findOp(p, vm.OpTailCall) >= 0 {
		t.Error("no TAILCALL expected while a to-be-closed variable is active")
	}
	if findOp(p, vm.OpTBC) < 0 {
		t.Error("expected a TBC instruction")
	}

	p = mustCompile(t, "return (f(1))")
	if findOp(p, vm.OpTailCall) >= 0 {
		t.Error("parenthesized call must not be a tail call")
	}
}

func TestCompileNumericFor(t *testing.T) {
	p := mustCompile(t, "local s = 0 for i = 1, 10 do s = s + i end")
	prep := findOp(p, vm.OpForPrep)
	loop := findOp(p, vm.OpForLoop)
	if prep < 0 || loop < 0 {
		t.Fatal("expected FORPREP and FORLOOP")
	}
	if p.Code[prep].Bx() != loop-prep || p.Code[loop].Bx() != loop-prep {
		t.Errorf("FORPREP Bx = %d, FORLOOP Bx = %d, want both %d",
			p.Code[prep].Bx(), p.Code[loop].Bx(), loop-prep)
	}
	if p.Code[prep].A() != p.Code[loop].A() {
		t.Error("FORPREP and FORLOOP use different bases")
	}
}

func TestCompileGenericFor(t *testing.T) {
	p := mustCompile(t, "for k, v in next, {} do end")
	call := findOp(p, vm.OpTForCall)
	if call < 0 {
		t.Fatal("expected TFORCALL")
	}
	if c := p.Code[call].C(); c != 2 {
		t.Errorf("TFORCALL C = %d, want 2", c)
	}
	loop := p.Code[call+1]
	if loop.Op() != vm.OpTForLoop {
		t.Fatalf("instruction after TFORCALL = %v, want TFORLOOP", loop)
	}
	tbc := findOp(p, vm.OpTBC)
	if tbc < 0 || p.Code[tbc].A() != loop.A()+3 {
		t.Errorf("expected TBC on the closing slot of the loop")
	}
	if findOp(p, vm.OpClose) < 0 {
		t.Error("expected CLOSE at loop exit")
	}
	if int(p.MaxStack) < loop.A()+7 {
		t.Errorf("MaxStack = %d, too small for the generator call", p.MaxStack)
	}
}

func TestCompileClosures(t *testing.T) {
	p := mustCompile(t, "local x = 1\nlocal function f()\n  return x\nend")
	if len(p.Protos) != 1 {
		t.Fatalf("got %d nested functions, want 1", len(p.Protos))
	}
	f := p.Protos[0]
	if f.LineDefined != 2 || f.LastLineDefined != 4 {
		t.Errorf("lines = %d..%d, want 2..4", f.LineDefined, f.LastLineDefined)
	}
	if len(f.Upvalues) != 1 {
		t.Fatalf("got %d upvalues, want 1", len(f.Upvalues))
	}
	uv := f.Upvalues[0]
	if uv.Name != "x" || !uv.InStack || uv.Index != 0 {
		t.Errorf("upvalue = %+v, want x in stack at 0", uv)
	}
}

func TestCompileNestedUpvalues(t *testing.T) {
	p := mustCompile(t, "local x\nreturn function() return function() return x, y end end")
	inner := p.Protos[0].Protos[0]
	if len(inner.Upvalues) != 2 {
		t.Fatalf("inner upvalues = %+v, want x and _ENV", inner.Upvalues)
	}
	if inner.Upvalues[0].Name != "x" || inner.Upvalues[0].InStack {
		t.Errorf("inner upvalue 0 = %+v, want x from enclosing upvalue", inner.Upvalues[0])
	}
	if inner.Upvalues[1].Name != "_ENV" {
		t.Errorf("inner upvalue 1 = %+v, want _ENV", inner.Upvalues[1])
	}
}

func TestCompileCapturedLoopLocalCloses(t *testing.T) {
	p := mustCompile(t, "local fs = {} for i = 1, 3 do fs[i] = function() return i end end")
	if findOp(p, vm.OpClose) < 0 {
		t.Error("expected CLOSE for the captured loop variable")
	}
	p = mustCompile(t, "for i = 1, 3 do local y = i end")
	if findOp(p, vm.OpClose) >= 0 {
		t.Error("unexpected CLOSE without captured variables")
	}
}

func TestCompileLocVars(t *testing.T) {
	p := mustCompile(t, "local a = 1\nlocal b = 2\ndo local c end")
	var names []string
	for _, lv := range p.LocVars {
		names = append(names, lv.Name)
		if lv.StartPC > lv.EndPC {
			t.Errorf("local %s has range %d..%d", lv.Name, lv.StartPC, lv.EndPC)
		}
	}
	if got := strings.Join(names, ","); got != "a,b,c" {
		t.Errorf("locals = %s, want a,b,c", got)
	}
}

func TestCompileGlobalAccess(t *testing.T) {
	p := mustCompile(t, "y = x")
	get := findOp(p, vm.OpGetTabUp)
	set := findOp(p, vm.OpSetTabUp)
	if get < 0 || set < 0 {
		t.Fatalf("expected GETTABUP and SETTABUP in %v", p.Code)
	}
	if p.Code[set].A() != 0 {
		t.Errorf("SETTABUP upvalue = %d, want 0 (_ENV)", p.Code[set].A())
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"local x <const> = 1; x = 2", "test:1: attempt to assign to const variable 'x'"},
		{"local x <const> = 1\nfunction f() x = 2 end", "test:2: attempt to assign to const variable 'x'"},
		{"local x <close> = nil; x = 1", "attempt to assign to const variable 'x'"},
		{"local x <const> = 1; function x() end", "attempt to assign to const variable 'x'"},
		{"break", "break outside a loop at line 1"},
		{"if x then break end", "break outside a loop"},
		{"x = = 1", "unexpected symbol near '='"},
	}

	for _, tc := range tests {
		_, err := Compile([]byte(tc.src), "=test")
		if err == nil {
			t.Errorf("Compile(%q): expected error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Compile(%q) error = %q, want it to contain %q", tc.src, err.Error(), tc.want)
		}
	}
}

func TestCompileTooManyLocals(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 201; i++ {
		sb.WriteString("local v")
		sb.WriteString(strings.Repeat("x", i%5))
		sb.WriteString(" = 1\n")
	}
	_, err := Compile([]byte(sb.String()), "=test")
	if err == nil || !strings.Contains(err.Error(), "too many local variables") {
		t.Errorf("error = %v, want too many local variables", err)
	}
}

func TestCompileLargeConstructor(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("return {")
	for i := 0; i < 120; i++ {
		sb.WriteString("1, ")
	}
	sb.WriteString("}")
	p := mustCompile(t, sb.String())
	n := 0
	for _, i := range p.Code {
		if i.Op() == vm.OpSetList {
			n++
		}
	}
	if n != 3 {
		t.Errorf("got %d SETLIST instructions, want 3", n)
	}
	if b := p.Code[findOp(p, vm.OpNewTable)].B(); b != 120 {
		t.Errorf("NEWTABLE array hint = %d, want 120", b)
	}
}
