package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

func mustParse(t *testing.T, src string) *Chunk {
	t.Helper()
	chunk, err := Parse(src, "=test")
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return chunk
}

func TestParseLocalStatement(t *testing.T) {
	chunk := mustParse(t, "local a, b <const>, c <close> = 1, 'x'")
	if len(chunk.Body.Stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(chunk.Body.Stmts))
	}
	s, ok := chunk.Body.Stmts[0].(*LocalStmt)
	if !ok {
		t.Fatalf("statement is %T, want *LocalStmt", chunk.Body.Stmts[0])
	}
	if got := strings.Join(s.Names, ","); got != "a,b,c" {
		t.Errorf("names = %s, want a,b,c", got)
	}
	wantAttribs := []Attrib{AttribNone, AttribConst, AttribClose}
	for i, want := range wantAttribs {
		if s.Attribs[i] != want {
			t.Errorf("attrib[%d] = %v, want %v", i, s.Attribs[i], want)
		}
	}
	if len(s.Exprs) != 2 {
		t.Fatalf("got %d expressions, want 2", len(s.Exprs))
	}
	if lit, ok := s.Exprs[0].(*IntLiteral); !ok || lit.Value != 1 {
		t.Errorf("expr[0] = %#v, want integer 1", s.Exprs[0])
	}
	if lit, ok := s.Exprs[1].(*StringLiteral); !ok || lit.Value != "x" {
		t.Errorf("expr[1] = %#v, want string x", s.Exprs[1])
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"return 1 + 2 * 3", "(1 + (2 * 3))"},
		{"return (1 + 2) * 3", "((1 + 2) * 3)"},
		{"return 2 ^ 3 ^ 2", "(2 ^ (3 ^ 2))"},
		{"return -x ^ 2", "-(x ^ 2)"},
		{"return a .. b .. c", "(a .. (b .. c))"},
		{"return a or b and c", "(a or (b and c))"},
		{"return not a == b", "(not a == b)"},
		{"return 1 < 2 == true", "((1 < 2) == true)"},
		{"return a | b ~ c & d << 1", "(a | (b ~ (c & (d << 1))))"},
		{"return #t + 1", "(#t + 1)"},
		{"return a.b[c]:m(1)", "a.b[c]:m(1)"},
	}

	for _, tc := range tests {
		chunk := mustParse(t, tc.src)
		ret := chunk.Body.Stmts[0].(*ReturnStmt)
		if got := exprString(ret.Exprs[0]); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

// exprString renders an expression with explicit grouping.
func exprString(e Expr) string {
	switch n := e.(type) {
	case *IntLiteral:
		return strconv.FormatInt(n.Value, 10)
	case *BoolLiteral:
		if n.Value {
			return "true"
		}
		return "false"
	case *NameExpr:
		return n.Name
	case *StringLiteral:
		return "'" + n.Value + "'"
	case *ParenExpr:
		return exprString(n.Inner)
	case *BinaryExpr:
		return "(" + exprString(n.Left) + " " + n.Op.String() + " " + exprString(n.Right) + ")"
	case *UnaryExpr:
		ops := map[UnOp]string{OpMinus: "-", OpBNot: "~", OpNot: "not ", OpLen: "#"}
		return ops[n.Op] + exprString(n.Operand)
	case *IndexExpr:
		if s, ok := n.Key.(*StringLiteral); ok {
			return exprString(n.Obj) + "." + s.Value
		}
		return exprString(n.Obj) + "[" + exprString(n.Key) + "]"
	case *MethodCall:
		return exprString(n.Obj) + ":" + n.Name + "(" + argsString(n.Args) + ")"
	case *CallExpr:
		return exprString(n.Fn) + "(" + argsString(n.Args) + ")"
	}
	return "?"
}

func argsString(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = exprString(a)
	}
	return strings.Join(parts, ", ")
}

func TestParseStatements(t *testing.T) {
	src := `
		x = 1
		a.b, c[1] = f()
		f(1, 2)
		obj:method "arg"
		do local y end
		while x do break end
		repeat local z = 1 until z
		if a then elseif b then else end
		for i = 1, 10, 2 do end
		for k, v in pairs(t) do end
		function m.n:o() end
		local function g(...) return ... end
		return
	`
	chunk := mustParse(t, src)
	want := []string{
		"*compiler.AssignStmt",
		"*compiler.AssignStmt",
		"*compiler.CallStmt",
		"*compiler.CallStmt",
		"*compiler.DoStmt",
		"*compiler.WhileStmt",
		"*compiler.RepeatStmt",
		"*compiler.IfStmt",
		"*compiler.NumericForStmt",
		"*compiler.GenericForStmt",
		"*compiler.FunctionStmt",
		"*compiler.LocalFunctionStmt",
		"*compiler.ReturnStmt",
	}
	if len(chunk.Body.Stmts) != len(want) {
		t.Fatalf("got %d statements, want %d", len(chunk.Body.Stmts), len(want))
	}
	for i, s := range chunk.Body.Stmts {
		if got := fmt.Sprintf("%T", s); got != want[i] {
			t.Errorf("stmt[%d] = %s, want %s", i, got, want[i])
		}
	}

	ifs := chunk.Body.Stmts[7].(*IfStmt)
	if len(ifs.Conds) != 2 || ifs.Else == nil {
		t.Errorf("if statement has %d conditions, else = %v", len(ifs.Conds), ifs.Else != nil)
	}
	method := chunk.Body.Stmts[10].(*FunctionStmt)
	if len(method.Func.Params) != 1 || method.Func.Params[0] != "self" {
		t.Errorf("method params = %v, want [self]", method.Func.Params)
	}
	if got := exprString(method.Target); got != "m.n.o" {
		t.Errorf("method target = %s, want m.n.o", got)
	}
	local := chunk.Body.Stmts[11].(*LocalFunctionStmt)
	if !local.Func.IsVararg {
		t.Error("local function should be vararg")
	}
}

func TestParseTableConstructor(t *testing.T) {
	chunk := mustParse(t, "return {1, 2; x = 3, [4] = 5, f()}")
	tbl := chunk.Body.Stmts[0].(*ReturnStmt).Exprs[0].(*TableExpr)
	if len(tbl.Fields) != 5 {
		t.Fatalf("got %d fields, want 5", len(tbl.Fields))
	}
	positional := 0
	for _, f := range tbl.Fields {
		if f.Key == nil {
			positional++
		}
	}
	if positional != 3 {
		t.Errorf("got %d positional fields, want 3", positional)
	}
	if key, ok := tbl.Fields[2].Key.(*StringLiteral); !ok || key.Value != "x" {
		t.Errorf("field[2] key = %#v, want string x", tbl.Fields[2].Key)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src        string
		want       string
		incomplete bool
	}{
		{"x = ", "test:1: unexpected symbol near <eof>", true},
		{"if x then", "test:1: 'end' expected near <eof>", true},
		{"f(", "test:1: unexpected symbol near <eof>", true},
		{"x = }", "test:1: unexpected symbol near '}'", false},
		{"local x <foo> = 1", "test:1: unknown attribute 'foo'", false},
		{"local a <close>, b <close> = 1, 2", "multiple to-be-closed variables in local list", false},
		{"goto done", "goto and labels are not supported", false},
		{"x", "test:1: syntax error near <eof>", true},
		{"function f() return ... end", "cannot use '...' outside a vararg function", false},
		{"x = 'abc", "unfinished string", true},
		{"x = 3x", "malformed number near '3x'", false},
		{"x = [==[ abc", "unfinished long string", true},
		{"for i do end", "'=' or 'in' expected", false},
		{"while true do\n\nx = 1", "test:3: 'end' expected (to close 'while' at line 1) near <eof>", true},
		{"x = \"\\q\"", "invalid escape sequence", false},
		{"x = @", "unexpected symbol near '@'", false},
	}

	for _, tc := range tests {
		_, err := Parse(tc.src, "=test")
		if err == nil {
			t.Errorf("Parse(%q): expected error", tc.src)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Parse(%q) error = %q, want it to contain %q", tc.src, err.Error(), tc.want)
		}
		if got := IsIncomplete(err); got != tc.incomplete {
			t.Errorf("IsIncomplete(Parse(%q)) = %v, want %v", tc.src, got, tc.incomplete)
		}
	}
}

func TestParseNestingLimit(t *testing.T) {
	src := "return " + strings.Repeat("(", 300) + "1" + strings.Repeat(")", 300)
	_, err := Parse(src, "=test")
	if err == nil || !strings.Contains(err.Error(), "too many syntax levels") {
		t.Errorf("error = %v, want too many syntax levels", err)
	}
}
