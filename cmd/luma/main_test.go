package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/luma"
	"github.com/chazu/luma/config"
	"github.com/chazu/luma/vm"
)

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"1 + 2", false},
		{"x = 1", false},
		{"function f()", true},
		{"if x then", true},
		{"local t = {", true},
		{"print('a'", true},
		{"x = = 1", false},
		{"for i = 1, 3 do print(i) end", false},
	}
	for _, tt := range tests {
		if got := needsMore(tt.src); got != tt.want {
			t.Errorf("needsMore(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestReadChunk(t *testing.T) {
	lines := []string{"function f()", "  return 7", "end", "f()"}
	var prompts []string
	next := func(p string) (string, error) {
		prompts = append(prompts, p)
		if len(lines) == 0 {
			return "", io.EOF
		}
		l := lines[0]
		lines = lines[1:]
		return l, nil
	}

	src, ok := readChunk(next)
	if !ok || src != "function f()\n  return 7\nend" {
		t.Fatalf("first chunk = %q, %v", src, ok)
	}
	if got := strings.Join(prompts, "|"); got != "> |>> |>> " {
		t.Errorf("prompts = %q", got)
	}
	if src, ok = readChunk(next); !ok || src != "f()" {
		t.Errorf("second chunk = %q, %v", src, ok)
	}
	if _, ok = readChunk(next); ok {
		t.Error("readChunk at EOF reported ok")
	}
}

func TestEvalLine(t *testing.T) {
	var out bytes.Buffer
	rt := luma.New(vm.WithStdout(&out))
	defer rt.Close()

	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2", "3"},
		{"x = 10", ""},
		{"x * 2, 'ok'", "20\tok"},
		{"nil", "nil"},
		{"local y = 5", ""},
	}
	for _, tt := range tests {
		got, err := evalLine(rt, tt.src)
		if err != nil {
			t.Fatalf("evalLine(%q): %v", tt.src, err)
		}
		if s := strings.Join(got, "\t"); s != tt.want {
			t.Errorf("evalLine(%q) = %q, want %q", tt.src, s, tt.want)
		}
	}
	if top := rt.MainThread().Top(); top != 0 {
		t.Errorf("stack top after evaluation = %d, want 0", top)
	}

	if _, err := evalLine(rt, "error('boom')"); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("evalLine(error) = %v, want boom", err)
	}
	if _, err := evalLine(rt, "x = = 1"); err == nil {
		t.Error("evalLine accepted a syntax error")
	}
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunScriptArgs(t *testing.T) {
	path := writeScript(t, t.TempDir(), "args.luma", `
		local a, b = ...
		print(select('#', ...), a, b, #arg, arg[1])
	`)
	var out bytes.Buffer
	rt := luma.New(vm.WithStdout(&out))
	defer rt.Close()

	args := []string{path, "x", "y"}
	setArgs(rt.MainThread(), args)
	if err := runScript(rt, args[0], args[1:]); err != nil {
		t.Fatalf("runScript: %v", err)
	}
	if got, want := out.String(), "2\tx\ty\t2\tx\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunParallel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	good := []string{
		writeScript(t, dir, "a.luma", "local s = 0 for i = 1, 100 do s = s + i end assert(s == 5050)"),
		writeScript(t, dir, "b.luma", "assert(arg[0]:sub(-6) == 'b.luma')"),
	}
	if err := runParallel(context.Background(), cfg, good, 2); err != nil {
		t.Errorf("runParallel(good) = %v", err)
	}

	bad := writeScript(t, dir, "bad.luma", "error('broken')")
	err := runParallel(context.Background(), cfg, append(good, bad), 1)
	if err == nil || !strings.Contains(err.Error(), "bad.luma") || !strings.Contains(err.Error(), "broken") {
		t.Errorf("runParallel(bad) = %v", err)
	}

	if err := runParallel(context.Background(), cfg, nil, 1); err == nil {
		t.Error("runParallel with no scripts succeeded")
	}
}

func TestCompileFile(t *testing.T) {
	dir := t.TempDir()
	src := writeScript(t, dir, "calc.luma", "return 6 * 7")
	out := filepath.Join(dir, "calc.lc")
	if err := compileFile(src, out, true); err != nil {
		t.Fatalf("compileFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte(vm.Signature)) {
		t.Fatalf("chunk does not start with the signature")
	}

	rt := luma.New()
	defer rt.Close()
	if err := rt.LoadFile(out); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := rt.Call(0, 1); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if n, _ := rt.MainThread().ToInteger(-1); n != 42 {
		t.Errorf("result = %d, want 42", n)
	}
}
