// Package lib provides the standard library of the language: the basic
// functions and the coroutine, table, string and math tables. Every
// function is an ordinary native function written against the vm stack
// API.
package lib

import "github.com/chazu/luma/vm"

var libs = []struct {
	name string
	open vm.NativeFunction
}{
	{"_G", OpenBase},
	{"coroutine", OpenCoroutine},
	{"table", OpenTable},
	{"string", OpenString},
	{"math", OpenMath},
}

// OpenAll opens every library into the global table of t's runtime.
func OpenAll(t *vm.Thread) {
	for _, l := range libs {
		t.PushNative(l.open)
		t.PushString(l.name)
		t.Call(1, 1)
		if l.name == "_G" {
			t.Pop(1)
		} else {
			t.SetGlobal(l.name)
		}
	}
}
