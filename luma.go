// Package luma embeds the luma scripting language: a runtime with the
// compiler registered and the standard library opened.
//
//	rt := luma.New()
//	defer rt.Close()
//	if err := rt.DoString(`print("hello")`); err != nil {
//		log.Fatal(err)
//	}
package luma

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chazu/luma/compiler"
	"github.com/chazu/luma/lib"
	"github.com/chazu/luma/vm"
)

// Runtime is a vm.Runtime ready to run source text.
type Runtime struct {
	*vm.Runtime

	// Traceback appends a stack traceback to the messages of runtime errors.
	Traceback bool
}

// New creates a runtime, registers the compiler and opens the standard
// library.
func New(opts ...vm.Option) *Runtime {
	rt := vm.NewRuntime(opts...)
	rt.UseCompiler(compiler.Compile)
	lib.OpenAll(rt.MainThread())
	return &Runtime{Runtime: rt}
}

// Compile compiles source text into a main-chunk prototype.
func Compile(src []byte, chunkname string) (*vm.Prototype, error) {
	return compiler.Compile(src, chunkname)
}

// DoString compiles and runs src.
func (r *Runtime) DoString(src string) error {
	return r.DoChunk(src, src)
}

// DoChunk compiles src under chunkname and runs it.
func (r *Runtime) DoChunk(src, chunkname string) error {
	if err := r.Load(strings.NewReader(src), chunkname); err != nil {
		return err
	}
	return r.Call(0, 0)
}

// DoFile loads and runs the chunk in file path.
func (r *Runtime) DoFile(path string) error {
	if err := r.LoadFile(path); err != nil {
		return err
	}
	return r.Call(0, 0)
}

// Load reads a text or binary chunk from rd and pushes it onto the main
// thread as a function.
func (r *Runtime) Load(rd io.Reader, chunkname string) error {
	if st := r.MainThread().Load(rd, chunkname, "bt"); st != vm.OK {
		return r.popError(st)
	}
	return nil
}

// LoadFile is Load for the file at path; "-" reads standard input.
func (r *Runtime) LoadFile(path string) error {
	if path == "-" {
		return r.Load(os.Stdin, "=stdin")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()
	return r.Load(f, "@"+path)
}

// Call calls the function below the top nargs values of the main thread
// in protected mode, leaving nresults results on success.
func (r *Runtime) Call(nargs, nresults int) error {
	th := r.MainThread()
	if !r.Traceback {
		if st := th.PCall(nargs, nresults, 0); st != vm.OK {
			return r.popError(st)
		}
		return nil
	}
	base := th.Top() - nargs
	th.PushNative(messageHandler)
	th.Insert(base)
	st := th.PCall(nargs, nresults, base)
	th.Remove(base)
	if st != vm.OK {
		return r.popError(st)
	}
	return nil
}

// popError pops the error value left by a failed load or call.
func (r *Runtime) popError(st vm.Status) error {
	th := r.MainThread()
	err := &vm.Error{Status: st, Value: th.Get(-1)}
	th.Pop(1)
	return err
}

// messageHandler turns an error value into a message with a traceback.
func messageHandler(t *vm.Thread) int {
	msg, ok := t.Get(1).AsString()
	if !ok {
		switch {
		case t.IsNumber(1):
			msg, _ = t.ToString(1)
		case t.GetMetaField(1, "__tostring") != vm.TypeNil:
			t.Pop(1)
			msg = t.ToDisplayString(1)
		default:
			msg = fmt.Sprintf("(error object is a %s value)", t.TypeOf(1))
		}
	}
	t.PushString(t.Traceback(msg, 1))
	return 1
}
