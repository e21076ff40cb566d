package vm

// ---------------------------------------------------------------------------
// Compiler registration
// ---------------------------------------------------------------------------

// CompileFunc compiles source text into a main-chunk prototype. The
// prototype's first upvalue receives the global table when it is loaded.
// It is injected with UseCompiler so that vm does not depend on the
// compiler package.
type CompileFunc func(src []byte, chunkname string) (*Prototype, error)

// UseCompiler registers the compiler used by Load for text chunks.
func (rt *Runtime) UseCompiler(fn CompileFunc) { rt.compile = fn }

// HasCompiler reports whether text chunks can be loaded.
func (rt *Runtime) HasCompiler() bool { return rt.compile != nil }
