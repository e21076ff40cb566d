// Package vm implements the luma runtime: tagged values, the string
// interner, tables, closures and upvalues, threads and call frames, the
// bytecode interpreter, coroutines, the incremental collector, and the
// stack-based host API.
//
// A Runtime is one independent instance. Host code talks to it through a
// Thread's value stack: push arguments, call, read results. Errors inside
// the engine unwind as panics carrying *Error and are recovered only at
// protected boundaries (PCall, Resume) or at a thread's outermost call.
package vm
