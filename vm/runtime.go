package vm

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("luma.vm")

// Version is the value of the _VERSION global.
const Version = "Luma 1.0"

// Default limits.
const (
	DefaultMaxStackSize   = 1_000_000
	DefaultMaxNativeDepth = 200
)

// Well-known registry slots.
const (
	RegistryIndexMainThread = 1
	RegistryIndexGlobals    = 2
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options carries the tunables of one runtime instance.
type Options struct {
	MaxStackSize   int
	MaxNativeDepth int
	ShortStringLen int
	GCPause        int
	GCStepMul      int
	GCStopped      bool
	MemoryLimit    int64 // bytes; 0 means unlimited
	Stdout         io.Writer
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxStackSize:   DefaultMaxStackSize,
		MaxNativeDepth: DefaultMaxNativeDepth,
		ShortStringLen: MaxShortLen,
		GCPause:        defaultGCPause,
		GCStepMul:      defaultGCStepMul,
		Stdout:         os.Stdout,
	}
}

// Option configures a Runtime.
type Option func(*Options)

// WithOptions replaces every option at once.
func WithOptions(o Options) Option { return func(dst *Options) { *dst = o } }

// WithMaxStack limits the number of stack slots per thread.
func WithMaxStack(n int) Option { return func(o *Options) { o.MaxStackSize = n } }

// WithMaxNativeDepth limits nested native-to-script reentry.
func WithMaxNativeDepth(n int) Option { return func(o *Options) { o.MaxNativeDepth = n } }

// WithGCPause sets the collector pause in percent.
func WithGCPause(p int) Option { return func(o *Options) { o.GCPause = p } }

// WithGCStepMul sets the collector step multiplier in percent.
func WithGCStepMul(m int) Option { return func(o *Options) { o.GCStepMul = m } }

// WithGCStopped starts the runtime with the collector stopped.
func WithGCStopped() Option { return func(o *Options) { o.GCStopped = true } }

// WithMemoryLimit makes allocation beyond limit bytes raise a memory error.
func WithMemoryLimit(limit int64) Option { return func(o *Options) { o.MemoryLimit = limit } }

// WithStdout redirects the output of print.
func WithStdout(w io.Writer) Option { return func(o *Options) { o.Stdout = w } }

// ---------------------------------------------------------------------------
// Runtime: one independent instance
// ---------------------------------------------------------------------------

// Runtime is one independent interpreter instance: a heap, a collector, a
// main thread, a registry and the global table. Runtimes share nothing; a
// host may run one per goroutine. A single Runtime must not be used from
// several goroutines at once.
type Runtime struct {
	id   uuid.UUID
	opts Options

	strings  *stringTable
	gc       collector
	main     *Thread
	registry *Table
	typeMeta [numTypes]*Table
	tmNames  [tmCount]*String
	fixed    []Value
	memErr   *Error

	// active holds the threads currently resumed, innermost last.
	active []*Thread

	compile      CompileFunc
	panicHandler func(t *Thread, err *Error)
	broken       bool
	closed       bool
}

// NewRuntime creates a runtime with an empty global table. Libraries are
// opened separately.
func NewRuntime(opts ...Option) *Runtime {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxStackSize <= 0 {
		o.MaxStackSize = DefaultMaxStackSize
	}
	if o.MaxNativeDepth <= 0 {
		o.MaxNativeDepth = DefaultMaxNativeDepth
	}
	if o.ShortStringLen <= 0 {
		o.ShortStringLen = MaxShortLen
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}

	rt := &Runtime{id: uuid.New(), opts: o}
	rt.strings = newStringTable(binary.LittleEndian.Uint32(rt.id[:4]), o.ShortStringLen)
	rt.gc.init(rt, &o)

	rt.main = rt.newThread()
	rt.main.isMain = true
	rt.main.state = CoRunning
	rt.main.nny = 1

	rt.registry = rt.newTable(2, 0)
	rt.registry.SetInt(RegistryIndexMainThread, threadValue(rt.main))
	rt.registry.SetInt(RegistryIndexGlobals, tableValue(rt.newTable(0, 32)))

	for i, name := range tmNameStrings {
		rt.tmNames[i] = rt.intern(name)
	}
	rt.memErr = &Error{Status: ErrMem, Value: rt.String(memErrMsg)}
	rt.fixed = append(rt.fixed, rt.memErr.Value, rt.String(errErrMsg))

	log.Debugf("runtime %s created (max stack %d, max native depth %d)",
		rt.id, o.MaxStackSize, o.MaxNativeDepth)
	return rt
}

// ID returns the instance identifier.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Options returns the options the runtime was created with.
func (rt *Runtime) Options() Options { return rt.opts }

// MainThread returns the runtime's main thread.
func (rt *Runtime) MainThread() *Thread { return rt.main }

// Registry returns the registry table.
func (rt *Runtime) Registry() *Table { return rt.registry }

// Globals returns the global table.
func (rt *Runtime) Globals() *Table {
	return rt.registry.GetInt(RegistryIndexGlobals).tbl()
}

// Stdout returns the writer used by print.
func (rt *Runtime) Stdout() io.Writer { return rt.opts.Stdout }

// SetPanicHandler installs fn to be called when an error escapes every
// protected call on a thread's outermost frame. The runtime is unusable
// afterwards.
func (rt *Runtime) SetPanicHandler(fn func(t *Thread, err *Error)) {
	rt.panicHandler = fn
}

// Broken reports whether an unprotected error has terminated the instance.
func (rt *Runtime) Broken() bool { return rt.broken }

// TypeMetatable returns the shared metatable for values of type tp.
func (rt *Runtime) TypeMetatable(tp Type) *Table {
	if tp < 0 || int(tp) >= numTypes {
		return nil
	}
	return rt.typeMeta[tp]
}

// Close runs pending to-be-closed variables of the main thread and every
// pending finalizer. The runtime must not be used afterwards.
func (rt *Runtime) Close() {
	if rt.closed {
		return
	}
	rt.closed = true
	t := rt.main
	t.ci = &t.baseCI
	if err := t.closeProtected(1, nil); err != nil {
		log.Warningf("runtime %s: error closing main thread: %s", rt.id, err)
	}
	rt.gc.runAllFinalizers(t)
	log.Debugf("runtime %s closed after %d collection cycles", rt.id, rt.gc.cycles)
}

// FullCollect runs a complete collection cycle on the main thread.
func (rt *Runtime) FullCollect() { rt.gc.fullCollect(rt.main) }

// MemoryInUse returns the collector's estimate of live heap bytes.
func (rt *Runtime) MemoryInUse() int64 { return rt.gc.total }

// ObjectCount returns the number of objects known to the collector.
func (rt *Runtime) ObjectCount() int { return len(rt.gc.objects) }
