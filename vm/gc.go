package vm

import (
	"strings"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Heap object header
// ---------------------------------------------------------------------------

// object is implemented by every heap-allocated value: strings, tables,
// closures, userdata and threads.
type object interface {
	header() *gcHeader
}

// gcHeader is embedded in every heap object.
type gcHeader struct {
	id   uint64 // allocation sequence number, also the identity hash
	mark uint8
	fin  uint8
}

func (h *gcHeader) header() *gcHeader { return h }

// mark bits
const (
	white0 uint8 = 1 << iota
	white1
	black

	whiteBits = white0 | white1
)

// finalizer states
const (
	finNone uint8 = iota
	finPending
	finDone
)

type gcState uint8

const (
	gcsPause gcState = iota
	gcsPropagate
	gcsSweep
	gcsCallFin
)

var gcStateNames = [...]string{"pause", "propagate", "sweep", "callfin"}

func (s gcState) String() string { return gcStateNames[s] }

// Size estimates used for accounting.
const (
	stringOverhead   = 48
	closureOverhead  = 64
	userdataOverhead = 64
	threadOverhead   = 256

	gcStepSize       = 8 * 1024
	sweepCost        = 64
	defaultGCPause   = 200
	defaultGCStepMul = 100
)

var gcLog = commonlog.GetLogger("luma.gc")

// ---------------------------------------------------------------------------
// collector: incremental tri-colour mark & sweep
// ---------------------------------------------------------------------------

// collector tracks every heap object of one runtime and decides when an
// object is no longer reachable from the roots. Memory itself belongs to
// the Go heap; the collector owns the interpreter-level lifetime: it
// releases unreachable objects from the all-objects list, the intern table
// and weak tables, and runs __gc finalizers.
type collector struct {
	rt *Runtime

	nextID       uint64
	currentWhite uint8
	state        gcState

	objects   []object
	gray      []object
	grayAgain []object
	weak      []*Table
	tobefnz   []object
	sweepRead int
	sweepKept int

	total    int64 // estimated bytes in use
	debt     int64 // bytes allocated beyond the threshold
	estimate int64 // live bytes found by the last sweep

	pause   int
	stepMul int
	limit   int64
	stopped bool
	inStep  bool

	protoEpoch uint32
	cycles     int
}

func (g *collector) init(rt *Runtime, opts *Options) {
	g.rt = rt
	g.currentWhite = white0
	g.pause = opts.GCPause
	g.stepMul = opts.GCStepMul
	g.limit = opts.MemoryLimit
	g.stopped = opts.GCStopped
	g.debt = -gcStepSize
}

func (g *collector) otherWhite() uint8 { return g.currentWhite ^ whiteBits }

func isWhite(o object) bool { return o.header().mark&whiteBits != 0 }
func isBlack(o object) bool { return o.header().mark&black != 0 }

// isDead reports whether o was found unreachable and awaits sweeping.
func (g *collector) isDead(o object) bool {
	return g.state == gcsSweep && o.header().mark&g.otherWhite() != 0
}

func (g *collector) resurrect(o object) {
	o.header().mark = g.currentWhite
}

// register records a new heap object.
func (g *collector) register(o object, size int64) {
	g.nextID++
	h := o.header()
	h.id = g.nextID
	h.mark = g.currentWhite
	g.objects = append(g.objects, o)
	g.total += size
	g.debt += size
}

// adjust accounts for an object changing size.
func (g *collector) adjust(delta int64) {
	g.total += delta
	g.debt += delta
}

// ---------------------------------------------------------------------------
// Barriers
// ---------------------------------------------------------------------------

// barrierBack is the backward barrier for containers that are written
// often: a black table that receives a reference turns gray again and is
// re-traversed atomically.
func (g *collector) barrierBack(t *Table) {
	if g.state == gcsPropagate && isBlack(t) {
		t.mark &^= black
		g.grayAgain = append(g.grayAgain, t)
	}
}

// barrier is the forward barrier: storing v into black o marks v.
func (g *collector) barrier(o object, v Value) {
	if g.state == gcsPropagate && v.ref != nil && isBlack(o) && isWhite(v.ref) {
		g.markObject(v.ref)
	}
}

// barrierValue is used for writes into cells that are not themselves heap
// objects (closed upvalues).
func (g *collector) barrierValue(v Value) {
	if g.state == gcsPropagate && v.ref != nil && isWhite(v.ref) {
		g.markObject(v.ref)
	}
}

// checkFinalizer records that o has a metatable with __gc.
func (g *collector) checkFinalizer(o object, mt *Table) {
	h := o.header()
	if h.fin != finNone || mt == nil {
		return
	}
	if !mt.getStr(g.rt.tmNames[tmGC]).IsNil() {
		h.fin = finPending
	}
}

// ---------------------------------------------------------------------------
// Marking
// ---------------------------------------------------------------------------

func (g *collector) markValue(v Value) {
	if v.ref != nil && isWhite(v.ref) {
		g.markObject(v.ref)
	}
}

func (g *collector) markObject(o object) {
	h := o.header()
	if h.mark&whiteBits == 0 {
		return
	}
	if _, ok := o.(*String); ok {
		h.mark = black
		return
	}
	h.mark &^= whiteBits // gray
	g.gray = append(g.gray, o)
}

func (g *collector) markRoots() {
	rt := g.rt
	g.markObject(rt.main)
	g.markObject(rt.registry)
	for _, mt := range rt.typeMeta {
		if mt != nil {
			g.markObject(mt)
		}
	}
	for _, s := range rt.tmNames {
		g.markObject(s)
	}
	for _, v := range rt.fixed {
		g.markValue(v)
	}
	for _, th := range rt.active {
		g.markObject(th)
	}
}

// propagate blackens one gray object and returns the work done.
func (g *collector) propagate() int64 {
	n := len(g.gray) - 1
	o := g.gray[n]
	g.gray = g.gray[:n]
	o.header().mark |= black
	switch o := o.(type) {
	case *Table:
		return g.traverseTable(o)
	case *Closure:
		return g.traverseClosure(o)
	case *Userdata:
		if o.meta != nil {
			g.markObject(o.meta)
		}
		for _, v := range o.userValues {
			g.markValue(v)
		}
		return userdataOverhead + int64(len(o.userValues))*valueSize
	case *Thread:
		// Threads are re-traversed atomically because stack writes
		// carry no barrier.
		o.mark &^= black
		g.grayAgain = append(g.grayAgain, o)
		return g.traverseThread(o)
	}
	return 0
}

func (g *collector) propagateAll() {
	for len(g.gray) > 0 {
		g.propagate()
	}
}

func (g *collector) weakMode(t *Table) (weakKeys, weakValues bool) {
	if t.meta == nil {
		return false, false
	}
	mode := t.meta.getStr(g.rt.tmNames[tmMode])
	if s, ok := mode.AsString(); ok {
		return strings.IndexByte(s, 'k') >= 0, strings.IndexByte(s, 'v') >= 0
	}
	return false, false
}

func (g *collector) traverseTable(t *Table) int64 {
	if t.meta != nil {
		g.markObject(t.meta)
	}
	wk, wv := g.weakMode(t)
	if wk || wv {
		g.weak = append(g.weak, t)
	}
	if !wv {
		for _, v := range t.array {
			g.markValue(v)
		}
	}
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.val.IsNil() {
			continue
		}
		if !wk || n.key.IsString() {
			g.markValue(n.key)
		}
		if !wv || n.val.IsString() {
			g.markValue(n.val)
		}
	}
	return t.memSize()
}

func (g *collector) traverseClosure(c *Closure) int64 {
	if c.proto != nil {
		g.markProto(c.proto)
		for _, uv := range c.upvals {
			switch {
			case uv == nil:
			case uv.closed:
				g.markValue(uv.value)
			default:
				// An open upvalue keeps its thread alive.
				g.markObject(uv.thread)
			}
		}
	}
	for _, v := range c.captured {
		g.markValue(v)
	}
	return closureOverhead + int64(len(c.upvals)*8+len(c.captured)*valueSize)
}

func (g *collector) markProto(p *Prototype) {
	if p.gcEpoch == g.protoEpoch {
		return
	}
	p.gcEpoch = g.protoEpoch
	for _, k := range p.k {
		g.markValue(k)
	}
	for _, sub := range p.Protos {
		g.markProto(sub)
	}
}

func (g *collector) traverseThread(t *Thread) int64 {
	lim := t.top
	for ci := t.ci; ci != nil; ci = ci.prev {
		if ci.top > lim {
			lim = ci.top
		}
	}
	if lim > len(t.stack) {
		lim = len(t.stack)
	}
	for _, v := range t.stack[:lim] {
		g.markValue(v)
	}
	return threadOverhead + int64(len(t.stack))*valueSize
}

// clearWeak removes entries whose weak part was not marked. Strings are
// values, not objects, for the purpose of weak tables and are never cleared.
func (g *collector) clearWeak() {
	for _, t := range g.weak {
		wk, wv := g.weakMode(t)
		if wv {
			for i, v := range t.array {
				if v.ref != nil && isWhite(v.ref) {
					t.array[i] = Nil
				}
			}
		}
		for i := range t.nodes {
			n := &t.nodes[i]
			if n.val.IsNil() {
				continue
			}
			if (wk && n.key.ref != nil && isWhite(n.key.ref)) ||
				(wv && n.val.ref != nil && isWhite(n.val.ref)) {
				n.val = Nil
				t.live--
			}
		}
	}
	g.weak = g.weak[:0]
}

// atomic finishes marking in one indivisible step.
func (g *collector) atomic() {
	g.markRoots()
	g.propagateAll()
	again := g.grayAgain
	g.grayAgain = nil
	for _, o := range again {
		if isWhite(o) {
			continue
		}
		o.header().mark &^= black
		g.gray = append(g.gray, o)
	}
	g.propagateAll()
	// Threads pushed back to grayAgain during this pass are done.
	for _, o := range g.grayAgain {
		o.header().mark |= black
	}
	g.grayAgain = nil

	// Unreachable objects with finalizers are resurrected for one more
	// cycle and queued.
	for _, o := range g.objects {
		h := o.header()
		if h.fin == finPending && h.mark&whiteBits != 0 {
			h.fin = finDone
			g.tobefnz = append(g.tobefnz, o)
		}
	}
	for _, o := range g.tobefnz {
		g.markObject(o)
	}
	g.propagateAll()
	for _, o := range g.grayAgain {
		o.header().mark |= black
	}
	g.grayAgain = nil

	g.clearWeak()
	g.currentWhite = g.otherWhite()
	g.state = gcsSweep
	g.sweepRead, g.sweepKept = 0, 0
	g.estimate = 0
}

// ---------------------------------------------------------------------------
// Sweeping and finalization
// ---------------------------------------------------------------------------

func objectSize(o object) int64 {
	switch o := o.(type) {
	case *String:
		return int64(len(o.s)) + stringOverhead
	case *Table:
		return o.memSize()
	case *Closure:
		return closureOverhead + int64(len(o.upvals)*8+len(o.captured)*valueSize)
	case *Userdata:
		return userdataOverhead + int64(len(o.userValues))*valueSize
	case *Thread:
		return threadOverhead + int64(len(o.stack))*valueSize
	}
	return 0
}

// sweepStep sweeps up to n objects and reports whether sweeping finished.
func (g *collector) sweepStep(n int) bool {
	dead := g.otherWhite()
	for ; n > 0 && g.sweepRead < len(g.objects); n-- {
		o := g.objects[g.sweepRead]
		g.sweepRead++
		h := o.header()
		size := objectSize(o)
		if h.mark&dead != 0 {
			if s, ok := o.(*String); ok && s.short {
				g.rt.strings.remove(s)
			}
			g.total -= size
			continue
		}
		h.mark = g.currentWhite
		g.estimate += size
		g.objects[g.sweepKept] = o
		g.sweepKept++
	}
	if g.sweepRead < len(g.objects) {
		return false
	}
	clear(g.objects[g.sweepKept:])
	g.objects = g.objects[:g.sweepKept]
	return true
}

// callFinalizer runs one pending __gc metamethod in protected mode.
func (g *collector) callFinalizer(t *Thread) {
	o := g.tobefnz[0]
	g.tobefnz = g.tobefnz[1:]
	var v Value
	var mt *Table
	switch o := o.(type) {
	case *Table:
		v, mt = tableValue(o), o.meta
	case *Userdata:
		v, mt = userdataValue(o), o.meta
	default:
		return
	}
	if mt == nil {
		return
	}
	tm := mt.getStr(g.rt.tmNames[tmGC])
	if tm.IsNil() {
		return
	}
	if err := t.callFinalizer(tm, v); err != nil {
		gcLog.Warningf("error in __gc metamethod: %s", err)
	}
}

// ---------------------------------------------------------------------------
// Driving the collector
// ---------------------------------------------------------------------------

// singleStep advances the collector by one unit and returns the work done.
func (g *collector) singleStep(t *Thread) int64 {
	switch g.state {
	case gcsPause:
		g.gray = g.gray[:0]
		g.grayAgain = nil
		g.weak = g.weak[:0]
		g.protoEpoch++
		g.markRoots()
		g.state = gcsPropagate
		return 1
	case gcsPropagate:
		if len(g.gray) == 0 {
			g.atomic()
			return gcStepSize
		}
		return g.propagate()
	case gcsSweep:
		if g.sweepStep(100) {
			g.state = gcsCallFin
		}
		return 100 * sweepCost
	case gcsCallFin:
		if len(g.tobefnz) > 0 && t != nil {
			g.callFinalizer(t)
			return gcStepSize / 4
		}
		g.finishCycle()
		return 0
	}
	return 0
}

func (g *collector) finishCycle() {
	g.state = gcsPause
	g.cycles++
	threshold := g.estimate / 100 * int64(g.pause)
	if threshold < g.estimate {
		threshold = g.estimate
	}
	g.debt = g.total - threshold
	if g.debt > -gcStepSize {
		g.debt = -gcStepSize
	}
	gcLog.Debugf("runtime %s: cycle %d complete, %d objects, ~%d bytes live",
		g.rt.id, g.cycles, len(g.objects), g.estimate)
}

// step performs one incremental step proportional to the step multiplier.
func (g *collector) step(t *Thread) {
	if g.stopped || g.inStep {
		return
	}
	g.inStep = true
	defer func() { g.inStep = false }()
	work := int64(gcStepSize) * int64(g.stepMul) / 100
	if work < gcStepSize/8 {
		work = gcStepSize / 8
	}
	for work > 0 {
		work -= g.singleStep(t)
		if g.state == gcsPause {
			return
		}
	}
	g.debt = -gcStepSize
}

// fullCollect finishes any cycle in progress and runs a complete one.
func (g *collector) fullCollect(t *Thread) {
	if g.inStep {
		return
	}
	g.inStep = true
	defer func() { g.inStep = false }()
	for g.state != gcsPause {
		g.singleStep(t)
	}
	g.singleStep(t)
	for g.state != gcsPause {
		g.singleStep(t)
	}
}

// runAllFinalizers calls __gc for every object still pending, used when the
// runtime closes.
func (g *collector) runAllFinalizers(t *Thread) {
	for _, o := range g.objects {
		if h := o.header(); h.fin == finPending {
			h.fin = finDone
			g.tobefnz = append(g.tobefnz, o)
		}
	}
	for len(g.tobefnz) > 0 {
		g.callFinalizer(t)
	}
}

// ---------------------------------------------------------------------------
// Control interface
// ---------------------------------------------------------------------------

// GCOption selects a collector operation for Thread.GC.
type GCOption int

const (
	GCStop GCOption = iota
	GCRestart
	GCCollect
	GCCount
	GCCountBytes
	GCStep
	GCSetPause
	GCSetStepMul
	GCIsRunning
)

// GC controls the collector. Its result depends on the option: the previous
// parameter for the setters, kilobytes or bytes in use for the counts, 1 when
// a step finished a cycle, and 1 or 0 for GCIsRunning.
func (t *Thread) GC(what GCOption, arg int) int {
	g := &t.rt.gc
	switch what {
	case GCStop:
		g.stopped = true
	case GCRestart:
		g.stopped = false
		g.debt = 0
	case GCCollect:
		g.fullCollect(t)
	case GCCount:
		return int(g.total >> 10)
	case GCCountBytes:
		return int(g.total)
	case GCStep:
		before := g.cycles
		if arg <= 0 {
			g.debt = 0
			g.step(t)
		} else {
			g.debt += int64(arg) * 1024
			for g.debt > 0 && !g.stopped {
				g.step(t)
				if g.cycles != before {
					break
				}
			}
		}
		if g.cycles != before {
			return 1
		}
	case GCSetPause:
		old := g.pause
		g.pause = arg
		return old
	case GCSetStepMul:
		old := g.stepMul
		g.stepMul = arg
		return old
	case GCIsRunning:
		if g.stopped {
			return 0
		}
		return 1
	}
	return 0
}

// checkGC runs a step when allocation debt is positive and enforces the
// memory limit. Callers must have every live value anchored on the stack.
func (t *Thread) checkGC() {
	g := &t.rt.gc
	if g.debt > 0 {
		g.step(t)
	}
	if g.limit > 0 && g.total > g.limit && !g.inStep {
		g.fullCollect(t)
		if g.total > g.limit {
			t.throwMemory()
		}
	}
}
