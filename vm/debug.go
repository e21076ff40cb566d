package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Operand locations for error messages
// ---------------------------------------------------------------------------

// operand locates the value an error message talks about: a stack slot
// (>= 0), an upvalue of the running function (<= -2), or nothing.
type operand int

const noOperand operand = -1

func stackOperand(idx int) operand { return operand(idx) }

func upvalOperand(u int) operand { return operand(-2 - u) }

// varInfo describes o as " (kind 'name')" when the running script function
// has a name for it.
func (t *Thread) varInfo(o operand) string {
	ci := t.ci
	if o == noOperand || !ci.isLua() {
		return ""
	}
	p := t.stack[ci.fn].cl().proto
	var kind, name string
	if o <= -2 {
		if u := int(-2 - o); u < len(p.Upvalues) {
			kind, name = "upvalue", p.Upvalues[u].Name
		}
	} else if reg := int(o) - (ci.fn + 1); reg >= 0 && reg < int(p.MaxStack) {
		kind, name = getObjName(p, currentPC(ci), reg)
	}
	if kind == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(" (%s '%s')", kind, name)
}

func currentPC(ci *callInfo) int { return ci.savedpc - 1 }

// getObjName reconstructs a name for register reg at pc by symbolic
// execution of the code before it.
func getObjName(p *Prototype, pc, reg int) (kind, name string) {
	if name = p.localName(reg+1, pc); name != "" {
		return "local", name
	}
	setreg := findSetReg(p, pc, reg)
	if setreg < 0 {
		return "", ""
	}
	i := p.Code[setreg]
	switch i.Op() {
	case OpMove:
		if b := i.B(); b < i.A() {
			return getObjName(p, setreg, b)
		}
	case OpGetTabUp:
		name = rkName(p, setreg, i.C())
		if upvalName(p, i.B()) == "_ENV" {
			return "global", name
		}
		return "field", name
	case OpGetTable:
		name = rkName(p, setreg, i.C())
		if p.localName(i.B()+1, setreg) == "_ENV" {
			return "global", name
		}
		return "field", name
	case OpGetUpval:
		return "upvalue", upvalName(p, i.B())
	case OpLoadK, OpLoadKX:
		b := i.Bx()
		if i.Op() == OpLoadKX && setreg+1 < len(p.Code) {
			b = p.Code[setreg+1].Ax()
		}
		if b < len(p.Constants) && p.Constants[b].IsString() {
			return "constant", p.Constants[b].Str
		}
	case OpSelf:
		return "method", rkName(p, setreg, i.C())
	}
	return "", ""
}

func upvalName(p *Prototype, u int) string {
	if u < len(p.Upvalues) && p.Upvalues[u].Name != "" {
		return p.Upvalues[u].Name
	}
	return "?"
}

func rkName(p *Prototype, pc, c int) string {
	if IsK(c) {
		if k := IndexK(c); k < len(p.Constants) && p.Constants[k].IsString() {
			return p.Constants[k].Str
		}
		return "?"
	}
	if kind, name := getObjName(p, pc, c); kind == "constant" {
		return name
	}
	return "?"
}

// findSetReg returns the last instruction before lastpc that wrote reg,
// or -1 when that write is not on every path to lastpc.
func findSetReg(p *Prototype, lastpc, reg int) int {
	setreg, jmptarget := -1, 0
	filter := func(pc int) int {
		if pc < jmptarget {
			return -1
		}
		return pc
	}
	if lastpc > len(p.Code) {
		lastpc = len(p.Code)
	}
	for pc := 0; pc < lastpc; pc++ {
		i := p.Code[pc]
		a := i.A()
		switch op := i.Op(); op {
		case OpLoadNil:
			if a <= reg && reg <= a+i.B() {
				setreg = filter(pc)
			}
		case OpTForCall:
			if reg >= a+4 {
				setreg = filter(pc)
			}
		case OpCall, OpTailCall:
			if reg >= a {
				setreg = filter(pc)
			}
		case OpJmp:
			dest := pc + 1 + i.SBx()
			if pc < dest && dest <= lastpc && dest > jmptarget {
				jmptarget = dest
			}
		default:
			if op.Valid() && op.Info().SetsA && reg == a {
				setreg = filter(pc)
			}
		}
	}
	return setreg
}

// funcNameFromCall names the function called by the instruction ci is
// suspended at.
func funcNameFromCall(ci *callInfo, p *Prototype) (kind, name string) {
	pc := currentPC(ci)
	if pc < 0 || pc >= len(p.Code) {
		return "", ""
	}
	i := p.Code[pc]
	var tm tmEvent
	switch i.Op() {
	case OpCall, OpTailCall:
		return getObjName(p, pc, i.A())
	case OpTForCall:
		return "for iterator", "for iterator"
	case OpSelf, OpGetTabUp, OpGetTable:
		tm = tmIndex
	case OpSetTabUp, OpSetTable:
		tm = tmNewIndex
	case OpAdd, OpSub, OpMul, OpMod, OpPow, OpDiv, OpIDiv,
		OpBAnd, OpBOr, OpBXor, OpShl, OpShr:
		tm = tmAdd + tmEvent(i.Op()-OpAdd)
	case OpUnm:
		tm = tmUnm
	case OpBNot:
		tm = tmBNot
	case OpLen:
		tm = tmLen
	case OpConcat:
		tm = tmConcat
	case OpEq:
		tm = tmEq
	case OpLt:
		tm = tmLt
	case OpLe:
		tm = tmLe
	case OpClose, OpReturn, OpJmp:
		tm = tmClose
	default:
		return "", ""
	}
	return "metamethod", tmNameStrings[tm][2:]
}

// ---------------------------------------------------------------------------
// Frame inspection
// ---------------------------------------------------------------------------

// DebugInfo describes one active function.
type DebugInfo struct {
	Source          string
	ShortSource     string
	What            string // "Lua", "main" or "C"
	Name            string
	NameWhat        string // "global", "local", "method", "field", "upvalue", "metamethod" or ""
	CurrentLine     int
	LineDefined     int
	LastLineDefined int
	NumUpvalues     int
	NumParams       int
	IsVararg        bool
	IsTailCall      bool
}

// ciAt returns the frame at level (0 is the running function).
func (t *Thread) ciAt(level int) *callInfo {
	if level < 0 {
		return nil
	}
	ci := t.ci
	for ; level > 0 && ci != &t.baseCI; level-- {
		ci = ci.prev
	}
	if level == 0 && ci != &t.baseCI {
		return ci
	}
	return nil
}

// GetStack describes the function running at level; level 0 is the
// current function, 1 its caller, and so on.
func (t *Thread) GetStack(level int) (DebugInfo, bool) {
	ci := t.ciAt(level)
	if ci == nil {
		return DebugInfo{}, false
	}
	return t.funcInfo(ci), true
}

func (t *Thread) funcInfo(ci *callInfo) DebugInfo {
	var d DebugInfo
	c, _ := t.stack[ci.fn].AsClosure()
	if c == nil || c.proto == nil {
		d.Source, d.ShortSource, d.What = "=[C]", "[C]", "C"
		d.CurrentLine, d.LineDefined, d.LastLineDefined = -1, -1, -1
		if c != nil {
			d.NumUpvalues = len(c.captured)
		}
		d.IsVararg = true
	} else {
		p := c.proto
		d.Source = p.Source
		if d.Source == "" {
			d.Source = "=?"
		}
		d.ShortSource = chunkID(d.Source)
		d.LineDefined, d.LastLineDefined = p.LineDefined, p.LastLineDefined
		d.What = "Lua"
		if p.LineDefined == 0 {
			d.What = "main"
		}
		d.CurrentLine = p.line(currentPC(ci))
		d.NumUpvalues = len(c.upvals)
		d.NumParams = int(p.NumParams)
		d.IsVararg = p.IsVararg
	}
	d.IsTailCall = ci.status&cistTail != 0
	d.NameWhat, d.Name = t.funcName(ci)
	return d
}

func (t *Thread) funcName(ci *callInfo) (kind, name string) {
	switch {
	case ci.status&cistTail != 0:
		return "", ""
	case ci.status&cistFin != 0:
		return "metamethod", "gc"
	}
	prev := ci.prev
	if prev == nil || !prev.isLua() || prev == &t.baseCI {
		return "", ""
	}
	return funcNameFromCall(prev, t.stack[prev.fn].cl().proto)
}

// where returns "chunk:line: " for a script frame and "" otherwise.
func (t *Thread) where(ci *callInfo) string {
	if ci == nil || !ci.isLua() || ci == &t.baseCI {
		return ""
	}
	p := t.stack[ci.fn].cl().proto
	src := "?"
	if p.Source != "" {
		src = chunkID(p.Source)
	}
	if line := p.line(currentPC(ci)); line >= 0 {
		return fmt.Sprintf("%s:%d: ", src, line)
	}
	return src + ":?: "
}

// Where returns the position prefix for the function at level.
func (t *Thread) Where(level int) string {
	return t.where(t.ciAt(level))
}

const idSize = 60

// ChunkID shortens a chunk name for messages the way error positions show
// it.
func ChunkID(source string) string { return chunkID(source) }

// chunkID shortens a chunk name for messages: "=name" is used verbatim,
// "@file" as a file name, anything else as source text.
func chunkID(source string) string {
	switch {
	case strings.HasPrefix(source, "="):
		s := source[1:]
		if len(s) > idSize-1 {
			s = s[:idSize-1]
		}
		return s
	case strings.HasPrefix(source, "@"):
		s := source[1:]
		if len(s) > idSize-1 {
			s = "..." + s[len(s)-(idSize-4):]
		}
		return s
	}
	line := source
	truncated := false
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line, truncated = line[:i], true
	}
	const max = idSize - len(`[string "..."]`) - 1
	if len(line) > max {
		line, truncated = line[:max], true
	}
	if truncated {
		return `[string "` + line + `..."]`
	}
	return `[string "` + line + `"]`
}

// ---------------------------------------------------------------------------
// Tracebacks
// ---------------------------------------------------------------------------

const (
	tracebackHead = 10
	tracebackTail = 11
)

// Traceback renders the call chain from level outward, prefixed by msg.
func (t *Thread) Traceback(msg string, level int) string {
	var frames []*callInfo
	for ci := t.ciAt(level); ci != nil && ci != &t.baseCI; ci = ci.prev {
		frames = append(frames, ci)
	}
	var sb strings.Builder
	if msg != "" {
		sb.WriteString(msg)
		sb.WriteByte('\n')
	}
	sb.WriteString("stack traceback:")
	n := len(frames)
	for i := 0; i < n; i++ {
		if n > tracebackHead+tracebackTail && i == tracebackHead {
			skip := n - tracebackHead - tracebackTail
			fmt.Fprintf(&sb, "\n\t...\t(skipping %d levels)", skip)
			i += skip - 1
			continue
		}
		d := t.funcInfo(frames[i])
		sb.WriteString("\n\t")
		sb.WriteString(d.ShortSource)
		sb.WriteByte(':')
		if d.CurrentLine > 0 {
			fmt.Fprintf(&sb, "%d:", d.CurrentLine)
		}
		sb.WriteString(" in ")
		sb.WriteString(t.describeFunc(frames[i], d))
		if d.IsTailCall {
			sb.WriteString("\n\t(...tail calls...)")
		}
	}
	return sb.String()
}

func (t *Thread) describeFunc(ci *callInfo, d DebugInfo) string {
	if name := t.globalFuncName(t.stack[ci.fn]); name != "" {
		return "function '" + name + "'"
	}
	switch {
	case d.NameWhat != "":
		return d.NameWhat + " '" + d.Name + "'"
	case d.What == "main":
		return "main chunk"
	case d.What != "C":
		return fmt.Sprintf("function <%s:%d>", d.ShortSource, d.LineDefined)
	}
	return "?"
}

// globalFuncName finds fn among the globals or the fields of global
// library tables.
func (t *Thread) globalFuncName(fn Value) string {
	if !fn.IsFunction() {
		return ""
	}
	g := t.rt.Globals()
	found := ""
	g.ForEach(func(k, v Value) bool {
		name, ok := k.AsString()
		if !ok {
			return true
		}
		if v.ref == fn.ref {
			found = name
			return false
		}
		if lib, ok := v.AsTable(); ok && lib != g {
			lib.ForEach(func(k2, v2 Value) bool {
				if field, ok := k2.AsString(); ok && v2.ref == fn.ref {
					found = name + "." + field
					return false
				}
				return true
			})
		}
		return found == ""
	})
	return found
}
