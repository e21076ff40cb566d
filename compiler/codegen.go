package compiler

import (
	"fmt"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Code generator: AST to vm.Prototype
// ---------------------------------------------------------------------------

// generator holds state shared by all functions of one chunk.
type generator struct {
	chunkname string
	line      int // line attached to emitted instructions
}

func (g *generator) errorf(format string, args ...any) {
	panic(&SyntaxError{Chunk: g.chunkname, Line: g.line, Msg: fmt.Sprintf(format, args...)})
}

// activeVar is a declared local variable of the function being compiled.
type activeVar struct {
	name   string
	attrib Attrib
	locIdx int // index into Prototype.LocVars
}

// blockScope tracks one lexical block.
type blockScope struct {
	previous *blockScope
	nactvar  int  // active locals outside the block
	upval    bool // some local of the block is captured by a closure
	hasTBC   bool // the block declares a to-be-closed variable
	isLoop   bool
	breaks   int  // pending break jumps (loops only)
	closeOut bool // an inner block needs closing when a break leaves it
}

func (bl *blockScope) needsClose() bool { return bl.upval || bl.hasTBC }

// funcState is the per-function code generation state.
type funcState struct {
	f          *vm.Prototype
	prev       *funcState
	g          *generator
	bl         *blockScope
	lastTarget int
	jpc        int // jumps pending to the next instruction
	kcache     map[constKey]int
	nactvar    int
	freeReg    int
	actives    []activeVar // first nactvar are in scope; the rest are pending
	upConst    []bool      // upvalue refers to a const or close variable
}

func (g *generator) openFunc(prev *funcState, line int) *funcState {
	fs := &funcState{
		f:      &vm.Prototype{Source: g.chunkname, LineDefined: line, MaxStack: 2},
		prev:   prev,
		g:      g,
		jpc:    noJump,
		kcache: make(map[constKey]int),
	}
	fs.enterBlock(&blockScope{}, false)
	return fs
}

func (fs *funcState) closeFunc() *vm.Prototype {
	fs.ret(0, 0)
	fs.leaveBlock()
	return fs.f
}

// ---------------------------------------------------------------------------
// Variables and scopes
// ---------------------------------------------------------------------------

func (fs *funcState) newLocalVar(name string, attrib Attrib) {
	if len(fs.actives)+1 > maxVars {
		fs.errorLimit(maxVars, "local variables")
	}
	fs.f.LocVars = append(fs.f.LocVars, vm.LocVar{Name: name})
	fs.actives = append(fs.actives, activeVar{name: name, attrib: attrib, locIdx: len(fs.f.LocVars) - 1})
}

func (fs *funcState) errorLimit(limit int, what string) {
	where := "main function"
	if line := fs.f.LineDefined; line != 0 {
		where = fmt.Sprintf("function at line %d", line)
	}
	fs.g.errorf("too many %s (limit is %d) in %s", what, limit, where)
}

// adjustLocalVars brings the next n pending locals into scope.
func (fs *funcState) adjustLocalVars(n int) {
	pc := fs.pc()
	for ; n > 0; n-- {
		fs.f.LocVars[fs.actives[fs.nactvar].locIdx].StartPC = pc
		fs.nactvar++
	}
}

func (fs *funcState) removeVars(level int) {
	pc := fs.pc()
	for fs.nactvar > level {
		fs.nactvar--
		fs.f.LocVars[fs.actives[fs.nactvar].locIdx].EndPC = pc
	}
	fs.actives = fs.actives[:level]
}

func (fs *funcState) enterBlock(bl *blockScope, isLoop bool) {
	bl.isLoop = isLoop
	bl.nactvar = fs.nactvar
	bl.breaks = noJump
	bl.previous = fs.bl
	fs.bl = bl
}

func (fs *funcState) leaveBlock() {
	bl := fs.bl
	if bl.isLoop {
		fs.patchToHere(bl.breaks)
	}
	if bl.previous != nil {
		if bl.needsClose() || (bl.isLoop && bl.closeOut && bl.breaks != noJump) {
			fs.codeABC(vm.OpClose, bl.nactvar, 0, 0)
		}
		if bl.needsClose() && !bl.isLoop {
			for outer := bl.previous; outer != nil; outer = outer.previous {
				if outer.isLoop {
					outer.closeOut = true
					break
				}
			}
		}
	}
	fs.bl = bl.previous
	fs.removeVars(bl.nactvar)
	fs.freeReg = fs.nactvar
}

// insideTBC reports whether a to-be-closed variable is in scope.
func (fs *funcState) insideTBC() bool {
	for bl := fs.bl; bl != nil; bl = bl.previous {
		if bl.hasTBC {
			return true
		}
	}
	return false
}

func (fs *funcState) searchVar(name string) int {
	for i := fs.nactvar - 1; i >= 0; i-- {
		if fs.actives[i].name == name {
			return i
		}
	}
	return -1
}

// markUpval flags the block owning local level as captured.
func (fs *funcState) markUpval(level int) {
	bl := fs.bl
	for bl.nactvar > level {
		bl = bl.previous
	}
	bl.upval = true
}

func (fs *funcState) searchUpvalue(name string) int {
	for i, uv := range fs.f.Upvalues {
		if uv.Name == name {
			return i
		}
	}
	return -1
}

func (fs *funcState) newUpvalue(name string, v *expDesc, isConst bool) int {
	if len(fs.f.Upvalues) >= maxUpvals {
		fs.errorLimit(maxUpvals, "upvalues")
	}
	fs.f.Upvalues = append(fs.f.Upvalues, vm.UpvalueDesc{
		Name:    name,
		InStack: v.k == kLocal,
		Index:   uint8(v.info),
	})
	fs.upConst = append(fs.upConst, isConst)
	return len(fs.f.Upvalues) - 1
}

// singleVarAux resolves name in fs and its enclosing functions. It leaves v
// as kVoid for globals and reports whether the variable is read-only.
func singleVarAux(fs *funcState, name string, v *expDesc, base bool) bool {
	if fs == nil {
		v.init(kVoid, 0)
		return false
	}
	if i := fs.searchVar(name); i >= 0 {
		v.init(kLocal, i)
		if !base {
			fs.markUpval(i)
		}
		return fs.actives[i].attrib != AttribNone
	}
	idx := fs.searchUpvalue(name)
	if idx < 0 {
		ro := singleVarAux(fs.prev, name, v, false)
		if v.k == kVoid {
			return false
		}
		idx = fs.newUpvalue(name, v, ro)
	}
	v.init(kUpval, idx)
	return fs.upConst[idx]
}

// singleVar resolves a name, turning globals into _ENV[name].
func (fs *funcState) singleVar(name string, v *expDesc) bool {
	ro := singleVarAux(fs, name, v, true)
	if v.k == kVoid {
		singleVarAux(fs, "_ENV", v, true)
		fs.exp2AnyRegUp(v)
		key := newExp(kK, fs.stringK(name))
		fs.indexed(v, &key)
		return false
	}
	return ro
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// function compiles a function constructor into v.
func (fs *funcState) function(fe *FunctionExpr, v *expDesc) {
	child := fs.g.openFunc(fs, Line(fe))
	for _, name := range fe.Params {
		child.newLocalVar(name, AttribNone)
	}
	child.adjustLocalVars(len(fe.Params))
	child.f.NumParams = uint8(child.nactvar)
	child.f.IsVararg = fe.IsVararg
	child.reserveRegs(child.nactvar)
	child.statList(fe.Body)
	end := fe.Body.SpanVal.End.Line
	child.f.LastLineDefined = end
	fs.g.line = end
	p := child.closeFunc()

	fs.f.Protos = append(fs.f.Protos, p)
	if len(fs.f.Protos) > vm.MaxArgBx {
		fs.errorLimit(vm.MaxArgBx, "functions")
	}
	fs.g.line = Line(fe)
	v.init(kReloc, fs.codeABx(vm.OpClosure, 0, len(fs.f.Protos)-1))
	fs.exp2NextReg(v)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (fs *funcState) expr(e Expr, v *expDesc) {
	fs.g.line = Line(e)
	switch n := e.(type) {
	case *NilLiteral:
		v.init(kNil, 0)
	case *BoolLiteral:
		if n.Value {
			v.init(kTrue, 0)
		} else {
			v.init(kFalse, 0)
		}
	case *IntLiteral:
		v.init(kKInt, 0)
		v.ival = n.Value
	case *FloatLiteral:
		v.init(kKFlt, 0)
		v.nval = n.Value
	case *StringLiteral:
		v.init(kK, fs.stringK(n.Value))
	case *VarargExpr:
		v.init(kVararg, fs.codeABC(vm.OpVararg, 0, 1, 0))
	case *TableExpr:
		fs.constructor(n, v)
	case *FunctionExpr:
		fs.function(n, v)
	case *NameExpr:
		fs.singleVar(n.Name, v)
	case *IndexExpr:
		fs.expr(n.Obj, v)
		fs.exp2AnyRegUp(v)
		var k expDesc
		fs.expr(n.Key, &k)
		fs.exp2Val(&k)
		fs.indexed(v, &k)
	case *CallExpr:
		fs.expr(n.Fn, v)
		fs.exp2NextReg(v)
		fs.funcArgs(v, n.Args, Line(n))
	case *MethodCall:
		fs.expr(n.Obj, v)
		key := newExp(kK, fs.stringK(n.Name))
		fs.self(v, &key)
		fs.funcArgs(v, n.Args, Line(n))
	case *ParenExpr:
		fs.expr(n.Inner, v)
		fs.dischargeVars(v)
	case *UnaryExpr:
		fs.expr(n.Operand, v)
		fs.prefix(n.Op, v, Line(n))
	case *BinaryExpr:
		fs.expr(n.Left, v)
		fs.infix(n.Op, v)
		var v2 expDesc
		fs.expr(n.Right, &v2)
		fs.posfix(n.Op, v, &v2, n.OpLine)
	default:
		fs.g.errorf("unexpected expression %T", e)
	}
}

// exprList compiles a list of expressions, leaving all but the last in
// consecutive registers. It returns the number of expressions.
func (fs *funcState) exprList(list []Expr, v *expDesc) int {
	for i, e := range list {
		if i > 0 {
			fs.exp2NextReg(v)
		}
		fs.expr(e, v)
	}
	return len(list)
}

func (fs *funcState) funcArgs(f *expDesc, args []Expr, line int) {
	var a expDesc
	if len(args) == 0 {
		a.init(kVoid, 0)
	} else {
		fs.exprList(args, &a)
		if hasMultRet(a.k) {
			fs.setMultRet(&a)
		}
	}
	base := f.info
	nparams := vm.MultRet
	if !hasMultRet(a.k) {
		if a.k != kVoid {
			fs.exp2NextReg(&a)
		}
		nparams = fs.freeReg - (base + 1)
	}
	fs.g.line = line
	f.init(kCall, fs.codeABC(vm.OpCall, base, nparams+1, 2))
	fs.fixLine(line)
	fs.freeReg = base + 1
}

// constructor compiles a table constructor.
func (fs *funcState) constructor(n *TableExpr, t *expDesc) {
	pc := fs.codeABC(vm.OpNewTable, 0, 0, 0)
	t.init(kReloc, pc)
	fs.exp2NextReg(t)

	var item expDesc
	item.init(kVoid, 0)
	na, nh, tostore := 0, 0, 0
	for _, field := range n.Fields {
		// Flush the previous list item.
		if item.k != kVoid {
			fs.exp2NextReg(&item)
			item.init(kVoid, 0)
			if tostore == vm.FieldsPerFlush {
				fs.setList(t.info, na, tostore)
				tostore = 0
			}
		}
		if field.Key == nil {
			fs.expr(field.Value, &item)
			na++
			tostore++
			continue
		}
		nh++
		reg := fs.freeReg
		var key, val expDesc
		fs.expr(field.Key, &key)
		fs.exp2Val(&key)
		rkkey := fs.exp2RK(&key)
		fs.expr(field.Value, &val)
		fs.codeABC(vm.OpSetTable, t.info, rkkey, fs.exp2RK(&val))
		fs.freeReg = reg
	}
	if tostore > 0 {
		if hasMultRet(item.k) {
			fs.setMultRet(&item)
			fs.setList(t.info, na, vm.MultRet)
			na--
		} else {
			if item.k != kVoid {
				fs.exp2NextReg(&item)
			}
			fs.setList(t.info, na, tostore)
		}
	}
	fs.f.Code[pc] = fs.f.Code[pc].SetB(min(na, vm.MaxArgB)).SetC(min(nh, vm.MaxArgC))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fs *funcState) statList(b *Block) {
	for _, s := range b.Stmts {
		fs.statement(s)
		fs.freeReg = fs.nactvar
	}
}

func (fs *funcState) block(b *Block) {
	bl := &blockScope{}
	fs.enterBlock(bl, false)
	fs.statList(b)
	fs.leaveBlock()
}

func (fs *funcState) statement(s Stmt) {
	fs.g.line = Line(s)
	switch n := s.(type) {
	case *LocalStmt:
		fs.localStat(n)
	case *AssignStmt:
		fs.assignStat(n)
	case *CallStmt:
		var v expDesc
		fs.expr(n.Call, &v)
		*fs.instr(&v) = fs.instr(&v).SetC(1)
	case *DoStmt:
		fs.block(n.Body)
	case *WhileStmt:
		fs.whileStat(n)
	case *RepeatStmt:
		fs.repeatStat(n)
	case *IfStmt:
		fs.ifStat(n)
	case *NumericForStmt:
		fs.numericFor(n)
	case *GenericForStmt:
		fs.genericFor(n)
	case *FunctionStmt:
		fs.funcStat(n)
	case *LocalFunctionStmt:
		fs.newLocalVar(n.Name, AttribNone)
		fs.adjustLocalVars(1)
		var b expDesc
		fs.function(n.Func, &b)
		// Debug information only starts once the closure exists.
		fs.f.LocVars[fs.actives[fs.nactvar-1].locIdx].StartPC = fs.pc()
	case *ReturnStmt:
		fs.retStat(n)
	case *BreakStmt:
		fs.breakStat()
	default:
		fs.g.errorf("unexpected statement %T", s)
	}
}

// adjustAssign makes nexps values fill nvars registers.
func (fs *funcState) adjustAssign(nvars, nexps int, e *expDesc) {
	extra := nvars - nexps
	if hasMultRet(e.k) {
		extra++
		if extra < 0 {
			extra = 0
		}
		fs.setReturns(e, extra)
		if extra > 1 {
			fs.reserveRegs(extra - 1)
		}
	} else {
		if e.k != kVoid {
			fs.exp2NextReg(e)
		}
		if extra > 0 {
			reg := fs.freeReg
			fs.reserveRegs(extra)
			fs.loadNil(reg, extra)
		}
	}
	if nexps > nvars {
		fs.freeReg -= nexps - nvars
	}
}

func (fs *funcState) localStat(n *LocalStmt) {
	toclose := -1
	for i, name := range n.Names {
		fs.newLocalVar(name, n.Attribs[i])
		if n.Attribs[i] == AttribClose {
			toclose = i
		}
	}
	var e expDesc
	nexps := 0
	if len(n.Exprs) > 0 {
		nexps = fs.exprList(n.Exprs, &e)
	} else {
		e.init(kVoid, 0)
	}
	nvars := len(n.Names)
	fs.adjustAssign(nvars, nexps, &e)
	fs.adjustLocalVars(nvars)
	if toclose >= 0 {
		fs.bl.hasTBC = true
		fs.g.line = Line(n)
		fs.codeABC(vm.OpTBC, fs.nactvar-nvars+toclose, 0, 0)
	}
}

// checkConflict copies a local or upvalue about to be assigned when an
// earlier target of the same assignment uses it as table or key.
func (fs *funcState) checkConflict(targets []expDesc, v *expDesc) {
	extra := fs.freeReg
	conflict := false
	for i := range targets {
		lh := &targets[i]
		if lh.k != kIndexed {
			continue
		}
		if lh.indVt == v.k && lh.indT == v.info {
			conflict = true
			lh.indVt = kLocal
			lh.indT = extra
		}
		if v.k == kLocal && lh.indIdx == v.info {
			conflict = true
			lh.indIdx = extra
		}
	}
	if conflict {
		if v.k == kLocal {
			fs.codeABC(vm.OpMove, extra, v.info, 0)
		} else {
			fs.codeABC(vm.OpGetUpval, extra, v.info, 0)
		}
		fs.reserveRegs(1)
	}
}

func (fs *funcState) checkReadOnly(target Expr, ro bool) {
	if ro {
		fs.g.errorf("attempt to assign to const variable '%s'", target.(*NameExpr).Name)
	}
}

// assignTarget compiles an assignment target into v.
func (fs *funcState) assignTarget(target Expr, v *expDesc) {
	if name, ok := target.(*NameExpr); ok {
		fs.g.line = Line(name)
		fs.checkReadOnly(name, fs.singleVar(name.Name, v))
		return
	}
	fs.expr(target, v)
}

func (fs *funcState) assignStat(n *AssignStmt) {
	targets := make([]expDesc, len(n.Targets))
	for i, t := range n.Targets {
		fs.assignTarget(t, &targets[i])
		if targets[i].k != kIndexed {
			fs.checkConflict(targets[:i], &targets[i])
		}
	}
	var e expDesc
	nvars := len(targets)
	nexps := fs.exprList(n.Exprs, &e)
	fs.g.line = Line(n)
	last := nvars - 1
	if nexps != nvars {
		fs.adjustAssign(nvars, nexps, &e)
		e = newExp(kNonReloc, fs.freeReg-1)
	} else {
		fs.setOneRet(&e)
	}
	fs.storeVar(&targets[last], &e)
	for i := last - 1; i >= 0; i-- {
		e = newExp(kNonReloc, fs.freeReg-1)
		fs.storeVar(&targets[i], &e)
	}
}

// cond compiles a condition and returns its false-exit jump list.
func (fs *funcState) cond(e Expr) int {
	var v expDesc
	fs.expr(e, &v)
	if v.k == kNil {
		v.k = kFalse
	}
	fs.goIfTrue(&v)
	return v.f
}

func (fs *funcState) whileStat(n *WhileStmt) {
	whileInit := fs.getLabel()
	condExit := fs.cond(n.Cond)
	bl := &blockScope{}
	fs.enterBlock(bl, true)
	fs.block(n.Body)
	fs.g.line = Line(n)
	fs.patchList(fs.jump(), whileInit)
	fs.leaveBlock()
	fs.patchToHere(condExit)
}

func (fs *funcState) repeatStat(n *RepeatStmt) {
	repeatInit := fs.getLabel()
	loop, scope := &blockScope{}, &blockScope{}
	fs.enterBlock(loop, true)
	fs.enterBlock(scope, false)
	fs.statList(n.Body)
	condExit := fs.cond(n.Cond)
	fs.leaveBlock()
	if scope.needsClose() {
		// The jump back must close the body's variables too.
		exit := fs.jump()
		fs.patchToHere(condExit)
		fs.codeABC(vm.OpClose, scope.nactvar, 0, 0)
		condExit = fs.jump()
		fs.patchToHere(exit)
	}
	fs.patchList(condExit, repeatInit)
	fs.leaveBlock()
}

func (fs *funcState) ifStat(n *IfStmt) {
	escape := noJump
	for i, c := range n.Conds {
		jf := fs.cond(c)
		fs.block(n.Blocks[i])
		if i < len(n.Conds)-1 || n.Else != nil {
			fs.concatJumps(&escape, fs.jump())
		}
		fs.patchToHere(jf)
	}
	if n.Else != nil {
		fs.block(n.Else)
	}
	fs.patchToHere(escape)
}

// forBody compiles the body of either kind of for loop. base is the first
// internal register; the loop's own variables start at base+4 for generic
// loops and base+3 for numeric ones.
func (fs *funcState) forBody(body *Block, nvars int) {
	bl := &blockScope{}
	fs.enterBlock(bl, false)
	fs.adjustLocalVars(nvars)
	fs.reserveRegs(nvars)
	fs.statList(body)
	fs.leaveBlock()
}

func (fs *funcState) numericFor(n *NumericForStmt) {
	line := Line(n)
	loop := &blockScope{}
	fs.enterBlock(loop, true)
	base := fs.freeReg
	fs.newLocalVar("(for index)", AttribNone)
	fs.newLocalVar("(for limit)", AttribNone)
	fs.newLocalVar("(for step)", AttribNone)
	fs.newLocalVar(n.Var, AttribNone)

	var e expDesc
	fs.expr(n.Start, &e)
	fs.exp2NextReg(&e)
	fs.expr(n.Limit, &e)
	fs.exp2NextReg(&e)
	if n.Step != nil {
		fs.expr(n.Step, &e)
		fs.exp2NextReg(&e)
	} else {
		fs.g.line = line
		fs.codeK(fs.freeReg, fs.intK(1))
		fs.reserveRegs(1)
	}
	fs.adjustLocalVars(3)

	fs.g.line = line
	prep := fs.codeABx(vm.OpForPrep, base, 0)
	fs.forBody(n.Body, 1)
	fs.g.line = line
	end := fs.codeABx(vm.OpForLoop, base, 0)
	fs.f.Code[prep] = vm.CreateABx(vm.OpForPrep, base, end-prep)
	fs.f.Code[end] = vm.CreateABx(vm.OpForLoop, base, end-prep)
	fs.leaveBlock()
}

func (fs *funcState) genericFor(n *GenericForStmt) {
	line := Line(n)
	loop := &blockScope{}
	fs.enterBlock(loop, true)
	base := fs.freeReg
	fs.newLocalVar("(for generator)", AttribNone)
	fs.newLocalVar("(for state)", AttribNone)
	fs.newLocalVar("(for control)", AttribNone)
	fs.newLocalVar("(for closing)", AttribNone)
	for _, name := range n.Names {
		fs.newLocalVar(name, AttribNone)
	}

	var e expDesc
	fs.adjustAssign(4, fs.exprList(n.Exprs, &e), &e)
	fs.adjustLocalVars(4)
	fs.checkStack(3) // room for the generator call
	fs.g.line = line
	loop.hasTBC = true
	fs.codeABC(vm.OpTBC, base+3, 0, 0)
	prep := fs.jump()
	fs.forBody(n.Body, len(n.Names))
	fs.g.line = line
	fs.patchToHere(prep)
	fs.codeABC(vm.OpTForCall, base, 0, len(n.Names))
	end := fs.codeABx(vm.OpTForLoop, base, 0)
	fs.f.Code[end] = vm.CreateABx(vm.OpTForLoop, base, end-prep)
	fs.leaveBlock()
}

func (fs *funcState) funcStat(n *FunctionStmt) {
	var v, b expDesc
	fs.assignTarget(n.Target, &v)
	fs.function(n.Func, &b)
	fs.g.line = Line(n)
	fs.storeVar(&v, &b)
	fs.fixLine(Line(n))
}

func (fs *funcState) retStat(n *ReturnStmt) {
	first := fs.nactvar
	nret := len(n.Exprs)
	if nret > 0 {
		var e expDesc
		fs.exprList(n.Exprs, &e)
		switch {
		case hasMultRet(e.k):
			fs.setMultRet(&e)
			if e.k == kCall && nret == 1 && !fs.insideTBC() {
				i := fs.instr(&e)
				*i = vm.CreateABC(vm.OpTailCall, i.A(), i.B(), i.C())
			}
			nret = vm.MultRet
		case nret == 1:
			first = fs.exp2AnyReg(&e)
		default:
			fs.exp2NextReg(&e)
		}
	}
	fs.g.line = Line(n)
	fs.ret(first, nret)
}

func (fs *funcState) breakStat() {
	bl := fs.bl
	for bl != nil && !bl.isLoop {
		bl = bl.previous
	}
	if bl == nil {
		fs.g.errorf("break outside a loop at line %d", fs.g.line)
	}
	fs.concatJumps(&bl.breaks, fs.jump())
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Generate compiles a parsed chunk into its main function prototype. The
// main function is vararg and has _ENV as its only upvalue.
func Generate(chunk *Chunk) (proto *vm.Prototype, err error) {
	g := &generator{chunkname: chunk.Name}
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			proto, err = nil, se
		}
	}()
	fs := g.openFunc(nil, 0)
	fs.f.IsVararg = true
	fs.f.Upvalues = []vm.UpvalueDesc{{Name: "_ENV", InStack: true, Index: 0}}
	fs.upConst = []bool{false}
	fs.statList(chunk.Body)
	g.line = chunk.Body.SpanVal.End.Line
	return fs.closeFunc(), nil
}

// Compile parses and compiles source text. It has the signature expected by
// (*vm.Runtime).UseCompiler.
func Compile(src []byte, chunkname string) (*vm.Prototype, error) {
	chunk, err := Parse(string(src), chunkname)
	if err != nil {
		return nil, err
	}
	return Generate(chunk)
}
