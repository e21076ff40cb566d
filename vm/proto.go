package vm

import (
	"fmt"
	"slices"
	"strconv"
)

// ---------------------------------------------------------------------------
// Constant: plain-data constant pool entry
// ---------------------------------------------------------------------------

// ConstKind is the kind of a constant pool entry.
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Constant is a constant pool entry as produced by the compiler or read from
// a binary chunk. Constants are linked to runtime Values when a prototype is
// loaded into a runtime.
type Constant struct {
	Kind  ConstKind `cbor:"1,keyasint"`
	Bool  bool      `cbor:"2,keyasint,omitempty"`
	Int   int64     `cbor:"3,keyasint,omitempty"`
	Float float64   `cbor:"4,keyasint,omitempty"`
	Str   string    `cbor:"5,keyasint,omitempty"`
}

// NilConstant, BoolConstant, IntConstant, FloatConstant and StringConstant
// build constants of each kind.
func NilConstant() Constant               { return Constant{Kind: ConstNil} }
func BoolConstant(b bool) Constant        { return Constant{Kind: ConstBool, Bool: b} }
func IntConstant(i int64) Constant        { return Constant{Kind: ConstInt, Int: i} }
func FloatConstant(f float64) Constant    { return Constant{Kind: ConstFloat, Float: f} }
func StringConstant(s string) Constant    { return Constant{Kind: ConstString, Str: s} }
func (c Constant) IsString() bool         { return c.Kind == ConstString }
func (c Constant) Equal(o Constant) bool  { return c == o }

// String renders the constant the way a listing shows it.
func (c Constant) String() string {
	switch c.Kind {
	case ConstBool:
		return strconv.FormatBool(c.Bool)
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return numberToString(Float(c.Float))
	case ConstString:
		return strconv.Quote(c.Str)
	}
	return "nil"
}

// ---------------------------------------------------------------------------
// Prototype: immutable compiled function
// ---------------------------------------------------------------------------

// UpvalueDesc describes how a closure binds one upvalue when it is created:
// from a register of the enclosing function (InStack) or from one of the
// enclosing closure's own upvalues.
type UpvalueDesc struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	InStack bool   `cbor:"2,keyasint"`
	Index   uint8  `cbor:"3,keyasint"`
}

// LocVar is debug information for a local variable: its register is live
// for instructions in [StartPC, EndPC).
type LocVar struct {
	Name    string `cbor:"1,keyasint"`
	StartPC int    `cbor:"2,keyasint"`
	EndPC   int    `cbor:"3,keyasint"`
}

// Prototype is a compiled function. It is shared by every closure created
// from it and is never mutated after loading.
type Prototype struct {
	Source          string        `cbor:"1,keyasint,omitempty"`
	LineDefined     int           `cbor:"2,keyasint"`
	LastLineDefined int           `cbor:"3,keyasint"`
	NumParams       uint8         `cbor:"4,keyasint"`
	IsVararg        bool          `cbor:"5,keyasint"`
	MaxStack        uint8         `cbor:"6,keyasint"`
	Code            []Instruction `cbor:"7,keyasint"`
	Constants       []Constant    `cbor:"8,keyasint"`
	Upvalues        []UpvalueDesc `cbor:"9,keyasint"`
	Protos          []*Prototype  `cbor:"10,keyasint"`
	LineInfo        []int32       `cbor:"11,keyasint,omitempty"`
	LocVars         []LocVar      `cbor:"12,keyasint,omitempty"`

	k       []Value // linked constants
	rt      *Runtime
	gcEpoch uint32
}

// strip removes debug information recursively.
func (p *Prototype) strip() {
	p.Source = "=?"
	p.LineInfo = nil
	p.LocVars = nil
	for i := range p.Upvalues {
		p.Upvalues[i].Name = ""
	}
	for _, sub := range p.Protos {
		sub.strip()
	}
}

// clone copies the mutable linkage and the upvalue descriptors of p so
// that it can be linked into a second runtime or stripped. Code and
// constants are shared.
func (p *Prototype) clone() *Prototype {
	c := *p
	c.k, c.rt, c.gcEpoch = nil, nil, 0
	c.Upvalues = slices.Clone(p.Upvalues)
	c.Protos = make([]*Prototype, len(p.Protos))
	for i, sub := range p.Protos {
		c.Protos[i] = sub.clone()
	}
	return &c
}

// localName returns the name of the n-th (1-based) local active at pc.
func (p *Prototype) localName(n, pc int) string {
	for _, lv := range p.LocVars {
		if lv.StartPC > pc {
			break
		}
		if pc < lv.EndPC {
			n--
			if n == 0 {
				return lv.Name
			}
		}
	}
	return ""
}

func (p *Prototype) line(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return -1
	}
	return int(p.LineInfo[pc])
}

// validate checks the structural invariants the interpreter relies on
// before executing a prototype from an untrusted source. Operand bounds are
// checked at dispatch.
func (p *Prototype) validate() error {
	if int(p.NumParams) > int(p.MaxStack) {
		return fmt.Errorf("function at line %d: %d parameters exceed frame size %d",
			p.LineDefined, p.NumParams, p.MaxStack)
	}
	if len(p.Code) == 0 {
		return fmt.Errorf("function at line %d: empty code", p.LineDefined)
	}
	if last := p.Code[len(p.Code)-1].Op(); last != OpReturn {
		return fmt.Errorf("function at line %d: code does not end in RETURN", p.LineDefined)
	}
	for i, c := range p.Constants {
		if c.Kind > ConstString {
			return fmt.Errorf("function at line %d: constant %d has bad kind %d", p.LineDefined, i, c.Kind)
		}
	}
	for _, sub := range p.Protos {
		if sub == nil {
			return fmt.Errorf("function at line %d: missing nested function", p.LineDefined)
		}
		if err := sub.validate(); err != nil {
			return err
		}
	}
	return nil
}

// link resolves the constant pool of p and its nested prototypes into
// values owned by rt.
func (rt *Runtime) link(p *Prototype) *Prototype {
	if p.rt != nil && p.rt != rt {
		p = p.clone()
	}
	rt.linkTree(p)
	return p
}

func (rt *Runtime) linkTree(p *Prototype) {
	if p.rt == rt {
		return
	}
	p.k = make([]Value, len(p.Constants))
	for i, c := range p.Constants {
		p.k[i] = rt.constantValue(c)
	}
	p.rt = rt
	for _, sub := range p.Protos {
		rt.linkTree(sub)
	}
}

func (rt *Runtime) constantValue(c Constant) Value {
	switch c.Kind {
	case ConstBool:
		return Bool(c.Bool)
	case ConstInt:
		return Int(c.Int)
	case ConstFloat:
		return Float(c.Float)
	case ConstString:
		return rt.String(c.Str)
	}
	return Nil
}
