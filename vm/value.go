package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Type: the language-visible type of a value
// ---------------------------------------------------------------------------

// Type is the language-level type of a Value.
type Type int8

const (
	TypeNone     Type = -1 // an invalid stack index
	TypeNil      Type = 0
	TypeBoolean  Type = 1
	TypeNumber   Type = 2
	TypeString   Type = 3
	TypeTable    Type = 4
	TypeFunction Type = 5
	TypeUserdata Type = 6
	TypeThread   Type = 7

	numTypes = 8
)

var typeNames = [...]string{
	TypeNil:      "nil",
	TypeBoolean:  "boolean",
	TypeNumber:   "number",
	TypeString:   "string",
	TypeTable:    "table",
	TypeFunction: "function",
	TypeUserdata: "userdata",
	TypeThread:   "thread",
}

// String returns the name used by the type() builtin.
func (t Type) String() string {
	if t == TypeNone {
		return "no value"
	}
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ---------------------------------------------------------------------------
// Value: tagged union
// ---------------------------------------------------------------------------

// variant tags; number has two subkinds that share TypeNumber.
const (
	vtNil uint8 = iota
	vtFalse
	vtTrue
	vtInt
	vtFloat
	vtString
	vtTable
	vtFunction
	vtUserdata
	vtThread
)

var variantTypes = [...]Type{
	vtNil:      TypeNil,
	vtFalse:    TypeBoolean,
	vtTrue:     TypeBoolean,
	vtInt:      TypeNumber,
	vtFloat:    TypeNumber,
	vtString:   TypeString,
	vtTable:    TypeTable,
	vtFunction: TypeFunction,
	vtUserdata: TypeUserdata,
	vtThread:   TypeThread,
}

// Value is a tagged union of every value the runtime manipulates.
//
// The zero Value is nil. The variant tag always matches the payload:
// numbers live in n, references live in ref and n is zero. Values are
// immutable; writing a Value into a slot replaces tag and payload together.
type Value struct {
	vt  uint8
	n   uint64
	ref object
}

// Nil is the nil value.
var Nil = Value{}

// Predeclared booleans.
var (
	True  = Value{vt: vtTrue}
	False = Value{vt: vtFalse}
)

// Bool returns the boolean value b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Int returns an integer number value.
func Int(i int64) Value {
	return Value{vt: vtInt, n: uint64(i)}
}

// Float returns a float number value.
func Float(f float64) Value {
	return Value{vt: vtFloat, n: math.Float64bits(f)}
}

func stringValue(s *String) Value     { return Value{vt: vtString, ref: s} }
func tableValue(t *Table) Value       { return Value{vt: vtTable, ref: t} }
func functionValue(c *Closure) Value  { return Value{vt: vtFunction, ref: c} }
func userdataValue(u *Userdata) Value { return Value{vt: vtUserdata, ref: u} }
func threadValue(t *Thread) Value     { return Value{vt: vtThread, ref: t} }

// TableValue wraps a table reference.
func TableValue(t *Table) Value {
	if t == nil {
		return Nil
	}
	return tableValue(t)
}

// FunctionValue wraps a closure reference.
func FunctionValue(c *Closure) Value {
	if c == nil {
		return Nil
	}
	return functionValue(c)
}

// Type returns the language-level type.
func (v Value) Type() Type { return variantTypes[v.vt] }

// TypeName returns the name of v's type.
func (v Value) TypeName() string { return v.Type().String() }

func (v Value) IsNil() bool      { return v.vt == vtNil }
func (v Value) IsBoolean() bool  { return v.vt == vtTrue || v.vt == vtFalse }
func (v Value) IsNumber() bool   { return v.vt == vtInt || v.vt == vtFloat }
func (v Value) IsInteger() bool  { return v.vt == vtInt }
func (v Value) IsFloat() bool    { return v.vt == vtFloat }
func (v Value) IsString() bool   { return v.vt == vtString }
func (v Value) IsTable() bool    { return v.vt == vtTable }
func (v Value) IsFunction() bool { return v.vt == vtFunction }
func (v Value) IsUserdata() bool { return v.vt == vtUserdata }
func (v Value) IsThread() bool   { return v.vt == vtThread }

// IsFalsy reports whether v is nil or false.
func (v Value) IsFalsy() bool { return v.vt <= vtFalse }

// Truthy reports whether v counts as true in a condition.
func (v Value) Truthy() bool { return v.vt > vtFalse }

// collectable reports whether v references a heap object.
func (v Value) collectable() bool { return v.ref != nil }

// Unchecked payload accessors; callers must have checked the tag.
func (v Value) ival() int64     { return int64(v.n) }
func (v Value) fval() float64   { return math.Float64frombits(v.n) }
func (v Value) str() *String    { return v.ref.(*String) }
func (v Value) tbl() *Table     { return v.ref.(*Table) }
func (v Value) cl() *Closure    { return v.ref.(*Closure) }
func (v Value) ud() *Userdata   { return v.ref.(*Userdata) }
func (v Value) thread() *Thread { return v.ref.(*Thread) }

// AsInteger returns the payload when v has the integer subkind.
func (v Value) AsInteger() (int64, bool) {
	if v.vt != vtInt {
		return 0, false
	}
	return v.ival(), true
}

// AsFloat returns the payload when v has the float subkind.
func (v Value) AsFloat() (float64, bool) {
	if v.vt != vtFloat {
		return 0, false
	}
	return v.fval(), true
}

// AsNumber returns any number value as a float64 without string coercion.
func (v Value) AsNumber() (float64, bool) {
	switch v.vt {
	case vtInt:
		return float64(v.ival()), true
	case vtFloat:
		return v.fval(), true
	}
	return 0, false
}

// AsBool returns the payload of a boolean value.
func (v Value) AsBool() (bool, bool) {
	switch v.vt {
	case vtTrue:
		return true, true
	case vtFalse:
		return false, true
	}
	return false, false
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.vt != vtString {
		return "", false
	}
	return v.str().s, true
}

// AsTable returns the table payload.
func (v Value) AsTable() (*Table, bool) {
	if v.vt != vtTable {
		return nil, false
	}
	return v.tbl(), true
}

// AsClosure returns the function payload.
func (v Value) AsClosure() (*Closure, bool) {
	if v.vt != vtFunction {
		return nil, false
	}
	return v.cl(), true
}

// AsUserdata returns the userdata payload.
func (v Value) AsUserdata() (*Userdata, bool) {
	if v.vt != vtUserdata {
		return nil, false
	}
	return v.ud(), true
}

// AsThread returns the thread payload.
func (v Value) AsThread() (*Thread, bool) {
	if v.vt != vtThread {
		return nil, false
	}
	return v.thread(), true
}

// String formats v for debugging. Scripts observe tostring() instead.
func (v Value) String() string {
	switch v.vt {
	case vtNil:
		return "nil"
	case vtTrue:
		return "true"
	case vtFalse:
		return "false"
	case vtInt, vtFloat:
		return numberToString(v)
	case vtString:
		return v.str().s
	default:
		return fmt.Sprintf("%s: %p", v.TypeName(), v.ref)
	}
}

// ---------------------------------------------------------------------------
// Raw equality
// ---------------------------------------------------------------------------

// RawEqual compares two values without invoking metamethods. Numbers compare
// by mathematical value across subkinds; strings by content; everything
// else by identity.
func RawEqual(a, b Value) bool {
	if a.vt != b.vt {
		if a.vt == vtInt && b.vt == vtFloat {
			return intEqualsFloat(a.ival(), b.fval())
		}
		if a.vt == vtFloat && b.vt == vtInt {
			return intEqualsFloat(b.ival(), a.fval())
		}
		return false
	}
	switch a.vt {
	case vtInt:
		return a.n == b.n
	case vtFloat:
		return a.fval() == b.fval()
	case vtString:
		return a.str().equals(b.str())
	default:
		return a.ref == b.ref
	}
}

func intEqualsFloat(i int64, f float64) bool {
	fi, ok := floatToInteger(f)
	return ok && fi == i
}

// floatToInteger converts f when it has an exact integer representation.
func floatToInteger(f float64) (int64, bool) {
	if math.Floor(f) != f {
		return 0, false
	}
	if f >= -9223372036854775808.0 && f < 9223372036854775808.0 {
		return int64(f), true
	}
	return 0, false
}
