package lib

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/luma/vm"
)

// maxStringSize bounds strings built by rep.
const maxStringSize = math.MaxInt32

var strFuncs = []vm.NativeReg{
	{Name: "len", Func: strLen},
	{Name: "sub", Func: strSub},
	{Name: "upper", Func: strUpper},
	{Name: "lower", Func: strLower},
	{Name: "rep", Func: strRep},
	{Name: "reverse", Func: strReverse},
	{Name: "byte", Func: strByte},
	{Name: "char", Func: strChar},
	{Name: "format", Func: strFormat},
}

// OpenString pushes the string library table and installs it as the
// __index of the metatable shared by all strings.
func OpenString(t *vm.Thread) int {
	t.CreateTable(0, len(strFuncs))
	t.SetFuncs(strFuncs)

	t.CreateTable(0, 1)
	t.PushValue(-2)
	t.SetField(-2, "__index")
	t.PushString("")
	t.PushValue(-2)
	t.SetMetatable(-2)
	t.Pop(2)
	return 1
}

// startPos converts a relative initial position to a 1-based index.
func startPos(pos int64, n int) int64 {
	switch {
	case pos > 0:
		return pos
	case pos == 0 || pos < -int64(n):
		return 1
	}
	return int64(n) + pos + 1
}

// endPos converts the optional end position at arg, clipped to n.
func endPos(t *vm.Thread, arg int, def int64, n int) int64 {
	pos := t.OptInteger(arg, def)
	switch {
	case pos > int64(n):
		return int64(n)
	case pos >= 0:
		return pos
	case pos < -int64(n):
		return 0
	}
	return int64(n) + pos + 1
}

func strLen(t *vm.Thread) int {
	t.PushInteger(int64(len(t.CheckString(1))))
	return 1
}

func strSub(t *vm.Thread) int {
	s := t.CheckString(1)
	i := startPos(t.CheckInteger(2), len(s))
	j := endPos(t, 3, -1, len(s))
	if i > j {
		t.PushString("")
	} else {
		t.PushString(s[i-1 : j])
	}
	return 1
}

func strUpper(t *vm.Thread) int {
	b := []byte(t.CheckString(1))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	t.PushString(string(b))
	return 1
}

func strLower(t *vm.Thread) int {
	b := []byte(t.CheckString(1))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	t.PushString(string(b))
	return 1
}

func strRep(t *vm.Thread) int {
	s := t.CheckString(1)
	n := t.CheckInteger(2)
	sep := t.OptString(3, "")
	if n <= 0 {
		t.PushString("")
		return 1
	}
	unit := int64(len(s) + len(sep))
	if unit > 0 && n > maxStringSize/unit {
		return t.Errorf("resulting string too large")
	}
	var sb strings.Builder
	sb.Grow(int(unit * n))
	for i := int64(0); i < n; i++ {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(s)
	}
	t.PushString(sb.String())
	return 1
}

func strReverse(t *vm.Thread) int {
	s := t.CheckString(1)
	b := make([]byte, len(s))
	for i := range b {
		b[i] = s[len(s)-1-i]
	}
	t.PushString(string(b))
	return 1
}

func strByte(t *vm.Thread) int {
	s := t.CheckString(1)
	i := startPos(t.OptInteger(2, 1), len(s))
	j := endPos(t, 3, i, len(s))
	if i > j {
		return 0
	}
	n := int(j - i + 1)
	if !t.CheckStack(n) {
		return t.Errorf("string slice too long")
	}
	for k := i - 1; k < j; k++ {
		t.PushInteger(int64(s[k]))
	}
	return n
}

func strChar(t *vm.Thread) int {
	n := t.Top()
	b := make([]byte, n)
	for i := 1; i <= n; i++ {
		c := t.CheckInteger(i)
		if uint64(c) > math.MaxUint8 {
			t.ArgError(i, "value out of range")
		}
		b[i-1] = byte(c)
	}
	t.PushString(string(b))
	return 1
}

// ---------------------------------------------------------------------------
// format
// ---------------------------------------------------------------------------

// fmtSpec is one parsed conversion: flags, width and precision as written.
type fmtSpec struct {
	flags string
	width int
	prec  int // -1 when absent
	verb  byte
	text  string
}

// parseSpec reads a conversion starting after '%' in f and returns it with
// the number of bytes consumed.
func parseSpec(f string) (fmtSpec, int, bool) {
	sp := fmtSpec{prec: -1}
	i := 0
	for i < len(f) && strings.IndexByte("-+ #0", f[i]) >= 0 {
		i++
	}
	sp.flags = f[:i]
	digits := func() (int, bool) {
		start, n := i, 0
		for i < len(f) && f[i] >= '0' && f[i] <= '9' {
			n = n*10 + int(f[i]-'0')
			i++
		}
		return n, i-start <= 2
	}
	var ok bool
	if sp.width, ok = digits(); !ok {
		return sp, i, false
	}
	if i < len(f) && f[i] == '.' {
		i++
		if sp.prec, ok = digits(); !ok {
			return sp, i, false
		}
	}
	if i >= len(f) {
		return sp, i, false
	}
	sp.verb = f[i]
	i++
	sp.text = f[:i]
	return sp, i, true
}

// pad applies width and the '-' flag to s, counting bytes.
func (sp fmtSpec) pad(s string) string {
	if len(s) >= sp.width {
		return s
	}
	fill := strings.Repeat(" ", sp.width-len(s))
	if strings.Contains(sp.flags, "-") {
		return s + fill
	}
	return fill + s
}

func strFormat(t *vm.Thread) int {
	f := t.CheckString(1)
	top := t.Top()
	arg := 1
	var sb strings.Builder
	for i := 0; i < len(f); i++ {
		c := f[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i < len(f) && f[i] == '%' {
			sb.WriteByte('%')
			continue
		}
		sp, n, ok := parseSpec(f[i:])
		if !ok {
			return t.Errorf("invalid conversion '%%%s' to 'format'", f[i:min(i+n+1, len(f))])
		}
		i += n - 1
		arg++
		if arg > top {
			t.ArgError(arg, "no value")
		}
		switch sp.verb {
		case 'c':
			sb.WriteString(sp.pad(string([]byte{byte(t.CheckInteger(arg))})))
		case 'd', 'i':
			sb.WriteString(fmt.Sprintf("%"+sp.flags+sp.widthPrec()+"d", t.CheckInteger(arg)))
		case 'o', 'x', 'X':
			sb.WriteString(fmt.Sprintf("%"+sp.flags+sp.widthPrec()+string(sp.verb), uint64(t.CheckInteger(arg))))
		case 'e', 'E', 'f', 'F', 'g', 'G':
			sb.WriteString(sp.formatFloat(t.CheckNumber(arg)))
		case 'q':
			if sp.text != "q" {
				return t.Errorf("specifier '%%q' cannot have modifiers")
			}
			quoteValue(t, &sb, arg)
		case 's':
			s := t.ToDisplayString(arg)
			t.Pop(1)
			if sp.prec >= 0 && len(s) > sp.prec {
				s = s[:sp.prec]
			}
			sb.WriteString(sp.pad(s))
		default:
			return t.Errorf("invalid conversion '%%%s' to 'format'", sp.text)
		}
	}
	t.PushString(sb.String())
	return 1
}

func (sp fmtSpec) widthPrec() string {
	s := ""
	if sp.width > 0 {
		s = strconv.Itoa(sp.width)
	}
	if sp.prec >= 0 {
		s += "." + strconv.Itoa(sp.prec)
	}
	return s
}

func (sp fmtSpec) formatFloat(x float64) string {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		var s string
		switch {
		case math.IsNaN(x):
			s = "nan"
		case x > 0 && strings.Contains(sp.flags, "+"):
			s = "+inf"
		case x > 0:
			s = "inf"
		default:
			s = "-inf"
		}
		if sp.verb >= 'A' && sp.verb <= 'Z' {
			s = strings.ToUpper(s)
		}
		return sp.pad(s)
	}
	prec := sp.prec
	if prec < 0 {
		prec = 6
	}
	verb := sp.verb
	if verb == 'F' {
		verb = 'f'
	}
	w := ""
	if sp.width > 0 {
		w = strconv.Itoa(sp.width)
	}
	return fmt.Sprintf("%"+sp.flags+w+"."+strconv.Itoa(prec)+string(verb), x)
}

// quoteValue writes the value at arg in a form the lexer reads back.
func quoteValue(t *vm.Thread, sb *strings.Builder, arg int) {
	v := t.Get(arg)
	switch t.TypeOf(arg) {
	case vm.TypeString:
		s, _ := v.AsString()
		quoteString(sb, s)
	case vm.TypeNumber:
		if i, ok := v.AsInteger(); ok {
			if i == math.MinInt64 {
				sb.WriteString("0x8000000000000000")
			} else {
				sb.WriteString(strconv.FormatInt(i, 10))
			}
			return
		}
		f, _ := v.AsFloat()
		switch {
		case math.IsInf(f, 1):
			sb.WriteString("1e9999")
		case math.IsInf(f, -1):
			sb.WriteString("-1e9999")
		case math.IsNaN(f):
			sb.WriteString("(0/0)")
		case f == math.Floor(f) && math.Abs(f) < 1e15:
			sb.WriteString(strconv.FormatFloat(f, 'f', 1, 64))
		default:
			sb.WriteString(hexFloat(f))
		}
	case vm.TypeNil, vm.TypeBoolean:
		sb.WriteString(t.ToDisplayString(arg))
		t.Pop(1)
	default:
		t.ArgError(arg, "value has no literal form")
	}
}

// hexFloat formats f exactly as a hexadecimal numeral with the exponent
// written in the fewest digits.
func hexFloat(f float64) string {
	s := strconv.FormatFloat(f, 'x', -1, 64)
	p := strings.IndexByte(s, 'p')
	exp := strings.TrimLeft(s[p+2:], "0")
	if exp == "" {
		exp = "0"
	}
	return s[:p+2] + exp
}

func quoteString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString("\\n")
		case c == '\r':
			sb.WriteString("\\r")
		case c < 0x20 || c == 0x7f:
			if i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
				fmt.Fprintf(sb, "\\%03d", c)
			} else {
				fmt.Fprintf(sb, "\\%d", c)
			}
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
}
