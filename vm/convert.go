package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Number formatting
// ---------------------------------------------------------------------------

func numberToString(v Value) string {
	if v.vt == vtInt {
		return strconv.FormatInt(v.ival(), 10)
	}
	return formatFloat(v.fval())
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		if math.Signbit(f) {
			return "-nan"
		}
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 14, 64)
	if strings.ContainsAny(s, ".en") {
		return fixExponent(s)
	}
	return s + ".0"
}

// fixExponent pads exponents to at least two digits, as C's printf does.
func fixExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || len(s)-i-2 >= 2 {
		return s
	}
	return s[:i+2] + "0" + s[i+2:]
}

// ---------------------------------------------------------------------------
// String to number
// ---------------------------------------------------------------------------

// StringToNumber converts a numeral with optional surrounding whitespace:
// decimal or hexadecimal integers and floats, hexadecimal floats with
// optional binary exponent. Decimal integers that overflow become floats;
// hexadecimal integers wrap around.
func StringToNumber(s string) (Value, bool) {
	s = strings.TrimFunc(s, isSpace)
	if s == "" {
		return Nil, false
	}
	neg := false
	body := s
	switch body[0] {
	case '-':
		neg = true
		body = body[1:]
	case '+':
		body = body[1:]
	}
	if len(body) >= 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		return hexToNumber(body[2:], neg)
	}
	if !isDecimalNumeral(body) {
		return Nil, false
	}
	if !strings.ContainsAny(body, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), true
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return Float(f), true
		}
		return Nil, false
	}
	return Float(f), true
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isDecimalNumeral(s string) bool {
	i, digits := 0, 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

func hexToNumber(s string, neg bool) (Value, bool) {
	var mant uint64
	var fmant float64
	exp := 0 // binary exponent adjustment
	digits := 0
	isFloat := false
	i := 0
	for ; i < len(s); i++ {
		d, ok := hexDigit(s[i])
		if !ok {
			break
		}
		mant = mant<<4 | uint64(d)
		fmant = fmant*16 + float64(d)
		digits++
	}
	if i < len(s) && s[i] == '.' {
		isFloat = true
		i++
		for ; i < len(s); i++ {
			d, ok := hexDigit(s[i])
			if !ok {
				break
			}
			fmant = fmant*16 + float64(d)
			exp -= 4
			digits++
		}
	}
	if digits == 0 {
		return Nil, false
	}
	if i < len(s) && (s[i] == 'p' || s[i] == 'P') {
		isFloat = true
		i++
		esign := 1
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			if s[i] == '-' {
				esign = -1
			}
			i++
		}
		start, e := i, 0
		for ; i < len(s) && isDigit(s[i]); i++ {
			if e < 1<<20 {
				e = e*10 + int(s[i]-'0')
			}
		}
		if i == start {
			return Nil, false
		}
		exp += esign * e
	}
	if i != len(s) {
		return Nil, false
	}
	if !isFloat {
		n := int64(mant)
		if neg {
			n = -n
		}
		return Int(n), true
	}
	f := math.Ldexp(fmant, exp)
	if neg {
		f = -f
	}
	return Float(f), true
}

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------

// toNumber converts numbers and numeric strings.
func toNumber(v Value) (Value, bool) {
	switch v.vt {
	case vtInt, vtFloat:
		return v, true
	case vtString:
		return StringToNumber(v.str().s)
	}
	return Nil, false
}

// toFloat converts numbers and numeric strings to float64.
func toFloat(v Value) (float64, bool) {
	n, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	if n.vt == vtInt {
		return float64(n.ival()), true
	}
	return n.fval(), true
}

// toInteger converts numbers with an exact integer value and numeric
// strings to int64.
func toInteger(v Value) (int64, bool) {
	n, ok := toNumber(v)
	if !ok {
		return 0, false
	}
	if n.vt == vtInt {
		return n.ival(), true
	}
	return floatToInteger(n.fval())
}

// toStringValue converts numbers to strings in place; it reports false for
// values that are neither strings nor numbers.
func (t *Thread) toStringValue(v Value) (Value, bool) {
	switch v.vt {
	case vtString:
		return v, true
	case vtInt, vtFloat:
		return t.rt.String(numberToString(v)), true
	}
	return Nil, false
}
