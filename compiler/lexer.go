package compiler

import (
	"strings"
	"unicode/utf8"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes source text. Lexical errors panic with *SyntaxError and
// are recovered by Parse.
type Lexer struct {
	input     string
	chunkname string
	pos       int // offset of the next unread byte
	line      int // current line (1-based)
	lineStart int // offset of current line start
	sb        strings.Builder
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, chunkname string) *Lexer {
	l := &Lexer{input: input, chunkname: chunkname, line: 1}
	// A first line starting with '#' is skipped (Unix exec. file).
	if strings.HasPrefix(input, "#") {
		for l.pos < len(input) && !isNewline(input[l.pos]) {
			l.pos++
		}
	}
	return l
}

func (l *Lexer) cur() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.input) }

func isNewline(c byte) bool { return c == '\n' || c == '\r' }

// newline consumes "\n", "\r", "\n\r" or "\r\n" and counts one line.
func (l *Lexer) newline() {
	old := l.cur()
	l.pos++
	if c := l.cur(); isNewline(c) && c != old {
		l.pos++
	}
	l.line++
	if l.line < 0 {
		l.errorf("chunk has too many lines", "")
	}
	l.lineStart = l.pos
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.pos - l.lineStart + 1}
}

// errorf raises a lexical error at the current line.
func (l *Lexer) errorf(msg, near string) {
	panic(&SyntaxError{
		Chunk: l.chunkname,
		Line:  l.line,
		Msg:   msg,
		Near:  near,
		AtEOF: near == "<eof>",
	})
}

// near quotes the raw text of a token starting at start.
func (l *Lexer) near(start int) string {
	if l.atEOF() && start >= len(l.input) {
		return "<eof>"
	}
	end := min(l.pos, len(l.input))
	return "'" + l.input[start:end] + "'"
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	for {
		if l.atEOF() {
			return Token{Type: TokenEOF, Pos: l.position(), End: l.pos}
		}
		c := l.cur()
		switch {
		case isNewline(c):
			l.newline()
			continue
		case c == ' ' || c == '\t' || c == '\f' || c == '\v':
			l.pos++
			continue
		case c == '-' && l.peek() == '-':
			l.skipComment()
			continue
		}
		return l.scan()
	}
}

func (l *Lexer) skipComment() {
	l.pos += 2
	if l.cur() == '[' {
		start := l.pos
		if level := l.longBracketLevel(); level >= 0 {
			l.readLongString(start, level, false)
			return
		}
	}
	for !l.atEOF() && !isNewline(l.cur()) {
		l.pos++
	}
}

func (l *Lexer) scan() Token {
	pos := l.position()
	start := l.pos
	c := l.cur()

	tok := func(tt TokenType, n int) Token {
		l.pos += n
		return Token{Type: tt, Literal: l.input[start:l.pos], Pos: pos, End: l.pos}
	}

	switch c {
	case '[':
		switch level := l.longBracketLevel(); {
		case level >= 0:
			s := l.readLongString(start, level, true)
			return Token{Type: TokenString, Literal: s, Pos: pos, End: l.pos}
		case level == -2:
			l.errorf("invalid long string delimiter", l.near(start))
		}
		l.pos = start
		return tok(TokenLBracket, 1)
	case '=':
		if l.peek() == '=' {
			return tok(TokenEq, 2)
		}
		return tok(TokenAssign, 1)
	case '<':
		switch l.peek() {
		case '=':
			return tok(TokenLe, 2)
		case '<':
			return tok(TokenShl, 2)
		}
		return tok(TokenLt, 1)
	case '>':
		switch l.peek() {
		case '=':
			return tok(TokenGe, 2)
		case '>':
			return tok(TokenShr, 2)
		}
		return tok(TokenGt, 1)
	case '/':
		if l.peek() == '/' {
			return tok(TokenDSlash, 2)
		}
		return tok(TokenSlash, 1)
	case '~':
		if l.peek() == '=' {
			return tok(TokenNe, 2)
		}
		return tok(TokenTilde, 1)
	case ':':
		if l.peek() == ':' {
			return tok(TokenDColon, 2)
		}
		return tok(TokenColon, 1)
	case '"', '\'':
		s := l.readString(c)
		return Token{Type: TokenString, Literal: s, Pos: pos, End: l.pos}
	case '.':
		if l.peek() == '.' {
			if l.pos+2 < len(l.input) && l.input[l.pos+2] == '.' {
				return tok(TokenDots, 3)
			}
			return tok(TokenConcat, 2)
		}
		if isDigit(l.peek()) {
			return l.readNumeral(pos)
		}
		return tok(TokenDot, 1)
	case '+':
		return tok(TokenPlus, 1)
	case '-':
		return tok(TokenMinus, 1)
	case '*':
		return tok(TokenStar, 1)
	case '%':
		return tok(TokenPercent, 1)
	case '^':
		return tok(TokenCaret, 1)
	case '#':
		return tok(TokenHash, 1)
	case '&':
		return tok(TokenAmp, 1)
	case '|':
		return tok(TokenPipe, 1)
	case '(':
		return tok(TokenLParen, 1)
	case ')':
		return tok(TokenRParen, 1)
	case '{':
		return tok(TokenLBrace, 1)
	case '}':
		return tok(TokenRBrace, 1)
	case ']':
		return tok(TokenRBracket, 1)
	case ';':
		return tok(TokenSemicolon, 1)
	case ',':
		return tok(TokenComma, 1)
	}

	switch {
	case isDigit(c):
		return l.readNumeral(pos)
	case isLetter(c):
		for !l.atEOF() && (isLetter(l.cur()) || isDigit(l.cur())) {
			l.pos++
		}
		name := l.input[start:l.pos]
		return Token{Type: LookupName(name), Literal: name, Pos: pos, End: l.pos}
	}
	l.pos++
	l.errorf("unexpected symbol", "'"+l.input[start:l.pos]+"'")
	return Token{}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// ---------------------------------------------------------------------------
// Numerals
// ---------------------------------------------------------------------------

func (l *Lexer) readNumeral(pos Position) Token {
	start := l.pos
	expo := "Ee"
	if l.cur() == '0' && (l.peek() == 'x' || l.peek() == 'X') {
		expo = "Pp"
		l.pos += 2
	}
scan:
	for !l.atEOF() {
		c := l.cur()
		switch {
		case strings.IndexByte(expo, c) >= 0:
			l.pos++
			if s := l.cur(); s == '+' || s == '-' {
				l.pos++
			}
		case isHexDigit(c) || c == '.':
			l.pos++
		default:
			break scan
		}
	}
	// A numeral touching a letter is malformed ("3x").
	for !l.atEOF() && (isLetter(l.cur()) || isDigit(l.cur())) {
		l.pos++
	}
	text := l.input[start:l.pos]
	v, ok := vm.StringToNumber(text)
	if !ok {
		l.errorf("malformed number", "'"+text+"'")
	}
	if _, isInt := v.AsInteger(); isInt {
		return Token{Type: TokenInteger, Literal: text, Pos: pos, End: l.pos}
	}
	return Token{Type: TokenFloat, Literal: text, Pos: pos, End: l.pos}
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// longBracketLevel reads "[=*[" and returns the number of '=' signs. It
// returns -1 for a lone '[' and -2 for '[' followed by '=' signs only,
// leaving pos after what it consumed.
func (l *Lexer) longBracketLevel() int {
	l.pos++ // '['
	level := 0
	for l.cur() == '=' {
		level++
		l.pos++
	}
	if l.cur() == '[' {
		l.pos++
		return level
	}
	if level > 0 {
		return -2
	}
	return -1
}

func (l *Lexer) readLongString(start, level int, isString bool) string {
	if !l.atEOF() && isNewline(l.cur()) {
		l.newline()
	}
	l.sb.Reset()
	for {
		if l.atEOF() {
			what := "unfinished long comment"
			if isString {
				what = "unfinished long string"
			}
			l.errorf(what, "<eof>")
		}
		c := l.cur()
		switch {
		case c == ']':
			end := l.pos + 1
			n := 0
			for end < len(l.input) && l.input[end] == '=' {
				n++
				end++
			}
			if n == level && end < len(l.input) && l.input[end] == ']' {
				l.pos = end + 1
				return l.sb.String()
			}
			l.sb.WriteByte(c)
			l.pos++
		case isNewline(c):
			l.sb.WriteByte('\n')
			l.newline()
		default:
			l.sb.WriteByte(c)
			l.pos++
		}
	}
}

func (l *Lexer) readString(delim byte) string {
	start := l.pos
	l.pos++
	l.sb.Reset()
	for {
		if l.atEOF() {
			l.errorf("unfinished string", "<eof>")
		}
		c := l.cur()
		switch {
		case c == delim:
			l.pos++
			return l.sb.String()
		case isNewline(c):
			l.errorf("unfinished string", l.near(start))
		case c == '\\':
			l.readEscape(start)
		default:
			l.sb.WriteByte(c)
			l.pos++
		}
	}
}

func (l *Lexer) readEscape(start int) {
	l.pos++ // '\\'
	if l.atEOF() {
		l.errorf("unfinished string", "<eof>")
	}
	c := l.cur()
	switch c {
	case 'a':
		l.sb.WriteByte('\a')
	case 'b':
		l.sb.WriteByte('\b')
	case 'f':
		l.sb.WriteByte('\f')
	case 'n':
		l.sb.WriteByte('\n')
	case 'r':
		l.sb.WriteByte('\r')
	case 't':
		l.sb.WriteByte('\t')
	case 'v':
		l.sb.WriteByte('\v')
	case '\\', '"', '\'':
		l.sb.WriteByte(c)
	case '\n', '\r':
		l.newline()
		l.sb.WriteByte('\n')
		return
	case 'x':
		l.pos++
		v := 0
		for i := 0; i < 2; i++ {
			d := l.cur()
			if !isHexDigit(d) {
				l.pos++
				l.errorf("hexadecimal digit expected", l.near(start))
			}
			v = v*16 + hexValue(d)
			l.pos++
		}
		l.sb.WriteByte(byte(v))
		return
	case 'z':
		l.pos++
		for !l.atEOF() {
			switch d := l.cur(); {
			case isNewline(d):
				l.newline()
			case d == ' ' || d == '\t' || d == '\f' || d == '\v':
				l.pos++
			default:
				return
			}
		}
		return
	case 'u':
		l.readUTF8Escape(start)
		return
	default:
		if !isDigit(c) {
			l.pos++
			l.errorf("invalid escape sequence", l.near(start))
		}
		v := 0
		for i := 0; i < 3 && isDigit(l.cur()); i++ {
			v = v*10 + int(l.cur()-'0')
			l.pos++
		}
		if v > 255 {
			l.errorf("decimal escape too large", l.near(start))
		}
		l.sb.WriteByte(byte(v))
		return
	}
	l.pos++
}

func (l *Lexer) readUTF8Escape(start int) {
	l.pos++ // 'u'
	if l.cur() != '{' {
		l.pos++
		l.errorf("missing '{' in \\u{xxxx}", l.near(start))
	}
	l.pos++
	var r uint64
	digits := 0
	for isHexDigit(l.cur()) {
		r = r<<4 | uint64(hexValue(l.cur()))
		if r > 0x7FFFFFFF {
			l.pos++
			l.errorf("UTF-8 value too large", l.near(start))
		}
		digits++
		l.pos++
	}
	if digits == 0 {
		l.pos++
		l.errorf("hexadecimal digit expected", l.near(start))
	}
	if l.cur() != '}' {
		l.pos++
		l.errorf("missing '}' in \\u{xxxx}", l.near(start))
	}
	l.pos++
	l.sb.WriteString(encodeUTF8(uint32(r)))
}

// encodeUTF8 encodes code points up to 2^31 using the original UTF-8 scheme
// of up to six bytes.
func encodeUTF8(r uint32) string {
	if r <= utf8.MaxRune && (r < 0xD800 || r > 0xDFFF) {
		return string(rune(r))
	}
	var buf [6]byte
	n := 0
	mfb := uint32(0x3f) // largest value fitting in the first byte
	for {
		buf[5-n] = byte(0x80 | (r & 0x3f))
		n++
		r >>= 6
		mfb >>= 1
		if r <= mfb {
			break
		}
	}
	buf[5-n] = byte((^mfb << 1) | r)
	n++
	return string(buf[6-n:])
}

func hexValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return int(c-'A') + 10
}
