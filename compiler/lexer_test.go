package compiler

import (
	"testing"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input, "=test")
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

func TestLexerOperators(t *testing.T) {
	input := `+ - * / // % ^ # & ~ | << >> == ~= <= >= < > = ( ) { } [ ] :: ; : , . .. ...`
	expected := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenDSlash, TokenPercent,
		TokenCaret, TokenHash, TokenAmp, TokenTilde, TokenPipe, TokenShl, TokenShr,
		TokenEq, TokenNe, TokenLe, TokenGe, TokenLt, TokenGt, TokenAssign,
		TokenLParen, TokenRParen, TokenLBrace, TokenRBrace, TokenLBracket, TokenRBracket,
		TokenDColon, TokenSemicolon, TokenColon, TokenComma, TokenDot, TokenConcat, TokenDots,
		TokenEOF,
	}

	toks := lexAll(t, input)
	if len(toks) != len(expected) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(expected))
	}
	for i, want := range expected {
		if toks[i].Type != want {
			t.Errorf("token[%d] type = %v, want %v", i, toks[i].Type, want)
		}
	}
}

func TestLexerReservedWords(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"and", TokenAnd},
		{"break", TokenBreak},
		{"elseif", TokenElseif},
		{"function", TokenFunction},
		{"goto", TokenGoto},
		{"until", TokenUntil},
		{"while", TokenWhile},
		{"whiles", TokenName},
		{"_ENV", TokenName},
		{"Nil", TokenName},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input, "=test").NextToken()
		if tok.Type != tc.want {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.want)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q", tc.input, tok.Literal)
		}
	}
}

func TestLexerNumerals(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"0", TokenInteger},
		{"0xff", TokenInteger},
		{"0XA", TokenInteger},
		{"3.0", TokenFloat},
		{"3.", TokenFloat},
		{".5", TokenFloat},
		{"1e10", TokenFloat},
		{"2E-3", TokenFloat},
		{"0x1p4", TokenFloat},
		{"0x.8", TokenFloat},
		{"9223372036854775808", TokenFloat},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input, "=test").NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.input {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.input)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\tb\nc"`, "a\tb\nc"},
		{`"\65\066\x43"`, "ABC"},
		{`"\u{48}\u{20AC}"`, "H€"},
		{`"quote\"d"`, `quote"d`},
		{`"skip\z
		   ped"`, "skipped"},
		{"[[long]]", "long"},
		{"[[\nfirst newline skipped]]", "first newline skipped"},
		{"[==[with ]] inside]==]", "with ]] inside"},
		{`"\0"`, "\x00"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input, "=test").NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want <string>", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerComments(t *testing.T) {
	toks := lexAll(t, "a -- line comment\n--[[ long\ncomment ]] b --[==[ x ]==] c")
	want := []string{"a", "b", "c"}
	if len(toks) != len(want)+1 {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want)+1)
	}
	for i, w := range want {
		if toks[i].Type != TokenName || toks[i].Literal != w {
			t.Errorf("token[%d] = %v, want name %q", i, toks[i], w)
		}
	}
}

func TestLexerLineNumbers(t *testing.T) {
	toks := lexAll(t, "a\nb\r\nc\n\n[[x\ny]] d")
	wantLines := []int{1, 2, 3, 5, 6}
	for i, want := range wantLines {
		if toks[i].Pos.Line != want {
			t.Errorf("token[%d] %v line = %d, want %d", i, toks[i], toks[i].Pos.Line, want)
		}
	}
}

func TestLexerSkipsShebang(t *testing.T) {
	toks := lexAll(t, "#!/usr/bin/env luma\nx")
	if toks[0].Type != TokenName || toks[0].Literal != "x" {
		t.Errorf("first token = %v, want name x", toks[0])
	}
	if toks[0].Pos.Line != 2 {
		t.Errorf("line = %d, want 2", toks[0].Pos.Line)
	}
}
