package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger // 42, 0xff
	TokenFloat   // 3.14, 1e10, 0x1p4
	TokenString  // "hello", 'hi', [[long]]
	TokenName    // foo

	// Reserved words
	TokenAnd
	TokenBreak
	TokenDo
	TokenElse
	TokenElseif
	TokenEnd
	TokenFalse
	TokenFor
	TokenFunction
	TokenGoto
	TokenIf
	TokenIn
	TokenLocal
	TokenNil
	TokenNot
	TokenOr
	TokenRepeat
	TokenReturn
	TokenThen
	TokenTrue
	TokenUntil
	TokenWhile

	// Operators
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenSlash      // /
	TokenDSlash     // //
	TokenPercent    // %
	TokenCaret      // ^
	TokenHash       // #
	TokenAmp        // &
	TokenTilde      // ~
	TokenPipe       // |
	TokenShl        // <<
	TokenShr        // >>
	TokenEq         // ==
	TokenNe         // ~=
	TokenLe         // <=
	TokenGe         // >=
	TokenLt         // <
	TokenGt         // >
	TokenAssign     // =
	TokenConcat     // ..
	TokenDots       // ...
	TokenDColon     // ::
	TokenLParen     // (
	TokenRParen     // )
	TokenLBrace     // {
	TokenRBrace     // }
	TokenLBracket   // [
	TokenRBracket   // ]
	TokenSemicolon  // ;
	TokenColon      // :
	TokenComma      // ,
	TokenDot        // .
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "<eof>",
	TokenError:     "<error>",
	TokenInteger:   "<integer>",
	TokenFloat:     "<number>",
	TokenString:    "<string>",
	TokenName:      "<name>",
	TokenAnd:       "and",
	TokenBreak:     "break",
	TokenDo:        "do",
	TokenElse:      "else",
	TokenElseif:    "elseif",
	TokenEnd:       "end",
	TokenFalse:     "false",
	TokenFor:       "for",
	TokenFunction:  "function",
	TokenGoto:      "goto",
	TokenIf:        "if",
	TokenIn:        "in",
	TokenLocal:     "local",
	TokenNil:       "nil",
	TokenNot:       "not",
	TokenOr:        "or",
	TokenRepeat:    "repeat",
	TokenReturn:    "return",
	TokenThen:      "then",
	TokenTrue:      "true",
	TokenUntil:     "until",
	TokenWhile:     "while",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenDSlash:    "//",
	TokenPercent:   "%",
	TokenCaret:     "^",
	TokenHash:      "#",
	TokenAmp:       "&",
	TokenTilde:     "~",
	TokenPipe:      "|",
	TokenShl:       "<<",
	TokenShr:       ">>",
	TokenEq:        "==",
	TokenNe:        "~=",
	TokenLe:        "<=",
	TokenGe:        ">=",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenAssign:    "=",
	TokenConcat:    "..",
	TokenDots:      "...",
	TokenDColon:    "::",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenLBrace:    "{",
	TokenRBrace:    "}",
	TokenLBracket:  "[",
	TokenRBracket:  "]",
	TokenSemicolon: ";",
	TokenColon:     ":",
	TokenComma:     ",",
	TokenDot:       ".",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // raw text for names and numerals; decoded text for strings
	Pos     Position // start position
	End     int      // offset just past the token
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "<eof>"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"and":      TokenAnd,
	"break":    TokenBreak,
	"do":       TokenDo,
	"else":     TokenElse,
	"elseif":   TokenElseif,
	"end":      TokenEnd,
	"false":    TokenFalse,
	"for":      TokenFor,
	"function": TokenFunction,
	"goto":     TokenGoto,
	"if":       TokenIf,
	"in":       TokenIn,
	"local":    TokenLocal,
	"nil":      TokenNil,
	"not":      TokenNot,
	"or":       TokenOr,
	"repeat":   TokenRepeat,
	"return":   TokenReturn,
	"then":     TokenThen,
	"true":     TokenTrue,
	"until":    TokenUntil,
	"while":    TokenWhile,
}

// LookupName returns the token type for a name, checking reserved words.
func LookupName(name string) TokenType {
	if tok, ok := reservedWords[name]; ok {
		return tok
	}
	return TokenName
}
