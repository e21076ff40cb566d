package compiler

import (
	"fmt"

	"github.com/chazu/luma/vm"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser producing the AST
// ---------------------------------------------------------------------------

// maxSyntaxLevels bounds the nesting of expressions and blocks.
const maxSyntaxLevels = 200

// Parser parses source code into an AST. The first error stops parsing.
type Parser struct {
	lexer     *Lexer
	chunkname string
	curToken  Token
	peekToken Token
	lastPos   Position // start of the previously consumed token
	level     int

	// vararg[i] reports whether the i-th enclosing function is vararg.
	vararg []bool
}

// NewParser creates a new parser for the given input.
func NewParser(input, chunkname string) *Parser {
	p := &Parser{lexer: NewLexer(input, chunkname), chunkname: chunkname}
	return p
}

// Parse parses a whole chunk.
func Parse(input, chunkname string) (chunk *Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			chunk, err = nil, se
		}
	}()
	p := NewParser(input, chunkname)
	return p.parseChunk(), nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.lastPos = p.curToken.Pos
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool { return p.curToken.Type == t }

func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken.Type == t }

// accept consumes the current token if it has type t.
func (p *Parser) accept(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes a token of type t or fails with "'t' expected".
func (p *Parser) expect(t TokenType) Token {
	tok := p.curToken
	if tok.Type != t {
		p.errorExpected(t)
	}
	p.nextToken()
	return tok
}

// expectMatch consumes the token closing a construct opened by who at line.
func (p *Parser) expectMatch(what, who TokenType, line int) {
	if p.curTokenIs(what) {
		p.nextToken()
		return
	}
	if line == p.curToken.Pos.Line {
		p.errorExpected(what)
	}
	p.errorf("%s expected (to close %s at line %d)", quoteToken(what), quoteToken(who), line)
}

func quoteToken(t TokenType) string {
	switch t {
	case TokenEOF, TokenName, TokenString, TokenInteger, TokenFloat:
		return t.String()
	}
	return "'" + t.String() + "'"
}

func (p *Parser) errorExpected(t TokenType) {
	p.errorf("%s expected", quoteToken(t))
}

// errorf raises a syntax error near the current token.
func (p *Parser) errorf(format string, args ...any) {
	tok := p.curToken
	near := "<eof>"
	switch tok.Type {
	case TokenEOF:
	case TokenName, TokenString, TokenInteger, TokenFloat:
		near = "'" + p.lexer.input[tok.Pos.Offset:tok.End] + "'"
	default:
		near = "'" + tok.Type.String() + "'"
	}
	panic(&SyntaxError{
		Chunk: p.chunkname,
		Line:  tok.Pos.Line,
		Msg:   fmt.Sprintf(format, args...),
		Near:  near,
		AtEOF: tok.Type == TokenEOF,
	})
}

func (p *Parser) enterLevel() {
	p.level++
	if p.level > maxSyntaxLevels {
		p.errorf("chunk has too many syntax levels")
	}
}

func (p *Parser) leaveLevel() { p.level-- }

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.lastPos}
}

// ---------------------------------------------------------------------------
// Blocks and statements
// ---------------------------------------------------------------------------

func (p *Parser) parseChunk() *Chunk {
	p.nextToken()
	p.nextToken()
	p.vararg = append(p.vararg, true)
	body := p.parseBlock()
	if !p.curTokenIs(TokenEOF) {
		p.errorExpected(TokenEOF)
	}
	return &Chunk{Name: p.chunkname, Body: body}
}

// blockFollow reports whether the current token ends a block.
func (p *Parser) blockFollow(withUntil bool) bool {
	switch p.curToken.Type {
	case TokenElse, TokenElseif, TokenEnd, TokenEOF:
		return true
	case TokenUntil:
		return withUntil
	}
	return false
}

func (p *Parser) parseBlock() *Block {
	p.enterLevel()
	defer p.leaveLevel()
	start := p.curToken.Pos
	b := &Block{}
	for !p.blockFollow(true) {
		if p.curTokenIs(TokenReturn) {
			b.Stmts = append(b.Stmts, p.parseReturn())
			break
		}
		if s := p.parseStatement(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
	}
	b.SpanVal = Span{Start: start, End: p.curToken.Pos}
	return b
}

// parseStatement parses one statement; it returns nil for ';'.
func (p *Parser) parseStatement() Stmt {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenSemicolon:
		p.nextToken()
		return nil
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		p.nextToken()
		cond := p.parseExpr()
		p.expect(TokenDo)
		body := p.parseBlock()
		p.expectMatch(TokenEnd, TokenWhile, start.Line)
		return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
	case TokenDo:
		p.nextToken()
		body := p.parseBlock()
		p.expectMatch(TokenEnd, TokenDo, start.Line)
		return &DoStmt{SpanVal: p.span(start), Body: body}
	case TokenFor:
		return p.parseFor()
	case TokenRepeat:
		p.nextToken()
		body := p.parseBlock()
		p.expectMatch(TokenUntil, TokenRepeat, start.Line)
		cond := p.parseExpr()
		return &RepeatStmt{SpanVal: p.span(start), Body: body, Cond: cond}
	case TokenFunction:
		return p.parseFunctionStmt()
	case TokenLocal:
		p.nextToken()
		if p.accept(TokenFunction) {
			name := p.expect(TokenName).Literal
			fn := p.parseFunctionBody(start, false)
			return &LocalFunctionStmt{SpanVal: p.span(start), Name: name, Func: fn}
		}
		return p.parseLocal(start)
	case TokenBreak:
		p.nextToken()
		return &BreakStmt{SpanVal: p.span(start)}
	case TokenGoto, TokenDColon:
		p.errorf("goto and labels are not supported")
	}
	return p.parseExprStatement()
}

func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	s := &IfStmt{}
	for {
		p.nextToken() // 'if' or 'elseif'
		s.Conds = append(s.Conds, p.parseExpr())
		p.expect(TokenThen)
		s.Blocks = append(s.Blocks, p.parseBlock())
		if !p.curTokenIs(TokenElseif) {
			break
		}
	}
	if p.accept(TokenElse) {
		s.Else = p.parseBlock()
	}
	p.expectMatch(TokenEnd, TokenIf, start.Line)
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseFor() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	first := p.expect(TokenName).Literal
	switch p.curToken.Type {
	case TokenAssign:
		p.nextToken()
		s := &NumericForStmt{Var: first}
		s.Start = p.parseExpr()
		p.expect(TokenComma)
		s.Limit = p.parseExpr()
		if p.accept(TokenComma) {
			s.Step = p.parseExpr()
		}
		p.expect(TokenDo)
		s.Body = p.parseBlock()
		p.expectMatch(TokenEnd, TokenFor, start.Line)
		s.SpanVal = p.span(start)
		return s
	case TokenComma, TokenIn:
		s := &GenericForStmt{Names: []string{first}}
		for p.accept(TokenComma) {
			s.Names = append(s.Names, p.expect(TokenName).Literal)
		}
		p.expect(TokenIn)
		s.Exprs = p.parseExprList()
		p.expect(TokenDo)
		s.Body = p.parseBlock()
		p.expectMatch(TokenEnd, TokenFor, start.Line)
		s.SpanVal = p.span(start)
		return s
	}
	p.errorf("'=' or 'in' expected")
	return nil
}

func (p *Parser) parseFunctionStmt() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	nameTok := p.expect(TokenName)
	var target Expr = &NameExpr{SpanVal: Span{Start: nameTok.Pos, End: nameTok.Pos}, Name: nameTok.Literal}
	isMethod := false
	for p.curTokenIs(TokenDot) || p.curTokenIs(TokenColon) {
		isMethod = p.curTokenIs(TokenColon)
		p.nextToken()
		key := p.expect(TokenName)
		target = &IndexExpr{
			SpanVal: p.span(start),
			Obj:     target,
			Key:     &StringLiteral{SpanVal: Span{Start: key.Pos, End: key.Pos}, Value: key.Literal},
		}
		if isMethod {
			break
		}
	}
	fn := p.parseFunctionBody(start, isMethod)
	return &FunctionStmt{SpanVal: p.span(start), Target: target, Func: fn}
}

func (p *Parser) parseLocal(start Position) Stmt {
	s := &LocalStmt{}
	closing := false
	for {
		s.Names = append(s.Names, p.expect(TokenName).Literal)
		attrib := AttribNone
		if p.accept(TokenLt) {
			name := p.expect(TokenName).Literal
			switch name {
			case "const":
				attrib = AttribConst
			case "close":
				attrib = AttribClose
				if closing {
					p.errorf("multiple to-be-closed variables in local list")
				}
				closing = true
			default:
				p.errorf("unknown attribute '%s'", name)
			}
			p.expect(TokenGt)
		}
		s.Attribs = append(s.Attribs, attrib)
		if !p.accept(TokenComma) {
			break
		}
	}
	if p.accept(TokenAssign) {
		s.Exprs = p.parseExprList()
	}
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	s := &ReturnStmt{}
	if !p.blockFollow(true) && !p.curTokenIs(TokenSemicolon) {
		s.Exprs = p.parseExprList()
	}
	p.accept(TokenSemicolon)
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseExprStatement() Stmt {
	start := p.curToken.Pos
	e := p.parseSuffixedExpr()
	if p.curTokenIs(TokenAssign) || p.curTokenIs(TokenComma) {
		targets := []Expr{p.checkAssignable(e)}
		for p.accept(TokenComma) {
			targets = append(targets, p.checkAssignable(p.parseSuffixedExpr()))
		}
		p.expect(TokenAssign)
		exprs := p.parseExprList()
		return &AssignStmt{SpanVal: p.span(start), Targets: targets, Exprs: exprs}
	}
	switch e.(type) {
	case *CallExpr, *MethodCall:
		return &CallStmt{SpanVal: p.span(start), Call: e}
	}
	p.errorf("syntax error")
	return nil
}

func (p *Parser) checkAssignable(e Expr) Expr {
	switch e.(type) {
	case *NameExpr, *IndexExpr:
		return e
	}
	p.errorf("syntax error")
	return nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (p *Parser) parseFunctionBody(start Position, isMethod bool) *FunctionExpr {
	fn := &FunctionExpr{}
	if isMethod {
		fn.Params = append(fn.Params, "self")
	}
	p.expect(TokenLParen)
	if !p.curTokenIs(TokenRParen) {
		for {
			if p.accept(TokenDots) {
				fn.IsVararg = true
				break
			}
			if !p.curTokenIs(TokenName) {
				p.errorf("<name> expected")
			}
			fn.Params = append(fn.Params, p.curToken.Literal)
			p.nextToken()
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	p.expect(TokenRParen)
	p.vararg = append(p.vararg, fn.IsVararg)
	fn.Body = p.parseBlock()
	p.vararg = p.vararg[:len(p.vararg)-1]
	fn.Body.SpanVal.End = p.curToken.Pos
	p.expectMatch(TokenEnd, TokenFunction, start.Line)
	fn.SpanVal = p.span(start)
	return fn
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExprList() []Expr {
	list := []Expr{p.parseExpr()}
	for p.accept(TokenComma) {
		list = append(list, p.parseExpr())
	}
	return list
}

// parseExpr parses one expression.
func (p *Parser) parseExpr() Expr { return p.parseSubExpr(0) }

var binaryOps = map[TokenType]BinOp{
	TokenPlus: OpAdd, TokenMinus: OpSub, TokenStar: OpMul, TokenPercent: OpMod,
	TokenCaret: OpPow, TokenSlash: OpDiv, TokenDSlash: OpIDiv,
	TokenAmp: OpBAnd, TokenPipe: OpBOr, TokenTilde: OpBXor,
	TokenShl: OpShl, TokenShr: OpShr, TokenConcat: OpConcat,
	TokenEq: OpEq, TokenLt: OpLt, TokenLe: OpLe, TokenNe: OpNe,
	TokenGt: OpGt, TokenGe: OpGe, TokenAnd: OpAnd, TokenOr: OpOr,
}

// priority holds the left and right binding power of each binary operator.
var priority = [...]struct{ left, right int }{
	OpAdd: {10, 10}, OpSub: {10, 10},
	OpMul: {11, 11}, OpMod: {11, 11},
	OpPow: {14, 13},
	OpDiv: {11, 11}, OpIDiv: {11, 11},
	OpBAnd: {6, 6}, OpBOr: {4, 4}, OpBXor: {5, 5},
	OpShl: {7, 7}, OpShr: {7, 7},
	OpConcat: {9, 8},
	OpEq: {3, 3}, OpLt: {3, 3}, OpLe: {3, 3},
	OpNe: {3, 3}, OpGt: {3, 3}, OpGe: {3, 3},
	OpAnd: {2, 2}, OpOr: {1, 1},
}

const unaryPriority = 12

// parseSubExpr parses an expression whose binary operators bind tighter
// than limit.
func (p *Parser) parseSubExpr(limit int) Expr {
	p.enterLevel()
	defer p.leaveLevel()
	start := p.curToken.Pos
	var e Expr
	if op, ok := p.unaryOp(); ok {
		p.nextToken()
		operand := p.parseSubExpr(unaryPriority)
		e = &UnaryExpr{SpanVal: p.span(start), Op: op, Operand: operand}
	} else {
		e = p.parseSimpleExpr()
	}
	for {
		op, ok := binaryOps[p.curToken.Type]
		if !ok || priority[op].left <= limit {
			return e
		}
		line := p.curToken.Pos.Line
		p.nextToken()
		right := p.parseSubExpr(priority[op].right)
		e = &BinaryExpr{SpanVal: p.span(start), Op: op, OpLine: line, Left: e, Right: right}
	}
}

func (p *Parser) unaryOp() (UnOp, bool) {
	switch p.curToken.Type {
	case TokenNot:
		return OpNot, true
	case TokenMinus:
		return OpMinus, true
	case TokenTilde:
		return OpBNot, true
	case TokenHash:
		return OpLen, true
	}
	return 0, false
}

func (p *Parser) parseSimpleExpr() Expr {
	tok := p.curToken
	sp := Span{Start: tok.Pos, End: tok.Pos}
	switch tok.Type {
	case TokenInteger, TokenFloat:
		p.nextToken()
		v, _ := vm.StringToNumber(tok.Literal)
		if i, ok := v.AsInteger(); ok {
			return &IntLiteral{SpanVal: sp, Value: i}
		}
		f, _ := v.AsFloat()
		return &FloatLiteral{SpanVal: sp, Value: f}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: sp, Value: tok.Literal}
	case TokenNil:
		p.nextToken()
		return &NilLiteral{SpanVal: sp}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: sp, Value: tok.Type == TokenTrue}
	case TokenDots:
		if !p.vararg[len(p.vararg)-1] {
			p.errorf("cannot use '...' outside a vararg function")
		}
		p.nextToken()
		return &VarargExpr{SpanVal: sp}
	case TokenLBrace:
		return p.parseTable()
	case TokenFunction:
		p.nextToken()
		return p.parseFunctionBody(tok.Pos, false)
	}
	return p.parseSuffixedExpr()
}

func (p *Parser) parsePrimaryExpr() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenName:
		p.nextToken()
		return &NameExpr{SpanVal: Span{Start: tok.Pos, End: tok.Pos}, Name: tok.Literal}
	case TokenLParen:
		p.nextToken()
		inner := p.parseExpr()
		p.expectMatch(TokenRParen, TokenLParen, tok.Pos.Line)
		return &ParenExpr{SpanVal: p.span(tok.Pos), Inner: inner}
	}
	p.errorf("unexpected symbol")
	return nil
}

func (p *Parser) parseSuffixedExpr() Expr {
	start := p.curToken.Pos
	e := p.parsePrimaryExpr()
	for {
		switch p.curToken.Type {
		case TokenDot:
			p.nextToken()
			key := p.expect(TokenName)
			e = &IndexExpr{
				SpanVal: p.span(start),
				Obj:     e,
				Key:     &StringLiteral{SpanVal: Span{Start: key.Pos, End: key.Pos}, Value: key.Literal},
			}
		case TokenLBracket:
			p.nextToken()
			key := p.parseExpr()
			p.expect(TokenRBracket)
			e = &IndexExpr{SpanVal: p.span(start), Obj: e, Key: key}
		case TokenColon:
			p.nextToken()
			name := p.expect(TokenName).Literal
			args := p.parseArgs()
			e = &MethodCall{SpanVal: p.span(start), Obj: e, Name: name, Args: args}
		case TokenLParen, TokenString, TokenLBrace:
			args := p.parseArgs()
			e = &CallExpr{SpanVal: p.span(start), Fn: e, Args: args}
		default:
			return e
		}
	}
}

func (p *Parser) parseArgs() []Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenString:
		p.nextToken()
		return []Expr{&StringLiteral{SpanVal: Span{Start: tok.Pos, End: tok.Pos}, Value: tok.Literal}}
	case TokenLBrace:
		return []Expr{p.parseTable()}
	case TokenLParen:
		p.nextToken()
		var args []Expr
		if !p.curTokenIs(TokenRParen) {
			args = p.parseExprList()
		}
		p.expectMatch(TokenRParen, TokenLParen, tok.Pos.Line)
		return args
	}
	p.errorf("function arguments expected")
	return nil
}

func (p *Parser) parseTable() Expr {
	start := p.curToken.Pos
	p.expect(TokenLBrace)
	t := &TableExpr{}
	for !p.curTokenIs(TokenRBrace) {
		switch {
		case p.curTokenIs(TokenName) && p.peekTokenIs(TokenAssign):
			key := p.curToken
			p.nextToken()
			p.nextToken()
			t.Fields = append(t.Fields, TableField{
				Key:   &StringLiteral{SpanVal: Span{Start: key.Pos, End: key.Pos}, Value: key.Literal},
				Value: p.parseExpr(),
			})
		case p.curTokenIs(TokenLBracket):
			p.nextToken()
			key := p.parseExpr()
			p.expect(TokenRBracket)
			p.expect(TokenAssign)
			t.Fields = append(t.Fields, TableField{Key: key, Value: p.parseExpr()})
		default:
			t.Fields = append(t.Fields, TableField{Value: p.parseExpr()})
		}
		if !p.accept(TokenComma) && !p.accept(TokenSemicolon) {
			break
		}
	}
	p.expectMatch(TokenRBrace, TokenLBrace, start.Line)
	t.SpanVal = p.span(start)
	return t
}
