package compiler

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Line returns the line a node starts on.
func Line(n Node) int { return n.Span().Start.Line }

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// NilLiteral is nil.
type NilLiteral struct {
	SpanVal Span
}

func (n *NilLiteral) Span() Span { return n.SpanVal }
func (n *NilLiteral) node()      {}
func (n *NilLiteral) expr()      {}

// BoolLiteral is true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// VarargExpr is "...".
type VarargExpr struct {
	SpanVal Span
}

func (n *VarargExpr) Span() Span { return n.SpanVal }
func (n *VarargExpr) node()      {}
func (n *VarargExpr) expr()      {}

// NameExpr references a local, upvalue or global variable.
type NameExpr struct {
	SpanVal Span
	Name    string
}

func (n *NameExpr) Span() Span { return n.SpanVal }
func (n *NameExpr) node()      {}
func (n *NameExpr) expr()      {}

// IndexExpr is Obj[Key]; Obj.name is sugar with a string key.
type IndexExpr struct {
	SpanVal Span
	Obj     Expr
	Key     Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr is Fn(Args...).
type CallExpr struct {
	SpanVal Span
	Fn      Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// MethodCall is Obj:Name(Args...).
type MethodCall struct {
	SpanVal Span
	Obj     Expr
	Name    string
	Args    []Expr
}

func (n *MethodCall) Span() Span { return n.SpanVal }
func (n *MethodCall) node()      {}
func (n *MethodCall) expr()      {}

// FunctionExpr is a function constructor.
type FunctionExpr struct {
	SpanVal  Span
	Params   []string
	IsVararg bool
	Body     *Block
}

func (n *FunctionExpr) Span() Span { return n.SpanVal }
func (n *FunctionExpr) node()      {}
func (n *FunctionExpr) expr()      {}

// BinaryExpr applies a binary operator, including "and" and "or".
type BinaryExpr struct {
	SpanVal Span
	Op      BinOp
	OpLine  int
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	SpanVal Span
	Op      UnOp
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// ParenExpr is a parenthesized expression; it truncates multiple results
// to one.
type ParenExpr struct {
	SpanVal Span
	Inner   Expr
}

func (n *ParenExpr) Span() Span { return n.SpanVal }
func (n *ParenExpr) node()      {}
func (n *ParenExpr) expr()      {}

// TableField is one entry of a table constructor. Key is nil for
// positional items.
type TableField struct {
	Key   Expr
	Value Expr
}

// TableExpr is a table constructor.
type TableExpr struct {
	SpanVal Span
	Fields  []TableField
}

func (n *TableExpr) Span() Span { return n.SpanVal }
func (n *TableExpr) node()      {}
func (n *TableExpr) expr()      {}

// BinOp is a binary operator.
type BinOp int

// Arithmetic and bitwise operators come first, in the order of the
// corresponding opcodes.
const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpMod
	OpPow
	OpDiv
	OpIDiv
	OpBAnd
	OpBOr
	OpBXor
	OpShl
	OpShr
	OpConcat
	OpEq
	OpLt
	OpLe
	OpNe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binOpNames = [...]string{
	"+", "-", "*", "%", "^", "/", "//", "&", "|", "~", "<<", ">>",
	"..", "==", "<", "<=", "~=", ">", ">=", "and", "or",
}

func (op BinOp) String() string { return binOpNames[op] }

// UnOp is a unary operator.
type UnOp int

const (
	OpMinus UnOp = iota
	OpBNot
	OpNot
	OpLen
)

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Block is a sequence of statements forming a scope.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}

// Attrib is the attribute of a local variable.
type Attrib int

const (
	AttribNone Attrib = iota
	AttribConst
	AttribClose
)

// LocalStmt declares local variables.
type LocalStmt struct {
	SpanVal Span
	Names   []string
	Attribs []Attrib
	Exprs   []Expr
}

func (n *LocalStmt) Span() Span { return n.SpanVal }
func (n *LocalStmt) node()      {}
func (n *LocalStmt) stmt()      {}

// AssignStmt assigns to variables and fields.
type AssignStmt struct {
	SpanVal Span
	Targets []Expr
	Exprs   []Expr
}

func (n *AssignStmt) Span() Span { return n.SpanVal }
func (n *AssignStmt) node()      {}
func (n *AssignStmt) stmt()      {}

// CallStmt is a function or method call used as a statement.
type CallStmt struct {
	SpanVal Span
	Call    Expr
}

func (n *CallStmt) Span() Span { return n.SpanVal }
func (n *CallStmt) node()      {}
func (n *CallStmt) stmt()      {}

// DoStmt is do ... end.
type DoStmt struct {
	SpanVal Span
	Body    *Block
}

func (n *DoStmt) Span() Span { return n.SpanVal }
func (n *DoStmt) node()      {}
func (n *DoStmt) stmt()      {}

// WhileStmt is while Cond do ... end.
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *Block
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// RepeatStmt is repeat ... until Cond; Cond sees the body's locals.
type RepeatStmt struct {
	SpanVal Span
	Body    *Block
	Cond    Expr
}

func (n *RepeatStmt) Span() Span { return n.SpanVal }
func (n *RepeatStmt) node()      {}
func (n *RepeatStmt) stmt()      {}

// IfStmt is if/elseif/else. Conds[i] guards Blocks[i].
type IfStmt struct {
	SpanVal Span
	Conds   []Expr
	Blocks  []*Block
	Else    *Block
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// NumericForStmt is for Var = Start, Limit[, Step] do ... end.
type NumericForStmt struct {
	SpanVal Span
	Var     string
	Start   Expr
	Limit   Expr
	Step    Expr
	Body    *Block
}

func (n *NumericForStmt) Span() Span { return n.SpanVal }
func (n *NumericForStmt) node()      {}
func (n *NumericForStmt) stmt()      {}

// GenericForStmt is for Names in Exprs do ... end.
type GenericForStmt struct {
	SpanVal Span
	Names   []string
	Exprs   []Expr
	Body    *Block
}

func (n *GenericForStmt) Span() Span { return n.SpanVal }
func (n *GenericForStmt) node()      {}
func (n *GenericForStmt) stmt()      {}

// FunctionStmt is function a.b.c[:m](...) ... end. Target is a NameExpr
// or IndexExpr; for methods Func already has the self parameter.
type FunctionStmt struct {
	SpanVal Span
	Target  Expr
	Func    *FunctionExpr
}

func (n *FunctionStmt) Span() Span { return n.SpanVal }
func (n *FunctionStmt) node()      {}
func (n *FunctionStmt) stmt()      {}

// LocalFunctionStmt is local function Name(...) ... end.
type LocalFunctionStmt struct {
	SpanVal Span
	Name    string
	Func    *FunctionExpr
}

func (n *LocalFunctionStmt) Span() Span { return n.SpanVal }
func (n *LocalFunctionStmt) node()      {}
func (n *LocalFunctionStmt) stmt()      {}

// ReturnStmt returns values from the enclosing function.
type ReturnStmt struct {
	SpanVal Span
	Exprs   []Expr
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// BreakStmt leaves the innermost loop.
type BreakStmt struct {
	SpanVal Span
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// Chunk is a parsed source unit: the body of the main function.
type Chunk struct {
	Name string
	Body *Block
}
