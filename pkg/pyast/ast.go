// Package pyast is the syntax tree consumed by the binder and evaluator.
//
// Trees are produced from tree-sitter parses and are immutable afterwards.
// Every node carries a NodeID that is unique within its Module and stable
// for the lifetime of one file version.
package pyast

// NodeID identifies a node within its module.
type NodeID int

// Node is implemented by every syntax node.
type Node interface {
	ID() NodeID
	Loc() *SourceLocation
	Span() (start, end int)
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Pattern is a match-statement pattern.
type Pattern interface {
	Node
	patternNode()
}

type node struct {
	id         NodeID
	loc        *SourceLocation
	start, end int
}

func (n *node) ID() NodeID             { return n.id }
func (n *node) Loc() *SourceLocation   { return n.loc }
func (n *node) Span() (start, end int) { return n.start, n.end }

type expr struct{ node }

func (*expr) exprNode() {}

type stmt struct{ node }

func (*stmt) stmtNode() {}

type pattern struct{ node }

func (*pattern) patternNode() {}

// Module is a parsed source file.
type Module struct {
	node
	Path   string
	Source []byte
	Body   []Stmt
	// IsStub is set for .pyi files.
	IsStub bool
	Errors []*SyntaxError

	parents map[NodeID]Node
	nodes   map[NodeID]Node
	nextID  NodeID
}

// Parent returns the node enclosing n, or nil for the module.
func (m *Module) Parent(n Node) Node {
	return m.parents[n.ID()]
}

// Node looks up a node by ID.
func (m *Module) Node(id NodeID) Node {
	return m.nodes[id]
}

// Text returns the source text spanned by n.
func (m *Module) Text(n Node) string {
	start, end := n.Span()
	if start < 0 || end > len(m.Source) || start > end {
		return ""
	}
	return string(m.Source[start:end])
}

// NodeCount returns the number of IDs allocated so far.
func (m *Module) NodeCount() int {
	return int(m.nextID)
}

// ConstKind classifies a Constant.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstComplex
	ConstStr
	ConstBytes
	ConstBool
	ConstNone
	ConstEllipsis
)

// Expressions.
type (
	// Name is an identifier reference or binding target.
	Name struct {
		expr
		Id string
	}

	// Constant is a literal. Value holds int64 for ints that fit, string
	// for str and bytes, bool for True/False and nil otherwise.
	Constant struct {
		expr
		Kind  ConstKind
		Value any
		// Overflow is set for int literals that do not fit in int64.
		Overflow bool
	}

	// FString is an f-string; Values are the interpolated expressions.
	FString struct {
		expr
		Values []Expr
	}

	Attribute struct {
		expr
		Value   Expr
		Attr    string
		AttrLoc *SourceLocation
	}

	// Subscript indexes Value. Multiple indices are packed into a Tuple.
	Subscript struct {
		expr
		Value Expr
		Index Expr
	}

	Slice struct {
		expr
		Lower, Upper, Step Expr
	}

	Call struct {
		expr
		Func Expr
		Args []*Arg
	}

	BinOp struct {
		expr
		Left  Expr
		Op    string
		Right Expr
	}

	// UnaryOp covers not, -, + and ~.
	UnaryOp struct {
		expr
		Op      string
		Operand Expr
	}

	// BoolOp is a short-circuiting "and" or "or".
	BoolOp struct {
		expr
		Op    string
		Left  Expr
		Right Expr
	}

	// Compare is a possibly chained comparison.
	Compare struct {
		expr
		Left        Expr
		Ops         []string
		Comparators []Expr
	}

	IfExp struct {
		expr
		Test, Body, OrElse Expr
	}

	Lambda struct {
		expr
		Params []*Param
		Body   Expr
	}

	List struct {
		expr
		Elts []Expr
	}

	Tuple struct {
		expr
		Elts          []Expr
		Parenthesized bool
	}

	Set struct {
		expr
		Elts []Expr
	}

	Dict struct {
		expr
		Items []*DictItem
	}

	Comprehension struct {
		expr
		Kind    CompKind
		Elt     Expr
		Value   Expr // dict comprehensions only
		Clauses []*CompFor
	}

	// Starred is *value in a display, call or assignment target.
	Starred struct {
		expr
		Value Expr
	}

	// NamedExpr is an assignment expression (walrus).
	NamedExpr struct {
		expr
		Target *Name
		Value  Expr
	}

	Await struct {
		expr
		Value Expr
	}

	Yield struct {
		expr
		Value Expr
		From  bool
	}

	// ErrorExpr stands in for a span that failed to parse.
	ErrorExpr struct {
		expr
	}
)

// CompKind is the kind of comprehension.
type CompKind int

const (
	CompList CompKind = iota
	CompSet
	CompDict
	CompGenerator
)

// CompFor is one "for ... in ... if ..." clause of a comprehension.
type CompFor struct {
	node
	Target Expr
	Iter   Expr
	Ifs    []Expr
	Async  bool
}

// DictItem is key: value, or **value when Key is nil.
type DictItem struct {
	Key   Expr
	Value Expr
}

// Arg is one argument of a call or class statement.
type Arg struct {
	node
	// Name is set for keyword arguments.
	Name string
	// Star is 1 for *arg and 2 for **arg.
	Star  int
	Value Expr
}

// ParamKind mirrors Python's parameter kinds.
type ParamKind int

const (
	ParamPositionalOnly ParamKind = iota
	ParamPositionalOrKeyword
	ParamKeywordOnly
	ParamVarPositional
	ParamVarKeyword
)

// Param is a function or lambda parameter.
type Param struct {
	node
	Name       string
	Kind       ParamKind
	Annotation Expr
	Default    Expr
}

// TypeParamKind is the flavor of a PEP 695 type parameter.
type TypeParamKind int

const (
	TypeParamTypeVar TypeParamKind = iota
	TypeParamParamSpec
	TypeParamTypeVarTuple
)

// TypeParam is a PEP 695 type parameter.
type TypeParam struct {
	node
	Name    string
	Kind    TypeParamKind
	Bound   Expr
	Default Expr
}

// Alias is one name of an import statement.
type Alias struct {
	node
	Name   string
	AsName string
}

// Statements.
type (
	ExprStmt struct {
		stmt
		Value Expr
	}

	// Assign is "a = b = value". Targets are assigned left to right.
	Assign struct {
		stmt
		Targets []Expr
		Value   Expr
	}

	// AnnAssign is "target: annotation [= value]".
	AnnAssign struct {
		stmt
		Target     Expr
		Annotation Expr
		Value      Expr
	}

	AugAssign struct {
		stmt
		Target Expr
		Op     string
		Value  Expr
	}

	Return struct {
		stmt
		Value Expr
	}

	// If represents if/elif/else; an elif becomes a nested If in Else.
	If struct {
		stmt
		Test Expr
		Body []Stmt
		Else []Stmt
	}

	While struct {
		stmt
		Test Expr
		Body []Stmt
		Else []Stmt
	}

	For struct {
		stmt
		Target Expr
		Iter   Expr
		Body   []Stmt
		Else   []Stmt
		Async  bool
	}

	Break struct{ stmt }

	Continue struct{ stmt }

	Pass struct{ stmt }

	Raise struct {
		stmt
		Exc   Expr
		Cause Expr
	}

	Try struct {
		stmt
		Body     []Stmt
		Handlers []*ExceptHandler
		Else     []Stmt
		Finally  []Stmt
	}

	With struct {
		stmt
		Items []*WithItem
		Body  []Stmt
		Async bool
	}

	FunctionDef struct {
		stmt
		Name       string
		NameLoc    *SourceLocation
		TypeParams []*TypeParam
		Params     []*Param
		Returns    Expr
		Body       []Stmt
		Decorators []Expr
		Async      bool
	}

	ClassDef struct {
		stmt
		Name       string
		NameLoc    *SourceLocation
		TypeParams []*TypeParam
		Bases      []*Arg
		Body       []Stmt
		Decorators []Expr
	}

	Import struct {
		stmt
		Names []*Alias
	}

	ImportFrom struct {
		stmt
		Module   string
		Level    int
		Names    []*Alias
		Wildcard bool
	}

	Global struct {
		stmt
		Names []string
	}

	Nonlocal struct {
		stmt
		Names []string
	}

	Assert struct {
		stmt
		Test Expr
		Msg  Expr
	}

	Delete struct {
		stmt
		Targets []Expr
	}

	Match struct {
		stmt
		Subject Expr
		Cases   []*MatchCase
	}

	// TypeAlias is a PEP 695 "type X[T] = value" statement.
	TypeAlias struct {
		stmt
		Name       *Name
		TypeParams []*TypeParam
		Value      Expr
	}
)

// ExceptHandler is one except clause.
type ExceptHandler struct {
	node
	Type    Expr
	Name    *Name
	Body    []Stmt
	IsGroup bool
}

// WithItem is one context manager of a with statement.
type WithItem struct {
	node
	Context Expr
	Target  Expr
}

// MatchCase is one case block.
type MatchCase struct {
	node
	Pattern Pattern
	Guard   Expr
	Body    []Stmt
}

// Patterns.
type (
	// MatchValue matches by equality against a literal or dotted name.
	MatchValue struct {
		pattern
		Value Expr
	}

	// MatchSingleton matches None, True or False by identity.
	MatchSingleton struct {
		pattern
		Value *Constant
	}

	// MatchCapture binds the subject; Target nil is the wildcard "_".
	MatchCapture struct {
		pattern
		Target *Name
	}

	MatchSequence struct {
		pattern
		Patterns []Pattern
	}

	// MatchStar is *name inside a sequence pattern.
	MatchStar struct {
		pattern
		Target *Name
	}

	MatchMapping struct {
		pattern
		Keys   []Expr
		Values []Pattern
		Rest   *Name
	}

	MatchClass struct {
		pattern
		Cls         Expr
		Patterns    []Pattern
		KwdNames    []string
		KwdPatterns []Pattern
	}

	MatchAs struct {
		pattern
		Pattern Pattern
		Target  *Name
	}

	MatchOr struct {
		pattern
		Patterns []Pattern
	}
)
