package pyast

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var (
	tsParser *tree_sitter.Parser
	tsMu     sync.Mutex
)

func init() {
	tsParser = tree_sitter.NewParser()
	if err := tsParser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		panic("failed to set tree-sitter language: " + err.Error())
	}
}

func parseTree(source []byte) (*tree_sitter.Tree, error) {
	// tree-sitter parsers are not thread-safe; serialize access.
	tsMu.Lock()
	tree := tsParser.Parse(source, nil)
	tsMu.Unlock()
	if tree == nil {
		return nil, errors.New("parser returned no tree")
	}
	return tree, nil
}

// Parse parses a Python source file. Syntax errors do not fail the parse;
// they are recorded on the module and the offending spans become
// ErrorExpr nodes or are dropped.
func Parse(path string, source []byte) (*Module, error) {
	tree, err := parseTree(source)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	defer tree.Close()

	c := &converter{path: path, src: source}
	root := tree.RootNode()
	mod := &Module{
		Path:   path,
		Source: source,
		IsStub: strings.HasSuffix(path, ".pyi"),
	}
	c.init(&mod.node, root)
	mod.Body = c.block(root)
	c.collectErrors(root)
	mod.Errors = c.errors
	mod.nextID = c.nextID
	mod.parents, mod.nodes = index(mod)
	return mod, nil
}

// ParseExpression parses text as a single expression, numbering nodes from
// firstID. It is used for string annotations; every node is located at loc.
// The returned ID is the next one free.
func ParseExpression(path, text string, firstID NodeID, loc *SourceLocation) (Expr, NodeID, error) {
	source := []byte(strings.TrimSpace(text))
	tree, err := parseTree(source)
	if err != nil {
		return nil, firstID, errors.Wrapf(err, "parse annotation %q", text)
	}
	defer tree.Close()

	c := &converter{path: path, src: source, nextID: firstID, fixedLoc: loc}
	root := tree.RootNode()
	if root.HasError() {
		return nil, firstID, errors.Errorf("invalid expression %q", text)
	}
	stmts := namedChildren(root)
	if len(stmts) != 1 || stmts[0].Kind() != "expression_statement" {
		return nil, firstID, errors.Errorf("expected expression, got %q", text)
	}
	inner := namedChildren(stmts[0])
	if len(inner) != 1 || strings.HasSuffix(inner[0].Kind(), "assignment") {
		return nil, firstID, errors.Errorf("expected single expression, got %q", text)
	}
	return c.expr(inner[0]), c.nextID, nil
}

func index(mod *Module) (map[NodeID]Node, map[NodeID]Node) {
	parents := make(map[NodeID]Node, mod.nextID)
	nodes := make(map[NodeID]Node, mod.nextID)
	var visit func(parent, n Node)
	visit = func(parent, n Node) {
		nodes[n.ID()] = n
		if parent != nil {
			parents[n.ID()] = parent
		}
		for _, c := range Children(n) {
			visit(n, c)
		}
	}
	visit(nil, mod)
	return parents, nodes
}

type converter struct {
	path     string
	src      []byte
	nextID   NodeID
	errors   []*SyntaxError
	fixedLoc *SourceLocation
}

func (c *converter) init(n *node, ts *tree_sitter.Node) {
	c.nextID++
	n.id = c.nextID
	n.start = int(ts.StartByte())
	n.end = int(ts.EndByte())
	n.loc = c.loc(ts)
	if c.fixedLoc != nil {
		n.start, n.end = 0, 0
	}
}

func (c *converter) loc(ts *tree_sitter.Node) *SourceLocation {
	if c.fixedLoc != nil {
		return c.fixedLoc
	}
	start, end := ts.StartPosition(), ts.EndPosition()
	return &SourceLocation{
		Filename: c.path,
		Line:     int(start.Row) + 1,
		Column:   int(start.Column) + 1,
		Length:   int(ts.EndByte() - ts.StartByte()),
		End: &SourcePosition{
			Line:   int(end.Row) + 1,
			Column: int(end.Column) + 1,
		},
	}
}

func (c *converter) text(ts *tree_sitter.Node) string {
	return ts.Utf8Text(c.src)
}

func (c *converter) collectErrors(root *tree_sitter.Node) {
	if !root.HasError() {
		return
	}
	walkTS(root, func(n *tree_sitter.Node) bool {
		switch {
		case n.IsError():
			c.errors = append(c.errors, &SyntaxError{
				Message:  "invalid syntax",
				Location: c.loc(n),
			})
			return false
		case n.IsMissing():
			c.errors = append(c.errors, &SyntaxError{
				Message:  "expected " + strconv.Quote(n.Kind()),
				Location: c.loc(n),
			})
			return false
		}
		return n.HasError()
	})
}

// walkTS does a depth-first walk of the tree-sitter node, calling fn for each
// node. If fn returns false, children are skipped.
func walkTS(node *tree_sitter.Node, fn func(*tree_sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil {
			walkTS(child, fn)
		}
	}
}

func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func allChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	out := make([]*tree_sitter.Node, 0, n.ChildCount())
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func hasChildKind(n *tree_sitter.Node, kind string) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil && child.Kind() == kind {
			return true
		}
	}
	return false
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// block converts the statements of a module or suite.
func (c *converter) block(ts *tree_sitter.Node) []Stmt {
	if ts == nil {
		return nil
	}
	var out []Stmt
	for _, child := range namedChildren(ts) {
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) stmt(ts *tree_sitter.Node) Stmt {
	switch ts.Kind() {
	case "expression_statement":
		return c.exprStmt(ts)
	case "return_statement":
		s := &Return{}
		c.init(&s.node, ts)
		if kids := namedChildren(ts); len(kids) > 0 {
			s.Value = c.expr(kids[0])
		}
		return s
	case "pass_statement":
		s := &Pass{}
		c.init(&s.node, ts)
		return s
	case "break_statement":
		s := &Break{}
		c.init(&s.node, ts)
		return s
	case "continue_statement":
		s := &Continue{}
		c.init(&s.node, ts)
		return s
	case "delete_statement":
		s := &Delete{}
		c.init(&s.node, ts)
		for _, k := range namedChildren(ts) {
			if t, ok := c.expr(k).(*Tuple); ok && !t.Parenthesized {
				s.Targets = append(s.Targets, t.Elts...)
				continue
			}
			s.Targets = append(s.Targets, c.expr(k))
		}
		return s
	case "raise_statement":
		s := &Raise{}
		c.init(&s.node, ts)
		cause := ts.ChildByFieldName("cause")
		if cause != nil {
			s.Cause = c.expr(cause)
		}
		for _, k := range namedChildren(ts) {
			if !sameNode(k, cause) {
				s.Exc = c.expr(k)
				break
			}
		}
		return s
	case "global_statement":
		s := &Global{}
		c.init(&s.node, ts)
		for _, k := range namedChildren(ts) {
			s.Names = append(s.Names, c.text(k))
		}
		return s
	case "nonlocal_statement":
		s := &Nonlocal{}
		c.init(&s.node, ts)
		for _, k := range namedChildren(ts) {
			s.Names = append(s.Names, c.text(k))
		}
		return s
	case "assert_statement":
		s := &Assert{}
		c.init(&s.node, ts)
		kids := namedChildren(ts)
		if len(kids) > 0 {
			s.Test = c.expr(kids[0])
		}
		if len(kids) > 1 {
			s.Msg = c.expr(kids[1])
		}
		return s
	case "import_statement":
		s := &Import{}
		c.init(&s.node, ts)
		for _, k := range namedChildren(ts) {
			s.Names = append(s.Names, c.alias(k))
		}
		return s
	case "import_from_statement", "future_import_statement":
		return c.importFrom(ts)
	case "if_statement":
		return c.ifStmt(ts)
	case "for_statement":
		s := &For{Async: hasChildKind(ts, "async")}
		c.init(&s.node, ts)
		s.Target = c.expr(ts.ChildByFieldName("left"))
		s.Iter = c.expr(ts.ChildByFieldName("right"))
		s.Body = c.block(ts.ChildByFieldName("body"))
		s.Else = c.elseBody(ts.ChildByFieldName("alternative"))
		return s
	case "while_statement":
		s := &While{}
		c.init(&s.node, ts)
		s.Test = c.expr(ts.ChildByFieldName("condition"))
		s.Body = c.block(ts.ChildByFieldName("body"))
		s.Else = c.elseBody(ts.ChildByFieldName("alternative"))
		return s
	case "try_statement":
		return c.tryStmt(ts)
	case "with_statement":
		return c.withStmt(ts)
	case "function_definition":
		return c.funcDef(ts, nil)
	case "class_definition":
		return c.classDef(ts, nil)
	case "decorated_definition":
		var decorators []Expr
		for _, k := range namedChildren(ts) {
			if k.Kind() == "decorator" {
				if inner := namedChildren(k); len(inner) > 0 {
					decorators = append(decorators, c.expr(inner[0]))
				}
			}
		}
		def := ts.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		switch def.Kind() {
		case "function_definition":
			return c.funcDef(def, decorators)
		case "class_definition":
			return c.classDef(def, decorators)
		}
		return nil
	case "match_statement":
		return c.matchStmt(ts)
	case "type_alias_statement":
		return c.typeAlias(ts)
	}
	return nil
}

func (c *converter) exprStmt(ts *tree_sitter.Node) Stmt {
	kids := namedChildren(ts)
	if len(kids) == 1 {
		switch kids[0].Kind() {
		case "assignment":
			return c.assignment(kids[0], ts)
		case "augmented_assignment":
			k := kids[0]
			s := &AugAssign{}
			c.init(&s.node, ts)
			s.Target = c.expr(k.ChildByFieldName("left"))
			if op := k.ChildByFieldName("operator"); op != nil {
				s.Op = strings.TrimSuffix(op.Kind(), "=")
			}
			s.Value = c.expr(k.ChildByFieldName("right"))
			return s
		}
	}
	s := &ExprStmt{}
	c.init(&s.node, ts)
	if len(kids) == 1 {
		s.Value = c.expr(kids[0])
	} else {
		t := &Tuple{}
		c.init(&t.node, ts)
		for _, k := range kids {
			t.Elts = append(t.Elts, c.expr(k))
		}
		s.Value = t
	}
	return s
}

func (c *converter) assignment(ts, stmtNode *tree_sitter.Node) Stmt {
	left := ts.ChildByFieldName("left")
	right := ts.ChildByFieldName("right")
	if typ := ts.ChildByFieldName("type"); typ != nil {
		s := &AnnAssign{}
		c.init(&s.node, stmtNode)
		s.Target = c.expr(left)
		s.Annotation = c.expr(typ)
		if right != nil {
			s.Value = c.expr(right)
		}
		return s
	}
	s := &Assign{}
	c.init(&s.node, stmtNode)
	s.Targets = append(s.Targets, c.expr(left))
	for right != nil && right.Kind() == "assignment" {
		s.Targets = append(s.Targets, c.expr(right.ChildByFieldName("left")))
		right = right.ChildByFieldName("right")
	}
	if right != nil {
		s.Value = c.expr(right)
	} else {
		e := &ErrorExpr{}
		c.init(&e.node, ts)
		s.Value = e
	}
	return s
}

func (c *converter) alias(ts *tree_sitter.Node) *Alias {
	a := &Alias{}
	c.init(&a.node, ts)
	if ts.Kind() == "aliased_import" {
		a.Name = c.text(ts.ChildByFieldName("name"))
		if as := ts.ChildByFieldName("alias"); as != nil {
			a.AsName = c.text(as)
		}
		return a
	}
	a.Name = c.text(ts)
	return a
}

func (c *converter) importFrom(ts *tree_sitter.Node) Stmt {
	s := &ImportFrom{}
	c.init(&s.node, ts)
	mod := ts.ChildByFieldName("module_name")
	if ts.Kind() == "future_import_statement" {
		s.Module = "__future__"
	} else if mod != nil {
		if mod.Kind() == "relative_import" {
			for _, k := range namedChildren(mod) {
				switch k.Kind() {
				case "import_prefix":
					s.Level = strings.Count(c.text(k), ".")
				case "dotted_name":
					s.Module = c.text(k)
				}
			}
		} else {
			s.Module = c.text(mod)
		}
	}
	for _, k := range namedChildren(ts) {
		if sameNode(k, mod) {
			continue
		}
		switch k.Kind() {
		case "wildcard_import":
			s.Wildcard = true
		case "dotted_name", "aliased_import":
			s.Names = append(s.Names, c.alias(k))
		}
	}
	return s
}

func (c *converter) ifStmt(ts *tree_sitter.Node) Stmt {
	s := &If{}
	c.init(&s.node, ts)
	s.Test = c.expr(ts.ChildByFieldName("condition"))
	s.Body = c.block(ts.ChildByFieldName("consequence"))

	// Fold elif clauses into nested Ifs.
	tail := s
	for _, k := range namedChildren(ts) {
		switch k.Kind() {
		case "elif_clause":
			elif := &If{}
			c.init(&elif.node, k)
			elif.Test = c.expr(k.ChildByFieldName("condition"))
			elif.Body = c.block(k.ChildByFieldName("consequence"))
			tail.Else = []Stmt{elif}
			tail = elif
		case "else_clause":
			tail.Else = c.block(k.ChildByFieldName("body"))
		}
	}
	return s
}

func (c *converter) elseBody(ts *tree_sitter.Node) []Stmt {
	if ts == nil {
		return nil
	}
	if body := ts.ChildByFieldName("body"); body != nil {
		return c.block(body)
	}
	for _, k := range namedChildren(ts) {
		if k.Kind() == "block" {
			return c.block(k)
		}
	}
	return nil
}

func lastBlock(ts *tree_sitter.Node) *tree_sitter.Node {
	kids := namedChildren(ts)
	for i := len(kids) - 1; i >= 0; i-- {
		if kids[i].Kind() == "block" {
			return kids[i]
		}
	}
	return nil
}

func (c *converter) tryStmt(ts *tree_sitter.Node) Stmt {
	s := &Try{}
	c.init(&s.node, ts)
	s.Body = c.block(ts.ChildByFieldName("body"))
	for _, k := range namedChildren(ts) {
		switch k.Kind() {
		case "except_clause", "except_group_clause":
			h := &ExceptHandler{IsGroup: k.Kind() == "except_group_clause"}
			c.init(&h.node, k)
			body := lastBlock(k)
			var exprs []*tree_sitter.Node
			for _, e := range namedChildren(k) {
				if !sameNode(e, body) {
					exprs = append(exprs, e)
				}
			}
			if len(exprs) == 1 && exprs[0].Kind() == "as_pattern" {
				inner := namedChildren(exprs[0])
				exprs = nil
				if len(inner) > 0 {
					exprs = append(exprs, inner[0])
				}
				if len(inner) > 1 {
					exprs = append(exprs, asTarget(inner[len(inner)-1]))
				}
			}
			if len(exprs) > 0 {
				h.Type = c.expr(exprs[0])
			}
			if len(exprs) > 1 {
				if n, ok := c.expr(exprs[1]).(*Name); ok {
					h.Name = n
				}
			}
			h.Body = c.block(body)
			s.Handlers = append(s.Handlers, h)
		case "else_clause":
			s.Else = c.elseBody(k)
		case "finally_clause":
			s.Finally = c.block(lastBlock(k))
		}
	}
	return s
}

// asTarget unwraps the as_pattern_target wrapper around a bound name.
func asTarget(n *tree_sitter.Node) *tree_sitter.Node {
	if n.Kind() == "as_pattern_target" {
		if kids := namedChildren(n); len(kids) > 0 {
			return kids[0]
		}
	}
	return n
}

func (c *converter) withStmt(ts *tree_sitter.Node) Stmt {
	s := &With{Async: hasChildKind(ts, "async")}
	c.init(&s.node, ts)
	var items []*tree_sitter.Node
	walkTS(ts, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "with_item":
			items = append(items, n)
			return false
		case "block":
			return false
		}
		return true
	})
	for _, it := range items {
		item := &WithItem{}
		c.init(&item.node, it)
		value := it.ChildByFieldName("value")
		if value == nil {
			if kids := namedChildren(it); len(kids) > 0 {
				value = kids[0]
			}
		}
		if value != nil && value.Kind() == "as_pattern" {
			inner := namedChildren(value)
			if len(inner) > 0 {
				item.Context = c.expr(inner[0])
			}
			if alias := value.ChildByFieldName("alias"); alias != nil {
				item.Target = c.expr(asTarget(alias))
			} else if len(inner) > 1 {
				item.Target = c.expr(asTarget(inner[len(inner)-1]))
			}
		} else if value != nil {
			item.Context = c.expr(value)
		}
		if item.Context == nil {
			e := &ErrorExpr{}
			c.init(&e.node, it)
			item.Context = e
		}
		s.Items = append(s.Items, item)
	}
	s.Body = c.block(ts.ChildByFieldName("body"))
	return s
}

func (c *converter) funcDef(ts *tree_sitter.Node, decorators []Expr) Stmt {
	s := &FunctionDef{Decorators: decorators, Async: hasChildKind(ts, "async")}
	c.init(&s.node, ts)
	if name := ts.ChildByFieldName("name"); name != nil {
		s.Name = c.text(name)
		s.NameLoc = c.loc(name)
	}
	s.TypeParams = c.typeParams(ts.ChildByFieldName("type_parameters"))
	s.Params = c.params(ts.ChildByFieldName("parameters"))
	if ret := ts.ChildByFieldName("return_type"); ret != nil {
		s.Returns = c.expr(ret)
	}
	s.Body = c.block(ts.ChildByFieldName("body"))
	return s
}

func (c *converter) classDef(ts *tree_sitter.Node, decorators []Expr) Stmt {
	s := &ClassDef{Decorators: decorators}
	c.init(&s.node, ts)
	if name := ts.ChildByFieldName("name"); name != nil {
		s.Name = c.text(name)
		s.NameLoc = c.loc(name)
	}
	s.TypeParams = c.typeParams(ts.ChildByFieldName("type_parameters"))
	if supers := ts.ChildByFieldName("superclasses"); supers != nil {
		s.Bases = c.args(supers)
	}
	s.Body = c.block(ts.ChildByFieldName("body"))
	return s
}

func (c *converter) typeParams(ts *tree_sitter.Node) []*TypeParam {
	if ts == nil {
		return nil
	}
	var out []*TypeParam
	for _, k := range namedChildren(ts) {
		inner := k
		if inner.Kind() == "type" {
			kids := namedChildren(inner)
			if len(kids) == 0 {
				continue
			}
			inner = kids[0]
		}
		tp := &TypeParam{}
		c.init(&tp.node, k)
		switch inner.Kind() {
		case "identifier":
			tp.Name = c.text(inner)
		case "splat_type":
			if hasChildKind(inner, "**") {
				tp.Kind = TypeParamParamSpec
			} else {
				tp.Kind = TypeParamTypeVarTuple
			}
			if kids := namedChildren(inner); len(kids) > 0 {
				tp.Name = c.text(kids[0])
			}
		case "constrained_type":
			kids := namedChildren(inner)
			if len(kids) > 0 {
				tp.Name = strings.TrimSpace(c.text(kids[0]))
			}
			if len(kids) > 1 {
				tp.Bound = c.expr(kids[1])
			}
		default:
			continue
		}
		out = append(out, tp)
	}
	return out
}

func (c *converter) params(ts *tree_sitter.Node) []*Param {
	if ts == nil {
		return nil
	}
	var out []*Param
	kind := ParamPositionalOrKeyword
	sawSlash := false
	for _, k := range namedChildren(ts) {
		p := &Param{Kind: kind}
		c.init(&p.node, k)
		switch k.Kind() {
		case "identifier":
			p.Name = c.text(k)
		case "typed_parameter":
			kids := namedChildren(k)
			if len(kids) > 0 {
				c.paramName(p, kids[0])
			}
			if typ := k.ChildByFieldName("type"); typ != nil {
				p.Annotation = c.expr(typ)
			}
		case "default_parameter":
			c.paramName(p, k.ChildByFieldName("name"))
			p.Default = c.expr(k.ChildByFieldName("value"))
		case "typed_default_parameter":
			c.paramName(p, k.ChildByFieldName("name"))
			if typ := k.ChildByFieldName("type"); typ != nil {
				p.Annotation = c.expr(typ)
			}
			p.Default = c.expr(k.ChildByFieldName("value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			c.paramName(p, k)
		case "positional_separator":
			sawSlash = true
			for _, prev := range out {
				if prev.Kind == ParamPositionalOrKeyword {
					prev.Kind = ParamPositionalOnly
				}
			}
			continue
		case "keyword_separator":
			kind = ParamKeywordOnly
			continue
		default:
			continue
		}
		if p.Kind == ParamVarPositional {
			kind = ParamKeywordOnly
		}
		out = append(out, p)
	}
	if !sawSlash {
		markDunderPositionalOnly(out)
	}
	return out
}

// markDunderPositionalOnly applies the pre-PEP 570 convention: leading
// parameters named __x are positional-only.
func markDunderPositionalOnly(params []*Param) {
	for i, p := range params {
		if p.Kind != ParamPositionalOrKeyword {
			return
		}
		if strings.HasPrefix(p.Name, "__") && !strings.HasSuffix(p.Name, "__") {
			p.Kind = ParamPositionalOnly
			continue
		}
		// self and cls may precede the dunder parameters.
		if i == 0 && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		return
	}
}

func (c *converter) paramName(p *Param, ts *tree_sitter.Node) {
	if ts == nil {
		return
	}
	switch ts.Kind() {
	case "list_splat_pattern":
		p.Kind = ParamVarPositional
		if kids := namedChildren(ts); len(kids) > 0 {
			p.Name = c.text(kids[0])
		}
	case "dictionary_splat_pattern":
		p.Kind = ParamVarKeyword
		if kids := namedChildren(ts); len(kids) > 0 {
			p.Name = c.text(kids[0])
		}
	default:
		p.Name = c.text(ts)
	}
}

func (c *converter) args(ts *tree_sitter.Node) []*Arg {
	var out []*Arg
	for _, k := range namedChildren(ts) {
		a := &Arg{}
		c.init(&a.node, k)
		switch k.Kind() {
		case "keyword_argument":
			a.Name = c.text(k.ChildByFieldName("name"))
			a.Value = c.expr(k.ChildByFieldName("value"))
		case "list_splat":
			a.Star = 1
			a.Value = c.firstExpr(k)
		case "dictionary_splat":
			a.Star = 2
			a.Value = c.firstExpr(k)
		default:
			a.Value = c.expr(k)
		}
		out = append(out, a)
	}
	return out
}

func (c *converter) firstExpr(ts *tree_sitter.Node) Expr {
	if kids := namedChildren(ts); len(kids) > 0 {
		return c.expr(kids[0])
	}
	e := &ErrorExpr{}
	c.init(&e.node, ts)
	return e
}

func (c *converter) typeAlias(ts *tree_sitter.Node) Stmt {
	s := &TypeAlias{}
	c.init(&s.node, ts)
	left := ts.ChildByFieldName("left")
	if left != nil && left.Kind() == "type" {
		if kids := namedChildren(left); len(kids) > 0 {
			left = kids[0]
		}
	}
	if left != nil {
		switch left.Kind() {
		case "generic_type":
			kids := namedChildren(left)
			if len(kids) > 0 {
				s.Name = c.name(kids[0])
			}
			if len(kids) > 1 {
				s.TypeParams = c.typeParams(kids[1])
			}
		default:
			s.Name = c.name(left)
		}
	}
	s.Value = c.expr(ts.ChildByFieldName("right"))
	return s
}

func (c *converter) name(ts *tree_sitter.Node) *Name {
	n := &Name{Id: c.text(ts)}
	c.init(&n.node, ts)
	return n
}

func (c *converter) matchStmt(ts *tree_sitter.Node) Stmt {
	s := &Match{}
	c.init(&s.node, ts)
	body := ts.ChildByFieldName("body")
	var subjects []Expr
	for _, k := range namedChildren(ts) {
		if sameNode(k, body) || k.Kind() == "block" {
			break
		}
		subjects = append(subjects, c.expr(k))
	}
	switch len(subjects) {
	case 0:
		e := &ErrorExpr{}
		c.init(&e.node, ts)
		s.Subject = e
	case 1:
		s.Subject = subjects[0]
	default:
		t := &Tuple{Elts: subjects}
		c.init(&t.node, ts)
		s.Subject = t
	}
	if body == nil {
		body = lastBlock(ts)
	}
	for _, k := range namedChildren(body) {
		if k.Kind() != "case_clause" {
			continue
		}
		mc := &MatchCase{}
		c.init(&mc.node, k)
		var pats []Pattern
		for _, p := range namedChildren(k) {
			switch p.Kind() {
			case "case_pattern":
				pats = append(pats, c.pattern(p))
			case "if_clause":
				mc.Guard = c.firstExpr(p)
			case "block":
				mc.Body = c.block(p)
			}
		}
		if guard := k.ChildByFieldName("guard"); guard != nil && mc.Guard == nil {
			mc.Guard = c.firstExpr(guard)
		}
		if cons := k.ChildByFieldName("consequence"); cons != nil && mc.Body == nil {
			mc.Body = c.block(cons)
		}
		switch len(pats) {
		case 0:
			w := &MatchCapture{}
			c.init(&w.node, k)
			mc.Pattern = w
		case 1:
			mc.Pattern = pats[0]
		default:
			seq := &MatchSequence{Patterns: pats}
			c.init(&seq.node, k)
			mc.Pattern = seq
		}
		s.Cases = append(s.Cases, mc)
	}
	return s
}

func (c *converter) pattern(ts *tree_sitter.Node) Pattern {
	switch ts.Kind() {
	case "case_pattern":
		kids := namedChildren(ts)
		if len(kids) == 0 {
			w := &MatchCapture{}
			c.init(&w.node, ts)
			return w
		}
		if hasChildKind(ts, "-") {
			v := &MatchValue{}
			c.init(&v.node, ts)
			neg := &UnaryOp{Op: "-", Operand: c.expr(kids[0])}
			c.init(&neg.node, ts)
			v.Value = neg
			return v
		}
		return c.pattern(kids[0])
	case "as_pattern":
		kids := namedChildren(ts)
		p := &MatchAs{}
		c.init(&p.node, ts)
		if len(kids) > 0 {
			p.Pattern = c.pattern(kids[0])
		}
		if len(kids) > 1 {
			p.Target = c.name(asTarget(kids[len(kids)-1]))
		}
		return p
	case "union_pattern":
		p := &MatchOr{}
		c.init(&p.node, ts)
		for _, k := range namedChildren(ts) {
			p.Patterns = append(p.Patterns, c.pattern(k))
		}
		return p
	case "class_pattern":
		p := &MatchClass{}
		c.init(&p.node, ts)
		kids := namedChildren(ts)
		if len(kids) == 0 {
			return p
		}
		p.Cls = c.dottedExpr(kids[0])
		for _, k := range kids[1:] {
			inner := k
			if inner.Kind() == "case_pattern" {
				if ik := namedChildren(inner); len(ik) == 1 && ik[0].Kind() == "keyword_pattern" {
					inner = ik[0]
				}
			}
			if inner.Kind() == "keyword_pattern" {
				kw := namedChildren(inner)
				if len(kw) >= 1 {
					p.KwdNames = append(p.KwdNames, c.text(kw[0]))
					if len(kw) > 1 {
						p.KwdPatterns = append(p.KwdPatterns, c.pattern(kw[1]))
					} else {
						w := &MatchCapture{}
						c.init(&w.node, inner)
						p.KwdPatterns = append(p.KwdPatterns, w)
					}
				}
				continue
			}
			p.Patterns = append(p.Patterns, c.pattern(k))
		}
		return p
	case "list_pattern", "tuple_pattern":
		p := &MatchSequence{}
		c.init(&p.node, ts)
		for _, k := range namedChildren(ts) {
			p.Patterns = append(p.Patterns, c.pattern(k))
		}
		return p
	case "splat_pattern":
		p := &MatchStar{}
		c.init(&p.node, ts)
		if kids := namedChildren(ts); len(kids) > 0 {
			p.Target = c.name(kids[0])
		}
		return p
	case "dict_pattern":
		p := &MatchMapping{}
		c.init(&p.node, ts)
		kids := namedChildren(ts)
		for i := 0; i < len(kids); i++ {
			k := kids[i]
			if k.Kind() == "splat_pattern" {
				if inner := namedChildren(k); len(inner) > 0 {
					p.Rest = c.name(inner[0])
				}
				continue
			}
			if i+1 >= len(kids) {
				break
			}
			p.Keys = append(p.Keys, c.patternKey(k))
			p.Values = append(p.Values, c.pattern(kids[i+1]))
			i++
		}
		return p
	case "dotted_name":
		kids := namedChildren(ts)
		if len(kids) == 1 {
			p := &MatchCapture{Target: c.name(kids[0])}
			c.init(&p.node, ts)
			return p
		}
		p := &MatchValue{Value: c.dottedExpr(ts)}
		c.init(&p.node, ts)
		return p
	case "identifier":
		p := &MatchCapture{Target: c.name(ts)}
		c.init(&p.node, ts)
		return p
	case "true", "false", "none":
		p := &MatchSingleton{}
		c.init(&p.node, ts)
		p.Value = c.expr(ts).(*Constant)
		return p
	default:
		p := &MatchValue{Value: c.expr(ts)}
		c.init(&p.node, ts)
		return p
	}
}

func (c *converter) patternKey(ts *tree_sitter.Node) Expr {
	if ts.Kind() == "case_pattern" {
		if kids := namedChildren(ts); len(kids) > 0 {
			ts = kids[0]
		}
	}
	if ts.Kind() == "dotted_name" {
		return c.dottedExpr(ts)
	}
	return c.expr(ts)
}

// dottedExpr converts a dotted_name into a chain of attribute accesses.
func (c *converter) dottedExpr(ts *tree_sitter.Node) Expr {
	if ts.Kind() != "dotted_name" {
		return c.expr(ts)
	}
	kids := namedChildren(ts)
	if len(kids) == 0 {
		e := &ErrorExpr{}
		c.init(&e.node, ts)
		return e
	}
	var result Expr = c.name(kids[0])
	for _, k := range kids[1:] {
		a := &Attribute{Value: result, Attr: c.text(k), AttrLoc: c.loc(k)}
		c.init(&a.node, ts)
		a.start, _ = result.Span()
		a.end = int(k.EndByte())
		result = a
	}
	return result
}
