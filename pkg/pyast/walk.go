package pyast

// Walk traverses the tree depth-first. If fn returns false the node's
// children are skipped.
func Walk(n Node, fn func(Node) bool) {
	if isNil(n) || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// isNil guards against absent optional children. The parser never stores
// typed nil pointers in interface fields.
func isNil(n Node) bool {
	return n == nil
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	var out []Node
	add := func(ns ...Node) {
		for _, c := range ns {
			if !isNil(c) {
				out = append(out, c)
			}
		}
	}
	addExpr := func(es ...Expr) {
		for _, e := range es {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	addStmts := func(ss []Stmt) {
		for _, s := range ss {
			out = append(out, s)
		}
	}
	addParams := func(ps []*Param) {
		for _, p := range ps {
			out = append(out, p)
		}
	}
	addTypeParams := func(tps []*TypeParam) {
		for _, tp := range tps {
			out = append(out, tp)
		}
	}
	switch n := n.(type) {
	case *Module:
		addStmts(n.Body)
	case *Attribute:
		addExpr(n.Value)
	case *Subscript:
		addExpr(n.Value, n.Index)
	case *Slice:
		addExpr(n.Lower, n.Upper, n.Step)
	case *FString:
		addExpr(n.Values...)
	case *Call:
		addExpr(n.Func)
		for _, a := range n.Args {
			out = append(out, a)
		}
	case *Arg:
		addExpr(n.Value)
	case *BinOp:
		addExpr(n.Left, n.Right)
	case *UnaryOp:
		addExpr(n.Operand)
	case *BoolOp:
		addExpr(n.Left, n.Right)
	case *Compare:
		addExpr(n.Left)
		addExpr(n.Comparators...)
	case *IfExp:
		addExpr(n.Body, n.Test, n.OrElse)
	case *Lambda:
		addParams(n.Params)
		addExpr(n.Body)
	case *List:
		addExpr(n.Elts...)
	case *Tuple:
		addExpr(n.Elts...)
	case *Set:
		addExpr(n.Elts...)
	case *Dict:
		for _, it := range n.Items {
			addExpr(it.Key, it.Value)
		}
	case *Comprehension:
		for _, c := range n.Clauses {
			out = append(out, c)
		}
		addExpr(n.Elt, n.Value)
	case *CompFor:
		addExpr(n.Iter, n.Target)
		addExpr(n.Ifs...)
	case *Starred:
		addExpr(n.Value)
	case *NamedExpr:
		addExpr(n.Value, n.Target)
	case *Await:
		addExpr(n.Value)
	case *Yield:
		addExpr(n.Value)
	case *Param:
		addExpr(n.Annotation, n.Default)
	case *TypeParam:
		addExpr(n.Bound, n.Default)
	case *ExprStmt:
		addExpr(n.Value)
	case *Assign:
		addExpr(n.Value)
		addExpr(n.Targets...)
	case *AnnAssign:
		addExpr(n.Annotation, n.Value, n.Target)
	case *AugAssign:
		addExpr(n.Target, n.Value)
	case *Return:
		addExpr(n.Value)
	case *If:
		addExpr(n.Test)
		addStmts(n.Body)
		addStmts(n.Else)
	case *While:
		addExpr(n.Test)
		addStmts(n.Body)
		addStmts(n.Else)
	case *For:
		addExpr(n.Iter, n.Target)
		addStmts(n.Body)
		addStmts(n.Else)
	case *Raise:
		addExpr(n.Exc, n.Cause)
	case *Try:
		addStmts(n.Body)
		for _, h := range n.Handlers {
			out = append(out, h)
		}
		addStmts(n.Else)
		addStmts(n.Finally)
	case *ExceptHandler:
		addExpr(n.Type)
		if n.Name != nil {
			add(n.Name)
		}
		addStmts(n.Body)
	case *With:
		for _, it := range n.Items {
			out = append(out, it)
		}
		addStmts(n.Body)
	case *WithItem:
		addExpr(n.Context, n.Target)
	case *FunctionDef:
		addExpr(n.Decorators...)
		addTypeParams(n.TypeParams)
		addParams(n.Params)
		addExpr(n.Returns)
		addStmts(n.Body)
	case *ClassDef:
		addExpr(n.Decorators...)
		addTypeParams(n.TypeParams)
		for _, a := range n.Bases {
			out = append(out, a)
		}
		addStmts(n.Body)
	case *Import:
		for _, a := range n.Names {
			out = append(out, a)
		}
	case *ImportFrom:
		for _, a := range n.Names {
			out = append(out, a)
		}
	case *Assert:
		addExpr(n.Test, n.Msg)
	case *Delete:
		addExpr(n.Targets...)
	case *Match:
		addExpr(n.Subject)
		for _, c := range n.Cases {
			out = append(out, c)
		}
	case *MatchCase:
		add(n.Pattern)
		addExpr(n.Guard)
		addStmts(n.Body)
	case *TypeAlias:
		if n.Name != nil {
			add(n.Name)
		}
		addTypeParams(n.TypeParams)
		addExpr(n.Value)
	case *MatchValue:
		addExpr(n.Value)
	case *MatchSingleton:
		if n.Value != nil {
			add(n.Value)
		}
	case *MatchCapture:
		if n.Target != nil {
			add(n.Target)
		}
	case *MatchSequence:
		for _, p := range n.Patterns {
			add(p)
		}
	case *MatchStar:
		if n.Target != nil {
			add(n.Target)
		}
	case *MatchMapping:
		for i := range n.Keys {
			addExpr(n.Keys[i])
			add(n.Values[i])
		}
		if n.Rest != nil {
			add(n.Rest)
		}
	case *MatchClass:
		addExpr(n.Cls)
		for _, p := range n.Patterns {
			add(p)
		}
		for _, p := range n.KwdPatterns {
			add(p)
		}
	case *MatchAs:
		if n.Pattern != nil {
			add(n.Pattern)
		}
		if n.Target != nil {
			add(n.Target)
		}
	case *MatchOr:
		for _, p := range n.Patterns {
			add(p)
		}
	}
	return out
}

// NodeAt returns the innermost node at the 1-based line and column that
// carries a type of its own: an expression, a parameter, or a function or
// class definition whose name is under the position.
func (m *Module) NodeAt(line, col int) Node {
	var found Node
	Walk(m, func(n Node) bool {
		switch n := n.(type) {
		case Expr, *Param:
			if n.Loc().Contains(line, col) {
				found = n
			}
		case *FunctionDef:
			if n.NameLoc.Contains(line, col) {
				found = n
			}
		case *ClassDef:
			if n.NameLoc.Contains(line, col) {
				found = n
			}
		}
		return true
	})
	return found
}
