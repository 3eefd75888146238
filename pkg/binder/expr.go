package binder

import (
	"strings"

	"github.com/vito/typhon/pkg/pyast"
)

func (b *binder) expr(e pyast.Expr) {
	if e == nil {
		return
	}
	b.file.exprScopes[e.ID()] = b.scope
	if _, seen := b.file.flows[e.ID()]; !seen {
		b.file.flows[e.ID()] = b.current
	}

	switch e := e.(type) {
	case *pyast.Name:
		b.load(e)

	case *pyast.Attribute:
		b.expr(e.Value)
		b.load(e)

	case *pyast.Subscript:
		b.expr(e.Value)
		b.expr(e.Index)
		b.load(e)

	case *pyast.Call:
		b.expr(e.Func)
		for _, a := range e.Args {
			b.file.exprScopes[a.ID()] = b.scope
			b.expr(a.Value)
		}
		// An exception raised by the call leaves from before it.
		b.raiseEdge()
		call := b.graph.node(FlowCall, b.current)
		call.Node = e
		b.current = call

	case *pyast.BoolOp:
		right := b.graph.label(FlowBranchLabel)
		post := b.graph.label(FlowBranchLabel)
		if e.Op == "and" {
			b.conditional(e.Left, right, post)
		} else {
			b.conditional(e.Left, post, right)
		}
		b.current = b.graph.finish(right)
		b.expr(e.Right)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(post)

	case *pyast.IfExp:
		thenL := b.graph.label(FlowBranchLabel)
		elseL := b.graph.label(FlowBranchLabel)
		post := b.graph.label(FlowBranchLabel)
		b.conditional(e.Test, thenL, elseL)
		b.current = b.graph.finish(thenL)
		b.expr(e.Body)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(elseL)
		b.expr(e.OrElse)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(post)

	case *pyast.NamedExpr:
		b.expr(e.Value)
		b.target(e.Target, e, e.Value, true)

	case *pyast.Lambda:
		b.lambda(e)

	case *pyast.Comprehension:
		b.comprehension(e)

	case *pyast.Yield:
		b.expr(e.Value)
		if exec := b.scope.ExecScope(); exec.Kind == ScopeFunction || exec.Kind == ScopeLambda {
			exec.Yields = append(exec.Yields, e)
		}

	default:
		for _, c := range pyast.Children(e) {
			if ce, ok := c.(pyast.Expr); ok {
				b.expr(ce)
			}
		}
	}
}

// load records the reference key of a narrowable expression.
func (b *binder) load(e pyast.Expr) {
	if key, ok := b.key(e); ok {
		b.file.keys[e.ID()] = key
	}
}

// conditional binds a condition, routing its true and false outcomes to
// the given labels. "not", "and" and "or" are decomposed so each operand
// narrows on its own edge.
func (b *binder) conditional(e pyast.Expr, trueL, falseL *FlowNode) {
	switch x := e.(type) {
	case *pyast.UnaryOp:
		if x.Op == "not" {
			b.file.exprScopes[x.ID()] = b.scope
			b.file.flows[x.ID()] = b.current
			b.conditional(x.Operand, falseL, trueL)
			return
		}
	case *pyast.BoolOp:
		b.file.exprScopes[x.ID()] = b.scope
		b.file.flows[x.ID()] = b.current
		mid := b.graph.label(FlowBranchLabel)
		if x.Op == "and" {
			b.conditional(x.Left, mid, falseL)
		} else {
			b.conditional(x.Left, trueL, mid)
		}
		b.current = b.graph.finish(mid)
		b.conditional(x.Right, trueL, falseL)
		return
	}

	b.expr(e)
	static := b.staticCondition(e)
	if static >= 0 {
		t := b.graph.node(FlowTrueCondition, b.current)
		t.Node = e
		addAntecedent(trueL, t)
	}
	if static <= 0 {
		f := b.graph.node(FlowFalseCondition, b.current)
		f.Node = e
		addAntecedent(falseL, f)
	}
}

// staticCondition evaluates conditions whose outcome is known at bind
// time: 1 for always true, -1 for always false and 0 otherwise.
func (b *binder) staticCondition(e pyast.Expr) int {
	switch e := e.(type) {
	case *pyast.Constant:
		switch e.Kind {
		case pyast.ConstBool:
			if e.Value.(bool) {
				return 1
			}
			return -1
		case pyast.ConstInt:
			if v, ok := e.Value.(int64); ok {
				if v != 0 {
					return 1
				}
				return -1
			}
		case pyast.ConstNone:
			return -1
		}
	case *pyast.Name:
		if e.Id == "TYPE_CHECKING" {
			return 1
		}
	case *pyast.Attribute:
		if e.Attr == "TYPE_CHECKING" {
			return 1
		}
	case *pyast.UnaryOp:
		if e.Op == "not" {
			return -b.staticCondition(e.Operand)
		}
	case *pyast.Compare:
		return b.versionCheck(e)
	}
	return 0
}

// versionCheck evaluates sys.version_info comparisons against the
// configured Python version.
func (b *binder) versionCheck(e *pyast.Compare) int {
	if len(e.Ops) != 1 {
		return 0
	}
	attr, ok := e.Left.(*pyast.Attribute)
	if !ok || attr.Attr != "version_info" {
		return 0
	}
	if base, ok := attr.Value.(*pyast.Name); !ok || base.Id != "sys" {
		return 0
	}
	tup, ok := e.Comparators[0].(*pyast.Tuple)
	if !ok || len(tup.Elts) == 0 {
		return 0
	}
	var want []int64
	for _, el := range tup.Elts {
		c, ok := el.(*pyast.Constant)
		if !ok {
			return 0
		}
		v, ok := c.Value.(int64)
		if !ok {
			return 0
		}
		want = append(want, v)
	}
	have := []int64{int64(b.opts.PythonVersion[0]), int64(b.opts.PythonVersion[1])}
	cmp := 0
	for i := 0; i < len(want) && cmp == 0; i++ {
		var h int64
		if i < len(have) {
			h = have[i]
		}
		switch {
		case h < want[i]:
			cmp = -1
		case h > want[i]:
			cmp = 1
		}
	}
	var result bool
	switch e.Ops[0] {
	case ">=":
		result = cmp >= 0
	case ">":
		result = cmp > 0
	case "<":
		result = cmp < 0
	case "<=":
		result = cmp <= 0
	case "==":
		result = cmp == 0
	case "!=":
		result = cmp != 0
	default:
		return 0
	}
	if result {
		return 1
	}
	return -1
}

func (b *binder) lambda(e *pyast.Lambda) {
	for _, p := range e.Params {
		b.expr(p.Default)
	}
	ls := b.newScope(ScopeLambda, b.scope, e)
	ls.DefFlow = b.current
	b.inExecScope(ls, func() {
		for _, p := range e.Params {
			b.file.exprScopes[p.ID()] = ls
			b.declare(p.Name, &Declaration{Kind: DeclParameter, Node: p, Stmt: e})
		}
		b.prescanExpr(e.Body)
		b.expr(e.Body)
	})
}

func (b *binder) comprehension(e *pyast.Comprehension) {
	if len(e.Clauses) == 0 {
		return
	}
	b.expr(e.Clauses[0].Iter)
	cs := b.newScope(ScopeComprehension, b.scope, e)
	saved := b.current
	b.inScope(cs, func() {
		for _, cl := range e.Clauses {
			for _, name := range targetNames(cl.Target, nil) {
				b.ensureSymbol(cs, name)
			}
		}
		for i, cl := range e.Clauses {
			b.file.exprScopes[cl.ID()] = cs
			if i > 0 {
				b.expr(cl.Iter)
			}
			b.target(cl.Target, cl, nil, false)
			for _, cond := range cl.Ifs {
				trueL := b.graph.label(FlowBranchLabel)
				falseL := b.graph.label(FlowBranchLabel)
				b.conditional(cond, trueL, falseL)
				b.current = b.graph.finish(trueL)
			}
		}
		b.expr(e.Elt)
		b.expr(e.Value)
	})
	b.current = saved
}

func targetNames(t pyast.Expr, out []string) []string {
	switch t := t.(type) {
	case *pyast.Name:
		out = append(out, t.Id)
	case *pyast.Tuple:
		for _, e := range t.Elts {
			out = targetNames(e, out)
		}
	case *pyast.List:
		for _, e := range t.Elts {
			out = targetNames(e, out)
		}
	case *pyast.Starred:
		out = targetNames(t.Value, out)
	}
	return out
}

func patternNames(p pyast.Pattern, out []string) []string {
	pyast.Walk(p, func(n pyast.Node) bool {
		switch n := n.(type) {
		case *pyast.MatchCapture:
			if n.Target != nil {
				out = append(out, n.Target.Id)
			}
		case *pyast.MatchStar:
			if n.Target != nil {
				out = append(out, n.Target.Id)
			}
		case *pyast.MatchAs:
			if n.Target != nil {
				out = append(out, n.Target.Id)
			}
		case *pyast.MatchMapping:
			if n.Rest != nil {
				out = append(out, n.Rest.Id)
			}
		}
		return true
	})
	return out
}

// prescan creates symbols for every name bound in a scope body before any
// statement is bound, so loads resolve to the local symbol even when they
// precede the assignment.
func (b *binder) prescan(body []pyast.Stmt) {
	for _, s := range body {
		pyast.Walk(s, func(n pyast.Node) bool {
			switch n := n.(type) {
			case *pyast.Global:
				for _, name := range n.Names {
					b.scope.Globals[name] = true
					module := b.file.Scope
					sym := b.ensureSymbol(module, name)
					if b.scope != module {
						sym.Flags |= SymbolModifiedElsewhere
						b.scope.Symbols[name] = sym
					}
				}
			case *pyast.Nonlocal:
				for _, name := range n.Names {
					b.scope.Nonlocals[name] = true
					for outer := b.scope.Parent; outer != nil; outer = outer.Parent {
						if outer.Kind != ScopeFunction && outer.Kind != ScopeLambda {
							continue
						}
						if sym := outer.Symbols[name]; sym != nil {
							sym.Flags |= SymbolModifiedElsewhere
							b.scope.Symbols[name] = sym
							break
						}
					}
				}
			case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
				return false
			}
			return true
		})
	}
	for _, s := range body {
		pyast.Walk(s, func(n pyast.Node) bool {
			switch n := n.(type) {
			case *pyast.FunctionDef:
				b.ensureSymbol(b.scope, n.Name)
				return false
			case *pyast.ClassDef:
				b.ensureSymbol(b.scope, n.Name)
				return false
			case *pyast.Lambda:
				return false
			case *pyast.Assign:
				for _, t := range n.Targets {
					b.ensureNames(targetNames(t, nil))
				}
			case *pyast.AnnAssign:
				b.ensureNames(targetNames(n.Target, nil))
			case *pyast.AugAssign:
				b.ensureNames(targetNames(n.Target, nil))
			case *pyast.For:
				b.ensureNames(targetNames(n.Target, nil))
			case *pyast.WithItem:
				b.ensureNames(targetNames(n.Target, nil))
			case *pyast.ExceptHandler:
				if n.Name != nil {
					b.ensureNames([]string{n.Name.Id})
				}
			case *pyast.Delete:
				for _, t := range n.Targets {
					b.ensureNames(targetNames(t, nil))
				}
			case *pyast.NamedExpr:
				b.ensureNames([]string{n.Target.Id})
			case *pyast.MatchCase:
				b.ensureNames(patternNames(n.Pattern, nil))
			case *pyast.TypeAlias:
				if n.Name != nil {
					b.ensureNames([]string{n.Name.Id})
				}
			case *pyast.Import:
				for _, a := range n.Names {
					name := a.AsName
					if name == "" {
						name, _, _ = strings.Cut(a.Name, ".")
					}
					b.ensureNames([]string{name})
				}
			case *pyast.ImportFrom:
				if n.Wildcard {
					b.ensureNames(b.wildcardNames(n))
				}
				for _, a := range n.Names {
					name := a.AsName
					if name == "" {
						name = a.Name
					}
					b.ensureNames([]string{name})
				}
			}
			return true
		})
	}
}

func (b *binder) prescanExpr(e pyast.Expr) {
	pyast.Walk(e, func(n pyast.Node) bool {
		switch n := n.(type) {
		case *pyast.Lambda:
			return false
		case *pyast.NamedExpr:
			b.ensureNames([]string{n.Target.Id})
		}
		return true
	})
}

func (b *binder) ensureNames(names []string) {
	for _, name := range names {
		if _, ok := b.scope.Symbols[name]; ok {
			continue
		}
		b.ensureSymbol(b.scope, name)
	}
}
