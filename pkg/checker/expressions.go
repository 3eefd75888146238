package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// exprType evaluates an expression where it appears. expected is the type
// the context wants; it informs displays, lambdas and calls of generic
// functions. Results are cached per expected type, except inside lambdas
// whose parameter types depend on the call being checked.
func (e *Evaluator) exprType(f *SourceFile, n pyast.Expr, expected types.Type) types.Type {
	if n == nil {
		return types.Unknown
	}
	if expected != nil && types.IsAnyOrUnknown(expected) {
		if _, ok := n.(*pyast.Lambda); !ok {
			expected = nil
		}
	}
	key := exprKey{node: n.ID()}
	if expected != nil {
		key.expected = expected.String()
	}
	cacheable := !e.insideLambda(f, n)
	if cacheable {
		if t, ok := e.cache.expr(f, key); ok {
			return t
		}
	}
	t, complete := e.guard(exprFrame{f.Path, n.ID()}, func() types.Type {
		return e.computeExpr(f, n, e.expectedForm(expected))
	})
	if complete && cacheable {
		e.cache.setExpr(f, key, t)
		if expected != nil && !e.cache.Speculative() {
			e.part(f).contexts[n.ID()] = key.expected
		}
	}
	return t
}

// expectedForm expands alias references in an expected type until its
// outer structure shows.
func (e *Evaluator) expectedForm(t types.Type) types.Type {
	for range 32 {
		a, ok := t.(*types.AliasType)
		if !ok || e.aliasTarget(a.Def) == nil {
			return t
		}
		t = a.Resolve()
	}
	return types.Unknown
}

func (e *Evaluator) computeExpr(f *SourceFile, n pyast.Expr, expected types.Type) types.Type {
	switch n := n.(type) {
	case *pyast.Name:
		return e.nameType(f, n)
	case *pyast.Constant:
		return e.constantType(n)
	case *pyast.FString:
		for _, v := range n.Values {
			e.exprType(f, v, nil)
		}
		return e.strType()
	case *pyast.Attribute:
		return e.attributeExpr(f, n)
	case *pyast.Subscript:
		return e.subscriptExpr(f, n)
	case *pyast.Slice:
		for _, part := range []pyast.Expr{n.Lower, n.Upper, n.Step} {
			if part != nil {
				e.exprType(f, part, nil)
			}
		}
		return e.builtinInstance("slice")
	case *pyast.Call:
		return e.callExpr(f, n, expected)
	case *pyast.BinOp:
		return e.binaryExpr(f, n, expected)
	case *pyast.UnaryOp:
		return e.unaryExpr(f, n)
	case *pyast.BoolOp:
		return e.boolOpExpr(f, n, expected)
	case *pyast.Compare:
		return e.compareExpr(f, n)
	case *pyast.IfExp:
		e.exprType(f, n.Test, nil)
		return types.Union(e.exprType(f, n.Body, expected), e.exprType(f, n.OrElse, expected))
	case *pyast.Lambda:
		return e.lambdaType(f, n, expected)
	case *pyast.List:
		return e.sequenceDisplay(f, "list", n.Elts, expected)
	case *pyast.Set:
		return e.sequenceDisplay(f, "set", n.Elts, expected)
	case *pyast.Tuple:
		return e.tupleDisplay(f, n, expected)
	case *pyast.Dict:
		return e.dictDisplay(f, n, expected)
	case *pyast.Comprehension:
		return e.comprehensionType(f, n, expected)
	case *pyast.Starred:
		return e.exprType(f, n.Value, nil)
	case *pyast.NamedExpr:
		e.bindTargets(f, n)
		return e.exprType(f, n.Value, e.walrusExpected(f, n))
	case *pyast.Await:
		return e.awaitedType(f, n, e.exprType(f, n.Value, nil))
	case *pyast.Yield:
		return e.yieldType(f, n)
	}
	return types.Unknown
}

// moduleAttrs are the names every module defines implicitly.
var moduleAttrs = map[string]string{
	"__name__":     "str",
	"__qualname__": "str",
	"__file__":     "str",
	"__doc__":      "str",
	"__package__":  "str",
	"__path__":     "list",
	"__dict__":     "dict",
	"__spec__":     "",
	"__loader__":   "",
	"__builtins__": "",
}

func (e *Evaluator) nameType(f *SourceFile, n *pyast.Name) types.Type {
	bf := e.bound(f)
	sym := bf.ScopeOf(n).Resolve(n.Id)
	if sym == nil {
		if cls, ok := moduleAttrs[n.Id]; ok {
			if cls == "" {
				return types.Any
			}
			return e.builtinInstance(cls)
		}
		d := e.report(f, n, UnresolvedSymbol, "\"%s\" is not defined", n.Id)
		d.Member = n.Id
		return types.Unknown
	}
	if sym.Scope.Kind == binder.ScopeLambda {
		for _, d := range sym.Decls {
			if d.Kind == binder.DeclParameter {
				return e.declType(d)
			}
		}
	}
	t := e.symbolReference(f, n, sym, bf.FlowOf(n))
	if types.IsUnbound(t) {
		// A class body falls back to the enclosing scopes for names it has
		// not bound yet.
		if sym.Scope.Kind == binder.ScopeClass && sym.Scope.Parent != nil {
			if outer := sym.Scope.Parent.Resolve(n.Id); outer != nil {
				return e.symbolType(outer)
			}
		}
		e.report(f, n, UnresolvedSymbol, "\"%s\" is unbound", n.Id)
		return types.Unknown
	}
	if types.IsPossiblyUnbound(t) {
		e.report(f, n, PossiblyUnbound, "\"%s\" is possibly unbound", n.Id)
		t = types.RemoveUnbound(t)
	}
	return t
}

func (e *Evaluator) constantType(n *pyast.Constant) types.Type {
	switch n.Kind {
	case pyast.ConstInt:
		if v, ok := n.Value.(int64); ok && !n.Overflow {
			return e.literal(v)
		}
		return e.intType()
	case pyast.ConstFloat:
		return e.builtinInstance("float")
	case pyast.ConstComplex:
		return e.builtinInstance("complex")
	case pyast.ConstStr:
		if s, ok := n.Value.(string); ok {
			return e.literal(s)
		}
		return e.strType()
	case pyast.ConstBytes:
		if s, ok := n.Value.(string); ok {
			return e.literal(types.Bytes(s))
		}
		return e.builtinInstance("bytes")
	case pyast.ConstBool:
		if b, ok := n.Value.(bool); ok {
			return e.literal(b)
		}
		return e.boolType()
	case pyast.ConstNone:
		return types.None
	case pyast.ConstEllipsis:
		return e.builtinInstance("ellipsis")
	}
	return types.Unknown
}

func (e *Evaluator) attributeExpr(f *SourceFile, n *pyast.Attribute) types.Type {
	bf := e.bound(f)
	base := types.RemoveUnbound(e.exprType(f, n.Value, nil))
	t := e.attributeOf(f, n, base, n.Attr, true)
	if key, ok := bf.KeyOf(n); ok && e.narrowsKey(f, n, key) {
		t = types.RemoveUnbound(e.flowType(f, key, bf.FlowOf(n), t))
	}
	return t
}

func (e *Evaluator) subscriptExpr(f *SourceFile, n *pyast.Subscript) types.Type {
	bf := e.bound(f)
	base := types.RemoveUnbound(e.exprType(f, n.Value, nil))
	t := e.subscriptType(f, n, base, true)
	if key, ok := bf.KeyOf(n); ok && e.narrowsKey(f, n, key) {
		t = types.RemoveUnbound(e.flowType(f, key, bf.FlowOf(n), t))
	}
	return t
}

// silentSubscript evaluates base[index] without reporting.
func (e *Evaluator) silentSubscript(f *SourceFile, r *pyast.Subscript, base types.Type) types.Type {
	return e.subscriptType(f, r, base, false)
}

// subscriptType evaluates base[index]. Class objects and type forms are
// specialized; tuples and TypedDicts with literal indices yield the
// element; everything else calls __getitem__.
func (e *Evaluator) subscriptType(f *SourceFile, n *pyast.Subscript, base types.Type, report bool) types.Type {
	return mapUnion(base, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.AnyType, *types.UnknownType, *types.NeverType:
			if report {
				e.exprType(f, n.Index, nil)
			}
			return m
		case *types.ClassType:
			if m.Info.Is(types.ClassEnum) && len(m.Info.TypeParams) == 0 {
				return e.enumIndex(f, n, m)
			}
			return e.specialize(f, n, m, annNone)
		case *types.TypeFormType:
			return e.specialize(f, n, m, annNone)
		case *types.TupleType:
			if t, ok := e.tupleIndex(f, n, m, report); ok {
				return t
			}
		case *types.InstanceType:
			if len(m.Info.TupleElems) > 0 {
				tup := &types.TupleType{Info: e.builtinInfo("tuple"), Elems: m.Info.TupleElems}
				if t, ok := e.tupleIndex(f, n, tup, report); ok {
					return m.Subs().Apply(t)
				}
			}
		case *types.TypedDictType:
			if t, ok := e.typedDictIndex(f, n, m, report); ok {
				return t
			}
		case *types.NoneType:
			if report {
				e.report(f, n.Value, UnsupportedOperator, "Object of type \"None\" is not subscriptable")
				e.exprType(f, n.Index, nil)
			}
			return types.Unknown
		}
		return e.getItem(f, n, m, report)
	})
}

// enumIndex evaluates Color["RED"] to the member's literal.
func (e *Evaluator) enumIndex(f *SourceFile, n *pyast.Subscript, c *types.ClassType) types.Type {
	if name, ok := strConst(n.Index); ok {
		if v := e.silentMemberOf(f, c, name); v != nil {
			if lit, ok := v.(*types.LiteralType); ok && types.SameClass(lit.Info, c.Info) {
				return lit
			}
		}
	}
	e.exprType(f, n.Index, nil)
	return types.ToInstance(c)
}

func (e *Evaluator) tupleIndex(f *SourceFile, n *pyast.Subscript, tup *types.TupleType, report bool) (types.Type, bool) {
	if s, ok := n.Index.(*pyast.Slice); ok {
		size, fixed := tup.FixedLen()
		if !fixed || s.Step != nil {
			return nil, false
		}
		start, end := 0, size
		if s.Lower != nil {
			v, ok := intConst(s.Lower)
			if !ok {
				return nil, false
			}
			start = int(v)
		}
		if s.Upper != nil {
			v, ok := intConst(s.Upper)
			if !ok {
				return nil, false
			}
			end = int(v)
		}
		return tup.Slice(start, end), true
	}
	i, ok := intConst(n.Index)
	if !ok {
		return nil, false
	}
	if t, ok := tup.Index(int(i)); ok {
		return t, true
	}
	if _, fixed := tup.FixedLen(); fixed {
		if report {
			e.report(f, n, UnsupportedOperator, "Index %d is out of range for type \"%s\"", i, tup)
		}
		return types.Unknown, true
	}
	return nil, false
}

func (e *Evaluator) typedDictIndex(f *SourceFile, n *pyast.Subscript, td *types.TypedDictType, report bool) (types.Type, bool) {
	key, ok := strConst(n.Index)
	if !ok {
		return nil, false
	}
	entry, ok := td.Entry(key)
	if !ok {
		if report {
			d := e.report(f, n.Index, MemberMissing, "\"%s\" is not a defined key in \"%s\"", key, td)
			d.Member = key
		}
		return types.Unknown, true
	}
	if report && !entry.Required && !td.IsProvided(key) {
		d := e.report(f, n.Index, MemberMissing, "\"%s\" is not a required key in \"%s\", so access may result in runtime exception", key, td)
		d.Member = key
	}
	return entry.Type, true
}

func (e *Evaluator) getItem(f *SourceFile, n *pyast.Subscript, base types.Type, report bool) types.Type {
	method := e.silentMemberOf(f, base, "__getitem__")
	if method == nil {
		if report {
			e.report(f, n.Value, UnsupportedOperator, "\"__getitem__\" method not defined on type \"%s\"", base)
			e.exprType(f, n.Index, nil)
		}
		return types.Unknown
	}
	res := e.callWithArgs(f, n, method, []callArg{{node: n.Index}}, nil)
	if report {
		e.reportCallFailure(f, n, res.Failure)
	}
	if res.ReturnType == nil {
		return types.Unknown
	}
	return res.ReturnType
}

// intConst reads an int literal, possibly negated.
func intConst(n pyast.Expr) (int64, bool) {
	switch n := n.(type) {
	case *pyast.Constant:
		v, ok := n.Value.(int64)
		return v, ok && n.Kind == pyast.ConstInt && !n.Overflow
	case *pyast.UnaryOp:
		if n.Op == "-" {
			v, ok := intConst(n.Operand)
			return -v, ok
		}
	}
	return 0, false
}

func (e *Evaluator) callExpr(f *SourceFile, n *pyast.Call, expected types.Type) types.Type {
	callee := types.RemoveUnbound(e.exprType(f, n.Func, nil))
	res := e.callResult(f, n, callee, expected)
	if !res.OK() {
		e.reportCallFailure(f, n, res.Failure)
	}
	if res.ReturnType == nil {
		return types.Unknown
	}
	return res.ReturnType
}

// lambdaType infers a lambda from the callable the context expects. Its
// parameters take the expected parameter types; without one they are
// Unknown, or inferred from defaults.
func (e *Evaluator) lambdaType(f *SourceFile, n *pyast.Lambda, expected types.Type) types.Type {
	want := e.expectedCallable(f, n, expected)
	fn := &types.FunctionType{Name: "lambda", Decl: f.declRef(n), Flags: types.FuncLambda}
	positional := 0
	for _, prm := range n.Params {
		p := types.Param{Name: prm.Name, Kind: paramKind(prm.Kind), Type: types.Unknown, HasDefault: prm.Default != nil}
		if want != nil {
			if wp := lambdaParamFor(want, prm, positional); wp != nil && wp.Type != nil {
				p.Type = wp.Type
			}
		} else if prm.Default != nil {
			p.Type = widenInferred(e.exprType(f, prm.Default, nil))
		}
		if p.Kind == types.ParamPositionalOnly || p.Kind == types.ParamPositionalOrKeyword {
			positional++
		}
		e.cache.setLambdaParam(prm, e.variadicParamType(p))
		fn.Params = append(fn.Params, p)
	}
	var retExpected types.Type
	if want != nil && want.Return != nil && !types.IsNone(want.Return) {
		retExpected = want.Return
	}
	fn.Return = e.exprType(f, n.Body, retExpected)
	if retExpected != nil && !e.isAssignable(retExpected, fn.Return) {
		e.reportAssign(f, n.Body, fn.Return, retExpected, "Type \"%s\" is not assignable to return type \"%s\"", fn.Return, retExpected)
	}
	return fn
}

// expectedCallable picks the signature a lambda is inferred against: the
// first expected callable whose parameters can take the lambda's.
func (e *Evaluator) expectedCallable(f *SourceFile, n *pyast.Lambda, expected types.Type) *types.FunctionType {
	if expected == nil {
		return nil
	}
	for _, m := range types.Members(expected) {
		var fn *types.FunctionType
		switch m := m.(type) {
		case *types.FunctionType:
			fn = m
		case *types.OverloadedType:
			if len(m.Overloads) > 0 {
				fn = m.Overloads[0]
			}
		case *types.InstanceType:
			if call, ok := e.silentMemberOf(f, m, "__call__").(*types.FunctionType); ok {
				fn = call
			}
		}
		if fn != nil && lambdaFits(fn, n) {
			return fn
		}
	}
	return nil
}

func lambdaFits(fn *types.FunctionType, n *pyast.Lambda) bool {
	if fn.Is(types.FuncGradual) {
		return true
	}
	want := 0
	for _, p := range fn.Params {
		if p.Positional() && !p.HasDefault {
			want++
		}
	}
	have, variadic := 0, false
	for _, p := range n.Params {
		switch p.Kind {
		case pyast.ParamPositionalOnly, pyast.ParamPositionalOrKeyword:
			have++
		case pyast.ParamVarPositional:
			variadic = true
		}
	}
	return have >= want || variadic
}

// lambdaParamFor finds the expected parameter matching a lambda parameter.
func lambdaParamFor(want *types.FunctionType, prm *pyast.Param, positional int) *types.Param {
	switch prm.Kind {
	case pyast.ParamVarPositional, pyast.ParamVarKeyword:
		kind := paramKind(prm.Kind)
		for i := range want.Params {
			if want.Params[i].Kind == kind {
				return &want.Params[i]
			}
		}
		return nil
	case pyast.ParamKeywordOnly:
		return findKeywordParam(want.Params, prm.Name)
	}
	idx := 0
	for i := range want.Params {
		p := &want.Params[i]
		if p.Kind == types.ParamVarPositional {
			return p
		}
		if !p.Positional() {
			break
		}
		if idx == positional {
			return p
		}
		idx++
	}
	return nil
}

// expectedArgs solves the type parameters of a container class so that
// an instance of it is assignable to expected. A nil argument means the
// context does not constrain it.
func (e *Evaluator) expectedArgs(expected types.Type, info *types.ClassInfo) ([]types.Type, bool) {
	if expected == nil || info == nil || len(info.TypeParams) == 0 {
		return nil, false
	}
	for _, m := range types.Members(expected) {
		if inst, ok := m.(*types.InstanceType); ok && types.SameClass(inst.Info, info) && len(inst.Args) == len(info.TypeParams) {
			return inst.Args, true
		}
	}
	for _, m := range types.Members(expected) {
		if _, ok := asInstance(m); !ok {
			continue
		}
		cs := newConstraints(info.TypeParams...)
		cs.retainLiterals = types.HasLiteral(expected)
		var ok bool
		e.speculate(func() {
			ok = e.assignType(m, info.SelfInstance(), cs)
		})
		if !ok {
			continue
		}
		subs := e.solve(cs)
		args := make([]types.Type, len(info.TypeParams))
		for i, tp := range info.TypeParams {
			if t, ok := subs.Get(tp); ok && !types.IsAnyOrUnknown(t) {
				args[i] = t
			}
		}
		return args, true
	}
	return nil, false
}

// inferElem is the element type of a display inferred from its entries.
func inferElem(ts []types.Type) types.Type {
	if len(ts) == 0 {
		return types.Unknown
	}
	stripped := make([]types.Type, len(ts))
	for i, t := range ts {
		stripped[i] = types.StripLiteral(t)
	}
	return types.Union(stripped...)
}

func (e *Evaluator) displayElem(f *SourceFile, el pyast.Expr, want types.Type) types.Type {
	if st, ok := el.(*pyast.Starred); ok {
		return e.iterElement(f, st.Value, e.exprType(f, st.Value, nil), false)
	}
	return e.exprType(f, el, want)
}

// sequenceDisplay evaluates a list or set display. The expected element
// type is used when every entry is assignable to it.
func (e *Evaluator) sequenceDisplay(f *SourceFile, cls string, elts []pyast.Expr, expected types.Type) types.Type {
	info := e.builtinInfo(cls)
	if info == nil {
		for _, el := range elts {
			e.displayElem(f, el, nil)
		}
		return types.Unknown
	}
	if args, ok := e.expectedArgs(expected, info); ok && args[0] != nil {
		want := args[0]
		if e.speculateCommit(func() bool {
			for _, el := range elts {
				if !e.isAssignable(want, e.displayElem(f, el, want)) {
					return false
				}
			}
			return true
		}) {
			return e.instanceOf(info, want)
		}
	}
	ts := make([]types.Type, 0, len(elts))
	for _, el := range elts {
		ts = append(ts, e.displayElem(f, el, nil))
	}
	return e.instanceOf(info, inferElem(ts))
}

// tupleDisplay evaluates a tuple expression. Entries keep their literal
// types only when the context expects literals.
func (e *Evaluator) tupleDisplay(f *SourceFile, n *pyast.Tuple, expected types.Type) types.Type {
	want := e.expectedTupleElems(expected, n)
	elems := make([]types.TupleElem, 0, len(n.Elts))
	for i, el := range n.Elts {
		if st, ok := el.(*pyast.Starred); ok {
			t := e.exprType(f, st.Value, nil)
			if tup, ok := t.(*types.TupleType); ok {
				elems = append(elems, tup.Elems...)
				continue
			}
			elems = append(elems, types.TupleElem{Type: types.StripLiteral(e.iterElement(f, st.Value, t, false)), Unbounded: true})
			continue
		}
		var exp types.Type
		if want != nil {
			exp = want(i)
		}
		t := e.exprType(f, el, exp)
		if exp == nil || !types.HasLiteral(exp) {
			t = types.StripLiteral(t)
		}
		elems = append(elems, types.TupleElem{Type: t})
	}
	return e.newTuple(elems)
}

func (e *Evaluator) expectedTupleElems(expected types.Type, n *pyast.Tuple) func(int) types.Type {
	if expected == nil {
		return nil
	}
	for _, el := range n.Elts {
		if _, ok := el.(*pyast.Starred); ok {
			return nil
		}
	}
	for _, m := range types.Members(expected) {
		tup, ok := m.(*types.TupleType)
		if !ok {
			continue
		}
		if size, fixed := tup.FixedLen(); fixed && size == len(n.Elts) {
			return func(i int) types.Type { return tup.Elems[i].Type }
		}
		if len(tup.Elems) == 1 && tup.Elems[0].Unbounded {
			return func(int) types.Type { return tup.Elems[0].Type }
		}
	}
	if args, ok := e.expectedArgs(expected, e.builtinInfo("tuple")); ok && args[0] != nil {
		return func(int) types.Type { return args[0] }
	}
	return nil
}

func (e *Evaluator) dictDisplay(f *SourceFile, n *pyast.Dict, expected types.Type) types.Type {
	if expected != nil {
		for _, m := range types.Members(expected) {
			td, ok := m.(*types.TypedDictType)
			if !ok {
				continue
			}
			var t types.Type
			if e.speculateCommit(func() bool {
				t, ok = e.typedDictDisplay(f, n, td)
				return ok
			}) {
				return t
			}
		}
	}
	info := e.builtinInfo("dict")
	if info == nil {
		for _, item := range n.Items {
			e.exprType(f, item.Key, nil)
			e.exprType(f, item.Value, nil)
		}
		return types.Unknown
	}
	if args, ok := e.expectedArgs(expected, info); ok && args[0] != nil && args[1] != nil {
		kt, vt := args[0], args[1]
		if e.speculateCommit(func() bool {
			for _, item := range n.Items {
				k, v := e.dictItem(f, item, kt, vt)
				if !e.isAssignable(kt, k) || !e.isAssignable(vt, v) {
					return false
				}
			}
			return true
		}) {
			return e.instanceOf(info, kt, vt)
		}
	}
	var keys, vals []types.Type
	for _, item := range n.Items {
		k, v := e.dictItem(f, item, nil, nil)
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return e.instanceOf(info, inferElem(keys), inferElem(vals))
}

// dictItem evaluates one entry of a dict display. An unpacked mapping
// contributes its key and value types.
func (e *Evaluator) dictItem(f *SourceFile, item *pyast.DictItem, kt, vt types.Type) (types.Type, types.Type) {
	if item.Key == nil {
		m := e.exprType(f, item.Value, nil)
		if types.IsAnyOrUnknown(m) {
			return m, m
		}
		if info := e.typingInfo("Mapping"); info != nil {
			var ks, vs []types.Type
			for _, mm := range types.Members(m) {
				if inst, ok := upcast(mm, info); ok && len(inst.Args) == 2 {
					ks = append(ks, inst.Args[0])
					vs = append(vs, inst.Args[1])
					continue
				}
				e.report(f, item.Value, UnsupportedOperator, "Expected mapping for dictionary unpack operator")
				ks = append(ks, types.Unknown)
				vs = append(vs, types.Unknown)
			}
			return types.Union(ks...), types.Union(vs...)
		}
		return types.Unknown, types.Unknown
	}
	return e.exprType(f, item.Key, kt), e.exprType(f, item.Value, vt)
}

// typedDictDisplay checks a dict display against a TypedDict. ok is
// false when the display cannot construct it.
func (e *Evaluator) typedDictDisplay(f *SourceFile, n *pyast.Dict, td *types.TypedDictType) (types.Type, bool) {
	seen := map[string]bool{}
	out := &types.TypedDictType{Info: td.Info, Args: td.Args}
	for _, item := range n.Items {
		if item.Key == nil {
			return nil, false
		}
		key, ok := strConst(item.Key)
		if !ok {
			return nil, false
		}
		entry, ok := td.Entry(key)
		if !ok {
			return nil, false
		}
		e.exprType(f, item.Key, nil)
		if !e.isAssignable(entry.Type, e.exprType(f, item.Value, entry.Type)) {
			return nil, false
		}
		seen[key] = true
		if !entry.Required {
			out = out.WithProvided(key)
		}
	}
	for _, key := range td.Info.TypedDictKeys {
		if entry, ok := td.Entry(key); ok && entry.Required && !seen[key] {
			return nil, false
		}
	}
	return out, true
}

func (e *Evaluator) comprehensionType(f *SourceFile, n *pyast.Comprehension, expected types.Type) types.Type {
	async := false
	for _, cl := range n.Clauses {
		async = async || cl.Async
		e.bindTargets(f, cl)
		for _, cond := range cl.Ifs {
			e.exprType(f, cond, nil)
		}
	}
	switch n.Kind {
	case pyast.CompList, pyast.CompSet:
		cls := "list"
		if n.Kind == pyast.CompSet {
			cls = "set"
		}
		info := e.builtinInfo(cls)
		var want types.Type
		if args, ok := e.expectedArgs(expected, info); ok {
			want = args[0]
		}
		elt := e.exprType(f, n.Elt, want)
		if want != nil && e.isAssignable(want, elt) {
			return e.instanceOf(info, want)
		}
		return e.instanceOf(info, types.StripLiteral(elt))
	case pyast.CompDict:
		info := e.builtinInfo("dict")
		var kw, vw types.Type
		if args, ok := e.expectedArgs(expected, info); ok {
			kw, vw = args[0], args[1]
		}
		k := e.exprType(f, n.Elt, kw)
		v := e.exprType(f, n.Value, vw)
		if kw != nil && vw != nil && e.isAssignable(kw, k) && e.isAssignable(vw, v) {
			return e.instanceOf(info, kw, vw)
		}
		return e.instanceOf(info, types.StripLiteral(k), types.StripLiteral(v))
	}
	elt := types.StripLiteral(e.exprType(f, n.Elt, nil))
	if async || containsAwait(n.Elt) {
		return e.typingInstance("AsyncGenerator", elt, types.None)
	}
	return e.typingInstance("Generator", elt, types.None, types.None)
}

func containsAwait(n pyast.Expr) bool {
	found := false
	pyast.Walk(n, func(x pyast.Node) bool {
		switch x.(type) {
		case *pyast.Await:
			found = true
		case *pyast.Lambda, *pyast.Comprehension:
			return false
		}
		return !found
	})
	return found
}

// walrusExpected is the declared type of a walrus target, if any.
func (e *Evaluator) walrusExpected(f *SourceFile, n *pyast.NamedExpr) types.Type {
	sym := e.bound(f).ScopeOf(n.Target).Resolve(n.Target.Id)
	if sym == nil {
		return nil
	}
	return e.declaredTypeOfSymbol(sym)
}

// enclosingFunction returns the function whose body contains n.
func enclosingFunction(f *SourceFile, n pyast.Node) *pyast.FunctionDef {
	for cur := f.AST.Parent(n); cur != nil; cur = f.AST.Parent(cur) {
		switch cur := cur.(type) {
		case *pyast.FunctionDef:
			return cur
		case *pyast.Lambda, *pyast.ClassDef:
			return nil
		}
	}
	return nil
}

// yieldType evaluates a yield expression to the value sent into the
// generator, or for yield from to the delegated generator's result.
func (e *Evaluator) yieldType(f *SourceFile, n *pyast.Yield) types.Type {
	fd := enclosingFunction(f, n)
	var declared *types.InstanceType
	if fd != nil {
		if ret := e.declaredReturn(f, fd); ret != nil {
			for _, name := range []string{"Generator", "AsyncGenerator"} {
				if info := e.typingInfo(name); info != nil {
					if inst, ok := upcast(ret, info); ok {
						declared = inst
						break
					}
				}
			}
		}
	}
	if n.From {
		vt := e.exprType(f, n.Value, nil)
		if gen := e.typingInfo("Generator"); gen != nil {
			if inst, ok := upcast(vt, gen); ok && len(inst.Args) == 3 {
				return inst.Args[2]
			}
		}
		e.iterElement(f, n.Value, vt, false)
		return types.None
	}
	if n.Value != nil {
		var want types.Type
		if declared != nil && len(declared.Args) > 0 {
			want = declared.Args[0]
		}
		e.exprType(f, n.Value, want)
	}
	if declared != nil && len(declared.Args) > 1 {
		return declared.Args[1]
	}
	if fd != nil && fd.Returns != nil {
		return types.None
	}
	return types.Any
}
