package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// targetType is the type an assignment gives one of its targets: the
// assigned value, narrowed to the declared type of the target.
func (e *Evaluator) targetType(f *SourceFile, target pyast.Expr) types.Type {
	stmt := bindingStmt(f, target)
	if stmt == nil {
		return types.Unknown
	}
	if t, ok := e.bindTargets(f, stmt)[target.ID()]; ok {
		return t
	}
	return types.Unknown
}

// bindingStmt finds the statement or clause that binds a target,
// looking through unpacking and patterns.
func bindingStmt(f *SourceFile, target pyast.Node) pyast.Node {
	for cur := f.AST.Parent(target); cur != nil; cur = f.AST.Parent(cur) {
		switch cur.(type) {
		case *pyast.Assign, *pyast.AnnAssign, *pyast.AugAssign, *pyast.For, *pyast.CompFor,
			*pyast.WithItem, *pyast.ExceptHandler, *pyast.NamedExpr, *pyast.MatchCase, *pyast.TypeAlias:
			return cur
		case *pyast.Tuple, *pyast.List, *pyast.Starred, pyast.Pattern:
			continue
		}
		return nil
	}
	return nil
}

// bindTargets evaluates the assignment a binding statement performs and
// returns the narrowed type of each of its targets.
func (e *Evaluator) bindTargets(f *SourceFile, stmt pyast.Node) map[pyast.NodeID]types.Type {
	if m, ok := e.cache.targets(f, stmt.ID()); ok {
		return m
	}
	m := map[pyast.NodeID]types.Type{}
	_, complete := e.guard(nodeFrame{f.Path, stmt.ID(), "targets"}, func() types.Type {
		e.assignTargets(f, stmt, m)
		return nil
	})
	if complete && !e.insideLambda(f, stmt) {
		e.cache.setTargets(f, stmt.ID(), m)
	}
	return m
}

func (e *Evaluator) assignTargets(f *SourceFile, stmt pyast.Node, m map[pyast.NodeID]types.Type) {
	switch s := stmt.(type) {
	case *pyast.Assign:
		var expected types.Type
		if len(s.Targets) > 0 {
			expected = e.targetDeclaredType(f, s.Targets[0])
		}
		src := e.exprType(f, s.Value, expected)
		for _, t := range s.Targets {
			e.assignTo(f, t, src, s.Value, m)
		}
	case *pyast.AnnAssign:
		if s.Value == nil {
			return
		}
		if d := e.bound(f).DeclOf(s.Target); d != nil && d.ExplicitAlias {
			m[s.Target.ID()] = e.declType(d)
			return
		}
		src := e.exprType(f, s.Value, e.targetDeclaredType(f, s.Target))
		e.assignTo(f, s.Target, src, s.Value, m)
	case *pyast.AugAssign:
		e.augAssign(f, s, m)
	case *pyast.For:
		iter := e.exprType(f, s.Iter, nil)
		e.assignTo(f, s.Target, e.iterElement(f, s.Iter, iter, s.Async), nil, m)
	case *pyast.CompFor:
		iter := e.exprType(f, s.Iter, nil)
		e.assignTo(f, s.Target, e.iterElement(f, s.Iter, iter, s.Async), nil, m)
	case *pyast.WithItem:
		async := false
		if w, ok := f.AST.Parent(s).(*pyast.With); ok {
			async = w.Async
		}
		t := e.enterType(f, s, async)
		if s.Target != nil {
			e.assignTo(f, s.Target, t, nil, m)
		}
	case *pyast.ExceptHandler:
		if s.Name != nil {
			m[s.Name.ID()] = e.exceptionType(f, s)
		}
	case *pyast.NamedExpr:
		src := e.exprType(f, s.Value, e.walrusExpected(f, s))
		e.assignTo(f, s.Target, src, s.Value, m)
	case *pyast.MatchCase:
		e.assignPatternTargets(f, s, m)
	case *pyast.TypeAlias:
		if d := e.bound(f).DeclOf(s.Name); d != nil {
			m[s.Name.ID()] = e.declType(d)
		}
	}
}

// targetDeclaredType is the type values assigned to a target must have,
// or nil when the target is undeclared.
func (e *Evaluator) targetDeclaredType(f *SourceFile, target pyast.Expr) types.Type {
	switch t := target.(type) {
	case *pyast.Name:
		sym := e.targetSymbol(f, t)
		if sym == nil {
			return nil
		}
		return e.declaredTypeOfSymbol(sym)
	case *pyast.Attribute:
		base := types.RemoveUnbound(e.exprType(f, t.Value, nil))
		return e.memberSetType(f, t, base)
	case *pyast.Subscript:
		base := types.RemoveUnbound(e.exprType(f, t.Value, nil))
		var dests []types.Type
		for _, m := range types.Members(base) {
			d := e.itemSetType(f, m, t.Index)
			if d == nil {
				return nil
			}
			dests = append(dests, d)
		}
		if len(dests) == 0 {
			return nil
		}
		return types.Union(dests...)
	}
	return nil
}

func (e *Evaluator) targetSymbol(f *SourceFile, n *pyast.Name) *binder.Symbol {
	bf := e.bound(f)
	if flow := bf.FlowOf(n); flow != nil && flow.Symbol != nil {
		return flow.Symbol
	}
	return bf.ScopeOf(n).Resolve(n.Id)
}

// itemSetType is the value type __setitem__ accepts for an index, used as
// the expected type of the assigned value.
func (e *Evaluator) itemSetType(f *SourceFile, m types.Type, index pyast.Expr) types.Type {
	if td, ok := m.(*types.TypedDictType); ok {
		if key, ok := strConst(index); ok {
			if entry, ok := td.Entry(key); ok {
				return entry.Type
			}
		}
		return nil
	}
	fn, ok := e.silentMemberOf(f, m, "__setitem__").(*types.FunctionType)
	if !ok {
		return nil
	}
	var positional []*types.Param
	for i := range fn.Params {
		if fn.Params[i].Positional() {
			positional = append(positional, &fn.Params[i])
		}
	}
	if len(positional) != 2 {
		return nil
	}
	return positional[1].Type
}

// assignTo assigns a value of type src to target, reporting values the
// target does not accept, and records the narrowed type of every name,
// member and item target in m.
func (e *Evaluator) assignTo(f *SourceFile, target pyast.Expr, src types.Type, srcNode pyast.Node, m map[pyast.NodeID]types.Type) {
	at := srcNode
	if at == nil {
		at = target
	}
	switch t := target.(type) {
	case *pyast.Name:
		m[t.ID()] = e.narrowAssigned(f, at, src, e.targetDeclaredType(f, t))
	case *pyast.Attribute:
		base := types.RemoveUnbound(e.exprType(f, t.Value, nil))
		m[t.ID()] = e.narrowAssigned(f, at, src, e.memberSetType(f, t, base))
	case *pyast.Subscript:
		e.setItem(f, t, src, at)
		m[t.ID()] = src
	case *pyast.Tuple:
		e.unpack(f, t, t.Elts, src, srcNode, m)
	case *pyast.List:
		e.unpack(f, t, t.Elts, src, srcNode, m)
	case *pyast.Starred:
		e.assignTo(f, t.Value, src, srcNode, m)
	default:
		e.exprType(f, target, nil)
	}
}

// narrowAssigned checks an assignment against a declared type and returns
// the type the target holds afterwards.
func (e *Evaluator) narrowAssigned(f *SourceFile, at pyast.Node, src, declared types.Type) types.Type {
	if declared == nil {
		return src
	}
	if types.IsAnyOrUnknown(src) {
		return declared
	}
	if !e.isAssignable(declared, src) {
		e.reportAssign(f, at, src, declared, "Type \"%s\" is not assignable to declared type \"%s\"", src, declared)
		return declared
	}
	return narrowToDeclared(declared, src)
}

// narrowToDeclared is the type of a variable declared as declared after a
// value of type src is assigned to it. Literal values stay literal only
// when the declaration mentions literals.
func narrowToDeclared(declared, src types.Type) types.Type {
	if types.IsAnyOrUnknown(declared) || types.HasLiteral(declared) {
		return src
	}
	return widenInferred(src)
}

// setItem checks target[index] = value.
func (e *Evaluator) setItem(f *SourceFile, t *pyast.Subscript, src types.Type, at pyast.Node) {
	base := types.RemoveUnbound(e.exprType(f, t.Value, nil))
	for _, m := range types.Members(base) {
		switch m := m.(type) {
		case *types.AnyType, *types.UnknownType, *types.NeverType:
			e.exprType(f, t.Index, nil)
			continue
		case *types.TypedDictType:
			if key, ok := strConst(t.Index); ok {
				e.setTypedDictItem(f, t, m, key, src, at)
				continue
			}
		}
		method := e.silentMemberOf(f, m, "__setitem__")
		if method == nil {
			e.report(f, t.Value, UnsupportedOperator, "\"__setitem__\" method not defined on type \"%s\"", m)
			continue
		}
		res := e.callWithArgs(f, t, method, []callArg{{node: t.Index}, {typ: src}}, nil)
		e.reportCallFailure(f, t, res.Failure)
	}
}

func (e *Evaluator) setTypedDictItem(f *SourceFile, t *pyast.Subscript, td *types.TypedDictType, key string, src types.Type, at pyast.Node) {
	e.exprType(f, t.Index, nil)
	entry, ok := td.Entry(key)
	switch {
	case !ok:
		e.report(f, t.Index, MemberMissing, "\"%s\" is not a defined key in \"%s\"", key, td.Info.Name)
	case entry.ReadOnly:
		e.report(f, t.Index, AssignabilityFailure, "\"%s\" is a read-only key in \"%s\"", key, td.Info.Name)
	case !e.isAssignable(entry.Type, src):
		e.reportAssign(f, at, src, entry.Type, "Type \"%s\" is not assignable to key \"%s\" of \"%s\"", src, key, td.Info.Name)
	}
}

// unpack assigns the elements of src to the targets of a tuple or list
// target. A starred target receives a list of the remaining elements.
func (e *Evaluator) unpack(f *SourceFile, target pyast.Expr, elts []pyast.Expr, src types.Type, srcNode pyast.Node, m map[pyast.NodeID]types.Type) {
	star := -1
	for i, el := range elts {
		if _, ok := el.(*pyast.Starred); ok {
			star = i
		}
	}
	per := make([][]types.Type, len(elts))
	for _, mem := range types.Members(types.RemoveUnbound(src)) {
		parts := e.unpackMember(f, target, mem, len(elts), star, srcNode)
		for i := range elts {
			per[i] = append(per[i], parts[i])
		}
	}
	for i, el := range elts {
		e.assignTo(f, el, types.Union(per[i]...), nil, m)
	}
}

func (e *Evaluator) unpackMember(f *SourceFile, target pyast.Expr, mem types.Type, n, star int, srcNode pyast.Node) []types.Type {
	out := make([]types.Type, n)
	if tup, ok := e.tupleShape(mem); ok {
		if size, fixed := tup.FixedLen(); fixed {
			if (star < 0 && size != n) || (star >= 0 && size < n-1) {
				want := n
				if star >= 0 {
					want = n - 1
				}
				e.report(f, target, AssignabilityFailure, "Expression with type \"%s\" cannot be assigned to target tuple\n  Type \"%s\" is incompatible with target tuple\n    Tuple size mismatch; expected %d but received %d", mem, mem, want, size)
				for i := range out {
					out[i] = types.Unknown
				}
				return out
			}
			entries, _ := e.sequenceEntries(tup, n, star)
			return entries
		}
	}
	elem := e.iterElement(f, srcNode, mem, false)
	for i := range out {
		out[i] = elem
	}
	if star >= 0 {
		out[star] = e.builtinInstance("list", types.StripLiteral(elem))
	}
	return out
}

// augAssign evaluates target op= value.
func (e *Evaluator) augAssign(f *SourceFile, s *pyast.AugAssign, m map[pyast.NodeID]types.Type) {
	old := e.augTargetValue(f, s)
	var expected types.Type
	if isDisplay(s.Value) {
		expected = old
	}
	right := types.RemoveUnbound(e.exprType(f, s.Value, expected))
	result := e.binaryOperation(f, s, s.Op, old, right, true)
	e.assignTo(f, s.Target, result, s, m)
}

// augTargetValue is the value of an augmented assignment target before
// the assignment.
func (e *Evaluator) augTargetValue(f *SourceFile, s *pyast.AugAssign) types.Type {
	flow := e.bound(f).FlowOf(s.Target)
	if flow == nil || flow.Kind != binder.FlowAssignment || flow.Node != pyast.Node(s.Target) {
		return types.RemoveUnbound(e.exprType(f, s.Target, nil))
	}
	t := e.referenceAt(f, s.Target, flow.Antecedent())
	if name, ok := s.Target.(*pyast.Name); ok {
		switch {
		case types.IsUnbound(t):
			e.report(f, name, UnresolvedSymbol, "\"%s\" is unbound", name.Id)
			return types.Unknown
		case types.IsPossiblyUnbound(t):
			e.report(f, name, PossiblyUnbound, "\"%s\" is possibly unbound", name.Id)
		}
	}
	return types.RemoveUnbound(t)
}

// exceptionType is the type bound by "except E as name".
func (e *Evaluator) exceptionType(f *SourceFile, h *pyast.ExceptHandler) types.Type {
	if h.Type == nil {
		return e.builtinInstance("BaseException")
	}
	var toInstance func(t types.Type) types.Type
	toInstance = func(t types.Type) types.Type {
		return mapUnion(t, func(m types.Type) types.Type {
			switch m := m.(type) {
			case *types.ClassType:
				return types.ToInstance(m)
			case *types.TypeVarType:
				if m.Instantiable {
					return m.AsInstance()
				}
			case *types.TupleType:
				return toInstance(m.ElemUnion())
			case *types.AnyType, *types.UnknownType:
				return m
			}
			return types.Unknown
		})
	}
	inst := toInstance(types.RemoveUnbound(e.exprType(f, h.Type, nil)))
	if h.IsGroup {
		if info := e.builtinInfo("BaseExceptionGroup"); info != nil {
			return e.instanceOf(info, inst)
		}
	}
	return inst
}
