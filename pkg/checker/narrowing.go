package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// condKey identifies the narrowings of one branch of a condition.
type condKey struct {
	cond     pyast.NodeID
	positive bool
}

// narrowing refines the type of one reference on one branch of a
// condition. apply is evaluated lazily by the flow walker and passes
// Unbound through.
type narrowing struct {
	key   binder.RefKey
	ref   pyast.Expr
	apply func(types.Type) types.Type
}

// narrowings returns the references a condition narrows when it is
// positive or negative.
func (e *Evaluator) narrowings(f *SourceFile, cond pyast.Expr, positive bool) []narrowing {
	if cond == nil {
		return nil
	}
	p := e.part(f)
	k := condKey{cond.ID(), positive}
	if nws, ok := p.narrowers[k]; ok {
		return nws
	}
	nws := e.computeNarrowings(f, cond, positive)
	p.narrowers[k] = nws
	return nws
}

func (e *Evaluator) computeNarrowings(f *SourceFile, cond pyast.Expr, positive bool) []narrowing {
	switch c := cond.(type) {
	case *pyast.UnaryOp:
		if c.Op == "not" {
			return e.narrowings(f, c.Operand, !positive)
		}
	case *pyast.NamedExpr:
		return e.truthNarrowings(f, c.Target, positive)
	case *pyast.Name, *pyast.Attribute, *pyast.Subscript:
		return e.truthNarrowings(f, c, positive)
	case *pyast.Compare:
		if len(c.Ops) == 1 {
			return e.compareNarrowings(f, c, positive)
		}
	case *pyast.Call:
		return e.callNarrowings(f, c, positive)
	}
	return nil
}

// refKey returns the narrowable reference of an expression, looking
// through assignment expressions.
func (e *Evaluator) refKey(f *SourceFile, x pyast.Expr) (pyast.Expr, binder.RefKey, bool) {
	if ne, ok := x.(*pyast.NamedExpr); ok {
		x = ne.Target
	}
	switch x.(type) {
	case *pyast.Name, *pyast.Attribute, *pyast.Subscript:
	default:
		return nil, "", false
	}
	key, ok := e.bound(f).KeyOf(x)
	return x, key, ok
}

func (e *Evaluator) truthNarrowings(f *SourceFile, x pyast.Expr, positive bool) []narrowing {
	ref, key, ok := e.refKey(f, x)
	if !ok {
		return nil
	}
	return []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
		return e.narrowTruthy(f, t, positive)
	}}}
}

func (e *Evaluator) compareNarrowings(f *SourceFile, c *pyast.Compare, positive bool) []narrowing {
	op := c.Ops[0]
	left, right := c.Left, c.Comparators[0]
	switch op {
	case "is not":
		op, positive = "is", !positive
	case "!=":
		op, positive = "==", !positive
	case "not in":
		op, positive = "in", !positive
	}
	switch op {
	case "is", "==":
		if out := e.equalityNarrowings(f, left, right, op == "is", positive); out != nil {
			return out
		}
		return e.equalityNarrowings(f, right, left, op == "is", positive)
	case "in":
		return e.inNarrowings(f, left, right, positive)
	}
	return nil
}

// equalityNarrowings narrows refExpr on "refExpr is value" or
// "refExpr == value".
func (e *Evaluator) equalityNarrowings(f *SourceFile, refExpr, valExpr pyast.Expr, identity, positive bool) []narrowing {
	if call, ok := refExpr.(*pyast.Call); ok {
		return e.callComparisonNarrowings(f, call, valExpr, identity, positive)
	}
	ref, key, ok := e.refKey(f, refExpr)
	if !ok {
		return nil
	}
	if isNoneConst(valExpr) {
		return []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
			return e.narrowNone(t, positive)
		}}}
	}
	valueLiteral := func() (*types.LiteralType, bool) {
		lit, ok := e.exprType(f, valExpr, nil).(*types.LiteralType)
		return lit, ok
	}
	out := []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
		lit, ok := valueLiteral()
		if !ok {
			return t
		}
		return e.narrowForLiteral(t, lit, positive, identity)
	}}}

	// Comparing a member of a union of tagged classes narrows the union.
	switch r := ref.(type) {
	case *pyast.Attribute:
		if base, baseKey, ok := e.refKey(f, r.Value); ok {
			out = append(out, narrowing{key: baseKey, ref: base, apply: func(t types.Type) types.Type {
				lit, ok := valueLiteral()
				if !ok {
					return t
				}
				return e.narrowDiscriminant(t, func(m types.Type) types.Type {
					return e.silentMemberOf(f, m, r.Attr)
				}, lit, positive)
			}})
		}
	case *pyast.Subscript:
		if base, baseKey, ok := e.refKey(f, r.Value); ok {
			out = append(out, narrowing{key: baseKey, ref: base, apply: func(t types.Type) types.Type {
				lit, ok := valueLiteral()
				if !ok {
					return t
				}
				return e.narrowDiscriminant(t, func(m types.Type) types.Type {
					return entryAt(m, r.Index)
				}, lit, positive)
			}})
		}
	}
	return out
}

// callComparisonNarrowings handles len(x) == N and type(x) is C.
func (e *Evaluator) callComparisonNarrowings(f *SourceFile, call *pyast.Call, valExpr pyast.Expr, identity, positive bool) []narrowing {
	args, ok := positionalArgs(call)
	if !ok || len(args) != 1 {
		return nil
	}
	fn, ok := call.Func.(*pyast.Name)
	if !ok {
		return nil
	}
	ref, key, ok := e.refKey(f, args[0])
	if !ok {
		return nil
	}
	switch fn.Id {
	case "len":
		n, ok := intConst(valExpr)
		if !ok || n < 0 || identity {
			return nil
		}
		return []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
			if !e.isBuiltinFunc(f, call.Func, "len") {
				return t
			}
			return e.narrowTupleLen(t, int(n), positive)
		}}}
	case "type":
		return []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
			c, ok := e.exprType(f, call.Func, nil).(*types.ClassType)
			if !ok || !isBuiltin(c.Info, "type") {
				return t
			}
			cls, ok := e.exprType(f, valExpr, nil).(*types.ClassType)
			if !ok {
				return t
			}
			return e.narrowTypeIs(t, cls, positive)
		}}}
	}
	return nil
}

func (e *Evaluator) isBuiltinFunc(f *SourceFile, callee pyast.Expr, name string) bool {
	fn, ok := e.exprType(f, callee, nil).(*types.FunctionType)
	return ok && fn.FullName == "builtins."+name
}

func isNoneConst(n pyast.Expr) bool {
	c, ok := n.(*pyast.Constant)
	return ok && c.Kind == pyast.ConstNone
}

// entryAt is the type of a TypedDict entry or tuple element named by a
// constant index, or nil.
func entryAt(m types.Type, index pyast.Expr) types.Type {
	switch m := m.(type) {
	case *types.TypedDictType:
		if key, ok := strConst(index); ok {
			if entry, ok := m.Entry(key); ok {
				return entry.Type
			}
		}
	case *types.TupleType:
		if i, ok := intConst(index); ok {
			if t, ok := m.Index(int(i)); ok {
				return t
			}
		}
	}
	return nil
}

// narrowDiscriminant keeps the members of t whose tag, read by member,
// can equal lit.
func (e *Evaluator) narrowDiscriminant(t types.Type, member func(types.Type) types.Type, lit *types.LiteralType, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) || types.IsAnyOrUnknown(m) {
			return m
		}
		tag := member(m)
		if tag == nil {
			return m
		}
		if types.IsNever(e.narrowForLiteral(tag, lit, positive, false)) {
			return nil
		}
		return m
	})
}

func (e *Evaluator) inNarrowings(f *SourceFile, left, right pyast.Expr, positive bool) []narrowing {
	var out []narrowing
	if key, ok := strConst(left); ok {
		if ref, rkey, ok := e.refKey(f, right); ok {
			out = append(out, narrowing{key: rkey, ref: ref, apply: func(t types.Type) types.Type {
				return narrowTypedDictKey(t, key, positive)
			}})
		}
	}
	if ref, lkey, ok := e.refKey(f, left); ok {
		out = append(out, narrowing{key: lkey, ref: ref, apply: func(t types.Type) types.Type {
			elems := e.containerLiterals(f, right)
			if elems == nil {
				return t
			}
			if !positive {
				return removeElements(t, elems)
			}
			return e.narrowToElements(t, elems)
		}})
	}
	return out
}

// containerLiterals returns the literal elements of a container, or nil if
// any element is not a literal or None.
func (e *Evaluator) containerLiterals(f *SourceFile, container pyast.Expr) types.Type {
	var elts []pyast.Expr
	switch c := container.(type) {
	case *pyast.Tuple:
		elts = c.Elts
	case *pyast.List:
		elts = c.Elts
	case *pyast.Set:
		elts = c.Elts
	default:
		elem := e.iterElement(f, nil, e.exprType(f, container, nil), false)
		if !isLiteralValue(elem) {
			return nil
		}
		return elem
	}
	if len(elts) == 0 {
		return nil
	}
	var ts []types.Type
	for _, el := range elts {
		if _, ok := el.(*pyast.Starred); ok {
			return nil
		}
		t := e.exprType(f, el, nil)
		if !isLiteralValue(t) {
			return nil
		}
		ts = append(ts, t)
	}
	return types.Union(ts...)
}

// narrowToElements narrows t to the elements it could equal.
func (e *Evaluator) narrowToElements(t, elems types.Type) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) || types.IsAnyOrUnknown(m) {
			return m
		}
		var out []types.Type
		for _, el := range types.Members(elems) {
			if e.isAssignable(m, el) {
				out = append(out, el)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return types.Union(out...)
	})
}

// removeElements drops the literal and None members of t that appear in
// elems. Wider members may still hold a value outside elems and stay.
func removeElements(t, elems types.Type) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		switch m.(type) {
		case *types.LiteralType, *types.NoneType:
		default:
			return m
		}
		for _, el := range types.Members(elems) {
			if el.Eq(m) {
				return nil
			}
		}
		return m
	})
}

func narrowTypedDictKey(t types.Type, key string, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		td, ok := m.(*types.TypedDictType)
		if !ok {
			return m
		}
		entry, ok := td.Entry(key)
		if positive {
			if !ok {
				return nil
			}
			return td.WithProvided(key)
		}
		if ok && entry.Required {
			return nil
		}
		return m
	})
}

// narrowTupleLen narrows tuples on len(x) == n.
func (e *Evaluator) narrowTupleLen(t types.Type, n int, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		tup, ok := m.(*types.TupleType)
		if !ok {
			return m
		}
		if size, fixed := tup.FixedLen(); fixed {
			if (size == n) == positive {
				return m
			}
			return nil
		}
		if !positive {
			return m
		}
		if len(tup.Elems)-1 > n {
			return nil
		}
		if len(tup.Elems) == 1 && n <= e.config.MaxUnionMembers {
			elems := make([]types.Type, n)
			for i := range elems {
				elems[i] = tup.Elems[0].Type
			}
			return types.FixedTuple(tup.Info, elems...)
		}
		return m
	})
}

// narrowTypeIs narrows on type(x) is C, which only holds for instances of
// exactly C.
func (e *Evaluator) narrowTypeIs(t types.Type, cls *types.ClassType, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) {
			return m
		}
		if types.IsAnyOrUnknown(m) {
			if positive {
				return types.ToInstance(cls)
			}
			return m
		}
		info := types.InfoOf(m)
		if info == nil {
			return m
		}
		if positive {
			switch {
			case types.SameClass(info, cls.Info):
				return m
			case types.DerivesFrom(cls.Info, info):
				return e.specializeFilter(cls.Info, m)
			}
			return nil
		}
		if types.SameClass(info, cls.Info) && (cls.Info.Is(types.ClassFinal) || isLiteralValue(m)) {
			return nil
		}
		return m
	})
}

func (e *Evaluator) callNarrowings(f *SourceFile, c *pyast.Call, positive bool) []narrowing {
	if len(c.Args) == 0 || c.Args[0].Name != "" || c.Args[0].Star != 0 {
		return nil
	}
	ref, key, ok := e.refKey(f, c.Args[0].Value)
	if !ok {
		return nil
	}
	return []narrowing{{key: key, ref: ref, apply: func(t types.Type) types.Type {
		return e.narrowForCall(f, c, t, positive)
	}}}
}

// narrowForCall applies isinstance, issubclass, callable, bool and user
// type guards to the type of their first argument.
func (e *Evaluator) narrowForCall(f *SourceFile, c *pyast.Call, t types.Type, positive bool) types.Type {
	switch callee := e.exprType(f, c.Func, nil).(type) {
	case *types.FunctionType:
		switch callee.FullName {
		case "builtins.isinstance", "builtins.issubclass":
			if len(c.Args) != 2 || c.Args[1].Star != 0 {
				return t
			}
			filters, ok := e.isInstanceFilters(e.exprType(f, c.Args[1].Value, nil))
			if !ok {
				return t
			}
			return e.narrowIsInstance(t, filters, positive, callee.FullName == "builtins.issubclass")
		case "builtins.callable":
			return e.narrowCallable(f, t, positive)
		}
		if callee.Guard != nil && len(c.Args) >= 1 {
			// Variables the guard leaves unsolved are Unknown.
			guard := e.solve(newConstraints(callee.TypeParams...)).Apply(callee.Guard.Type)
			if callee.Guard.Kind == types.GuardTypeGuard {
				if positive {
					return mapUnion(t, func(m types.Type) types.Type {
						if types.IsUnbound(m) {
							return m
						}
						return guard
					})
				}
				return t
			}
			return e.narrowTypeIsGuard(t, guard, positive)
		}
	case *types.ClassType:
		if isBuiltin(callee.Info, "bool") && len(c.Args) == 1 {
			return e.narrowTruthy(f, t, positive)
		}
	}
	return t
}

// narrowTypeIsGuard applies a TypeIs[T] guard: the positive branch keeps the
// parts of t that are T, the negative branch the parts that are not.
func (e *Evaluator) narrowTypeIsGuard(t, guard types.Type, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) {
			return m
		}
		if types.IsAnyOrUnknown(m) {
			if positive {
				return guard
			}
			return m
		}
		if !positive {
			if e.isAssignable(guard, m) {
				return nil
			}
			return m
		}
		var out []types.Type
		for _, g := range types.Members(guard) {
			switch {
			case e.isAssignable(g, m):
				out = append(out, m)
			case e.isAssignable(m, g):
				out = append(out, g)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return types.Union(out...)
	})
}

// Truthiness.

// canBeFalsy reports whether some value of t is falsy.
func (e *Evaluator) canBeFalsy(f *SourceFile, t types.Type) bool {
	for _, m := range types.Members(t) {
		if e.memberCanBeFalsy(f, m) {
			return true
		}
	}
	return false
}

// canBeTruthy reports whether some value of t is truthy.
func (e *Evaluator) canBeTruthy(f *SourceFile, t types.Type) bool {
	for _, m := range types.Members(t) {
		if e.memberCanBeTruthy(f, m) {
			return true
		}
	}
	return false
}

func (e *Evaluator) memberCanBeFalsy(f *SourceFile, m types.Type) bool {
	switch m := m.(type) {
	case *types.NeverType:
		return false
	case *types.NoneType:
		return true
	case *types.LiteralType:
		return m.IsFalsy()
	case *types.TupleType:
		if size, fixed := m.FixedLen(); fixed {
			return size == 0
		}
		return true
	case *types.FunctionType, *types.OverloadedType, *types.ModuleType, *types.ClassType, *types.TypeFormType:
		return false
	case *types.InstanceType:
		if len(m.Info.TupleElems) > 0 {
			return false
		}
		return e.definesTruth(m.Info)
	case *types.TypedDictType:
		for _, key := range m.Info.TypedDictKeys {
			if entry, ok := m.Entry(key); ok && entry.Required {
				return false
			}
		}
		return true
	}
	return true
}

func (e *Evaluator) memberCanBeTruthy(f *SourceFile, m types.Type) bool {
	switch m := m.(type) {
	case *types.NeverType, *types.NoneType:
		return false
	case *types.LiteralType:
		return !m.IsFalsy()
	case *types.TupleType:
		if size, fixed := m.FixedLen(); fixed {
			return size > 0
		}
	case *types.InstanceType:
		if b := e.silentMemberOf(f, m, "__bool__"); b != nil {
			if lit, ok := e.returnTypeOf(b).(*types.LiteralType); ok && lit.IsFalsy() {
				return false
			}
		}
	}
	return true
}

// definesTruth reports whether some class other than object gives
// instances of info a truth value through __bool__ or __len__.
func (e *Evaluator) definesTruth(info *types.ClassInfo) bool {
	for _, name := range []string{"__bool__", "__len__"} {
		m := e.lookupMember(info, name, false)
		if m != nil && (m.owner == nil || !isBuiltin(m.owner, "object")) {
			return true
		}
	}
	return false
}

// narrowTruthy keeps the members of t that can be truthy (or falsy). bool
// narrows to the matching literal.
func (e *Evaluator) narrowTruthy(f *SourceFile, t types.Type, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) {
			return m
		}
		if positive {
			if !e.memberCanBeTruthy(f, m) {
				return nil
			}
		} else if !e.memberCanBeFalsy(f, m) {
			return nil
		}
		if inst, ok := m.(*types.InstanceType); ok && isBuiltin(inst.Info, "bool") {
			return e.literal(positive)
		}
		return m
	})
}

// None and literals.

// narrowNone narrows on x is None.
func (e *Evaluator) narrowNone(t types.Type, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.UnboundType, *types.TypeVarType:
			return m
		case *types.NoneType:
			if positive {
				return m
			}
			return nil
		case *types.AnyType, *types.UnknownType:
			if positive {
				return types.None
			}
			return m
		case *types.InstanceType:
			if positive {
				if e.isAssignable(m, types.None) {
					return types.None
				}
				return nil
			}
			return m
		}
		if positive {
			return nil
		}
		return m
	})
}

// narrowForLiteral narrows on x == lit or x is lit. The negative branch
// expands bool and enum classes into their remaining members.
func (e *Evaluator) narrowForLiteral(t types.Type, lit *types.LiteralType, positive, identity bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.UnboundType, *types.AnyType, *types.UnknownType, *types.TypeVarType:
			return m
		case *types.LiteralType:
			if m.Eq(lit) {
				if positive {
					return m
				}
				return nil
			}
			if positive {
				return nil
			}
			return m
		case *types.NoneType:
			if positive {
				return nil
			}
			return m
		case *types.InstanceType:
			if positive {
				if types.SameClass(m.Info, lit.Info) {
					return lit
				}
				if identity && !types.DerivesFrom(lit.Info, m.Info) {
					return nil
				}
				return m
			}
			if !types.SameClass(m.Info, lit.Info) {
				return m
			}
			if b, ok := lit.Value.(bool); ok {
				return e.literal(!b)
			}
			if m.Info.Is(types.ClassEnum) {
				var rest []types.Type
				for _, member := range e.enumMembers(m.Info) {
					if !member.Eq(lit) {
						rest = append(rest, member)
					}
				}
				if len(rest) == 0 {
					return nil
				}
				return types.Union(rest...)
			}
			return m
		}
		return m
	})
}

// isinstance.

// isInstanceFilters extracts the classes named by the second argument of
// isinstance. ok is false when some of them are not statically known.
func (e *Evaluator) isInstanceFilters(t types.Type) ([]types.Type, bool) {
	var out []types.Type
	var walk func(t types.Type) bool
	walk = func(t types.Type) bool {
		switch t := t.(type) {
		case *types.ClassType:
			if t.Info.Is(types.ClassSpecialForm) {
				return false
			}
			out = append(out, t)
		case *types.NoneType:
			info := e.builtinInfo("NoneType")
			if info == nil {
				return false
			}
			out = append(out, &types.ClassType{Info: info})
		case *types.TupleType:
			for _, el := range t.Elems {
				if !walk(el.Type) {
					return false
				}
			}
		case *types.UnionType:
			for _, m := range t.Members {
				if !walk(m) {
					return false
				}
			}
		case *types.TypeVarType:
			if !t.Instantiable {
				return false
			}
			out = append(out, t)
		case *types.TypeFormType:
			c := types.ToClassObject(t.Inner)
			if c == nil {
				return false
			}
			return walk(c)
		default:
			return false
		}
		return true
	}
	if !walk(t) {
		return nil, false
	}
	return out, true
}

// narrowIsInstance narrows t on isinstance(x, filters), or on
// issubclass(x, filters) when classCheck is set.
func (e *Evaluator) narrowIsInstance(t types.Type, filters []types.Type, positive, classCheck bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		if types.IsUnbound(m) {
			return m
		}
		if !classCheck {
			return e.filterInstance(m, filters, positive)
		}
		var subject types.Type
		switch c := m.(type) {
		case *types.ClassType:
			subject = types.ToInstance(c)
		case *types.TypeVarType:
			if !c.Instantiable {
				return m
			}
			subject = c.AsInstance()
		case *types.AnyType, *types.UnknownType:
			subject = m
		case *types.InstanceType:
			if !isBuiltin(c.Info, "type") {
				return m
			}
			if !positive {
				return m
			}
			subject = types.Unknown
		default:
			return m
		}
		r := e.filterInstance(subject, filters, positive)
		if r == nil {
			return nil
		}
		if c := types.ToClassObject(r); c != nil {
			return c
		}
		return m
	})
}

// filterInstance narrows one instance-like member. It returns nil when
// the member is eliminated.
func (e *Evaluator) filterInstance(m types.Type, filters []types.Type, positive bool) types.Type {
	if types.IsAnyOrUnknown(m) {
		if !positive {
			return m
		}
		ts := make([]types.Type, len(filters))
		for i, flt := range filters {
			ts[i] = types.ToInstance(flt)
		}
		return types.Union(ts...)
	}
	if tv, ok := m.(*types.TypeVarType); ok {
		bound := e.filterInstance(e.upperBound(tv), filters, positive)
		switch {
		case bound == nil || types.IsNever(bound):
			return nil
		case e.sameType(bound, e.upperBound(tv)):
			return m
		}
		return bound
	}
	info := e.instanceClass(m)
	if info == nil {
		return m
	}
	var kept []types.Type
	for _, flt := range filters {
		fi := filterClass(flt)
		if fi == nil {
			if positive {
				kept = append(kept, m)
			}
			continue
		}
		if isBuiltin(fi, "object") || types.DerivesFrom(info, fi) {
			if !positive {
				return nil
			}
			kept = append(kept, m)
			continue
		}
		if fi.Is(types.ClassProtocol) && e.isAssignable(e.instanceOf(fi), m) {
			if !positive {
				return nil
			}
			kept = append(kept, m)
			continue
		}
		if positive && types.DerivesFrom(fi, info) {
			kept = append(kept, e.specializeFilter(fi, m))
		}
	}
	if !positive {
		return m
	}
	if len(kept) == 0 {
		return nil
	}
	return types.Union(kept...)
}

// instanceClass is the runtime class of an instance-like type.
func (e *Evaluator) instanceClass(m types.Type) *types.ClassInfo {
	switch m := m.(type) {
	case *types.NoneType:
		return e.builtinInfo("NoneType")
	case *types.FunctionType, *types.OverloadedType:
		return e.builtinInfo("function")
	case *types.ModuleType:
		return e.stubInfo("types", "ModuleType")
	case *types.ClassType:
		if meta, ok := asInstance(m.Info.Metaclass); ok {
			return meta.Info
		}
		return e.builtinInfo("type")
	}
	return types.InfoOf(m)
}

func filterClass(flt types.Type) *types.ClassInfo {
	switch flt := flt.(type) {
	case *types.ClassType:
		return flt.Info
	case *types.TypeVarType:
		return types.InfoOf(flt.Bound)
	}
	return nil
}

// specializeFilter instantiates the filter class of an isinstance check
// for a value of type m, solving its type parameters from m where the
// class hierarchy determines them.
func (e *Evaluator) specializeFilter(fi *types.ClassInfo, m types.Type) types.Type {
	if len(fi.TypeParams) == 0 || isBuiltin(fi, "tuple") {
		return e.instanceOf(fi)
	}
	self := fi.SelfInstance()
	cs := newConstraints(fi.TypeParams...)
	ok := false
	e.speculate(func() {
		ok = e.assignType(m, self, cs)
	})
	if !ok {
		return e.instanceOf(fi)
	}
	return e.solve(cs).Apply(self)
}

// narrowCallable narrows on callable(x).
func (e *Evaluator) narrowCallable(f *SourceFile, t types.Type, positive bool) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		var callable bool
		switch m := m.(type) {
		case *types.UnboundType, *types.AnyType, *types.UnknownType, *types.TypeVarType:
			return m
		case *types.FunctionType, *types.OverloadedType, *types.ClassType, *types.TypeFormType:
			callable = true
		case *types.InstanceType:
			if isBuiltin(m.Info, "object") {
				return m
			}
			callable = e.silentMemberOf(f, m, "__call__") != nil
		}
		if callable == positive {
			return m
		}
		return nil
	})
}
