package checker

import (
	"math"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// binaryMethods maps an operator to its method and reflected method.
var binaryMethods = map[string][2]string{
	"+":  {"__add__", "__radd__"},
	"-":  {"__sub__", "__rsub__"},
	"*":  {"__mul__", "__rmul__"},
	"@":  {"__matmul__", "__rmatmul__"},
	"/":  {"__truediv__", "__rtruediv__"},
	"//": {"__floordiv__", "__rfloordiv__"},
	"%":  {"__mod__", "__rmod__"},
	"**": {"__pow__", "__rpow__"},
	"<<": {"__lshift__", "__rlshift__"},
	">>": {"__rshift__", "__rrshift__"},
	"&":  {"__and__", "__rand__"},
	"|":  {"__or__", "__ror__"},
	"^":  {"__xor__", "__rxor__"},
	"==": {"__eq__", "__eq__"},
	"!=": {"__ne__", "__ne__"},
	"<":  {"__lt__", "__gt__"},
	"<=": {"__le__", "__ge__"},
	">":  {"__gt__", "__lt__"},
	">=": {"__ge__", "__le__"},
}

var inplaceMethods = map[string]string{
	"+":  "__iadd__",
	"-":  "__isub__",
	"*":  "__imul__",
	"@":  "__imatmul__",
	"/":  "__itruediv__",
	"//": "__ifloordiv__",
	"%":  "__imod__",
	"**": "__ipow__",
	"<<": "__ilshift__",
	">>": "__irshift__",
	"&":  "__iand__",
	"|":  "__ior__",
	"^":  "__ixor__",
}

var unaryMethods = map[string]string{
	"-": "__neg__",
	"+": "__pos__",
	"~": "__invert__",
}

func (e *Evaluator) binaryExpr(f *SourceFile, n *pyast.BinOp, expected types.Type) types.Type {
	var leftExpected types.Type
	switch n.Op {
	case "+", "|":
		leftExpected = expected
	}
	left := types.RemoveUnbound(e.exprType(f, n.Left, leftExpected))
	var rightExpected types.Type
	if n.Op == "+" && isDisplay(n.Right) && !types.IsAnyOrUnknown(left) {
		rightExpected = left
	}
	right := types.RemoveUnbound(e.exprType(f, n.Right, rightExpected))
	if n.Op == "|" && e.isTypeLike(left) && e.isTypeLike(right) && (!types.IsNone(left) || !types.IsNone(right)) {
		// int | None in a value expression builds a union type form.
		return types.Union(left, right)
	}
	return e.binaryOperation(f, n, n.Op, left, right, false)
}

func isDisplay(n pyast.Expr) bool {
	switch n.(type) {
	case *pyast.List, *pyast.Set, *pyast.Dict, *pyast.Tuple, *pyast.Comprehension:
		return true
	}
	return false
}

// isTypeLike reports whether every member of t is a class object, a type
// form or None.
func (e *Evaluator) isTypeLike(t types.Type) bool {
	for _, m := range types.Members(t) {
		switch m := m.(type) {
		case *types.ClassType:
			if m.Info.Is(types.ClassSpecialForm) {
				return false
			}
		case *types.TypeFormType, *types.NoneType:
		case *types.TypeVarType:
			if !m.Instantiable {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// binaryOperation evaluates left op right through the operator methods,
// falling back to the reflected method of the right operand. Union
// operands are expanded member by member.
func (e *Evaluator) binaryOperation(f *SourceFile, n pyast.Node, op string, left, right types.Type, inplace bool) types.Type {
	if types.IsNever(left) || types.IsNever(right) {
		return types.Never
	}
	if t := e.literalMath(op, left, right); t != nil {
		return t
	}
	failed := false
	result := mapUnion(left, func(l types.Type) types.Type {
		if t, ok := e.binaryOnMember(f, n, op, l, right, inplace); ok {
			return t
		}
		if _, isUnion := right.(*types.UnionType); isUnion {
			var ts []types.Type
			for _, r := range types.Members(right) {
				t, ok := e.binaryOnMember(f, n, op, l, r, inplace)
				if !ok {
					failed = true
					return types.Unknown
				}
				ts = append(ts, t)
			}
			return types.Union(ts...)
		}
		failed = true
		return types.Unknown
	})
	if failed {
		text := op
		if inplace {
			text += "="
		}
		e.report(f, n, UnsupportedOperator, "Operator \"%s\" not supported for types \"%s\" and \"%s\"", text, left, right)
		return types.Unknown
	}
	return result
}

func (e *Evaluator) binaryOnMember(f *SourceFile, n pyast.Node, op string, l, r types.Type, inplace bool) (types.Type, bool) {
	if types.IsUnknown(l) || types.IsUnknown(r) {
		return types.Unknown, true
	}
	if types.IsAnyOrUnknown(l) || types.IsAnyOrUnknown(r) {
		return types.Any, true
	}
	if op == "+" {
		if t := e.tupleConcat(l, r); t != nil {
			return t, true
		}
	}
	methods, ok := binaryMethods[op]
	if !ok {
		return nil, false
	}
	if inplace {
		if name, ok := inplaceMethods[op]; ok {
			if t, ok := e.callDunder(f, n, l, name, r); ok {
				return t, true
			}
		}
	}
	if t, ok := e.callDunder(f, n, l, methods[0], r); ok {
		return t, true
	}
	if t, ok := e.callDunder(f, n, r, methods[1], l); ok {
		return t, true
	}
	return nil, false
}

// tupleConcat keeps the shape of concatenated tuples when at most one of
// them is unbounded.
func (e *Evaluator) tupleConcat(l, r types.Type) types.Type {
	lt, ok := l.(*types.TupleType)
	if !ok || !isBuiltin(lt.Info, "tuple") {
		return nil
	}
	rt, ok := r.(*types.TupleType)
	if !ok || !isBuiltin(rt.Info, "tuple") {
		return nil
	}
	if lt.UnboundedIndex() >= 0 && rt.UnboundedIndex() >= 0 {
		return nil
	}
	elems := append(append([]types.TupleElem(nil), lt.Elems...), rt.Elems...)
	return e.newTuple(elems)
}

// callDunder calls a special method looked up on the type of obj, without
// reporting anything. ok is false when the method is missing or rejects
// the arguments.
func (e *Evaluator) callDunder(f *SourceFile, n pyast.Node, obj types.Type, name string, args ...types.Type) (types.Type, bool) {
	var ret types.Type
	ok := false
	e.speculate(func() {
		var method types.Type
		switch o := obj.(type) {
		case *types.ClassType:
			m, found := e.metaclassMember(f, n, o.Info, o, name)
			if !found {
				return
			}
			method = m
		default:
			method = e.silentMemberOf(f, obj, name)
			if method == nil {
				return
			}
		}
		cargs := make([]callArg, len(args))
		for i, a := range args {
			cargs[i] = callArg{typ: a}
		}
		res := e.callWithArgs(f, n, method, cargs, nil)
		if res.OK() {
			ret, ok = res.ReturnType, true
		}
	})
	return ret, ok
}

// literalMath folds arithmetic on int literals and concatenation of str
// and bytes literals. It returns nil when an operand is not a literal or
// the result would not be exact.
func (e *Evaluator) literalMath(op string, left, right types.Type) types.Type {
	lm, rm := types.Members(left), types.Members(right)
	if len(lm)*len(rm) > e.config.MaxUnionMembers {
		return nil
	}
	var out []types.Type
	for _, l := range lm {
		ll, ok := l.(*types.LiteralType)
		if !ok {
			return nil
		}
		for _, r := range rm {
			rl, ok := r.(*types.LiteralType)
			if !ok {
				return nil
			}
			v, ok := foldLiteral(op, ll.Value, rl.Value)
			if !ok {
				return nil
			}
			out = append(out, e.literal(v))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return types.Union(out...)
}

func foldLiteral(op string, a, b any) (any, bool) {
	switch a := a.(type) {
	case int64:
		b, ok := b.(int64)
		if !ok {
			return nil, false
		}
		return foldInt(op, a, b)
	case string:
		b, ok := b.(string)
		if !ok || op != "+" {
			return nil, false
		}
		return a + b, true
	case types.Bytes:
		b, ok := b.(types.Bytes)
		if !ok || op != "+" {
			return nil, false
		}
		return a + b, true
	}
	return nil, false
}

// foldInt evaluates an int operation with Python semantics, failing on
// overflow and division by zero.
func foldInt(op string, a, b int64) (int64, bool) {
	switch op {
	case "+":
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return 0, false
		}
		return a + b, true
	case "-":
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return 0, false
		}
		return a - b, true
	case "*":
		if a == 0 || b == 0 {
			return 0, true
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return 0, false
		}
		return r, true
	case "//":
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return 0, false
		}
		q := a / b
		if a%b != 0 && (a < 0) != (b < 0) {
			q--
		}
		return q, true
	case "%":
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return 0, false
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, true
	case "&":
		return a & b, true
	case "|":
		return a | b, true
	case "^":
		return a ^ b, true
	case "<<":
		if b < 0 || b >= 63 || a < 0 || a > math.MaxInt64>>b {
			return 0, false
		}
		return a << b, true
	case ">>":
		if b < 0 {
			return 0, false
		}
		if b >= 63 {
			if a < 0 {
				return -1, true
			}
			return 0, true
		}
		return a >> b, true
	}
	return 0, false
}

func (e *Evaluator) unaryExpr(f *SourceFile, n *pyast.UnaryOp) types.Type {
	operand := types.RemoveUnbound(e.exprType(f, n.Operand, nil))
	if n.Op == "not" {
		switch {
		case !e.canBeFalsy(f, operand):
			return e.literal(false)
		case !e.canBeTruthy(f, operand):
			return e.literal(true)
		}
		return e.boolType()
	}
	if types.IsAnyOrUnknown(operand) || types.IsNever(operand) {
		return operand
	}
	if t := e.foldUnary(n.Op, operand); t != nil {
		return t
	}
	name := unaryMethods[n.Op]
	failed := false
	t := mapUnion(operand, func(m types.Type) types.Type {
		if types.IsAnyOrUnknown(m) {
			return m
		}
		r, ok := e.callDunder(f, n, m, name)
		if !ok {
			failed = true
			return types.Unknown
		}
		return r
	})
	if failed {
		e.report(f, n, UnsupportedOperator, "Operator \"%s\" not supported for type \"%s\"", n.Op, operand)
		return types.Unknown
	}
	return t
}

// foldUnary negates, inverts or keeps int literals, and bool literals as
// the ints they are.
func (e *Evaluator) foldUnary(op string, t types.Type) types.Type {
	var out []types.Type
	for _, m := range types.Members(t) {
		lit, ok := m.(*types.LiteralType)
		if !ok {
			return nil
		}
		var v int64
		switch x := lit.Value.(type) {
		case int64:
			v = x
		case bool:
			if x {
				v = 1
			}
		default:
			return nil
		}
		switch op {
		case "-":
			if v == math.MinInt64 {
				return nil
			}
			v = -v
		case "~":
			v = ^v
		}
		out = append(out, e.literal(v))
	}
	return types.Union(out...)
}

func (e *Evaluator) compareExpr(f *SourceFile, n *pyast.Compare) types.Type {
	left := types.RemoveUnbound(e.exprType(f, n.Left, nil))
	var results []types.Type
	for i, op := range n.Ops {
		right := types.RemoveUnbound(e.exprType(f, n.Comparators[i], nil))
		results = append(results, e.comparison(f, n, op, left, right))
		left = right
	}
	return types.Union(results...)
}

func (e *Evaluator) comparison(f *SourceFile, n pyast.Node, op string, left, right types.Type) types.Type {
	switch op {
	case "is", "is not":
		return e.boolType()
	case "in", "not in":
		return e.containment(f, n, op, left, right)
	}
	return e.binaryOperation(f, n, op, left, right, false)
}

// containment checks "x in y": y must define __contains__ accepting x, or
// be iterable.
func (e *Evaluator) containment(f *SourceFile, n pyast.Node, op string, left, right types.Type) types.Type {
	failed := false
	result := mapUnion(right, func(r types.Type) types.Type {
		if types.IsAnyOrUnknown(r) {
			return e.boolType()
		}
		if t, ok := e.callDunder(f, n, r, "__contains__", left); ok {
			if op == "not in" {
				return e.boolType()
			}
			return t
		}
		if _, ok := e.iterMember(f, nil, r, false); ok {
			return e.boolType()
		}
		failed = true
		return types.Unknown
	})
	if failed {
		e.report(f, n, UnsupportedOperator, "Operator \"%s\" not supported for types \"%s\" and \"%s\"", op, left, right)
		return e.boolType()
	}
	return result
}

func (e *Evaluator) boolOpExpr(f *SourceFile, n *pyast.BoolOp, expected types.Type) types.Type {
	left := types.RemoveUnbound(e.exprType(f, n.Left, expected))
	rightExpected := expected
	if rightExpected == nil && n.Op == "or" && isDisplay(n.Right) {
		rightExpected = types.RemoveNone(left)
	}
	right := types.RemoveUnbound(e.exprType(f, n.Right, rightExpected))
	if n.Op == "and" {
		if !e.canBeTruthy(f, left) {
			return left
		}
		if !e.canBeFalsy(f, left) {
			return right
		}
		return types.Union(e.narrowTruthy(f, left, false), right)
	}
	if !e.canBeFalsy(f, left) {
		return left
	}
	if !e.canBeTruthy(f, left) {
		return right
	}
	return types.Union(e.narrowTruthy(f, left, true), right)
}

// iterElement is the type produced by iterating over t. When node is not
// nil, types that cannot be iterated are reported there.
func (e *Evaluator) iterElement(f *SourceFile, node pyast.Node, t types.Type, async bool) types.Type {
	var failed types.Type
	r := mapUnion(types.RemoveUnbound(t), func(m types.Type) types.Type {
		if el, ok := e.iterMember(f, node, m, async); ok {
			return el
		}
		if failed == nil {
			failed = m
		}
		return types.Unknown
	})
	if failed != nil && node != nil {
		method := "__iter__"
		if async {
			method = "__aiter__"
		}
		e.report(f, node, UnsupportedOperator, "\"%s\" is not iterable\n  \"%s\" method not defined", failed, method)
	}
	return r
}

func (e *Evaluator) iterMember(f *SourceFile, node pyast.Node, m types.Type, async bool) (types.Type, bool) {
	switch m := m.(type) {
	case *types.AnyType, *types.UnknownType:
		return m, true
	case *types.NeverType:
		return types.Never, true
	case *types.TupleType:
		if !async {
			return m.ElemUnion(), true
		}
	case *types.InstanceType:
		if !async && len(m.Info.TupleElems) > 0 {
			tup := &types.TupleType{Info: e.builtinInfo("tuple"), Elems: m.Info.TupleElems}
			return m.Subs().Apply(tup.ElemUnion()), true
		}
	}
	iterName, nextName := "__iter__", "__next__"
	if async {
		iterName, nextName = "__aiter__", "__anext__"
	}
	it, ok := e.callDunder(f, node, m, iterName)
	if !ok {
		if !async {
			if el, ok := e.callDunder(f, node, m, "__getitem__", e.intType()); ok {
				return el, true
			}
		}
		return nil, false
	}
	next, ok := e.callDunder(f, node, it, nextName)
	if !ok {
		return nil, false
	}
	if async {
		return e.awaitedType(f, nil, next), true
	}
	return next, true
}

// awaitedType is the result of awaiting a value of type t. When node is
// not nil, values that cannot be awaited are reported there.
func (e *Evaluator) awaitedType(f *SourceFile, node pyast.Node, t types.Type) types.Type {
	var failed types.Type
	r := mapUnion(types.RemoveUnbound(t), func(m types.Type) types.Type {
		switch m.(type) {
		case *types.AnyType, *types.UnknownType, *types.NeverType:
			return m
		}
		if info := e.typingInfo("Awaitable"); info != nil {
			if inst, ok := upcast(m, info); ok && len(inst.Args) == 1 {
				return inst.Args[0]
			}
		}
		if gen, ok := e.callDunder(f, node, m, "__await__"); ok {
			if info := e.typingInfo("Generator"); info != nil {
				if inst, ok := upcast(gen, info); ok && len(inst.Args) == 3 {
					return inst.Args[2]
				}
			}
			return types.Unknown
		}
		if failed == nil {
			failed = m
		}
		return types.Unknown
	})
	if failed != nil && node != nil {
		e.report(f, node, UnsupportedOperator, "\"%s\" is not awaitable", failed)
	}
	return r
}

// enterType is the value a with item binds: the result of __enter__, or
// the awaited result of __aenter__.
func (e *Evaluator) enterType(f *SourceFile, item *pyast.WithItem, async bool) types.Type {
	cm := types.RemoveUnbound(e.exprType(f, item.Context, nil))
	name := "__enter__"
	if async {
		name = "__aenter__"
	}
	var failed types.Type
	r := mapUnion(cm, func(m types.Type) types.Type {
		if types.IsAnyOrUnknown(m) || types.IsNever(m) {
			return m
		}
		t, ok := e.callDunder(f, item.Context, m, name)
		if !ok {
			if failed == nil {
				failed = m
			}
			return types.Unknown
		}
		if async {
			return e.awaitedType(f, item.Context, t)
		}
		return t
	})
	if failed != nil {
		keyword := "with"
		if async {
			keyword = "async with"
		}
		e.report(f, item.Context, UnsupportedOperator, "Object of type \"%s\" cannot be used with \"%s\" because it does not correctly implement %s", failed, keyword, name)
	}
	return r
}
