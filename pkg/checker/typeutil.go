package checker

import (
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// typeVarsInOrder lists the type variables in t that satisfy keep, in order
// of first appearance and without modifiers.
func typeVarsInOrder(t types.Type, keep func(*types.TypeVarType) bool) []*types.TypeVarType {
	var out []*types.TypeVarType
	seen := map[types.TypeVarKey]bool{}
	add := func(tv *types.TypeVarType) {
		base := tv.Base()
		if seen[base.Key()] || (keep != nil && !keep(base)) {
			return
		}
		seen[base.Key()] = true
		out = append(out, base)
	}
	var visit func(t types.Type)
	visit = func(t types.Type) {
		if t == nil {
			return
		}
		types.Walk(t, func(t types.Type) bool {
			switch t := t.(type) {
			case *types.TypeVarType:
				add(t)
			case *types.FunctionType:
				if t.ParamSpec != nil {
					add(t.ParamSpec)
				}
			case *types.AliasType:
				for _, a := range t.Args {
					visit(a)
				}
			}
			return true
		})
	}
	visit(t)
	return out
}

func unscoped(tv *types.TypeVarType) bool {
	return !tv.IsScoped()
}

// hasFreeTypeVars reports whether t mentions a type variable of one of the
// given scopes.
func hasFreeTypeVars(t types.Type, scopes map[string]bool) bool {
	if t == nil {
		return false
	}
	for k := range t.FreeTypeVars() {
		if scopes[k.Scope] {
			return true
		}
	}
	return false
}

// specialFormOf returns the name of an unsubscripted special form value.
func specialFormOf(t types.Type) string {
	if c, ok := t.(*types.ClassType); ok && c.Info.Is(types.ClassSpecialForm) && c.Args == nil {
		return c.Info.SpecialForm
	}
	return ""
}

// indexArgs splits a subscript index into its arguments.
func indexArgs(index pyast.Expr) []pyast.Expr {
	if tup, ok := index.(*pyast.Tuple); ok && (!tup.Parenthesized || len(tup.Elts) == 0) {
		if len(tup.Elts) == 0 {
			return []pyast.Expr{tup}
		}
		return tup.Elts
	}
	return []pyast.Expr{index}
}

func isEllipsis(n pyast.Expr) bool {
	c, ok := n.(*pyast.Constant)
	return ok && c.Kind == pyast.ConstEllipsis
}

func isEmptyTuple(n pyast.Expr) bool {
	t, ok := n.(*pyast.Tuple)
	return ok && len(t.Elts) == 0
}

// asInstance views an instance-like type as an InstanceType of its class.
// Tuples become instances of tuple over their element union.
func asInstance(t types.Type) (*types.InstanceType, bool) {
	switch t := t.(type) {
	case *types.InstanceType:
		return t, true
	case *types.LiteralType:
		return &types.InstanceType{Info: t.Info}, true
	case *types.TypedDictType:
		return &types.InstanceType{Info: t.Info, Args: t.Args}, true
	case *types.TupleType:
		if t.Info == nil {
			return nil, false
		}
		return &types.InstanceType{Info: t.Info, Args: []types.Type{t.ElemUnion()}}, true
	}
	return nil, false
}

// mroSubs maps the type parameters of base, as it appears in the MRO of
// inst's class, to inst's arguments.
func mroSubs(inst *types.InstanceType, base *types.ClassInfo) (types.Subs, bool) {
	entry, ok := types.MROEntry(inst.Info, base)
	if !ok {
		return nil, false
	}
	entry = inst.Subs().Apply(entry)
	var args []types.Type
	switch e := entry.(type) {
	case *types.InstanceType:
		args = e.Args
	case *types.TupleType:
		args = []types.Type{e.ElemUnion()}
	case *types.TypedDictType:
		args = e.Args
	}
	return types.SubsFor(base.TypeParams, args), true
}

// upcast returns inst viewed as an instance of base, if base is in its MRO.
func upcast(t types.Type, base *types.ClassInfo) (*types.InstanceType, bool) {
	inst, ok := asInstance(t)
	if !ok {
		return nil, false
	}
	if types.SameClass(inst.Info, base) {
		return inst, true
	}
	entry, ok := types.MROEntry(inst.Info, base)
	if !ok {
		return nil, false
	}
	entry = inst.Subs().Apply(entry)
	return asInstance(entry)
}

// isLiteralValue reports whether every member of t is a literal or None.
func isLiteralValue(t types.Type) bool {
	for _, m := range types.Members(t) {
		switch m.(type) {
		case *types.LiteralType, *types.NoneType:
		default:
			return false
		}
	}
	return true
}

// mapUnion applies fn to the members of a union, or to t itself.
func mapUnion(t types.Type, fn func(types.Type) types.Type) types.Type {
	if _, ok := t.(*types.UnionType); !ok {
		r := fn(t)
		if r == nil {
			return types.Never
		}
		return r
	}
	return types.MapMembers(t, fn)
}

// resolveAliases expands recursive alias references at the top level.
func resolveAliases(t types.Type) types.Type {
	if _, ok := t.(*types.AliasType); ok {
		return types.Unalias(t)
	}
	return t
}
