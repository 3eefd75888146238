package types

import "strings"

// UnionType is a union of two or more distinct types. Construct unions
// with Union, which keeps them flat and deduplicated.
type UnionType struct {
	Members []Type
}

func (*UnionType) typ() {}

// Union combines types into their union. Nested unions are flattened,
// duplicates and Never are dropped, and literals are absorbed by their
// non-literal class. Any or Unknown anywhere at the top level absorbs the
// rest. An empty union is Never.
func Union(ts ...Type) Type {
	members := make([]Type, 0, len(ts))
	var absorbing Type
	sawNoReturn := false
	var add func(t Type)
	add = func(t Type) {
		switch t := t.(type) {
		case nil:
			return
		case *UnionType:
			for _, m := range t.Members {
				add(m)
			}
			return
		case *NeverType:
			if t.NoReturn {
				sawNoReturn = true
			}
			return
		case *UnknownType:
			absorbing = t
			return
		case *AnyType:
			if absorbing == nil {
				absorbing = t
			}
			return
		}
		for _, m := range members {
			if m.Eq(t) {
				return
			}
		}
		members = append(members, t)
	}
	for _, t := range ts {
		add(t)
	}
	if absorbing != nil {
		return absorbing
	}
	members = absorbLiterals(members)
	switch len(members) {
	case 0:
		if sawNoReturn {
			return NoReturn
		}
		return Never
	case 1:
		return members[0]
	}
	return &UnionType{Members: members}
}

// absorbLiterals drops literals whose class is also present in widened
// form, and merges Literal[True] | Literal[False] into bool.
func absorbLiterals(members []Type) []Type {
	var trueAt, falseAt = -1, -1
	hasWide := func(info *ClassInfo) bool {
		for _, m := range members {
			if inst, ok := m.(*InstanceType); ok && SameClass(inst.Info, info) && len(inst.Args) == 0 {
				return true
			}
		}
		return false
	}
	out := members[:0:0]
	for _, m := range members {
		lit, ok := m.(*LiteralType)
		if !ok {
			out = append(out, m)
			continue
		}
		if hasWide(lit.Info) {
			continue
		}
		if b, ok := lit.Value.(bool); ok {
			if b {
				trueAt = len(out)
			} else {
				falseAt = len(out)
			}
		}
		out = append(out, m)
	}
	if trueAt < 0 || falseAt < 0 {
		return out
	}
	first, second := min(trueAt, falseAt), max(trueAt, falseAt)
	boolInst := &InstanceType{Info: out[first].(*LiteralType).Info}
	merged := append([]Type(nil), out[:first]...)
	merged = append(merged, boolInst)
	merged = append(merged, out[first+1:second]...)
	return append(merged, out[second+1:]...)
}

func (u *UnionType) Apply(subs Subs) Type {
	if len(subs) == 0 {
		return u
	}
	members := make([]Type, len(u.Members))
	for i, m := range u.Members {
		members[i] = m.Apply(subs)
	}
	return Union(members...)
}

func (u *UnionType) FreeTypeVars() TypeVarSet {
	return freeAll(u.Members)
}

// Eq ignores member order.
func (u *UnionType) Eq(other Type) bool {
	o, ok := other.(*UnionType)
	if !ok || len(o.Members) != len(u.Members) {
		return false
	}
	for _, m := range u.Members {
		if !Contains(o, m) {
			return false
		}
	}
	return true
}

// String prints literal members as a single Literal[...] and moves None
// to the end.
func (u *UnionType) String() string {
	var parts []string
	var lits []string
	litAt := -1
	hasNone := false
	for _, m := range u.Members {
		switch m := m.(type) {
		case *LiteralType:
			if litAt < 0 {
				litAt = len(parts)
				parts = append(parts, "")
			}
			lits = append(lits, m.ValueString())
		case *NoneType:
			hasNone = true
		case *FunctionType:
			parts = append(parts, "("+m.String()+")")
		default:
			parts = append(parts, m.String())
		}
	}
	if litAt >= 0 {
		parts[litAt] = "Literal[" + strings.Join(lits, ", ") + "]"
	}
	if hasNone {
		parts = append(parts, "None")
	}
	return strings.Join(parts, " | ")
}

// Members returns the members of a union, or t itself.
func Members(t Type) []Type {
	if u, ok := t.(*UnionType); ok {
		return u.Members
	}
	return []Type{t}
}

// Contains reports whether t has a member equivalent to m.
func Contains(t Type, m Type) bool {
	for _, x := range Members(t) {
		if x.Eq(m) {
			return true
		}
	}
	return false
}

// MapMembers applies fn to every member and unions the results. A nil
// result drops the member.
func MapMembers(t Type, fn func(Type) Type) Type {
	members := Members(t)
	out := make([]Type, 0, len(members))
	for _, m := range members {
		if r := fn(m); r != nil {
			out = append(out, r)
		}
	}
	return Union(out...)
}

// RemoveNone drops None from a union.
func RemoveNone(t Type) Type {
	return MapMembers(t, func(m Type) Type {
		if IsNone(m) {
			return nil
		}
		return m
	})
}

// RemoveUnbound drops Unbound from a union.
func RemoveUnbound(t Type) Type {
	if !IsUnbound(t) {
		if _, ok := t.(*UnionType); !ok {
			return t
		}
	}
	return MapMembers(t, func(m Type) Type {
		if IsUnbound(m) {
			return nil
		}
		return m
	})
}

// IsPossiblyUnbound reports whether Unbound is one member among others.
func IsPossiblyUnbound(t Type) bool {
	u, ok := t.(*UnionType)
	if !ok {
		return false
	}
	for _, m := range u.Members {
		if IsUnbound(m) {
			return true
		}
	}
	return false
}
