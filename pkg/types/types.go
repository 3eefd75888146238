package types

import (
	"fmt"
)

// Type is a static type as seen by the evaluator.
//
// Types are immutable once constructed. Operations that change a type
// (specialization, widening, narrowing) return a new value.
type Type interface {
	// Apply replaces type variables bound in subs.
	Apply(Subs) Type
	// FreeTypeVars reports the type variables referenced by the type.
	FreeTypeVars() TypeVarSet
	// Eq reports structural equivalence.
	Eq(Type) bool
	fmt.Stringer

	typ()
}

// UnknownType is an implicit Any: the evaluator could not determine a type.
type UnknownType struct{}

// AnyType is an explicit Any written by the user.
type AnyType struct{}

// UnboundType marks a symbol that may not be assigned on some path.
type UnboundType struct{}

// NeverType is the bottom type. NoReturn is the same type spelled
// differently in signatures.
type NeverType struct {
	NoReturn bool
}

// NoneType is the type of the None singleton.
type NoneType struct{}

var (
	Unknown  Type = &UnknownType{}
	Any      Type = &AnyType{}
	Unbound  Type = &UnboundType{}
	Never    Type = &NeverType{}
	NoReturn Type = &NeverType{NoReturn: true}
	None     Type = &NoneType{}
)

func (*UnknownType) typ() {}

func (t *UnknownType) Apply(Subs) Type { return t }

func (*UnknownType) FreeTypeVars() TypeVarSet { return nil }

func (*UnknownType) Eq(other Type) bool {
	_, ok := other.(*UnknownType)
	return ok
}

func (*UnknownType) String() string { return "Unknown" }

func (*AnyType) typ() {}

func (t *AnyType) Apply(Subs) Type { return t }

func (*AnyType) FreeTypeVars() TypeVarSet { return nil }

func (*AnyType) Eq(other Type) bool {
	_, ok := other.(*AnyType)
	return ok
}

func (*AnyType) String() string { return "Any" }

func (*UnboundType) typ() {}

func (t *UnboundType) Apply(Subs) Type { return t }

func (*UnboundType) FreeTypeVars() TypeVarSet { return nil }

func (*UnboundType) Eq(other Type) bool {
	_, ok := other.(*UnboundType)
	return ok
}

func (*UnboundType) String() string { return "Unbound" }

func (*NeverType) typ() {}

func (t *NeverType) Apply(Subs) Type { return t }

func (*NeverType) FreeTypeVars() TypeVarSet { return nil }

func (*NeverType) Eq(other Type) bool {
	_, ok := other.(*NeverType)
	return ok
}

func (*NoneType) typ() {}

func (t *NoneType) Apply(Subs) Type { return t }

func (*NoneType) FreeTypeVars() TypeVarSet { return nil }

func (*NoneType) Eq(other Type) bool {
	_, ok := other.(*NoneType)
	return ok
}

func (*NoneType) String() string { return "None" }

func (t *NeverType) String() string {
	if t.NoReturn {
		return "NoReturn"
	}
	return "Never"
}

// ModuleType is the type of an imported module object.
type ModuleType struct {
	Name string
	Path string
}

func (*ModuleType) typ() {}

func (t *ModuleType) Apply(Subs) Type { return t }

func (*ModuleType) FreeTypeVars() TypeVarSet { return nil }

func (t *ModuleType) Eq(other Type) bool {
	o, ok := other.(*ModuleType)
	return ok && o.Name == t.Name && o.Path == t.Path
}

func (t *ModuleType) String() string {
	return fmt.Sprintf("Module(%q)", t.Name)
}

// TypeFormType is the value of a type expression that has no class object
// of its own, such as Literal[1] or Callable[[int], str]. Inner is the type
// the expression denotes.
type TypeFormType struct {
	Inner Type
}

func (*TypeFormType) typ() {}

func (t *TypeFormType) Apply(subs Subs) Type {
	if len(subs) == 0 {
		return t
	}
	return &TypeFormType{Inner: t.Inner.Apply(subs)}
}

func (t *TypeFormType) FreeTypeVars() TypeVarSet { return t.Inner.FreeTypeVars() }

func (t *TypeFormType) Eq(other Type) bool {
	o, ok := other.(*TypeFormType)
	return ok && o.Inner.Eq(t.Inner)
}

func (t *TypeFormType) String() string {
	return "type[" + t.Inner.String() + "]"
}

// IsAnyOrUnknown reports whether t is Any or Unknown.
func IsAnyOrUnknown(t Type) bool {
	switch t.(type) {
	case *AnyType, *UnknownType:
		return true
	}
	return false
}

// IsUnknown reports whether t is Unknown.
func IsUnknown(t Type) bool {
	_, ok := t.(*UnknownType)
	return ok
}

// IsNever reports whether t is Never or NoReturn.
func IsNever(t Type) bool {
	_, ok := t.(*NeverType)
	return ok
}

// IsNone reports whether t is the None type.
func IsNone(t Type) bool {
	_, ok := t.(*NoneType)
	return ok
}

// IsUnbound reports whether t is Unbound.
func IsUnbound(t Type) bool {
	_, ok := t.(*UnboundType)
	return ok
}

// IsPartlyUnknown reports whether Unknown appears anywhere inside t.
func IsPartlyUnknown(t Type) bool {
	found := false
	Walk(t, func(t Type) bool {
		if _, ok := t.(*UnknownType); ok {
			found = true
		}
		return !found
	})
	return found
}

// Walk visits t and its component types depth-first until fn returns false.
// Recursive aliases are not expanded.
func Walk(t Type, fn func(Type) bool) bool {
	if !fn(t) {
		return false
	}
	switch t := t.(type) {
	case *UnionType:
		for _, m := range t.Members {
			if !Walk(m, fn) {
				return false
			}
		}
	case *InstanceType:
		for _, a := range t.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *ClassType:
		for _, a := range t.Args {
			if !Walk(a, fn) {
				return false
			}
		}
		if t.Tuple != nil && !Walk(t.Tuple, fn) {
			return false
		}
	case *TypedDictType:
		for _, a := range t.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *TupleType:
		for _, e := range t.Elems {
			if !Walk(e.Type, fn) {
				return false
			}
		}
	case *FunctionType:
		for _, p := range t.Params {
			if p.Type != nil && !Walk(p.Type, fn) {
				return false
			}
		}
		if t.Return != nil && !Walk(t.Return, fn) {
			return false
		}
	case *OverloadedType:
		for _, o := range t.Overloads {
			if !Walk(o, fn) {
				return false
			}
		}
	case *TypeFormType:
		return Walk(t.Inner, fn)
	}
	return true
}
