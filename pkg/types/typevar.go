package types

import "strings"

// TypeVarKind distinguishes the three flavors of type parameter.
type TypeVarKind int

const (
	TypeVarPlain TypeVarKind = iota
	TypeVarParamSpec
	TypeVarTuple
)

// Variance of a type parameter.
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
	// AutoVariance is inferred from usage (PEP 695 type parameters).
	AutoVariance
)

func (v Variance) String() string {
	switch v {
	case Covariant:
		return "covariant"
	case Contravariant:
		return "contravariant"
	case AutoVariance:
		return "auto"
	default:
		return "invariant"
	}
}

// ParamSpecAccess selects P.args or P.kwargs.
type ParamSpecAccess int

const (
	AccessNone ParamSpecAccess = iota
	AccessArgs
	AccessKwargs
)

// TypeVarType is a type parameter, scoped to the class, function or alias
// that binds it. An unscoped TypeVar (Scope == "") has been declared but not
// yet used in a generic signature.
type TypeVarType struct {
	Name string
	// Scope uniquely identifies the binding declaration.
	Scope string
	// ScopeName is the short name of the binding declaration, used only
	// for display.
	ScopeName string

	Kind        TypeVarKind
	Bound       Type
	Constraints []Type
	Default     Type
	Variance    Variance

	// IsSelf marks the synthesized Self parameter of a class.
	IsSelf bool
	// Instantiable marks type[T] rather than T.
	Instantiable bool
	// Access is set for P.args and P.kwargs.
	Access ParamSpecAccess
	// Unpacked marks *Ts inside a tuple or parameter list.
	Unpacked bool
}

func (*TypeVarType) typ() {}

// Key identifies the variable for substitution purposes.
func (t *TypeVarType) Key() TypeVarKey {
	return TypeVarKey{Scope: t.Scope, Name: t.Name}
}

// IsScoped reports whether the variable is bound to a declaration.
func (t *TypeVarType) IsScoped() bool {
	return t.Scope != ""
}

// WithScope returns a copy bound to the given scope.
func (t *TypeVarType) WithScope(scope, scopeName string) *TypeVarType {
	c := *t
	c.Scope = scope
	c.ScopeName = scopeName
	return &c
}

// AsInstantiable returns type[T].
func (t *TypeVarType) AsInstantiable() *TypeVarType {
	c := *t
	c.Instantiable = true
	return &c
}

// AsInstance strips the instantiable flag.
func (t *TypeVarType) AsInstance() *TypeVarType {
	if !t.Instantiable {
		return t
	}
	c := *t
	c.Instantiable = false
	return &c
}

// WithAccess returns P.args or P.kwargs for a ParamSpec.
func (t *TypeVarType) WithAccess(access ParamSpecAccess) *TypeVarType {
	c := *t
	c.Access = access
	return &c
}

// AsUnpacked returns *Ts.
func (t *TypeVarType) AsUnpacked() *TypeVarType {
	c := *t
	c.Unpacked = true
	return &c
}

// Base strips instantiable, access and unpack modifiers.
func (t *TypeVarType) Base() *TypeVarType {
	if !t.Instantiable && t.Access == AccessNone && !t.Unpacked {
		return t
	}
	c := *t
	c.Instantiable = false
	c.Access = AccessNone
	c.Unpacked = false
	return &c
}

func (t *TypeVarType) Apply(subs Subs) Type {
	r, ok := subs[t.Key()]
	if !ok {
		return t
	}
	switch {
	case t.Access != AccessNone:
		// P.args and P.kwargs only make sense with the whole signature in
		// hand; callers that need them go through FunctionType.ParamSpec.
		return Unknown
	case t.Instantiable:
		if c := ToClassObject(r); c != nil {
			return c
		}
		return Unknown
	}
	return r
}

func (t *TypeVarType) FreeTypeVars() TypeVarSet {
	return NewTypeVarSet(t.Base())
}

func (t *TypeVarType) Eq(other Type) bool {
	o, ok := other.(*TypeVarType)
	if !ok {
		return false
	}
	return o.Key() == t.Key() &&
		o.Instantiable == t.Instantiable &&
		o.Access == t.Access &&
		o.Unpacked == t.Unpacked
}

func (t *TypeVarType) String() string {
	var b strings.Builder
	if t.Instantiable {
		b.WriteString("type[")
	}
	if t.Unpacked {
		b.WriteString("*")
	}
	b.WriteString(t.Name)
	if t.ScopeName != "" {
		b.WriteString("@")
		b.WriteString(t.ScopeName)
	}
	switch t.Access {
	case AccessArgs:
		b.WriteString(".args")
	case AccessKwargs:
		b.WriteString(".kwargs")
	}
	if t.Instantiable {
		b.WriteString("]")
	}
	return b.String()
}
