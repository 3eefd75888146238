package types

import "strings"

// ParamKind is how an argument may bind to a parameter.
type ParamKind int

const (
	ParamPositionalOnly ParamKind = iota
	ParamPositionalOrKeyword
	ParamKeywordOnly
	ParamVarPositional
	ParamVarKeyword
)

// Param is one parameter of a signature.
type Param struct {
	Name            string
	Kind            ParamKind
	Type            Type
	HasDefault      bool
	HasDeclaredType bool
}

// Positional reports whether the parameter accepts a positional argument.
func (p Param) Positional() bool {
	return p.Kind == ParamPositionalOnly || p.Kind == ParamPositionalOrKeyword
}

// FuncFlags describe special behavior of a function.
type FuncFlags uint32

const (
	FuncAsync FuncFlags = 1 << iota
	FuncStaticMethod
	FuncClassMethod
	FuncOverload
	FuncAbstract
	FuncFinal
	FuncLambda
	FuncSynthesized
	// FuncGradual marks Callable[..., R]: any arguments are accepted.
	FuncGradual
	// FuncParamSpecValue marks a signature captured as the solution of a
	// ParamSpec.
	FuncParamSpecValue
	FuncProperty
	FuncGenerator
	// FuncConstructor marks the signature synthesized from a class's
	// __init__ or __new__.
	FuncConstructor
)

// TypeGuardKind distinguishes TypeGuard[T] and TypeIs[T].
type TypeGuardKind int

const (
	GuardTypeGuard TypeGuardKind = iota
	GuardTypeIs
)

// TypeGuard is attached to functions returning TypeGuard[T] or TypeIs[T].
type TypeGuard struct {
	Kind TypeGuardKind
	Type Type
}

// FunctionType is a callable signature.
type FunctionType struct {
	Name     string
	FullName string
	Decl     DeclRef

	Params []Param
	Return Type

	// TypeParams are the variables solvable at a call to this function.
	TypeParams []*TypeVarType
	// ParamSpec is set when the signature ends in *args: P.args,
	// **kwargs: P.kwargs.
	ParamSpec *TypeVarType

	Flags FuncFlags
	Guard *TypeGuard

	// BoundTo is the receiver when the function was accessed through an
	// instance or class.
	BoundTo Type

	// Setter is the setter of a property getter.
	Setter *FunctionType
}

func (*FunctionType) typ() {}

func (f *FunctionType) Is(flags FuncFlags) bool {
	return f.Flags&flags != 0
}

// Clone returns a shallow copy with its own parameter slice.
func (f *FunctionType) Clone() *FunctionType {
	c := *f
	c.Params = append([]Param(nil), f.Params...)
	return &c
}

// ParamIndex returns the index of the named parameter or -1.
func (f *FunctionType) ParamIndex(name string) int {
	for i, p := range f.Params {
		if p.Name == name && p.Kind != ParamVarPositional && p.Kind != ParamVarKeyword {
			return i
		}
	}
	return -1
}

func (f *FunctionType) Apply(subs Subs) Type {
	if len(subs) == 0 {
		return f
	}
	c := f.Clone()
	for i, p := range c.Params {
		if p.Type != nil {
			c.Params[i].Type = p.Type.Apply(subs)
		}
	}
	if c.Return != nil {
		c.Return = c.Return.Apply(subs)
	}
	if c.Guard != nil {
		c.Guard = &TypeGuard{Kind: c.Guard.Kind, Type: c.Guard.Type.Apply(subs)}
	}
	if f.ParamSpec != nil {
		if r, ok := subs[f.ParamSpec.Key()]; ok {
			c.ParamSpec = nil
			c.spliceParamSpec(r)
		}
	}
	if len(f.TypeParams) > 0 {
		var remaining []*TypeVarType
		for _, tp := range f.TypeParams {
			if _, ok := subs[tp.Key()]; !ok {
				remaining = append(remaining, tp)
			}
		}
		c.TypeParams = remaining
	}
	return c
}

// spliceParamSpec replaces the trailing *args/**kwargs of a ParamSpec
// signature with the parameters of its solution.
func (f *FunctionType) spliceParamSpec(solution Type) {
	params := f.Params[:0:0]
	for _, p := range f.Params {
		if tv, ok := p.Type.(*TypeVarType); ok && tv.Access != AccessNone {
			continue
		}
		params = append(params, p)
	}
	switch sol := solution.(type) {
	case *FunctionType:
		params = append(params, sol.Params...)
		if sol.ParamSpec != nil {
			f.ParamSpec = sol.ParamSpec
		}
		if sol.Is(FuncGradual) {
			f.Flags |= FuncGradual
		}
	default:
		params = append(params,
			Param{Name: "args", Kind: ParamVarPositional, Type: Unknown},
			Param{Name: "kwargs", Kind: ParamVarKeyword, Type: Unknown},
		)
		f.Flags |= FuncGradual
	}
	f.Params = params
}

func (f *FunctionType) FreeTypeVars() TypeVarSet {
	var set TypeVarSet
	for _, p := range f.Params {
		if p.Type != nil {
			set = set.Union(p.Type.FreeTypeVars())
		}
	}
	if f.Return != nil {
		set = set.Union(f.Return.FreeTypeVars())
	}
	if f.ParamSpec != nil {
		set = set.Union(NewTypeVarSet(f.ParamSpec.Base()))
	}
	return set
}

func (f *FunctionType) Eq(other Type) bool {
	o, ok := other.(*FunctionType)
	if !ok {
		return false
	}
	if f == o {
		return true
	}
	if len(f.Params) != len(o.Params) || f.Is(FuncGradual) != o.Is(FuncGradual) {
		return false
	}
	for i := range f.Params {
		a, b := f.Params[i], o.Params[i]
		if a.Kind != b.Kind || a.HasDefault != b.HasDefault {
			return false
		}
		if a.Kind != ParamPositionalOnly && a.Name != b.Name {
			return false
		}
		if !typeEq(a.Type, b.Type) {
			return false
		}
	}
	if (f.ParamSpec == nil) != (o.ParamSpec == nil) {
		return false
	}
	if f.ParamSpec != nil && !f.ParamSpec.Eq(o.ParamSpec) {
		return false
	}
	return typeEq(f.Return, o.Return)
}

func typeEq(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Eq(b)
}

func (f *FunctionType) String() string {
	if f.Is(FuncParamSpecValue) {
		return "(" + f.paramsString() + ")"
	}
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(f.paramsString())
	b.WriteString(") -> ")
	if f.Return == nil {
		b.WriteString("Unknown")
	} else if f.Guard != nil {
		if f.Guard.Kind == GuardTypeIs {
			b.WriteString("TypeIs[" + f.Guard.Type.String() + "]")
		} else {
			b.WriteString("TypeGuard[" + f.Guard.Type.String() + "]")
		}
	} else {
		ret := f.Return.String()
		if _, ok := f.Return.(*FunctionType); ok {
			ret = "(" + ret + ")"
		}
		b.WriteString(ret)
	}
	return b.String()
}

func (f *FunctionType) paramsString() string {
	if f.Is(FuncGradual) && f.ParamSpec == nil && len(f.Params) <= 2 && onlyVariadic(f.Params) {
		return "..."
	}
	var parts []string
	sawPositionalOnly := false
	sawKeywordMarker := false
	for _, p := range f.Params {
		if tv, ok := p.Type.(*TypeVarType); ok && tv.Access != AccessNone {
			continue
		}
		if p.Kind == ParamPositionalOnly && p.Name != "" {
			sawPositionalOnly = true
		} else if sawPositionalOnly {
			parts = append(parts, "/")
			sawPositionalOnly = false
		}
		switch p.Kind {
		case ParamVarPositional:
			sawKeywordMarker = true
			parts = append(parts, "*"+paramString(p))
			continue
		case ParamVarKeyword:
			parts = append(parts, "**"+paramString(p))
			continue
		case ParamKeywordOnly:
			if !sawKeywordMarker {
				parts = append(parts, "*")
				sawKeywordMarker = true
			}
		}
		s := paramString(p)
		if p.HasDefault {
			if p.Type != nil && (p.HasDeclaredType || !IsAnyOrUnknown(p.Type)) {
				s += " = ..."
			} else {
				s += "=..."
			}
		}
		parts = append(parts, s)
	}
	if sawPositionalOnly {
		parts = append(parts, "/")
	}
	if f.ParamSpec != nil {
		parts = append(parts, "**"+f.ParamSpec.Base().String())
	}
	return strings.Join(parts, ", ")
}

func onlyVariadic(params []Param) bool {
	for _, p := range params {
		if p.Kind != ParamVarPositional && p.Kind != ParamVarKeyword {
			return false
		}
	}
	return true
}

func paramString(p Param) string {
	if p.Name == "" {
		if p.Type == nil {
			return "Unknown"
		}
		return p.Type.String()
	}
	if p.Type == nil || (!p.HasDeclaredType && IsAnyOrUnknown(p.Type)) {
		return p.Name
	}
	return p.Name + ": " + p.Type.String()
}

// OverloadedType is a function declared with @overload signatures.
type OverloadedType struct {
	Overloads      []*FunctionType
	Implementation *FunctionType
}

func (*OverloadedType) typ() {}

func (o *OverloadedType) Apply(subs Subs) Type {
	if len(subs) == 0 {
		return o
	}
	c := &OverloadedType{Overloads: make([]*FunctionType, len(o.Overloads))}
	for i, f := range o.Overloads {
		c.Overloads[i] = f.Apply(subs).(*FunctionType)
	}
	if o.Implementation != nil {
		c.Implementation = o.Implementation.Apply(subs).(*FunctionType)
	}
	return c
}

func (o *OverloadedType) FreeTypeVars() TypeVarSet {
	var set TypeVarSet
	for _, f := range o.Overloads {
		set = set.Union(f.FreeTypeVars())
	}
	return set
}

func (o *OverloadedType) Eq(other Type) bool {
	oo, ok := other.(*OverloadedType)
	if !ok || len(oo.Overloads) != len(o.Overloads) {
		return false
	}
	for i := range o.Overloads {
		if !o.Overloads[i].Eq(oo.Overloads[i]) {
			return false
		}
	}
	return true
}

func (o *OverloadedType) String() string {
	parts := make([]string, len(o.Overloads))
	for i, f := range o.Overloads {
		parts[i] = f.String()
	}
	return "Overload[" + strings.Join(parts, ", ") + "]"
}
