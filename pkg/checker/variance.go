package checker

import (
	"strings"

	"github.com/vito/typhon/pkg/types"
)

// varianceOf is the variance of a class's i-th type parameter. Parameters
// declared without one (PEP 695 syntax, or infer_variance=True) use the
// variance inferred from the class body.
func (e *Evaluator) varianceOf(info *types.ClassInfo, i int) types.Variance {
	tp := info.TypeParams[i]
	if tp.Variance != types.AutoVariance {
		return tp.Variance
	}
	inferred := e.inferredVariance(info)
	if i >= len(inferred) {
		return types.Invariant
	}
	return inferred[i]
}

// inferredVariance computes the variance each type parameter of info
// would need for the class body to be sound: C[Dummy] is compared with
// C[object] member by member, where Dummy is a fresh subclass of object.
func (e *Evaluator) inferredVariance(info *types.ClassInfo) []types.Variance {
	f, _ := e.classNode(info)
	if f == nil {
		out := make([]types.Variance, len(info.TypeParams))
		for i := range out {
			out[i] = types.Invariant
		}
		return out
	}
	p := e.part(f)
	if v, ok := p.variance[info]; ok {
		return v
	}
	// Uses of the class inside its own body see covariance until the
	// inference completes.
	placeholder := make([]types.Variance, len(info.TypeParams))
	for i := range placeholder {
		placeholder[i] = types.Covariant
	}
	p.variance[info] = placeholder

	out := make([]types.Variance, len(info.TypeParams))
	for i, tp := range info.TypeParams {
		if tp.Kind != types.TypeVarPlain {
			out[i] = types.Invariant
			continue
		}
		upper := e.withArg(info, i, e.objectType())
		lower := e.withArg(info, i, e.varianceDummy())
		co := e.structurallyAssignable(info, upper, lower)
		contra := e.structurallyAssignable(info, lower, upper)
		switch {
		case co:
			out[i] = types.Covariant
		case contra:
			out[i] = types.Contravariant
		default:
			out[i] = types.Invariant
		}
	}
	p.variance[info] = out
	return out
}

func (e *Evaluator) withArg(info *types.ClassInfo, i int, arg types.Type) *types.InstanceType {
	inst := info.SelfInstance()
	inst.Args[i] = arg
	return inst
}

// varianceDummy is an instance of a class that derives only from object.
func (e *Evaluator) varianceDummy() types.Type {
	if e.dummy == nil {
		obj := e.builtinInfo("object")
		info := &types.ClassInfo{Name: "__VarianceDummy", FullName: "__VarianceDummy"}
		info.MRO = []types.Type{&types.InstanceType{Info: info}}
		if obj != nil {
			info.Bases = []types.Type{&types.InstanceType{Info: obj}}
			info.MRO = append(info.MRO, &types.InstanceType{Info: obj})
		}
		e.dummy = info
	}
	return &types.InstanceType{Info: e.dummy}
}

// structurallyAssignable compares two specializations of info through its
// generic bases and the members declared in its own body.
func (e *Evaluator) structurallyAssignable(info *types.ClassInfo, dest, src *types.InstanceType) bool {
	for _, b := range info.Bases {
		if len(b.FreeTypeVars()) == 0 {
			continue
		}
		if !e.isAssignable(dest.Subs().Apply(b), src.Subs().Apply(b)) {
			return false
		}
	}
	_, scope := e.classScope(info)
	if scope == nil {
		return true
	}
	frozen := info.Is(types.ClassDataclass) && e.frozenDataclass(info)
	for _, sym := range scope.SortedSymbols() {
		name := sym.Name
		if varianceExempt(name) || len(sym.Decls) == 0 {
			continue
		}
		want, ok := e.accessMember(nil, nil, receiver{inst: dest, self: dest}, name)
		if !ok {
			continue
		}
		got, ok := e.accessMember(nil, nil, receiver{inst: src, self: src}, name)
		if !ok {
			continue
		}
		if !e.isAssignable(want, got) {
			return false
		}
		if !frozen && protocolAttrMutable(sym) && !isMethodLike(got) {
			if !e.isAssignable(got, want) {
				return false
			}
		}
	}
	return true
}

// varianceExempt names members that do not constrain variance:
// constructors and private attributes.
func varianceExempt(name string) bool {
	switch name {
	case "__init__", "__new__", "__init_subclass__", "__slots__", "__match_args__":
		return true
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return false
	}
	return strings.HasPrefix(name, "_")
}

func isMethodLike(t types.Type) bool {
	switch t.(type) {
	case *types.FunctionType, *types.OverloadedType:
		return true
	}
	return false
}
