package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// annFlags adjust what a type expression may contain.
type annFlags int

const (
	// annAllowParamSpec permits a bare ParamSpec, P.args and P.kwargs.
	annAllowParamSpec annFlags = 1 << iota
	// annAllowUnpack permits *Ts and *tuple[...].
	annAllowUnpack

	annNone annFlags = 0
)

// annotationType evaluates an annotation to the type it denotes. Type
// variables are bound to the scopes enclosing the annotation.
func (e *Evaluator) annotationType(f *SourceFile, n pyast.Expr, flags annFlags) types.Type {
	if n == nil {
		return types.Unknown
	}
	p := e.part(f)
	if t, ok := p.annotations[n.ID()]; ok {
		return t
	}
	var t types.Type
	var complete bool
	e.outsideSpeculation(func() {
		t, complete = e.guard(nodeFrame{f.Path, n.ID(), "annotation"}, func() types.Type {
			e.tvScopes = e.typeVarScopesFor(f, n)
			e.scoping = true
			return e.typeExpr(f, n, flags)
		})
	})
	if complete {
		p.annotations[n.ID()] = t
	}
	return t
}

// outsideSpeculation runs fn with speculative buffering suspended. It is
// used for results that do not depend on the hypothesis being tested, so
// they are cached and reported once.
func (e *Evaluator) outsideSpeculation(fn func()) {
	saved := e.cache.spec
	e.cache.spec = nil
	defer func() { e.cache.spec = saved }()
	fn()
}

// typeExpr evaluates a type expression in the current type variable
// context.
func (e *Evaluator) typeExpr(f *SourceFile, n pyast.Expr, flags annFlags) types.Type {
	switch n := n.(type) {
	case *pyast.Constant:
		switch n.Kind {
		case pyast.ConstNone:
			return types.None
		case pyast.ConstStr:
			ref := e.forwardRef(f, n)
			if ref == nil {
				e.report(f, n, InvalidTypeForm, "Invalid forward reference %s", quoteText(f, n))
				return types.Unknown
			}
			return e.typeExpr(f, ref, flags)
		}

	case *pyast.BinOp:
		if n.Op == "|" {
			left := e.typeExpr(f, n.Left, annNone)
			right := e.typeExpr(f, n.Right, annNone)
			return types.Union(left, right)
		}

	case *pyast.Starred:
		if flags&annAllowUnpack == 0 {
			e.report(f, n, InvalidTypeForm, "Unpack operator not allowed in this context")
			return types.Unknown
		}
		return e.unpacked(f, n, e.typeExpr(f, n.Value, annAllowUnpack))

	case *pyast.Name, *pyast.Attribute, *pyast.Subscript:
		return e.valueToType(f, n, e.typeExprValue(f, n, flags), flags)

	case *pyast.ErrorExpr:
		return types.Unknown
	}
	e.report(f, n, InvalidTypeForm, "Invalid expression form for type annotation")
	return types.Unknown
}

// unpacked applies the unpack operator to a type argument.
func (e *Evaluator) unpacked(f *SourceFile, n pyast.Node, t types.Type) types.Type {
	switch t := t.(type) {
	case *types.TypeVarType:
		if t.Kind == types.TypeVarTuple {
			return t.AsUnpacked()
		}
	case *types.TupleType, *types.TypedDictType:
		return t
	case *types.UnknownType, *types.AnyType:
		return t
	}
	e.report(f, n, InvalidTypeForm, "Expected TypeVarTuple or tuple to unpack")
	return types.Unknown
}

// typeExprValue evaluates the value a name, attribute or subscript refers
// to inside a type expression.
func (e *Evaluator) typeExprValue(f *SourceFile, n pyast.Expr, flags annFlags) types.Type {
	switch n := n.(type) {
	case *pyast.Name:
		return e.typeExprName(f, n)
	case *pyast.Attribute:
		base := e.typeExprValue(f, n.Value, annNone)
		if tv, ok := base.(*types.TypeVarType); ok && tv.Kind == types.TypeVarParamSpec {
			switch n.Attr {
			case "args":
				return &types.TypeFormType{Inner: tv.AsInstance().WithAccess(types.AccessArgs)}
			case "kwargs":
				return &types.TypeFormType{Inner: tv.AsInstance().WithAccess(types.AccessKwargs)}
			}
		}
		return e.attributeOf(f, n, base, n.Attr, true)
	case *pyast.Subscript:
		if star, ok := n.Value.(*pyast.Starred); ok {
			// *X[...] can parse as (*X)[...] inside an annotation.
			return e.typeFormValue(e.starredSubscript(f, n, star, flags))
		}
		base := e.typeExprValue(f, n.Value, annNone)
		return e.specialize(f, n, base, flags)
	case *pyast.Constant:
		if n.Kind == pyast.ConstStr {
			if ref := e.forwardRef(f, n); ref != nil {
				return e.typeExprValue(f, ref, flags)
			}
		}
	}
	return e.typeFormValue(e.typeExpr(f, n, flags))
}

// starredSubscript evaluates (*X)[args] as *(X[args]).
func (e *Evaluator) starredSubscript(f *SourceFile, n *pyast.Subscript, star *pyast.Starred, flags annFlags) types.Type {
	if flags&annAllowUnpack == 0 {
		e.report(f, star, InvalidTypeForm, "Unpack operator not allowed in this context")
		return types.Unknown
	}
	base := e.typeExprValue(f, star.Value, annNone)
	inner := e.valueToType(f, n, e.specialize(f, n, base, annNone), annAllowUnpack)
	return e.unpacked(f, n, inner)
}

// typeFormValue wraps a type as the value of a type expression.
func (e *Evaluator) typeFormValue(t types.Type) types.Type {
	if types.IsAnyOrUnknown(t) {
		return t
	}
	return &types.TypeFormType{Inner: t}
}

// typeExprName looks a name up for use in a type expression. Names that
// are not yet bound at the reference, as in stubs and class bodies, fall
// back to the symbol's declared type.
func (e *Evaluator) typeExprName(f *SourceFile, n *pyast.Name) types.Type {
	sym := e.scopeOf(f, n).Resolve(n.Id)
	if sym == nil {
		e.report(f, n, UnresolvedSymbol, "\"%s\" is not defined", n.Id)
		return types.Unknown
	}
	if _, parsed := e.part(f).origins[n.ID()]; !parsed {
		if flow := e.bound(f).FlowOf(n); flow != nil {
			t := types.RemoveUnbound(e.symbolReference(f, n, sym, flow))
			if !types.IsNever(t) {
				return t
			}
		}
	}
	return e.symbolType(sym)
}

// valueToType converts the value of a type expression to the type it
// denotes.
func (e *Evaluator) valueToType(f *SourceFile, n pyast.Node, v types.Type, flags annFlags) types.Type {
	switch v := v.(type) {
	case *types.ClassType:
		if v.Info.Is(types.ClassSpecialForm) {
			if v.Args == nil {
				return e.bareSpecialForm(f, n, v.Info.SpecialForm)
			}
			e.report(f, n, InvalidTypeForm, "\"%s\" is not allowed in this context", v.Info.SpecialForm)
			return types.Unknown
		}
		if v.Tuple != nil {
			return e.dropUnscoped(v.Tuple)
		}
		if isBuiltin(v.Info, "tuple") {
			return e.homTuple(types.Unknown)
		}
		if v.Args == nil && len(v.Info.TypeParams) > 0 {
			return e.instanceOf(v.Info)
		}
		return e.dropUnscoped(types.ToInstance(v))

	case *types.TypeFormType:
		switch inner := v.Inner.(type) {
		case *types.AliasType:
			return e.expandAlias(inner)
		case *types.TypeVarType:
			return e.checkTypeVarUse(f, n, e.scopeTypeVar(f, n, inner), flags)
		}
		return e.dropUnscoped(v.Inner)

	case *types.TypeVarType:
		if !v.Instantiable {
			break
		}
		return e.checkTypeVarUse(f, n, e.scopeTypeVar(f, n, v.AsInstance()), flags)

	case *types.UnionType:
		members := make([]types.Type, len(v.Members))
		for i, m := range v.Members {
			members[i] = e.valueToType(f, n, m, flags)
		}
		return types.Union(members...)

	case *types.UnknownType, *types.AnyType:
		return v

	case *types.NoneType:
		return types.None

	case *types.ModuleType:
		e.report(f, n, InvalidTypeForm, "Module cannot be used as a type")
		return types.Unknown
	}
	e.report(f, n, InvalidTypeForm, "Variable not allowed in type expression")
	return types.Unknown
}

// checkTypeVarUse rejects ParamSpecs and TypeVarTuples used as plain types.
func (e *Evaluator) checkTypeVarUse(f *SourceFile, n pyast.Node, t types.Type, flags annFlags) types.Type {
	tv, ok := t.(*types.TypeVarType)
	if !ok {
		return t
	}
	switch {
	case tv.Kind == types.TypeVarParamSpec && flags&annAllowParamSpec == 0:
		if tv.Access != types.AccessNone {
			e.report(f, n, InvalidTypeForm, "\"%s\" is only allowed as the type of *args or **kwargs", tv.String())
		} else {
			e.report(f, n, InvalidTypeForm, "ParamSpec \"%s\" is not allowed in this context", tv.Name)
		}
		return types.Unknown
	case tv.Kind == types.TypeVarTuple && !tv.Unpacked && flags&annAllowUnpack == 0:
		e.report(f, n, InvalidTypeForm, "TypeVarTuple \"%s\" must be unpacked", tv.Name)
		return types.Unknown
	}
	return tv
}

// dropUnscoped replaces the type variables left over from an implicit
// generic alias used without type arguments.
func (e *Evaluator) dropUnscoped(t types.Type) types.Type {
	if !e.scoping {
		return t
	}
	tvs := typeVarsInOrder(t, unscoped)
	if len(tvs) == 0 {
		return t
	}
	subs := types.NewSubs()
	for _, tv := range tvs {
		subs.Add(tv, unsolvedValue(tv))
	}
	return subs.Apply(t)
}

// unsolvedValue is what a type variable becomes when nothing determines it.
func unsolvedValue(tv *types.TypeVarType) types.Type {
	switch tv.Kind {
	case types.TypeVarTuple:
		return types.HomogeneousTuple(nil, types.Unknown)
	case types.TypeVarParamSpec:
		return gradualSignature(types.Unknown)
	}
	return types.Unknown
}

// gradualSignature is Callable[..., ret].
func gradualSignature(ret types.Type) *types.FunctionType {
	return &types.FunctionType{
		Params: []types.Param{
			{Name: "args", Kind: types.ParamVarPositional, Type: types.Unknown},
			{Name: "kwargs", Kind: types.ParamVarKeyword, Type: types.Unknown},
		},
		Return: ret,
		Flags:  types.FuncGradual,
	}
}

// bareSpecialForm is the type denoted by an unsubscripted special form.
func (e *Evaluator) bareSpecialForm(f *SourceFile, n pyast.Node, name string) types.Type {
	switch name {
	case "Any":
		return types.Any
	case "Never":
		return types.Never
	case "NoReturn":
		return types.NoReturn
	case "LiteralString":
		return e.strType()
	case "Self":
		if self := e.selfTypeVar(); self != nil {
			return self
		}
		e.report(f, n, InvalidTypeForm, "\"Self\" is not valid in this context")
		return types.Unknown
	case "Callable":
		return gradualSignature(types.Unknown)
	case "Optional", "Union", "Literal", "Annotated", "TypeGuard", "TypeIs",
		"Required", "NotRequired", "ReadOnly", "Unpack", "Concatenate", "ClassVar", "Final":
		e.report(f, n, InvalidTypeForm, "\"%s\" requires type arguments", name)
		return types.Unknown
	}
	e.report(f, n, InvalidTypeForm, "\"%s\" is not allowed in this context", name)
	return types.Unknown
}

// forwardRef parses a string annotation. Parsed nodes remember the string
// they came from so scopes and locations resolve through it.
func (e *Evaluator) forwardRef(f *SourceFile, c *pyast.Constant) pyast.Expr {
	p := e.part(f)
	if x, ok := p.forwardRefs[c.ID()]; ok {
		return x
	}
	text, _ := c.Value.(string)
	x, next, err := pyast.ParseExpression(f.Path, text, f.nextID, c.Loc())
	if err != nil {
		p.forwardRefs[c.ID()] = nil
		return nil
	}
	f.nextID = next
	pyast.Walk(x, func(n pyast.Node) bool {
		p.origins[n.ID()] = c
		return true
	})
	p.forwardRefs[c.ID()] = x
	return x
}

// astParent returns the syntactic parent of n, following nodes parsed from
// string annotations back to their string.
func (e *Evaluator) astParent(f *SourceFile, n pyast.Node) pyast.Node {
	if o, ok := e.part(f).origins[n.ID()]; ok {
		return o
	}
	return f.AST.Parent(n)
}

// scopeOf returns the scope in which n is evaluated.
func (e *Evaluator) scopeOf(f *SourceFile, n pyast.Node) *binder.Scope {
	if o, ok := e.part(f).origins[n.ID()]; ok {
		return e.scopeOf(f, o)
	}
	return e.bound(f).ScopeOf(n)
}

func quoteText(f *SourceFile, n pyast.Node) string {
	if c, ok := n.(*pyast.Constant); ok {
		if s, ok := c.Value.(string); ok {
			return "\"" + s + "\""
		}
	}
	return "\"" + f.AST.Text(n) + "\""
}
