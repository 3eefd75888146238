package checker

import (
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// specialize evaluates base[args] where base is the value of a type
// expression. The result is again a value: a specialized class object or a
// type form.
func (e *Evaluator) specialize(f *SourceFile, sub *pyast.Subscript, base types.Type, flags annFlags) types.Type {
	args := indexArgs(sub.Index)
	switch b := base.(type) {
	case *types.ClassType:
		if b.Info.Is(types.ClassSpecialForm) && b.Args == nil {
			return e.specialFormArgs(f, sub, b.Info.SpecialForm, args, flags)
		}
		if b.IsSpecialized() {
			return e.specializeImplicit(f, sub, b, args)
		}
		switch {
		case isBuiltin(b.Info, "tuple"):
			return &types.ClassType{Info: b.Info, Tuple: e.tupleForm(f, sub, args)}
		case isBuiltin(b.Info, "type"):
			return e.typeOfForm(f, sub, args)
		}
		return e.classArgs(f, sub, b.Info, args, flags)

	case *types.TypeFormType:
		if a, ok := b.Inner.(*types.AliasType); ok && len(a.Args) == 0 && len(a.Def.TypeParams) > 0 {
			vals := e.typeArgs(f, a.Def.TypeParams, args, flags)
			out, ok := types.SpecializeArgs(a.Def.TypeParams, vals)
			if !ok {
				e.report(f, sub, ArityMismatch, "Expected %d type arguments but received %d", len(a.Def.TypeParams), len(args))
				out = fillArgs(a.Def.TypeParams, vals)
			}
			return &types.TypeFormType{Inner: &types.AliasType{Def: a.Def, Args: out}}
		}
		return e.specializeImplicit(f, sub, b, args)

	case *types.UnknownType, *types.AnyType:
		for _, a := range args {
			e.typeExpr(f, a, annAllowParamSpec|annAllowUnpack)
		}
		return base
	}
	e.report(f, sub, InvalidTypeForm, "Subscript is not allowed in type expression")
	return types.Unknown
}

// fillArgs pads or truncates type arguments after an arity error.
func fillArgs(params []*types.TypeVarType, vals []types.Type) []types.Type {
	out := types.DefaultArgs(params)
	for i := range out {
		if i < len(vals) {
			out[i] = vals[i]
		}
	}
	return out
}

// specializeImplicit fills in the free type variables of an implicit
// generic alias such as IntMap = dict[str, T].
func (e *Evaluator) specializeImplicit(f *SourceFile, sub *pyast.Subscript, v types.Type, args []pyast.Expr) types.Type {
	tvs := typeVarsInOrder(v, unscoped)
	if len(tvs) == 0 {
		e.report(f, sub, ArityMismatch, "Expected no type arguments for \"%s\"", v.String())
		return v
	}
	vals := e.typeArgs(f, tvs, args, annNone)
	out, ok := types.SpecializeArgs(tvs, vals)
	if !ok {
		e.report(f, sub, ArityMismatch, "Expected %d type arguments but received %d", len(tvs), len(args))
		out = fillArgs(tvs, vals)
	}
	return types.SubsFor(tvs, out).Apply(v)
}

// classArgs specializes a generic class and checks each argument against
// its parameter's bound or constraints.
func (e *Evaluator) classArgs(f *SourceFile, sub *pyast.Subscript, info *types.ClassInfo, args []pyast.Expr, flags annFlags) types.Type {
	params := info.TypeParams
	if len(params) == 0 {
		e.report(f, sub, ArityMismatch, "Expected no type arguments for class \"%s\"", info.Name)
		for _, a := range args {
			e.typeExpr(f, a, annAllowUnpack)
		}
		return &types.ClassType{Info: info}
	}
	vals := e.typeArgs(f, params, args, flags)
	out, ok := types.SpecializeArgs(params, vals)
	if !ok {
		e.report(f, sub, ArityMismatch, "Expected %d type arguments for class \"%s\" but received %d", requiredArgs(params), info.Name, len(args))
		out = fillArgs(params, vals)
	}
	subs := types.SubsFor(params, out)
	for i, p := range params {
		arg := out[i]
		if types.IsAnyOrUnknown(arg) || i >= len(args) {
			continue
		}
		if _, ok := arg.(*types.TypeVarType); ok {
			continue
		}
		switch {
		case p.Bound != nil:
			bound := subs.Apply(p.Bound)
			if !e.isAssignable(bound, arg) {
				e.reportAssign(f, args[min(i, len(args)-1)], arg, bound,
					"Type \"%s\" is not assignable to upper bound \"%s\" for type variable \"%s\"", arg, bound, p)
			}
		case len(p.Constraints) > 0:
			matched := false
			for _, c := range p.Constraints {
				if e.isAssignable(c, arg) {
					matched = true
					break
				}
			}
			if !matched {
				e.reportAssign(f, args[min(i, len(args)-1)], arg, p,
					"Type \"%s\" is not assignable to type variable \"%s\"", arg, p)
			}
		}
	}
	return &types.ClassType{Info: info, Args: out}
}

func requiredArgs(params []*types.TypeVarType) int {
	n := 0
	for _, p := range params {
		if p.Default == nil {
			n++
		}
	}
	return n
}

// typeArgs evaluates type arguments, treating the ones that correspond to
// a ParamSpec as parameter lists.
func (e *Evaluator) typeArgs(f *SourceFile, params []*types.TypeVarType, args []pyast.Expr, flags annFlags) []types.Type {
	if len(params) == 1 && params[0].Kind == types.TypeVarParamSpec {
		if len(args) == 1 {
			return []types.Type{e.paramSpecArg(f, args[0])}
		}
		return []types.Type{e.paramList(f, args)}
	}
	variadic := -1
	for i, p := range params {
		if p.Kind == types.TypeVarTuple {
			variadic = i
			break
		}
	}
	out := make([]types.Type, 0, len(args))
	for i, a := range args {
		idx := i
		if variadic >= 0 && i > variadic {
			// Parameters after a TypeVarTuple line up from the end.
			idx = len(params) - (len(args) - i)
			if idx <= variadic {
				idx = variadic
			}
		}
		if idx < len(params) && params[idx].Kind == types.TypeVarParamSpec {
			out = append(out, e.paramSpecArg(f, a))
			continue
		}
		t := e.typeExpr(f, a, annAllowUnpack)
		if tup, ok := t.(*types.TupleType); ok && variadic >= 0 && isStarred(a) {
			// *tuple[int, str] supplies several variadic arguments.
			for _, el := range tup.Elems {
				if el.Unbounded {
					out = append(out, &types.TupleType{Elems: []types.TupleElem{el}})
				} else {
					out = append(out, el.Type)
				}
			}
			continue
		}
		out = append(out, t)
	}
	return out
}

func isStarred(n pyast.Expr) bool {
	_, ok := n.(*pyast.Starred)
	return ok
}

// paramSpecArg evaluates the argument for a ParamSpec: a list of types, an
// ellipsis, Concatenate or another ParamSpec.
func (e *Evaluator) paramSpecArg(f *SourceFile, a pyast.Expr) types.Type {
	switch a := a.(type) {
	case *pyast.List:
		return e.paramList(f, a.Elts)
	case *pyast.Constant:
		if a.Kind == pyast.ConstEllipsis {
			sig := gradualSignature(nil)
			sig.Flags |= types.FuncParamSpecValue
			return sig
		}
	}
	t := e.typeExpr(f, a, annAllowParamSpec)
	switch t := t.(type) {
	case *types.TypeVarType:
		if t.Kind == types.TypeVarParamSpec && t.Access == types.AccessNone {
			return &types.FunctionType{ParamSpec: t, Flags: types.FuncParamSpecValue}
		}
	case *types.FunctionType:
		if t.Is(types.FuncParamSpecValue) {
			return t
		}
	case *types.UnknownType, *types.AnyType:
		return t
	}
	e.report(f, a, InvalidTypeForm, "Expected a parameter list, \"...\", or ParamSpec")
	return types.Unknown
}

// paramList builds the ParamSpec value for an explicit list of parameter
// types.
func (e *Evaluator) paramList(f *SourceFile, elts []pyast.Expr) *types.FunctionType {
	sig := &types.FunctionType{Flags: types.FuncParamSpecValue}
	for _, el := range elts {
		t := e.typeExpr(f, el, annAllowUnpack)
		if tv, ok := t.(*types.TypeVarType); ok && tv.Unpacked {
			sig.Params = append(sig.Params, types.Param{Name: "args", Kind: types.ParamVarPositional, Type: tv, HasDeclaredType: true})
			continue
		}
		sig.Params = append(sig.Params, types.Param{Kind: types.ParamPositionalOnly, Type: t, HasDeclaredType: true})
	}
	return sig
}

// tupleForm evaluates the arguments of tuple[...].
func (e *Evaluator) tupleForm(f *SourceFile, sub *pyast.Subscript, args []pyast.Expr) *types.TupleType {
	if len(args) == 1 && isEmptyTuple(args[0]) {
		return e.tupleOf()
	}
	if len(args) == 2 && isEllipsis(args[1]) {
		return e.homTuple(e.typeExpr(f, args[0], annNone))
	}
	elems := make([]types.TupleElem, 0, len(args))
	for _, a := range args {
		if isEllipsis(a) {
			e.report(f, a, InvalidTypeForm, "\"...\" is allowed only as the second of two arguments")
			elems = append(elems, types.TupleElem{Type: types.Unknown})
			continue
		}
		t := e.typeExpr(f, a, annAllowUnpack)
		if tup, ok := t.(*types.TupleType); ok && isUnpackArg(f, a) {
			elems = append(elems, tup.Elems...)
			continue
		}
		elems = append(elems, types.TupleElem{Type: t})
	}
	if tup, ok := e.newTuple(elems).(*types.TupleType); ok {
		return tup
	}
	e.report(f, sub, InvalidTypeForm, "Only one unbounded element is allowed in a tuple")
	return e.homTuple(types.Unknown)
}

// isUnpackArg reports whether a is *X or Unpack[X].
func isUnpackArg(f *SourceFile, a pyast.Expr) bool {
	switch a := a.(type) {
	case *pyast.Starred:
		return true
	case *pyast.Subscript:
		switch v := a.Value.(type) {
		case *pyast.Name:
			return v.Id == "Unpack"
		case *pyast.Attribute:
			return v.Attr == "Unpack"
		}
	}
	return false
}

// typeOfForm evaluates type[X].
func (e *Evaluator) typeOfForm(f *SourceFile, sub *pyast.Subscript, args []pyast.Expr) types.Type {
	if len(args) != 1 {
		e.report(f, sub, ArityMismatch, "Expected 1 type argument for \"type\" but received %d", len(args))
		return types.Unknown
	}
	t := e.typeExpr(f, args[0], annNone)
	if types.IsAnyOrUnknown(t) {
		return &types.TypeFormType{Inner: e.builtinInstance("type")}
	}
	if types.IsNone(t) {
		return &types.TypeFormType{Inner: e.builtinInstance("type")}
	}
	c := types.ToClassObject(t)
	if c == nil {
		e.report(f, args[0], InvalidTypeForm, "Type argument for \"type\" must be a class")
		return types.Unknown
	}
	return &types.TypeFormType{Inner: c}
}

// specialFormArgs evaluates Union[...], Literal[...] and the other
// subscripted typing constructs.
func (e *Evaluator) specialFormArgs(f *SourceFile, sub *pyast.Subscript, name string, args []pyast.Expr, flags annFlags) types.Type {
	one := func() types.Type {
		if len(args) != 1 {
			e.report(f, sub, ArityMismatch, "Expected one type argument for \"%s\"", name)
		}
		return e.typeExpr(f, args[0], flags&annAllowUnpack)
	}
	switch name {
	case "Optional":
		return &types.TypeFormType{Inner: types.Union(one(), types.None)}

	case "Union":
		members := make([]types.Type, len(args))
		for i, a := range args {
			members[i] = e.typeExpr(f, a, annNone)
		}
		return e.typeFormValue(types.Union(members...))

	case "Literal":
		return e.typeFormValue(e.literalForm(f, args))

	case "Callable":
		return &types.TypeFormType{Inner: e.callableForm(f, sub, args)}

	case "Annotated":
		if len(args) < 2 {
			e.report(f, sub, InvalidTypeForm, "Expected a type and at least one annotation for \"Annotated\"")
		}
		return e.typeFormValue(e.typeExpr(f, args[0], flags))

	case "TypeGuard", "TypeIs":
		one()
		return &types.TypeFormType{Inner: e.boolType()}

	case "Required", "NotRequired", "ReadOnly", "ClassVar", "Final":
		return e.typeFormValue(one())

	case "Unpack":
		t := e.typeExpr(f, args[0], annAllowUnpack)
		if tv, ok := t.(*types.TypeVarType); ok && tv.Kind == types.TypeVarTuple {
			t = tv.AsUnpacked()
		}
		if flags&annAllowUnpack == 0 {
			if _, ok := t.(*types.TypedDictType); !ok {
				e.report(f, sub, InvalidTypeForm, "Unpack is not allowed in this context")
				return types.Unknown
			}
		}
		return e.typeFormValue(t)

	case "Concatenate":
		if flags&annAllowParamSpec == 0 {
			e.report(f, sub, InvalidTypeForm, "\"Concatenate\" is not allowed in this context")
			return types.Unknown
		}
		return &types.TypeFormType{Inner: e.concatenate(f, sub, args)}

	case "Generic", "Protocol":
		tvs := make([]types.Type, 0, len(args))
		for _, a := range args {
			t := e.typeExpr(f, a, annAllowUnpack|annAllowParamSpec)
			tv, ok := t.(*types.TypeVarType)
			if !ok || tv.Access != types.AccessNone {
				e.report(f, a, InvalidTypeForm, "Type argument for \"%s\" must be a type variable", name)
				continue
			}
			tvs = append(tvs, tv)
		}
		return &types.ClassType{Info: e.specialForm(name), Args: tvs}
	}
	e.report(f, sub, InvalidTypeForm, "Expected no type arguments for \"%s\"", name)
	return types.Unknown
}

// concatenate builds the ParamSpec value of Concatenate[X, Y, P].
func (e *Evaluator) concatenate(f *SourceFile, sub *pyast.Subscript, args []pyast.Expr) *types.FunctionType {
	sig := &types.FunctionType{Flags: types.FuncParamSpecValue}
	if len(args) == 0 {
		return sig
	}
	for _, a := range args[:len(args)-1] {
		sig.Params = append(sig.Params, types.Param{Kind: types.ParamPositionalOnly, Type: e.typeExpr(f, a, annNone), HasDeclaredType: true})
	}
	last := args[len(args)-1]
	if isEllipsis(last) {
		gradual := gradualSignature(nil)
		sig.Params = append(sig.Params, gradual.Params...)
		sig.Flags |= types.FuncGradual
		return sig
	}
	t := e.typeExpr(f, last, annAllowParamSpec)
	if tv, ok := t.(*types.TypeVarType); ok && tv.Kind == types.TypeVarParamSpec {
		sig.ParamSpec = tv
		return sig
	}
	e.report(f, last, InvalidTypeForm, "Final type argument for \"Concatenate\" must be a ParamSpec or \"...\"")
	return sig
}

// callableForm evaluates Callable[[params], ret].
func (e *Evaluator) callableForm(f *SourceFile, sub *pyast.Subscript, args []pyast.Expr) types.Type {
	if len(args) != 2 {
		e.report(f, sub, InvalidTypeForm, "Expected parameter type list or \"...\"")
		return gradualSignature(types.Unknown)
	}
	ret := e.typeExpr(f, args[1], annNone)
	switch ps := args[0].(type) {
	case *pyast.List:
		sig := e.paramList(f, ps.Elts)
		sig.Flags &^= types.FuncParamSpecValue
		sig.Return = ret
		return sig
	case *pyast.Constant:
		if ps.Kind == pyast.ConstEllipsis {
			return gradualSignature(ret)
		}
	}
	switch v := e.paramSpecArg(f, args[0]).(type) {
	case *types.FunctionType:
		sig := v.Clone()
		sig.Flags &^= types.FuncParamSpecValue
		sig.Return = ret
		return sig
	}
	return gradualSignature(ret)
}

// literalForm evaluates the arguments of Literal[...].
func (e *Evaluator) literalForm(f *SourceFile, args []pyast.Expr) types.Type {
	members := make([]types.Type, 0, len(args))
	for _, a := range args {
		if t := e.literalArg(f, a); t != nil {
			members = append(members, t)
			continue
		}
		e.report(f, a, InvalidTypeForm, "Type arguments for \"Literal\" must be None, a literal value (int, bool, str, or bytes), or an enum value")
		members = append(members, types.Unknown)
	}
	return types.Union(members...)
}

func (e *Evaluator) literalArg(f *SourceFile, a pyast.Expr) types.Type {
	switch a := a.(type) {
	case *pyast.Constant:
		switch a.Kind {
		case pyast.ConstNone:
			return types.None
		case pyast.ConstInt, pyast.ConstStr, pyast.ConstBool:
			return e.literal(a.Value)
		case pyast.ConstBytes:
			s, _ := a.Value.(string)
			return e.literal(types.Bytes(s))
		}
	case *pyast.UnaryOp:
		if c, ok := a.Operand.(*pyast.Constant); ok && c.Kind == pyast.ConstInt && a.Op == "-" {
			if v, ok := c.Value.(int64); ok {
				return e.literal(-v)
			}
		}
	case *pyast.Subscript:
		if specialFormOf(e.typeExprValue(f, a.Value, annNone)) == "Literal" {
			return e.literalForm(f, indexArgs(a.Index))
		}
	case *pyast.Attribute:
		if lit, ok := e.exprType(f, a, nil).(*types.LiteralType); ok {
			if _, isEnum := lit.Value.(types.EnumMember); isEnum {
				return lit
			}
		}
	}
	return nil
}
