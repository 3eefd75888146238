package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// signature is the declared signature of a def: parameters, return
// annotation and the flags implied by its decorators. Unannotated returns
// are left nil; see inferReturnType.
func (e *Evaluator) signature(f *SourceFile, fd *pyast.FunctionDef) *types.FunctionType {
	p := e.part(f)
	if sig, ok := p.signatures[fd.ID()]; ok {
		return sig
	}
	var sig *types.FunctionType
	var complete bool
	e.outsideSpeculation(func() {
		var t types.Type
		t, complete = e.guard(nodeFrame{f.Path, fd.ID(), "signature"}, func() types.Type {
			return e.buildSignature(f, fd)
		})
		sig, _ = t.(*types.FunctionType)
	})
	if sig == nil {
		sig = gradualSignature(types.Unknown)
		sig.Name = fd.Name
		sig.Decl = f.declRef(fd)
		return sig
	}
	if complete {
		p.signatures[fd.ID()] = sig
	}
	return sig
}

func (e *Evaluator) buildSignature(f *SourceFile, fd *pyast.FunctionDef) *types.FunctionType {
	sig := &types.FunctionType{
		Name:     fd.Name,
		FullName: qualifiedName(f, fd, fd.Name),
		Decl:     f.declRef(fd),
	}
	if fd.Async {
		sig.Flags |= types.FuncAsync
	}
	if scope := e.bound(f).ScopeFor(fd); scope != nil && scope.IsGenerator() {
		sig.Flags |= types.FuncGenerator
	}
	for _, d := range fd.Decorators {
		switch e.decoratorName(f, d) {
		case "builtins.staticmethod":
			sig.Flags |= types.FuncStaticMethod
		case "builtins.classmethod":
			sig.Flags |= types.FuncClassMethod
		case "builtins.property":
			sig.Flags |= types.FuncProperty
		case "typing.overload":
			sig.Flags |= types.FuncOverload
		case "abc.abstractmethod":
			sig.Flags |= types.FuncAbstract
		case "typing.final":
			sig.Flags |= types.FuncFinal
		}
	}
	owner := e.methodClass(f, fd)
	if owner != nil {
		switch fd.Name {
		case "__new__":
			sig.Flags |= types.FuncStaticMethod
		case "__init_subclass__", "__class_getitem__":
			sig.Flags |= types.FuncClassMethod
		}
	}

	for i, prm := range fd.Params {
		param := types.Param{
			Name:       prm.Name,
			Kind:       paramKind(prm.Kind),
			HasDefault: prm.Default != nil,
		}
		switch {
		case prm.Annotation != nil:
			flags := annNone
			if param.Kind == types.ParamVarPositional || param.Kind == types.ParamVarKeyword {
				flags = annAllowParamSpec | annAllowUnpack
			}
			t := e.annotationType(f, prm.Annotation, flags)
			if tup, ok := t.(*types.TupleType); ok && param.Kind == types.ParamVarPositional && isUnpackSyntax(prm.Annotation) {
				t = &types.TupleType{Elems: tup.Elems}
			}
			param.Type = t
			param.HasDeclaredType = true
		case i == 0 && owner != nil && (!sig.Is(types.FuncStaticMethod) || fd.Name == "__new__"):
			self := selfVar(owner)
			if sig.Is(types.FuncClassMethod) || fd.Name == "__new__" {
				param.Type = self.AsInstantiable()
			} else {
				param.Type = self
			}
		case prm.Default != nil && !isEllipsis(prm.Default):
			dt := e.exprType(f, prm.Default, nil)
			if types.IsNone(dt) {
				param.Type = types.Unknown
			} else {
				param.Type = widenInferred(dt)
			}
		default:
			param.Type = types.Unknown
		}
		sig.Params = append(sig.Params, param)
	}
	sig.ParamSpec = paramSpecOf(sig.Params)

	if fd.Returns != nil {
		sig.Guard = e.typeGuardOf(f, fd.Returns)
		ret := e.annotationType(f, fd.Returns, annNone)
		if sig.Is(types.FuncAsync) && !sig.Is(types.FuncGenerator) {
			ret = e.coroutineOf(ret)
		}
		sig.Return = ret
	}

	if len(fd.TypeParams) > 0 {
		for _, tp := range fd.TypeParams {
			sig.TypeParams = append(sig.TypeParams, e.typeParamType(f, tp))
		}
	} else {
		scope := sig.Decl.String()
		own := func(tv *types.TypeVarType) bool { return tv.Scope == scope }
		seen := map[types.TypeVarKey]bool{}
		add := func(t types.Type) {
			for _, tv := range typeVarsInOrder(t, own) {
				if !seen[tv.Key()] {
					seen[tv.Key()] = true
					sig.TypeParams = append(sig.TypeParams, tv)
				}
			}
		}
		for _, prm := range sig.Params {
			add(prm.Type)
		}
		add(sig.Return)
		if sig.Guard != nil {
			add(sig.Guard.Type)
		}
		scopeDefaults(sig.TypeParams)
	}
	return sig
}

func paramKind(k pyast.ParamKind) types.ParamKind {
	switch k {
	case pyast.ParamPositionalOnly:
		return types.ParamPositionalOnly
	case pyast.ParamKeywordOnly:
		return types.ParamKeywordOnly
	case pyast.ParamVarPositional:
		return types.ParamVarPositional
	case pyast.ParamVarKeyword:
		return types.ParamVarKeyword
	}
	return types.ParamPositionalOrKeyword
}

// isUnpackSyntax reports whether an annotation of *args unpacks a tuple:
// *tuple[...] or Unpack[tuple[...]].
func isUnpackSyntax(ann pyast.Expr) bool {
	switch a := ann.(type) {
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

// paramSpecOf returns P when a parameter list ends in *args: P.args,
// **kwargs: P.kwargs.
func paramSpecOf(params []types.Param) *types.TypeVarType {
	if len(params) < 2 {
		return nil
	}
	args, ok1 := params[len(params)-2].Type.(*types.TypeVarType)
	kwargs, ok2 := params[len(params)-1].Type.(*types.TypeVarType)
	if !ok1 || !ok2 || args.Access != types.AccessArgs || kwargs.Access != types.AccessKwargs || args.Key() != kwargs.Key() {
		return nil
	}
	return args.Base()
}

// typeGuardOf recognizes TypeGuard[T] and TypeIs[T] return annotations.
func (e *Evaluator) typeGuardOf(f *SourceFile, ret pyast.Expr) *types.TypeGuard {
	sub, ok := ret.(*pyast.Subscript)
	if !ok {
		return nil
	}
	var kind types.TypeGuardKind
	switch specialFormOf(e.typeExprValue(f, sub.Value, annNone)) {
	case "TypeGuard":
		kind = types.GuardTypeGuard
	case "TypeIs":
		kind = types.GuardTypeIs
	default:
		return nil
	}
	args := indexArgs(sub.Index)
	return &types.TypeGuard{Kind: kind, Type: e.annotationType(f, args[0], annNone)}
}

func (e *Evaluator) coroutineOf(ret types.Type) types.Type {
	return e.typingInstance("Coroutine", types.Any, types.Any, ret)
}

// methodClass returns the class whose body directly contains fd.
func (e *Evaluator) methodClass(f *SourceFile, fd *pyast.FunctionDef) *types.ClassInfo {
	cd, ok := f.AST.Parent(fd).(*pyast.ClassDef)
	if !ok {
		return nil
	}
	return e.classInfo(f, cd)
}

// functionType is the value a def binds: the signature after its
// decorators ran, merged with preceding overloads of the same name.
func (e *Evaluator) functionType(f *SourceFile, fd *pyast.FunctionDef) types.Type {
	p := e.part(f)
	if t, ok := p.functions[fd.ID()]; ok {
		return t
	}
	var t types.Type
	var complete bool
	e.outsideSpeculation(func() {
		t, complete = e.guard(nodeFrame{f.Path, fd.ID(), "function"}, func() types.Type {
			return e.decoratedFunction(f, fd)
		})
	})
	if complete {
		p.functions[fd.ID()] = t
	}
	return t
}

func (e *Evaluator) decoratedFunction(f *SourceFile, fd *pyast.FunctionDef) types.Type {
	sig := e.signature(f, fd)
	var t types.Type = sig
	for i := len(fd.Decorators) - 1; i >= 0; i-- {
		d := fd.Decorators[i]
		switch e.decoratorName(f, d) {
		case "builtins.staticmethod", "builtins.classmethod", "builtins.property",
			"typing.overload", "abc.abstractmethod", "typing.final", "typing.override",
			"typing.no_type_check":
			continue
		case "builtins.property.setter":
			if attr, ok := d.(*pyast.Attribute); ok {
				if getter, ok := e.exprType(f, attr.Value, nil).(*types.FunctionType); ok && getter.Is(types.FuncProperty) {
					prop := getter.Clone()
					prop.Setter = sig
					t = prop
					continue
				}
			}
		}
		res := e.applyDecorator(f, d, t)
		if types.IsAnyOrUnknown(res) {
			continue
		}
		t = res
	}
	return e.mergeOverloads(f, fd, t)
}

// applyDecorator calls a decorator with the decorated value.
func (e *Evaluator) applyDecorator(f *SourceFile, d pyast.Expr, t types.Type) types.Type {
	dec := e.exprType(f, d, nil)
	if types.IsAnyOrUnknown(dec) {
		return types.Unknown
	}
	res := e.callWithArgs(f, d, dec, []callArg{{typ: t}}, nil)
	if !res.OK() {
		e.reportCallFailure(f, d, res.Failure)
		return types.Unknown
	}
	return res.ReturnType
}

// mergeOverloads combines an @overload def, or the implementation that
// follows a run of them, with the overloads declared before it.
func (e *Evaluator) mergeOverloads(f *SourceFile, fd *pyast.FunctionDef, t types.Type) types.Type {
	fn, ok := t.(*types.FunctionType)
	if !ok {
		return t
	}
	prev := e.previousOverloads(f, fd)
	if fn.Is(types.FuncOverload) {
		if prev == nil {
			return fn
		}
		return &types.OverloadedType{Overloads: append(append([]*types.FunctionType(nil), prev...), fn)}
	}
	if len(prev) == 0 {
		return fn
	}
	return &types.OverloadedType{Overloads: prev, Implementation: fn}
}

// previousOverloads returns the overloads declared immediately before fd
// under the same name.
func (e *Evaluator) previousOverloads(f *SourceFile, fd *pyast.FunctionDef) []*types.FunctionType {
	bf := e.bound(f)
	d := bf.DeclOf(fd)
	if d == nil {
		return nil
	}
	sym := bf.ScopeOf(fd).Symbols[fd.Name]
	if sym == nil {
		return nil
	}
	idx := -1
	for i, sd := range sym.Decls {
		if sd == d {
			idx = i
			break
		}
	}
	if idx <= 0 || sym.Decls[idx-1].Kind != binder.DeclFunction {
		return nil
	}
	switch pt := e.declType(sym.Decls[idx-1]).(type) {
	case *types.FunctionType:
		if pt.Is(types.FuncOverload) {
			return []*types.FunctionType{pt}
		}
	case *types.OverloadedType:
		if pt.Implementation == nil {
			return pt.Overloads
		}
	}
	return nil
}

// functionDef returns the def statement a function type came from.
func (e *Evaluator) functionDef(fn *types.FunctionType) (*SourceFile, *pyast.FunctionDef) {
	if fn == nil || fn.Decl.IsZero() {
		return nil, nil
	}
	f := e.prog.files[fn.Decl.File]
	if f == nil {
		return nil, nil
	}
	fd, _ := f.AST.Node(pyast.NodeID(fn.Decl.Node)).(*pyast.FunctionDef)
	if fd == nil {
		return nil, nil
	}
	return f, fd
}

// withInferredReturn fills in the inferred return type of an unannotated
// function, in terms of the function's own type variables.
func (e *Evaluator) withInferredReturn(fn *types.FunctionType) *types.FunctionType {
	if fn.Return != nil {
		return fn
	}
	c := fn.Clone()
	c.Return = e.inferReturnType(fn)
	return c
}

// inferReturnType infers the return type of an unannotated def from its
// reachable return statements and yields.
func (e *Evaluator) inferReturnType(fn *types.FunctionType) types.Type {
	if fn.Is(types.FuncLambda) || fn.Is(types.FuncSynthesized) {
		return types.Unknown
	}
	f, fd := e.functionDef(fn)
	if fd == nil {
		return types.Unknown
	}
	if f.IsStub() {
		return types.Unknown
	}
	p := e.part(f)
	if t, ok := p.returns[fd.ID()]; ok {
		return t
	}
	var t types.Type
	var complete bool
	e.outsideSpeculation(func() {
		t, complete = e.guard(nodeFrame{f.Path, fd.ID(), "return"}, func() types.Type {
			return e.computeReturnType(f, fd)
		})
	})
	if complete {
		p.returns[fd.ID()] = t
	}
	return t
}

func (e *Evaluator) computeReturnType(f *SourceFile, fd *pyast.FunctionDef) types.Type {
	bf := e.bound(f)
	scope := bf.ScopeFor(fd)
	if scope == nil {
		return types.Unknown
	}
	sig := e.signature(f, fd)
	if isStubBody(fd.Body) && (sig.Is(types.FuncAbstract|types.FuncOverload) || e.inProtocol(f, fd)) {
		return types.Unknown
	}
	var ts []types.Type
	for _, r := range scope.Returns {
		if !e.isFlowReachable(f, bf.FlowOf(r)) {
			continue
		}
		if r.Value == nil {
			ts = append(ts, types.None)
			continue
		}
		ts = append(ts, e.exprType(f, r.Value, nil))
	}
	if e.isFlowReachable(f, scope.EndFlow) {
		ts = append(ts, types.None)
	}
	var ret types.Type
	switch {
	case len(ts) > 0:
		ret = types.Union(ts...)
	case scope.IsGenerator():
		ret = types.None
	case sig.Is(types.FuncAbstract) || raisesNotImplemented(fd.Body):
		ret = types.Unknown
	default:
		ret = types.NoReturn
	}
	if scope.IsGenerator() {
		var ys []types.Type
		for _, y := range scope.Yields {
			switch {
			case y.From:
				ys = append(ys, e.iterElement(f, y.Value, e.exprType(f, y.Value, nil), false))
			case y.Value == nil:
				ys = append(ys, types.None)
			default:
				ys = append(ys, e.exprType(f, y.Value, nil))
			}
		}
		yield := types.Never
		if len(ys) > 0 {
			yield = types.Union(ys...)
		}
		if fd.Async {
			return e.typingInstance("AsyncGenerator", yield, types.Any)
		}
		return e.typingInstance("Generator", yield, types.Any, ret)
	}
	if fd.Async {
		return e.coroutineOf(ret)
	}
	return ret
}

// isStubBody reports whether a body is only "...", pass or a docstring.
func isStubBody(body []pyast.Stmt) bool {
	for _, s := range body {
		switch s := s.(type) {
		case *pyast.Pass:
		case *pyast.ExprStmt:
			c, ok := s.Value.(*pyast.Constant)
			if !ok || (c.Kind != pyast.ConstEllipsis && c.Kind != pyast.ConstStr) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func raisesNotImplemented(body []pyast.Stmt) bool {
	for _, s := range body {
		r, ok := s.(*pyast.Raise)
		if !ok {
			continue
		}
		x := r.Exc
		if call, ok := x.(*pyast.Call); ok {
			x = call.Func
		}
		if n, ok := x.(*pyast.Name); ok && n.Id == "NotImplementedError" {
			return true
		}
	}
	return false
}

func (e *Evaluator) inProtocol(f *SourceFile, fd *pyast.FunctionDef) bool {
	info := e.methodClass(f, fd)
	return info != nil && info.Is(types.ClassProtocol)
}

// declaredReturn is the return annotation of a def as written, before an
// async def wraps it in a coroutine. It is nil when there is none.
func (e *Evaluator) declaredReturn(f *SourceFile, fd *pyast.FunctionDef) types.Type {
	if fd.Returns == nil {
		return nil
	}
	return e.annotationType(f, fd.Returns, annNone)
}

// isFlowReachable reports whether some path from the start of the
// execution scope reaches flow.
func (e *Evaluator) isFlowReachable(f *SourceFile, flow *binder.FlowNode) bool {
	if flow == nil {
		return true
	}
	p := e.part(f)
	if v, ok := p.reachable[flow.ID]; ok {
		return v
	}
	r := e.reachableFrom(f, flow, map[int]bool{})
	p.reachable[flow.ID] = r
	return r
}

func (e *Evaluator) reachableFrom(f *SourceFile, n *binder.FlowNode, visited map[int]bool) bool {
	p := e.part(f)
	for n != nil {
		if visited[n.ID] {
			return false
		}
		visited[n.ID] = true
		if v, ok := p.reachable[n.ID]; ok {
			return v
		}
		switch n.Kind {
		case binder.FlowUnreachable:
			return false
		case binder.FlowStart:
			return true
		case binder.FlowTrueCondition, binder.FlowFalseCondition:
			if e.conditionUnreachable(f, n) {
				return false
			}
		case binder.FlowNarrowForPattern:
			if e.patternUnreachable(f, n) {
				return false
			}
		case binder.FlowCall:
			if call, ok := n.Node.(*pyast.Call); ok && e.isNoReturnCall(f, call) {
				return false
			}
		case binder.FlowPostContextManager:
			if with, ok := n.Node.(*pyast.With); ok && !e.swallowsExceptions(f, with) {
				return false
			}
		case binder.FlowBranchLabel, binder.FlowLoopLabel:
			for _, a := range n.Antecedents {
				if e.reachableFrom(f, a, visited) {
					return true
				}
			}
			return false
		}
		n = n.Antecedent()
	}
	return true
}
