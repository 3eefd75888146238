package checker

import (
	"fmt"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// construct checks a call of a class object. A custom metaclass __call__
// takes over; otherwise __new__ and then __init__ are evaluated, each only
// when some class other than object defines it.
func (e *Evaluator) construct(f *SourceFile, errNode pyast.Node, c *types.ClassType, args []callArg, expected types.Type) *CallResult {
	info := c.Info
	switch {
	case info.Is(types.ClassSpecialForm):
		e.touchArgs(f, args)
		return notCallable(c)
	case info.Is(types.ClassPartial):
		e.touchArgs(f, args)
		return &CallResult{ReturnType: types.Unknown}
	case info.Is(types.ClassProtocol):
		e.touchArgs(f, args)
		return &CallResult{
			ReturnType: types.ToInstance(c),
			Failure:    &CallFailure{Kind: NotCallable, Reason: fmt.Sprintf("Cannot instantiate Protocol class \"%s\"", info.Name)},
		}
	}
	if res := e.metaclassCall(f, errNode, c, args, expected); res != nil {
		return res
	}
	res := e.constructInstance(f, errNode, c, args, expected)
	if res.OK() {
		if missing := e.abstractMethods(info); len(missing) > 0 {
			res.Failure = &CallFailure{Kind: NotCallable, Reason: abstractReason(info, missing)}
		}
	}
	res.ReturnType = e.constructedForm(res.ReturnType)
	return res
}

// metaclassCall evaluates a __call__ defined on a custom metaclass. It
// returns nil when there is none, or when it returns an instance of the
// class and the usual constructor evaluation applies.
func (e *Evaluator) metaclassCall(f *SourceFile, errNode pyast.Node, c *types.ClassType, args []callArg, expected types.Type) *CallResult {
	meta, ok := asInstance(c.Info.Metaclass)
	if !ok {
		return nil
	}
	m := e.lookupMember(meta.Info, "__call__", false)
	if m == nil || m.owner == nil || isBuiltin(m.owner, "type") {
		return nil
	}
	call, ok := e.accessMember(f, errNode, receiver{inst: meta, self: c}, "__call__")
	if !ok {
		return nil
	}
	var res *CallResult
	e.speculate(func() {
		res = e.callWithArgs(f, errNode, call, args, expected)
	})
	if res.OK() {
		ret := res.ReturnType
		if types.IsAnyOrUnknown(ret) {
			return nil
		}
		if ri := types.InfoOf(ret); ri != nil && types.DerivesFrom(ri, c.Info) {
			return nil
		}
	}
	return e.callWithArgs(f, errNode, call, args, expected)
}

// constructTarget is the instance a constructor call produces before
// solving. An unspecialized generic class is instantiated over its own
// type parameters, which the call then solves.
func constructTarget(c *types.ClassType) (types.Type, []*types.TypeVarType) {
	info := c.Info
	if c.Tuple != nil {
		return c.Tuple, nil
	}
	if c.IsSpecialized() || len(info.TypeParams) == 0 {
		return types.ToInstance(c), nil
	}
	args := make([]types.Type, len(info.TypeParams))
	for i, tp := range info.TypeParams {
		args[i] = tp
	}
	return types.ToInstance(&types.ClassType{Info: info, Args: args}), info.TypeParams
}

func (e *Evaluator) constructInstance(f *SourceFile, errNode pyast.Node, c *types.ClassType, args []callArg, expected types.Type) *CallResult {
	inst, extra := constructTarget(c)
	recv, ok := asInstance(inst)
	if !ok {
		e.touchArgs(f, args)
		return &CallResult{ReturnType: types.Unknown}
	}
	newFn := e.constructorMethod(f, errNode, recv, inst, "__new__")
	initFn := e.constructorMethod(f, errNode, recv, inst, "__init__")
	if newFn == nil && initFn == nil {
		ret := e.solveExpected(inst, extra, expected)
		if len(args) > 0 {
			e.touchArgs(f, args)
			return &CallResult{ReturnType: ret, Failure: &CallFailure{Kind: ArityMismatch, Reason: "Expected 0 positional arguments", Arg: args[0].at(errNode)}}
		}
		return &CallResult{ReturnType: ret}
	}
	if newFn != nil {
		newArgs := append([]callArg{{typ: types.ToClassObject(inst)}}, args...)
		res := e.callSignature(f, errNode, newFn, newArgs, expected, nil, extra)
		if !res.OK() || initFn == nil {
			return res
		}
		ret := res.ReturnType
		ri := types.InfoOf(ret)
		if ri == nil || !types.DerivesFrom(ri, c.Info) {
			// __init__ is not called on objects of other classes.
			return res
		}
		if len(extra) == 0 || !types.IsPartlyUnknown(ret) {
			inst, extra = ret, nil
		}
	}
	return e.callSignature(f, errNode, initFn, args, expected, inst, extra)
}

// constructorMethod returns __new__ or __init__ bound for construction, or
// nil when only object provides it.
func (e *Evaluator) constructorMethod(f *SourceFile, n pyast.Node, recv *types.InstanceType, inst types.Type, name string) types.Type {
	isNew := name == "__new__"
	m := e.lookupMember(recv.Info, name, isNew)
	if m == nil {
		return nil
	}
	if m.owner == nil {
		if isNew {
			return nil
		}
		return types.Unknown
	}
	if isBuiltin(m.owner, "object") {
		return nil
	}
	t, ok := e.accessMember(f, n, receiver{inst: recv, self: inst, class: isNew}, name)
	if !ok {
		return nil
	}
	return t
}

// callSignature calls a constructor method with the result and extra
// variables of the construction.
func (e *Evaluator) callSignature(f *SourceFile, errNode pyast.Node, t types.Type, args []callArg, expected, result types.Type, extra []*types.TypeVarType) *CallResult {
	switch t := t.(type) {
	case *types.FunctionType:
		res, _ := e.invoke(f, errNode, t, args, expected, result, extra)
		return res
	case *types.OverloadedType:
		return e.overloadCall(f, errNode, t, args, expected, result, extra)
	}
	res := e.callWithArgs(f, errNode, t, args, nil)
	if result != nil {
		res.ReturnType = e.solveExpected(result, extra, expected)
	}
	return res
}

// solveExpected solves the variables of t against the expected type, the
// way a call with no arguments to inform it would.
func (e *Evaluator) solveExpected(t types.Type, extra []*types.TypeVarType, expected types.Type) types.Type {
	cs := newConstraints(extra...)
	if len(extra) > 0 && expected != nil && !types.IsAnyOrUnknown(expected) {
		seeded := cs.clone()
		seeded.retainLiterals = types.HasLiteral(expected)
		var ok bool
		e.speculate(func() {
			ok = e.assignType(expected, t, seeded)
		})
		if ok {
			e.assignType(expected, t, cs)
		}
	}
	return e.solve(cs).Apply(t)
}

// constructedForm turns tuple instances produced by tuple.__new__ into
// tuple types.
func (e *Evaluator) constructedForm(t types.Type) types.Type {
	if inst, ok := t.(*types.InstanceType); ok && isBuiltin(inst.Info, "tuple") && len(inst.Args) == 1 {
		return e.homTuple(inst.Args[0])
	}
	return t
}

// abstractMember is an abstract method a class leaves unimplemented.
type abstractMember struct {
	owner string
	name  string
}

// abstractMethods lists the abstract methods of a class that no class in
// its MRO overrides. Only classes using ABCMeta or deriving from a
// protocol can have any.
func (e *Evaluator) abstractMethods(info *types.ClassInfo) []abstractMember {
	if !e.supportsAbstract(info) {
		return nil
	}
	state := map[string]*abstractMember{}
	var order []string
	for i := len(info.MRO) - 1; i >= 0; i-- {
		mi := types.InfoOf(info.MRO[i])
		if mi == nil {
			continue
		}
		_, scope := e.classScope(mi)
		if scope == nil {
			continue
		}
		for _, sym := range scope.SortedSymbols() {
			if sym.Is(binder.SymbolInstanceMember) || len(sym.Decls) == 0 {
				continue
			}
			if _, seen := state[sym.Name]; !seen {
				order = append(order, sym.Name)
			}
			if e.isAbstractSymbol(sym) {
				state[sym.Name] = &abstractMember{owner: mi.Name, name: sym.Name}
			} else {
				state[sym.Name] = nil
			}
		}
	}
	var out []abstractMember
	for _, name := range order {
		if m := state[name]; m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func (e *Evaluator) supportsAbstract(info *types.ClassInfo) bool {
	if mi := types.InfoOf(info.Metaclass); mi != nil && derivesFromName(mi, "abc.ABCMeta") {
		return true
	}
	for _, m := range info.MRO[1:] {
		if mi := types.InfoOf(m); mi != nil && mi.Is(types.ClassProtocol) {
			return true
		}
	}
	return false
}

func (e *Evaluator) isAbstractSymbol(sym *binder.Symbol) bool {
	last := sym.Decls[len(sym.Decls)-1]
	if last.Kind != binder.DeclFunction {
		return false
	}
	switch t := e.symbolType(sym).(type) {
	case *types.FunctionType:
		return t.Is(types.FuncAbstract)
	case *types.OverloadedType:
		for _, ov := range t.Overloads {
			if ov.Is(types.FuncAbstract) {
				return true
			}
		}
	}
	return false
}

func abstractReason(info *types.ClassInfo, missing []abstractMember) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cannot instantiate abstract class \"%s\"", info.Name)
	const shown = 2
	for i, m := range missing {
		if i == shown {
			fmt.Fprintf(&b, "\n  and %d more...", len(missing)-shown)
			break
		}
		fmt.Fprintf(&b, "\n  \"%s.%s\" is not implemented", m.owner, m.name)
	}
	return b.String()
}

// constructorSignature is the signature of a class object used as a
// callable: __init__ (or __new__ without cls) returning the instance.
// It is nil for classes that cannot be instantiated.
func (e *Evaluator) constructorSignature(f *SourceFile, c *types.ClassType) types.Type {
	info := c.Info
	if info.Is(types.ClassSpecialForm | types.ClassProtocol | types.ClassPartial) {
		return nil
	}
	inst, extra := constructTarget(c)
	recv, ok := asInstance(inst)
	if !ok {
		return nil
	}
	convert := func(fn *types.FunctionType, dropFirst bool) *types.FunctionType {
		sig := fn.Clone()
		if dropFirst && len(sig.Params) > 0 {
			sig.Params = sig.Params[1:]
		}
		if !dropFirst || sig.Return == nil {
			sig.Return = inst
		}
		sig.TypeParams = append(append([]*types.TypeVarType(nil), extra...), fn.TypeParams...)
		sig.Flags |= types.FuncConstructor
		sig.BoundTo = nil
		if sig.Name == "__init__" || sig.Name == "__new__" {
			sig.Name = info.Name
		}
		return sig
	}
	build := func(t types.Type, dropFirst bool) types.Type {
		switch t := t.(type) {
		case *types.FunctionType:
			return convert(e.withInferredReturn(t), dropFirst)
		case *types.OverloadedType:
			out := &types.OverloadedType{}
			for _, ov := range t.Overloads {
				out.Overloads = append(out.Overloads, convert(e.withInferredReturn(ov), dropFirst))
			}
			return out
		}
		return nil
	}
	if init := e.constructorMethod(f, nil, recv, inst, "__init__"); init != nil {
		if types.IsAnyOrUnknown(init) {
			return gradualSignature(inst)
		}
		if sig := build(init, false); sig != nil {
			return sig
		}
	}
	if newFn := e.constructorMethod(f, nil, recv, inst, "__new__"); newFn != nil {
		if sig := build(newFn, true); sig != nil {
			return sig
		}
	}
	return &types.FunctionType{Name: info.Name, Return: inst, TypeParams: extra, Flags: types.FuncConstructor}
}
