package checker

import (
	"fmt"
	"strings"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// callArg is one argument at a call site. typ is set for arguments that
// have no expression of their own, such as the decorated function passed
// to a decorator or the elements of an unpacked tuple.
type callArg struct {
	name string
	// star is 1 for *x and 2 for **x.
	star int
	node pyast.Expr
	typ  types.Type
}

func callArgs(call *pyast.Call) []callArg {
	args := make([]callArg, len(call.Args))
	for i, a := range call.Args {
		args[i] = callArg{name: a.Name, star: a.Star, node: a.Value}
	}
	return args
}

// argType evaluates an argument, passing expected down to displays and
// lambdas.
func (e *Evaluator) argType(f *SourceFile, a callArg, expected types.Type) types.Type {
	if a.typ != nil {
		return a.typ
	}
	if a.node == nil || f == nil {
		return types.Unknown
	}
	return e.exprType(f, a.node, expected)
}

func (a callArg) at(fallback pyast.Node) pyast.Node {
	if a.node != nil {
		return a.node
	}
	return fallback
}

func (a callArg) isLambda() bool {
	_, ok := a.node.(*pyast.Lambda)
	return ok && a.typ == nil
}

// touchArgs evaluates arguments that were not matched to a signature so
// that their own diagnostics are reported.
func (e *Evaluator) touchArgs(f *SourceFile, args []callArg) {
	for _, a := range args {
		e.argType(f, a, nil)
	}
}

// callResult checks a call expression against the type of its callee.
func (e *Evaluator) callResult(f *SourceFile, call *pyast.Call, callee, expected types.Type) *CallResult {
	if res := e.specialCall(f, call, callee, expected); res != nil {
		return res
	}
	return e.callWithArgs(f, call, callee, callArgs(call), expected)
}

// callWithArgs checks a call of callee with args. errNode locates
// failures that are not tied to a single argument.
func (e *Evaluator) callWithArgs(f *SourceFile, errNode pyast.Node, callee types.Type, args []callArg, expected types.Type) *CallResult {
	switch c := callee.(type) {
	case *types.UnknownType, *types.AnyType:
		e.touchArgs(f, args)
		return &CallResult{ReturnType: c}
	case *types.NeverType:
		e.touchArgs(f, args)
		return &CallResult{ReturnType: types.Never}
	case *types.AliasType:
		return e.callWithArgs(f, errNode, types.Unalias(c), args, expected)
	case *types.FunctionType:
		res, _ := e.invoke(f, errNode, c, args, expected, nil, nil)
		return res
	case *types.OverloadedType:
		return e.callOverloaded(f, errNode, c, args, expected)
	case *types.ClassType:
		return e.construct(f, errNode, c, args, expected)
	case *types.TypeVarType:
		if c.Instantiable {
			bound := types.ToClassObject(e.upperBound(c.AsInstance()))
			if bound == nil {
				bound = types.Unknown
			}
			res := e.callWithArgs(f, errNode, bound, args, nil)
			if res.OK() {
				res.ReturnType = c.AsInstance()
			}
			return res
		}
		call := e.silentMemberOf(f, c, "__call__")
		if call == nil {
			e.touchArgs(f, args)
			return notCallable(c)
		}
		return e.callWithArgs(f, errNode, call, args, expected)
	case *types.UnionType:
		return e.callUnion(f, errNode, c, args, expected)
	case *types.NoneType, *types.ModuleType, *types.TypeFormType, *types.UnboundType:
		e.touchArgs(f, args)
		return notCallable(c)
	}
	call := e.silentMemberOf(f, callee, "__call__")
	if call == nil {
		e.touchArgs(f, args)
		return notCallable(callee)
	}
	return e.callWithArgs(f, errNode, call, args, expected)
}

func notCallable(t types.Type) *CallResult {
	reason := fmt.Sprintf("Object of type \"%s\" is not callable", t)
	if types.IsNone(t) {
		reason = "Object of type \"None\" cannot be called"
	}
	return &CallResult{
		ReturnType: types.Unknown,
		Failure:    &CallFailure{Kind: NotCallable, Reason: reason, Source: t},
	}
}

// callUnion calls every member of a union. The first failing member
// fails the call.
func (e *Evaluator) callUnion(f *SourceFile, errNode pyast.Node, u *types.UnionType, args []callArg, expected types.Type) *CallResult {
	rets := make([]types.Type, 0, len(u.Members))
	for _, m := range u.Members {
		if types.IsNone(m) {
			e.touchArgs(f, args)
			res := notCallable(m)
			res.Failure.Reason = fmt.Sprintf("Object of type \"None\" cannot be called\n  Type \"%s\" contains None", u)
			return res
		}
		res := e.callWithArgs(f, errNode, m, args, expected)
		if !res.OK() {
			return res
		}
		rets = append(rets, res.ReturnType)
	}
	return &CallResult{ReturnType: types.Union(rets...)}
}

// argMatch pairs a parameter with an argument bound to it.
type argMatch struct {
	param int
	arg   callArg
}

// matchArgs binds arguments to the parameters of fn: positional arguments
// first, then keywords, then unpacked mappings.
func (e *Evaluator) matchArgs(f *SourceFile, errNode pyast.Node, fn *types.FunctionType, args []callArg) ([]argMatch, *CallFailure) {
	params := fn.Params
	var positional []int
	varArgs, varKwargs := -1, -1
	for i, p := range params {
		switch p.Kind {
		case types.ParamPositionalOnly, types.ParamPositionalOrKeyword:
			if varArgs < 0 {
				positional = append(positional, i)
			}
		case types.ParamVarPositional:
			varArgs = i
		case types.ParamVarKeyword:
			varKwargs = i
		}
	}
	matched := make([]bool, len(params))
	var out []argMatch
	next := 0
	bindPositional := func(a callArg) bool {
		if next < len(positional) {
			i := positional[next]
			next++
			matched[i] = true
			out = append(out, argMatch{param: i, arg: a})
			return true
		}
		if varArgs >= 0 {
			matched[varArgs] = true
			out = append(out, argMatch{param: varArgs, arg: a})
			return true
		}
		return false
	}
	tooMany := func(a callArg) *CallFailure {
		n := len(positional)
		reason := fmt.Sprintf("Expected %d positional arguments", n)
		if n == 1 {
			reason = "Expected 1 positional argument"
		}
		return &CallFailure{Kind: ArityMismatch, Reason: reason, Arg: a.at(errNode)}
	}

	for _, a := range args {
		switch {
		case a.star == 0 && a.name == "":
			if !bindPositional(a) {
				return nil, tooMany(a)
			}
		case a.star == 1:
			t := e.argType(f, a, nil)
			if tup, ok := t.(*types.TupleType); ok {
				if _, fixed := tup.FixedLen(); fixed {
					for _, el := range tup.Elems {
						if !bindPositional(callArg{node: a.node, typ: el.Type}) {
							return nil, tooMany(a)
						}
					}
					continue
				}
			}
			elem := e.iterElement(f, a.node, t, false)
			if tv, ok := t.(*types.TypeVarType); ok && tv.Access == types.AccessArgs {
				elem = tv
			}
			for next < len(positional) && !params[positional[next]].HasDefault {
				matched[positional[next]] = true
				out = append(out, argMatch{param: positional[next], arg: callArg{node: a.node, typ: elem}})
				next++
			}
			if varArgs >= 0 {
				matched[varArgs] = true
				out = append(out, argMatch{param: varArgs, arg: callArg{node: a.node, typ: elem}})
			}
		}
	}

	bindKeyword := func(a callArg, name string) *CallFailure {
		i := keywordParamIndex(params, name)
		if i < 0 {
			if varKwargs >= 0 {
				matched[varKwargs] = true
				out = append(out, argMatch{param: varKwargs, arg: a})
				return nil
			}
			return &CallFailure{Kind: ArityMismatch, Reason: fmt.Sprintf("No parameter named \"%s\"", name), Arg: a.at(errNode)}
		}
		if matched[i] {
			return &CallFailure{Kind: ArityMismatch, Reason: fmt.Sprintf("Multiple values for parameter \"%s\"", name), Arg: a.at(errNode)}
		}
		matched[i] = true
		out = append(out, argMatch{param: i, arg: a})
		return nil
	}
	for _, a := range args {
		if a.star == 0 && a.name != "" {
			if fail := bindKeyword(a, a.name); fail != nil {
				return nil, fail
			}
		}
	}
	for _, a := range args {
		if a.star != 2 {
			continue
		}
		t := e.argType(f, a, nil)
		if td, ok := t.(*types.TypedDictType); ok {
			for _, k := range td.Info.TypedDictKeys {
				entry, _ := td.Entry(k)
				if fail := bindKeyword(callArg{name: k, node: a.node, typ: entry.Type}, k); fail != nil {
					return nil, fail
				}
			}
			continue
		}
		if tv, ok := t.(*types.TypeVarType); ok && tv.Access == types.AccessKwargs {
			if varKwargs >= 0 {
				matched[varKwargs] = true
				out = append(out, argMatch{param: varKwargs, arg: callArg{node: a.node, typ: tv}})
			}
			continue
		}
		val := e.mappingValueType(f, t)
		for i, p := range params {
			if matched[i] || isPrivateParam(p.Name) {
				continue
			}
			if p.Kind == types.ParamPositionalOrKeyword || p.Kind == types.ParamKeywordOnly {
				matched[i] = true
				out = append(out, argMatch{param: i, arg: callArg{name: p.Name, node: a.node, typ: val}})
			}
		}
		if varKwargs >= 0 {
			matched[varKwargs] = true
			out = append(out, argMatch{param: varKwargs, arg: callArg{node: a.node, typ: val}})
		}
	}

	var missing []string
	unnamed := 0
	for i, p := range params {
		if matched[i] || p.HasDefault || p.Kind == types.ParamVarPositional || p.Kind == types.ParamVarKeyword {
			continue
		}
		if p.Name == "" {
			unnamed++
			continue
		}
		missing = append(missing, p.Name)
	}
	switch {
	case unnamed == 1:
		return nil, &CallFailure{Kind: ArityMismatch, Reason: "Expected 1 more positional argument", Arg: errNode}
	case unnamed > 1:
		return nil, &CallFailure{Kind: ArityMismatch, Reason: fmt.Sprintf("Expected %d more positional arguments", unnamed), Arg: errNode}
	case len(missing) == 1:
		return nil, &CallFailure{Kind: ArityMismatch, Reason: fmt.Sprintf("Argument missing for parameter \"%s\"", missing[0]), Arg: errNode}
	case len(missing) > 1:
		quoted := make([]string, len(missing))
		for i, m := range missing {
			quoted[i] = "\"" + m + "\""
		}
		return nil, &CallFailure{Kind: ArityMismatch, Reason: "Arguments missing for parameters " + strings.Join(quoted, ", "), Arg: errNode}
	}
	return out, nil
}

// keywordParamIndex finds the parameter a keyword argument binds to.
// Positional-only parameters, including the double-underscore ones of
// stubs, never match.
func keywordParamIndex(params []types.Param, name string) int {
	for i, p := range params {
		if p.Name != name || isPrivateParam(p.Name) {
			continue
		}
		if p.Kind == types.ParamPositionalOrKeyword || p.Kind == types.ParamKeywordOnly {
			return i
		}
	}
	return -1
}

// mappingValueType is the value type of a mapping unpacked with **.
func (e *Evaluator) mappingValueType(f *SourceFile, t types.Type) types.Type {
	if types.IsAnyOrUnknown(t) {
		return t
	}
	if info := e.typingInfo("Mapping"); info != nil {
		var vals []types.Type
		for _, m := range types.Members(t) {
			if inst, ok := upcast(m, info); ok && len(inst.Args) == 2 {
				vals = append(vals, inst.Args[1])
				continue
			}
			vals = append(vals, types.Unknown)
		}
		return types.Union(vals...)
	}
	return types.Unknown
}

// callConstraints collects the variables solved at a call to fn. An
// unbound method called through its class also solves Self and the
// class's type parameters.
func (e *Evaluator) callConstraints(fn *types.FunctionType, extra []*types.TypeVarType) *constraints {
	cs := newConstraints(fn.TypeParams...)
	cs.add(extra...)
	if fn.BoundTo == nil && len(fn.Params) > 0 {
		if tv, ok := fn.Params[0].Type.(*types.TypeVarType); ok && tv.IsSelf {
			cs.add(tv)
			if info := types.InfoOf(tv.Bound); info != nil {
				cs.add(info.TypeParams...)
			}
		}
	}
	return cs
}

// invoke checks a call to a single signature. result is the type the
// call evaluates to before solving, the return type when nil. extra are
// variables solved at the call besides the function's own.
func (e *Evaluator) invoke(f *SourceFile, errNode pyast.Node, fn *types.FunctionType, args []callArg, expected, result types.Type, extra []*types.TypeVarType) (*CallResult, *constraints) {
	fn = e.withInferredReturn(fn)
	if result == nil {
		result = fn.Return
	}
	cs := e.callConstraints(fn, extra)
	matches, fail := e.matchArgs(f, errNode, fn, args)
	if fail != nil {
		e.touchArgs(f, args)
		return &CallResult{ReturnType: e.solve(cs).Apply(result), Failure: fail}, cs
	}
	if expected != nil && !types.IsAnyOrUnknown(expected) && hasSolvable(result, cs) {
		seeded := cs.clone()
		seeded.retainLiterals = types.HasLiteral(expected)
		var res *CallResult
		if e.assignType(expected, result, seeded) && e.speculateCommit(func() bool {
			res = e.validateArgs(f, errNode, fn, matches, seeded, result)
			return res.OK()
		}) {
			return res, seeded
		}
	}
	return e.validateArgs(f, errNode, fn, matches, cs, result), cs
}

// validateArgs evaluates matched arguments against their parameters left
// to right. Lambdas go last so that they see what the other arguments
// solved.
func (e *Evaluator) validateArgs(f *SourceFile, errNode pyast.Node, fn *types.FunctionType, matches []argMatch, cs *constraints, result types.Type) *CallResult {
	var failure *CallFailure
	var psArgs []callArg
	packed := map[int][]types.Type{}
	var packedOrder []int

	check := func(m argMatch, lambda bool) {
		p := fn.Params[m.param]
		pt := paramType(p)
		if tv, ok := pt.(*types.TypeVarType); ok && tv.Access != types.AccessNone {
			psArgs = append(psArgs, m.arg)
			return
		}
		if p.Kind == types.ParamVarPositional && isPackedParam(pt) {
			if _, seen := packed[m.param]; !seen {
				packedOrder = append(packedOrder, m.param)
			}
			packed[m.param] = append(packed[m.param], e.argType(f, m.arg, nil))
			return
		}
		at := e.argType(f, m.arg, e.expectedArgType(pt, cs, lambda))
		if failure != nil {
			return
		}
		cs.conflict = ""
		if !e.assignType(pt, at, cs) {
			failure = e.argFailure(fn, p, pt, at, m.arg.at(errNode), cs)
		}
	}
	var deferred []argMatch
	for _, m := range matches {
		if m.arg.isLambda() {
			deferred = append(deferred, m)
			continue
		}
		check(m, false)
	}
	for _, m := range deferred {
		check(m, true)
	}
	for _, i := range packedOrder {
		p := fn.Params[i]
		tup := e.tupleOf(packed[i]...)
		if failure == nil && !e.assignType(paramType(p), tup, cs) {
			failure = e.argFailure(fn, p, paramType(p), tup, errNode, cs)
		}
	}

	if fn.ParamSpec != nil && cs.solvable(fn.ParamSpec) {
		sol, ok := cs.solved()[fn.ParamSpec.Key()]
		sig, isFn := sol.(*types.FunctionType)
		switch {
		case !ok || !isFn:
			e.touchArgs(f, psArgs)
		case failure == nil:
			inner := sig.Clone()
			inner.Flags &^= types.FuncParamSpecValue
			inner.Return = types.None
			inner.Name = fn.Name
			if res := e.callWithArgs(f, errNode, inner, psArgs, nil); !res.OK() {
				failure = res.Failure
			}
		default:
			e.touchArgs(f, psArgs)
		}
	} else {
		e.touchArgs(f, psArgs)
	}

	return &CallResult{ReturnType: e.solve(cs).Apply(result), Failure: failure}
}

// isPackedParam reports whether *args collects its arguments into one
// tuple: *args: *Ts and *args: *tuple[...].
func isPackedParam(t types.Type) bool {
	switch t := t.(type) {
	case *types.TypeVarType:
		return t.Unpacked
	case *types.TupleType:
		return isUnpackedTuple(t)
	}
	return false
}

func (e *Evaluator) argFailure(fn *types.FunctionType, p types.Param, pt, at types.Type, node pyast.Node, cs *constraints) *CallFailure {
	kind := AssignabilityFailure
	if cs.conflictKind == ConstraintSetConflict && cs.conflict != "" {
		kind = ConstraintSetConflict
	}
	name := p.Name
	if name == "" {
		name = "__p"
	}
	reason := fmt.Sprintf("Argument of type \"%s\" cannot be assigned to parameter \"%s\" of type \"%s\"", at, name, pt)
	if fn.Name != "" {
		reason += fmt.Sprintf(" in function \"%s\"", fn.Name)
	}
	if cs.conflict != "" {
		reason += "\n  " + cs.conflict
	}
	fail := &CallFailure{Kind: kind, Reason: reason, Arg: node, Source: at, Dest: pt}
	if miss, ok := e.protocolMismatch(cs.solved().Apply(pt), at); ok {
		fail.Member = miss.member
		fail.Reason += "\n  " + miss.String()
	}
	return fail
}

// expectedArgType is the expected type passed to an argument expression:
// the parameter type with what is solved so far filled in. Variables still
// unsolved make the expectation useless for displays, so only lambdas get
// one, with those variables as Unknown.
func (e *Evaluator) expectedArgType(pt types.Type, cs *constraints, lambda bool) types.Type {
	if types.IsAnyOrUnknown(pt) {
		return nil
	}
	t := cs.solved().Apply(pt)
	if !hasSolvable(t, cs) {
		return t
	}
	if !lambda {
		return nil
	}
	subs := types.NewSubs()
	for _, tv := range t.FreeTypeVars() {
		if cs.solvable(tv) {
			subs[tv.Key()] = types.Unknown
		}
	}
	return subs.Apply(t)
}

// returnTypeOf is the declared or inferred return type of a callable, the
// union over overloads.
func (e *Evaluator) returnTypeOf(t types.Type) types.Type {
	switch t := t.(type) {
	case *types.FunctionType:
		return e.withInferredReturn(t).Return
	case *types.OverloadedType:
		rets := make([]types.Type, 0, len(t.Overloads))
		for _, ov := range t.Overloads {
			rets = append(rets, e.withInferredReturn(ov).Return)
		}
		return types.Union(rets...)
	case *types.AnyType, *types.UnknownType:
		return t
	}
	return types.Unknown
}

// reportCallFailure reports a failed call at the offending argument, or
// at n.
func (e *Evaluator) reportCallFailure(f *SourceFile, n pyast.Node, fail *CallFailure) {
	if fail == nil {
		return
	}
	at := n
	if fail.Arg != nil {
		at = fail.Arg
	}
	d := e.report(f, at, fail.Kind, "%s", fail.Error())
	d.Source, d.Dest, d.Member = fail.Source, fail.Dest, fail.Member
}
