package checker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// callOverloaded picks the first overload that accepts the arguments. When
// none does, union-typed arguments are expanded member by member and the
// results joined.
func (e *Evaluator) callOverloaded(f *SourceFile, errNode pyast.Node, o *types.OverloadedType, args []callArg, expected types.Type) *CallResult {
	return e.overloadCall(f, errNode, o, args, expected, nil, nil)
}

// overloadCall is callOverloaded with the result and extra variables of
// invoke, as constructors need them.
func (e *Evaluator) overloadCall(f *SourceFile, errNode pyast.Node, o *types.OverloadedType, args []callArg, expected, result types.Type, extra []*types.TypeVarType) *CallResult {
	oc := overloadCtx{f: f, errNode: errNode, args: args, expected: expected, result: result, extra: extra}
	var candidates []*types.FunctionType
	var arityFail *CallFailure
	for _, ov := range o.Overloads {
		if _, fail := e.matchArgs(f, errNode, ov, args); fail != nil {
			if arityFail == nil {
				arityFail = fail
			}
			continue
		}
		candidates = append(candidates, ov)
	}
	switch len(candidates) {
	case 0:
		e.touchArgs(f, args)
		if len(o.Overloads) == 1 && arityFail != nil {
			return &CallResult{ReturnType: types.Unknown, Failure: arityFail}
		}
		return &CallResult{ReturnType: types.Unknown, Failure: e.noMatchingOverload(f, o, args)}
	case 1:
		// With a single candidate its own failure explains the problem best.
		res := e.tryOverload(oc, candidates[0], args)
		res.Overload = candidates[0]
		return res
	}

	if res := e.firstOverload(oc, candidates); res != nil {
		return res
	}
	if res, ok := e.expandUnionArgs(oc, candidates); ok {
		return res
	}
	e.touchArgs(f, args)
	return &CallResult{ReturnType: types.Unknown, Failure: e.noMatchingOverload(f, o, args)}
}

// firstOverload evaluates candidates in order and commits the first match.
// When Any arguments let later overloads match too and they disagree on
// the return type, the result is Unknown.
func (e *Evaluator) firstOverload(oc overloadCtx, candidates []*types.FunctionType) *CallResult {
	for i, ov := range candidates {
		var res *CallResult
		if !e.hypothesis(func() bool {
			res = e.tryOverload(oc, ov, oc.args)
			return res.OK()
		}) {
			continue
		}
		res.Overload = ov
		if !e.hasAnyArg(oc.f, oc.args) {
			return res
		}
		for _, later := range candidates[i+1:] {
			var other *CallResult
			var failed bool
			e.speculate(func() {
				other = e.tryOverload(oc, later, oc.args)
				failed = e.cache.top().failed()
			})
			if other.OK() && !failed && !e.sameType(other.ReturnType, res.ReturnType) {
				slog.Debug("ambiguous overload", "kind", AmbiguousOverload, "function", ov.Name, "first", res.ReturnType.String(), "other", other.ReturnType.String())
				return &CallResult{ReturnType: types.Unknown, Overload: ov}
			}
		}
		return res
	}
	return nil
}

// overloadCtx is what every overload of one call is evaluated with.
type overloadCtx struct {
	f        *SourceFile
	errNode  pyast.Node
	args     []callArg
	expected types.Type
	result   types.Type
	extra    []*types.TypeVarType
}

func (e *Evaluator) tryOverload(oc overloadCtx, ov *types.FunctionType, args []callArg) *CallResult {
	res, _ := e.invoke(oc.f, oc.errNode, ov, args, oc.expected, oc.result, oc.extra)
	return res
}

func (e *Evaluator) hasAnyArg(f *SourceFile, args []callArg) bool {
	for _, a := range args {
		if a.isLambda() {
			continue
		}
		if types.IsAnyOrUnknown(e.argType(f, a, nil)) {
			return true
		}
	}
	return false
}

// expandUnionArgs retries the overloads once per combination of the
// members of union-typed arguments, expanding one more argument at a time.
// ok is false when some combination matches no overload.
func (e *Evaluator) expandUnionArgs(oc overloadCtx, candidates []*types.FunctionType) (*CallResult, bool) {
	f, args := oc.f, oc.args
	var expandable []int
	for i, a := range args {
		if a.star != 0 || a.isLambda() {
			continue
		}
		if _, ok := e.argType(f, a, nil).(*types.UnionType); ok {
			expandable = append(expandable, i)
		}
	}
	limit := e.config.MaxUnionExpansion
	for n := 1; n <= len(expandable); n++ {
		combos := 1
		for _, i := range expandable[:n] {
			combos *= len(types.Members(e.argType(f, args[i], nil)))
		}
		if combos > limit {
			e.touchArgs(f, args)
			e.report(f, oc.errNode, UnionExpansionLimit, "Argument union expansion exceeds %d combinations; result is Unknown", limit)
			slog.Debug("union expansion limit", "combinations", combos, "limit", limit)
			return &CallResult{ReturnType: types.Unknown}, true
		}
		rets, ok := e.tryExpansion(oc, candidates, expandable[:n])
		if ok {
			e.touchArgs(f, args)
			return &CallResult{ReturnType: types.Union(rets...)}, true
		}
	}
	return nil, false
}

func (e *Evaluator) tryExpansion(oc overloadCtx, candidates []*types.FunctionType, expand []int) ([]types.Type, bool) {
	f, args := oc.f, oc.args
	var rets []types.Type
	combo := append([]callArg(nil), args...)
	var walk func(k int) bool
	walk = func(k int) bool {
		if k == len(expand) {
			for _, ov := range candidates {
				var res *CallResult
				var failed bool
				e.speculate(func() {
					res = e.tryOverload(oc, ov, combo)
					failed = e.cache.top().failed()
				})
				if res.OK() && !failed {
					rets = append(rets, res.ReturnType)
					return true
				}
			}
			return false
		}
		i := expand[k]
		orig := args[i]
		for _, m := range types.Members(e.argType(f, orig, nil)) {
			combo[i] = callArg{name: orig.name, node: orig.node, typ: m}
			if !walk(k + 1) {
				return false
			}
		}
		combo[i] = orig
		return true
	}
	return rets, walk(0)
}

func (e *Evaluator) noMatchingOverload(f *SourceFile, o *types.OverloadedType, args []callArg) *CallFailure {
	name := ""
	if len(o.Overloads) > 0 {
		name = o.Overloads[0].Name
	}
	var ts []string
	for _, a := range args {
		s := e.argType(f, a, nil).String()
		switch a.star {
		case 1:
			s = "*" + s
		case 2:
			s = "**" + s
		}
		ts = append(ts, s)
	}
	return &CallFailure{
		Kind:      OverloadExhausted,
		Reason:    fmt.Sprintf("No overloads for \"%s\" match the provided arguments\n  Argument types: (%s)", name, strings.Join(ts, ", ")),
		Overloads: o.Overloads,
	}
}

// checkOverlaps reports overloads that an earlier overload makes
// unreachable: the earlier one accepts every argument list the later one
// does.
func (e *Evaluator) checkOverlaps(f *SourceFile, fd *pyast.FunctionDef, o *types.OverloadedType) {
	if !e.config.ReportOverlappingOverloads || len(o.Overloads) < 2 {
		return
	}
	last := o.Overloads[len(o.Overloads)-1]
	if last.Decl != f.declRef(fd) {
		return
	}
	j := len(o.Overloads) - 1
	for i := 0; i < j; i++ {
		if e.obscures(o.Overloads[i], last) {
			e.reportAt(f, fd.NameLoc, OverlappingOverload, "Overload %d for \"%s\" will never be used because its parameters overlap overload %d", j+1, fd.Name, i+1)
			return
		}
	}
}

// obscures reports whether every call accepted by later is accepted by
// earlier.
func (e *Evaluator) obscures(earlier, later *types.FunctionType) bool {
	a := earlier.Clone()
	a.Return = types.Any
	b := later.Clone()
	b.Return = types.Any
	var ok bool
	e.speculate(func() {
		ok = e.assignType(b, a, newConstraints(a.TypeParams...))
	})
	return ok
}
