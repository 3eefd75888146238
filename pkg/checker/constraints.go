package checker

import (
	"fmt"

	"github.com/vito/typhon/pkg/types"
)

// constraints collects what is known about the type variables solved at a
// call. Arguments are matched left to right: each one narrows or widens the
// bounds recorded so far.
type constraints struct {
	vars  map[types.TypeVarKey]*types.TypeVarType
	order []types.TypeVarKey

	// lower is the widest type assigned to a variable from a source
	// position; upper the narrowest type it was assigned to.
	lower map[types.TypeVarKey]types.Type
	upper map[types.TypeVarKey]types.Type
	// exact marks variables pinned by an invariant context or a constraint.
	exact map[types.TypeVarKey]bool

	// retainLiterals keeps literal types in the solution.
	retainLiterals bool

	// conflict explains the last failed constraint.
	conflict     string
	conflictKind ErrorKind
}

func newConstraints(tvs ...*types.TypeVarType) *constraints {
	cs := &constraints{
		vars:  map[types.TypeVarKey]*types.TypeVarType{},
		lower: map[types.TypeVarKey]types.Type{},
		upper: map[types.TypeVarKey]types.Type{},
		exact: map[types.TypeVarKey]bool{},
	}
	cs.add(tvs...)
	return cs
}

func (cs *constraints) add(tvs ...*types.TypeVarType) {
	for _, tv := range tvs {
		base := tv.Base()
		if _, ok := cs.vars[base.Key()]; ok {
			continue
		}
		cs.vars[base.Key()] = base
		cs.order = append(cs.order, base.Key())
	}
}

// solvable reports whether tv is one of the variables being solved.
func (cs *constraints) solvable(tv *types.TypeVarType) bool {
	if cs == nil {
		return false
	}
	_, ok := cs.vars[tv.Key()]
	return ok
}

func (cs *constraints) empty() bool {
	return cs == nil || len(cs.vars) == 0
}

func (cs *constraints) clone() *constraints {
	if cs == nil {
		return nil
	}
	c := &constraints{
		vars:           cs.vars,
		order:          cs.order,
		lower:          make(map[types.TypeVarKey]types.Type, len(cs.lower)),
		upper:          make(map[types.TypeVarKey]types.Type, len(cs.upper)),
		exact:          make(map[types.TypeVarKey]bool, len(cs.exact)),
		retainLiterals: cs.retainLiterals,
	}
	for k, v := range cs.lower {
		c.lower[k] = v
	}
	for k, v := range cs.upper {
		c.upper[k] = v
	}
	for k, v := range cs.exact {
		c.exact[k] = v
	}
	return c
}

// restore resets cs to an earlier clone.
func (cs *constraints) restore(from *constraints) {
	if cs == nil || from == nil {
		return
	}
	*cs = *from.clone()
}

func (cs *constraints) fail(kind ErrorKind, format string, args ...any) bool {
	cs.conflict = fmt.Sprintf(format, args...)
	cs.conflictKind = kind
	return false
}

// solved returns the variables that have a bound so far.
func (cs *constraints) solved() types.Subs {
	subs := types.NewSubs()
	if cs == nil {
		return subs
	}
	for _, k := range cs.order {
		if t, ok := cs.value(k); ok {
			subs[k] = t
		}
	}
	return subs
}

func (cs *constraints) value(k types.TypeVarKey) (types.Type, bool) {
	t, ok := cs.lower[k]
	if !ok {
		t, ok = cs.upper[k]
	}
	if !ok {
		return nil, false
	}
	if !cs.retainLiterals && !cs.exact[k] {
		t = types.StripLiteral(t)
	}
	return t, true
}

// solve completes the solution: unsolved variables take their default, or
// Unknown.
func (e *Evaluator) solve(cs *constraints) types.Subs {
	subs := types.NewSubs()
	if cs == nil {
		return subs
	}
	for _, k := range cs.order {
		if t, ok := cs.value(k); ok {
			subs[k] = t
			continue
		}
		tv := cs.vars[k]
		if tv.Default != nil {
			subs[k] = subs.Apply(tv.Default)
			continue
		}
		subs[k] = unsolvedValue(tv)
	}
	return subs
}

// assignToTypeVar records src as a value of the solvable variable tv.
func (e *Evaluator) assignToTypeVar(tv *types.TypeVarType, src types.Type, cs *constraints, flags assignFlags) bool {
	key := tv.Key()
	decl := cs.vars[key]

	if tv.Instantiable {
		switch s := src.(type) {
		case *types.ClassType:
			src = types.ToInstance(s)
		case *types.TypeVarType:
			if !s.Instantiable {
				return cs.fail(AssignabilityFailure, "Type \"%s\" is not a class", src)
			}
			src = s.AsInstance()
		case *types.AnyType, *types.UnknownType:
		default:
			if inst, ok := src.(*types.InstanceType); ok && isBuiltin(inst.Info, "type") {
				src = types.Unknown
				break
			}
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not a class", src)
		}
	}

	if types.IsAnyOrUnknown(src) {
		if _, ok := cs.lower[key]; !ok {
			cs.lower[key] = src
		}
		return true
	}

	switch decl.Kind {
	case types.TypeVarParamSpec:
		return e.assignParamSpec(decl, src, cs)
	case types.TypeVarTuple:
		return e.assignPacked(decl, src, cs)
	}

	if len(decl.Constraints) > 0 {
		return e.assignConstrained(decl, src, cs)
	}

	if decl.Bound != nil && !decl.IsSelf {
		if !e.isAssignable(decl.Bound, src) {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to upper bound \"%s\" for type variable \"%s\"", src, decl.Bound, decl)
		}
	}
	if up, ok := cs.upper[key]; ok && !e.isAssignable(up, src) {
		return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to \"%s\"", src, up)
	}

	lower, hasLower := cs.lower[key]
	switch {
	case !hasLower:
		cs.lower[key] = src
		cs.exact[key] = flags&assignInvariant != 0
	case types.IsAnyOrUnknown(lower):
	case flags&assignInvariant != 0:
		if cs.exact[key] {
			if !e.sameType(lower, src) {
				return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to \"%s\"", src, lower)
			}
			return true
		}
		if !e.isAssignable(src, lower) {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to \"%s\"", lower, src)
		}
		cs.lower[key] = src
		cs.exact[key] = true
	case cs.exact[key]:
		if !e.isAssignable(lower, src) {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to \"%s\"", src, lower)
		}
	case e.isAssignable(lower, src):
	case e.isAssignable(src, lower):
		cs.lower[key] = src
	default:
		widened := types.Union(lower, src)
		if decl.Bound != nil && !decl.IsSelf && !e.isAssignable(decl.Bound, widened) {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to upper bound \"%s\" for type variable \"%s\"", widened, decl.Bound, decl)
		}
		cs.lower[key] = widened
	}
	return true
}

// assignConstrained picks the first constraint that accepts src. A source
// that spans several constraints fails.
func (e *Evaluator) assignConstrained(tv *types.TypeVarType, src types.Type, cs *constraints) bool {
	key := tv.Key()
	var pick types.Type
	if stv, ok := src.(*types.TypeVarType); ok && sameConstraints(stv, tv) {
		pick = stv
	} else {
		for _, c := range tv.Constraints {
			if e.isAssignable(c, src) {
				pick = c
				break
			}
		}
	}
	if pick == nil {
		return cs.fail(ConstraintSetConflict, "Type \"%s\" is not assignable to constrained type variable \"%s\"", src, tv)
	}
	if prev, ok := cs.lower[key]; ok && !types.IsAnyOrUnknown(prev) {
		switch {
		case prev.Eq(pick):
		case e.isAssignable(prev, pick):
			return true
		case e.isAssignable(pick, prev):
		default:
			return cs.fail(ConstraintSetConflict, "Type \"%s\" is not assignable to constrained type variable \"%s\" already solved as \"%s\"", src, tv, prev)
		}
	}
	cs.lower[key] = pick
	cs.exact[key] = true
	return true
}

func sameConstraints(a, b *types.TypeVarType) bool {
	if len(a.Constraints) != len(b.Constraints) {
		return false
	}
	for i := range a.Constraints {
		if !a.Constraints[i].Eq(b.Constraints[i]) {
			return false
		}
	}
	return true
}

// assignParamSpec records a signature as the value of a ParamSpec.
func (e *Evaluator) assignParamSpec(tv *types.TypeVarType, src types.Type, cs *constraints) bool {
	fn, ok := src.(*types.FunctionType)
	if !ok {
		if stv, ok := src.(*types.TypeVarType); ok && stv.Kind == types.TypeVarParamSpec {
			fn = &types.FunctionType{ParamSpec: stv, Flags: types.FuncParamSpecValue}
		} else {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is not a parameter list", src)
		}
	}
	key := tv.Key()
	if prev, ok := cs.lower[key]; ok {
		pf, isFn := prev.(*types.FunctionType)
		if isFn && !e.isAssignable(pf, fn) && !e.isAssignable(fn, pf) {
			return cs.fail(AssignabilityFailure, "Parameters \"%s\" are incompatible with \"%s\"", fn, pf)
		}
		return true
	}
	value := fn.Clone()
	value.Flags |= types.FuncParamSpecValue
	value.Return = nil
	value.BoundTo = nil
	value.Name = ""
	cs.lower[key] = value
	cs.exact[key] = true
	return true
}

// assignPacked records the elements matched by *Ts.
func (e *Evaluator) assignPacked(tv *types.TypeVarType, src types.Type, cs *constraints) bool {
	tup, ok := src.(*types.TupleType)
	if !ok {
		return cs.fail(AssignabilityFailure, "Type \"%s\" is not a tuple", src)
	}
	elems := tup.Elems
	if !cs.retainLiterals {
		elems = make([]types.TupleElem, len(tup.Elems))
		for i, el := range tup.Elems {
			elems[i] = types.TupleElem{Type: types.StripLiteral(el.Type), Unbounded: el.Unbounded}
		}
	}
	packed := &types.TupleType{Elems: elems}
	key := tv.Key()
	if prev, ok := cs.lower[key]; ok {
		if !e.sameType(prev, packed) {
			return cs.fail(AssignabilityFailure, "Type \"%s\" is incompatible with \"%s\"", packed, prev)
		}
		return true
	}
	cs.lower[key] = packed
	cs.exact[key] = true
	return true
}

// assignFromTypeVar records dest as an upper bound of the solvable src
// variable. In invariant position the variable is pinned to dest.
func (e *Evaluator) assignFromTypeVar(dest types.Type, tv *types.TypeVarType, cs *constraints, flags assignFlags) bool {
	key := tv.Key()
	if tv.Instantiable {
		c, ok := dest.(*types.ClassType)
		if !ok {
			return e.isAssignable(dest, e.builtinInstance("type"))
		}
		dest = types.ToInstance(c)
	}
	if flags&assignInvariant != 0 {
		return e.assignToTypeVar(tv.Base(), dest, cs, flags)
	}
	if lower, ok := cs.lower[key]; ok && !e.isAssignable(dest, lower) {
		return cs.fail(AssignabilityFailure, "Type \"%s\" is not assignable to \"%s\"", lower, dest)
	}
	up, ok := cs.upper[key]
	switch {
	case !ok:
		cs.upper[key] = dest
	case e.isAssignable(up, dest):
		cs.upper[key] = dest
	case e.isAssignable(dest, up):
	default:
		return cs.fail(AssignabilityFailure, "Type \"%s\" is incompatible with \"%s\"", dest, up)
	}
	return true
}

// sameType reports mutual assignability.
func (e *Evaluator) sameType(a, b types.Type) bool {
	if a.Eq(b) {
		return true
	}
	return e.isAssignable(a, b) && e.isAssignable(b, a)
}
