package checker

import (
	"github.com/vito/typhon/pkg/types"
)

type assignFlags int

const (
	// assignInvariant is set while comparing type arguments of invariant
	// parameters.
	assignInvariant assignFlags = 1 << iota
)

// maxAssignDepth bounds the recursion through nested and recursive types.
const maxAssignDepth = 48

// isAssignable reports whether a value of type src may be used where dest
// is expected.
func (e *Evaluator) isAssignable(dest, src types.Type) bool {
	return e.assign(dest, src, nil, 0, 0)
}

// assignType is isAssignable while solving the variables in cs. Bounds
// recorded before a failure are left in place; callers that retry restore
// a clone.
func (e *Evaluator) assignType(dest, src types.Type, cs *constraints) bool {
	return e.assign(dest, src, cs, 0, 0)
}

func (e *Evaluator) assign(dest, src types.Type, cs *constraints, flags assignFlags, depth int) bool {
	if depth > maxAssignDepth {
		return true
	}
	depth++

	if tv, ok := dest.(*types.TypeVarType); ok && cs.solvable(tv) && tv.Access == types.AccessNone {
		return e.assignToTypeVar(tv, src, cs, flags)
	}
	if tv, ok := src.(*types.TypeVarType); ok && cs.solvable(tv) && tv.Access == types.AccessNone {
		if _, destTV := dest.(*types.TypeVarType); !destTV {
			return e.assignFromTypeVar(dest, tv, cs, flags)
		}
	}

	if dest.Eq(src) {
		return true
	}
	if types.IsAnyOrUnknown(src) {
		e.defaultUnsolved(dest, src, cs)
		return true
	}
	if types.IsAnyOrUnknown(dest) {
		return true
	}

	if _, ok := dest.(*types.AliasType); ok {
		return e.assign(types.Unalias(dest), src, cs, flags, depth)
	}
	if _, ok := src.(*types.AliasType); ok {
		return e.assign(dest, types.Unalias(src), cs, flags, depth)
	}

	if types.IsNever(src) {
		return true
	}
	if types.IsNever(dest) {
		return false
	}

	if su, ok := src.(*types.UnionType); ok {
		return e.assignFromUnion(dest, su, cs, flags, depth)
	}
	if du, ok := dest.(*types.UnionType); ok {
		return e.assignToUnion(du, src, cs, flags, depth)
	}

	if stv, ok := src.(*types.TypeVarType); ok {
		return e.assignFromTypeVarBound(dest, stv, cs, flags, depth)
	}
	if _, ok := dest.(*types.TypeVarType); ok {
		return false
	}

	if types.IsUnbound(src) {
		return true
	}

	switch d := dest.(type) {
	case *types.NoneType:
		return types.IsNone(src)
	case *types.ModuleType:
		return false
	case *types.FunctionType:
		return e.assignToCallable(d, src, cs, depth)
	case *types.OverloadedType:
		for _, ov := range d.Overloads {
			if !e.assign(ov, src, cs, 0, depth) {
				return false
			}
		}
		return true
	case *types.ClassType:
		return e.assignToClass(d, src, cs, flags, depth)
	case *types.TypeFormType:
		if s, ok := src.(*types.TypeFormType); ok {
			return e.assign(d.Inner, s.Inner, cs, flags, depth)
		}
		if s, ok := src.(*types.ClassType); ok {
			return e.assign(d.Inner, types.ToInstance(s), cs, flags, depth)
		}
		return false
	}
	return e.assignToInstance(dest, src, cs, flags, depth)
}

// defaultUnsolved lets Any flow into variables that appear in dest.
func (e *Evaluator) defaultUnsolved(dest, src types.Type, cs *constraints) {
	if cs.empty() {
		return
	}
	for _, tv := range dest.FreeTypeVars() {
		if cs.solvable(tv) {
			if _, ok := cs.lower[tv.Key()]; !ok {
				cs.lower[tv.Key()] = src
			}
		}
	}
}

func (e *Evaluator) assignFromUnion(dest types.Type, src *types.UnionType, cs *constraints, flags assignFlags, depth int) bool {
	// A dest union that is exactly one variable plus members also in src
	// solves the variable with the rest.
	if du, ok := dest.(*types.UnionType); ok && cs != nil {
		var tv *types.TypeVarType
		for _, m := range du.Members {
			if v, ok := m.(*types.TypeVarType); ok && cs.solvable(v) {
				if tv != nil {
					tv = nil
					break
				}
				tv = v
			}
		}
		if tv != nil {
			var rest []types.Type
			for _, m := range src.Members {
				if !containsEq(du, m) {
					rest = append(rest, m)
				}
			}
			if len(rest) == 0 {
				return true
			}
			if len(rest) < len(src.Members) {
				return e.assign(tv, types.Union(rest...), cs, flags, depth)
			}
		}
	}
	for _, m := range src.Members {
		if !e.assign(dest, m, cs, flags, depth) {
			return false
		}
	}
	return true
}

func containsEq(u *types.UnionType, t types.Type) bool {
	for _, m := range u.Members {
		if m.Eq(t) {
			return true
		}
	}
	return false
}

// assignToUnion accepts src when some member of dest does. Members that
// need no solving are tried first so that variables are only bound when
// nothing else fits.
func (e *Evaluator) assignToUnion(dest *types.UnionType, src types.Type, cs *constraints, flags assignFlags, depth int) bool {
	if containsEq(dest, src) {
		return true
	}
	if stv, ok := src.(*types.TypeVarType); ok && !cs.solvable(stv) {
		return e.assignFromTypeVarBound(dest, stv, cs, flags, depth)
	}
	if lit, ok := src.(*types.LiteralType); ok {
		if containsEq(dest, types.StripLiteral(lit)) {
			return true
		}
	}
	var generic []types.Type
	for _, m := range dest.Members {
		if !cs.empty() && hasSolvable(m, cs) {
			generic = append(generic, m)
			continue
		}
		if e.assign(m, src, nil, flags, depth) {
			return true
		}
	}
	for _, m := range generic {
		saved := cs.clone()
		if e.assign(m, src, cs, flags, depth) {
			return true
		}
		cs.restore(saved)
	}
	return false
}

func hasSolvable(t types.Type, cs *constraints) bool {
	for _, tv := range t.FreeTypeVars() {
		if cs.solvable(tv) {
			return true
		}
	}
	return false
}

// assignFromTypeVarBound compares a type variable that is not being
// solved through its upper bound. Every constraint must be accepted.
func (e *Evaluator) assignFromTypeVarBound(dest types.Type, tv *types.TypeVarType, cs *constraints, flags assignFlags, depth int) bool {
	if du, ok := dest.(*types.UnionType); ok && containsEq(du, tv) {
		return true
	}
	if tv.Access != types.AccessNone {
		switch tv.Access {
		case types.AccessArgs:
			return e.assign(dest, e.homTuple(e.objectType()), cs, flags, depth)
		default:
			return e.assign(dest, e.builtinInstance("dict", e.strType(), e.objectType()), cs, flags, depth)
		}
	}
	if tv.Unpacked || tv.Kind != types.TypeVarPlain {
		return false
	}
	wrap := func(t types.Type) types.Type {
		if tv.Instantiable {
			if c := types.ToClassObject(t); c != nil {
				return c
			}
			return types.Unknown
		}
		return t
	}
	if len(tv.Constraints) > 0 {
		for _, c := range tv.Constraints {
			if !e.assign(dest, wrap(c), cs, flags, depth) {
				return false
			}
		}
		return true
	}
	return e.assign(dest, wrap(e.upperBound(tv)), cs, flags, depth)
}

// assignToClass handles type[X] destinations.
func (e *Evaluator) assignToClass(dest *types.ClassType, src types.Type, cs *constraints, flags assignFlags, depth int) bool {
	if dest.Info.Is(types.ClassSpecialForm) {
		s, ok := src.(*types.ClassType)
		return ok && types.SameClass(s.Info, dest.Info)
	}
	switch s := src.(type) {
	case *types.ClassType:
		if s.Info.Is(types.ClassSpecialForm) {
			return false
		}
		return e.assign(types.ToInstance(dest), types.ToInstance(s), cs, flags, depth)
	case *types.InstanceType:
		if isBuiltin(s.Info, "type") {
			return isBuiltin(dest.Info, "object")
		}
	}
	return false
}

// assignToInstance is the nominal and structural comparison of instance
// types.
func (e *Evaluator) assignToInstance(dest, src types.Type, cs *constraints, flags assignFlags, depth int) bool {
	di := types.InfoOf(dest)
	if di == nil {
		return false
	}
	if isBuiltin(di, "object") {
		return true
	}

	if dl, ok := dest.(*types.LiteralType); ok {
		sl, ok := src.(*types.LiteralType)
		return ok && dl.Eq(sl)
	}

	switch s := src.(type) {
	case *types.NoneType:
		if di.Is(types.ClassProtocol) {
			if ni := e.builtinInfo("NoneType"); ni != nil {
				return e.assignProtocol(dest, &types.InstanceType{Info: ni}, cs, flags, depth)
			}
		}
		return false
	case *types.ModuleType:
		if isTypingClass(di, "ModuleType") || (di.Module == "types" && di.Name == "ModuleType") {
			return true
		}
		if di.Is(types.ClassProtocol) {
			return e.assignProtocol(dest, src, cs, flags, depth)
		}
		return false
	case *types.FunctionType, *types.OverloadedType:
		if isBuiltin(di, "function") {
			return true
		}
		if di.Is(types.ClassProtocol) {
			return e.assignProtocol(dest, src, cs, flags, depth)
		}
		return false
	case *types.ClassType:
		if isBuiltin(di, "type") {
			if inst, ok := dest.(*types.InstanceType); ok && len(inst.Args) > 0 {
				return e.assign(inst.Args[0], types.ToInstance(s), cs, flags, depth)
			}
			return true
		}
		if di.Is(types.ClassProtocol) {
			return e.assignProtocol(dest, src, cs, flags, depth)
		}
		meta := s.Info.Metaclass
		if meta == nil {
			meta = e.builtinInstance("type")
		}
		return e.assign(dest, meta, cs, flags, depth)
	case *types.TypeFormType:
		return isBuiltin(di, "type")
	}

	if dt, ok := dest.(*types.TupleType); ok {
		if st, ok := src.(*types.TupleType); ok {
			return e.assignTuple(dt, st, cs, flags, depth)
		}
	}
	if dt, ok := dest.(*types.TypedDictType); ok {
		st, ok := src.(*types.TypedDictType)
		if !ok {
			return false
		}
		return e.assignTypedDict(dt, st, cs, depth)
	}

	si := types.InfoOf(src)
	if si == nil {
		return false
	}
	if !types.DerivesFrom(si, di) {
		if e.promotes(di, si) {
			return true
		}
		if di.Is(types.ClassProtocol) {
			return e.assignProtocol(dest, src, cs, flags, depth)
		}
		return hasUnknownBase(si)
	}

	dinst, ok := asInstance(dest)
	if !ok {
		return false
	}
	if len(dinst.Args) == 0 {
		return true
	}
	sinst, ok := upcast(src, di)
	if !ok {
		return hasUnknownBase(si)
	}
	return e.assignArgs(di, dinst.Args, sinst.Args, cs, depth)
}

func hasUnknownBase(info *types.ClassInfo) bool {
	return info.Is(types.ClassUnknownBase)
}

// promotes reports the implicit numeric promotions: int to float, and int
// or float to complex.
func (e *Evaluator) promotes(dest, src *types.ClassInfo) bool {
	if dest.Module != "builtins" || src.Module != "builtins" {
		return false
	}
	switch dest.Name {
	case "float":
		return types.DerivesFrom(src, e.builtinInfo("int"))
	case "complex":
		return types.DerivesFrom(src, e.builtinInfo("int")) || types.DerivesFrom(src, e.builtinInfo("float"))
	case "bytes":
		return src.Name == "bytearray" || src.Name == "memoryview"
	}
	return false
}

// assignArgs compares the type arguments of two specializations of a class
// according to the variance of each parameter.
func (e *Evaluator) assignArgs(info *types.ClassInfo, dest, src []types.Type, cs *constraints, depth int) bool {
	for i, tp := range info.TypeParams {
		if i >= len(dest) || i >= len(src) {
			break
		}
		d, s := dest[i], src[i]
		if s == nil || d == nil {
			continue
		}
		switch tp.Kind {
		case types.TypeVarTuple:
			dt, dok := d.(*types.TupleType)
			st, sok := s.(*types.TupleType)
			if dok && sok {
				if !e.assignTuple(dt, st, cs, assignInvariant, depth) {
					return false
				}
				continue
			}
			if !e.assign(d, s, cs, assignInvariant, depth) {
				return false
			}
			continue
		case types.TypeVarParamSpec:
			if !e.assign(d, s, cs, 0, depth) {
				return false
			}
			continue
		}
		switch e.varianceOf(info, i) {
		case types.Covariant:
			if !e.assign(d, s, cs, 0, depth) {
				return false
			}
		case types.Contravariant:
			if !e.assign(s, d, cs, 0, depth) {
				return false
			}
		default:
			if !e.assignInvariantArg(d, s, cs, depth) {
				return false
			}
		}
	}
	return true
}

func (e *Evaluator) assignInvariantArg(dest, src types.Type, cs *constraints, depth int) bool {
	if types.IsAnyOrUnknown(dest) || types.IsAnyOrUnknown(src) {
		e.defaultUnsolved(dest, src, cs)
		return true
	}
	if !e.assign(dest, src, cs, assignInvariant, depth) {
		return false
	}
	if !cs.empty() {
		dest = cs.solved().Apply(dest)
		if hasSolvable(dest, cs) {
			return true
		}
	}
	return e.assign(src, dest, nil, assignInvariant, depth)
}

// assignTuple compares tuple shapes element by element. An unbounded or
// *Ts element in dest absorbs the middle of src.
func (e *Evaluator) assignTuple(dest, src *types.TupleType, cs *constraints, flags assignFlags, depth int) bool {
	if dest.Info != nil && src.Info != nil && !types.DerivesFrom(src.Info, dest.Info) {
		return false
	}
	elemFlags := flags
	du := dest.UnboundedIndex()
	su := src.UnboundedIndex()

	if du < 0 {
		if su >= 0 {
			if len(src.Elems) == 1 && types.IsAnyOrUnknown(src.Elems[0].Type) {
				return true
			}
			return false
		}
		if len(dest.Elems) != len(src.Elems) {
			return false
		}
		for i := range dest.Elems {
			if !e.assign(dest.Elems[i].Type, src.Elems[i].Type, cs, elemFlags, depth) {
				return false
			}
		}
		return true
	}

	prefix := du
	suffix := len(dest.Elems) - du - 1
	if len(src.Elems) < prefix+suffix {
		if !(su >= 0 && len(src.Elems) == 1 && types.IsAnyOrUnknown(src.Elems[0].Type)) {
			return false
		}
		return true
	}
	if su >= 0 && (su < prefix || len(src.Elems)-su-1 < suffix) {
		return false
	}
	for i := 0; i < prefix; i++ {
		if !e.assign(dest.Elems[i].Type, src.Elems[i].Type, cs, elemFlags, depth) {
			return false
		}
	}
	for i := 0; i < suffix; i++ {
		d := dest.Elems[len(dest.Elems)-1-i]
		s := src.Elems[len(src.Elems)-1-i]
		if !e.assign(d.Type, s.Type, cs, elemFlags, depth) {
			return false
		}
	}
	middle := src.Elems[prefix : len(src.Elems)-suffix]
	de := dest.Elems[du]
	if tv, ok := de.Type.(*types.TypeVarType); ok && tv.Unpacked {
		packed := &types.TupleType{Elems: middle}
		if cs.solvable(tv) {
			return e.assignToTypeVar(tv.Base(), packed, cs, 0)
		}
		return len(middle) == 1 && middle[0].Type.Eq(tv)
	}
	for _, m := range middle {
		if tv, ok := m.Type.(*types.TypeVarType); ok && tv.Unpacked {
			if !types.IsAnyOrUnknown(de.Type) && !isBuiltinInstance(de.Type, "object") {
				return false
			}
			continue
		}
		if !e.assign(de.Type, m.Type, cs, elemFlags, depth) {
			return false
		}
	}
	return true
}

func isBuiltinInstance(t types.Type, name string) bool {
	inst, ok := t.(*types.InstanceType)
	return ok && isBuiltin(inst.Info, name)
}

// assignTypedDict compares TypedDicts structurally: every key of dest must
// exist in src with the same requiredness, and mutable entries must match
// exactly.
func (e *Evaluator) assignTypedDict(dest, src *types.TypedDictType, cs *constraints, depth int) bool {
	if types.DerivesFrom(src.Info, dest.Info) && len(dest.Args) == 0 {
		return true
	}
	for _, k := range dest.Info.TypedDictKeys {
		de, _ := dest.Entry(k)
		se, ok := src.Entry(k)
		if !ok {
			return false
		}
		if de.Required != se.Required && !(de.ReadOnly && se.Required) {
			return false
		}
		if de.ReadOnly {
			if !e.assign(de.Type, se.Type, cs, 0, depth) {
				return false
			}
			continue
		}
		if se.ReadOnly || !e.assignInvariantArg(de.Type, se.Type, cs, depth) {
			return false
		}
	}
	return true
}

// assignToCallable compares src against a callable signature.
func (e *Evaluator) assignToCallable(dest *types.FunctionType, src types.Type, cs *constraints, depth int) bool {
	switch s := src.(type) {
	case *types.FunctionType:
		return e.assignSignature(dest, s, cs, depth)
	case *types.OverloadedType:
		for _, ov := range s.Overloads {
			saved := cs.clone()
			if e.assignSignature(dest, ov, cs, depth) {
				return true
			}
			cs.restore(saved)
		}
		return false
	case *types.ClassType:
		ctor := e.constructorSignature(nil, s)
		if ctor == nil {
			return false
		}
		return e.assign(dest, ctor, cs, 0, depth)
	case *types.NoneType, *types.ModuleType, *types.TypeFormType:
		return false
	}
	call := e.silentMemberOf(nil, src, "__call__")
	if call == nil || types.IsAnyOrUnknown(call) {
		return call != nil
	}
	return e.assign(dest, call, cs, 0, depth)
}

// assignSignature checks that src can be called wherever dest can:
// parameters are contravariant and the return covariant.
func (e *Evaluator) assignSignature(dest, src *types.FunctionType, cs *constraints, depth int) bool {
	src = e.withInferredReturn(src)
	dret := dest.Return
	if dret == nil {
		dret = types.Unknown
	}
	if dest.Guard != nil && src.Guard == nil {
		return false
	}
	if dest.Guard != nil {
		if dest.Guard.Kind != src.Guard.Kind || !e.assign(dest.Guard.Type, src.Guard.Type, cs, 0, depth) {
			return false
		}
	} else if !e.assign(dret, src.Return, cs, 0, depth) {
		return false
	}
	if src.Is(types.FuncGradual) && src.ParamSpec == nil && onlyVariadicParams(src.Params) {
		e.solveParamSpecFrom(dest, src, 0, cs)
		return true
	}
	if dest.Is(types.FuncGradual) && dest.ParamSpec == nil && onlyVariadicParams(dest.Params) {
		return true
	}
	return e.assignParams(dest, src, cs, depth)
}

func onlyVariadicParams(params []types.Param) bool {
	for _, p := range params {
		if p.Kind != types.ParamVarPositional && p.Kind != types.ParamVarKeyword {
			return false
		}
	}
	return true
}

// explicitParams drops the *args: P.args, **kwargs: P.kwargs pair.
func explicitParams(fn *types.FunctionType) []types.Param {
	if fn.ParamSpec == nil {
		return fn.Params
	}
	out := make([]types.Param, 0, len(fn.Params))
	for _, p := range fn.Params {
		if tv, ok := p.Type.(*types.TypeVarType); ok && tv.Access != types.AccessNone {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (e *Evaluator) assignParams(dest, src *types.FunctionType, cs *constraints, depth int) bool {
	dparams := explicitParams(dest)
	sparams := explicitParams(src)

	var dpos, dkw []types.Param
	var dargs, dkwargs *types.Param
	for i := range dparams {
		p := dparams[i]
		switch p.Kind {
		case types.ParamPositionalOnly, types.ParamPositionalOrKeyword:
			dpos = append(dpos, p)
		case types.ParamKeywordOnly:
			dkw = append(dkw, p)
		case types.ParamVarPositional:
			dargs = &dparams[i]
		case types.ParamVarKeyword:
			dkwargs = &dparams[i]
		}
	}
	var sargs, skwargs *types.Param
	var spos []types.Param
	for i := range sparams {
		p := sparams[i]
		switch p.Kind {
		case types.ParamPositionalOnly, types.ParamPositionalOrKeyword:
			spos = append(spos, p)
		case types.ParamVarPositional:
			sargs = &sparams[i]
		case types.ParamVarKeyword:
			skwargs = &sparams[i]
		}
	}

	// With a ParamSpec in dest, the parameters beyond dest's own are the
	// ParamSpec's value.
	if dest.ParamSpec != nil && cs.solvable(dest.ParamSpec) {
		for i, dp := range dpos {
			if i >= len(spos) {
				if sargs == nil {
					return false
				}
				if !e.assign(paramType(*sargs), paramType(dp), cs, 0, depth) {
					return false
				}
				continue
			}
			if !e.assign(paramType(spos[i]), paramType(dp), cs, 0, depth) {
				return false
			}
		}
		return e.solveParamSpecFrom(dest, src, len(dpos), cs)
	}
	if dest.ParamSpec != nil {
		if src.ParamSpec == nil || src.ParamSpec.Key() != dest.ParamSpec.Key() {
			if !(src.Is(types.FuncGradual) && onlyVariadicParams(sparams)) {
				return false
			}
		}
	}

	used := map[string]bool{}
	for i, dp := range dpos {
		var sp types.Param
		switch {
		case i < len(spos):
			sp = spos[i]
			if dp.Kind == types.ParamPositionalOrKeyword && sp.Kind == types.ParamPositionalOrKeyword &&
				dp.Name != sp.Name && !isPrivateParam(dp.Name) && !src.Is(types.FuncLambda) {
				return false
			}
		case sargs != nil:
			sp = *sargs
		default:
			return false
		}
		if dp.HasDefault && !sp.HasDefault && sp.Kind != types.ParamVarPositional {
			return false
		}
		used[sp.Name] = true
		if !e.assign(paramType(sp), paramType(dp), cs, 0, depth) {
			return false
		}
	}
	for _, sp := range spos[min(len(dpos), len(spos)):] {
		if sp.HasDefault {
			continue
		}
		if sp.Kind == types.ParamPositionalOrKeyword {
			if kw := findParam(dkw, sp.Name); kw != nil {
				used[sp.Name] = true
				if !e.assign(paramType(sp), paramType(*kw), cs, 0, depth) {
					return false
				}
				continue
			}
			if dkwargs != nil {
				continue
			}
		}
		if dargs != nil {
			if !e.assign(paramType(sp), paramType(*dargs), cs, 0, depth) {
				return false
			}
			continue
		}
		return false
	}
	if dargs != nil {
		if sargs == nil {
			return false
		}
		if !e.assign(paramType(*sargs), paramType(*dargs), cs, 0, depth) {
			return false
		}
	}
	for _, dk := range dkw {
		if used[dk.Name] {
			continue
		}
		sp := findKeywordParam(sparams, dk.Name)
		if sp == nil {
			sp = skwargs
		}
		if sp == nil {
			return false
		}
		if !e.assign(paramType(*sp), paramType(dk), cs, 0, depth) {
			return false
		}
	}
	for _, sp := range sparams {
		if sp.Kind == types.ParamKeywordOnly && !sp.HasDefault && findParam(dkw, sp.Name) == nil && dkwargs == nil {
			return false
		}
	}
	if dkwargs != nil {
		if skwargs == nil {
			return false
		}
		if !e.assign(paramType(*skwargs), paramType(*dkwargs), cs, 0, depth) {
			return false
		}
	}
	return true
}

// solveParamSpecFrom binds dest's ParamSpec to the parameters of src
// starting at skip.
func (e *Evaluator) solveParamSpecFrom(dest, src *types.FunctionType, skip int, cs *constraints) bool {
	if dest.ParamSpec == nil || !cs.solvable(dest.ParamSpec) {
		return true
	}
	params := explicitParams(src)
	var rest []types.Param
	n := 0
	for _, p := range params {
		if p.Positional() && n < skip {
			n++
			continue
		}
		rest = append(rest, p)
	}
	value := &types.FunctionType{
		Params:    rest,
		ParamSpec: src.ParamSpec,
		Flags:     types.FuncParamSpecValue | (src.Flags & types.FuncGradual),
	}
	if src.ParamSpec != nil {
		value.Params = append(value.Params,
			types.Param{Name: "args", Kind: types.ParamVarPositional, Type: src.ParamSpec.WithAccess(types.AccessArgs)},
			types.Param{Name: "kwargs", Kind: types.ParamVarKeyword, Type: src.ParamSpec.WithAccess(types.AccessKwargs)},
		)
	}
	return e.assignToTypeVar(dest.ParamSpec.Base(), value, cs, 0)
}

func paramType(p types.Param) types.Type {
	if p.Type == nil {
		return types.Unknown
	}
	return p.Type
}

func isPrivateParam(name string) bool {
	return len(name) > 2 && name[0] == '_' && name[1] == '_' && !(name[len(name)-1] == '_' && name[len(name)-2] == '_')
}

func findParam(params []types.Param, name string) *types.Param {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}

func findKeywordParam(params []types.Param, name string) *types.Param {
	for i := range params {
		p := params[i]
		if p.Name == name && (p.Kind == types.ParamPositionalOrKeyword || p.Kind == types.ParamKeywordOnly) {
			return &params[i]
		}
	}
	return nil
}
