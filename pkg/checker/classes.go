package checker

import (
	"slices"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// classField is a field of a dataclass or NamedTuple, in declaration order.
type classField struct {
	name       string
	typ        types.Type
	hasDefault bool
	kwOnly     bool
	init       bool
	node       pyast.Node
}

// dataclassOptions are the arguments given to @dataclass.
type dataclassOptions struct {
	init   bool
	eq     bool
	order  bool
	frozen bool
	kwOnly bool
}

func defaultDataclassOptions() *dataclassOptions {
	return &dataclassOptions{init: true, eq: true}
}

// classInfo returns the class a class statement defines. The info is
// registered before its bases are evaluated, flagged ClassPartial, so
// that the bases and body can refer to the class being built.
func (e *Evaluator) classInfo(f *SourceFile, cd *pyast.ClassDef) *types.ClassInfo {
	p := e.part(f)
	if info, ok := p.classes[cd.ID()]; ok {
		return info
	}
	info := &types.ClassInfo{
		Name:     cd.Name,
		FullName: qualifiedName(f, cd, cd.Name),
		Module:   f.Module,
		Decl:     f.declRef(cd),
		Flags:    types.ClassPartial,
	}
	if f.Module == "builtins" {
		info.Flags |= types.ClassBuiltin
	}
	p.classes[cd.ID()] = info
	e.outsideSpeculation(func() {
		e.guard(nodeFrame{f.Path, cd.ID(), "class"}, func() types.Type {
			e.buildClass(f, cd, info)
			return types.Unknown
		})
	})
	info.Flags &^= types.ClassPartial
	e.outsideSpeculation(func() {
		e.guard(nodeFrame{f.Path, cd.ID(), "classfields"}, func() types.Type {
			e.buildClassFields(f, cd, info)
			return types.Unknown
		})
	})
	return info
}

// classRef short-circuits references to a class whose statement is
// being evaluated or has no decorators: the class object is known without
// evaluating the symbol.
func (e *Evaluator) classRef(sym *binder.Symbol) types.Type {
	typed := sym.TypedDecls()
	if len(typed) == 0 {
		return nil
	}
	d := typed[len(typed)-1]
	if d.Kind != binder.DeclClass {
		return nil
	}
	f := e.prog.files[d.Path]
	cd, ok := d.Node.(*pyast.ClassDef)
	if f == nil || !ok {
		return nil
	}
	info, ok := e.part(f).classes[cd.ID()]
	if !ok {
		return nil
	}
	if len(cd.Decorators) == 0 || info.Is(types.ClassPartial) || e.inProgress(nodeFrame{f.Path, cd.ID(), "classfields"}) {
		return &types.ClassType{Info: info}
	}
	return nil
}

// qualifiedName is the dotted name of a class or function including the
// classes and functions it is nested in.
func qualifiedName(f *SourceFile, n pyast.Node, name string) string {
	parts := []string{name}
	for cur := f.AST.Parent(n); cur != nil; cur = f.AST.Parent(cur) {
		switch c := cur.(type) {
		case *pyast.ClassDef:
			parts = append(parts, c.Name)
		case *pyast.FunctionDef:
			parts = append(parts, c.Name)
		}
	}
	slices.Reverse(parts)
	return f.Module + "." + strings.Join(parts, ".")
}

// classNode returns the statement and file that declare a class.
func (e *Evaluator) classNode(info *types.ClassInfo) (*SourceFile, *pyast.ClassDef) {
	if info == nil || info.Decl.IsZero() {
		return nil, nil
	}
	f := e.prog.files[info.Decl.File]
	if f == nil {
		return nil, nil
	}
	cd, _ := f.AST.Node(pyast.NodeID(info.Decl.Node)).(*pyast.ClassDef)
	if cd == nil {
		return nil, nil
	}
	return f, cd
}

// classScope returns the scope of a class body.
func (e *Evaluator) classScope(info *types.ClassInfo) (*SourceFile, *binder.Scope) {
	f, cd := e.classNode(info)
	if cd == nil {
		return nil, nil
	}
	return f, e.bound(f).ScopeFor(cd)
}

// classBases holds what the base list of a class statement contributes.
type classBases struct {
	generic    []*types.TypeVarType
	hasGeneric bool
	protocol   []*types.TypeVarType
	metaclass  types.Type
}

func (e *Evaluator) buildClass(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) {
	cb := &classBases{}
	for _, a := range cd.Bases {
		switch {
		case a.Star != 0:
			e.exprType(f, a.Value, nil)
		case a.Name == "metaclass":
			cb.metaclass = e.exprType(f, a.Value, nil)
		case a.Name == "total":
		case a.Name != "":
			e.exprType(f, a.Value, nil)
		default:
			e.addBase(f, a.Value, info, cb)
		}
	}

	e.bindClassTypeParams(f, cd, info, cb)

	if len(info.Bases) == 0 && !isBuiltin(info, "object") {
		if obj := e.builtinInfo("object"); obj != nil {
			info.Bases = []types.Type{&types.InstanceType{Info: obj}}
		}
	}
	e.computeMRO(f, cd, info)

	info.Metaclass = e.classMetaclass(f, cd, info, cb.metaclass)
	if mc := types.InfoOf(info.Metaclass); mc != nil && derivesFromName(mc, "enum.EnumMeta") {
		info.Flags |= types.ClassEnum
	}
	for _, b := range info.Bases {
		if bi := types.InfoOf(b); bi != nil {
			if bi.Is(types.ClassTypedDict) {
				info.Flags |= types.ClassTypedDict
			}
			if bi.Is(types.ClassNamedTuple) || isTypingClass(bi, "NamedTuple") {
				info.Flags |= types.ClassNamedTuple
			}
		}
	}

	for _, d := range cd.Decorators {
		switch e.decoratorName(f, d) {
		case "typing.final":
			info.Flags |= types.ClassFinal
		case "typing.runtime_checkable":
			info.Flags |= types.ClassRuntimeCheckable
		case "dataclasses.dataclass":
			info.Flags |= types.ClassDataclass
			e.part(f).dataclasses[info] = e.dataclassArgs(f, d)
		}
	}
}

// addBase evaluates one positional entry of a class's base list.
func (e *Evaluator) addBase(f *SourceFile, x pyast.Expr, info *types.ClassInfo, cb *classBases) {
	v := e.exprType(f, x, nil)
	if fm, ok := v.(*types.TypeFormType); ok {
		if a, ok := fm.Inner.(*types.AliasType); ok {
			v = aliasValue(e.expandAlias(a))
		}
	}
	switch v := v.(type) {
	case *types.ClassType:
		if v.Info.Is(types.ClassSpecialForm) {
			switch v.Info.SpecialForm {
			case "Generic":
				if v.Args == nil {
					e.report(f, x, InvalidTypeForm, "\"Generic\" requires at least one type argument")
				}
				if cb.hasGeneric {
					e.report(f, x, InvalidDeclaration, "\"Generic\" cannot appear more than once in base classes")
				}
				cb.hasGeneric = true
				cb.generic = typeVarArgs(v.Args)
			case "Protocol":
				info.Flags |= types.ClassProtocol
				cb.protocol = typeVarArgs(v.Args)
			case "TypedDict":
				info.Flags |= types.ClassTypedDict
				if td := e.typingInfo("_TypedDict"); td != nil {
					info.Bases = append(info.Bases, &types.InstanceType{Info: td})
				}
			case "Any":
				info.Flags |= types.ClassUnknownBase
				info.Bases = append(info.Bases, types.Any)
			default:
				e.report(f, x, InvalidDeclaration, "\"%s\" is not a valid base class", v.Info.SpecialForm)
				info.Flags |= types.ClassUnknownBase
				info.Bases = append(info.Bases, types.Unknown)
			}
			return
		}
		if v.Info.Is(types.ClassFinal) {
			e.report(f, x, InvalidDeclaration, "Base class \"%s\" is marked final and cannot be subclassed", v.Info.Name)
		}
		var base types.Type
		switch {
		case v.Tuple != nil:
			base = v.Tuple
			info.TupleElems = v.Tuple.Elems
		case isBuiltin(v.Info, "tuple"):
			tup := e.homTuple(types.Unknown)
			base = tup
			info.TupleElems = tup.Elems
		case v.Args != nil:
			base = types.ToInstance(v)
		default:
			base = e.instanceOf(v.Info)
		}
		if slices.ContainsFunc(info.Bases, func(b types.Type) bool { return types.SameClass(types.InfoOf(b), v.Info) }) {
			e.report(f, x, InvalidDeclaration, "Duplicate base class \"%s\"", v.Info.Name)
			return
		}
		info.Bases = append(info.Bases, base)
	case *types.UnknownType, *types.AnyType:
		info.Flags |= types.ClassUnknownBase
		info.Bases = append(info.Bases, v)
	default:
		e.report(f, x, InvalidDeclaration, "Argument to class must be a base class")
		info.Flags |= types.ClassUnknownBase
		info.Bases = append(info.Bases, types.Unknown)
	}
}

func typeVarArgs(args []types.Type) []*types.TypeVarType {
	out := make([]*types.TypeVarType, 0, len(args))
	for _, a := range args {
		if tv, ok := a.(*types.TypeVarType); ok {
			out = append(out, tv.Base())
		}
	}
	return out
}

// bindClassTypeParams decides the class's type parameters and binds the
// variables in its bases to the class scope.
func (e *Evaluator) bindClassTypeParams(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo, cb *classBases) {
	if len(cd.TypeParams) > 0 {
		for _, tp := range cd.TypeParams {
			info.TypeParams = append(info.TypeParams, e.typeParamType(f, tp))
		}
		if cb.hasGeneric {
			e.report(f, cd, InvalidDeclaration, "\"Generic\" base class cannot be used with type parameter syntax")
		}
		e.checkTypeParamDefaults(f, cd, info.TypeParams)
		return
	}
	var free []*types.TypeVarType
	for _, b := range info.Bases {
		free = append(free, typeVarsInOrder(b, unscoped)...)
	}
	var params []*types.TypeVarType
	switch {
	case cb.hasGeneric:
		params = cb.generic
		for _, tv := range free {
			if !slices.ContainsFunc(params, func(p *types.TypeVarType) bool { return p.Name == tv.Name }) {
				e.report(f, cd, InvalidDeclaration, "Type variable \"%s\" is not included in Generic", tv.Name)
			}
		}
	case len(cb.protocol) > 0:
		params = cb.protocol
		for _, tv := range free {
			if !slices.ContainsFunc(params, func(p *types.TypeVarType) bool { return p.Name == tv.Name }) {
				params = append(params, tv)
			}
		}
	default:
		seen := map[string]bool{}
		for _, tv := range free {
			if !seen[tv.Name] {
				seen[tv.Name] = true
				params = append(params, tv)
			}
		}
	}
	subs := types.NewSubs()
	for _, tv := range params {
		scoped := tv.WithScope(info.ScopeID(), info.Name)
		info.TypeParams = append(info.TypeParams, scoped)
		subs.Add(tv, scoped)
	}
	scopeDefaults(info.TypeParams)
	for i, b := range info.Bases {
		info.Bases[i] = subs.Apply(b)
	}
	if len(info.TypeParams) > 0 {
		e.checkTypeParamDefaults(f, cd, info.TypeParams)
	}
}

// computeMRO linearizes the bases with C3. An inconsistent hierarchy is
// reported and the class gets an Unknown base so member lookups stay
// quiet.
func (e *Evaluator) computeMRO(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) {
	var seqs [][]types.Type
	unknown := info.Is(types.ClassUnknownBase)
	var direct []types.Type
	for _, b := range info.Bases {
		bi := types.InfoOf(b)
		if bi == nil {
			unknown = true
			continue
		}
		direct = append(direct, b)
		seq := e.baseMRO(b, bi)
		for _, m := range seq {
			if types.InfoOf(m) == nil {
				unknown = true
			}
		}
		seq = slices.DeleteFunc(seq, func(m types.Type) bool { return types.InfoOf(m) == nil })
		seqs = append(seqs, seq)
	}
	seqs = append(seqs, direct)
	merged, ok := c3Merge(seqs)
	if !ok {
		e.report(f, cd, InvalidDeclaration, "Cannot create consistent method ordering")
		unknown = true
		merged = nil
		for _, s := range seqs[:len(seqs)-1] {
			for _, m := range s {
				if !slices.ContainsFunc(merged, func(x types.Type) bool { return sameEntry(x, m) }) {
					merged = append(merged, m)
				}
			}
		}
	}
	info.MRO = append([]types.Type{info.SelfInstance()}, merged...)
	if unknown {
		info.Flags |= types.ClassUnknownBase
		info.MRO = append(info.MRO, types.Unknown)
	}
}

// baseMRO is the MRO of a base class specialized by the base's type
// arguments.
func (e *Evaluator) baseMRO(b types.Type, bi *types.ClassInfo) []types.Type {
	var subs types.Subs
	switch b := b.(type) {
	case *types.InstanceType:
		subs = b.Subs()
	case *types.TypedDictType:
		subs = types.SubsFor(bi.TypeParams, b.Args)
	case *types.TupleType:
		subs = types.SubsFor(bi.TypeParams, []types.Type{b.ElemUnion()})
	}
	out := make([]types.Type, 0, len(bi.MRO))
	for i, m := range bi.MRO {
		if i == 0 {
			out = append(out, b)
			continue
		}
		out = append(out, subs.Apply(m))
	}
	if len(out) == 0 {
		out = append(out, b)
	}
	return out
}

func sameEntry(a, b types.Type) bool {
	return types.SameClass(types.InfoOf(a), types.InfoOf(b))
}

func c3Merge(seqs [][]types.Type) ([]types.Type, bool) {
	var out []types.Type
	for {
		live := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				live = append(live, s)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return out, true
		}
		var head types.Type
		for _, s := range seqs {
			cand := s[0]
			inTail := false
			for _, o := range seqs {
				if slices.ContainsFunc(o[1:], func(x types.Type) bool { return sameEntry(x, cand) }) {
					inTail = true
					break
				}
			}
			if !inTail {
				head = cand
				break
			}
		}
		if head == nil {
			return out, false
		}
		out = append(out, head)
		for i, s := range seqs {
			if sameEntry(s[0], head) {
				seqs[i] = s[1:]
			}
		}
	}
}

// classMetaclass picks the explicit metaclass or the most derived
// metaclass of the bases.
func (e *Evaluator) classMetaclass(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo, explicit types.Type) types.Type {
	var winner types.Type
	if explicit != nil {
		if c, ok := explicit.(*types.ClassType); ok {
			winner = &types.InstanceType{Info: c.Info}
		} else if !types.IsAnyOrUnknown(explicit) {
			e.report(f, cd, InvalidDeclaration, "Metaclass must be a class")
		}
	}
	for _, b := range info.Bases {
		bi := types.InfoOf(b)
		if bi == nil || bi.Metaclass == nil {
			continue
		}
		mi := types.InfoOf(bi.Metaclass)
		if mi == nil {
			continue
		}
		wi := types.InfoOf(winner)
		switch {
		case wi == nil:
			winner = bi.Metaclass
		case types.DerivesFrom(mi, wi):
			winner = bi.Metaclass
		case !types.DerivesFrom(wi, mi):
			e.report(f, cd, InvalidDeclaration, "The metaclass of a derived class must be a subclass of the metaclasses of all its base classes")
		}
	}
	return winner
}

func derivesFromName(info *types.ClassInfo, full string) bool {
	for _, m := range info.MRO {
		if mi := types.InfoOf(m); mi != nil && mi.FullName == full {
			return true
		}
	}
	return false
}

// decoratorName resolves a decorator, or the callee of a decorator call,
// to the full name of the function or class it refers to.
func (e *Evaluator) decoratorName(f *SourceFile, d pyast.Expr) string {
	if call, ok := d.(*pyast.Call); ok {
		d = call.Func
	}
	switch t := e.exprType(f, d, nil).(type) {
	case *types.FunctionType:
		return t.FullName
	case *types.OverloadedType:
		if len(t.Overloads) > 0 {
			return t.Overloads[0].FullName
		}
	case *types.ClassType:
		return t.Info.FullName
	}
	return ""
}

// dataclassArgs reads the options of a @dataclass(...) decorator.
func (e *Evaluator) dataclassArgs(f *SourceFile, d pyast.Expr) *dataclassOptions {
	opts := defaultDataclassOptions()
	call, ok := d.(*pyast.Call)
	if !ok {
		return opts
	}
	for _, a := range call.Args {
		c, ok := a.Value.(*pyast.Constant)
		if !ok || c.Kind != pyast.ConstBool {
			continue
		}
		v := c.Value == true
		switch a.Name {
		case "init":
			opts.init = v
		case "eq":
			opts.eq = v
		case "order":
			opts.order = v
		case "frozen":
			opts.frozen = v
		case "kw_only":
			opts.kwOnly = v
		}
	}
	return opts
}

// classValue is the value a class statement binds: the class object
// after decorators other than the recognized class markers ran.
func (e *Evaluator) classValue(f *SourceFile, cd *pyast.ClassDef) types.Type {
	info := e.classInfo(f, cd)
	var t types.Type = &types.ClassType{Info: info}
	for i := len(cd.Decorators) - 1; i >= 0; i-- {
		d := cd.Decorators[i]
		switch e.decoratorName(f, d) {
		case "typing.final", "typing.runtime_checkable", "dataclasses.dataclass",
			"enum.unique", "typing.type_check_only", "typing.dataclass_transform":
			continue
		}
		res := e.applyDecorator(f, d, t)
		if types.IsAnyOrUnknown(res) {
			continue
		}
		t = res
	}
	return t
}

// buildClassFields fills in the TypedDict entries and tuple shape of a
// class once its MRO is known.
func (e *Evaluator) buildClassFields(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) {
	switch {
	case info.Is(types.ClassTypedDict):
		e.typedDictEntries(f, cd, info)
	case info.Is(types.ClassNamedTuple):
		fields := e.namedTupleFields(f, cd, info)
		elems := make([]types.TupleElem, len(fields))
		for i, fl := range fields {
			elems[i] = types.TupleElem{Type: fl.typ}
		}
		info.TupleElems = elems
		e.part(f).fields[info] = fields
	}
	if info.Is(types.ClassProtocol) {
		for _, b := range info.Bases {
			bi := types.InfoOf(b)
			if bi == nil || bi.Is(types.ClassProtocol) || isBuiltin(bi, "object") {
				continue
			}
			e.report(f, cd, InvalidDeclaration, "Protocol class \"%s\" cannot derive from non-protocol class \"%s\"", info.Name, bi.Name)
		}
	}
}

// typedDictEntries collects the keys of a TypedDict: inherited ones
// first, then the annotated names of the body.
func (e *Evaluator) typedDictEntries(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) {
	info.TypedDictEntries = map[string]*types.TypedDictEntry{}
	info.TypedDictKeys = nil
	add := func(name string, entry *types.TypedDictEntry) {
		if _, ok := info.TypedDictEntries[name]; !ok {
			info.TypedDictKeys = append(info.TypedDictKeys, name)
		}
		info.TypedDictEntries[name] = entry
	}
	for _, b := range info.Bases {
		td, ok := b.(*types.TypedDictType)
		if !ok {
			if inst, ok := b.(*types.InstanceType); ok && inst.Info.Is(types.ClassTypedDict) {
				td = &types.TypedDictType{Info: inst.Info, Args: inst.Args}
			} else {
				continue
			}
		}
		for _, k := range td.Info.TypedDictKeys {
			if entry, ok := td.Entry(k); ok {
				add(k, entry)
			}
		}
	}
	total := true
	for _, a := range cd.Bases {
		if a.Name == "total" {
			if c, ok := a.Value.(*pyast.Constant); ok && c.Kind == pyast.ConstBool {
				total = c.Value == true
			}
		}
	}
	for _, s := range cd.Body {
		switch s := s.(type) {
		case *pyast.AnnAssign:
			name, ok := s.Target.(*pyast.Name)
			if !ok {
				continue
			}
			if s.Value != nil {
				e.report(f, s.Value, InvalidDeclaration, "TypedDict classes can contain only type annotations")
			}
			required, readOnly := e.typedDictQualifiers(f, s.Annotation, total)
			add(name.Id, &types.TypedDictEntry{
				Type:     e.annotationType(f, s.Annotation, annNone),
				Required: required,
				ReadOnly: readOnly,
			})
		case *pyast.Pass, *pyast.ExprStmt:
		default:
			e.report(f, s, InvalidDeclaration, "TypedDict classes can contain only type annotations")
		}
	}
}

// typedDictQualifiers reads Required, NotRequired and ReadOnly wrapped
// around a TypedDict item annotation.
func (e *Evaluator) typedDictQualifiers(f *SourceFile, ann pyast.Expr, total bool) (required, readOnly bool) {
	required = total
	for {
		if c, ok := ann.(*pyast.Constant); ok && c.Kind == pyast.ConstStr {
			ref := e.forwardRef(f, c)
			if ref == nil {
				return
			}
			ann = ref
			continue
		}
		sub, ok := ann.(*pyast.Subscript)
		if !ok {
			return
		}
		switch specialFormOf(e.typeExprValue(f, sub.Value, annNone)) {
		case "Required":
			required = true
		case "NotRequired":
			required = false
		case "ReadOnly":
			readOnly = true
		case "Annotated":
		default:
			return
		}
		ann = indexArgs(sub.Index)[0]
	}
}

// namedTupleFields lists the fields of a class-syntax NamedTuple.
func (e *Evaluator) namedTupleFields(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) []classField {
	var fields []classField
	for _, b := range info.Bases {
		if bi := types.InfoOf(b); bi != nil && bi.Is(types.ClassNamedTuple) {
			fields = append(fields, e.part(e.prog.files[bi.Decl.File]).fields[bi]...)
		}
	}
	sawDefault := false
	for _, s := range cd.Body {
		s, ok := s.(*pyast.AnnAssign)
		if !ok {
			continue
		}
		name, ok := s.Target.(*pyast.Name)
		if !ok {
			continue
		}
		fl := classField{
			name:       name.Id,
			typ:        e.annotationType(f, s.Annotation, annNone),
			hasDefault: s.Value != nil,
			init:       true,
			node:       s,
		}
		if fl.hasDefault {
			sawDefault = true
		} else if sawDefault {
			e.report(f, s, InvalidDeclaration, "Fields without default values cannot appear after fields with default values")
		}
		fields = append(fields, fl)
	}
	return fields
}

// dataclassFields lists the fields the synthesized __init__ of a
// dataclass accepts, inherited fields first.
func (e *Evaluator) dataclassFields(info *types.ClassInfo) []classField {
	f, cd := e.classNode(info)
	if cd == nil {
		return nil
	}
	p := e.part(f)
	if fields, ok := p.fields[info]; ok {
		return fields
	}
	p.fields[info] = nil
	opts := p.dataclasses[info]
	if opts == nil {
		opts = defaultDataclassOptions()
	}
	var fields []classField
	for i := len(info.MRO) - 1; i >= 1; i-- {
		bi := types.InfoOf(info.MRO[i])
		if bi == nil || !bi.Is(types.ClassDataclass) {
			continue
		}
		inst, _ := info.MRO[i].(*types.InstanceType)
		for _, fl := range e.dataclassFields(bi) {
			if inst != nil {
				fl.typ = inst.Subs().Apply(fl.typ)
			}
			fields = replaceField(fields, fl)
		}
	}
	scope := e.bound(f).ScopeFor(cd)
	kwOnly := opts.kwOnly
	for _, s := range cd.Body {
		s, ok := s.(*pyast.AnnAssign)
		if !ok {
			continue
		}
		name, ok := s.Target.(*pyast.Name)
		if !ok {
			continue
		}
		d := annDecl(scope, name.Id, s)
		if d == nil || d.ClassVar {
			continue
		}
		t := e.declType(d)
		if inst, ok := t.(*types.InstanceType); ok && inst.Info.FullName == "dataclasses.KW_ONLY" {
			kwOnly = true
			continue
		}
		if inst, ok := t.(*types.InstanceType); ok && inst.Info.FullName == "dataclasses.InitVar" && len(inst.Args) == 1 {
			t = inst.Args[0]
		}
		fl := classField{name: name.Id, typ: t, hasDefault: s.Value != nil, kwOnly: kwOnly, init: true, node: s}
		if call, ok := s.Value.(*pyast.Call); ok && e.decoratorName(f, call.Func) == "dataclasses.field" {
			fl.hasDefault = false
			for _, a := range call.Args {
				switch a.Name {
				case "default", "default_factory":
					fl.hasDefault = true
				case "init":
					fl.init = !isFalseConst(a.Value)
				case "kw_only":
					fl.kwOnly = isTrueConst(a.Value)
				}
			}
		}
		fields = replaceField(fields, fl)
	}
	sawDefault := false
	for _, fl := range fields {
		if !fl.init || fl.kwOnly {
			continue
		}
		if fl.hasDefault {
			sawDefault = true
		} else if sawDefault && fl.node != nil && e.prog.files[info.Decl.File] == f {
			e.report(f, fl.node, InvalidDeclaration, "Fields without default values cannot appear after fields with default values")
			break
		}
	}
	p.fields[info] = fields
	return fields
}

func replaceField(fields []classField, fl classField) []classField {
	for i := range fields {
		if fields[i].name == fl.name {
			fields[i] = fl
			return fields
		}
	}
	return append(fields, fl)
}

func annDecl(scope *binder.Scope, name string, stmt pyast.Node) *binder.Declaration {
	if scope == nil {
		return nil
	}
	sym := scope.Lookup(name)
	if sym == nil {
		return nil
	}
	for _, d := range sym.Decls {
		if d.Stmt == stmt {
			return d
		}
	}
	return nil
}

func isFalseConst(n pyast.Expr) bool {
	c, ok := n.(*pyast.Constant)
	return ok && c.Kind == pyast.ConstBool && c.Value == false
}

// synthesizedMember returns a member that the class has without a
// declaration: dataclass, NamedTuple and TypedDict constructors.
func (e *Evaluator) synthesizedMember(info *types.ClassInfo, name string) types.Type {
	if t, ok := info.Synthesized[name]; ok {
		return t
	}
	f, _ := e.classNode(info)
	if f == nil {
		return nil
	}
	p := e.part(f)
	members, ok := p.synthesized[info]
	if !ok {
		members = e.synthesize(info)
		p.synthesized[info] = members
	}
	return members[name]
}

func (e *Evaluator) synthesize(info *types.ClassInfo) map[string]types.Type {
	members := map[string]types.Type{}
	self := selfVar(info)
	switch {
	case info.Is(types.ClassDataclass):
		f, _ := e.classNode(info)
		opts := e.part(f).dataclasses[info]
		if opts == nil {
			opts = defaultDataclassOptions()
		}
		if !opts.init {
			break
		}
		init := &types.FunctionType{
			Name:     "__init__",
			FullName: info.FullName + ".__init__",
			Decl:     info.Decl,
			Params:   []types.Param{{Name: "self", Kind: types.ParamPositionalOnly, Type: self}},
			Return:   types.None,
			Flags:    types.FuncSynthesized,
		}
		var kwOnly []types.Param
		for _, fl := range e.dataclassFields(info) {
			if !fl.init {
				continue
			}
			prm := types.Param{Name: fl.name, Kind: types.ParamPositionalOrKeyword, Type: fl.typ, HasDefault: fl.hasDefault, HasDeclaredType: true}
			if fl.kwOnly {
				prm.Kind = types.ParamKeywordOnly
				kwOnly = append(kwOnly, prm)
				continue
			}
			init.Params = append(init.Params, prm)
		}
		init.Params = append(init.Params, kwOnly...)
		members["__init__"] = init
		if opts.order {
			for _, op := range []string{"__lt__", "__le__", "__gt__", "__ge__"} {
				members[op] = &types.FunctionType{
					Name:   op,
					Params: []types.Param{{Name: "self", Kind: types.ParamPositionalOnly, Type: self}, {Name: "other", Kind: types.ParamPositionalOnly, Type: self, HasDeclaredType: true}},
					Return: e.boolType(),
					Flags:  types.FuncSynthesized,
				}
			}
		}
		var matchArgs []types.Type
		for _, fl := range e.dataclassFields(info) {
			if fl.init && !fl.kwOnly {
				matchArgs = append(matchArgs, e.literal(fl.name))
			}
		}
		members["__match_args__"] = e.tupleOf(matchArgs...)

	case info.Is(types.ClassNamedTuple):
		f, _ := e.classNode(info)
		fields := e.part(f).fields[info]
		ctor := &types.FunctionType{
			Name:     "__new__",
			FullName: info.FullName + ".__new__",
			Decl:     info.Decl,
			Params:   []types.Param{{Name: "cls", Kind: types.ParamPositionalOnly, Type: self.AsInstantiable()}},
			Return:   self,
			Flags:    types.FuncSynthesized | types.FuncStaticMethod,
		}
		var matchArgs []types.Type
		for _, fl := range fields {
			ctor.Params = append(ctor.Params, types.Param{Name: fl.name, Kind: types.ParamPositionalOrKeyword, Type: fl.typ, HasDefault: fl.hasDefault, HasDeclaredType: true})
			matchArgs = append(matchArgs, e.literal(fl.name))
		}
		members["__new__"] = ctor
		members["__match_args__"] = e.tupleOf(matchArgs...)

	case info.Is(types.ClassTypedDict):
		init := &types.FunctionType{
			Name:     "__init__",
			FullName: info.FullName + ".__init__",
			Decl:     info.Decl,
			Params:   []types.Param{{Name: "self", Kind: types.ParamPositionalOnly, Type: self}},
			Return:   types.None,
			Flags:    types.FuncSynthesized,
		}
		for _, k := range info.TypedDictKeys {
			entry := info.TypedDictEntries[k]
			init.Params = append(init.Params, types.Param{Name: k, Kind: types.ParamKeywordOnly, Type: entry.Type, HasDefault: !entry.Required, HasDeclaredType: true})
		}
		members["__init__"] = init
	}
	return members
}
