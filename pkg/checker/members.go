package checker

import (
	"slices"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// classMember is a member found on a class or one of its bases.
type classMember struct {
	// owner declares the member. It is nil when the lookup reached an
	// Unknown base.
	owner *types.ClassInfo
	sym   *binder.Symbol
	typ   types.Type
	// method is set for members that bind to the receiver on access.
	method bool
	// instanceOnly is set for attributes that are only assigned through
	// self.
	instanceOnly bool
}

// lookupMember finds name in the MRO of info. Attributes declared only
// through self are skipped on class access.
func (e *Evaluator) lookupMember(info *types.ClassInfo, name string, classAccess bool) *classMember {
	for _, entry := range info.MRO {
		mi := types.InfoOf(entry)
		if mi == nil {
			return &classMember{typ: types.Unknown}
		}
		if t := e.synthesizedMember(mi, name); t != nil {
			return &classMember{owner: mi, typ: t, method: true}
		}
		if mi.Is(types.ClassTypedDict) {
			continue
		}
		_, scope := e.classScope(mi)
		if scope == nil {
			continue
		}
		sym := scope.Symbols[name]
		if sym == nil || len(sym.Decls) == 0 {
			continue
		}
		instanceOnly := sym.Is(binder.SymbolInstanceMember)
		if classAccess && instanceOnly {
			continue
		}
		return &classMember{
			owner:        mi,
			sym:          sym,
			typ:          e.symbolType(sym),
			method:       !instanceOnly && bindsOnAccess(sym),
			instanceOnly: instanceOnly,
		}
	}
	return nil
}

// bindsOnAccess reports whether functions stored in a class member are
// bound to the receiver. Annotated attributes that are not ClassVars hold
// plain callables.
func bindsOnAccess(sym *binder.Symbol) bool {
	for _, d := range sym.Decls {
		switch {
		case d.Kind == binder.DeclFunction, d.ClassVar:
			return true
		case d.HasExplicitType():
			return false
		}
	}
	return true
}

// receiver describes what a member is accessed through.
type receiver struct {
	// inst is the instance whose class is searched, carrying the type
	// arguments that specialize the member.
	inst *types.InstanceType
	// self is what Self and the first parameter of methods bind to, in
	// instance form.
	self types.Type
	// class is set when the member is read from the class object.
	class bool
}

// accessMember looks up and binds a member. ok is false when the class has
// no such member.
func (e *Evaluator) accessMember(f *SourceFile, n pyast.Node, r receiver, name string) (types.Type, bool) {
	info := r.inst.Info
	if info.Is(types.ClassPartial) || len(info.MRO) == 0 {
		return types.Unknown, true
	}
	m := e.lookupMember(info, name, r.class)
	if m == nil {
		return nil, false
	}
	if m.owner == nil {
		return types.Unknown, true
	}
	if lit := e.enumMemberLiteral(m, name); lit != nil {
		return lit, true
	}
	switch t := e.specializeMember(m, r).(type) {
	case *types.FunctionType:
		if !m.method {
			return t, true
		}
		if t.Is(types.FuncProperty) {
			if r.class {
				return e.builtinInstance("property"), true
			}
			return e.bindFunction(t, r.self, false).Return, true
		}
		return e.bindFunction(t, r.self, r.class), true
	case *types.OverloadedType:
		if !m.method {
			return t, true
		}
		return e.bindOverloaded(t, r.self, r.class), true
	case *types.InstanceType:
		if !m.instanceOnly {
			if v, ok := e.descriptorGet(f, n, t, r); ok {
				return v, true
			}
		}
		return t, true
	default:
		return t, true
	}
}

// specializeMember expresses a member's type in terms of the receiver: the
// owner's type parameters take the receiver's arguments and Self becomes
// the receiver.
func (e *Evaluator) specializeMember(m *classMember, r receiver) types.Type {
	t := e.inferReturns(m.typ)
	subs, ok := mroSubs(r.inst, m.owner)
	if !ok {
		subs = types.NewSubs()
	}
	self := r.self
	if self == nil {
		self = r.inst
	}
	subs[selfVar(m.owner).Key()] = types.StripLiteral(self)
	return subs.Apply(t)
}

// inferReturns fills in inferred returns before specialization, so that
// class type variables in them are substituted too.
func (e *Evaluator) inferReturns(t types.Type) types.Type {
	switch t := t.(type) {
	case *types.FunctionType:
		return e.withInferredReturn(t)
	case *types.OverloadedType:
		o := &types.OverloadedType{}
		for _, ov := range t.Overloads {
			o.Overloads = append(o.Overloads, e.withInferredReturn(ov))
		}
		if t.Implementation != nil {
			o.Implementation = e.withInferredReturn(t.Implementation)
		}
		return o
	}
	return t
}

// bindFunction binds a method accessed through self. Static methods are
// left alone and instance methods read from the class stay unbound.
func (e *Evaluator) bindFunction(fn *types.FunctionType, self types.Type, classAccess bool) *types.FunctionType {
	var recv types.Type
	switch {
	case fn.Is(types.FuncStaticMethod):
		return fn
	case fn.Is(types.FuncClassMethod):
		recv = types.ToClassObject(self)
		if recv == nil {
			recv = types.Unknown
		}
	case classAccess:
		return fn
	default:
		recv = self
	}
	return e.bindReceiver(fn, recv)
}

func (e *Evaluator) bindOverloaded(o *types.OverloadedType, self types.Type, classAccess bool) *types.OverloadedType {
	out := &types.OverloadedType{}
	for _, ov := range o.Overloads {
		out.Overloads = append(out.Overloads, e.bindFunction(ov, self, classAccess))
	}
	if o.Implementation != nil {
		out.Implementation = e.bindFunction(o.Implementation, self, classAccess)
	}
	return out
}

// bindReceiver drops the first parameter of fn, solving the function's
// type variables that appear in it against recv.
func (e *Evaluator) bindReceiver(fn *types.FunctionType, recv types.Type) *types.FunctionType {
	if len(fn.Params) == 0 {
		c := fn.Clone()
		c.BoundTo = recv
		return c
	}
	first := fn.Params[0]
	bound := fn
	if first.Type != nil && len(fn.TypeParams) > 0 {
		free := first.Type.FreeTypeVars()
		if slices.ContainsFunc(fn.TypeParams, free.Contains) {
			cs := newConstraints(fn.TypeParams...)
			e.assignType(first.Type, recv, cs)
			if t, ok := fn.Apply(cs.solved()).(*types.FunctionType); ok {
				bound = t
			}
		}
	}
	c := bound.Clone()
	if first.Kind != types.ParamVarPositional {
		c.Params = c.Params[1:]
	}
	c.BoundTo = recv
	return c
}

// descriptorGet evaluates a class attribute holding a descriptor.
func (e *Evaluator) descriptorGet(f *SourceFile, n pyast.Node, desc *types.InstanceType, r receiver) (types.Type, bool) {
	if m := e.lookupMember(desc.Info, "__get__", false); m == nil || m.owner == nil {
		return nil, false
	}
	get, ok := e.accessMember(f, n, receiver{inst: desc, self: desc}, "__get__")
	if !ok {
		return nil, false
	}
	var obj types.Type = types.None
	if !r.class {
		obj = r.self
	}
	owner := types.ToClassObject(r.self)
	if owner == nil {
		owner = types.Unknown
	}
	res := e.callWithArgs(f, n, get, []callArg{{typ: obj}, {typ: owner}}, nil)
	if !res.OK() {
		return types.Unknown, true
	}
	return res.ReturnType, true
}

// attributeOf evaluates base.name. Missing attributes evaluate to Unknown
// and are reported when report is set.
func (e *Evaluator) attributeOf(f *SourceFile, n pyast.Node, base types.Type, name string, report bool) types.Type {
	t, missing := e.memberAccess(f, n, base, name)
	if len(missing) > 0 && report {
		e.reportMissing(f, n, missing[0], name)
	}
	return t
}

// silentMember evaluates a member access without reporting.
func (e *Evaluator) silentMember(f *SourceFile, n *pyast.Attribute, base types.Type, name string) types.Type {
	return e.attributeOf(f, n, base, name, false)
}

// silentMemberOf returns the named member of t, or nil when no member of
// t has it.
func (e *Evaluator) silentMemberOf(f *SourceFile, t types.Type, name string) types.Type {
	res, missing := e.memberAccess(f, nil, t, name)
	if len(missing) > 0 && len(missing) == len(types.Members(t)) {
		return nil
	}
	return res
}

func (e *Evaluator) memberAccess(f *SourceFile, n pyast.Node, base types.Type, name string) (types.Type, []types.Type) {
	var missing []types.Type
	t := mapUnion(base, func(m types.Type) types.Type {
		t, ok := e.memberOfType(f, n, m, name)
		if !ok {
			missing = append(missing, m)
			return types.Unknown
		}
		return t
	})
	return t, missing
}

func (e *Evaluator) reportMissing(f *SourceFile, n pyast.Node, on types.Type, name string) {
	var loc *pyast.SourceLocation
	if attr, ok := n.(*pyast.Attribute); ok && attr.AttrLoc != nil {
		loc = attr.AttrLoc
	} else if n != nil {
		loc = n.Loc()
	}
	var d *Diagnostic
	switch on := on.(type) {
	case *types.ModuleType:
		d = e.reportAt(f, loc, MemberMissing, "\"%s\" is not a known attribute of module \"%s\"", name, on.Name)
	case *types.NoneType:
		d = e.reportAt(f, loc, MemberMissing, "\"%s\" is not a known attribute of \"None\"", name)
	default:
		d = e.reportAt(f, loc, MemberMissing, "Cannot access attribute \"%s\" for class \"%s\"", name, on)
	}
	d.Member = name
}

// memberOfType reads a member of a non-union type.
func (e *Evaluator) memberOfType(f *SourceFile, n pyast.Node, t types.Type, name string) (types.Type, bool) {
	switch t := t.(type) {
	case *types.UnknownType, *types.AnyType:
		return t, true
	case *types.NeverType:
		return types.Never, true
	case *types.UnboundType:
		return types.Unknown, true
	case *types.AliasType:
		res, missing := e.memberAccess(f, n, types.Unalias(t), name)
		return res, len(missing) == 0
	case *types.ModuleType:
		if v, ok := e.moduleMember(f, t, name); ok {
			return v, true
		}
		if info := e.stubInfo("types", "ModuleType"); info != nil {
			inst := &types.InstanceType{Info: info}
			return e.accessMember(f, n, receiver{inst: inst, self: inst}, name)
		}
		return nil, false
	case *types.NoneType:
		info := e.stubInfo("types", "NoneType")
		if info == nil {
			info = e.builtinInfo("NoneType")
		}
		if info == nil {
			return types.Unknown, true
		}
		return e.instanceMember(f, n, &types.InstanceType{Info: info}, t, name)
	case *types.LiteralType:
		if em, ok := t.Value.(types.EnumMember); ok {
			if v := e.enumLiteralAttr(t.Info, em, name); v != nil {
				return v, true
			}
		}
		return e.instanceMember(f, n, &types.InstanceType{Info: t.Info}, t, name)
	case *types.InstanceType:
		if t.Info.Is(types.ClassEnum) {
			if v := e.enumInstanceAttr(t.Info, name); v != nil {
				return v, true
			}
		}
		return e.instanceMember(f, n, t, t, name)
	case *types.TupleType:
		inst, ok := asInstance(t)
		if !ok {
			inst, _ = asInstance(e.homTuple(t.ElemUnion()))
		}
		if inst == nil {
			return types.Unknown, true
		}
		return e.instanceMember(f, n, inst, t, name)
	case *types.TypedDictType:
		inst, _ := asInstance(t)
		return e.instanceMember(f, n, inst, t, name)
	case *types.ClassType:
		return e.classObjectMember(f, n, t, name)
	case *types.TypeVarType:
		return e.typeVarMember(f, n, t, name)
	case *types.FunctionType:
		cls := "function"
		if t.Is(types.FuncProperty) {
			cls = "property"
		}
		return e.builtinMember(f, n, cls, t, name)
	case *types.OverloadedType:
		return e.builtinMember(f, n, "function", t, name)
	case *types.TypeFormType:
		return e.builtinMember(f, n, "object", t, name)
	}
	return types.Unknown, true
}

func (e *Evaluator) builtinMember(f *SourceFile, n pyast.Node, cls string, self types.Type, name string) (types.Type, bool) {
	info := e.builtinInfo(cls)
	if info == nil {
		return types.Unknown, true
	}
	return e.instanceMember(f, n, &types.InstanceType{Info: info}, self, name)
}

// instanceMember reads a member through an instance, falling back to
// __getattr__.
func (e *Evaluator) instanceMember(f *SourceFile, n pyast.Node, inst *types.InstanceType, self types.Type, name string) (types.Type, bool) {
	if t, ok := e.accessMember(f, n, receiver{inst: inst, self: self}, name); ok {
		return t, true
	}
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return nil, false
	}
	m := e.lookupMember(inst.Info, "__getattr__", false)
	if m == nil || m.owner == nil || isBuiltin(m.owner, "object") {
		return nil, false
	}
	getattr, _ := e.accessMember(f, n, receiver{inst: inst, self: self}, "__getattr__")
	res := e.callWithArgs(f, n, getattr, []callArg{{typ: e.literal(name)}}, nil)
	if !res.OK() {
		return types.Unknown, true
	}
	return res.ReturnType, true
}

// classObjectMember reads a member through a class object. Members the
// class lacks are looked up on its metaclass.
func (e *Evaluator) classObjectMember(f *SourceFile, n pyast.Node, c *types.ClassType, name string) (types.Type, bool) {
	if c.Info.Is(types.ClassSpecialForm) {
		return types.Unknown, true
	}
	self := types.ToInstance(c)
	inst, ok := asInstance(self)
	if !ok {
		return types.Unknown, true
	}
	if t, ok := e.accessMember(f, n, receiver{inst: inst, self: self, class: true}, name); ok {
		return t, true
	}
	return e.metaclassMember(f, n, c.Info, c, name)
}

func (e *Evaluator) metaclassMember(f *SourceFile, n pyast.Node, info *types.ClassInfo, obj types.Type, name string) (types.Type, bool) {
	meta, ok := asInstance(info.Metaclass)
	if !ok {
		ti := e.builtinInfo("type")
		if ti == nil {
			return types.Unknown, true
		}
		meta = &types.InstanceType{Info: ti}
	}
	return e.accessMember(f, n, receiver{inst: meta, self: obj}, name)
}

// typeVarMember reads a member through a value of type variable type,
// using its bound or constraints. Self stays the type variable.
func (e *Evaluator) typeVarMember(f *SourceFile, n pyast.Node, tv *types.TypeVarType, name string) (types.Type, bool) {
	switch tv.Access {
	case types.AccessArgs:
		return e.memberOfType(f, n, e.homTuple(e.objectType()), name)
	case types.AccessKwargs:
		return e.memberOfType(f, n, e.builtinInstance("dict", e.strType(), e.objectType()), name)
	}
	inst := tv
	if tv.Instantiable {
		inst = tv.AsInstance()
	}
	found := true
	t := mapUnion(e.upperBound(inst), func(b types.Type) types.Type {
		bi, ok := asInstance(b)
		if !ok {
			t, ok := e.memberOfType(f, n, b, name)
			found = found && ok
			return t
		}
		if tv.Instantiable {
			if t, ok := e.accessMember(f, n, receiver{inst: bi, self: inst, class: true}, name); ok {
				return t
			}
			t, ok := e.metaclassMember(f, n, bi.Info, tv, name)
			found = found && ok
			return t
		}
		t, ok := e.instanceMember(f, n, bi, inst, name)
		found = found && ok
		return t
	})
	if !found {
		return nil, false
	}
	return t, true
}

// upperBound is the type a value of a type variable is known to have.
func (e *Evaluator) upperBound(tv *types.TypeVarType) types.Type {
	switch {
	case tv.Bound != nil:
		return tv.Bound
	case len(tv.Constraints) > 0:
		return types.Union(tv.Constraints...)
	}
	return e.objectType()
}

// Enums.

// enumMemberLiteral returns the literal for a member of an enum class.
func (e *Evaluator) enumMemberLiteral(m *classMember, name string) types.Type {
	if m.sym == nil || !m.owner.Is(types.ClassEnum) || !isEnumMemberSymbol(m.sym) {
		return nil
	}
	switch m.typ.(type) {
	case *types.FunctionType, *types.OverloadedType, *types.ClassType:
		return nil
	}
	return &types.LiteralType{Info: m.owner, Value: types.EnumMember{Class: m.owner.Name, Name: name}}
}

// isEnumMemberSymbol reports whether a symbol in an enum class body
// defines a member: a plain assignment to a public name.
func isEnumMemberSymbol(sym *binder.Symbol) bool {
	if strings.HasPrefix(sym.Name, "_") || sym.Is(binder.SymbolInstanceMember) || len(sym.Decls) == 0 {
		return false
	}
	for _, d := range sym.Decls {
		if d.Kind != binder.DeclVariable || d.Annotation != nil || d.ClassVar || d.IsInstanceAttr {
			return false
		}
		if _, ok := d.Stmt.(*pyast.Assign); !ok {
			return false
		}
	}
	return true
}

// enumMembers lists the member literals of an enum class in declaration
// order.
func (e *Evaluator) enumMembers(info *types.ClassInfo) []types.Type {
	_, scope := e.classScope(info)
	if scope == nil {
		return nil
	}
	var syms []*binder.Symbol
	for _, sym := range scope.Symbols {
		if isEnumMemberSymbol(sym) {
			syms = append(syms, sym)
		}
	}
	slices.SortFunc(syms, func(a, b *binder.Symbol) int {
		as, _ := a.Decls[0].Node.Span()
		bs, _ := b.Decls[0].Node.Span()
		return as - bs
	})
	var out []types.Type
	for _, sym := range syms {
		m := &classMember{owner: info, sym: sym, typ: e.symbolType(sym)}
		if lit := e.enumMemberLiteral(m, sym.Name); lit != nil {
			out = append(out, lit)
		}
	}
	return out
}

// enumValueType is the type of a member's value.
func (e *Evaluator) enumValueType(info *types.ClassInfo, name string) types.Type {
	f, scope := e.classScope(info)
	if scope == nil {
		return nil
	}
	sym := scope.Symbols[name]
	if sym == nil || len(sym.Decls) == 0 {
		return nil
	}
	v := sym.Decls[len(sym.Decls)-1].Value
	if v == nil {
		return nil
	}
	if call, ok := v.(*pyast.Call); ok && e.decoratorName(f, call.Func) == "enum.auto" {
		if derivesFromName(info, "enum.StrEnum") {
			return e.strType()
		}
		return e.intType()
	}
	return e.exprType(f, v, nil)
}

// enumLiteralAttr handles name and value on an enum member literal.
func (e *Evaluator) enumLiteralAttr(info *types.ClassInfo, em types.EnumMember, name string) types.Type {
	switch name {
	case "name", "_name_":
		return e.literal(em.Name)
	case "value", "_value_":
		return e.enumValueType(info, em.Name)
	}
	return nil
}

// enumInstanceAttr handles name and value on an enum instance of unknown
// member, as the union over all members.
func (e *Evaluator) enumInstanceAttr(info *types.ClassInfo, name string) types.Type {
	switch name {
	case "name", "_name_", "value", "_value_":
	default:
		return nil
	}
	members := e.enumMembers(info)
	if len(members) == 0 {
		return nil
	}
	var ts []types.Type
	for _, m := range members {
		lit := m.(*types.LiteralType)
		v := e.enumLiteralAttr(info, lit.Value.(types.EnumMember), name)
		if v == nil {
			return nil
		}
		ts = append(ts, v)
	}
	return types.Union(ts...)
}

// Assignment to members.

// memberSetType returns the type that a value assigned to base.name must
// be assignable to, or nil when any value is accepted.
func (e *Evaluator) memberSetType(f *SourceFile, n *pyast.Attribute, base types.Type) types.Type {
	var dests []types.Type
	for _, m := range types.Members(base) {
		d := e.memberSetTypeOf(f, n, m)
		if d == nil {
			return nil
		}
		dests = append(dests, d)
	}
	if len(dests) == 0 {
		return nil
	}
	return types.Union(dests...)
}

func (e *Evaluator) memberSetTypeOf(f *SourceFile, n *pyast.Attribute, base types.Type) types.Type {
	var r receiver
	switch b := base.(type) {
	case *types.TypeVarType:
		if b.Instantiable {
			return nil
		}
		inst, ok := asInstance(e.upperBound(b))
		if !ok {
			return nil
		}
		r = receiver{inst: inst, self: b}
	case *types.ClassType:
		inst, ok := asInstance(types.ToInstance(b))
		if !ok {
			return nil
		}
		r = receiver{inst: inst, self: types.ToInstance(b), class: true}
	default:
		inst, ok := asInstance(base)
		if !ok {
			return nil
		}
		r = receiver{inst: inst, self: base}
	}
	if r.inst.Info.Is(types.ClassPartial) {
		return nil
	}
	m := e.lookupMember(r.inst.Info, n.Attr, r.class)
	if m == nil {
		if e.lookupMember(r.inst.Info, "__setattr__", false) == nil || r.class {
			e.reportAt(f, n.AttrLoc, MemberMissing, "Attribute \"%s\" is unknown for class \"%s\"", n.Attr, base).Member = n.Attr
		}
		return nil
	}
	if m.owner == nil || m.sym == nil {
		return nil
	}
	for _, d := range m.sym.Decls {
		if d.Final && d.Node != n {
			e.report(f, n, InvalidDeclaration, "Cannot assign to attribute \"%s\" for class \"%s\"; it is declared Final", n.Attr, r.inst)
			return nil
		}
	}
	if r.inst.Info.Is(types.ClassDataclass) && !r.class && e.frozenDataclass(r.inst.Info) {
		e.report(f, n, AssignabilityFailure, "Cannot assign to attribute \"%s\" for class \"%s\"; dataclass is frozen", n.Attr, r.inst)
		return nil
	}
	switch t := e.specializeMember(m, r).(type) {
	case *types.FunctionType:
		if !t.Is(types.FuncProperty) || r.class {
			break
		}
		if t.Setter == nil {
			e.reportAt(f, n.AttrLoc, MemberMissing, "Attribute \"%s\" cannot be assigned through a class instance because it has no setter", n.Attr)
			return nil
		}
		setter := e.bindFunction(t.Setter, r.self, false)
		if len(setter.Params) == 0 {
			return nil
		}
		return setter.Params[0].Type
	case *types.InstanceType:
		if m.instanceOnly || r.class {
			break
		}
		if sm := e.lookupMember(t.Info, "__set__", false); sm != nil && sm.owner != nil {
			set, _ := e.accessMember(f, n, receiver{inst: t, self: t}, "__set__")
			if fn, ok := set.(*types.FunctionType); ok && len(fn.Params) >= 2 {
				return fn.Params[1].Type
			}
			return nil
		}
	}
	for _, d := range m.sym.Decls {
		if d.Node == pyast.Node(n) {
			if !m.sym.HasTypedDecls() {
				return nil
			}
			break
		}
	}
	declared := e.declaredTypeOfSymbol(m.sym)
	if declared == nil {
		declared = e.symbolType(m.sym)
	}
	subs, ok := mroSubs(r.inst, m.owner)
	if !ok {
		subs = types.NewSubs()
	}
	subs[selfVar(m.owner).Key()] = types.StripLiteral(r.self)
	return subs.Apply(declared)
}

func (e *Evaluator) frozenDataclass(info *types.ClassInfo) bool {
	f, _ := e.classNode(info)
	if f == nil {
		return false
	}
	opts := e.part(f).dataclasses[info]
	return opts != nil && opts.frozen
}
