package checker

import (
	"slices"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// tvScope is a generic class, function or alias whose type variables are
// visible to a type expression.
type tvScope struct {
	id   string
	name string
	// params are the variables the scope binds. An open scope is a
	// signature being evaluated: it binds any other variable on first use.
	params []*types.TypeVarType
	open   bool
	// class is set for class body scopes; it is what Self refers to.
	class *types.ClassInfo
}

// typeVarScopesFor returns the scopes enclosing a type expression,
// outermost first.
func (e *Evaluator) typeVarScopesFor(f *SourceFile, n pyast.Node) []*tvScope {
	var scopes []*tvScope
	child := n
	for cur := e.astParent(f, n); cur != nil; child, cur = cur, e.astParent(f, cur) {
		switch c := cur.(type) {
		case *pyast.FunctionDef:
			id, name := f.declRef(c).String(), c.Name
			if _, isParam := child.(*pyast.Param); isParam || child == pyast.Node(c.Returns) {
				s := &tvScope{id: id, name: name, open: len(c.TypeParams) == 0}
				for _, tp := range c.TypeParams {
					s.params = append(s.params, e.typeParamType(f, tp))
				}
				scopes = append(scopes, s)
			} else if _, isStmt := child.(pyast.Stmt); isStmt {
				sig := e.signature(f, c)
				scopes = append(scopes, &tvScope{id: id, name: name, params: sig.TypeParams})
			}
		case *pyast.ClassDef:
			if _, isStmt := child.(pyast.Stmt); !isStmt {
				continue
			}
			if info := e.classInfo(f, c); info != nil {
				scopes = append(scopes, &tvScope{id: info.ScopeID(), name: info.Name, params: info.TypeParams, class: info})
			}
		case *pyast.TypeAlias:
			if child == pyast.Node(c.Value) && c.Name != nil {
				def := e.typeAliasDef(f, c)
				scopes = append(scopes, &tvScope{id: def.Decl.String(), name: def.Name, params: def.TypeParams})
			}
		}
	}
	slices.Reverse(scopes)
	return scopes
}

// scopeTypeVar binds an unscoped type variable to the innermost scope that
// knows it, or to the open signature scope.
func (e *Evaluator) scopeTypeVar(f *SourceFile, n pyast.Node, tv *types.TypeVarType) types.Type {
	if tv.IsScoped() || !e.scoping {
		return tv
	}
	for i := len(e.tvScopes) - 1; i >= 0; i-- {
		for _, p := range e.tvScopes[i].params {
			if p.Name == tv.Name {
				return withModifiers(p, tv)
			}
		}
	}
	for i := len(e.tvScopes) - 1; i >= 0; i-- {
		s := e.tvScopes[i]
		if s.open {
			b := tv.Base().WithScope(s.id, s.name)
			s.params = append(s.params, b)
			return withModifiers(b, tv)
		}
	}
	e.report(f, n, InvalidTypeForm, "Type variable \"%s\" has no meaning in this context", tv.Name)
	return types.Unknown
}

func withModifiers(base, from *types.TypeVarType) *types.TypeVarType {
	r := base.Base()
	if from.Access != types.AccessNone {
		r = r.WithAccess(from.Access)
	}
	if from.Unpacked {
		r = r.AsUnpacked()
	}
	if from.Instantiable {
		r = r.AsInstantiable()
	}
	return r
}

// selfTypeVar returns Self for the innermost enclosing class.
func (e *Evaluator) selfTypeVar() *types.TypeVarType {
	for i := len(e.tvScopes) - 1; i >= 0; i-- {
		if c := e.tvScopes[i].class; c != nil {
			return selfVar(c)
		}
	}
	return nil
}

// selfVar is the Self type variable of a class. It is solved by the
// receiver whenever a member is accessed.
func selfVar(info *types.ClassInfo) *types.TypeVarType {
	return &types.TypeVarType{
		Name:      "Self",
		Scope:     info.ScopeID(),
		ScopeName: info.Name,
		IsSelf:    true,
		Bound:     info.SelfInstance(),
	}
}

// specialForm returns the stand-in class for a typing special form.
func (e *Evaluator) specialForm(name string) *types.ClassInfo {
	if info, ok := e.specials[name]; ok {
		return info
	}
	info := &types.ClassInfo{
		Name:        name,
		FullName:    "typing." + name,
		Module:      "typing",
		Flags:       types.ClassSpecialForm,
		SpecialForm: name,
	}
	e.specials[name] = info
	return info
}

// createTypeVar evaluates a call to TypeVar, ParamSpec or TypeVarTuple.
// The result is the unscoped variable as a value.
func (e *Evaluator) createTypeVar(f *SourceFile, call *pyast.Call, kind types.TypeVarKind) types.Type {
	ctor := map[types.TypeVarKind]string{
		types.TypeVarPlain:     "TypeVar",
		types.TypeVarParamSpec: "ParamSpec",
		types.TypeVarTuple:     "TypeVarTuple",
	}[kind]
	tv := &types.TypeVarType{Kind: kind}
	setName := func(v pyast.Expr) bool {
		c, ok := v.(*pyast.Constant)
		if !ok || c.Kind != pyast.ConstStr {
			return false
		}
		tv.Name, _ = c.Value.(string)
		return true
	}
	positional := 0
	for _, a := range call.Args {
		switch {
		case a.Star != 0:
			e.exprType(f, a.Value, nil)
		case a.Name == "":
			switch {
			case positional == 0:
				if !setName(a.Value) {
					e.report(f, a.Value, InvalidDeclaration, "Expected name of %s as first argument", ctor)
					return types.Unknown
				}
			case kind == types.TypeVarPlain:
				tv.Constraints = append(tv.Constraints, e.typeExpr(f, a.Value, annNone))
			default:
				e.report(f, a.Value, ArityMismatch, "Expected 1 positional argument")
			}
			positional++
		case a.Name == "name":
			setName(a.Value)
		case a.Name == "bound":
			if kind == types.TypeVarPlain {
				tv.Bound = e.typeExpr(f, a.Value, annNone)
			}
		case a.Name == "covariant":
			if isTrueConst(a.Value) {
				tv.Variance = types.Covariant
			}
		case a.Name == "contravariant":
			if isTrueConst(a.Value) {
				tv.Variance = types.Contravariant
			}
		case a.Name == "infer_variance":
			if isTrueConst(a.Value) {
				tv.Variance = types.AutoVariance
			}
		case a.Name == "default":
			tv.Default = e.typeParamDefault(f, a.Value, kind)
		default:
			e.report(f, a, ArityMismatch, "No parameter named \"%s\"", a.Name)
		}
	}
	if tv.Name == "" {
		e.report(f, call, InvalidDeclaration, "Expected name of %s as first argument", ctor)
		return types.Unknown
	}
	if len(tv.Constraints) == 1 {
		e.report(f, call, InvalidDeclaration, "TypeVar must have at least two constrained types")
		tv.Constraints = nil
	}
	if tv.Bound != nil && len(tv.Constraints) > 0 {
		e.report(f, call, InvalidDeclaration, "TypeVar cannot be both bound and constrained")
	}
	if as, ok := f.AST.Parent(call).(*pyast.Assign); ok && len(as.Targets) == 1 {
		if nm, ok := as.Targets[0].(*pyast.Name); ok && nm.Id != tv.Name {
			e.report(f, call, InvalidDeclaration, "%s must be assigned to a variable named \"%s\"", ctor, tv.Name)
		}
	}
	return tv.AsInstantiable()
}

func (e *Evaluator) typeParamDefault(f *SourceFile, v pyast.Expr, kind types.TypeVarKind) types.Type {
	switch kind {
	case types.TypeVarParamSpec:
		return e.paramSpecArg(f, v)
	case types.TypeVarTuple:
		t := e.typeExpr(f, v, annAllowUnpack)
		if tv, ok := t.(*types.TypeVarType); ok && tv.Unpacked {
			return types.NewTuple(nil, []types.TupleElem{{Type: tv}})
		}
		return t
	}
	return e.typeExpr(f, v, annNone)
}

func isTrueConst(n pyast.Expr) bool {
	c, ok := n.(*pyast.Constant)
	return ok && c.Kind == pyast.ConstBool && c.Value == true
}

// typeParamType returns the variable declared by a PEP 695 type parameter.
func (e *Evaluator) typeParamType(f *SourceFile, tp *pyast.TypeParam) *types.TypeVarType {
	p := e.part(f)
	if tv, ok := p.typeParams[tp.ID()]; ok {
		return tv
	}
	owner := f.AST.Parent(tp)
	tv := &types.TypeVarType{
		Name:      tp.Name,
		Scope:     f.declRef(owner).String(),
		ScopeName: ownerName(owner),
		Variance:  types.AutoVariance,
	}
	switch tp.Kind {
	case pyast.TypeParamParamSpec:
		tv.Kind = types.TypeVarParamSpec
		tv.Variance = types.Invariant
	case pyast.TypeParamTypeVarTuple:
		tv.Kind = types.TypeVarTuple
		tv.Variance = types.Invariant
	}
	key := nodeFrame{f.Path, tp.ID(), "typeparam"}
	if e.inProgress(key) {
		return tv
	}
	var complete bool
	e.outsideSpeculation(func() {
		_, complete = e.guard(key, func() types.Type {
			if tp.Bound != nil {
				if tup, ok := tp.Bound.(*pyast.Tuple); ok && tup.Parenthesized {
					for _, el := range tup.Elts {
						tv.Constraints = append(tv.Constraints, e.annotationType(f, el, annNone))
					}
					if len(tv.Constraints) < 2 {
						e.report(f, tp.Bound, InvalidDeclaration, "TypeVar must have at least two constrained types")
					}
				} else {
					tv.Bound = e.annotationType(f, tp.Bound, annNone)
				}
			}
			if tp.Default != nil {
				tv.Default = e.typeParamDefault(f, tp.Default, tv.Kind)
			}
			return tv
		})
	})
	if complete {
		p.typeParams[tp.ID()] = tv
	}
	return tv
}

func ownerName(n pyast.Node) string {
	switch n := n.(type) {
	case *pyast.ClassDef:
		return n.Name
	case *pyast.FunctionDef:
		return n.Name
	case *pyast.TypeAlias:
		if n.Name != nil {
			return n.Name.Id
		}
	}
	return ""
}

// scopeDefaults points the variables inside each default at the scoped
// parameters of the same declaration.
func scopeDefaults(params []*types.TypeVarType) {
	subs := types.NewSubs()
	for _, p := range params {
		subs.Add(p.WithScope("", ""), p.Base())
	}
	for i, p := range params {
		if p.Default == nil {
			continue
		}
		c := *p
		c.Default = subs.Apply(p.Default)
		params[i] = &c
	}
}

// checkTypeParamDefaults reports defaults that refer to later parameters
// and non-default parameters that follow defaulted ones.
func (e *Evaluator) checkTypeParamDefaults(f *SourceFile, at pyast.Node, params []*types.TypeVarType) {
	seenDefault := false
	for i, p := range params {
		if p.Default == nil {
			if seenDefault && p.Kind != types.TypeVarTuple {
				e.report(f, at, TypeParamDefault, "Type parameter \"%s\" has no default but follows a type parameter with a default", p.Name)
			}
			continue
		}
		seenDefault = true
		free := p.Default.FreeTypeVars()
		for _, later := range params[i:] {
			if free.Contains(later) {
				e.report(f, at, TypeParamDefault, "Default of type parameter \"%s\" refers to \"%s\", which is not yet in scope", p.Name, later.Name)
			}
		}
	}
}

// Aliases.

// typeAliasDef returns the definition of a type statement.
func (e *Evaluator) typeAliasDef(f *SourceFile, s *pyast.TypeAlias) *types.AliasDef {
	p := e.part(f)
	if def, ok := p.aliases[s.ID()]; ok {
		return def
	}
	def := &types.AliasDef{Name: s.Name.Id, Decl: f.declRef(s)}
	p.aliases[s.ID()] = def
	for _, tp := range s.TypeParams {
		def.TypeParams = append(def.TypeParams, e.typeParamType(f, tp))
	}
	return def
}

// explicitAliasDef returns the definition of "X: TypeAlias = ...".
func (e *Evaluator) explicitAliasDef(f *SourceFile, s *pyast.AnnAssign) *types.AliasDef {
	p := e.part(f)
	if def, ok := p.aliases[s.ID()]; ok {
		return def
	}
	name := ""
	if nm, ok := s.Target.(*pyast.Name); ok {
		name = nm.Id
	}
	def := &types.AliasDef{Name: name, Decl: f.declRef(s)}
	p.aliases[s.ID()] = def
	return def
}

// aliasTarget evaluates what an alias stands for. It returns nil when the
// alias is referenced from its own definition.
func (e *Evaluator) aliasTarget(def *types.AliasDef) types.Type {
	if def.Target != nil {
		return def.Target
	}
	f := e.prog.files[def.Decl.File]
	if f == nil {
		return types.Unknown
	}
	n := f.AST.Node(pyast.NodeID(def.Decl.Node))
	if n == nil {
		return types.Unknown
	}
	key := nodeFrame{f.Path, n.ID(), "alias"}
	if e.inProgress(key) {
		def.Recursive = true
		return nil
	}
	var t types.Type
	var complete bool
	e.outsideSpeculation(func() {
		t, complete = e.guard(key, func() types.Type {
			switch s := n.(type) {
			case *pyast.TypeAlias:
				return e.annotationType(f, s.Value, annNone)
			case *pyast.AnnAssign:
				if s.Value == nil {
					return types.Unknown
				}
				t := e.typeExpr(f, s.Value, annNone)
				def.TypeParams = nil
				subs := types.NewSubs()
				for _, tv := range typeVarsInOrder(t, unscoped) {
					scoped := tv.WithScope(def.Decl.String(), def.Name)
					def.TypeParams = append(def.TypeParams, scoped)
					subs.Add(tv, scoped)
				}
				scopeDefaults(def.TypeParams)
				return subs.Apply(t)
			}
			return types.Unknown
		})
		if a, ok := t.(*types.AliasType); ok && a.Def == def {
			e.report(f, n, InvalidTypeForm, "Type alias \"%s\" cannot use itself in its definition", def.Name)
			t = types.Unknown
		}
	})
	if complete {
		def.Target = t
	}
	return t
}

// expandAlias is the type an alias reference denotes in an annotation.
// Recursive aliases stay as references.
func (e *Evaluator) expandAlias(a *types.AliasType) types.Type {
	target := e.aliasTarget(a.Def)
	if len(a.Args) == 0 && len(a.Def.TypeParams) > 0 {
		a = &types.AliasType{Def: a.Def, Args: types.DefaultArgs(a.Def.TypeParams)}
	}
	if target == nil || a.Def.Recursive {
		return a
	}
	return a.Resolve()
}

// explicitAliasValue is the value bound to the name of an explicit alias.
func (e *Evaluator) explicitAliasValue(f *SourceFile, s *pyast.AnnAssign) types.Type {
	def := e.explicitAliasDef(f, s)
	target := e.aliasTarget(def)
	if target == nil || def.Recursive || len(def.TypeParams) > 0 {
		return &types.TypeFormType{Inner: &types.AliasType{Def: def}}
	}
	return aliasValue(target)
}

// aliasValue is the runtime value of an alias to t: the class object when
// t is a class instance, a type form otherwise.
func aliasValue(t types.Type) types.Type {
	switch t.(type) {
	case *types.InstanceType, *types.TupleType, *types.TypedDictType:
		if c := types.ToClassObject(t); c != nil {
			return c
		}
	case *types.UnknownType, *types.AnyType:
		return t
	}
	return &types.TypeFormType{Inner: t}
}
