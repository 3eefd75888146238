package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// symbolFile returns the file that declares sym.
func (e *Evaluator) symbolFile(sym *binder.Symbol) *SourceFile {
	if len(sym.Decls) == 0 {
		return nil
	}
	return e.prog.files[sym.Decls[0].Path]
}

// symbolType is the effective type of a symbol independent of flow: its
// declared type, or the union of the types inferred for its declarations.
func (e *Evaluator) symbolType(sym *binder.Symbol) types.Type {
	f := e.symbolFile(sym)
	if f == nil {
		return types.Unknown
	}
	p := e.part(f)
	if t, ok := p.effective[sym]; ok {
		return t
	}
	if c := e.classRef(sym); c != nil {
		return c
	}
	if typed := sym.TypedDecls(); len(typed) > 0 && typed[len(typed)-1].ExplicitAlias {
		return e.declType(typed[len(typed)-1])
	}
	cacheable := !withinLambda(sym.Scope)
	var t types.Type
	var complete bool
	compute := func() {
		t, complete = e.guard(symFrame{sym}, func() types.Type {
			if declared := e.declaredTypeOfSymbol(sym); declared != nil {
				return declared
			}
			return e.inferredTypeOfSymbol(sym)
		})
	}
	if cacheable {
		e.outsideSpeculation(compute)
	} else {
		compute()
	}
	if complete && cacheable {
		p.effective[sym] = t
	}
	return t
}

// withinLambda reports whether a scope is a lambda or nested in one. Types
// there depend on the expected type the lambda is inferred against.
func withinLambda(s *binder.Scope) bool {
	for ; s != nil; s = s.Parent {
		switch s.Kind {
		case binder.ScopeLambda:
			return true
		case binder.ScopeFunction, binder.ScopeClass, binder.ScopeModule:
			return false
		}
	}
	return false
}

// declaredTypeOfSymbol returns the type pinned by the symbol's explicit
// declarations, or nil if it has none. The last one wins, which is what
// makes overloads and property setters resolve to the full definition.
func (e *Evaluator) declaredTypeOfSymbol(sym *binder.Symbol) types.Type {
	typed := sym.TypedDecls()
	if len(typed) == 0 {
		return nil
	}
	return e.declType(typed[len(typed)-1])
}

// inferredTypeOfSymbol unions the inferred types of every declaration.
// Declarations currently being inferred are skipped instead of
// contributing a placeholder.
func (e *Evaluator) inferredTypeOfSymbol(sym *binder.Symbol) types.Type {
	var ts []types.Type
	for _, d := range sym.Decls {
		if e.inProgress(declFrame{d}) {
			continue
		}
		ts = append(ts, e.declType(d))
	}
	if len(ts) == 0 {
		return types.Unknown
	}
	return types.Union(ts...)
}

// declType is the type of one declaration.
func (e *Evaluator) declType(d *binder.Declaration) types.Type {
	f := e.prog.files[d.Path]
	if f == nil {
		return types.Unknown
	}
	if s, ok := d.Stmt.(*pyast.AnnAssign); ok && d.ExplicitAlias {
		// The alias guards its own evaluation and detects self-reference.
		return e.explicitAliasValue(f, s)
	}
	p := e.part(f)
	cacheable := !e.insideLambda(f, d.Node)
	if cacheable {
		if t, ok := p.declared[d]; ok {
			return t
		}
	}
	var t types.Type
	var complete bool
	compute := func() {
		t, complete = e.guard(declFrame{d}, func() types.Type {
			return e.computeDeclType(f, d)
		})
	}
	if cacheable {
		e.outsideSpeculation(compute)
	} else {
		compute()
	}
	if complete && cacheable {
		p.declared[d] = t
	}
	return t
}

// insideLambda reports whether n is a lambda parameter or lies in a lambda
// body.
func (e *Evaluator) insideLambda(f *SourceFile, n pyast.Node) bool {
	if n == nil {
		return false
	}
	for cur := f.AST.Parent(n); cur != nil; cur = f.AST.Parent(cur) {
		switch cur.(type) {
		case *pyast.Lambda:
			return true
		case *pyast.FunctionDef, *pyast.ClassDef:
			return false
		}
	}
	return false
}

func (e *Evaluator) computeDeclType(f *SourceFile, d *binder.Declaration) types.Type {
	switch d.Kind {
	case binder.DeclClass:
		return e.classValue(f, d.Node.(*pyast.ClassDef))
	case binder.DeclFunction:
		return e.functionType(f, d.Node.(*pyast.FunctionDef))
	case binder.DeclParameter:
		return e.paramDeclType(f, d)
	case binder.DeclTypeParam:
		return e.typeParamType(f, d.Node.(*pyast.TypeParam)).AsInstantiable()
	case binder.DeclTypeAlias:
		s := d.Stmt.(*pyast.TypeAlias)
		def := e.typeAliasDef(f, s)
		e.checkTypeParamDefaults(f, s.Name, def.TypeParams)
		return &types.TypeFormType{Inner: &types.AliasType{Def: def}}
	case binder.DeclAlias:
		return e.importType(f, d)
	case binder.DeclVariable:
		return e.variableDeclType(f, d)
	}
	return types.Unknown
}

func (e *Evaluator) variableDeclType(f *SourceFile, d *binder.Declaration) types.Type {
	if d.ExplicitAlias {
		if s, ok := d.Stmt.(*pyast.AnnAssign); ok {
			return e.explicitAliasValue(f, s)
		}
		return types.Unknown
	}
	if d.Annotation != nil {
		if sf := e.specialFormDecl(f, d); sf != nil {
			return sf
		}
		return e.annotationType(f, d.Annotation, annNone)
	}
	target, ok := d.Node.(pyast.Expr)
	if !ok {
		return types.Unknown
	}
	t := types.RemoveUnbound(e.targetType(f, target))
	if d.Final {
		return t
	}
	return widenInferred(t)
}

// widenInferred is the declared type inferred from an assigned value:
// literals widen to their class so later assignments of other values of
// the class are accepted.
func widenInferred(t types.Type) types.Type {
	switch t := t.(type) {
	case *types.LiteralType:
		if _, isEnum := t.Value.(types.EnumMember); isEnum {
			return t
		}
	}
	return types.StripLiteral(t)
}

// specialFormDecl recognizes "Name: _SpecialForm" in the typing stubs.
func (e *Evaluator) specialFormDecl(f *SourceFile, d *binder.Declaration) types.Type {
	if !f.IsStub() || (f.Module != "typing" && f.Module != "typing_extensions") {
		return nil
	}
	ann, ok := d.Annotation.(*pyast.Name)
	if !ok || ann.Id != "_SpecialForm" {
		return nil
	}
	name, ok := d.Node.(*pyast.Name)
	if !ok {
		return nil
	}
	return &types.ClassType{Info: e.specialForm(name.Id)}
}

// paramDeclType is the type of a parameter as seen inside the function
// body: *args becomes a tuple and **kwargs a dict.
func (e *Evaluator) paramDeclType(f *SourceFile, d *binder.Declaration) types.Type {
	prm, ok := d.Node.(*pyast.Param)
	if !ok {
		return types.Unknown
	}
	switch owner := d.Stmt.(type) {
	case *pyast.Lambda:
		if t, ok := e.cache.lambdaParam(prm); ok {
			return t
		}
		if prm.Default != nil {
			return widenInferred(e.exprType(f, prm.Default, nil))
		}
		return types.Unknown
	case *pyast.FunctionDef:
		sig := e.signature(f, owner)
		for i, p := range owner.Params {
			if p != prm || i >= len(sig.Params) {
				continue
			}
			return e.variadicParamType(sig.Params[i])
		}
	}
	return types.Unknown
}

// variadicParamType converts the element type of *args and **kwargs to the
// type of the parameter variable.
func (e *Evaluator) variadicParamType(p types.Param) types.Type {
	t := p.Type
	if t == nil {
		t = types.Unknown
	}
	switch p.Kind {
	case types.ParamVarPositional:
		if tv, ok := t.(*types.TypeVarType); ok {
			if tv.Access != types.AccessNone {
				return tv
			}
			if tv.Unpacked {
				return e.newTuple([]types.TupleElem{{Type: tv}})
			}
		}
		if tup, ok := t.(*types.TupleType); ok && p.HasDeclaredType && isUnpackedTuple(tup) {
			return &types.TupleType{Info: e.builtinInfo("tuple"), Elems: tup.Elems}
		}
		return e.homTuple(t)
	case types.ParamVarKeyword:
		if tv, ok := t.(*types.TypeVarType); ok && tv.Access != types.AccessNone {
			return tv
		}
		if td, ok := t.(*types.TypedDictType); ok {
			return td
		}
		return e.builtinInstance("dict", e.strType(), t)
	}
	return t
}

// isUnpackedTuple reports whether the element type of *args came from
// *tuple[...]: such tuples carry no class.
func isUnpackedTuple(t *types.TupleType) bool {
	return t.Info == nil
}

// importType is the value an import binds.
func (e *Evaluator) importType(f *SourceFile, d *binder.Declaration) types.Type {
	at := d.Node
	if at == nil {
		at = d.Stmt
	}
	if d.Imported == "" {
		module := d.Module
		if d.BindsModuleRoot {
			module = rootModule(module)
		}
		target := e.prog.resolveImport(f, module, 0)
		if target == nil {
			e.report(f, at, ImportMissing, "Import \"%s\" could not be resolved", d.Module)
			return types.Unknown
		}
		return &types.ModuleType{Name: target.Module, Path: target.Path}
	}
	target := e.prog.resolveImport(f, d.Module, d.Level)
	if target == nil {
		e.report(f, at, ImportMissing, "Import \"%s\" could not be resolved", dots(d.Level)+d.Module)
		return types.Unknown
	}
	if target == f {
		return types.Unknown
	}
	sym := e.bound(target).Scope.Lookup(d.Imported)
	if sym == nil {
		if sub := e.prog.resolveImport(f, joinModule(d.Module, d.Imported), d.Level); sub != nil {
			return &types.ModuleType{Name: sub.Module, Path: sub.Path}
		}
		e.report(f, at, UnresolvedSymbol, "\"%s\" is unknown import symbol", d.Imported)
		return types.Unknown
	}
	if target.IsStub() && !reexported(sym) && !f.IsStub() {
		e.report(f, at, UnresolvedSymbol, "\"%s\" is not exported from module \"%s\"", d.Imported, target.Module)
	}
	return e.symbolType(sym)
}

func rootModule(module string) string {
	for i := 0; i < len(module); i++ {
		if module[i] == '.' {
			return module[:i]
		}
	}
	return module
}

func joinModule(module, name string) string {
	if module == "" {
		return name
	}
	return module + "." + name
}

func dots(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '.'
	}
	return string(b)
}

// moduleMember looks a name up in a module, falling back to submodules.
func (e *Evaluator) moduleMember(f *SourceFile, m *types.ModuleType, name string) (types.Type, bool) {
	target := e.prog.files[m.Path]
	if target == nil {
		return nil, false
	}
	if sym := e.bound(target).Scope.Lookup(name); sym != nil {
		if !target.IsStub() || reexported(sym) {
			return e.symbolType(sym), true
		}
	}
	if sub := e.prog.resolveImport(target, joinModule(m.Name, name), 0); sub != nil {
		return &types.ModuleType{Name: sub.Module, Path: sub.Path}, true
	}
	return nil, false
}
