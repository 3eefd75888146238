package checker

import (
	"context"
	"sort"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/checker/typeshed"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// Member is an attribute available on a value.
type Member struct {
	Name string
	Type types.Type
	// Method is set when the attribute is a function bound to the receiver.
	Method bool
}

// MembersOf lists the attributes available on values of t, sorted by name.
// For a union only the attributes every member has are listed.
func (e *Evaluator) MembersOf(ctx context.Context, f *SourceFile, t types.Type) ([]Member, error) {
	defer e.withContext(ctx)()
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	parts := types.Members(types.Unalias(t))
	counts := map[string]int{}
	for _, m := range parts {
		for name := range e.memberNames(m) {
			counts[name]++
		}
	}
	var out []Member
	for name, n := range counts {
		if n != len(parts) {
			continue
		}
		mt := e.silentMemberOf(f, t, name)
		if mt == nil {
			continue
		}
		_, method := types.Unalias(mt).(*types.FunctionType)
		if _, ok := mt.(*types.OverloadedType); ok {
			method = true
		}
		out = append(out, Member{Name: name, Type: mt, Method: method})
	}
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *Evaluator) memberNames(t types.Type) map[string]struct{} {
	names := map[string]struct{}{}
	addScope := func(scope *binder.Scope, keep func(*binder.Symbol) bool) {
		if scope == nil {
			return
		}
		for name, sym := range scope.Symbols {
			if len(sym.Decls) > 0 && keep(sym) {
				names[name] = struct{}{}
			}
		}
	}
	switch t := t.(type) {
	case *types.ModuleType:
		target := e.prog.files[t.Path]
		if target == nil {
			return names
		}
		addScope(e.bound(target).Scope, func(sym *binder.Symbol) bool {
			return !target.IsStub() || reexported(sym)
		})
		return names
	case *types.TypeVarType:
		return e.memberNames(e.upperBound(t))
	}
	info := types.InfoOf(t)
	if info == nil {
		return names
	}
	_, classAccess := t.(*types.ClassType)
	for _, entry := range info.MRO {
		mi := types.InfoOf(entry)
		if mi == nil || mi.Is(types.ClassTypedDict) {
			continue
		}
		_, scope := e.classScope(mi)
		addScope(scope, func(sym *binder.Symbol) bool {
			return !classAccess || !sym.Is(binder.SymbolInstanceMember)
		})
	}
	return names
}

// NodeType evaluates the node at a source position, as found by
// pyast.Module.NodeAt. It returns nil when nothing typed is there.
func (e *Evaluator) NodeType(ctx context.Context, f *SourceFile, line, col int) (pyast.Node, types.Type, error) {
	n := f.AST.NodeAt(line, col)
	if n == nil {
		return nil, nil, nil
	}
	t, err := e.EvaluateType(ctx, f, n)
	if err != nil {
		return nil, nil, err
	}
	return n, t, nil
}

// Definition returns where the name at a source position is declared. It
// follows imports into the module that defines the name and returns nil
// for names defined by the bundled stubs.
func (p *Program) Definition(path string, line, col int) *pyast.SourceLocation {
	f := p.File(path)
	if f == nil {
		return nil
	}
	name, ok := f.AST.NodeAt(line, col).(*pyast.Name)
	if !ok {
		return nil
	}
	scope := f.Bind.ScopeOf(name)
	if scope == nil {
		return nil
	}
	return p.symbolDefinition(f, scope.Resolve(name.Id), 0)
}

func (p *Program) symbolDefinition(f *SourceFile, sym *binder.Symbol, depth int) *pyast.SourceLocation {
	if sym == nil || len(sym.Decls) == 0 || depth > 8 {
		return nil
	}
	d := sym.Decls[0]
	if typeshed.IsStubPath(d.Path) {
		return nil
	}
	if d.Kind != binder.DeclAlias {
		return declLocation(d)
	}
	target := p.resolveImport(f, d.Module, d.Level)
	if target == nil || typeshed.IsStubPath(target.Path) {
		return declLocation(d)
	}
	if d.Imported == "" {
		return &pyast.SourceLocation{Filename: target.Path, Line: 1, Column: 1}
	}
	if loc := p.symbolDefinition(target, p.bind(target).Scope.Lookup(d.Imported), depth+1); loc != nil {
		return loc
	}
	return declLocation(d)
}

func declLocation(d *binder.Declaration) *pyast.SourceLocation {
	switch n := d.Node.(type) {
	case *pyast.FunctionDef:
		return n.NameLoc
	case *pyast.ClassDef:
		return n.NameLoc
	}
	return d.Node.Loc()
}

// Symbol is a definition listed by Symbols.
type Symbol struct {
	Name string
	Kind binder.DeclKind
	// Container is the enclosing class, if any.
	Container string
	Location  *pyast.SourceLocation
}

// Symbols lists the module-level and class-level definitions of a file
// whose names contain query, ignoring case.
func (p *Program) Symbols(path, query string) []Symbol {
	f := p.File(path)
	if f == nil {
		return nil
	}
	query = strings.ToLower(query)
	var out []Symbol
	var collect func(scope *binder.Scope, container string)
	collect = func(scope *binder.Scope, container string) {
		for _, sym := range scope.SortedSymbols() {
			if len(sym.Decls) == 0 {
				continue
			}
			d := sym.Decls[0]
			switch d.Kind {
			case binder.DeclParameter, binder.DeclAlias, binder.DeclTypeParam:
				continue
			}
			if d.IsInstanceAttr || d.Path != f.Path {
				continue
			}
			if strings.Contains(strings.ToLower(sym.Name), query) {
				out = append(out, Symbol{
					Name:      sym.Name,
					Kind:      d.Kind,
					Container: container,
					Location:  declLocation(d),
				})
			}
			if cd, ok := d.Node.(*pyast.ClassDef); ok {
				if cs := f.Bind.ScopeFor(cd); cs != nil {
					collect(cs, sym.Name)
				}
			}
		}
	}
	collect(f.Bind.Scope, "")
	return out
}

// NamesAt lists the names visible at a source position, innermost scope
// first. Names starting with an underscore are left out of the builtins.
func (p *Program) NamesAt(path string, line, col int) []Symbol {
	f := p.File(path)
	if f == nil {
		return nil
	}
	scope := f.Bind.Scope
	pyast.Walk(f.AST, func(n pyast.Node) bool {
		switch n.(type) {
		case *pyast.FunctionDef, *pyast.ClassDef, *pyast.Lambda:
			if !n.Loc().Contains(line, col) {
				return false
			}
			if s := f.Bind.ScopeFor(n); s != nil {
				scope = s
			}
		}
		return true
	})

	seen := map[string]bool{}
	var out []Symbol
	nested := false
	for cur := scope; cur != nil; cur = cur.Parent {
		if cur.Kind == binder.ScopeClass && nested {
			continue
		}
		for _, sym := range cur.SortedSymbols() {
			if seen[sym.Name] || len(sym.Decls) == 0 {
				continue
			}
			if cur.Kind == binder.ScopeBuiltins && strings.HasPrefix(sym.Name, "_") {
				continue
			}
			seen[sym.Name] = true
			out = append(out, Symbol{Name: sym.Name, Kind: sym.Decls[0].Kind})
		}
		if cur.Kind != binder.ScopeTypeParams {
			nested = true
		}
	}
	return out
}
