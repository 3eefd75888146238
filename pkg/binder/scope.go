// Package binder builds scopes, symbols and the control-flow graph for a
// parsed module. Its output is read-only input to the checker.
package binder

import (
	"sort"

	"github.com/vito/typhon/pkg/pyast"
)

// ScopeKind classifies a scope.
type ScopeKind int

const (
	ScopeBuiltins ScopeKind = iota
	ScopeModule
	ScopeClass
	ScopeFunction
	ScopeLambda
	ScopeComprehension
	// ScopeTypeParams holds PEP 695 type parameters between a generic
	// class, function or alias and its enclosing scope.
	ScopeTypeParams
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeBuiltins:
		return "builtins"
	case ScopeModule:
		return "module"
	case ScopeClass:
		return "class"
	case ScopeFunction:
		return "function"
	case ScopeLambda:
		return "lambda"
	case ScopeComprehension:
		return "comprehension"
	case ScopeTypeParams:
		return "type parameters"
	}
	return "unknown"
}

// Scope is a lexical scope.
type Scope struct {
	ID     int
	Kind   ScopeKind
	Parent *Scope
	// Node is the module, class, function, lambda, comprehension or
	// type-parameterized statement that introduces the scope.
	Node    pyast.Node
	Symbols map[string]*Symbol

	// DefFlow is the flow node in the enclosing execution scope at the point
	// where a function or lambda is defined.
	DefFlow *FlowNode
	// EndFlow is the flow node at the end of a function body. Reachability of
	// EndFlow decides whether the function can return None implicitly.
	EndFlow *FlowNode
	Returns []*pyast.Return
	Yields  []*pyast.Yield
	// FlowKeys lists reference keys assigned within this execution scope.
	FlowKeys map[RefKey]bool

	// Globals and Nonlocals are names redirected to an outer symbol.
	Globals   map[string]bool
	Nonlocals map[string]bool

	// SelfName is the first parameter of a method, used to recognize
	// instance attribute assignments.
	SelfName string
}

func newScope(id int, kind ScopeKind, parent *Scope, node pyast.Node) *Scope {
	return &Scope{
		ID:        id,
		Kind:      kind,
		Parent:    parent,
		Node:      node,
		Symbols:   map[string]*Symbol{},
		FlowKeys:  map[RefKey]bool{},
		Globals:   map[string]bool{},
		Nonlocals: map[string]bool{},
	}
}

// IsExecution reports whether the scope has its own flow graph.
func (s *Scope) IsExecution() bool {
	switch s.Kind {
	case ScopeModule, ScopeFunction, ScopeLambda, ScopeBuiltins:
		return true
	}
	return false
}

// ExecScope returns the nearest enclosing scope with its own flow graph.
func (s *Scope) ExecScope() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.IsExecution() {
			return cur
		}
	}
	return nil
}

// IsGenerator reports whether a function scope contains a yield.
func (s *Scope) IsGenerator() bool {
	return len(s.Yields) > 0
}

// Lookup finds a symbol declared directly in this scope.
func (s *Scope) Lookup(name string) *Symbol {
	return s.Symbols[name]
}

// Resolve looks a name up through the enclosing scopes using Python's
// rules: class scopes are not visible from scopes nested inside them.
func (s *Scope) Resolve(name string) *Symbol {
	nested := false
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind == ScopeClass && nested {
			continue
		}
		if sym := cur.Symbols[name]; sym != nil {
			return sym
		}
		if cur.Kind != ScopeTypeParams {
			nested = true
		}
	}
	return nil
}

// EnclosingClass returns the class scope a method body is nested in, or nil.
func (s *Scope) EnclosingClass() *Scope {
	for cur := s.Parent; cur != nil; cur = cur.Parent {
		switch cur.Kind {
		case ScopeClass:
			return cur
		case ScopeTypeParams:
			continue
		}
		return nil
	}
	return nil
}

// SortedSymbols returns the scope's symbols ordered by name.
func (s *Scope) SortedSymbols() []*Symbol {
	syms := make([]*Symbol, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		syms = append(syms, sym)
	}
	sort.Slice(syms, func(i, j int) bool {
		return syms[i].Name < syms[j].Name
	})
	return syms
}

// SymbolFlags records facts about a symbol.
type SymbolFlags int

const (
	// SymbolInstanceMember is set for attributes assigned through self.
	SymbolInstanceMember SymbolFlags = 1 << iota
	// SymbolClassMember is set for names bound in a class body.
	SymbolClassMember
	// SymbolModifiedElsewhere is set when a global or nonlocal statement lets
	// another scope assign the symbol.
	SymbolModifiedElsewhere
	// SymbolExternallyHidden is set for private names such as _x.
	SymbolExternallyHidden
)

// Symbol is a named binding in a scope.
type Symbol struct {
	ID    int
	Name  string
	Scope *Scope
	Decls []*Declaration
	Flags SymbolFlags
	// AssignFlows are the assignment flow nodes that bind the symbol.
	AssignFlows []*FlowNode
}

// Is reports whether all of the given flags are set.
func (s *Symbol) Is(flags SymbolFlags) bool {
	return s.Flags&flags == flags
}

// HasTypedDecls reports whether any declaration carries an explicit type.
func (s *Symbol) HasTypedDecls() bool {
	for _, d := range s.Decls {
		if d.HasExplicitType() {
			return true
		}
	}
	return false
}

// TypedDecls returns the declarations with explicit types.
func (s *Symbol) TypedDecls() []*Declaration {
	var out []*Declaration
	for _, d := range s.Decls {
		if d.HasExplicitType() {
			out = append(out, d)
		}
	}
	return out
}

// DeclKind classifies a Declaration.
type DeclKind int

const (
	DeclVariable DeclKind = iota
	DeclParameter
	DeclFunction
	DeclClass
	DeclAlias
	DeclTypeParam
	DeclTypeAlias
)

func (k DeclKind) String() string {
	switch k {
	case DeclVariable:
		return "variable"
	case DeclParameter:
		return "parameter"
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclAlias:
		return "import"
	case DeclTypeParam:
		return "type parameter"
	case DeclTypeAlias:
		return "type alias"
	}
	return "unknown"
}

// Declaration is one place a symbol is bound.
type Declaration struct {
	Kind DeclKind
	// Node is the bound name (a *pyast.Name or *pyast.Attribute for
	// instance attributes), or the def, class, parameter, type parameter or
	// import alias node.
	Node pyast.Node
	// Stmt is the statement containing the binding, if any.
	Stmt pyast.Node
	// Annotation is the explicit type annotation.
	Annotation pyast.Expr
	// Value is the assigned expression when the target is a plain name.
	Value pyast.Expr
	// Flow is the assignment flow node for the binding.
	Flow *FlowNode
	Path string

	// Final and ClassVar qualifiers are stripped from Annotation. A bare
	// Final leaves Annotation nil so the type is inferred from Value.
	Final    bool
	ClassVar bool
	// ExplicitAlias is set for "X: TypeAlias = ...".
	ExplicitAlias  bool
	IsInstanceAttr bool
	IsMethod       bool

	// Import fields.
	Module   string
	Imported string
	Level    int
	// BindsModuleRoot is set for "import a.b.c" which binds "a".
	BindsModuleRoot bool
}

// HasExplicitType reports whether the declaration pins the symbol's type.
func (d *Declaration) HasExplicitType() bool {
	switch d.Kind {
	case DeclFunction, DeclClass, DeclTypeParam, DeclTypeAlias:
		return true
	case DeclParameter:
		return d.Annotation != nil
	case DeclVariable:
		return d.Annotation != nil || d.ExplicitAlias
	}
	return false
}
