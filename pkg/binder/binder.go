package binder

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/vito/typhon/pkg/pyast"
)

// Options configures binding.
type Options struct {
	// Builtins is the scope consulted after the module scope.
	Builtins *Scope
	// PythonVersion is used to evaluate sys.version_info checks statically.
	PythonVersion [2]int
	// Wildcard resolves the public names bound by "from module import *".
	Wildcard func(module string, level int) []string
	// Kind overrides the kind of the module scope; the builtins stub is
	// bound as ScopeBuiltins.
	Kind ScopeKind
}

// File is the binder's output for one module.
type File struct {
	Module *pyast.Module
	Scope  *Scope
	Graph  *Graph

	scopes          map[pyast.NodeID]*Scope
	typeParamScopes map[pyast.NodeID]*Scope
	exprScopes      map[pyast.NodeID]*Scope
	flows           map[pyast.NodeID]*FlowNode
	keys            map[pyast.NodeID]RefKey
	decls           map[pyast.NodeID]*Declaration
}

// ScopeOf returns the scope a node is evaluated in.
func (f *File) ScopeOf(n pyast.Node) *Scope {
	if s := f.exprScopes[n.ID()]; s != nil {
		return s
	}
	for p := f.Module.Parent(n); p != nil; p = f.Module.Parent(p) {
		if s := f.exprScopes[p.ID()]; s != nil {
			return s
		}
	}
	return f.Scope
}

// ScopeFor returns the scope introduced by a module, class, function,
// lambda or comprehension node.
func (f *File) ScopeFor(n pyast.Node) *Scope {
	return f.scopes[n.ID()]
}

// TypeParamScope returns the PEP 695 type parameter scope of a generic
// class, function or type alias statement.
func (f *File) TypeParamScope(n pyast.Node) *Scope {
	return f.typeParamScopes[n.ID()]
}

// FlowOf returns the flow node at which n is evaluated. For assignment
// targets this is the assignment node itself.
func (f *File) FlowOf(n pyast.Node) *FlowNode {
	return f.flows[n.ID()]
}

// KeyOf returns the reference key of a narrowable expression.
func (f *File) KeyOf(n pyast.Node) (RefKey, bool) {
	k, ok := f.keys[n.ID()]
	return k, ok
}

// DeclOf returns the declaration made by a binding node.
func (f *File) DeclOf(n pyast.Node) *Declaration {
	return f.decls[n.ID()]
}

var (
	nextSymbolID atomic.Int64
	nextScopeID  atomic.Int64
)

type loopTargets struct {
	cont, brk *FlowNode
	label     *FlowNode
}

type binder struct {
	file    *File
	opts    Options
	graph   *Graph
	scope   *Scope
	current *FlowNode
	loops   []loopTargets
	excepts []*FlowNode

	wildcards map[pyast.NodeID][]string
}

// Bind builds scopes, symbols and the flow graph for a module.
func Bind(mod *pyast.Module, opts Options) *File {
	if opts.PythonVersion == [2]int{} {
		opts.PythonVersion = [2]int{3, 13}
	}
	kind := opts.Kind
	if kind != ScopeBuiltins {
		kind = ScopeModule
	}
	g := newGraph()
	f := &File{
		Module:          mod,
		Graph:           g,
		scopes:          map[pyast.NodeID]*Scope{},
		typeParamScopes: map[pyast.NodeID]*Scope{},
		exprScopes:      map[pyast.NodeID]*Scope{},
		flows:           map[pyast.NodeID]*FlowNode{},
		keys:            map[pyast.NodeID]RefKey{},
		decls:           map[pyast.NodeID]*Declaration{},
	}
	b := &binder{
		file:      f,
		opts:      opts,
		graph:     g,
		wildcards: map[pyast.NodeID][]string{},
	}
	f.Scope = b.newScope(kind, opts.Builtins, mod)
	b.scope = f.Scope
	b.current = g.node(FlowStart)
	b.prescan(mod.Body)
	b.stmts(mod.Body)
	f.Scope.EndFlow = b.current
	slog.Debug("bound module", "path", mod.Path, "flowNodes", g.nextID, "symbols", len(f.Scope.Symbols))
	return f
}

func (b *binder) newScope(kind ScopeKind, parent *Scope, node pyast.Node) *Scope {
	s := newScope(int(nextScopeID.Add(1)), kind, parent, node)
	if kind != ScopeTypeParams {
		b.file.scopes[node.ID()] = s
	}
	return s
}

func (b *binder) inScope(s *Scope, fn func()) {
	saved := b.scope
	b.scope = s
	defer func() { b.scope = saved }()
	fn()
}

// inExecScope runs fn with a fresh flow graph entry, as for a function body.
func (b *binder) inExecScope(s *Scope, fn func()) {
	savedFlow, savedLoops, savedExcepts := b.current, b.loops, b.excepts
	b.current = b.graph.node(FlowStart)
	b.loops, b.excepts = nil, nil
	b.inScope(s, fn)
	s.EndFlow = b.current
	b.current, b.loops, b.excepts = savedFlow, savedLoops, savedExcepts
}

// ensureSymbol creates the symbol for a name bound in the current scope,
// following global and nonlocal redirects.
func (b *binder) ensureSymbol(scope *Scope, name string) *Symbol {
	if sym := scope.Symbols[name]; sym != nil {
		return sym
	}
	sym := &Symbol{
		ID:    int(nextSymbolID.Add(1)),
		Name:  name,
		Scope: scope,
	}
	if scope.Kind == ScopeClass {
		sym.Flags |= SymbolClassMember
	}
	if strings.HasPrefix(name, "_") && !strings.HasSuffix(name, "__") {
		sym.Flags |= SymbolExternallyHidden
	}
	scope.Symbols[name] = sym
	return sym
}

// bindingScope returns the scope a walrus target binds in.
func (b *binder) bindingScope(walrus bool) *Scope {
	s := b.scope
	if walrus {
		for s.Kind == ScopeComprehension && s.Parent != nil {
			s = s.Parent
		}
	}
	return s
}

func (b *binder) declareIn(scope *Scope, name string, d *Declaration) *Symbol {
	sym := b.ensureSymbol(scope, name)
	d.Path = b.file.Module.Path
	sym.Decls = append(sym.Decls, d)
	if d.Node != nil {
		b.file.decls[d.Node.ID()] = d
	}
	return sym
}

func (b *binder) declare(name string, d *Declaration) *Symbol {
	return b.declareIn(b.scope, name, d)
}

func (b *binder) resolveName(n *pyast.Name) *Symbol {
	return b.file.exprScopeOr(n, b.scope).Resolve(n.Id)
}

func (f *File) exprScopeOr(n pyast.Node, fallback *Scope) *Scope {
	if s := f.exprScopes[n.ID()]; s != nil {
		return s
	}
	return fallback
}

func (b *binder) key(e pyast.Expr) (RefKey, bool) {
	return keyOf(e, b.resolveName)
}

func (b *binder) noteKey(key RefKey) {
	b.scope.ExecScope().FlowKeys[key] = true
	for _, l := range b.loops {
		if l.label.Keys == nil {
			l.label.Keys = map[RefKey]bool{}
		}
		l.label.Keys[key] = true
	}
}

// assign appends an assignment flow node for a target expression.
func (b *binder) assign(target pyast.Expr, unbind bool) *FlowNode {
	key, ok := b.key(target)
	if !ok {
		return nil
	}
	n := b.graph.node(FlowAssignment, b.current)
	n.Node = target
	n.Key = key
	n.Unbind = unbind
	if name, ok := target.(*pyast.Name); ok {
		if sym := b.resolveName(name); sym != nil {
			n.Symbol = sym
			sym.AssignFlows = append(sym.AssignFlows, n)
			if sym.Scope.ExecScope() != b.scope.ExecScope() {
				sym.Flags |= SymbolModifiedElsewhere
			}
		}
	}
	b.file.keys[target.ID()] = key
	if !unbind {
		b.file.flows[target.ID()] = n
	}
	b.noteKey(key)
	b.current = n
	return n
}

// assignSymbol records the binding of a def, class or import.
func (b *binder) assignSymbol(sym *Symbol, node pyast.Node) *FlowNode {
	key := nameKey(sym)
	n := b.graph.node(FlowAssignment, b.current)
	n.Node = node
	n.Key = key
	n.Symbol = sym
	sym.AssignFlows = append(sym.AssignFlows, n)
	b.noteKey(key)
	b.current = n
	return n
}

func (b *binder) raiseEdge() {
	if len(b.excepts) > 0 {
		addAntecedent(b.excepts[len(b.excepts)-1], b.current)
	}
}

func (b *binder) stmts(ss []pyast.Stmt) {
	for _, s := range ss {
		b.stmt(s)
	}
}

func (b *binder) stmt(s pyast.Stmt) {
	b.file.flows[s.ID()] = b.current
	b.file.exprScopes[s.ID()] = b.scope

	switch s := s.(type) {
	case *pyast.ExprStmt:
		b.expr(s.Value)

	case *pyast.Assign:
		b.expr(s.Value)
		for _, t := range s.Targets {
			var value pyast.Expr
			if _, ok := t.(*pyast.Name); ok {
				value = s.Value
			}
			b.target(t, s, value, false)
		}

	case *pyast.AnnAssign:
		b.annAssign(s)

	case *pyast.AugAssign:
		b.expr(s.Target)
		b.expr(s.Value)
		switch t := s.Target.(type) {
		case *pyast.Name:
			b.declare(t.Id, &Declaration{Kind: DeclVariable, Node: t, Stmt: s})
		}
		b.assign(s.Target, false)

	case *pyast.Delete:
		for _, t := range s.Targets {
			b.deleteTarget(t)
		}

	case *pyast.Return:
		b.expr(s.Value)
		if exec := b.scope.ExecScope(); exec.Kind == ScopeFunction {
			exec.Returns = append(exec.Returns, s)
		}
		b.file.flows[s.ID()] = b.current
		b.current = b.graph.Unreachable()

	case *pyast.Raise:
		b.expr(s.Exc)
		b.expr(s.Cause)
		b.raiseEdge()
		b.current = b.graph.Unreachable()

	case *pyast.Pass, *pyast.Global, *pyast.Nonlocal:

	case *pyast.Break:
		if len(b.loops) > 0 {
			addAntecedent(b.loops[len(b.loops)-1].brk, b.current)
		}
		b.current = b.graph.Unreachable()

	case *pyast.Continue:
		if len(b.loops) > 0 {
			addAntecedent(b.loops[len(b.loops)-1].cont, b.current)
		}
		b.current = b.graph.Unreachable()

	case *pyast.If:
		thenL := b.graph.label(FlowBranchLabel)
		elseL := b.graph.label(FlowBranchLabel)
		post := b.graph.label(FlowBranchLabel)
		b.conditional(s.Test, thenL, elseL)
		b.current = b.graph.finish(thenL)
		b.stmts(s.Body)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(elseL)
		b.stmts(s.Else)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(post)

	case *pyast.While:
		pre := b.graph.label(FlowLoopLabel)
		addAntecedent(pre, b.current)
		b.current = pre
		thenL := b.graph.label(FlowBranchLabel)
		elseL := b.graph.label(FlowBranchLabel)
		post := b.graph.label(FlowBranchLabel)
		b.loops = append(b.loops, loopTargets{cont: pre, brk: post, label: pre})
		b.conditional(s.Test, thenL, elseL)
		b.current = b.graph.finish(thenL)
		b.stmts(s.Body)
		addAntecedent(pre, b.current)
		b.loops = b.loops[:len(b.loops)-1]
		b.current = b.graph.finish(elseL)
		b.stmts(s.Else)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(post)

	case *pyast.For:
		b.expr(s.Iter)
		pre := b.graph.label(FlowLoopLabel)
		addAntecedent(pre, b.current)
		b.current = pre
		elseL := b.graph.label(FlowBranchLabel)
		post := b.graph.label(FlowBranchLabel)
		addAntecedent(elseL, pre)
		b.loops = append(b.loops, loopTargets{cont: pre, brk: post, label: pre})
		b.target(s.Target, s, nil, false)
		b.stmts(s.Body)
		addAntecedent(pre, b.current)
		b.loops = b.loops[:len(b.loops)-1]
		b.current = b.graph.finish(elseL)
		b.stmts(s.Else)
		addAntecedent(post, b.current)
		b.current = b.graph.finish(post)

	case *pyast.Try:
		b.try(s)

	case *pyast.With:
		b.with(s)

	case *pyast.FunctionDef:
		b.funcDef(s)

	case *pyast.ClassDef:
		b.classDef(s)

	case *pyast.Import:
		for _, a := range s.Names {
			b.file.exprScopes[a.ID()] = b.scope
			name := a.AsName
			d := &Declaration{Kind: DeclAlias, Node: a, Stmt: s, Module: a.Name}
			if name == "" {
				name, _, _ = strings.Cut(a.Name, ".")
				d.BindsModuleRoot = strings.Contains(a.Name, ".")
			}
			sym := b.declare(name, d)
			d.Flow = b.assignSymbol(sym, a)
		}

	case *pyast.ImportFrom:
		if s.Wildcard {
			for _, name := range b.wildcardNames(s) {
				d := &Declaration{Kind: DeclAlias, Stmt: s, Module: s.Module, Imported: name, Level: s.Level}
				sym := b.declare(name, d)
				d.Flow = b.assignSymbol(sym, s)
			}
			break
		}
		for _, a := range s.Names {
			b.file.exprScopes[a.ID()] = b.scope
			name := a.AsName
			if name == "" {
				name = a.Name
			}
			d := &Declaration{Kind: DeclAlias, Node: a, Stmt: s, Module: s.Module, Imported: a.Name, Level: s.Level}
			sym := b.declare(name, d)
			d.Flow = b.assignSymbol(sym, a)
		}

	case *pyast.Assert:
		trueL := b.graph.label(FlowBranchLabel)
		falseL := b.graph.label(FlowBranchLabel)
		b.conditional(s.Test, trueL, falseL)
		b.current = b.graph.finish(falseL)
		b.expr(s.Msg)
		b.raiseEdge()
		b.current = b.graph.finish(trueL)

	case *pyast.Match:
		b.match(s)

	case *pyast.TypeAlias:
		b.typeAlias(s)
	}
}

func (b *binder) annAssign(s *pyast.AnnAssign) {
	ann, final, classVar, alias := unwrapQualifiers(s.Annotation)
	b.annotation(s.Annotation)
	b.expr(s.Value)
	d := &Declaration{
		Kind:          DeclVariable,
		Stmt:          s,
		Annotation:    ann,
		Value:         s.Value,
		Final:         final,
		ClassVar:      classVar,
		ExplicitAlias: alias,
	}
	switch t := s.Target.(type) {
	case *pyast.Name:
		b.file.exprScopes[t.ID()] = b.scope
		d.Node = t
		b.declare(t.Id, d)
		if s.Value != nil {
			d.Flow = b.assign(t, false)
		}
	case *pyast.Attribute:
		b.expr(t.Value)
		b.file.exprScopes[t.ID()] = b.scope
		d.Node = t
		b.instanceAttr(t, d)
		if s.Value != nil {
			d.Flow = b.assign(t, false)
		}
	default:
		b.target(s.Target, s, nil, false)
	}
}

// annotation binds the names used in an annotation.
func (b *binder) annotation(e pyast.Expr) {
	b.expr(e)
}

// unwrapQualifiers strips Final[...] and ClassVar[...] and recognizes
// TypeAlias annotations.
func unwrapQualifiers(ann pyast.Expr) (inner pyast.Expr, final, classVar, alias bool) {
	inner = ann
	for {
		switch qualifierName(inner) {
		case "Final":
			return nil, true, classVar, false
		case "ClassVar":
			return nil, final, true, false
		case "TypeAlias":
			return nil, final, classVar, true
		}
		sub, ok := inner.(*pyast.Subscript)
		if !ok {
			return inner, final, classVar, false
		}
		switch qualifierName(sub.Value) {
		case "Final":
			final = true
		case "ClassVar":
			classVar = true
		default:
			return inner, final, classVar, false
		}
		inner = sub.Index
	}
}

func qualifierName(e pyast.Expr) string {
	switch e := e.(type) {
	case *pyast.Name:
		return e.Id
	case *pyast.Attribute:
		if base, ok := e.Value.(*pyast.Name); ok && (base.Id == "typing" || base.Id == "typing_extensions" || base.Id == "t") {
			return e.Attr
		}
	}
	return ""
}

// target binds an assignment target.
func (b *binder) target(t pyast.Expr, stmt pyast.Node, value pyast.Expr, walrus bool) {
	b.file.exprScopes[t.ID()] = b.scope
	switch t := t.(type) {
	case *pyast.Name:
		scope := b.bindingScope(walrus)
		b.file.exprScopes[t.ID()] = scope
		d := &Declaration{Kind: DeclVariable, Node: t, Stmt: stmt, Value: value}
		b.declareIn(scope, t.Id, d)
		d.Flow = b.assign(t, false)
	case *pyast.Tuple:
		for _, e := range t.Elts {
			b.target(e, stmt, nil, walrus)
		}
	case *pyast.List:
		for _, e := range t.Elts {
			b.target(e, stmt, nil, walrus)
		}
	case *pyast.Starred:
		b.target(t.Value, stmt, nil, walrus)
	case *pyast.Attribute:
		b.expr(t.Value)
		d := &Declaration{Kind: DeclVariable, Node: t, Stmt: stmt, Value: value}
		if b.instanceAttr(t, d) {
			d.Flow = b.assign(t, false)
			return
		}
		b.assign(t, false)
	case *pyast.Subscript:
		b.expr(t.Value)
		b.expr(t.Index)
		b.assign(t, false)
	default:
		b.expr(t)
	}
}

// instanceAttr declares self.x assignments inside methods on the class.
func (b *binder) instanceAttr(t *pyast.Attribute, d *Declaration) bool {
	base, ok := t.Value.(*pyast.Name)
	if !ok || b.scope.Kind != ScopeFunction || b.scope.SelfName == "" || base.Id != b.scope.SelfName {
		return false
	}
	class := b.scope.EnclosingClass()
	if class == nil {
		return false
	}
	existing := class.Symbols[t.Attr]
	d.IsInstanceAttr = true
	sym := b.declareIn(class, t.Attr, d)
	if existing == nil {
		sym.Flags = sym.Flags&^SymbolClassMember | SymbolInstanceMember
	}
	return true
}

func (b *binder) deleteTarget(t pyast.Expr) {
	b.file.exprScopes[t.ID()] = b.scope
	switch t := t.(type) {
	case *pyast.Tuple:
		for _, e := range t.Elts {
			b.deleteTarget(e)
		}
		return
	case *pyast.List:
		for _, e := range t.Elts {
			b.deleteTarget(e)
		}
		return
	case *pyast.Attribute:
		b.expr(t.Value)
	case *pyast.Subscript:
		b.expr(t.Value)
		b.expr(t.Index)
	}
	b.file.flows[t.ID()] = b.current
	b.assign(t, true)
}

func (b *binder) try(s *pyast.Try) {
	exceptL := b.graph.label(FlowBranchLabel)
	addAntecedent(exceptL, b.current)

	b.excepts = append(b.excepts, exceptL)
	b.stmts(s.Body)
	b.excepts = b.excepts[:len(b.excepts)-1]
	b.stmts(s.Else)

	post := b.graph.label(FlowBranchLabel)
	addAntecedent(post, b.current)

	// Exceptions not handled here, or raised from handlers, reach the
	// enclosing handler.
	handlerRaise := b.graph.label(FlowBranchLabel)
	if len(s.Handlers) == 0 {
		addAntecedent(handlerRaise, b.graph.finish(exceptL))
	}
	for _, h := range s.Handlers {
		b.current = b.graph.finish(exceptL)
		b.file.flows[h.ID()] = b.current
		b.file.exprScopes[h.ID()] = b.scope
		b.expr(h.Type)
		if h.Name != nil {
			b.target(h.Name, h, nil, false)
		}
		b.excepts = append(b.excepts, handlerRaise)
		b.stmts(h.Body)
		b.excepts = b.excepts[:len(b.excepts)-1]
		if h.Name != nil {
			b.assign(h.Name, true)
		}
		addAntecedent(post, b.current)
	}
	raised := b.graph.finish(handlerRaise)
	if len(b.excepts) > 0 && len(s.Finally) == 0 {
		addAntecedent(b.excepts[len(b.excepts)-1], raised)
	}

	if len(s.Finally) == 0 {
		b.current = b.graph.finish(post)
		return
	}
	normal := b.graph.finish(post)
	finallyL := b.graph.label(FlowBranchLabel)
	addAntecedent(finallyL, normal)
	addAntecedent(finallyL, raised)
	b.current = b.graph.finish(finallyL)
	b.stmts(s.Finally)
	if normal.Kind == FlowUnreachable {
		// Only exceptional paths reach the finally block; they re-raise.
		b.raiseEdge()
		b.current = b.graph.Unreachable()
	}
}

func (b *binder) with(s *pyast.With) {
	for _, item := range s.Items {
		b.file.exprScopes[item.ID()] = b.scope
		b.expr(item.Context)
		if item.Target != nil {
			b.target(item.Target, item, nil, false)
		}
	}
	swallowed := b.graph.label(FlowBranchLabel)
	addAntecedent(swallowed, b.current)
	b.excepts = append(b.excepts, swallowed)
	b.stmts(s.Body)
	b.excepts = b.excepts[:len(b.excepts)-1]

	post := b.graph.label(FlowBranchLabel)
	addAntecedent(post, b.current)
	exc := b.graph.finish(swallowed)
	if exc.Kind != FlowUnreachable {
		pcm := b.graph.node(FlowPostContextManager, exc)
		pcm.Node = s
		addAntecedent(post, pcm)
		b.current = exc
		b.raiseEdge()
	}
	b.current = b.graph.finish(post)
}

func (b *binder) typeParamScope(owner pyast.Node, params []*pyast.TypeParam) *Scope {
	if len(params) == 0 {
		return nil
	}
	sc := b.newScope(ScopeTypeParams, b.scope, owner)
	b.file.typeParamScopes[owner.ID()] = sc
	for _, tp := range params {
		b.file.exprScopes[tp.ID()] = sc
		b.declareIn(sc, tp.Name, &Declaration{Kind: DeclTypeParam, Node: tp, Stmt: owner})
	}
	b.inScope(sc, func() {
		for _, tp := range params {
			b.expr(tp.Bound)
			b.expr(tp.Default)
		}
	})
	return sc
}

func hasDecorator(decorators []pyast.Expr, name string) bool {
	for _, d := range decorators {
		if call, ok := d.(*pyast.Call); ok {
			d = call.Func
		}
		switch d := d.(type) {
		case *pyast.Name:
			if d.Id == name {
				return true
			}
		case *pyast.Attribute:
			if d.Attr == name {
				return true
			}
		}
	}
	return false
}

func (b *binder) funcDef(s *pyast.FunctionDef) {
	for _, d := range s.Decorators {
		b.expr(d)
	}
	for _, p := range s.Params {
		b.expr(p.Default)
	}
	outer := b.scope
	tps := b.typeParamScope(s, s.TypeParams)
	annScope := outer
	if tps != nil {
		annScope = tps
	}
	b.inScope(annScope, func() {
		for _, p := range s.Params {
			b.annotation(p.Annotation)
		}
		b.annotation(s.Returns)
	})

	d := &Declaration{Kind: DeclFunction, Node: s, Stmt: s, IsMethod: outer.Kind == ScopeClass}
	sym := b.declare(s.Name, d)

	fs := b.newScope(ScopeFunction, annScope, s)
	fs.DefFlow = b.current
	if d.IsMethod && len(s.Params) > 0 && !hasDecorator(s.Decorators, "staticmethod") {
		fs.SelfName = s.Params[0].Name
	}
	b.inExecScope(fs, func() {
		for _, p := range s.Params {
			b.file.exprScopes[p.ID()] = fs
			b.ensureSymbol(fs, p.Name)
		}
		b.prescan(s.Body)
		for _, p := range s.Params {
			b.declare(p.Name, &Declaration{Kind: DeclParameter, Node: p, Stmt: s, Annotation: p.Annotation})
		}
		b.stmts(s.Body)
	})
	d.Flow = b.assignSymbol(sym, s)
}

func (b *binder) classDef(s *pyast.ClassDef) {
	for _, d := range s.Decorators {
		b.expr(d)
	}
	outer := b.scope
	tps := b.typeParamScope(s, s.TypeParams)
	baseScope := outer
	if tps != nil {
		baseScope = tps
	}
	b.inScope(baseScope, func() {
		for _, a := range s.Bases {
			b.file.exprScopes[a.ID()] = baseScope
			b.expr(a.Value)
		}
	})
	d := &Declaration{Kind: DeclClass, Node: s, Stmt: s}
	sym := b.declare(s.Name, d)

	cs := b.newScope(ScopeClass, baseScope, s)
	b.inScope(cs, func() {
		b.prescan(s.Body)
		b.stmts(s.Body)
	})
	d.Flow = b.assignSymbol(sym, s)
}

func (b *binder) typeAlias(s *pyast.TypeAlias) {
	tps := b.typeParamScope(s, s.TypeParams)
	valueScope := b.scope
	if tps != nil {
		valueScope = tps
	}
	b.inScope(valueScope, func() {
		b.expr(s.Value)
	})
	if s.Name == nil {
		return
	}
	b.file.exprScopes[s.Name.ID()] = b.scope
	d := &Declaration{Kind: DeclTypeAlias, Node: s.Name, Stmt: s, Value: s.Value}
	b.declare(s.Name.Id, d)
	d.Flow = b.assign(s.Name, false)
}

func (b *binder) match(s *pyast.Match) {
	b.expr(s.Subject)
	post := b.graph.label(FlowBranchLabel)
	for _, c := range s.Cases {
		pre := b.current
		b.file.exprScopes[c.ID()] = b.scope

		pos := b.graph.node(FlowNarrowForPattern, pre)
		pos.Node = c
		pos.Subject = s.Subject
		pos.Pattern = c.Pattern
		pos.Positive = true
		b.current = pos
		b.file.flows[c.ID()] = pos
		b.pattern(c.Pattern, c)

		var guardFalse *FlowNode
		if c.Guard != nil {
			trueL := b.graph.label(FlowBranchLabel)
			falseL := b.graph.label(FlowBranchLabel)
			b.conditional(c.Guard, trueL, falseL)
			guardFalse = b.graph.finish(falseL)
			b.current = b.graph.finish(trueL)
		}
		b.stmts(c.Body)
		addAntecedent(post, b.current)

		if c.Guard != nil {
			next := b.graph.label(FlowBranchLabel)
			addAntecedent(next, pre)
			addAntecedent(next, guardFalse)
			b.current = b.graph.finish(next)
			continue
		}
		neg := b.graph.node(FlowNarrowForPattern, pre)
		neg.Node = c
		neg.Subject = s.Subject
		neg.Pattern = c.Pattern
		b.current = neg
	}
	addAntecedent(post, b.current)
	b.current = b.graph.finish(post)
}

func (b *binder) pattern(p pyast.Pattern, c *pyast.MatchCase) {
	if p == nil {
		return
	}
	b.file.exprScopes[p.ID()] = b.scope
	switch p := p.(type) {
	case *pyast.MatchValue:
		b.expr(p.Value)
	case *pyast.MatchSingleton:
		b.expr(p.Value)
	case *pyast.MatchCapture:
		if p.Target != nil {
			b.target(p.Target, c, nil, false)
		}
	case *pyast.MatchStar:
		if p.Target != nil {
			b.target(p.Target, c, nil, false)
		}
	case *pyast.MatchSequence:
		for _, sub := range p.Patterns {
			b.pattern(sub, c)
		}
	case *pyast.MatchMapping:
		for i, k := range p.Keys {
			b.expr(k)
			b.pattern(p.Values[i], c)
		}
		if p.Rest != nil {
			b.target(p.Rest, c, nil, false)
		}
	case *pyast.MatchClass:
		b.expr(p.Cls)
		for _, sub := range p.Patterns {
			b.pattern(sub, c)
		}
		for _, sub := range p.KwdPatterns {
			b.pattern(sub, c)
		}
	case *pyast.MatchAs:
		b.pattern(p.Pattern, c)
		if p.Target != nil {
			b.target(p.Target, c, nil, false)
		}
	case *pyast.MatchOr:
		for _, sub := range p.Patterns {
			b.pattern(sub, c)
		}
	}
}

func (b *binder) wildcardNames(s *pyast.ImportFrom) []string {
	if names, ok := b.wildcards[s.ID()]; ok {
		return names
	}
	var names []string
	if b.opts.Wildcard != nil {
		names = b.opts.Wildcard(s.Module, s.Level)
	}
	b.wildcards[s.ID()] = names
	return names
}
