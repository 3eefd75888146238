package checker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-set/v3"
	"github.com/pkg/errors"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/checker/typeshed"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// Evaluator computes the types of expressions and declarations on demand,
// memoizing results in the program's TypeCache. It is single-threaded.
type Evaluator struct {
	prog   *Program
	config *Config
	cache  *TypeCache
	ctx    context.Context

	// frames is the stack of computations in progress.
	frames []*frame
	// marks counts how often frames were flagged incomplete, so callers can
	// tell whether a nested computation touched a placeholder.
	marks int
	// aborted is set when cancellation cut a computation short. Whatever
	// was cached during that pass is thrown away.
	aborted bool

	// loops holds the approximations of loop labels being solved, in the
	// order they were entered.
	loops    map[loopKey]*loopState
	loopSeq  []*loopState
	lowWater int

	// tvScopes are the type variable scopes visible to the type expression
	// being evaluated. scoping is false outside type expressions, where type
	// variables stay unscoped.
	tvScopes   []*tvScope
	scoping    bool
	protoGuard *set.Set[protoPair]
	known      map[string]*types.ClassInfo
	// dummy is the class used to infer variance.
	dummy    *types.ClassInfo
	specials map[string]*types.ClassInfo
}

type frame struct {
	key        any
	incomplete bool
	// spec is the speculation depth the frame was entered at.
	spec int
	// diags are held until the frame is known to be complete.
	diags []*Diagnostic
}

type (
	exprFrame struct {
		path string
		node pyast.NodeID
	}
	declFrame struct {
		decl *binder.Declaration
	}
	symFrame struct {
		sym *binder.Symbol
	}
	nodeFrame struct {
		path string
		node pyast.NodeID
		what string
	}
	flowFrame struct {
		path string
		flow int
		key  binder.RefKey
	}
)

func newEvaluator(p *Program) *Evaluator {
	return &Evaluator{
		prog:       p,
		config:     p.config,
		cache:      p.cache,
		ctx:        context.Background(),
		loops:      map[loopKey]*loopState{},
		protoGuard: set.New[protoPair](8),
		known:      map[string]*types.ClassInfo{},
		specials:   map[string]*types.ClassInfo{},
	}
}

// guard runs fn with key marked as in progress. A nested request for the
// same key returns Unknown and flags every frame above the original one as
// incomplete. complete is false when the result depends on a placeholder
// and must not be cached.
func (e *Evaluator) guard(key any, fn func() types.Type) (t types.Type, complete bool) {
	if e.ctx.Err() != nil {
		e.aborted = true
		e.markIncomplete(0)
		return types.Unknown, false
	}
	for i, fr := range e.frames {
		if fr.key == key {
			e.markIncomplete(i + 1)
			slog.Debug("recursion guard triggered", "kind", RecursionGuardTriggered, "key", fmt.Sprintf("%v", key))
			return types.Unknown, false
		}
	}
	fr := &frame{key: key, spec: len(e.cache.spec)}
	e.frames = append(e.frames, fr)
	savedScopes, savedScoping := e.tvScopes, e.scoping
	e.tvScopes, e.scoping = nil, false
	defer func() {
		e.tvScopes, e.scoping = savedScopes, savedScoping
		invariant(e.frames[len(e.frames)-1] == fr, "recursion frames unbalanced at %v", key)
		e.frames = e.frames[:len(e.frames)-1]
		if !fr.incomplete {
			// Results computed from placeholders are recomputed later and
			// report again then.
			for _, d := range fr.diags {
				e.hold(d)
			}
		}
	}()
	t = fn()
	return t, !fr.incomplete
}

// inProgress reports whether key is on the frame stack.
func (e *Evaluator) inProgress(key any) bool {
	for _, fr := range e.frames {
		if fr.key == key {
			return true
		}
	}
	return false
}

func (e *Evaluator) markIncomplete(from int) {
	e.flagFrames(from)
	e.marks++
}

func (e *Evaluator) flagFrames(from int) {
	for j := max(from, 0); j < len(e.frames); j++ {
		e.frames[j].incomplete = true
	}
}

// speculate evaluates fn without committing anything it caches or reports.
func (e *Evaluator) speculate(fn func()) {
	e.cache.speculate()
	defer e.cache.discard()
	fn()
}

// speculateCommit evaluates fn speculatively and keeps its results when
// keep returns true.
func (e *Evaluator) speculateCommit(fn func() bool) bool {
	e.cache.speculate()
	if !fn() {
		e.cache.discard()
		return false
	}
	for _, d := range e.cache.commit(e.partitionOf) {
		e.hold(d)
	}
	return true
}

// hypothesis evaluates fn speculatively and keeps its results when keep
// returns true and nothing under it reported an error.
func (e *Evaluator) hypothesis(fn func() bool) bool {
	return e.speculateCommit(func() bool {
		return fn() && !e.cache.top().failed()
	})
}

func (e *Evaluator) partitionOf(path string) *partition {
	f := e.prog.files[path]
	if f == nil {
		return nil
	}
	return e.cache.part(f)
}

func (e *Evaluator) part(f *SourceFile) *partition {
	return e.cache.part(f)
}

func (e *Evaluator) bound(f *SourceFile) *binder.File {
	return e.prog.bind(f)
}

// cancelled returns a non-nil error once the current pass was cancelled.
func (e *Evaluator) cancelled() error {
	err := e.ctx.Err()
	if err == nil {
		return nil
	}
	if e.aborted {
		e.abandon()
	}
	return errors.Wrap(err, "type evaluation cancelled")
}

// abandon drops every cached result and diagnostic after an aborted pass.
// Bindings survive; the next pass evaluates from scratch.
func (e *Evaluator) abandon() {
	slog.Debug("discarding results of cancelled evaluation")
	e.cache.reset()
	e.prog.diags = newDiagnosticSink()
	e.frames = nil
	e.loops = map[loopKey]*loopState{}
	e.loopSeq = nil
	e.lowWater = 0
	e.protoGuard = set.New[protoPair](8)
	e.known = map[string]*types.ClassInfo{}
	e.specials = map[string]*types.ClassInfo{}
	e.dummy = nil
	e.aborted = false
}

func (e *Evaluator) withContext(ctx context.Context) func() {
	saved := e.ctx
	e.ctx = ctx
	return func() { e.ctx = saved }
}

// report records a diagnostic at a node.
func (e *Evaluator) report(f *SourceFile, n pyast.Node, kind ErrorKind, format string, args ...any) *Diagnostic {
	var loc *pyast.SourceLocation
	if n != nil {
		loc = n.Loc()
	}
	return e.reportAt(f, loc, kind, format, args...)
}

// reportAt records a diagnostic at a location within a node, such as the
// member name of an attribute expression.
func (e *Evaluator) reportAt(f *SourceFile, loc *pyast.SourceLocation, kind ErrorKind, format string, args ...any) *Diagnostic {
	d := &Diagnostic{
		Kind:     kind,
		Severity: kind.severity(),
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	}
	if d.Location == nil && f != nil {
		d.Location = &pyast.SourceLocation{Filename: f.Path, Line: 1, Column: 1}
	}
	e.emit(f, d)
	return d
}

func (e *Evaluator) emit(f *SourceFile, d *Diagnostic) {
	switch {
	case d.Kind == RecursionGuardTriggered:
		slog.Debug("recursion guard", "message", d.Message)
	case f != nil && typeshed.IsStubPath(f.Path):
	default:
		e.hold(d)
	}
}

// hold gives d to whichever was entered last: the innermost frame or the
// innermost speculation.
func (e *Evaluator) hold(d *Diagnostic) {
	if n := len(e.frames); n > 0 && e.frames[n-1].spec == len(e.cache.spec) {
		top := e.frames[n-1]
		top.diags = append(top.diags, d)
		return
	}
	e.deliver(d)
}

func (e *Evaluator) deliver(d *Diagnostic) {
	if b := e.cache.top(); b != nil {
		b.diags = append(b.diags, d)
		return
	}
	e.prog.diags.add(d)
}

// reportAssign records an assignability failure carrying both types.
func (e *Evaluator) reportAssign(f *SourceFile, n pyast.Node, src, dest types.Type, format string, args ...any) {
	d := &Diagnostic{
		Kind:     AssignabilityFailure,
		Severity: AssignabilityFailure.severity(),
		Message:  fmt.Sprintf(format, args...),
		Source:   src,
		Dest:     dest,
	}
	if miss, ok := e.protocolMismatch(dest, src); ok {
		d.Member = miss.member
		d.Message += "\n  " + miss.String()
	}
	if n != nil {
		d.Location = n.Loc()
	}
	if d.Location == nil && f != nil {
		d.Location = &pyast.SourceLocation{Filename: f.Path, Line: 1, Column: 1}
	}
	e.emit(f, d)
}

// EvaluateType returns the type of a node. The enclosing statement is
// evaluated first so that expected types flow into the node the same way
// they do during checking.
func (e *Evaluator) EvaluateType(ctx context.Context, f *SourceFile, n pyast.Node) (types.Type, error) {
	defer e.withContext(ctx)()
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	e.bound(f)
	if stmt := enclosingStmt(f, n); stmt != nil {
		e.evaluateStatement(f, stmt)
	}
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	return e.typeOfNode(f, n), nil
}

// TypeAtFlow evaluates a reference expression as if it were read at the
// given flow node.
func (e *Evaluator) TypeAtFlow(ctx context.Context, f *SourceFile, ref pyast.Expr, flow *binder.FlowNode) (types.Type, error) {
	defer e.withContext(ctx)()
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	t := e.referenceAt(f, ref, flow)
	if err := e.cancelled(); err != nil {
		return nil, err
	}
	return t, nil
}

func (e *Evaluator) typeOfNode(f *SourceFile, n pyast.Node) types.Type {
	if expected, ok := e.part(f).contexts[n.ID()]; ok {
		if t, ok := e.cache.expr(f, exprKey{node: n.ID(), expected: expected}); ok {
			return t
		}
	}
	if t, ok := e.cache.expr(f, exprKey{node: n.ID()}); ok {
		return t
	}
	if t, ok := e.part(f).annotations[n.ID()]; ok {
		return t
	}
	switch n := n.(type) {
	case *pyast.FunctionDef:
		return e.functionType(f, n)
	case *pyast.ClassDef:
		if info := e.classInfo(f, n); info != nil {
			return &types.ClassType{Info: info}
		}
		return types.Unknown
	case *pyast.Param:
		if d := e.bound(f).DeclOf(n); d != nil {
			return e.declType(d)
		}
	case *pyast.Alias:
		if d := e.bound(f).DeclOf(n); d != nil {
			return e.declType(d)
		}
	case pyast.Expr:
		if isTarget(f, n) {
			return e.targetType(f, n)
		}
		if inAnnotation(f, n) {
			return e.annotationType(f, n, annNone)
		}
		return e.exprType(f, n, nil)
	}
	return types.Unknown
}

// enclosingStmt returns the statement-level node that evaluates n.
func enclosingStmt(f *SourceFile, n pyast.Node) pyast.Node {
	for cur := n; cur != nil; cur = f.AST.Parent(cur) {
		switch cur.(type) {
		case *pyast.FunctionDef, *pyast.ClassDef:
			if cur != n {
				return nil
			}
		case pyast.Stmt:
			return cur
		}
	}
	return nil
}

func isTarget(f *SourceFile, n pyast.Node) bool {
	flow := f.Bind.FlowOf(n)
	return flow != nil && flow.Kind == binder.FlowAssignment && flow.Node == n
}

func inAnnotation(f *SourceFile, n pyast.Node) bool {
	child := n
	for cur := f.AST.Parent(n); cur != nil; cur = f.AST.Parent(cur) {
		switch p := cur.(type) {
		case *pyast.AnnAssign:
			return p.Annotation == child
		case *pyast.Param:
			return p.Annotation == child
		case *pyast.FunctionDef:
			return p.Returns == child
		case pyast.Stmt:
			return false
		}
		child = cur
	}
	return false
}

// Known classes.

func (e *Evaluator) moduleFile(module string) *SourceFile {
	f, err := e.prog.loadStub(module)
	if err != nil {
		return nil
	}
	e.bound(f)
	return f
}

// stubInfo returns a class declared at the top level of a stub module.
func (e *Evaluator) stubInfo(module, name string) *types.ClassInfo {
	key := module + "." + name
	if info, ok := e.known[key]; ok {
		return info
	}
	f := e.moduleFile(module)
	if f == nil {
		return nil
	}
	sym := f.Bind.Scope.Lookup(name)
	if sym == nil {
		return nil
	}
	c, ok := e.symbolType(sym).(*types.ClassType)
	if !ok || c.Info.Is(types.ClassPartial) {
		return nil
	}
	e.known[key] = c.Info
	return c.Info
}

func (e *Evaluator) builtinInfo(name string) *types.ClassInfo {
	return e.stubInfo("builtins", name)
}

func (e *Evaluator) typingInfo(name string) *types.ClassInfo {
	return e.stubInfo("typing", name)
}

func (e *Evaluator) objectType() types.Type {
	return e.builtinInstance("object")
}

// instanceOf builds an instance of info, filling missing type arguments
// with defaults.
func (e *Evaluator) instanceOf(info *types.ClassInfo, args ...types.Type) types.Type {
	if info == nil {
		return types.Unknown
	}
	if info.Name == "tuple" && info.Module == "builtins" {
		elem := types.Unknown
		if len(args) > 0 {
			elem = args[0]
		}
		return types.HomogeneousTuple(info, elem)
	}
	if len(args) < len(info.TypeParams) {
		defaults := types.DefaultArgs(info.TypeParams)
		args = append(append([]types.Type(nil), args...), defaults[len(args):]...)
	}
	if len(info.TypeParams) == 0 {
		args = nil
	}
	if info.Is(types.ClassTypedDict) {
		return &types.TypedDictType{Info: info, Args: args}
	}
	return &types.InstanceType{Info: info, Args: args}
}

func (e *Evaluator) builtinInstance(name string, args ...types.Type) types.Type {
	return e.instanceOf(e.builtinInfo(name), args...)
}

func (e *Evaluator) typingInstance(name string, args ...types.Type) types.Type {
	return e.instanceOf(e.typingInfo(name), args...)
}

func (e *Evaluator) tupleOf(elems ...types.Type) *types.TupleType {
	return types.FixedTuple(e.builtinInfo("tuple"), elems...)
}

func (e *Evaluator) homTuple(elem types.Type) *types.TupleType {
	return types.HomogeneousTuple(e.builtinInfo("tuple"), elem)
}

func (e *Evaluator) newTuple(elems []types.TupleElem) types.Type {
	return types.NewTuple(e.builtinInfo("tuple"), elems)
}

// literal builds a literal type from a Go value.
func (e *Evaluator) literal(v any) types.Type {
	var cls string
	switch v.(type) {
	case int64:
		cls = "int"
	case string:
		cls = "str"
	case types.Bytes:
		cls = "bytes"
	case bool:
		cls = "bool"
	default:
		return types.Unknown
	}
	info := e.builtinInfo(cls)
	if info == nil {
		return types.Unknown
	}
	return &types.LiteralType{Info: info, Value: v}
}

func (e *Evaluator) boolType() types.Type {
	return e.builtinInstance("bool")
}

func (e *Evaluator) strType() types.Type {
	return e.builtinInstance("str")
}

func (e *Evaluator) intType() types.Type {
	return e.builtinInstance("int")
}

// isBuiltin reports whether info is the named builtins class.
func isBuiltin(info *types.ClassInfo, name string) bool {
	return info != nil && info.Name == name && info.Module == "builtins"
}

func isTypingClass(info *types.ClassInfo, name string) bool {
	return info != nil && info.Name == name && (info.Module == "typing" || info.Module == "typing_extensions" || info.Module == "collections.abc")
}
