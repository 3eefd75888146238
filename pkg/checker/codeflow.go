package checker

import (
	"log/slog"
	"math"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// widenAfter is the loop pass after which literal approximations are
// widened so that counters converge.
const widenAfter = 3

type loopKey struct {
	path string
	flow int
	key  binder.RefKey
}

// loopState is the approximation of a loop label that is being solved.
type loopState struct {
	approx types.Type
	// index is the position of the loop in Evaluator.loopSeq.
	index int
	// depth is the frame depth when solving started.
	depth int
}

// flowWalker evaluates one reference backwards through the flow graph.
type flowWalker struct {
	e     *Evaluator
	f     *SourceFile
	key   binder.RefKey
	start types.Type
	// cacheable is set for plain names, whose start type does not depend
	// on the query point.
	cacheable bool
	memo      map[int]walkResult
	epoch     int
}

type walkResult struct {
	t        types.Type
	complete bool
	epoch    int
}

func isNameKey(key binder.RefKey) bool {
	return !strings.ContainsAny(string(key), ".[")
}

// flowType returns the type of the reference identified by key at flow,
// given its type at the start of the execution scope.
func (e *Evaluator) flowType(f *SourceFile, key binder.RefKey, flow *binder.FlowNode, start types.Type) types.Type {
	if flow == nil {
		return start
	}
	cacheable := isNameKey(key)
	if cacheable {
		if t, ok := e.cache.flow(f, flowKey{flow: flow.ID, key: key}); ok {
			return t
		}
	}
	t, _ := e.guard(flowFrame{f.Path, flow.ID, key}, func() types.Type {
		w := &flowWalker{
			e:         e,
			f:         f,
			key:       key,
			start:     start,
			cacheable: cacheable,
			memo:      map[int]walkResult{},
		}
		return w.eval(flow)
	})
	return t
}

func (w *flowWalker) eval(n *binder.FlowNode) types.Type {
	if r, ok := w.memo[n.ID]; ok && (r.complete || r.epoch == w.epoch) {
		return r.t
	}
	if w.cacheable {
		if t, ok := w.e.cache.flow(w.f, flowKey{flow: n.ID, key: w.key}); ok {
			return t
		}
	}
	e := w.e
	marks := e.marks
	outer := len(e.loopSeq)
	savedLow := e.lowWater
	e.lowWater = math.MaxInt

	t := w.compute(n)

	complete := e.marks == marks && e.lowWater >= outer
	e.lowWater = min(savedLow, e.lowWater)
	w.memo[n.ID] = walkResult{t: t, complete: complete, epoch: w.epoch}
	if complete && w.cacheable {
		e.cache.setFlow(w.f, flowKey{flow: n.ID, key: w.key}, t)
	}
	return t
}

func (w *flowWalker) compute(n *binder.FlowNode) types.Type {
	e, f := w.e, w.f
	switch n.Kind {
	case binder.FlowUnreachable:
		return types.Never

	case binder.FlowStart:
		return w.start

	case binder.FlowAssignment:
		if n.Key == w.key {
			if n.Unbind {
				return types.Unbound
			}
			return e.assignedType(f, n)
		}
		if n.Key.IsPrefixOf(w.key) {
			// Assigning x invalidates narrowing of x.y.
			return w.start
		}
		return w.eval(n.Antecedent())

	case binder.FlowTrueCondition, binder.FlowFalseCondition:
		cond, _ := n.Node.(pyast.Expr)
		positive := n.Kind == binder.FlowTrueCondition
		for _, nw := range e.narrowings(f, cond, positive) {
			if nw.key == w.key {
				return nw.apply(w.eval(n.Antecedent()))
			}
		}
		if e.conditionUnreachable(f, n) {
			return types.Never
		}
		return w.eval(n.Antecedent())

	case binder.FlowNarrowForPattern:
		if key, ok := e.bound(f).KeyOf(n.Subject); ok && key == w.key {
			subject := w.eval(n.Antecedent())
			return e.narrowPattern(f, subject, n.Pattern, n.Positive)
		}
		if e.patternUnreachable(f, n) {
			return types.Never
		}
		return w.eval(n.Antecedent())

	case binder.FlowCall:
		if call, ok := n.Node.(*pyast.Call); ok && e.isNoReturnCall(f, call) {
			return types.Never
		}
		return w.eval(n.Antecedent())

	case binder.FlowPostContextManager:
		if with, ok := n.Node.(*pyast.With); ok && !e.swallowsExceptions(f, with) {
			return types.Never
		}
		return w.eval(n.Antecedent())

	case binder.FlowBranchLabel:
		ts := make([]types.Type, 0, len(n.Antecedents))
		for _, a := range n.Antecedents {
			ts = append(ts, w.eval(a))
		}
		return types.Union(ts...)

	case binder.FlowLoopLabel:
		return w.loop(n)
	}
	return types.Unknown
}

// loop solves a loop label by iterating its back edges to a fixed point.
// Nested reads of the label see the current approximation.
func (w *flowWalker) loop(n *binder.FlowNode) types.Type {
	e := w.e
	if len(n.Antecedents) == 0 {
		return types.Never
	}
	if !loopAssigns(n, w.key) {
		return w.eval(n.Antecedents[0])
	}
	lk := loopKey{path: w.f.Path, flow: n.ID, key: w.key}
	if st, ok := e.loops[lk]; ok {
		e.lowWater = min(e.lowWater, st.index)
		e.flagFrames(st.depth)
		return st.approx
	}
	st := &loopState{index: len(e.loopSeq), depth: len(e.frames)}
	e.loops[lk] = st
	e.loopSeq = append(e.loopSeq, st)
	defer func() {
		delete(e.loops, lk)
		e.loopSeq = e.loopSeq[:len(e.loopSeq)-1]
	}()

	st.approx = w.eval(n.Antecedents[0])
	limit := e.config.MaxLoopIterations
	for i := 0; ; i++ {
		w.epoch++
		ts := make([]types.Type, 0, len(n.Antecedents))
		for _, a := range n.Antecedents {
			ts = append(ts, w.eval(a))
		}
		next := types.Union(ts...)
		if i >= widenAfter {
			next = types.StripLiteral(next)
		}
		if next.Eq(st.approx) {
			break
		}
		st.approx = next
		if i+1 >= limit {
			slog.Debug("loop fixed point bound reached", "path", w.f.Path, "flow", n.ID, "type", next.String())
			break
		}
	}
	return st.approx
}

// loopAssigns reports whether a loop body assigns key or a prefix of it.
// Other loops cannot change the reference and are skipped.
func loopAssigns(n *binder.FlowNode, key binder.RefKey) bool {
	if n.Keys[key] {
		return true
	}
	if isNameKey(key) {
		return false
	}
	for k := range n.Keys {
		if k.IsPrefixOf(key) {
			return true
		}
	}
	return false
}

// assignedType is the narrowed type a flow assignment gives its target.
func (e *Evaluator) assignedType(f *SourceFile, n *binder.FlowNode) types.Type {
	switch node := n.Node.(type) {
	case *pyast.FunctionDef:
		return e.functionType(f, node)
	case *pyast.ClassDef:
		if info := e.classInfo(f, node); info != nil {
			return &types.ClassType{Info: info}
		}
		return types.Unknown
	case *pyast.Alias:
		if d := e.bound(f).DeclOf(node); d != nil {
			return e.declType(d)
		}
	case *pyast.ImportFrom:
		if n.Symbol != nil {
			for _, d := range n.Symbol.Decls {
				if d.Stmt == pyast.Node(node) && d.Node == nil {
					return e.declType(d)
				}
			}
		}
	case pyast.Expr:
		return e.targetType(f, node)
	}
	return types.Unknown
}

// startType is the type of a symbol at the start of its execution scope:
// the parameter type for parameters and Unbound otherwise.
func (e *Evaluator) startType(f *SourceFile, sym *binder.Symbol) types.Type {
	for _, d := range sym.Decls {
		if d.Kind == binder.DeclParameter {
			return e.declType(d)
		}
	}
	return types.Unbound
}

// symbolReference evaluates a name that resolved to sym. The result may
// contain Unbound.
func (e *Evaluator) symbolReference(f *SourceFile, n *pyast.Name, sym *binder.Symbol, flow *binder.FlowNode) types.Type {
	bf := e.bound(f)
	if sym.Scope.Kind == binder.ScopeBuiltins || len(sym.Decls) > 0 && sym.Decls[0].Path != f.Path {
		return e.symbolType(sym)
	}
	key, ok := bf.KeyOf(n)
	if !ok {
		return e.symbolType(sym)
	}
	refExec := bf.ScopeOf(n).ExecScope()
	symExec := sym.Scope.ExecScope()
	if refExec == symExec {
		if flow == nil {
			return e.symbolType(sym)
		}
		t := e.flowType(f, key, flow, e.startType(f, sym))
		return e.withDeclaredFallback(sym, t)
	}
	return e.capturedReference(f, n, sym, key, refExec, symExec)
}

// withDeclaredFallback replaces Unknown placeholders in flow results with
// the declared type when there is one.
func (e *Evaluator) withDeclaredFallback(sym *binder.Symbol, t types.Type) types.Type {
	if _, ok := t.(*types.UnknownType); !ok {
		return t
	}
	if declared := e.declaredTypeOfSymbol(sym); declared != nil {
		return declared
	}
	return t
}

// capturedReference evaluates a name read from a scope nested inside the
// symbol's execution scope. Narrowing at the definition point of the
// nested scope applies only when nothing can reassign the symbol after it.
func (e *Evaluator) capturedReference(f *SourceFile, n *pyast.Name, sym *binder.Symbol, key binder.RefKey, refExec, symExec *binder.Scope) types.Type {
	inner := refExec
	for inner != nil && inner.Parent != nil && inner.Parent.ExecScope() != symExec {
		inner = inner.Parent.ExecScope()
	}
	if inner == nil || inner.DefFlow == nil {
		return e.symbolType(sym)
	}
	effective := e.symbolType(sym)
	if !e.captureSafe(f, sym, inner) {
		if e.config.ReportUnsafeCapture && !sym.Is(binder.SymbolModifiedElsewhere) {
			if declared := e.declaredTypeOfSymbol(sym); declared != nil {
				narrowed := types.RemoveUnbound(e.flowType(f, key, inner.DefFlow, e.startType(f, sym)))
				if !types.IsNever(narrowed) && !narrowed.Eq(declared) {
					e.report(f, n, UnsafeCapture, "Narrowed type of %q is not used here because it is reassigned after this scope is defined", n.Id)
				}
			}
		}
		return effective
	}
	t := e.flowType(f, key, inner.DefFlow, e.startType(f, sym))
	if types.IsUnbound(t) || types.IsNever(t) {
		return effective
	}
	return types.RemoveUnbound(t)
}

// captureSafe reports whether no assignment to sym can run after the
// nested scope inner is defined.
func (e *Evaluator) captureSafe(f *SourceFile, sym *binder.Symbol, inner *binder.Scope) bool {
	if sym.Is(binder.SymbolModifiedElsewhere) {
		return false
	}
	defStart, _ := inner.Node.Span()
	var loops []pyast.Node
outer:
	for cur := f.AST.Parent(inner.Node); cur != nil; cur = f.AST.Parent(cur) {
		switch cur.(type) {
		case *pyast.For, *pyast.While:
			loops = append(loops, cur)
		case *pyast.FunctionDef, *pyast.Lambda:
			break outer
		}
	}
	for _, af := range sym.AssignFlows {
		if af.Node == nil {
			continue
		}
		start, _ := af.Node.Span()
		if start > defStart {
			return false
		}
		for _, loop := range loops {
			ls, le := loop.Span()
			if start >= ls && start < le {
				return false
			}
		}
	}
	return true
}

// referenceAt evaluates a narrowable reference as if it were read at
// flow. It never reports diagnostics.
func (e *Evaluator) referenceAt(f *SourceFile, ref pyast.Expr, flow *binder.FlowNode) types.Type {
	bf := e.bound(f)
	switch r := ref.(type) {
	case *pyast.Name:
		sym := bf.ScopeOf(r).Resolve(r.Id)
		if sym == nil {
			return types.Unknown
		}
		return e.symbolReference(f, r, sym, flow)
	case *pyast.Attribute:
		base := types.RemoveUnbound(e.referenceAt(f, r.Value, flow))
		t := e.silentMember(f, r, base, r.Attr)
		if key, ok := bf.KeyOf(r); ok && e.narrowsKey(f, r, key) {
			return e.flowType(f, key, flow, t)
		}
		return t
	case *pyast.Subscript:
		base := types.RemoveUnbound(e.referenceAt(f, r.Value, flow))
		t := e.silentSubscript(f, r, base)
		if key, ok := bf.KeyOf(r); ok && e.narrowsKey(f, r, key) {
			return e.flowType(f, key, flow, t)
		}
		return t
	}
	return e.exprType(f, ref, nil)
}

// narrowsKey reports whether anything in the execution scope of n can
// assign or narrow the member access chain key.
func (e *Evaluator) narrowsKey(f *SourceFile, n pyast.Node, key binder.RefKey) bool {
	exec := e.bound(f).ScopeOf(n).ExecScope()
	if exec == nil {
		return false
	}
	if exec.FlowKeys[key] {
		return true
	}
	return e.conditionKeys(f, exec)[key]
}

// conditionKeys collects the member access chains tested by conditions
// and match subjects in an execution scope.
func (e *Evaluator) conditionKeys(f *SourceFile, exec *binder.Scope) map[binder.RefKey]bool {
	p := e.part(f)
	if keys, ok := p.condKeys[exec]; ok {
		return keys
	}
	bf := e.bound(f)
	keys := map[binder.RefKey]bool{}
	collect := func(x pyast.Expr) {
		if x == nil {
			return
		}
		pyast.Walk(x, func(n pyast.Node) bool {
			switch n.(type) {
			case *pyast.Lambda, *pyast.Comprehension:
				return false
			case *pyast.Attribute, *pyast.Subscript:
				if k, ok := bf.KeyOf(n); ok {
					keys[k] = true
				}
			}
			return true
		})
	}
	var body []pyast.Node
	switch node := exec.Node.(type) {
	case *pyast.Module:
		for _, s := range node.Body {
			body = append(body, s)
		}
	case *pyast.FunctionDef:
		for _, s := range node.Body {
			body = append(body, s)
		}
	case *pyast.Lambda:
		body = append(body, node.Body)
	}
	for _, root := range body {
		pyast.Walk(root, func(n pyast.Node) bool {
			switch n := n.(type) {
			case *pyast.FunctionDef, *pyast.Lambda:
				return false
			case *pyast.If:
				collect(n.Test)
			case *pyast.While:
				collect(n.Test)
			case *pyast.Assert:
				collect(n.Test)
			case *pyast.IfExp:
				collect(n.Test)
			case *pyast.BoolOp:
				collect(n.Left)
				collect(n.Right)
			case *pyast.CompFor:
				for _, c := range n.Ifs {
					collect(c)
				}
			case *pyast.Match:
				collect(n.Subject)
			case *pyast.MatchCase:
				collect(n.Guard)
			}
			return true
		})
	}
	p.condKeys[exec] = keys
	return keys
}

// conditionUnreachable reports whether a condition node can never be
// taken because the reference it tests narrows to Never.
func (e *Evaluator) conditionUnreachable(f *SourceFile, n *binder.FlowNode) bool {
	p := e.part(f)
	if v, ok := p.neverConds[n.ID]; ok {
		return v
	}
	cond, _ := n.Node.(pyast.Expr)
	positive := n.Kind == binder.FlowTrueCondition
	never := false
	complete := true
	for _, nw := range e.narrowings(f, cond, positive) {
		_, ok := e.guard(nodeFrame{f.Path, cond.ID(), "reachable"}, func() types.Type {
			before := types.RemoveUnbound(e.referenceAt(f, nw.ref, n.Antecedent()))
			if types.IsNever(before) || types.IsAnyOrUnknown(before) {
				return before
			}
			if types.IsNever(nw.apply(before)) {
				never = true
			}
			return before
		})
		complete = complete && ok
		if never {
			break
		}
	}
	if complete {
		p.neverConds[n.ID] = never
	}
	return never
}

// patternUnreachable reports whether a pattern node leaves nothing of the
// match subject, as after an exhaustive sequence of cases.
func (e *Evaluator) patternUnreachable(f *SourceFile, n *binder.FlowNode) bool {
	p := e.part(f)
	if v, ok := p.neverConds[n.ID]; ok {
		return v
	}
	never := false
	_, complete := e.guard(nodeFrame{f.Path, n.Node.ID(), "pattern"}, func() types.Type {
		subject := e.subjectTypeAt(f, n.Subject, n.Antecedent())
		if types.IsNever(subject) || types.IsAnyOrUnknown(subject) {
			return subject
		}
		never = types.IsNever(e.narrowPattern(f, subject, n.Pattern, n.Positive))
		return subject
	})
	if complete {
		p.neverConds[n.ID] = never
	}
	return never
}

// subjectTypeAt evaluates a match subject at a flow node. Subjects that
// are not narrowable references are evaluated once.
func (e *Evaluator) subjectTypeAt(f *SourceFile, subject pyast.Expr, flow *binder.FlowNode) types.Type {
	if _, ok := e.bound(f).KeyOf(subject); ok {
		return types.RemoveUnbound(e.referenceAt(f, subject, flow))
	}
	return e.exprType(f, subject, nil)
}

// isNoReturnCall reports whether a call never returns.
func (e *Evaluator) isNoReturnCall(f *SourceFile, call *pyast.Call) bool {
	p := e.part(f)
	if v, ok := p.noReturn[call.ID()]; ok {
		return v
	}
	noReturn := false
	_, complete := e.guard(nodeFrame{f.Path, call.ID(), "noreturn"}, func() types.Type {
		callee := e.exprType(f, call.Func, nil)
		noReturn = e.calleeNoReturn(f, call, callee)
		return callee
	})
	if complete {
		p.noReturn[call.ID()] = noReturn
	}
	return noReturn
}

func (e *Evaluator) calleeNoReturn(f *SourceFile, call *pyast.Call, callee types.Type) bool {
	switch c := callee.(type) {
	case *types.FunctionType:
		if c.Is(types.FuncAsync) {
			return false
		}
		ret := c.Return
		if ret == nil {
			return false
		}
		return types.IsNever(ret)
	case *types.OverloadedType:
		if len(c.Overloads) == 0 {
			return false
		}
		all := true
		for _, o := range c.Overloads {
			if o.Return == nil || !types.IsNever(o.Return) {
				all = false
			}
		}
		if all {
			return true
		}
		// Pick the overload the arguments select.
		res := e.callResult(f, call, callee, nil)
		return res.OK() && types.IsNever(res.ReturnType)
	}
	return false
}

// swallowsExceptions reports whether some context manager of a with
// statement may suppress exceptions: its __exit__ returns bool.
func (e *Evaluator) swallowsExceptions(f *SourceFile, with *pyast.With) bool {
	for _, item := range with.Items {
		cm := e.exprType(f, item.Context, nil)
		name := "__exit__"
		if with.Async {
			name = "__aexit__"
		}
		for _, m := range types.Members(cm) {
			exit := e.silentMemberOf(f, m, name)
			if exit == nil {
				continue
			}
			ret := e.returnTypeOf(exit)
			if with.Async {
				ret = e.awaitedType(f, nil, ret)
			}
			if info := types.InfoOf(ret); isBuiltin(info, "bool") {
				if _, lit := ret.(*types.LiteralType); !lit {
					return true
				}
			}
			if lit, ok := ret.(*types.LiteralType); ok && lit.Value == true {
				return true
			}
		}
	}
	return false
}
