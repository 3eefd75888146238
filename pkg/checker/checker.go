package checker

import (
	"context"
	"log/slog"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// checkFile evaluates every reachable statement of a file so that all of
// its diagnostics are reported. A second check of an unchanged file only
// reads the cache.
func (e *Evaluator) checkFile(ctx context.Context, f *SourceFile) error {
	defer e.withContext(ctx)()
	if err := e.cancelled(); err != nil {
		return err
	}
	p := e.part(f)
	if p.checked {
		return nil
	}
	e.bound(f)
	slog.Debug("checking file", "path", f.Path, "module", f.Module)
	for _, se := range f.AST.Errors {
		e.reportAt(f, se.Location, ParseError, "%s", se.Message)
	}
	if err := e.checkBody(f, f.AST.Body); err != nil {
		return err
	}
	if err := e.cancelled(); err != nil {
		return err
	}
	p.checked = true
	return nil
}

func (e *Evaluator) checkBody(f *SourceFile, body []pyast.Stmt) error {
	for _, stmt := range body {
		if err := e.cancelled(); err != nil {
			return err
		}
		if !e.isFlowReachable(f, f.Bind.FlowOf(stmt)) {
			continue
		}
		e.evaluateStatement(f, stmt)
		for _, nested := range nestedBodies(stmt) {
			if err := e.checkBody(f, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// nestedBodies lists the statement blocks directly inside a statement.
func nestedBodies(stmt pyast.Stmt) [][]pyast.Stmt {
	switch s := stmt.(type) {
	case *pyast.If:
		return [][]pyast.Stmt{s.Body, s.Else}
	case *pyast.While:
		return [][]pyast.Stmt{s.Body, s.Else}
	case *pyast.For:
		return [][]pyast.Stmt{s.Body, s.Else}
	case *pyast.With:
		return [][]pyast.Stmt{s.Body}
	case *pyast.Try:
		out := [][]pyast.Stmt{s.Body}
		for _, h := range s.Handlers {
			out = append(out, h.Body)
		}
		return append(out, s.Else, s.Finally)
	case *pyast.Match:
		out := make([][]pyast.Stmt, 0, len(s.Cases))
		for _, c := range s.Cases {
			out = append(out, c.Body)
		}
		return out
	case *pyast.FunctionDef:
		return [][]pyast.Stmt{s.Body}
	case *pyast.ClassDef:
		return [][]pyast.Stmt{s.Body}
	}
	return nil
}

// evaluateStatement evaluates the expressions a single statement owns,
// without descending into nested blocks.
func (e *Evaluator) evaluateStatement(f *SourceFile, stmt pyast.Node) {
	switch s := stmt.(type) {
	case *pyast.ExprStmt:
		t := e.exprType(f, s.Value, nil)
		e.checkUnknown(f, s.Value, t)
	case *pyast.Assign:
		m := e.bindTargets(f, s)
		for _, t := range s.Targets {
			if tt, ok := m[t.ID()]; ok {
				e.checkUnknown(f, t, tt)
			}
		}
	case *pyast.AnnAssign:
		e.checkAnnAssign(f, s)
	case *pyast.AugAssign:
		e.bindTargets(f, s)
	case *pyast.Return:
		e.checkReturn(f, s)
	case *pyast.If:
		e.exprType(f, s.Test, nil)
	case *pyast.While:
		e.exprType(f, s.Test, nil)
	case *pyast.Assert:
		e.exprType(f, s.Test, nil)
		if s.Msg != nil {
			e.exprType(f, s.Msg, nil)
		}
	case *pyast.For:
		e.bindTargets(f, s)
	case *pyast.With:
		for _, item := range s.Items {
			e.bindTargets(f, item)
		}
	case *pyast.Try:
		for _, h := range s.Handlers {
			e.bindTargets(f, h)
		}
	case *pyast.Raise:
		e.checkRaise(f, s)
	case *pyast.Match:
		e.exprType(f, s.Subject, nil)
		for _, c := range s.Cases {
			e.bindTargets(f, c)
			if c.Guard != nil && e.isFlowReachable(f, f.Bind.FlowOf(c)) {
				e.exprType(f, c.Guard, nil)
			}
		}
	case *pyast.Delete:
		for _, t := range s.Targets {
			e.checkDelete(f, t)
		}
	case *pyast.Import:
		e.checkImports(f, s.Names)
	case *pyast.ImportFrom:
		if s.Wildcard {
			if e.prog.resolveImport(f, s.Module, s.Level) == nil {
				e.report(f, s, ImportMissing, "Import \"%s\" could not be resolved", dots(s.Level)+s.Module)
			}
			return
		}
		e.checkImports(f, s.Names)
	case *pyast.TypeAlias:
		e.bindTargets(f, s)
	case *pyast.FunctionDef:
		e.checkFunction(f, s)
	case *pyast.ClassDef:
		e.checkClass(f, s)
	}
}

func (e *Evaluator) checkAnnAssign(f *SourceFile, s *pyast.AnnAssign) {
	if d := e.bound(f).DeclOf(s.Target); d != nil {
		e.declType(d)
	} else {
		e.annotationType(f, s.Annotation, annNone)
	}
	if s.Value != nil {
		e.bindTargets(f, s)
	}
	if _, ok := s.Target.(*pyast.Name); !ok {
		e.exprType(f, s.Target, nil)
	}
}

func (e *Evaluator) checkImports(f *SourceFile, names []*pyast.Alias) {
	bf := e.bound(f)
	for _, a := range names {
		if d := bf.DeclOf(a); d != nil {
			e.declType(d)
		}
	}
}

// checkUnknown reports a partially unknown type when strict_unknown is
// enabled.
func (e *Evaluator) checkUnknown(f *SourceFile, n pyast.Node, t types.Type) {
	if !e.config.StrictUnknown || f.IsStub() {
		return
	}
	if types.IsUnknown(t) {
		e.report(f, n, PartiallyUnknown, "Type of \"%s\" is unknown", f.AST.Text(n))
		return
	}
	if types.IsPartlyUnknown(t) {
		e.report(f, n, PartiallyUnknown, "Type of \"%s\" is partially unknown\n  Type of \"%s\" is \"%s\"", f.AST.Text(n), f.AST.Text(n), t)
	}
}

// expectedReturn is the type a return statement of fd must produce: the
// declared return, or the result type of a declared generator. It is nil
// when fd has no annotation.
func (e *Evaluator) expectedReturn(f *SourceFile, fd *pyast.FunctionDef) types.Type {
	declared := e.declaredReturn(f, fd)
	if declared == nil {
		return nil
	}
	scope := e.bound(f).ScopeFor(fd)
	if scope == nil || !scope.IsGenerator() {
		return declared
	}
	if gen := e.typingInfo("Generator"); gen != nil {
		if inst, ok := upcast(declared, gen); ok && len(inst.Args) == 3 {
			return inst.Args[2]
		}
	}
	if agen := e.typingInfo("AsyncGenerator"); agen != nil {
		if _, ok := upcast(declared, agen); ok {
			return types.None
		}
	}
	return types.Unknown
}

func (e *Evaluator) checkReturn(f *SourceFile, r *pyast.Return) {
	fd := enclosingFunction(f, r)
	if fd == nil {
		if r.Value != nil {
			e.exprType(f, r.Value, nil)
		}
		return
	}
	want := e.expectedReturn(f, fd)
	var got types.Type = types.None
	var at pyast.Node = r
	if r.Value != nil {
		got = e.exprType(f, r.Value, want)
		at = r.Value
	}
	if want == nil || types.IsAnyOrUnknown(want) {
		return
	}
	if types.IsNever(want) {
		e.report(f, r, ReturnType, "Function with declared return type \"NoReturn\" cannot include a return statement")
		return
	}
	if !e.isAssignable(want, got) {
		e.reportAssign(f, at, got, want, "Type \"%s\" is not assignable to return type \"%s\"", got, want)
	}
}

func (e *Evaluator) checkRaise(f *SourceFile, s *pyast.Raise) {
	base := e.builtinInfo("BaseException")
	check := func(x pyast.Expr, allowNone bool) {
		t := e.exprType(f, x, nil)
		if base == nil {
			return
		}
		for _, m := range types.Members(t) {
			switch {
			case types.IsAnyOrUnknown(m), types.IsNever(m):
				continue
			case allowNone && types.IsNone(m):
				continue
			}
			if tv, ok := m.(*types.TypeVarType); ok {
				m = e.upperBound(tv)
			}
			if info := types.InfoOf(m); info != nil && types.DerivesFrom(info, base) {
				continue
			}
			e.report(f, x, AssignabilityFailure, "Exceptions must derive from BaseException")
			return
		}
	}
	if s.Exc != nil {
		check(s.Exc, false)
	}
	if s.Cause != nil {
		check(s.Cause, true)
	}
}

func (e *Evaluator) checkDelete(f *SourceFile, target pyast.Expr) {
	switch t := target.(type) {
	case *pyast.Tuple:
		for _, el := range t.Elts {
			e.checkDelete(f, el)
		}
	case *pyast.List:
		for _, el := range t.Elts {
			e.checkDelete(f, el)
		}
	case *pyast.Subscript:
		base := e.exprType(f, t.Value, nil)
		index := e.exprType(f, t.Index, nil)
		for _, m := range types.Members(base) {
			if types.IsAnyOrUnknown(m) {
				continue
			}
			if td, ok := m.(*types.TypedDictType); ok {
				if key, ok := strConst(t.Index); ok {
					if entry, ok := td.Entry(key); ok && (entry.Required || entry.ReadOnly) {
						e.report(f, t, AssignabilityFailure, "\"%s\" is a required key and cannot be deleted", key)
					}
				}
				continue
			}
			if _, ok := e.callDunder(f, t, m, "__delitem__", index); !ok {
				e.report(f, t, MemberMissing, "\"__delitem__\" method not defined on type \"%s\"", m)
				return
			}
		}
	default:
		e.exprType(f, target, nil)
	}
}

func (e *Evaluator) checkFunction(f *SourceFile, fd *pyast.FunctionDef) {
	t := e.functionType(f, fd)
	if o, ok := t.(*types.OverloadedType); ok {
		e.checkOverlaps(f, fd, o)
	}
	sig := e.signature(f, fd)
	if fd.Returns == nil || f.IsStub() || isStubBody(fd.Body) {
		return
	}
	if sig.Is(types.FuncAbstract|types.FuncOverload) || e.inProtocol(f, fd) || raisesNotImplemented(fd.Body) {
		return
	}
	scope := e.bound(f).ScopeFor(fd)
	if scope == nil || scope.IsGenerator() || !e.isFlowReachable(f, scope.EndFlow) {
		return
	}
	want := e.declaredReturn(f, fd)
	if want == nil || types.IsAnyOrUnknown(want) {
		return
	}
	if types.IsNever(want) {
		e.reportAt(f, fd.NameLoc, ReturnType, "Function with declared return type \"NoReturn\" cannot return \"None\"")
		return
	}
	if !e.isAssignable(want, types.None) {
		e.reportAt(f, fd.NameLoc, ReturnType, "Function with declared return type \"%s\" must return value on all code paths\n  \"None\" is not assignable to \"%s\"", want, want)
	}
}

func (e *Evaluator) checkClass(f *SourceFile, cd *pyast.ClassDef) {
	info := e.classInfo(f, cd)
	if info == nil || f.IsStub() || !info.Is(types.ClassProtocol) {
		return
	}
	e.checkProtocolVariance(f, cd, info)
}

// checkProtocolVariance reports protocol type parameters whose declared
// variance differs from the variance the protocol's members require.
func (e *Evaluator) checkProtocolVariance(f *SourceFile, cd *pyast.ClassDef, info *types.ClassInfo) {
	if len(info.TypeParams) == 0 {
		return
	}
	inferred := e.inferredVariance(info)
	for i, tp := range info.TypeParams {
		if tp.Variance == types.AutoVariance || tp.Kind != types.TypeVarPlain || i >= len(inferred) {
			continue
		}
		if want := inferred[i]; want != tp.Variance {
			e.reportAt(f, cd.NameLoc, VarianceViolation, "Type variable \"%s\" used in generic Protocol \"%s\" should be %s", tp.Name, info.Name, want)
		}
	}
}
