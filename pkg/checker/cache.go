package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// exprKey addresses an expression evaluated at a flow node. Flow 0 means the
// expression's own flow node. expected is the printed expected type, empty
// when the expression was evaluated without one.
type exprKey struct {
	node     pyast.NodeID
	flow     int
	expected string
}

type flowKey struct {
	flow int
	key  binder.RefKey
}

// partition holds everything computed for one version of one file.
type partition struct {
	version int

	exprs map[exprKey]types.Type
	flows map[flowKey]types.Type
	// contexts records the expected type an expression was last checked
	// with, so lookups by node find the contextual result.
	contexts map[pyast.NodeID]string
	// targets are the narrowed types of assignment targets by statement.
	targets map[pyast.NodeID]map[pyast.NodeID]types.Type

	annotations map[pyast.NodeID]types.Type
	declared    map[*binder.Declaration]types.Type
	inferred    map[*binder.Declaration]types.Type
	effective   map[*binder.Symbol]types.Type

	classes     map[pyast.NodeID]*types.ClassInfo
	signatures  map[pyast.NodeID]*types.FunctionType
	functions   map[pyast.NodeID]types.Type
	returns     map[pyast.NodeID]types.Type
	aliases     map[pyast.NodeID]*types.AliasDef
	forwardRefs map[pyast.NodeID]pyast.Expr
	noReturn    map[pyast.NodeID]bool
	neverConds  map[int]bool
	condKeys    map[*binder.Scope]map[binder.RefKey]bool
	narrowers   map[condKey][]narrowing
	synthesized map[*types.ClassInfo]map[string]types.Type
	variance    map[*types.ClassInfo][]types.Variance
	fields      map[*types.ClassInfo][]classField
	dataclasses map[*types.ClassInfo]*dataclassOptions
	typeParams  map[pyast.NodeID]*types.TypeVarType
	reachable   map[int]bool
	// origins maps nodes parsed from string annotations to the string
	// constant they were parsed from.
	origins map[pyast.NodeID]pyast.Node

	checked bool
}

func newPartition(version int) *partition {
	return &partition{
		version:     version,
		exprs:       map[exprKey]types.Type{},
		flows:       map[flowKey]types.Type{},
		contexts:    map[pyast.NodeID]string{},
		targets:     map[pyast.NodeID]map[pyast.NodeID]types.Type{},
		annotations: map[pyast.NodeID]types.Type{},
		declared:    map[*binder.Declaration]types.Type{},
		inferred:    map[*binder.Declaration]types.Type{},
		effective:   map[*binder.Symbol]types.Type{},
		classes:     map[pyast.NodeID]*types.ClassInfo{},
		signatures:  map[pyast.NodeID]*types.FunctionType{},
		functions:   map[pyast.NodeID]types.Type{},
		returns:     map[pyast.NodeID]types.Type{},
		aliases:     map[pyast.NodeID]*types.AliasDef{},
		forwardRefs: map[pyast.NodeID]pyast.Expr{},
		noReturn:    map[pyast.NodeID]bool{},
		neverConds:  map[int]bool{},
		condKeys:    map[*binder.Scope]map[binder.RefKey]bool{},
		narrowers:   map[condKey][]narrowing{},
		synthesized: map[*types.ClassInfo]map[string]types.Type{},
		variance:    map[*types.ClassInfo][]types.Variance{},
		fields:      map[*types.ClassInfo][]classField{},
		dataclasses: map[*types.ClassInfo]*dataclassOptions{},
		typeParams:  map[pyast.NodeID]*types.TypeVarType{},
		reachable:   map[int]bool{},
		origins:     map[pyast.NodeID]pyast.Node{},
	}
}

type specKey struct {
	path string
	expr exprKey
}

type specFlowKey struct {
	path string
	flow flowKey
}

type specTargetKey struct {
	path string
	stmt pyast.NodeID
}

// specBuffer holds writes made while evaluating speculatively. Expression,
// flow and target results go here instead of the partitions, along with
// lambda parameter types and any diagnostics.
type specBuffer struct {
	exprs   map[specKey]types.Type
	flows   map[specFlowKey]types.Type
	targets map[specTargetKey]map[pyast.NodeID]types.Type
	lambdas map[*pyast.Param]types.Type
	diags   []*Diagnostic
}

func newSpecBuffer() *specBuffer {
	return &specBuffer{
		exprs:   map[specKey]types.Type{},
		flows:   map[specFlowKey]types.Type{},
		targets: map[specTargetKey]map[pyast.NodeID]types.Type{},
		lambdas: map[*pyast.Param]types.Type{},
	}
}

// failed reports whether an error was reported under the buffer.
func (b *specBuffer) failed() bool {
	for _, d := range b.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// TypeCache memoizes evaluation results per file. A file's partition is
// discarded when its version changes.
type TypeCache struct {
	parts map[string]*partition
	spec  []*specBuffer
	// lambdas are the parameter types of the lambdas last inferred against
	// an expected callable.
	lambdas map[*pyast.Param]types.Type
}

func newTypeCache() *TypeCache {
	return &TypeCache{parts: map[string]*partition{}, lambdas: map[*pyast.Param]types.Type{}}
}

func (c *TypeCache) part(f *SourceFile) *partition {
	p := c.parts[f.Path]
	if p == nil || p.version != f.Version {
		p = newPartition(f.Version)
		c.parts[f.Path] = p
	}
	return p
}

// Drop discards everything computed for a file.
func (c *TypeCache) Drop(path string) {
	delete(c.parts, path)
}

func (c *TypeCache) reset() {
	c.parts = map[string]*partition{}
	c.spec = nil
	c.lambdas = map[*pyast.Param]types.Type{}
}

// Speculative reports whether writes are being buffered.
func (c *TypeCache) Speculative() bool {
	return len(c.spec) > 0
}

func (c *TypeCache) top() *specBuffer {
	if len(c.spec) == 0 {
		return nil
	}
	return c.spec[len(c.spec)-1]
}

func (c *TypeCache) expr(f *SourceFile, key exprKey) (types.Type, bool) {
	for i := len(c.spec) - 1; i >= 0; i-- {
		if t, ok := c.spec[i].exprs[specKey{f.Path, key}]; ok {
			return t, true
		}
	}
	t, ok := c.part(f).exprs[key]
	return t, ok
}

func (c *TypeCache) setExpr(f *SourceFile, key exprKey, t types.Type) {
	invariant(flatUnion(t), "nested union cached for node %d: %s", key.node, t)
	if b := c.top(); b != nil {
		b.exprs[specKey{f.Path, key}] = t
		return
	}
	c.part(f).exprs[key] = t
}

func (c *TypeCache) flow(f *SourceFile, key flowKey) (types.Type, bool) {
	for i := len(c.spec) - 1; i >= 0; i-- {
		if t, ok := c.spec[i].flows[specFlowKey{f.Path, key}]; ok {
			return t, true
		}
	}
	t, ok := c.part(f).flows[key]
	return t, ok
}

func (c *TypeCache) setFlow(f *SourceFile, key flowKey, t types.Type) {
	invariant(flatUnion(t), "nested union cached for flow %d: %s", key.flow, t)
	if b := c.top(); b != nil {
		b.flows[specFlowKey{f.Path, key}] = t
		return
	}
	c.part(f).flows[key] = t
}

func (c *TypeCache) targets(f *SourceFile, stmt pyast.NodeID) (map[pyast.NodeID]types.Type, bool) {
	for i := len(c.spec) - 1; i >= 0; i-- {
		if t, ok := c.spec[i].targets[specTargetKey{f.Path, stmt}]; ok {
			return t, true
		}
	}
	t, ok := c.part(f).targets[stmt]
	return t, ok
}

func (c *TypeCache) setTargets(f *SourceFile, stmt pyast.NodeID, t map[pyast.NodeID]types.Type) {
	if b := c.top(); b != nil {
		b.targets[specTargetKey{f.Path, stmt}] = t
		return
	}
	c.part(f).targets[stmt] = t
}

func (c *TypeCache) lambdaParam(prm *pyast.Param) (types.Type, bool) {
	for i := len(c.spec) - 1; i >= 0; i-- {
		if t, ok := c.spec[i].lambdas[prm]; ok {
			return t, true
		}
	}
	t, ok := c.lambdas[prm]
	return t, ok
}

func (c *TypeCache) setLambdaParam(prm *pyast.Param, t types.Type) {
	if b := c.top(); b != nil {
		b.lambdas[prm] = t
		return
	}
	c.lambdas[prm] = t
}

// speculate starts buffering writes.
func (c *TypeCache) speculate() {
	c.spec = append(c.spec, newSpecBuffer())
}

// discard drops the innermost buffer.
func (c *TypeCache) discard() {
	invariant(len(c.spec) > 0, "discard outside speculation")
	c.spec = c.spec[:len(c.spec)-1]
}

// commit merges the innermost buffer into its parent, or into the
// partitions when it is the outermost. The buffered diagnostics are
// returned for the caller to re-emit at the enclosing level.
func (c *TypeCache) commit(parts func(path string) *partition) []*Diagnostic {
	invariant(len(c.spec) > 0, "commit outside speculation")
	b := c.top()
	c.spec = c.spec[:len(c.spec)-1]
	if parent := c.top(); parent != nil {
		for k, v := range b.exprs {
			parent.exprs[k] = v
		}
		for k, v := range b.flows {
			parent.flows[k] = v
		}
		for k, v := range b.targets {
			parent.targets[k] = v
		}
		for k, v := range b.lambdas {
			parent.lambdas[k] = v
		}
		return b.diags
	}
	for k, v := range b.exprs {
		if p := parts(k.path); p != nil {
			p.exprs[k.expr] = v
		}
	}
	for k, v := range b.flows {
		if p := parts(k.path); p != nil {
			p.flows[k.flow] = v
		}
	}
	for k, v := range b.targets {
		if p := parts(k.path); p != nil {
			p.targets[k.stmt] = v
		}
	}
	for k, v := range b.lambdas {
		c.lambdas[k] = v
	}
	return b.diags
}

// flatUnion reports whether t, if it is a union, has at least two members
// and none of them is itself a union.
func flatUnion(t types.Type) bool {
	u, ok := t.(*types.UnionType)
	if !ok {
		return true
	}
	for _, m := range u.Members {
		if _, nested := m.(*types.UnionType); nested {
			return false
		}
	}
	return len(u.Members) > 1
}
