package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

func TestFlatUnion(t *testing.T) {
	flat := &types.UnionType{Members: []types.Type{types.None, types.Unbound}}
	assert.True(t, flatUnion(flat))
	assert.True(t, flatUnion(types.None))
	assert.True(t, flatUnion(types.Union(types.None, flat)))

	nested := &types.UnionType{Members: []types.Type{types.None, flat}}
	assert.False(t, flatUnion(nested))
	assert.False(t, flatUnion(&types.UnionType{Members: []types.Type{types.None}}))
}

func TestSpeculationBuffers(t *testing.T) {
	c := newTypeCache()
	f := &SourceFile{Path: "a.py", Version: 1}
	key := exprKey{node: 1}

	c.speculate()
	c.setExpr(f, key, types.None)
	got, ok := c.expr(f, key)
	assert.True(t, ok)
	assert.Equal(t, types.None, got)
	c.discard()

	_, ok = c.expr(f, key)
	assert.False(t, ok)
	assert.False(t, c.Speculative())
}

func TestSpeculativeLambdaParams(t *testing.T) {
	c := newTypeCache()
	prm := &pyast.Param{Name: "x"}
	noParts := func(string) *partition { return nil }

	c.speculate()
	c.setLambdaParam(prm, types.None)
	got, ok := c.lambdaParam(prm)
	assert.True(t, ok)
	assert.Equal(t, types.None, got)
	c.discard()
	_, ok = c.lambdaParam(prm)
	assert.False(t, ok)

	c.speculate()
	c.speculate()
	c.setLambdaParam(prm, types.Never)
	c.top().diags = append(c.top().diags, &Diagnostic{Kind: MemberMissing, Severity: SeverityError})
	assert.True(t, c.top().failed())
	diags := c.commit(noParts)
	assert.Len(t, diags, 1)
	assert.False(t, c.top().failed())
	assert.Empty(t, c.commit(noParts))
	got, ok = c.lambdaParam(prm)
	assert.True(t, ok)
	assert.Equal(t, types.Never, got)
}
