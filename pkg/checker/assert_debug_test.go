//go:build typhondebug

package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vito/typhon/pkg/types"
)

func TestInvariantPanics(t *testing.T) {
	assert.Panics(t, func() { newTypeCache().discard() })

	nested := &types.UnionType{Members: []types.Type{types.None, &types.UnionType{Members: []types.Type{types.None, types.Unbound}}}}
	assert.Panics(t, func() {
		newTypeCache().setExpr(&SourceFile{Path: "a.py"}, exprKey{}, nested)
	})
}
