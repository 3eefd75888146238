package typeshed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, tc := range []struct {
		module string
		path   string
	}{
		{"builtins", Prefix + "builtins.pyi"},
		{"typing", Prefix + "typing.pyi"},
		{"collections", Prefix + "collections/__init__.pyi"},
		{"collections.abc", Prefix + "collections/abc.pyi"},
	} {
		t.Run(tc.module, func(t *testing.T) {
			p, src, ok := Lookup(tc.module)
			require.True(t, ok)
			assert.Equal(t, tc.path, p)
			assert.NotEmpty(t, src)
			assert.True(t, IsStubPath(p))
		})
	}

	_, _, ok := Lookup("does_not_exist")
	assert.False(t, ok)
}

func TestModules(t *testing.T) {
	mods := Modules()
	assert.Contains(t, mods, "builtins")
	assert.Contains(t, mods, "collections.abc")
	assert.Contains(t, mods, "collections")
	assert.Contains(t, mods, "typing_extensions")
}
