package checker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("typhon.toml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "typhon.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
python_version = "3.11"
search_paths = ["src"]
max_union_expansion = 8
strict_unknown = true
`), 0o644))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "3.11", config.PythonVersion)
		assert.Equal(t, []string{"src"}, config.SearchPaths)
		assert.Equal(t, 8, config.MaxUnionExpansion)
		assert.True(t, config.StrictUnknown)
		assert.Equal(t, dir, config.Dir)

		// Unset keys keep their defaults.
		assert.Equal(t, 64, config.MaxLoopIterations)
		assert.True(t, config.ReportOverlappingOverloads)
	})

	t.Run("pyproject.toml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "pyproject.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[project]
name = "demo"

[tool.typhon]
report_unsafe_capture = false
`), 0o644))

		config, err := LoadConfig(path)
		require.NoError(t, err)
		assert.False(t, config.ReportUnsafeCapture)
		assert.Equal(t, "3.13", config.PythonVersion)
	})

	t.Run("invalid values", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "typhon.toml")
		require.NoError(t, os.WriteFile(path, []byte(`max_loop_iterations = 0`), 0o644))

		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_loop_iterations")
	})

	t.Run("bad version", func(t *testing.T) {
		config := DefaultConfig()
		config.PythonVersion = "three"
		_, err := NewProgram(config)
		require.Error(t, err)
	})
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Run("none", func(t *testing.T) {
		path, config, err := FindConfig(nested)
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Nil(t, config)
	})

	t.Run("pyproject without table is skipped", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "pyproject.toml"), []byte("[project]\nname = \"x\"\n"), 0o644))
		path, config, err := FindConfig(nested)
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.Nil(t, config)
	})

	t.Run("found in parent", func(t *testing.T) {
		want := filepath.Join(root, "typhon.toml")
		require.NoError(t, os.WriteFile(want, []byte(`max_union_members = 16`), 0o644))
		path, config, err := FindConfig(nested)
		require.NoError(t, err)
		assert.Equal(t, want, path)
		require.NotNil(t, config)
		assert.Equal(t, 16, config.MaxUnionMembers)
	})
}
