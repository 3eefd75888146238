package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/typhon/pkg/checker"
)

func checkReport(t *testing.T, src string) *report {
	t.Helper()
	prog, err := checker.NewProgram(nil)
	require.NoError(t, err)
	require.NoError(t, prog.SetFileContents("main.py", []byte(src)))
	results, err := prog.CheckAll(context.Background())
	require.NoError(t, err)
	return newReport(prog, results)
}

func TestReportText(t *testing.T) {
	rep := checkReport(t, "x: int = \"a\"\nreveal_type(1 + 2)\n")
	assert.Equal(t, 1, rep.Count(checker.SeverityError))
	assert.Equal(t, 1, rep.Count(checker.SeverityInformation))

	var buf bytes.Buffer
	rep.WriteText(&buf)
	out := buf.String()

	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, `error: Type "Literal['a']" is not assignable to declared type "int" [assignability-failure]`)
	assert.Contains(t, out, "--> main.py:1:")
	assert.Contains(t, out, "   1 | x: int = \"a\"\n")
	assert.Contains(t, out, "^")
	assert.Contains(t, out, `note: Type of "1 + 2" is "Literal[3]" [reveal-type]`)
	assert.Contains(t, out, "1 error, 0 warnings, 1 note in 1 file\n")
}

func TestReportJSON(t *testing.T) {
	rep := checkReport(t, "import nowhere\n")

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var out jsonReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.Diagnostics, 1)
	d := out.Diagnostics[0]
	assert.Equal(t, "main.py", d.File)
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, "error", d.Severity)
	assert.Equal(t, "import-missing", d.Rule)
	assert.Equal(t, 1, out.Summary["errors"])
	assert.Equal(t, 1, out.Summary["files"])
}

func TestUseColor(t *testing.T) {
	assert.False(t, useColor(&bytes.Buffer{}))
	t.Setenv("NO_COLOR", "1")
	assert.False(t, useColor(nil))
}
