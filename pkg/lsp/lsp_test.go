package lsp_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/typhon/pkg/lsp"
)

const source = `class Point:
    """A point on the plane."""

    def __init__(self, x: int, y: int) -> None:
        self.x = x
        self.y = y

    def norm(self) -> int:
        return self.x + self.y


p = Point(1, 2)
bad: int = "x"
p.norm()
`

type session struct {
	t     *testing.T
	cli   *jrpc2.Client
	diags chan lsp.PublishDiagnosticsParams
	uri   lsp.DocumentURI
}

func fileURI(path string) lsp.DocumentURI {
	return lsp.DocumentURI("file://" + filepath.ToSlash(path))
}

func startSession(t *testing.T) *session {
	t.Helper()
	ctx := context.Background()

	diags := make(chan lsp.PublishDiagnosticsParams, 64)
	h := lsp.NewHandler(ctx)
	loc := server.NewLocal(h, &server.LocalOptions{
		Server: &jrpc2.ServerOptions{AllowPush: true},
		Client: &jrpc2.ClientOptions{
			OnNotify: func(req *jrpc2.Request) {
				if req.Method() != "textDocument/publishDiagnostics" {
					return
				}
				var params lsp.PublishDiagnosticsParams
				if err := req.UnmarshalParams(&params); err == nil {
					diags <- params
				}
			},
		},
	})
	h.SetServer(loc.Server)
	t.Cleanup(func() { loc.Close() })

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	var res lsp.InitializeResult
	require.NoError(t, loc.Client.CallResult(ctx, "initialize", lsp.InitializeParams{RootURI: fileURI(root)}, &res))
	assert.True(t, res.Capabilities.HoverProvider)
	assert.Equal(t, lsp.TDSKFull, res.Capabilities.TextDocumentSync)

	return &session{
		t:     t,
		cli:   loc.Client,
		diags: diags,
		uri:   fileURI(filepath.Join(root, "main.py")),
	}
}

func (s *session) notify(method string, params any) {
	s.t.Helper()
	require.NoError(s.t, s.cli.Notify(context.Background(), method, params))
}

func (s *session) call(method string, params, result any) {
	s.t.Helper()
	require.NoError(s.t, s.cli.CallResult(context.Background(), method, params, result))
}

// waitDiagnostics returns the next diagnostics published for the
// document at the given version.
func (s *session) waitDiagnostics(version int) []lsp.Diagnostic {
	s.t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case p := <-s.diags:
			if p.URI == s.uri && p.Version == version {
				return p.Diagnostics
			}
		case <-timeout:
			s.t.Fatalf("no diagnostics for version %d", version)
			return nil
		}
	}
}

func (s *session) open(text string) []lsp.Diagnostic {
	s.t.Helper()
	s.notify("textDocument/didOpen", lsp.DidOpenTextDocumentParams{
		TextDocument: lsp.TextDocumentItem{
			URI:        s.uri,
			LanguageID: "python",
			Version:    1,
			Text:       text,
		},
	})
	return s.waitDiagnostics(1)
}

func (s *session) change(version int, text string) []lsp.Diagnostic {
	s.t.Helper()
	s.notify("textDocument/didChange", lsp.DidChangeTextDocumentParams{
		TextDocument: lsp.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: s.uri},
			Version:                version,
		},
		ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: text}},
	})
	return s.waitDiagnostics(version)
}

func (s *session) at(line, char int) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: s.uri},
		Position:     lsp.Position{Line: line, Character: char},
	}
}

func TestDiagnostics(t *testing.T) {
	s := startSession(t)

	diags := s.open(source)
	require.Len(t, diags, 1)
	assert.Equal(t, lsp.DSError, diags[0].Severity)
	assert.Equal(t, "assignability-failure", diags[0].Code)
	assert.Equal(t, 12, diags[0].Range.Start.Line)
	assert.Equal(t, "typhon", diags[0].Source)

	diags = s.change(2, source+"missing\n")
	require.Len(t, diags, 2)
	assert.Equal(t, "unresolved-symbol", diags[1].Code)
	assert.Equal(t, 14, diags[1].Range.Start.Line)

	s.notify("textDocument/didClose", lsp.DidCloseTextDocumentParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: s.uri},
	})
	assert.Empty(t, s.waitDiagnostics(2))
}

func TestHover(t *testing.T) {
	s := startSession(t)
	s.open(source)

	var hover lsp.Hover
	s.call("textDocument/hover", lsp.HoverParams{TextDocumentPositionParams: s.at(13, 0)}, &hover)
	assert.Equal(t, lsp.Markdown, hover.Contents.Kind)
	assert.Equal(t, "```python\n(variable) p: Point\n```", hover.Contents.Value)

	s.call("textDocument/hover", lsp.HoverParams{TextDocumentPositionParams: s.at(13, 3)}, &hover)
	assert.Contains(t, hover.Contents.Value, "(attribute) norm:")
	assert.Contains(t, hover.Contents.Value, "int")

	s.call("textDocument/hover", lsp.HoverParams{TextDocumentPositionParams: s.at(0, 7)}, &hover)
	assert.Equal(t, "```python\n(class) Point\n```\n\nA point on the plane.", hover.Contents.Value)
}

func TestDefinition(t *testing.T) {
	s := startSession(t)
	s.open(source)

	var loc lsp.Location
	s.call("textDocument/definition", lsp.DocumentDefinitionParams{TextDocumentPositionParams: s.at(13, 0)}, &loc)
	assert.Equal(t, s.uri, loc.URI)
	assert.Equal(t, lsp.Position{Line: 11, Character: 0}, loc.Range.Start)
}

func TestCompletion(t *testing.T) {
	s := startSession(t)
	s.open(source)
	s.change(2, source+"p.\nPo\n# p.\n")

	labels := func(list lsp.CompletionList) []string {
		var out []string
		for _, item := range list.Items {
			out = append(out, item.Label)
		}
		return out
	}

	var members lsp.CompletionList
	s.call("textDocument/completion", lsp.CompletionParams{TextDocumentPositionParams: s.at(14, 2)}, &members)
	assert.Equal(t, []string{"norm", "x", "y"}, labels(members))
	for _, item := range members.Items {
		if item.Label == "norm" {
			assert.Equal(t, lsp.MethodCompletion, item.Kind)
		} else {
			assert.Equal(t, lsp.FieldCompletion, item.Kind)
			assert.Equal(t, "int", item.Detail)
		}
	}

	var names lsp.CompletionList
	s.call("textDocument/completion", lsp.CompletionParams{TextDocumentPositionParams: s.at(15, 2)}, &names)
	assert.Contains(t, labels(names), "Point")

	var comment lsp.CompletionList
	s.call("textDocument/completion", lsp.CompletionParams{TextDocumentPositionParams: s.at(16, 4)}, &comment)
	assert.Empty(t, comment.Items)

	// The scratch copy used for member completion leaves no trace.
	var hover lsp.Hover
	s.call("textDocument/hover", lsp.HoverParams{TextDocumentPositionParams: s.at(13, 0)}, &hover)
	assert.Contains(t, hover.Contents.Value, "p: Point")
}

func TestWorkspaceSymbol(t *testing.T) {
	s := startSession(t)
	s.open(source)

	var symbols []lsp.SymbolInformation
	s.call("workspace/symbol", lsp.WorkspaceSymbolParams{Query: "nor"}, &symbols)
	require.Len(t, symbols, 1)
	assert.Equal(t, "norm", symbols[0].Name)
	assert.Equal(t, "Point", symbols[0].ContainerName)
	assert.Equal(t, lsp.SKMethod, symbols[0].Kind)
	assert.Equal(t, 7, symbols[0].Location.Range.Start.Line)
}
