package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"sync"
	"unicode"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/pkg/errors"

	"github.com/vito/typhon/pkg/checker"
	"github.com/vito/typhon/pkg/pyast"
)

// Handler serves the language server protocol for Python files, backed by
// a checker.Program. It is a jrpc2.Assigner.
type Handler struct {
	ctx     context.Context
	methods handler.Map

	mu       sync.Mutex
	server   *jrpc2.Server
	prog     *checker.Program
	files    map[DocumentURI]*File
	rootPath string
	folders  []string
}

// File is an open document.
type File struct {
	Path       string
	LanguageID string
	Text       string
	Version    int
}

// NewHandler creates a handler. Call SetServer once the server exists so
// that diagnostics can be pushed to the client.
func NewHandler(ctx context.Context) *Handler {
	h := &Handler{
		ctx:   ctx,
		files: make(map[DocumentURI]*File),
	}
	h.methods = handler.Map{
		"initialize":                          h.handleInitialize,
		"initialized":                         h.handleNoop,
		"shutdown":                            h.handleShutdown,
		"exit":                                h.handleExit,
		"textDocument/didOpen":                h.handleTextDocumentDidOpen,
		"textDocument/didChange":              h.handleTextDocumentDidChange,
		"textDocument/didSave":                h.handleTextDocumentDidSave,
		"textDocument/didClose":               h.handleTextDocumentDidClose,
		"textDocument/hover":                  h.handleTextDocumentHover,
		"textDocument/completion":             h.handleTextDocumentCompletion,
		"textDocument/definition":             h.handleTextDocumentDefinition,
		"workspace/symbol":                    h.handleWorkspaceSymbol,
		"workspace/workspaceFolders":          h.handleWorkspaceWorkspaceFolders,
		"workspace/didChangeWorkspaceFolders": h.handleWorkspaceDidChangeWorkspaceFolders,
		"workspace/didChangeConfiguration":    h.handleNoop,
	}
	return h
}

// SetServer sets the server used for notifications.
func (h *Handler) SetServer(srv *jrpc2.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.server = srv
}

// Assign implements jrpc2.Assigner.
func (h *Handler) Assign(ctx context.Context, method string) jrpc2.Handler {
	slog.DebugContext(ctx, "handle", "method", method)
	return h.methods.Assign(ctx, method)
}

func (h *Handler) handleNoop(context.Context, *jrpc2.Request) (any, error) {
	return nil, nil
}

// program returns the checker, creating one with the default config if
// the client never sent initialize.
func (h *Handler) program() (*checker.Program, error) {
	if h.prog != nil {
		return h.prog, nil
	}
	prog, err := checker.NewProgram(nil)
	if err != nil {
		return nil, err
	}
	h.prog = prog
	return prog, nil
}

func isWindowsDrivePath(path string) bool {
	if len(path) < 4 {
		return false
	}
	return unicode.IsLetter(rune(path[0])) && path[1] == ':'
}

func isWindowsDriveURI(uri string) bool {
	if len(uri) < 4 {
		return false
	}
	return uri[0] == '/' && unicode.IsLetter(rune(uri[1])) && uri[2] == ':'
}

func fromURI(uri DocumentURI) (string, error) {
	u, err := url.ParseRequestURI(string(uri))
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("only file URIs are supported, got %v", u.Scheme)
	}
	if isWindowsDriveURI(u.Path) {
		u.Path = u.Path[1:]
	}
	return u.Path, nil
}

func toURI(path string) DocumentURI {
	if isWindowsDrivePath(path) {
		path = "/" + path
	}
	return DocumentURI((&url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}).String())
}

func (h *Handler) logMessage(typ MessageType, message string) {
	if h.server == nil {
		return
	}
	if err := h.server.Notify(h.ctx, "window/logMessage", &LogMessageParams{
		Type:    typ,
		Message: message,
	}); err != nil {
		slog.WarnContext(h.ctx, "failed to log message", "error", err)
	}
}

func (h *Handler) openFile(uri DocumentURI, languageID string, version int) (*File, error) {
	path, err := fromURI(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", uri)
	}
	f := &File{
		Path:       filepath.Clean(path),
		LanguageID: languageID,
		Version:    version,
	}
	h.files[uri] = f
	return f, nil
}

// updateFile replaces the text of an open document and republishes the
// diagnostics of every open document, since importers are invalidated
// along with the file.
func (h *Handler) updateFile(ctx context.Context, uri DocumentURI, text string, version int) error {
	f, ok := h.files[uri]
	if !ok {
		return fmt.Errorf("document not found: %v", uri)
	}
	f.Text = text
	f.Version = version

	prog, err := h.program()
	if err != nil {
		return err
	}
	if err := prog.SetFileContents(f.Path, []byte(text)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "file updated", "path", f.Path, "version", version)
	h.publishAll(ctx)
	return nil
}

func (h *Handler) closeFile(ctx context.Context, uri DocumentURI) error {
	f, ok := h.files[uri]
	if !ok {
		return nil
	}
	delete(h.files, uri)
	if h.prog != nil {
		h.prog.RemoveFile(f.Path)
	}
	h.publish(ctx, uri, f, nil)
	h.publishAll(ctx)
	return nil
}

func (h *Handler) publishAll(ctx context.Context) {
	if h.prog == nil {
		return
	}
	uris := make([]DocumentURI, 0, len(h.files))
	for uri := range h.files {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	for _, uri := range uris {
		f := h.files[uri]
		diags, err := h.prog.Check(ctx, f.Path)
		if err != nil {
			slog.WarnContext(ctx, "check failed", "path", f.Path, "error", err)
			continue
		}
		h.publish(ctx, uri, f, diags)
	}
}

func (h *Handler) publish(ctx context.Context, uri DocumentURI, f *File, diags []*checker.Diagnostic) {
	if h.server == nil {
		return
	}
	out := []Diagnostic{}
	for _, d := range diags {
		out = append(out, toDiagnostic(d))
	}
	err := h.server.Notify(ctx, "textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: out,
		Version:     f.Version,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish diagnostics", "error", err)
	}
}

func toDiagnostic(d *checker.Diagnostic) Diagnostic {
	severity := DSError
	switch d.Severity {
	case checker.SeverityWarning:
		severity = DSWarning
	case checker.SeverityInformation:
		severity = DSInformation
	}
	return Diagnostic{
		Range:    toRange(d.Location),
		Severity: severity,
		Code:     d.Kind.Rule(),
		Source:   "typhon",
		Message:  d.Message,
	}
}

// toRange converts a 1-based source location to a 0-based LSP range.
func toRange(loc *pyast.SourceLocation) Range {
	if loc == nil {
		return Range{End: Position{Character: 1}}
	}
	start := Position{Line: loc.Line - 1, Character: loc.Column - 1}
	end := Position{Line: start.Line, Character: start.Character + max(loc.Length, 1)}
	if loc.End != nil {
		end = Position{Line: loc.End.Line - 1, Character: loc.End.Column - 1}
	}
	return Range{Start: start, End: end}
}

func (h *Handler) addFolder(folder string) {
	folder = filepath.Clean(folder)
	if !slices.Contains(h.folders, folder) {
		h.folders = append(h.folders, folder)
	}
}

func isIdentifierChar(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}
