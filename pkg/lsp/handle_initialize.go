package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/creachadair/jrpc2"

	"github.com/vito/typhon/pkg/checker"
)

func (h *Handler) handleInitialize(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params InitializeParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if params.RootURI != "" {
		rootPath, err := fromURI(params.RootURI)
		if err != nil {
			return nil, err
		}
		h.rootPath = filepath.Clean(rootPath)
		h.addFolder(rootPath)
	}
	for _, folder := range params.WorkspaceFolders {
		if path, err := fromURI(folder.URI); err == nil {
			h.addFolder(path)
		}
	}

	config := checker.DefaultConfig()
	if h.rootPath != "" {
		path, found, err := checker.FindConfig(h.rootPath)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "failed to load config", "root", h.rootPath, "error", err)
			h.logMessage(MTWarning, fmt.Sprintf("typhon: %v", err))
		case found != nil:
			slog.InfoContext(ctx, "loaded config", "path", path)
			config = found
		}
	}
	prog, err := checker.NewProgram(config)
	if err != nil {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "invalid config: %v", err)
	}
	h.prog = prog

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TDSKFull,
			CompletionProvider: &CompletionProvider{
				TriggerCharacters: []string{"."},
			},
			DefinitionProvider:      true,
			HoverProvider:           true,
			WorkspaceSymbolProvider: true,
			Workspace: &ServerCapabilitiesWorkspace{
				WorkspaceFolders: WorkspaceFoldersServerCapabilities{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: &ServerInfo{Name: "typhon"},
	}, nil
}
