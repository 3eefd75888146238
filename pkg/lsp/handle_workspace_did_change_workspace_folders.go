package lsp

import (
	"context"
	"path/filepath"
	"slices"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleWorkspaceDidChangeWorkspaceFolders(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DidChangeWorkspaceFoldersParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, folder := range params.Event.Added {
		path, err := fromURI(folder.URI)
		if err != nil {
			continue
		}
		h.addFolder(path)
	}
	for _, folder := range params.Event.Removed {
		path, err := fromURI(folder.URI)
		if err != nil {
			continue
		}
		h.folders = slices.DeleteFunc(h.folders, func(cur string) bool {
			return cur == filepath.Clean(path)
		})
	}
	return nil, nil
}
