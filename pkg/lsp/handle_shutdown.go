package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleShutdown(ctx context.Context, req *jrpc2.Request) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uri, f := range h.files {
		if h.prog != nil {
			h.prog.RemoveFile(f.Path)
		}
		delete(h.files, uri)
	}
	return nil, nil
}

func (h *Handler) handleExit(ctx context.Context, req *jrpc2.Request) (any, error) {
	h.mu.Lock()
	srv := h.server
	h.mu.Unlock()
	if srv != nil {
		go srv.Stop()
	}
	return nil, nil
}
