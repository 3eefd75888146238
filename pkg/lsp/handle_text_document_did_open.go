package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentDidOpen(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DidOpenTextDocumentParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	doc := params.TextDocument
	if _, err := h.openFile(doc.URI, doc.LanguageID, doc.Version); err != nil {
		return nil, err
	}
	return nil, h.updateFile(ctx, doc.URI, doc.Text, doc.Version)
}
