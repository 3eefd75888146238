package lsp

import (
	"context"

	"github.com/creachadair/jrpc2"
)

func (h *Handler) handleTextDocumentDefinition(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params DocumentDefinitionParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.files[params.TextDocument.URI]
	if !ok || h.prog == nil {
		return nil, nil
	}

	loc := h.prog.Definition(f.Path, params.Position.Line+1, params.Position.Character+1)
	if loc == nil {
		return nil, nil
	}
	return &Location{
		URI:   toURI(loc.Filename),
		Range: toRange(loc),
	}, nil
}
