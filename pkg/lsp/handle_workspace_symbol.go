package lsp

import (
	"context"
	"log/slog"
	"slices"

	"github.com/creachadair/jrpc2"

	"github.com/vito/typhon/pkg/binder"
)

func (h *Handler) handleWorkspaceSymbol(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params WorkspaceSymbolParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	symbols := []SymbolInformation{}
	if h.prog == nil {
		return symbols, nil
	}

	uris := make([]DocumentURI, 0, len(h.files))
	for uri := range h.files {
		uris = append(uris, uri)
	}
	slices.Sort(uris)

	for _, uri := range uris {
		for _, sym := range h.prog.Symbols(h.files[uri].Path, params.Query) {
			symbols = append(symbols, SymbolInformation{
				Name:          sym.Name,
				Kind:          symbolKind(sym.Kind, sym.Container != ""),
				ContainerName: sym.Container,
				Location: Location{
					URI:   uri,
					Range: toRange(sym.Location),
				},
			})
		}
	}

	slog.InfoContext(ctx, "workspace symbol results", "query", params.Query, "total", len(symbols))
	return symbols, nil
}

func symbolKind(kind binder.DeclKind, inClass bool) SymbolKind {
	switch kind {
	case binder.DeclClass:
		return SKClass
	case binder.DeclFunction:
		if inClass {
			return SKMethod
		}
		return SKFunction
	}
	return SKVariable
}
