package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/creachadair/jrpc2"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

func (h *Handler) handleTextDocumentHover(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params HoverParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.files[params.TextDocument.URI]
	if !ok || h.prog == nil {
		return nil, nil
	}
	sf := h.prog.File(f.Path)
	if sf == nil {
		return nil, nil
	}

	pos := params.Position
	node, t, err := h.prog.Evaluator().NodeType(ctx, sf, pos.Line+1, pos.Character+1)
	if err != nil {
		return nil, err
	}
	if node == nil || t == nil {
		return nil, nil
	}

	label := hoverLabel(sf.AST, node, t)
	slog.InfoContext(ctx, "hover", "uri", params.TextDocument.URI, "position", pos, "label", label)

	content := fmt.Sprintf("```python\n%s\n```", label)
	if doc := docString(node); doc != "" {
		content += "\n\n" + doc
	}
	rng := toRange(hoverLoc(node))
	return &Hover{
		Contents: MarkupContent{
			Kind:  Markdown,
			Value: content,
		},
		Range: &rng,
	}, nil
}

func hoverLabel(mod *pyast.Module, n pyast.Node, t types.Type) string {
	switch n := n.(type) {
	case *pyast.FunctionDef:
		return fmt.Sprintf("(function) %s: %s", n.Name, t)
	case *pyast.ClassDef:
		return fmt.Sprintf("(class) %s", n.Name)
	case *pyast.Param:
		return fmt.Sprintf("(parameter) %s: %s", n.Name, t)
	case *pyast.Name:
		return fmt.Sprintf("(variable) %s: %s", n.Id, t)
	case *pyast.Attribute:
		return fmt.Sprintf("(attribute) %s: %s", n.Attr, t)
	}
	text := mod.Text(n)
	if strings.Contains(text, "\n") || len(text) > 40 {
		return t.String()
	}
	return fmt.Sprintf("%s: %s", text, t)
}

func hoverLoc(n pyast.Node) *pyast.SourceLocation {
	switch n := n.(type) {
	case *pyast.FunctionDef:
		return n.NameLoc
	case *pyast.ClassDef:
		return n.NameLoc
	case *pyast.Attribute:
		if n.AttrLoc != nil {
			return n.AttrLoc
		}
	}
	return n.Loc()
}

// docString returns the docstring of a hovered function or class.
func docString(n pyast.Node) string {
	var body []pyast.Stmt
	switch n := n.(type) {
	case *pyast.FunctionDef:
		body = n.Body
	case *pyast.ClassDef:
		body = n.Body
	default:
		return ""
	}
	if len(body) == 0 {
		return ""
	}
	es, ok := body[0].(*pyast.ExprStmt)
	if !ok {
		return ""
	}
	c, ok := es.Value.(*pyast.Constant)
	if !ok || c.Kind != pyast.ConstStr {
		return ""
	}
	s, _ := c.Value.(string)
	return strings.TrimSpace(s)
}
