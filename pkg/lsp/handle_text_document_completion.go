package lsp

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/creachadair/jrpc2"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/checker"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// completionPlaceholder is spliced in at the cursor so that a trailing
// dot parses as an attribute access.
const completionPlaceholder = "__typhon_completion__"

var pythonKeywords = []string{
	"and", "as", "assert", "async", "await", "break", "class", "continue",
	"def", "del", "elif", "else", "except", "finally", "for", "from",
	"global", "if", "import", "in", "is", "lambda", "match", "nonlocal",
	"not", "or", "pass", "raise", "return", "try", "while", "with", "yield",
	"False", "None", "True",
}

func (h *Handler) handleTextDocumentCompletion(ctx context.Context, req *jrpc2.Request) (any, error) {
	if !req.HasParams() {
		return nil, jrpc2.Errorf(jrpc2.InvalidParams, "missing parameters")
	}

	var params CompletionParams
	if err := req.UnmarshalParams(&params); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := &CompletionList{Items: []CompletionItem{}}
	f, ok := h.files[params.TextDocument.URI]
	if !ok || h.prog == nil {
		return list, nil
	}

	cc := completionContextAt(f.Text, params.Position)
	if cc == nil {
		return list, nil
	}

	if cc.Dot {
		items, err := h.memberCompletions(ctx, f, cc, params.Position)
		if err != nil {
			return nil, err
		}
		list.Items = items
	} else {
		list.Items = h.lexicalCompletions(f, cc, params.Position)
	}

	slog.InfoContext(ctx, "completion", "uri", params.TextDocument.URI, "dot", cc.Dot, "partial", cc.Partial, "items", len(list.Items))
	return list, nil
}

// memberCompletions lists the members of the receiver before the dot. The
// document is checked as a scratch copy with a placeholder member name at
// the cursor, so the open file's cached results are left alone.
func (h *Handler) memberCompletions(ctx context.Context, f *File, cc *completionContext, pos Position) ([]CompletionItem, error) {
	text := f.Text[:cc.Offset] + completionPlaceholder + f.Text[cc.Offset:]
	scratch := filepath.Join(filepath.Dir(f.Path), ".typhon-completion-"+filepath.Base(f.Path))
	if err := h.prog.SetFileContents(scratch, []byte(text)); err != nil {
		return nil, err
	}
	defer h.prog.RemoveFile(scratch)

	sf := h.prog.File(scratch)
	attr, ok := sf.AST.NodeAt(pos.Line+1, pos.Character+1).(*pyast.Attribute)
	if !ok {
		return []CompletionItem{}, nil
	}

	ev := h.prog.Evaluator()
	recv, err := ev.EvaluateType(ctx, sf, attr.Value)
	if err != nil {
		return nil, err
	}
	members, err := ev.MembersOf(ctx, sf, recv)
	if err != nil {
		return nil, err
	}

	items := []CompletionItem{}
	for _, m := range members {
		if !matchesPartial(m.Name, cc.Partial) {
			continue
		}
		items = append(items, CompletionItem{
			Label:    m.Name,
			Kind:     memberKind(m),
			Detail:   m.Type.String(),
			SortText: sortText(m.Name),
		})
	}
	return items, nil
}

func (h *Handler) lexicalCompletions(f *File, cc *completionContext, pos Position) []CompletionItem {
	items := []CompletionItem{}
	for _, sym := range h.prog.NamesAt(f.Path, pos.Line+1, pos.Character+1) {
		if !matchesPartial(sym.Name, cc.Partial) {
			continue
		}
		items = append(items, CompletionItem{
			Label:    sym.Name,
			Kind:     declKind(sym.Kind),
			SortText: sortText(sym.Name),
		})
	}
	if cc.Partial == "" {
		return items
	}
	for _, kw := range pythonKeywords {
		if strings.HasPrefix(kw, cc.Partial) {
			items = append(items, CompletionItem{
				Label:    kw,
				Kind:     KeywordCompletion,
				SortText: "2" + kw,
			})
		}
	}
	return items
}

// matchesPartial filters candidates by the typed prefix. Private names are
// only offered once an underscore has been typed.
func matchesPartial(name, partial string) bool {
	if !strings.HasPrefix(name, partial) {
		return false
	}
	return !strings.HasPrefix(name, "_") || strings.HasPrefix(partial, "_")
}

func sortText(name string) string {
	if strings.HasPrefix(name, "_") {
		return "1" + name
	}
	return "0" + name
}

func memberKind(m checker.Member) CompletionItemKind {
	switch m.Type.(type) {
	case *types.ModuleType:
		return ModuleCompletion
	case *types.ClassType:
		return ClassCompletion
	}
	if m.Method {
		return MethodCompletion
	}
	return FieldCompletion
}

func declKind(kind binder.DeclKind) CompletionItemKind {
	switch kind {
	case binder.DeclClass:
		return ClassCompletion
	case binder.DeclFunction:
		return FunctionCompletion
	case binder.DeclAlias:
		return ModuleCompletion
	}
	return VariableCompletion
}
