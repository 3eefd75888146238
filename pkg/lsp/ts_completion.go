package lsp

import (
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var (
	tsParser *tree_sitter.Parser
	tsMu     sync.Mutex
)

func init() {
	tsParser = tree_sitter.NewParser()
	if err := tsParser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		panic("failed to set tree-sitter language: " + err.Error())
	}
}

// completionContext describes what is being typed at the cursor.
type completionContext struct {
	// Dot is set when a member is being completed after a ".".
	Dot bool
	// Partial is the identifier prefix already typed (e.g. "up" in
	// "name.up"). Empty right after a dot.
	Partial string
	// Offset is the byte offset of the cursor.
	Offset int
}

// completionContextAt inspects the text around the cursor. It returns nil
// where completion makes no sense: inside strings, comments, and after the
// dot of a float literal.
func completionContextAt(text string, pos Position) *completionContext {
	offset, ok := byteOffset(text, pos)
	if !ok {
		return nil
	}
	start := offset
	for start > 0 && isIdentifierChar(text[start-1]) {
		start--
	}
	cc := &completionContext{
		Partial: text[start:offset],
		Offset:  offset,
		Dot:     start > 0 && text[start-1] == '.',
	}
	if offset == 0 {
		return cc
	}

	source := []byte(text)

	// tree-sitter parsers are not thread-safe; serialize access.
	tsMu.Lock()
	tree := tsParser.Parse(source, nil)
	tsMu.Unlock()
	if tree == nil {
		return cc
	}
	defer tree.Close()

	root := tree.RootNode()
	if inStringOrComment(root, uint(offset-1)) {
		return nil
	}
	if cc.Dot && start > 1 {
		if n := root.DescendantForByteRange(uint(start-1), uint(start-1)); n != nil && n.Kind() == "float" {
			return nil
		}
	}
	return cc
}

func inStringOrComment(root *tree_sitter.Node, offset uint) bool {
	for n := root.DescendantForByteRange(offset, offset); n != nil; n = n.Parent() {
		switch n.Kind() {
		case "comment", "string":
			return true
		case "interpolation":
			return false
		}
	}
	return false
}

// byteOffset converts a zero-based position to a byte offset. Characters
// are counted in bytes.
func byteOffset(text string, pos Position) (int, bool) {
	offset := 0
	for range pos.Line {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, false
		}
		offset += i + 1
	}
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	if pos.Character > end {
		return 0, false
	}
	return offset + pos.Character, true
}
