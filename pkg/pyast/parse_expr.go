package pyast

import (
	"strconv"
	"strings"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

func (c *converter) errorExpr(ts *tree_sitter.Node) Expr {
	e := &ErrorExpr{}
	c.init(&e.node, ts)
	return e
}

func (c *converter) expr(ts *tree_sitter.Node) Expr {
	if ts == nil {
		return nil
	}
	switch ts.Kind() {
	case "identifier", "keyword_identifier":
		return c.name(ts)
	case "integer":
		return c.integer(ts)
	case "float":
		text := strings.ReplaceAll(c.text(ts), "_", "")
		e := &Constant{Kind: ConstFloat}
		if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
			e.Kind = ConstComplex
		}
		c.init(&e.node, ts)
		return e
	case "string":
		return c.str(ts)
	case "concatenated_string":
		return c.concatenated(ts)
	case "true", "false":
		e := &Constant{Kind: ConstBool, Value: ts.Kind() == "true"}
		c.init(&e.node, ts)
		return e
	case "none":
		e := &Constant{Kind: ConstNone}
		c.init(&e.node, ts)
		return e
	case "ellipsis":
		e := &Constant{Kind: ConstEllipsis}
		c.init(&e.node, ts)
		return e
	case "attribute":
		e := &Attribute{}
		c.init(&e.node, ts)
		e.Value = c.expr(ts.ChildByFieldName("object"))
		if attr := ts.ChildByFieldName("attribute"); attr != nil {
			e.Attr = c.text(attr)
			e.AttrLoc = c.loc(attr)
		}
		if e.Value == nil {
			return c.errorExpr(ts)
		}
		return e
	case "subscript":
		return c.subscript(ts)
	case "slice":
		return c.slice(ts)
	case "call":
		e := &Call{}
		c.init(&e.node, ts)
		e.Func = c.expr(ts.ChildByFieldName("function"))
		if args := ts.ChildByFieldName("arguments"); args != nil {
			if args.Kind() == "generator_expression" {
				a := &Arg{Value: c.expr(args)}
				c.init(&a.node, args)
				e.Args = []*Arg{a}
			} else {
				e.Args = c.args(args)
			}
		}
		if e.Func == nil {
			return c.errorExpr(ts)
		}
		return e
	case "binary_operator":
		e := &BinOp{}
		c.init(&e.node, ts)
		e.Left = c.expr(ts.ChildByFieldName("left"))
		if op := ts.ChildByFieldName("operator"); op != nil {
			e.Op = op.Kind()
		}
		e.Right = c.expr(ts.ChildByFieldName("right"))
		if e.Left == nil || e.Right == nil {
			return c.errorExpr(ts)
		}
		return e
	case "unary_operator":
		e := &UnaryOp{}
		c.init(&e.node, ts)
		if op := ts.ChildByFieldName("operator"); op != nil {
			e.Op = op.Kind()
		}
		e.Operand = c.expr(ts.ChildByFieldName("argument"))
		if e.Operand == nil {
			return c.errorExpr(ts)
		}
		return e
	case "not_operator":
		e := &UnaryOp{Op: "not"}
		c.init(&e.node, ts)
		e.Operand = c.expr(ts.ChildByFieldName("argument"))
		if e.Operand == nil {
			return c.errorExpr(ts)
		}
		return e
	case "boolean_operator":
		e := &BoolOp{}
		c.init(&e.node, ts)
		e.Left = c.expr(ts.ChildByFieldName("left"))
		if op := ts.ChildByFieldName("operator"); op != nil {
			e.Op = op.Kind()
		}
		e.Right = c.expr(ts.ChildByFieldName("right"))
		if e.Left == nil || e.Right == nil {
			return c.errorExpr(ts)
		}
		return e
	case "comparison_operator":
		return c.comparison(ts)
	case "conditional_expression":
		kids := namedChildren(ts)
		if len(kids) != 3 {
			return c.errorExpr(ts)
		}
		e := &IfExp{}
		c.init(&e.node, ts)
		e.Body = c.expr(kids[0])
		e.Test = c.expr(kids[1])
		e.OrElse = c.expr(kids[2])
		return e
	case "lambda":
		e := &Lambda{}
		c.init(&e.node, ts)
		e.Params = c.params(ts.ChildByFieldName("parameters"))
		e.Body = c.expr(ts.ChildByFieldName("body"))
		if e.Body == nil {
			e.Body = c.errorExpr(ts)
		}
		return e
	case "list", "list_pattern":
		e := &List{Elts: c.exprs(ts)}
		c.init(&e.node, ts)
		return e
	case "set":
		e := &Set{Elts: c.exprs(ts)}
		c.init(&e.node, ts)
		return e
	case "tuple", "tuple_pattern":
		e := &Tuple{Elts: c.exprs(ts), Parenthesized: true}
		c.init(&e.node, ts)
		return e
	case "expression_list", "pattern_list":
		e := &Tuple{Elts: c.exprs(ts)}
		c.init(&e.node, ts)
		return e
	case "parenthesized_expression":
		kids := namedChildren(ts)
		if len(kids) == 0 {
			return c.errorExpr(ts)
		}
		return c.expr(kids[0])
	case "dictionary":
		return c.dict(ts)
	case "list_comprehension":
		return c.comprehension(ts, CompList)
	case "set_comprehension":
		return c.comprehension(ts, CompSet)
	case "dictionary_comprehension":
		return c.comprehension(ts, CompDict)
	case "generator_expression":
		return c.comprehension(ts, CompGenerator)
	case "list_splat", "list_splat_pattern", "parenthesized_list_splat", "dictionary_splat":
		e := &Starred{Value: c.firstExpr(ts)}
		c.init(&e.node, ts)
		return e
	case "named_expression":
		e := &NamedExpr{}
		c.init(&e.node, ts)
		name := ts.ChildByFieldName("name")
		if name == nil {
			return c.errorExpr(ts)
		}
		e.Target = c.name(name)
		e.Value = c.expr(ts.ChildByFieldName("value"))
		if e.Value == nil {
			e.Value = c.errorExpr(ts)
		}
		return e
	case "await":
		e := &Await{Value: c.firstExpr(ts)}
		c.init(&e.node, ts)
		return e
	case "yield":
		e := &Yield{From: hasChildKind(ts, "from")}
		c.init(&e.node, ts)
		if kids := namedChildren(ts); len(kids) > 0 {
			e.Value = c.expr(kids[0])
		}
		return e
	case "type":
		kids := namedChildren(ts)
		if len(kids) == 0 {
			return c.errorExpr(ts)
		}
		return c.expr(kids[0])
	case "generic_type":
		kids := namedChildren(ts)
		if len(kids) < 2 {
			return c.errorExpr(ts)
		}
		e := &Subscript{Value: c.expr(kids[0])}
		c.init(&e.node, ts)
		e.Index = c.packIndex(ts, namedChildren(kids[1]))
		return e
	case "union_type":
		kids := namedChildren(ts)
		if len(kids) != 2 {
			return c.errorExpr(ts)
		}
		e := &BinOp{Left: c.expr(kids[0]), Op: "|", Right: c.expr(kids[1])}
		c.init(&e.node, ts)
		return e
	case "member_type":
		kids := namedChildren(ts)
		if len(kids) != 2 {
			return c.errorExpr(ts)
		}
		e := &Attribute{Value: c.expr(kids[0]), Attr: c.text(kids[1]), AttrLoc: c.loc(kids[1])}
		c.init(&e.node, ts)
		return e
	case "splat_type":
		e := &Starred{Value: c.firstExpr(ts)}
		c.init(&e.node, ts)
		return e
	case "constrained_type":
		return c.firstExpr(ts)
	case "as_pattern":
		return c.firstExpr(ts)
	}
	return c.errorExpr(ts)
}

func (c *converter) exprs(ts *tree_sitter.Node) []Expr {
	var out []Expr
	for _, k := range namedChildren(ts) {
		if e := c.expr(k); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c *converter) packIndex(ts *tree_sitter.Node, kids []*tree_sitter.Node) Expr {
	switch len(kids) {
	case 0:
		return c.errorExpr(ts)
	case 1:
		return c.expr(kids[0])
	}
	t := &Tuple{}
	c.init(&t.node, ts)
	for _, k := range kids {
		t.Elts = append(t.Elts, c.expr(k))
	}
	return t
}

func (c *converter) subscript(ts *tree_sitter.Node) Expr {
	value := ts.ChildByFieldName("value")
	if value == nil {
		return c.errorExpr(ts)
	}
	e := &Subscript{Value: c.expr(value)}
	c.init(&e.node, ts)
	var idx []*tree_sitter.Node
	for _, k := range namedChildren(ts) {
		if !sameNode(k, value) {
			idx = append(idx, k)
		}
	}
	e.Index = c.packIndex(ts, idx)
	return e
}

func (c *converter) slice(ts *tree_sitter.Node) Expr {
	e := &Slice{}
	c.init(&e.node, ts)
	colons := 0
	for _, k := range allChildren(ts) {
		if !k.IsNamed() {
			if k.Kind() == ":" {
				colons++
			}
			continue
		}
		switch colons {
		case 0:
			e.Lower = c.expr(k)
		case 1:
			e.Upper = c.expr(k)
		default:
			e.Step = c.expr(k)
		}
	}
	return e
}

func (c *converter) comparison(ts *tree_sitter.Node) Expr {
	e := &Compare{}
	c.init(&e.node, ts)
	kids := allChildren(ts)
	var operands []Expr
	for i := 0; i < len(kids); i++ {
		k := kids[i]
		if k.IsNamed() {
			operands = append(operands, c.expr(k))
			continue
		}
		op := k.Kind()
		if i+1 < len(kids) && !kids[i+1].IsNamed() {
			switch next := kids[i+1].Kind(); {
			case op == "not" && next == "in", op == "is" && next == "not":
				op += " " + next
				i++
			}
		}
		e.Ops = append(e.Ops, op)
	}
	if len(operands) < 2 || len(operands) != len(e.Ops)+1 {
		return c.errorExpr(ts)
	}
	e.Left = operands[0]
	e.Comparators = operands[1:]
	return e
}

func (c *converter) dict(ts *tree_sitter.Node) Expr {
	e := &Dict{}
	c.init(&e.node, ts)
	for _, k := range namedChildren(ts) {
		switch k.Kind() {
		case "pair":
			key := c.expr(k.ChildByFieldName("key"))
			value := c.expr(k.ChildByFieldName("value"))
			if key == nil || value == nil {
				continue
			}
			e.Items = append(e.Items, &DictItem{Key: key, Value: value})
		case "dictionary_splat":
			e.Items = append(e.Items, &DictItem{Value: c.firstExpr(k)})
		}
	}
	return e
}

func (c *converter) comprehension(ts *tree_sitter.Node, kind CompKind) Expr {
	e := &Comprehension{Kind: kind}
	c.init(&e.node, ts)
	body := ts.ChildByFieldName("body")
	if body == nil {
		return c.errorExpr(ts)
	}
	if kind == CompDict && body.Kind() == "pair" {
		e.Elt = c.expr(body.ChildByFieldName("key"))
		e.Value = c.expr(body.ChildByFieldName("value"))
	} else {
		e.Elt = c.expr(body)
	}
	var cur *CompFor
	for _, k := range namedChildren(ts) {
		switch k.Kind() {
		case "for_in_clause":
			cur = &CompFor{Async: hasChildKind(k, "async")}
			c.init(&cur.node, k)
			cur.Target = c.expr(k.ChildByFieldName("left"))
			cur.Iter = c.expr(k.ChildByFieldName("right"))
			if cur.Target == nil || cur.Iter == nil {
				return c.errorExpr(ts)
			}
			e.Clauses = append(e.Clauses, cur)
		case "if_clause":
			if cur != nil {
				cur.Ifs = append(cur.Ifs, c.firstExpr(k))
			}
		}
	}
	if e.Elt == nil || len(e.Clauses) == 0 || (kind == CompDict && e.Value == nil) {
		return c.errorExpr(ts)
	}
	return e
}

func (c *converter) integer(ts *tree_sitter.Node) Expr {
	text := c.text(ts)
	e := &Constant{Kind: ConstInt}
	c.init(&e.node, ts)
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		e.Kind = ConstComplex
		return e
	}
	text = strings.TrimRight(text, "lL")
	if len(text) > 1 && text[0] == '0' && text[1] >= '0' && text[1] <= '9' {
		// Leading zeros are only legal for zero itself.
		text = strings.TrimLeft(text, "0_")
		if text == "" {
			text = "0"
		}
	}
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		e.Overflow = true
		return e
	}
	e.Value = v
	return e
}

// stringParts splits a string node into its prefix, raw content segments
// and interpolations.
func (c *converter) stringParts(ts *tree_sitter.Node) (prefix string, content string, interps []*tree_sitter.Node) {
	var sb strings.Builder
	contentStart := -1
	flush := func(end uint) {
		if contentStart >= 0 && int(end) > contentStart {
			sb.Write(c.src[contentStart:end])
		}
	}
	for _, k := range allChildren(ts) {
		switch k.Kind() {
		case "string_start":
			start := c.text(k)
			prefix = strings.ToLower(strings.TrimRight(start, `"'`))
			contentStart = int(k.EndByte())
		case "interpolation":
			flush(k.StartByte())
			interps = append(interps, k)
			contentStart = int(k.EndByte())
		case "string_end":
			flush(k.StartByte())
			contentStart = -1
		}
	}
	return prefix, sb.String(), interps
}

func (c *converter) str(ts *tree_sitter.Node) Expr {
	prefix, content, interps := c.stringParts(ts)
	if strings.Contains(prefix, "f") || strings.Contains(prefix, "t") {
		e := &FString{}
		c.init(&e.node, ts)
		for _, in := range interps {
			if v := in.ChildByFieldName("expression"); v != nil {
				e.Values = append(e.Values, c.expr(v))
			} else if kids := namedChildren(in); len(kids) > 0 {
				e.Values = append(e.Values, c.expr(kids[0]))
			}
		}
		return e
	}
	e := &Constant{Kind: ConstStr}
	if strings.Contains(prefix, "b") {
		e.Kind = ConstBytes
	}
	c.init(&e.node, ts)
	if strings.Contains(prefix, "r") {
		e.Value = content
	} else {
		e.Value = unescape(content)
	}
	return e
}

func (c *converter) concatenated(ts *tree_sitter.Node) Expr {
	var parts []Expr
	isF := false
	for _, k := range namedChildren(ts) {
		p := c.str(k)
		if _, ok := p.(*FString); ok {
			isF = true
		}
		parts = append(parts, p)
	}
	if isF {
		e := &FString{}
		c.init(&e.node, ts)
		for _, p := range parts {
			if f, ok := p.(*FString); ok {
				e.Values = append(e.Values, f.Values...)
			}
		}
		return e
	}
	e := &Constant{Kind: ConstStr}
	c.init(&e.node, ts)
	var sb strings.Builder
	for _, p := range parts {
		k := p.(*Constant)
		e.Kind = k.Kind
		sb.WriteString(k.Value.(string))
	}
	e.Value = sb.String()
	return e
}

// unescape decodes Python backslash escapes. Unknown escapes are kept
// verbatim, matching the interpreter.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			sb.WriteByte(ch)
			continue
		}
		i++
		switch esc := s[i]; esc {
		case '\n':
		case '\\', '\'', '"':
			sb.WriteByte(esc)
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[esc]
			if i+width < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32); err == nil && utf8.ValidRune(rune(v)) {
					sb.WriteRune(rune(v))
					i += width
					continue
				}
			}
			sb.WriteByte('\\')
			sb.WriteByte(esc)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			sb.WriteRune(rune(v))
			i = j - 1
		default:
			sb.WriteByte('\\')
			sb.WriteByte(esc)
		}
	}
	return sb.String()
}
