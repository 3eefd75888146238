package checker

import (
	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// narrowPattern narrows a match subject to the values a pattern accepts,
// or, when positive is false, to the values it certainly rejects.
func (e *Evaluator) narrowPattern(f *SourceFile, subject types.Type, p pyast.Pattern, positive bool) types.Type {
	switch p := p.(type) {
	case nil:
		return subject
	case *pyast.MatchCapture, *pyast.MatchStar:
		if positive {
			return subject
		}
		return types.Never
	case *pyast.MatchAs:
		if p.Pattern == nil {
			if positive {
				return subject
			}
			return types.Never
		}
		return e.narrowPattern(f, subject, p.Pattern, positive)
	case *pyast.MatchOr:
		if positive {
			var ts []types.Type
			for _, alt := range p.Patterns {
				ts = append(ts, e.narrowPattern(f, subject, alt, true))
			}
			return types.Union(ts...)
		}
		rest := subject
		for _, alt := range p.Patterns {
			rest = e.narrowPattern(f, rest, alt, false)
		}
		return rest
	case *pyast.MatchValue:
		lit, ok := e.exprType(f, p.Value, nil).(*types.LiteralType)
		if !ok {
			return subject
		}
		return e.narrowForLiteral(subject, lit, positive, false)
	case *pyast.MatchSingleton:
		if p.Value == nil || p.Value.Kind == pyast.ConstNone {
			return e.narrowNone(subject, positive)
		}
		lit, ok := e.exprType(f, p.Value, nil).(*types.LiteralType)
		if !ok {
			return subject
		}
		return e.narrowForLiteral(subject, lit, positive, true)
	case *pyast.MatchSequence:
		return e.narrowSequence(f, subject, p, positive)
	case *pyast.MatchMapping:
		return e.narrowMapping(f, subject, p, positive)
	case *pyast.MatchClass:
		return e.narrowClassPattern(f, subject, p, positive)
	}
	return subject
}

// irrefutable reports whether a pattern matches every value.
func irrefutable(p pyast.Pattern) bool {
	switch p := p.(type) {
	case *pyast.MatchCapture, *pyast.MatchStar:
		return true
	case *pyast.MatchAs:
		return p.Pattern == nil || irrefutable(p.Pattern)
	case *pyast.MatchOr:
		for _, alt := range p.Patterns {
			if irrefutable(alt) {
				return true
			}
		}
	}
	return false
}

// Sequences.

func starIndex(ps []pyast.Pattern) int {
	for i, p := range ps {
		if _, ok := p.(*pyast.MatchStar); ok {
			return i
		}
	}
	return -1
}

// tupleShape views a tuple or a NamedTuple instance as a tuple type.
func (e *Evaluator) tupleShape(m types.Type) (*types.TupleType, bool) {
	switch m := m.(type) {
	case *types.TupleType:
		return m, true
	case *types.InstanceType:
		if len(m.Info.TupleElems) > 0 {
			tup := &types.TupleType{Info: e.builtinInfo("tuple"), Elems: m.Info.TupleElems}
			return m.Subs().Apply(tup).(*types.TupleType), true
		}
	}
	return nil, false
}

// sequenceEntries returns the type each pattern of a sequence pattern of
// n entries (with a star at index star, or -1) is matched against. ok is
// false when the member cannot match a sequence of that length.
func (e *Evaluator) sequenceEntries(m types.Type, n, star int) ([]types.Type, bool) {
	out := make([]types.Type, n)
	fill := func(t types.Type) {
		for i := range out {
			out[i] = t
		}
		if star >= 0 {
			out[star] = e.builtinInstance("list", t)
		}
	}
	if types.IsAnyOrUnknown(m) {
		fill(m)
		return out, true
	}
	if tup, ok := e.tupleShape(m); ok {
		size, fixed := tup.FixedLen()
		if !fixed {
			if star < 0 && tup.UnboundedIndex() == 0 && len(tup.Elems) == 1 {
				fill(tup.Elems[0].Type)
				return out, true
			}
			fill(tup.ElemUnion())
			return out, true
		}
		if (star < 0 && size != n) || (star >= 0 && size < n-1) {
			return nil, false
		}
		if star < 0 {
			for i := range out {
				out[i] = tup.Elems[i].Type
			}
			return out, true
		}
		after := n - star - 1
		for i := 0; i < star; i++ {
			out[i] = tup.Elems[i].Type
		}
		for j := 0; j < after; j++ {
			out[n-1-j] = tup.Elems[size-1-j].Type
		}
		var middle []types.Type
		for _, el := range tup.Elems[star : size-after] {
			middle = append(middle, types.StripLiteral(el.Type))
		}
		elem := types.Union(middle...)
		if len(middle) == 0 {
			elem = types.Unknown
		}
		out[star] = e.builtinInstance("list", elem)
		return out, true
	}
	elem, ok := e.sequenceElem(m)
	if !ok {
		return nil, false
	}
	fill(elem)
	return out, true
}

// sequenceElem returns the element type of a member that sequence
// patterns can match. str, bytes and bytearray are never matched.
func (e *Evaluator) sequenceElem(m types.Type) (types.Type, bool) {
	inst, ok := m.(*types.InstanceType)
	if !ok {
		return nil, false
	}
	for _, name := range []string{"str", "bytes", "bytearray"} {
		if isBuiltin(inst.Info, name) {
			return nil, false
		}
	}
	if isBuiltin(inst.Info, "object") {
		return types.Unknown, true
	}
	seq := e.typingInfo("Sequence")
	if seq == nil {
		return nil, false
	}
	up, ok := upcast(inst, seq)
	if !ok || len(up.Args) != 1 {
		return nil, false
	}
	return up.Args[0], true
}

func (e *Evaluator) narrowSequence(f *SourceFile, subject types.Type, p *pyast.MatchSequence, positive bool) types.Type {
	n, star := len(p.Patterns), starIndex(p.Patterns)
	return mapUnion(subject, func(m types.Type) types.Type {
		if types.IsUnbound(m) {
			return m
		}
		entries, ok := e.sequenceEntries(m, n, star)
		if !ok {
			if positive {
				return nil
			}
			return m
		}
		if !positive {
			return e.narrowSequenceNegative(f, m, p, entries, star)
		}
		narrowed := make([]types.Type, n)
		for i, sub := range p.Patterns {
			if i == star {
				narrowed[i] = entries[i]
				continue
			}
			narrowed[i] = e.narrowPattern(f, entries[i], sub, true)
			if types.IsNever(narrowed[i]) {
				return nil
			}
		}
		if inst, ok := m.(*types.InstanceType); ok {
			if isBuiltin(inst.Info, "object") {
				return e.typingInstance("Sequence", types.Unknown)
			}
			return m
		}
		if _, ok := m.(*types.TupleType); !ok || star >= 0 {
			return m
		}
		return e.tupleOf(narrowed...)
	})
}

// narrowSequenceNegative removes a tuple member that a pattern of
// irrefutable entries always matches, and narrows the one entry a tagged
// tuple pattern tests.
func (e *Evaluator) narrowSequenceNegative(f *SourceFile, m types.Type, p *pyast.MatchSequence, entries []types.Type, star int) types.Type {
	tup, ok := m.(*types.TupleType)
	if !ok {
		return m
	}
	if _, fixed := tup.FixedLen(); !fixed || star >= 0 {
		allIrrefutable := true
		for _, sub := range p.Patterns {
			allIrrefutable = allIrrefutable && irrefutable(sub)
		}
		if allIrrefutable && star >= 0 {
			if _, fixed := tup.FixedLen(); fixed {
				return nil
			}
		}
		return m
	}
	refutable := -1
	for i, sub := range p.Patterns {
		if irrefutable(sub) {
			continue
		}
		if refutable >= 0 {
			return m
		}
		refutable = i
	}
	if refutable < 0 {
		return nil
	}
	rest := e.narrowPattern(f, entries[refutable], p.Patterns[refutable], false)
	if types.IsNever(rest) {
		return nil
	}
	elems := append([]types.Type(nil), entries...)
	elems[refutable] = rest
	return e.tupleOf(elems...)
}

// Mappings.

func (e *Evaluator) narrowMapping(f *SourceFile, subject types.Type, p *pyast.MatchMapping, positive bool) types.Type {
	return mapUnion(subject, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.UnboundType, *types.AnyType, *types.UnknownType:
			return m
		case *types.TypedDictType:
			if positive {
				return e.narrowTypedDictPattern(f, m, p)
			}
			if e.typedDictAlwaysMatches(f, m, p) {
				return nil
			}
			return m
		}
		if !positive {
			return m
		}
		if inst, ok := m.(*types.InstanceType); ok {
			if isBuiltin(inst.Info, "object") {
				return e.typingInstance("Mapping", types.Unknown, types.Unknown)
			}
			if info := e.typingInfo("Mapping"); info != nil {
				if _, ok := upcast(inst, info); ok {
					return m
				}
			}
		}
		return nil
	})
}

func (e *Evaluator) narrowTypedDictPattern(f *SourceFile, td *types.TypedDictType, p *pyast.MatchMapping) types.Type {
	out := td
	for i, k := range p.Keys {
		key, ok := strConst(k)
		if !ok {
			continue
		}
		entry, ok := td.Entry(key)
		if !ok {
			return nil
		}
		if types.IsNever(e.narrowPattern(f, entry.Type, p.Values[i], true)) {
			return nil
		}
		out = out.WithProvided(key)
	}
	return out
}

// typedDictAlwaysMatches reports whether every value of td matches a
// mapping pattern: each key is required and each value pattern accepts
// every value of its entry.
func (e *Evaluator) typedDictAlwaysMatches(f *SourceFile, td *types.TypedDictType, p *pyast.MatchMapping) bool {
	for i, k := range p.Keys {
		key, ok := strConst(k)
		if !ok {
			return false
		}
		entry, ok := td.Entry(key)
		if !ok || (!entry.Required && !td.IsProvided(key)) {
			return false
		}
		if !types.IsNever(e.narrowPattern(f, entry.Type, p.Values[i], false)) {
			return false
		}
	}
	return true
}

// mappingEntry is the type a value pattern for key is matched against.
func (e *Evaluator) mappingEntry(m types.Type, key pyast.Expr) types.Type {
	switch m := m.(type) {
	case *types.AnyType, *types.UnknownType:
		return m
	case *types.TypedDictType:
		if k, ok := strConst(key); ok {
			if entry, ok := m.Entry(k); ok {
				return entry.Type
			}
		}
		return types.Unknown
	}
	if info := e.typingInfo("Mapping"); info != nil {
		if up, ok := upcast(m, info); ok && len(up.Args) == 2 {
			return up.Args[1]
		}
	}
	return types.Unknown
}

// Classes.

func (e *Evaluator) narrowClassPattern(f *SourceFile, subject types.Type, p *pyast.MatchClass, positive bool) types.Type {
	cls := types.RemoveUnbound(e.exprType(f, p.Cls, nil))
	filters, ok := e.isInstanceFilters(cls)
	if !ok {
		return subject
	}
	subs := len(p.Patterns) + len(p.KwdPatterns)
	if positive {
		narrowed := e.narrowIsInstance(subject, filters, true, false)
		if subs == 0 {
			return narrowed
		}
		return mapUnion(narrowed, func(m types.Type) types.Type {
			if types.IsUnbound(m) {
				return m
			}
			for i, sub := range p.Patterns {
				if types.IsNever(e.narrowPattern(f, e.classPatternAttr(f, m, i, ""), sub, true)) {
					return nil
				}
			}
			for i, sub := range p.KwdPatterns {
				if types.IsNever(e.narrowPattern(f, e.classPatternAttr(f, m, -1, p.KwdNames[i]), sub, true)) {
					return nil
				}
			}
			return m
		})
	}
	allIrrefutable := true
	for _, sub := range p.Patterns {
		allIrrefutable = allIrrefutable && irrefutable(sub)
	}
	for _, sub := range p.KwdPatterns {
		allIrrefutable = allIrrefutable && irrefutable(sub)
	}
	if allIrrefutable {
		return e.narrowIsInstance(subject, filters, false, false)
	}
	return mapUnion(subject, func(m types.Type) types.Type {
		if types.IsUnbound(m) || types.IsAnyOrUnknown(m) {
			return m
		}
		if !types.IsNever(e.narrowIsInstance(m, filters, false, false)) {
			return m
		}
		// m is an instance of the class; it is removed only when every
		// sub-pattern accepts every value of its attribute.
		for i, sub := range p.Patterns {
			if !types.IsNever(e.narrowPattern(f, e.classPatternAttr(f, m, i, ""), sub, false)) {
				return m
			}
		}
		for i, sub := range p.KwdPatterns {
			if !types.IsNever(e.narrowPattern(f, e.classPatternAttr(f, m, -1, p.KwdNames[i]), sub, false)) {
				return m
			}
		}
		return nil
	})
}

// selfMatchingClasses match their single positional sub-pattern against
// the subject itself.
var selfMatchingClasses = []string{"bool", "bytearray", "bytes", "dict", "float", "frozenset", "int", "list", "set", "str", "tuple"}

// classPatternAttr is the type a class sub-pattern is matched against:
// the attribute named by __match_args__ at a positional index, or the
// named attribute for keyword sub-patterns.
func (e *Evaluator) classPatternAttr(f *SourceFile, m types.Type, index int, name string) types.Type {
	if types.IsAnyOrUnknown(m) {
		return m
	}
	if index >= 0 {
		if info := types.InfoOf(m); info != nil && index == 0 {
			for _, cls := range selfMatchingClasses {
				if isBuiltin(info, cls) {
					return m
				}
			}
		}
		name = e.matchArg(f, m, index)
		if name == "" {
			return types.Unknown
		}
	}
	t := e.silentMemberOf(f, m, name)
	if t == nil {
		return types.Unknown
	}
	return t
}

// matchArg returns the attribute name at index in a class's
// __match_args__, or "".
func (e *Evaluator) matchArg(f *SourceFile, m types.Type, index int) string {
	args, ok := e.silentMemberOf(f, m, "__match_args__").(*types.TupleType)
	if !ok {
		return ""
	}
	t, ok := args.Index(index)
	if !ok {
		return ""
	}
	lit, ok := t.(*types.LiteralType)
	if !ok {
		return ""
	}
	s, _ := lit.Value.(string)
	return s
}

// Captures.

// assignPatternTargets binds the capture targets of a case: each capture
// receives the part of the subject its sub-pattern matched.
func (e *Evaluator) assignPatternTargets(f *SourceFile, mc *pyast.MatchCase, out map[pyast.NodeID]types.Type) {
	match, ok := f.AST.Parent(mc).(*pyast.Match)
	if !ok {
		return
	}
	var subject types.Type
	if flow := e.bound(f).FlowOf(mc); flow != nil && flow.Kind == binder.FlowNarrowForPattern {
		subject = e.subjectTypeAt(f, match.Subject, flow.Antecedent())
	} else {
		subject = types.RemoveUnbound(e.exprType(f, match.Subject, nil))
	}
	e.capturePattern(f, mc.Pattern, e.narrowPattern(f, subject, mc.Pattern, true), out)
}

// capturePattern binds the captures in p, given the subject already
// narrowed by p.
func (e *Evaluator) capturePattern(f *SourceFile, p pyast.Pattern, subject types.Type, out map[pyast.NodeID]types.Type) {
	switch p := p.(type) {
	case *pyast.MatchCapture:
		if p.Target != nil {
			out[p.Target.ID()] = subject
		}
	case *pyast.MatchAs:
		if p.Pattern != nil {
			e.capturePattern(f, p.Pattern, subject, out)
		}
		if p.Target != nil {
			out[p.Target.ID()] = subject
		}
	case *pyast.MatchOr:
		for _, alt := range p.Patterns {
			e.capturePattern(f, alt, e.narrowPattern(f, subject, alt, true), out)
		}
	case *pyast.MatchSequence:
		n, star := len(p.Patterns), starIndex(p.Patterns)
		per := make([][]types.Type, n)
		for _, m := range types.Members(subject) {
			entries, ok := e.sequenceEntries(m, n, star)
			if !ok {
				continue
			}
			for i := range entries {
				per[i] = append(per[i], entries[i])
			}
		}
		for i, sub := range p.Patterns {
			entry := types.Union(per[i]...)
			if st, ok := sub.(*pyast.MatchStar); ok {
				if st.Target != nil {
					out[st.Target.ID()] = entry
				}
				continue
			}
			e.capturePattern(f, sub, e.narrowPattern(f, entry, sub, true), out)
		}
	case *pyast.MatchMapping:
		for i, k := range p.Keys {
			var vs []types.Type
			for _, m := range types.Members(subject) {
				vs = append(vs, e.mappingEntry(m, k))
			}
			entry := types.Union(vs...)
			e.capturePattern(f, p.Values[i], e.narrowPattern(f, entry, p.Values[i], true), out)
		}
		if p.Rest != nil {
			var ks, vs []types.Type
			for _, m := range types.Members(subject) {
				if info := e.typingInfo("Mapping"); info != nil {
					if up, ok := upcast(m, info); ok && len(up.Args) == 2 {
						ks = append(ks, up.Args[0])
						vs = append(vs, up.Args[1])
						continue
					}
				}
				ks, vs = append(ks, types.Unknown), append(vs, types.Unknown)
			}
			out[p.Rest.ID()] = e.builtinInstance("dict", types.Union(ks...), types.Union(vs...))
		}
	case *pyast.MatchClass:
		attr := func(i int, name string) types.Type {
			var ts []types.Type
			for _, m := range types.Members(subject) {
				ts = append(ts, e.classPatternAttr(f, m, i, name))
			}
			return types.Union(ts...)
		}
		for i, sub := range p.Patterns {
			t := attr(i, "")
			e.capturePattern(f, sub, e.narrowPattern(f, t, sub, true), out)
		}
		for i, sub := range p.KwdPatterns {
			t := attr(-1, p.KwdNames[i])
			e.capturePattern(f, sub, e.narrowPattern(f, t, sub, true), out)
		}
	}
}
