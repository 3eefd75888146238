package types

// SpecializeArgs matches explicit type arguments to a class's type
// parameters. Missing trailing arguments take their parameter's default,
// which may refer to earlier parameters. ok is false when the arity cannot
// be reconciled.
func SpecializeArgs(params []*TypeVarType, args []Type) ([]Type, bool) {
	args = packVariadicArgs(params, args)
	if len(args) > len(params) {
		return nil, false
	}
	out := make([]Type, len(params))
	subs := NewSubs()
	for i, p := range params {
		switch {
		case i < len(args):
			out[i] = args[i]
		case p.Default != nil:
			out[i] = subs.Apply(p.Default)
		default:
			return nil, false
		}
		subs[p.Key()] = out[i]
	}
	return out, true
}

// DefaultArgs specializes a bare reference to a generic class: each
// parameter takes its default, or Unknown.
func DefaultArgs(params []*TypeVarType) []Type {
	if len(params) == 0 {
		return nil
	}
	out := make([]Type, len(params))
	subs := NewSubs()
	for i, p := range params {
		if p.Default != nil {
			out[i] = subs.Apply(p.Default)
		} else if p.Kind == TypeVarTuple {
			out[i] = HomogeneousTuple(nil, Unknown)
		} else {
			out[i] = Unknown
		}
		subs[p.Key()] = out[i]
	}
	return out
}

// packVariadicArgs folds the arguments that correspond to a TypeVarTuple
// parameter into a single tuple.
func packVariadicArgs(params []*TypeVarType, args []Type) []Type {
	at := -1
	for i, p := range params {
		if p.Kind == TypeVarTuple {
			at = i
			break
		}
	}
	if at < 0 || len(args) < len(params)-1 {
		return args
	}
	after := len(params) - at - 1
	packed := args[at : len(args)-after]
	if len(packed) == 1 {
		if _, ok := packed[0].(*TupleType); ok {
			return args
		}
	}
	elems := make([]TupleElem, 0, len(packed))
	for _, a := range packed {
		if tv, ok := a.(*TypeVarType); ok && tv.Unpacked {
			elems = append(elems, TupleElem{Type: tv})
			continue
		}
		elems = append(elems, TupleElem{Type: a})
	}
	out := append([]Type(nil), args[:at]...)
	out = append(out, NewTuple(nil, elems))
	return append(out, args[len(args)-after:]...)
}
