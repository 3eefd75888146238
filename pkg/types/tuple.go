package types

import "strings"

// TupleElem is one element of a tuple. An unbounded element stands for zero
// or more values of its type; a tuple holds at most one.
type TupleElem struct {
	Type      Type
	Unbounded bool
}

// TupleType is a tuple of known shape. Info points at the builtin tuple
// class when it is available.
type TupleType struct {
	Info  *ClassInfo
	Elems []TupleElem
}

// NewTuple builds a tuple, splicing unpacked tuple elements. A shape with
// more than one unbounded segment cannot be represented and yields Unknown.
func NewTuple(info *ClassInfo, elems []TupleElem) Type {
	out := make([]TupleElem, 0, len(elems))
	unbounded := 0
	for _, e := range elems {
		if tv, ok := e.Type.(*TypeVarType); ok && tv.Unpacked {
			unbounded++
			out = append(out, e)
			continue
		}
		if e.Unbounded {
			unbounded++
		}
		out = append(out, e)
	}
	if unbounded > 1 {
		return Unknown
	}
	return &TupleType{Info: info, Elems: out}
}

// HomogeneousTuple builds tuple[elem, ...].
func HomogeneousTuple(info *ClassInfo, elem Type) *TupleType {
	return &TupleType{Info: info, Elems: []TupleElem{{Type: elem, Unbounded: true}}}
}

// FixedTuple builds a tuple with one element per type.
func FixedTuple(info *ClassInfo, elems ...Type) *TupleType {
	out := make([]TupleElem, len(elems))
	for i, e := range elems {
		out[i] = TupleElem{Type: e}
	}
	return &TupleType{Info: info, Elems: out}
}

func (*TupleType) typ() {}

// UnboundedIndex returns the index of the variadic element, or -1.
func (t *TupleType) UnboundedIndex() int {
	for i, e := range t.Elems {
		if e.Unbounded {
			return i
		}
		if tv, ok := e.Type.(*TypeVarType); ok && tv.Unpacked {
			return i
		}
	}
	return -1
}

// FixedLen reports the length of a tuple with no variadic element.
func (t *TupleType) FixedLen() (int, bool) {
	if t.UnboundedIndex() >= 0 {
		return 0, false
	}
	return len(t.Elems), true
}

// ElemUnion is the union of all element types.
func (t *TupleType) ElemUnion() Type {
	ts := make([]Type, len(t.Elems))
	for i, e := range t.Elems {
		ts[i] = e.Type
		if tv, ok := e.Type.(*TypeVarType); ok && tv.Unpacked {
			ts[i] = Unknown
		}
	}
	return Union(ts...)
}

func (t *TupleType) Apply(subs Subs) Type {
	if len(subs) == 0 {
		return t
	}
	elems := make([]TupleElem, 0, len(t.Elems))
	for _, e := range t.Elems {
		if tv, ok := e.Type.(*TypeVarType); ok && tv.Unpacked {
			if r, ok := subs[tv.Key()]; ok {
				if tup, ok := r.(*TupleType); ok {
					elems = append(elems, tup.Elems...)
					continue
				}
				if rv, ok := r.(*TypeVarType); ok && rv.Kind == TypeVarTuple {
					elems = append(elems, TupleElem{Type: rv.AsUnpacked()})
					continue
				}
				elems = append(elems, TupleElem{Type: r, Unbounded: true})
				continue
			}
		}
		elems = append(elems, TupleElem{Type: e.Type.Apply(subs), Unbounded: e.Unbounded})
	}
	return NewTuple(t.Info, elems)
}

func (t *TupleType) FreeTypeVars() TypeVarSet {
	var set TypeVarSet
	for _, e := range t.Elems {
		set = set.Union(e.Type.FreeTypeVars())
	}
	return set
}

func (t *TupleType) Eq(other Type) bool {
	o, ok := other.(*TupleType)
	if !ok || len(o.Elems) != len(t.Elems) {
		return false
	}
	for i := range t.Elems {
		if t.Elems[i].Unbounded != o.Elems[i].Unbounded || !t.Elems[i].Type.Eq(o.Elems[i].Type) {
			return false
		}
	}
	return true
}

func (t *TupleType) String() string {
	if len(t.Elems) == 0 {
		return "tuple[()]"
	}
	if len(t.Elems) == 1 && t.Elems[0].Unbounded {
		return "tuple[" + t.Elems[0].Type.String() + ", ...]"
	}
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		if e.Unbounded {
			parts[i] = "*tuple[" + e.Type.String() + ", ...]"
			continue
		}
		parts[i] = e.Type.String()
	}
	return "tuple[" + strings.Join(parts, ", ") + "]"
}

// Slice returns the elements in [start, end) of a fixed-length tuple.
func (t *TupleType) Slice(start, end int) *TupleType {
	n := len(t.Elems)
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return &TupleType{Info: t.Info, Elems: append([]TupleElem(nil), t.Elems[start:end]...)}
}

// Index returns the element at i, counting from the end when negative.
// ok is false when the index is out of range or not statically known.
func (t *TupleType) Index(i int) (Type, bool) {
	u := t.UnboundedIndex()
	if u < 0 {
		if i < 0 {
			i += len(t.Elems)
		}
		if i < 0 || i >= len(t.Elems) {
			return nil, false
		}
		return t.Elems[i].Type, true
	}
	if i >= 0 {
		if i < u {
			return t.Elems[i].Type, true
		}
		// Anything from the variadic element onwards could be here.
		ts := []Type{}
		for _, e := range t.Elems[u:] {
			ts = append(ts, e.Type)
		}
		return Union(ts...), true
	}
	back := len(t.Elems) - u - 1
	if -i <= back {
		return t.Elems[len(t.Elems)+i].Type, true
	}
	ts := []Type{}
	for _, e := range t.Elems[:u+1] {
		ts = append(ts, e.Type)
	}
	return Union(ts...), true
}
