package binder

import (
	"strconv"
	"strings"

	"github.com/vito/typhon/pkg/pyast"
)

// RefKey identifies a narrowable reference: a name, optionally followed by
// member accesses and literal subscripts, e.g. x, x.y or x[0]["k"]. The
// root is the resolved symbol's ID, so equal spellings in different scopes
// do not collide.
type RefKey string

// Root returns the key of the reference's root name.
func (k RefKey) Root() RefKey {
	if i := strings.IndexAny(string(k), ".["); i >= 0 {
		return k[:i]
	}
	return k
}

// IsPrefixOf reports whether other is a member access chain starting at k.
func (k RefKey) IsPrefixOf(other RefKey) bool {
	if len(other) <= len(k) || !strings.HasPrefix(string(other), string(k)) {
		return false
	}
	next := other[len(k)]
	return next == '.' || next == '['
}

func nameKey(sym *Symbol) RefKey {
	return RefKey(strconv.Itoa(sym.ID))
}

// keyOf computes the reference key of e given a resolver for root names.
func keyOf(e pyast.Expr, resolve func(*pyast.Name) *Symbol) (RefKey, bool) {
	switch e := e.(type) {
	case *pyast.Name:
		sym := resolve(e)
		if sym == nil {
			return "", false
		}
		return nameKey(sym), true
	case *pyast.Attribute:
		base, ok := keyOf(e.Value, resolve)
		if !ok {
			return "", false
		}
		return base + "." + RefKey(e.Attr), true
	case *pyast.Subscript:
		base, ok := keyOf(e.Value, resolve)
		if !ok {
			return "", false
		}
		sub, ok := subscriptKey(e.Index)
		if !ok {
			return "", false
		}
		return base + "[" + RefKey(sub) + "]", true
	}
	return "", false
}

func subscriptKey(index pyast.Expr) (string, bool) {
	switch idx := index.(type) {
	case *pyast.Constant:
		switch v := idx.Value.(type) {
		case int64:
			if idx.Kind == pyast.ConstInt {
				return strconv.FormatInt(v, 10), true
			}
		case string:
			if idx.Kind == pyast.ConstStr {
				return strconv.Quote(v), true
			}
		}
	case *pyast.UnaryOp:
		if c, ok := idx.Operand.(*pyast.Constant); ok && idx.Op == "-" {
			if v, ok := c.Value.(int64); ok && c.Kind == pyast.ConstInt {
				return strconv.FormatInt(-v, 10), true
			}
		}
	}
	return "", false
}
