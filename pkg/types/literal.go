package types

import (
	"strconv"
	"strings"
)

// Bytes is the value of a bytes literal.
type Bytes string

// EnumMember is the value of an enum literal.
type EnumMember struct {
	Class string
	Name  string
}

// LiteralType is a literal value of int, str, bytes, bool or an enum class.
//
// Value holds int64, string, Bytes, bool or EnumMember.
type LiteralType struct {
	Info  *ClassInfo
	Value any
}

func (*LiteralType) typ() {}

func (t *LiteralType) Apply(Subs) Type { return t }

func (*LiteralType) FreeTypeVars() TypeVarSet { return nil }

func (t *LiteralType) Eq(other Type) bool {
	o, ok := other.(*LiteralType)
	return ok && SameClass(t.Info, o.Info) && t.Value == o.Value
}

func (t *LiteralType) String() string {
	return "Literal[" + t.ValueString() + "]"
}

// ValueString prints the value the way it is written in source.
func (t *LiteralType) ValueString() string {
	switch v := t.Value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return quote(v)
	case Bytes:
		return "b" + quote(string(v))
	case EnumMember:
		return v.Class + "." + v.Name
	}
	return "?"
}

// IsFalsy reports whether the literal value is falsy at runtime. Enum
// members are always truthy.
func (t *LiteralType) IsFalsy() bool {
	switch v := t.Value.(type) {
	case int64:
		return v == 0
	case bool:
		return !v
	case string:
		return v == ""
	case Bytes:
		return v == ""
	}
	return false
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// StripLiteral widens literal types to their class. Unions are widened
// member-wise.
func StripLiteral(t Type) Type {
	switch t := t.(type) {
	case *LiteralType:
		return &InstanceType{Info: t.Info}
	case *UnionType:
		changed := false
		members := make([]Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = StripLiteral(m)
			if members[i] != m {
				changed = true
			}
		}
		if !changed {
			return t
		}
		return Union(members...)
	}
	return t
}

// HasLiteral reports whether t or any union member is a literal.
func HasLiteral(t Type) bool {
	for _, m := range Members(t) {
		if _, ok := m.(*LiteralType); ok {
			return true
		}
	}
	return false
}
