package types

import (
	"fmt"
	"sort"
	"strings"
)

// DeclRef locates the declaration a type originates from.
type DeclRef struct {
	File string
	Node int
}

func (d DeclRef) IsZero() bool {
	return d.File == "" && d.Node == 0
}

func (d DeclRef) String() string {
	return fmt.Sprintf("%s#%d", d.File, d.Node)
}

// ClassFlags describe special behavior of a class.
type ClassFlags uint32

const (
	ClassBuiltin ClassFlags = 1 << iota
	ClassProtocol
	ClassRuntimeCheckable
	ClassFinal
	ClassTypedDict
	ClassEnum
	ClassDataclass
	ClassNamedTuple
	ClassSpecialForm
	// ClassPartial is set while the class body is still being evaluated.
	ClassPartial
	// ClassUnknownBase is set when a base class could not be resolved.
	ClassUnknownBase
)

// TypedDictEntry describes one key of a TypedDict.
type TypedDictEntry struct {
	Type     Type
	Required bool
	ReadOnly bool
}

// ClassInfo holds everything shared between a class object and its
// instances. The evaluator fills it in while evaluating the class statement
// and never mutates it afterwards.
type ClassInfo struct {
	Name     string
	FullName string
	Module   string
	Decl     DeclRef
	Flags    ClassFlags

	TypeParams []*TypeVarType
	// Bases are expressed in terms of TypeParams.
	Bases []Type
	// MRO starts with the class itself, specialized by its own TypeParams.
	MRO       []Type
	Metaclass Type

	// SpecialForm names the typing construct this class stands in for,
	// e.g. "Union" or "Literal".
	SpecialForm string

	// Synthesized holds members that have no declaration, such as a
	// dataclass __init__.
	Synthesized map[string]Type

	TypedDictEntries map[string]*TypedDictEntry
	TypedDictKeys    []string

	// TupleElems is the tuple shape of a NamedTuple or tuple subclass.
	TupleElems []TupleElem
}

func (c *ClassInfo) Is(flags ClassFlags) bool {
	return c.Flags&flags != 0
}

// ScopeID is the identifier used for the class's own type parameters.
func (c *ClassInfo) ScopeID() string {
	if c.Decl.IsZero() {
		return c.FullName
	}
	return c.Decl.String()
}

// SelfInstance returns the class specialized by its own type parameters.
func (c *ClassInfo) SelfInstance() *InstanceType {
	args := make([]Type, len(c.TypeParams))
	for i, tp := range c.TypeParams {
		args[i] = tp
	}
	return &InstanceType{Info: c, Args: args}
}

// SameClass reports whether two infos describe the same class. Infos rebuilt
// after an edit compare equal to their predecessors.
func SameClass(a, b *ClassInfo) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return !a.Decl.IsZero() && a.Decl == b.Decl && a.FullName == b.FullName
}

// DerivesFrom reports whether sub lists base in its MRO.
func DerivesFrom(sub, base *ClassInfo) bool {
	if SameClass(sub, base) {
		return true
	}
	for _, m := range sub.MRO {
		if info := InfoOf(m); info != nil && SameClass(info, base) {
			return true
		}
	}
	return false
}

// MROEntry returns base as it appears in sub's MRO, expressed in terms of
// sub's type parameters.
func MROEntry(sub, base *ClassInfo) (Type, bool) {
	for _, m := range sub.MRO {
		if info := InfoOf(m); info != nil && SameClass(info, base) {
			return m, true
		}
	}
	return nil, false
}

// InfoOf returns the ClassInfo behind an instance-like type.
func InfoOf(t Type) *ClassInfo {
	switch t := t.(type) {
	case *InstanceType:
		return t.Info
	case *LiteralType:
		return t.Info
	case *TypedDictType:
		return t.Info
	case *TupleType:
		return t.Info
	case *ClassType:
		return t.Info
	}
	return nil
}

// ClassType is a class object: the value bound to the class name.
type ClassType struct {
	Info *ClassInfo
	// Args is nil when the class has not been explicitly specialized.
	Args []Type
	// Tuple is set for specialized tuple class objects like tuple[int, str].
	Tuple *TupleType
}

func (*ClassType) typ() {}

// IsSpecialized reports whether type arguments were supplied.
func (t *ClassType) IsSpecialized() bool {
	return t.Args != nil || t.Tuple != nil
}

func (t *ClassType) Apply(subs Subs) Type {
	if len(subs) == 0 || (t.Args == nil && t.Tuple == nil) {
		return t
	}
	c := &ClassType{Info: t.Info, Args: applyAll(t.Args, subs)}
	if t.Tuple != nil {
		if tup, ok := t.Tuple.Apply(subs).(*TupleType); ok {
			c.Tuple = tup
		}
	}
	return c
}

func (t *ClassType) FreeTypeVars() TypeVarSet {
	set := freeAll(t.Args)
	if t.Tuple != nil {
		set = set.Union(t.Tuple.FreeTypeVars())
	}
	return set
}

func (t *ClassType) Eq(other Type) bool {
	o, ok := other.(*ClassType)
	if !ok || !SameClass(t.Info, o.Info) {
		return false
	}
	if (t.Tuple == nil) != (o.Tuple == nil) {
		return false
	}
	if t.Tuple != nil && !t.Tuple.Eq(o.Tuple) {
		return false
	}
	return argsEq(t.Args, o.Args)
}

func (t *ClassType) String() string {
	if t.Info.SpecialForm != "" && t.Args == nil {
		return "type[" + t.Info.Name + "]"
	}
	if t.Tuple != nil {
		return "type[" + t.Tuple.String() + "]"
	}
	return "type[" + nameWithArgs(t.Info.Name, t.Args) + "]"
}

// InstanceType is an instance of a (possibly specialized) class.
type InstanceType struct {
	Info *ClassInfo
	Args []Type
}

func (*InstanceType) typ() {}

func (t *InstanceType) Apply(subs Subs) Type {
	if len(subs) == 0 || len(t.Args) == 0 {
		return t
	}
	return &InstanceType{Info: t.Info, Args: applyAll(t.Args, subs)}
}

func (t *InstanceType) FreeTypeVars() TypeVarSet {
	return freeAll(t.Args)
}

func (t *InstanceType) Eq(other Type) bool {
	o, ok := other.(*InstanceType)
	return ok && SameClass(t.Info, o.Info) && argsEq(t.Args, o.Args)
}

func (t *InstanceType) String() string {
	return nameWithArgs(t.Info.Name, t.Args)
}

// Subs returns the substitution from the class's type parameters to this
// instance's type arguments.
func (t *InstanceType) Subs() Subs {
	return SubsFor(t.Info.TypeParams, t.Args)
}

// TypedDictType is an instance of a TypedDict class. Provided lists keys
// known to be present after narrowing.
type TypedDictType struct {
	Info     *ClassInfo
	Args     []Type
	Provided []string
}

func (*TypedDictType) typ() {}

func (t *TypedDictType) Apply(subs Subs) Type {
	if len(subs) == 0 || len(t.Args) == 0 {
		return t
	}
	return &TypedDictType{Info: t.Info, Args: applyAll(t.Args, subs), Provided: t.Provided}
}

func (t *TypedDictType) FreeTypeVars() TypeVarSet {
	return freeAll(t.Args)
}

func (t *TypedDictType) Eq(other Type) bool {
	o, ok := other.(*TypedDictType)
	if !ok || !SameClass(t.Info, o.Info) || !argsEq(t.Args, o.Args) {
		return false
	}
	if len(t.Provided) != len(o.Provided) {
		return false
	}
	for i := range t.Provided {
		if t.Provided[i] != o.Provided[i] {
			return false
		}
	}
	return true
}

func (t *TypedDictType) String() string {
	return nameWithArgs(t.Info.Name, t.Args)
}

// Entry returns a key's entry specialized by the instance's type arguments.
func (t *TypedDictType) Entry(key string) (*TypedDictEntry, bool) {
	e, ok := t.Info.TypedDictEntries[key]
	if !ok {
		return nil, false
	}
	if len(t.Args) == 0 {
		return e, true
	}
	subs := SubsFor(t.Info.TypeParams, t.Args)
	return &TypedDictEntry{
		Type:     subs.Apply(e.Type),
		Required: e.Required,
		ReadOnly: e.ReadOnly,
	}, true
}

// IsProvided reports whether narrowing established that key is present.
func (t *TypedDictType) IsProvided(key string) bool {
	for _, k := range t.Provided {
		if k == key {
			return true
		}
	}
	return false
}

// WithProvided returns a copy that records key as present.
func (t *TypedDictType) WithProvided(key string) *TypedDictType {
	if t.IsProvided(key) {
		return t
	}
	provided := append(append([]string(nil), t.Provided...), key)
	sort.Strings(provided)
	return &TypedDictType{Info: t.Info, Args: t.Args, Provided: provided}
}

func nameWithArgs(name string, args []Type) string {
	if len(args) == 0 {
		return name
	}
	strs := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			strs[i] = "Unknown"
			continue
		}
		strs[i] = a.String()
	}
	return name + "[" + strings.Join(strs, ", ") + "]"
}

func applyAll(ts []Type, subs Subs) []Type {
	if ts == nil {
		return nil
	}
	out := make([]Type, len(ts))
	for i, t := range ts {
		if t == nil {
			continue
		}
		out[i] = t.Apply(subs)
	}
	return out
}

func freeAll(ts []Type) TypeVarSet {
	var set TypeVarSet
	for _, t := range ts {
		if t == nil {
			continue
		}
		set = set.Union(t.FreeTypeVars())
	}
	return set
}

func argsEq(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil || b[i] == nil {
			if a[i] != b[i] {
				return false
			}
			continue
		}
		if !a[i].Eq(b[i]) {
			return false
		}
	}
	return true
}

// ToClassObject converts an instance-form type to the class object that
// produces it, or nil if there is none.
func ToClassObject(t Type) Type {
	switch t := t.(type) {
	case *InstanceType:
		return &ClassType{Info: t.Info, Args: t.Args}
	case *TypedDictType:
		return &ClassType{Info: t.Info, Args: t.Args}
	case *LiteralType:
		return &ClassType{Info: t.Info}
	case *TupleType:
		if t.Info == nil {
			return nil
		}
		return &ClassType{Info: t.Info, Tuple: t}
	case *TypeVarType:
		return t.AsInstantiable()
	case *UnionType:
		members := make([]Type, 0, len(t.Members))
		for _, m := range t.Members {
			c := ToClassObject(m)
			if c == nil {
				return nil
			}
			members = append(members, c)
		}
		return Union(members...)
	case *UnknownType, *AnyType, *NeverType:
		return t
	}
	return nil
}

// ToInstance converts a class object to the type of its instances. Types
// that are not class objects are returned unchanged.
func ToInstance(t Type) Type {
	switch t := t.(type) {
	case *ClassType:
		if t.Tuple != nil {
			return t.Tuple
		}
		if t.Info.Is(ClassTypedDict) {
			return &TypedDictType{Info: t.Info, Args: t.Args}
		}
		return &InstanceType{Info: t.Info, Args: t.Args}
	case *TypeVarType:
		return t.AsInstance()
	case *UnionType:
		members := make([]Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = ToInstance(m)
		}
		return Union(members...)
	}
	return t
}
