package checker

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vito/typhon/pkg/binder"
	"github.com/vito/typhon/pkg/types"
)

// protoPair identifies a protocol comparison in progress. Comparisons that
// recur while checking their own members are assumed to hold.
type protoPair struct {
	dest string
	src  string
}

// protoKey identifies a type for the protocol guard. Classes are keyed by
// declaration so same-named classes in different modules stay apart.
func protoKey(t types.Type) string {
	switch t := t.(type) {
	case *types.InstanceType:
		return t.Info.Decl.String() + argsKey(t.Args)
	case *types.ClassType:
		return "type:" + t.Info.Decl.String() + argsKey(t.Args)
	case *types.LiteralType:
		return t.Info.Decl.String() + ":" + t.String()
	case *types.TupleType:
		parts := make([]string, len(t.Elems))
		for i, el := range t.Elems {
			parts[i] = protoKey(el.Type)
			if el.Unbounded {
				parts[i] += "..."
			}
		}
		return "(" + strings.Join(parts, ",") + ")"
	case *types.UnionType:
		return "|" + argsKey(t.Members)
	}
	return t.String()
}

func argsKey(args []types.Type) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = protoKey(a)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// mismatch says why a member does not satisfy a protocol.
type mismatch int

const (
	matched mismatch = iota
	memberAbsent
	memberIncompatible
	memberInvariant
	memberReadOnly
)

// protoMismatch is the first protocol member a type fails.
type protoMismatch struct {
	member string
	why    mismatch
}

func (m protoMismatch) String() string {
	switch m.why {
	case memberAbsent:
		return fmt.Sprintf("\"%s\" is not present", m.member)
	case memberInvariant:
		return fmt.Sprintf("\"%s\" is invariant because it is mutable", m.member)
	case memberReadOnly:
		return fmt.Sprintf("\"%s\" is not writable", m.member)
	}
	return fmt.Sprintf("\"%s\" is an incompatible type", m.member)
}

// nonProtocolMembers are names defined in protocol bodies that do not take
// part in structural matching.
var nonProtocolMembers = map[string]bool{
	"__init__":          true,
	"__new__":           true,
	"__slots__":         true,
	"__class_getitem__": true,
	"__init_subclass__": true,
	"__match_args__":    true,
	"__annotations__":   true,
	"__module__":        true,
	"__qualname__":      true,
	"__doc__":           true,
	"__dict__":          true,
	"__weakref__":       true,
	"__parameters__":    true,
	"__orig_bases__":    true,
}

// protocolMembers lists the members a protocol requires, including those
// of protocol bases, sorted by name.
func (e *Evaluator) protocolMembers(info *types.ClassInfo) []string {
	seen := map[string]bool{}
	var names []string
	for _, entry := range info.MRO {
		mi := types.InfoOf(entry)
		if mi == nil || !mi.Is(types.ClassProtocol) {
			continue
		}
		_, scope := e.classScope(mi)
		if scope == nil {
			continue
		}
		for name, sym := range scope.Symbols {
			if seen[name] || nonProtocolMembers[name] || len(sym.Decls) == 0 {
				continue
			}
			if sym.Decls[0].Kind == binder.DeclTypeParam {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// assignProtocol checks src structurally against the protocol dest. Self
// in the protocol's members stands for src.
func (e *Evaluator) assignProtocol(dest, src types.Type, cs *constraints, flags assignFlags, depth int) bool {
	_, ok := e.matchProtocol(dest, src, cs, flags, depth)
	return ok
}

// protocolMismatch names the member that keeps src from matching the
// protocol dest. ok is false when dest is not a protocol or src matches.
func (e *Evaluator) protocolMismatch(dest, src types.Type) (miss protoMismatch, ok bool) {
	dinst, isInst := dest.(*types.InstanceType)
	if !isInst || !dinst.Info.Is(types.ClassProtocol) {
		return protoMismatch{}, false
	}
	var matches bool
	e.speculate(func() {
		miss, matches = e.matchProtocol(dest, src, newConstraints(), 0, 0)
	})
	return miss, !matches && miss.member != ""
}

// matchProtocol is assignProtocol reporting the first member that fails.
func (e *Evaluator) matchProtocol(dest, src types.Type, cs *constraints, flags assignFlags, depth int) (protoMismatch, bool) {
	dinst, ok := asInstance(dest)
	if !ok {
		return protoMismatch{}, false
	}
	key := protoPair{dest: protoKey(dest), src: protoKey(src)}
	if e.protoGuard.Contains(key) {
		return protoMismatch{}, true
	}
	e.protoGuard.Insert(key)
	defer e.protoGuard.Remove(key)

	self := src
	if lit, ok := src.(*types.LiteralType); ok {
		self = types.StripLiteral(lit)
	}

	callable := false
	switch src.(type) {
	case *types.FunctionType, *types.OverloadedType:
		callable = true
	case *types.ClassType:
		names := e.protocolMembers(dinst.Info)
		callable = len(names) == 1 && names[0] == "__call__"
	}
	if callable {
		if !e.assignCallableProtocol(dinst, src, self, cs, depth) {
			return protoMismatch{member: "__call__", why: memberIncompatible}, false
		}
		return protoMismatch{}, true
	}

	r := receiver{inst: dinst, self: self}
	for _, name := range e.protocolMembers(dinst.Info) {
		if why := e.assignProtocolMember(r, src, name, cs, depth); why != matched {
			return protoMismatch{member: name, why: why}, false
		}
	}
	return protoMismatch{}, true
}

// assignCallableProtocol matches a function or class object against a
// protocol whose only member is __call__.
func (e *Evaluator) assignCallableProtocol(dest *types.InstanceType, src, self types.Type, cs *constraints, depth int) bool {
	names := e.protocolMembers(dest.Info)
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if name == "__call__" {
			continue
		}
		if _, ok := e.memberOfType(nil, nil, src, name); !ok {
			return false
		}
	}
	call, ok := e.accessMember(nil, nil, receiver{inst: dest, self: self}, "__call__")
	if !ok {
		return false
	}
	return e.assign(call, src, cs, 0, depth)
}

func (e *Evaluator) assignProtocolMember(r receiver, src types.Type, name string, cs *constraints, depth int) mismatch {
	m := e.lookupMember(r.inst.Info, name, false)
	if m == nil {
		return memberAbsent
	}
	if m.owner == nil {
		return matched
	}
	want, _ := e.accessMember(nil, nil, r, name)
	got, ok := e.memberOfType(nil, nil, src, name)
	if !ok {
		return memberAbsent
	}
	check := func(ok bool) mismatch {
		if ok {
			return matched
		}
		return memberIncompatible
	}
	switch declared := e.specializeMember(m, r).(type) {
	case *types.FunctionType:
		if declared.Is(types.FuncProperty) {
			if !e.assign(want, got, cs, 0, depth) {
				return memberIncompatible
			}
			if declared.Setter == nil {
				return matched
			}
			if !e.writableMember(src, name) {
				return memberReadOnly
			}
			setter := e.bindFunction(declared.Setter, r.self, false)
			if len(setter.Params) == 0 {
				return matched
			}
			return check(e.assign(got, setter.Params[0].Type, cs, 0, depth))
		}
		return check(e.assign(want, got, cs, 0, depth))
	case *types.OverloadedType:
		return check(e.assign(want, got, cs, 0, depth))
	}
	if !e.assign(want, got, cs, 0, depth) {
		return memberIncompatible
	}
	if m.sym == nil || !protocolAttrMutable(m.sym) {
		return matched
	}
	if _, isClass := src.(*types.ClassType); isClass {
		return matched
	}
	if !e.writableMember(src, name) {
		return memberReadOnly
	}
	if !cs.empty() {
		want = cs.solved().Apply(want)
		if hasSolvable(want, cs) {
			return matched
		}
	}
	if !e.assign(got, want, nil, 0, depth) {
		return memberInvariant
	}
	return matched
}

// writableMember reports whether the attribute name can be assigned on an
// instance of src. Final attributes and properties without a setter are
// read-only.
func (e *Evaluator) writableMember(src types.Type, name string) bool {
	sinst, ok := asInstance(src)
	if !ok {
		return true
	}
	m := e.lookupMember(sinst.Info, name, false)
	if m == nil || m.owner == nil {
		return true
	}
	if m.sym != nil && slices.ContainsFunc(m.sym.Decls, func(d *binder.Declaration) bool { return d.Final }) {
		return false
	}
	if fn, ok := e.specializeMember(m, receiver{inst: sinst, self: src}).(*types.FunctionType); ok && fn.Is(types.FuncProperty) {
		return fn.Setter != nil
	}
	return true
}

// protocolAttrMutable reports whether a protocol attribute must be
// matched invariantly.
func protocolAttrMutable(sym *binder.Symbol) bool {
	for _, d := range sym.Decls {
		if d.Kind != binder.DeclVariable || d.Final || d.ClassVar {
			return false
		}
		if strings.HasPrefix(sym.Name, "__") && strings.HasSuffix(sym.Name, "__") {
			return false
		}
	}
	return true
}
