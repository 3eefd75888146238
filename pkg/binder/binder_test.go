package binder

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vito/typhon/pkg/pyast"
)

func bind(t *testing.T, src string) *File {
	t.Helper()
	mod, err := pyast.Parse("test.py", []byte(src))
	require.NoError(t, err)
	require.Empty(t, mod.Errors)
	return Bind(mod, Options{})
}

// findName returns the nth Name node (0-based) with the given identifier.
func findName(f *File, id string, nth int) *pyast.Name {
	var found *pyast.Name
	pyast.Walk(f.Module, func(n pyast.Node) bool {
		if name, ok := n.(*pyast.Name); ok && name.Id == id && found == nil {
			if nth == 0 {
				found = name
			}
			nth--
		}
		return true
	})
	return found
}

// reachesAssignments collects the assignment nodes reached walking back
// from a flow node, stopping at the first assignment on each path.
func reachesAssignments(from *FlowNode, key RefKey) []*FlowNode {
	var out []*FlowNode
	seen := map[*FlowNode]bool{}
	var walk func(n *FlowNode)
	walk = func(n *FlowNode) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		if n.Kind == FlowAssignment && n.Key == key {
			out = append(out, n)
			return
		}
		for _, a := range n.Antecedents {
			walk(a)
		}
	}
	walk(from)
	return out
}

func TestBindScopes(t *testing.T) {
	f := bind(t, `
import os.path
from typing import List as L

x = 1

class C:
    attr: int = 0

    def m(self, y):
        self.z = y
        return y

def outer():
    v = 1
    def inner():
        return v
    return inner
`)
	mod := f.Scope
	for _, name := range []string{"os", "L", "x", "C", "outer"} {
		assert.NotNil(t, mod.Lookup(name), name)
	}
	assert.True(t, mod.Lookup("os").Decls[0].BindsModuleRoot)
	assert.Equal(t, "List", mod.Lookup("L").Decls[0].Imported)

	classDef := mod.Lookup("C").Decls[0].Node.(*pyast.ClassDef)
	cs := f.ScopeFor(classDef)
	require.NotNil(t, cs)
	assert.Equal(t, ScopeClass, cs.Kind)
	assert.True(t, cs.Lookup("attr").Is(SymbolClassMember))
	z := cs.Lookup("z")
	require.NotNil(t, z)
	assert.True(t, z.Is(SymbolInstanceMember))
	assert.True(t, z.Decls[0].IsInstanceAttr)

	method := cs.Lookup("m").Decls[0]
	assert.True(t, method.IsMethod)
	ms := f.ScopeFor(method.Node)
	assert.Equal(t, "self", ms.SelfName)
	assert.Len(t, ms.Returns, 1)

	// inner's v resolves to outer's symbol, skipping nothing.
	v := findName(f, "v", 1)
	sym := f.ScopeOf(v).Resolve("v")
	require.NotNil(t, sym)
	assert.Equal(t, ScopeFunction, sym.Scope.Kind)
	assert.NotEqual(t, f.ScopeOf(v), sym.Scope)
}

func TestClassScopeInvisibleToMethods(t *testing.T) {
	f := bind(t, `
y = 1
class C:
    y = "s"
    def m(self):
        return y
`)
	use := findName(f, "y", 2)
	sym := f.ScopeOf(use).Resolve("y")
	require.NotNil(t, sym)
	assert.Equal(t, ScopeModule, sym.Scope.Kind)
}

func TestBindBranches(t *testing.T) {
	f := bind(t, `
x = 1
if cond:
    x = "a"
print(x)
`)
	use := findName(f, "x", 2)
	key, ok := f.KeyOf(use)
	require.True(t, ok)
	flow := f.FlowOf(use)
	require.NotNil(t, flow)
	assigns := reachesAssignments(flow, key)
	assert.Len(t, assigns, 2)
}

func TestBindLocalBeforeAssignment(t *testing.T) {
	f := bind(t, `
x = 1
def f():
    print(x)
    x = 2
`)
	use := findName(f, "x", 1)
	sym := f.ScopeOf(use).Resolve("x")
	assert.Equal(t, ScopeFunction, sym.Scope.Kind)
}

func TestBindGlobal(t *testing.T) {
	f := bind(t, `
counter = 0
def bump():
    global counter
    counter = counter + 1
`)
	sym := f.Scope.Lookup("counter")
	require.NotNil(t, sym)
	assert.True(t, sym.Is(SymbolModifiedElsewhere))
	assert.Len(t, sym.Decls, 2)
}

func TestInfiniteLoopUnreachable(t *testing.T) {
	f := bind(t, `
while True:
    pass
after = 1
`)
	after := findName(f, "after", 0)
	stmt := f.Module.Parent(after)
	assert.Equal(t, FlowUnreachable, f.FlowOf(stmt).Kind)
}

func TestLoopWithBreakReachable(t *testing.T) {
	f := bind(t, `
while True:
    if done():
        break
after = 1
`)
	after := findName(f, "after", 0)
	stmt := f.Module.Parent(after)
	assert.NotEqual(t, FlowUnreachable, f.FlowOf(stmt).Kind)
}

func TestReturnMakesRestUnreachable(t *testing.T) {
	f := bind(t, `
def f():
    return 1
    dead = 2
`)
	dead := findName(f, "dead", 0)
	assert.Equal(t, FlowUnreachable, f.FlowOf(f.Module.Parent(dead)).Kind)
}

func TestVersionChecks(t *testing.T) {
	mod, err := pyast.Parse("test.py", []byte(`
import sys
if sys.version_info >= (3, 10):
    new = 1
else:
    old = 1
`))
	require.NoError(t, err)
	f := Bind(mod, Options{PythonVersion: [2]int{3, 12}})
	old := findName(f, "old", 0)
	assert.Equal(t, FlowUnreachable, f.FlowOf(f.Module.Parent(old)).Kind)
	newName := findName(f, "new", 0)
	assert.NotEqual(t, FlowUnreachable, f.FlowOf(f.Module.Parent(newName)).Kind)
}

func TestReferenceKeys(t *testing.T) {
	f := bind(t, `
a = make()
a.b[0]["k"]
`)
	var sub *pyast.Subscript
	pyast.Walk(f.Module, func(n pyast.Node) bool {
		if s, ok := n.(*pyast.Subscript); ok && sub == nil {
			sub = s
		}
		return true
	})
	require.NotNil(t, sub)
	key, ok := f.KeyOf(sub)
	require.True(t, ok)
	root := strconv.Itoa(f.Scope.Lookup("a").ID)
	assert.Equal(t, RefKey(root+`.b[0]["k"]`), key)
	assert.Equal(t, RefKey(root), key.Root())
	assert.True(t, RefKey(root+".b").IsPrefixOf(key))
	assert.False(t, RefKey(root+".bc").IsPrefixOf(key))
}

func TestMatchFlow(t *testing.T) {
	f := bind(t, `
match v:
    case 1:
        pass
    case x:
        pass
`)
	sym := f.Scope.Lookup("x")
	require.NotNil(t, sym)
	require.Len(t, sym.AssignFlows, 1)
	// The capture follows a positive pattern node.
	pat := sym.AssignFlows[0].Antecedent()
	assert.Equal(t, FlowNarrowForPattern, pat.Kind)
	assert.True(t, pat.Positive)
	// The second case starts from the negative narrowing of the first.
	neg := pat.Antecedent()
	assert.Equal(t, FlowNarrowForPattern, neg.Kind)
	assert.False(t, neg.Positive)
}

func TestComprehensionScope(t *testing.T) {
	f := bind(t, `
x = "outer"
ys = [x for x in range(3) if x]
`)
	var comp *pyast.Comprehension
	pyast.Walk(f.Module, func(n pyast.Node) bool {
		if c, ok := n.(*pyast.Comprehension); ok {
			comp = c
		}
		return true
	})
	require.NotNil(t, comp)
	cs := f.ScopeFor(comp)
	require.NotNil(t, cs)
	assert.Equal(t, ScopeComprehension, cs.Kind)
	assert.NotNil(t, cs.Lookup("x"))
	assert.Equal(t, cs, f.ScopeOf(comp.Elt))
}

func TestWildcardImport(t *testing.T) {
	mod, err := pyast.Parse("test.py", []byte("from lib import *\n"))
	require.NoError(t, err)
	f := Bind(mod, Options{
		Wildcard: func(module string, level int) []string {
			assert.Equal(t, "lib", module)
			return []string{"alpha", "beta"}
		},
	})
	assert.NotNil(t, f.Scope.Lookup("alpha"))
	assert.Equal(t, "beta", f.Scope.Lookup("beta").Decls[0].Imported)
}

func TestFinalAndClassVarQualifiers(t *testing.T) {
	f := bind(t, `
from typing import Final, ClassVar
A: Final = 1
class C:
    b: ClassVar[int] = 2
`)
	a := f.Scope.Lookup("A").Decls[0]
	assert.True(t, a.Final)
	assert.Nil(t, a.Annotation)
	assert.False(t, a.HasExplicitType())

	classDef := f.Scope.Lookup("C").Decls[0].Node
	b := f.ScopeFor(classDef).Lookup("b").Decls[0]
	assert.True(t, b.ClassVar)
	assert.Equal(t, "int", b.Annotation.(*pyast.Name).Id)
}
