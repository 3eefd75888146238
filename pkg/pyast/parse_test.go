package pyast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Module {
	t.Helper()
	mod, err := Parse("test.py", []byte(src))
	require.NoError(t, err)
	require.Empty(t, mod.Errors, "unexpected syntax errors")
	return mod
}

func TestParseAssignments(t *testing.T) {
	mod := parse(t, "a = b = 1\nx: int = 2\ny += 3\n")
	require.Len(t, mod.Body, 3)

	assign := mod.Body[0].(*Assign)
	require.Len(t, assign.Targets, 2)
	assert.Equal(t, "a", assign.Targets[0].(*Name).Id)
	assert.Equal(t, "b", assign.Targets[1].(*Name).Id)
	assert.Equal(t, int64(1), assign.Value.(*Constant).Value)

	ann := mod.Body[1].(*AnnAssign)
	assert.Equal(t, "int", ann.Annotation.(*Name).Id)
	assert.Equal(t, int64(2), ann.Value.(*Constant).Value)

	aug := mod.Body[2].(*AugAssign)
	assert.Equal(t, "+", aug.Op)
}

func TestParseTupleTargets(t *testing.T) {
	mod := parse(t, "a, *b = xs\n")
	assign := mod.Body[0].(*Assign)
	tup := assign.Targets[0].(*Tuple)
	require.Len(t, tup.Elts, 2)
	assert.IsType(t, &Starred{}, tup.Elts[1])
}

func TestParseFunction(t *testing.T) {
	mod := parse(t, `
@decorator
async def f[T](a: T, /, b: int = 1, *args: str, c, **kw) -> list[T]:
    return [a]
`)
	fn := mod.Body[0].(*FunctionDef)
	assert.Equal(t, "f", fn.Name)
	assert.True(t, fn.Async)
	require.Len(t, fn.Decorators, 1)
	require.Len(t, fn.TypeParams, 1)
	assert.Equal(t, "T", fn.TypeParams[0].Name)

	require.Len(t, fn.Params, 5)
	kinds := []ParamKind{}
	for _, p := range fn.Params {
		kinds = append(kinds, p.Kind)
	}
	assert.Equal(t, []ParamKind{
		ParamPositionalOnly,
		ParamPositionalOrKeyword,
		ParamVarPositional,
		ParamKeywordOnly,
		ParamVarKeyword,
	}, kinds)
	assert.Equal(t, "args", fn.Params[2].Name)
	assert.NotNil(t, fn.Params[1].Default)

	ret := fn.Returns.(*Subscript)
	assert.Equal(t, "list", ret.Value.(*Name).Id)
}

func TestParseDunderPositionalOnly(t *testing.T) {
	mod := parse(t, "def f(self, __x, y): ...\n")
	fn := mod.Body[0].(*FunctionDef)
	assert.Equal(t, ParamPositionalOnly, fn.Params[1].Kind)
	assert.Equal(t, ParamPositionalOrKeyword, fn.Params[2].Kind)
}

func TestParseClass(t *testing.T) {
	mod := parse(t, `
class C(Base[int], metaclass=Meta):
    x: int
    def m(self) -> None:
        self.y = 1
`)
	cls := mod.Body[0].(*ClassDef)
	assert.Equal(t, "C", cls.Name)
	require.Len(t, cls.Bases, 2)
	assert.Equal(t, "metaclass", cls.Bases[1].Name)
	require.Len(t, cls.Body, 2)
	assert.IsType(t, &AnnAssign{}, cls.Body[0])
	assert.IsType(t, &FunctionDef{}, cls.Body[1])
}

func TestParseIfElif(t *testing.T) {
	mod := parse(t, `
if a:
    pass
elif b:
    pass
else:
    x = 1
`)
	outer := mod.Body[0].(*If)
	require.Len(t, outer.Else, 1)
	inner := outer.Else[0].(*If)
	assert.Equal(t, "b", inner.Test.(*Name).Id)
	require.Len(t, inner.Else, 1)
	assert.IsType(t, &Assign{}, inner.Else[0])
}

func TestParseComparisons(t *testing.T) {
	mod := parse(t, "a is not None\nb not in c\n1 < x <= 3\n")
	cmp := mod.Body[0].(*ExprStmt).Value.(*Compare)
	assert.Equal(t, []string{"is not"}, cmp.Ops)

	cmp = mod.Body[1].(*ExprStmt).Value.(*Compare)
	assert.Equal(t, []string{"not in"}, cmp.Ops)

	cmp = mod.Body[2].(*ExprStmt).Value.(*Compare)
	assert.Equal(t, []string{"<", "<="}, cmp.Ops)
	assert.Len(t, cmp.Comparators, 2)
}

func TestParseStrings(t *testing.T) {
	mod := parse(t, `a = "x\ty"
b = r"x\ty"
c = b'raw'
d = f"{a} and {b}"
e = "con" "cat"
`)
	value := func(i int) Expr { return mod.Body[i].(*Assign).Value }
	assert.Equal(t, "x\ty", value(0).(*Constant).Value)
	assert.Equal(t, `x\ty`, value(1).(*Constant).Value)
	assert.Equal(t, ConstBytes, value(2).(*Constant).Kind)
	assert.Len(t, value(3).(*FString).Values, 2)
	assert.Equal(t, "concat", value(4).(*Constant).Value)
}

func TestParseIntegers(t *testing.T) {
	mod := parse(t, "a = 0x1F\nb = 1_000\nc = 99999999999999999999999\n")
	value := func(i int) *Constant { return mod.Body[i].(*Assign).Value.(*Constant) }
	assert.Equal(t, int64(31), value(0).Value)
	assert.Equal(t, int64(1000), value(1).Value)
	assert.True(t, value(2).Overflow)
}

func TestParseMatch(t *testing.T) {
	mod := parse(t, `
match cmd:
    case [x, *rest]:
        pass
    case Point(x=0) | None:
        pass
    case {"k": v, **others}:
        pass
    case str() as s if s:
        pass
    case _:
        pass
`)
	m := mod.Body[0].(*Match)
	require.Len(t, m.Cases, 5)

	seq := m.Cases[0].Pattern.(*MatchSequence)
	require.Len(t, seq.Patterns, 2)
	assert.IsType(t, &MatchStar{}, seq.Patterns[1])

	or := m.Cases[1].Pattern.(*MatchOr)
	require.Len(t, or.Patterns, 2)
	cls := or.Patterns[0].(*MatchClass)
	assert.Equal(t, []string{"x"}, cls.KwdNames)
	assert.IsType(t, &MatchSingleton{}, or.Patterns[1])

	mapping := m.Cases[2].Pattern.(*MatchMapping)
	assert.Len(t, mapping.Keys, 1)
	assert.Equal(t, "others", mapping.Rest.Id)

	as := m.Cases[3].Pattern.(*MatchAs)
	assert.Equal(t, "s", as.Target.Id)
	assert.NotNil(t, m.Cases[3].Guard)

	wild := m.Cases[4].Pattern.(*MatchCapture)
	assert.Nil(t, wild.Target)
}

func TestParseTry(t *testing.T) {
	mod := parse(t, `
try:
    pass
except ValueError as e:
    pass
except (TypeError, KeyError):
    pass
finally:
    pass
`)
	try := mod.Body[0].(*Try)
	require.Len(t, try.Handlers, 2)
	assert.Equal(t, "e", try.Handlers[0].Name.Id)
	assert.IsType(t, &Tuple{}, try.Handlers[1].Type)
	assert.Len(t, try.Finally, 1)
}

func TestParseWith(t *testing.T) {
	mod := parse(t, "with open(p) as f, lock:\n    pass\n")
	w := mod.Body[0].(*With)
	require.Len(t, w.Items, 2)
	assert.Equal(t, "f", w.Items[0].Target.(*Name).Id)
	assert.Nil(t, w.Items[1].Target)
}

func TestParseTypeAlias(t *testing.T) {
	mod := parse(t, "type Pair[T] = tuple[T, T]\n")
	alias := mod.Body[0].(*TypeAlias)
	assert.Equal(t, "Pair", alias.Name.Id)
	require.Len(t, alias.TypeParams, 1)
	sub := alias.Value.(*Subscript)
	assert.Len(t, sub.Index.(*Tuple).Elts, 2)
}

func TestParseSyntaxErrors(t *testing.T) {
	mod, err := Parse("bad.py", []byte("def f(:\n    pass\n"))
	require.NoError(t, err)
	assert.NotEmpty(t, mod.Errors)
}

func TestTypeParamDefaultsUnsupported(t *testing.T) {
	// The grammar has no production for PEP 696 defaults.
	mod, err := Parse("defaults.py", []byte("class C[T = int]:\n    pass\n"))
	require.NoError(t, err)
	require.NotEmpty(t, mod.Errors)
	assert.Equal(t, 1, mod.Errors[0].Location.Line)
}

func TestParentsAndNodes(t *testing.T) {
	mod := parse(t, "x = f(y)\n")
	call := mod.Body[0].(*Assign).Value.(*Call)
	arg := call.Args[0]
	assert.Equal(t, call, mod.Parent(arg))
	assert.Equal(t, arg.Value, mod.Node(arg.Value.ID()))
	assert.Equal(t, "f(y)", mod.Text(call))
	assert.Equal(t, 1, call.Loc().Line)
	assert.Equal(t, 5, call.Loc().Column)
}

func TestParseExpression(t *testing.T) {
	loc := &SourceLocation{Filename: "m.py", Line: 3, Column: 7}
	e, next, err := ParseExpression("m.py", " list[int] ", 100, loc)
	require.NoError(t, err)
	sub := e.(*Subscript)
	assert.Greater(t, int(sub.ID()), 100)
	assert.Greater(t, int(next), int(sub.ID())-1)
	assert.Equal(t, loc, sub.Loc())

	_, _, err = ParseExpression("m.py", "x = 1", 0, loc)
	assert.Error(t, err)
}

func TestNodeAt(t *testing.T) {
	mod := parse(t, "def greet(name: str) -> str:\n    return name.upper()\n")

	fd, ok := mod.NodeAt(1, 6).(*FunctionDef)
	require.True(t, ok)
	assert.Equal(t, "greet", fd.Name)

	param, ok := mod.NodeAt(1, 11).(*Param)
	require.True(t, ok)
	assert.Equal(t, "name", param.Name)

	attr, ok := mod.NodeAt(2, 18).(*Attribute)
	require.True(t, ok)
	assert.Equal(t, "upper", attr.Attr)

	name, ok := mod.NodeAt(2, 13).(*Name)
	require.True(t, ok)
	assert.Equal(t, "name", name.Id)

	assert.Nil(t, mod.NodeAt(5, 1))
}
