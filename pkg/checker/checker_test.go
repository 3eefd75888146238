package checker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

func newProgram(t *testing.T, files map[string]string) *Program {
	t.Helper()
	p, err := NewProgram(nil)
	require.NoError(t, err)
	for path, src := range files {
		require.NoError(t, p.SetFileContents(path, []byte(src)))
	}
	return p
}

func checkSource(t *testing.T, src string) []*Diagnostic {
	t.Helper()
	p := newProgram(t, map[string]string{"test.py": src})
	diags, err := p.Check(context.Background(), "test.py")
	require.NoError(t, err)
	return diags
}

// revealed returns the types printed by reveal_type, in source order.
func revealed(diags []*Diagnostic) []string {
	var out []string
	for _, d := range diags {
		if d.Kind != RevealType {
			continue
		}
		i := strings.LastIndex(d.Message, ` is "`)
		out = append(out, strings.TrimSuffix(d.Message[i+len(` is "`):], `"`))
	}
	return out
}

func errorsIn(diags []*Diagnostic) []*Diagnostic {
	var out []*Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

func lines(diags []*Diagnostic) []int {
	var out []int
	for _, d := range diags {
		out = append(out, d.Location.Line)
	}
	return out
}

// findName returns the nth Name node (0-based) with the given identifier.
func findName(f *SourceFile, id string, nth int) *pyast.Name {
	var found *pyast.Name
	pyast.Walk(f.AST, func(n pyast.Node) bool {
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

func renderDiagnostics(diags []*Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		msg, _, _ := strings.Cut(d.Message, "\n")
		fmt.Fprintf(&b, "%d: %s %s: %s\n", d.Location.Line, d.Severity, d.Kind.Rule(), msg)
	}
	return b.String()
}

func TestCheckGolden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.py"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".py")
		t.Run(name, func(t *testing.T) {
			src, err := os.ReadFile(path)
			require.NoError(t, err)
			diags := checkSource(t, string(src))
			golden.Assert(t, renderDiagnostics(diags), name+".golden")
		})
	}
}

func TestExhaustiveLiteralNarrowing(t *testing.T) {
	diags := checkSource(t, `from typing import Literal


def by_if(x: Literal["a", "b"]) -> int:
    if x == "a":
        return 1
    elif x == "b":
        return 2


def by_match(x: Literal["a", "b"]) -> int:
    match x:
        case "a":
            return 1
        case "b":
            return 2


def partial(x: Literal["a", "b"]) -> int:
    if x == "a":
        return 1
`)
	errs := errorsIn(diags)
	require.Len(t, errs, 1, pretty.Sprint(errs))
	assert.Equal(t, ReturnType, errs[0].Kind)
	assert.Equal(t, 19, errs[0].Location.Line)
}

func TestFallthroughIsNever(t *testing.T) {
	p := newProgram(t, map[string]string{"test.py": `from typing import Literal


def f(x: Literal["a", "b"]):
    if x == "a":
        pass
    elif x == "b":
        pass
    else:
        x
`})
	f := p.File("test.py")
	require.NotNil(t, f)
	x := findName(f, "x", 2)
	require.NotNil(t, x)

	ty, err := p.Evaluator().EvaluateType(context.Background(), f, x)
	require.NoError(t, err)
	assert.True(t, types.IsNever(ty), "got %s", ty)
}

func TestConstrainedTypeVar(t *testing.T) {
	diags := checkSource(t, `from typing import TypeVar

T = TypeVar("T", int, str)


def ident(x: T) -> T:
    return x


def use(a: int, b: str, c: int | str):
    reveal_type(ident(a))
    reveal_type(ident(b))
    ident(c)
`)
	assert.Equal(t, []string{"int", "str"}, revealed(diags))
	errs := errorsIn(diags)
	require.NotEmpty(t, errs)
	for _, d := range errs {
		assert.Equal(t, 13, d.Location.Line, d.Message)
	}
}

func TestOverloadAnyArgument(t *testing.T) {
	diags := checkSource(t, `from typing import Any, overload


@overload
def overload1(x: int, y: float) -> float: ...
@overload
def overload1(x: str, y: float) -> str: ...
def overload1(x: Any, y: Any) -> Any:
    return x


def use(a: Any, n: int, s: str):
    reveal_type(overload1(a, 1.0))
    reveal_type(overload1(n, 1.0))
    reveal_type(overload1(s, 1.0))
`)
	assert.Empty(t, errorsIn(diags))
	assert.Equal(t, []string{"Unknown", "float", "str"}, revealed(diags))
}

func TestProtocolSelfMatching(t *testing.T) {
	diags := checkSource(t, `from typing import Protocol, Self


class Cloner(Protocol):
    def clone(self) -> Self: ...


class Base:
    def clone(self) -> Self: ...


class Derived(Base):
    pass


def use(c: Cloner) -> None: ...


use(Base())
use(Derived())
d: Cloner = Derived()
reveal_type(Derived().clone())
`)
	assert.Empty(t, errorsIn(diags))
	assert.Equal(t, []string{"Derived"}, revealed(diags))
}

func TestRecursiveAlias(t *testing.T) {
	p := newProgram(t, map[string]string{"test.py": `type Tree = list[Tree] | int


def walk(t: Tree) -> Tree:
    return t


leaf: Tree = 1
bad: Tree = "x"
`})
	diags, err := p.Check(context.Background(), "test.py")
	require.NoError(t, err)
	errs := errorsIn(diags)
	require.Len(t, errs, 1, pretty.Sprint(errs))
	assert.Equal(t, AssignabilityFailure, errs[0].Kind)
	assert.Equal(t, 9, errs[0].Location.Line)

	f := p.File("test.py")
	ref := findName(f, "t", 0)
	require.NotNil(t, ref)
	ty, err := p.Evaluator().EvaluateType(context.Background(), f, ref)
	require.NoError(t, err)
	assert.NotEmpty(t, ty.String())
	assert.True(t, p.Evaluator().isAssignable(ty, ty))
}

func TestEvaluateTypeIdempotent(t *testing.T) {
	p := newProgram(t, map[string]string{"test.py": `def f(x: list[str] | int):
    if isinstance(x, list):
        y = x
    else:
        y = [str(x)]
    return y
`})
	f := p.File("test.py")
	ref := findName(f, "y", 2)
	require.NotNil(t, ref)

	ev := p.Evaluator()
	first, err := ev.EvaluateType(context.Background(), f, ref)
	require.NoError(t, err)
	second, err := ev.EvaluateType(context.Background(), f, ref)
	require.NoError(t, err)
	assert.True(t, first.Eq(second), "%s != %s", first, second)
	assert.Equal(t, "list[str]", first.String())
}

func TestLiteralMath(t *testing.T) {
	diags := checkSource(t, `reveal_type(1 + 2)
reveal_type("a" + "b")
reveal_type(7 // 2)
reveal_type(-7 % 3)
`)
	assert.Equal(t, []string{"Literal[3]", "Literal['ab']", "Literal[3]", "Literal[2]"}, revealed(diags))
}

func TestClassFeatures(t *testing.T) {
	diags := checkSource(t, `from dataclasses import dataclass
from enum import Enum
from typing import NamedTuple, TypedDict


@dataclass
class User:
    name: str
    age: int = 0


class Color(Enum):
    RED = 1
    GREEN = 2


class Pair(NamedTuple):
    left: int
    right: str


class Movie(TypedDict):
    title: str
    year: int


u = User("ada")
reveal_type(u.age)
reveal_type(Color.RED)
p = Pair(1, "x")
reveal_type(p.right)
m: Movie = {"title": "Alien", "year": 1979}
reveal_type(m["year"])
User(1)
`)
	assert.Equal(t, []string{"int", "Literal[Color.RED]", "str", "int"}, revealed(diags))
	assert.Equal(t, []int{34}, lines(errorsIn(diags)))
}

func TestInvalidation(t *testing.T) {
	p := newProgram(t, map[string]string{
		"lib.py":  "def make() -> int: ...\n",
		"test.py": "from lib import make\nreveal_type(make())\n",
	})
	ctx := context.Background()

	diags, err := p.Check(ctx, "test.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"int"}, revealed(diags))

	require.NoError(t, p.SetFileContents("lib.py", []byte("def make() -> str: ...\n")))
	diags, err = p.Check(ctx, "test.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"str"}, revealed(diags))
}

func TestMissingImport(t *testing.T) {
	diags := checkSource(t, "import does_not_exist\nfrom nowhere import thing\n")
	errs := errorsIn(diags)
	require.Len(t, errs, 2, pretty.Sprint(errs))
	for _, d := range errs {
		assert.Equal(t, ImportMissing, d.Kind)
	}
}

// cancelAfter is a context whose Err reports cancellation once it has been
// consulted n times.
type cancelAfter struct {
	context.Context
	n int
}

func (c *cancelAfter) Err() error {
	if c.n <= 0 {
		return context.Canceled
	}
	c.n--
	return nil
}

func TestCancellation(t *testing.T) {
	src := `from typing import Literal


class Node:
    def __init__(self, value: int, next: "Node | None" = None) -> None:
        self.value = value
        self.next = next


def length(n: Node | None) -> int:
    count = 0
    while n is not None:
        count += 1
        n = n.next
    return count


def pick(x: Literal["a", "b"], items: list[str]) -> str:
    for item in items:
        if x == "a":
            return item
    return x


reveal_type(length(Node(1)))
reveal_type(pick("a", ["x"]))
reveal_type([n.value for n in [Node(1), Node(2)]])
missing_name
`
	want := renderDiagnostics(checkSource(t, src))
	require.NotEmpty(t, want)

	t.Run("before start", func(t *testing.T) {
		p := newProgram(t, map[string]string{"test.py": src})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Check(ctx, "test.py")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	for n := 1; n < 4096; n *= 2 {
		t.Run(fmt.Sprintf("after %d", n), func(t *testing.T) {
			p := newProgram(t, map[string]string{"test.py": src})
			_, err := p.Check(&cancelAfter{Context: context.Background(), n: n}, "test.py")
			if err != nil {
				assert.True(t, errors.Is(err, context.Canceled), err.Error())
			}
			diags, err := p.Check(context.Background(), "test.py")
			require.NoError(t, err)
			assert.Equal(t, want, renderDiagnostics(diags))
		})
	}
}

func TestCheckTwiceReportsOnce(t *testing.T) {
	p := newProgram(t, map[string]string{"test.py": "x: int = 'a'\n"})
	ctx := context.Background()
	first, err := p.Check(ctx, "test.py")
	require.NoError(t, err)
	second, err := p.Check(ctx, "test.py")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, renderDiagnostics(first), renderDiagnostics(second))
}

func TestNumericPromotion(t *testing.T) {
	diags := checkSource(t, `def f(x: float, y: complex) -> None: ...

f(1, 2)
f(1, 2.0)
z: float = 3
`)
	assert.Empty(t, errorsIn(diags))
}

func TestDeclarationDiagnostics(t *testing.T) {
	diags := checkSource(t, `from typing import Generic, TypeVar, overload

T = TypeVar("T", default=int)
U = TypeVar("U")

class Pair(Generic[T, U]):
    pass

@overload
def f(x: int) -> int: ...
@overload
def f(x: bool) -> str: ...
def f(x: int) -> int | str:
    return x
`)
	var kinds []ErrorKind
	for _, d := range diags {
		kinds = append(kinds, d.Kind)
	}
	assert.Contains(t, kinds, TypeParamDefault, pretty.Sprint(kinds))
	assert.Contains(t, kinds, OverlappingOverload, pretty.Sprint(kinds))
}
