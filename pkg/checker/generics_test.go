package checker

import (
	"context"
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeVarTuple(t *testing.T) {
	diags := checkSource(t, `from typing import TypeVarTuple, Unpack

Ts = TypeVarTuple("Ts")


def pack(*args: *Ts) -> tuple[*Ts]: ...
def pack_unpack(*args: Unpack[Ts]) -> tuple[Unpack[Ts]]: ...


reveal_type(pack(1, "a", None))
reveal_type(pack_unpack(1.5, "s"))
ends: tuple[int, *tuple[str, ...], int] = (1, "a", "b", 2)
`)
	assert.Empty(t, errorsIn(diags), pretty.Sprint(errorsIn(diags)))
	assert.Equal(t, []string{"tuple[int, str, None]", "tuple[float, str]"}, revealed(diags))
}

func TestParamSpecCapture(t *testing.T) {
	diags := checkSource(t, `from typing import Callable, ParamSpec, TypeVar

P = ParamSpec("P")
R = TypeVar("R")


def logged(fn: Callable[P, R]) -> Callable[P, R]: ...
def call(fn: Callable[P, R], *args: P.args, **kwargs: P.kwargs) -> R: ...
def add(x: int, y: str) -> float: ...


wrapped = logged(add)
reveal_type(wrapped(1, "a"))
reveal_type(call(add, 1, y="a"))
wrapped("a", "b")
`)
	assert.Equal(t, []string{"float", "float"}, revealed(diags))
	errs := errorsIn(diags)
	require.Len(t, errs, 1, pretty.Sprint(errs))
	assert.Equal(t, 15, errs[0].Location.Line)
	assert.Contains(t, errs[0].Message, `parameter "x"`)
	assert.NotContains(t, errs[0].Message, `in function ""`)
}

func TestTypeVarDefaults(t *testing.T) {
	diags := checkSource(t, `from typing import Generic, TypeVar

T = TypeVar("T", default=int)
U = TypeVar("U", default=list[T])


class Box(Generic[T, U]):
    pass


class Backwards(Generic[U, T]):
    pass


def make() -> Box[str]: ...
def explicit() -> Box[str, bytes]: ...


reveal_type(make())
reveal_type(explicit())
`)
	assert.Equal(t, []string{"Box[str, list[str]]", "Box[str, bytes]"}, revealed(diags))
	var defaults []*Diagnostic
	for _, d := range diags {
		if d.Kind == TypeParamDefault {
			defaults = append(defaults, d)
		}
	}
	require.Len(t, defaults, 1, pretty.Sprint(diags))
	assert.Equal(t, 11, defaults[0].Location.Line)
	assert.Contains(t, defaults[0].Message, `refers to "T"`)
}

func TestUnionExpansionLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUnionExpansion = 2
	p, err := NewProgram(cfg)
	require.NoError(t, err)
	require.NoError(t, p.SetFileContents("test.py", []byte(`from typing import overload


@overload
def pick(a: int, b: int) -> int: ...
@overload
def pick(a: str, b: str) -> str: ...
def pick(a: int | str, b: int | str) -> int | str: ...


def use(x: int | str, y: int | str):
    reveal_type(pick(x, y))
`)))
	diags, err := p.Check(context.Background(), "test.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"Unknown"}, revealed(diags))
	var limited []*Diagnostic
	for _, d := range diags {
		if d.Kind == UnionExpansionLimit {
			limited = append(limited, d)
		}
	}
	require.Len(t, limited, 1, pretty.Sprint(diags))
	assert.Equal(t, 12, limited[0].Location.Line)
	assert.Equal(t, SeverityWarning, limited[0].Severity)
}

func TestLambdaOverloadHypothesis(t *testing.T) {
	diags := checkSource(t, `from typing import Callable, overload


@overload
def apply(fn: Callable[[int], int]) -> int: ...
@overload
def apply(fn: Callable[[str], str]) -> str: ...
def apply(fn: Callable[..., object]) -> object: ...


reveal_type(apply(lambda x: x.upper()))
reveal_type(apply(lambda x: x + 1))
`)
	assert.Empty(t, errorsIn(diags), pretty.Sprint(errorsIn(diags)))
	assert.Equal(t, []string{"str", "int"}, revealed(diags))
}

func TestExplicitRecursiveAlias(t *testing.T) {
	diags := checkSource(t, `from typing import List, TypeAlias, Union

Tree: TypeAlias = Union[List["Tree"], int]


def walk(t: Tree) -> None:
    reveal_type(t)


type Nested = list[Nested] | int
z: Nested = [1, [2, [3]]]
w: Tree = [1, [2]]
`)
	assert.Empty(t, errorsIn(diags), pretty.Sprint(errorsIn(diags)))
	got := revealed(diags)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], "Unknown")
}
