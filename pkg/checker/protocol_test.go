package checker

import (
	"testing"

	"github.com/kr/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vito/typhon/pkg/types"
)

func TestProtocolMemberVariance(t *testing.T) {
	diags := checkSource(t, `from typing import Protocol


class HasX(Protocol):
    x: float


class Plain:
    x: float = 0.0


class ReadOnly:
    @property
    def x(self) -> float: ...


class Narrow:
    x: int = 0


def take(p: HasX) -> None: ...


take(Plain())
take(ReadOnly())
take(Narrow())
held: HasX = Narrow()
`)
	errs := errorsIn(diags)
	require.Len(t, errs, 3, pretty.Sprint(errs))
	assert.Equal(t, []int{25, 26, 27}, lines(errs))
	for _, d := range errs {
		assert.Equal(t, "x", d.Member, d.Message)
	}
	assert.Contains(t, errs[0].Message, `"x" is not writable`)
	assert.Contains(t, errs[1].Message, `"x" is invariant because it is mutable`)
}

func TestProtocolMissingMember(t *testing.T) {
	diags := checkSource(t, `from typing import Protocol


class Closer(Protocol):
    def close(self) -> None: ...


class File:
    def close(self) -> None: ...


class Socket:
    def shutdown(self) -> None: ...


def finish(c: Closer) -> None: ...


finish(File())
finish(Socket())
`)
	errs := errorsIn(diags)
	require.Len(t, errs, 1, pretty.Sprint(errs))
	assert.Equal(t, 20, errs[0].Location.Line)
	assert.Equal(t, "close", errs[0].Member)
	assert.Contains(t, errs[0].Message, `"close" is not present`)
}

func TestProtocolGuardKeysOnDeclaration(t *testing.T) {
	a := &types.ClassInfo{Name: "Node", FullName: "a.Node", Decl: types.DeclRef{File: "a.py", Node: 3}}
	b := &types.ClassInfo{Name: "Node", FullName: "b.Node", Decl: types.DeclRef{File: "b.py", Node: 3}}
	na := &types.InstanceType{Info: a}
	nb := &types.InstanceType{Info: b}
	require.Equal(t, na.String(), nb.String())
	assert.NotEqual(t, protoKey(na), protoKey(nb))
	assert.NotEqual(t, protoKey(&types.ClassType{Info: a}), protoKey(na))
	assert.Equal(t, protoKey(na), protoKey(&types.InstanceType{Info: a}))
}

func TestCollectionsImports(t *testing.T) {
	diags := checkSource(t, `import collections
from collections import abc
from collections.abc import Iterable
`)
	assert.Empty(t, errorsIn(diags), pretty.Sprint(errorsIn(diags)))
}
