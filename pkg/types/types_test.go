package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func class(name string, params ...*TypeVarType) *ClassInfo {
	info := &ClassInfo{
		Name:       name,
		FullName:   "builtins." + name,
		Module:     "builtins",
		Decl:       DeclRef{File: "builtins.pyi", Node: len(name)*100 + len(params)},
		TypeParams: params,
	}
	info.MRO = []Type{info.SelfInstance()}
	return info
}

var (
	intInfo   = class("int")
	strInfo   = class("str")
	boolInfo  = class("bool")
	tupleInfo = class("tuple")
	tvT       = &TypeVarType{Name: "T", Scope: "f", ScopeName: "f"}
	listInfo  = class("list", &TypeVarType{Name: "_T", Scope: "list"})
)

func inst(info *ClassInfo, args ...Type) *InstanceType {
	return &InstanceType{Info: info, Args: args}
}

func lit(info *ClassInfo, v any) *LiteralType {
	return &LiteralType{Info: info, Value: v}
}

func TestUnion(t *testing.T) {
	t.Run("flattens and dedupes", func(t *testing.T) {
		u := Union(inst(intInfo), Union(inst(strInfo), inst(intInfo)))
		require.IsType(t, &UnionType{}, u)
		assert.Len(t, u.(*UnionType).Members, 2)
		assert.Equal(t, "int | str", u.String())
	})

	t.Run("drops never", func(t *testing.T) {
		assert.Equal(t, "int", Union(Never, inst(intInfo)).String())
		assert.True(t, IsNever(Union()))
		assert.Equal(t, NoReturn, Union(NoReturn))
	})

	t.Run("unknown absorbs", func(t *testing.T) {
		assert.Equal(t, Unknown, Union(inst(intInfo), Unknown, Any))
		assert.Equal(t, Any, Union(inst(intInfo), Any))
	})

	t.Run("literal absorbed by its class", func(t *testing.T) {
		u := Union(lit(intInfo, int64(1)), inst(intInfo), lit(strInfo, "a"))
		assert.Equal(t, "int | Literal['a']", u.String())
	})

	t.Run("true and false merge into bool", func(t *testing.T) {
		u := Union(lit(boolInfo, true), inst(strInfo), lit(boolInfo, false))
		assert.Equal(t, "bool | str", u.String())
	})

	t.Run("literals print together with none last", func(t *testing.T) {
		u := Union(None, lit(strInfo, "a"), inst(intInfo), lit(strInfo, "b"))
		assert.Equal(t, "Literal['a', 'b'] | int | None", u.String())
	})

	t.Run("equality ignores order", func(t *testing.T) {
		a := Union(inst(intInfo), inst(strInfo))
		b := Union(inst(strInfo), inst(intInfo))
		assert.True(t, a.Eq(b))
	})
}

func TestStripLiteral(t *testing.T) {
	u := Union(lit(intInfo, int64(1)), lit(intInfo, int64(2)), None)
	assert.Equal(t, "Literal[1, 2] | None", u.String())
	assert.Equal(t, "int | None", StripLiteral(u).String())
}

func TestTuples(t *testing.T) {
	t.Run("two unbounded segments are rejected", func(t *testing.T) {
		tup := NewTuple(tupleInfo, []TupleElem{
			{Type: inst(intInfo), Unbounded: true},
			{Type: inst(strInfo), Unbounded: true},
		})
		assert.Equal(t, Unknown, tup)
	})

	t.Run("printing", func(t *testing.T) {
		assert.Equal(t, "tuple[()]", FixedTuple(tupleInfo).String())
		assert.Equal(t, "tuple[int, ...]", HomogeneousTuple(tupleInfo, inst(intInfo)).String())
		mixed := NewTuple(tupleInfo, []TupleElem{
			{Type: inst(intInfo)},
			{Type: inst(strInfo), Unbounded: true},
		})
		assert.Equal(t, "tuple[int, *tuple[str, ...]]", mixed.String())
	})

	t.Run("indexing", func(t *testing.T) {
		tup := FixedTuple(tupleInfo, inst(intInfo), inst(strInfo))
		el, ok := tup.Index(-1)
		require.True(t, ok)
		assert.Equal(t, "str", el.String())
		_, ok = tup.Index(2)
		assert.False(t, ok)
	})

	t.Run("variadic splice", func(t *testing.T) {
		ts := &TypeVarType{Name: "Ts", Scope: "f", Kind: TypeVarTuple, Unpacked: true}
		tup := NewTuple(tupleInfo, []TupleElem{{Type: inst(intInfo)}, {Type: ts}})
		subs := NewSubs().Add(ts, FixedTuple(tupleInfo, inst(strInfo), inst(boolInfo)))
		assert.Equal(t, "tuple[int, str, bool]", subs.Apply(tup).String())
	})
}

func TestSubstitution(t *testing.T) {
	listT := inst(listInfo, tvT)
	fn := &FunctionType{
		Params:     []Param{{Name: "x", Kind: ParamPositionalOrKeyword, Type: tvT, HasDeclaredType: true}},
		Return:     listT,
		TypeParams: []*TypeVarType{tvT},
	}
	assert.Equal(t, "(x: T@f) -> list[T@f]", fn.String())
	assert.True(t, fn.FreeTypeVars().Contains(tvT))

	applied := NewSubs().Add(tvT, inst(intInfo)).Apply(fn).(*FunctionType)
	assert.Equal(t, "(x: int) -> list[int]", applied.String())
	assert.Empty(t, applied.TypeParams)
	assert.Empty(t, applied.FreeTypeVars())
}

func TestInstantiableTypeVar(t *testing.T) {
	typeT := tvT.AsInstantiable()
	assert.Equal(t, "type[T@f]", typeT.String())
	r := NewSubs().Add(tvT, inst(intInfo)).Apply(typeT)
	assert.Equal(t, "type[int]", r.String())
}

func TestRescopeUnpackedTypeVarTuple(t *testing.T) {
	ts := &TypeVarType{Name: "Ts", Kind: TypeVarTuple}
	scoped := ts.WithScope("c", "C")
	tup := NewTuple(tupleInfo, []TupleElem{{Type: inst(intInfo)}, {Type: ts.AsUnpacked()}})
	r := NewSubs().Add(ts, scoped).Apply(tup)
	assert.Equal(t, "tuple[int, *Ts@C]", r.String())
}

func TestSpecializeArgs(t *testing.T) {
	k := &TypeVarType{Name: "K", Scope: "c"}
	v := &TypeVarType{Name: "V", Scope: "c", Default: k}

	args, ok := SpecializeArgs([]*TypeVarType{k, v}, []Type{inst(strInfo)})
	require.True(t, ok)
	assert.Equal(t, "str", args[1].String())

	_, ok = SpecializeArgs([]*TypeVarType{k}, []Type{inst(strInfo), inst(intInfo)})
	assert.False(t, ok)

	_, ok = SpecializeArgs([]*TypeVarType{k, {Name: "W", Scope: "c"}}, []Type{inst(strInfo)})
	assert.False(t, ok)

	w := &TypeVarType{Name: "W", Scope: "c", Default: inst(listInfo, k)}
	args, ok = SpecializeArgs([]*TypeVarType{k, w}, []Type{inst(intInfo)})
	require.True(t, ok)
	assert.Equal(t, "list[int]", args[1].String())
}

func TestFunctionPrinting(t *testing.T) {
	fn := &FunctionType{
		Params: []Param{
			{Name: "a", Kind: ParamPositionalOnly, Type: inst(intInfo), HasDeclaredType: true},
			{Name: "b", Kind: ParamPositionalOrKeyword, Type: inst(strInfo), HasDeclaredType: true, HasDefault: true},
			{Name: "c", Kind: ParamKeywordOnly, Type: inst(boolInfo), HasDeclaredType: true},
		},
		Return: None,
	}
	assert.Equal(t, "(a: int, /, b: str = ..., *, c: bool) -> None", fn.String())

	gradual := &FunctionType{
		Params: []Param{
			{Name: "args", Kind: ParamVarPositional, Type: Any},
			{Name: "kwargs", Kind: ParamVarKeyword, Type: Any},
		},
		Return: inst(intInfo),
		Flags:  FuncGradual,
	}
	assert.Equal(t, "(...) -> int", gradual.String())
}

func TestRecursiveAlias(t *testing.T) {
	def := &AliasDef{Name: "Tree", Decl: DeclRef{File: "m.py", Node: 4}}
	ref := &AliasType{Def: def}
	def.Target = Union(inst(listInfo, ref), inst(intInfo))
	assert.Equal(t, "Tree", ref.String())
	assert.Equal(t, "list[Tree] | int", ref.Resolve().String())
	assert.True(t, ref.Eq(&AliasType{Def: def}))
}

func TestSameClassAcrossRebuilds(t *testing.T) {
	a := &ClassInfo{Name: "C", FullName: "m.C", Decl: DeclRef{File: "m.py", Node: 3}}
	b := &ClassInfo{Name: "C", FullName: "m.C", Decl: DeclRef{File: "m.py", Node: 3}}
	assert.True(t, inst(a).Eq(inst(b)))
	assert.False(t, inst(a).Eq(inst(intInfo)))
}
