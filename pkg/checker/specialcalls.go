package checker

import (
	"strings"

	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// specialCall evaluates calls whose result depends on their argument
// expressions rather than their types: type variable and class factories,
// casts and the reveal_type family. It returns nil for ordinary calls.
func (e *Evaluator) specialCall(f *SourceFile, call *pyast.Call, callee, expected types.Type) *CallResult {
	switch c := callee.(type) {
	case *types.FunctionType:
		switch c.FullName {
		case "typing.reveal_type", "typing_extensions.reveal_type", "builtins.reveal_type":
			return e.revealType(f, call)
		case "typing.assert_type", "typing_extensions.assert_type":
			return e.assertType(f, call)
		case "typing.cast", "typing_extensions.cast":
			return e.castCall(f, call)
		case "collections.namedtuple":
			return e.namedTupleCall(f, call, false)
		}
	case *types.ClassType:
		info := c.Info
		switch {
		case info.Is(types.ClassSpecialForm):
			if info.SpecialForm == "TypedDict" {
				return e.typedDictCall(f, call)
			}
		case c.Args != nil:
		case isTypingClass(info, "TypeVar"):
			return &CallResult{ReturnType: e.createTypeVar(f, call, types.TypeVarPlain)}
		case isTypingClass(info, "ParamSpec"):
			return &CallResult{ReturnType: e.createTypeVar(f, call, types.TypeVarParamSpec)}
		case isTypingClass(info, "TypeVarTuple"):
			return &CallResult{ReturnType: e.createTypeVar(f, call, types.TypeVarTuple)}
		case isTypingClass(info, "NewType"):
			return e.newTypeCall(f, call)
		case isTypingClass(info, "NamedTuple"):
			return e.namedTupleCall(f, call, true)
		case isBuiltin(info, "super"):
			return e.superCall(f, call)
		case isBuiltin(info, "type"):
			if len(call.Args) == 1 && call.Args[0].Name == "" && call.Args[0].Star == 0 {
				return &CallResult{ReturnType: e.typeOfValue(e.exprType(f, call.Args[0].Value, nil))}
			}
		}
	}
	return nil
}

// positionalArgs returns the plain positional arguments of a call, or
// false if the call unpacks any.
func positionalArgs(call *pyast.Call) ([]pyast.Expr, bool) {
	var out []pyast.Expr
	for _, a := range call.Args {
		if a.Star != 0 {
			return nil, false
		}
		if a.Name == "" {
			out = append(out, a.Value)
		}
	}
	return out, true
}

func keywordArg(call *pyast.Call, name string) pyast.Expr {
	for _, a := range call.Args {
		if a.Name == name && a.Star == 0 {
			return a.Value
		}
	}
	return nil
}

func strConst(n pyast.Expr) (string, bool) {
	c, ok := n.(*pyast.Constant)
	if !ok || c.Kind != pyast.ConstStr {
		return "", false
	}
	s, ok := c.Value.(string)
	return s, ok
}

func (e *Evaluator) revealType(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok || len(args) != 1 {
		return nil
	}
	t := e.exprType(f, args[0], nil)
	e.report(f, args[0], RevealType, "Type of \"%s\" is \"%s\"", f.AST.Text(args[0]), t)
	return &CallResult{ReturnType: t}
}

func (e *Evaluator) assertType(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok || len(args) != 2 || len(call.Args) != 2 {
		return nil
	}
	t := e.exprType(f, args[0], nil)
	want := e.annotationType(f, args[1], annNone)
	if !types.IsAnyOrUnknown(want) || !types.IsAnyOrUnknown(t) {
		if !t.Eq(want) {
			d := e.report(f, args[0], AssertType, "\"assert_type\" mismatch: expected \"%s\" but received \"%s\"", want, t)
			d.Source, d.Dest = t, want
		}
	}
	return &CallResult{ReturnType: t}
}

func (e *Evaluator) castCall(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok || len(args) != 2 {
		return nil
	}
	to := e.annotationType(f, args[0], annNone)
	e.exprType(f, args[1], nil)
	return &CallResult{ReturnType: to}
}

// typeOfValue is type(x): the class object of the value's type.
func (e *Evaluator) typeOfValue(t types.Type) types.Type {
	return mapUnion(t, func(m types.Type) types.Type {
		switch m := m.(type) {
		case *types.NoneType:
			if info := e.builtinInfo("NoneType"); info != nil {
				return &types.ClassType{Info: info}
			}
		case *types.LiteralType:
			return &types.ClassType{Info: m.Info}
		case *types.TypeVarType:
			if !m.Instantiable {
				return m.AsInstantiable()
			}
		}
		if c := types.ToClassObject(m); c != nil {
			return c
		}
		return e.builtinInstance("type")
	})
}

// superCall evaluates super(): the next class in the MRO of the enclosing
// class, as an instance inside methods and as a class object inside class
// methods and __new__.
func (e *Evaluator) superCall(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok {
		e.touchArgs(f, callArgs(call))
		return &CallResult{ReturnType: types.Unknown}
	}
	var info *types.ClassInfo
	var fd *pyast.FunctionDef
	for cur := f.AST.Parent(call); cur != nil; cur = f.AST.Parent(cur) {
		if d, ok := cur.(*pyast.FunctionDef); ok && fd == nil {
			fd = d
		}
		if cd, ok := cur.(*pyast.ClassDef); ok {
			if fd != nil {
				info = e.classInfo(f, cd)
			}
			break
		}
	}
	if len(args) > 0 {
		t := e.exprType(f, args[0], nil)
		for _, a := range args[1:] {
			e.exprType(f, a, nil)
		}
		c, ok := t.(*types.ClassType)
		if !ok {
			return &CallResult{ReturnType: types.Unknown}
		}
		info = c.Info
	}
	if info == nil {
		e.report(f, call, InvalidDeclaration, "\"super\" call with no arguments is valid only within a class")
		return &CallResult{ReturnType: types.Unknown}
	}
	if len(info.MRO) < 2 {
		return &CallResult{ReturnType: types.Unknown}
	}
	next := info.MRO[1]
	if types.InfoOf(next) == nil {
		return &CallResult{ReturnType: types.Unknown}
	}
	if fd != nil && len(args) == 0 {
		sig := e.signature(f, fd)
		if sig.Is(types.FuncClassMethod) || fd.Name == "__new__" {
			if c := types.ToClassObject(next); c != nil {
				return &CallResult{ReturnType: c}
			}
		}
	}
	return &CallResult{ReturnType: next}
}

// syntheticClass creates the class behind a functional class factory such
// as NewType or NamedTuple. It is identified by the call that creates it.
func (e *Evaluator) syntheticClass(f *SourceFile, call *pyast.Call, name string, flags types.ClassFlags, base types.Type) *types.ClassInfo {
	info := &types.ClassInfo{
		Name:        name,
		FullName:    qualifiedName(f, call, name),
		Module:      f.Module,
		Decl:        f.declRef(call),
		Flags:       flags,
		Synthesized: map[string]types.Type{},
	}
	if bi := types.InfoOf(base); bi != nil {
		info.Bases = []types.Type{base}
		info.Metaclass = bi.Metaclass
		info.MRO = append([]types.Type{info.SelfInstance()}, e.baseMRO(base, bi)...)
		info.TupleElems = bi.TupleElems
	} else {
		info.Flags |= types.ClassUnknownBase
		info.MRO = []types.Type{info.SelfInstance(), types.Unknown}
	}
	return info
}

// factoryName reads the class name passed as the first argument of a
// class factory.
func (e *Evaluator) factoryName(f *SourceFile, call *pyast.Call, args []pyast.Expr, factory string) (string, bool) {
	if len(args) == 0 {
		e.report(f, call, ArityMismatch, "Expected name of %s as first argument", factory)
		return "", false
	}
	name, ok := strConst(args[0])
	if !ok {
		e.exprType(f, args[0], nil)
		e.report(f, args[0], InvalidDeclaration, "Expected name of %s as first argument", factory)
		return "", false
	}
	return name, true
}

func (e *Evaluator) newTypeCall(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok || len(args) != 2 {
		return nil
	}
	name, ok := e.factoryName(f, call, args, "NewType")
	if !ok {
		return &CallResult{ReturnType: types.Unknown}
	}
	base := e.annotationType(f, args[1], annNone)
	switch base.(type) {
	case *types.InstanceType, *types.TupleType, *types.TypedDictType:
	default:
		if !types.IsAnyOrUnknown(base) {
			e.report(f, args[1], InvalidDeclaration, "Expected class as second argument to NewType")
		}
		return &CallResult{ReturnType: types.Unknown}
	}
	info := e.syntheticClass(f, call, name, types.ClassFinal, base)
	self := selfVar(info)
	info.Synthesized["__init__"] = &types.FunctionType{
		Name:     "__init__",
		FullName: info.FullName + ".__init__",
		Decl:     info.Decl,
		Params: []types.Param{
			{Name: "self", Kind: types.ParamPositionalOnly, Type: self},
			{Name: "item", Kind: types.ParamPositionalOnly, Type: base, HasDeclaredType: true},
		},
		Return: types.None,
		Flags:  types.FuncSynthesized,
	}
	info.Synthesized["__new__"] = &types.FunctionType{
		Name:     "__new__",
		FullName: info.FullName + ".__new__",
		Decl:     info.Decl,
		Params: []types.Param{
			{Name: "cls", Kind: types.ParamPositionalOnly, Type: self.AsInstantiable()},
			{Name: "item", Kind: types.ParamPositionalOnly, Type: base, HasDeclaredType: true},
		},
		Return: self,
		Flags:  types.FuncSynthesized | types.FuncStaticMethod,
	}
	return &CallResult{ReturnType: &types.ClassType{Info: info}}
}

// namedTupleCall evaluates NamedTuple("P", [("x", int)]) and, when typed
// is false, collections.namedtuple("P", "x y") whose fields are Any.
func (e *Evaluator) namedTupleCall(f *SourceFile, call *pyast.Call, typed bool) *CallResult {
	args, ok := positionalArgs(call)
	if !ok {
		return nil
	}
	factory := "namedtuple"
	if typed {
		factory = "NamedTuple"
	}
	name, ok := e.factoryName(f, call, args, factory)
	if !ok {
		return &CallResult{ReturnType: types.Unknown}
	}
	var fields []classField
	addField := func(n string, t types.Type, at pyast.Node) {
		fields = append(fields, classField{name: n, typ: t, init: true, node: at})
	}
	if len(args) > 1 {
		switch spec := args[1].(type) {
		case *pyast.List, *pyast.Tuple:
			for _, el := range displayElts(spec) {
				if typed {
					pair, ok := el.(*pyast.Tuple)
					if !ok || len(pair.Elts) != 2 {
						e.report(f, el, InvalidDeclaration, "Expected two-entry tuple specifying entry name and type")
						continue
					}
					n, ok := strConst(pair.Elts[0])
					if !ok {
						e.report(f, pair.Elts[0], InvalidDeclaration, "Expected string literal for entry name")
						continue
					}
					addField(n, e.annotationType(f, pair.Elts[1], annNone), pair)
					continue
				}
				n, ok := strConst(el)
				if !ok {
					e.exprType(f, el, nil)
					continue
				}
				addField(n, types.Any, el)
			}
		default:
			s, ok := strConst(spec)
			if !ok || typed {
				e.exprType(f, spec, nil)
				break
			}
			for _, n := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
				addField(n, types.Any, spec)
			}
		}
	}
	for _, a := range call.Args {
		if a.Name == "" {
			continue
		}
		switch {
		case typed:
			addField(a.Name, e.annotationType(f, a.Value, annNone), a)
		case a.Name == "defaults":
			if d, ok := a.Value.(*pyast.List); ok {
				markDefaults(fields, len(d.Elts))
			} else if d, ok := a.Value.(*pyast.Tuple); ok {
				markDefaults(fields, len(d.Elts))
			}
			e.exprType(f, a.Value, nil)
		default:
			e.exprType(f, a.Value, nil)
		}
	}

	base := types.Type(types.Unknown)
	if nt := e.typingInfo("NamedTuple"); nt != nil {
		base = &types.InstanceType{Info: nt}
	}
	info := e.syntheticClass(f, call, name, types.ClassNamedTuple, base)
	elems := make([]types.TupleElem, len(fields))
	for i, fl := range fields {
		elems[i] = types.TupleElem{Type: fl.typ}
	}
	info.TupleElems = elems
	e.part(f).fields[info] = fields

	self := selfVar(info)
	ctor := &types.FunctionType{
		Name:     "__new__",
		FullName: info.FullName + ".__new__",
		Decl:     info.Decl,
		Params:   []types.Param{{Name: "cls", Kind: types.ParamPositionalOnly, Type: self.AsInstantiable()}},
		Return:   self,
		Flags:    types.FuncSynthesized | types.FuncStaticMethod,
	}
	var matchArgs []types.Type
	for _, fl := range fields {
		ctor.Params = append(ctor.Params, types.Param{Name: fl.name, Kind: types.ParamPositionalOrKeyword, Type: fl.typ, HasDefault: fl.hasDefault, HasDeclaredType: true})
		matchArgs = append(matchArgs, e.literal(fl.name))
		info.Synthesized[fl.name] = fl.typ
	}
	info.Synthesized["__new__"] = ctor
	info.Synthesized["__match_args__"] = e.tupleOf(matchArgs...)
	return &CallResult{ReturnType: &types.ClassType{Info: info}}
}

func markDefaults(fields []classField, n int) {
	for i := max(len(fields)-n, 0); i < len(fields); i++ {
		fields[i].hasDefault = true
	}
}

func displayElts(n pyast.Expr) []pyast.Expr {
	switch n := n.(type) {
	case *pyast.List:
		return n.Elts
	case *pyast.Tuple:
		return n.Elts
	case *pyast.Set:
		return n.Elts
	}
	return nil
}

// typedDictCall evaluates TypedDict("TD", {"a": int}, total=False).
func (e *Evaluator) typedDictCall(f *SourceFile, call *pyast.Call) *CallResult {
	args, ok := positionalArgs(call)
	if !ok {
		return nil
	}
	name, ok := e.factoryName(f, call, args, "TypedDict")
	if !ok {
		return &CallResult{ReturnType: types.Unknown}
	}
	total := true
	if v := keywordArg(call, "total"); v != nil {
		if c, ok := v.(*pyast.Constant); ok && c.Kind == pyast.ConstBool {
			total = c.Value == true
		} else {
			e.report(f, v, InvalidDeclaration, "\"total\" must be True or False")
		}
	}
	base := types.Type(types.Unknown)
	if td := e.typingInfo("_TypedDict"); td != nil {
		base = &types.InstanceType{Info: td}
	}
	info := e.syntheticClass(f, call, name, types.ClassTypedDict, base)
	info.TypedDictEntries = map[string]*types.TypedDictEntry{}
	if len(args) > 1 {
		d, ok := args[1].(*pyast.Dict)
		if !ok {
			e.exprType(f, args[1], nil)
			e.report(f, args[1], InvalidDeclaration, "Expected dict as second argument to TypedDict")
		} else {
			for _, it := range d.Items {
				if it.Key == nil {
					e.exprType(f, it.Value, nil)
					continue
				}
				k, ok := strConst(it.Key)
				if !ok {
					e.report(f, it.Key, InvalidDeclaration, "Expected string literal for dictionary entry name")
					continue
				}
				required, readOnly := e.typedDictQualifiers(f, it.Value, total)
				if _, dup := info.TypedDictEntries[k]; !dup {
					info.TypedDictKeys = append(info.TypedDictKeys, k)
				}
				info.TypedDictEntries[k] = &types.TypedDictEntry{
					Type:     e.annotationType(f, it.Value, annNone),
					Required: required,
					ReadOnly: readOnly,
				}
			}
		}
	}
	for k, v := range e.synthesize(info) {
		info.Synthesized[k] = v
	}
	return &CallResult{ReturnType: &types.ClassType{Info: info}}
}
