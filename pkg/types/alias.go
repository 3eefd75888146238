package types

// AliasDef is a named type alias whose target may refer back to itself.
// Target is filled in once the alias's value has been evaluated.
type AliasDef struct {
	Name       string
	Decl       DeclRef
	TypeParams []*TypeVarType
	Target     Type
	// Recursive is set when Target refers back to the alias.
	Recursive bool
}

// AliasType is a reference to a recursive alias. Non-recursive aliases are
// expanded eagerly and never appear as an AliasType.
type AliasType struct {
	Def  *AliasDef
	Args []Type
}

func (*AliasType) typ() {}

// Resolve expands one level of the alias.
func (t *AliasType) Resolve() Type {
	if t.Def.Target == nil {
		return Unknown
	}
	if len(t.Args) == 0 {
		return t.Def.Target
	}
	return SubsFor(t.Def.TypeParams, t.Args).Apply(t.Def.Target)
}

func (t *AliasType) Apply(subs Subs) Type {
	if len(subs) == 0 || len(t.Args) == 0 {
		return t
	}
	return &AliasType{Def: t.Def, Args: applyAll(t.Args, subs)}
}

func (t *AliasType) FreeTypeVars() TypeVarSet {
	return freeAll(t.Args)
}

func (t *AliasType) Eq(other Type) bool {
	o, ok := other.(*AliasType)
	if !ok {
		return false
	}
	return (o.Def == t.Def || o.Def.Decl == t.Def.Decl && !t.Def.Decl.IsZero()) && argsEq(t.Args, o.Args)
}

func (t *AliasType) String() string {
	return nameWithArgs(t.Def.Name, t.Args)
}

// Unalias expands t while it is an alias reference, up to a fixed depth.
func Unalias(t Type) Type {
	for i := 0; i < 32; i++ {
		a, ok := t.(*AliasType)
		if !ok {
			return t
		}
		t = a.Resolve()
	}
	return Unknown
}
