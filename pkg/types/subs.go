package types

import "sort"

// TypeVarKey identifies a type variable by name within the scope that
// binds it.
type TypeVarKey struct {
	Scope string
	Name  string
}

func (k TypeVarKey) String() string {
	if k.Scope == "" {
		return k.Name
	}
	return k.Name + "@" + k.Scope
}

// Subs maps type variables to the types that replace them.
type Subs map[TypeVarKey]Type

// NewSubs creates a new substitution
func NewSubs() Subs {
	return make(Subs)
}

// Apply applies the substitution to a type
func (s Subs) Apply(t Type) Type {
	if len(s) == 0 || t == nil {
		return t
	}
	return t.Apply(s)
}

// Compose composes two substitutions
func (s Subs) Compose(other Subs) Subs {
	result := make(Subs, len(s)+len(other))
	for tv, t := range s {
		result[tv] = other.Apply(t)
	}
	for tv, t := range other {
		if _, exists := result[tv]; !exists {
			result[tv] = t
		}
	}
	return result
}

// Clone creates a copy of the substitution
func (s Subs) Clone() Subs {
	result := make(Subs, len(s))
	for tv, t := range s {
		result[tv] = t
	}
	return result
}

// Add adds a mapping and returns the updated substitution
func (s Subs) Add(tv *TypeVarType, t Type) Subs {
	s[tv.Key()] = t
	return s
}

// Get gets a type for a type variable
func (s Subs) Get(tv *TypeVarType) (Type, bool) {
	t, exists := s[tv.Key()]
	return t, exists
}

// Keys returns the bound variables in a stable order.
func (s Subs) Keys() []TypeVarKey {
	keys := make([]TypeVarKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scope != keys[j].Scope {
			return keys[i].Scope < keys[j].Scope
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// SubsFor builds a substitution pairing params with args positionally.
// Missing args are left unbound.
func SubsFor(params []*TypeVarType, args []Type) Subs {
	subs := make(Subs, len(params))
	for i, p := range params {
		if i < len(args) && args[i] != nil {
			subs[p.Key()] = args[i]
		}
	}
	return subs
}
