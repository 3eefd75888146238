package types

// TypeVarSet represents a set of type variables
type TypeVarSet map[TypeVarKey]*TypeVarType

// NewTypeVarSet creates a new TypeVarSet
func NewTypeVarSet(tvs ...*TypeVarType) TypeVarSet {
	set := make(TypeVarSet, len(tvs))
	for _, tv := range tvs {
		set[tv.Key()] = tv
	}
	return set
}

// Union returns the union of two TypeVarSets
func (tvs TypeVarSet) Union(other TypeVarSet) TypeVarSet {
	if len(other) == 0 {
		return tvs
	}
	if len(tvs) == 0 {
		return other
	}
	result := make(TypeVarSet, len(tvs)+len(other))
	for k, tv := range tvs {
		result[k] = tv
	}
	for k, tv := range other {
		result[k] = tv
	}
	return result
}

// Contains checks if a type variable is in the set
func (tvs TypeVarSet) Contains(tv *TypeVarType) bool {
	_, ok := tvs[tv.Key()]
	return ok
}

// InScope reports whether any variable in the set belongs to scope.
func (tvs TypeVarSet) InScope(scope string) bool {
	for k := range tvs {
		if k.Scope == scope {
			return true
		}
	}
	return false
}

// ToSlice converts the set to a slice
func (tvs TypeVarSet) ToSlice() []*TypeVarType {
	result := make([]*TypeVarType, 0, len(tvs))
	for _, tv := range tvs {
		result = append(result, tv)
	}
	return result
}
