package value

// Relation is the result of comparing two value sets in Union.
type Relation uint8

const (
	Equal         Relation = iota // both sets are equal
	Contains                      // the receiver contains the argument, it is unchanged
	Contained                     // the receiver was contained in the argument, it is now a copy of it
	NotComparable                 // both sets have distinct entries, the receiver now holds their union
)

var relationNames = [...]string{
	Equal:         "equal",
	Contains:      "contains",
	Contained:     "contained",
	NotComparable: "not comparable",
}

func (r Relation) String() string {
	if int(r) < len(relationNames) {
		return relationNames[r]
	}
	return "unknown relation"
}

// Union adds the entries of r to v and reports how the two sets related.
//
// Undefined and DeadEnd inputs are absorbed by the other side, Aborted dominates.
// Numbers and stack deltas merged with each other degrade to
// UnknownIncompatibleMerge anchored at the lowest defining address. A resolved
// value merged with an unknown one becomes that unknown, two different unknowns
// keep the receiver.
func (v *Value) Union(r Value) Relation {
	switch {
	case r.state == Undefined:
		if v.state == Undefined {
			return Equal
		}
		return Contains

	case v.state == Undefined:
		*v = r
		return Contained

	case v.state == r.state:
		return v.unionDefs(r)

	case v.state == Aborted:
		return Contains

	case r.state == Aborted:
		*v = r
		return Contained

	case r.state == DeadEnd:
		return Contains

	case v.state == DeadEnd:
		*v = r
		return Contained

	case v.IsKnown() && r.IsKnown():
		addr := min(v.defs[0].Addr, r.defs[0].Addr)
		*v = NewUnknownMerge(addr)
		return NotComparable

	case v.IsKnown():
		*v = r
		return Contained

	default:
		return Contains
	}
}

func (v *Value) unionDefs(r Value) Relation {
	vInR := isSubset(v.defs, r.defs)
	rInV := isSubset(r.defs, v.defs)
	switch {
	case vInR && rInV:
		return Equal
	case rInV:
		return Contains
	case vInR:
		*v = r
		return Contained
	}

	merged := make([]Def, 0, len(v.defs)+len(r.defs))
	merged = append(merged, v.defs...)
	merged = append(merged, r.defs...)
	v.defs = normalize(merged)
	return NotComparable
}

// isSubset returns whether every entry of a is in b. Both slices are sorted.
func isSubset(a, b []Def) bool {
	j := 0
	for _, d := range a {
		for j < len(b) && b[j].compare(d) < 0 {
			j++
		}
		if j == len(b) || b[j].compare(d) != 0 {
			return false
		}
	}
	return true
}
