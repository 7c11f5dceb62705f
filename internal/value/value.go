// Package value implements the abstract values computed by the register tracker.
//
// A Value is either a special state that explains why nothing is known about an
// operand or a set of resolved numbers or stack pointer deltas. Each resolved
// entry remembers the instruction that produced it.
package value

import (
	"fmt"
	"slices"
	"strings"
)

// State is the category of a Value.
type State uint8

// Value states. Every state except Undefined carries at least one Def whose
// address explains where the state was concluded.
const (
	Undefined                State = iota // nothing computed yet
	DeadEnd                               // no predecessor, Def.Addr is the dead-end block
	Aborted                               // depth budget exhausted, Def.Addr is the block where the search stopped
	BadInstruction                        // the instruction at Def.Addr could not be decoded
	UnknownAfterInstruction               // the instruction at Def.Addr made the value unknown
	UnknownAtFunctionEntry                // the function start at Def.Addr was reached
	UnknownAcrossLoop                     // the value changes in a loop, Def.Addr is the changing instruction
	UnknownIncompatibleMerge              // incompatible values meet at the join point Def.Addr
	Number                                // one or more numbers
	StackDelta                            // one or more offsets from the function entry stack pointer
)

var stateNames = [...]string{
	Undefined:                "undefined",
	DeadEnd:                  "dead end",
	Aborted:                  "aborted",
	BadInstruction:           "bad instruction",
	UnknownAfterInstruction:  "unknown after instruction",
	UnknownAtFunctionEntry:   "unknown at function entry",
	UnknownAcrossLoop:        "unknown across loop",
	UnknownIncompatibleMerge: "incompatible merge",
	Number:                   "number",
	StackDelta:               "stack delta",
}

// String returns the name of the state.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Flags describe a single resolved value.
type Flags uint16

const (
	ShortInsn Flags = 1 << iota // the defining instruction is a short encoding
	PCBased                     // the value was derived from the program counter
	LikeGOT                     // the value is a global base like a GOT pointer
	AtAddress                   // the value is known before Def.Addr instead of produced by it
)

// Site identifies the instruction that produces a value.
type Site struct {
	Addr  uint64
	Kind  uint16 // architecture specific instruction kind
	Flags Flags
}

// Def is one entry of the value set.
type Def struct {
	Val   uint64
	Addr  uint64
	Kind  uint16
	Flags Flags
}

func (d Def) compare(o Def) int {
	switch {
	case d.Addr < o.Addr:
		return -1
	case d.Addr > o.Addr:
		return 1
	case d.Val < o.Val:
		return -1
	case d.Val > o.Val:
		return 1
	}
	return 0
}

// Value is an abstract value. The zero value is Undefined.
// The Def slice is never modified after construction, so Values can be copied freely.
type Value struct {
	state State
	defs  []Def
}

func special(state State, addr uint64) Value {
	return Value{state: state, defs: []Def{{Addr: addr}}}
}

// NewDeadEnd returns a DeadEnd value for the block at addr.
func NewDeadEnd(addr uint64) Value { return special(DeadEnd, addr) }

// NewAborted returns an Aborted value for the block at addr.
func NewAborted(addr uint64) Value { return special(Aborted, addr) }

// NewBadInstruction returns a BadInstruction value for the instruction at addr.
func NewBadInstruction(addr uint64) Value { return special(BadInstruction, addr) }

// NewUnknownAfter returns an UnknownAfterInstruction value for the given instruction.
func NewUnknownAfter(site Site) Value {
	return Value{state: UnknownAfterInstruction, defs: []Def{{Addr: site.Addr, Kind: site.Kind, Flags: site.Flags}}}
}

// NewUnknownAtEntry returns an UnknownAtFunctionEntry value for the function starting at addr.
func NewUnknownAtEntry(addr uint64) Value { return special(UnknownAtFunctionEntry, addr) }

// NewUnknownLoop returns an UnknownAcrossLoop value for the changing instruction at addr.
func NewUnknownLoop(addr uint64) Value { return special(UnknownAcrossLoop, addr) }

// NewUnknownMerge returns an UnknownIncompatibleMerge value for the join point at addr.
func NewUnknownMerge(addr uint64) Value { return special(UnknownIncompatibleMerge, addr) }

// NewNumber returns a number produced by the instruction at site.
func NewNumber(v uint64, site Site) Value {
	return Value{state: Number, defs: []Def{{Val: v, Addr: site.Addr, Kind: site.Kind, Flags: site.Flags}}}
}

// NumberAt returns a number that is known to be held before addr.
func NumberAt(v uint64, addr uint64, flags Flags) Value {
	return Value{state: Number, defs: []Def{{Val: v, Addr: addr, Flags: flags | AtAddress}}}
}

// NewStackDelta returns a stack pointer delta produced by the instruction at site.
func NewStackDelta(delta int64, site Site) Value {
	return Value{state: StackDelta, defs: []Def{{Val: uint64(delta), Addr: site.Addr, Kind: site.Kind, Flags: site.Flags}}}
}

// InitialStackPointer returns the stack pointer value at the start of the function at addr.
func InitialStackPointer(addr uint64) Value {
	return Value{state: StackDelta, defs: []Def{{Addr: addr, Flags: AtAddress}}}
}

// State returns the category of the value.
func (v Value) State() State { return v.state }

// IsUndefined returns whether nothing has been computed yet.
func (v Value) IsUndefined() bool { return v.state == Undefined }

// IsDeadEnd returns whether the search hit a block without predecessors.
func (v Value) IsDeadEnd() bool { return v.state == DeadEnd }

// IsAborted returns whether the depth budget was exhausted.
func (v Value) IsAborted() bool { return v.state == Aborted }

// IsSpecial returns whether the value is a dead end or aborted.
func (v Value) IsSpecial() bool { return v.state == DeadEnd || v.state == Aborted }

// IsNumber returns whether the value is a set of numbers.
func (v Value) IsNumber() bool { return v.state == Number }

// IsStackDelta returns whether the value is a set of stack pointer deltas.
func (v Value) IsStackDelta() bool { return v.state == StackDelta }

// IsKnown returns whether the value is resolved.
func (v Value) IsKnown() bool { return v.state == Number || v.state == StackDelta }

// IsUnknown returns whether the value is one of the anchored unknown states.
func (v Value) IsUnknown() bool {
	switch v.state {
	case BadInstruction, UnknownAfterInstruction, UnknownAtFunctionEntry,
		UnknownAcrossLoop, UnknownIncompatibleMerge:
		return true
	default:
		return false
	}
}

// Len returns the number of entries in the value set.
func (v Value) Len() int { return len(v.defs) }

// IsUnique returns whether the value holds exactly one resolved value.
func (v Value) IsUnique() bool { return v.IsKnown() && len(v.defs) == 1 }

// Num returns the number if the value is a unique number.
func (v Value) Num() (uint64, bool) {
	if v.state != Number || len(v.defs) != 1 {
		return 0, false
	}
	return v.defs[0].Val, true
}

// Delta returns the stack pointer delta if the value is a unique delta.
func (v Value) Delta() (int64, bool) {
	if v.state != StackDelta || len(v.defs) != 1 {
		return 0, false
	}
	return int64(v.defs[0].Val), true
}

// DefAddr returns the address of the first entry.
func (v Value) DefAddr() (uint64, bool) {
	if len(v.defs) == 0 {
		return 0, false
	}
	return v.defs[0].Addr, true
}

// DefKind returns the instruction kind of the first entry.
func (v Value) DefKind() uint16 {
	if len(v.defs) == 0 {
		return 0
	}
	return v.defs[0].Kind
}

// Defs returns a copy of the value set.
func (v Value) Defs() []Def {
	return slices.Clone(v.defs)
}

// Values returns the raw values of all entries.
func (v Value) Values() []uint64 {
	vals := make([]uint64, len(v.defs))
	for i, d := range v.defs {
		vals[i] = d.Val
	}
	return vals
}

// AllFlags returns whether every entry carries all of the given flags.
func (v Value) AllFlags(f Flags) bool {
	if len(v.defs) == 0 {
		return false
	}
	for _, d := range v.defs {
		if d.Flags&f != f {
			return false
		}
	}
	return true
}

// Equal returns whether both values have the same state and value set.
func (v Value) Equal(o Value) bool {
	if v.state != o.state || len(v.defs) != len(o.defs) {
		return false
	}
	for i := range v.defs {
		if v.defs[i] != o.defs[i] {
			return false
		}
	}
	return true
}

// String returns a human readable representation like "num 0x8 @0x1004".
func (v Value) String() string {
	switch v.state {
	case Undefined:
		return "undefined"
	case Number, StackDelta:
		var sb strings.Builder
		if v.state == Number {
			sb.WriteString("num ")
		} else {
			sb.WriteString("spd ")
		}
		if len(v.defs) > 1 {
			sb.WriteByte('{')
		}
		for i, d := range v.defs {
			if i > 0 {
				sb.WriteString(", ")
			}
			if v.state == Number {
				fmt.Fprintf(&sb, "%#x", d.Val)
			} else {
				fmt.Fprintf(&sb, "%d", int64(d.Val))
			}
			fmt.Fprintf(&sb, " @%#x", d.Addr)
		}
		if len(v.defs) > 1 {
			sb.WriteByte('}')
		}
		return sb.String()
	default:
		addr, _ := v.DefAddr()
		return fmt.Sprintf("%s @%#x", v.state, addr)
	}
}

// normalize sorts the value set by address and value and removes duplicates.
func normalize(defs []Def) []Def {
	slices.SortFunc(defs, Def.compare)
	return slices.CompactFunc(defs, func(a, b Def) bool { return a.compare(b) == 0 })
}
