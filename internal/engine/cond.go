package engine

// CondCode is an execution condition. Codes come in pairs where the second
// code is the negation of the first.
type CondCode uint8

const (
	Always CondCode = iota
	Never
	EQ // equal, zero set
	NE // not equal
	CS // carry set, unsigned higher or same
	CC // carry clear, unsigned lower
	MI // negative
	PL // positive or zero
	VS // overflow
	VC // no overflow
	HI // unsigned higher
	LS // unsigned lower or same
	GE // signed greater or equal
	LT // signed less than
	GT // signed greater than
	LE // signed less or equal
)

var condNames = [...]string{
	Always: "al", Never: "nv",
	EQ: "eq", NE: "ne", CS: "cs", CC: "cc", MI: "mi", PL: "pl", VS: "vs", VC: "vc",
	HI: "hi", LS: "ls", GE: "ge", LT: "lt", GT: "gt", LE: "le",
}

func (c CondCode) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "??"
}

// Invert returns the negated condition.
func (c CondCode) Invert() CondCode {
	return c ^ 1
}

// Includes returns whether an instruction executing under condition c is
// guaranteed to execute when the guard condition holds. Only the trivial
// cases are proven: an unconditional instruction or an identical condition.
func (c CondCode) Includes(guard CondCode) bool {
	return c == Always || c == guard
}

// CondKind describes how an instruction relates to the condition flags.
type CondKind uint8

const (
	CondNone          CondKind = iota // neither uses nor modifies the flags
	CondModifiesFlags                 // modifies the flags
	CondJumps                         // conditional branch
)

// Cond is the condition information of an instruction.
type Cond struct {
	Code CondCode
	Kind CondKind
}
