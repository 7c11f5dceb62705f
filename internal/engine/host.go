package engine

import "github.com/retroenv/regtrack/internal/value"

// XrefKind is the kind of a control flow edge.
type XrefKind uint8

const (
	Flow XrefKind = iota // execution continues with the next instruction
	Jump                 // branch or jump, From is the branch instruction
)

func (k XrefKind) String() string {
	if k == Jump {
		return "jump"
	}
	return "flow"
}

// Xref is a control flow edge between two instructions.
type Xref struct {
	From uint64
	To   uint64
	Kind XrefKind
}

// Instruction is a decoded instruction.
type Instruction struct {
	Address     uint64
	Size        int
	Kind        uint16 // architecture specific instruction kind
	Name        string
	Fallthrough bool // execution can continue with the next instruction
	Detail      any  // architecture specific decoded form
}

// Site returns the value site for results produced by the instruction.
func (i Instruction) Site() value.Site {
	return value.Site{Addr: i.Address, Kind: i.Kind}
}

// Next returns the address of the following instruction.
func (i Instruction) Next() uint64 {
	return i.Address + uint64(i.Size)
}

// Host provides instructions and the cross-reference graph of a program.
// All methods are synchronous and must not modify the graph.
type Host interface {
	// Decode decodes the instruction at the given address.
	Decode(address uint64) (Instruction, error)
	// Predecessors returns all edges ending at the given address.
	Predecessors(address uint64) []Xref
	// Successors returns all edges starting at the given address.
	Successors(address uint64) []Xref
	// IsFunctionStart returns whether a function starts at the given address.
	IsFunctionStart(address uint64) bool
}

// MemoryReader is optionally implemented by hosts that give access to the
// program image. It is used to emulate reads from read-only memory.
type MemoryReader interface {
	// ReadMemory reads a value of width bytes in the program byte order.
	ReadMemory(address uint64, width int) (uint64, error)
	// IsReadOnly returns whether all bytes of the range are read-only.
	IsReadOnly(address uint64, width int) bool
}
