package program

import "slices"

// OffsetType defines the analysis type of a program address.
type OffsetType uint8

// address types.
const (
	UnknownOffset   OffsetType = 0
	CodeOffset      OffsetType = 1 << iota
	EntryPoint                 // entry point of the program
	CallDestination            // destination of a call, indicating a function
	JumpDestination            // destination of a direct or resolved jump
	IndirectJump               // jump with a target that depends on register values
)

// IsType returns whether the address has any of the given types.
func (p *Program) IsType(address uint64, typ OffsetType) bool {
	return p.types[address]&typ != 0
}

// SetType sets the type of the address.
func (p *Program) SetType(address uint64, typ OffsetType) {
	p.types[address] |= typ
}

// ClearType unsets the type of the address.
func (p *Program) ClearType(address uint64, typ OffsetType) {
	mask := ^(typ)
	p.types[address] &= mask
}

// Addresses returns all addresses that have any of the given types, sorted.
func (p *Program) Addresses(typ OffsetType) []uint64 {
	var addrs []uint64
	for addr, t := range p.types {
		if t&typ != 0 {
			addrs = append(addrs, addr)
		}
	}
	slices.Sort(addrs)
	return addrs
}
