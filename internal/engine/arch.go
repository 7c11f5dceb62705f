package engine

import (
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// Move describes an instruction that copies the source operand into the
// tracked operand, optionally adding a constant.
type Move struct {
	Src    operand.Operand
	Delta  int64
	Signed bool // sign extend the source when it is narrower than the destination
}

// Arch contains the architecture specific decisions of the engine.
// Embed DefaultArch to only implement the hooks an architecture needs.
type Arch interface {
	// AddressBits returns the width of addresses and numbers in bits.
	AddressBits() int

	// RegisterWidth returns the natural width in bytes of a register.
	RegisterWidth(reg int) int

	// DelaySlot returns the delay slot instruction of a branch.
	DelaySlot(branch uint64) (uint64, bool)

	// DelaySlotOwner returns the branch that owns the delay slot at the given address.
	DelaySlotOwner(address uint64) (uint64, bool)

	// Condition returns the execution condition of an instruction.
	Condition(insn Instruction) Cond

	// StackPointer returns the stack pointer register.
	StackPointer() (int, bool)

	// IsFunctionWide returns whether the register keeps its value across the
	// whole function, like a global base register.
	IsFunctionWide(reg int) bool

	// WellKnown returns a value for operands that are known without walking,
	// like a hardwired zero register. funcStart is set when the search
	// reached the start of the function.
	WellKnown(q *Query, address uint64, op operand.Operand, funcStart bool) (value.Value, bool)

	// IsMemReadOnly returns whether memory at the address never changes.
	IsMemReadOnly(address uint64) bool

	// IsMove returns whether the instruction copies another operand into op.
	IsMove(q *Query, op operand.Operand, insn Instruction) (Move, bool)

	// Emulate returns the value of op after the instruction if the
	// instruction modifies op.
	Emulate(q *Query, op operand.Operand, insn Instruction) (value.Value, bool)
}

// DefaultArch answers every question with "don't know".
type DefaultArch struct{}

// AddressBits returns 64.
func (DefaultArch) AddressBits() int { return 64 }

// RegisterWidth returns 8.
func (DefaultArch) RegisterWidth(int) int { return 8 }

// DelaySlot reports no delay slot.
func (DefaultArch) DelaySlot(uint64) (uint64, bool) { return 0, false }

// DelaySlotOwner reports no delay slot.
func (DefaultArch) DelaySlotOwner(uint64) (uint64, bool) { return 0, false }

// Condition reports an unconditional instruction that does not touch the flags.
func (DefaultArch) Condition(Instruction) Cond { return Cond{} }

// StackPointer reports no stack pointer.
func (DefaultArch) StackPointer() (int, bool) { return 0, false }

// IsFunctionWide reports false.
func (DefaultArch) IsFunctionWide(int) bool { return false }

// WellKnown reports no well-known value.
func (DefaultArch) WellKnown(*Query, uint64, operand.Operand, bool) (value.Value, bool) {
	return value.Value{}, false
}

// IsMemReadOnly reports false.
func (DefaultArch) IsMemReadOnly(uint64) bool { return false }

// IsMove reports no move.
func (DefaultArch) IsMove(*Query, operand.Operand, Instruction) (Move, bool) { return Move{}, false }

// Emulate reports that the instruction does not modify the operand.
func (DefaultArch) Emulate(*Query, operand.Operand, Instruction) (value.Value, bool) {
	return value.Value{}, false
}
