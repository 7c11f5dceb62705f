// Package operand describes what the register tracker follows: a register or
// a stack slot relative to the function entry stack pointer.
package operand

import (
	"cmp"
	"fmt"
)

// Kind discriminates the operand variants.
type Kind uint8

const (
	Empty     Kind = iota // invalid operand
	Register              // machine register
	StackSlot             // stack memory relative to the function entry stack pointer
)

const (
	// MaxRegister is the highest register id an operand can refer to.
	MaxRegister = 0xFFFF
	// MaxStackOffset is the highest absolute stack offset an operand can refer to.
	MaxStackOffset = 1<<27 - 1
)

// Operand is a validated register or stack slot descriptor. It is comparable
// and can be used as a map key. The zero value is the empty operand.
type Operand struct {
	kind   Kind
	signed bool
	width  uint8
	reg    uint16
	offset int32
}

func validWidth(width int) bool {
	switch width {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// NewRegister returns a register operand. Invalid arguments return the
// empty operand.
func NewRegister(reg int, width int, signed bool) Operand {
	if reg < 0 || reg > MaxRegister || !validWidth(width) {
		return Operand{}
	}
	return Operand{
		kind:   Register,
		signed: signed,
		width:  uint8(width),
		reg:    uint16(reg),
	}
}

// NewStackSlot returns a stack slot operand. Invalid arguments return the
// empty operand.
func NewStackSlot(offset int64, width int) Operand {
	if offset < -MaxStackOffset || offset > MaxStackOffset || !validWidth(width) {
		return Operand{}
	}
	return Operand{
		kind:   StackSlot,
		width:  uint8(width),
		offset: int32(offset),
	}
}

// Kind returns the operand variant.
func (o Operand) Kind() Kind { return o.kind }

// IsEmpty returns whether the operand is the invalid sentinel.
func (o Operand) IsEmpty() bool { return o.kind == Empty }

// IsRegister returns whether the operand is a register.
func (o Operand) IsRegister() bool { return o.kind == Register }

// IsStackSlot returns whether the operand is a stack slot.
func (o Operand) IsStackSlot() bool { return o.kind == StackSlot }

// IsReg returns whether the operand is the given register, ignoring width.
func (o Operand) IsReg(reg int) bool { return o.kind == Register && int(o.reg) == reg }

// Reg returns the register id, or -1 for non register operands.
func (o Operand) Reg() int {
	if o.kind != Register {
		return -1
	}
	return int(o.reg)
}

// Offset returns the stack offset of a stack slot.
func (o Operand) Offset() int64 { return int64(o.offset) }

// Width returns the width in bytes.
func (o Operand) Width() int { return int(o.width) }

// Signed returns whether the register value is sign extended when widened.
func (o Operand) Signed() bool { return o.signed }

// WithWidth returns the same register or slot with a different width.
func (o Operand) WithWidth(width int, signed bool) Operand {
	switch o.kind {
	case Register:
		return NewRegister(int(o.reg), width, signed)
	case StackSlot:
		return NewStackSlot(int64(o.offset), width)
	default:
		return Operand{}
	}
}

// Overlaps returns whether two stack slots share at least one byte.
func (o Operand) Overlaps(other Operand) bool {
	if o.kind != StackSlot || other.kind != StackSlot {
		return false
	}
	aStart, aEnd := int64(o.offset), int64(o.offset)+int64(o.width)
	bStart, bEnd := int64(other.offset), int64(other.offset)+int64(other.width)
	return aStart < bEnd && bStart < aEnd
}

// Compare orders operands: the empty operand first, then by kind and fields.
func (o Operand) Compare(other Operand) int {
	if c := cmp.Compare(o.kind, other.kind); c != 0 {
		return c
	}
	switch o.kind {
	case Register:
		if c := cmp.Compare(o.reg, other.reg); c != 0 {
			return c
		}
	case StackSlot:
		if c := cmp.Compare(o.offset, other.offset); c != 0 {
			return c
		}
	default:
		return 0
	}
	if c := cmp.Compare(o.width, other.width); c != 0 {
		return c
	}
	switch {
	case o.signed == other.signed:
		return 0
	case other.signed:
		return -1
	default:
		return 1
	}
}

// String returns a debug representation like "r3.4s" or "stk[-8].8".
func (o Operand) String() string {
	switch o.kind {
	case Register:
		sign := ""
		if o.signed {
			sign = "s"
		}
		return fmt.Sprintf("r%d.%d%s", o.reg, o.width, sign)
	case StackSlot:
		return fmt.Sprintf("stk[%d].%d", o.offset, o.width)
	default:
		return "empty"
	}
}
