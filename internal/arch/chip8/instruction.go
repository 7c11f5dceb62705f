package chip8

import (
	"fmt"
	"math/bits"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/retrogolib/arch/cpu/chip8"
)

// opcodeSize is the size of CHIP-8 instructions in bytes.
const opcodeSize = 2

// Instruction is the decoded form of a CHIP-8 instruction that is stored in
// the Detail field of engine.Instruction.
type Instruction struct {
	Opcode uint16
	ins    *chip8.Instruction
}

// Name returns the instruction name.
func (i Instruction) Name() string {
	if i.ins == nil {
		return ""
	}
	return i.ins.Name
}

// group returns the first nibble of the opcode.
func (i Instruction) group() uint16 { return i.Opcode >> 12 }

// x returns the X register nibble.
func (i Instruction) x() int { return int(i.Opcode>>8) & 0xF }

// y returns the Y register nibble.
func (i Instruction) y() int { return int(i.Opcode>>4) & 0xF }

// n returns the lowest nibble.
func (i Instruction) n() uint16 { return i.Opcode & 0xF }

// kk returns the lowest byte.
func (i Instruction) kk() uint64 { return uint64(i.Opcode & 0xFF) }

// nnn returns the 12-bit address.
func (i Instruction) nnn() uint64 { return uint64(i.Opcode & 0xFFF) }

// Decode decodes the CHIP-8 instruction at the given address. It matches
// the opcode against the instruction table of the first nibble.
func (c *Chip8) Decode(mem arch.Memory, address uint64) (engine.Instruction, error) {
	data, err := mem.ReadBytes(address, opcodeSize)
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("reading memory at address %04x: %w", address, err)
	}
	if len(data) < opcodeSize {
		return engine.Instruction{}, fmt.Errorf("%w: truncated opcode at %04x", arch.ErrInvalidInstruction, address)
	}

	w := uint16(data[0])<<8 | uint16(data[1])
	opcodes := chip8.Opcodes[int(w>>12)]
	// the most specific match wins, 00EE is also a valid SYS 0nnn
	var opcode chip8.Opcode
	for _, op := range opcodes {
		if op.Info.Mask&w != op.Info.Value {
			continue
		}
		if opcode.Instruction == nil || bits.OnesCount16(op.Info.Mask) > bits.OnesCount16(opcode.Info.Mask) {
			opcode = op
		}
	}
	if opcode.Instruction == nil {
		return engine.Instruction{}, fmt.Errorf("%w: opcode %04x at %04x", arch.ErrInvalidInstruction, w, address)
	}

	ins := Instruction{Opcode: w, ins: opcode.Instruction}
	return engine.Instruction{
		Address:     address,
		Size:        opcodeSize,
		Kind:        ins.group(),
		Name:        ins.Name(),
		Fallthrough: !isJump(ins) && !isReturn(ins),
		Detail:      ins,
	}, nil
}

func isJump(ins Instruction) bool {
	return ins.group() == 0x1 || ins.group() == 0xB
}

func isReturn(ins Instruction) bool {
	return ins.Opcode == 0x00EE
}

// isSkip returns whether the instruction conditionally skips the next instruction.
func isSkip(ins Instruction) bool {
	switch ins.group() {
	case 0x3, 0x4, 0x5, 0x9:
		return true
	case 0xE:
		return ins.kk() == 0x9E || ins.kk() == 0xA1
	default:
		return false
	}
}

func detail(insn engine.Instruction) Instruction {
	ins, _ := insn.Detail.(Instruction)
	return ins
}
