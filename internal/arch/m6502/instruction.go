package m6502

import (
	"fmt"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	m6502 "github.com/retroenv/retrogolib/arch/cpu/cpu6502"
)

// Instruction is the decoded form of a 6502 instruction that is stored in
// the Detail field of engine.Instruction.
type Instruction struct {
	Opcode     byte
	Addressing m6502.AddressingMode
	// Param is the immediate value, the zero page or absolute address or
	// the destination of a relative branch.
	Param uint16

	ins *m6502.Instruction
}

// Name returns the instruction name.
func (i Instruction) Name() string {
	if i.ins == nil {
		return ""
	}
	return i.ins.Name
}

// Unofficial returns true if the instruction is not official.
func (i Instruction) Unofficial() bool {
	return i.ins != nil && i.ins.Unofficial
}

func detail(insn engine.Instruction) Instruction {
	ins, _ := insn.Detail.(Instruction)
	return ins
}

// paramSize returns the number of parameter bytes following the opcode.
func paramSize(addressing m6502.AddressingMode) (int, bool) {
	switch addressing {
	case m6502.ImpliedAddressing, m6502.AccumulatorAddressing:
		return 0, true
	case m6502.ImmediateAddressing, m6502.ZeroPageAddressing, m6502.ZeroPageXAddressing,
		m6502.ZeroPageYAddressing, m6502.RelativeAddressing, m6502.IndirectXAddressing,
		m6502.IndirectYAddressing:
		return 1, true
	case m6502.AbsoluteAddressing, m6502.AbsoluteXAddressing, m6502.AbsoluteYAddressing,
		m6502.IndirectAddressing:
		return 2, true
	default:
		return 0, false
	}
}

// Decode decodes the instruction at the given address.
func (ar *Arch6502) Decode(mem arch.Memory, address uint64) (engine.Instruction, error) {
	data, err := mem.ReadBytes(address, int(m6502.MaxOpcodeSize))
	if err != nil {
		return engine.Instruction{}, fmt.Errorf("reading memory at address %04x: %w", address, err)
	}

	opcode := m6502.Opcodes[data[0]]
	if opcode.Instruction == nil {
		return engine.Instruction{}, fmt.Errorf("%w: opcode %02x at %04x", arch.ErrInvalidInstruction, data[0], address)
	}
	if opcode.Instruction.Unofficial && ar.opts.NoUnofficialInstructions {
		return engine.Instruction{}, fmt.Errorf("%w: unofficial opcode %02x at %04x", arch.ErrInvalidInstruction, data[0], address)
	}

	size, ok := paramSize(opcode.Addressing)
	if !ok {
		return engine.Instruction{}, fmt.Errorf("%w: unsupported addressing mode %d", arch.ErrInvalidInstruction, opcode.Addressing)
	}
	if len(data) < 1+size {
		return engine.Instruction{}, fmt.Errorf("%w: truncated instruction at %04x", arch.ErrInvalidInstruction, address)
	}
	vectors := uint64(m6502.InterruptVectorStartAddress)
	if address < vectors && address+uint64(size) >= vectors {
		return engine.Instruction{}, fmt.Errorf("%w: instruction at %04x overlaps the interrupt vectors",
			arch.ErrInvalidInstruction, address)
	}

	ins := Instruction{
		Opcode:     data[0],
		Addressing: opcode.Addressing,
		ins:        opcode.Instruction,
	}
	switch size {
	case 1:
		ins.Param = uint16(data[1])
	case 2:
		ins.Param = uint16(data[2])<<8 | uint16(data[1])
	}
	if opcode.Addressing == m6502.RelativeAddressing {
		ins.Param = uint16(address) + 2 + uint16(int8(data[1]))
	}

	_, stops := m6502.NotExecutingFollowingOpcodeInstructions[ins.Name()]
	return engine.Instruction{
		Address:     address,
		Size:        1 + size,
		Kind:        uint16(ins.Opcode),
		Name:        ins.Name(),
		Fallthrough: !stops,
		Detail:      ins,
	}, nil
}
