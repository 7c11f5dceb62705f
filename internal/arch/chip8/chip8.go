package chip8

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/retroenv/regtrack/internal/arch"
	"github.com/retroenv/regtrack/internal/engine"
	"github.com/retroenv/regtrack/internal/operand"
	"github.com/retroenv/regtrack/internal/value"
)

// CHIP-8 memory layout constants.
//
// CHIP-8 memory map (4KB total):
//
//	0x000-0x1FF: Interpreter and font data (512 bytes)
//	0x200-0xFFF: User program space (3584 bytes)
const (
	// ProgramStart is the memory address where CHIP-8 programs begin execution.
	// CHIP-8 programs are loaded at address 0x200 in the virtual machine's memory space,
	// but stored starting at offset 0x0 in ROM files.
	ProgramStart = 0x200

	// MaxAddress is the highest valid address in CHIP-8 memory space (4KB total).
	MaxAddress = 0xFFF
)

// Register ids.
const (
	RegV0 = 0
	RegVF = 15
	RegI  = 16 // index register

	addressBits = 16
)

// Compile-time check to ensure Chip8 implements arch.Architecture.
var _ arch.Architecture = (*Chip8)(nil)

// Chip8 implements the arch.Architecture interface for CHIP-8 programs.
// CHIP-8 is an interpreted programming language with 4KB of memory,
// 16 general-purpose 8-bit registers, and a simple instruction set.
type Chip8 struct {
	engine.DefaultArch
}

// New returns a new CHIP-8 architecture.
func New() *Chip8 {
	return &Chip8{}
}

// Name returns the short name of the architecture.
func (c *Chip8) Name() string {
	return "chip8"
}

// ByteOrder returns big endian, CHIP-8 opcodes and addresses are stored high byte first.
func (c *Chip8) ByteOrder() binary.ByteOrder {
	return binary.BigEndian
}

// AddressBits returns the width of the index register.
// Addresses are 12 bit, but I can hold any 16 bit value.
func (c *Chip8) AddressBits() int {
	return addressBits
}

// RegisterWidth returns 2 bytes for I and 1 byte for the V registers.
func (c *Chip8) RegisterWidth(reg int) int {
	if reg == RegI {
		return 2
	}
	return 1
}

// Register returns the register id for names like "v3", "VF" or "i".
func (c *Chip8) Register(name string) (int, bool) {
	name = strings.ToLower(name)
	if name == "i" {
		return RegI, true
	}
	if len(name) != 2 || name[0] != 'v' {
		return 0, false
	}
	reg, err := strconv.ParseUint(name[1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return int(reg), true
}

// RegisterName returns the name of a register id.
func (c *Chip8) RegisterName(reg int) string {
	if reg == RegI {
		return "I"
	}
	return fmt.Sprintf("V%X", reg)
}

// WellKnown returns zero for all registers at the program start, the
// interpreter clears them before running the program.
func (c *Chip8) WellKnown(_ *engine.Query, address uint64, op operand.Operand, funcStart bool) (value.Value, bool) {
	if !funcStart || address != ProgramStart || !op.IsRegister() {
		return value.Value{}, false
	}
	return value.NumberAt(0, address, value.AtAddress), true
}

// Condition returns the skip condition of SE, SNE, SKP and SKNP. The
// skipping edge is the jump edge of the instruction.
func (c *Chip8) Condition(insn engine.Instruction) engine.Cond {
	ins := detail(insn)
	if !isSkip(ins) {
		return engine.Cond{}
	}
	code := engine.EQ
	switch {
	case ins.group() == 0x4, ins.group() == 0x9, ins.group() == 0xE && ins.kk() == 0xA1:
		code = engine.NE
	}
	return engine.Cond{Code: code, Kind: engine.CondJumps}
}

// Flow returns the control flow effect of the instruction.
func (c *Chip8) Flow(insn engine.Instruction) arch.Flow {
	ins := detail(insn)
	switch {
	case isReturn(ins):
		return arch.Flow{Return: true}
	case ins.group() == 0x1:
		return arch.Flow{Targets: []uint64{ins.nnn()}}
	case ins.group() == 0x2:
		return arch.Flow{Targets: []uint64{ins.nnn()}, Call: true}
	case ins.group() == 0xB:
		return arch.Flow{Indirect: true}
	case isSkip(ins):
		return arch.Flow{Targets: []uint64{insn.Next() + opcodeSize}}
	default:
		return arch.Flow{}
	}
}

// ResolveIndirect resolves JP V0, nnn by tracking V0 before the jump.
func (c *Chip8) ResolveIndirect(t arch.Tracker, _ arch.Memory, insn engine.Instruction) ([]uint64, value.Value) {
	ins := detail(insn)
	if ins.group() != 0xB {
		return nil, value.NewUnknownAfter(insn.Site())
	}

	v0 := t.Find(insn.Address, c.register(RegV0), 0)
	if !v0.IsNumber() {
		return nil, v0
	}
	target := v0.Add(value.NewNumber(ins.nnn(), insn.Site()), insn.Site())
	var targets []uint64
	for _, addr := range arch.Targets(target, addressBits) {
		targets = append(targets, addr&MaxAddress)
	}
	return targets, target
}

func (c *Chip8) register(reg int) operand.Operand {
	return operand.NewRegister(reg, c.RegisterWidth(reg), false)
}
